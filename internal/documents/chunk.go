package documents

import (
	"strings"
	"unicode"
)

// Split cuts text into chunks of at most size runes, each sharing about
// overlap runes with its predecessor. Cuts prefer whitespace in the
// second half of a window so words stay whole.
func Split(text string, size, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" || size <= 0 {
		return nil
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	r := []rune(text)
	if len(r) <= size {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(r) {
		end := min(start+size, len(r))
		if end < len(r) {
			for i := end; i > start+size/2; i-- {
				if unicode.IsSpace(r[i-1]) {
					end = i
					break
				}
			}
		}

		if chunk := strings.TrimSpace(string(r[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(r) {
			break
		}

		next := end - overlap
		if next <= start {
			next = end
		}
		// Begin the next chunk on a word boundary.
		for next < end && next > 0 && !unicode.IsSpace(r[next-1]) {
			next++
		}
		start = next
	}
	return chunks
}
