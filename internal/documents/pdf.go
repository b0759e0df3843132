package documents

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// pdfText returns the text of every page, pages separated by blank
// lines. Scanned PDFs without a text layer yield no text.
func pdfText(content []byte) (text string, err error) {
	// The parser panics on some malformed files.
	defer func() {
		if p := recover(); p != nil {
			text, err = "", fmt.Errorf("%w: unreadable PDF: %v", ErrUnsupportedFormat, p)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("%w: unreadable PDF: %v", ErrUnsupportedFormat, err)
	}

	fonts := make(map[string]*pdf.Font)
	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		for _, name := range page.Fonts() {
			if _, ok := fonts[name]; !ok {
				f := page.Font(name)
				fonts[name] = &f
			}
		}
		t, err := page.GetPlainText(fonts)
		if err != nil {
			return "", fmt.Errorf("read PDF page %d: %w", i, err)
		}
		pages = append(pages, t)
	}
	return cleanWhitespace(strings.Join(pages, "\n\n")), nil
}
