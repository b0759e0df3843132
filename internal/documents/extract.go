package documents

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrUnsupportedFormat is returned for document types that cannot be
// converted to text.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// Extract returns the readable text of a document. The format is
// chosen by the extension of name: Markdown and HTML are rendered to
// text, PDF text layers are read page by page, and anything else must
// be UTF-8 plain text.
func Extract(name string, content []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".markdown":
		var buf bytes.Buffer
		if err := goldmark.Convert(content, &buf); err != nil {
			return "", fmt.Errorf("render markdown: %w", err)
		}
		return htmlText(buf.String())
	case ".html", ".htm":
		return htmlText(string(content))
	case ".pdf":
		return pdfText(content)
	default:
		if !utf8.Valid(content) {
			return "", fmt.Errorf("%w: %s is not UTF-8 text", ErrUnsupportedFormat, name)
		}
		return cleanWhitespace(string(content)), nil
	}
}

// skipElements hold no readable document text.
var skipElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Iframe:   true,
	atom.Svg:      true,
	atom.Head:     true,
	atom.Nav:      true,
}

func htmlText(raw string) (string, error) {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	var b strings.Builder
	walkText(doc, &b)
	return cleanWhitespace(b.String()), nil
}

func walkText(n *html.Node, w *strings.Builder) {
	if n.Type == html.ElementNode {
		if skipElements[n.DataAtom] {
			return
		}
		if isBlockElement(n.DataAtom) && w.Len() > 0 {
			w.WriteString("\n\n")
		}
	}
	if n.Type == html.TextNode {
		if text := strings.TrimSpace(n.Data); text != "" {
			w.WriteString(text)
			w.WriteString(" ")
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkText(c, w)
	}
	if n.Type == html.ElementNode && (n.DataAtom == atom.Br || n.DataAtom == atom.Li) {
		w.WriteString("\n")
	}
}

func isBlockElement(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Section, atom.Article, atom.Main,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Blockquote, atom.Pre, atom.Ul, atom.Ol, atom.Table,
		atom.Tr, atom.Hr:
		return true
	}
	return false
}

// cleanWhitespace collapses runs of spaces within lines and of blank
// lines between them.
func cleanWhitespace(s string) string {
	var cleaned []string
	prevEmpty := false
	for _, line := range strings.Split(s, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if prevEmpty {
				continue
			}
			prevEmpty = true
		} else {
			prevEmpty = false
		}
		cleaned = append(cleaned, line)
	}
	return strings.TrimSpace(strings.Join(cleaned, "\n"))
}
