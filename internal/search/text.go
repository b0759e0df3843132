package search

import (
	"strings"

	"golang.org/x/net/html"
)

// PlainText strips markup from a provider snippet and decodes HTML
// entities. Search APIs highlight matches with <b>/<strong> tags and
// escape punctuation; neither helps the model.
func PlainText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}

	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			// Block-level breaks become spaces; inline tags vanish.
			name, _ := z.TagName()
			switch string(name) {
			case "br", "p", "div", "li":
				b.WriteByte(' ')
			}
		}
	}
}
