package fetcher

import (
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// CleanText strips markup from provider teasers and collapses whitespace.
func CleanText(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	text := raw
	if strings.ContainsAny(raw, "<&") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw)); err == nil {
			text = doc.Text()
		}
		text = html.UnescapeString(text)
	}
	return strings.Join(strings.Fields(text), " ")
}
