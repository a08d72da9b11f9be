package feed

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/unicode/norm"
)

// PlainText flattens an HTML fragment into whitespace-collapsed text.
// Input that is not parseable as HTML is returned with whitespace collapsed.
func PlainText(html string) string {
	if !strings.ContainsAny(html, "<&") {
		return collapseSpaces(html)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return collapseSpaces(html)
	}

	return collapseSpaces(doc.Text())
}

// Truncate returns at most n runes of s after NFC normalization.
func Truncate(s string, n int) string {
	s = norm.NFC.String(s)
	if n <= 0 {
		return ""
	}

	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
