package util

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	whitespace = regexp.MustCompile(`\s+`)
	hyperlink  = regexp.MustCompile(`https?://[0-9A-Za-z./_~%?=#+-]+`)

	// Only links survive; everything else in a tweet body is text.
	bodyPolicy = func() *bluemonday.Policy {
		p := bluemonday.NewPolicy()
		p.AllowAttrs("href").OnElements("a")
		p.AllowURLSchemes("http", "https")
		p.RequireParseableURLs(true)
		return p
	}()
)

// NormalizeWhitespace trims and collapses whitespace to single spaces.
func NormalizeWhitespace(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// LinkifyBody renders a tweet body as markup: URLs become anchors and any
// other markup in the text is stripped.
func LinkifyBody(text string) string {
	linked := hyperlink.ReplaceAllString(text, `<a href="$0">$0</a>`)
	return bodyPolicy.Sanitize(linked)
}

// PlainBody renders a tweet body for a terminal: entities decoded and
// whitespace collapsed.
func PlainBody(text string) string {
	return NormalizeWhitespace(html.UnescapeString(text))
}
