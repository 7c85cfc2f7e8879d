package thread

import (
	"html"
	"regexp"
	"strings"
)

var (
	reAnchor  = regexp.MustCompile(`<a\s+href="([^"]+)"[^>]*>([^<]+)</a>`)
	reItalic  = regexp.MustCompile(`<i>([^<]+)</i>`)
	reBold    = regexp.MustCompile(`<b>([^<]+)</b>`)
	reCode    = regexp.MustCompile(`<code>([^<]+)</code>`)
	reTag     = regexp.MustCompile(`<[^>]+>`)
	reNewline = regexp.MustCompile(`\n{3,}`)
)

// Clean converts comment HTML to plain text with lightweight markers:
// links become [text](href), italics *x*, bold **x**, code `x`, and
// paragraphs blank lines. Remaining tags are stripped before entities are
// decoded, so escaped angle brackets in the text survive.
func Clean(s string) string {
	s = reAnchor.ReplaceAllString(s, "[$2]($1)")
	s = reItalic.ReplaceAllString(s, "*$1*")
	s = reBold.ReplaceAllString(s, "**$1**")
	s = reCode.ReplaceAllString(s, "`$1`")
	s = strings.ReplaceAll(s, "<p>", "\n\n")
	s = strings.ReplaceAll(s, "</p>", "")
	s = reTag.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = reNewline.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
