// Package extract turns article HTML into normalized readable text.
package extract

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var skipTags = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Nav:      true,
	atom.Header:   true,
	atom.Footer:   true,
	atom.Aside:    true,
	atom.Noscript: true,
	atom.Iframe:   true,
}

var blockTags = map[atom.Atom]bool{
	atom.P:       true,
	atom.Div:     true,
	atom.Article: true,
	atom.Section: true,
	atom.H1:      true,
	atom.H2:      true,
	atom.H3:      true,
	atom.H4:      true,
	atom.H5:      true,
	atom.H6:      true,
}

var (
	reHorizontalSpace = regexp.MustCompile(`[ \t]+`)
	reManyNewlines    = regexp.MustCompile(`\n{3,}`)
	reSpaceNewline    = regexp.MustCompile(` +\n`)
)

// Text extracts readable text from an HTML document in a single streaming
// pass. Content inside script, style, nav, header, footer, aside, noscript,
// and iframe elements is dropped; closing a block element inserts a
// paragraph break.
func Text(doc string) string {
	var b strings.Builder
	skipDepth := 0

	z := html.NewTokenizer(strings.NewReader(doc))
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			// io.EOF or a tokenizer error; either way keep what was collected.
			return normalize(b.String())

		case html.StartTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if skipTags[a] {
				skipDepth++
			}
			if a == atom.Br {
				b.WriteString("\n")
			}

		case html.SelfClosingTagToken:
			name, _ := z.TagName()
			if atom.Lookup(name) == atom.Br {
				b.WriteString("\n")
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if skipTags[a] && skipDepth > 0 {
				skipDepth--
			}
			if blockTags[a] {
				b.WriteString("\n\n")
			}

		case html.TextToken:
			if skipDepth > 0 {
				continue
			}
			if t := strings.TrimSpace(string(z.Text())); t != "" {
				b.WriteString(t)
				b.WriteString(" ")
			}
		}
	}
}

func normalize(s string) string {
	s = reHorizontalSpace.ReplaceAllString(s, " ")
	s = reManyNewlines.ReplaceAllString(s, "\n\n")
	s = reSpaceNewline.ReplaceAllString(s, "\n")
	return strings.TrimSpace(s)
}
