// Package listing parses a date-scoped frontpage document into ranked items.
package listing

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/sells-group/time-capsule/internal/model"
)

// URL returns the frontpage address for a date (YYYY-MM-DD).
func URL(base, date string) string {
	return fmt.Sprintf("%s/front?day=%s", strings.TrimRight(base, "/"), date)
}

// parser is a flat state machine over the token stream. Each flag marks a
// region the tokenizer is currently inside; no element stack is kept.
type parser struct {
	base  string
	items []model.Item

	inTitleBlock bool
	inTitleLink  bool
	inMeta       bool
	inScore      bool
	inAuthor     bool
	inItemLink   bool
	inAnchor     bool

	cur      model.Item
	hasTitle bool
	title    strings.Builder
}

// Parse reads a frontpage document and returns its items in document
// order. It never fails: malformed markup or a read error ends the parse
// and whatever was collected so far is returned. Records missing a title
// or an identifier are dropped.
func Parse(r io.Reader, base string) []model.Item {
	p := &parser{base: strings.TrimRight(base, "/")}
	z := html.NewTokenizer(r)
	for {
		switch z.Next() {
		case html.ErrorToken:
			p.flush()
			return p.items
		case html.StartTagToken, html.SelfClosingTagToken:
			p.start(z)
		case html.EndTagToken:
			name, _ := z.TagName()
			p.end(string(name))
		case html.TextToken:
			p.text(strings.TrimSpace(string(z.Text())))
		}
	}
}

func (p *parser) start(z *html.Tokenizer) {
	name, hasAttr := z.TagName()
	tag := string(name)
	var class, href string
	var hasHref bool
	for hasAttr {
		var k, v []byte
		k, v, hasAttr = z.TagAttr()
		switch string(k) {
		case "class":
			class = string(v)
		case "href":
			href, hasHref = string(v), true
		}
	}

	switch {
	case tag == "tr" && p.inMeta:
		// A new row while still in a meta block closes the record.
		p.flush()
	case tag == "span" && (hasClass(class, "rank") || hasClass(class, "titleline")):
		if hasClass(class, "rank") && p.hasTitle {
			// The previous title never got a meta row.
			p.flush()
		}
		p.inTitleBlock = true
	case tag == "span" && hasClass(class, "subline"), tag == "td" && hasClass(class, "subtext"):
		p.inMeta = true
	}

	if tag == "a" {
		p.inAnchor = true
	}
	if p.inTitleBlock && tag == "a" && hasHref && !p.hasTitle && !p.inTitleLink {
		p.cur.SourceURL = href
		p.inTitleLink = true
		p.title.Reset()
	}

	if !p.inMeta {
		return
	}
	switch {
	case tag == "span" && hasClass(class, "score"):
		p.inScore = true
	case tag == "a" && hasClass(class, "hnuser"):
		p.inAuthor = true
	case tag == "a" && strings.Contains(href, "item?id="):
		id := href[strings.LastIndex(href, "item?id=")+len("item?id="):]
		if i := strings.IndexAny(id, "&#"); i >= 0 {
			id = id[:i]
		}
		if isDigits(id) {
			p.cur.ItemID = id
			p.cur.DiscussionURL = p.base + "/" + strings.TrimLeft(href, "/")
		}
		p.inItemLink = true
	}
}

func (p *parser) end(tag string) {
	switch tag {
	case "a":
		if p.inTitleLink {
			p.inTitleLink = false
			if t := strings.Join(strings.Fields(p.title.String()), " "); t != "" {
				p.cur.Title = t
				p.hasTitle = true
			}
		}
		p.inAuthor = false
		p.inItemLink = false
		p.inAnchor = false
	case "span":
		p.inScore = false
		p.inTitleBlock = false
	case "tr":
		if p.inMeta {
			p.flush()
		}
	}
}

func (p *parser) text(data string) {
	if data == "" {
		return
	}
	if p.inTitleLink {
		if p.title.Len() > 0 {
			p.title.WriteByte(' ')
		}
		p.title.WriteString(data)
	}
	if p.inScore {
		p.cur.Score = leadingInt(data)
	}
	if p.inAuthor {
		p.cur.Author = data
	}
	if p.inItemLink {
		lower := strings.ToLower(data)
		switch {
		case strings.Contains(lower, "comment"):
			p.cur.ReplyCount = leadingInt(data)
		case lower == "discuss":
			p.cur.ReplyCount = 0
		}
	}
	if !p.inAnchor {
		if n, ok := rankToken(data); ok {
			p.cur.Rank = n
		}
	}
}

// flush emits the current record if it is complete and resets all state.
func (p *parser) flush() {
	if p.hasTitle && p.cur.ItemID != "" {
		p.items = append(p.items, p.cur)
	}
	p.cur = model.Item{}
	p.hasTitle = false
	p.title.Reset()
	p.inTitleBlock, p.inTitleLink = false, false
	p.inMeta, p.inScore, p.inAuthor, p.inItemLink, p.inAnchor = false, false, false, false, false
}

// isDigits reports whether s is a non-empty run of ASCII digits. Item ids
// become directory names, so nothing else is accepted.
func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// rankToken matches a numeral terminated by a period, e.g. "12.".
func rankToken(s string) (int, bool) {
	digits, ok := strings.CutSuffix(s, ".")
	if !ok {
		return 0, false
	}
	if !isDigits(digits) {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}

// leadingInt parses the first whitespace-separated field, defaulting to 0.
// strings.Fields treats the non-breaking space HN uses as a separator.
func leadingInt(s string) int {
	f := strings.Fields(s)
	if len(f) == 0 {
		return 0
	}
	n, err := strconv.Atoi(f[0])
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func hasClass(attr, want string) bool {
	for _, c := range strings.Fields(attr) {
		if c == want {
			return true
		}
	}
	return false
}

// Source retrieves an HTML document.
type Source interface {
	FetchHTML(ctx context.Context, rawURL string) (string, error)
}

// Fetch downloads and parses the frontpage for date.
func Fetch(ctx context.Context, src Source, base, date string) ([]model.Item, error) {
	doc, err := src.FetchHTML(ctx, URL(base, date))
	if err != nil {
		return nil, eris.Wrapf(err, "listing: fetch frontpage %s", date)
	}
	items := Parse(strings.NewReader(doc), base)
	zap.L().Info("listing: parsed frontpage",
		zap.String("date", date),
		zap.Int("items", len(items)),
	)
	return items, nil
}
