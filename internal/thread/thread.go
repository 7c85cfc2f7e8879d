// Package thread fetches an item's discussion from the comment API and
// rebuilds it as an arena-backed tree.
package thread

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/time-capsule/internal/model"
)

// DeletedAuthor replaces a missing author.
const DeletedAuthor = "[deleted]"

// Getter retrieves and decodes a JSON document.
type Getter interface {
	GetJSON(ctx context.Context, rawURL string, v any) error
}

// Options configures a Fetcher.
type Options struct {
	BaseURL  string
	Timeout  time.Duration
	MaxDepth int
}

// Fetcher retrieves comment threads.
type Fetcher struct {
	getter Getter
	opts   Options
}

// New creates a Fetcher.
func New(g Getter, opts Options) *Fetcher {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://hn.algolia.com/api/v1"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = model.DefaultMaxDepth
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &Fetcher{getter: g, opts: opts}
}

// Node is one entry of the comment API payload.
type Node struct {
	ID       json.RawMessage `json:"id"`
	Type     string          `json:"type"`
	Author   *string         `json:"author"`
	Text     *string         `json:"text"`
	Children []Node          `json:"children"`
}

// nodeID renders an id as text whether the payload sent a number or a
// string. Anything else yields "".
func nodeID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// Fetch retrieves the discussion for itemID.
func (f *Fetcher) Fetch(ctx context.Context, itemID string) (*model.Thread, error) {
	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	var root Node
	url := fmt.Sprintf("%s/items/%s", f.opts.BaseURL, itemID)
	if err := f.getter.GetJSON(ctx, url, &root); err != nil {
		return nil, eris.Wrapf(err, "thread: fetch item %s", itemID)
	}

	t := Build(root.Children, f.opts.MaxDepth)
	zap.L().Debug("thread: fetched comments",
		zap.String("item_id", itemID),
		zap.Int("comments", t.Len()),
	)
	return t, nil
}

// Build turns payload children into an arena. Nodes that are not comments
// or carry a null text are pruned with their subtree; surviving siblings
// keep payload order. Traversal uses an explicit stack, bounded by
// maxDepth and guarded against repeated IDs.
func Build(children []Node, maxDepth int) *model.Thread {
	type frame struct {
		n      *Node
		parent int
		depth  int
	}

	t := &model.Thread{}
	seen := make(map[string]struct{})
	stack := make([]frame, 0, len(children))
	for i := len(children) - 1; i >= 0; i-- {
		stack = append(stack, frame{n: &children[i], parent: -1})
	}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if f.n.Type != "comment" || f.n.Text == nil || f.depth > maxDepth {
			continue
		}
		id := nodeID(f.n.ID)
		if id != "" {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
		}

		author := DeletedAuthor
		if f.n.Author != nil && *f.n.Author != "" {
			author = *f.n.Author
		}
		idx := t.Add(f.parent, id, author, Clean(*f.n.Text))

		for i := len(f.n.Children) - 1; i >= 0; i-- {
			stack = append(stack, frame{n: &f.n.Children[i], parent: idx, depth: f.depth + 1})
		}
	}
	return t
}
