package model

// Comment is the nested, persisted form of a discussion reply
// (comments.json).
type Comment struct {
	ID       string    `json:"id"`
	Author   string    `json:"author"`
	Body     string    `json:"text"`
	Children []Comment `json:"children"`
}

// ThreadNode is one comment in a Thread arena. Children holds indexes into
// Thread.Nodes in display order.
type ThreadNode struct {
	ID       string
	Author   string
	Body     string
	Depth    int
	Children []int
}

// Thread is an arena-backed comment tree for a single item. Nodes are
// appended in pre-order, so walking Nodes front to back is a depth-first
// traversal.
type Thread struct {
	Nodes []ThreadNode
	Roots []int
}

// DefaultMaxDepth bounds reply nesting when no explicit limit is given.
const DefaultMaxDepth = 256

// Add appends a node under parent (-1 for a root) and returns its index.
func (t *Thread) Add(parent int, id, author, body string) int {
	depth := 0
	if parent >= 0 {
		depth = t.Nodes[parent].Depth + 1
	}
	idx := len(t.Nodes)
	t.Nodes = append(t.Nodes, ThreadNode{ID: id, Author: author, Body: body, Depth: depth})
	if parent < 0 {
		t.Roots = append(t.Roots, idx)
	} else {
		t.Nodes[parent].Children = append(t.Nodes[parent].Children, idx)
	}
	return idx
}

// Len returns the number of comments in the thread.
func (t *Thread) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Nodes)
}

// Walk visits every node depth-first in display order using an explicit
// stack. Returning false from fn stops the walk.
func (t *Thread) Walk(fn func(n ThreadNode) bool) {
	if t == nil {
		return
	}
	stack := make([]int, 0, len(t.Roots))
	for i := len(t.Roots) - 1; i >= 0; i-- {
		stack = append(stack, t.Roots[i])
	}
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := t.Nodes[idx]
		if !fn(n) {
			return
		}
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, n.Children[i])
		}
	}
}

// NewThread flattens nested comments into an arena. Comments deeper than
// maxDepth and repeated IDs are dropped together with their subtrees.
func NewThread(comments []Comment, maxDepth int) *Thread {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	type frame struct {
		c      *Comment
		parent int
		depth  int
	}

	t := &Thread{}
	seen := make(map[string]struct{})
	stack := make([]frame, 0, len(comments))
	for i := len(comments) - 1; i >= 0; i-- {
		stack = append(stack, frame{c: &comments[i], parent: -1})
	}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if f.depth > maxDepth {
			continue
		}
		if f.c.ID != "" {
			if _, dup := seen[f.c.ID]; dup {
				continue
			}
			seen[f.c.ID] = struct{}{}
		}
		idx := t.Add(f.parent, f.c.ID, f.c.Author, f.c.Body)
		for i := len(f.c.Children) - 1; i >= 0; i-- {
			stack = append(stack, frame{c: &f.c.Children[i], parent: idx, depth: f.depth + 1})
		}
	}
	return t
}

// Comments rebuilds the nested form. Recursion depth is bounded by the
// depth cap applied when the arena was built.
func (t *Thread) Comments() []Comment {
	if t == nil {
		return []Comment{}
	}
	var build func(idx int) Comment
	build = func(idx int) Comment {
		n := t.Nodes[idx]
		c := Comment{ID: n.ID, Author: n.Author, Body: n.Body, Children: make([]Comment, 0, len(n.Children))}
		for _, child := range n.Children {
			c.Children = append(c.Children, build(child))
		}
		return c
	}
	out := make([]Comment, 0, len(t.Roots))
	for _, r := range t.Roots {
		out = append(out, build(r))
	}
	return out
}
