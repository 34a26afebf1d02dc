package hierarchy

import (
	"github.com/pagemill/pagemill/pages"
)

// Node wraps one page inside a built tree. Nodes are mutated only while the
// builder runs its phases; once a Tree is returned they are read-only.
type Node struct {
	Page         *pages.Page
	ParentID     string
	Children     []*Node
	PathSegments []string
	Depth        int

	// slug is the node's current path segment. It starts as the page's slug
	// and may be rewritten by sibling deduplication.
	slug string
}

// ID returns the wrapped page's identifier.
func (n *Node) ID() string {
	if n == nil || n.Page == nil {
		return ""
	}
	return n.Page.ID
}

// Slug returns the node's current path segment, after any deduplication.
func (n *Node) Slug() string {
	if n == nil {
		return ""
	}
	return n.slug
}

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool {
	return n == nil || len(n.Children) == 0
}

// Tree is the immutable result of a build: ordered roots, an ID index, the
// final page list (input pages plus any discovered subpages), and the
// diagnostics collected while resolving malformed hierarchy data.
type Tree struct {
	roots       []*Node
	nodes       map[string]*Node
	pages       []*pages.Page
	diagnostics []Diagnostic
}

// Roots returns the top-level nodes in original input order.
func (t *Tree) Roots() []*Node {
	if t == nil {
		return nil
	}
	return t.roots
}

// Node looks up a node by page ID.
func (t *Tree) Node(id string) (*Node, bool) {
	if t == nil {
		return nil, false
	}
	node, ok := t.nodes[id]
	return node, ok
}

// Len reports how many nodes the tree holds.
func (t *Tree) Len() int {
	if t == nil {
		return 0
	}
	return len(t.nodes)
}

// Pages returns every page in the tree, including subpages discovered during
// the build, in materialization order.
func (t *Tree) Pages() []*pages.Page {
	if t == nil {
		return nil
	}
	return t.pages
}

// Diagnostics returns the soft failures resolved during the build.
func (t *Tree) Diagnostics() []Diagnostic {
	if t == nil {
		return nil
	}
	return t.diagnostics
}

// Walk visits every node reachable from the roots in depth-first pre-order.
func (t *Tree) Walk(visit func(*Node)) {
	if t == nil || visit == nil {
		return
	}
	var walk func(*Node)
	walk = func(node *Node) {
		visit(node)
		for _, child := range node.Children {
			walk(child)
		}
	}
	for _, root := range t.roots {
		walk(root)
	}
}
