package hierarchy

import (
	"errors"
	"fmt"
	"strings"
)

// IndexSlug is the effective slug of a node with children: the node's file
// lands inside its own directory as an index document.
const IndexSlug = "index"

// ErrNodeNotFound indicates a derived query referenced an ID the tree does
// not contain.
var ErrNodeNotFound = errors.New("hierarchy: node not found")

// OutputDirectory returns the directory a node's file is written to, as a
// slash-joined path relative to the output root. Nodes with children own
// their directory; leaves share their parent's. A root leaf returns "".
func (t *Tree) OutputDirectory(id string) (string, error) {
	node, ok := t.Node(id)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrNodeNotFound, id)
	}
	return strings.Join(t.directorySegments(node), "/"), nil
}

// EffectiveSlug returns the filename stem for a node: IndexSlug for nodes
// with children, the node's own slug otherwise.
func (t *Tree) EffectiveSlug(id string) (string, error) {
	node, ok := t.Node(id)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrNodeNotFound, id)
	}
	return effectiveSlug(node), nil
}

// RelativePath computes the link target from one node's document to
// another's. With an empty fromID the caller has no source context and the
// result is to's absolute path from the output root. Targets with children
// resolve to their directory ("." when it is the source's own directory).
func (t *Tree) RelativePath(fromID, toID string) (string, error) {
	to, ok := t.Node(toID)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrNodeNotFound, toID)
	}

	var fromSegments []string
	if fromID != "" {
		from, ok := t.Node(fromID)
		if !ok {
			return "", fmt.Errorf("%w: %q", ErrNodeNotFound, fromID)
		}
		fromSegments = t.directorySegments(from)
	}
	toSegments := t.directorySegments(to)

	common := 0
	for common < len(fromSegments) && common < len(toSegments) && fromSegments[common] == toSegments[common] {
		common++
	}

	var parts []string
	for i := common; i < len(fromSegments); i++ {
		parts = append(parts, "..")
	}
	parts = append(parts, toSegments[common:]...)

	if slug := effectiveSlug(to); slug != IndexSlug {
		parts = append(parts, slug)
	}
	if len(parts) == 0 {
		return ".", nil
	}
	return strings.Join(parts, "/"), nil
}

// directorySegments returns the node's output directory as path segments.
func (t *Tree) directorySegments(node *Node) []string {
	if len(node.Children) > 0 {
		return node.PathSegments
	}
	if parent, ok := t.nodes[node.ParentID]; ok {
		return parent.PathSegments
	}
	return nil
}

func effectiveSlug(node *Node) string {
	if len(node.Children) > 0 {
		return IndexSlug
	}
	return node.slug
}
