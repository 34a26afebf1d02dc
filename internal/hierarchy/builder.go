package hierarchy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-slug"

	"github.com/pagemill/pagemill/internal/logging"
	"github.com/pagemill/pagemill/pages"
	"github.com/pagemill/pagemill/pkg/interfaces"
	"github.com/pagemill/pagemill/source"
)

var (
	// ErrRelationPropertyRequired indicates a relation build was requested
	// without naming the property that carries parent references.
	ErrRelationPropertyRequired = errors.New("hierarchy: relation property is required")

	// ErrAPIRequired indicates a subpage build was requested without a
	// content API to scan blocks through.
	ErrAPIRequired = errors.New("hierarchy: content API is required")
)

// defaultMaxScanDepth bounds block recursion during subpage discovery so a
// malformed block graph cannot recurse unbounded.
const defaultMaxScanDepth = 25

// PageFactory materializes a minimal page for a nested page discovered during
// subpage scanning. parent is the page the subpage was found under; factories
// fall back to its date and tags when the subpage carries none of its own.
type PageFactory func(node *source.Node, parent *pages.Page) *pages.Page

// Option customizes a build.
type Option func(*builder)

// WithLogger overrides the default no-op logger.
func WithLogger(logger interfaces.Logger) Option {
	return func(b *builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithPageFactory overrides how subpage discovery materializes pages.
func WithPageFactory(factory PageFactory) Option {
	return func(b *builder) {
		if factory != nil {
			b.factory = factory
		}
	}
}

// WithMaxScanDepth bounds block recursion during subpage discovery.
func WithMaxScanDepth(depth int) Option {
	return func(b *builder) {
		if depth > 0 {
			b.maxScanDepth = depth
		}
	}
}

// BuildFromRelation links pages through a self-referencing relation property:
// the first referenced ID becomes the parent. Dangling references and extra
// reference targets are resolved with diagnostics, never dropped pages.
func BuildFromRelation(pgs []*pages.Page, relationProp string, opts ...Option) (*Tree, error) {
	if strings.TrimSpace(relationProp) == "" {
		return nil, ErrRelationPropertyRequired
	}

	b := newBuilder(opts...)
	b.materialize(pgs)
	b.linkRelation(relationProp)
	return b.finish(), nil
}

// BuildFromSubpages links pages by physical nesting: each page's block tree
// is scanned through the content API for nested page blocks, and pages not
// present in the input are materialized and inserted.
func BuildFromSubpages(ctx context.Context, pgs []*pages.Page, api source.API, opts ...Option) (*Tree, error) {
	if api == nil {
		return nil, ErrAPIRequired
	}

	b := newBuilder(opts...)
	b.materialize(pgs)
	b.linkSubpages(ctx, api)
	return b.finish(), nil
}

// BuildCombined runs relation linkage to completion, then subpage discovery
// over the resulting node set, so discovered subpages nest under
// relation-linked ancestors.
func BuildCombined(ctx context.Context, pgs []*pages.Page, relationProp string, api source.API, opts ...Option) (*Tree, error) {
	if strings.TrimSpace(relationProp) == "" {
		return nil, ErrRelationPropertyRequired
	}
	if api == nil {
		return nil, ErrAPIRequired
	}

	b := newBuilder(opts...)
	b.materialize(pgs)
	b.linkRelation(relationProp)
	b.linkSubpages(ctx, api)
	return b.finish(), nil
}

// builder carries the mutable state shared by the build phases. Each phase is
// total over the structures left by the previous one; none interleave.
type builder struct {
	logger       interfaces.Logger
	factory      PageFactory
	maxScanDepth int

	ordered     []*Node
	nodes       map[string]*Node
	diagnostics []Diagnostic
}

func newBuilder(opts ...Option) *builder {
	b := &builder{
		logger:       logging.NoOp(),
		factory:      minimalPageFactory,
		maxScanDepth: defaultMaxScanDepth,
		nodes:        make(map[string]*Node),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// materialize creates one node per input page. Later duplicates of an ID are
// ignored; the first occurrence wins.
func (b *builder) materialize(pgs []*pages.Page) {
	for _, page := range pgs {
		if page == nil || page.ID == "" {
			continue
		}
		if _, exists := b.nodes[page.ID]; exists {
			b.logger.Debug("hierarchy.materialize.duplicate_page", "node_id", page.ID)
			continue
		}
		node := &Node{Page: page, slug: segmentFor(page)}
		b.nodes[page.ID] = node
		b.ordered = append(b.ordered, node)
	}
}

// linkRelation resolves each page's relation references. First reference
// wins; a missing target keeps the page as a root.
func (b *builder) linkRelation(relationProp string) {
	for _, node := range b.ordered {
		refs := relationRefs(node.Page.Properties[relationProp])
		if len(refs) == 0 {
			continue
		}
		if len(refs) > 1 {
			b.warn(Diagnostic{
				Kind:    DiagnosticMultipleParents,
				NodeID:  node.ID(),
				Message: fmt.Sprintf("relation lists %d parents; using %q", len(refs), refs[0]),
			})
		}

		parent, ok := b.nodes[refs[0]]
		if !ok {
			b.warn(Diagnostic{
				Kind:    DiagnosticDanglingParent,
				NodeID:  node.ID(),
				Message: fmt.Sprintf("parent %q not in page set; keeping page as root", refs[0]),
			})
			continue
		}
		if parent == node {
			continue
		}
		b.link(parent, node)
	}
}

// linkSubpages scans every node's block tree for nested page blocks,
// materializing pages the input did not carry. Newly discovered pages are
// scanned in turn so arbitrarily deep nesting is resolved.
func (b *builder) linkSubpages(ctx context.Context, api source.API) {
	scanned := make(map[string]struct{}, len(b.ordered))
	queue := append([]*Node(nil), b.ordered...)

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		if _, done := scanned[node.ID()]; done {
			continue
		}
		scanned[node.ID()] = struct{}{}
		queue = append(queue, b.scanBlocks(ctx, api, node, node.ID(), 0)...)
	}
}

// scanBlocks walks one block listing, descending into container blocks and
// resolving nested page blocks. It returns the nodes discovered so the caller
// can schedule their own scans.
func (b *builder) scanBlocks(ctx context.Context, api source.API, owner *Node, blockID string, depth int) []*Node {
	if depth > b.maxScanDepth {
		b.logger.Warn("hierarchy.subpages.max_depth", "node_id", owner.ID(), "block_id", blockID)
		return nil
	}

	children, err := source.ListAllChildren(ctx, api, blockID)
	if err != nil {
		b.warn(Diagnostic{
			Kind:    DiagnosticSubpageFetchFailed,
			NodeID:  owner.ID(),
			Message: fmt.Sprintf("list blocks of %q: %v", blockID, err),
		})
		return nil
	}

	var discovered []*Node
	for _, block := range children {
		if block == nil || block.ID == "" {
			continue
		}
		if block.Kind == source.KindSubpage {
			if child := b.resolveSubpage(ctx, api, owner, block); child != nil {
				discovered = append(discovered, child)
			}
			continue
		}
		if block.HasChildren {
			discovered = append(discovered, b.scanBlocks(ctx, api, owner, block.ID, depth+1)...)
		}
	}
	return discovered
}

// resolveSubpage links one nested page block under its physical parent. A
// page already linked elsewhere (relation mode ran first) keeps its parent.
func (b *builder) resolveSubpage(ctx context.Context, api source.API, owner *Node, block *source.Node) *Node {
	if existing, ok := b.nodes[block.ID]; ok {
		if existing != owner && existing.ParentID == "" {
			b.link(owner, existing)
		}
		return nil
	}

	full, err := api.RetrieveNode(ctx, block.ID)
	if err != nil {
		b.warn(Diagnostic{
			Kind:    DiagnosticSubpageFetchFailed,
			NodeID:  block.ID,
			Message: fmt.Sprintf("retrieve subpage: %v", err),
		})
		return nil
	}

	page := b.factory(full, owner.Page)
	if page == nil || page.ID == "" {
		return nil
	}
	node := &Node{Page: page, slug: segmentFor(page)}
	b.nodes[page.ID] = node
	b.ordered = append(b.ordered, node)
	b.link(owner, node)
	return node
}

// link attaches child under parent, detaching it from a previous parent
// first so the children lists stay consistent with ParentID.
func (b *builder) link(parent, child *Node) {
	if child.ParentID == parent.ID() {
		return
	}
	if prev, ok := b.nodes[child.ParentID]; ok {
		prev.Children = removeChild(prev.Children, child)
	}
	child.ParentID = parent.ID()
	parent.Children = append(parent.Children, child)
}

// finish runs the order-sensitive tail phases: cycle breaking, root
// collection, path computation, slug deduplication, page synchronization.
func (b *builder) finish() *Tree {
	b.breakCycles()

	var roots []*Node
	for _, node := range b.ordered {
		if node.ParentID == "" {
			roots = append(roots, node)
		}
	}

	for _, root := range roots {
		b.computePaths(root, nil)
	}
	b.dedupeSlugs(roots, nil)
	b.syncPages()

	pgs := make([]*pages.Page, 0, len(b.ordered))
	for _, node := range b.ordered {
		pgs = append(pgs, node.Page)
	}

	return &Tree{
		roots:       roots,
		nodes:       b.nodes,
		pages:       pgs,
		diagnostics: b.diagnostics,
	}
}

// breakCycles demotes one node per detected back-edge to root, repeating
// until a pass finds no cycle. Colors: 0 unvisited, 1 on stack, 2 done.
func (b *builder) breakCycles() {
	for {
		demoted := false
		color := make(map[string]int, len(b.nodes))

		var visit func(node *Node)
		visit = func(node *Node) {
			color[node.ID()] = 1
			for _, child := range append([]*Node(nil), node.Children...) {
				switch color[child.ID()] {
				case 1:
					node.Children = removeChild(node.Children, child)
					child.ParentID = ""
					demoted = true
					b.warn(Diagnostic{
						Kind:    DiagnosticCycleBroken,
						NodeID:  child.ID(),
						Message: "parent cycle detected; node demoted to root",
					})
				case 0:
					visit(child)
				}
			}
			color[node.ID()] = 2
		}

		for _, node := range b.ordered {
			if color[node.ID()] == 0 {
				visit(node)
			}
		}
		if !demoted {
			return
		}
	}
}

// computePaths assigns path segments in depth-first pre-order.
func (b *builder) computePaths(node *Node, prefix []string) {
	node.PathSegments = append(append([]string(nil), prefix...), node.slug)
	node.Depth = len(node.PathSegments) - 1
	for _, child := range node.Children {
		b.computePaths(child, node.PathSegments)
	}
}

// dedupeSlugs suffix-renames every member of a sibling group that shares a
// slug, recomputes the renamed subtrees' paths, and recurses into all
// children regardless of whether the group had duplicates.
func (b *builder) dedupeSlugs(siblings []*Node, prefix []string) {
	grouped := make(map[string][]*Node, len(siblings))
	order := make([]string, 0, len(siblings))
	for _, node := range siblings {
		if _, seen := grouped[node.slug]; !seen {
			order = append(order, node.slug)
		}
		grouped[node.slug] = append(grouped[node.slug], node)
	}

	for _, slugValue := range order {
		group := grouped[slugValue]
		if len(group) < 2 {
			continue
		}
		b.warn(Diagnostic{
			Kind:    DiagnosticDuplicateSlug,
			NodeID:  group[0].ID(),
			Message: fmt.Sprintf("%d siblings share slug %q; renaming with ID suffixes", len(group), slugValue),
		})
		for _, node := range group {
			node.slug = slugValue + "-" + shortID(node.ID())
			b.computePaths(node, prefix)
		}
	}

	for _, node := range siblings {
		b.dedupeSlugs(node.Children, node.PathSegments)
	}
}

// syncPages copies hierarchy facts back onto the owned pages so consumers
// holding only page objects observe the same structure.
func (b *builder) syncPages() {
	for _, node := range b.ordered {
		page := node.Page
		page.ParentID = node.ParentID
		page.PathSegments = append([]string(nil), node.PathSegments...)
		page.ChildIDs = make([]string, 0, len(node.Children))
		for _, child := range node.Children {
			page.ChildIDs = append(page.ChildIDs, child.ID())
		}
	}
}

func (b *builder) warn(diag Diagnostic) {
	b.diagnostics = append(b.diagnostics, diag)
	b.logger.Warn("hierarchy."+string(diag.Kind), "node_id", diag.NodeID, "detail", diag.Message)
}

// minimalPageFactory builds a page for a discovered subpage, borrowing the
// parent's date and tags when the subpage has no collection row of its own.
func minimalPageFactory(node *source.Node, parent *pages.Page) *pages.Page {
	if node == nil || node.ID == "" {
		return nil
	}
	page := &pages.Page{
		ID:         node.ID,
		Title:      node.Title,
		Slug:       slugify(node.Title, node.ID),
		CreatedAt:  node.CreatedAt,
		EditedAt:   node.EditedAt,
		Status:     pages.StatusPublished,
		Properties: node.Properties,
	}
	if parent != nil {
		page.Date = parent.Date
		page.Tags = append([]string(nil), parent.Tags...)
	}
	if page.Date.IsZero() {
		page.Date = node.CreatedAt
	}
	return page
}

// relationRefs normalizes the supported property encodings of a relation
// field into a list of referenced IDs.
func relationRefs(value any) []string {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return []string{trimmed}
		}
		return nil
	case []string:
		var refs []string
		for _, ref := range v {
			if trimmed := strings.TrimSpace(ref); trimmed != "" {
				refs = append(refs, trimmed)
			}
		}
		return refs
	case []any:
		var refs []string
		for _, entry := range v {
			if ref, ok := entry.(string); ok {
				if trimmed := strings.TrimSpace(ref); trimmed != "" {
					refs = append(refs, trimmed)
				}
			}
		}
		return refs
	default:
		return nil
	}
}

// segmentFor returns the page's path segment, falling back to a slugified
// title and then to an ID suffix so segments are never empty.
func segmentFor(page *pages.Page) string {
	if page.Slug != "" {
		return page.Slug
	}
	return slugify(page.Title, page.ID)
}

func slugify(title, id string) string {
	if normalized, err := slug.Normalize(title); err == nil && normalized != "" {
		return normalized
	}
	return shortID(id)
}

// shortID returns the first eight characters of the ID with hyphens removed.
func shortID(id string) string {
	compact := strings.ReplaceAll(id, "-", "")
	if len(compact) > 8 {
		compact = compact[:8]
	}
	return compact
}

func removeChild(children []*Node, target *Node) []*Node {
	for i, child := range children {
		if child == target {
			return append(children[:i], children[i+1:]...)
		}
	}
	return children
}
