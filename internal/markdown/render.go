package markdown

import (
	"fmt"
	"strings"

	"github.com/pagemill/pagemill/pages"
	"github.com/pagemill/pagemill/source"
)

// LinkResolver maps a referenced page ID to a link target relative to the
// document being rendered. Returning false leaves the block's own URL (or
// plain text) in place.
type LinkResolver func(targetPageID string) (string, bool)

// RenderOptions customizes one render pass.
type RenderOptions struct {
	// Resolve rewrites links to other pages in the same tree. Optional.
	Resolve LinkResolver
}

// Render writes a page's block tree as markdown. The mapping is fixed and
// minimal; styling concerns live with the consumer of the output files.
func Render(page *pages.Page, opts RenderOptions) []byte {
	r := &renderer{resolve: opts.Resolve}
	r.blocks(page.Blocks, 0)
	return []byte(strings.TrimLeft(r.out.String(), "\n"))
}

type renderer struct {
	out     strings.Builder
	resolve LinkResolver
}

// block emits one block and its children. counter carries the running number
// of the enclosing numbered list; indent is the nesting level inside lists.
func (r *renderer) block(block *pages.Block, indent int, counter *int) {
	if block == nil || block.Node == nil {
		return
	}
	node := block.Node
	prefix := strings.Repeat("  ", indent)

	switch node.Kind {
	case source.KindHeading1:
		r.paragraph(prefix + "# " + node.Text)
	case source.KindHeading2:
		r.paragraph(prefix + "## " + node.Text)
	case source.KindHeading3:
		r.paragraph(prefix + "### " + node.Text)
	case source.KindParagraph:
		if node.Text != "" {
			r.paragraph(prefix + node.Text)
		}
	case source.KindBulletedItem:
		r.line(prefix + "- " + node.Text)
		r.children(block, indent+1)
		return
	case source.KindNumberedItem:
		n := 1
		if counter != nil {
			*counter++
			n = *counter
		}
		r.line(fmt.Sprintf("%s%d. %s", prefix, n, node.Text))
		r.children(block, indent+1)
		return
	case source.KindQuote:
		r.paragraph(prefix + "> " + node.Text)
	case source.KindCallout:
		r.paragraph(prefix + "> **" + node.Text + "**")
	case source.KindCode:
		r.paragraph(prefix + "```" + node.Language + "\n" + node.Text + "\n" + prefix + "```")
	case source.KindDivider:
		r.paragraph(prefix + "---")
	case source.KindImage:
		r.paragraph(prefix + "![" + node.Title + "](" + node.URL + ")")
	case source.KindBookmark:
		r.paragraph(prefix + "[" + linkLabel(node) + "](" + r.target(node) + ")")
	case source.KindSubpage:
		r.paragraph(prefix + "[" + linkLabel(node) + "](" + r.subpageTarget(node) + ")")
	case source.KindToggle:
		r.paragraph(prefix + "<details><summary>" + node.Text + "</summary>")
		r.children(block, indent)
		r.paragraph(prefix + "</details>")
		return
	default:
		if node.Text != "" {
			r.paragraph(prefix + node.Text)
		}
	}
	r.children(block, indent)
}

func (r *renderer) children(block *pages.Block, indent int) {
	r.blocks(block.Children, indent)
}

// blocks renders a sibling run, tracking one numbered counter per run so
// list numbering restarts after every break.
func (r *renderer) blocks(list []*pages.Block, indent int) {
	counter := 0
	for _, child := range list {
		if child != nil && child.Node != nil && child.Node.Kind == source.KindNumberedItem {
			r.block(child, indent, &counter)
			continue
		}
		counter = 0
		r.block(child, indent, nil)
	}
}

// target resolves a bookmark's destination: an internal page reference when
// the resolver knows it, the block's own URL otherwise.
func (r *renderer) target(node *source.Node) string {
	if r.resolve != nil {
		if ref := pageRef(node); ref != "" {
			if resolved, ok := r.resolve(ref); ok {
				return resolved
			}
		}
	}
	return node.URL
}

// subpageTarget links a nested page block to the subpage's own document.
func (r *renderer) subpageTarget(node *source.Node) string {
	if r.resolve != nil {
		if resolved, ok := r.resolve(node.ID); ok {
			return resolved
		}
	}
	return node.URL
}

func (r *renderer) paragraph(text string) {
	r.out.WriteString("\n")
	r.line(text)
}

func (r *renderer) line(text string) {
	r.out.WriteString(text)
	r.out.WriteString("\n")
}

func linkLabel(node *source.Node) string {
	if node.Title != "" {
		return node.Title
	}
	if node.Text != "" {
		return node.Text
	}
	return node.URL
}

// pageRef reads the internal page reference a bookmark block may carry.
func pageRef(node *source.Node) string {
	if node.Properties == nil {
		return ""
	}
	if ref, ok := node.Properties["page_id"].(string); ok {
		return strings.TrimSpace(ref)
	}
	return ""
}
