package source

import "time"

// Kind identifies the shape of a node returned by the content API. Pages and
// collection rows use KindPage; everything else is a block kind.
type Kind string

const (
	KindPage         Kind = "page"
	KindSubpage      Kind = "subpage"
	KindParagraph    Kind = "paragraph"
	KindHeading1     Kind = "heading_1"
	KindHeading2     Kind = "heading_2"
	KindHeading3     Kind = "heading_3"
	KindBulletedItem Kind = "bulleted_item"
	KindNumberedItem Kind = "numbered_item"
	KindQuote        Kind = "quote"
	KindCode         Kind = "code"
	KindDivider      Kind = "divider"
	KindImage        Kind = "image"
	KindBookmark     Kind = "bookmark"
	KindCallout      Kind = "callout"
	KindToggle       Kind = "toggle"
)

// Node is a single record from the content API: a page, a collection row, or
// one block of a page body. IDs are opaque strings assigned upstream and are
// never parsed or synthesized locally.
type Node struct {
	ID          string
	Kind        Kind
	Title       string
	Text        string
	Language    string
	URL         string
	HasChildren bool
	CreatedAt   time.Time
	EditedAt    time.Time
	Properties  map[string]any
}

// Clone returns a deep copy so cached nodes stay isolated from caller
// mutation.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	copied := *n
	if n.Properties != nil {
		props := make(map[string]any, len(n.Properties))
		for key, value := range n.Properties {
			props[key] = value
		}
		copied.Properties = props
	}
	return &copied
}

// Collection describes a queryable set of page rows.
type Collection struct {
	ID       string
	Title    string
	EditedAt time.Time
	Schema   map[string]any
}

// Clone returns a deep copy of the collection descriptor.
func (c *Collection) Clone() *Collection {
	if c == nil {
		return nil
	}
	copied := *c
	if c.Schema != nil {
		schema := make(map[string]any, len(c.Schema))
		for key, value := range c.Schema {
			schema[key] = value
		}
		copied.Schema = schema
	}
	return &copied
}

// ResultPage is one page of a paginated result. NextCursor is empty when no
// further pages exist; otherwise it is passed verbatim to the next call.
type ResultPage struct {
	Results    []*Node
	NextCursor string
}

// Clone deep-copies the result page, including every node.
func (r *ResultPage) Clone() *ResultPage {
	if r == nil {
		return nil
	}
	copied := &ResultPage{NextCursor: r.NextCursor}
	if r.Results != nil {
		copied.Results = make([]*Node, len(r.Results))
		for i, node := range r.Results {
			copied.Results[i] = node.Clone()
		}
	}
	return copied
}
