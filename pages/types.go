package pages

import (
	"time"

	"github.com/pagemill/pagemill/source"
)

// Status mirrors the editorial state carried by collection rows.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
)

// Block is one node of a page body with its nested children resolved.
type Block struct {
	Node     *source.Node
	Children []*Block
}

// Page is the assembled unit of content the exporter consumes. Hierarchy
// facts (ParentID, PathSegments, ChildIDs) are written by the tree builder's
// final synchronization phase; until then they hold assembly-time defaults.
type Page struct {
	ID           string
	Title        string
	Slug         string
	ParentID     string
	PathSegments []string
	ChildIDs     []string
	CreatedAt    time.Time
	EditedAt     time.Time
	Date         time.Time
	Tags         []string
	Status       Status
	Properties   map[string]any
	Blocks       []*Block
}

// Clone deep-copies hierarchy facts and metadata. Block trees are shared;
// they are immutable once assembled.
func (p *Page) Clone() *Page {
	if p == nil {
		return nil
	}
	copied := *p
	if p.PathSegments != nil {
		copied.PathSegments = append([]string(nil), p.PathSegments...)
	}
	if p.ChildIDs != nil {
		copied.ChildIDs = append([]string(nil), p.ChildIDs...)
	}
	if p.Tags != nil {
		copied.Tags = append([]string(nil), p.Tags...)
	}
	if p.Properties != nil {
		props := make(map[string]any, len(p.Properties))
		for key, value := range p.Properties {
			props[key] = value
		}
		copied.Properties = props
	}
	return &copied
}

// IsRoot reports whether the page sits at the top level of the hierarchy.
func (p *Page) IsRoot() bool {
	return p.ParentID == ""
}
