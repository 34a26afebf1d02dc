package pagebuilder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-slug"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/pagemill/pagemill/internal/hierarchy"
	"github.com/pagemill/pagemill/internal/logging"
	"github.com/pagemill/pagemill/internal/validation"
	"github.com/pagemill/pagemill/pages"
	"github.com/pagemill/pagemill/pkg/interfaces"
	"github.com/pagemill/pagemill/source"
)

// ErrAPIRequired indicates the builder was constructed without a content API.
var ErrAPIRequired = errors.New("pagebuilder: content API is required")

// defaultMaxBlockDepth bounds block-tree assembly recursion.
const defaultMaxBlockDepth = 25

// PropertyMap names the collection-row properties the builder reads page
// facts from. Empty fields fall back to node-level values.
type PropertyMap struct {
	Title  string
	Slug   string
	Date   string
	Tags   string
	Status string
}

// DefaultPropertyMap mirrors the property names most collections use.
func DefaultPropertyMap() PropertyMap {
	return PropertyMap{
		Title:  "title",
		Slug:   "slug",
		Date:   "date",
		Tags:   "tags",
		Status: "status",
	}
}

// Builder assembles pages from collection query results: property mapping
// first, then the raw block tree through the content API. Handing it the
// fetch cache instead of the raw client makes repeated assembly cheap.
type Builder struct {
	api           source.API
	logger        interfaces.Logger
	props         PropertyMap
	maxBlockDepth int
}

// Option customizes builder construction.
type Option func(*Builder)

// WithLogger overrides the default no-op logger.
func WithLogger(logger interfaces.Logger) Option {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithPropertyMap overrides the property names used during mapping.
func WithPropertyMap(props PropertyMap) Option {
	return func(b *Builder) {
		b.props = props
	}
}

// WithMaxBlockDepth bounds block-tree recursion.
func WithMaxBlockDepth(depth int) Option {
	return func(b *Builder) {
		if depth > 0 {
			b.maxBlockDepth = depth
		}
	}
}

// New constructs a builder over the content API.
func New(api source.API, opts ...Option) (*Builder, error) {
	if api == nil {
		return nil, ErrAPIRequired
	}
	b := &Builder{
		api:           api,
		logger:        logging.NoOp(),
		props:         DefaultPropertyMap(),
		maxBlockDepth: defaultMaxBlockDepth,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// BuildPages queries the collection and assembles one page per row, in
// query order. Rows whose properties fail the collection schema are still
// built; schema issues are surfaced as warnings.
func (b *Builder) BuildPages(ctx context.Context, collectionID string) ([]*pages.Page, error) {
	schema := b.collectionSchema(ctx, collectionID)

	rows, err := source.QueryAll(ctx, b.api, collectionID)
	if err != nil {
		return nil, fmt.Errorf("pagebuilder: query collection %q: %w", collectionID, err)
	}

	built := make([]*pages.Page, 0, len(rows))
	for _, row := range rows {
		b.checkSchema(schema, row)
		page, buildErr := b.BuildPage(ctx, row)
		if buildErr != nil {
			return nil, buildErr
		}
		built = append(built, page)
	}
	b.logger.Debug("pagebuilder.built", "collection_id", collectionID, "pages", len(built))
	return built, nil
}

// collectionSchema compiles the collection's property schema once per run.
// A collection without a schema, or one that fails to compile, disables the
// check rather than aborting the build.
func (b *Builder) collectionSchema(ctx context.Context, collectionID string) *jsonschema.Schema {
	collection, err := b.api.RetrieveCollection(ctx, collectionID)
	if err != nil {
		b.logger.Warn("pagebuilder.collection_unavailable", "collection_id", collectionID, "error", err)
		return nil
	}
	if collection == nil || len(collection.Schema) == 0 {
		return nil
	}
	compiled, err := validation.Compile(collection.Schema)
	if err != nil {
		b.logger.Warn("pagebuilder.schema_invalid", "collection_id", collectionID, "error", err)
		return nil
	}
	return compiled
}

func (b *Builder) checkSchema(schema *jsonschema.Schema, row *source.Node) {
	if schema == nil || row == nil {
		return
	}
	props := row.Properties
	if props == nil {
		props = map[string]any{}
	}
	if err := schema.Validate(normalizeForSchema(props)); err != nil {
		for _, issue := range validation.Issues(err) {
			b.logger.Warn("pagebuilder.schema_violation",
				"node_id", row.ID,
				"location", issue.Location,
				"message", issue.Message,
			)
		}
	}
}

// normalizeForSchema converts property values into the plain JSON types the
// schema validator understands.
func normalizeForSchema(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for key, value := range props {
		switch v := value.(type) {
		case time.Time:
			out[key] = v.Format(time.RFC3339)
		case []string:
			list := make([]any, len(v))
			for i, s := range v {
				list[i] = s
			}
			out[key] = list
		case int:
			out[key] = float64(v)
		case int64:
			out[key] = float64(v)
		default:
			out[key] = value
		}
	}
	return out
}

// BuildPage maps one collection row to a page and assembles its block tree.
func (b *Builder) BuildPage(ctx context.Context, row *source.Node) (*pages.Page, error) {
	if row == nil || row.ID == "" {
		return nil, fmt.Errorf("pagebuilder: row without ID")
	}

	page := b.mapRow(row)
	if row.HasChildren {
		blocks, err := b.assembleBlocks(ctx, row.ID, 0)
		if err != nil {
			return nil, fmt.Errorf("pagebuilder: assemble blocks of %q: %w", row.ID, err)
		}
		page.Blocks = blocks
	}
	return page, nil
}

// PageFactory returns the minimal factory subpage discovery uses for pages
// that have no collection row: title and slug from the node, date and tags
// borrowed from the physical parent.
func (b *Builder) PageFactory() hierarchy.PageFactory {
	return func(node *source.Node, parent *pages.Page) *pages.Page {
		if node == nil || node.ID == "" {
			return nil
		}
		page := &pages.Page{
			ID:         node.ID,
			Title:      node.Title,
			Slug:       b.slugFor(node.Title, "", node.ID),
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
}

// mapRow extracts page facts from a row's properties, falling back to
// node-level values where a property is absent.
func (b *Builder) mapRow(row *source.Node) *pages.Page {
	props := row.Properties

	title := stringProp(props, b.props.Title)
	if title == "" {
		title = row.Title
	}

	page := &pages.Page{
		ID:         row.ID,
		Title:      title,
		Slug:       b.slugFor(title, stringProp(props, b.props.Slug), row.ID),
		CreatedAt:  row.CreatedAt,
		EditedAt:   row.EditedAt,
		Date:       dateProp(props, b.props.Date, row.CreatedAt),
		Tags:       tagsProp(props, b.props.Tags),
		Status:     statusProp(props, b.props.Status),
		Properties: props,
	}
	return page
}

// assembleBlocks drains a node's child listing and recurses into container
// blocks. Nested page blocks stay leaves; their bodies belong to the subpage.
func (b *Builder) assembleBlocks(ctx context.Context, nodeID string, depth int) ([]*pages.Block, error) {
	if depth > b.maxBlockDepth {
		b.logger.Warn("pagebuilder.max_block_depth", "node_id", nodeID, "depth", depth)
		return nil, nil
	}

	children, err := source.ListAllChildren(ctx, b.api, nodeID)
	if err != nil {
		return nil, err
	}

	blocks := make([]*pages.Block, 0, len(children))
	for _, child := range children {
		if child == nil || child.ID == "" {
			continue
		}
		block := &pages.Block{Node: child}
		if child.HasChildren && child.Kind != source.KindSubpage {
			nested, nestedErr := b.assembleBlocks(ctx, child.ID, depth+1)
			if nestedErr != nil {
				return nil, nestedErr
			}
			block.Children = nested
		}
		blocks = append(blocks, block)
	}
	return blocks, nil
}

// slugFor prefers the explicit slug property, then the slugified title, then
// an ID suffix, so every page carries a non-empty path segment.
func (b *Builder) slugFor(title, explicit, id string) string {
	if trimmed := strings.TrimSpace(explicit); trimmed != "" {
		if normalized, err := slug.Normalize(trimmed); err == nil && normalized != "" {
			return normalized
		}
	}
	if normalized, err := slug.Normalize(title); err == nil && normalized != "" {
		return normalized
	}
	compact := strings.ReplaceAll(id, "-", "")
	if len(compact) > 8 {
		compact = compact[:8]
	}
	return compact
}

func stringProp(props map[string]any, key string) string {
	if key == "" || props == nil {
		return ""
	}
	if value, ok := props[key].(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

func dateProp(props map[string]any, key string, fallback time.Time) time.Time {
	if key == "" || props == nil {
		return fallback
	}
	switch value := props[key].(type) {
	case time.Time:
		if !value.IsZero() {
			return value
		}
	case string:
		for _, layout := range []string{time.RFC3339, "2006-01-02"} {
			if parsed, err := time.Parse(layout, value); err == nil {
				return parsed
			}
		}
	}
	return fallback
}

func tagsProp(props map[string]any, key string) []string {
	if key == "" || props == nil {
		return nil
	}
	var tags []string
	switch value := props[key].(type) {
	case []string:
		for _, tag := range value {
			if trimmed := strings.TrimSpace(tag); trimmed != "" {
				tags = append(tags, trimmed)
			}
		}
	case []any:
		for _, entry := range value {
			if tag, ok := entry.(string); ok {
				if trimmed := strings.TrimSpace(tag); trimmed != "" {
					tags = append(tags, trimmed)
				}
			}
		}
	}
	return tags
}

func statusProp(props map[string]any, key string) pages.Status {
	switch strings.ToLower(stringProp(props, key)) {
	case string(pages.StatusDraft):
		return pages.StatusDraft
	case string(pages.StatusArchived):
		return pages.StatusArchived
	default:
		return pages.StatusPublished
	}
}
