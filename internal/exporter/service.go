package exporter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pagemill/pagemill/internal/hierarchy"
	"github.com/pagemill/pagemill/internal/logging"
	"github.com/pagemill/pagemill/internal/markdown"
	"github.com/pagemill/pagemill/internal/pagebuilder"
	"github.com/pagemill/pagemill/internal/runtimeconfig"
	"github.com/pagemill/pagemill/pages"
	"github.com/pagemill/pagemill/pkg/interfaces"
	"github.com/pagemill/pagemill/source"
)

var (
	// ErrAPIRequired indicates the service was constructed without a
	// content API.
	ErrAPIRequired = errors.New("exporter: content API is required")

	// ErrCollectionIDRequired indicates an export request without a
	// collection.
	ErrCollectionIDRequired = errors.New("exporter: collection ID is required")

	// ErrOutputDirRequired indicates an export request without a
	// destination directory.
	ErrOutputDirRequired = errors.New("exporter: output directory is required")

	// ErrModeUnknown indicates an unsupported hierarchy mode name.
	ErrModeUnknown = errors.New("exporter: hierarchy mode is invalid")

	// ErrCacheAdminUnavailable indicates a purge was requested but the
	// service wraps a raw client, not the fetch cache.
	ErrCacheAdminUnavailable = errors.New("exporter: cache administration is not available")
)

// CacheAdmin is the invalidation surface of the fetch cache. The service
// only needs it for purge passthroughs; exports work against any source.API.
type CacheAdmin interface {
	PurgeAll(ctx context.Context)
	PurgeSubtree(ctx context.Context, nodeID string) error
}

// Request describes one export run.
type Request struct {
	CollectionID     string
	OutputDir        string
	Mode             string
	RelationProperty string
	// Force rewrites files even when their recorded checksum matches.
	Force bool
	// HTML additionally renders each document to HTML.
	HTML      bool
	HardWraps bool
	Unsafe    bool
}

// PageFailure records one page that could not be written.
type PageFailure struct {
	PageID string
	Path   string
	Err    error
}

// Report summarizes an export run. Failures cover individual pages; the run
// itself only errors when nothing could proceed at all.
type Report struct {
	Exported    int
	Skipped     int
	Failed      int
	Paths       []string
	Failures    []PageFailure
	Diagnostics []hierarchy.Diagnostic
}

// Service orchestrates the pipeline: query through the cache, assemble
// pages, build the hierarchy, render and write files.
type Service struct {
	api     source.API
	builder *pagebuilder.Builder
	admin   CacheAdmin
	logger  interfaces.Logger
}

// Option customizes service construction.
type Option func(*Service)

// WithLogger overrides the default no-op logger.
func WithLogger(logger interfaces.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithCacheAdmin enables the purge passthroughs. Pass the fetch cache the
// service reads through.
func WithCacheAdmin(admin CacheAdmin) Option {
	return func(s *Service) {
		s.admin = admin
	}
}

// WithPageBuilder overrides the default page builder.
func WithPageBuilder(builder *pagebuilder.Builder) Option {
	return func(s *Service) {
		if builder != nil {
			s.builder = builder
		}
	}
}

// New constructs the export service over a content API, typically the fetch
// cache so repeated runs stay cheap.
func New(api source.API, opts ...Option) (*Service, error) {
	if api == nil {
		return nil, ErrAPIRequired
	}
	s := &Service{
		api:    api,
		logger: logging.NoOp(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.builder == nil {
		builder, err := pagebuilder.New(api)
		if err != nil {
			return nil, err
		}
		s.builder = builder
	}
	return s, nil
}

// Export runs the pipeline for one collection. Per-page failures degrade the
// report, never abort the run.
func (s *Service) Export(ctx context.Context, req Request) (*Report, error) {
	if strings.TrimSpace(req.CollectionID) == "" {
		return nil, ErrCollectionIDRequired
	}
	if strings.TrimSpace(req.OutputDir) == "" {
		return nil, ErrOutputDirRequired
	}

	built, err := s.builder.BuildPages(ctx, req.CollectionID)
	if err != nil {
		return nil, err
	}

	tree, err := s.buildTree(ctx, built, req)
	if err != nil {
		return nil, err
	}

	report := &Report{}
	all := built
	if tree != nil {
		all = tree.Pages()
		report.Diagnostics = tree.Diagnostics()
	}

	for _, page := range all {
		path, writeErr := s.exportPage(ctx, page, tree, req, report)
		if writeErr != nil {
			report.Failed++
			report.Failures = append(report.Failures, PageFailure{PageID: page.ID, Path: path, Err: writeErr})
			logging.WithPageContext(s.logger, path).Warn("exporter.page_failed", "node_id", page.ID, "error", writeErr)
		}
	}

	s.logger.Info("exporter.done",
		"collection_id", req.CollectionID,
		"exported", report.Exported,
		"skipped", report.Skipped,
		"failed", report.Failed,
	)
	return report, nil
}

// PurgeCache clears the whole fetch cache.
func (s *Service) PurgeCache(ctx context.Context) error {
	if s.admin == nil {
		return ErrCacheAdminUnavailable
	}
	s.admin.PurgeAll(ctx)
	return nil
}

// PurgeSubtree clears one node's cached subtree, forcing the next export to
// refetch it.
func (s *Service) PurgeSubtree(ctx context.Context, nodeID string) error {
	if s.admin == nil {
		return ErrCacheAdminUnavailable
	}
	return s.admin.PurgeSubtree(ctx, nodeID)
}

func (s *Service) buildTree(ctx context.Context, built []*pages.Page, req Request) (*hierarchy.Tree, error) {
	opts := []hierarchy.Option{
		hierarchy.WithLogger(s.logger),
		hierarchy.WithPageFactory(s.builder.PageFactory()),
	}
	switch req.Mode {
	case "", runtimeconfig.ModeFlat:
		return nil, nil
	case runtimeconfig.ModeRelation:
		return hierarchy.BuildFromRelation(built, req.RelationProperty, opts...)
	case runtimeconfig.ModeSubpages:
		return hierarchy.BuildFromSubpages(ctx, built, s.api, opts...)
	case runtimeconfig.ModeCombined:
		return hierarchy.BuildCombined(ctx, built, req.RelationProperty, s.api, opts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrModeUnknown, req.Mode)
	}
}

// exportPage renders and writes one page, honoring the checksum skip.
func (s *Service) exportPage(ctx context.Context, page *pages.Page, tree *hierarchy.Tree, req Request, report *Report) (string, error) {
	dir, stem, err := s.placement(page, tree)
	if err != nil {
		return "", err
	}
	path := filepath.Join(req.OutputDir, filepath.FromSlash(dir), stem+".md")

	body := markdown.Render(page, markdown.RenderOptions{Resolve: s.resolver(page, tree)})
	fm := markdown.ForPage(page, body)

	if !req.Force && unchanged(path, fm.Checksum) {
		report.Skipped++
		logging.WithPageContext(s.logger, path).Debug("exporter.page_skipped", "node_id", page.ID)
		return path, nil
	}

	doc, err := markdown.Compose(fm, body)
	if err != nil {
		return path, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return path, err
	}
	if err := os.WriteFile(path, doc, 0o644); err != nil {
		return path, err
	}

	if req.HTML {
		html, htmlErr := markdown.RenderHTML(body, markdown.HTMLOptions{HardWraps: req.HardWraps, Unsafe: req.Unsafe})
		if htmlErr != nil {
			return path, htmlErr
		}
		htmlPath := strings.TrimSuffix(path, ".md") + ".html"
		if err := os.WriteFile(htmlPath, html, 0o644); err != nil {
			return htmlPath, err
		}
	}

	report.Exported++
	report.Paths = append(report.Paths, path)
	return path, nil
}

// placement computes a page's output directory and filename stem. Without a
// tree, output is flat: every page lands at the root under its own slug.
func (s *Service) placement(page *pages.Page, tree *hierarchy.Tree) (string, string, error) {
	if tree == nil {
		return "", page.Slug, nil
	}
	dir, err := tree.OutputDirectory(page.ID)
	if err != nil {
		return "", "", err
	}
	stem, err := tree.EffectiveSlug(page.ID)
	if err != nil {
		return "", "", err
	}
	return dir, stem, nil
}

// resolver adapts the tree's relative-path query to the renderer's link
// callback. Unknown targets keep their upstream URL.
func (s *Service) resolver(page *pages.Page, tree *hierarchy.Tree) markdown.LinkResolver {
	if tree == nil {
		return nil
	}
	return func(target string) (string, bool) {
		resolved, err := tree.RelativePath(page.ID, target)
		if err != nil {
			return "", false
		}
		return resolved, true
	}
}

// unchanged reports whether the file at path carries the same checksum the
// new render produced.
func unchanged(path, checksum string) bool {
	existing, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	fm, _, err := markdown.Parse(existing)
	if err != nil {
		return false
	}
	return fm.Checksum != "" && fm.Checksum == checksum
}
