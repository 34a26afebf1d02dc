// Package pagemill ingests a hierarchical content source and produces
// markdown/HTML files, built around a dependency-aware fetch cache and a
// hierarchy tree builder.
package pagemill

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pagemill/pagemill/internal/exporter"
	"github.com/pagemill/pagemill/internal/fetchcache"
	"github.com/pagemill/pagemill/internal/hierarchy"
	"github.com/pagemill/pagemill/internal/logging"
	"github.com/pagemill/pagemill/internal/logging/console"
	"github.com/pagemill/pagemill/internal/logging/gologger"
	"github.com/pagemill/pagemill/internal/pagebuilder"
	"github.com/pagemill/pagemill/internal/runtimeconfig"
	"github.com/pagemill/pagemill/pages"
	"github.com/pagemill/pagemill/pkg/interfaces"
	"github.com/pagemill/pagemill/source"
)

// ErrUpstreamRequired indicates New was called without WithUpstream.
var ErrUpstreamRequired = errors.New("pagemill: upstream content API is required")

// Exported type aliases so consumers rarely need the internal packages.
type (
	Page          = pages.Page
	Tree          = hierarchy.Tree
	Diagnostic    = hierarchy.Diagnostic
	ExportRequest = exporter.Request
	ExportReport  = exporter.Report
	CacheStats    = fetchcache.Stats
)

// Option customizes module construction.
type Option func(*moduleOptions)

type moduleOptions struct {
	upstream source.API
	provider interfaces.LoggerProvider
	store    fetchcache.Store
}

// WithUpstream injects the raw content API client the cache wraps. Required.
func WithUpstream(api source.API) Option {
	return func(o *moduleOptions) {
		o.upstream = api
	}
}

// WithLoggerProvider overrides the provider built from the logging config.
func WithLoggerProvider(provider interfaces.LoggerProvider) Option {
	return func(o *moduleOptions) {
		o.provider = provider
	}
}

// WithStore overrides the durable cache store built from the cache config.
func WithStore(store fetchcache.Store) Option {
	return func(o *moduleOptions) {
		o.store = store
	}
}

// Module is the top-level runtime: the fetch cache wrapping the upstream
// client, the page builder reading through it, and the export service.
type Module struct {
	cfg      Config
	provider interfaces.LoggerProvider
	cache    *fetchcache.Cache
	builder  *pagebuilder.Builder
	exporter *exporter.Service
}

// New validates the configuration and wires the pipeline.
func New(ctx context.Context, cfg Config, opts ...Option) (*Module, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := &moduleOptions{}
	for _, opt := range opts {
		opt(options)
	}
	if options.upstream == nil {
		return nil, ErrUpstreamRequired
	}

	provider := options.provider
	if provider == nil {
		built, err := buildLoggerProvider(cfg.Logging)
		if err != nil {
			return nil, err
		}
		provider = built
	}

	store := options.store
	if store == nil {
		built, err := buildStore(ctx, cfg.Cache, provider)
		if err != nil {
			return nil, err
		}
		store = built
	}

	cache, err := fetchcache.New(ctx, options.upstream,
		fetchcache.WithStore(store),
		fetchcache.WithLogger(logging.FetchCacheLogger(provider)),
	)
	if err != nil {
		return nil, err
	}

	builder, err := pagebuilder.New(cache,
		pagebuilder.WithLogger(logging.ModuleLogger(provider, "pagemill.pagebuilder")),
	)
	if err != nil {
		return nil, err
	}

	svc, err := exporter.New(cache,
		exporter.WithCacheAdmin(cache),
		exporter.WithPageBuilder(builder),
		exporter.WithLogger(logging.ExporterLogger(provider)),
	)
	if err != nil {
		return nil, err
	}

	return &Module{
		cfg:      cfg,
		provider: provider,
		cache:    cache,
		builder:  builder,
		exporter: svc,
	}, nil
}

// Export runs the configured pipeline once.
func (m *Module) Export(ctx context.Context) (*ExportReport, error) {
	return m.exporter.Export(ctx, m.Request())
}

// Request returns the export request the configuration describes. Callers
// can adjust it and pass the result to Exporter().Export directly.
func (m *Module) Request() ExportRequest {
	return ExportRequest{
		CollectionID:     m.cfg.Source.CollectionID,
		OutputDir:        m.cfg.Export.OutputDir,
		Mode:             m.cfg.Hierarchy.Mode,
		RelationProperty: m.cfg.Source.RelationProperty,
		Force:            m.cfg.Export.Force,
		HTML:             m.cfg.Markdown.HTML,
		HardWraps:        m.cfg.Markdown.HardWraps,
		Unsafe:           m.cfg.Markdown.Unsafe,
	}
}

// BuildPages assembles the configured collection's pages through the cache.
func (m *Module) BuildPages(ctx context.Context) ([]*Page, error) {
	return m.builder.BuildPages(ctx, m.cfg.Source.CollectionID)
}

// BuildTree links assembled pages per the configured hierarchy mode. Flat
// mode returns a nil tree.
func (m *Module) BuildTree(ctx context.Context, built []*Page) (*Tree, error) {
	opts := []hierarchy.Option{
		hierarchy.WithLogger(logging.HierarchyLogger(m.provider)),
		hierarchy.WithPageFactory(m.builder.PageFactory()),
	}
	if m.cfg.Hierarchy.MaxScanDepth > 0 {
		opts = append(opts, hierarchy.WithMaxScanDepth(m.cfg.Hierarchy.MaxScanDepth))
	}

	switch m.cfg.Hierarchy.Mode {
	case runtimeconfig.ModeRelation:
		return hierarchy.BuildFromRelation(built, m.cfg.Source.RelationProperty, opts...)
	case runtimeconfig.ModeSubpages:
		return hierarchy.BuildFromSubpages(ctx, built, m.cache, opts...)
	case runtimeconfig.ModeCombined:
		return hierarchy.BuildCombined(ctx, built, m.cfg.Source.RelationProperty, m.cache, opts...)
	default:
		return nil, nil
	}
}

// LoggerProvider returns the provider the module logs through. Nil when
// logging is disabled.
func (m *Module) LoggerProvider() interfaces.LoggerProvider {
	return m.provider
}

// API returns the cached content API, substitutable anywhere the raw
// upstream client is accepted.
func (m *Module) API() source.API {
	return m.cache
}

// Exporter returns the export service for callers that need per-run requests.
func (m *Module) Exporter() *exporter.Service {
	return m.exporter
}

// PurgeCache discards every cached record.
func (m *Module) PurgeCache(ctx context.Context) {
	m.cache.PurgeAll(ctx)
}

// PurgeSubtree discards one node's cached subtree.
func (m *Module) PurgeSubtree(ctx context.Context, nodeID string) error {
	return m.cache.PurgeSubtree(ctx, nodeID)
}

// CacheStats reports the cache's in-memory population.
func (m *Module) CacheStats() CacheStats {
	return m.cache.Stats()
}

// Close flushes and releases the cache's durable store.
func (m *Module) Close() error {
	return m.cache.Close()
}

func buildLoggerProvider(cfg runtimeconfig.LoggingConfig) (interfaces.LoggerProvider, error) {
	switch cfg.Provider {
	case "", "noop":
		return nil, nil
	case "console":
		level, _ := console.ParseLevel(cfg.Level)
		return console.NewProvider(console.Options{MinLevel: &level}), nil
	case "gologger":
		return gologger.NewProvider(gologger.Config{
			Level:     cfg.Level,
			Format:    cfg.Format,
			AddSource: cfg.AddSource,
			Focus:     cfg.Focus,
		})
	default:
		return nil, fmt.Errorf("pagemill: unsupported logging provider %q", cfg.Provider)
	}
}

func buildStore(ctx context.Context, cfg runtimeconfig.CacheConfig, provider interfaces.LoggerProvider) (fetchcache.Store, error) {
	logger := logging.StoreLogger(provider)

	switch cfg.Store {
	case runtimeconfig.StoreMemory:
		logger.Debug("store.memory.open")
		return fetchcache.NewMemoryStore(), nil
	case runtimeconfig.StoreBadger:
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("pagemill: create cache dir: %w", err)
		}
		dir := filepath.Join(cfg.Dir, "badger")
		logger.Debug("store.badger.open", "dir", dir)
		return fetchcache.NewBadgerStore(dir)
	case runtimeconfig.StoreSQLite:
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("pagemill: create cache dir: %w", err)
		}
		dsn := filepath.Join(cfg.Dir, "cache.db")
		sqlDB, err := sql.Open("sqlite3", dsn)
		if err != nil {
			return nil, fmt.Errorf("pagemill: open cache db: %w", err)
		}
		logger.Debug("store.sqlite.open", "path", dsn)
		db := bun.NewDB(sqlDB, sqlitedialect.New())
		return fetchcache.NewBunStore(ctx, db)
	default:
		return nil, runtimeconfig.ErrCacheStoreUnknown
	}
}
