package runtimeconfig

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
)

var (
	// ErrCollectionIDRequired indicates no collection was configured.
	ErrCollectionIDRequired = errors.New("pagemill config: source collection ID is required")

	// ErrHierarchyModeUnknown indicates an unsupported hierarchy mode name.
	ErrHierarchyModeUnknown = errors.New("pagemill config: hierarchy mode is invalid")

	// ErrRelationPropertyRequired indicates a relation-based hierarchy mode
	// without the property that carries parent references.
	ErrRelationPropertyRequired = errors.New("pagemill config: relation property is required for relation and combined modes")

	// ErrCacheStoreUnknown indicates an unsupported cache store name.
	ErrCacheStoreUnknown = errors.New("pagemill config: cache store is invalid")

	// ErrCacheDirRequired indicates a durable store without a directory.
	ErrCacheDirRequired = errors.New("pagemill config: cache directory is required for durable stores")

	// ErrOutputDirRequired indicates no export destination was configured.
	ErrOutputDirRequired = errors.New("pagemill config: export output directory is required")

	// ErrHTMLRequiresMarkdown keeps HTML generation behind markdown output.
	ErrHTMLRequiresMarkdown = errors.New("pagemill config: html output requires markdown to be enabled")

	// ErrLoggingLevelInvalid indicates an unsupported logging level.
	ErrLoggingLevelInvalid = errors.New("pagemill config: logging level is invalid")

	// ErrLoggingFormatInvalid indicates an unsupported logging format.
	ErrLoggingFormatInvalid = errors.New("pagemill config: logging format is invalid")
)

// Hierarchy mode names accepted by HierarchyConfig.Mode.
const (
	ModeFlat     = "flat"
	ModeRelation = "relation"
	ModeSubpages = "subpages"
	ModeCombined = "combined"
)

// Cache store names accepted by CacheConfig.Store.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreBadger = "badger"
)

// Config aggregates the runtime settings of one export pipeline. Fields use
// simple types so host applications can load them from any source.
type Config struct {
	Source    SourceConfig
	Cache     CacheConfig
	Hierarchy HierarchyConfig
	Markdown  MarkdownConfig
	Export    ExportConfig
	Logging   LoggingConfig
}

// SourceConfig selects the upstream collection to ingest.
type SourceConfig struct {
	CollectionID     string
	RelationProperty string
}

// CacheConfig selects the fetch cache's durable mirror.
type CacheConfig struct {
	// Store is one of memory, sqlite, badger.
	Store string
	// Dir holds the durable store's files. Ignored for the memory store.
	Dir string
}

// HierarchyConfig selects how pages are linked into a tree.
type HierarchyConfig struct {
	// Mode is one of flat, relation, subpages, combined.
	Mode string
	// MaxScanDepth bounds block recursion during subpage discovery.
	MaxScanDepth int
}

// MarkdownConfig controls the rendering collaborator.
type MarkdownConfig struct {
	Enabled   bool
	HTML      bool
	HardWraps bool
	Unsafe    bool
}

// ExportConfig controls file output.
type ExportConfig struct {
	OutputDir string
	// Force rewrites files whose checksums match the rendered content.
	Force bool
}

// LoggingConfig captures provider-specific options for runtime logging.
type LoggingConfig struct {
	Provider  string
	Level     string
	Format    string
	AddSource bool
	Focus     []string
}

// DefaultConfig returns the defaults a fresh pipeline starts from. The cache
// lands under the user's XDG cache directory.
func DefaultConfig() Config {
	return Config{
		Cache: CacheConfig{
			Store: StoreSQLite,
			Dir:   filepath.Join(xdg.CacheHome, "pagemill"),
		},
		Hierarchy: HierarchyConfig{
			Mode: ModeFlat,
		},
		Markdown: MarkdownConfig{
			Enabled: true,
		},
		Export: ExportConfig{
			OutputDir: "content",
		},
		Logging: LoggingConfig{
			Provider: "console",
			Level:    "info",
		},
	}
}

// Validate performs high-level consistency checks.
func (cfg Config) Validate() error {
	if strings.TrimSpace(cfg.Source.CollectionID) == "" {
		return ErrCollectionIDRequired
	}

	switch cfg.Hierarchy.Mode {
	case ModeFlat, ModeSubpages:
	case ModeRelation, ModeCombined:
		if strings.TrimSpace(cfg.Source.RelationProperty) == "" {
			return ErrRelationPropertyRequired
		}
	default:
		return ErrHierarchyModeUnknown
	}

	switch cfg.Cache.Store {
	case StoreMemory:
	case StoreSQLite, StoreBadger:
		if strings.TrimSpace(cfg.Cache.Dir) == "" {
			return ErrCacheDirRequired
		}
	default:
		return ErrCacheStoreUnknown
	}

	if strings.TrimSpace(cfg.Export.OutputDir) == "" {
		return ErrOutputDirRequired
	}
	if cfg.Markdown.HTML && !cfg.Markdown.Enabled {
		return ErrHTMLRequiresMarkdown
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Level)) {
	case "", "trace", "debug", "info", "warn", "warning", "error", "fatal":
	default:
		return ErrLoggingLevelInvalid
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Format)) {
	case "", "json", "console", "pretty":
	default:
		return ErrLoggingFormatInvalid
	}
	return nil
}
