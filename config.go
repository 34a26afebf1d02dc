package pagemill

import "github.com/pagemill/pagemill/internal/runtimeconfig"

var (
	ErrCollectionIDRequired     = runtimeconfig.ErrCollectionIDRequired
	ErrHierarchyModeUnknown     = runtimeconfig.ErrHierarchyModeUnknown
	ErrRelationPropertyRequired = runtimeconfig.ErrRelationPropertyRequired
	ErrCacheStoreUnknown        = runtimeconfig.ErrCacheStoreUnknown
	ErrCacheDirRequired         = runtimeconfig.ErrCacheDirRequired
	ErrOutputDirRequired        = runtimeconfig.ErrOutputDirRequired
	ErrHTMLRequiresMarkdown     = runtimeconfig.ErrHTMLRequiresMarkdown
	ErrLoggingLevelInvalid      = runtimeconfig.ErrLoggingLevelInvalid
	ErrLoggingFormatInvalid     = runtimeconfig.ErrLoggingFormatInvalid
)

type (
	Config          = runtimeconfig.Config
	SourceConfig    = runtimeconfig.SourceConfig
	CacheConfig     = runtimeconfig.CacheConfig
	HierarchyConfig = runtimeconfig.HierarchyConfig
	MarkdownConfig  = runtimeconfig.MarkdownConfig
	ExportConfig    = runtimeconfig.ExportConfig
	LoggingConfig   = runtimeconfig.LoggingConfig
)

// Hierarchy mode names accepted by HierarchyConfig.Mode.
const (
	ModeFlat     = runtimeconfig.ModeFlat
	ModeRelation = runtimeconfig.ModeRelation
	ModeSubpages = runtimeconfig.ModeSubpages
	ModeCombined = runtimeconfig.ModeCombined
)

// Cache store names accepted by CacheConfig.Store.
const (
	StoreMemory = runtimeconfig.StoreMemory
	StoreSQLite = runtimeconfig.StoreSQLite
	StoreBadger = runtimeconfig.StoreBadger
)

// DefaultConfig returns the defaults a fresh pipeline starts from.
func DefaultConfig() Config {
	return runtimeconfig.DefaultConfig()
}
