package logging

import (
	"context"
	"strings"

	"github.com/pagemill/pagemill/pkg/interfaces"
)

const (
	rootModule       = "pagemill"
	fetchCacheModule = "pagemill.fetchcache"
	hierarchyModule  = "pagemill.hierarchy"
	exporterModule   = "pagemill.exporter"
	storeModule      = "pagemill.store"
)

const (
	fieldNodeID   = "node_id"
	fieldCursor   = "cursor"
	fieldPagePath = "page_path"
)

// ModuleLogger returns a module-scoped logger, defaulting to a no-op
// implementation when no provider is supplied. The returned logger attaches
// the module identifier as structured context so downstream entries can be
// filtered predictably.
func ModuleLogger(provider interfaces.LoggerProvider, module string) interfaces.Logger {
	if module == "" {
		module = rootModule
	}

	logger := NoOp()
	if provider != nil {
		if provided := provider.GetLogger(module); provided != nil {
			logger = provided
		}
	}

	if fieldsLogger, ok := logger.(interfaces.FieldsLogger); ok {
		return fieldsLogger.WithFields(map[string]any{
			"module": module,
		})
	}

	return WithFields(logger, map[string]any{
		"module": module,
	})
}

// FetchCacheLogger returns the logger namespace reserved for the fetch cache.
func FetchCacheLogger(provider interfaces.LoggerProvider) interfaces.Logger {
	return ModuleLogger(provider, fetchCacheModule)
}

// HierarchyLogger returns the logger namespace reserved for the tree builder.
func HierarchyLogger(provider interfaces.LoggerProvider) interfaces.Logger {
	return ModuleLogger(provider, hierarchyModule)
}

// ExporterLogger returns the logger namespace reserved for export runs.
func ExporterLogger(provider interfaces.LoggerProvider) interfaces.Logger {
	return ModuleLogger(provider, exporterModule)
}

// StoreLogger returns the logger namespace reserved for durable cache stores.
func StoreLogger(provider interfaces.LoggerProvider) interfaces.Logger {
	return ModuleLogger(provider, storeModule)
}

// WithNodeContext enriches the provided logger with common node fields such as
// the node identifier and pagination cursor. Empty values are ignored.
func WithNodeContext(logger interfaces.Logger, nodeID, cursor string) interfaces.Logger {
	fields := map[string]any{}
	if trimmed := strings.TrimSpace(nodeID); trimmed != "" {
		fields[fieldNodeID] = trimmed
	}
	if trimmed := strings.TrimSpace(cursor); trimmed != "" {
		fields[fieldCursor] = trimmed
	}
	return WithFields(logger, fields)
}

// WithPageContext annotates the logger with the output path of the page being
// processed.
func WithPageContext(logger interfaces.Logger, pagePath string) interfaces.Logger {
	if trimmed := strings.TrimSpace(pagePath); trimmed != "" {
		return WithFields(logger, map[string]any{fieldPagePath: trimmed})
	}
	return logger
}

// NoOp returns a logger that drops every log entry. It satisfies the Logger
// contract so services can safely operate when logging is disabled.
func NoOp() interfaces.Logger {
	return noopLogger{}
}

type noopLogger struct{}

var _ interfaces.Logger = noopLogger{}

func (noopLogger) Trace(string, ...any) {}
func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
func (noopLogger) Fatal(string, ...any) {}

func (n noopLogger) WithFields(map[string]any) interfaces.Logger {
	return n
}

func (n noopLogger) WithContext(context.Context) interfaces.Logger {
	return n
}
