package exportcmd

import (
	"context"

	command "github.com/goliatone/go-command"

	"github.com/pagemill/pagemill/internal/commands"
	"github.com/pagemill/pagemill/internal/exporter"
	"github.com/pagemill/pagemill/internal/logging"
	"github.com/pagemill/pagemill/pkg/interfaces"
)

const (
	runExportOperation    = "export.run"
	purgeCacheOperation   = "cache.purge_all"
	purgeSubtreeOperation = "cache.purge_subtree"
)

var (
	_ command.Commander[RunExportCommand]    = (*RunExportHandler)(nil)
	_ command.Commander[PurgeCacheCommand]   = (*PurgeCacheHandler)(nil)
	_ command.Commander[PurgeSubtreeCommand] = (*PurgeSubtreeHandler)(nil)
)

// RunExportHandler drives an export run through the shared command handler
// foundation. The run's report is delivered to the optional callback; the
// command itself only errors when the run aborts.
type RunExportHandler struct {
	inner *commands.Handler[RunExportCommand]
}

// NewRunExportHandler binds the handler to the export service. onReport, when
// non-nil, receives the report of every successful run.
func NewRunExportHandler(service *exporter.Service, logger interfaces.Logger, onReport func(*exporter.Report), opts ...commands.HandlerOption[RunExportCommand]) *RunExportHandler {
	baseLogger := logger
	if baseLogger == nil {
		baseLogger = logging.NoOp()
	}

	exec := func(ctx context.Context, msg RunExportCommand) error {
		report, err := service.Export(ctx, exporter.Request{
			CollectionID:     msg.CollectionID,
			OutputDir:        msg.OutputDir,
			Mode:             msg.Mode,
			RelationProperty: msg.RelationProperty,
			Force:            msg.Force,
			HTML:             msg.HTML,
			HardWraps:        msg.HardWraps,
			Unsafe:           msg.Unsafe,
		})
		if err != nil {
			return err
		}
		if onReport != nil {
			onReport(report)
		}
		return nil
	}

	handlerOpts := append([]commands.HandlerOption[RunExportCommand]{
		commands.WithLogger[RunExportCommand](baseLogger),
		commands.WithOperation[RunExportCommand](runExportOperation),
	}, opts...)

	return &RunExportHandler{inner: commands.NewHandler(exec, handlerOpts...)}
}

// Execute implements command.Commander.
func (h *RunExportHandler) Execute(ctx context.Context, msg RunExportCommand) error {
	return h.inner.Execute(ctx, msg)
}

// PurgeCacheHandler clears the fetch cache through the export service.
type PurgeCacheHandler struct {
	inner *commands.Handler[PurgeCacheCommand]
}

// NewPurgeCacheHandler binds the handler to the export service.
func NewPurgeCacheHandler(service *exporter.Service, logger interfaces.Logger, opts ...commands.HandlerOption[PurgeCacheCommand]) *PurgeCacheHandler {
	baseLogger := logger
	if baseLogger == nil {
		baseLogger = logging.NoOp()
	}

	exec := func(ctx context.Context, msg PurgeCacheCommand) error {
		return service.PurgeCache(ctx)
	}

	handlerOpts := append([]commands.HandlerOption[PurgeCacheCommand]{
		commands.WithLogger[PurgeCacheCommand](baseLogger),
		commands.WithOperation[PurgeCacheCommand](purgeCacheOperation),
	}, opts...)

	return &PurgeCacheHandler{inner: commands.NewHandler(exec, handlerOpts...)}
}

// Execute implements command.Commander.
func (h *PurgeCacheHandler) Execute(ctx context.Context, msg PurgeCacheCommand) error {
	return h.inner.Execute(ctx, msg)
}

// PurgeSubtreeHandler clears one cached subtree through the export service.
type PurgeSubtreeHandler struct {
	inner *commands.Handler[PurgeSubtreeCommand]
}

// NewPurgeSubtreeHandler binds the handler to the export service.
func NewPurgeSubtreeHandler(service *exporter.Service, logger interfaces.Logger, opts ...commands.HandlerOption[PurgeSubtreeCommand]) *PurgeSubtreeHandler {
	baseLogger := logger
	if baseLogger == nil {
		baseLogger = logging.NoOp()
	}

	exec := func(ctx context.Context, msg PurgeSubtreeCommand) error {
		return service.PurgeSubtree(ctx, msg.NodeID)
	}

	handlerOpts := append([]commands.HandlerOption[PurgeSubtreeCommand]{
		commands.WithLogger[PurgeSubtreeCommand](baseLogger),
		commands.WithOperation[PurgeSubtreeCommand](purgeSubtreeOperation),
	}, opts...)

	return &PurgeSubtreeHandler{inner: commands.NewHandler(exec, handlerOpts...)}
}

// Execute implements command.Commander.
func (h *PurgeSubtreeHandler) Execute(ctx context.Context, msg PurgeSubtreeCommand) error {
	return h.inner.Execute(ctx, msg)
}
