package exportcmd

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/pagemill/pagemill/internal/runtimeconfig"
)

const (
	runExportMessageType    = "pagemill.export.run"
	purgeCacheMessageType   = "pagemill.cache.purge_all"
	purgeSubtreeMessageType = "pagemill.cache.purge_subtree"
)

// RunExportCommand triggers one export run of a collection into OutputDir.
type RunExportCommand struct {
	// CollectionID selects the upstream collection to export.
	CollectionID string `json:"collection_id"`
	// OutputDir is the destination directory for generated files.
	OutputDir string `json:"output_dir"`
	// Mode selects hierarchy linking: flat, relation, subpages, combined.
	Mode string `json:"mode,omitempty"`
	// RelationProperty names the parent-reference property for relation modes.
	RelationProperty string `json:"relation_property,omitempty"`
	// Force rewrites files whose checksums match the rendered content.
	Force bool `json:"force,omitempty"`
	// HTML additionally renders each document to HTML.
	HTML bool `json:"html,omitempty"`
	// HardWraps renders single newlines as <br> in HTML output.
	HardWraps bool `json:"hard_wraps,omitempty"`
	// Unsafe passes raw HTML through in HTML output.
	Unsafe bool `json:"unsafe,omitempty"`
}

// Type implements command.Message.
func (RunExportCommand) Type() string { return runExportMessageType }

// Validate ensures the export request is complete before handlers execute.
func (cmd RunExportCommand) Validate() error {
	return validation.ValidateStruct(&cmd,
		validation.Field(&cmd.CollectionID, validation.Required, validation.By(nonBlank("pagemill.export.run.collection_required", "collection ID is required"))),
		validation.Field(&cmd.OutputDir, validation.Required, validation.By(nonBlank("pagemill.export.run.output_dir_required", "output directory is required"))),
		validation.Field(&cmd.Mode, validation.In("", runtimeconfig.ModeFlat, runtimeconfig.ModeRelation, runtimeconfig.ModeSubpages, runtimeconfig.ModeCombined)),
		validation.Field(&cmd.RelationProperty, validation.By(func(any) error {
			if cmd.Mode == runtimeconfig.ModeRelation || cmd.Mode == runtimeconfig.ModeCombined {
				if strings.TrimSpace(cmd.RelationProperty) == "" {
					return validation.NewError("pagemill.export.run.relation_property_required", "relation property is required for relation and combined modes")
				}
			}
			return nil
		})),
	)
}

// PurgeCacheCommand clears the whole fetch cache.
type PurgeCacheCommand struct{}

// Type implements command.Message.
func (PurgeCacheCommand) Type() string { return purgeCacheMessageType }

// Validate implements command.Message; a full purge has no preconditions.
func (PurgeCacheCommand) Validate() error { return nil }

// PurgeSubtreeCommand clears one node's cached subtree so the next export
// refetches it, e.g. after an expired asset link.
type PurgeSubtreeCommand struct {
	// NodeID selects the subtree root to purge.
	NodeID string `json:"node_id"`
}

// Type implements command.Message.
func (PurgeSubtreeCommand) Type() string { return purgeSubtreeMessageType }

// Validate ensures a node is named before handlers execute.
func (cmd PurgeSubtreeCommand) Validate() error {
	return validation.ValidateStruct(&cmd,
		validation.Field(&cmd.NodeID, validation.Required, validation.By(nonBlank("pagemill.cache.purge_subtree.node_required", "node ID is required"))),
	)
}

func nonBlank(code, message string) func(any) error {
	return func(value any) error {
		if text, ok := value.(string); ok && strings.TrimSpace(text) == "" {
			return validation.NewError(code, message)
		}
		return nil
	}
}
