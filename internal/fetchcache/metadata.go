package fetchcache

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pagemill/pagemill/internal/validation"
)

// FormatVersion is the current on-disk metadata format. Older formats are
// migrated forward on load; newer or unreadable formats trigger a full purge.
const FormatVersion = 3

var (
	// ErrMetadataCorrupt indicates the persisted metadata could not be
	// decoded or failed schema validation.
	ErrMetadataCorrupt = errors.New("fetchcache: metadata corrupt")

	// ErrMetadataVersion indicates the persisted metadata was written by a
	// newer format than this build understands.
	ErrMetadataVersion = errors.New("fetchcache: metadata format newer than supported")
)

// MetadataSchema validates the current metadata payload before any of it is
// trusted. Migrated payloads are re-validated against this schema as well.
var MetadataSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"format_version": map[string]any{"type": "integer", "minimum": 1},
		"saved_at":       map[string]any{"type": "string"},
		"validity": map[string]any{
			"type": "object",
			"additionalProperties": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"observed_edit_time": map[string]any{"type": "string"},
					"cached_as_of_time":  map[string]any{"type": "string"},
				},
				"additionalProperties": false,
			},
		},
		"parent_index": map[string]any{
			"type":                 "object",
			"additionalProperties": map[string]any{"type": "string"},
		},
	},
	"required":             []any{"format_version"},
	"additionalProperties": false,
}

// Metadata is the decoded durable snapshot of the cache's validity and
// parent-index state.
type Metadata struct {
	FormatVersion int
	SavedAt       time.Time
	Validity      map[string]*ValidityRecord
	ParentIndex   map[string]string
}

type wireValidity struct {
	ObservedEditTime time.Time `json:"observed_edit_time"`
	CachedAsOfTime   time.Time `json:"cached_as_of_time"`
}

type wireMetadataV3 struct {
	FormatVersion int                     `json:"format_version"`
	SavedAt       time.Time               `json:"saved_at"`
	Validity      map[string]wireValidity `json:"validity"`
	ParentIndex   map[string]string       `json:"parent_index"`
}

// Format 2 persisted the index downward (parent to ordered children).
type wireMetadataV2 struct {
	FormatVersion int                     `json:"format_version"`
	Validity      map[string]wireValidity `json:"validity"`
	ChildIndex    map[string][]string     `json:"child_index"`
}

// Format 1 kept the two timestamps in parallel maps keyed by node ID.
type wireMetadataV1 struct {
	FormatVersion   int                  `json:"format_version"`
	ObservedTimes   map[string]time.Time `json:"observed_times"`
	CachedAsOfTimes map[string]time.Time `json:"cached_as_of_times"`
	ChildIndex      map[string][]string  `json:"child_index"`
}

// EncodeMetadata serializes a snapshot in the current format.
func EncodeMetadata(meta *Metadata) ([]byte, error) {
	if meta == nil {
		return nil, fmt.Errorf("fetchcache: metadata is required")
	}
	wire := wireMetadataV3{
		FormatVersion: FormatVersion,
		SavedAt:       meta.SavedAt,
		Validity:      make(map[string]wireValidity, len(meta.Validity)),
		ParentIndex:   make(map[string]string, len(meta.ParentIndex)),
	}
	for nodeID, record := range meta.Validity {
		if record == nil {
			continue
		}
		wire.Validity[nodeID] = wireValidity{
			ObservedEditTime: record.ObservedEditTime,
			CachedAsOfTime:   record.CachedAsOfTime,
		}
	}
	for child, parent := range meta.ParentIndex {
		wire.ParentIndex[child] = parent
	}
	return json.Marshal(wire)
}

// DecodeMetadata parses a persisted payload, migrating older formats forward.
// It returns ErrMetadataVersion for payloads from a newer build and
// ErrMetadataCorrupt for anything that cannot be decoded or validated; both
// mean the durable state must be discarded.
func DecodeMetadata(raw []byte) (*Metadata, error) {
	var envelope struct {
		FormatVersion int `json:"format_version"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMetadataCorrupt, err)
	}

	switch {
	case envelope.FormatVersion > FormatVersion:
		return nil, fmt.Errorf("%w: got %d, supports up to %d", ErrMetadataVersion, envelope.FormatVersion, FormatVersion)
	case envelope.FormatVersion == FormatVersion:
		return decodeCurrent(raw)
	case envelope.FormatVersion == 2:
		var wire wireMetadataV2
		if err := json.Unmarshal(raw, &wire); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMetadataCorrupt, err)
		}
		return finishMigration(migrateV2(wire))
	case envelope.FormatVersion == 1:
		var wire wireMetadataV1
		if err := json.Unmarshal(raw, &wire); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMetadataCorrupt, err)
		}
		return finishMigration(migrateV2(migrateV1(wire)))
	default:
		return nil, fmt.Errorf("%w: missing format version", ErrMetadataCorrupt)
	}
}

func decodeCurrent(raw []byte) (*Metadata, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMetadataCorrupt, err)
	}
	if err := validation.ValidatePayload(MetadataSchema, doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMetadataCorrupt, err)
	}

	var wire wireMetadataV3
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMetadataCorrupt, err)
	}
	meta := &Metadata{
		FormatVersion: wire.FormatVersion,
		SavedAt:       wire.SavedAt,
		Validity:      make(map[string]*ValidityRecord, len(wire.Validity)),
		ParentIndex:   make(map[string]string, len(wire.ParentIndex)),
	}
	for nodeID, record := range wire.Validity {
		meta.Validity[nodeID] = &ValidityRecord{
			ObservedEditTime: record.ObservedEditTime,
			CachedAsOfTime:   record.CachedAsOfTime,
		}
	}
	for child, parent := range wire.ParentIndex {
		meta.ParentIndex[child] = parent
	}
	return meta, nil
}

// migrateV1 folds the parallel timestamp maps of format 1 into validity
// records. Nodes appearing in either map get a record; the child index passes
// through for the next step.
func migrateV1(wire wireMetadataV1) wireMetadataV2 {
	validity := make(map[string]wireValidity, len(wire.ObservedTimes))
	for nodeID, observed := range wire.ObservedTimes {
		record := validity[nodeID]
		record.ObservedEditTime = observed
		validity[nodeID] = record
	}
	for nodeID, cachedAsOf := range wire.CachedAsOfTimes {
		record := validity[nodeID]
		record.CachedAsOfTime = cachedAsOf
		validity[nodeID] = record
	}
	return wireMetadataV2{
		FormatVersion: 2,
		Validity:      validity,
		ChildIndex:    wire.ChildIndex,
	}
}

// migrateV2 inverts the downward child index of format 2 into the upward
// parent index used since format 3.
func migrateV2(wire wireMetadataV2) *Metadata {
	meta := &Metadata{
		FormatVersion: FormatVersion,
		Validity:      make(map[string]*ValidityRecord, len(wire.Validity)),
		ParentIndex:   make(map[string]string),
	}
	for nodeID, record := range wire.Validity {
		meta.Validity[nodeID] = &ValidityRecord{
			ObservedEditTime: record.ObservedEditTime,
			CachedAsOfTime:   record.CachedAsOfTime,
		}
	}
	for parent, children := range wire.ChildIndex {
		for _, child := range children {
			meta.ParentIndex[child] = parent
		}
	}
	return meta
}

func finishMigration(meta *Metadata) (*Metadata, error) {
	encoded, err := EncodeMetadata(meta)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMetadataCorrupt, err)
	}
	var doc any
	if err := json.Unmarshal(encoded, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMetadataCorrupt, err)
	}
	if err := validation.ValidatePayload(MetadataSchema, doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMetadataCorrupt, err)
	}
	return meta, nil
}
