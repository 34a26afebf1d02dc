package fetchcache

import (
	"context"
	"errors"
)

var (
	// ErrStoreClosed indicates an operation arrived after Close.
	ErrStoreClosed = errors.New("fetchcache: store closed")
)

// Listing is one durable record of a cached child-listing page. Payload is
// the JSON-encoded result page; NodeID and Cursor reproduce the cache key.
type Listing struct {
	NodeID  string
	Cursor  string
	Payload []byte
}

// Store is the durable mirror of the cache's in-memory state. Implementations
// persist exactly one metadata record plus one record per cached listing key.
// The cache treats every store failure as non-fatal: errors are logged and the
// cache degrades to fetching from the network.
type Store interface {
	// LoadMetadata returns the persisted metadata payload, or (nil, nil)
	// when no metadata has been saved yet.
	LoadMetadata(ctx context.Context) ([]byte, error)

	// SaveMetadata replaces the persisted metadata payload.
	SaveMetadata(ctx context.Context, payload []byte) error

	// LoadListings returns every persisted listing record.
	LoadListings(ctx context.Context) ([]Listing, error)

	// SaveListing inserts or replaces the record for the listing's
	// (NodeID, Cursor) key.
	SaveListing(ctx context.Context, listing Listing) error

	// DeleteListings removes every cursor record belonging to the given
	// nodes. Unknown nodes are ignored.
	DeleteListings(ctx context.Context, nodeIDs []string) error

	// Purge removes all persisted state, metadata included.
	Purge(ctx context.Context) error

	// Close releases the store's resources. The cache flushes metadata
	// before closing.
	Close() error
}
