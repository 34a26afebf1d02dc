package fetchcache

import (
	"context"
	"strings"
	"sync"
)

// MemoryStore keeps the durable mirror in process memory. It backs tests and
// ephemeral runs where persistence across processes is not wanted.
type MemoryStore struct {
	mu       sync.RWMutex
	metadata []byte
	listings map[string]Listing
	closed   bool
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		listings: make(map[string]Listing),
	}
}

func (s *MemoryStore) LoadMetadata(ctx context.Context) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	if s.metadata == nil {
		return nil, nil
	}
	return append([]byte(nil), s.metadata...), nil
}

func (s *MemoryStore) SaveMetadata(ctx context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.metadata = append([]byte(nil), payload...)
	return nil
}

func (s *MemoryStore) LoadListings(ctx context.Context) ([]Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	out := make([]Listing, 0, len(s.listings))
	for _, listing := range s.listings {
		out = append(out, cloneListing(listing))
	}
	return out, nil
}

func (s *MemoryStore) SaveListing(ctx context.Context, listing Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.listings[cacheKey(listing.NodeID, listing.Cursor)] = cloneListing(listing)
	return nil
}

func (s *MemoryStore) DeleteListings(ctx context.Context, nodeIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	for _, nodeID := range nodeIDs {
		prefix := nodeID + keySeparator
		for key := range s.listings {
			if strings.HasPrefix(key, prefix) {
				delete(s.listings, key)
			}
		}
	}
	return nil
}

func (s *MemoryStore) Purge(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.metadata = nil
	s.listings = make(map[string]Listing)
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func cloneListing(listing Listing) Listing {
	copied := listing
	if listing.Payload != nil {
		copied.Payload = append([]byte(nil), listing.Payload...)
	}
	return copied
}
