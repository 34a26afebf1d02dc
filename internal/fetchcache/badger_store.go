package fetchcache

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
)

const (
	badgerMetadataKey   = "meta"
	badgerListingPrefix = "listing/"
)

// BadgerStore mirrors the cache into an embedded Badger database. Listing
// keys are path-escaped so node IDs and cursors can contain arbitrary bytes
// while prefix scans per node stay exact.
type BadgerStore struct {
	db *badger.DB
}

var _ Store = (*BadgerStore)(nil)

// NewBadgerStore opens (or creates) a Badger database at path.
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("fetchcache: open badger store at %s: %w", path, err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) LoadMetadata(ctx context.Context) ([]byte, error) {
	var payload []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerMetadataKey))
		if err != nil {
			return err
		}
		payload, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetchcache: load metadata: %w", err)
	}
	return payload, nil
}

func (s *BadgerStore) SaveMetadata(ctx context.Context, payload []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(badgerMetadataKey), payload)
	})
	if err != nil {
		return fmt.Errorf("fetchcache: save metadata: %w", err)
	}
	return nil
}

func (s *BadgerStore) LoadListings(ctx context.Context) ([]Listing, error) {
	var listings []Listing
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(badgerListingPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			nodeID, cursor, ok := parseListingKey(string(item.KeyCopy(nil)))
			if !ok {
				continue
			}
			payload, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			listings = append(listings, Listing{
				NodeID:  nodeID,
				Cursor:  cursor,
				Payload: payload,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetchcache: load listings: %w", err)
	}
	return listings, nil
}

func (s *BadgerStore) SaveListing(ctx context.Context, listing Listing) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(listingKey(listing.NodeID, listing.Cursor)), listing.Payload)
	})
	if err != nil {
		return fmt.Errorf("fetchcache: save listing %s: %w", listing.NodeID, err)
	}
	return nil
}

func (s *BadgerStore) DeleteListings(ctx context.Context, nodeIDs []string) error {
	if len(nodeIDs) == 0 {
		return nil
	}

	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for _, nodeID := range nodeIDs {
			prefix := []byte(nodePrefix(nodeID))
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				keys = append(keys, it.Item().KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("fetchcache: scan listings: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}

	batch := s.db.NewWriteBatch()
	defer batch.Cancel()
	for _, key := range keys {
		if err := batch.Delete(key); err != nil {
			return fmt.Errorf("fetchcache: delete listing: %w", err)
		}
	}
	if err := batch.Flush(); err != nil {
		return fmt.Errorf("fetchcache: delete listings: %w", err)
	}
	return nil
}

func (s *BadgerStore) Purge(ctx context.Context) error {
	if err := s.db.DropAll(); err != nil {
		return fmt.Errorf("fetchcache: purge: %w", err)
	}
	return nil
}

func (s *BadgerStore) Close() error {
	if err := s.db.Sync(); err != nil {
		_ = s.db.Close()
		return fmt.Errorf("fetchcache: sync badger store: %w", err)
	}
	return s.db.Close()
}

func listingKey(nodeID, cursor string) string {
	return nodePrefix(nodeID) + url.PathEscape(cursor)
}

func nodePrefix(nodeID string) string {
	return badgerListingPrefix + url.PathEscape(nodeID) + "/"
}

func parseListingKey(key string) (nodeID, cursor string, ok bool) {
	rest, found := strings.CutPrefix(key, badgerListingPrefix)
	if !found {
		return "", "", false
	}
	escapedNode, escapedCursor, found := strings.Cut(rest, "/")
	if !found {
		return "", "", false
	}
	node, err := url.PathUnescape(escapedNode)
	if err != nil {
		return "", "", false
	}
	cur, err := url.PathUnescape(escapedCursor)
	if err != nil {
		return "", "", false
	}
	return node, cur, true
}
