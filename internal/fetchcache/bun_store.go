package fetchcache

import (
	"context"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/pagemill/pagemill/internal/identity"
)

// ListingRow is the relational record for one cached listing page. Row
// identity is derived deterministically from the (node, cursor) key so saves
// are natural upserts.
type ListingRow struct {
	bun.BaseModel `bun:"table:cache_listings,alias:cl"`

	ID        uuid.UUID `bun:"id,pk,type:uuid"`
	NodeID    string    `bun:"node_id,notnull"`
	Cursor    string    `bun:"cursor,notnull,default:''"`
	Payload   []byte    `bun:"payload"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

// MetadataRow holds the single cache metadata record.
type MetadataRow struct {
	bun.BaseModel `bun:"table:cache_metadata,alias:cm"`

	ID        uuid.UUID `bun:"id,pk,type:uuid"`
	Payload   []byte    `bun:"payload"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

func newListingRepository(db *bun.DB) repository.Repository[*ListingRow] {
	return repository.MustNewRepository(db, repository.ModelHandlers[*ListingRow]{
		NewRecord: func() *ListingRow { return &ListingRow{} },
		GetID: func(row *ListingRow) uuid.UUID {
			return row.ID
		},
		SetID: func(row *ListingRow, id uuid.UUID) {
			row.ID = id
		},
		GetIdentifier: func() string {
			return "node_id"
		},
		GetIdentifierValue: func(row *ListingRow) string {
			return row.NodeID
		},
	})
}

func newMetadataRepository(db *bun.DB) repository.Repository[*MetadataRow] {
	return repository.MustNewRepository(db, repository.ModelHandlers[*MetadataRow]{
		NewRecord: func() *MetadataRow { return &MetadataRow{} },
		GetID: func(row *MetadataRow) uuid.UUID {
			return row.ID
		},
		SetID: func(row *MetadataRow, id uuid.UUID) {
			row.ID = id
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(row *MetadataRow) string {
			return row.ID.String()
		},
	})
}

// BunStore mirrors the cache into a relational database. It is built for
// machine-local SQLite files; the store owns the handle and closes it.
type BunStore struct {
	db       *bun.DB
	listings repository.Repository[*ListingRow]
	metadata repository.Repository[*MetadataRow]
	now      func() time.Time
}

var _ Store = (*BunStore)(nil)

// BunStoreOption customizes store construction.
type BunStoreOption func(*BunStore)

// WithBunClock overrides the timestamp source for row updates.
func WithBunClock(clock func() time.Time) BunStoreOption {
	return func(s *BunStore) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NewBunStore prepares the schema and returns a relational store over db.
func NewBunStore(ctx context.Context, db *bun.DB, opts ...BunStoreOption) (*BunStore, error) {
	if db == nil {
		return nil, fmt.Errorf("fetchcache: bun store requires a database")
	}

	store := &BunStore{
		db:       db,
		listings: newListingRepository(db),
		metadata: newMetadataRepository(db),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}

	if err := store.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *BunStore) ensureSchema(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().Model((*ListingRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("fetchcache: create cache_listings: %w", err)
	}
	if _, err := s.db.NewCreateTable().Model((*MetadataRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("fetchcache: create cache_metadata: %w", err)
	}
	if _, err := s.db.NewCreateIndex().
		Model((*ListingRow)(nil)).
		Index("idx_cache_listings_node_id").
		Column("node_id").
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("fetchcache: index cache_listings: %w", err)
	}
	return nil
}

func (s *BunStore) LoadMetadata(ctx context.Context) ([]byte, error) {
	row, err := s.metadata.GetByID(ctx, identity.MetadataUUID().String())
	if err != nil {
		if goerrors.IsCategory(err, repository.CategoryDatabaseNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetchcache: load metadata: %w", err)
	}
	return row.Payload, nil
}

func (s *BunStore) SaveMetadata(ctx context.Context, payload []byte) error {
	row := &MetadataRow{
		ID:        identity.MetadataUUID(),
		Payload:   append([]byte(nil), payload...),
		UpdatedAt: s.now().UTC(),
	}

	existing, err := s.metadata.GetByID(ctx, row.ID.String())
	if err != nil {
		if !goerrors.IsCategory(err, repository.CategoryDatabaseNotFound) {
			return fmt.Errorf("fetchcache: save metadata: %w", err)
		}
		if _, err := s.metadata.Create(ctx, row); err != nil {
			return fmt.Errorf("fetchcache: save metadata: %w", err)
		}
		return nil
	}

	existing.Payload = row.Payload
	existing.UpdatedAt = row.UpdatedAt
	if _, err := s.metadata.Update(ctx, existing); err != nil {
		return fmt.Errorf("fetchcache: save metadata: %w", err)
	}
	return nil
}

func (s *BunStore) LoadListings(ctx context.Context) ([]Listing, error) {
	const pageSize = 500

	var out []Listing
	for offset := 0; ; offset += pageSize {
		rows, _, err := s.listings.List(ctx,
			repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
				return q.OrderExpr("?TableAlias.node_id ASC, ?TableAlias.cursor ASC")
			}),
			repository.SelectPaginate(pageSize, offset),
		)
		if err != nil {
			return nil, fmt.Errorf("fetchcache: load listings: %w", err)
		}
		for _, row := range rows {
			out = append(out, Listing{
				NodeID:  row.NodeID,
				Cursor:  row.Cursor,
				Payload: row.Payload,
			})
		}
		if len(rows) < pageSize {
			return out, nil
		}
	}
}

func (s *BunStore) SaveListing(ctx context.Context, listing Listing) error {
	row := &ListingRow{
		ID:        identity.ListingUUID(listing.NodeID, listing.Cursor),
		NodeID:    listing.NodeID,
		Cursor:    listing.Cursor,
		Payload:   append([]byte(nil), listing.Payload...),
		UpdatedAt: s.now().UTC(),
	}

	existing, err := s.listings.GetByID(ctx, row.ID.String())
	if err != nil {
		if !goerrors.IsCategory(err, repository.CategoryDatabaseNotFound) {
			return fmt.Errorf("fetchcache: save listing %s: %w", listing.NodeID, err)
		}
		if _, err := s.listings.Create(ctx, row); err != nil {
			return fmt.Errorf("fetchcache: save listing %s: %w", listing.NodeID, err)
		}
		return nil
	}

	existing.Payload = row.Payload
	existing.UpdatedAt = row.UpdatedAt
	if _, err := s.listings.Update(ctx, existing); err != nil {
		return fmt.Errorf("fetchcache: save listing %s: %w", listing.NodeID, err)
	}
	return nil
}

func (s *BunStore) DeleteListings(ctx context.Context, nodeIDs []string) error {
	if len(nodeIDs) == 0 {
		return nil
	}
	if _, err := s.db.NewDelete().
		Model((*ListingRow)(nil)).
		Where("?TableAlias.node_id IN (?)", bun.In(nodeIDs)).
		Exec(ctx); err != nil {
		return fmt.Errorf("fetchcache: delete listings: %w", err)
	}
	return nil
}

func (s *BunStore) Purge(ctx context.Context) error {
	if _, err := s.db.NewDelete().
		Model((*ListingRow)(nil)).
		Where("1 = 1").
		Exec(ctx); err != nil {
		return fmt.Errorf("fetchcache: purge listings: %w", err)
	}
	if _, err := s.db.NewDelete().
		Model((*MetadataRow)(nil)).
		Where("1 = 1").
		Exec(ctx); err != nil {
		return fmt.Errorf("fetchcache: purge metadata: %w", err)
	}
	return nil
}

func (s *BunStore) Close() error {
	return s.db.Close()
}
