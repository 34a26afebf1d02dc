package fetchcache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/pagemill/pagemill/internal/logging"
	"github.com/pagemill/pagemill/pkg/interfaces"
	"github.com/pagemill/pagemill/source"
)

var (
	// ErrUpstreamRequired indicates the cache was constructed without an
	// upstream API to delegate misses to.
	ErrUpstreamRequired = errors.New("fetchcache: upstream API is required")

	// ErrNodeIDRequired indicates an operation was invoked with an empty
	// node ID.
	ErrNodeIDRequired = errors.New("fetchcache: node ID is required")
)

// keySeparator joins node IDs and cursors into listing keys. Upstream IDs
// never contain control characters, so prefix scans per node stay exact.
const keySeparator = "\x1f"

// ValidityRecord tracks the two timestamps that decide whether a node's
// cached listings may be served. ObservedEditTime is the most recent edit
// time reported by the upstream API; CachedAsOfTime is the edit time that was
// current when the listing was fetched.
type ValidityRecord struct {
	ObservedEditTime time.Time
	CachedAsOfTime   time.Time
}

// Valid reports whether cached listings governed by this record may be
// served. Both timestamps must be present and exactly equal; any drift or
// absence means the cache must refetch.
func (r *ValidityRecord) Valid() bool {
	if r == nil {
		return false
	}
	if r.ObservedEditTime.IsZero() || r.CachedAsOfTime.IsZero() {
		return false
	}
	return r.ObservedEditTime.Equal(r.CachedAsOfTime)
}

// Stats summarizes the cache's in-memory population.
type Stats struct {
	Collections  int
	Nodes        int
	Listings     int
	TrackedNodes int
}

// Cache wraps an upstream source.API with dependency-aware caching. It is
// safe for concurrent use; fetches happen outside the internal lock.
//
// Collections, collection queries, and single nodes are memoized for the
// lifetime of the process. Child listings are cached durably and served only
// while the governing validity record holds; everything else refetches.
type Cache struct {
	upstream source.API
	store    Store
	logger   interfaces.Logger
	now      func() time.Time

	mu            sync.Mutex
	collections   map[string]*source.Collection
	queries       map[string]*source.ResultPage
	nodes         map[string]*source.Node
	listings      map[string]*source.ResultPage
	validity      map[string]*ValidityRecord
	parents       map[string]string
	metadataDirty bool
}

var _ source.API = (*Cache)(nil)

// Option customizes cache construction.
type Option func(*Cache)

// WithStore provides the durable mirror. Defaults to an in-memory store.
func WithStore(store Store) Option {
	return func(c *Cache) {
		if store != nil {
			c.store = store
		}
	}
}

// WithLogger overrides the default no-op logger.
func WithLogger(logger interfaces.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock overrides the time source used for metadata snapshots.
func WithClock(clock func() time.Time) Option {
	return func(c *Cache) {
		if clock != nil {
			c.now = clock
		}
	}
}

// New constructs a cache over the upstream API and hydrates it from the
// durable store. Store failures during hydration are logged and leave the
// cache cold; they never fail construction.
func New(ctx context.Context, upstream source.API, opts ...Option) (*Cache, error) {
	if upstream == nil {
		return nil, ErrUpstreamRequired
	}

	c := &Cache{
		upstream:    upstream,
		store:       NewMemoryStore(),
		logger:      logging.NoOp(),
		now:         time.Now,
		collections: make(map[string]*source.Collection),
		queries:     make(map[string]*source.ResultPage),
		nodes:       make(map[string]*source.Node),
		listings:    make(map[string]*source.ResultPage),
		validity:    make(map[string]*ValidityRecord),
		parents:     make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.hydrate(ctx)
	return c, nil
}

// hydrate loads durable state. Metadata from an older format is migrated and
// rewritten; newer or corrupt metadata purges the store and starts cold.
func (c *Cache) hydrate(ctx context.Context) {
	raw, err := c.store.LoadMetadata(ctx)
	if err != nil {
		c.logger.Warn("fetchcache.metadata.load_failed", "error", err)
		return
	}
	if len(raw) == 0 {
		return
	}

	var envelope struct {
		FormatVersion int `json:"format_version"`
	}
	_ = json.Unmarshal(raw, &envelope)

	meta, err := DecodeMetadata(raw)
	if err != nil {
		c.logger.Warn("fetchcache.metadata.rejected", "format_version", envelope.FormatVersion, "error", err)
		if purgeErr := c.store.Purge(ctx); purgeErr != nil {
			c.logger.Warn("fetchcache.store.purge_failed", "error", purgeErr)
		}
		return
	}

	c.mu.Lock()
	for nodeID, record := range meta.Validity {
		c.validity[nodeID] = &ValidityRecord{
			ObservedEditTime: record.ObservedEditTime,
			CachedAsOfTime:   record.CachedAsOfTime,
		}
	}
	for child, parent := range meta.ParentIndex {
		c.parents[child] = parent
	}
	if envelope.FormatVersion != FormatVersion {
		c.logger.Info("fetchcache.metadata.migrated", "from", envelope.FormatVersion, "to", FormatVersion)
		c.metadataDirty = true
		c.flushMetadataLocked(ctx)
	}
	c.mu.Unlock()

	records, err := c.store.LoadListings(ctx)
	if err != nil {
		c.logger.Warn("fetchcache.listings.load_failed", "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	loaded := 0
	for _, record := range records {
		page, decodeErr := decodeResultPage(record.Payload)
		if decodeErr != nil {
			c.logger.Warn("fetchcache.listing.decode_failed", "node_id", record.NodeID, "error", decodeErr)
			continue
		}
		c.listings[cacheKey(record.NodeID, record.Cursor)] = page
		loaded++
	}
	if loaded > 0 {
		c.logger.Debug("fetchcache.hydrated", "listings", loaded, "tracked_nodes", len(c.validity))
	}
}

// RetrieveCollection memoizes collection descriptors for the process
// lifetime. Descriptors are never persisted.
func (c *Cache) RetrieveCollection(ctx context.Context, collectionID string) (*source.Collection, error) {
	c.mu.Lock()
	if cached, ok := c.collections[collectionID]; ok {
		c.mu.Unlock()
		return cached.Clone(), nil
	}
	c.mu.Unlock()

	collection, err := c.upstream.RetrieveCollection(ctx, collectionID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.collections[collectionID] = collection.Clone()
	c.mu.Unlock()
	return collection, nil
}

// QueryCollection memoizes result pages per (collection, cursor) for a single
// run and records the edit time of every returned node. Query results are
// never persisted; each run re-queries so edit times stay fresh.
func (c *Cache) QueryCollection(ctx context.Context, collectionID string, cursor string) (*source.ResultPage, error) {
	key := cacheKey(collectionID, cursor)

	c.mu.Lock()
	if cached, ok := c.queries[key]; ok {
		c.mu.Unlock()
		return cached.Clone(), nil
	}
	c.mu.Unlock()

	page, err := c.upstream.QueryCollection(ctx, collectionID, cursor)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.queries[key] = page.Clone()
	for _, node := range page.Results {
		c.observeEditTimeLocked(node)
	}
	c.flushMetadataLocked(ctx)
	c.mu.Unlock()
	return page, nil
}

// RetrieveNode memoizes single nodes for the process lifetime.
func (c *Cache) RetrieveNode(ctx context.Context, nodeID string) (*source.Node, error) {
	c.mu.Lock()
	if cached, ok := c.nodes[nodeID]; ok {
		c.mu.Unlock()
		return cached.Clone(), nil
	}
	c.mu.Unlock()

	node, err := c.upstream.RetrieveNode(ctx, nodeID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.nodes[nodeID] = node.Clone()
	c.observeEditTimeLocked(node)
	c.flushMetadataLocked(ctx)
	c.mu.Unlock()
	return node, nil
}

// ListChildren serves a node's cached child listing when the governing
// validity record holds, and refetches otherwise. A stale record drops every
// cached cursor page for the node before the fresh page is stored, so cached
// state is always replaced whole, never merged.
func (c *Cache) ListChildren(ctx context.Context, nodeID string, cursor string) (*source.ResultPage, error) {
	if nodeID == "" {
		return nil, ErrNodeIDRequired
	}
	key := cacheKey(nodeID, cursor)

	c.mu.Lock()
	anchor := c.anchorForLocked(nodeID)
	valid := c.validity[anchor].Valid()
	if valid {
		if cached, ok := c.listings[key]; ok {
			c.mu.Unlock()
			return cached.Clone(), nil
		}
	}
	c.mu.Unlock()

	page, err := c.upstream.ListChildren(ctx, nodeID, cursor)
	if err != nil {
		return nil, err
	}

	logger := logging.WithNodeContext(c.logger, nodeID, cursor)

	c.mu.Lock()
	if !valid {
		c.dropListingsLocked(nodeID)
		if deleteErr := c.store.DeleteListings(ctx, []string{nodeID}); deleteErr != nil {
			logger.Warn("fetchcache.store.delete_failed", "error", deleteErr)
		}
	}
	c.listings[key] = page.Clone()
	c.indexChildrenLocked(nodeID, page)
	c.recordCachedAsOfLocked(anchor)

	if payload, encodeErr := encodeResultPage(page); encodeErr != nil {
		logger.Error("fetchcache.listing.encode_failed", "error", encodeErr)
	} else if saveErr := c.store.SaveListing(ctx, Listing{NodeID: nodeID, Cursor: cursor, Payload: payload}); saveErr != nil {
		logger.Warn("fetchcache.store.save_failed", "error", saveErr)
	}
	c.flushMetadataLocked(ctx)
	c.mu.Unlock()
	return page, nil
}

// PurgeAll discards every cached record, in memory and durable. It is
// best-effort and always succeeds; store failures are logged.
func (c *Cache) PurgeAll(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.collections = make(map[string]*source.Collection)
	c.queries = make(map[string]*source.ResultPage)
	c.nodes = make(map[string]*source.Node)
	c.listings = make(map[string]*source.ResultPage)
	c.validity = make(map[string]*ValidityRecord)
	c.parents = make(map[string]string)
	c.metadataDirty = false

	if err := c.store.Purge(ctx); err != nil {
		c.logger.Warn("fetchcache.store.purge_failed", "error", err)
	}
	c.logger.Info("fetchcache.purge.all")
}

// PurgeSubtree discards the node's cached records along with those of every
// transitive descendant known to the parent index. Records outside the
// subtree are untouched. Purging a node the cache has never seen removes
// nothing and is not an error.
func (c *Cache) PurgeSubtree(ctx context.Context, nodeID string) error {
	if nodeID == "" {
		return ErrNodeIDRequired
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	purged := c.subtreeLocked(nodeID)
	for id := range purged {
		delete(c.validity, id)
		delete(c.parents, id)
		delete(c.nodes, id)
		c.dropListingsLocked(id)
	}
	c.metadataDirty = true

	ids := make([]string, 0, len(purged))
	for id := range purged {
		ids = append(ids, id)
	}
	if err := c.store.DeleteListings(ctx, ids); err != nil {
		c.logger.Warn("fetchcache.store.delete_failed", "node_id", nodeID, "error", err)
	}
	c.flushMetadataLocked(ctx)

	c.logger.Info("fetchcache.purge.subtree", "node_id", nodeID, "purged", len(purged))
	return nil
}

// Stats reports the current in-memory population.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Collections:  len(c.collections),
		Nodes:        len(c.nodes),
		Listings:     len(c.listings),
		TrackedNodes: len(c.validity),
	}
}

// Close flushes pending metadata and releases the durable store.
func (c *Cache) Close() error {
	c.mu.Lock()
	c.metadataDirty = true
	c.flushMetadataLocked(context.Background())
	c.mu.Unlock()
	return c.store.Close()
}

// anchorForLocked walks the parent index upward from the node until it finds
// an ancestor with an observed edit time. The walk carries a visited set so a
// corrupted index cannot loop; on a repeat it stops at the last node before
// the cycle. Nodes with no tracked ancestor anchor on themselves.
func (c *Cache) anchorForLocked(nodeID string) string {
	current := nodeID
	visited := map[string]struct{}{current: {}}
	for {
		if record := c.validity[current]; record != nil && !record.ObservedEditTime.IsZero() {
			return current
		}
		parent, ok := c.parents[current]
		if !ok {
			return current
		}
		if _, seen := visited[parent]; seen {
			return current
		}
		visited[parent] = struct{}{}
		current = parent
	}
}

func (c *Cache) observeEditTimeLocked(node *source.Node) {
	if node == nil || node.ID == "" || node.EditedAt.IsZero() {
		return
	}
	record := c.validity[node.ID]
	if record == nil {
		record = &ValidityRecord{}
		c.validity[node.ID] = record
	}
	if !record.ObservedEditTime.Equal(node.EditedAt) {
		record.ObservedEditTime = node.EditedAt
		c.metadataDirty = true
	}
}

// recordCachedAsOfLocked pins the anchor's cached-as-of time to its observed
// edit time after a fresh fetch. Anchors that have never been observed stay
// unpinned so their listings remain misses until an edit time arrives.
func (c *Cache) recordCachedAsOfLocked(anchor string) {
	record := c.validity[anchor]
	if record == nil || record.ObservedEditTime.IsZero() {
		return
	}
	if !record.CachedAsOfTime.Equal(record.ObservedEditTime) {
		record.CachedAsOfTime = record.ObservedEditTime
		c.metadataDirty = true
	}
}

// indexChildrenLocked records parent links and edit times for listed children
// that can themselves have listings.
func (c *Cache) indexChildrenLocked(parent string, page *source.ResultPage) {
	for _, node := range page.Results {
		if node == nil || node.ID == "" || !node.HasChildren {
			continue
		}
		if c.parents[node.ID] != parent {
			c.parents[node.ID] = parent
			c.metadataDirty = true
		}
		c.observeEditTimeLocked(node)
	}
}

func (c *Cache) dropListingsLocked(nodeID string) {
	prefix := nodeID + keySeparator
	for key := range c.listings {
		if strings.HasPrefix(key, prefix) {
			delete(c.listings, key)
		}
	}
}

// subtreeLocked collects the node and every transitive descendant recorded in
// the parent index.
func (c *Cache) subtreeLocked(nodeID string) map[string]struct{} {
	children := make(map[string][]string, len(c.parents))
	for child, parent := range c.parents {
		children[parent] = append(children[parent], child)
	}

	set := map[string]struct{}{nodeID: {}}
	queue := []string{nodeID}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, child := range children[current] {
			if _, seen := set[child]; seen {
				continue
			}
			set[child] = struct{}{}
			queue = append(queue, child)
		}
	}
	return set
}

func (c *Cache) flushMetadataLocked(ctx context.Context) {
	if !c.metadataDirty {
		return
	}
	meta := &Metadata{
		FormatVersion: FormatVersion,
		SavedAt:       c.now().UTC(),
		Validity:      make(map[string]*ValidityRecord, len(c.validity)),
		ParentIndex:   make(map[string]string, len(c.parents)),
	}
	for nodeID, record := range c.validity {
		meta.Validity[nodeID] = &ValidityRecord{
			ObservedEditTime: record.ObservedEditTime,
			CachedAsOfTime:   record.CachedAsOfTime,
		}
	}
	for child, parent := range c.parents {
		meta.ParentIndex[child] = parent
	}

	encoded, err := EncodeMetadata(meta)
	if err != nil {
		c.logger.Error("fetchcache.metadata.encode_failed", "error", err)
		return
	}
	if err := c.store.SaveMetadata(ctx, encoded); err != nil {
		c.logger.Warn("fetchcache.store.metadata_save_failed", "error", err)
		return
	}
	c.metadataDirty = false
}

func cacheKey(id, cursor string) string {
	return id + keySeparator + cursor
}
