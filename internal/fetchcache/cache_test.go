package fetchcache_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/pagemill/pagemill/internal/fetchcache"
	"github.com/pagemill/pagemill/source"
)

var (
	t1 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	t2 = time.Date(2024, 5, 2, 9, 30, 0, 0, time.UTC)
)

type fakeUpstream struct {
	collections map[string]*source.Collection
	queries     map[string]*source.ResultPage
	listings    map[string]*source.ResultPage
	nodes       map[string]*source.Node

	collectionCalls int
	queryCalls      int
	listCalls       int
	retrieveCalls   int

	err error
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{
		collections: map[string]*source.Collection{},
		queries:     map[string]*source.ResultPage{},
		listings:    map[string]*source.ResultPage{},
		nodes:       map[string]*source.Node{},
	}
}

func fakeKey(id, cursor string) string { return id + "|" + cursor }

func (f *fakeUpstream) RetrieveCollection(ctx context.Context, id string) (*source.Collection, error) {
	f.collectionCalls++
	if f.err != nil {
		return nil, f.err
	}
	collection, ok := f.collections[id]
	if !ok {
		return nil, source.ErrNotFound
	}
	return collection.Clone(), nil
}

func (f *fakeUpstream) QueryCollection(ctx context.Context, id, cursor string) (*source.ResultPage, error) {
	f.queryCalls++
	if f.err != nil {
		return nil, f.err
	}
	page, ok := f.queries[fakeKey(id, cursor)]
	if !ok {
		return nil, source.ErrNotFound
	}
	return page.Clone(), nil
}

func (f *fakeUpstream) ListChildren(ctx context.Context, nodeID, cursor string) (*source.ResultPage, error) {
	f.listCalls++
	if f.err != nil {
		return nil, f.err
	}
	page, ok := f.listings[fakeKey(nodeID, cursor)]
	if !ok {
		return nil, source.ErrNotFound
	}
	return page.Clone(), nil
}

func (f *fakeUpstream) RetrieveNode(ctx context.Context, nodeID string) (*source.Node, error) {
	f.retrieveCalls++
	if f.err != nil {
		return nil, f.err
	}
	node, ok := f.nodes[nodeID]
	if !ok {
		return nil, source.ErrNotFound
	}
	return node.Clone(), nil
}

// seedPage registers a collection row for the page and a single-page child
// listing of its blocks.
func (f *fakeUpstream) seedPage(pageID string, edited time.Time, blocks ...*source.Node) {
	existing := f.queries[fakeKey("col", "")]
	if existing == nil {
		existing = &source.ResultPage{}
		f.queries[fakeKey("col", "")] = existing
	}
	replaced := false
	for i, node := range existing.Results {
		if node.ID == pageID {
			existing.Results[i] = &source.Node{ID: pageID, Kind: source.KindPage, EditedAt: edited, HasChildren: true}
			replaced = true
		}
	}
	if !replaced {
		existing.Results = append(existing.Results, &source.Node{ID: pageID, Kind: source.KindPage, EditedAt: edited, HasChildren: true})
	}
	f.listings[fakeKey(pageID, "")] = &source.ResultPage{Results: blocks}
}

func block(id string, hasChildren bool) *source.Node {
	return &source.Node{ID: id, Kind: source.KindParagraph, Text: "text " + id, HasChildren: hasChildren}
}

func mustQuery(t *testing.T, cache *fetchcache.Cache, collectionID string) {
	t.Helper()
	if _, err := cache.QueryCollection(context.Background(), collectionID, ""); err != nil {
		t.Fatalf("QueryCollection returned error: %v", err)
	}
}

func mustList(t *testing.T, cache *fetchcache.Cache, nodeID string) *source.ResultPage {
	t.Helper()
	page, err := cache.ListChildren(context.Background(), nodeID, "")
	if err != nil {
		t.Fatalf("ListChildren(%s) returned error: %v", nodeID, err)
	}
	return page
}

func TestListChildrenServesCacheWhileEditTimeUnchanged(t *testing.T) {
	upstream := newFakeUpstream()
	upstream.seedPage("page-1", t1, block("b1", false), block("b2", false))

	cache, err := fetchcache.New(context.Background(), upstream)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	mustQuery(t, cache, "col")
	first := mustList(t, cache, "page-1")
	if len(first.Results) != 2 {
		t.Fatalf("expected 2 children, got %d", len(first.Results))
	}
	if upstream.listCalls != 1 {
		t.Fatalf("expected 1 upstream listing fetch, got %d", upstream.listCalls)
	}

	second := mustList(t, cache, "page-1")
	if upstream.listCalls != 1 {
		t.Fatalf("expected cached listing to serve without refetch, got %d fetches", upstream.listCalls)
	}
	if len(second.Results) != 2 || second.Results[0].ID != "b1" {
		t.Fatalf("expected cached results, got %+v", second.Results)
	}
}

func TestListChildrenRefetchesWhenEditTimeMoves(t *testing.T) {
	upstream := newFakeUpstream()
	upstream.seedPage("page-1", t1, block("b1", false))
	store := fetchcache.NewMemoryStore()

	first, err := fetchcache.New(context.Background(), upstream, fetchcache.WithStore(store))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	mustQuery(t, first, "col")
	mustList(t, first, "page-1")

	// Next run observes a newer edit time for the page.
	upstream.seedPage("page-1", t2, block("b1", false), block("b3", false))

	second, err := fetchcache.New(context.Background(), upstream, fetchcache.WithStore(store))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	mustQuery(t, second, "col")

	listCallsBefore := upstream.listCalls
	page := mustList(t, second, "page-1")
	if upstream.listCalls != listCallsBefore+1 {
		t.Fatalf("expected stale listing to refetch, got %d extra fetches", upstream.listCalls-listCallsBefore)
	}
	if len(page.Results) != 2 {
		t.Fatalf("expected refreshed listing with 2 children, got %d", len(page.Results))
	}
}

func TestListChildrenServesAcrossRunsFromStore(t *testing.T) {
	upstream := newFakeUpstream()
	upstream.seedPage("page-1", t1, block("b1", false))
	store := fetchcache.NewMemoryStore()

	first, err := fetchcache.New(context.Background(), upstream, fetchcache.WithStore(store))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	mustQuery(t, first, "col")
	mustList(t, first, "page-1")

	second, err := fetchcache.New(context.Background(), upstream, fetchcache.WithStore(store))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	mustQuery(t, second, "col")

	listCallsBefore := upstream.listCalls
	page := mustList(t, second, "page-1")
	if upstream.listCalls != listCallsBefore {
		t.Fatalf("expected listing served from durable store, got %d extra fetches", upstream.listCalls-listCallsBefore)
	}
	if len(page.Results) != 1 || page.Results[0].ID != "b1" {
		t.Fatalf("expected persisted listing content, got %+v", page.Results)
	}
}

func TestNestedListingsAnchorOnNearestTrackedAncestor(t *testing.T) {
	upstream := newFakeUpstream()
	// Block b1 can have children but reports no edit time of its own, so its
	// listing validity hangs off the containing page.
	upstream.seedPage("page-1", t1, block("b1", true))
	upstream.listings[fakeKey("b1", "")] = &source.ResultPage{Results: []*source.Node{block("b2", false)}}
	store := fetchcache.NewMemoryStore()

	first, err := fetchcache.New(context.Background(), upstream, fetchcache.WithStore(store))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	mustQuery(t, first, "col")
	mustList(t, first, "page-1")
	mustList(t, first, "b1")

	// Unchanged page: both listings serve from cache in a fresh run.
	second, err := fetchcache.New(context.Background(), upstream, fetchcache.WithStore(store))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	mustQuery(t, second, "col")
	before := upstream.listCalls
	mustList(t, second, "page-1")
	mustList(t, second, "b1")
	if upstream.listCalls != before {
		t.Fatalf("expected nested listing hits, got %d extra fetches", upstream.listCalls-before)
	}

	// Edited page invalidates the nested block listing through the anchor.
	upstream.seedPage("page-1", t2, block("b1", true))

	third, err := fetchcache.New(context.Background(), upstream, fetchcache.WithStore(store))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	mustQuery(t, third, "col")
	before = upstream.listCalls
	mustList(t, third, "b1")
	if upstream.listCalls != before+1 {
		t.Fatalf("expected nested listing to refetch after page edit, got %d extra fetches", upstream.listCalls-before)
	}
}

func TestParentWalkSurvivesCorruptedIndexCycle(t *testing.T) {
	store := fetchcache.NewMemoryStore()
	raw, err := json.Marshal(map[string]any{
		"format_version": fetchcache.FormatVersion,
		"validity":       map[string]any{},
		"parent_index":   map[string]string{"a": "b", "b": "a"},
	})
	if err != nil {
		t.Fatalf("marshal metadata: %v", err)
	}
	if err := store.SaveMetadata(context.Background(), raw); err != nil {
		t.Fatalf("seed metadata: %v", err)
	}

	upstream := newFakeUpstream()
	upstream.listings[fakeKey("a", "")] = &source.ResultPage{Results: []*source.Node{block("c", false)}}

	cache, err := fetchcache.New(context.Background(), upstream, fetchcache.WithStore(store))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	page := mustList(t, cache, "a")
	if len(page.Results) != 1 {
		t.Fatalf("expected listing fetched despite cycle, got %+v", page.Results)
	}
	if upstream.listCalls != 1 {
		t.Fatalf("expected exactly one fetch, got %d", upstream.listCalls)
	}
}

func TestQueryCollectionMemoizedPerRun(t *testing.T) {
	upstream := newFakeUpstream()
	upstream.seedPage("page-1", t1)

	cache, err := fetchcache.New(context.Background(), upstream)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	mustQuery(t, cache, "col")
	mustQuery(t, cache, "col")
	if upstream.queryCalls != 1 {
		t.Fatalf("expected query memoized within run, got %d calls", upstream.queryCalls)
	}
}

func TestQueryCollectionNotPersistedAcrossRuns(t *testing.T) {
	upstream := newFakeUpstream()
	upstream.seedPage("page-1", t1)
	store := fetchcache.NewMemoryStore()

	first, err := fetchcache.New(context.Background(), upstream, fetchcache.WithStore(store))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	mustQuery(t, first, "col")

	second, err := fetchcache.New(context.Background(), upstream, fetchcache.WithStore(store))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	mustQuery(t, second, "col")
	if upstream.queryCalls != 2 {
		t.Fatalf("expected each run to query upstream, got %d calls", upstream.queryCalls)
	}
}

func TestRetrieveNodeAndCollectionMemoized(t *testing.T) {
	upstream := newFakeUpstream()
	upstream.collections["col"] = &source.Collection{ID: "col", Title: "Docs", EditedAt: t1}
	upstream.nodes["page-1"] = &source.Node{ID: "page-1", Kind: source.KindPage, EditedAt: t1}

	cache, err := fetchcache.New(context.Background(), upstream)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := cache.RetrieveCollection(ctx, "col"); err != nil {
			t.Fatalf("RetrieveCollection returned error: %v", err)
		}
		if _, err := cache.RetrieveNode(ctx, "page-1"); err != nil {
			t.Fatalf("RetrieveNode returned error: %v", err)
		}
	}
	if upstream.collectionCalls != 1 || upstream.retrieveCalls != 1 {
		t.Fatalf("expected single upstream call each, got collection=%d node=%d", upstream.collectionCalls, upstream.retrieveCalls)
	}
}

func TestUpstreamErrorsPropagateUnchanged(t *testing.T) {
	upstream := newFakeUpstream()
	wantErr := errors.New("rate limited")
	upstream.err = wantErr

	cache, err := fetchcache.New(context.Background(), upstream)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	if _, err := cache.ListChildren(context.Background(), "page-1", ""); !errors.Is(err, wantErr) {
		t.Fatalf("expected upstream error to propagate, got %v", err)
	}
	if _, err := cache.QueryCollection(context.Background(), "col", ""); !errors.Is(err, wantErr) {
		t.Fatalf("expected upstream error to propagate, got %v", err)
	}

	// Nothing was cached by the failed calls.
	upstream.err = nil
	upstream.seedPage("page-1", t1, block("b1", false))
	mustQuery(t, cache, "col")
	mustList(t, cache, "page-1")
	if upstream.listCalls != 2 {
		t.Fatalf("expected failed call to leave no cache entry, got %d list calls", upstream.listCalls)
	}
}

func TestPurgeSubtreeRemovesOnlyDescendants(t *testing.T) {
	upstream := newFakeUpstream()
	upstream.seedPage("page-1", t1, block("b1", true))
	upstream.seedPage("page-2", t1, block("b2", false))
	upstream.listings[fakeKey("b1", "")] = &source.ResultPage{Results: []*source.Node{block("b1-child", false)}}
	store := fetchcache.NewMemoryStore()

	cache, err := fetchcache.New(context.Background(), upstream, fetchcache.WithStore(store))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	mustQuery(t, cache, "col")
	mustList(t, cache, "page-1")
	mustList(t, cache, "page-2")
	mustList(t, cache, "b1")

	if err := cache.PurgeSubtree(context.Background(), "page-1"); err != nil {
		t.Fatalf("PurgeSubtree returned error: %v", err)
	}

	// Exactly the page and its nested block were dropped from the store.
	listings, err := store.LoadListings(context.Background())
	if err != nil {
		t.Fatalf("LoadListings returned error: %v", err)
	}
	if len(listings) != 1 || listings[0].NodeID != "page-2" {
		t.Fatalf("expected only the sibling's listing to remain, got %+v", listings)
	}

	// The sibling page still serves from cache.
	before := upstream.listCalls
	mustList(t, cache, "page-2")
	if upstream.listCalls != before {
		t.Fatalf("expected sibling cache intact, got %d extra fetches", upstream.listCalls-before)
	}

	// The purged page and its nested block both refetch.
	mustList(t, cache, "page-1")
	mustList(t, cache, "b1")
	if upstream.listCalls != before+2 {
		t.Fatalf("expected purged subtree to refetch, got %d extra fetches", upstream.listCalls-before)
	}
}

func TestPurgeSubtreeUnknownNodeIsHarmless(t *testing.T) {
	upstream := newFakeUpstream()
	upstream.seedPage("page-1", t1, block("b1", false))

	cache, err := fetchcache.New(context.Background(), upstream)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	mustQuery(t, cache, "col")
	mustList(t, cache, "page-1")

	if err := cache.PurgeSubtree(context.Background(), "never-seen"); err != nil {
		t.Fatalf("PurgeSubtree returned error: %v", err)
	}

	before := upstream.listCalls
	mustList(t, cache, "page-1")
	if upstream.listCalls != before {
		t.Fatalf("expected unrelated cache intact, got %d extra fetches", upstream.listCalls-before)
	}
}

func TestPurgeAllDropsEverything(t *testing.T) {
	upstream := newFakeUpstream()
	upstream.seedPage("page-1", t1, block("b1", false))
	upstream.collections["col"] = &source.Collection{ID: "col", EditedAt: t1}
	store := fetchcache.NewMemoryStore()

	cache, err := fetchcache.New(context.Background(), upstream, fetchcache.WithStore(store))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	ctx := context.Background()
	if _, err := cache.RetrieveCollection(ctx, "col"); err != nil {
		t.Fatalf("RetrieveCollection returned error: %v", err)
	}
	mustQuery(t, cache, "col")
	mustList(t, cache, "page-1")

	cache.PurgeAll(ctx)

	stats := cache.Stats()
	if stats.Collections != 0 || stats.Listings != 0 || stats.TrackedNodes != 0 || stats.Nodes != 0 {
		t.Fatalf("expected empty cache after purge, got %+v", stats)
	}
	if raw, err := store.LoadMetadata(ctx); err != nil || raw != nil {
		t.Fatalf("expected purged store metadata, got %v bytes err=%v", raw, err)
	}

	mustQuery(t, cache, "col")
	mustList(t, cache, "page-1")
	if upstream.listCalls != 2 {
		t.Fatalf("expected refetch after purge, got %d list calls", upstream.listCalls)
	}
}

type failingStore struct{ err error }

func (f *failingStore) LoadMetadata(context.Context) ([]byte, error)      { return nil, f.err }
func (f *failingStore) SaveMetadata(context.Context, []byte) error        { return f.err }
func (f *failingStore) LoadListings(context.Context) ([]fetchcache.Listing, error) {
	return nil, f.err
}
func (f *failingStore) SaveListing(context.Context, fetchcache.Listing) error { return f.err }
func (f *failingStore) DeleteListings(context.Context, []string) error        { return f.err }
func (f *failingStore) Purge(context.Context) error                           { return f.err }
func (f *failingStore) Close() error                                          { return f.err }

func TestStoreFailuresDegradeToFetching(t *testing.T) {
	upstream := newFakeUpstream()
	upstream.seedPage("page-1", t1, block("b1", false))

	cache, err := fetchcache.New(context.Background(), upstream,
		fetchcache.WithStore(&failingStore{err: errors.New("disk gone")}))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	mustQuery(t, cache, "col")
	page := mustList(t, cache, "page-1")
	if len(page.Results) != 1 {
		t.Fatalf("expected listing despite store failures, got %+v", page.Results)
	}

	// In-memory caching still works within the run.
	before := upstream.listCalls
	mustList(t, cache, "page-1")
	if upstream.listCalls != before {
		t.Fatalf("expected in-memory hit despite store failures, got %d extra fetches", upstream.listCalls-before)
	}
}

func TestHydrateMigratesOlderMetadataFormat(t *testing.T) {
	store := fetchcache.NewMemoryStore()
	ctx := context.Background()

	v1 := map[string]any{
		"format_version":     1,
		"observed_times":     map[string]any{"page-1": t1.Format(time.RFC3339Nano)},
		"cached_as_of_times": map[string]any{"page-1": t1.Format(time.RFC3339Nano)},
		"child_index":        map[string][]string{"page-1": {"b1"}},
	}
	raw, err := json.Marshal(v1)
	if err != nil {
		t.Fatalf("marshal v1 metadata: %v", err)
	}
	if err := store.SaveMetadata(ctx, raw); err != nil {
		t.Fatalf("seed metadata: %v", err)
	}

	listing, err := json.Marshal(map[string]any{
		"results": []map[string]any{{"id": "b1", "kind": "paragraph", "created_at": t1, "edited_at": time.Time{}}},
	})
	if err != nil {
		t.Fatalf("marshal listing: %v", err)
	}
	if err := store.SaveListing(ctx, fetchcache.Listing{NodeID: "page-1", Payload: listing}); err != nil {
		t.Fatalf("seed listing: %v", err)
	}

	upstream := newFakeUpstream()
	cache, err := fetchcache.New(ctx, upstream, fetchcache.WithStore(store))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	// Validity survived the migration: the listing serves without network.
	page := mustList(t, cache, "page-1")
	if upstream.listCalls != 0 {
		t.Fatalf("expected migrated validity to serve listing, got %d fetches", upstream.listCalls)
	}
	if len(page.Results) != 1 || page.Results[0].ID != "b1" {
		t.Fatalf("expected persisted listing content, got %+v", page.Results)
	}

	// The rewritten metadata is current-format with the index inverted.
	rewritten, err := store.LoadMetadata(ctx)
	if err != nil {
		t.Fatalf("LoadMetadata returned error: %v", err)
	}
	meta, err := fetchcache.DecodeMetadata(rewritten)
	if err != nil {
		t.Fatalf("DecodeMetadata returned error: %v", err)
	}
	if meta.ParentIndex["b1"] != "page-1" {
		t.Fatalf("expected parent index preserved through migration, got %+v", meta.ParentIndex)
	}
	record := meta.Validity["page-1"]
	if record == nil || !record.ObservedEditTime.Equal(t1) || !record.CachedAsOfTime.Equal(t1) {
		t.Fatalf("expected timestamps preserved through migration, got %+v", record)
	}
}

func TestHydratePurgesNewerMetadataFormat(t *testing.T) {
	store := fetchcache.NewMemoryStore()
	ctx := context.Background()

	raw, err := json.Marshal(map[string]any{"format_version": fetchcache.FormatVersion + 1})
	if err != nil {
		t.Fatalf("marshal metadata: %v", err)
	}
	if err := store.SaveMetadata(ctx, raw); err != nil {
		t.Fatalf("seed metadata: %v", err)
	}
	if err := store.SaveListing(ctx, fetchcache.Listing{NodeID: "page-1", Payload: []byte(`{"results":[]}`)}); err != nil {
		t.Fatalf("seed listing: %v", err)
	}

	upstream := newFakeUpstream()
	upstream.seedPage("page-1", t1, block("b1", false))

	cache, err := fetchcache.New(ctx, upstream, fetchcache.WithStore(store))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	listings, err := store.LoadListings(ctx)
	if err != nil {
		t.Fatalf("LoadListings returned error: %v", err)
	}
	if len(listings) != 0 {
		t.Fatalf("expected store purged on newer format, got %d listings", len(listings))
	}

	mustQuery(t, cache, "col")
	mustList(t, cache, "page-1")
	if upstream.listCalls != 1 {
		t.Fatalf("expected cold start after purge, got %d list calls", upstream.listCalls)
	}
}

func TestHydratePurgesCorruptMetadata(t *testing.T) {
	store := fetchcache.NewMemoryStore()
	ctx := context.Background()

	if err := store.SaveMetadata(ctx, []byte(`{"format_version": not json`)); err != nil {
		t.Fatalf("seed metadata: %v", err)
	}
	if err := store.SaveListing(ctx, fetchcache.Listing{NodeID: "page-1", Payload: []byte(`{"results":[]}`)}); err != nil {
		t.Fatalf("seed listing: %v", err)
	}

	upstream := newFakeUpstream()
	if _, err := fetchcache.New(ctx, upstream, fetchcache.WithStore(store)); err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	listings, err := store.LoadListings(ctx)
	if err != nil {
		t.Fatalf("LoadListings returned error: %v", err)
	}
	if len(listings) != 0 {
		t.Fatalf("expected store purged on corrupt metadata, got %d listings", len(listings))
	}
}

func TestValidityRecordRequiresExactEquality(t *testing.T) {
	cases := []struct {
		name   string
		record *fetchcache.ValidityRecord
		want   bool
	}{
		{"nil", nil, false},
		{"empty", &fetchcache.ValidityRecord{}, false},
		{"observed only", &fetchcache.ValidityRecord{ObservedEditTime: t1}, false},
		{"cached only", &fetchcache.ValidityRecord{CachedAsOfTime: t1}, false},
		{"mismatch", &fetchcache.ValidityRecord{ObservedEditTime: t2, CachedAsOfTime: t1}, false},
		{"equal", &fetchcache.ValidityRecord{ObservedEditTime: t1, CachedAsOfTime: t1}, true},
		{"equal different zones", &fetchcache.ValidityRecord{
			ObservedEditTime: t1.In(time.FixedZone("X", 3600)),
			CachedAsOfTime:   t1,
		}, true},
	}
	for _, tc := range cases {
		if got := tc.record.Valid(); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}
