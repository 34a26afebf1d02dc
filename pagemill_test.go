package pagemill_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pagemill/pagemill"
	"github.com/pagemill/pagemill/source"
)

type countingAPI struct {
	queries      map[string]*source.ResultPage
	listings     map[string]*source.ResultPage
	queryCalls   atomic.Int64
	listingCalls atomic.Int64
}

func newCountingAPI() *countingAPI {
	return &countingAPI{
		queries:  map[string]*source.ResultPage{},
		listings: map[string]*source.ResultPage{},
	}
}

func key(id, cursor string) string { return id + "|" + cursor }

func (a *countingAPI) RetrieveCollection(ctx context.Context, id string) (*source.Collection, error) {
	return &source.Collection{ID: id, Title: "Docs"}, nil
}

func (a *countingAPI) QueryCollection(ctx context.Context, id, cursor string) (*source.ResultPage, error) {
	a.queryCalls.Add(1)
	page, ok := a.queries[key(id, cursor)]
	if !ok {
		return nil, source.ErrNotFound
	}
	return page.Clone(), nil
}

func (a *countingAPI) ListChildren(ctx context.Context, nodeID, cursor string) (*source.ResultPage, error) {
	a.listingCalls.Add(1)
	page, ok := a.listings[key(nodeID, cursor)]
	if !ok {
		return &source.ResultPage{}, nil
	}
	return page.Clone(), nil
}

func (a *countingAPI) RetrieveNode(ctx context.Context, nodeID string) (*source.Node, error) {
	return nil, source.ErrNotFound
}

func seed(api *countingAPI) {
	edited := time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)
	api.queries[key("docs", "")] = &source.ResultPage{
		Results: []*source.Node{
			{
				ID: "guide", Kind: source.KindPage, Title: "Guide", HasChildren: true,
				EditedAt:   edited,
				Properties: map[string]any{"title": "Guide"},
			},
			{
				ID: "setup", Kind: source.KindPage, Title: "Setup",
				EditedAt:   edited,
				Properties: map[string]any{"title": "Setup", "parent": "guide"},
			},
		},
	}
	api.listings[key("guide", "")] = &source.ResultPage{
		Results: []*source.Node{
			{ID: "b1", Kind: source.KindParagraph, Text: "welcome"},
		},
	}
}

func testConfig(t *testing.T) pagemill.Config {
	t.Helper()
	cfg := pagemill.DefaultConfig()
	cfg.Source.CollectionID = "docs"
	cfg.Source.RelationProperty = "parent"
	cfg.Hierarchy.Mode = pagemill.ModeRelation
	cfg.Cache.Store = pagemill.StoreMemory
	cfg.Export.OutputDir = t.TempDir()
	cfg.Logging.Provider = "noop"
	return cfg
}

func TestModuleExportEndToEnd(t *testing.T) {
	api := newCountingAPI()
	seed(api)

	module, err := pagemill.New(context.Background(), testConfig(t), pagemill.WithUpstream(api))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer module.Close()

	report, err := module.Export(context.Background())
	if err != nil {
		t.Fatalf("Export returned error: %v", err)
	}
	if report.Exported != 2 || report.Failed != 0 {
		t.Fatalf("report = %+v", report)
	}

	out := module.Request().OutputDir
	data, err := os.ReadFile(filepath.Join(out, "guide", "index.md"))
	if err != nil {
		t.Fatalf("hierarchy output missing: %v", err)
	}
	if !strings.Contains(string(data), "welcome") {
		t.Fatalf("rendered body missing block text: %q", data)
	}
	if _, err := os.Stat(filepath.Join(out, "guide", "setup.md")); err != nil {
		t.Fatalf("child output missing: %v", err)
	}

	// The second run reads through the cache and leaves the files alone.
	queriesAfterFirst := api.queryCalls.Load()
	listingsAfterFirst := api.listingCalls.Load()
	second, err := module.Export(context.Background())
	if err != nil {
		t.Fatalf("second Export returned error: %v", err)
	}
	if second.Skipped != 2 || second.Exported != 0 {
		t.Fatalf("second report = %+v", second)
	}
	if got := api.queryCalls.Load(); got != queriesAfterFirst {
		t.Fatalf("second export hit upstream: %d -> %d query calls", queriesAfterFirst, got)
	}
	if got := api.listingCalls.Load(); got != listingsAfterFirst {
		t.Fatalf("second export refetched listings: %d -> %d", listingsAfterFirst, got)
	}

	stats := module.CacheStats()
	if stats.Listings == 0 {
		t.Fatalf("cache stats empty after export: %+v", stats)
	}

	// Purging forces the next run back to the upstream.
	module.PurgeCache(context.Background())
	if _, err := module.Export(context.Background()); err != nil {
		t.Fatalf("post-purge Export returned error: %v", err)
	}
	if got := api.queryCalls.Load(); got == queriesAfterFirst {
		t.Fatalf("purge did not invalidate cached queries")
	}
}

func TestModulePurgeSubtree(t *testing.T) {
	api := newCountingAPI()
	seed(api)

	module, err := pagemill.New(context.Background(), testConfig(t), pagemill.WithUpstream(api))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer module.Close()

	if _, err := module.Export(context.Background()); err != nil {
		t.Fatalf("Export returned error: %v", err)
	}
	listingsAfterFirst := api.listingCalls.Load()

	if err := module.PurgeSubtree(context.Background(), "guide"); err != nil {
		t.Fatalf("PurgeSubtree returned error: %v", err)
	}
	if _, err := module.BuildPages(context.Background()); err != nil {
		t.Fatalf("BuildPages returned error: %v", err)
	}
	if got := api.listingCalls.Load(); got == listingsAfterFirst {
		t.Fatalf("subtree purge did not refetch the node's blocks")
	}
}

func TestNewRejectsMissingUpstream(t *testing.T) {
	_, err := pagemill.New(context.Background(), testConfig(t))
	if !errors.Is(err, pagemill.ErrUpstreamRequired) {
		t.Fatalf("expected ErrUpstreamRequired, got %v", err)
	}
}

func TestNewValidatesConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Source.CollectionID = ""
	_, err := pagemill.New(context.Background(), cfg, pagemill.WithUpstream(newCountingAPI()))
	if !errors.Is(err, pagemill.ErrCollectionIDRequired) {
		t.Fatalf("expected ErrCollectionIDRequired, got %v", err)
	}
}
