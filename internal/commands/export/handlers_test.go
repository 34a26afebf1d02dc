package exportcmd_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	exportcmd "github.com/pagemill/pagemill/internal/commands/export"
	"github.com/pagemill/pagemill/internal/exporter"
	"github.com/pagemill/pagemill/source"
)

type stubAPI struct {
	queries  map[string]*source.ResultPage
	children map[string]*source.ResultPage
}

func (s *stubAPI) RetrieveCollection(ctx context.Context, id string) (*source.Collection, error) {
	return &source.Collection{ID: id}, nil
}

func (s *stubAPI) QueryCollection(ctx context.Context, id, cursor string) (*source.ResultPage, error) {
	page, ok := s.queries[id+"|"+cursor]
	if !ok {
		return nil, source.ErrNotFound
	}
	return page.Clone(), nil
}

func (s *stubAPI) ListChildren(ctx context.Context, nodeID, cursor string) (*source.ResultPage, error) {
	if page, ok := s.children[nodeID+"|"+cursor]; ok {
		return page.Clone(), nil
	}
	return &source.ResultPage{}, nil
}

func (s *stubAPI) RetrieveNode(ctx context.Context, nodeID string) (*source.Node, error) {
	return nil, source.ErrNotFound
}

func TestRunExportHandler(t *testing.T) {
	api := &stubAPI{queries: map[string]*source.ResultPage{
		"col|": {Results: []*source.Node{
			{ID: "p1", Kind: source.KindPage, Title: "Only Page"},
		}},
	}}
	service, err := exporter.New(api)
	if err != nil {
		t.Fatalf("exporter.New returned error: %v", err)
	}

	out := t.TempDir()
	var report *exporter.Report
	handler := exportcmd.NewRunExportHandler(service, nil, func(r *exporter.Report) { report = r })

	err = handler.Execute(context.Background(), exportcmd.RunExportCommand{
		CollectionID: "col",
		OutputDir:    out,
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if report == nil || report.Exported != 1 {
		t.Fatalf("report = %+v", report)
	}
	if _, err := os.Stat(filepath.Join(out, "only-page.md")); err != nil {
		t.Fatalf("exported file missing: %v", err)
	}
}

func TestRunExportHandlerForwardsRenderFlags(t *testing.T) {
	api := &stubAPI{
		queries: map[string]*source.ResultPage{
			"col|": {Results: []*source.Node{
				{ID: "p1", Kind: source.KindPage, Title: "Wrapped", HasChildren: true},
			}},
		},
		children: map[string]*source.ResultPage{
			"p1|": {Results: []*source.Node{
				{ID: "b1", Kind: source.KindParagraph, Text: "line one\nline two"},
			}},
		},
	}
	service, err := exporter.New(api)
	if err != nil {
		t.Fatalf("exporter.New returned error: %v", err)
	}

	out := t.TempDir()
	handler := exportcmd.NewRunExportHandler(service, nil, nil)

	err = handler.Execute(context.Background(), exportcmd.RunExportCommand{
		CollectionID: "col",
		OutputDir:    out,
		HTML:         true,
		HardWraps:    true,
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	html, err := os.ReadFile(filepath.Join(out, "wrapped.html"))
	if err != nil {
		t.Fatalf("html output missing: %v", err)
	}
	if !strings.Contains(string(html), "<br") {
		t.Fatalf("expected line break in html output, got: %q", html)
	}
}

func TestRunExportHandlerRejectsInvalidMessage(t *testing.T) {
	service, err := exporter.New(&stubAPI{queries: map[string]*source.ResultPage{}})
	if err != nil {
		t.Fatalf("exporter.New returned error: %v", err)
	}
	handler := exportcmd.NewRunExportHandler(service, nil, nil)

	if err := handler.Execute(context.Background(), exportcmd.RunExportCommand{}); err == nil {
		t.Fatalf("expected validation error")
	}
}

type recordingAdmin struct {
	purgedAll bool
	nodeIDs   []string
}

func (r *recordingAdmin) PurgeAll(ctx context.Context) { r.purgedAll = true }

func (r *recordingAdmin) PurgeSubtree(ctx context.Context, nodeID string) error {
	r.nodeIDs = append(r.nodeIDs, nodeID)
	return nil
}

func TestPurgeHandlers(t *testing.T) {
	admin := &recordingAdmin{}
	service, err := exporter.New(&stubAPI{}, exporter.WithCacheAdmin(admin))
	if err != nil {
		t.Fatalf("exporter.New returned error: %v", err)
	}

	if err := exportcmd.NewPurgeCacheHandler(service, nil).Execute(context.Background(), exportcmd.PurgeCacheCommand{}); err != nil {
		t.Fatalf("purge all returned error: %v", err)
	}
	if !admin.purgedAll {
		t.Fatalf("purge all not forwarded")
	}

	if err := exportcmd.NewPurgeSubtreeHandler(service, nil).Execute(context.Background(), exportcmd.PurgeSubtreeCommand{NodeID: "n1"}); err != nil {
		t.Fatalf("purge subtree returned error: %v", err)
	}
	if len(admin.nodeIDs) != 1 || admin.nodeIDs[0] != "n1" {
		t.Fatalf("purge subtree not forwarded: %v", admin.nodeIDs)
	}
}
