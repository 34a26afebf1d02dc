package source_test

import (
	"context"
	"errors"
	"testing"

	"github.com/pagemill/pagemill/source"
)

type pagedAPI struct {
	pages map[string][]*source.ResultPage
	calls int
}

func (p *pagedAPI) RetrieveCollection(context.Context, string) (*source.Collection, error) {
	return nil, source.ErrNotFound
}

func (p *pagedAPI) QueryCollection(ctx context.Context, id, cursor string) (*source.ResultPage, error) {
	return p.page(id, cursor)
}

func (p *pagedAPI) ListChildren(ctx context.Context, nodeID, cursor string) (*source.ResultPage, error) {
	return p.page(nodeID, cursor)
}

func (p *pagedAPI) RetrieveNode(context.Context, string) (*source.Node, error) {
	return nil, source.ErrNotFound
}

func (p *pagedAPI) page(id, cursor string) (*source.ResultPage, error) {
	p.calls++
	pages, ok := p.pages[id]
	if !ok {
		return nil, source.ErrNotFound
	}
	index := 0
	for i, page := range pages {
		if i == 0 && cursor == "" {
			index = 0
			break
		}
		if page.NextCursor == cursor && cursor != "" {
			index = i + 1
		}
	}
	if index >= len(pages) {
		return &source.ResultPage{}, nil
	}
	return pages[index], nil
}

func TestListAllChildrenDrainsSequentialCursors(t *testing.T) {
	api := &pagedAPI{pages: map[string][]*source.ResultPage{
		"parent": {
			{Results: []*source.Node{{ID: "a"}, {ID: "b"}}, NextCursor: "c1"},
			{Results: []*source.Node{{ID: "c"}}, NextCursor: "c2"},
			{Results: []*source.Node{{ID: "d"}}},
		},
	}}

	nodes, err := source.ListAllChildren(context.Background(), api, "parent")
	if err != nil {
		t.Fatalf("ListAllChildren returned error: %v", err)
	}
	if len(nodes) != 4 {
		t.Fatalf("expected 4 nodes, got %d", len(nodes))
	}
	want := []string{"a", "b", "c", "d"}
	for i, id := range want {
		if nodes[i].ID != id {
			t.Fatalf("node %d: expected %s, got %s", i, id, nodes[i].ID)
		}
	}
	if api.calls != 3 {
		t.Fatalf("expected 3 page fetches, got %d", api.calls)
	}
}

func TestListAllChildrenPropagatesErrors(t *testing.T) {
	api := &pagedAPI{pages: map[string][]*source.ResultPage{}}

	_, err := source.ListAllChildren(context.Background(), api, "missing")
	if !errors.Is(err, source.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNodeCloneIsolatesProperties(t *testing.T) {
	node := &source.Node{ID: "n", Properties: map[string]any{"tag": "one"}}

	copied := node.Clone()
	copied.Properties["tag"] = "two"

	if node.Properties["tag"] != "one" {
		t.Fatalf("expected original properties untouched, got %v", node.Properties["tag"])
	}
}

func TestResultPageCloneCopiesNodes(t *testing.T) {
	page := &source.ResultPage{
		Results:    []*source.Node{{ID: "n1", Title: "One"}},
		NextCursor: "cur",
	}

	copied := page.Clone()
	copied.Results[0].Title = "Changed"

	if page.Results[0].Title != "One" {
		t.Fatalf("expected original node untouched, got %q", page.Results[0].Title)
	}
	if copied.NextCursor != "cur" {
		t.Fatalf("expected cursor preserved, got %q", copied.NextCursor)
	}
}
