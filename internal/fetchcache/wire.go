package fetchcache

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pagemill/pagemill/source"
)

type wireNode struct {
	ID          string         `json:"id"`
	Kind        string         `json:"kind"`
	Title       string         `json:"title,omitempty"`
	Text        string         `json:"text,omitempty"`
	Language    string         `json:"language,omitempty"`
	URL         string         `json:"url,omitempty"`
	HasChildren bool           `json:"has_children,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	EditedAt    time.Time      `json:"edited_at"`
	Properties  map[string]any `json:"properties,omitempty"`
}

type wireResultPage struct {
	Results    []wireNode `json:"results"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

func encodeResultPage(page *source.ResultPage) ([]byte, error) {
	if page == nil {
		return nil, fmt.Errorf("fetchcache: result page is required")
	}
	wire := wireResultPage{
		Results:    make([]wireNode, 0, len(page.Results)),
		NextCursor: page.NextCursor,
	}
	for _, node := range page.Results {
		if node == nil {
			continue
		}
		wire.Results = append(wire.Results, wireNode{
			ID:          node.ID,
			Kind:        string(node.Kind),
			Title:       node.Title,
			Text:        node.Text,
			Language:    node.Language,
			URL:         node.URL,
			HasChildren: node.HasChildren,
			CreatedAt:   node.CreatedAt,
			EditedAt:    node.EditedAt,
			Properties:  node.Properties,
		})
	}
	return json.Marshal(wire)
}

func decodeResultPage(payload []byte) (*source.ResultPage, error) {
	var wire wireResultPage
	if err := json.Unmarshal(payload, &wire); err != nil {
		return nil, fmt.Errorf("fetchcache: decode listing: %w", err)
	}
	page := &source.ResultPage{
		Results:    make([]*source.Node, 0, len(wire.Results)),
		NextCursor: wire.NextCursor,
	}
	for _, node := range wire.Results {
		page.Results = append(page.Results, &source.Node{
			ID:          node.ID,
			Kind:        source.Kind(node.Kind),
			Title:       node.Title,
			Text:        node.Text,
			Language:    node.Language,
			URL:         node.URL,
			HasChildren: node.HasChildren,
			CreatedAt:   node.CreatedAt,
			EditedAt:    node.EditedAt,
			Properties:  node.Properties,
		})
	}
	return page, nil
}
