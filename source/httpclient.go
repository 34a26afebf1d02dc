package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrBaseURLRequired indicates an HTTP client was constructed without an
// endpoint.
var ErrBaseURLRequired = errors.New("source: base URL is required")

// HTTPClientConfig configures the reference HTTP client.
type HTTPClientConfig struct {
	// BaseURL is the API root, e.g. "https://content.example.com/v1".
	BaseURL string
	// Token, when set, is sent as a bearer token.
	Token string
	// HTTPClient overrides the default client (30s timeout).
	HTTPClient *http.Client
}

// HTTPClient talks to a content service exposing the four-method API over
// JSON. It adds no caching and no retries; wrap it in the fetch cache.
type HTTPClient struct {
	base   string
	token  string
	client *http.Client
}

var _ API = (*HTTPClient)(nil)

// NewHTTPClient constructs a client for the given endpoint.
func NewHTTPClient(cfg HTTPClientConfig) (*HTTPClient, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, ErrBaseURLRequired
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPClient{base: base, token: cfg.Token, client: client}, nil
}

// RetrieveCollection implements API.
func (c *HTTPClient) RetrieveCollection(ctx context.Context, collectionID string) (*Collection, error) {
	var wire wireCollection
	if err := c.get(ctx, "/collections/"+url.PathEscape(collectionID), "", &wire); err != nil {
		return nil, err
	}
	return wire.collection(), nil
}

// QueryCollection implements API.
func (c *HTTPClient) QueryCollection(ctx context.Context, collectionID string, cursor string) (*ResultPage, error) {
	var wire wirePage
	if err := c.get(ctx, "/collections/"+url.PathEscape(collectionID)+"/query", cursor, &wire); err != nil {
		return nil, err
	}
	return wire.page(), nil
}

// ListChildren implements API.
func (c *HTTPClient) ListChildren(ctx context.Context, nodeID string, cursor string) (*ResultPage, error) {
	var wire wirePage
	if err := c.get(ctx, "/nodes/"+url.PathEscape(nodeID)+"/children", cursor, &wire); err != nil {
		return nil, err
	}
	return wire.page(), nil
}

// RetrieveNode implements API.
func (c *HTTPClient) RetrieveNode(ctx context.Context, nodeID string) (*Node, error) {
	var wire wireAPINode
	if err := c.get(ctx, "/nodes/"+url.PathEscape(nodeID), "", &wire); err != nil {
		return nil, err
	}
	return wire.node(), nil
}

func (c *HTTPClient) get(ctx context.Context, path, cursor string, out any) error {
	endpoint := c.base + path
	if cursor != "" {
		endpoint += "?cursor=" + url.QueryEscape(cursor)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("source: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("source: %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("source: %s: %w", path, ErrNotFound)
	case resp.StatusCode == http.StatusGone:
		return fmt.Errorf("source: %s: %w", path, ErrExpiredAsset)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("source: %s: unexpected status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("source: decode %s: %w", path, err)
	}
	return nil
}

type wireAPINode struct {
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

func (w wireAPINode) node() *Node {
	return &Node{
		ID:          w.ID,
		Kind:        Kind(w.Kind),
		Title:       w.Title,
		Text:        w.Text,
		Language:    w.Language,
		URL:         w.URL,
		HasChildren: w.HasChildren,
		CreatedAt:   w.CreatedAt,
		EditedAt:    w.EditedAt,
		Properties:  w.Properties,
	}
}

type wirePage struct {
	Results    []wireAPINode `json:"results"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

func (w wirePage) page() *ResultPage {
	page := &ResultPage{NextCursor: w.NextCursor}
	for _, node := range w.Results {
		page.Results = append(page.Results, node.node())
	}
	return page
}

type wireCollection struct {
	ID       string         `json:"id"`
	Title    string         `json:"title,omitempty"`
	EditedAt time.Time      `json:"edited_at"`
	Schema   map[string]any `json:"schema,omitempty"`
}

func (w wireCollection) collection() *Collection {
	return &Collection{ID: w.ID, Title: w.Title, EditedAt: w.EditedAt, Schema: w.Schema}
}
