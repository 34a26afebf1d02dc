package source

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indicates the upstream API has no node with the requested ID.
	ErrNotFound = errors.New("source: node not found")

	// ErrExpiredAsset indicates an asset link inside cached content has
	// expired upstream. Callers typically respond by purging the affected
	// subtree and refetching.
	ErrExpiredAsset = errors.New("source: asset link expired")
)

// API is the read surface of the upstream content service. Implementations
// include the raw HTTP client and the fetch cache wrapping it; consumers
// cannot tell the two apart.
type API interface {
	// RetrieveCollection fetches a collection descriptor by ID.
	RetrieveCollection(ctx context.Context, collectionID string) (*Collection, error)

	// QueryCollection fetches one page of the collection's rows. An empty
	// cursor requests the first page.
	QueryCollection(ctx context.Context, collectionID string, cursor string) (*ResultPage, error)

	// ListChildren fetches one page of a node's direct children in document
	// order. An empty cursor requests the first page.
	ListChildren(ctx context.Context, nodeID string, cursor string) (*ResultPage, error)

	// RetrieveNode fetches a single node by ID.
	RetrieveNode(ctx context.Context, nodeID string) (*Node, error)
}

// ListAllChildren drains every page of a node's child listing. Cursors are
// strictly sequential, so pages are requested one at a time.
func ListAllChildren(ctx context.Context, api API, nodeID string) ([]*Node, error) {
	var all []*Node
	cursor := ""
	for {
		page, err := api.ListChildren(ctx, nodeID, cursor)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Results...)
		if page.NextCursor == "" {
			return all, nil
		}
		cursor = page.NextCursor
	}
}

// QueryAll drains every page of a collection query.
func QueryAll(ctx context.Context, api API, collectionID string) ([]*Node, error) {
	var all []*Node
	cursor := ""
	for {
		page, err := api.QueryCollection(ctx, collectionID, cursor)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Results...)
		if page.NextCursor == "" {
			return all, nil
		}
		cursor = page.NextCursor
	}
}
