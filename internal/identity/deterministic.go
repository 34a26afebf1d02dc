package identity

import (
	"strings"

	hashid "github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
)

// UUID derives a deterministic UUID from a stable key using go-hashid.
//
// Callers must ensure key construction prevents cross-entity collisions (prefix by domain/type).
func UUID(key string) uuid.UUID {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return uuid.Nil
	}
	uid, err := hashid.NewUUID(trimmed, hashid.WithHashAlgorithm(hashid.SHA256), hashid.WithNormalization(true))
	if err != nil || uid == uuid.Nil {
		return uuid.NewSHA1(uuid.NameSpaceOID, []byte(trimmed))
	}
	return uid
}

// ListingUUID keys a cached child listing row by source node and cursor.
// Cursor may be empty for the first page of a listing.
func ListingUUID(nodeID, cursor string) uuid.UUID {
	return UUID("pagemill:listing:" + strings.TrimSpace(nodeID) + ":" + cursor)
}

// MetadataUUID returns the fixed row identity for the cache metadata record.
// Durable stores persist exactly one metadata row per cache database.
func MetadataUUID() uuid.UUID {
	return UUID("pagemill:metadata")
}
