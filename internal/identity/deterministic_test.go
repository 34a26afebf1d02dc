package identity_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/pagemill/pagemill/internal/identity"
)

func TestUUIDIsDeterministic(t *testing.T) {
	first := identity.UUID("pagemill:listing:node-1:")
	second := identity.UUID("pagemill:listing:node-1:")
	if first != second {
		t.Fatalf("expected stable UUID, got %s and %s", first, second)
	}
	if first == uuid.Nil {
		t.Fatal("expected non-nil UUID for non-empty key")
	}
}

func TestUUIDEmptyKeyReturnsNil(t *testing.T) {
	if got := identity.UUID("   "); got != uuid.Nil {
		t.Fatalf("expected uuid.Nil for blank key, got %s", got)
	}
}

func TestListingUUIDSeparatesCursors(t *testing.T) {
	base := identity.ListingUUID("node-1", "")
	paged := identity.ListingUUID("node-1", "cursor-2")
	if base == paged {
		t.Fatal("expected distinct UUIDs for distinct cursors")
	}

	other := identity.ListingUUID("node-2", "")
	if base == other {
		t.Fatal("expected distinct UUIDs for distinct nodes")
	}
}

func TestMetadataUUIDIsStable(t *testing.T) {
	if identity.MetadataUUID() != identity.MetadataUUID() {
		t.Fatal("expected metadata row identity to be stable")
	}
}
