//go:build integration && darwin

package vault

import (
	"context"
	"errors"
	"testing"
)

// Integration tests use the real macOS Keychain.
// Run with: go test -tags integration ./vault/
//
// Requires an unlocked login Keychain and an interactive session
// (first run may prompt for Keychain access approval).

func TestKeychainStoreRoundTrip(t *testing.T) {
	s, err := NewSystemStore()
	if err != nil {
		t.Fatalf("NewSystemStore: %v", err)
	}
	ctx := context.Background()

	c, err := s.CreateCollection(ctx, "Integration", "secretkit-integration")
	if err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	defer s.DeleteCollection(ctx, c.ID)

	item, err := s.CreateItem(ctx, ItemRecord{
		Collection: c.ID,
		Label:      "integration",
		Schema:     "org.example.Integration",
		Attributes: map[string]string{"case": "round-trip"},
		Secret:     []byte("hello-keychain"),
	}, true)
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}

	items, err := s.Search(ctx, Query{Collection: c.ID, Attributes: map[string]string{"case": "round-trip"}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(items) != 1 || string(items[0].Secret) != "hello-keychain" {
		t.Errorf("expected stored item, got %+v", items)
	}

	if err := s.DeleteItem(ctx, c.ID, item.ID); err != nil {
		t.Fatalf("DeleteItem: %v", err)
	}
	if err := s.DeleteItem(ctx, c.ID, item.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestKeychainStoreRefusesDeleteInLockedCollection(t *testing.T) {
	s, err := NewSystemStore()
	if err != nil {
		t.Fatalf("NewSystemStore: %v", err)
	}
	ctx := context.Background()

	c, err := s.CreateCollection(ctx, "Integration", "secretkit-integration-locked")
	if err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	defer s.DeleteCollection(ctx, c.ID)

	item, err := s.CreateItem(ctx, ItemRecord{Collection: c.ID, Label: "locked", Secret: []byte("x")}, false)
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	if err := s.SetLocked(ctx, c.ID, true); err != nil {
		t.Fatalf("SetLocked: %v", err)
	}
	if err := s.DeleteItem(ctx, c.ID, item.ID); !errors.Is(err, ErrLocked) {
		t.Errorf("expected ErrLocked, got %v", err)
	}

	s.SetLocked(ctx, c.ID, false)
	if err := s.DeleteItem(ctx, c.ID, item.ID); err != nil {
		t.Errorf("DeleteItem after unlock: %v", err)
	}
}
