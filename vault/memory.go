package vault

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]CollectionRecord
	items       map[string]ItemRecord
	now         func() time.Time
}

// NewMemoryStore creates a new in-memory secret store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]CollectionRecord),
		items:       make(map[string]ItemRecord),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Collections(ctx context.Context) ([]CollectionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]CollectionRecord, 0, len(s.collections))
	for _, c := range s.collections {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Created.Equal(result[j].Created) {
			return result[i].Created.Before(result[j].Created)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// CreateCollection creates a collection. If alias is already bound, the
// existing collection is returned unchanged.
func (s *MemoryStore) CreateCollection(ctx context.Context, label, alias string) (CollectionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if alias != "" {
		if c, ok := s.aliasLocked(alias); ok {
			return c, nil
		}
	}
	now := s.now()
	c := CollectionRecord{
		ID:       uuid.NewString(),
		Label:    label,
		Alias:    alias,
		Created:  now,
		Modified: now,
	}
	s.collections[c.ID] = c
	return c, nil
}

// DeleteCollection removes a collection and every item in it.
func (s *MemoryStore) DeleteCollection(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[id]; !ok {
		return fmt.Errorf("%w: collection %s", ErrNotFound, id)
	}
	delete(s.collections, id)
	for itemID, item := range s.items {
		if item.Collection == id {
			delete(s.items, itemID)
		}
	}
	return nil
}

func (s *MemoryStore) ResolveAlias(ctx context.Context, alias string) (CollectionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.aliasLocked(alias)
	if !ok {
		return CollectionRecord{}, fmt.Errorf("%w: alias %s", ErrNotFound, alias)
	}
	return c, nil
}

func (s *MemoryStore) aliasLocked(alias string) (CollectionRecord, bool) {
	for _, c := range s.collections {
		if c.Alias == alias {
			return c, true
		}
	}
	return CollectionRecord{}, false
}

func (s *MemoryStore) SetLocked(ctx context.Context, id string, locked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[id]
	if !ok {
		return fmt.Errorf("%w: collection %s", ErrNotFound, id)
	}
	if c.Locked != locked {
		c.Locked = locked
		c.Modified = s.now()
		s.collections[id] = c
	}
	return nil
}

func (s *MemoryStore) CreateItem(ctx context.Context, item ItemRecord, replace bool) (ItemRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[item.Collection]
	if !ok {
		return ItemRecord{}, fmt.Errorf("%w: collection %s", ErrNotFound, item.Collection)
	}
	if c.Locked {
		return ItemRecord{}, fmt.Errorf("%w: %s", ErrLocked, c.Label)
	}

	now := s.now()
	item = cloneItem(item)
	item.Modified = now

	if replace {
		for _, existing := range s.items {
			if existing.Collection == item.Collection && existing.Schema == item.Schema &&
				sameAttributes(existing.Attributes, item.Attributes) {
				item.ID = existing.ID
				item.Created = existing.Created
				s.items[item.ID] = item
				return cloneItem(item), nil
			}
		}
	}

	item.ID = uuid.NewString()
	item.Created = now
	s.items[item.ID] = item
	return cloneItem(item), nil
}

func (s *MemoryStore) DeleteItem(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok || item.Collection != collection {
		return fmt.Errorf("%w: item %s", ErrNotFound, id)
	}
	if c := s.collections[collection]; c.Locked {
		return fmt.Errorf("%w: %s", ErrLocked, c.Label)
	}
	delete(s.items, id)
	return nil
}

func (s *MemoryStore) Search(ctx context.Context, q Query) ([]ItemRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []ItemRecord
	for _, item := range s.items {
		if q.Matches(item) {
			result = append(result, cloneItem(item))
		}
	}
	sortItems(result)
	return result, nil
}

func (s *MemoryStore) Close() error { return nil }

// snapshot is the serialized form of a store's contents.
type snapshot struct {
	Version     int                `cbor:"1,keyasint"`
	Collections []CollectionRecord `cbor:"2,keyasint"`
	Items       []ItemRecord       `cbor:"3,keyasint"`
}

const snapshotVersion = 1

func (s *MemoryStore) snapshot() snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := snapshot{Version: snapshotVersion}
	for _, c := range s.collections {
		snap.Collections = append(snap.Collections, c)
	}
	for _, item := range s.items {
		snap.Items = append(snap.Items, cloneItem(item))
	}
	sort.Slice(snap.Collections, func(i, j int) bool { return snap.Collections[i].ID < snap.Collections[j].ID })
	sort.Slice(snap.Items, func(i, j int) bool { return snap.Items[i].ID < snap.Items[j].ID })
	return snap
}

func (s *MemoryStore) restore(snap snapshot) {
	collections := make(map[string]CollectionRecord, len(snap.Collections))
	for _, c := range snap.Collections {
		collections[c.ID] = c
	}
	items := make(map[string]ItemRecord, len(snap.Items))
	for _, item := range snap.Items {
		items[item.ID] = item
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections = collections
	s.items = items
}
