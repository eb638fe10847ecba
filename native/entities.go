package native

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benaskins/secretkit/vault"
)

// Service is a session with the secret service.
type Service struct {
	lib   *Library
	flags ServiceFlags

	mu          sync.Mutex
	collections []*Collection
	loaded      bool
}

// GetFlags returns the flags the session was opened with.
func (s *Service) GetFlags() ServiceFlags { return s.flags }

// GetCollections returns the loaded collections, or nil if they have not
// been loaded. The receiver frees the list.
func (s *Service) GetCollections() *List {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return nil
	}
	return newList(&s.lib.alloc, s.collections)
}

// Collection is a handle to a stored collection.
type Collection struct {
	lib      *Library
	id       string
	label    string
	alias    string
	locked   bool
	created  time.Time
	modified time.Time
}

func (l *Library) wrapCollection(c vault.CollectionRecord) *Collection {
	return &Collection{
		lib:      l,
		id:       c.ID,
		label:    c.Label,
		alias:    c.Alias,
		locked:   c.Locked,
		created:  c.Created,
		modified: c.Modified,
	}
}

func (c *Collection) GetID() string          { return c.id }
func (c *Collection) GetLabel() string       { return c.label }
func (c *Collection) GetAlias() string       { return c.alias }
func (c *Collection) GetLocked() bool        { return c.locked }
func (c *Collection) GetCreated() time.Time  { return c.created }
func (c *Collection) GetModified() time.Time { return c.modified }

// Item is a handle to a stored secret. Its attributes and label are
// resident; the secret is present only if it was loaded.
type Item struct {
	lib        *Library
	id         string
	collection string
	label      string
	schema     string
	attributes map[string]string
	secret     *Value
	locked     bool
	created    time.Time
	modified   time.Time
}

func (l *Library) wrapItem(r vault.ItemRecord, locked, loadSecret bool) *Item {
	item := &Item{
		lib:        l,
		id:         r.ID,
		collection: r.Collection,
		label:      r.Label,
		schema:     r.Schema,
		attributes: make(map[string]string, len(r.Attributes)),
		locked:     locked,
		created:    r.Created,
		modified:   r.Modified,
	}
	for k, v := range r.Attributes {
		item.attributes[k] = v
	}
	if loadSecret && !locked {
		item.secret = NewValue(r.Secret, r.ContentType)
	}
	return item
}

func (i *Item) GetID() string          { return i.id }
func (i *Item) GetLabel() string       { return i.label }
func (i *Item) GetSchemaName() string  { return i.schema }
func (i *Item) GetLocked() bool        { return i.locked }
func (i *Item) GetCreated() time.Time  { return i.created }
func (i *Item) GetModified() time.Time { return i.modified }

// GetCollectionID returns the id of the collection holding the item.
func (i *Item) GetCollectionID() string { return i.collection }

// GetSecret returns the loaded secret, or nil.
func (i *Item) GetSecret() *Value { return i.secret }

// GetAttributes returns a new table owning copies of the attributes. The
// receiver must Unref it.
func (i *Item) GetAttributes() *AttributeTable {
	return newOwnedTable(&i.lib.alloc, i.attributes)
}

// collectionStates maps collection ids to their records.
func (l *Library) collectionStates(ctx context.Context) (map[string]vault.CollectionRecord, error) {
	collections, err := l.store.Collections(ctx)
	if err != nil {
		return nil, err
	}
	states := make(map[string]vault.CollectionRecord, len(collections))
	for _, c := range collections {
		states[c.ID] = c
	}
	return states, nil
}

// searchItems runs q and applies the search flags: without SearchAll only
// the first match is kept, with SearchUnlock locked collections holding a
// match are unlocked, with SearchLoadSecrets the secrets of unlocked items
// are loaded.
func (l *Library) searchItems(ctx context.Context, q vault.Query, flags SearchFlags) ([]*Item, error) {
	records, err := l.store.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	if flags&SearchAll == 0 && len(records) > 1 {
		records = records[:1]
	}
	if len(records) == 0 {
		return nil, nil
	}

	states, err := l.collectionStates(ctx)
	if err != nil {
		return nil, err
	}
	if flags&SearchUnlock != 0 {
		for _, r := range records {
			if c := states[r.Collection]; c.Locked {
				if err := l.store.SetLocked(ctx, c.ID, false); err != nil {
					return nil, fmt.Errorf("unlocking %s: %w", c.Label, err)
				}
				c.Locked = false
				states[c.ID] = c
			}
		}
	}

	items := make([]*Item, 0, len(records))
	for _, r := range records {
		items = append(items, l.wrapItem(r, states[r.Collection].Locked, flags&SearchLoadSecrets != 0))
	}
	return items, nil
}
