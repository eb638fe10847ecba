// Package vault provides the storage behind the native secret service.
//
// A Store holds collections and the items inside them. Items carry a label,
// a secret payload with a content type, the name of the schema they were
// stored under and a flat string attribute map used for matching.
//
// Implementations:
//   - MemoryStore: in-process, for tests and ephemeral sessions
//   - FileStore: age-encrypted CBOR snapshot on disk, reloaded on change
//   - KeychainStore: macOS Keychain generic passwords (darwin only)
//   - RemoteStore: a secretd daemon reached over a unix socket
package vault

import (
	"context"
	"errors"
	"sort"
	"time"
)

var (
	// ErrNotFound is returned when a collection or item does not exist.
	ErrNotFound = errors.New("secret not found")

	// ErrLocked is returned when an operation needs an unlocked collection.
	ErrLocked = errors.New("collection is locked")
)

// DefaultAlias is the alias of the collection used when none is named.
const DefaultAlias = "default"

// CollectionRecord describes a collection.
type CollectionRecord struct {
	ID       string    `json:"id" cbor:"1,keyasint"`
	Label    string    `json:"label" cbor:"2,keyasint"`
	Alias    string    `json:"alias,omitempty" cbor:"3,keyasint,omitempty"`
	Locked   bool      `json:"locked,omitempty" cbor:"4,keyasint,omitempty"`
	Created  time.Time `json:"created" cbor:"5,keyasint"`
	Modified time.Time `json:"modified" cbor:"6,keyasint"`
}

// ItemRecord is a stored secret.
type ItemRecord struct {
	ID          string            `json:"id" cbor:"1,keyasint"`
	Collection  string            `json:"collection" cbor:"2,keyasint"`
	Label       string            `json:"label" cbor:"3,keyasint"`
	Schema      string            `json:"schema,omitempty" cbor:"4,keyasint,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty" cbor:"5,keyasint,omitempty"`
	Secret      []byte            `json:"secret,omitempty" cbor:"6,keyasint,omitempty"`
	ContentType string            `json:"content_type,omitempty" cbor:"7,keyasint,omitempty"`
	Created     time.Time         `json:"created" cbor:"8,keyasint"`
	Modified    time.Time         `json:"modified" cbor:"9,keyasint"`
}

// Query selects items. Empty Collection searches every collection, empty
// Schema matches any schema. Every attribute must be present and equal.
type Query struct {
	Collection string            `json:"collection,omitempty"`
	Schema     string            `json:"schema,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Store is the interface for secret storage operations.
type Store interface {
	Collections(ctx context.Context) ([]CollectionRecord, error)
	CreateCollection(ctx context.Context, label, alias string) (CollectionRecord, error)
	DeleteCollection(ctx context.Context, id string) error
	ResolveAlias(ctx context.Context, alias string) (CollectionRecord, error)
	SetLocked(ctx context.Context, id string, locked bool) error

	// CreateItem stores item in its collection. With replace set, an item
	// with the same schema and identical attributes is overwritten in place.
	CreateItem(ctx context.Context, item ItemRecord, replace bool) (ItemRecord, error)
	DeleteItem(ctx context.Context, collection, id string) error
	Search(ctx context.Context, q Query) ([]ItemRecord, error)

	Close() error
}

// Matches reports whether item satisfies q.
func (q Query) Matches(item ItemRecord) bool {
	if q.Collection != "" && item.Collection != q.Collection {
		return false
	}
	if q.Schema != "" && item.Schema != q.Schema {
		return false
	}
	for k, v := range q.Attributes {
		got, ok := item.Attributes[k]
		if !ok || got != v {
			return false
		}
	}
	return true
}

func sameAttributes(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if got, ok := b[k]; !ok || got != v {
			return false
		}
	}
	return true
}

// sortItems orders items oldest first, ties broken by id.
func sortItems(items []ItemRecord) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].Created.Equal(items[j].Created) {
			return items[i].Created.Before(items[j].Created)
		}
		return items[i].ID < items[j].ID
	})
}

func cloneItem(item ItemRecord) ItemRecord {
	cp := item
	if item.Attributes != nil {
		cp.Attributes = make(map[string]string, len(item.Attributes))
		for k, v := range item.Attributes {
			cp.Attributes[k] = v
		}
	}
	if item.Secret != nil {
		cp.Secret = append([]byte(nil), item.Secret...)
	}
	return cp
}
