//go:build darwin

package vault

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	gokeychain "github.com/keybase/go-keychain"
)

const (
	// ServiceName prefixes the Keychain service attribute of every record.
	ServiceName = "com.secretkit"

	collectionService = ServiceName + ".collections"
	itemService       = ServiceName + ".items"
)

// KeychainStore keeps collections and items as generic passwords in the
// macOS login Keychain. Each record is CBOR-encoded into the password data.
//
// Records are scoped with kSecAttrAccessibleWhenUnlockedThisDeviceOnly:
// never synced to iCloud, never available when the machine is locked.
type KeychainStore struct {
	now func() time.Time
}

// NewSystemStore creates a Keychain-backed store.
func NewSystemStore() (Store, error) {
	return &KeychainStore{now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *KeychainStore) put(service, account, label string, v any) error {
	data, err := marshal(v)
	if err != nil {
		return fmt.Errorf("encoding keychain record: %w", err)
	}
	// update = delete + add
	_ = gokeychain.DeleteGenericPasswordItem(service, account)

	item := gokeychain.NewGenericPassword(service, account, label, data, "")
	item.SetSynchronizable(gokeychain.SynchronizableNo)
	item.SetAccessible(gokeychain.AccessibleWhenUnlockedThisDeviceOnly)
	if err := gokeychain.AddItem(item); err != nil {
		return fmt.Errorf("keychain add %q: %w", account, err)
	}
	return nil
}

func (s *KeychainStore) get(service, account string, v any) error {
	data, err := gokeychain.GetGenericPassword(service, account, "", "")
	if err != nil {
		if errors.Is(err, gokeychain.ErrorItemNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, account)
		}
		return fmt.Errorf("keychain get %q: %w", account, err)
	}
	if len(data) == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, account)
	}
	return unmarshal(data, v)
}

func (s *KeychainStore) remove(service, account string) error {
	err := gokeychain.DeleteGenericPasswordItem(service, account)
	if err != nil {
		if errors.Is(err, gokeychain.ErrorItemNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, account)
		}
		return fmt.Errorf("keychain delete %q: %w", account, err)
	}
	return nil
}

func (s *KeychainStore) accounts(service string) ([]string, error) {
	accounts, err := gokeychain.GetGenericPasswordAccounts(service)
	if err != nil {
		if errors.Is(err, gokeychain.ErrorItemNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("keychain list: %w", err)
	}
	return accounts, nil
}

func (s *KeychainStore) Collections(ctx context.Context) ([]CollectionRecord, error) {
	ids, err := s.accounts(collectionService)
	if err != nil {
		return nil, err
	}
	result := make([]CollectionRecord, 0, len(ids))
	for _, id := range ids {
		var c CollectionRecord
		if err := s.get(collectionService, id, &c); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Created.Before(result[j].Created) })
	return result, nil
}

func (s *KeychainStore) CreateCollection(ctx context.Context, label, alias string) (CollectionRecord, error) {
	if alias != "" {
		if c, err := s.ResolveAlias(ctx, alias); err == nil {
			return c, nil
		}
	}
	now := s.now()
	c := CollectionRecord{ID: uuid.NewString(), Label: label, Alias: alias, Created: now, Modified: now}
	if err := s.put(collectionService, c.ID, "secretkit collection: "+label, c); err != nil {
		return CollectionRecord{}, err
	}
	return c, nil
}

func (s *KeychainStore) DeleteCollection(ctx context.Context, id string) error {
	if err := s.remove(collectionService, id); err != nil {
		return err
	}
	items, err := s.Search(ctx, Query{Collection: id})
	if err != nil {
		return err
	}
	for _, item := range items {
		if err := s.remove(itemService, item.ID); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	return nil
}

func (s *KeychainStore) ResolveAlias(ctx context.Context, alias string) (CollectionRecord, error) {
	collections, err := s.Collections(ctx)
	if err != nil {
		return CollectionRecord{}, err
	}
	for _, c := range collections {
		if c.Alias == alias {
			return c, nil
		}
	}
	return CollectionRecord{}, fmt.Errorf("%w: alias %s", ErrNotFound, alias)
}

func (s *KeychainStore) SetLocked(ctx context.Context, id string, locked bool) error {
	var c CollectionRecord
	if err := s.get(collectionService, id, &c); err != nil {
		return err
	}
	c.Locked = locked
	c.Modified = s.now()
	return s.put(collectionService, c.ID, "secretkit collection: "+c.Label, c)
}

func (s *KeychainStore) CreateItem(ctx context.Context, item ItemRecord, replace bool) (ItemRecord, error) {
	var c CollectionRecord
	if err := s.get(collectionService, item.Collection, &c); err != nil {
		return ItemRecord{}, err
	}
	if c.Locked {
		return ItemRecord{}, fmt.Errorf("%w: %s", ErrLocked, c.Label)
	}

	now := s.now()
	item = cloneItem(item)
	item.ID = uuid.NewString()
	item.Created = now
	item.Modified = now

	if replace {
		existing, err := s.Search(ctx, Query{Collection: item.Collection, Schema: item.Schema, Attributes: item.Attributes})
		if err != nil {
			return ItemRecord{}, err
		}
		for _, e := range existing {
			if e.Schema == item.Schema && sameAttributes(e.Attributes, item.Attributes) {
				item.ID = e.ID
				item.Created = e.Created
				break
			}
		}
	}

	if err := s.put(itemService, item.ID, "secretkit: "+item.Label, item); err != nil {
		return ItemRecord{}, err
	}
	return item, nil
}

func (s *KeychainStore) DeleteItem(ctx context.Context, collection, id string) error {
	var item ItemRecord
	if err := s.get(itemService, id, &item); err != nil {
		return err
	}
	if item.Collection != collection {
		return fmt.Errorf("%w: item %s", ErrNotFound, id)
	}
	var c CollectionRecord
	if err := s.get(collectionService, collection, &c); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if c.Locked {
		return fmt.Errorf("%w: %s", ErrLocked, c.Label)
	}
	return s.remove(itemService, id)
}

func (s *KeychainStore) Search(ctx context.Context, q Query) ([]ItemRecord, error) {
	ids, err := s.accounts(itemService)
	if err != nil {
		return nil, err
	}
	var result []ItemRecord
	for _, id := range ids {
		var item ItemRecord
		if err := s.get(itemService, id, &item); err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		if q.Matches(item) {
			result = append(result, item)
		}
	}
	sortItems(result)
	return result, nil
}

func (s *KeychainStore) Close() error { return nil }
