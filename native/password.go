package native

import (
	"context"
	"errors"

	"github.com/benaskins/secretkit/vault"
)

const (
	tagPasswordStore  = "password_store"
	tagPasswordLookup = "password_lookup"
	tagPasswordClear  = "password_clear"
	tagPasswordSearch = "password_search"

	// DefaultCollectionLabel labels the default collection when a password
	// store has to create it.
	DefaultCollectionLabel = "Login"
)

// PasswordStore stores password in the collection bound to alias, replacing
// any item with the same schema and attributes. An empty alias selects the
// default collection, which is created if missing.
func (l *Library) PasswordStore(schema *Schema, alias string, attributes *AttributeTable, label, password *CString, cb AsyncReadyCallback, userData uintptr) {
	l.submit(nil, tagPasswordStore, cb, userData, func(ctx context.Context) (any, error) {
		attrs, err := schema.validate(attributes)
		if err != nil {
			return nil, err
		}
		text, ok := label.Get()
		if !ok {
			return nil, ErrDangling
		}
		secret, ok := password.Get()
		if !ok {
			return nil, ErrDangling
		}
		c, err := l.collectionFor(ctx, alias)
		if err != nil {
			return nil, err
		}
		_, err = l.store.CreateItem(ctx, vault.ItemRecord{
			Collection:  c.ID,
			Label:       text,
			Schema:      schema.Name(),
			Attributes:  attrs,
			Secret:      []byte(secret),
			ContentType: ContentTypeText,
		}, true)
		if err != nil {
			return nil, err
		}
		return true, nil
	})
}

// PasswordStoreFinish completes PasswordStore.
func (l *Library) PasswordStoreFinish(res *AsyncResult) (bool, error) {
	v, err := res.propagate(nil, tagPasswordStore)
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (l *Library) collectionFor(ctx context.Context, alias string) (vault.CollectionRecord, error) {
	if alias == "" {
		alias = vault.DefaultAlias
	}
	c, err := l.store.ResolveAlias(ctx, alias)
	if err == nil || !errors.Is(err, vault.ErrNotFound) || alias != vault.DefaultAlias {
		return c, err
	}
	l.logger.Info("creating default collection", "label", DefaultCollectionLabel)
	return l.store.CreateCollection(ctx, DefaultCollectionLabel, vault.DefaultAlias)
}

// PasswordLookup finds the first item matching schema and attributes,
// unlocking its collection if needed.
func (l *Library) PasswordLookup(schema *Schema, attributes *AttributeTable, cb AsyncReadyCallback, userData uintptr) {
	l.submit(nil, tagPasswordLookup, cb, userData, func(ctx context.Context) (any, error) {
		attrs, err := schema.validate(attributes)
		if err != nil {
			return nil, err
		}
		items, err := l.searchItems(ctx, vault.Query{
			Schema:     schema.matchName(),
			Attributes: attrs,
		}, SearchUnlock|SearchLoadSecrets)
		if err != nil {
			return nil, err
		}
		if len(items) == 0 || items[0].secret == nil {
			return nil, newError(ErrorNoSuchObject, "no password matches the given attributes")
		}
		return string(items[0].secret.secret), nil
	})
}

// PasswordLookupFinish completes PasswordLookup. The password is returned in
// a newly allocated native string the receiver must Free.
func (l *Library) PasswordLookupFinish(res *AsyncResult) (*CString, error) {
	v, err := res.propagate(nil, tagPasswordLookup)
	if err != nil {
		return nil, err
	}
	return l.alloc.Strdup(v.(string)), nil
}

// PasswordClear deletes every item matching schema and attributes,
// unlocking collections as needed. Clearing nothing succeeds.
func (l *Library) PasswordClear(schema *Schema, attributes *AttributeTable, cb AsyncReadyCallback, userData uintptr) {
	l.submit(nil, tagPasswordClear, cb, userData, func(ctx context.Context) (any, error) {
		attrs, err := schema.validate(attributes)
		if err != nil {
			return nil, err
		}
		items, err := l.searchItems(ctx, vault.Query{
			Schema:     schema.matchName(),
			Attributes: attrs,
		}, SearchAll|SearchUnlock)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			if err := l.store.DeleteItem(ctx, item.collection, item.id); err != nil && !errors.Is(err, vault.ErrNotFound) {
				return nil, err
			}
		}
		l.logger.Debug("cleared passwords", "schema", schema.Name(), "count", len(items))
		return true, nil
	})
}

// PasswordClearFinish completes PasswordClear.
func (l *Library) PasswordClearFinish(res *AsyncResult) (bool, error) {
	v, err := res.propagate(nil, tagPasswordClear)
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// PasswordSearch finds items matching schema and attributes across every
// collection.
func (l *Library) PasswordSearch(schema *Schema, attributes *AttributeTable, flags SearchFlags, cb AsyncReadyCallback, userData uintptr) {
	l.submit(nil, tagPasswordSearch, cb, userData, func(ctx context.Context) (any, error) {
		attrs, err := schema.validate(attributes)
		if err != nil {
			return nil, err
		}
		items, err := l.searchItems(ctx, vault.Query{
			Schema:     schema.matchName(),
			Attributes: attrs,
		}, flags)
		if err != nil {
			return nil, err
		}
		return newList(&l.alloc, items), nil
	})
}

// PasswordSearchFinish completes PasswordSearch. The receiver frees the list.
func (l *Library) PasswordSearchFinish(res *AsyncResult) (*List, error) {
	v, err := res.propagate(nil, tagPasswordSearch)
	if err != nil {
		return nil, err
	}
	return v.(*List), nil
}
