package native

import (
	"context"
	"fmt"

	"github.com/benaskins/secretkit/vault"
)

const (
	tagCollectionCreate   = "collection_create"
	tagCollectionForAlias = "collection_for_alias"
	tagCollectionDelete   = "collection_delete"
	tagCollectionSearch   = "collection_search"
	tagItemCreate         = "item_create"
	tagItemDelete         = "item_delete"
)

// CollectionCreate creates a collection. When alias is already bound the
// existing collection is returned instead.
func (l *Library) CollectionCreate(label, alias string, flags CollectionCreateFlags, cb AsyncReadyCallback, userData uintptr) {
	l.submit(nil, tagCollectionCreate, cb, userData, func(ctx context.Context) (any, error) {
		c, err := l.store.CreateCollection(ctx, label, alias)
		if err != nil {
			return nil, err
		}
		return l.wrapCollection(c), nil
	})
}

// CollectionCreateFinish completes CollectionCreate.
func (l *Library) CollectionCreateFinish(res *AsyncResult) (*Collection, error) {
	v, err := res.propagate(nil, tagCollectionCreate)
	if err != nil {
		return nil, err
	}
	return v.(*Collection), nil
}

// CollectionForAlias looks up the collection bound to alias.
func (l *Library) CollectionForAlias(alias string, cb AsyncReadyCallback, userData uintptr) {
	l.submit(nil, tagCollectionForAlias, cb, userData, func(ctx context.Context) (any, error) {
		c, err := l.store.ResolveAlias(ctx, alias)
		if err != nil {
			return nil, err
		}
		return l.wrapCollection(c), nil
	})
}

// CollectionForAliasFinish completes CollectionForAlias.
func (l *Library) CollectionForAliasFinish(res *AsyncResult) (*Collection, error) {
	v, err := res.propagate(nil, tagCollectionForAlias)
	if err != nil {
		return nil, err
	}
	return v.(*Collection), nil
}

// CollectionDelete deletes c and every item in it.
func (l *Library) CollectionDelete(c *Collection, cb AsyncReadyCallback, userData uintptr) {
	l.submit(c, tagCollectionDelete, cb, userData, func(ctx context.Context) (any, error) {
		if err := l.store.DeleteCollection(ctx, c.id); err != nil {
			return nil, err
		}
		return true, nil
	})
}

// CollectionDeleteFinish completes CollectionDelete.
func (l *Library) CollectionDeleteFinish(c *Collection, res *AsyncResult) (bool, error) {
	v, err := res.propagate(c, tagCollectionDelete)
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// CollectionSearch searches c for items matching schema and attributes.
// attributes is read when the request executes. Searching a deleted
// collection fails with not found.
func (l *Library) CollectionSearch(c *Collection, schema *Schema, attributes *AttributeTable, flags SearchFlags, cb AsyncReadyCallback, userData uintptr) {
	l.submit(c, tagCollectionSearch, cb, userData, func(ctx context.Context) (any, error) {
		attrs, err := schema.validate(attributes)
		if err != nil {
			return nil, err
		}
		states, err := l.collectionStates(ctx)
		if err != nil {
			return nil, err
		}
		if _, ok := states[c.id]; !ok {
			return nil, fmt.Errorf("%w: collection %s", vault.ErrNotFound, c.id)
		}
		items, err := l.searchItems(ctx, vault.Query{
			Collection: c.id,
			Schema:     schema.matchName(),
			Attributes: attrs,
		}, flags)
		if err != nil {
			return nil, err
		}
		return newList(&l.alloc, items), nil
	})
}

// CollectionSearchFinish completes CollectionSearch. A search matching
// nothing yields a nil list and no error. The receiver frees the list.
func (l *Library) CollectionSearchFinish(c *Collection, res *AsyncResult) (*List, error) {
	v, err := res.propagate(c, tagCollectionSearch)
	if err != nil {
		return nil, err
	}
	return v.(*List), nil
}

// ItemCreate stores a new item in c. With ItemCreateReplace, an item with
// the same schema and attributes is overwritten.
func (l *Library) ItemCreate(c *Collection, schema *Schema, attributes *AttributeTable, label *CString, value *Value, flags ItemCreateFlags, cb AsyncReadyCallback, userData uintptr) {
	l.submit(nil, tagItemCreate, cb, userData, func(ctx context.Context) (any, error) {
		attrs, err := schema.validate(attributes)
		if err != nil {
			return nil, err
		}
		text, ok := label.Get()
		if !ok {
			return nil, ErrDangling
		}
		record, err := l.store.CreateItem(ctx, vault.ItemRecord{
			Collection:  c.id,
			Label:       text,
			Schema:      schema.Name(),
			Attributes:  attrs,
			Secret:      value.secret,
			ContentType: value.contentType,
		}, flags&ItemCreateReplace != 0)
		if err != nil {
			return nil, err
		}
		return l.wrapItem(record, false, true), nil
	})
}

// ItemCreateFinish completes ItemCreate.
func (l *Library) ItemCreateFinish(res *AsyncResult) (*Item, error) {
	v, err := res.propagate(nil, tagItemCreate)
	if err != nil {
		return nil, err
	}
	return v.(*Item), nil
}

// ItemDelete deletes item.
func (l *Library) ItemDelete(item *Item, cb AsyncReadyCallback, userData uintptr) {
	l.submit(item, tagItemDelete, cb, userData, func(ctx context.Context) (any, error) {
		if err := l.store.DeleteItem(ctx, item.collection, item.id); err != nil {
			return nil, err
		}
		return true, nil
	})
}

// ItemDeleteFinish completes ItemDelete.
func (l *Library) ItemDeleteFinish(item *Item, res *AsyncResult) (bool, error) {
	v, err := res.propagate(item, tagItemDelete)
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}
