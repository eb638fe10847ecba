package secret

import (
	"time"

	"github.com/benaskins/secretkit/internal/bridge"
	"github.com/benaskins/secretkit/native"
)

// Collection is a handle to a named group of items.
type Collection struct {
	client *Client
	native *native.Collection
}

func (c *Collection) ID() string          { return c.native.GetID() }
func (c *Collection) Label() string       { return c.native.GetLabel() }
func (c *Collection) Alias() string       { return c.native.GetAlias() }
func (c *Collection) Locked() bool        { return c.native.GetLocked() }
func (c *Collection) Created() time.Time  { return c.native.GetCreated() }
func (c *Collection) Modified() time.Time { return c.native.GetModified() }

func (c *Client) wrapCollection(nc *native.Collection) (*Collection, error) {
	if nc == nil {
		return nil, ErrDecode
	}
	return &Collection{client: c, native: nc}, nil
}

// CreateCollection creates a collection. If alias is already bound, the
// existing collection is delivered instead.
func (c *Client) CreateCollection(label, alias string, cont func(*Collection, error)) {
	bridge.Dispatch(c.bridge, "collection_create",
		func(cb native.AsyncReadyCallback, ud uintptr) {
			c.lib.CollectionCreate(label, alias, native.CollectionCreateNone, cb, ud)
		},
		c.lib.CollectionCreateFinish,
		c.wrapCollection,
		cont,
	)
}

// CollectionForAlias finds the collection bound to alias.
func (c *Client) CollectionForAlias(alias string, cont func(*Collection, error)) {
	bridge.Dispatch(c.bridge, "collection_for_alias",
		func(cb native.AsyncReadyCallback, ud uintptr) {
			c.lib.CollectionForAlias(alias, cb, ud)
		},
		c.lib.CollectionForAliasFinish,
		c.wrapCollection,
		cont,
	)
}

// Delete deletes the collection and every item in it.
func (c *Collection) Delete(cont func(bool, error)) {
	lib := c.client.lib
	bridge.Dispatch(c.client.bridge, "collection_delete",
		func(cb native.AsyncReadyCallback, ud uintptr) {
			lib.CollectionDelete(c.native, cb, ud)
		},
		func(res *native.AsyncResult) (bool, error) {
			return lib.CollectionDeleteFinish(c.native, res)
		},
		boolResult,
		cont,
	)
}

// Search finds the items in the collection matching schema and attrs. Every
// match is returned with its secret loaded, unlocking as needed.
func (c *Collection) Search(schema *Schema, attrs Attributes, cont func([]*Item, error)) error {
	lib := c.client.lib
	table, pool, err := encode(lib.Allocator(), schema, attrs)
	if err != nil {
		return err
	}
	bridge.Dispatch(c.client.bridge, "collection_search",
		func(cb native.AsyncReadyCallback, ud uintptr) {
			lib.CollectionSearch(c.native, schema.ns, table, DefaultSearchFlags().bits(), cb, ud)
		},
		func(res *native.AsyncResult) (*native.List, error) {
			return lib.CollectionSearchFinish(c.native, res)
		},
		c.client.itemList,
		cont,
		pool,
	)
	return nil
}

// CreateItem stores password as a new item, replacing an item with the same
// schema and attributes.
func (c *Collection) CreateItem(schema *Schema, label, password string, attrs Attributes, cont func(*Item, error)) error {
	lib := c.client.lib
	table, pool, err := encode(lib.Allocator(), schema, attrs)
	if err != nil {
		return err
	}
	nlabel := pool.Strdup(label)
	value := native.NewValue([]byte(password), native.ContentTypeText)
	bridge.Dispatch(c.client.bridge, "item_create",
		func(cb native.AsyncReadyCallback, ud uintptr) {
			lib.ItemCreate(c.native, schema.ns, table, nlabel, value, DefaultItemCreateFlags().bits(), cb, ud)
		},
		lib.ItemCreateFinish,
		c.client.wrapItem,
		cont,
		pool,
	)
	return nil
}
