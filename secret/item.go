package secret

import (
	"time"

	"github.com/benaskins/secretkit/internal/bridge"
	"github.com/benaskins/secretkit/native"
)

// Payload is a secret with its content type.
type Payload struct {
	Data        []byte
	ContentType string
}

// Text returns the payload as a string if it is text/plain.
func (p *Payload) Text() (string, bool) {
	if p.ContentType != native.ContentTypeText {
		return "", false
	}
	return string(p.Data), true
}

// Item is a handle to one stored secret.
type Item struct {
	client *Client
	native *native.Item
}

func (c *Client) wrapItem(ni *native.Item) (*Item, error) {
	if ni == nil {
		return nil, ErrDecode
	}
	return &Item{client: c, native: ni}, nil
}

func (i *Item) ID() string           { return i.native.GetID() }
func (i *Item) Label() string        { return i.native.GetLabel() }
func (i *Item) SchemaName() string   { return i.native.GetSchemaName() }
func (i *Item) Locked() bool         { return i.native.GetLocked() }
func (i *Item) Created() time.Time   { return i.native.GetCreated() }
func (i *Item) Modified() time.Time  { return i.native.GetModified() }
func (i *Item) CollectionID() string { return i.native.GetCollectionID() }

// Secret returns the item's secret, or nil if it was not loaded.
func (i *Item) Secret() *Payload {
	v := i.native.GetSecret()
	if v == nil {
		return nil
	}
	return &Payload{Data: v.Get(), ContentType: v.ContentType()}
}

// Attributes returns a copy of the item's attributes in wire form. It does
// not contact the service.
func (i *Item) Attributes() map[string]string {
	table := i.native.GetAttributes()
	defer table.Unref()
	attrs, err := DecodeAttributes(table)
	if err != nil {
		i.client.logger.Warn("item attributes could not be decoded", "item", i.ID(), "error", err)
		return map[string]string{}
	}
	return attrs
}

// Delete deletes the item.
func (i *Item) Delete(cont func(bool, error)) {
	lib := i.client.lib
	bridge.Dispatch(i.client.bridge, "item_delete",
		func(cb native.AsyncReadyCallback, ud uintptr) {
			lib.ItemDelete(i.native, cb, ud)
		},
		func(res *native.AsyncResult) (bool, error) {
			return lib.ItemDeleteFinish(i.native, res)
		},
		boolResult,
		cont,
	)
}
