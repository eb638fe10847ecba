package secret

import (
	"github.com/benaskins/secretkit/internal/bridge"
	"github.com/benaskins/secretkit/native"
)

// Passwords stores text passwords under a single schema without handling
// collections directly.
type Passwords struct {
	client *Client
	schema *Schema
	alias  string
}

// Passwords returns a facade over schema using the default collection.
func (c *Client) Passwords(schema *Schema) *Passwords {
	return &Passwords{client: c, schema: schema}
}

// InCollection returns a copy of p that stores into the collection bound to
// alias. The default collection is created on first use; other aliases
// must already exist.
func (p *Passwords) InCollection(alias string) *Passwords {
	cp := *p
	cp.alias = alias
	return &cp
}

// Store saves password under attrs, replacing any password stored with the
// same attributes.
func (p *Passwords) Store(label, password string, attrs Attributes, cont func(bool, error)) error {
	lib := p.client.lib
	table, pool, err := encode(lib.Allocator(), p.schema, attrs)
	if err != nil {
		return err
	}
	nlabel := pool.Strdup(label)
	npassword := pool.Strdup(password)
	bridge.Dispatch(p.client.bridge, "password_store",
		func(cb native.AsyncReadyCallback, ud uintptr) {
			lib.PasswordStore(p.schema.ns, p.alias, table, nlabel, npassword, cb, ud)
		},
		lib.PasswordStoreFinish,
		boolResult,
		cont,
		pool,
	)
	return nil
}

// Lookup delivers the first password matching attrs. No match is a
// not-found ServiceError.
func (p *Passwords) Lookup(attrs Attributes, cont func(string, error)) error {
	lib := p.client.lib
	table, pool, err := encode(lib.Allocator(), p.schema, attrs)
	if err != nil {
		return err
	}
	bridge.Dispatch(p.client.bridge, "password_lookup",
		func(cb native.AsyncReadyCallback, ud uintptr) {
			lib.PasswordLookup(p.schema.ns, table, cb, ud)
		},
		lib.PasswordLookupFinish,
		takeString,
		cont,
		pool,
	)
	return nil
}

// takeString copies a native string and frees it.
func takeString(s *native.CString) (string, error) {
	if s == nil {
		return "", ErrDecode
	}
	defer s.Free()
	v, ok := s.Get()
	if !ok {
		return "", ErrDecode
	}
	return v, nil
}

// Search delivers every item matching attrs across all collections, with
// secrets loaded.
func (p *Passwords) Search(attrs Attributes, cont func([]*Item, error)) error {
	lib := p.client.lib
	table, pool, err := encode(lib.Allocator(), p.schema, attrs)
	if err != nil {
		return err
	}
	bridge.Dispatch(p.client.bridge, "password_search",
		func(cb native.AsyncReadyCallback, ud uintptr) {
			lib.PasswordSearch(p.schema.ns, table, DefaultSearchFlags().bits(), cb, ud)
		},
		lib.PasswordSearchFinish,
		p.client.itemList,
		cont,
		pool,
	)
	return nil
}

// SearchAll delivers every item stored under the schema.
func (p *Passwords) SearchAll(cont func([]*Item, error)) error {
	return p.Search(nil, cont)
}

// Clear removes every password matching attrs. Clearing nothing still
// delivers true.
func (p *Passwords) Clear(attrs Attributes, cont func(bool, error)) error {
	lib := p.client.lib
	table, pool, err := encode(lib.Allocator(), p.schema, attrs)
	if err != nil {
		return err
	}
	bridge.Dispatch(p.client.bridge, "password_clear",
		func(cb native.AsyncReadyCallback, ud uintptr) {
			lib.PasswordClear(p.schema.ns, table, cb, ud)
		},
		lib.PasswordClearFinish,
		boolResult,
		cont,
		pool,
	)
	return nil
}
