package native

import (
	"errors"
	"sync"
)

// ErrDangling is returned when a table references a freed string.
var ErrDangling = errors.New("attribute buffer released before use")

// AttributeTable is a string-keyed table of native strings.
//
// A table built with NewAttributeTable holds non-owning references: the
// caller keeps the strings alive for as long as the table is in use. A
// table returned by the native layer owns its strings, and the receiver
// must call Unref once it has copied what it needs.
type AttributeTable struct {
	mu      sync.Mutex
	keys    []*CString
	values  []*CString
	owned   bool
	dropped bool
}

// NewAttributeTable creates an empty non-owning table.
func NewAttributeTable() *AttributeTable {
	return &AttributeTable{}
}

func newOwnedTable(a *Allocator, attrs map[string]string) *AttributeTable {
	t := &AttributeTable{owned: true}
	for _, k := range sortedKeys(attrs) {
		t.keys = append(t.keys, a.Strdup(k))
		t.values = append(t.values, a.Strdup(attrs[k]))
	}
	return t
}

// Insert adds or replaces key. Neither string is copied.
func (t *AttributeTable) Insert(key, value *CString) {
	t.mu.Lock()
	defer t.mu.Unlock()
	k, _ := key.Get()
	for i, existing := range t.keys {
		if s, _ := existing.Get(); s == k {
			t.values[i] = value
			return
		}
	}
	t.keys = append(t.keys, key)
	t.values = append(t.values, value)
}

// Size returns the number of entries.
func (t *AttributeTable) Size() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.keys)
}

// Foreach calls fn for every entry in insertion order. It stops at the
// first error from fn, and fails with ErrDangling if any referenced
// string has been freed.
func (t *AttributeTable) Foreach(fn func(key, value string) error) error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	keys := append([]*CString(nil), t.keys...)
	values := append([]*CString(nil), t.values...)
	t.mu.Unlock()

	for i := range keys {
		k, ok := keys[i].Get()
		if !ok {
			return ErrDangling
		}
		v, ok := values[i].Get()
		if !ok {
			return ErrDangling
		}
		if err := fn(k, v); err != nil {
			return err
		}
	}
	return nil
}

// Unref releases an owned table's strings. It is a no-op on non-owning
// tables and on tables already released.
func (t *AttributeTable) Unref() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.owned || t.dropped {
		return
	}
	t.dropped = true
	for i := range t.keys {
		t.keys[i].Free()
		t.values[i].Free()
	}
	t.keys = nil
	t.values = nil
}

// toMap copies the table into Go memory.
func (t *AttributeTable) toMap() (map[string]string, error) {
	m := make(map[string]string, t.Size())
	err := t.Foreach(func(k, v string) error {
		m[k] = v
		return nil
	})
	return m, err
}
