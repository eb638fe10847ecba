package secret

import (
	"fmt"
	"strconv"

	"github.com/benaskins/secretkit/native"
)

// Value is an attribute value tagged with its type.
type Value struct {
	typ AttributeType
	s   string
	n   int64
	b   bool
}

// Bool returns a Boolean attribute value.
func Bool(b bool) Value { return Value{typ: Boolean, b: b} }

// Int returns an Integer attribute value.
func Int(n int64) Value { return Value{typ: Integer, n: n} }

// Text returns a String attribute value.
func Text(s string) Value { return Value{typ: String, s: s} }

// Type returns the value's type.
func (v Value) Type() AttributeType { return v.typ }

// Bool returns the value of a Boolean attribute.
func (v Value) Bool() bool { return v.b }

// Int returns the value of an Integer attribute.
func (v Value) Int() int64 { return v.n }

// Text returns the value of a String attribute.
func (v Value) Text() string { return v.s }

// String returns the wire form: "1" or "0" for booleans, decimal for
// integers, verbatim for strings.
func (v Value) String() string {
	switch v.typ {
	case Boolean:
		if v.b {
			return "1"
		}
		return "0"
	case Integer:
		return strconv.FormatInt(v.n, 10)
	}
	return v.s
}

// Attributes tag a stored secret and filter searches.
type Attributes map[string]Value

// encode builds the native table for attrs. The table only borrows its
// strings: they live in the returned pool, which must outlive the native
// call and be released after its completion.
func encode(alloc *native.Allocator, schema *Schema, attrs Attributes) (*native.AttributeTable, *native.StringPool, error) {
	for k, v := range attrs {
		t, ok := schema.types[k]
		if !ok {
			return nil, nil, fmt.Errorf("%w: %q is not declared by %s", ErrSchemaMismatch, k, schema.name)
		}
		if t != v.typ {
			return nil, nil, fmt.Errorf("%w: %q is %s, got %s", ErrSchemaMismatch, k, t, v.typ)
		}
	}

	pool := alloc.NewStringPool()
	table := native.NewAttributeTable()
	for k, v := range attrs {
		table.Insert(pool.Strdup(k), pool.Strdup(v.String()))
	}
	return table, pool, nil
}

// DecodeAttributes copies a native table into Go strings.
func DecodeAttributes(table *native.AttributeTable) (map[string]string, error) {
	out := make(map[string]string, table.Size())
	err := table.Foreach(func(k, v string) error {
		out[k] = v
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return out, nil
}
