package secret

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/benaskins/secretkit/native"
)

// AttributeType is the declared type of a schema attribute.
type AttributeType int

const (
	String AttributeType = iota
	Integer
	Boolean
)

func (t AttributeType) String() string {
	switch t {
	case String:
		return "string"
	case Integer:
		return "integer"
	case Boolean:
		return "boolean"
	}
	return fmt.Sprintf("type(%d)", int(t))
}

func (t AttributeType) nativeType() native.SchemaAttributeType {
	switch t {
	case Integer:
		return native.SchemaAttributeInteger
	case Boolean:
		return native.SchemaAttributeBoolean
	case String:
		return native.SchemaAttributeString
	}
	// Out of range; the native layer rejects it.
	return native.SchemaAttributeType(t)
}

// Schema is a named, typed attribute declaration. It is immutable and safe
// to share between concurrent operations.
type Schema struct {
	name  string
	types map[string]AttributeType
	ns    *native.Schema
}

// SchemaOption configures a Schema.
type SchemaOption func(*native.SchemaFlags)

// DontMatchName makes searches ignore the schema name and match on
// attributes alone.
func DontMatchName() SchemaOption {
	return func(f *native.SchemaFlags) {
		*f |= native.SchemaDontMatchName
	}
}

// NewSchema declares a schema. A schema without attributes is valid and
// matches by name alone.
func NewSchema(name string, types map[string]AttributeType, opts ...SchemaOption) (*Schema, error) {
	flags := native.SchemaNone
	for _, opt := range opts {
		opt(&flags)
	}

	copied := make(map[string]AttributeType, len(types))
	nativeTypes := make(map[string]native.SchemaAttributeType, len(types))
	for k, t := range types {
		copied[k] = t
		nativeTypes[k] = t.nativeType()
	}

	ns := native.SchemaNew(name, flags, nativeTypes)
	if ns == nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSchema, name)
	}
	return &Schema{name: name, types: copied, ns: ns}, nil
}

// Name returns the schema name.
func (s *Schema) Name() string { return s.name }

// AttributeType returns the declared type of an attribute.
func (s *Schema) AttributeType(name string) (AttributeType, bool) {
	t, ok := s.types[name]
	return t, ok
}

// AttributeNames returns the declared attribute names, sorted.
func (s *Schema) AttributeNames() []string {
	names := make([]string, 0, len(s.types))
	for k := range s.types {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Decode parses wire-form attributes back into typed values.
func (s *Schema) Decode(raw map[string]string) (Attributes, error) {
	attrs := make(Attributes, len(raw))
	for k, v := range raw {
		t, ok := s.types[k]
		if !ok {
			return nil, fmt.Errorf("%w: %q is not declared by %s", ErrSchemaMismatch, k, s.name)
		}
		switch t {
		case Integer:
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: attribute %q: %v", ErrDecode, k, err)
			}
			attrs[k] = Int(n)
		case Boolean:
			switch v {
			case "1":
				attrs[k] = Bool(true)
			case "0":
				attrs[k] = Bool(false)
			default:
				return nil, fmt.Errorf("%w: attribute %q: invalid boolean %q", ErrDecode, k, v)
			}
		default:
			attrs[k] = Text(v)
		}
	}
	return attrs, nil
}
