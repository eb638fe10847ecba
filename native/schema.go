package native

import (
	"fmt"
	"strconv"
)

// SchemaAttributeType is the declared type of a schema attribute.
type SchemaAttributeType int

const (
	SchemaAttributeString SchemaAttributeType = iota
	SchemaAttributeInteger
	SchemaAttributeBoolean
)

// Schema declares the attributes valid for a family of items. It is
// immutable once created.
type Schema struct {
	name       string
	flags      SchemaFlags
	attributes map[string]SchemaAttributeType
}

// SchemaNew creates a schema, or returns nil if the name is empty or an
// attribute is unnamed or of an unknown type.
func SchemaNew(name string, flags SchemaFlags, attributes map[string]SchemaAttributeType) *Schema {
	if name == "" {
		return nil
	}
	attrs := make(map[string]SchemaAttributeType, len(attributes))
	for k, typ := range attributes {
		if k == "" || typ < SchemaAttributeString || typ > SchemaAttributeBoolean {
			return nil
		}
		attrs[k] = typ
	}
	return &Schema{name: name, flags: flags, attributes: attrs}
}

// Name returns the schema name.
func (s *Schema) Name() string { return s.name }

// Flags returns the schema flags.
func (s *Schema) Flags() SchemaFlags { return s.flags }

// AttributeType returns the declared type of name.
func (s *Schema) AttributeType(name string) (SchemaAttributeType, bool) {
	typ, ok := s.attributes[name]
	return typ, ok
}

// matchName is the schema name a search filters on, empty for none.
func (s *Schema) matchName() string {
	if s == nil || s.flags&SchemaDontMatchName != 0 {
		return ""
	}
	return s.name
}

// validate checks attrs against the declared types and copies them out.
func (s *Schema) validate(attrs *AttributeTable) (map[string]string, error) {
	out, err := attrs.toMap()
	if err != nil {
		return nil, err
	}
	if s == nil {
		return out, nil
	}
	for k, v := range out {
		typ, ok := s.attributes[k]
		if !ok {
			return nil, newError(ErrorInvalidArgs, "attribute %q is not in schema %s", k, s.name)
		}
		switch typ {
		case SchemaAttributeInteger:
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				return nil, newError(ErrorInvalidArgs, "attribute %q: invalid integer %q", k, v)
			}
		case SchemaAttributeBoolean:
			if v != "0" && v != "1" {
				return nil, newError(ErrorInvalidArgs, "attribute %q: invalid boolean %q", k, v)
			}
		}
	}
	return out, nil
}

func (t SchemaAttributeType) String() string {
	switch t {
	case SchemaAttributeString:
		return "string"
	case SchemaAttributeInteger:
		return "integer"
	case SchemaAttributeBoolean:
		return "boolean"
	}
	return fmt.Sprintf("type(%d)", int(t))
}
