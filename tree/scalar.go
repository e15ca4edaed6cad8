package tree

import (
	"strings"

	"github.com/totomo/luvtree/common"
)

// ScalarType is a type whose values are stored directly in their parent slot.
type ScalarType struct {
	name       string
	check      func(v interface{}) bool
	identifier bool
}

// NewScalarType creates a scalar type accepting the values check returns true for.
func NewScalarType(name string, check func(v interface{}) bool) *ScalarType {
	return &ScalarType{name: name, check: check}
}

// Name returns the short name of the type.
func (t *ScalarType) Name() string {
	return t.name
}

// Describe returns the name of the type.
func (t *ScalarType) Describe() string {
	return t.name
}

// Is reports whether v is accepted.
func (t *ScalarType) Is(v interface{}) bool {
	return t.check(v)
}

// Instantiate returns v unchanged after checking it.
func (t *ScalarType) Instantiate(_ *Node, _ string, v interface{}) (interface{}, error) {
	if !t.check(v) {
		return nil, common.ErrInvalidSnapshot{Type: t.name, Value: v}
	}
	return v, nil
}

// IsIdentifier reports whether fields of this type identify their model.
func (t *ScalarType) IsIdentifier() bool {
	return t.identifier
}

var (
	// String accepts Go strings.
	String = NewScalarType("string", func(v interface{}) bool {
		_, ok := v.(string)
		return ok
	})

	// Number accepts any Go numeric value.
	Number = NewScalarType("number", isNumber)

	// Integer accepts integral numbers, including integral float64 values decoded from JSON.
	Integer = NewScalarType("integer", isInteger)

	// Boolean accepts Go bools.
	Boolean = NewScalarType("boolean", func(v interface{}) bool {
		_, ok := v.(bool)
		return ok
	})

	// Frozen accepts any plain value and stores it without wrapping it in a node.
	Frozen = NewScalarType("frozen", func(v interface{}) bool {
		_, isInstance := v.(Instance)
		return !isInstance
	})

	// Identifier is a string field that identifies its model.
	Identifier = &ScalarType{
		name:       "identifier",
		identifier: true,
		check: func(v interface{}) bool {
			_, ok := v.(string)
			return ok
		},
	}

	// IdentifierNumber is a numeric field that identifies its model.
	IdentifierNumber = &ScalarType{
		name:       "identifierNumber",
		identifier: true,
		check:      isNumber,
	}
)

// Literal accepts exactly one comparable value.
func Literal(value interface{}) *ScalarType {
	return NewScalarType("literal", func(v interface{}) bool {
		return Identical(v, value)
	})
}

// Enumeration accepts one of the given strings.
func Enumeration(name string, options ...string) *ScalarType {
	allowed := make(map[string]struct{}, len(options))
	for _, o := range options {
		allowed[o] = struct{}{}
	}
	return NewScalarType(name+"("+strings.Join(options, "|")+")", func(v interface{}) bool {
		s, ok := v.(string)
		if !ok {
			return false
		}
		_, ok = allowed[s]
		return ok
	})
}
