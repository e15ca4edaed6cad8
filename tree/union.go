package tree

import (
	"strings"

	"github.com/totomo/luvtree/common"
)

// UnionType accepts values of any of its member types. A snapshot is instantiated
// by the first member that accepts it.
type UnionType struct {
	types []Type
}

// Union creates a union of types.
func Union(types ...Type) *UnionType {
	return &UnionType{types: types}
}

// Name returns the short name of the type.
func (t *UnionType) Name() string {
	return "union"
}

// Describe lists the member types.
func (t *UnionType) Describe() string {
	parts := make([]string, len(t.types))
	for i, m := range t.types {
		parts[i] = m.Describe()
	}
	return "(" + strings.Join(parts, " | ") + ")"
}

// Is reports whether any member accepts v.
func (t *UnionType) Is(v interface{}) bool {
	return t.Dispatch(v) != nil
}

// Dispatch returns the first member accepting v, or nil.
func (t *UnionType) Dispatch(v interface{}) Type {
	for _, m := range t.types {
		if m.Is(v) {
			return m
		}
	}
	return nil
}

// Instantiate delegates to the first member accepting v.
func (t *UnionType) Instantiate(parent *Node, subpath string, v interface{}) (interface{}, error) {
	m := t.Dispatch(v)
	if m == nil {
		return nil, common.ErrInvalidSnapshot{Type: t.Describe(), Value: v}
	}
	return m.Instantiate(parent, subpath, v)
}

// IdentifierAttribute returns the identifier attribute shared by every member,
// or "" when members disagree.
func (t *UnionType) IdentifierAttribute() string {
	attr := ""
	for i, m := range t.types {
		id, ok := m.(Identified)
		if !ok || id.IdentifierAttribute() == "" {
			return ""
		}
		if i == 0 {
			attr = id.IdentifierAttribute()
		} else if attr != id.IdentifierAttribute() {
			return ""
		}
	}
	return attr
}

// Maybe accepts nil in addition to the values of t.
func Maybe(t Type) Type {
	return &maybeType{inner: t}
}

type maybeType struct {
	inner Type
}

func (t *maybeType) Name() string {
	return "maybe"
}

func (t *maybeType) Describe() string {
	return t.inner.Describe() + "?"
}

func (t *maybeType) Is(v interface{}) bool {
	return v == nil || t.inner.Is(v)
}

func (t *maybeType) Instantiate(parent *Node, subpath string, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	return t.inner.Instantiate(parent, subpath, v)
}

func (t *maybeType) IdentifierAttribute() string {
	if id, ok := t.inner.(Identified); ok {
		return id.IdentifierAttribute()
	}
	return ""
}
