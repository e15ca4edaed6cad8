// Package collection implements the ordered-collection node kind: an array of scalar
// values or child nodes whose structural edits are reconciled against existing children,
// committed atomically and reported as patches.
package collection

import (
	"fmt"
	"reflect"
	"strconv"

	"github.com/pkg/errors"

	"github.com/totomo/luvtree/common"
	"github.com/totomo/luvtree/jsonpatch"
	"github.com/totomo/luvtree/tree"
)

// ArrayType is the type of an ordered collection over one element type.
type ArrayType struct {
	name string
	elem tree.Type
}

var _ tree.ComplexType = (*ArrayType)(nil)

// Of creates an array type over elem.
func Of(elem tree.Type, opts ...ArrayOption) *ArrayType {
	options := DefaultArrayOptions()
	for _, opt := range opts {
		opt(options)
	}
	name := options.Name
	if name == "" {
		name = elem.Name() + "[]"
	}
	return &ArrayType{name: name, elem: elem}
}

// Create instantiates the type as the root of a new tree.
func (t *ArrayType) Create(snapshot interface{}, opts ...tree.CreateOption) (*Array, error) {
	inst, err := tree.Create(t, snapshot, opts...)
	if err != nil {
		return nil, err
	}
	return inst.(*Array), nil
}

// Name returns the type name.
func (t *ArrayType) Name() string {
	return t.name
}

// Describe returns the element description followed by [].
func (t *ArrayType) Describe() string {
	return t.elem.Describe() + "[]"
}

// ElementType returns the element type.
func (t *ArrayType) ElementType() tree.Type {
	return t.elem
}

// identifierAttribute returns the identity field of the elements, or "".
func (t *ArrayType) identifierAttribute() string {
	if id, ok := t.elem.(tree.Identified); ok {
		return id.IdentifierAttribute()
	}
	return ""
}

// Is accepts live arrays of this type and valid snapshots.
func (t *ArrayType) Is(v interface{}) bool {
	if inst, ok := v.(tree.Instance); ok {
		n := inst.Handle()
		return n != nil && n.Type() == tree.ComplexType(t)
	}
	return t.IsValidSnapshot(v)
}

// IsValidSnapshot reports whether v is a sequence whose every element validates
// against the element type.
func (t *ArrayType) IsValidSnapshot(v interface{}) bool {
	values, ok := toSlice(v)
	if !ok {
		return false
	}
	for _, x := range values {
		if !t.elem.Is(x) {
			return false
		}
	}
	return true
}

// DefaultSnapshot returns an empty sequence.
func (t *ArrayType) DefaultSnapshot() interface{} {
	return []interface{}{}
}

// Instantiate creates an array attached to parent and hydrates it from v.
func (t *ArrayType) Instantiate(parent *tree.Node, subpath string, v interface{}) (interface{}, error) {
	if !t.IsValidSnapshot(v) {
		return nil, common.ErrInvalidSnapshot{Type: t.Describe(), Value: v}
	}
	a := &Array{}
	a.node = tree.NewNode(t, a, parent, subpath)
	if err := t.Hydrate(a.node, v); err != nil {
		return nil, err
	}
	return a, nil
}

// Hydrate populates a fresh array from snapshot. No patches are emitted.
func (t *ArrayType) Hydrate(n *tree.Node, snapshot interface{}) error {
	a := arrayOf(n)
	values, ok := toSlice(snapshot)
	if !ok {
		return common.ErrInvalidSnapshot{Type: t.Describe(), Value: snapshot}
	}
	resolved, err := t.reconcileKeyed(a, values)
	if err != nil {
		return err
	}
	items := make([]interface{}, 0, len(resolved))
	for i, raw := range resolved {
		v, err := n.PrepareChild(strconv.Itoa(i), raw, false)
		if err != nil {
			return errors.Wrapf(err, "failed to hydrate %s[%d]", t.name, i)
		}
		items = append(items, v)
	}
	a.items = items
	return nil
}

// Serialize returns the snapshots of the current elements, in order.
func (t *ArrayType) Serialize(n *tree.Node) interface{} {
	a := arrayOf(n)
	out := make([]interface{}, len(a.items))
	for i, v := range a.items {
		out[i] = tree.SnapshotOf(v)
	}
	return out
}

// ChildType returns the element type for every key.
func (t *ArrayType) ChildType(string) tree.Type {
	return t.elem
}

// EnumerateChildren returns the elements that are nodes, keyed by their index.
func (t *ArrayType) EnumerateChildren(n *tree.Node) []tree.NamedChild {
	a := arrayOf(n)
	var out []tree.NamedChild
	for i, v := range a.items {
		if c := tree.HandleOf(v); c != nil {
			out = append(out, tree.NamedChild{Key: strconv.Itoa(i), Node: c})
		}
	}
	return out
}

// LookupChild returns the node at index key, or nil when key is not an index within
// bounds or the element is a scalar.
func (t *ArrayType) LookupChild(n *tree.Node, key string) *tree.Node {
	a := arrayOf(n)
	index, err := jsonpatch.ParseIndex(key, len(a.items))
	if err != nil || index >= len(a.items) {
		return nil
	}
	return tree.HandleOf(a.items[index])
}

// RemoveChild removes the element at index key through the regular edit pipeline.
func (t *ArrayType) RemoveChild(n *tree.Node, key string) error {
	a := arrayOf(n)
	index, err := jsonpatch.ParseIndex(key, len(a.items))
	if err != nil {
		return err
	}
	_, err = a.RemoveAt(index)
	return err
}

// ApplySnapshot replaces the whole content with snapshot in one splice. Elements
// are matched to existing children by identifier when the element type has one,
// after the interceptors have seen the splice with the raw snapshot values.
func (t *ArrayType) ApplySnapshot(n *tree.Node, snapshot interface{}) error {
	a := arrayOf(n)
	values, ok := toSlice(snapshot)
	if !ok {
		return common.ErrInvalidSnapshot{Type: t.Describe(), Value: snapshot}
	}
	return a.apply(&Edit{Kind: EditSplice, RemovedCount: len(a.items), Added: values, keyed: true})
}

func arrayOf(n *tree.Node) *Array {
	a, ok := n.Value().(*Array)
	if !ok {
		panic(fmt.Sprintf("collection: node %q does not hold an array", n.Path()))
	}
	return a
}

// toSlice converts any Go slice or array to []interface{}.
func toSlice(v interface{}) ([]interface{}, bool) {
	if values, ok := v.([]interface{}); ok {
		return values, true
	}
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]interface{}, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
