package tree

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/totomo/luvtree/common"
	"github.com/totomo/luvtree/jsonpatch"
)

// Field is one named property of a model.
type Field struct {
	Name string
	Type Type
}

// Prop declares a model field.
func Prop(name string, t Type) Field {
	return Field{Name: name, Type: t}
}

// ModelType is a record node-kind with a fixed, ordered set of fields.
// A field typed Identifier or IdentifierNumber makes the model identified.
type ModelType struct {
	name       string
	fields     []Field
	index      map[string]int
	identifier string
}

// Model creates a model type.
func Model(name string, fields ...Field) *ModelType {
	t := &ModelType{
		name:   name,
		fields: fields,
		index:  make(map[string]int, len(fields)),
	}
	for i, f := range fields {
		t.index[f.Name] = i
		if st, ok := f.Type.(*ScalarType); ok && st.IsIdentifier() && t.identifier == "" {
			t.identifier = f.Name
		}
	}
	return t
}

// Name returns the model name.
func (t *ModelType) Name() string {
	return t.name
}

// Describe lists the fields and their types.
func (t *ModelType) Describe() string {
	parts := make([]string, len(t.fields))
	for i, f := range t.fields {
		parts[i] = f.Name + ": " + f.Type.Describe()
	}
	return t.name + "{ " + strings.Join(parts, "; ") + " }"
}

// Fields returns the declared fields.
func (t *ModelType) Fields() []Field {
	return t.fields
}

// IdentifierAttribute returns the identifier field name, or "".
func (t *ModelType) IdentifierAttribute() string {
	return t.identifier
}

func (t *ModelType) fieldSnapshot(f Field, snapshot map[string]interface{}) interface{} {
	raw, ok := snapshot[f.Name]
	if !ok {
		if ct, isComplex := f.Type.(ComplexType); isComplex {
			return ct.DefaultSnapshot()
		}
		return nil
	}
	return raw
}

// Is accepts instances of this model and map snapshots whose fields all validate.
// Unknown keys are ignored.
func (t *ModelType) Is(v interface{}) bool {
	if inst, ok := v.(Instance); ok {
		n := inst.Handle()
		return n != nil && n.typ == ComplexType(t)
	}
	return t.IsValidSnapshot(v)
}

// IsValidSnapshot reports whether v is a map snapshot of this model.
func (t *ModelType) IsValidSnapshot(v interface{}) bool {
	snapshot, ok := v.(map[string]interface{})
	if !ok {
		return false
	}
	for _, f := range t.fields {
		if !f.Type.Is(t.fieldSnapshot(f, snapshot)) {
			return false
		}
	}
	return true
}

// DefaultSnapshot returns an empty map.
func (t *ModelType) DefaultSnapshot() interface{} {
	return map[string]interface{}{}
}

// Instantiate creates a model instance from a snapshot.
func (t *ModelType) Instantiate(parent *Node, subpath string, v interface{}) (interface{}, error) {
	if !t.IsValidSnapshot(v) {
		return nil, common.ErrInvalidSnapshot{Type: t.Describe(), Value: v}
	}
	m := &ModelInstance{values: make(map[string]interface{}, len(t.fields))}
	m.node = NewNode(t, m, parent, subpath)
	if err := t.Hydrate(m.node, v); err != nil {
		return nil, err
	}
	return m, nil
}

// Hydrate fills every field of a fresh instance.
func (t *ModelType) Hydrate(n *Node, snapshot interface{}) error {
	m := n.value.(*ModelInstance)
	snap, _ := snapshot.(map[string]interface{})
	for _, f := range t.fields {
		v, err := n.PrepareChild(f.Name, t.fieldSnapshot(f, snap), false)
		if err != nil {
			return errors.Wrapf(err, "failed to hydrate field %s.%s", t.name, f.Name)
		}
		m.values[f.Name] = v
	}
	return nil
}

// Serialize returns the field snapshots as a map.
func (t *ModelType) Serialize(n *Node) interface{} {
	m := n.value.(*ModelInstance)
	out := make(map[string]interface{}, len(t.fields))
	for _, f := range t.fields {
		out[f.Name] = SnapshotOf(m.values[f.Name])
	}
	return out
}

// ChildType returns the type of field key.
func (t *ModelType) ChildType(key string) Type {
	i, ok := t.index[key]
	if !ok {
		return nil
	}
	return t.fields[i].Type
}

// EnumerateChildren returns the fields holding nodes, in declaration order.
func (t *ModelType) EnumerateChildren(n *Node) []NamedChild {
	m := n.value.(*ModelInstance)
	var out []NamedChild
	for _, f := range t.fields {
		if c := HandleOf(m.values[f.Name]); c != nil {
			out = append(out, NamedChild{Key: f.Name, Node: c})
		}
	}
	return out
}

// LookupChild returns the node stored in field key.
func (t *ModelType) LookupChild(n *Node, key string) *Node {
	if _, ok := t.index[key]; !ok {
		return nil
	}
	return HandleOf(n.value.(*ModelInstance).values[key])
}

// RemoveChild clears field key. Only fields accepting nil can be cleared.
func (t *ModelType) RemoveChild(n *Node, key string) error {
	ft := t.ChildType(key)
	if ft == nil || !ft.Is(nil) {
		return common.ErrInvalidOperation{Message: fmt.Sprintf("field %s.%s cannot be removed", t.name, key)}
	}
	return n.value.(*ModelInstance).set(key, nil, false)
}

// ApplyPatchLocally writes the patch value into field subpath.
func (t *ModelType) ApplyPatchLocally(n *Node, subpath string, p jsonpatch.Patch) error {
	switch p.Op {
	case jsonpatch.OpAdd, jsonpatch.OpReplace:
		return n.value.(*ModelInstance).set(subpath, p.Value, false)
	case jsonpatch.OpRemove:
		return t.RemoveChild(n, subpath)
	default:
		return p.Validate()
	}
}

// ApplySnapshot writes every field, reconciling nested nodes in place.
func (t *ModelType) ApplySnapshot(n *Node, snapshot interface{}) error {
	m := n.value.(*ModelInstance)
	snap, ok := snapshot.(map[string]interface{})
	if !ok {
		return common.ErrInvalidSnapshot{Type: t.Describe(), Value: snapshot}
	}
	for _, f := range t.fields {
		if err := m.set(f.Name, t.fieldSnapshot(f, snap), true); err != nil {
			return errors.Wrapf(err, "failed to apply field %s.%s", t.name, f.Name)
		}
	}
	return nil
}

// CanReconcile only accepts snapshots carrying the identifier of n.
func (t *ModelType) CanReconcile(n *Node, snapshot interface{}) bool {
	if t.identifier == "" {
		return true
	}
	current, ok := IdentifierOf(n.value, t.identifier)
	if !ok {
		return false
	}
	incoming, ok := IdentifierOf(snapshot, t.identifier)
	return ok && incoming == current
}

// ModelInstance is a live model value.
type ModelInstance struct {
	node   *Node
	values map[string]interface{}
}

// Handle returns the node of the instance.
func (m *ModelInstance) Handle() *Node {
	return m.node
}

// Get returns the stored value of field: a scalar or an Instance.
func (m *ModelInstance) Get(field string) interface{} {
	return m.values[field]
}

// Set writes field, creating a fresh child for snapshots.
func (m *ModelInstance) Set(field string, v interface{}) error {
	return m.set(field, v, false)
}

// Snapshot returns the current snapshot.
func (m *ModelInstance) Snapshot() interface{} {
	return m.node.Snapshot()
}

// ApplySnapshot replaces the content of the instance, keeping nested identities where possible.
func (m *ModelInstance) ApplySnapshot(snapshot interface{}) error {
	return m.node.ApplySnapshot(snapshot)
}

func (m *ModelInstance) set(field string, raw interface{}, reconcile bool) error {
	n := m.node
	t := n.typ.(*ModelType)
	if _, ok := t.index[field]; !ok {
		return common.ErrInvalidOperation{Message: fmt.Sprintf("model %s has no field %q", t.name, field)}
	}
	if err := n.AssertWritable(); err != nil {
		return err
	}

	old := m.values[field]
	if Identical(old, raw) {
		return nil
	}
	if field == t.identifier {
		current, _ := NormalizeIdentifier(old)
		incoming, ok := NormalizeIdentifier(raw)
		if ok && incoming == current {
			return nil
		}
		return common.ErrIdentifierImmutable{Path: n.Path(), Identifier: current}
	}
	if c := HandleOf(raw); c != nil && c.parent == n && c.subpath != field {
		return common.ErrAlreadyAttached{Path: c.Path()}
	}

	v, err := n.PrepareChild(field, raw, reconcile)
	if err != nil {
		return err
	}
	if Identical(old, v) {
		return nil
	}
	if oldNode := HandleOf(old); oldNode != nil && oldNode.parent == n && oldNode.subpath == field {
		oldNode.SetParent(nil, "")
	}
	m.values[field] = v
	n.EmitPatch(jsonpatch.Patch{
		Op:    jsonpatch.OpReplace,
		Path:  jsonpatch.EscapeSegment(field),
		Value: SnapshotOf(v),
	}, n)
	return nil
}
