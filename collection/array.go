package collection

import (
	"github.com/totomo/luvtree/common"
	"github.com/totomo/luvtree/tree"
)

// Array is a live ordered collection. Every structural edit runs the same pipeline:
// interception (writability, user interceptors, reconciliation), commit, observation
// (patch emission, user observers).
type Array struct {
	node  *tree.Node
	items []interface{}

	interceptors []interceptorEntry
	observers    []observerEntry
	nextHook     int
}

type interceptorEntry struct {
	id int
	fn Interceptor
}

type observerEntry struct {
	id int
	fn Observer
}

// Handle returns the node of the array.
func (a *Array) Handle() *tree.Node {
	return a.node
}

func (a *Array) arrayType() *ArrayType {
	return a.node.Type().(*ArrayType)
}

// Len returns the number of elements.
func (a *Array) Len() int {
	return len(a.items)
}

// Get returns the element at index, or nil when index is out of bounds.
func (a *Array) Get(index int) interface{} {
	if index < 0 || index >= len(a.items) {
		return nil
	}
	return a.items[index]
}

// Node returns the node at index, or nil for scalars and out of bounds indexes.
func (a *Array) Node(index int) *tree.Node {
	return tree.HandleOf(a.Get(index))
}

// Items returns a copy of the elements.
func (a *Array) Items() []interface{} {
	return append([]interface{}(nil), a.items...)
}

// IndexOf returns the index of the element identical to v, or -1.
func (a *Array) IndexOf(v interface{}) int {
	for i, x := range a.items {
		if tree.Identical(x, v) {
			return i
		}
	}
	return -1
}

// Snapshot returns the current snapshot.
func (a *Array) Snapshot() []interface{} {
	return a.node.Snapshot().([]interface{})
}

// ApplySnapshot replaces the content with snapshot, preserving identities by
// identifier when the element type has one.
func (a *Array) ApplySnapshot(snapshot interface{}) error {
	return a.node.ApplySnapshot(snapshot)
}

// Set overwrites the element at index. Setting index Len() appends.
func (a *Array) Set(index int, v interface{}) error {
	if index < 0 || index > len(a.items) {
		return common.ErrIndexOutOfBounds{Path: a.node.Path(), Index: index, Length: len(a.items)}
	}
	if index == len(a.items) {
		_, err := a.Splice(index, 0, v)
		return err
	}
	return a.apply(&Edit{Kind: EditUpdate, Index: index, NewValue: v, OldValue: a.items[index]})
}

// Splice removes removeCount elements at index, inserts added in their place and
// returns the removed elements. removeCount is clamped to the available elements.
func (a *Array) Splice(index, removeCount int, added ...interface{}) ([]interface{}, error) {
	if index < 0 || index > len(a.items) {
		return nil, common.ErrIndexOutOfBounds{Path: a.node.Path(), Index: index, Length: len(a.items)}
	}
	removeCount = clampRemoveCount(index, removeCount, len(a.items))
	if removeCount == 0 && len(added) == 0 {
		return nil, nil
	}
	e := &Edit{Kind: EditSplice, Index: index, RemovedCount: removeCount, Added: added}
	if err := a.apply(e); err != nil {
		return nil, err
	}
	return e.Removed, nil
}

// Push appends values.
func (a *Array) Push(values ...interface{}) error {
	_, err := a.Splice(len(a.items), 0, values...)
	return err
}

// Insert inserts values at index.
func (a *Array) Insert(index int, values ...interface{}) error {
	_, err := a.Splice(index, 0, values...)
	return err
}

// RemoveAt removes and returns the element at index.
func (a *Array) RemoveAt(index int) (interface{}, error) {
	if index < 0 || index >= len(a.items) {
		return nil, common.ErrIndexOutOfBounds{Path: a.node.Path(), Index: index, Length: len(a.items)}
	}
	removed, err := a.Splice(index, 1)
	if err != nil || len(removed) == 0 {
		return nil, err
	}
	return removed[0], nil
}

// Pop removes and returns the last element.
func (a *Array) Pop() (interface{}, error) {
	if len(a.items) == 0 {
		return nil, nil
	}
	return a.RemoveAt(len(a.items) - 1)
}

// Clear removes every element.
func (a *Array) Clear() ([]interface{}, error) {
	return a.Splice(0, len(a.items))
}

// Replace substitutes the whole content with values using positional reconciliation.
func (a *Array) Replace(values []interface{}) error {
	_, err := a.Splice(0, len(a.items), values...)
	return err
}

// Intercept registers fn to run before every edit, after the writability check and
// before reconciliation.
func (a *Array) Intercept(fn Interceptor) (dispose func()) {
	a.nextHook++
	id := a.nextHook
	a.interceptors = append(a.interceptors, interceptorEntry{id: id, fn: fn})
	return func() {
		for i, h := range a.interceptors {
			if h.id == id {
				a.interceptors = append(a.interceptors[:i], a.interceptors[i+1:]...)
				return
			}
		}
	}
}

// Observe registers fn to run after every committed edit, once patches are emitted.
func (a *Array) Observe(fn Observer) (dispose func()) {
	a.nextHook++
	id := a.nextHook
	a.observers = append(a.observers, observerEntry{id: id, fn: fn})
	return func() {
		for i, h := range a.observers {
			if h.id == id {
				a.observers = append(a.observers[:i], a.observers[i+1:]...)
				return
			}
		}
	}
}

// apply runs one edit through interception, commit and observation.
// Nothing else can touch the array between the three phases.
func (a *Array) apply(e *Edit) error {
	t := a.arrayType()
	e, err := t.willChange(a, e)
	if err != nil || e == nil {
		return err
	}
	a.commit(e)
	t.didChange(a, *e)
	for _, h := range append([]observerEntry(nil), a.observers...) {
		h.fn(a, *e)
	}
	return nil
}

func (a *Array) commit(e *Edit) {
	switch e.Kind {
	case EditUpdate:
		a.items[e.Index] = e.NewValue
	case EditSplice:
		end := e.Index + e.RemovedCount
		e.Removed = append([]interface{}(nil), a.items[e.Index:end]...)
		next := make([]interface{}, 0, len(a.items)-e.RemovedCount+len(e.Added))
		next = append(next, a.items[:e.Index]...)
		next = append(next, e.Added...)
		next = append(next, a.items[end:]...)
		a.items = next
	}
}

func clampRemoveCount(index, removeCount, length int) int {
	if removeCount < 0 {
		return 0
	}
	if index+removeCount > length {
		return length - index
	}
	return removeCount
}
