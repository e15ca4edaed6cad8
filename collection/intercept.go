package collection

import (
	"strconv"

	"github.com/totomo/luvtree/common"
	"github.com/totomo/luvtree/tree"
)

// willChange is the pre-commit hook of every array. It returns the edit to commit,
// or nil when the edit turned out to be a no-op or was cancelled.
func (t *ArrayType) willChange(a *Array, e *Edit) (*Edit, error) {
	if err := a.node.AssertWritable(); err != nil {
		return nil, err
	}

	for _, h := range append([]interceptorEntry(nil), a.interceptors...) {
		next, err := h.fn(a, e)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return nil, nil
		}
		e = next
	}

	switch e.Kind {
	case EditUpdate:
		return t.willUpdate(a, e)
	case EditSplice:
		return t.willSplice(a, e)
	default:
		return nil, common.ErrInvalidOperation{Message: "unknown edit kind " + e.Kind.String()}
	}
}

func (t *ArrayType) willUpdate(a *Array, e *Edit) (*Edit, error) {
	if e.Index < 0 || e.Index >= len(a.items) {
		return nil, common.ErrIndexOutOfBounds{Path: a.node.Path(), Index: e.Index, Length: len(a.items)}
	}
	old := a.items[e.Index]
	if tree.Identical(e.NewValue, old) {
		return nil, nil
	}
	if c := tree.HandleOf(e.NewValue); c != nil && c.Parent() == a.node {
		return nil, common.ErrAlreadyAttached{Path: c.Path()}
	}

	v, err := a.node.PrepareChild(strconv.Itoa(e.Index), e.NewValue, false)
	if err != nil {
		return nil, err
	}
	if oldNode := tree.HandleOf(old); oldNode != nil && !tree.Identical(old, v) {
		oldNode.SetParent(nil, "")
	}
	e.OldValue = old
	e.NewValue = v
	return e, nil
}

func (t *ArrayType) willSplice(a *Array, e *Edit) (*Edit, error) {
	if e.Index < 0 || e.Index > len(a.items) {
		return nil, common.ErrIndexOutOfBounds{Path: a.node.Path(), Index: e.Index, Length: len(a.items)}
	}
	e.RemovedCount = clampRemoveCount(e.Index, e.RemovedCount, len(a.items))
	if e.RemovedCount == 0 && len(e.Added) == 0 {
		return nil, nil
	}

	added := e.Added
	if e.keyed {
		resolved, err := t.reconcileKeyed(a, added)
		if err != nil {
			return nil, err
		}
		added = resolved
	}
	added, err := t.reconcileUnkeyed(a, e.Index, e.RemovedCount, added)
	if err != nil {
		return nil, err
	}
	e.Added = added
	return e, nil
}
