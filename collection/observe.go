package collection

import (
	"strconv"

	"github.com/totomo/luvtree/jsonpatch"
	"github.com/totomo/luvtree/tree"
)

// didChange is the post-commit hook of every array. It reports the committed edit
// as patches: removals from the highest index down, then additions from the lowest
// index up, so that replaying them in order reproduces the new content.
func (t *ArrayType) didChange(a *Array, e Edit) {
	n := a.node
	switch e.Kind {
	case EditUpdate:
		n.EmitPatch(jsonpatch.Patch{
			Op:    jsonpatch.OpReplace,
			Path:  strconv.Itoa(e.Index),
			Value: tree.SnapshotOf(e.NewValue),
		}, n)
	case EditSplice:
		for i := e.Index + e.RemovedCount - 1; i >= e.Index; i-- {
			n.EmitPatch(jsonpatch.Patch{Op: jsonpatch.OpRemove, Path: strconv.Itoa(i)}, n)
		}
		for i, v := range e.Added {
			n.EmitPatch(jsonpatch.Patch{
				Op:    jsonpatch.OpAdd,
				Path:  strconv.Itoa(e.Index + i),
				Value: tree.SnapshotOf(v),
			}, n)
		}
	}
}

// ApplyPatchLocally applies one already resolved patch to the element addressed by
// subpath. "-" addresses the position after the last element, so a replace there
// appends.
func (t *ArrayType) ApplyPatchLocally(n *tree.Node, subpath string, p jsonpatch.Patch) error {
	a := arrayOf(n)
	index, err := jsonpatch.ParseIndex(subpath, len(a.items))
	if err != nil {
		return err
	}
	switch p.Op {
	case jsonpatch.OpReplace:
		return a.Set(index, p.Value)
	case jsonpatch.OpAdd:
		return a.Insert(index, p.Value)
	case jsonpatch.OpRemove:
		_, err := a.RemoveAt(index)
		return err
	default:
		return p.Validate()
	}
}
