package collection

import (
	"strconv"

	"go.uber.org/zap"

	"github.com/totomo/luvtree/common"
	"github.com/totomo/luvtree/internal/lvlog"
	"github.com/totomo/luvtree/tree"
)

// reconcileUnkeyed resolves the values inserted by a splice at index that removes
// removedCount elements. Inserted snapshots aligned with a removed element are
// applied onto it in place when its type accepts them; the rest become new values.
// Removed nodes that are not reused are detached and survivors after the edited
// region are reindexed to their post-commit position.
//
// Every value is checked before any node is touched, so a rejected splice leaves
// the array and its children as they were.
func (t *ArrayType) reconcileUnkeyed(a *Array, index, removedCount int, added []interface{}) ([]interface{}, error) {
	n := a.node
	end := index + removedCount

	// Live nodes may only be moved within the edited array from the removed region.
	moving := make(map[*tree.Node]bool)
	for _, v := range added {
		if !t.elem.Is(v) {
			return nil, common.ErrInvalidSnapshot{Type: t.elem.Describe(), Value: v}
		}
		c := tree.HandleOf(v)
		if c == nil {
			continue
		}
		if moving[c] {
			return nil, common.ErrInvalidOperation{Message: "the same node cannot be inserted twice: " + c.Path()}
		}
		moving[c] = true
		if err := n.CheckAttachable(c); err != nil {
			return nil, err
		}
		if c.Parent() != n {
			continue
		}
		at := a.IndexOf(v)
		if at < index || at >= end {
			return nil, common.ErrAlreadyAttached{Path: c.Path()}
		}
	}

	reconcilable := removedCount
	if len(added) < reconcilable {
		reconcilable = len(added)
	}

	lvlog.Named("collection").Debug("reconcile splice",
		zap.String("path", n.Path()),
		zap.Int("index", index),
		zap.Int("removed", removedCount),
		zap.Int("added", len(added)),
		zap.Int("reconcilable", reconcilable))

	// Fresh values first, then in-place updates, then live nodes. Only in-place
	// updates can still fail, and no node has been attached or reindexed before them.
	const (
		fresh = iota
		inPlace
		live
	)
	phase := make([]int, len(added))
	for pos, raw := range added {
		switch {
		case tree.HandleOf(raw) != nil:
			phase[pos] = live
		case pos < reconcilable:
			occupant := tree.HandleOf(a.items[index+pos])
			if occupant != nil && !moving[occupant] && tree.CanReconcile(occupant, raw) {
				phase[pos] = inPlace
			}
		}
	}

	out := make([]interface{}, len(added))
	for _, p := range []int{fresh, inPlace, live} {
		for pos, raw := range added {
			if phase[pos] != p {
				continue
			}
			v, err := n.PrepareChild(strconv.Itoa(index+pos), raw, p == inPlace)
			if err != nil {
				return nil, err
			}
			out[pos] = v
		}
	}

	kept := make(map[*tree.Node]bool, len(out))
	for _, v := range out {
		if c := tree.HandleOf(v); c != nil {
			kept[c] = true
		}
	}
	for i := index; i < end; i++ {
		c := tree.HandleOf(a.items[i])
		if c == nil || kept[c] || c.Parent() != n {
			continue
		}
		c.SetParent(nil, "")
	}

	if delta := len(added) - removedCount; delta != 0 {
		for i := end; i < len(a.items); i++ {
			if c := tree.HandleOf(a.items[i]); c != nil {
				c.SetParent(n, strconv.Itoa(i+delta))
			}
		}
	}
	return out, nil
}

// reconcileKeyed resolves a whole-content snapshot into the values to store. When
// the element type has an identifier attribute, existing children are reused by
// identifier and updated in place; otherwise the snapshot values are returned as is.
func (t *ArrayType) reconcileKeyed(a *Array, values []interface{}) ([]interface{}, error) {
	attr := t.identifierAttribute()
	if attr == "" {
		return values, nil
	}
	n := a.node

	existing := make(map[string]*tree.Node, len(a.items))
	for _, v := range a.items {
		c := tree.HandleOf(v)
		if c == nil {
			continue
		}
		id, ok := c.Identifier()
		if !ok {
			continue
		}
		if _, dup := existing[id]; dup {
			lvlog.Named("collection").Error("duplicate identifier among children", zap.String("path", n.Path()), zap.String("identifier", id))
			return nil, common.ErrDuplicateIdentifier{Path: n.Path(), Identifier: id}
		}
		existing[id] = c
	}

	ids := make([]string, len(values))
	keyed := make([]bool, len(values))
	seen := make(map[string]bool, len(values))
	for i, raw := range values {
		if !t.elem.Is(raw) {
			return nil, common.ErrInvalidSnapshot{Type: t.elem.Describe(), Value: raw}
		}
		id, ok := identifierOfValue(raw, attr)
		if !ok {
			continue
		}
		if seen[id] {
			lvlog.Named("collection").Error("duplicate identifier in snapshot", zap.String("path", n.Path()), zap.String("identifier", id))
			return nil, common.ErrDuplicateIdentifier{Path: n.Path(), Identifier: id}
		}
		seen[id] = true
		ids[i], keyed[i] = id, true
	}

	out := make([]interface{}, 0, len(values))
	for i, raw := range values {
		if tree.HandleOf(raw) != nil {
			out = append(out, raw)
			continue
		}
		if c, found := existing[ids[i]]; keyed[i] && found && tree.CanReconcile(c, raw) {
			if err := c.Type().ApplySnapshot(c, raw); err != nil {
				return nil, err
			}
			out = append(out, c.Value())
			continue
		}
		v, err := t.elem.Instantiate(nil, "", raw)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func identifierOfValue(v interface{}, attr string) (string, bool) {
	if c := tree.HandleOf(v); c != nil {
		return c.Identifier()
	}
	return tree.IdentifierOf(v, attr)
}
