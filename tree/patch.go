package tree

import (
	"github.com/pkg/errors"

	"github.com/totomo/luvtree/common"
	"github.com/totomo/luvtree/jsonpatch"
)

// ApplyPatches applies patches addressed relative to n, in order, inside one action.
// The empty path addresses n itself and only supports replace.
func ApplyPatches(n *Node, patches ...jsonpatch.Patch) error {
	return RunInAction(n, func() error {
		for i, p := range patches {
			if err := applyPatch(n, p); err != nil {
				return errors.Wrapf(err, "failed to apply patch %d (%s)", i, p)
			}
		}
		return nil
	})
}

func applyPatch(n *Node, p jsonpatch.Patch) error {
	if err := p.Validate(); err != nil {
		return err
	}
	segments, err := jsonpatch.SplitPath(p.Path)
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		if p.Op != jsonpatch.OpReplace {
			return common.ErrInvalidPatch{Message: "only replace can target the node itself"}
		}
		return n.ApplySnapshot(p.Value)
	}

	target, err := Resolve(n, segments[:len(segments)-1]...)
	if err != nil {
		return err
	}
	return target.typ.ApplyPatchLocally(target, segments[len(segments)-1], p)
}

// Resolve walks child keys from n and returns the node they address.
func Resolve(n *Node, keys ...string) (*Node, error) {
	target := n
	for _, key := range keys {
		child := target.typ.LookupChild(target, key)
		if child == nil {
			return nil, common.ErrNodeNotFound{Path: target.Path() + "/" + jsonpatch.EscapeSegment(key)}
		}
		target = child
	}
	return target, nil
}

// ResolvePath resolves a JSON pointer relative to n.
func ResolvePath(n *Node, path string) (*Node, error) {
	segments, err := jsonpatch.SplitPath(path)
	if err != nil {
		return nil, err
	}
	return Resolve(n, segments...)
}
