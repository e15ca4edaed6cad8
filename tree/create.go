package tree

import (
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/totomo/luvtree/common"
	"github.com/totomo/luvtree/internal/lvlog"
)

// CreateOptions configures the root created by Create.
type CreateOptions struct {
	// Protected forbids writes outside actions.
	Protected bool
}

// DefaultCreateOptions returns the default creation options.
func DefaultCreateOptions() *CreateOptions {
	return &CreateOptions{
		Protected: false,
	}
}

// CreateOption sets a creation option.
type CreateOption func(*CreateOptions)

// WithProtection sets whether the created tree is protected.
func WithProtection(protected bool) CreateOption {
	return func(o *CreateOptions) {
		o.Protected = protected
	}
}

// Create instantiates typ as the root of a new tree. A nil snapshot uses the
// type's default snapshot.
func Create(typ ComplexType, snapshot interface{}, opts ...CreateOption) (Instance, error) {
	options := DefaultCreateOptions()
	for _, opt := range opts {
		opt(options)
	}

	if snapshot == nil {
		snapshot = typ.DefaultSnapshot()
	}
	if !typ.IsValidSnapshot(snapshot) {
		return nil, common.ErrInvalidSnapshot{Type: typ.Describe(), Value: snapshot}
	}

	v, err := typ.Instantiate(nil, "", snapshot)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create %s", typ.Name())
	}
	inst, ok := v.(Instance)
	if !ok {
		return nil, common.ErrInvalidOperation{Message: fmt.Sprintf("%s did not create a node", typ.Name())}
	}
	inst.Handle().protected = options.Protected
	return inst, nil
}

// Destroy removes n from its parent and kills n and its subtree.
func Destroy(n *Node) error {
	if !n.IsAlive() {
		return common.ErrNotAlive{Path: n.Path()}
	}
	if parent := n.parent; parent != nil {
		if err := parent.typ.RemoveChild(parent, n.subpath); err != nil {
			lvlog.Named("tree").Warn("failed to remove destroyed node from its parent",
				zap.String("path", n.Path()), zap.Error(err))
			return errors.Wrapf(err, "failed to destroy %s", n.Path())
		}
	}
	n.die()
	return nil
}
