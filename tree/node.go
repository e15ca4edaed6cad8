package tree

import (
	"fmt"

	"github.com/totomo/luvtree/common"
	"github.com/totomo/luvtree/jsonpatch"
)

// Node is the administration handle of one composite value.
// The parent field is a non-owning back-reference: the parent holds the child in its
// own storage and the reference only serves path computation.
type Node struct {
	id      common.NodeID
	typ     ComplexType
	value   Instance
	parent  *Node
	subpath string
	state   common.LifeState

	listeners    []listenerEntry
	nextListener int

	// Only meaningful on roots.
	protected   bool
	actionDepth int
}

type listenerEntry struct {
	id int
	fn PatchListener
}

// NewNode creates the handle for value. A nil parent creates a root.
func NewNode(typ ComplexType, value Instance, parent *Node, subpath string) *Node {
	n := &Node{
		id:    common.NewNodeID(),
		typ:   typ,
		value: value,
		state: common.LifeStateAlive,
	}
	if parent != nil {
		n.parent = parent
		n.subpath = subpath
	}
	return n
}

// ID returns the identity of the node.
func (n *Node) ID() common.NodeID {
	return n.id
}

// Type returns the type of the node.
func (n *Node) Type() ComplexType {
	return n.typ
}

// Value returns the instance administered by the node.
func (n *Node) Value() Instance {
	return n.value
}

// Parent returns the owning node, or nil for a root.
func (n *Node) Parent() *Node {
	return n.parent
}

// Subpath returns the key of the node inside its parent.
func (n *Node) Subpath() string {
	return n.subpath
}

// IsRoot reports whether the node has no parent.
func (n *Node) IsRoot() bool {
	return n.parent == nil
}

// Root returns the root of the tree the node belongs to.
func (n *Node) Root() *Node {
	r := n
	for r.parent != nil {
		r = r.parent
	}
	return r
}

// Path returns the JSON pointer of the node from its root.
func (n *Node) Path() string {
	if n.parent == nil {
		return ""
	}
	return n.parent.Path() + "/" + jsonpatch.EscapeSegment(n.subpath)
}

// IsAlive reports whether the node has not been destroyed.
func (n *Node) IsAlive() bool {
	return n.state == common.LifeStateAlive
}

// State returns the lifecycle state of the node.
func (n *Node) State() common.LifeState {
	return n.state
}

// Snapshot returns the current snapshot of the node. It is computed on every call.
func (n *Node) Snapshot() interface{} {
	return n.typ.Serialize(n)
}

// ApplySnapshot replaces the node content with snapshot.
func (n *Node) ApplySnapshot(snapshot interface{}) error {
	if err := n.AssertWritable(); err != nil {
		return err
	}
	if !n.typ.IsValidSnapshot(snapshot) {
		return common.ErrInvalidSnapshot{Type: n.typ.Describe(), Value: snapshot}
	}
	return n.typ.ApplySnapshot(n, snapshot)
}

// Identifier returns the normalized identifier of the node, if its type declares one.
func (n *Node) Identifier() (string, bool) {
	id, ok := n.typ.(Identified)
	if !ok || id.IdentifierAttribute() == "" {
		return "", false
	}
	return IdentifierOf(n.value, id.IdentifierAttribute())
}

// AssertWritable fails with common.ErrNotWritable when the node may not be modified.
func (n *Node) AssertWritable() error {
	if !n.IsAlive() {
		return common.ErrNotWritable{Path: n.Path(), Reason: "node has been destroyed"}
	}
	root := n.Root()
	if root.protected && root.actionDepth == 0 {
		return common.ErrNotWritable{Path: n.Path(), Reason: "tree is protected, modify it inside an action"}
	}
	return nil
}

// PrepareChild resolves raw into the value to store under subpath.
//
// Live instances are attached as they are. Snapshots are applied in place onto the
// node currently stored under subpath when reconcileExisting is set and that node
// accepts them; otherwise a new value is created. PrepareChild never detaches the
// previous occupant of subpath, the caller does.
func (n *Node) PrepareChild(subpath string, raw interface{}, reconcileExisting bool) (interface{}, error) {
	if !n.IsAlive() {
		return nil, common.ErrNotAlive{Path: n.Path()}
	}
	childType := n.typ.ChildType(subpath)
	if childType == nil {
		return nil, common.ErrInvalidOperation{Message: fmt.Sprintf("%s has no child %q", n.typ.Name(), subpath)}
	}
	if !childType.Is(raw) {
		return nil, common.ErrInvalidSnapshot{Type: childType.Describe(), Value: raw}
	}

	if inst, ok := raw.(Instance); ok {
		child := inst.Handle()
		if err := n.CheckAttachable(child); err != nil {
			return nil, err
		}
		child.SetParent(n, subpath)
		return raw, nil
	}

	if reconcileExisting {
		if existing := n.typ.LookupChild(n, subpath); existing != nil && CanReconcile(existing, raw) {
			if err := existing.typ.ApplySnapshot(existing, raw); err != nil {
				return nil, err
			}
			return existing.value, nil
		}
	}

	return childType.Instantiate(n, subpath, raw)
}

// CheckAttachable fails when child may not be stored under n: it must be alive,
// unowned or owned by n already, and must not be n or one of its ancestors.
func (n *Node) CheckAttachable(child *Node) error {
	if !child.IsAlive() {
		return common.ErrNotAlive{Path: child.Path()}
	}
	if child.parent != nil && child.parent != n {
		return common.ErrAlreadyAttached{Path: child.Path()}
	}
	for p := n; p != nil; p = p.parent {
		if p == child {
			return common.ErrInvalidOperation{Message: "a node cannot become its own descendant"}
		}
	}
	return nil
}

// CanReconcile reports whether snapshot raw may be applied in place onto existing:
// the runtime type of existing must accept it, and so must its Reconcilable predicate.
func CanReconcile(existing *Node, raw interface{}) bool {
	if !existing.IsAlive() || !existing.typ.Is(raw) {
		return false
	}
	if r, ok := existing.typ.(Reconcilable); ok {
		return r.CanReconcile(existing, raw)
	}
	return true
}

// SetParent attaches the node to parent under subpath, or detaches it when parent is nil.
// A detached node becomes the root of its own tree and keeps the protection of the
// tree it left.
func (n *Node) SetParent(parent *Node, subpath string) {
	if parent == nil {
		if n.parent != nil {
			n.protected = n.Root().protected
		}
		n.parent = nil
		n.subpath = ""
		return
	}
	n.parent = parent
	n.subpath = subpath
}

// EmitPatch delivers p to the listeners of the node and forwards it to the parent.
// p.Path is relative to the node, without a leading slash.
func (n *Node) EmitPatch(p jsonpatch.Patch, source *Node) {
	if len(n.listeners) > 0 {
		local := p.Absolute()
		for _, l := range append([]listenerEntry(nil), n.listeners...) {
			l.fn(local, source)
		}
	}
	if n.parent != nil {
		n.parent.EmitPatch(p.Prefix(n.subpath), source)
	}
}

// OnPatch registers fn for every patch emitted in the subtree of the node.
func (n *Node) OnPatch(fn PatchListener) (dispose func()) {
	n.nextListener++
	id := n.nextListener
	n.listeners = append(n.listeners, listenerEntry{id: id, fn: fn})
	return func() {
		for i, l := range n.listeners {
			if l.id == id {
				n.listeners = append(n.listeners[:i], n.listeners[i+1:]...)
				return
			}
		}
	}
}

// die marks the node and its whole subtree as destroyed and detaches every child.
func (n *Node) die() {
	if !n.IsAlive() {
		return
	}
	for _, c := range n.typ.EnumerateChildren(n) {
		c.Node.die()
		c.Node.parent = nil
		c.Node.subpath = ""
	}
	n.state = common.LifeStateDead
	n.listeners = nil
}
