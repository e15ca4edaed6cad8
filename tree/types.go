// Package tree implements the node administration layer of a managed object graph:
// identity-bearing nodes with a non-owning parent back-reference, protection and
// actions, patch emission, and the type descriptors that validate and create values.
package tree

import (
	"github.com/totomo/luvtree/jsonpatch"
)

// Type describes the values a slot of a tree may hold.
type Type interface {
	// Name returns the short name of the type.
	Name() string

	// Describe returns a human readable description of the accepted shape.
	Describe() string

	// Is reports whether v is a snapshot or a live instance of this type.
	Is(v interface{}) bool

	// Instantiate creates the value to store for snapshot v. Scalar types return the
	// value itself; composite types return an Instance attached to parent at subpath.
	// A nil parent creates a detached root.
	Instantiate(parent *Node, subpath string, v interface{}) (interface{}, error)
}

// NamedChild pairs a child node with its key inside the parent.
type NamedChild struct {
	Key  string
	Node *Node
}

// ComplexType is a Type whose instances are nodes with children.
type ComplexType interface {
	Type

	// Hydrate populates a freshly created node from a snapshot without emitting patches.
	Hydrate(n *Node, snapshot interface{}) error

	// Serialize returns the current snapshot of n.
	Serialize(n *Node) interface{}

	// IsValidSnapshot reports whether v is a plain snapshot of this type.
	IsValidSnapshot(v interface{}) bool

	// DefaultSnapshot returns the snapshot used when none is given.
	DefaultSnapshot() interface{}

	// ChildType returns the type of the child stored under key.
	ChildType(key string) Type

	// EnumerateChildren returns the children of n that are nodes.
	EnumerateChildren(n *Node) []NamedChild

	// LookupChild returns the child node stored under key, or nil.
	LookupChild(n *Node, key string) *Node

	// RemoveChild removes the child stored under key.
	RemoveChild(n *Node, key string) error

	// ApplyPatchLocally applies a patch addressed to the child key subpath of n.
	ApplyPatchLocally(n *Node, subpath string, p jsonpatch.Patch) error

	// ApplySnapshot replaces the content of n with snapshot, preserving identities
	// where the type knows how to.
	ApplySnapshot(n *Node, snapshot interface{}) error
}

// Identified is implemented by types whose values carry a stable identity field.
type Identified interface {
	// IdentifierAttribute returns the identity field name, or "" when there is none.
	IdentifierAttribute() string
}

// Reconcilable is implemented by complex types that restrict which snapshots may be
// applied in place onto an existing node.
type Reconcilable interface {
	CanReconcile(n *Node, snapshot interface{}) bool
}

// Instance is a live composite value owned by a tree.
type Instance interface {
	Handle() *Node
}

// PatchListener receives patches emitted under the node it is registered on.
// The patch path is a JSON pointer relative to that node.
type PatchListener func(p jsonpatch.Patch, source *Node)
