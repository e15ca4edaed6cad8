package common

import (
	"fmt"
)

// ErrNotWritable is returned when an edit is attempted on a node whose tree
// does not currently allow writes.
type ErrNotWritable struct {
	Path   string
	Reason string
}

func (e ErrNotWritable) Error() string {
	return fmt.Sprintf("node %q is not writable: %s", e.Path, e.Reason)
}

// ErrNotAlive is returned when a destroyed node is used.
type ErrNotAlive struct {
	Path string
}

func (e ErrNotAlive) Error() string {
	return fmt.Sprintf("node %q is no longer part of a live tree", e.Path)
}

// ErrDuplicateIdentifier is returned when two elements of one collection share
// an identifier value. It signals corrupted data rather than bad user input.
type ErrDuplicateIdentifier struct {
	Path       string
	Identifier string
}

func (e ErrDuplicateIdentifier) Error() string {
	return fmt.Sprintf("duplicate identifier %q in %q", e.Identifier, e.Path)
}

// ErrIdentifierImmutable is returned when a write would change the identifier of a node.
type ErrIdentifierImmutable struct {
	Path       string
	Identifier string
}

func (e ErrIdentifierImmutable) Error() string {
	return fmt.Sprintf("identifier of %q cannot change (current %q)", e.Path, e.Identifier)
}

// ErrInvalidSnapshot is returned when a value does not satisfy a type.
type ErrInvalidSnapshot struct {
	Type  string
	Value interface{}
}

func (e ErrInvalidSnapshot) Error() string {
	return fmt.Sprintf("value %v is not assignable to type %s", e.Value, e.Type)
}

// ErrIndexOutOfBounds is returned when a collection index is outside its bounds.
type ErrIndexOutOfBounds struct {
	Path   string
	Index  int
	Length int
}

func (e ErrIndexOutOfBounds) Error() string {
	return fmt.Sprintf("index %d out of bounds for %q (length %d)", e.Index, e.Path, e.Length)
}

// ErrAlreadyAttached is returned when a node owned by another parent is inserted.
type ErrAlreadyAttached struct {
	Path string
}

func (e ErrAlreadyAttached) Error() string {
	return fmt.Sprintf("node %q is already part of a tree; detach it first", e.Path)
}

// ErrNodeNotFound is returned when a path does not resolve to a node.
type ErrNodeNotFound struct {
	Path string
}

func (e ErrNodeNotFound) Error() string {
	return fmt.Sprintf("node not found: %s", e.Path)
}

// ErrInvalidPatch is returned when a patch cannot be decoded or applied.
type ErrInvalidPatch struct {
	Message string
}

func (e ErrInvalidPatch) Error() string {
	return fmt.Sprintf("invalid patch: %s", e.Message)
}

// ErrInvalidOperation is returned when an operation is invalid.
type ErrInvalidOperation struct {
	Message string
}

func (e ErrInvalidOperation) Error() string {
	return fmt.Sprintf("invalid operation: %s", e.Message)
}
