package common

import (
	"fmt"

	"github.com/google/uuid"
)

// NodeID uniquely identifies a node of a managed tree for its whole lifetime.
// It is implemented as a UUID v7 which provides time-ordered values.
type NodeID uuid.UUID

// NilNodeID is the zero value for NodeID.
var NilNodeID NodeID

// NewNodeID creates a new NodeID using UUID v7.
// It panics if the UUID cannot be created.
func NewNodeID() NodeID {
	const retry = 3

	var lastErr error
	var id uuid.UUID
	for i := 0; i < retry; i++ {
		id, lastErr = uuid.NewV7()
		if lastErr == nil {
			break
		}
	}

	if lastErr != nil {
		panic(lastErr)
	}

	return NodeID(id)
}

// String returns the string representation of the NodeID.
func (id NodeID) String() string {
	return uuid.UUID(id).String()
}

// IsNil reports whether id is the zero value.
func (id NodeID) IsNil() bool {
	return id == NilNodeID
}

// Compare compares two NodeIDs.
// Returns:
//
//	-1 if id < other
//	 0 if id == other
//	 1 if id > other
func (id NodeID) Compare(other NodeID) int {
	for i := 0; i < len(id); i++ {
		if id[i] < other[i] {
			return -1
		}
		if id[i] > other[i] {
			return 1
		}
	}
	return 0
}

// MarshalText implements the encoding.TextMarshaler interface.
func (id NodeID) MarshalText() ([]byte, error) {
	return []byte(uuid.UUID(id).String()), nil
}

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (id *NodeID) UnmarshalText(text []byte) error {
	u, err := uuid.Parse(string(text))
	if err != nil {
		return fmt.Errorf("invalid UUID format: %w", err)
	}
	*id = NodeID(u)
	return nil
}

// LifeState represents the lifecycle state of a tree node.
type LifeState int

const (
	// LifeStateAlive is the state of a node that can be read and written.
	LifeStateAlive LifeState = iota
	// LifeStateDead is the state of a destroyed node.
	LifeStateDead
)

// String returns the string representation of the state.
func (s LifeState) String() string {
	switch s {
	case LifeStateAlive:
		return "alive"
	case LifeStateDead:
		return "dead"
	default:
		return "unknown"
	}
}
