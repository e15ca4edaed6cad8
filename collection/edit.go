package collection

import "fmt"

// EditKind is the shape of a structural edit.
type EditKind int

const (
	// EditUpdate overwrites one slot.
	EditUpdate EditKind = iota
	// EditSplice removes a contiguous run of elements and inserts another in its place.
	EditSplice
)

// String returns the string representation of the kind.
func (k EditKind) String() string {
	switch k {
	case EditUpdate:
		return "update"
	case EditSplice:
		return "splice"
	default:
		return "unknown"
	}
}

// Edit is one structural edit travelling through the interception, commit and
// observation phases.
type Edit struct {
	Kind  EditKind
	Index int

	// Update only.
	NewValue interface{}
	OldValue interface{}

	// Splice only. Removed is filled in by the commit.
	RemovedCount int
	Added        []interface{}
	Removed      []interface{}

	// Set on the splice of a whole-content snapshot. Its Added values are matched to
	// existing children by identifier once every interceptor has accepted the edit.
	// An interceptor returning a new Edit drops it.
	keyed bool
}

// String returns a short representation of the edit.
func (e Edit) String() string {
	if e.Kind == EditUpdate {
		return fmt.Sprintf("update[%d]", e.Index)
	}
	return fmt.Sprintf("splice[%d] -%d +%d", e.Index, e.RemovedCount, len(e.Added))
}

// Interceptor runs before an edit is committed. It may return a modified edit,
// nil to cancel the edit, or an error to fail it.
type Interceptor func(a *Array, e *Edit) (*Edit, error)

// Observer runs after an edit has been committed.
type Observer func(a *Array, e Edit)
