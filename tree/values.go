package tree

import (
	"reflect"
	"strconv"
)

// HandleOf returns the node of v when v is a live instance, or nil for scalars.
func HandleOf(v interface{}) *Node {
	if inst, ok := v.(Instance); ok && inst != nil {
		return inst.Handle()
	}
	return nil
}

// SnapshotOf returns the snapshot of a stored value. Scalars are their own snapshot.
func SnapshotOf(v interface{}) interface{} {
	if n := HandleOf(v); n != nil {
		return n.Snapshot()
	}
	return v
}

// Identical reports whether a and b are the same stored value: the same instance,
// the same scalar, or the same map/slice backing storage.
func Identical(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
	if ra.Type() != rb.Type() {
		return false
	}
	switch ra.Kind() {
	case reflect.Map, reflect.Func, reflect.Chan, reflect.Ptr, reflect.UnsafePointer:
		return ra.Pointer() == rb.Pointer()
	case reflect.Slice:
		return ra.Pointer() == rb.Pointer() && ra.Len() == rb.Len()
	}
	if ra.Type().Comparable() {
		return a == b
	}
	return false
}

// NormalizeIdentifier converts an identifier value to its canonical string form.
// Strings and numbers are accepted.
func NormalizeIdentifier(v interface{}) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), true
	case int:
		return strconv.Itoa(x), true
	case int32:
		return strconv.FormatInt(int64(x), 10), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case uint:
		return strconv.FormatUint(uint64(x), 10), true
	case uint32:
		return strconv.FormatUint(uint64(x), 10), true
	case uint64:
		return strconv.FormatUint(x, 10), true
	default:
		return "", false
	}
}

// IdentifierOf returns the normalized value of attr on a model instance or a
// map snapshot.
func IdentifierOf(v interface{}, attr string) (string, bool) {
	if attr == "" {
		return "", false
	}
	switch x := v.(type) {
	case *ModelInstance:
		return NormalizeIdentifier(x.values[attr])
	case map[string]interface{}:
		return NormalizeIdentifier(x[attr])
	default:
		return "", false
	}
}

func isNumber(v interface{}) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	default:
		return false
	}
}

func isInteger(v interface{}) bool {
	switch x := v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case float64:
		return x == float64(int64(x))
	case float32:
		return x == float32(int64(x))
	default:
		return false
	}
}
