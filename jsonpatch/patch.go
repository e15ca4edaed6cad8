// Package jsonpatch defines the structural edit vocabulary emitted and consumed by tree
// nodes: RFC 6902 style add/remove/replace operations addressed by JSON pointers.
package jsonpatch

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/totomo/luvtree/common"
)

// Op is the kind of a patch operation.
type Op string

const (
	// OpAdd inserts a value.
	OpAdd Op = "add"
	// OpRemove removes a value.
	OpRemove Op = "remove"
	// OpReplace overwrites a value.
	OpReplace Op = "replace"
)

// AppendSegment addresses the position after the last element of a collection.
const AppendSegment = "-"

// Patch is one structural edit.
// Path is relative to the node that emitted or receives the patch.
type Patch struct {
	Op    Op          `json:"op"`
	Path  string      `json:"path"`
	Value interface{} `json:"value,omitempty"`
}

// HasValue reports whether the operation carries a value.
func (p Patch) HasValue() bool {
	return p.Op == OpAdd || p.Op == OpReplace
}

// String returns a short representation of the patch.
func (p Patch) String() string {
	if p.HasValue() {
		return fmt.Sprintf("%s %s = %v", p.Op, p.Path, p.Value)
	}
	return fmt.Sprintf("%s %s", p.Op, p.Path)
}

// Validate checks the operation kind.
func (p Patch) Validate() error {
	switch p.Op {
	case OpAdd, OpRemove, OpReplace:
		return nil
	default:
		return common.ErrInvalidPatch{Message: fmt.Sprintf("unsupported operation %q", p.Op)}
	}
}

// MarshalJSON keeps an explicit null value on add and replace, and drops the value on remove.
func (p Patch) MarshalJSON() ([]byte, error) {
	if p.HasValue() {
		type withValue struct {
			Op    Op          `json:"op"`
			Path  string      `json:"path"`
			Value interface{} `json:"value"`
		}
		return json.Marshal(withValue{Op: p.Op, Path: p.Path, Value: p.Value})
	}
	type withoutValue struct {
		Op   Op     `json:"op"`
		Path string `json:"path"`
	}
	return json.Marshal(withoutValue{Op: p.Op, Path: p.Path})
}

// Prefix returns a copy of p whose path is nested under segment.
func (p Patch) Prefix(segment string) Patch {
	out := p
	if p.Path == "" {
		out.Path = EscapeSegment(segment)
	} else {
		out.Path = EscapeSegment(segment) + "/" + p.Path
	}
	return out
}

// Absolute returns a copy of p whose relative path is turned into a JSON pointer.
func (p Patch) Absolute() Patch {
	out := p
	out.Path = "/" + p.Path
	return out
}

// EscapeSegment escapes one path segment as required by RFC 6901.
func EscapeSegment(segment string) string {
	segment = strings.ReplaceAll(segment, "~", "~0")
	return strings.ReplaceAll(segment, "/", "~1")
}

// UnescapeSegment reverses EscapeSegment.
func UnescapeSegment(segment string) string {
	segment = strings.ReplaceAll(segment, "~1", "/")
	return strings.ReplaceAll(segment, "~0", "~")
}

// SplitPath splits a JSON pointer into unescaped segments.
// The empty pointer addresses the whole document and yields no segments.
func SplitPath(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	if !strings.HasPrefix(path, "/") {
		return nil, common.ErrInvalidPatch{Message: fmt.Sprintf("path %q must start with '/'", path)}
	}
	parts := strings.Split(path[1:], "/")
	for i, part := range parts {
		parts[i] = UnescapeSegment(part)
	}
	return parts, nil
}

// JoinPath builds a JSON pointer from unescaped segments.
func JoinPath(segments ...string) string {
	var b strings.Builder
	for _, s := range segments {
		b.WriteByte('/')
		b.WriteString(EscapeSegment(s))
	}
	return b.String()
}

// ParseIndex resolves a collection path segment against a collection of the given length.
// "-" resolves to length; anything else must be a non-negative decimal integer
// without leading zeros.
func ParseIndex(segment string, length int) (int, error) {
	if segment == AppendSegment {
		return length, nil
	}
	if segment == "" || strings.TrimLeft(segment, "0123456789") != "" || (len(segment) > 1 && segment[0] == '0') {
		return 0, common.ErrInvalidPatch{Message: fmt.Sprintf("%q is not a collection index", segment)}
	}
	index, err := strconv.Atoi(segment)
	if err != nil {
		return 0, common.ErrInvalidPatch{Message: fmt.Sprintf("%q is not a collection index", segment)}
	}
	return index, nil
}
