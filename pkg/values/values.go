// Package values provides the small set of helpers every wizard layer uses to
// read and write loosely typed form data: dotted-path access, deep clones, and
// deep merges that treat arrays as atomic units.
package values

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Get resolves a dotted path ("registration.min_age", "attendance.0.user_id")
// inside root.
func Get(root map[string]any, path string) (any, bool) {
	if root == nil || strings.TrimSpace(path) == "" {
		return nil, false
	}
	current := any(root)
	for _, segment := range Split(path) {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[segment]
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

// Set writes value at path, creating intermediate maps (or slices when the next
// segment is numeric) as needed.
func Set(root map[string]any, path string, value any) error {
	if root == nil {
		return fmt.Errorf("values: root map is nil")
	}
	segments := Split(path)
	if len(segments) == 0 {
		return fmt.Errorf("values: empty path")
	}
	_, err := setIn(root, segments, value, path)
	return err
}

func setIn(node any, segments []string, value any, path string) (any, error) {
	segment := segments[0]
	last := len(segments) == 1

	switch typed := node.(type) {
	case map[string]any:
		if last {
			typed[segment] = value
			return typed, nil
		}
		child := typed[segment]
		if child == nil || !isContainer(child) {
			child = newContainer(segments[1])
		}
		updated, err := setIn(child, segments[1:], value, path)
		if err != nil {
			return nil, err
		}
		typed[segment] = updated
		return typed, nil
	case []any:
		idx, err := strconv.Atoi(segment)
		if err != nil {
			return nil, fmt.Errorf("values: expected numeric segment, got %q in %q", segment, path)
		}
		if idx < 0 {
			return nil, fmt.Errorf("values: negative index in path %q", path)
		}
		if len(typed) <= idx {
			typed = append(typed, make([]any, idx+1-len(typed))...)
		}
		if last {
			typed[idx] = value
			return typed, nil
		}
		child := typed[idx]
		if child == nil || !isContainer(child) {
			child = newContainer(segments[1])
		}
		updated, err := setIn(child, segments[1:], value, path)
		if err != nil {
			return nil, err
		}
		typed[idx] = updated
		return typed, nil
	default:
		return nil, fmt.Errorf("values: unexpected container for segment %q in %q", segment, path)
	}
}

func isContainer(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return true
	default:
		return false
	}
}

func newContainer(nextSegment string) any {
	if _, err := strconv.Atoi(nextSegment); err == nil {
		return []any{}
	}
	return make(map[string]any)
}

// Delete removes the value stored at path. Parents left empty are kept.
func Delete(root map[string]any, path string) bool {
	segments := Split(path)
	if root == nil || len(segments) == 0 {
		return false
	}
	parent := root
	for _, segment := range segments[:len(segments)-1] {
		next, ok := parent[segment].(map[string]any)
		if !ok {
			return false
		}
		parent = next
	}
	leaf := segments[len(segments)-1]
	if _, ok := parent[leaf]; !ok {
		return false
	}
	delete(parent, leaf)
	return true
}

// Split breaks a dotted path into trimmed, non-empty segments.
func Split(path string) []string {
	raw := strings.Split(strings.TrimSpace(path), ".")
	out := make([]string, 0, len(raw))
	for _, segment := range raw {
		if trimmed := strings.TrimSpace(segment); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Join concatenates path segments, skipping empty ones.
func Join(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.Trim(strings.TrimSpace(part), "."); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return strings.Join(out, ".")
}

// HasPrefix reports whether path equals prefix or lives underneath it.
func HasPrefix(path, prefix string) bool {
	if prefix == "" {
		return true
	}
	return path == prefix || strings.HasPrefix(path, prefix+".")
}

// Clone deep copies a value map. Nil input yields an empty map.
func Clone(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue deep copies maps and []any slices; other values are returned as is.
func CloneValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return Clone(typed)
	case []any:
		clone := make([]any, len(typed))
		for i, v := range typed {
			clone[i] = CloneValue(v)
		}
		return clone
	default:
		return typed
	}
}

// Pick copies the listed paths out of src into a new map, keeping nesting.
// Missing paths are skipped.
func Pick(src map[string]any, paths []string) map[string]any {
	out := make(map[string]any)
	for _, path := range paths {
		value, ok := Get(src, path)
		if !ok {
			continue
		}
		_ = Set(out, path, CloneValue(value))
	}
	return out
}

// Flatten returns the leaf values of src keyed by dotted path. Arrays and empty
// maps are leaves.
func Flatten(src map[string]any) map[string]any {
	out := make(map[string]any)
	flatten("", src, out)
	return out
}

func flatten(prefix string, value any, out map[string]any) {
	typed, ok := value.(map[string]any)
	if !ok || (len(typed) == 0 && prefix != "") {
		out[prefix] = value
		return
	}
	for key, child := range typed {
		flatten(Join(prefix, key), child, out)
	}
}

// Paths returns the sorted leaf paths of src.
func Paths(src map[string]any) []string {
	flat := Flatten(src)
	out := make([]string, 0, len(flat))
	for path := range flat {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

// IsArray reports whether value is a slice or array (byte slices excluded).
func IsArray(value any) bool {
	if value == nil {
		return false
	}
	if _, ok := value.([]any); ok {
		return true
	}
	if _, ok := value.([]byte); ok {
		return false
	}
	kind := reflect.TypeOf(value).Kind()
	return kind == reflect.Slice || kind == reflect.Array
}

// Len returns the element count of arrays and maps, the trimmed length of
// strings, and zero otherwise.
func Len(value any) int {
	switch typed := value.(type) {
	case nil:
		return 0
	case string:
		return len(strings.TrimSpace(typed))
	case map[string]any:
		return len(typed)
	case []any:
		return len(typed)
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len()
	default:
		return 0
	}
}

// IsEmpty reports whether value counts as "not filled in" for a form field.
func IsEmpty(value any) bool {
	switch value.(type) {
	case nil:
		return true
	case bool:
		return false
	case string, map[string]any, []any:
		return Len(value) == 0
	}
	if IsArray(value) {
		return Len(value) == 0
	}
	return false
}
