package form

import (
	"sort"
	"strings"

	"github.com/goliatone/go-formwizard/pkg/values"
)

// ErrorTree holds at most one message per field path. Paths are dotted and
// mirror the form shape; Nested renders the tree form.
type ErrorTree map[string]string

// FieldError is one flattened entry of an ErrorTree.
type FieldError struct {
	Step    string `json:"step,omitempty"`
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Add records message for path unless the path already has one.
func (t ErrorTree) Add(path, message string) {
	if t == nil || strings.TrimSpace(message) == "" {
		return
	}
	if _, exists := t[path]; exists {
		return
	}
	t[path] = message
}

// Get returns the message stored for path.
func (t ErrorTree) Get(path string) (string, bool) {
	msg, ok := t[path]
	return msg, ok
}

// Empty reports whether the tree holds no messages.
func (t ErrorTree) Empty() bool {
	return len(t) == 0
}

// Merge copies entries from other that t does not have yet.
func (t ErrorTree) Merge(other ErrorTree) {
	for path, msg := range other {
		t.Add(path, msg)
	}
}

// Under returns the entries at or below prefix.
func (t ErrorTree) Under(prefix string) ErrorTree {
	out := ErrorTree{}
	for path, msg := range t {
		if values.HasPrefix(path, prefix) {
			out[path] = msg
		}
	}
	return out
}

// Clone returns a copy of t.
func (t ErrorTree) Clone() ErrorTree {
	out := make(ErrorTree, len(t))
	for path, msg := range t {
		out[path] = msg
	}
	return out
}

// Paths returns the error paths sorted.
func (t ErrorTree) Paths() []string {
	out := make([]string, 0, len(t))
	for path := range t {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

// Flatten lists the entries sorted by path, tagged with step.
func (t ErrorTree) Flatten(step string) []FieldError {
	out := make([]FieldError, 0, len(t))
	for _, path := range t.Paths() {
		out = append(out, FieldError{Step: step, Path: path, Message: t[path]})
	}
	return out
}

// Nested renders the tree shape. A message attached to a path that also has
// children is stored under the "_message" key of that node.
func (t ErrorTree) Nested() map[string]any {
	out := map[string]any{}
	for _, path := range t.Paths() {
		segments := values.Split(path)
		node := out
		for i, segment := range segments {
			last := i == len(segments)-1
			existing, ok := node[segment]
			switch {
			case last && !ok:
				node[segment] = t[path]
			case last:
				if child, isMap := existing.(map[string]any); isMap {
					child["_message"] = t[path]
				}
			default:
				child, isMap := existing.(map[string]any)
				if !isMap {
					child = map[string]any{}
					if msg, isMsg := existing.(string); isMsg {
						child["_message"] = msg
					}
					node[segment] = child
				}
				node = child
			}
		}
	}
	return out
}
