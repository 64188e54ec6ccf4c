package api

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrorMapping splits a backend validation payload into field-level messages
// keyed by form field paths and form-level messages.
type ErrorMapping struct {
	Fields map[string][]string
	Form   []string
}

// FlattenErrorData turns a nested error tree ({"registration": {"max_age":
// ["too low"]}}) into dotted path keys. Array elements that are objects keep
// their index as a segment. A bare string or list becomes a form-level entry.
func FlattenErrorData(data any) map[string][]string {
	out := make(map[string][]string)
	flattenErrors("", data, out)
	return out
}

func flattenErrors(prefix string, node any, out map[string][]string) {
	switch typed := node.(type) {
	case nil:
	case string:
		out[prefix] = append(out[prefix], typed)
	case []string:
		out[prefix] = append(out[prefix], typed...)
	case map[string]any:
		keys := make([]string, 0, len(typed))
		for key := range typed {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			flattenErrors(joinPath(prefix, key), typed[key], out)
		}
	case map[string][]string:
		for key, messages := range typed {
			path := joinPath(prefix, key)
			out[path] = append(out[path], messages...)
		}
	case []any:
		for i, item := range typed {
			switch item.(type) {
			case map[string]any, []any:
				flattenErrors(joinPath(prefix, strconv.Itoa(i)), item, out)
			default:
				flattenErrors(prefix, item, out)
			}
		}
	default:
		out[prefix] = append(out[prefix], fmt.Sprint(typed))
	}
}

// MapErrorPayload normalises backend error paths (JSON pointers, bracket
// indices, "body"/"data" wrappers) onto the known field paths. Unknown paths
// are reported as form-level messages so nothing is lost.
func MapErrorPayload(fieldPaths []string, payload map[string][]string) ErrorMapping {
	mapping := ErrorMapping{Fields: make(map[string][]string)}
	if len(payload) == 0 {
		mapping.Fields = nil
		return mapping
	}

	known := make(map[string]struct{}, len(fieldPaths))
	for _, path := range fieldPaths {
		known[path] = struct{}{}
	}

	rawPaths := make([]string, 0, len(payload))
	for raw := range payload {
		rawPaths = append(rawPaths, raw)
	}
	sort.Strings(rawPaths)

	for _, raw := range rawPaths {
		messages := normalizeMessages(payload[raw])
		if len(messages) == 0 {
			continue
		}
		mapped, formLevel := mapErrorPath(raw, known)
		if formLevel {
			mapping.Form = append(mapping.Form, messages...)
			continue
		}
		mapping.Fields[mapped] = normalizeMessages(append(mapping.Fields[mapped], messages...))
	}

	if len(mapping.Fields) == 0 {
		mapping.Fields = nil
	}
	mapping.Form = normalizeMessages(mapping.Form)
	return mapping
}

func normalizeMessages(messages []string) []string {
	out := make([]string, 0, len(messages))
	seen := make(map[string]struct{}, len(messages))
	for _, message := range messages {
		trimmed := strings.TrimSpace(message)
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func mapErrorPath(raw string, known map[string]struct{}) (string, bool) {
	if isFormLevelKey(raw) {
		return "", true
	}
	segments := parsePathSegments(raw)
	if len(segments) == 0 {
		return "", true
	}

	best := ""
	for _, variant := range segmentVariants(segments) {
		if path := longestMatchingPath(variant, known); len(path) > len(best) {
			best = path
		}
	}
	if best == "" {
		return "", true
	}
	return best, false
}

func parsePathSegments(path string) []string {
	clean := strings.TrimSpace(path)
	for _, prefix := range []string{"#/", "$/", "$."} {
		clean = strings.TrimPrefix(clean, prefix)
	}
	clean = strings.TrimLeft(clean, "#/.$")
	clean = strings.NewReplacer("[", ".", "]", "").Replace(clean)

	parts := strings.FieldsFunc(clean, func(r rune) bool { return r == '.' || r == '/' })
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		segment := strings.TrimSpace(part)
		if segment == "" {
			continue
		}
		segment = strings.ReplaceAll(segment, "~1", "/")
		segment = strings.ReplaceAll(segment, "~0", "~")
		out = append(out, segment)
	}
	return out
}

func segmentVariants(segments []string) [][]string {
	unwrapped := dropWrapperSegments(segments)
	return [][]string{
		segments,
		unwrapped,
		stripNumericSegments(segments),
		stripNumericSegments(unwrapped),
	}
}

var wrapperSegments = map[string]struct{}{
	"body": {}, "request": {}, "payload": {}, "data": {}, "attributes": {},
}

func dropWrapperSegments(segments []string) []string {
	out := segments
	for len(out) > 0 {
		if _, ok := wrapperSegments[strings.ToLower(out[0])]; !ok {
			break
		}
		out = out[1:]
	}
	return out
}

func stripNumericSegments(segments []string) []string {
	out := make([]string, 0, len(segments))
	for _, segment := range segments {
		if _, err := strconv.Atoi(segment); err == nil {
			continue
		}
		out = append(out, segment)
	}
	return out
}

func longestMatchingPath(segments []string, known map[string]struct{}) string {
	for end := len(segments); end > 0; end-- {
		candidate := strings.Join(segments[:end], ".")
		if _, ok := known[candidate]; ok {
			return candidate
		}
	}
	return ""
}

func joinPath(parent, child string) string {
	if parent == "" {
		return child
	}
	if child == "" {
		return parent
	}
	return parent + "." + child
}

func isFormLevelKey(key string) bool {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "", ".", "/", "#", "$", "form", "base", "detail", "__all__", "non_field_errors", "non-field-errors":
		return true
	default:
		return false
	}
}
