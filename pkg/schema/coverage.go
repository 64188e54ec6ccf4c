package schema

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrCoverage wraps coverage failures.
var ErrCoverage = errors.New("schema: partition does not cover payload")

// CoverageError lists every coverage problem found for a form.
type CoverageError struct {
	Form   string
	Issues []string
}

func (e *CoverageError) Error() string {
	return fmt.Sprintf("%s %s: %s", ErrCoverage, e.Form, strings.Join(e.Issues, "; "))
}

func (e *CoverageError) Unwrap() error {
	return ErrCoverage
}

// Coverage verifies the partition against the backend payload:
//   - every field is owned by exactly one step (no overlapping paths across steps)
//   - every derived-only field is consumed by a declared rule
//   - every payload path is covered by a persisted field or a rule output
//   - every persisted field appears in the payload
//
// payload defaults to the form's own payload list when nil.
func Coverage(f *Form, payload []string) error {
	if payload == nil {
		payload = f.Payload
	}
	var issues []string
	add := func(format string, args ...any) {
		issues = append(issues, fmt.Sprintf(format, args...))
	}

	type owned struct{ path, step string }
	var fields []owned
	for _, step := range f.Steps {
		for _, field := range step.Fields {
			fields = append(fields, owned{field.Path, step.Name})
		}
	}
	for i, a := range fields {
		for _, b := range fields[i+1:] {
			if a.step != b.step && related(a.path, b.path) {
				add("field %q (step %s) overlaps %q (step %s)", a.path, a.step, b.path, b.step)
			}
		}
	}

	consumed := map[string]bool{}
	var produced []string
	for _, rule := range f.Derived {
		for _, path := range rule.Consumes {
			consumed[path] = true
		}
		produced = append(produced, rule.Produces...)
	}
	for _, path := range f.DerivedPaths() {
		if !consumed[path] {
			add("derived field %q is not consumed by any rule", path)
		}
	}

	persisted := f.PersistedPaths()
	for _, path := range payload {
		if !anyRelated(path, persisted) && !anyRelated(path, produced) {
			add("payload field %q is not covered by any step or rule", path)
		}
	}
	for _, path := range persisted {
		if !anyRelated(path, payload) {
			add("field %q is not part of the payload", path)
		}
	}

	if len(issues) == 0 {
		return nil
	}
	sort.Strings(issues)
	return &CoverageError{Form: f.Name, Issues: issues}
}

func anyRelated(path string, candidates []string) bool {
	for _, candidate := range candidates {
		if related(path, candidate) {
			return true
		}
	}
	return false
}

// related reports whether a and b are the same path or one nests the other.
func related(a, b string) bool {
	return a == b || strings.HasPrefix(a, b+".") || strings.HasPrefix(b, a+".")
}
