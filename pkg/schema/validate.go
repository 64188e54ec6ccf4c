package schema

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/goliatone/go-formwizard/pkg/visibility/expr"
)

// ErrInvalidForm wraps every structural problem reported by Validate.
var ErrInvalidForm = errors.New("schema: invalid form")

var knownTypes = map[string]bool{
	TypeString: true, TypeText: true, TypeRichText: true, TypeInteger: true,
	TypeNumber: true, TypeBoolean: true, TypeDateTime: true, TypeEnum: true,
	TypeObject: true, TypeArray: true,
}

var knownFormats = map[string]bool{
	"": true, FormatEmail: true, FormatURL: true, FormatDateTime: true,
}

// Validate checks the document is self-consistent: unique step names, unique
// field paths, parseable rules and patterns. Payload coverage is checked
// separately by Coverage.
func (f *Form) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if f.Name == "" {
		add("form name is required")
	}
	if len(f.Steps) == 0 {
		add("form %q declares no steps", f.Name)
	}

	stepNames := map[string]bool{}
	fieldPaths := map[string]string{}
	for _, step := range f.Steps {
		if step.Name == "" {
			add("step name is required")
			continue
		}
		if stepNames[step.Name] {
			add("duplicate step %q", step.Name)
		}
		stepNames[step.Name] = true
		checkRule(add, "step "+step.Name+" visible", step.Visible)

		for _, field := range step.Fields {
			where := step.Name + "." + field.Path
			if field.Path == "" {
				add("step %q has a field without path", step.Name)
				continue
			}
			if owner, ok := fieldPaths[field.Path]; ok {
				add("field %q declared by steps %q and %q", field.Path, owner, step.Name)
			}
			fieldPaths[field.Path] = step.Name

			if !knownTypes[field.Type] {
				add("field %s has unknown type %q", where, field.Type)
			}
			if !knownFormats[field.Format] {
				add("field %s has unknown format %q", where, field.Format)
			}
			if field.Type == TypeEnum && len(field.Enum) == 0 {
				add("enum field %s lists no values", where)
			}
			if field.Pattern != "" {
				if _, err := regexp.Compile(field.Pattern); err != nil {
					add("field %s pattern: %v", where, err)
				}
			}
			if field.Min != nil && field.Max != nil && *field.Min > *field.Max {
				add("field %s min exceeds max", where)
			}
			checkRule(add, "field "+where+" required_if", field.RequiredIf)
			checkRule(add, "field "+where+" required_unless", field.RequiredUnless)
			for _, check := range field.Checks {
				if strings.TrimSpace(check.Rule) == "" {
					add("field %s has an empty check", where)
					continue
				}
				checkRule(add, "field "+where+" check", check.Rule)
			}
		}
	}

	ruleNames := map[string]bool{}
	for _, rule := range f.Derived {
		if rule.Name == "" {
			add("derived rule name is required")
			continue
		}
		if ruleNames[rule.Name] {
			add("duplicate derived rule %q", rule.Name)
		}
		ruleNames[rule.Name] = true
		for _, path := range rule.Consumes {
			if _, ok := f.Owner(path); !ok {
				add("derived rule %q consumes unknown field %q", rule.Name, path)
			}
		}
	}

	if len(problems) == 0 {
		return nil
	}
	sort.Strings(problems)
	return fmt.Errorf("%w %s (%s): %s", ErrInvalidForm, f.Name, f.Source, strings.Join(problems, "; "))
}

func checkRule(add func(string, ...any), where, rule string) {
	if strings.TrimSpace(rule) == "" {
		return
	}
	if _, err := expr.Compile(rule); err != nil {
		add("%s: %v", where, err)
	}
}
