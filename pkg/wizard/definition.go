// Package wizard wires the pieces of a multi-step form together: the step
// container that tracks navigation, the orchestrator that validates, merges and
// submits, and the Session that binds both to a draft store.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/goliatone/go-formwizard/pkg/draft"
	"github.com/goliatone/go-formwizard/pkg/form"
	"github.com/goliatone/go-formwizard/pkg/reconcile"
	"github.com/goliatone/go-formwizard/pkg/schema"
	"github.com/goliatone/go-formwizard/pkg/values"
)

var (
	// ErrInvalidDefinition is returned when a definition cannot back a session.
	ErrInvalidDefinition = errors.New("wizard: invalid definition")
	// ErrUnknownDefinition is returned by Registry lookups for unregistered form
	// types.
	ErrUnknownDefinition = errors.New("wizard: unknown definition")
)

// DerivedFunc applies one derived-field rule to the merged payload in place.
type DerivedFunc func(ctx context.Context, payload map[string]any) error

// Definition is everything needed to run one kind of wizard.
type Definition struct {
	FormType     draft.FormType
	Form         *schema.Form
	Defaults     map[string]any
	Synthesizers []reconcile.Synthesizer
	// Rules implements the derived rules the form declares, keyed by rule name.
	Rules      map[string]DerivedFunc
	AsyncRules map[string]form.AsyncRule
}

// Validate checks the definition is self-consistent: the form is valid and
// covers its payload, every declared derived rule and referenced async rule
// has an implementation, and no implementation is left unused.
func (d Definition) Validate() error {
	if !d.FormType.Valid() {
		return fmt.Errorf("%w: %w", ErrInvalidDefinition, draft.ErrUnknownFormType)
	}
	if d.Form == nil {
		return fmt.Errorf("%w: %s has no form", ErrInvalidDefinition, d.FormType)
	}
	if err := d.Form.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}
	if err := schema.Coverage(d.Form, nil); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}

	var problems []string
	declared := map[string]bool{}
	for _, rule := range d.Form.Derived {
		declared[rule.Name] = true
		if d.Rules[rule.Name] == nil {
			problems = append(problems, fmt.Sprintf("derived rule %q has no implementation", rule.Name))
		}
	}
	for name := range d.Rules {
		if !declared[name] {
			problems = append(problems, fmt.Sprintf("derived rule %q is not declared by the form", name))
		}
	}
	for _, step := range d.Form.Steps {
		for _, field := range step.Fields {
			if field.Async != "" && d.AsyncRules[field.Async] == nil {
				problems = append(problems, fmt.Sprintf("field %q uses unknown async rule %q", field.Path, field.Async))
			}
		}
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("%w: %s: %s", ErrInvalidDefinition, d.FormType, strings.Join(problems, "; "))
	}
	return nil
}

// Apply runs the declared derived rules in order and then strips every
// derived-only field from payload.
func (d Definition) Apply(ctx context.Context, payload map[string]any) error {
	for _, rule := range d.Form.Derived {
		fn := d.Rules[rule.Name]
		if fn == nil {
			return fmt.Errorf("wizard: derived rule %q has no implementation", rule.Name)
		}
		if err := fn(ctx, payload); err != nil {
			return fmt.Errorf("wizard: derived rule %q: %w", rule.Name, err)
		}
	}
	for _, path := range d.Form.DerivedPaths() {
		values.Delete(payload, path)
	}
	return nil
}

// Registry holds validated definitions by form type.
type Registry struct {
	defs map[draft.FormType]Definition
}

// NewRegistry validates and registers defs. A form type may only be
// registered once.
func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{defs: make(map[draft.FormType]Definition, len(defs))}
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register validates def and adds it.
func (r *Registry) Register(def Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	if _, exists := r.defs[def.FormType]; exists {
		return fmt.Errorf("%w: %s registered twice", ErrInvalidDefinition, def.FormType)
	}
	r.defs[def.FormType] = def
	return nil
}

// Get returns the definition for formType.
func (r *Registry) Get(formType draft.FormType) (Definition, error) {
	def, ok := r.defs[formType]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %q", ErrUnknownDefinition, formType)
	}
	return def, nil
}

// FormTypes lists registered form types in the draft package's order.
func (r *Registry) FormTypes() []draft.FormType {
	var out []draft.FormType
	for _, formType := range draft.FormTypes() {
		if _, ok := r.defs[formType]; ok {
			out = append(out, formType)
		}
	}
	return out
}
