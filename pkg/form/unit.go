// Package form implements the per-step sub-forms of a wizard. Each Unit owns
// the fields of one schema.Step, tracks touched state, validates its own slice
// of the data (including asynchronous rules) and reports results as data.
package form

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/goliatone/go-formwizard/pkg/schema"
	"github.com/goliatone/go-formwizard/pkg/values"
	"github.com/goliatone/go-formwizard/pkg/visibility"
	"github.com/goliatone/go-formwizard/pkg/visibility/expr"
)

// ErrNotOwned is returned when a unit is asked to change a field another step
// owns.
var ErrNotOwned = errors.New("form: field not owned by step")

// Unit is one independently validated step.
type Unit interface {
	Name() string
	ValidateAndCollect(ctx context.Context) Result
}

// Result is the outcome of ValidateAndCollect. Data holds the step's slice
// when Errors is empty. Err is set only when validation was abandoned.
type Result struct {
	Step   string
	Data   map[string]any
	Errors ErrorTree
	Err    error
}

// OK reports whether the step validated successfully.
func (r Result) OK() bool {
	return r.Err == nil && r.Errors.Empty()
}

// AsyncRule checks value against an external source. It returns a non-empty
// message when the value is rejected. An error means the check could not run.
type AsyncRule func(ctx context.Context, value any, all map[string]any) (string, error)

// PeerValues returns the values of the other steps, used by cross-step rules.
type PeerValues func() map[string]any

// UnitOption configures a SchemaUnit.
type UnitOption func(*SchemaUnit)

// WithAsyncRules registers asynchronous rules referenced by Field.Async.
func WithAsyncRules(rules map[string]AsyncRule) UnitOption {
	return func(u *SchemaUnit) {
		for name, rule := range rules {
			u.async[name] = rule
		}
	}
}

// WithPeers wires cross-step lookups.
func WithPeers(peers PeerValues) UnitOption {
	return func(u *SchemaUnit) {
		u.peers = peers
	}
}

// WithExtras exposes session metadata to rules under the `extras.` prefix.
func WithExtras(extras map[string]any) UnitOption {
	return func(u *SchemaUnit) {
		u.extras = values.Clone(extras)
	}
}

// WithEvaluator overrides the rule evaluator.
func WithEvaluator(evaluator visibility.Evaluator) UnitOption {
	return func(u *SchemaUnit) {
		if evaluator != nil {
			u.evaluator = evaluator
		}
	}
}

// WithUnitLogger routes async rule failures to logger.
func WithUnitLogger(logger *slog.Logger) UnitOption {
	return func(u *SchemaUnit) {
		if logger != nil {
			u.logger = logger
		}
	}
}

// SchemaUnit is the schema-driven Unit implementation.
type SchemaUnit struct {
	step      schema.Step
	evaluator visibility.Evaluator
	async     map[string]AsyncRule
	peers     PeerValues
	extras    map[string]any
	logger    *slog.Logger

	mu         sync.RWMutex
	values     map[string]any
	touched    map[string]bool
	touchedAll bool
	cleared    map[string]bool
	errors     ErrorTree
	server     ErrorTree

	subMu   sync.RWMutex
	subs    map[int]func(path string, value any)
	nextSub int
}

var _ Unit = (*SchemaUnit)(nil)

// NewUnit creates a unit for step seeded with the owned slice of initial.
func NewUnit(step schema.Step, initial map[string]any, opts ...UnitOption) *SchemaUnit {
	u := &SchemaUnit{
		step:      step,
		evaluator: expr.New(),
		async:     make(map[string]AsyncRule),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		values:    values.Pick(initial, step.Paths()),
		touched:   make(map[string]bool),
		cleared:   make(map[string]bool),
		server:    ErrorTree{},
		subs:      make(map[int]func(string, any)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(u)
		}
	}
	u.errors = u.validateSync()
	return u
}

func (u *SchemaUnit) Name() string { return u.step.Name }

func (u *SchemaUnit) Label() string { return u.step.Label }

// Step returns the schema step the unit was built from.
func (u *SchemaUnit) Step() schema.Step { return u.step }

// Owns reports whether path is one of the unit's fields or nested below one.
func (u *SchemaUnit) Owns(path string) bool {
	for _, owned := range u.step.Paths() {
		if values.HasPrefix(path, owned) {
			return true
		}
	}
	return false
}

// Values returns a copy of the unit's current values.
func (u *SchemaUnit) Values() map[string]any {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return values.Clone(u.values)
}

// Value returns the current value at path.
func (u *SchemaUnit) Value(path string) (any, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	value, ok := values.Get(u.values, path)
	return values.CloneValue(value), ok
}

// SetValue changes one owned field, marks it touched, revalidates and notifies
// subscribers. A nil value removes the field.
func (u *SchemaUnit) SetValue(path string, value any) error {
	path = strings.Trim(strings.TrimSpace(path), ".")
	if !u.Owns(path) {
		return fmt.Errorf("%w: %s does not own %q", ErrNotOwned, u.step.Name, path)
	}

	u.mu.Lock()
	if value == nil {
		values.Delete(u.values, path)
	} else if err := values.Set(u.values, path, values.CloneValue(value)); err != nil {
		u.mu.Unlock()
		return fmt.Errorf("form: set %s: %w", path, err)
	}
	u.touched[path] = true
	for cleared := range u.cleared {
		if values.HasPrefix(cleared, path) {
			delete(u.cleared, cleared)
		}
	}
	if value == nil {
		u.cleared[path] = true
	}
	for serverPath := range u.server.Under(path) {
		delete(u.server, serverPath)
	}
	u.mu.Unlock()

	u.Revalidate()
	u.publish(path, value)
	return nil
}

// Subscribe registers fn for every field change. It returns an unsubscribe
// func.
func (u *SchemaUnit) Subscribe(fn func(path string, value any)) func() {
	if fn == nil {
		return func() {}
	}
	u.subMu.Lock()
	id := u.nextSub
	u.nextSub++
	u.subs[id] = fn
	u.subMu.Unlock()
	return func() {
		u.subMu.Lock()
		delete(u.subs, id)
		u.subMu.Unlock()
	}
}

func (u *SchemaUnit) publish(path string, value any) {
	u.subMu.RLock()
	ids := make([]int, 0, len(u.subs))
	for id := range u.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	handlers := make([]func(string, any), 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, u.subs[id])
	}
	u.subMu.RUnlock()

	for _, fn := range handlers {
		fn(path, value)
	}
}

// Touch marks path as interacted with so its errors become visible.
func (u *SchemaUnit) Touch(path string) {
	u.mu.Lock()
	u.touched[path] = true
	u.mu.Unlock()
}

// TouchAll makes every error visible, as after a submit attempt.
func (u *SchemaUnit) TouchAll() {
	u.mu.Lock()
	u.touchedAll = true
	u.mu.Unlock()
}

// Touched reports whether errors at path are visible.
func (u *SchemaUnit) Touched(path string) bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.isTouchedLocked(path)
}

func (u *SchemaUnit) isTouchedLocked(path string) bool {
	if u.touchedAll {
		return true
	}
	for touched := range u.touched {
		if values.HasPrefix(path, touched) || values.HasPrefix(touched, path) {
			return true
		}
	}
	return false
}

// Cleared reports whether the user removed the value at path, directly or by
// clearing one of its parents, and has not set it since.
func (u *SchemaUnit) Cleared(path string) bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if _, ok := values.Get(u.values, path); ok {
		return false
	}
	for cleared := range u.cleared {
		if values.HasPrefix(path, cleared) {
			return true
		}
	}
	return false
}

// Revalidate reruns the synchronous rules, typically after a peer step
// changed a value a cross-step rule reads.
func (u *SchemaUnit) Revalidate() {
	errs := u.validateSync()
	u.mu.Lock()
	u.errors = errs
	u.mu.Unlock()
}

// Errors returns the messages that should be displayed: synchronous errors on
// touched fields plus server-side errors.
func (u *SchemaUnit) Errors() ErrorTree {
	u.mu.RLock()
	defer u.mu.RUnlock()
	out := ErrorTree{}
	for path, msg := range u.errors {
		if u.isTouchedLocked(path) {
			out.Add(path, msg)
		}
	}
	out.Merge(u.server)
	return out
}

// HasErrors reports whether the step has visible outstanding errors.
func (u *SchemaUnit) HasErrors() bool {
	return !u.Errors().Empty()
}

// SetServerErrors attaches backend messages to fields of this step. They stay
// until the field is edited.
func (u *SchemaUnit) SetServerErrors(tree ErrorTree) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.server = ErrorTree{}
	for path, msg := range tree {
		if u.Owns(path) {
			u.server.Add(path, msg)
			u.touched[path] = true
		}
	}
}

// ValidateAndCollect touches every field, runs synchronous and asynchronous
// rules and returns the owned data or the error tree. It waits for all async
// checks; a cancelled ctx abandons them and sets Result.Err.
func (u *SchemaUnit) ValidateAndCollect(ctx context.Context) Result {
	u.TouchAll()
	errs := u.validateSync()

	u.mu.RLock()
	snapshot := values.Clone(u.values)
	server := u.server.Clone()
	u.mu.RUnlock()

	all := u.ruleContext(snapshot).Values
	for _, field := range u.step.Fields {
		if field.Async == "" {
			continue
		}
		if _, failed := errs[field.Path]; failed {
			continue
		}
		value, ok := values.Get(snapshot, field.Path)
		if !ok || values.IsEmpty(value) {
			continue
		}
		rule, ok := u.async[field.Async]
		if !ok {
			errs.Add(field.Path, fmt.Sprintf("%s cannot be checked: unknown rule %q", field.Label, field.Async))
			continue
		}
		msg, err := rule(ctx, value, all)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{Step: u.step.Name, Errors: ErrorTree{}, Err: ctxErr}
		}
		if err != nil {
			u.logger.Warn("async validation failed",
				"step", u.step.Name,
				"field", field.Path,
				"rule", field.Async,
				"error", err,
			)
			msg = field.Message("async_error", "Could not verify "+strings.ToLower(field.Label))
		}
		errs.Add(field.Path, msg)
	}

	u.mu.Lock()
	u.errors = errs.Clone()
	u.mu.Unlock()

	errs.Merge(server)
	if !errs.Empty() {
		return Result{Step: u.step.Name, Errors: errs}
	}
	return Result{Step: u.step.Name, Data: values.Pick(snapshot, u.step.Paths()), Errors: ErrorTree{}}
}

func (u *SchemaUnit) validateSync() ErrorTree {
	u.mu.RLock()
	snapshot := values.Clone(u.values)
	u.mu.RUnlock()

	ctx := u.ruleContext(snapshot)
	errs := ErrorTree{}
	for _, field := range u.step.Fields {
		value, _ := values.Get(snapshot, field.Path)
		errs.Add(field.Path, CheckField(field, value, u.evaluator, ctx))
	}
	return errs
}

func (u *SchemaUnit) ruleContext(own map[string]any) visibility.Context {
	merged := map[string]any{}
	if u.peers != nil {
		merged = values.Clone(u.peers())
	}
	merged = values.Merge(merged, own)
	return visibility.Context{Values: merged, Extras: u.extras}
}

// Coerce converts text input for field into the value type the field
// expects. Empty input yields nil.
func Coerce(field schema.Field, raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	switch field.Type {
	case schema.TypeInteger:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s must be a whole number", field.Label)
		}
		return float64(n), nil
	case schema.TypeNumber:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%s must be a number", field.Label)
		}
		return n, nil
	case schema.TypeBoolean:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%s must be true or false", field.Label)
		}
		return b, nil
	case schema.TypeArray:
		parts := strings.Split(raw, ",")
		out := make([]any, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out, nil
	case schema.TypeObject:
		return map[string]any{"id": raw}, nil
	default:
		return raw, nil
	}
}
