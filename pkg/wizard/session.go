package wizard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/goliatone/go-formwizard/pkg/api"
	"github.com/goliatone/go-formwizard/pkg/draft"
	"github.com/goliatone/go-formwizard/pkg/form"
	"github.com/goliatone/go-formwizard/pkg/notify"
	"github.com/goliatone/go-formwizard/pkg/reconcile"
	"github.com/goliatone/go-formwizard/pkg/values"
	"github.com/goliatone/go-formwizard/pkg/visibility"
	"github.com/goliatone/go-formwizard/pkg/visibility/expr"
)

// ErrClosed is returned by a Session used after Close, Submit or Cancel ended
// it.
var ErrClosed = errors.New("wizard: session closed")

// ExtraIsNew is the extras key rules read to tell a new entity from an
// existing one.
const ExtraIsNew = "is_new"

type sessionConfig struct {
	server      map[string]any
	extras      map[string]any
	initialStep int
	writerOpts  []draft.WriterOption
	orchOpts    []OrchestratorOption
	notifier    notify.Notifier
	logger      *slog.Logger
	evaluator   visibility.Evaluator
}

// SessionOption configures a Session.
type SessionOption func(*sessionConfig)

// WithServerData seeds the session with the entity as the backend returned it.
func WithServerData(data map[string]any) SessionOption {
	return func(c *sessionConfig) {
		c.server = values.Clone(data)
	}
}

// WithExtras adds session metadata readable by rules as `extras.<key>`.
func WithExtras(extras map[string]any) SessionOption {
	return func(c *sessionConfig) {
		for key, value := range extras {
			c.extras[key] = value
		}
	}
}

// WithInitialStep restores the active step, for example from a `step=` query
// parameter. Out of range values are clamped.
func WithInitialStep(n int) SessionOption {
	return func(c *sessionConfig) {
		c.initialStep = n
	}
}

// WithDebounceOptions configures every draft writer of the session.
func WithDebounceOptions(opts ...draft.WriterOption) SessionOption {
	return func(c *sessionConfig) {
		c.writerOpts = append(c.writerOpts, opts...)
	}
}

// WithSubmit sets the submit collaborator.
func WithSubmit(fn SubmitFunc) SessionOption {
	return func(c *sessionConfig) {
		c.orchOpts = append(c.orchOpts, WithOnSubmit(fn))
	}
}

// WithCancel sets the cancel collaborator.
func WithCancel(fn CancelFunc) SessionOption {
	return func(c *sessionConfig) {
		c.orchOpts = append(c.orchOpts, WithOnCancel(fn))
	}
}

// WithSessionNotifier sets the notification collaborator.
func WithSessionNotifier(n notify.Notifier) SessionOption {
	return func(c *sessionConfig) {
		if n != nil {
			c.notifier = n
		}
	}
}

// WithSessionLogger sets the logger shared by the session's components.
func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(c *sessionConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithSessionEvaluator overrides the rule evaluator for steps and fields.
func WithSessionEvaluator(evaluator visibility.Evaluator) SessionOption {
	return func(c *sessionConfig) {
		if evaluator != nil {
			c.evaluator = evaluator
		}
	}
}

// Session is one open wizard for one entity. Each step gets a unit seeded
// from the reconciled initial data and a debounced writer feeding the draft.
type Session struct {
	id       string
	def      Definition
	entityID string
	store    *draft.Store
	extras   map[string]any
	notifier notify.Notifier
	logger   *slog.Logger

	units        []*form.SchemaUnit
	writers      []*draft.DebouncedWriter
	unsubscribes []func()
	container    *Container
	orchestrator *Orchestrator

	// ctx lives until Close; validations and submits derive from it.
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// NewSession opens a wizard for entityID; an empty id or draft.NewEntityID
// means a new entity. Initial values are reconciled from server data, the
// stored draft and the definition defaults.
func NewSession(ctx context.Context, def Definition, store *draft.Store, entityID string, opts ...SessionOption) (*Session, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		store = draft.NewStore(nil)
	}

	cfg := sessionConfig{
		extras:    map[string]any{},
		notifier:  notify.Discard,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		evaluator: expr.New(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	entityID = strings.TrimSpace(entityID)
	if entityID == "" {
		entityID = draft.NewEntityID
	}
	if _, ok := cfg.extras[ExtraIsNew]; !ok {
		cfg.extras[ExtraIsNew] = entityID == draft.NewEntityID
	}

	s := &Session{
		id:       uuid.NewString(),
		def:      def,
		entityID: entityID,
		store:    store,
		extras:   cfg.extras,
		notifier: cfg.notifier,
	}
	s.logger = cfg.logger.With("session", s.id, "form_type", string(def.FormType), "id", entityID)
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))

	initial := reconcile.Reconcile(reconcile.Sources{
		Server:   cfg.server,
		Draft:    store.Read(ctx, def.FormType, entityID),
		Defaults: def.Defaults,
	}, def.Synthesizers...)

	states := make([]StepState, 0, len(def.Form.Steps))
	visible := make(map[string]string, len(def.Form.Steps))
	for _, step := range def.Form.Steps {
		unit := form.NewUnit(step, initial,
			form.WithPeers(s.Values),
			form.WithExtras(s.extras),
			form.WithAsyncRules(def.AsyncRules),
			form.WithEvaluator(cfg.evaluator),
			form.WithUnitLogger(s.logger),
		)
		s.units = append(s.units, unit)
		states = append(states, unit)
		visible[step.Name] = step.Visible
	}

	writerOpts := append([]draft.WriterOption{draft.WithWriterLogger(s.logger)}, cfg.writerOpts...)
	for _, unit := range s.units {
		unit.Revalidate()
		writer := draft.NewDebouncedWriter(store, def.FormType, entityID, snapshotOf(unit), writerOpts...)
		s.writers = append(s.writers, writer)
		s.unsubscribes = append(s.unsubscribes, unit.Subscribe(s.onChange(unit, writer)))
	}

	s.container = NewContainer(states, visible,
		WithVisibilityContext(s.visibilityContext),
		WithStepEvaluator(cfg.evaluator),
	)
	if cfg.initialStep > 0 {
		s.container.GoTo(cfg.initialStep)
	}

	orchOpts := append([]OrchestratorOption{
		WithNotifier(cfg.notifier),
		WithOrchestratorLogger(s.logger),
	}, cfg.orchOpts...)
	s.orchestrator = NewOrchestrator(def, store, orchOpts...)

	s.logger.Debug("wizard session opened", "steps", len(s.units))
	return s, nil
}

// ID is the session's unique id.
func (s *Session) ID() string { return s.id }

// EntityID is the id the draft is stored under.
func (s *Session) EntityID() string { return s.entityID }

// FormType returns the wizard kind.
func (s *Session) FormType() draft.FormType { return s.def.FormType }

// Definition returns the definition the session runs.
func (s *Session) Definition() Definition { return s.def }

// Container returns the step navigation state.
func (s *Session) Container() *Container { return s.container }

// Units returns the step units in declaration order.
func (s *Session) Units() []*form.SchemaUnit {
	return append([]*form.SchemaUnit(nil), s.units...)
}

// Unit returns the unit for the named step.
func (s *Session) Unit(step string) (*form.SchemaUnit, bool) {
	for _, unit := range s.units {
		if unit.Name() == step {
			return unit, true
		}
	}
	return nil, false
}

// ActiveUnit returns the unit of the active step.
func (s *Session) ActiveUnit() *form.SchemaUnit {
	unit, _ := s.Unit(s.container.Active())
	return unit
}

// Extras returns a copy of the session metadata.
func (s *Session) Extras() map[string]any {
	return values.Clone(s.extras)
}

// Values merges the current values of every step.
func (s *Session) Values() map[string]any {
	merged := map[string]any{}
	for _, unit := range s.units {
		merged = values.Merge(merged, unit.Values())
	}
	return merged
}

// SetValue routes a change to the step owning path.
func (s *Session) SetValue(path string, value any) error {
	if s.isClosed() {
		return ErrClosed
	}
	for _, unit := range s.units {
		if unit.Owns(path) {
			return unit.SetValue(path, value)
		}
	}
	return fmt.Errorf("%w: no step owns %q", form.ErrNotOwned, path)
}

// Steps describes the tab bar.
func (s *Session) Steps() []StepDescriptor {
	return s.container.Steps()
}

// Flush writes pending draft changes right away.
func (s *Session) Flush(ctx context.Context) error {
	var errs []error
	for _, writer := range s.writers {
		if err := writer.Flush(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Validate runs every visible step as a submit would, without submitting, so
// every error becomes visible and the tabs reflect it.
func (s *Session) Validate(ctx context.Context) ([]form.FieldError, error) {
	ctx, done := s.scope(ctx)
	defer done()

	results, err := ValidateAll(ctx, s.visibleUnits())
	if err != nil {
		return nil, err
	}
	var out []form.FieldError
	for _, result := range results {
		out = append(out, result.Errors.Flatten(result.Step)...)
	}
	return out, nil
}

// Submit validates and submits the visible steps. Hidden steps are neither
// validated nor sent. After a successful submit the session is closed.
func (s *Session) Submit(ctx context.Context) (SubmitResult, error) {
	if s.isClosed() {
		return SubmitResult{}, ErrClosed
	}
	if err := s.Flush(ctx); err != nil {
		s.logger.Warn("draft flush before submit failed", "error", err)
	}

	scoped, done := s.scope(ctx)
	result, err := s.orchestrator.Submit(scoped, s.entityID, s.visibleUnits())
	done()
	if err == nil && result.Submitted {
		s.Close()
	}
	return result, err
}

// Cancel abandons pending draft writes, clears the draft and calls the cancel
// collaborator. The session is closed afterwards.
func (s *Session) Cancel(ctx context.Context) error {
	if s.isClosed() {
		return ErrClosed
	}
	s.Close()
	return s.orchestrator.Cancel(ctx, s.entityID)
}

// ApplyServerErrors attaches a backend validation failure to the fields it
// names so they render inline and mark their step. Messages that match no
// field are shown through the notifier. It reports whether err was a
// validation failure.
func (s *Session) ApplyServerErrors(ctx context.Context, err error) bool {
	apiErr, ok := api.AsAPIError(err)
	if !ok || !apiErr.IsValidation() {
		return false
	}

	produced := map[string]string{}
	known := make([]string, 0)
	for _, step := range s.def.Form.Steps {
		for _, field := range step.Fields {
			known = append(known, field.Path)
		}
	}
	for _, rule := range s.def.Form.Derived {
		if len(rule.Consumes) == 0 {
			continue
		}
		for _, out := range rule.Produces {
			produced[out] = rule.Consumes[0]
			known = append(known, out)
		}
	}

	mapping := api.MapErrorPayload(known, api.FlattenErrorData(apiErr.Data))
	trees := make([]form.ErrorTree, len(s.units))
	for i := range trees {
		trees[i] = form.ErrorTree{}
	}
	detail := append([]string(nil), mapping.Form...)
	for path, messages := range mapping.Fields {
		target := path
		if consumer, ok := produced[path]; ok {
			if _, owned := s.def.Form.Owner(path); !owned {
				target = consumer
			}
		}
		placed := false
		for i, unit := range s.units {
			if unit.Owns(target) {
				trees[i].Add(target, strings.Join(messages, " "))
				placed = true
				break
			}
		}
		if !placed {
			detail = append(detail, messages...)
		}
	}
	for i, unit := range s.units {
		unit.SetServerErrors(trees[i])
	}

	message := apiErr.Message
	if message == "" {
		message = "The server rejected the form"
	}
	s.notifier.ShowMessage(ctx, notify.Message{Type: notify.TypeError, Message: message, Detail: detail})
	s.logger.Info("server validation errors applied", "fields", len(mapping.Fields), "form", len(mapping.Form))
	return true
}

// Close stops draft writes and abandons in-flight validations; pending writes
// are dropped. It is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()

	for _, unsubscribe := range s.unsubscribes {
		unsubscribe()
	}
	for _, writer := range s.writers {
		writer.Close()
	}
}

// scope derives a context from ctx that is also cancelled when the session
// closes.
func (s *Session) scope(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) visibleUnits() []form.Unit {
	visible := map[string]bool{}
	for _, step := range s.container.Steps() {
		visible[step.Name] = step.Visible
	}
	out := make([]form.Unit, 0, len(s.units))
	for _, unit := range s.units {
		if visible[unit.Name()] {
			out = append(out, unit)
		}
	}
	return out
}

func (s *Session) visibilityContext() visibility.Context {
	return visibility.Context{Values: s.Values(), Extras: s.extras}
}

func (s *Session) onChange(changed *form.SchemaUnit, writer *draft.DebouncedWriter) func(string, any) {
	return func(path string, value any) {
		writer.Notify(path, value)
		for _, unit := range s.units {
			if unit != changed {
				unit.Revalidate()
			}
		}
	}
}

// snapshotOf persists the unit's full slice. Owned fields the user cleared are
// written as null, which the reconciler reads as an explicit clear on reload.
func snapshotOf(unit *form.SchemaUnit) draft.Snapshot {
	return func() map[string]any {
		current := unit.Values()
		for _, path := range unit.Step().Paths() {
			if _, ok := values.Get(current, path); !ok && unit.Cleared(path) {
				_ = values.Set(current, path, nil)
			}
		}
		return current
	}
}
