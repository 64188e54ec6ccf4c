package wizard

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-formwizard/pkg/draft"
	"github.com/goliatone/go-formwizard/pkg/form"
	"github.com/goliatone/go-formwizard/pkg/notify"
	"github.com/goliatone/go-formwizard/pkg/values"
)

// SubmitFunc hands the backend-shaped payload to the caller.
type SubmitFunc func(ctx context.Context, payload map[string]any) error

// CancelFunc is invoked after a cancelled wizard dropped its draft.
type CancelFunc func(ctx context.Context) error

// SubmitResult reports what a submit attempt did. Errors is populated only when
// validation failed, in which case Submitted is false and nothing was sent.
type SubmitResult struct {
	Submitted bool
	Payload   map[string]any
	Errors    []form.FieldError
	Steps     []form.Result
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithOnSubmit sets the submit collaborator.
func WithOnSubmit(fn SubmitFunc) OrchestratorOption {
	return func(o *Orchestrator) {
		o.onSubmit = fn
	}
}

// WithOnCancel sets the cancel collaborator.
func WithOnCancel(fn CancelFunc) OrchestratorOption {
	return func(o *Orchestrator) {
		o.onCancel = fn
	}
}

// WithNotifier sets where the failed-submit summary goes.
func WithNotifier(n notify.Notifier) OrchestratorOption {
	return func(o *Orchestrator) {
		if n != nil {
			o.notifier = n
		}
	}
}

// WithOrchestratorLogger sets the logger.
func WithOrchestratorLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Orchestrator validates every unit, merges their data, applies derived rules
// and submits. Submission is all or nothing.
type Orchestrator struct {
	def      Definition
	store    *draft.Store
	onSubmit SubmitFunc
	onCancel CancelFunc
	notifier notify.Notifier
	logger   *slog.Logger
}

// NewOrchestrator binds def to store.
func NewOrchestrator(def Definition, store *draft.Store, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		def:      def,
		store:    store,
		notifier: notify.Discard,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// ValidateAll starts every unit's validation before waiting on any of them and
// waits for all to settle. Results keep the order of units. Once one unit is
// abandoned the others are cancelled too.
func ValidateAll(ctx context.Context, units []form.Unit) ([]form.Result, error) {
	results := make([]form.Result, len(units))
	g, gctx := errgroup.WithContext(ctx)
	for i, unit := range units {
		g.Go(func() error {
			results[i] = unit.ValidateAndCollect(gctx)
			return results[i].Err
		})
	}
	if err := g.Wait(); err == nil {
		return results, nil
	}

	for _, result := range results {
		if result.Err != nil {
			return results, fmt.Errorf("wizard: validation of %s abandoned: %w", result.Step, result.Err)
		}
	}
	return results, nil
}

// Submit validates units, and only when all succeed merges their data in the
// order given, applies the derived rules, calls the submit collaborator and
// clears the draft for id. A validation failure is reported through the
// notifier and the result, never as an error. The returned error covers an
// abandoned validation, a failing derived rule or a failing submit; in the
// last case the draft is kept.
func (o *Orchestrator) Submit(ctx context.Context, id string, units []form.Unit) (SubmitResult, error) {
	results, err := ValidateAll(ctx, units)
	if err != nil {
		return SubmitResult{Steps: results}, err
	}

	var fieldErrors []form.FieldError
	for _, result := range results {
		fieldErrors = append(fieldErrors, result.Errors.Flatten(result.Step)...)
	}
	if len(fieldErrors) > 0 {
		o.logger.Debug("wizard submit rejected",
			"form_type", string(o.def.FormType),
			"id", id,
			"errors", len(fieldErrors),
		)
		o.notifier.ShowMessage(ctx, notify.Message{
			Type:    notify.TypeError,
			Message: summary(len(fieldErrors)),
			Detail:  o.detail(fieldErrors),
		})
		return SubmitResult{Errors: fieldErrors, Steps: results}, nil
	}

	payload := map[string]any{}
	for _, result := range results {
		payload = values.Merge(payload, result.Data)
	}
	if err := o.def.Apply(ctx, payload); err != nil {
		return SubmitResult{Steps: results}, err
	}

	if o.onSubmit != nil {
		if err := o.onSubmit(ctx, values.Clone(payload)); err != nil {
			o.logger.Info("wizard submit failed",
				"form_type", string(o.def.FormType),
				"id", id,
				"error", err,
			)
			return SubmitResult{Payload: payload, Steps: results}, fmt.Errorf("wizard: submit: %w", err)
		}
	}

	if o.store != nil {
		if err := o.store.Clear(ctx, o.def.FormType, id); err != nil {
			o.logger.Warn("draft clear after submit failed",
				"form_type", string(o.def.FormType),
				"id", id,
				"error", err,
			)
		}
	}
	o.logger.Info("wizard submitted", "form_type", string(o.def.FormType), "id", id)
	return SubmitResult{Submitted: true, Payload: payload, Steps: results}, nil
}

// Cancel drops the draft for id and calls the cancel collaborator. Nothing is
// validated.
func (o *Orchestrator) Cancel(ctx context.Context, id string) error {
	if o.store != nil {
		if err := o.store.Clear(ctx, o.def.FormType, id); err != nil {
			o.logger.Warn("draft clear after cancel failed",
				"form_type", string(o.def.FormType),
				"id", id,
				"error", err,
			)
		}
	}
	if o.onCancel == nil {
		return nil
	}
	if err := o.onCancel(ctx); err != nil {
		return fmt.Errorf("wizard: cancel: %w", err)
	}
	return nil
}

func (o *Orchestrator) detail(errs []form.FieldError) []string {
	out := make([]string, 0, len(errs))
	for _, fe := range errs {
		label := fe.Step
		if o.def.Form != nil {
			if step, ok := o.def.Form.Step(fe.Step); ok && step.Label != "" {
				label = step.Label
			}
		}
		out = append(out, fmt.Sprintf("%s: %s", label, fe.Message))
	}
	return out
}

func summary(n int) string {
	if n == 1 {
		return "Please fix 1 error before submitting"
	}
	return fmt.Sprintf("Please fix %d errors before submitting", n)
}
