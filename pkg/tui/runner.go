// Package tui drives a wizard session from the terminal: one step at a time,
// with the same navigation, draft and submit behaviour as the web client.
package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/goliatone/go-formwizard/pkg/form"
	"github.com/goliatone/go-formwizard/pkg/notify"
	"github.com/goliatone/go-formwizard/pkg/schema"
	"github.com/goliatone/go-formwizard/pkg/values"
	"github.com/goliatone/go-formwizard/pkg/wizard"
)

// Outcome tells how a run ended.
type Outcome string

const (
	OutcomeSubmitted Outcome = "submitted"
	OutcomeSaved     Outcome = "saved"
	OutcomeCancelled Outcome = "cancelled"
)

// Result is returned by Run.
type Result struct {
	Outcome Outcome
	Submit  wizard.SubmitResult
}

const (
	actionNext     = "Next step"
	actionPrevious = "Previous step"
	actionJump     = "Go to step..."
	actionSubmit   = "Submit"
	actionSave     = "Save draft and exit"
	actionDiscard  = "Discard draft"
)

// Runner prompts for the fields of the active step, then asks where to go.
type Runner struct {
	driver PromptDriver
	out    io.Writer
	theme  Theme
	logger *slog.Logger
}

// New constructs a runner with defaults (survey driver on stdout).
func New(options ...Option) *Runner {
	r := &Runner{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(r)
	}
	if r.driver == nil {
		r.driver = newSurveyDriver(r.out)
	}
	return r
}

// Notifier prints wizard messages through the runner's driver. Pass it to the
// session so submit summaries reach the terminal.
func (r *Runner) Notifier() notify.Notifier {
	return notify.Func(func(ctx context.Context, msg notify.Message) {
		prefix := r.theme.InfoPrefix
		if msg.Type == notify.TypeError {
			prefix = r.theme.ErrorPrefix
		}
		lines := []string{prefix + msg.Message}
		for _, detail := range msg.Detail {
			lines = append(lines, "  - "+detail)
		}
		if err := r.driver.Info(ctx, strings.Join(lines, "\n")); err != nil {
			r.logger.Warn("notification not shown", "error", err)
		}
	})
}

// Run edits session until it is submitted, saved or discarded. On abort the
// pending draft changes are flushed before ErrAborted is returned.
func (r *Runner) Run(ctx context.Context, session *wizard.Session) (Result, error) {
	if ctx == nil {
		return Result{}, errors.New("tui: context is required")
	}
	for {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		unit := session.ActiveUnit()
		if unit == nil {
			return Result{}, ErrNoSteps
		}
		r.info(ctx, StepBar(session.Steps()))

		if err := r.promptStep(ctx, session, unit); err != nil {
			return r.abort(ctx, session, err)
		}

		action, err := r.chooseAction(ctx, session)
		if err != nil {
			return r.abort(ctx, session, err)
		}

		switch action {
		case actionNext:
			session.Container().Next()
		case actionPrevious:
			session.Container().Previous()
		case actionJump:
			if err := r.jump(ctx, session); err != nil {
				return r.abort(ctx, session, err)
			}
		case actionSubmit:
			result, err := session.Submit(ctx)
			if err != nil {
				if session.ApplyServerErrors(ctx, err) {
					continue
				}
				return Result{Submit: result}, err
			}
			if result.Submitted {
				return Result{Outcome: OutcomeSubmitted, Submit: result}, nil
			}
		case actionSave:
			err := session.Flush(ctx)
			session.Close()
			return Result{Outcome: OutcomeSaved}, err
		case actionDiscard:
			sure, err := r.driver.Confirm(ctx, ConfirmConfig{Message: "Discard the draft?"})
			if err != nil {
				return r.abort(ctx, session, err)
			}
			if sure {
				return Result{Outcome: OutcomeCancelled}, session.Cancel(ctx)
			}
		}
	}
}

func (r *Runner) abort(ctx context.Context, session *wizard.Session, cause error) (Result, error) {
	if err := session.Flush(context.WithoutCancel(ctx)); err != nil {
		r.logger.Warn("draft flush on abort failed", "error", err)
	}
	session.Close()
	return Result{Outcome: OutcomeSaved}, cause
}

func (r *Runner) promptStep(ctx context.Context, session *wizard.Session, unit *form.SchemaUnit) error {
	for _, field := range unit.Step().Fields {
		if err := r.promptField(ctx, session, unit, field); err != nil {
			return err
		}
		if msg, ok := unit.Errors().Get(field.Path); ok {
			r.error(ctx, msg)
		}
	}
	return nil
}

func (r *Runner) promptField(ctx context.Context, session *wizard.Session, unit *form.SchemaUnit, field schema.Field) error {
	current, _ := unit.Value(field.Path)
	label := fieldLabel(field)

	switch {
	case field.Type == schema.TypeBoolean:
		def, _ := current.(bool)
		answer, err := r.driver.Confirm(ctx, ConfirmConfig{Message: label, Default: def})
		if err != nil {
			return err
		}
		return session.SetValue(field.Path, answer)

	case field.Type == schema.TypeArray && len(field.Enum) > 0:
		defaults := indicesOf(field.Enum, stringSlice(current))
		picked, err := r.driver.MultiSelect(ctx, SelectConfig{Message: label, Options: field.Enum, Defaults: defaults})
		if err != nil {
			return err
		}
		selected := make([]any, 0, len(picked))
		for _, idx := range picked {
			if idx >= 0 && idx < len(field.Enum) {
				selected = append(selected, field.Enum[idx])
			}
		}
		return session.SetValue(field.Path, selected)

	case len(field.Enum) > 0:
		for {
			idx, err := r.driver.Select(ctx, SelectConfig{
				Message:      label,
				Options:      field.Enum,
				DefaultIndex: indexOf(field.Enum, fmt.Sprint(current)),
			})
			if err != nil {
				return err
			}
			if idx < 0 || idx >= len(field.Enum) {
				r.error(ctx, fmt.Sprintf("Invalid %s selection", field.Path))
				continue
			}
			return session.SetValue(field.Path, field.Enum[idx])
		}

	case field.Type == schema.TypeText || field.Type == schema.TypeRichText:
		answer, err := r.driver.TextArea(ctx, TextAreaConfig{Message: label, Default: textDefault(current)})
		if err != nil {
			return err
		}
		return r.setCoerced(session, field, answer)

	default:
		for {
			answer, err := r.driver.Input(ctx, InputConfig{
				Message: label,
				Default: textDefault(current),
				Validator: func(raw string) error {
					_, err := form.Coerce(field, raw)
					return err
				},
			})
			if err != nil {
				return err
			}
			if err := r.setCoerced(session, field, answer); err != nil {
				var coerce *coerceError
				if errors.As(err, &coerce) {
					r.error(ctx, coerce.Error())
					continue
				}
				return err
			}
			return nil
		}
	}
}

type coerceError struct{ err error }

func (e *coerceError) Error() string { return e.err.Error() }
func (e *coerceError) Unwrap() error { return e.err }

func (r *Runner) setCoerced(session *wizard.Session, field schema.Field, raw string) error {
	value, err := form.Coerce(field, raw)
	if err != nil {
		return &coerceError{err: err}
	}
	return session.SetValue(field.Path, value)
}

func (r *Runner) chooseAction(ctx context.Context, session *wizard.Session) (string, error) {
	container := session.Container()
	index, count := container.Index(), container.Count()

	var options []string
	if index < count {
		options = append(options, actionNext)
	}
	if index > 1 {
		options = append(options, actionPrevious)
	}
	if count > 1 {
		options = append(options, actionJump)
	}
	options = append(options, actionSubmit, actionSave, actionDiscard)

	for {
		idx, err := r.driver.Select(ctx, SelectConfig{Message: "What next?", Options: options})
		if err != nil {
			return "", err
		}
		if idx >= 0 && idx < len(options) {
			return options[idx], nil
		}
		r.error(ctx, "Invalid selection")
	}
}

func (r *Runner) jump(ctx context.Context, session *wizard.Session) error {
	var names, labels []string
	defaultIdx := 0
	for _, step := range session.Steps() {
		if !step.Visible {
			continue
		}
		if step.Active {
			defaultIdx = len(names)
		}
		names = append(names, step.Name)
		labels = append(labels, stepLabel(step))
	}
	idx, err := r.driver.Select(ctx, SelectConfig{Message: "Go to step", Options: labels, DefaultIndex: defaultIdx})
	if err != nil {
		return err
	}
	if idx >= 0 && idx < len(names) {
		session.Container().GoToStep(names[idx])
	}
	return nil
}

func (r *Runner) info(ctx context.Context, msg string) {
	if err := r.driver.Info(ctx, r.theme.InfoPrefix+msg); err != nil {
		r.logger.Warn("message not shown", "error", err)
	}
}

func (r *Runner) error(ctx context.Context, msg string) {
	if err := r.driver.Info(ctx, r.theme.ErrorPrefix+msg); err != nil {
		r.logger.Warn("message not shown", "error", err)
	}
}

// StepBar renders the visible steps on one line, marking the active step
// with brackets and steps holding errors with "!".
func StepBar(steps []wizard.StepDescriptor) string {
	parts := make([]string, 0, len(steps))
	for _, step := range steps {
		if !step.Visible {
			continue
		}
		label := stepLabel(step)
		if step.HasError {
			label += " !"
		}
		if step.Active {
			label = "[" + label + "]"
		}
		parts = append(parts, label)
	}
	return strings.Join(parts, " > ")
}

func stepLabel(step wizard.StepDescriptor) string {
	return fmt.Sprintf("%d. %s", step.Index, step.Label)
}

func fieldLabel(field schema.Field) string {
	if field.Label != "" {
		return field.Label
	}
	return field.Path
}

func textDefault(current any) string {
	switch typed := current.(type) {
	case nil:
		return ""
	case string:
		return typed
	case map[string]any:
		if id, ok := typed["id"]; ok {
			return fmt.Sprint(id)
		}
		return ""
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	}
	if values.IsArray(current) {
		return strings.Join(stringSlice(current), ", ")
	}
	return fmt.Sprint(current)
}

func stringSlice(value any) []string {
	items, ok := value.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		switch typed := item.(type) {
		case map[string]any:
			if id, ok := typed["id"]; ok {
				out = append(out, fmt.Sprint(id))
			}
		default:
			out = append(out, fmt.Sprint(item))
		}
	}
	return out
}
