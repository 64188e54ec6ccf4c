package wizard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formwizard/pkg/draft"
	"github.com/goliatone/go-formwizard/pkg/form"
	"github.com/goliatone/go-formwizard/pkg/notify"
)

type stubUnit struct {
	name string
	data map[string]any
	errs form.ErrorTree
}

func (u stubUnit) Name() string { return u.name }

func (u stubUnit) ValidateAndCollect(context.Context) form.Result {
	if len(u.errs) > 0 {
		return form.Result{Step: u.name, Errors: u.errs}
	}
	return form.Result{Step: u.name, Data: u.data, Errors: form.ErrorTree{}}
}

// barrierUnit only completes once every unit sharing the barrier has started.
type barrierUnit struct {
	name    string
	started chan<- struct{}
	release <-chan struct{}
}

func (u barrierUnit) Name() string { return u.name }

func (u barrierUnit) ValidateAndCollect(ctx context.Context) form.Result {
	u.started <- struct{}{}
	select {
	case <-u.release:
		return form.Result{Step: u.name, Data: map[string]any{u.name: true}, Errors: form.ErrorTree{}}
	case <-ctx.Done():
		return form.Result{Step: u.name, Err: ctx.Err()}
	}
}

func TestSubmitIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	store := draft.NewStore(nil)
	if err := store.Save(ctx, draft.FormTypeEvent, "e1", map[string]any{"name": "x"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	recorder := &notify.Recorder{}
	called := false

	o := NewOrchestrator(outingDefinition(t), store,
		WithNotifier(recorder),
		WithOnSubmit(func(context.Context, map[string]any) error {
			called = true
			return nil
		}),
	)
	units := []form.Unit{
		stubUnit{name: "basics", data: map[string]any{"name": "x"}},
		stubUnit{name: "place", errs: form.ErrorTree{"location": "Location is required"}},
	}

	result, err := o.Submit(ctx, "e1", units)
	if err != nil {
		t.Fatalf("validation failures must not be errors: %v", err)
	}
	if called || result.Submitted {
		t.Fatalf("submit must not be called when a step fails")
	}
	if !result.Steps[0].OK() || result.Steps[1].OK() {
		t.Fatalf("expected both step outcomes to be observable, got %+v", result.Steps)
	}

	wantErrors := []form.FieldError{{Step: "place", Path: "location", Message: "Location is required"}}
	if diff := cmp.Diff(wantErrors, result.Errors); diff != "" {
		t.Fatalf("errors mismatch (-want +got):\n%s", diff)
	}
	wantMessages := []notify.Message{{
		Type:    notify.TypeError,
		Message: "Please fix 1 error before submitting",
		Detail:  []string{"Place: Location is required"},
	}}
	if diff := cmp.Diff(wantMessages, recorder.Messages()); diff != "" {
		t.Fatalf("notification mismatch (-want +got):\n%s", diff)
	}
	if !store.Has(ctx, draft.FormTypeEvent, "e1") {
		t.Fatalf("draft must survive a rejected submit")
	}
}

func TestSubmitMergesAppliesRulesAndClearsDraft(t *testing.T) {
	ctx := context.Background()
	store := draft.NewStore(nil)
	_ = store.Save(ctx, draft.FormTypeEvent, "e1", map[string]any{"name": "draft"})

	var got map[string]any
	o := NewOrchestrator(outingDefinition(t), store, WithOnSubmit(func(_ context.Context, payload map[string]any) error {
		got = payload
		return nil
	}))
	units := []form.Unit{
		stubUnit{name: "basics", data: map[string]any{"name": "Picnic"}},
		stubUnit{name: "place", data: map[string]any{
			"online":      true,
			"location":    map[string]any{"id": float64(42)},
			"online_link": "https://meet.example.com/x",
		}},
	}

	result, err := o.Submit(ctx, "e1", units)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	want := map[string]any{"name": "Picnic", "location": map[string]any{"id": "online"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("payload mismatch (-want +got):\n%s", diff)
	}
	if !result.Submitted {
		t.Fatalf("expected submitted result")
	}
	if store.Has(ctx, draft.FormTypeEvent, "e1") {
		t.Fatalf("expected draft to be cleared after submit")
	}
}

func TestSubmitFailureKeepsDraft(t *testing.T) {
	ctx := context.Background()
	store := draft.NewStore(nil)
	_ = store.Save(ctx, draft.FormTypeEvent, "e1", map[string]any{"name": "draft"})
	backend := errors.New("backend down")

	o := NewOrchestrator(outingDefinition(t), store, WithOnSubmit(func(context.Context, map[string]any) error {
		return backend
	}))
	_, err := o.Submit(ctx, "e1", []form.Unit{stubUnit{name: "basics", data: map[string]any{"name": "x"}}})
	if !errors.Is(err, backend) {
		t.Fatalf("expected backend error, got %v", err)
	}
	if !store.Has(ctx, draft.FormTypeEvent, "e1") {
		t.Fatalf("draft must survive a failed submit")
	}
}

func TestCancelClearsDraft(t *testing.T) {
	ctx := context.Background()
	store := draft.NewStore(nil)
	_ = store.Save(ctx, draft.FormTypeEvent, "e1", map[string]any{"name": "x"})
	cancelled := false

	o := NewOrchestrator(outingDefinition(t), store, WithOnCancel(func(context.Context) error {
		cancelled = true
		return nil
	}))
	if err := o.Cancel(ctx, "e1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !cancelled {
		t.Fatalf("expected cancel collaborator to be called")
	}
	if diff := cmp.Diff(map[string]any{}, store.Read(ctx, draft.FormTypeEvent, "e1")); diff != "" {
		t.Fatalf("draft mismatch (-want +got):\n%s", diff)
	}
}

func TestValidateAllStartsEveryUnitBeforeWaiting(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	started := make(chan struct{}, 2)
	release := make(chan struct{})
	go func() {
		for i := 0; i < 2; i++ {
			select {
			case <-started:
			case <-ctx.Done():
				return
			}
		}
		close(release)
	}()

	results, err := ValidateAll(ctx, []form.Unit{
		barrierUnit{name: "a", started: started, release: release},
		barrierUnit{name: "b", started: started, release: release},
	})
	if err != nil {
		t.Fatalf("validate all: %v", err)
	}
	if diff := cmp.Diff([]string{"a", "b"}, []string{results[0].Step, results[1].Step}); diff != "" {
		t.Fatalf("result order mismatch (-want +got):\n%s", diff)
	}
}

func TestValidateAllReportsAbandonedValidation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	started := make(chan struct{}, 1)
	_, err := ValidateAll(ctx, []form.Unit{barrierUnit{name: "a", started: started, release: make(chan struct{})}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

type abandonedUnit struct {
	name string
	err  error
}

func (u abandonedUnit) Name() string { return u.name }

func (u abandonedUnit) ValidateAndCollect(context.Context) form.Result {
	return form.Result{Step: u.name, Err: u.err}
}

func TestValidateAllCancelsSiblingsOfAbandonedUnit(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	errGone := errors.New("backend went away")
	started := make(chan struct{}, 1)
	results, err := ValidateAll(ctx, []form.Unit{
		abandonedUnit{name: "a", err: errGone},
		barrierUnit{name: "b", started: started, release: make(chan struct{})},
	})
	if !errors.Is(err, errGone) {
		t.Fatalf("expected the abandoned unit's error, got %v", err)
	}
	if ctx.Err() != nil {
		t.Fatalf("sibling was not cancelled before the deadline")
	}
	if !errors.Is(results[1].Err, context.Canceled) {
		t.Fatalf("expected sibling cancelled, got %v", results[1].Err)
	}
}
