package wizard

import (
	"net/url"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formwizard/pkg/visibility"
)

type stubState struct {
	name    string
	label   string
	failing bool
}

func (s *stubState) Name() string    { return s.name }
func (s *stubState) Label() string   { return s.label }
func (s *stubState) HasErrors() bool { return s.failing }

func threeSteps() []StepState {
	return []StepState{
		&stubState{name: "basic", label: "Basic"},
		&stubState{name: "time", label: "Time"},
		&stubState{name: "participants", label: "Participants"},
	}
}

func TestContainerClampsNavigation(t *testing.T) {
	c := NewContainer(threeSteps(), nil)

	if got := c.Index(); got != 1 {
		t.Fatalf("expected initial index 1, got %d", got)
	}
	if got := c.Previous(); got != 1 {
		t.Fatalf("previous on first step: expected 1, got %d", got)
	}
	c.Next()
	c.Next()
	if got := c.Next(); got != 3 {
		t.Fatalf("next on last step: expected 3, got %d", got)
	}
	if got := c.GoTo(99); got != 3 {
		t.Fatalf("goTo(99): expected 3, got %d", got)
	}
	if got := c.GoTo(-4); got != 1 {
		t.Fatalf("goTo(-4): expected 1, got %d", got)
	}
	if got := c.Swipe(SwipeLeft); got != 2 {
		t.Fatalf("swipe left: expected 2, got %d", got)
	}
	if got := c.Swipe(SwipeRight); got != 1 {
		t.Fatalf("swipe right: expected 1, got %d", got)
	}
	if !c.GoToStep("participants") || c.Active() != "participants" {
		t.Fatalf("expected participants to be active, got %q", c.Active())
	}
	if c.GoToStep("missing") {
		t.Fatalf("expected unknown step to be rejected")
	}
}

func TestContainerHiddenSteps(t *testing.T) {
	isNew := true
	c := NewContainer(threeSteps(),
		map[string]string{"participants": "extras.is_new == false"},
		WithVisibilityContext(func() visibility.Context {
			return visibility.Context{Extras: map[string]any{"is_new": isNew}}
		}),
	)

	if got := c.Count(); got != 2 {
		t.Fatalf("expected 2 visible steps, got %d", got)
	}
	if got := c.GoTo(3); got != 2 {
		t.Fatalf("expected goTo to clamp to visible steps, got %d", got)
	}
	if c.GoToStep("participants") {
		t.Fatalf("hidden step must not be activated")
	}

	isNew = false
	if got := c.Count(); got != 3 {
		t.Fatalf("expected 3 visible steps, got %d", got)
	}
	c.GoTo(3)
	isNew = true
	if got, active := c.Index(), c.Active(); got != 2 || active != "time" {
		t.Fatalf("expected fallback to time (2), got %s (%d)", active, got)
	}
}

func TestContainerStepDescriptors(t *testing.T) {
	states := threeSteps()
	states[1].(*stubState).failing = true
	c := NewContainer(states, map[string]string{"participants": "extras.is_new == false"},
		WithVisibilityContext(func() visibility.Context {
			return visibility.Context{Extras: map[string]any{"is_new": true}}
		}),
	)
	c.Next()

	want := []StepDescriptor{
		{Name: "basic", Label: "Basic", Index: 1, Visible: true},
		{Name: "time", Label: "Time", Index: 2, Visible: true, HasError: true, Active: true},
		{Name: "participants", Label: "Participants"},
	}
	if diff := cmp.Diff(want, c.Steps()); diff != "" {
		t.Fatalf("descriptors mismatch (-want +got):\n%s", diff)
	}

	states[1].(*stubState).failing = false
	if c.Steps()[1].HasError {
		t.Fatalf("expected error flag to follow the step state")
	}
}

func TestContainerQueryRoundTrip(t *testing.T) {
	c := NewContainer(threeSteps(), nil)
	c.GoTo(2)
	query := c.Query()
	if diff := cmp.Diff(url.Values{"step": {"2"}}, query); diff != "" {
		t.Fatalf("query mismatch (-want +got):\n%s", diff)
	}

	restored := NewContainer(threeSteps(), nil)
	if got := restored.Restore(query); got != 2 {
		t.Fatalf("expected restored index 2, got %d", got)
	}
	if got := restored.Restore(url.Values{"step": {"abc"}}); got != 1 {
		t.Fatalf("expected invalid index to fall back to 1, got %d", got)
	}
	if got := restored.Restore(url.Values{"step": {"12"}}); got != 3 {
		t.Fatalf("expected out of range index to clamp to 3, got %d", got)
	}
}
