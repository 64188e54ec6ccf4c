package events

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formwizard/pkg/api"
	"github.com/goliatone/go-formwizard/pkg/draft"
	"github.com/goliatone/go-formwizard/pkg/reconcile"
	"github.com/goliatone/go-formwizard/pkg/schema"
	"github.com/goliatone/go-formwizard/pkg/wizard"
)

func TestDefinitionsAreValid(t *testing.T) {
	registry, err := Registry(api.NewMemory())
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	want := []draft.FormType{draft.FormTypeEvent, draft.FormTypeCloseEvent}
	if diff := cmp.Diff(want, registry.FormTypes()); diff != "" {
		t.Fatalf("form types mismatch (-want +got):\n%s", diff)
	}
}

func TestFormsCoverOpenAPIPayload(t *testing.T) {
	ctx := context.Background()
	event, err := EventForm()
	if err != nil {
		t.Fatalf("event form: %v", err)
	}
	closeEvent, err := CloseEventForm()
	if err != nil {
		t.Fatalf("close form: %v", err)
	}
	if err := CheckOpenAPI(ctx, event, closeEvent); err != nil {
		t.Fatalf("check openapi: %v", err)
	}

	for _, f := range []*schema.Form{event, closeEvent} {
		fields, err := schema.PayloadFieldsFromOpenAPI(ctx, OpenAPI(), f.Operation)
		if err != nil {
			t.Fatalf("payload fields for %s: %v", f.Operation, err)
		}
		if diff := cmp.Diff(f.Payload, fields); diff != "" {
			t.Fatalf("%s payload mismatch (-want +got):\n%s", f.Name, diff)
		}
	}
}

func TestResolveOnline(t *testing.T) {
	ctx := context.Background()

	online := map[string]any{
		"online":      true,
		"location":    map[string]any{"id": float64(42)},
		"online_link": "https://x",
	}
	if err := ResolveOnline(ctx, online); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := map[string]any{"online": true, "location": map[string]any{"id": OnlineLocationID}}
	if diff := cmp.Diff(want, online); diff != "" {
		t.Fatalf("online payload mismatch (-want +got):\n%s", diff)
	}

	offline := map[string]any{
		"online":      false,
		"location":    map[string]any{"id": float64(42)},
		"online_link": "https://x",
	}
	if err := ResolveOnline(ctx, offline); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want = map[string]any{
		"online":      false,
		"location":    map[string]any{"id": float64(42)},
		"online_link": "https://x",
	}
	if diff := cmp.Diff(want, offline); diff != "" {
		t.Fatalf("offline payload mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveRegistrationMethod(t *testing.T) {
	cases := []struct {
		method   string
		required bool
		full     bool
	}{
		{method: RegistrationNone, required: false, full: false},
		{method: RegistrationStandard, required: true, full: false},
		{method: RegistrationFull, required: true, full: true},
	}
	for _, tc := range cases {
		t.Run(tc.method, func(t *testing.T) {
			payload := map[string]any{
				"registration_method": tc.method,
				"registration": map[string]any{
					"is_registration_required": !tc.required,
					"is_event_full":            !tc.full,
					"capacity":                 float64(20),
				},
			}
			if err := ResolveRegistrationMethod(context.Background(), payload); err != nil {
				t.Fatalf("resolve: %v", err)
			}
			want := map[string]any{
				"is_registration_required": tc.required,
				"is_event_full":            tc.full,
				"capacity":                 float64(20),
			}
			if diff := cmp.Diff(want, payload["registration"]); diff != "" {
				t.Fatalf("registration mismatch (-want +got):\n%s", diff)
			}
		})
	}

	if err := ResolveRegistrationMethod(context.Background(), map[string]any{"registration_method": "lottery"}); err == nil {
		t.Fatalf("expected unknown method to fail")
	}
}

func TestResolveContactPerson(t *testing.T) {
	payload := map[string]any{
		"contact_person_is_main_organizer": true,
		"main_organizer":                   map[string]any{"id": "u1", "name": "Ada", "email": "ada@example.com", "phone": ""},
		"contact_person":                   map[string]any{"name": "Someone else"},
	}
	if err := ResolveContactPerson(context.Background(), payload); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := map[string]any{"name": "Ada", "email": "ada@example.com"}
	if diff := cmp.Diff(want, payload["contact_person"]); diff != "" {
		t.Fatalf("contact mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveVolunteerHours(t *testing.T) {
	payload := map[string]any{
		"hours_method":          HoursPerParticipant,
		"hours_per_participant": float64(2.5),
		"participant_count":     float64(8),
	}
	if err := ResolveVolunteerHours(context.Background(), payload); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if diff := cmp.Diff(float64(20), payload["volunteer_hours"]); diff != "" {
		t.Fatalf("hours mismatch (-want +got):\n%s", diff)
	}
}

func TestSanitizeRichText(t *testing.T) {
	got := SanitizeRichText(`<p onclick="steal()">Bring <strong>gloves</strong></p><script>alert(1)</script>`)
	if diff := cmp.Diff(`<p>Bring <strong>gloves</strong></p>`, got); diff != "" {
		t.Fatalf("sanitized mismatch (-want +got):\n%s", diff)
	}
}

func TestSynthesizersFromServerData(t *testing.T) {
	server := map[string]any{
		"name":           "Beach cleanup",
		"location":       map[string]any{"id": OnlineLocationID},
		"registration":   map[string]any{"is_registration_required": false, "is_event_full": false},
		"main_organizer": map[string]any{"id": "u1", "email": "ada@example.com"},
		"contact_person": map[string]any{"email": "ada@example.com"},
	}
	def, err := EventDefinition(api.NewMemory())
	if err != nil {
		t.Fatalf("definition: %v", err)
	}
	got := reconcile.Reconcile(reconcile.Sources{Server: server, Defaults: def.Defaults}, def.Synthesizers...)

	want := map[string]any{
		"online":                           true,
		"registration_method":              RegistrationNone,
		"contact_person_is_main_organizer": true,
	}
	for key, value := range want {
		if diff := cmp.Diff(value, got[key]); diff != "" {
			t.Fatalf("%s mismatch (-want +got):\n%s", key, diff)
		}
	}

	got = reconcile.Reconcile(reconcile.Sources{Server: map[string]any{"volunteer_hours": float64(3)}, Defaults: CloseEventDefaults()}, SynthesizeHoursMethod)
	if diff := cmp.Diff(HoursTotal, got["hours_method"]); diff != "" {
		t.Fatalf("hours method mismatch (-want +got):\n%s", diff)
	}
}

func TestQualifiedOrganizer(t *testing.T) {
	ctx := context.Background()
	rule := QualifiedOrganizer(api.NewMemory("u1"))

	msg, err := rule(ctx, map[string]any{"id": "u1"}, nil)
	if err != nil || msg != "" {
		t.Fatalf("expected qualified organizer, got %q %v", msg, err)
	}
	msg, err = rule(ctx, map[string]any{"id": "u2"}, nil)
	if err != nil {
		t.Fatalf("rule: %v", err)
	}
	if diff := cmp.Diff("This user cannot be the main organizer", msg); diff != "" {
		t.Fatalf("message mismatch (-want +got):\n%s", diff)
	}
}

func TestEventWizardSubmitsBackendPayload(t *testing.T) {
	ctx := context.Background()
	backend := api.NewMemory("u1")
	def, err := EventDefinition(backend)
	if err != nil {
		t.Fatalf("definition: %v", err)
	}

	var submitted map[string]any
	session, err := wizard.NewSession(ctx, def, draft.NewStore(nil), "", wizard.WithSubmit(func(ctx context.Context, payload map[string]any) error {
		submitted = payload
		_, err := backend.CreateEvent(ctx, payload)
		return err
	}))
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	defer session.Close()

	edits := []struct {
		path  string
		value any
	}{
		{"name", "Beach cleanup"},
		{"description", "<p>Bring gloves</p><script>alert(1)</script>"},
		{"category", map[string]any{"id": "c1"}},
		{"start", "2026-05-01T10:00:00Z"},
		{"end", "2026-05-01T12:00:00Z"},
		{"online", true},
		{"online_link", "https://meet.example.com/beach"},
		{"region", map[string]any{"id": "r1"}},
		{"registration_method", RegistrationFull},
		{"main_organizer", map[string]any{"id": "u1", "name": "Ada", "email": "ada@example.com"}},
		{"contact_person_is_main_organizer", true},
	}
	for _, edit := range edits {
		if err := session.SetValue(edit.path, edit.value); err != nil {
			t.Fatalf("set %s: %v", edit.path, err)
		}
	}

	result, err := session.Submit(ctx)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !result.Submitted {
		t.Fatalf("expected submit to succeed, errors: %+v", result.Errors)
	}

	want := map[string]any{
		"name":           "Beach cleanup",
		"description":    "<p>Bring gloves</p>",
		"category":       map[string]any{"id": "c1"},
		"images":         []any{},
		"start":          "2026-05-01T10:00:00Z",
		"end":            "2026-05-01T12:00:00Z",
		"subevent_count": float64(1),
		"location":       map[string]any{"id": OnlineLocationID},
		"region":         map[string]any{"id": "r1"},
		"registration": map[string]any{
			"is_registration_required": true,
			"is_event_full":            true,
		},
		"main_organizer": map[string]any{"id": "u1", "name": "Ada", "email": "ada@example.com"},
		"contact_person": map[string]any{"name": "Ada", "email": "ada@example.com"},
	}
	if diff := cmp.Diff(want, submitted); diff != "" {
		t.Fatalf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestEventWizardSubmitsOnlineEventWithoutLink(t *testing.T) {
	ctx := context.Background()
	backend := api.NewMemory("u1")
	def, err := EventDefinition(backend)
	if err != nil {
		t.Fatalf("definition: %v", err)
	}

	var submitted map[string]any
	session, err := wizard.NewSession(ctx, def, draft.NewStore(nil), "", wizard.WithSubmit(func(_ context.Context, payload map[string]any) error {
		submitted = payload
		return nil
	}))
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	defer session.Close()

	edits := map[string]any{
		"name":                             "Webinar",
		"description":                      "<p>Live stream</p>",
		"category":                         map[string]any{"id": "c1"},
		"start":                            "2026-05-01T10:00:00Z",
		"end":                              "2026-05-01T12:00:00Z",
		"online":                           true,
		"region":                           map[string]any{"id": "r1"},
		"registration_method":              RegistrationNone,
		"main_organizer":                   map[string]any{"id": "u1", "name": "Ada", "email": "ada@example.com"},
		"contact_person_is_main_organizer": true,
	}
	for path, value := range edits {
		if err := session.SetValue(path, value); err != nil {
			t.Fatalf("set %s: %v", path, err)
		}
	}

	result, err := session.Submit(ctx)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !result.Submitted {
		t.Fatalf("expected submit to succeed, errors: %+v", result.Errors)
	}
	if diff := cmp.Diff(map[string]any{"id": OnlineLocationID}, submitted["location"]); diff != "" {
		t.Fatalf("location mismatch (-want +got):\n%s", diff)
	}
	if _, ok := submitted["online_link"]; ok {
		t.Fatalf("online link must not be sent, got %v", submitted["online_link"])
	}
}

func TestEventWizardRejectsUnqualifiedOrganizer(t *testing.T) {
	ctx := context.Background()
	def, err := EventDefinition(api.NewMemory())
	if err != nil {
		t.Fatalf("definition: %v", err)
	}
	session, err := wizard.NewSession(ctx, def, draft.NewStore(nil), "")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	defer session.Close()
	_ = session.SetValue("main_organizer", map[string]any{"id": "u9"})

	errs, err := session.Validate(ctx)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	found := false
	for _, fe := range errs {
		if fe.Path == "main_organizer" && fe.Message == "This user cannot be the main organizer" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected organizer rejection, got %+v", errs)
	}
}
