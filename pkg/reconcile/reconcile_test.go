package reconcile_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formwizard/pkg/reconcile"
)

func TestReconcile_Precedence(t *testing.T) {
	got := reconcile.Reconcile(reconcile.Sources{
		Server:   map[string]any{"name": "A"},
		Draft:    map[string]any{"name": "B"},
		Defaults: map[string]any{"name": "C", "extra": 1},
	})
	want := map[string]any{"name": "B", "extra": 1}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("reconciled mismatch (-want +got):\n%s", diff)
	}
}

func TestReconcile_ServerNilDoesNotOverride(t *testing.T) {
	got := reconcile.Reconcile(reconcile.Sources{
		Server:   map[string]any{"location": map[string]any{"id": 3, "city": nil}, "online_link": nil},
		Draft:    map[string]any{"location": map[string]any{"zip": "65100"}},
		Defaults: map[string]any{"online_link": "", "location": map[string]any{"city": "Vaasa"}},
	})
	want := map[string]any{
		"location":    map[string]any{"id": 3, "city": "Vaasa", "zip": "65100"},
		"online_link": "",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("reconciled mismatch (-want +got):\n%s", diff)
	}
}

func TestReconcile_DraftNilClearsLowerSources(t *testing.T) {
	got := reconcile.Reconcile(reconcile.Sources{
		Server:   map[string]any{"name": "Server name", "location": map[string]any{"id": 3, "city": "Vaasa"}},
		Draft:    map[string]any{"name": nil, "location": map[string]any{"city": nil, "zip": "65100"}},
		Defaults: map[string]any{"name": "Untitled"},
	})
	want := map[string]any{
		"location": map[string]any{"id": 3, "zip": "65100"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("reconciled mismatch (-want +got):\n%s", diff)
	}
}

func TestReconcile_ArraysMostSpecificNonEmptyWins(t *testing.T) {
	got := reconcile.Reconcile(reconcile.Sources{
		Server:   map[string]any{"images": []any{"a.png", "b.png"}, "tags": []any{"x"}},
		Draft:    map[string]any{"images": []any{}, "tags": []any{"y", "z"}},
		Defaults: map[string]any{"images": []any{}, "questions": []any{}},
	})
	want := map[string]any{
		"images":    []any{"a.png", "b.png"},
		"tags":      []any{"y", "z"},
		"questions": []any{},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("reconciled mismatch (-want +got):\n%s", diff)
	}
}

func TestReconcile_Synthesizers(t *testing.T) {
	online := func(server map[string]any) map[string]any {
		location, _ := server["location"].(map[string]any)
		return map[string]any{"online": location["id"] == "online"}
	}
	defaults := map[string]any{"online": false, "subevent_count": 1}

	fromServer := reconcile.Reconcile(reconcile.Sources{
		Server:   map[string]any{"location": map[string]any{"id": "online"}},
		Defaults: defaults,
	}, online)
	if fromServer["online"] != true {
		t.Fatalf("expected online synthesized from server, got %v", fromServer["online"])
	}

	draftWins := reconcile.Reconcile(reconcile.Sources{
		Server:   map[string]any{"location": map[string]any{"id": "online"}},
		Draft:    map[string]any{"online": false},
		Defaults: defaults,
	}, online)
	if draftWins["online"] != false {
		t.Fatalf("expected draft to override synthesized toggle, got %v", draftWins["online"])
	}

	brandNew := reconcile.Reconcile(reconcile.Sources{Defaults: defaults}, online)
	if diff := cmp.Diff(defaults, brandNew); diff != "" {
		t.Fatalf("expected defaults only for new entity (-want +got):\n%s", diff)
	}
}
