package draft_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formwizard/pkg/draft"
)

func TestStoreSave_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := draft.NewStore(draft.NewMemoryStorage())
	x := map[string]any{
		"name":         "Beach cleanup",
		"registration": map[string]any{"capacity": 10.0},
		"images":       []any{"a.png"},
	}

	if err := store.Save(ctx, draft.FormTypeEvent, "42", x); err != nil {
		t.Fatalf("save: %v", err)
	}
	once := store.Read(ctx, draft.FormTypeEvent, "42")

	if err := store.Save(ctx, draft.FormTypeEvent, "42", x); err != nil {
		t.Fatalf("save: %v", err)
	}
	twice := store.Read(ctx, draft.FormTypeEvent, "42")

	if diff := cmp.Diff(once, twice); diff != "" {
		t.Fatalf("draft changed after repeated save (-once +twice):\n%s", diff)
	}
}

func TestStoreSave_ReplacesArrays(t *testing.T) {
	ctx := context.Background()
	store := draft.NewStore(nil)

	_ = store.Save(ctx, draft.FormTypeEvent, "1", map[string]any{"list": []any{1, 2}, "name": "A"})
	_ = store.Save(ctx, draft.FormTypeEvent, "1", map[string]any{"list": []any{3}})

	want := map[string]any{"list": []any{3.0}, "name": "A"}
	if diff := cmp.Diff(want, store.Read(ctx, draft.FormTypeEvent, "1")); diff != "" {
		t.Fatalf("draft mismatch (-want +got):\n%s", diff)
	}
}

func TestStoreSave_DeepMerges(t *testing.T) {
	ctx := context.Background()
	store := draft.NewStore(nil)

	_ = store.Save(ctx, draft.FormTypeEvent, "", map[string]any{"registration": map[string]any{"min_age": "12"}})
	_ = store.Save(ctx, draft.FormTypeEvent, draft.NewEntityID, map[string]any{"registration": map[string]any{"max_age": "18"}})

	want := map[string]any{"registration": map[string]any{"min_age": "12", "max_age": "18"}}
	if diff := cmp.Diff(want, store.Read(ctx, draft.FormTypeEvent, "new")); diff != "" {
		t.Fatalf("draft mismatch (-want +got):\n%s", diff)
	}
}

func TestStoreClear(t *testing.T) {
	ctx := context.Background()
	storage := draft.NewMemoryStorage()
	store := draft.NewStore(storage)

	_ = store.Save(ctx, draft.FormTypeCloseEvent, "7", map[string]any{"summary": "ok"})
	_ = store.Save(ctx, draft.FormTypeCloseEvent, "8", map[string]any{"summary": "keep"})

	if err := store.Clear(ctx, draft.FormTypeCloseEvent, "7"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := store.Clear(ctx, draft.FormTypeCloseEvent, "7"); err != nil {
		t.Fatalf("second clear: %v", err)
	}
	if got := store.Read(ctx, draft.FormTypeCloseEvent, "7"); len(got) != 0 {
		t.Fatalf("expected empty draft after clear, got %v", got)
	}
	if diff := cmp.Diff([]string{"8"}, store.IDs(ctx, draft.FormTypeCloseEvent)); diff != "" {
		t.Fatalf("ids mismatch (-want +got):\n%s", diff)
	}

	_ = store.Clear(ctx, draft.FormTypeCloseEvent, "8")
	if diff := cmp.Diff([]string{}, storage.Keys()); diff != "" {
		t.Fatalf("expected storage key removed (-want +got):\n%s", diff)
	}
}

func TestStoreLookup(t *testing.T) {
	ctx := context.Background()
	store := draft.NewStore(nil)

	if _, err := store.Lookup(ctx, draft.FormTypeEvent, "42"); !errors.Is(err, draft.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	_ = store.Save(ctx, draft.FormTypeEvent, "42", map[string]any{"name": "A"})
	got, err := store.Lookup(ctx, draft.FormTypeEvent, "42")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if diff := cmp.Diff(map[string]any{"name": "A"}, got); diff != "" {
		t.Fatalf("draft mismatch (-want +got):\n%s", diff)
	}

	_ = store.Clear(ctx, draft.FormTypeEvent, "42")
	if _, err := store.Lookup(ctx, draft.FormTypeEvent, "42"); !errors.Is(err, draft.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after clear, got %v", err)
	}
	if _, err := store.Lookup(ctx, draft.FormType("invoice"), "42"); !errors.Is(err, draft.ErrUnknownFormType) {
		t.Fatalf("expected ErrUnknownFormType, got %v", err)
	}
}

func TestStore_UnknownFormType(t *testing.T) {
	ctx := context.Background()
	store := draft.NewStore(nil)

	err := store.Save(ctx, draft.FormType("invoice"), "1", map[string]any{"a": 1})
	if !errors.Is(err, draft.ErrUnknownFormType) {
		t.Fatalf("expected ErrUnknownFormType, got %v", err)
	}
	if got := store.Read(ctx, draft.FormType("invoice"), "1"); len(got) != 0 {
		t.Fatalf("expected empty read, got %v", got)
	}
}

func TestStore_KeysAreNamespaced(t *testing.T) {
	ctx := context.Background()
	storage := draft.NewMemoryStorage()
	store := draft.NewStore(storage, draft.WithRootKey("/admin/"))

	_ = store.Save(ctx, draft.FormTypeUser, "u1", map[string]any{"email": "a@b.c"})

	if diff := cmp.Diff([]string{"admin/user"}, storage.Keys()); diff != "" {
		t.Fatalf("keys mismatch (-want +got):\n%s", diff)
	}
	raw, ok, _ := storage.Get(ctx, "admin/user")
	if !ok || raw != `{"u1":{"email":"a@b.c"}}` {
		t.Fatalf("unexpected persisted layout %q", raw)
	}
	formType, ok := store.FormTypeForKey("admin/user")
	if !ok || formType != draft.FormTypeUser {
		t.Fatalf("expected user form type, got %q (ok=%v)", formType, ok)
	}
}

func TestStore_StorageFailureKeepsMemoryCopy(t *testing.T) {
	ctx := context.Background()
	storage := &failingStorage{}
	store := draft.NewStore(storage)

	err := store.Save(ctx, draft.FormTypeEvent, "9", map[string]any{"name": "Offline"})
	if err == nil {
		t.Fatalf("expected persist error to be reported")
	}
	if !errors.Is(err, errBroken) {
		t.Fatalf("expected wrapped storage error, got %v", err)
	}

	want := map[string]any{"name": "Offline"}
	if diff := cmp.Diff(want, store.Read(ctx, draft.FormTypeEvent, "9")); diff != "" {
		t.Fatalf("in-memory draft mismatch (-want +got):\n%s", diff)
	}

	_ = store.Save(ctx, draft.FormTypeEvent, "9", map[string]any{"tags": []any{"x"}})
	want = map[string]any{"name": "Offline", "tags": []any{"x"}}
	if diff := cmp.Diff(want, store.Read(ctx, draft.FormTypeEvent, "9")); diff != "" {
		t.Fatalf("in-memory draft mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_ReadFailureFallsBackToMemory(t *testing.T) {
	ctx := context.Background()
	storage := &failingStorage{failGet: true}
	store := draft.NewStore(storage)

	if got := store.Read(ctx, draft.FormTypeEvent, "1"); len(got) != 0 {
		t.Fatalf("expected empty draft, got %v", got)
	}
}

func TestStore_Subscribe(t *testing.T) {
	ctx := context.Background()
	store := draft.NewStore(nil)

	var (
		mu      sync.Mutex
		changes []draft.Change
	)
	unsubscribe := store.Subscribe(func(change draft.Change) {
		mu.Lock()
		changes = append(changes, change)
		mu.Unlock()
	})

	_ = store.Save(ctx, draft.FormTypeEvent, "1", map[string]any{"name": "A"})
	_ = store.Clear(ctx, draft.FormTypeEvent, "1")
	unsubscribe()
	_ = store.Save(ctx, draft.FormTypeEvent, "1", map[string]any{"name": "B"})

	want := []draft.Change{
		{FormType: draft.FormTypeEvent, ID: "1", Data: map[string]any{"name": "A"}},
		{FormType: draft.FormTypeEvent, ID: "1", Cleared: true},
	}
	mu.Lock()
	defer mu.Unlock()
	if diff := cmp.Diff(want, changes); diff != "" {
		t.Fatalf("changes mismatch (-want +got):\n%s", diff)
	}
}

func TestParseFormType(t *testing.T) {
	got, err := draft.ParseFormType(" Close-Event ")
	if err != nil || got != draft.FormTypeCloseEvent {
		t.Fatalf("expected close-event, got %q (%v)", got, err)
	}
	if _, err := draft.ParseFormType("invoice"); !errors.Is(err, draft.ErrUnknownFormType) {
		t.Fatalf("expected ErrUnknownFormType, got %v", err)
	}
}

var errBroken = errors.New("storage unavailable")

type failingStorage struct {
	failGet bool
}

func (f *failingStorage) Get(context.Context, string) (string, bool, error) {
	if f.failGet {
		return "", false, errBroken
	}
	return "", false, nil
}

func (f *failingStorage) Set(context.Context, string, string) error {
	return errBroken
}

func (f *failingStorage) Delete(context.Context, string) error {
	return errBroken
}
