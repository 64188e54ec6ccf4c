package draft_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formwizard/pkg/draft"
)

func TestFileStorage_RoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	storage, err := draft.NewFileStorage(dir)
	if err != nil {
		t.Fatalf("new file storage: %v", err)
	}

	if _, ok, err := storage.Get(ctx, "formwizard/event"); err != nil || ok {
		t.Fatalf("expected missing key, got ok=%v err=%v", ok, err)
	}
	if err := storage.Set(ctx, "formwizard/event", `{"1":{"name":"A"}}`); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "formwizard__event.json")); err != nil {
		t.Fatalf("expected draft file on disk: %v", err)
	}

	got, ok, err := storage.Get(ctx, "formwizard/event")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got != `{"1":{"name":"A"}}` {
		t.Fatalf("unexpected value %q", got)
	}

	if err := storage.Delete(ctx, "formwizard/event"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := storage.Delete(ctx, "formwizard/event"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}

func TestFileStorage_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first, err := draft.NewFileStorage(dir)
	if err != nil {
		t.Fatalf("new file storage: %v", err)
	}
	_ = draft.NewStore(first).Save(ctx, draft.FormTypeEvent, "new", map[string]any{
		"name":   "Reload me",
		"images": []any{"a.png", "b.png"},
	})

	second, err := draft.NewFileStorage(dir)
	if err != nil {
		t.Fatalf("reopen file storage: %v", err)
	}
	want := map[string]any{"name": "Reload me", "images": []any{"a.png", "b.png"}}
	if diff := cmp.Diff(want, draft.NewStore(second).Read(ctx, draft.FormTypeEvent, "new")); diff != "" {
		t.Fatalf("draft mismatch (-want +got):\n%s", diff)
	}
}

func TestFileStorage_FollowSeesOtherWriters(t *testing.T) {
	dir := t.TempDir()
	readerStorage, err := draft.NewFileStorage(dir)
	if err != nil {
		t.Fatalf("new file storage: %v", err)
	}
	writerStorage, err := draft.NewFileStorage(dir)
	if err != nil {
		t.Fatalf("new file storage: %v", err)
	}
	reader := draft.NewStore(readerStorage)
	writer := draft.NewStore(writerStorage)

	seen := make(chan draft.Change, 16)
	reader.Subscribe(func(change draft.Change) {
		select {
		case seen <- change:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- reader.Follow(ctx, readerStorage) }()

	deadline := time.After(3 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case change := <-seen:
			if change.ID == "11" && change.Data["name"] == "From elsewhere" {
				cancel()
				if err := <-done; err != nil {
					t.Fatalf("follow: %v", err)
				}
				return
			}
		case <-tick.C:
			// The watcher may not be registered yet, so keep writing.
			_ = writer.Save(context.Background(), draft.FormTypeEvent, "11", map[string]any{"name": "From elsewhere"})
		case <-deadline:
			t.Fatalf("timed out waiting for change notification")
		}
	}
}
