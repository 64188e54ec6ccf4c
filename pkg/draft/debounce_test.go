package draft_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formwizard/pkg/draft"
)

type fakeTimer struct {
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	wasActive := !t.stopped
	t.stopped = true
	return wasActive
}

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(_ time.Duration, fn func()) draft.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	timer := &fakeTimer{fn: fn}
	c.timers = append(c.timers, timer)
	return timer
}

// fire runs every timer that has not been stopped, as if the window elapsed.
func (c *fakeClock) fire() {
	c.mu.Lock()
	timers := append([]*fakeTimer(nil), c.timers...)
	c.mu.Unlock()
	for _, timer := range timers {
		if !timer.stopped {
			timer.stopped = true
			timer.fn()
		}
	}
}

// fireAll runs every scheduled callback including stopped ones, mimicking a
// timer that fired concurrently with Stop.
func (c *fakeClock) fireAll() {
	c.mu.Lock()
	timers := append([]*fakeTimer(nil), c.timers...)
	c.mu.Unlock()
	for _, timer := range timers {
		timer.fn()
	}
}

type countingStorage struct {
	*draft.MemoryStorage
	mu   sync.Mutex
	sets int
}

func (c *countingStorage) Set(ctx context.Context, key, value string) error {
	c.mu.Lock()
	c.sets++
	c.mu.Unlock()
	return c.MemoryStorage.Set(ctx, key, value)
}

func (c *countingStorage) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sets
}

func TestDebouncedWriter_CollapsesChanges(t *testing.T) {
	ctx := context.Background()
	storage := &countingStorage{MemoryStorage: draft.NewMemoryStorage()}
	store := draft.NewStore(storage)
	clock := &fakeClock{}

	state := map[string]any{}
	writer := draft.NewDebouncedWriter(store, draft.FormTypeEvent, "5",
		func() map[string]any { return state },
		draft.WithAfterFunc(clock.AfterFunc),
	)

	for _, name := range []string{"B", "Be", "Bea", "Beach"} {
		state = map[string]any{"name": name, "subevent_count": "1"}
		writer.Notify("name", name)
	}
	if !writer.Pending() {
		t.Fatalf("expected pending changes before the window closes")
	}
	if storage.count() != 0 {
		t.Fatalf("expected no write before the window closes, got %d", storage.count())
	}

	clock.fireAll()

	if got := storage.count(); got != 1 {
		t.Fatalf("expected exactly one write, got %d", got)
	}
	want := map[string]any{"name": "Beach", "subevent_count": "1"}
	if diff := cmp.Diff(want, store.Read(ctx, draft.FormTypeEvent, "5")); diff != "" {
		t.Fatalf("draft mismatch (-want +got):\n%s", diff)
	}
	if writer.Pending() {
		t.Fatalf("expected nothing pending after flush")
	}
}

func TestDebouncedWriter_NoChangesNoWrite(t *testing.T) {
	storage := &countingStorage{MemoryStorage: draft.NewMemoryStorage()}
	clock := &fakeClock{}
	writer := draft.NewDebouncedWriter(draft.NewStore(storage), draft.FormTypeEvent, "5",
		func() map[string]any { return map[string]any{"name": "A"} },
		draft.WithAfterFunc(clock.AfterFunc),
	)

	clock.fire()
	if err := writer.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if storage.count() != 0 {
		t.Fatalf("expected no writes, got %d", storage.count())
	}
}

func TestDebouncedWriter_CloseAbandonsPendingFlush(t *testing.T) {
	ctx := context.Background()
	storage := &countingStorage{MemoryStorage: draft.NewMemoryStorage()}
	store := draft.NewStore(storage)
	clock := &fakeClock{}
	writer := draft.NewDebouncedWriter(store, draft.FormTypeEvent, "5",
		func() map[string]any { return map[string]any{"name": "A"} },
		draft.WithAfterFunc(clock.AfterFunc),
	)

	writer.Notify("name", "A")
	writer.Close()
	clock.fireAll()
	writer.Notify("name", "B")

	if storage.count() != 0 {
		t.Fatalf("expected abandoned flush, got %d writes", storage.count())
	}
	if store.Has(ctx, draft.FormTypeEvent, "5") {
		t.Fatalf("expected no draft after close")
	}
}

func TestDebouncedWriter_FlushWritesImmediately(t *testing.T) {
	ctx := context.Background()
	storage := &countingStorage{MemoryStorage: draft.NewMemoryStorage()}
	store := draft.NewStore(storage)
	clock := &fakeClock{}
	writer := draft.NewDebouncedWriter(store, draft.FormTypeCloseEvent, "3",
		func() map[string]any { return map[string]any{"summary": "done"} },
		draft.WithAfterFunc(clock.AfterFunc),
	)

	writer.Notify("summary", "done")
	if err := writer.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	clock.fireAll()

	if got := storage.count(); got != 1 {
		t.Fatalf("expected one write, got %d", got)
	}
	if writer.Writes() != 1 {
		t.Fatalf("expected writer to count one flush, got %d", writer.Writes())
	}
}

func TestDebouncedWriter_RealTimer(t *testing.T) {
	ctx := context.Background()
	store := draft.NewStore(nil)
	writer := draft.NewDebouncedWriter(store, draft.FormTypeUser, "u", func() map[string]any {
		return map[string]any{"email": "a@b.c"}
	}, draft.WithWindow(10*time.Millisecond))
	defer writer.Close()

	writer.Notify("email", "a@b.c")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if store.Has(ctx, draft.FormTypeUser, "u") {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected debounced write within deadline")
}
