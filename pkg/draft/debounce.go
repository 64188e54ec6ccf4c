package draft

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"
)

// DefaultDebounceWindow is the quiet period after the last change before a
// draft write happens.
const DefaultDebounceWindow = 300 * time.Millisecond

// Timer is the subset of *time.Timer the writer relies on.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules fn after d. time.AfterFunc satisfies it once wrapped.
type AfterFunc func(d time.Duration, fn func()) Timer

// Snapshot returns the full current form state to persist.
type Snapshot func() map[string]any

// WriterOption configures a DebouncedWriter.
type WriterOption func(*DebouncedWriter)

// WithWindow overrides the quiet window.
func WithWindow(window time.Duration) WriterOption {
	return func(w *DebouncedWriter) {
		if window > 0 {
			w.window = window
		}
	}
}

// WithAfterFunc swaps the timer source, mainly for deterministic tests.
func WithAfterFunc(fn AfterFunc) WriterOption {
	return func(w *DebouncedWriter) {
		if fn != nil {
			w.afterFunc = fn
		}
	}
}

// WithWriterLogger routes flush failures to logger.
func WithWriterLogger(logger *slog.Logger) WriterOption {
	return func(w *DebouncedWriter) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// DebouncedWriter coalesces field change notifications into infrequent draft
// writes. Every change restarts the quiet window; when the window elapses the
// snapshot taken at flush time is saved once.
type DebouncedWriter struct {
	store    *Store
	formType FormType
	id       string
	snapshot Snapshot

	window    time.Duration
	afterFunc AfterFunc
	logger    *slog.Logger

	mu         sync.Mutex
	timer      Timer
	generation uint64
	pending    int
	closed     bool

	flushMu sync.Mutex
	writes  int
}

// NewDebouncedWriter binds a writer to one draft key.
func NewDebouncedWriter(store *Store, formType FormType, id string, snapshot Snapshot, opts ...WriterOption) *DebouncedWriter {
	w := &DebouncedWriter{
		store:    store,
		formType: formType,
		id:       normalizeID(id),
		snapshot: snapshot,
		window:   DefaultDebounceWindow,
		afterFunc: func(d time.Duration, fn func()) Timer {
			return time.AfterFunc(d, fn)
		},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w
}

// Notify records a field change and (re)starts the quiet window. The path and
// value are informational: flushes always persist the full snapshot.
func (w *DebouncedWriter) Notify(path string, value any) {
	_, _ = path, value

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.pending++
	if w.timer != nil {
		w.timer.Stop()
	}
	w.generation++
	generation := w.generation
	w.timer = w.afterFunc(w.window, func() { w.fire(generation) })
}

// Pending reports whether changes are waiting for the window to close.
func (w *DebouncedWriter) Pending() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending > 0
}

// Writes returns how many flushes reached the store.
func (w *DebouncedWriter) Writes() int {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()
	return w.writes
}

// Flush writes pending changes immediately instead of waiting for the window.
func (w *DebouncedWriter) Flush(ctx context.Context) error {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	w.mu.Lock()
	if w.closed || w.pending == 0 {
		w.mu.Unlock()
		return nil
	}
	w.pending = 0
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.generation++
	w.mu.Unlock()

	return w.writeLocked(ctx)
}

// Close abandons any pending flush. A flush already in progress completes.
func (w *DebouncedWriter) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	w.generation++
	w.pending = 0
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

func (w *DebouncedWriter) fire(generation uint64) {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	w.mu.Lock()
	if w.closed || generation != w.generation || w.pending == 0 {
		w.mu.Unlock()
		return
	}
	w.pending = 0
	w.timer = nil
	w.mu.Unlock()

	if err := w.writeLocked(context.Background()); err != nil {
		w.logger.Warn("debounced draft write failed",
			"form_type", string(w.formType),
			"id", w.id,
			"error", err,
		)
	}
}

func (w *DebouncedWriter) writeLocked(ctx context.Context) error {
	if w.store == nil || w.snapshot == nil {
		return nil
	}
	w.writes++
	return w.store.Save(ctx, w.formType, w.id, w.snapshot())
}
