// Package draft persists in-progress wizard data so an interrupted session can
// resume. Drafts are keyed by (form type, entity id) and stored per form type
// as a JSON document of the shape {"<id>": <partial form data>}.
package draft

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-formwizard/pkg/values"
)

const defaultRootKey = "formwizard"

// Change describes a draft mutation delivered to subscribers.
type Change struct {
	FormType FormType       `json:"form_type"`
	ID       string         `json:"id"`
	Data     map[string]any `json:"data,omitempty"`
	Cleared  bool           `json:"cleared,omitempty"`
}

// Option configures a Store.
type Option func(*Store)

// WithRootKey namespaces storage keys. Keys take the form "<root>/<formType>".
func WithRootKey(root string) Option {
	return func(s *Store) {
		if trimmed := strings.Trim(strings.TrimSpace(root), "/"); trimmed != "" {
			s.root = trimmed
		}
	}
}

// WithLogger routes storage failure reports to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Store is the process-wide draft registry. Writes for the same form type are
// serialised; across processes the last write wins.
//
// Storage failures never block callers: the store keeps serving the affected
// form type from memory until a later write reaches storage again.
type Store struct {
	storage Storage
	root    string
	logger  *slog.Logger

	mu       sync.Mutex
	cache    map[FormType]map[string]map[string]any
	degraded map[FormType]bool

	subMu   sync.RWMutex
	subs    map[int]func(Change)
	nextSub int
}

// NewStore wraps storage. A nil storage falls back to MemoryStorage.
func NewStore(storage Storage, opts ...Option) *Store {
	if storage == nil {
		storage = NewMemoryStorage()
	}
	s := &Store{
		storage:  storage,
		root:     defaultRootKey,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		cache:    make(map[FormType]map[string]map[string]any),
		degraded: make(map[FormType]bool),
		subs:     make(map[int]func(Change)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Key returns the storage key used for formType.
func (s *Store) Key(formType FormType) string {
	return s.root + "/" + string(formType)
}

// FormTypeForKey maps a storage key back to its form type.
func (s *Store) FormTypeForKey(key string) (FormType, bool) {
	prefix := s.root + "/"
	if !strings.HasPrefix(key, prefix) {
		return "", false
	}
	formType := FormType(strings.TrimPrefix(key, prefix))
	return formType, formType.Valid()
}

// Save deep merges partial into the draft for (formType, id), creating it when
// absent. Arrays in partial replace stored arrays. The in-memory state is
// always updated; a non-nil error only reports that persisting failed.
func (s *Store) Save(ctx context.Context, formType FormType, id string, partial map[string]any) error {
	if !formType.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownFormType, formType)
	}
	id = normalizeID(id)

	s.mu.Lock()
	doc := s.loadLocked(ctx, formType)
	merged := values.Merge(doc[id], partial)
	doc[id] = merged
	s.cache[formType] = doc
	err := s.persistLocked(ctx, formType, doc)
	snapshot := values.Clone(merged)
	s.mu.Unlock()

	s.publish(Change{FormType: formType, ID: id, Data: snapshot})
	return err
}

// Read returns a copy of the stored draft, or an empty map when there is none.
// It never fails; storage errors fall back to the in-memory copy.
func (s *Store) Read(ctx context.Context, formType FormType, id string) map[string]any {
	if !formType.Valid() {
		return map[string]any{}
	}
	id = normalizeID(id)

	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.loadLocked(ctx, formType)
	return values.Clone(doc[id])
}

// Lookup is Read for callers that must tell a missing draft apart from an
// empty one; it fails with ErrNotFound when nothing is stored for id.
func (s *Store) Lookup(ctx context.Context, formType FormType, id string) (map[string]any, error) {
	if !formType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormType, formType)
	}
	data := s.Read(ctx, formType, id)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, formType, normalizeID(id))
	}
	return data, nil
}

// Has reports whether a non-empty draft exists.
func (s *Store) Has(ctx context.Context, formType FormType, id string) bool {
	return len(s.Read(ctx, formType, id)) > 0
}

// Clear deletes the draft for (formType, id). Clearing a missing draft is a
// no-op apart from the storage write.
func (s *Store) Clear(ctx context.Context, formType FormType, id string) error {
	if !formType.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownFormType, formType)
	}
	id = normalizeID(id)

	s.mu.Lock()
	doc := s.loadLocked(ctx, formType)
	delete(doc, id)
	s.cache[formType] = doc
	err := s.persistLocked(ctx, formType, doc)
	s.mu.Unlock()

	s.publish(Change{FormType: formType, ID: id, Cleared: true})
	return err
}

// IDs lists the entity ids holding a draft for formType.
func (s *Store) IDs(ctx context.Context, formType FormType) []string {
	if !formType.Valid() {
		return nil
	}
	s.mu.Lock()
	doc := s.loadLocked(ctx, formType)
	s.mu.Unlock()

	out := make([]string, 0, len(doc))
	for id := range doc {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Subscribe registers fn for every change made through this store (and, when
// Follow is running, changes observed in shared storage). The returned func
// removes the subscription.
func (s *Store) Subscribe(fn func(Change)) func() {
	if fn == nil {
		return func() {}
	}
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// Follow watches shared storage for writes made elsewhere and republishes the
// affected drafts to subscribers. It blocks until ctx is done or the watcher
// fails.
func (s *Store) Follow(ctx context.Context, watcher Watcher) error {
	if watcher == nil {
		return fmt.Errorf("draft: watcher is nil")
	}
	return watcher.Watch(ctx, func(key string) {
		formType, ok := s.FormTypeForKey(key)
		if !ok {
			return
		}
		s.reload(ctx, formType)
	})
}

func (s *Store) reload(ctx context.Context, formType FormType) {
	s.mu.Lock()
	previous := s.cache[formType]
	doc := s.loadLocked(ctx, formType)
	changes := make([]Change, 0, len(doc)+len(previous))
	for id, data := range doc {
		changes = append(changes, Change{FormType: formType, ID: id, Data: values.Clone(data)})
	}
	for id := range previous {
		if _, ok := doc[id]; !ok {
			changes = append(changes, Change{FormType: formType, ID: id, Cleared: true})
		}
	}
	s.mu.Unlock()

	sort.Slice(changes, func(i, j int) bool { return changes[i].ID < changes[j].ID })
	for _, change := range changes {
		s.publish(change)
	}
}

func (s *Store) publish(change Change) {
	s.subMu.RLock()
	handlers := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		handlers = append(handlers, fn)
	}
	s.subMu.RUnlock()

	for _, fn := range handlers {
		fn(change)
	}
}

// loadLocked returns a private copy of the document for formType. Storage is
// authoritative unless an earlier persist failed.
func (s *Store) loadLocked(ctx context.Context, formType FormType) map[string]map[string]any {
	if s.degraded[formType] {
		return cloneDocument(s.cache[formType])
	}

	raw, ok, err := s.storage.Get(ctx, s.Key(formType))
	if err != nil {
		s.logger.Warn("draft storage read failed",
			"form_type", string(formType),
			"error", err,
		)
		return cloneDocument(s.cache[formType])
	}
	if !ok || strings.TrimSpace(raw) == "" {
		doc := make(map[string]map[string]any)
		s.cache[formType] = doc
		return cloneDocument(doc)
	}

	doc, err := decodeDocument(raw)
	if err != nil {
		s.logger.Warn("draft storage holds an unreadable document",
			"form_type", string(formType),
			"error", err,
		)
		return cloneDocument(s.cache[formType])
	}
	s.cache[formType] = doc
	return cloneDocument(doc)
}

func (s *Store) persistLocked(ctx context.Context, formType FormType, doc map[string]map[string]any) error {
	key := s.Key(formType)

	var err error
	if len(doc) == 0 {
		err = s.storage.Delete(ctx, key)
	} else {
		var payload []byte
		payload, err = json.Marshal(doc)
		if err == nil {
			err = s.storage.Set(ctx, key, string(payload))
		}
	}

	if err != nil {
		s.degraded[formType] = true
		s.logger.Warn("draft storage write failed, keeping draft in memory",
			"form_type", string(formType),
			"error", err,
		)
		return fmt.Errorf("draft: persist %s: %w", formType, err)
	}
	s.degraded[formType] = false
	return nil
}

func decodeDocument(raw string) (map[string]map[string]any, error) {
	var doc map[string]map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		doc = make(map[string]map[string]any)
	}
	return doc, nil
}

func cloneDocument(doc map[string]map[string]any) map[string]map[string]any {
	out := make(map[string]map[string]any, len(doc))
	for id, data := range doc {
		out[id] = values.Clone(data)
	}
	return out
}
