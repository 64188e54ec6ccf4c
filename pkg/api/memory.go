package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/goliatone/go-formwizard/pkg/values"
)

// Memory is an in-process backend used by the CLI's offline mode and by
// tests. It stores events by generated id and performs the minimal checks the
// real backend does on required fields.
type Memory struct {
	mu         sync.Mutex
	events     map[string]map[string]any
	closed     map[string]map[string]any
	organizers map[string]bool
	calls      []string
}

var _ Client = (*Memory)(nil)

// NewMemory returns an empty backend. Users listed in qualified may act as
// main organizers.
func NewMemory(qualified ...string) *Memory {
	m := &Memory{
		events:     make(map[string]map[string]any),
		closed:     make(map[string]map[string]any),
		organizers: make(map[string]bool),
	}
	for _, id := range qualified {
		m.organizers[id] = true
	}
	return m
}

// Seed stores an existing event and returns its id.
func (m *Memory) Seed(event map[string]any) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.NewString()
	stored := values.Clone(event)
	stored["id"] = id
	m.events[id] = stored
	return id
}

// Calls lists the operations invoked so far, in order.
func (m *Memory) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// Closed returns the close report stored for id.
func (m *Memory) Closed(id string) (map[string]any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	report, ok := m.closed[id]
	return values.Clone(report), ok
}

func (m *Memory) CreateEvent(ctx context.Context, payload map[string]any) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "create")

	if err := requireFields(payload, "name", "start", "end"); err != nil {
		return nil, err
	}
	id := uuid.NewString()
	stored := values.Clone(payload)
	stored["id"] = id
	m.events[id] = stored
	return values.Clone(stored), nil
}

func (m *Memory) UpdateEvent(ctx context.Context, id string, payload map[string]any) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "update:"+id)

	existing, ok := m.events[id]
	if !ok {
		return nil, fmt.Errorf("%w: event %s", ErrNotFound, id)
	}
	updated := values.Merge(existing, payload)
	updated["id"] = id
	m.events[id] = updated
	return values.Clone(updated), nil
}

func (m *Memory) CloseEvent(ctx context.Context, id string, payload map[string]any) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "close:"+id)

	event, ok := m.events[id]
	if !ok {
		return nil, fmt.Errorf("%w: event %s", ErrNotFound, id)
	}
	if err := requireFields(payload, "summary"); err != nil {
		return nil, err
	}
	m.closed[id] = values.Clone(payload)
	event["closed"] = true
	return values.Clone(event), nil
}

func (m *Memory) FetchEvent(ctx context.Context, id string) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	event, ok := m.events[id]
	if !ok {
		return nil, fmt.Errorf("%w: event %s", ErrNotFound, id)
	}
	return values.Clone(event), nil
}

func (m *Memory) FetchCloseReport(ctx context.Context, id string) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[id]; !ok {
		return nil, fmt.Errorf("%w: event %s", ErrNotFound, id)
	}
	report, ok := m.closed[id]
	if !ok {
		return nil, fmt.Errorf("%w: close report %s", ErrNotFound, id)
	}
	return values.Clone(report), nil
}

func (m *Memory) IsQualifiedOrganizer(ctx context.Context, userID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.organizers[userID], nil
}

func requireFields(payload map[string]any, paths ...string) error {
	missing := map[string]any{}
	var names []string
	for _, path := range paths {
		value, _ := values.Get(payload, path)
		if values.IsEmpty(value) {
			missing[path] = []any{"This field is required."}
			names = append(names, path)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &APIError{
		Status:  http.StatusUnprocessableEntity,
		Data:    map[string]any{"body": missing},
		Message: "missing " + strings.Join(names, ", "),
	}
}
