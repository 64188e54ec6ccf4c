// Package api is the backend collaborator of the wizard: the operations the
// event forms call, the structured error they fail with, and the mapping of
// backend validation messages back onto form fields.
package api

import "context"

// Client is the subset of the backend the event wizards use.
type Client interface {
	CreateEvent(ctx context.Context, payload map[string]any) (map[string]any, error)
	UpdateEvent(ctx context.Context, id string, payload map[string]any) (map[string]any, error)
	CloseEvent(ctx context.Context, id string, payload map[string]any) (map[string]any, error)
	FetchEvent(ctx context.Context, id string) (map[string]any, error)
	// FetchCloseReport returns the report stored by CloseEvent. It fails with
	// ErrNotFound while the event has not been closed.
	FetchCloseReport(ctx context.Context, id string) (map[string]any, error)
	IsQualifiedOrganizer(ctx context.Context, userID string) (bool, error)
}
