package api

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is a structured backend failure. Data holds the decoded response
// body; on validation failures it is a tree keyed by field path whose leaves
// are messages or lists of messages.
type APIError struct {
	Status  int
	Data    any
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api: %d %s: %s", e.Status, http.StatusText(e.Status), e.Message)
	}
	return fmt.Sprintf("api: %d %s", e.Status, http.StatusText(e.Status))
}

// IsValidation reports whether the backend rejected the payload contents.
func (e *APIError) IsValidation() bool {
	return e.Status == http.StatusBadRequest || e.Status == http.StatusUnprocessableEntity
}

// AsAPIError unwraps err into an *APIError.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// ErrNotFound is returned by clients for unknown entities.
var ErrNotFound = errors.New("api: not found")
