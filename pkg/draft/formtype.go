package draft

import (
	"errors"
	"fmt"
	"strings"
)

// FormType identifies which wizard a draft belongs to.
type FormType string

const (
	FormTypeEvent        FormType = "event"
	FormTypeCloseEvent   FormType = "close-event"
	FormTypeOpportunity  FormType = "opportunity"
	FormTypeRegistration FormType = "registration"
	FormTypeUser         FormType = "user"
)

// NewEntityID is the draft id used while the edited entity has not been saved
// to the backend yet.
const NewEntityID = "new"

var (
	// ErrUnknownFormType is returned for form types outside the fixed set.
	ErrUnknownFormType = errors.New("draft: unknown form type")
	// ErrNotFound is returned by Store.Lookup when no draft is stored.
	ErrNotFound = errors.New("draft: not found")
)

// FormTypes lists every supported form type in a stable order.
func FormTypes() []FormType {
	return []FormType{
		FormTypeEvent,
		FormTypeCloseEvent,
		FormTypeOpportunity,
		FormTypeRegistration,
		FormTypeUser,
	}
}

// Valid reports whether t is one of the supported form types.
func (t FormType) Valid() bool {
	switch t {
	case FormTypeEvent, FormTypeCloseEvent, FormTypeOpportunity, FormTypeRegistration, FormTypeUser:
		return true
	default:
		return false
	}
}

func (t FormType) String() string {
	return string(t)
}

// ParseFormType normalises raw and validates it.
func ParseFormType(raw string) (FormType, error) {
	candidate := FormType(strings.ToLower(strings.TrimSpace(raw)))
	if !candidate.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownFormType, raw)
	}
	return candidate, nil
}

func normalizeID(id string) string {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return NewEntityID
	}
	return trimmed
}
