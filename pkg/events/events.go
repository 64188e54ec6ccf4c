// Package events defines the concrete wizards of the events application: the
// multi-step event editor and the close-event report. Each definition bundles
// the embedded step partition with its defaults, reconciler synthesizers,
// derived-field rules and asynchronous checks.
package events

import (
	"context"
	"embed"
	"fmt"

	"github.com/goliatone/go-formwizard/pkg/api"
	"github.com/goliatone/go-formwizard/pkg/draft"
	"github.com/goliatone/go-formwizard/pkg/form"
	"github.com/goliatone/go-formwizard/pkg/reconcile"
	"github.com/goliatone/go-formwizard/pkg/schema"
	"github.com/goliatone/go-formwizard/pkg/wizard"
)

//go:embed schemas/*.yaml
var schemaFS embed.FS

//go:embed openapi/events.yaml
var openAPIDocument []byte

const (
	eventSchemaPath      = "schemas/event.yaml"
	closeEventSchemaPath = "schemas/close_event.yaml"
)

// OpenAPI returns the events backend contract the forms are checked against.
func OpenAPI() []byte {
	return append([]byte(nil), openAPIDocument...)
}

// EventForm loads the event step partition.
func EventForm() (*schema.Form, error) {
	return schema.LoadFS(schemaFS, eventSchemaPath)
}

// CloseEventForm loads the close-event step partition.
func CloseEventForm() (*schema.Form, error) {
	return schema.LoadFS(schemaFS, closeEventSchemaPath)
}

// EventDefinition builds the event wizard. client backs the main organizer
// qualification check.
func EventDefinition(client api.Client) (wizard.Definition, error) {
	f, err := EventForm()
	if err != nil {
		return wizard.Definition{}, err
	}
	return wizard.Definition{
		FormType: draft.FormTypeEvent,
		Form:     f,
		Defaults: EventDefaults(),
		Synthesizers: []reconcile.Synthesizer{
			SynthesizeOnline,
			SynthesizeRegistrationMethod,
			SynthesizeContactPerson,
		},
		Rules: map[string]wizard.DerivedFunc{
			"online":                           ResolveOnline,
			"registration_method":              ResolveRegistrationMethod,
			"contact_person_is_main_organizer": ResolveContactPerson,
			"sanitize":                         SanitizeFields("description"),
		},
		AsyncRules: map[string]form.AsyncRule{
			"qualified_organizer": QualifiedOrganizer(client),
		},
	}, nil
}

// CloseEventDefinition builds the close-event wizard.
func CloseEventDefinition() (wizard.Definition, error) {
	f, err := CloseEventForm()
	if err != nil {
		return wizard.Definition{}, err
	}
	return wizard.Definition{
		FormType:     draft.FormTypeCloseEvent,
		Form:         f,
		Defaults:     CloseEventDefaults(),
		Synthesizers: []reconcile.Synthesizer{SynthesizeHoursMethod},
		Rules: map[string]wizard.DerivedFunc{
			"hours":    ResolveVolunteerHours,
			"sanitize": SanitizeFields("summary"),
		},
	}, nil
}

// Definitions returns every events wizard, validated.
func Definitions(client api.Client) ([]wizard.Definition, error) {
	event, err := EventDefinition(client)
	if err != nil {
		return nil, err
	}
	closeEvent, err := CloseEventDefinition()
	if err != nil {
		return nil, err
	}
	defs := []wizard.Definition{event, closeEvent}
	for _, def := range defs {
		if err := def.Validate(); err != nil {
			return nil, err
		}
	}
	return defs, nil
}

// Registry registers Definitions.
func Registry(client api.Client) (*wizard.Registry, error) {
	defs, err := Definitions(client)
	if err != nil {
		return nil, err
	}
	return wizard.NewRegistry(defs...)
}

// CheckOpenAPI verifies every form partition against the request body its
// operation declares in the backend contract.
func CheckOpenAPI(ctx context.Context, forms ...*schema.Form) error {
	for _, f := range forms {
		payload, err := schema.PayloadFieldsFromOpenAPI(ctx, openAPIDocument, f.Operation)
		if err != nil {
			return fmt.Errorf("events: %s: %w", f.Name, err)
		}
		if err := schema.Coverage(f, payload); err != nil {
			return err
		}
	}
	return nil
}
