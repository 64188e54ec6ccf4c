package events

import (
	"context"
	"fmt"

	"github.com/goliatone/go-formwizard/pkg/form"
	"github.com/goliatone/go-formwizard/pkg/values"
)

// OnlineLocationID is the location id the backend uses for online events.
const OnlineLocationID = "online"

// Registration methods offered by the registration step.
const (
	RegistrationNone     = "none"
	RegistrationStandard = "standard"
	RegistrationFull     = "full"
)

// Ways of counting volunteer hours on the close-event form.
const (
	HoursTotal          = "total"
	HoursPerParticipant = "per_participant"
)

// EventDefaults are the initial values of a new event.
func EventDefaults() map[string]any {
	return map[string]any{
		"subevent_count":                   float64(1),
		"online":                           false,
		"registration_method":              RegistrationStandard,
		"contact_person_is_main_organizer": false,
		"images":                           []any{},
	}
}

// CloseEventDefaults are the initial values of a close-event report.
func CloseEventDefaults() map[string]any {
	return map[string]any{
		"hours_method":       HoursTotal,
		"feedback_requested": false,
		"attendance":         []any{},
	}
}

// ResolveOnline replaces the location of an online event with the online
// sentinel and drops its link field. Offline events keep both as entered.
func ResolveOnline(_ context.Context, payload map[string]any) error {
	if online, _ := payload["online"].(bool); !online {
		return nil
	}
	payload["location"] = map[string]any{"id": OnlineLocationID}
	delete(payload, "online_link")
	return nil
}

// ResolveRegistrationMethod turns the registration method choice into the two
// backend flags. A full event is always reported as full.
func ResolveRegistrationMethod(_ context.Context, payload map[string]any) error {
	method, _ := payload["registration_method"].(string)
	var required, full bool
	switch method {
	case RegistrationNone:
	case RegistrationStandard:
		required = true
	case RegistrationFull:
		required, full = true, true
	case "":
		return nil
	default:
		return fmt.Errorf("unknown registration method %q", method)
	}
	if err := values.Set(payload, "registration.is_registration_required", required); err != nil {
		return err
	}
	return values.Set(payload, "registration.is_event_full", full)
}

// ResolveContactPerson copies the main organizer's contact details into the
// contact person when the checkbox is set.
func ResolveContactPerson(_ context.Context, payload map[string]any) error {
	if same, _ := payload["contact_person_is_main_organizer"].(bool); !same {
		return nil
	}
	organizer, _ := payload["main_organizer"].(map[string]any)
	contact := map[string]any{}
	for _, key := range []string{"name", "email", "phone"} {
		if value, ok := organizer[key]; ok && !values.IsEmpty(value) {
			contact[key] = value
		}
	}
	payload["contact_person"] = contact
	return nil
}

// ResolveVolunteerHours computes the total hours when they were entered per
// participant.
func ResolveVolunteerHours(_ context.Context, payload map[string]any) error {
	if method, _ := payload["hours_method"].(string); method != HoursPerParticipant {
		return nil
	}
	perParticipant, ok := form.Number(payload["hours_per_participant"])
	if !ok {
		return fmt.Errorf("hours per participant is not a number")
	}
	count, ok := form.Number(payload["participant_count"])
	if !ok {
		return fmt.Errorf("participant count is not a number")
	}
	payload["volunteer_hours"] = perParticipant * count
	return nil
}

// SynthesizeOnline infers the online toggle from the sentinel location.
func SynthesizeOnline(server map[string]any) map[string]any {
	id, ok := values.Get(server, "location.id")
	if !ok {
		return nil
	}
	return map[string]any{"online": fmt.Sprint(id) == OnlineLocationID}
}

// SynthesizeRegistrationMethod infers the method from the backend flags.
func SynthesizeRegistrationMethod(server map[string]any) map[string]any {
	registration, ok := server["registration"].(map[string]any)
	if !ok {
		return nil
	}
	full, _ := registration["is_event_full"].(bool)
	required, hasRequired := registration["is_registration_required"].(bool)
	switch {
	case full:
		return map[string]any{"registration_method": RegistrationFull}
	case hasRequired && !required:
		return map[string]any{"registration_method": RegistrationNone}
	case hasRequired:
		return map[string]any{"registration_method": RegistrationStandard}
	}
	return nil
}

// SynthesizeContactPerson ticks the checkbox when the stored contact is the
// main organizer.
func SynthesizeContactPerson(server map[string]any) map[string]any {
	contact, _ := values.Get(server, "contact_person.email")
	organizer, _ := values.Get(server, "main_organizer.email")
	if values.IsEmpty(contact) || values.IsEmpty(organizer) {
		return nil
	}
	return map[string]any{"contact_person_is_main_organizer": contact == organizer}
}

// SynthesizeHoursMethod selects total hours when the report already has them.
func SynthesizeHoursMethod(server map[string]any) map[string]any {
	if _, ok := server["volunteer_hours"]; !ok {
		return nil
	}
	return map[string]any{"hours_method": HoursTotal}
}
