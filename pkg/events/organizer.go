package events

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-formwizard/pkg/api"
	"github.com/goliatone/go-formwizard/pkg/form"
)

// QualifiedOrganizer asks the backend whether the chosen user may be the main
// organizer. The field holds a user object with an id.
func QualifiedOrganizer(client api.Client) form.AsyncRule {
	return func(ctx context.Context, value any, _ map[string]any) (string, error) {
		if client == nil {
			return "", fmt.Errorf("events: no api client for organizer check")
		}
		user, _ := value.(map[string]any)
		id := strings.TrimSpace(fmt.Sprint(user["id"]))
		if user == nil || user["id"] == nil || id == "" {
			return "Choose a user as main organizer", nil
		}
		qualified, err := client.IsQualifiedOrganizer(ctx, id)
		if err != nil {
			return "", err
		}
		if !qualified {
			return "This user cannot be the main organizer", nil
		}
		return "", nil
	}
}
