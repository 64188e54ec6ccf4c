package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-formwizard/pkg/api"
	"github.com/goliatone/go-formwizard/pkg/draft"
	"github.com/goliatone/go-formwizard/pkg/tui"
	"github.com/goliatone/go-formwizard/pkg/wizard"
)

var startStep int

var newCmd = &cobra.Command{
	Use:   "new",
	Short: "Create an event",
	Long: `Create an event with the step-by-step editor. A draft left by an earlier
run is picked up automatically.`,
	Args: cobra.NoArgs,
	RunE: runNew,
}

var editCmd = &cobra.Command{
	Use:   "edit <event-id>",
	Short: "Edit an existing event",
	Args:  cobra.ExactArgs(1),
	RunE:  runEdit,
}

var closeCmd = &cobra.Command{
	Use:   "close <event-id>",
	Short: "Write the close report of an event",
	Args:  cobra.ExactArgs(1),
	RunE:  runClose,
}

func init() {
	for _, cmd := range []*cobra.Command{newCmd, editCmd, closeCmd} {
		cmd.Flags().IntVar(&startStep, "step", 1, "Step to start on (1-based)")
	}
}

func runNew(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	def, err := current.registry.Get(draft.FormTypeEvent)
	if err != nil {
		return err
	}
	runner := newRunner(cmd)
	session, err := wizard.NewSession(ctx, def, current.store, draft.NewEntityID, current.sessionOptions(
		wizard.WithInitialStep(startStep),
		wizard.WithSessionNotifier(runner.Notifier()),
		wizard.WithSubmit(func(ctx context.Context, payload map[string]any) error {
			created, err := current.client.CreateEvent(ctx, payload)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created event %v\n", created["id"])
			return nil
		}),
	)...)
	if err != nil {
		return err
	}
	return runSession(cmd, runner, session)
}

func runEdit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id := args[0]
	def, err := current.registry.Get(draft.FormTypeEvent)
	if err != nil {
		return err
	}
	event, err := current.client.FetchEvent(ctx, id)
	if err != nil {
		return fmt.Errorf("fetch event %s: %w", id, err)
	}
	runner := newRunner(cmd)
	session, err := wizard.NewSession(ctx, def, current.store, id, current.sessionOptions(
		wizard.WithServerData(event),
		wizard.WithInitialStep(startStep),
		wizard.WithSessionNotifier(runner.Notifier()),
		wizard.WithSubmit(func(ctx context.Context, payload map[string]any) error {
			if _, err := current.client.UpdateEvent(ctx, id, payload); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated event %s\n", id)
			return nil
		}),
	)...)
	if err != nil {
		return err
	}
	return runSession(cmd, runner, session)
}

func runClose(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id := args[0]
	def, err := current.registry.Get(draft.FormTypeCloseEvent)
	if err != nil {
		return err
	}
	report, err := closeReport(ctx, current.client, id)
	if err != nil {
		return err
	}
	runner := newRunner(cmd)
	session, err := wizard.NewSession(ctx, def, current.store, id, current.sessionOptions(
		wizard.WithServerData(report),
		wizard.WithInitialStep(startStep),
		wizard.WithSessionNotifier(runner.Notifier()),
		wizard.WithSubmit(func(ctx context.Context, payload map[string]any) error {
			if _, err := current.client.CloseEvent(ctx, id, payload); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Closed event %s\n", id)
			return nil
		}),
	)...)
	if err != nil {
		return err
	}
	return runSession(cmd, runner, session)
}

// closeReport loads the report already written for event id. An event that
// has not been closed yet has none.
func closeReport(ctx context.Context, client api.Client, id string) (map[string]any, error) {
	if _, err := client.FetchEvent(ctx, id); err != nil {
		return nil, fmt.Errorf("fetch event %s: %w", id, err)
	}
	report, err := client.FetchCloseReport(ctx, id)
	if api.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch close report %s: %w", id, err)
	}
	return report, nil
}

func newRunner(cmd *cobra.Command) *tui.Runner {
	return tui.New(
		tui.WithOutput(cmd.OutOrStdout()),
		tui.WithTheme(tui.Theme{ErrorPrefix: "✗ "}),
		tui.WithLogger(current.logger.With("component", "tui")),
	)
}

func runSession(cmd *cobra.Command, runner *tui.Runner, session *wizard.Session) error {
	out := cmd.OutOrStdout()
	result, err := runner.Run(cmd.Context(), session)
	if errors.Is(err, tui.ErrAborted) || errors.Is(err, context.Canceled) {
		fmt.Fprintln(out, "Interrupted. Your draft was saved.")
		return nil
	}
	if err != nil {
		return err
	}
	switch result.Outcome {
	case tui.OutcomeSaved:
		fmt.Fprintln(out, "Draft saved.")
	case tui.OutcomeCancelled:
		fmt.Fprintln(out, "Draft discarded.")
	}
	return nil
}
