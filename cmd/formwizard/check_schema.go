package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-formwizard/pkg/events"
	"github.com/goliatone/go-formwizard/pkg/schema"
)

var checkOpenAPIPath string

var checkSchemaCmd = &cobra.Command{
	Use:   "check-schema [form.yaml...]",
	Short: "Check step partitions against the backend contract",
	Long: `Check that every payload field of the form's operation is owned by exactly
one step or produced by a derived rule. Without arguments the built-in event
and close-event forms are checked.`,
	RunE: runCheckSchema,
}

func init() {
	checkSchemaCmd.Flags().StringVar(&checkOpenAPIPath, "openapi", "", "OpenAPI document to check against (defaults to the built-in events contract)")
}

func runCheckSchema(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var forms []*schema.Form
	if len(args) == 0 {
		event, err := events.EventForm()
		if err != nil {
			return err
		}
		closeEvent, err := events.CloseEventForm()
		if err != nil {
			return err
		}
		forms = append(forms, event, closeEvent)
	}
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		f, err := schema.Load(data, path)
		if err != nil {
			return err
		}
		forms = append(forms, f)
	}

	document := events.OpenAPI()
	if checkOpenAPIPath != "" {
		raw, err := os.ReadFile(checkOpenAPIPath)
		if err != nil {
			return err
		}
		document = raw
	}

	for _, f := range forms {
		payload, err := schema.PayloadFieldsFromOpenAPI(ctx, document, f.Operation)
		if err != nil {
			return fmt.Errorf("%s: %w", f.Name, err)
		}
		if err := schema.Coverage(f, payload); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "ok  %-12s %d steps, %d payload fields\n", f.Name, len(f.Steps), len(payload))
	}
	return nil
}
