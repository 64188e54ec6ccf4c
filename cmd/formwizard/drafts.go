package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-formwizard/pkg/draft"
)

var draftsCmd = &cobra.Command{
	Use:   "drafts",
	Short: "Inspect and clear stored drafts",
}

var draftsListCmd = &cobra.Command{
	Use:     "ls [form-type...]",
	Aliases: []string{"list"},
	Short:   "List drafts",
	RunE:    runDraftsList,
}

var draftsShowCmd = &cobra.Command{
	Use:   "show <form-type> <id>",
	Short: "Print a draft as JSON",
	Args:  cobra.ExactArgs(2),
	RunE:  runDraftsShow,
}

var draftsClearCmd = &cobra.Command{
	Use:   "clear <form-type> <id>",
	Short: "Delete a draft",
	Args:  cobra.ExactArgs(2),
	RunE:  runDraftsClear,
}

func init() {
	draftsCmd.AddCommand(draftsListCmd)
	draftsCmd.AddCommand(draftsShowCmd)
	draftsCmd.AddCommand(draftsClearCmd)
}

func runDraftsList(cmd *cobra.Command, args []string) error {
	formTypes := draft.FormTypes()
	if len(args) > 0 {
		formTypes = formTypes[:0:0]
		for _, raw := range args {
			formType, err := draft.ParseFormType(raw)
			if err != nil {
				return err
			}
			formTypes = append(formTypes, formType)
		}
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FORM\tID")
	found := 0
	for _, formType := range formTypes {
		for _, id := range current.store.IDs(cmd.Context(), formType) {
			fmt.Fprintf(w, "%s\t%s\n", formType, id)
			found++
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if found == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No drafts.")
	}
	return nil
}

func runDraftsShow(cmd *cobra.Command, args []string) error {
	formType, err := draft.ParseFormType(args[0])
	if err != nil {
		return err
	}
	data, err := current.store.Lookup(cmd.Context(), formType, args[1])
	if err != nil {
		return err
	}
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func runDraftsClear(cmd *cobra.Command, args []string) error {
	formType, err := draft.ParseFormType(args[0])
	if err != nil {
		return err
	}
	if err := current.store.Clear(cmd.Context(), formType, args[1]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s/%s\n", formType, args[1])
	return nil
}
