package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-formwizard/internal/config"
)

var (
	configPath string
	current    *app
)

var rootCmd = &cobra.Command{
	Use:           "formwizard",
	Short:         "Multi-step event forms with resumable drafts",
	SilenceUsage:  true,
	SilenceErrors: true,
	Long: `formwizard walks through the event editor and the close-event report one
step at a time. Every change is kept as a draft, so an interrupted session
resumes where it stopped.

Settings come from --config (YAML) and FORMWIZARD_* environment variables.`,
	PersistentPreRunE:  setupApp,
	PersistentPostRunE: teardownApp,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("FORMWIZARD_CONFIG"), "Path to a YAML config file")

	rootCmd.AddCommand(newCmd)
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(closeCmd)
	rootCmd.AddCommand(draftsCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(checkSchemaCmd)
}

func setupApp(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log, cmd.ErrOrStderr())
	a, err := newApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	current = a
	return nil
}

func teardownApp(cmd *cobra.Command, _ []string) error {
	if current == nil {
		return nil
	}
	err := current.Close(cmd.Context())
	current = nil
	return err
}
