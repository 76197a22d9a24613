package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version is set via ldflags at build time.
var Version = "dev"

type rootOptions struct {
	configFile string
	envFile    string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "promptgate",
		Short: "Prompt dispatch gateway for Ollama-compatible backends",
		Long: `promptgate accepts chat and code-generation requests, picks a persona or
language template, forwards the composed prompt to an Ollama-compatible
backend and returns a normalized result. Code answers are split into the
first fenced code block and the surrounding explanation.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnvFile(opts.envFile)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "promptgate.yaml", "config file path")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the config (missing file is ignored)")

	cmd.AddCommand(
		newServeCmd(opts),
		newValidateCmd(opts),
		newDispatchCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// loadEnvFile exports variables from path without overriding ones already set.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of promptgate",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "promptgate %s\n", Version)
		},
	}
}
