package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/sluice/pkg/cli"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "sluice",
	Short: "Sluice - policy-driven gateway for LLM traffic",
	Long: `Sluice sits between applications and an OpenAI-compatible LLM provider.
Every chat-completion request runs through a tree of composable policies
loaded from a declarative document:

  - Caller authentication against the key store
  - Secret scanning and content rejection
  - Model remapping and request annotation
  - Backend credential injection and dispatch

Policy documents are read from a file (optionally watched) or from the
versioned store managed with "sluice policy".`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits with the code matching the error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
