package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/sluice/pkg/cli"
	"mercator-hq/sluice/pkg/control"
	"mercator-hq/sluice/pkg/source"
)

var validateFlags struct {
	output string
}

var validateCmd = &cobra.Command{
	Use:   "validate <file>...",
	Short: "Validate policy documents",
	Long: `Load policy documents without starting the gateway.

Each file is decoded as JSON (.json) or YAML (anything else) and built into
a policy tree. Load errors name the offending node, for example
"config.policies[2].config.mapping: expected object".

With --output yaml or json the canonical form of each document is printed,
which is also the form "sluice policy put" stores.

Examples:
  # Validate a single document
  sluice validate policy.yaml

  # Print the canonical form
  sluice validate policy.yaml --output json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVarP(&validateFlags.output, "output", "o", "text", "output format (text, json, yaml)")
}

func runValidate(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(validateFlags.output)
	if err != nil {
		return err
	}
	formatter := cli.NewFormatter(format)
	out := cmd.OutOrStdout()
	loader := control.DefaultLoader()

	var errs []error
	for _, path := range args {
		p, err := loadPolicyFile(loader, path)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "✗ %v\n", err)
			errs = append(errs, err)
			continue
		}
		if format == cli.FormatText {
			fmt.Fprintf(out, "✓ %s: %s\n", path, p.Name())
			continue
		}
		if err := formatter.FormatTo(out, p.Document()); err != nil {
			return err
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// loadPolicyFile reads and loads one document.
func loadPolicyFile(loader *control.Loader, path string) (control.Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &cli.InvalidDocumentError{Path: path, Err: err}
	}
	p, err := source.DecodeDocument(loader, path, data)
	if err != nil {
		return nil, &cli.InvalidDocumentError{Path: path, Err: err}
	}
	return p, nil
}
