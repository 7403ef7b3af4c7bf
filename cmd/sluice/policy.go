package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"mercator-hq/sluice/pkg/cli"
	"mercator-hq/sluice/pkg/control"
	"mercator-hq/sluice/pkg/store"
)

var policyFlags struct {
	output string
	raw    bool
}

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Manage policy documents in the store",
	Long: `Manage the versioned policy documents the gateway reads in store mode.

Every put appends a new active version. The gateway serves the highest
active version, so deactivating the latest version rolls back to the one
before it.

Subcommands:
  put        - Validate a document and store it as a new version
  get        - Print the version the gateway would serve
  versions   - List every stored version
  deactivate - Withdraw one version

Documents that are not policies, such as the backend credential read by
InjectBackendCredential, are stored with --raw.

Examples:
  # Publish a new root document
  sluice policy put root policy.yaml

  # Store backend credentials
  sluice policy put --raw openai backend.yaml

  # Roll back
  sluice policy deactivate root 4`,
}

var policyPutCmd = &cobra.Command{
	Use:   "put <name> <file>",
	Short: "Store a document as a new version",
	Args:  cobra.ExactArgs(2),
	RunE:  runPolicyPut,
}

var policyGetCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Print the active document",
	Args:  cobra.ExactArgs(1),
	RunE:  runPolicyGet,
}

var policyVersionsCmd = &cobra.Command{
	Use:   "versions <name>",
	Short: "List stored versions",
	Args:  cobra.ExactArgs(1),
	RunE:  runPolicyVersions,
}

var policyDeactivateCmd = &cobra.Command{
	Use:   "deactivate <name> <version>",
	Short: "Deactivate one version",
	Args:  cobra.ExactArgs(2),
	RunE:  runPolicyDeactivate,
}

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyPutCmd, policyGetCmd, policyVersionsCmd, policyDeactivateCmd)

	policyPutCmd.Flags().BoolVar(&policyFlags.raw, "raw", false, "store the document without loading it as a policy")
	policyGetCmd.Flags().StringVarP(&policyFlags.output, "output", "o", "yaml", "output format (json, yaml)")
	policyVersionsCmd.Flags().StringVarP(&policyFlags.output, "output", "o", "text", "output format (text, json, yaml)")
}

func runPolicyPut(cmd *cobra.Command, args []string) error {
	name, path := args[0], args[1]
	var doc control.Document
	if policyFlags.raw {
		var err error
		if doc, err = readRawDocument(path); err != nil {
			return err
		}
	} else {
		p, err := loadPolicyFile(control.DefaultLoader(), path)
		if err != nil {
			return err
		}
		doc = p.Document()
	}
	return withStore(cmd, func(ctx context.Context, st store.Store) error {
		version, err := st.PutConfig(ctx, name, doc)
		if err != nil {
			return fmt.Errorf("failed to store %q: %w", name, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Stored %s version %d\n", name, version)
		return nil
	})
}

// readRawDocument decodes a YAML or JSON object without interpreting it.
func readRawDocument(path string) (control.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &cli.InvalidDocumentError{Path: path, Err: err}
	}
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &cli.InvalidDocumentError{Path: path, Err: err}
	}
	if doc == nil {
		return nil, &cli.InvalidDocumentError{Path: path, Err: errors.New("document must be an object")}
	}
	return doc, nil
}

func runPolicyGet(cmd *cobra.Command, args []string) error {
	formatter, err := outputFormatter(policyFlags.output)
	if err != nil {
		return err
	}
	return withStore(cmd, func(ctx context.Context, st store.Store) error {
		doc, err := st.Fetch(ctx, args[0])
		if err != nil {
			return err
		}
		return formatter.FormatTo(cmd.OutOrStdout(), doc)
	})
}

// versionList renders stored versions without their documents.
type versionList []store.ConfigVersion

func (v versionList) Table() cli.Table {
	t := cli.Table{Headers: []string{"VERSION", "ACTIVE", "CREATED"}}
	for _, cv := range v {
		t.Rows = append(t.Rows, []string{
			strconv.Itoa(cv.Version),
			strconv.FormatBool(cv.Active),
			cv.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return t
}

func runPolicyVersions(cmd *cobra.Command, args []string) error {
	formatter, err := outputFormatter(policyFlags.output)
	if err != nil {
		return err
	}
	return withStore(cmd, func(ctx context.Context, st store.Store) error {
		versions, err := st.ConfigVersions(ctx, args[0])
		if err != nil {
			return err
		}
		if len(versions) == 0 {
			return fmt.Errorf("no versions stored for %q", args[0])
		}
		return formatter.FormatTo(cmd.OutOrStdout(), versionList(versions))
	})
}

func runPolicyDeactivate(cmd *cobra.Command, args []string) error {
	name := args[0]
	version, err := strconv.Atoi(args[1])
	if err != nil || version < 1 {
		return fmt.Errorf("invalid version %q", args[1])
	}
	return withStore(cmd, func(ctx context.Context, st store.Store) error {
		if err := st.DeactivateConfig(ctx, name, version); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Deactivated %s version %d\n", name, version)
		return nil
	})
}
