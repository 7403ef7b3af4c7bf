package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/sluice/pkg/cli"
	"mercator-hq/sluice/pkg/store"
)

// keyPrefix marks generated caller keys.
const keyPrefix = "sl-"

var keysFlags struct {
	id     string
	name   string
	team   string
	value  string
	output string
}

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage caller API keys",
	Long: `Add, revoke and list the API keys callers present to the gateway.

Keys are stored as SHA-256 hashes. A generated key is printed once and
cannot be recovered afterwards.

Subcommands:
  add    - Add a key (generated unless --value is given)
  revoke - Deactivate a key
  enable - Reactivate a revoked key
  list   - List keys

Examples:
  # Add a key for a caller
  sluice keys add --id alice --name "Alice" --team research

  # Revoke it
  sluice keys revoke alice`,
}

var keysAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a caller key",
	Args:  cobra.NoArgs,
	RunE:  addKey,
}

var keysRevokeCmd = &cobra.Command{
	Use:   "revoke <id>",
	Short: "Deactivate a caller key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setKeyActive(cmd, args[0], false)
	},
}

var keysEnableCmd = &cobra.Command{
	Use:   "enable <id>",
	Short: "Reactivate a caller key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setKeyActive(cmd, args[0], true)
	},
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List caller keys",
	Args:  cobra.NoArgs,
	RunE:  listKeys,
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysAddCmd, keysRevokeCmd, keysEnableCmd, keysListCmd)

	keysAddCmd.Flags().StringVar(&keysFlags.id, "id", "", "caller ID (required)")
	keysAddCmd.Flags().StringVar(&keysFlags.name, "name", "", "human-readable label")
	keysAddCmd.Flags().StringVar(&keysFlags.team, "team", "", "caller team")
	keysAddCmd.Flags().StringVar(&keysFlags.value, "value", "", "key value (generated if empty)")
	_ = keysAddCmd.MarkFlagRequired("id")

	keysListCmd.Flags().StringVarP(&keysFlags.output, "output", "o", "text", "output format (text, json, yaml)")
}

func addKey(cmd *cobra.Command, args []string) error {
	if keysFlags.id == "" {
		return fmt.Errorf("--id is required")
	}
	value := keysFlags.value
	generated := value == ""
	if generated {
		var err error
		if value, err = generateKeyValue(); err != nil {
			return err
		}
	}
	rec := store.KeyRecord{
		ID:        keysFlags.id,
		Name:      keysFlags.name,
		Team:      keysFlags.team,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}

	return withStore(cmd, func(ctx context.Context, st store.Store) error {
		if err := st.AddKey(ctx, value, rec); err != nil {
			return fmt.Errorf("failed to add key: %w", err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "✓ Key added for %s\n", rec.ID)
		if generated {
			fmt.Fprintf(out, "\n  %s\n\n", value)
			fmt.Fprintln(out, "Store this key now; it cannot be shown again.")
		}
		return nil
	})
}

// generateKeyValue returns a random caller key.
func generateKeyValue() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return keyPrefix + hex.EncodeToString(buf), nil
}

func setKeyActive(cmd *cobra.Command, id string, active bool) error {
	return withStore(cmd, func(ctx context.Context, st store.Store) error {
		if err := st.SetKeyActive(ctx, id, active); err != nil {
			return err
		}
		verb := "Revoked"
		if active {
			verb = "Enabled"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ %s key %s\n", verb, id)
		return nil
	})
}

// keyList renders key records as a table.
type keyList []store.KeyRecord

func (k keyList) Table() cli.Table {
	t := cli.Table{Headers: []string{"ID", "NAME", "TEAM", "ACTIVE", "CREATED"}}
	for _, rec := range k {
		t.Rows = append(t.Rows, []string{
			rec.ID,
			rec.Name,
			rec.Team,
			strconv.FormatBool(rec.Active),
			rec.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return t
}

func listKeys(cmd *cobra.Command, args []string) error {
	formatter, err := outputFormatter(keysFlags.output)
	if err != nil {
		return err
	}
	return withStore(cmd, func(ctx context.Context, st store.Store) error {
		keys, err := st.ListKeys(ctx)
		if err != nil {
			return err
		}
		return formatter.FormatTo(cmd.OutOrStdout(), keyList(keys))
	})
}
