package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"mercator-hq/sluice/pkg/cli"
	"mercator-hq/sluice/pkg/config"
	"mercator-hq/sluice/pkg/store"
)

// withStore loads the configuration, opens its store and runs fn. The
// administrative commands load the file directly rather than through the
// process-wide configuration so that each invocation sees the file as it is.
func withStore(cmd *cobra.Command, fn func(ctx context.Context, st store.Store) error) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return cli.NewConfigError(cfgFile, err)
	}
	if cfg.Store.Backend == "memory" {
		return cli.NewConfigError(cfgFile, fmt.Errorf("store backend %q does not persist; use sqlite or redis", cfg.Store.Backend))
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	return fn(ctx, st)
}

// outputFormatter resolves an --output flag.
func outputFormatter(value string) (cli.Formatter, error) {
	format, err := cli.ParseFormat(value)
	if err != nil {
		return nil, err
	}
	return cli.NewFormatter(format), nil
}
