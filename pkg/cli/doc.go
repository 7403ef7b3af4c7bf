/*
Package cli provides helpers shared by the sluice commands.

Output Formatting:

Commands accept --output text|json|yaml. Results implementing Tabular render
as aligned columns in text mode:

	formatter := cli.NewFormatter(format)
	if err := formatter.FormatTo(cmd.OutOrStdout(), keys); err != nil {
		return err
	}

Exit Codes:

ExitCode maps a command error to the process exit status: 2 for a
configuration file that could not be loaded, 3 for an invalid policy
document, 1 for anything else.

Signal Handling:

	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()
*/
package cli
