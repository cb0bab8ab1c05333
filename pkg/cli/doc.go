/*
Package cli provides command-line helpers for the ollama-proxy command.

Output Formatting:

Analytics records can be printed as a text table, JSON or CSV:

	format, err := cli.ParseFormat("csv")
	if err != nil {
		return err
	}
	if err := cli.WriteRecords(ctx, os.Stdout, format, records); err != nil {
		return err
	}

Signal Handling:

For graceful shutdown on SIGINT/SIGTERM:

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

Errors:

Commands return ConfigError for unusable configuration and CommandError for
runtime failures. ExitCode maps them to process exit codes.
*/
package cli
