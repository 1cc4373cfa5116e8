/*
Package cli provides command-line interface utilities for the sentinel command.

Output Formatting:

Commands print results as text, JSON or CSV. Tabular results use Table,
which the text formatter aligns in columns:

	table := &cli.Table{Headers: []string{"POLICY", "WINDOW", "LIMIT"}}
	table.AddRow("default", "requests_per_minute", 100)
	if err := cli.NewFormatter(cli.FormatText).FormatTo(os.Stdout, table); err != nil {
		return err
	}

Progress Reporting:

	progress := cli.NewProgressReporter(os.Stderr, "Sending")
	progress.Start(total)
	progress.Update(done)
	progress.Finish()

Signal Handling:

	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()
	// ctx is cancelled on the first SIGINT/SIGTERM; a second one exits.
*/
package cli
