/*
Package cli provides command-line utilities for the relay binary.

Output Formatting:

Commands print results as text, JSON or CSV. Tabular results are built as a
Table so one value renders in every format:

	table := &cli.Table{Headers: []string{"name", "active"}}
	table.AddRow("alice", "true")
	if err := cli.NewFormatter(cli.FormatJSON).FormatTo(os.Stdout, table); err != nil {
		return err
	}

Signal Handling:

For graceful shutdown on SIGINT/SIGTERM:

	ctx := cli.SetupSignalHandler()
	return srv.Start(ctx)

A second signal exits immediately.
*/
package cli
