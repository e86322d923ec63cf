/*
Package cli provides helpers shared by the policycard command.

Output Formatting:

Results are printed as text, JSON, YAML or CSV:

	formatter, err := cli.NewFormatter(cli.FormatJSON)
	if err != nil {
		return err
	}
	if err := formatter.FormatTo(os.Stdout, result); err != nil {
		return err
	}

CSV output needs a value implementing Tabular.

Exit Codes:

Commands return errors; main maps them to a process exit code with
ExitCode. A non-compliant evaluation or a failed chain verification is not a
crash, so those carry their own codes:

	0  success
	1  runtime failure
	2  invalid configuration or usage
	3  evaluation found violations
	4  report verification failed

Progress Reporting:

Catalog evaluation reports progress on stderr:

	progress := cli.NewProgressReporter(os.Stderr)
	progress.Start(int64(len(entries)))
	progress.Update(1)
	progress.Finish()

Signal Handling:

	ctx, stop := cli.SetupSignalHandler()
	defer stop()
*/
package cli
