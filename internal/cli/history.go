package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/stampede/internal/loadtest"
	"github.com/wesleyorama2/stampede/internal/loadtest/history"
	"github.com/wesleyorama2/stampede/internal/loadtest/output"
)

const defaultHistoryDB = "stampede.db"

type historyOptions struct {
	*rootOptions

	db      string
	limit   int
	noColor bool
}

func newHistoryCmd(root *rootOptions) *cobra.Command {
	opts := &historyOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs",
		Long: `List runs recorded with 'stampede run --history', most recent first.

  stampede history --db runs.db --limit 10
  stampede history show <run-id> --db runs.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.list(cmd)
		},
	}
	cmd.PersistentFlags().StringVar(&opts.db, "db", defaultHistoryDB, "History database")
	cmd.Flags().IntVar(&opts.limit, "limit", 20, "Maximum number of runs to list (0 for all)")

	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print the summary of a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.show(cmd, args[0])
		},
	}
	show.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	cmd.AddCommand(show)

	return cmd
}

func (o *historyOptions) list(cmd *cobra.Command) error {
	if o.limit < 0 {
		return &loadtest.ConfigurationError{Err: errors.New("--limit must not be negative")}
	}

	store, err := history.Open(cmd.Context(), o.db, o.logger)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.List(cmd.Context(), o.limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tNAME\tSTARTED\tDURATION\tITERATIONS\tFAILED\tP95\tCHECKS\tVUS\tSTATUS")
	for _, r := range runs {
		status := "passed"
		if !r.Passed {
			status = "failed"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\t%.2f%%\t%d\t%s\n",
			r.ID, r.Name, r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Duration.Round(time.Second), r.Iterations, r.FailedIterations,
			r.P95.Round(time.Microsecond), r.ChecksRate*100, r.MaxVUs, status)
	}
	return w.Flush()
}

func (o *historyOptions) show(cmd *cobra.Command, id string) error {
	store, err := history.Open(cmd.Context(), o.db, o.logger)
	if err != nil {
		return err
	}
	defer store.Close()

	result, err := store.Get(cmd.Context(), id)
	if err != nil {
		return err
	}

	console := output.NewConsole(output.ConsoleConfig{
		Writer:  cmd.OutOrStdout(),
		NoColor: o.noColor,
	})
	console.PrintSummary(result)
	return nil
}
