package commands

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/banksync/internal/report"
)

func newReportCommand(e env) *cobra.Command {
	var runs int

	cmd := &cobra.Command{
		Use:   "report [path]",
		Short: "Show recent runs from the run report",
		Long: `Show the most recent runs recorded in the run report, one line per account,
with any warnings and failed updates highlighted. The path defaults to
report.path from the configuration file.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) > 0 {
				path = args[0]
			} else {
				cfg, err := loadConfig(cmd, e.getenv)
				if err != nil {
					return err
				}
				path = cfg.Report.Path
			}
			if path == "" {
				return errors.New("no report path: pass one or set report.path in the configuration")
			}

			rows, err := report.Read(path)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No runs recorded in %s\n", path)
				return nil
			}
			printReport(cmd.OutOrStdout(), recentRuns(rows, runs))
			return nil
		},
	}

	cmd.Flags().IntVarP(&runs, "runs", "n", 10, "number of most recent runs to show (0 for all)")

	return cmd
}

// recentRuns keeps the rows of the last n runs, in file order.
func recentRuns(rows []report.Row, n int) []report.Row {
	if n <= 0 {
		return rows
	}
	seen := 0
	for i := len(rows) - 1; i >= 0; i-- {
		if i == len(rows)-1 || rows[i].RunID != rows[i+1].RunID {
			seen++
			if seen > n {
				return rows[i+1:]
			}
		}
	}
	return rows
}

func printReport(w io.Writer, rows []report.Row) {
	for i, r := range rows {
		if i == 0 || r.RunID != rows[i-1].RunID {
			fmt.Fprintf(w, "%s %s (run %s)\n", r.Timestamp.Local().Format(time.DateTime), r.Bank, r.RunID)
		}
		green.Fprintf(w, "  → %s ← %s: %d fetched, %d new, %d cleared, %d unchanged\n",
			r.LedgerAccount, r.BankAccount, r.Fetched, r.Inserted, r.Updated, r.Unchanged)
		if r.Warning != "" {
			yellow.Fprintf(w, "  ⚠ %s: %s\n", r.BankAccount, r.Warning)
		}
		if r.FailedUpdates > 0 {
			red.Fprintf(w, "  ✗ %d updates failed\n", r.FailedUpdates)
		}
	}
}
