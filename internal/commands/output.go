package commands

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/cleared-dev/banksync/internal/runner"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow, color.Bold)
	red    = color.New(color.FgRed)
)

// printSummary writes a human-readable account of a run.
func printSummary(w io.Writer, s runner.Summary) {
	verb := "Synced"
	if s.DryRun {
		verb = "Dry run of"
	}
	fmt.Fprintf(w, "%s %s (run %s)\n", verb, s.Bank, s.RunID)

	for _, a := range s.Accounts {
		green.Fprintf(w, "  → %s ← %s: %d fetched, %d new, %d cleared, %d unchanged\n",
			a.Mapping.LedgerAccountID, a.Mapping.BankAccountID, a.Fetched, a.Inserted, a.Updated, a.Unchanged)
		if a.Warning != "" {
			yellow.Fprintf(w, "  ⚠ %s: %s\n", a.Mapping.BankAccountID, a.Warning)
		}
		for _, f := range a.Failed {
			red.Fprintf(w, "  ✗ %s\n", f.Error())
		}
	}

	if n := s.FailedUpdates(); n > 0 {
		red.Fprintf(w, "%d updates failed; they will be retried on the next run\n", n)
	}
}
