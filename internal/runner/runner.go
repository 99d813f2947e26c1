// Package runner performs one sync run: export every configured account,
// transform the transactions and reconcile them against the ledger.
package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cleared-dev/banksync/internal/bank"
	"github.com/cleared-dev/banksync/internal/config"
	"github.com/cleared-dev/banksync/internal/ledger"
	"github.com/cleared-dev/banksync/internal/ledger/actual"
	"github.com/cleared-dev/banksync/internal/logger"
	"github.com/cleared-dev/banksync/internal/model"
	"github.com/cleared-dev/banksync/internal/reconcile"
	"github.com/cleared-dev/banksync/internal/report"
	"github.com/cleared-dev/banksync/internal/transform"
)

// Session is an open ledger that must be closed when the run ends.
type Session interface {
	ledger.Ledger
	Close(ctx context.Context) error
}

// OpenLedger opens the ledger named by cfg.
type OpenLedger func(ctx context.Context, cfg *config.Config, log zerolog.Logger) (Session, error)

// OpenActual opens an Actual budget through its HTTP gateway.
func OpenActual(ctx context.Context, cfg *config.Config, log zerolog.Logger) (Session, error) {
	c, err := actual.Open(ctx, actual.Options{
		ServerURL:          cfg.Ledger.ServerURL,
		SyncID:             cfg.Ledger.SyncID,
		DataDir:            cfg.Ledger.DataDir,
		Password:           cfg.Ledger.Password,
		EncryptionPassword: cfg.Ledger.EncryptionPassword,
		Log:                logger.Service(log, "ledger/actual"),
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Options configures a run.
type Options struct {
	Config     *config.Config
	Registry   *bank.Registry
	OpenLedger OpenLedger // defaults to OpenActual
	DryRun     bool

	now   func() time.Time
	runID func() string
}

// AccountSummary is one account's outcome.
type AccountSummary struct {
	Mapping model.AccountMapping
	Fetched int
	Warning string
	reconcile.Result
}

// Summary is the outcome of a run.
type Summary struct {
	RunID    string
	Bank     string
	DryRun   bool
	Accounts []AccountSummary
}

// FailedUpdates counts updates that failed across all accounts.
func (s Summary) FailedUpdates() int {
	n := 0
	for _, a := range s.Accounts {
		n += len(a.Failed)
	}
	return n
}

// Warnings returns the degraded-account warnings, one per affected account.
func (s Summary) Warnings() []string {
	var out []string
	for _, a := range s.Accounts {
		if a.Warning != "" {
			out = append(out, a.Mapping.BankAccountID+": "+a.Warning)
		}
	}
	return out
}

// Run executes one sync, logging to the logger carried by ctx. The ledger and the provider are closed before Run
// returns, on success and failure alike. Failed updates do not make Run
// fail; they are reported in the Summary.
func Run(ctx context.Context, opts Options) (summary Summary, err error) {
	cfg := opts.Config
	if opts.OpenLedger == nil {
		opts.OpenLedger = OpenActual
	}
	if opts.now == nil {
		opts.now = time.Now
	}
	if opts.runID == nil {
		opts.runID = uuid.NewString
	}

	summary = Summary{RunID: opts.runID(), Bank: strings.ToLower(cfg.Bank), DryRun: opts.DryRun}
	log := logger.FromContext(ctx).With().Str("run_id", summary.RunID).Logger()
	ctx = logger.WithContext(ctx, log)

	factory := opts.Registry.Get(cfg.Bank)
	if factory == nil {
		return summary, fmt.Errorf("unknown bank %q (available: %s)", cfg.Bank, strings.Join(opts.Registry.Names(), ", "))
	}

	log.Info().Str("bank", summary.Bank).Int("accounts", len(cfg.Accounts)).Bool("dry_run", opts.DryRun).Msg("starting sync")

	l, err := opts.OpenLedger(ctx, cfg, log)
	if err != nil {
		return summary, fmt.Errorf("opening ledger: %w", err)
	}
	defer func() {
		if cerr := l.Close(context.WithoutCancel(ctx)); cerr != nil {
			err = errors.Join(err, fmt.Errorf("closing ledger: %w", cerr))
		}
	}()

	categories, err := l.Categories(ctx)
	if err != nil {
		return summary, fmt.Errorf("loading categories: %w", err)
	}
	payees, err := l.Payees(ctx)
	if err != nil {
		return summary, fmt.Errorf("loading payees: %w", err)
	}

	provider, err := factory(ctx, cfg, log)
	if err != nil {
		return summary, fmt.Errorf("starting %s: %w", summary.Bank, err)
	}
	defer func() {
		if cerr := provider.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("closing provider")
		}
	}()

	tr := transform.New(transform.Options{
		Accounts:        cfg.Accounts,
		Categorize:      cfg.Categorize,
		CategoryMapping: cfg.CategoryMapping,
		Categories:      categories,
		Payees:          payees,
	})

	batches := make([]reconcile.Batch, 0, len(cfg.Accounts))
	for _, m := range cfg.Accounts {
		txns, err := provider.ExportAccount(ctx, m.BankAccountID)
		if err != nil {
			return summary, fmt.Errorf("exporting %s: %w", m.BankAccountID, err)
		}
		acct := AccountSummary{Mapping: m, Fetched: len(txns)}
		if acct.Warning = bank.DegradedReason(provider, m.BankAccountID); acct.Warning != "" {
			log.Warn().Str("account", m.BankAccountID).Str("reason", acct.Warning).Msg("account export incomplete")
		}
		summary.Accounts = append(summary.Accounts, acct)
		batches = append(batches, reconcile.Batch{LedgerAccountID: m.LedgerAccountID, Records: tr.Account(txns)})
	}

	engine := reconcile.New(l, reconcile.Options{DryRun: opts.DryRun, Log: log})
	results, err := engine.Run(ctx, batches)
	for i, res := range results {
		summary.Accounts[i].Result = res
	}
	if rerr := writeReport(cfg.Report.Path, opts.now(), summary, len(results)); rerr != nil {
		log.Error().Err(rerr).Str("path", cfg.Report.Path).Msg("writing run report")
	}
	if err != nil {
		return summary, err
	}

	log.Info().Int("failed_updates", summary.FailedUpdates()).Msg("sync complete")
	return summary, nil
}

// writeReport appends a row for each of the first n accounts.
func writeReport(path string, now time.Time, s Summary, n int) error {
	if path == "" || n == 0 {
		return nil
	}
	rows := make([]report.Row, 0, n)
	for _, a := range s.Accounts[:n] {
		rows = append(rows, report.Row{
			Timestamp:     now,
			RunID:         s.RunID,
			Bank:          s.Bank,
			LedgerAccount: a.Mapping.LedgerAccountID,
			BankAccount:   a.Mapping.BankAccountID,
			Fetched:       a.Fetched,
			Inserted:      a.Inserted,
			Updated:       a.Updated,
			Unchanged:     a.Unchanged,
			FailedUpdates: len(a.Failed),
			Warning:       a.Warning,
		})
	}
	return report.Append(path, rows)
}
