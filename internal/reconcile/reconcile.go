// Package reconcile decides which import records the ledger has not seen and
// which pending transactions have since cleared, then applies the changes.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/cleared-dev/banksync/internal/ledger"
	"github.com/cleared-dev/banksync/internal/model"
)

// Update marks an existing ledger transaction cleared.
type Update struct {
	ID     string // ledger transaction id
	Record model.ImportRecord
}

// Plan is the partition of one account's records.
type Plan struct {
	New       []model.ImportRecord
	Updates   []Update
	Unchanged int
}

// Partition splits records against the ledger's existing transactions, keyed
// by imported id. Deleted ledger transactions still count as existing.
func Partition(records []model.ImportRecord, existing map[string]ledger.Transaction) Plan {
	var p Plan
	for _, rec := range records {
		prev, ok := existing[rec.ImportedID]
		switch {
		case !ok:
			p.New = append(p.New, rec)
		case rec.Cleared && !prev.Cleared:
			p.Updates = append(p.Updates, Update{ID: prev.ID, Record: rec})
		default:
			p.Unchanged++
		}
	}
	return p
}

// Batch is one account's records for a run.
type Batch struct {
	LedgerAccountID string
	Records         []model.ImportRecord
}

// UpdateError records a failed update.
type UpdateError struct {
	ID         string
	ImportedID string
	Err        error
}

func (e *UpdateError) Error() string {
	return fmt.Sprintf("updating %s (%s): %v", e.ID, e.ImportedID, e.Err)
}

func (e *UpdateError) Unwrap() error { return e.Err }

// Result summarises one account's reconciliation.
type Result struct {
	LedgerAccountID string
	Inserted        int
	Updated         int
	Unchanged       int
	Failed          []*UpdateError
}

// Err joins the failed updates, or returns nil.
func (r Result) Err() error {
	errs := make([]error, len(r.Failed))
	for i, f := range r.Failed {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// Options configures an Engine.
type Options struct {
	// DryRun partitions without writing to the ledger.
	DryRun bool
	Log    zerolog.Logger
}

// Engine applies plans to a ledger.
type Engine struct {
	ledger ledger.Ledger
	dryRun bool
	log    zerolog.Logger
}

// New creates an Engine writing to l.
func New(l ledger.Ledger, opts Options) *Engine {
	return &Engine{ledger: l, dryRun: opts.DryRun, log: opts.Log}
}

// Run reconciles each batch in order, one account at a time. It stops at
// the first fatal error and returns the results so far, including the
// partial result of the account that failed. Failed updates are not fatal;
// they are reported in each Result.
func (e *Engine) Run(ctx context.Context, batches []Batch) ([]Result, error) {
	results := make([]Result, 0, len(batches))
	for _, b := range batches {
		res, err := e.Account(ctx, b.LedgerAccountID, b.Records)
		results = append(results, res)
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

// Account reconciles one account. New records go to the ledger in a single
// import call; cleared updates run concurrently and are all awaited before
// Account returns, even when the import fails.
func (e *Engine) Account(ctx context.Context, ledgerAccountID string, records []model.ImportRecord) (Result, error) {
	res := Result{LedgerAccountID: ledgerAccountID}
	log := e.log.With().Str("account", ledgerAccountID).Logger()

	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.ImportedID
	}
	existing, err := e.ledger.FindImported(ctx, ids)
	if err != nil {
		return res, fmt.Errorf("finding imported transactions for %s: %w", ledgerAccountID, err)
	}

	plan := Partition(records, existing)
	res.Unchanged = plan.Unchanged
	if e.dryRun {
		res.Inserted = len(plan.New)
		res.Updated = len(plan.Updates)
		log.Info().Int("new", res.Inserted).Int("updates", res.Updated).Int("unchanged", res.Unchanged).Msg("dry run, ledger untouched")
		return res, nil
	}

	failures := make([]*UpdateError, len(plan.Updates))
	var wg sync.WaitGroup
	for i, u := range plan.Updates {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := e.ledger.UpdateTransaction(ctx, u.ID, ledger.Update{Cleared: true, Amount: u.Record.Amount})
			if err != nil {
				failures[i] = &UpdateError{ID: u.ID, ImportedID: u.Record.ImportedID, Err: err}
			}
		}()
	}

	var importErr error
	if len(plan.New) > 0 {
		if importErr = e.ledger.ImportTransactions(ctx, ledgerAccountID, plan.New); importErr == nil {
			res.Inserted = len(plan.New)
		}
	}
	wg.Wait()

	for _, f := range failures {
		if f != nil {
			log.Error().Err(f.Err).Str("id", f.ID).Str("imported_id", f.ImportedID).Msg("update failed")
			res.Failed = append(res.Failed, f)
		}
	}
	res.Updated = len(plan.Updates) - len(res.Failed)

	if importErr != nil {
		return res, fmt.Errorf("importing %d transactions into %s: %w", len(plan.New), ledgerAccountID, importErr)
	}
	log.Info().Int("inserted", res.Inserted).Int("updated", res.Updated).Int("unchanged", res.Unchanged).
		Int("failed", len(res.Failed)).Msg("reconciled account")
	return res, nil
}
