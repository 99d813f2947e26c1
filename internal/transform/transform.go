// Package transform turns provider transactions into ledger import records.
package transform

import (
	"slices"
	"time"

	"golang.org/x/text/cases"

	"github.com/cleared-dev/banksync/internal/importid"
	"github.com/cleared-dev/banksync/internal/ledger"
	"github.com/cleared-dev/banksync/internal/model"
)

// Options configures a Transformer for one run.
type Options struct {
	Accounts        []model.AccountMapping
	Categorize      bool
	CategoryMapping map[string]string // bank category -> ledger category name
	Categories      []ledger.Category
	Payees          []ledger.Payee
}

// Transformer assigns import ids and resolves ledger references. Import id
// numbering is shared by every account transformed with the same
// Transformer, so use one per run and transform accounts in a fixed order.
type Transformer struct {
	opts     Options
	assigner *importid.Assigner
	fold     cases.Caser

	categoryIDs    map[string]string // folded name -> id
	ledgerAccounts map[string]string // bank account -> ledger account
	transferPayees map[string]string // ledger account -> payee id
}

// New returns a Transformer with a fresh import id counter.
func New(opts Options) *Transformer {
	t := &Transformer{
		opts:           opts,
		assigner:       importid.NewAssigner(),
		fold:           cases.Fold(),
		categoryIDs:    make(map[string]string, len(opts.Categories)),
		ledgerAccounts: make(map[string]string, len(opts.Accounts)),
		transferPayees: make(map[string]string),
	}
	for _, c := range opts.Categories {
		key := t.fold.String(c.Name)
		if _, ok := t.categoryIDs[key]; !ok {
			t.categoryIDs[key] = c.ID
		}
	}
	for _, a := range opts.Accounts {
		if _, ok := t.ledgerAccounts[a.BankAccountID]; !ok {
			t.ledgerAccounts[a.BankAccountID] = a.LedgerAccountID
		}
	}
	for _, p := range opts.Payees {
		if p.TransferAccount == "" {
			continue
		}
		if _, ok := t.transferPayees[p.TransferAccount]; !ok {
			t.transferPayees[p.TransferAccount] = p.ID
		}
	}
	return t
}

// Sorted returns a copy of txns in import order: time, then amount, then
// payee.
func Sorted(txns []model.AccountTransaction) []model.AccountTransaction {
	out := slices.Clone(txns)
	slices.SortStableFunc(out, model.Compare)
	return out
}

// Account converts one account's transactions, in import order.
func (t *Transformer) Account(txns []model.AccountTransaction) []model.ImportRecord {
	sorted := Sorted(txns)
	records := make([]model.ImportRecord, 0, len(sorted))
	for _, txn := range sorted {
		records = append(records, t.record(txn))
	}
	return records
}

func (t *Transformer) record(txn model.AccountTransaction) model.ImportRecord {
	rec := model.ImportRecord{
		ImportedID: t.assigner.Next(txn),
		Date:       txn.DateTime.Format(time.DateOnly),
		Amount:     txn.MinorUnits(),
		Notes:      txn.Notes,
		Cleared:    txn.Cleared,
	}
	if t.opts.Categorize {
		rec.Category = t.CategoryID(txn.Category)
	}
	if payee := t.TransferPayee(txn.Transfer); txn.IsTransfer() && payee != "" {
		rec.Payee = payee
	} else {
		rec.PayeeName = txn.Payee
	}
	return rec
}

// CategoryID maps a bank category through the configured mapping and
// matches the result against ledger category names, ignoring case. It
// returns "" when nothing matches.
func (t *Transformer) CategoryID(bankCategory string) string {
	if bankCategory == "" {
		return ""
	}
	name := bankCategory
	if mapped, ok := t.opts.CategoryMapping[bankCategory]; ok {
		name = mapped
	}
	return t.categoryIDs[t.fold.String(name)]
}

// TransferPayee returns the ledger payee representing transfers into the
// ledger account synced from bankAccountID, or "" when that account is not
// synced or has no transfer payee.
func (t *Transformer) TransferPayee(bankAccountID string) string {
	if bankAccountID == "" {
		return ""
	}
	ledgerID, ok := t.ledgerAccounts[bankAccountID]
	if !ok {
		return ""
	}
	return t.transferPayees[ledgerID]
}
