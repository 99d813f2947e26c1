// Package ledger describes the budgeting system transactions are synced into.
package ledger

import (
	"context"
	"fmt"

	"github.com/cleared-dev/banksync/internal/model"
)

// Category is a ledger spending category.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Payee is a ledger payee. TransferAccount is set on the special payees that
// represent transfers into another ledger account.
type Payee struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	TransferAccount string `json:"transfer_acct,omitempty"`
}

// Transaction is a ledger transaction previously created by an import.
// Tombstone is set when it has been deleted but still counts as seen.
type Transaction struct {
	ID         string `json:"id"`
	ImportedID string `json:"imported_id"`
	Account    string `json:"account"`
	Amount     int64  `json:"amount"`
	Cleared    bool   `json:"cleared"`
	Tombstone  bool   `json:"tombstone"`
}

// Update is the patch applied when a pending transaction clears.
type Update struct {
	Cleared bool  `json:"cleared"`
	Amount  int64 `json:"amount"`
}

// Reader exposes the lookups a sync run needs.
type Reader interface {
	Categories(ctx context.Context) ([]Category, error)
	Payees(ctx context.Context) ([]Payee, error)
	// FindImported returns existing transactions keyed by imported id,
	// including deleted ones.
	FindImported(ctx context.Context, importedIDs []string) (map[string]Transaction, error)
}

// Writer exposes the mutations a sync run makes.
type Writer interface {
	ImportTransactions(ctx context.Context, accountID string, records []model.ImportRecord) error
	UpdateTransaction(ctx context.Context, id string, u Update) error
}

// Ledger is the full collaborator surface.
type Ledger interface {
	Reader
	Writer
}

// Error wraps any failure talking to the ledger.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("ledger %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
