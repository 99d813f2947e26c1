package akahu

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/banksync/internal/model"
)

type cursor struct {
	Next *string `json:"next"`
}

// page is the envelope every list endpoint returns.
type page[T any] struct {
	Success bool    `json:"success"`
	Items   []T     `json:"items"`
	Cursor  *cursor `json:"cursor,omitempty"`
}

func (p page[T]) next() string {
	if p.Cursor == nil || p.Cursor.Next == nil {
		return ""
	}
	return *p.Cursor.Next
}

func extract[T any](p page[T]) ([]T, string) {
	return p.Items, p.next()
}

// Account is a connected bank account.
type Account struct {
	ID        string    `json:"_id"`
	Name      string    `json:"name"`
	Refreshed Refreshed `json:"refreshed"`
}

// Refreshed records when each kind of account data was last fetched from the
// bank. Nil timestamps have never been refreshed.
type Refreshed struct {
	Meta         *time.Time `json:"meta,omitempty"`
	Transactions *time.Time `json:"transactions,omitempty"`
	Party        *time.Time `json:"party,omitempty"`
}

// Merchant is the enriched counterparty.
type Merchant struct {
	Name string `json:"name"`
}

// Category is the enriched spending category.
type Category struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}

// Transaction is a posted transaction.
type Transaction struct {
	ID          string          `json:"_id"`
	Account     string          `json:"_account"`
	User        string          `json:"_user"`
	Connection  string          `json:"_connection"`
	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Merchant    *Merchant       `json:"merchant,omitempty"`
	Category    *Category       `json:"category,omitempty"`
}

// AccountTransaction normalizes t into loc.
func (t Transaction) AccountTransaction(loc *time.Location) model.AccountTransaction {
	txn := model.AccountTransaction{
		DateTime: t.Date.In(loc),
		Amount:   t.Amount,
		Payee:    t.Description,
		Notes:    t.Description,
		Cleared:  true,
	}
	if t.Merchant != nil && t.Merchant.Name != "" {
		txn.Payee = t.Merchant.Name
	}
	if t.Category != nil {
		txn.Category = t.Category.Name
	}
	return txn
}

// PendingTransaction has not yet posted and carries no enrichment.
type PendingTransaction struct {
	Account     string          `json:"_account"`
	User        string          `json:"_user"`
	Connection  string          `json:"_connection"`
	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

// AccountTransaction normalizes t into loc.
func (t PendingTransaction) AccountTransaction(loc *time.Location) model.AccountTransaction {
	return model.AccountTransaction{
		DateTime: t.Date.In(loc),
		Amount:   t.Amount,
		Payee:    t.Description,
	}
}
