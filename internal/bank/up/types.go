package up

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/banksync/internal/model"
)

// Status values reported by the API.
const (
	StatusHeld    = "HELD"
	StatusSettled = "SETTLED"
)

// Money is an amount in the account's currency.
type Money struct {
	CurrencyCode     string `json:"currencyCode"`
	Value            string `json:"value"`
	ValueInBaseUnits int64  `json:"valueInBaseUnits"`
}

// Transaction is one element of the transactions resource.
type Transaction struct {
	Type          string                  `json:"type"`
	ID            string                  `json:"id"`
	Attributes    TransactionAttributes   `json:"attributes"`
	Relationships TransactionRelationship `json:"relationships"`
}

// TransactionAttributes holds the transaction's own fields.
type TransactionAttributes struct {
	Status      string    `json:"status"`
	Description string    `json:"description"`
	Amount      Money     `json:"amount"`
	CreatedAt   time.Time `json:"createdAt"`
	Note        *struct {
		Text string `json:"text"`
	} `json:"note"`
}

// TransactionRelationship links to the category and transfer account.
type TransactionRelationship struct {
	Category        relation `json:"category"`
	TransferAccount relation `json:"transferAccount"`
}

type relation struct {
	Data *struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	} `json:"data"`
}

func (r relation) id() string {
	if r.Data == nil {
		return ""
	}
	return r.Data.ID
}

type transactionPage struct {
	Data  []Transaction `json:"data"`
	Links struct {
		Prev *string `json:"prev"`
		Next *string `json:"next"`
	} `json:"links"`
}

// AccountTransaction normalizes t. Amounts arrive in cents.
func (t Transaction) AccountTransaction() model.AccountTransaction {
	a := t.Attributes
	txn := model.AccountTransaction{
		DateTime: a.CreatedAt,
		Amount:   decimal.New(a.Amount.ValueInBaseUnits, -2),
		Payee:    a.Description,
		Cleared:  a.Status == StatusSettled,
		Category: t.Relationships.Category.id(),
		Transfer: t.Relationships.TransferAccount.id(),
	}
	if a.Note != nil {
		txn.Notes = a.Note.Text
	}
	return txn
}
