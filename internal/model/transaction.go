package model

import (
	"cmp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AccountTransaction is a bank transaction normalized by a provider.
// DateTime and Amount carry identity; the remaining fields are descriptive.
type AccountTransaction struct {
	DateTime time.Time       // effective local time, in the bank's zone
	Amount   decimal.Decimal // major units, negative = debit
	Payee    string
	Notes    string
	Cleared  bool   // false while pending/held
	Category string // provider-side category label, may be empty
	Transfer string // bank account id of the counterparty for transfers
}

// Compare orders transactions by date-time, then amount, then payee.
func Compare(a, b AccountTransaction) int {
	if c := a.DateTime.Compare(b.DateTime); c != 0 {
		return c
	}
	if c := a.Amount.Cmp(b.Amount); c != 0 {
		return c
	}
	return cmp.Compare(a.Payee, b.Payee)
}

// IsTransfer reports whether the provider flagged a counterparty account.
func (t AccountTransaction) IsTransfer() bool {
	return strings.TrimSpace(t.Transfer) != ""
}

var hundred = decimal.NewFromInt(100)

// MinorUnits converts Amount to cents by multiplying by 100 and truncating.
// Provider amounts carry at most two decimal places.
func (t AccountTransaction) MinorUnits() int64 {
	return t.Amount.Mul(hundred).Truncate(0).IntPart()
}
