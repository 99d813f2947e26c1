package bnz

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/banksync/internal/model"
)

// StatusPosted marks a settled transaction. Anything else is pending.
const StatusPosted = "POSTED"

// HomeCurrency is the only currency whose pending amounts are trusted.
const HomeCurrency = "NZD"

// Account is an entry in the internet banking account list.
type Account struct {
	ID            string `json:"id"`
	Nickname      string `json:"nickname"`
	Type          string `json:"type"`
	ProductCode   string `json:"productCode"`
	BankCode      string `json:"bankCode"`
	BranchCode    string `json:"branchCode"`
	AccountNumber string `json:"accountNumber"`
	Suffix        string `json:"suffix"`
}

type accountList struct {
	AccountCount int       `json:"accountCount"`
	AccountList  []Account `json:"accountList"`
}

// Details are the particulars, code and reference printed on a statement.
type Details struct {
	Particulars string `json:"particulars,omitempty"`
	Code        string `json:"code,omitempty"`
	Reference   string `json:"reference,omitempty"`
}

// Value is an amount in a named currency, as a decimal string.
type Value struct {
	Currency string `json:"currency"`
	Amount   string `json:"amount"`
}

// Transaction is one row from the transactions endpoint. Timestamp is wall
// clock time in the bank's home zone with no offset.
type Transaction struct {
	ID          string `json:"id"`
	ThisAccount struct {
		AccountHash string  `json:"accountHash"`
		Details     Details `json:"details"`
	} `json:"thisAccount"`
	OtherAccount struct {
		AccountNumber string `json:"accountNumber,omitempty"`
		Holder        struct {
			Name string `json:"name,omitempty"`
		} `json:"holder"`
		Details Details `json:"details"`
	} `json:"otherAccount"`
	Timestamp string `json:"timestamp"`
	Status    struct {
		Code      string `json:"code"`
		Timestamp string `json:"timestamp,omitempty"`
	} `json:"status"`
	Value          Value `json:"value"`
	RunningBalance Value `json:"runningBalance"`
	Type           struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"type"`
	Channel string `json:"channel,omitempty"`
}

type transactionList struct {
	Transactions []Transaction `json:"transactions"`
}

// Pending reports whether t has not yet posted.
func (t Transaction) Pending() bool {
	return t.Status.Code != StatusPosted
}

// PendingForeign reports whether t is pending in a foreign currency. Its
// amount may change when it settles.
func (t Transaction) PendingForeign() bool {
	return t.Pending() && t.Value.Currency != HomeCurrency
}

// Memo joins the non-empty statement details.
func (t Transaction) Memo() string {
	d := t.ThisAccount.Details
	parts := make([]string, 0, 3)
	for _, s := range []string{d.Particulars, d.Reference, d.Code} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// Payee is the other party's name, falling back to the particulars and then
// the transaction type.
func (t Transaction) Payee() string {
	if t.OtherAccount.Holder.Name != "" {
		return t.OtherAccount.Holder.Name
	}
	if t.ThisAccount.Details.Particulars != "" {
		return t.ThisAccount.Details.Particulars
	}
	return t.Type.Description
}

var timestampLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	time.DateOnly,
}

// Time interprets the timestamp as wall clock time in loc.
func (t Transaction) Time(loc *time.Location) (time.Time, error) {
	ts := strings.TrimSuffix(t.Timestamp, "Z")
	for _, layout := range timestampLayouts {
		if parsed, err := time.ParseInLocation(layout, ts, loc); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("transaction %s: unrecognised timestamp %q", t.ID, t.Timestamp)
}

// AccountTransaction normalizes t into loc.
func (t Transaction) AccountTransaction(loc *time.Location) (model.AccountTransaction, error) {
	when, err := t.Time(loc)
	if err != nil {
		return model.AccountTransaction{}, err
	}
	amount, err := decimal.NewFromString(t.Value.Amount)
	if err != nil {
		return model.AccountTransaction{}, fmt.Errorf("transaction %s: parsing amount %q: %w", t.ID, t.Value.Amount, err)
	}
	return model.AccountTransaction{
		DateTime: when,
		Amount:   amount,
		Payee:    t.Payee(),
		Notes:    t.Memo(),
		Cleared:  !t.Pending(),
	}, nil
}
