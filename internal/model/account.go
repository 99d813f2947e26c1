package model

import (
	"fmt"
	"strings"
)

// AccountMapping pairs a ledger account with the bank account feeding it.
type AccountMapping struct {
	LedgerAccountID string `yaml:"ledger"`
	BankAccountID   string `yaml:"bank"`
}

// ParseAccountMapping parses "ledger-account-id=bank-account-id".
func ParseAccountMapping(s string) (AccountMapping, error) {
	ledgerID, bankID, ok := strings.Cut(s, "=")
	ledgerID = strings.TrimSpace(ledgerID)
	bankID = strings.TrimSpace(bankID)
	if !ok || ledgerID == "" || bankID == "" {
		return AccountMapping{}, fmt.Errorf("invalid account mapping %q: want ledger-account-id=bank-account-id", s)
	}
	return AccountMapping{LedgerAccountID: ledgerID, BankAccountID: bankID}, nil
}

func (m AccountMapping) String() string {
	return m.LedgerAccountID + "=" + m.BankAccountID
}
