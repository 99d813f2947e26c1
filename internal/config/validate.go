package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError describes one configuration problem.
type ValidationError struct {
	Field       string
	Description string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Description)
}

// Validate checks everything a sync run needs and reports every problem.
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Description: fmt.Sprintf(format, args...)})
	}

	if c.Bank == "" {
		add("bank", "required")
	}
	if len(c.Accounts) == 0 {
		add("accounts", "at least one ledger=bank mapping is required")
	}
	seenLedger := make(map[string]bool)
	seenBank := make(map[string]bool)
	for i, m := range c.Accounts {
		field := fmt.Sprintf("accounts[%d]", i)
		if m.LedgerAccountID == "" || m.BankAccountID == "" {
			add(field, "both ledger and bank ids are required")
			continue
		}
		if seenLedger[m.LedgerAccountID] {
			add(field, "ledger account %q mapped twice", m.LedgerAccountID)
		}
		if seenBank[m.BankAccountID] {
			add(field, "bank account %q mapped twice", m.BankAccountID)
		}
		seenLedger[m.LedgerAccountID] = true
		seenBank[m.BankAccountID] = true
	}

	if u, err := url.Parse(c.Ledger.ServerURL); err != nil || u.Scheme == "" || u.Host == "" {
		add("ledger.server_url", "must be an absolute URL, got %q", c.Ledger.ServerURL)
	}
	if c.Ledger.SyncID == "" {
		add("ledger.sync_id", "required (ACTUAL_SYNC_ID)")
	}
	if c.Ledger.Password == "" {
		add("ledger.password", "required (ACTUAL_PASSWORD)")
	}

	switch strings.ToLower(c.Bank) {
	case "up":
		if c.Up.UserToken == "" {
			add("up.user_token", "required (UP_USER_TOKEN)")
		}
	case "akahu":
		if c.Akahu.AppToken == "" {
			add("akahu.app_token", "required (AKAHU_APP_TOKEN)")
		}
		if c.Akahu.UserToken == "" {
			add("akahu.user_token", "required (AKAHU_USER_TOKEN)")
		}
	case "bnz":
		if c.Bnz.AccessNumber == "" {
			add("bnz.access_number", "required (BNZ_ACCESS_NUMBER)")
		}
		if c.Bnz.Password == "" {
			add("bnz.password", "required (BNZ_PASSWORD)")
		}
	case "csvfile":
		if c.CSVFile.Dir == "" {
			add("csvfile.dir", "required")
		}
	}
	return errs
}
