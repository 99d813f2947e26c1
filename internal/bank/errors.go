package bank

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/cleared-dev/banksync/internal/paginate"
)

// Reason classifies a provider failure.
type Reason string

const (
	ReasonAccountNotFound Reason = "AccountNotFound"
	ReasonUnauthorized    Reason = "Unauthorized"
	ReasonUnknown         Reason = "Unknown"
)

// Error is returned by every provider call that fails.
type Error struct {
	Reason Reason
	Bank   string
	Err    error
}

// NewError wraps err with a reason.
func NewError(bankName string, reason Reason, err error) *Error {
	return &Error{Reason: reason, Bank: bankName, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Bank, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %v", e.Bank, e.Reason, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsReason reports whether err is a bank Error with the given reason.
func IsReason(err error, reason Reason) bool {
	var be *Error
	return errors.As(err, &be) && be.Reason == reason
}

// FromHTTP classifies a transport error: 401/403 become Unauthorized,
// everything else Unknown. Errors already classified pass through.
func FromHTTP(bankName string, err error) error {
	if err == nil {
		return nil
	}
	var be *Error
	if errors.As(err, &be) {
		return err
	}
	switch paginate.StatusCode(err) {
	case http.StatusUnauthorized, http.StatusForbidden:
		return NewError(bankName, ReasonUnauthorized, err)
	default:
		return NewError(bankName, ReasonUnknown, err)
	}
}
