// Package bank defines the capability every bank provider implements.
package bank

import (
	"context"
	"io"
	"time"

	"github.com/cleared-dev/banksync/internal/model"
)

// Bank exports recent transactions for one bank account.
type Bank interface {
	ExportAccount(ctx context.Context, accountID string) ([]model.AccountTransaction, error)
}

// Provider is a Bank that owns resources (HTTP pools, browsers) for the
// duration of a run. Close releases them and is safe to call once.
type Provider interface {
	Bank
	io.Closer
}

// Degraded is implemented by providers that may return incomplete data
// without failing. Reason reports why the named account's export is
// incomplete, or "" when it is not.
type Degraded interface {
	Degraded(accountID string) string
}

// DegradedReason returns b's degradation reason for accountID, if any.
func DegradedReason(b Bank, accountID string) string {
	if d, ok := b.(Degraded); ok {
		return d.Degraded(accountID)
	}
	return ""
}

// NopCloser wraps a Bank that holds no resources.
func NopCloser(b Bank) Provider {
	return nopCloser{b}
}

type nopCloser struct{ Bank }

func (nopCloser) Close() error { return nil }

var _ io.Closer = nopCloser{}

// Lookback is how many days of history each export covers.
const Lookback = 30

// WindowStart returns the start of the export window ending at now.
func WindowStart(now time.Time) time.Time {
	return now.AddDate(0, 0, -Lookback)
}
