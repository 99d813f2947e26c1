// Package importid derives the stable identifiers the ledger uses to
// recognise transactions it has already imported.
package importid

import (
	"fmt"
	"strconv"
	"time"

	"github.com/cleared-dev/banksync/internal/model"
)

const dateFormat = "20060102"

// Key returns the collision key for a transaction: its UTC calendar date
// (YYYYMMDD) followed by its amount in minor units.
// Key(2021-01-01, 10050) -> "2021010110050"
func Key(dateTime time.Time, minorUnits int64) string {
	return dateTime.UTC().Format(dateFormat) + strconv.FormatInt(minorUnits, 10)
}

// Format returns an import id like "2021010110050-1".
func Format(key string, seq int) string {
	return fmt.Sprintf("%s-%d", key, seq)
}

// Assigner numbers transactions that share a key within one run.
// Create one per run and feed it transactions in their sorted order.
type Assigner struct {
	counts map[string]int
}

// NewAssigner returns an Assigner with no keys seen.
func NewAssigner() *Assigner {
	return &Assigner{counts: make(map[string]int)}
}

// Next returns the import id for txn.
func (a *Assigner) Next(txn model.AccountTransaction) string {
	key := Key(txn.DateTime, txn.MinorUnits())
	a.counts[key]++
	return Format(key, a.counts[key])
}
