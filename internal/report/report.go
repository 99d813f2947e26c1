// Package report appends a per-account summary of each sync run to a CSV
// file, so degraded or partially failed runs leave a trace.
package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Row is one account's outcome in one run.
type Row struct {
	Timestamp     time.Time
	RunID         string
	Bank          string
	LedgerAccount string
	BankAccount   string
	Fetched       int
	Inserted      int
	Updated       int
	Unchanged     int
	FailedUpdates int
	Warning       string
}

// Header is the CSV header row.
const Header = "timestamp,run_id,bank,ledger_account,bank_account,fetched,inserted,updated,unchanged,failed_updates,warning"

const (
	numFields        = 11
	colTimestamp     = 0
	colRunID         = 1
	colBank          = 2
	colLedgerAccount = 3
	colBankAccount   = 4
	colFetched       = 5
	colInserted      = 6
	colUpdated       = 7
	colUnchanged     = 8
	colFailed        = 9
	colWarning       = 10
)

// MarshalRow converts a Row to CSV fields.
func MarshalRow(r Row) []string {
	rec := make([]string, numFields)
	rec[colTimestamp] = r.Timestamp.Format(time.RFC3339)
	rec[colRunID] = r.RunID
	rec[colBank] = r.Bank
	rec[colLedgerAccount] = r.LedgerAccount
	rec[colBankAccount] = r.BankAccount
	rec[colFetched] = strconv.Itoa(r.Fetched)
	rec[colInserted] = strconv.Itoa(r.Inserted)
	rec[colUpdated] = strconv.Itoa(r.Updated)
	rec[colUnchanged] = strconv.Itoa(r.Unchanged)
	rec[colFailed] = strconv.Itoa(r.FailedUpdates)
	rec[colWarning] = r.Warning
	return rec
}

// UnmarshalRow converts CSV fields to a Row.
func UnmarshalRow(rec []string) (Row, error) {
	if len(rec) != numFields {
		return Row{}, fmt.Errorf("expected %d fields, got %d", numFields, len(rec))
	}

	ts, err := time.Parse(time.RFC3339, rec[colTimestamp])
	if err != nil {
		return Row{}, fmt.Errorf("parsing timestamp %q: %w", rec[colTimestamp], err)
	}

	r := Row{
		Timestamp:     ts,
		RunID:         rec[colRunID],
		Bank:          rec[colBank],
		LedgerAccount: rec[colLedgerAccount],
		BankAccount:   rec[colBankAccount],
		Warning:       rec[colWarning],
	}
	counts := []struct {
		col int
		dst *int
	}{
		{colFetched, &r.Fetched},
		{colInserted, &r.Inserted},
		{colUpdated, &r.Updated},
		{colUnchanged, &r.Unchanged},
		{colFailed, &r.FailedUpdates},
	}
	for _, c := range counts {
		n, err := strconv.Atoi(rec[c.col])
		if err != nil {
			return Row{}, fmt.Errorf("parsing count %q: %w", rec[c.col], err)
		}
		*c.dst = n
	}
	return r, nil
}

// Append writes rows to path, creating the file, its directory and the
// header if needed.
func Append(path string, rows []Row) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating report dir: %w", err)
		}
	}

	needsHeader := false
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		needsHeader = true
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening run report: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if needsHeader {
		if err := cw.Write(strings.Split(Header, ",")); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
	}
	for i, r := range rows {
		if err := cw.Write(MarshalRow(r)); err != nil {
			return fmt.Errorf("writing row %d: %w", i, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return f.Close()
}

// Read returns every row in path, or nil if it does not exist.
func Read(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening run report: %w", err)
	}
	defer f.Close()

	return readRows(f)
}

func readRows(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading run report CSV: %w", err)
	}

	if len(records) <= 1 {
		return nil, nil
	}

	var rows []Row
	for i, rec := range records[1:] {
		row, err := UnmarshalRow(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}
