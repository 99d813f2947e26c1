// Package csvfile exports transactions from statement files downloaded by
// hand, for banks with no usable API. Each account reads
// <dir>/<account id>.csv in the Chase checking export layout.
package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/cleared-dev/banksync/internal/bank"
	"github.com/cleared-dev/banksync/internal/config"
	"github.com/cleared-dev/banksync/internal/logger"
	"github.com/cleared-dev/banksync/internal/model"
)

// Name identifies the provider in configuration.
const Name = "csvfile"

const (
	chaseDateFormat = "01/02/2006"
	chaseNumFields  = 7
	chaseColDate    = 1
	chaseColDesc    = 2
	chaseColAmount  = 3
	chaseColCheck   = 6
)

// Provider implements bank.Bank over a directory of CSV exports.
type Provider struct {
	dir string
	now func() time.Time
	log zerolog.Logger
}

// New creates a Provider reading from dir.
func New(dir string, log zerolog.Logger) *Provider {
	return &Provider{dir: dir, now: time.Now, log: logger.Service(log, "bank/csvfile")}
}

// Factory builds the provider from configuration.
func Factory(_ context.Context, cfg *config.Config, log zerolog.Logger) (bank.Provider, error) {
	if cfg.CSVFile.Dir == "" {
		return nil, bank.NewError(Name, bank.ReasonUnknown, errors.New("csvfile.dir is not set"))
	}
	return bank.NopCloser(New(cfg.CSVFile.Dir, log)), nil
}

// Path returns the file read for accountID.
func (p *Provider) Path(accountID string) string {
	return filepath.Join(p.dir, accountID+".csv")
}

// ExportAccount returns the file's rows posted within the last 30 days.
// Statement rows have already posted, so every transaction is cleared.
func (p *Provider) ExportAccount(_ context.Context, accountID string) ([]model.AccountTransaction, error) {
	if filepath.Base(accountID) != accountID {
		return nil, bank.NewError(Name, bank.ReasonAccountNotFound, fmt.Errorf("invalid account id %q", accountID))
	}
	f, err := os.Open(p.Path(accountID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, bank.NewError(Name, bank.ReasonAccountNotFound, err)
		}
		return nil, bank.NewError(Name, bank.ReasonUnknown, err)
	}
	defer f.Close()

	txns, err := ParseChase(f)
	if err != nil {
		return nil, bank.NewError(Name, bank.ReasonUnknown, fmt.Errorf("%s: %w", f.Name(), err))
	}

	start := bank.WindowStart(p.now())
	out := txns[:0]
	for _, txn := range txns {
		if txn.DateTime.Before(start) {
			continue
		}
		out = append(out, txn)
	}
	p.log.Debug().Str("account", accountID).Int("count", len(out)).Int("rows", len(txns)).Msg("exported account")
	return out, nil
}

// ParseChase reads a Chase checking CSV. Posting dates become midnight UTC.
func ParseChase(r io.Reader) ([]model.AccountTransaction, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = chaseNumFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading chase CSV: %w", err)
	}

	if len(records) <= 1 {
		return nil, nil
	}

	var txns []model.AccountTransaction
	for i, rec := range records[1:] {
		txn, err := parseChaseRow(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		txns = append(txns, txn)
	}
	return txns, nil
}

func parseChaseRow(rec []string) (model.AccountTransaction, error) {
	date, err := time.Parse(chaseDateFormat, rec[chaseColDate])
	if err != nil {
		return model.AccountTransaction{}, fmt.Errorf("parsing date %q: %w", rec[chaseColDate], err)
	}

	amount, err := decimal.NewFromString(rec[chaseColAmount])
	if err != nil {
		return model.AccountTransaction{}, fmt.Errorf("parsing amount %q: %w", rec[chaseColAmount], err)
	}

	txn := model.AccountTransaction{
		DateTime: date,
		Amount:   amount,
		Payee:    rec[chaseColDesc],
		Cleared:  true,
	}
	if check := rec[chaseColCheck]; check != "" {
		txn.Notes = "Check #" + check
	}
	return txn, nil
}
