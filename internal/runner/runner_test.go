package runner

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/banksync/internal/bank"
	"github.com/cleared-dev/banksync/internal/config"
	"github.com/cleared-dev/banksync/internal/ledger"
	"github.com/cleared-dev/banksync/internal/model"
	"github.com/cleared-dev/banksync/internal/report"
)

type fakeSession struct {
	mu        sync.Mutex
	seen      map[string]ledger.Transaction
	imports   map[string][]model.ImportRecord
	updates   []string
	payees    []ledger.Payee
	closed    bool
	payeesErr error
	importErr error
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		seen:    make(map[string]ledger.Transaction),
		imports: make(map[string][]model.ImportRecord),
		payees:  []ledger.Payee{{ID: "p-savings", Name: "Savings", TransferAccount: "actual-savings"}},
	}
}

func (f *fakeSession) Categories(context.Context) ([]ledger.Category, error) {
	return []ledger.Category{{ID: "c-groceries", Name: "Groceries"}}, nil
}

func (f *fakeSession) Payees(context.Context) ([]ledger.Payee, error) {
	return f.payees, f.payeesErr
}

func (f *fakeSession) FindImported(_ context.Context, ids []string) (map[string]ledger.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]ledger.Transaction)
	for _, id := range ids {
		if txn, ok := f.seen[id]; ok {
			out[id] = txn
		}
	}
	return out, nil
}

func (f *fakeSession) ImportTransactions(_ context.Context, accountID string, records []model.ImportRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.importErr != nil {
		return f.importErr
	}
	f.imports[accountID] = append(f.imports[accountID], records...)
	for _, r := range records {
		f.seen[r.ImportedID] = ledger.Transaction{ID: "id-" + r.ImportedID, ImportedID: r.ImportedID, Account: accountID, Cleared: r.Cleared}
	}
	return nil
}

func (f *fakeSession) UpdateTransaction(_ context.Context, id string, _ ledger.Update) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, id)
	return nil
}

func (f *fakeSession) Close(context.Context) error {
	f.closed = true
	return nil
}

type fakeBank struct {
	txns     map[string][]model.AccountTransaction
	degraded map[string]string
	closed   bool
}

func (b *fakeBank) ExportAccount(_ context.Context, id string) ([]model.AccountTransaction, error) {
	txns, ok := b.txns[id]
	if !ok {
		return nil, bank.NewError("fake", bank.ReasonAccountNotFound, nil)
	}
	return txns, nil
}

func (b *fakeBank) Degraded(id string) string { return b.degraded[id] }

func (b *fakeBank) Close() error {
	b.closed = true
	return nil
}

var day = time.Date(2024, 12, 3, 9, 0, 0, 0, time.UTC)

func testBank() *fakeBank {
	return &fakeBank{txns: map[string][]model.AccountTransaction{
		"checking": {
			{DateTime: day, Amount: decimal.RequireFromString("-12.30"), Payee: "Countdown", Category: "Groceries"},
			{DateTime: day.Add(time.Hour), Amount: decimal.RequireFromString("-100"), Payee: "To savings", Transfer: "savings", Cleared: true},
		},
		"savings": {
			{DateTime: day.Add(time.Hour), Amount: decimal.RequireFromString("100"), Payee: "From checking", Cleared: true},
		},
	}}
}

func testOptions(t *testing.T, session *fakeSession, b *fakeBank) Options {
	t.Helper()
	cfg := config.Default()
	cfg.Bank = "fake"
	cfg.Categorize = true
	cfg.Accounts = []model.AccountMapping{
		{LedgerAccountID: "actual-checking", BankAccountID: "checking"},
		{LedgerAccountID: "actual-savings", BankAccountID: "savings"},
	}
	reg := bank.NewRegistry()
	reg.Register("fake", func(context.Context, *config.Config, zerolog.Logger) (bank.Provider, error) {
		return b, nil
	})
	return Options{
		Config:   cfg,
		Registry: reg,
		OpenLedger: func(context.Context, *config.Config, zerolog.Logger) (Session, error) {
			return session, nil
		},
		now:   func() time.Time { return day },
		runID: func() string { return "run-1" },
	}
}

func TestRun(t *testing.T) {
	session := newFakeSession()
	b := testBank()

	summary, err := Run(context.Background(), testOptions(t, session, b))
	require.NoError(t, err)

	assert.Equal(t, "run-1", summary.RunID)
	require.Len(t, summary.Accounts, 2)
	assert.Equal(t, 2, summary.Accounts[0].Fetched)
	assert.Equal(t, 2, summary.Accounts[0].Inserted)
	assert.Equal(t, 1, summary.Accounts[1].Inserted)

	checking := session.imports["actual-checking"]
	require.Len(t, checking, 2)
	assert.Equal(t, "c-groceries", checking[0].Category)
	assert.Equal(t, "Countdown", checking[0].PayeeName)
	assert.Equal(t, "p-savings", checking[1].Payee)
	assert.Empty(t, checking[1].PayeeName)
	assert.Equal(t, int64(-10000), checking[1].Amount)

	assert.True(t, session.closed)
	assert.True(t, b.closed)
}

func TestRun_SecondRunIsIdempotent(t *testing.T) {
	session := newFakeSession()

	_, err := Run(context.Background(), testOptions(t, session, testBank()))
	require.NoError(t, err)
	summary, err := Run(context.Background(), testOptions(t, session, testBank()))
	require.NoError(t, err)

	for _, a := range summary.Accounts {
		assert.Zero(t, a.Inserted, a.Mapping.String())
	}
	assert.Len(t, session.imports["actual-checking"], 2)
}

func TestRun_PendingClears(t *testing.T) {
	session := newFakeSession()
	b := testBank()
	_, err := Run(context.Background(), testOptions(t, session, b))
	require.NoError(t, err)

	b.txns["checking"][0].Cleared = true
	summary, err := Run(context.Background(), testOptions(t, session, b))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Accounts[0].Updated)
	assert.Len(t, session.updates, 1)
}

func TestRun_DegradedAccountIsReported(t *testing.T) {
	session := newFakeSession()
	b := testBank()
	b.txns["savings"] = nil
	b.degraded = map[string]string{"savings": "refresh did not advance"}
	opts := testOptions(t, session, b)
	opts.Config.Report.Path = filepath.Join(t.TempDir(), "runs.csv")

	summary, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"savings: refresh did not advance"}, summary.Warnings())

	rows, err := report.Read(opts.Config.Report.Path)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "run-1", rows[1].RunID)
	assert.Equal(t, "fake", rows[1].Bank)
	assert.Equal(t, "savings", rows[1].BankAccount)
	assert.Equal(t, "refresh did not advance", rows[1].Warning)
	assert.Empty(t, rows[0].Warning)
}

func TestRun_AccountNotFoundIsFatal(t *testing.T) {
	session := newFakeSession()
	b := testBank()
	delete(b.txns, "savings")

	_, err := Run(context.Background(), testOptions(t, session, b))
	require.Error(t, err)
	assert.True(t, bank.IsReason(err, bank.ReasonAccountNotFound))
	assert.Empty(t, session.imports, "nothing is imported when an export fails")
	assert.True(t, session.closed)
	assert.True(t, b.closed)
}

func TestRun_UnknownBank(t *testing.T) {
	opts := testOptions(t, newFakeSession(), testBank())
	opts.Config.Bank = "nope"

	_, err := Run(context.Background(), opts)
	assert.ErrorContains(t, err, `unknown bank "nope" (available: fake)`)
}

func TestRun_LedgerOpenFailure(t *testing.T) {
	b := testBank()
	opts := testOptions(t, nil, b)
	opts.OpenLedger = func(context.Context, *config.Config, zerolog.Logger) (Session, error) {
		return nil, errors.New("server unreachable")
	}

	_, err := Run(context.Background(), opts)
	assert.ErrorContains(t, err, "opening ledger: server unreachable")
	assert.False(t, b.closed, "provider is not started")
}

func TestRun_ClosesLedgerOnFailure(t *testing.T) {
	session := newFakeSession()
	session.payeesErr = errors.New("boom")

	_, err := Run(context.Background(), testOptions(t, session, testBank()))
	assert.ErrorContains(t, err, "loading payees")
	assert.True(t, session.closed)
}

func TestRun_DryRun(t *testing.T) {
	session := newFakeSession()
	opts := testOptions(t, session, testBank())
	opts.DryRun = true

	summary, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.True(t, summary.DryRun)
	assert.Equal(t, 2, summary.Accounts[0].Inserted)
	assert.Empty(t, session.imports)
}

func TestRun_ImportFailureStillReportsAccount(t *testing.T) {
	session := newFakeSession()
	b := testBank()
	_, err := Run(context.Background(), testOptions(t, session, b))
	require.NoError(t, err)

	b.txns["checking"][0].Cleared = true
	b.txns["checking"] = append(b.txns["checking"], model.AccountTransaction{
		DateTime: day.Add(2 * time.Hour), Amount: decimal.RequireFromString("-5"), Payee: "Coffee",
	})
	session.importErr = errors.New("ledger down")
	opts := testOptions(t, session, b)
	opts.Config.Report.Path = filepath.Join(t.TempDir(), "runs.csv")

	summary, err := Run(context.Background(), opts)
	require.ErrorContains(t, err, "ledger down")
	assert.Equal(t, 1, summary.Accounts[0].Updated)

	rows, err := report.Read(opts.Config.Report.Path)
	require.NoError(t, err)
	require.Len(t, rows, 1, "reconciliation stops at the failed account")
	assert.Equal(t, "actual-checking", rows[0].LedgerAccount)
	assert.Equal(t, 1, rows[0].Updated)
	assert.Zero(t, rows[0].Inserted)
}
