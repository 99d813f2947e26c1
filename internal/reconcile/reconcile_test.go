package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/banksync/internal/ledger"
	"github.com/cleared-dev/banksync/internal/model"
)

// memLedger is an in-memory ledger that assigns ids on import.
type memLedger struct {
	mu        sync.Mutex
	byImport  map[string]ledger.Transaction
	imports   [][]model.ImportRecord
	updates   map[string]ledger.Update
	failIDs   map[string]error
	importErr error
	findErr   error
}

func newMemLedger() *memLedger {
	return &memLedger{
		byImport: make(map[string]ledger.Transaction),
		updates:  make(map[string]ledger.Update),
		failIDs:  make(map[string]error),
	}
}

func (m *memLedger) Categories(context.Context) ([]ledger.Category, error) { return nil, nil }

func (m *memLedger) Payees(context.Context) ([]ledger.Payee, error) { return nil, nil }

func (m *memLedger) FindImported(_ context.Context, ids []string) (map[string]ledger.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	out := make(map[string]ledger.Transaction)
	for _, id := range ids {
		if txn, ok := m.byImport[id]; ok {
			out[id] = txn
		}
	}
	return out, nil
}

func (m *memLedger) ImportTransactions(_ context.Context, accountID string, records []model.ImportRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.importErr != nil {
		return m.importErr
	}
	m.imports = append(m.imports, records)
	for _, rec := range records {
		m.byImport[rec.ImportedID] = ledger.Transaction{
			ID:         "txn-" + rec.ImportedID,
			ImportedID: rec.ImportedID,
			Account:    accountID,
			Amount:     rec.Amount,
			Cleared:    rec.Cleared,
		}
	}
	return nil
}

func (m *memLedger) UpdateTransaction(_ context.Context, id string, u ledger.Update) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failIDs[id]; err != nil {
		return err
	}
	m.updates[id] = u
	for key, txn := range m.byImport {
		if txn.ID == id {
			txn.Cleared = u.Cleared
			txn.Amount = u.Amount
			m.byImport[key] = txn
		}
	}
	return nil
}

func (m *memLedger) seed(accountID string, txns ...ledger.Transaction) {
	for _, txn := range txns {
		txn.Account = accountID
		m.byImport[txn.ImportedID] = txn
	}
}

func newEngine(l ledger.Ledger) *Engine {
	return New(l, Options{Log: zerolog.Nop()})
}

func rec(id string, amount int64, cleared bool) model.ImportRecord {
	return model.ImportRecord{ImportedID: id, Date: "2024-06-01", PayeeName: "x", Amount: amount, Cleared: cleared}
}

func TestPartition(t *testing.T) {
	existing := map[string]ledger.Transaction{
		"a-1": {ID: "1", ImportedID: "a-1", Cleared: false},
		"b-1": {ID: "2", ImportedID: "b-1", Cleared: true},
		"c-1": {ID: "3", ImportedID: "c-1", Cleared: false},
		"d-1": {ID: "4", ImportedID: "d-1", Cleared: false, Tombstone: true},
	}
	records := []model.ImportRecord{
		rec("a-1", -100, true),  // clears
		rec("b-1", -100, true),  // already cleared
		rec("c-1", -100, false), // still pending
		rec("d-1", -100, false), // deleted, still seen
		rec("e-1", -100, false), // new
	}

	plan := Partition(records, existing)

	require.Len(t, plan.New, 1)
	assert.Equal(t, "e-1", plan.New[0].ImportedID)
	require.Len(t, plan.Updates, 1)
	assert.Equal(t, "1", plan.Updates[0].ID)
	assert.Equal(t, 3, plan.Unchanged)
}

func TestAccount_ImportsNewInOneBatch(t *testing.T) {
	l := newMemLedger()
	records := []model.ImportRecord{rec("a-1", 1, false), rec("b-1", 2, true)}

	res, err := newEngine(l).Account(context.Background(), "acct", records)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Inserted)
	require.Len(t, l.imports, 1)
	assert.Equal(t, records, l.imports[0])
}

func TestAccount_Idempotent(t *testing.T) {
	l := newMemLedger()
	records := []model.ImportRecord{rec("a-1", 1, false), rec("b-1", 2, true)}
	e := newEngine(l)

	_, err := e.Account(context.Background(), "acct", records)
	require.NoError(t, err)
	res, err := e.Account(context.Background(), "acct", records)
	require.NoError(t, err)

	assert.Len(t, l.imports, 1, "second run imports nothing")
	assert.Zero(t, res.Inserted)
	assert.Equal(t, 2, res.Unchanged)
	assert.Empty(t, l.updates)
}

func TestAccount_ClearedTransitionUpdatesOnce(t *testing.T) {
	l := newMemLedger()
	e := newEngine(l)

	_, err := e.Account(context.Background(), "acct", []model.ImportRecord{rec("a-1", -450, false)})
	require.NoError(t, err)

	res, err := e.Account(context.Background(), "acct", []model.ImportRecord{rec("a-1", -475, true)})
	require.NoError(t, err)

	assert.Len(t, l.imports, 1, "no duplicate import")
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, map[string]ledger.Update{"txn-a-1": {Cleared: true, Amount: -475}}, l.updates)

	res, err = e.Account(context.Background(), "acct", []model.ImportRecord{rec("a-1", -475, true)})
	require.NoError(t, err)
	assert.Zero(t, res.Updated)
	assert.Equal(t, 1, res.Unchanged)
}

func TestAccount_UpdateFailuresAreIsolated(t *testing.T) {
	l := newMemLedger()
	l.seed("acct",
		ledger.Transaction{ID: "1", ImportedID: "a-1"},
		ledger.Transaction{ID: "2", ImportedID: "b-1"},
		ledger.Transaction{ID: "3", ImportedID: "c-1"},
	)
	boom := errors.New("boom")
	l.failIDs["2"] = boom

	res, err := newEngine(l).Account(context.Background(), "acct", []model.ImportRecord{
		rec("a-1", 1, true), rec("b-1", 2, true), rec("c-1", 3, true), rec("d-1", 4, true),
	})
	require.NoError(t, err, "update failures are not fatal")

	assert.Equal(t, 2, res.Updated)
	assert.Equal(t, 1, res.Inserted)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "2", res.Failed[0].ID)
	assert.Equal(t, "b-1", res.Failed[0].ImportedID)
	assert.ErrorIs(t, res.Err(), boom)
	assert.Contains(t, l.updates, "1")
	assert.Contains(t, l.updates, "3")
}

func TestAccount_NoImportCallWhenNothingNew(t *testing.T) {
	l := newMemLedger()
	l.seed("acct", ledger.Transaction{ID: "1", ImportedID: "a-1", Cleared: true})

	res, err := newEngine(l).Account(context.Background(), "acct", []model.ImportRecord{rec("a-1", 1, true)})
	require.NoError(t, err)
	assert.Empty(t, l.imports)
	assert.NoError(t, res.Err())
}

func TestAccount_ImportFailureIsFatal(t *testing.T) {
	l := newMemLedger()
	l.seed("acct", ledger.Transaction{ID: "1", ImportedID: "a-1"})
	l.importErr = errors.New("ledger down")

	res, err := newEngine(l).Account(context.Background(), "acct", []model.ImportRecord{rec("a-1", 1, true), rec("b-1", 1, true)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "importing 1 transactions into acct")
	assert.Zero(t, res.Inserted)
	assert.Equal(t, 1, res.Updated, "updates still complete")
}

func TestAccount_FindFailureIsFatal(t *testing.T) {
	l := newMemLedger()
	l.findErr = errors.New("nope")

	_, err := newEngine(l).Account(context.Background(), "acct", []model.ImportRecord{rec("a-1", 1, true)})
	require.Error(t, err)
	assert.Empty(t, l.imports)
}

func TestAccount_DryRun(t *testing.T) {
	l := newMemLedger()
	l.seed("acct", ledger.Transaction{ID: "1", ImportedID: "a-1"})
	e := New(l, Options{DryRun: true, Log: zerolog.Nop()})

	res, err := e.Account(context.Background(), "acct", []model.ImportRecord{rec("a-1", 1, true), rec("b-1", 1, false)})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 1, res.Updated)
	assert.Empty(t, l.imports)
	assert.Empty(t, l.updates)
}

func TestRun_SequentialAndStopsOnFatal(t *testing.T) {
	l := newMemLedger()
	e := newEngine(l)

	results, err := e.Run(context.Background(), []Batch{
		{LedgerAccountID: "checking", Records: []model.ImportRecord{rec("a-1", 1, false)}},
		{LedgerAccountID: "savings", Records: []model.ImportRecord{rec("b-1", 1, false)}},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "checking", results[0].LedgerAccountID)
	assert.Equal(t, "savings", results[1].LedgerAccountID)
	require.Len(t, l.imports, 2)
	assert.Equal(t, "a-1", l.imports[0][0].ImportedID)

	l.findErr = errors.New("gone")
	results, err = e.Run(context.Background(), []Batch{{LedgerAccountID: "checking"}, {LedgerAccountID: "savings"}})
	require.Error(t, err)
	require.Len(t, results, 1, "stops after the failing account")
	assert.Equal(t, "checking", results[0].LedgerAccountID)
}

func TestRun_KeepsCountsOfFailedAccount(t *testing.T) {
	l := newMemLedger()
	l.seed("checking", ledger.Transaction{ID: "1", ImportedID: "a-1"}, ledger.Transaction{ID: "2", ImportedID: "b-1"})
	l.failIDs["2"] = errors.New("locked")
	l.importErr = errors.New("ledger down")

	results, err := newEngine(l).Run(context.Background(), []Batch{
		{LedgerAccountID: "checking", Records: []model.ImportRecord{rec("a-1", 1, true), rec("b-1", 1, true), rec("c-1", 1, false)}},
		{LedgerAccountID: "savings", Records: []model.ImportRecord{rec("d-1", 1, false)}},
	})
	require.Error(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].Updated)
	require.Len(t, results[0].Failed, 1)
	assert.Equal(t, "b-1", results[0].Failed[0].ImportedID)
	assert.Zero(t, results[0].Inserted)
}
