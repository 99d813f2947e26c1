package akahu

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/banksync/internal/bank"
	"github.com/cleared-dev/banksync/internal/config"
	"github.com/cleared-dev/banksync/internal/retry"
)

var fixedNow = time.Date(2021, 1, 20, 0, 0, 0, 0, time.UTC)

// fakeAkahu serves accounts, refresh and transaction endpoints. Each refresh
// call moves the accounts' refresh time forward unless stuck is set.
type fakeAkahu struct {
	mu        sync.Mutex
	refreshed time.Time
	stuck     bool
	refreshes int
	txnCalls  int
	pending   string
	posted    string

	// accountsDown makes /accounts answer 503 once a refresh was requested.
	accountsDown bool
}

func (f *fakeAkahu) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.Header.Get("X-Akahu-Id") != "app_token" || r.Header.Get("Authorization") != "Bearer user_token" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/refresh":
		f.refreshes++
		if !f.stuck {
			f.refreshed = f.refreshed.Add(time.Minute)
		}
		_, _ = w.Write([]byte(`{"success":true}`))
	case r.URL.Path == "/accounts" && f.accountsDown && f.refreshes > 0:
		w.WriteHeader(http.StatusServiceUnavailable)
	case r.URL.Path == "/accounts":
		if r.URL.Query().Get("cursor") == "" {
			body, _ := json.Marshal(map[string]any{
				"success": true,
				"items": []map[string]any{
					{"_id": "acc_1", "name": "Everyday", "refreshed": map[string]any{"transactions": f.refreshed.Add(time.Hour)}},
				},
				"cursor": map[string]any{"next": "page2"},
			})
			_, _ = w.Write(body)
			return
		}
		body, _ := json.Marshal(map[string]any{
			"success": true,
			"items": []map[string]any{
				{"_id": "acc_2", "name": "Savings", "refreshed": map[string]any{"transactions": f.refreshed}},
			},
			"cursor": map[string]any{"next": nil},
		})
		_, _ = w.Write(body)
	case r.URL.Path == "/accounts/checking/transactions/pending":
		f.txnCalls++
		if r.URL.Query().Get("amount_as_number") != "true" || r.URL.Query().Get("start") != "2020-12-21T00:00:00Z" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"items":[` + f.pending + `]}`))
	case r.URL.Path == "/accounts/checking/transactions":
		f.txnCalls++
		if r.URL.Query().Get("start") != "2020-12-21T00:00:00Z" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"items":[` + f.posted + `],"cursor":{"next":null}}`))
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"success":false,"message":"Not found"}`))
	}
}

func newTestProvider(t *testing.T, fake *fakeAkahu) *Provider {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	p, err := New(srv.URL, "app_token", "user_token", zerolog.Nop())
	require.NoError(t, err)
	p.now = func() time.Time { return fixedNow }
	p.api.Retry = retry.Policy{Attempts: 5, Initial: time.Millisecond, Multiplier: 2}
	p.poll = retry.Policy{Attempts: 5, Initial: time.Millisecond, Multiplier: 2}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

const pendingJSON = `{"_user":"1","_account":"1","_connection":"1","date":"2021-01-01T00:00:00Z","description":"Pending transaction","amount":100.50}`

const postedJSON = `{"_id":"1","_user":"1","_account":"1","_connection":"1","date":"2021-01-02T00:00:00Z","description":"Transaction","amount":200.50}`

const enrichedJSON = `{"_id":"2","_user":"1","_account":"1","_connection":"1","date":"2021-01-03T11:30:00Z","description":"POS W/D COUNTDOWN","amount":-42.1,"merchant":{"name":"Countdown"},"category":{"_id":"cat_1","name":"Groceries"}}`

func TestExportAccount(t *testing.T) {
	fake := &fakeAkahu{refreshed: fixedNow.Add(-time.Hour), pending: pendingJSON, posted: postedJSON + "," + enrichedJSON}
	p := newTestProvider(t, fake)

	txns, err := p.ExportAccount(context.Background(), "checking")
	require.NoError(t, err)
	require.Len(t, txns, 3)

	pending := txns[0]
	assert.Equal(t, "Pending transaction", pending.Payee)
	assert.Empty(t, pending.Notes)
	assert.False(t, pending.Cleared)
	assert.True(t, pending.Amount.Equal(decimal.RequireFromString("100.50")))

	posted := txns[1]
	assert.Equal(t, "Transaction", posted.Payee)
	assert.Equal(t, "Transaction", posted.Notes)
	assert.True(t, posted.Cleared)
	assert.Empty(t, posted.Category)

	enriched := txns[2]
	assert.Equal(t, "Countdown", enriched.Payee)
	assert.Equal(t, "POS W/D COUNTDOWN", enriched.Notes)
	assert.Equal(t, "Groceries", enriched.Category)
	assert.Equal(t, "2021-01-04", enriched.DateTime.Format(time.DateOnly), "rendered in Auckland time")
	assert.Equal(t, HomeZone, enriched.DateTime.Location().String())

	assert.Empty(t, p.Degraded("checking"))
}

func TestExportAccount_RefreshesOncePerRun(t *testing.T) {
	fake := &fakeAkahu{refreshed: fixedNow}
	p := newTestProvider(t, fake)

	_, err := p.ExportAccount(context.Background(), "checking")
	require.NoError(t, err)
	_, err = p.ExportAccount(context.Background(), "checking")
	require.NoError(t, err)

	assert.Equal(t, 1, fake.refreshes)
}

func TestExportAccount_StaleRefreshDegrades(t *testing.T) {
	fake := &fakeAkahu{refreshed: fixedNow, stuck: true, posted: postedJSON}
	p := newTestProvider(t, fake)

	txns, err := p.ExportAccount(context.Background(), "checking")
	require.NoError(t, err)
	assert.Empty(t, txns)
	assert.Zero(t, fake.txnCalls, "stale accounts are not read")

	reason := bank.DegradedReason(p, "checking")
	assert.Contains(t, reason, "refresh did not advance")
}

func TestExportAccount_PollFailureDegrades(t *testing.T) {
	fake := &fakeAkahu{refreshed: fixedNow, accountsDown: true, posted: postedJSON}
	p := newTestProvider(t, fake)
	p.api.Retry = retry.Policy{Attempts: 2, Initial: time.Millisecond, Multiplier: 2}
	p.poll = retry.Policy{Attempts: 2, Initial: time.Millisecond, Multiplier: 2}

	txns, err := p.ExportAccount(context.Background(), "checking")
	require.NoError(t, err)
	assert.Empty(t, txns)
	assert.Zero(t, fake.txnCalls)
	assert.Equal(t, 1, fake.refreshes)

	reason := bank.DegradedReason(p, "checking")
	assert.Contains(t, reason, "checking refresh")
	assert.Contains(t, reason, "503")
}

func TestExportAccount_InitialReadFails(t *testing.T) {
	fake := &fakeAkahu{refreshed: fixedNow, accountsDown: true, refreshes: 1}
	p := newTestProvider(t, fake)
	p.api.Retry = retry.Policy{Attempts: 1}

	_, err := p.ExportAccount(context.Background(), "checking")
	require.Error(t, err)
	assert.True(t, bank.IsReason(err, bank.ReasonUnknown))
	assert.Empty(t, p.Degraded("checking"))
}

func TestLastRefreshed(t *testing.T) {
	refreshed := time.Date(2021, 1, 10, 0, 0, 0, 0, time.UTC)
	p := newTestProvider(t, &fakeAkahu{refreshed: refreshed})

	got, err := p.LastRefreshed(context.Background())
	require.NoError(t, err)
	assert.True(t, got.Equal(refreshed), "oldest across pages, got %s", got)
}

func TestLastRefreshed_MissingMeansNow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"items":[{"_id":"acc_1","name":"New","refreshed":{"meta":"2021-01-01T00:00:00Z"}}]}`))
	}))
	defer srv.Close()
	p, err := New(srv.URL, "a", "u", zerolog.Nop())
	require.NoError(t, err)
	p.now = func() time.Time { return fixedNow }

	got, err := p.LastRefreshed(context.Background())
	require.NoError(t, err)
	assert.True(t, got.Equal(fixedNow))
}

func TestExportAccount_NotFound(t *testing.T) {
	p := newTestProvider(t, &fakeAkahu{refreshed: fixedNow})

	_, err := p.ExportAccount(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, bank.IsReason(err, bank.ReasonAccountNotFound))
}

func TestExportAccount_Unauthorized(t *testing.T) {
	fake := &fakeAkahu{refreshed: fixedNow}
	srv := httptest.NewServer(fake)
	defer srv.Close()
	p, err := New(srv.URL, "app_token", "wrong", zerolog.Nop())
	require.NoError(t, err)

	_, err = p.ExportAccount(context.Background(), "checking")
	require.Error(t, err)
	assert.True(t, bank.IsReason(err, bank.ReasonUnauthorized))
	assert.Zero(t, fake.refreshes)
}

func TestFactory(t *testing.T) {
	cfg := config.Default()
	cfg.Akahu.AppToken = "app"
	_, err := Factory(context.Background(), cfg, zerolog.Nop())
	assert.True(t, bank.IsReason(err, bank.ReasonUnauthorized))

	cfg.Akahu.UserToken = "user"
	p, err := Factory(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.NoError(t, p.Close())
}
