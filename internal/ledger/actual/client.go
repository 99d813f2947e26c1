// Package actual talks to an Actual budget through its HTTP gateway.
package actual

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cleared-dev/banksync/internal/ledger"
	"github.com/cleared-dev/banksync/internal/model"
	"github.com/cleared-dev/banksync/internal/paginate"
	"github.com/cleared-dev/banksync/internal/retry"
)

// Options configures a gateway session.
type Options struct {
	ServerURL          string
	SyncID             string
	DataDir            string
	Password           string
	EncryptionPassword string
	HTTP               paginate.Doer // defaults to a client with a 60s timeout
	Retry              retry.Policy  // for reads and session calls; zero means retry.Default
	Log                zerolog.Logger
}

// Client is an open budget session. It must be closed.
type Client struct {
	api    *paginate.Client
	writes *paginate.Client
	budget string // base URL of the budget, with trailing slash
	log    zerolog.Logger
}

var _ ledger.Ledger = (*Client)(nil)

// Open initialises the gateway with the server password and downloads the
// latest copy of the budget. No other call is valid until Open returns.
func Open(ctx context.Context, opts Options) (*Client, error) {
	server, err := url.Parse(opts.ServerURL)
	if err != nil || server.Scheme == "" || server.Host == "" {
		return nil, &ledger.Error{Op: "open", Err: fmt.Errorf("invalid server url %q", opts.ServerURL)}
	}
	if !strings.HasSuffix(server.Path, "/") {
		server.Path += "/"
	}
	if opts.SyncID == "" {
		return nil, &ledger.Error{Op: "open", Err: errors.New("sync id is required")}
	}

	api := paginate.NewClient(func(req *http.Request) {
		req.Header.Set("x-api-key", opts.Password)
		if opts.EncryptionPassword != "" {
			req.Header.Set("budget-encryption-password", opts.EncryptionPassword)
		}
	}, opts.Log)
	if opts.HTTP != nil {
		api.HTTP = opts.HTTP
	}
	if opts.Retry.Attempts > 0 {
		api.Retry = opts.Retry
	}
	// Imports and updates get one attempt; a lost response would make a
	// retry import twice.
	writes := *api
	writes.Retry = retry.Policy{Attempts: 1}

	c := &Client{
		api:    api,
		writes: &writes,
		budget: server.JoinPath("v1", "budgets", opts.SyncID).String() + "/",
		log:    opts.Log,
	}

	body := map[string]string{"dataDir": opts.DataDir}
	if err := c.api.Do(ctx, paginate.Request{Method: http.MethodPost, URL: c.budget + "open", Body: body}, nil); err != nil {
		return nil, &ledger.Error{Op: "open", Err: err}
	}
	c.log.Info().Str("sync_id", opts.SyncID).Msg("budget downloaded")
	return c, nil
}

// Close pushes local changes to the server and ends the session.
func (c *Client) Close(ctx context.Context) error {
	syncErr := c.api.Do(ctx, paginate.Request{Method: http.MethodPost, URL: c.budget + "sync"}, nil)
	if syncErr != nil {
		syncErr = &ledger.Error{Op: "sync", Err: syncErr}
	}
	closeErr := c.api.Do(ctx, paginate.Request{Method: http.MethodPost, URL: c.budget + "close"}, nil)
	if closeErr != nil {
		closeErr = &ledger.Error{Op: "close", Err: closeErr}
	}
	return errors.Join(syncErr, closeErr)
}

type listResponse[T any] struct {
	Data []T `json:"data"`
}

// Categories returns every category in the budget.
func (c *Client) Categories(ctx context.Context) ([]ledger.Category, error) {
	var resp listResponse[ledger.Category]
	if err := c.api.Do(ctx, paginate.Get(c.budget+"categories", nil), &resp); err != nil {
		return nil, &ledger.Error{Op: "categories", Err: err}
	}
	return resp.Data, nil
}

// Payees returns every payee in the budget, including transfer payees.
func (c *Client) Payees(ctx context.Context) ([]ledger.Payee, error) {
	var resp listResponse[ledger.Payee]
	if err := c.api.Do(ctx, paginate.Get(c.budget+"payees", nil), &resp); err != nil {
		return nil, &ledger.Error{Op: "payees", Err: err}
	}
	return resp.Data, nil
}

// Query is a transactions query in the gateway's filter language.
type Query struct {
	Table    string         `json:"table"`
	Filter   map[string]any `json:"filter,omitempty"`
	Select   []string       `json:"select,omitempty"`
	WithDead bool           `json:"withDead"`
}

// FindImported looks up transactions by imported id, including deleted ones.
func (c *Client) FindImported(ctx context.Context, importedIDs []string) (map[string]ledger.Transaction, error) {
	found := make(map[string]ledger.Transaction)
	if len(importedIDs) == 0 {
		return found, nil
	}

	or := make([]map[string]string, len(importedIDs))
	for i, id := range importedIDs {
		or[i] = map[string]string{"imported_id": id}
	}
	q := Query{
		Table:    "transactions",
		Filter:   map[string]any{"$or": or},
		Select:   []string{"*"},
		WithDead: true,
	}

	var resp listResponse[ledger.Transaction]
	if err := c.api.Do(ctx, paginate.Request{Method: http.MethodPost, URL: c.budget + "query", Body: q}, &resp); err != nil {
		return nil, &ledger.Error{Op: "find imported", Err: err}
	}
	for _, txn := range resp.Data {
		if txn.ImportedID != "" {
			found[txn.ImportedID] = txn
		}
	}
	return found, nil
}

// ImportTransactions adds records to a ledger account in one batch.
func (c *Client) ImportTransactions(ctx context.Context, accountID string, records []model.ImportRecord) error {
	target := c.budget + "accounts/" + url.PathEscape(accountID) + "/transactions/import"
	body := map[string]any{"transactions": records}
	if err := c.writes.Do(ctx, paginate.Request{Method: http.MethodPost, URL: target, Body: body}, nil); err != nil {
		return &ledger.Error{Op: "import", Err: err}
	}
	return nil
}

// UpdateTransaction patches an existing ledger transaction.
func (c *Client) UpdateTransaction(ctx context.Context, id string, u ledger.Update) error {
	target := c.budget + "transactions/" + url.PathEscape(id)
	body := map[string]any{"transaction": u}
	if err := c.writes.Do(ctx, paginate.Request{Method: http.MethodPatch, URL: target, Body: body}, nil); err != nil {
		return &ledger.Error{Op: "update", Err: err}
	}
	return nil
}
