// Package up exports transactions from Up Bank's personal access token API.
package up

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/cleared-dev/banksync/internal/bank"
	"github.com/cleared-dev/banksync/internal/config"
	"github.com/cleared-dev/banksync/internal/logger"
	"github.com/cleared-dev/banksync/internal/model"
	"github.com/cleared-dev/banksync/internal/paginate"
)

// Name identifies the provider in configuration.
const Name = "up"

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://api.up.com.au/api/v1"

const pageSize = "100"

// Provider implements bank.Provider for Up.
type Provider struct {
	api     *paginate.Client
	http    *http.Client
	baseURL string
	now     func() time.Time
	log     zerolog.Logger
}

// New creates a Provider authenticating with a bearer token.
func New(baseURL, token string, log zerolog.Logger) *Provider {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	log = logger.Service(log, "bank/up")
	api := paginate.NewClient(func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+token)
	}, log)
	hc, _ := api.HTTP.(*http.Client)
	return &Provider{api: api, http: hc, baseURL: baseURL, now: time.Now, log: log}
}

// Factory builds the provider from configuration.
func Factory(_ context.Context, cfg *config.Config, log zerolog.Logger) (bank.Provider, error) {
	if cfg.Up.UserToken == "" {
		return nil, bank.NewError(Name, bank.ReasonUnauthorized, errors.New("missing user token"))
	}
	return New(cfg.Up.BaseURL, cfg.Up.UserToken, log), nil
}

// Transactions streams the account's transactions created since since.
func (p *Provider) Transactions(ctx context.Context, accountID string, since time.Time) iter.Seq2[Transaction, error] {
	tmpl := paginate.Get(p.baseURL+"/accounts/"+url.PathEscape(accountID)+"/transactions", url.Values{
		"filter[since]": {since.Format(time.RFC3339)},
		"page[size]":    {pageSize},
	})
	return paginate.Stream(ctx, p.api, tmpl, func(page transactionPage) ([]Transaction, string) {
		if page.Links.Next == nil {
			return page.Data, ""
		}
		return page.Data, *page.Links.Next
	}, paginate.LinkCursor)
}

// ExportAccount returns the last 30 days of transactions for accountID.
func (p *Provider) ExportAccount(ctx context.Context, accountID string) ([]model.AccountTransaction, error) {
	txns, err := paginate.Collect(p.Transactions(ctx, accountID, bank.WindowStart(p.now())))
	if err != nil {
		if paginate.StatusCode(err) == http.StatusNotFound {
			return nil, bank.NewError(Name, bank.ReasonAccountNotFound, err)
		}
		return nil, bank.FromHTTP(Name, fmt.Errorf("listing transactions for %s: %w", accountID, err))
	}
	out := make([]model.AccountTransaction, len(txns))
	for i, txn := range txns {
		out[i] = txn.AccountTransaction()
	}
	p.log.Debug().Str("account", accountID).Int("count", len(out)).Msg("exported account")
	return out, nil
}

// Close releases idle connections.
func (p *Provider) Close() error {
	if p.http != nil {
		p.http.CloseIdleConnections()
	}
	return nil
}
