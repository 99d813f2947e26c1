// Package akahu exports transactions through the Akahu open finance API.
//
// Akahu caches bank data and only fetches new transactions when asked, so the
// provider triggers a refresh once per run and waits for the accounts'
// refresh timestamp to move before reading.
package akahu

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cleared-dev/banksync/internal/bank"
	"github.com/cleared-dev/banksync/internal/config"
	"github.com/cleared-dev/banksync/internal/logger"
	"github.com/cleared-dev/banksync/internal/model"
	"github.com/cleared-dev/banksync/internal/paginate"
	"github.com/cleared-dev/banksync/internal/retry"
)

// Name identifies the provider in configuration.
const Name = "akahu"

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://api.akahu.io/v1"

// HomeZone is where transaction dates are rendered.
const HomeZone = "Pacific/Auckland"

var errStale = errors.New("refresh timestamp has not advanced")

// Provider implements bank.Provider for Akahu.
type Provider struct {
	api     *paginate.Client
	http    *http.Client
	baseURL string
	loc     *time.Location
	now     func() time.Time
	poll    retry.Policy
	log     zerolog.Logger

	refreshOnce sync.Once
	refreshErr  error
	stale       string
}

// New creates a Provider. appToken identifies the application and userToken
// the user whose accounts are read.
func New(baseURL, appToken, userToken string, log zerolog.Logger) (*Provider, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	loc, err := time.LoadLocation(HomeZone)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", HomeZone, err)
	}
	log = logger.Service(log, "bank/akahu")
	api := paginate.NewClient(func(req *http.Request) {
		req.Header.Set("X-Akahu-Id", appToken)
		req.Header.Set("Authorization", "Bearer "+userToken)
	}, log)
	hc, _ := api.HTTP.(*http.Client)
	return &Provider{
		api:     api,
		http:    hc,
		baseURL: baseURL,
		loc:     loc,
		now:     time.Now,
		poll:    retry.Default,
		log:     log,
	}, nil
}

// Factory builds the provider from configuration.
func Factory(_ context.Context, cfg *config.Config, log zerolog.Logger) (bank.Provider, error) {
	if cfg.Akahu.AppToken == "" || cfg.Akahu.UserToken == "" {
		return nil, bank.NewError(Name, bank.ReasonUnauthorized, errors.New("missing app or user token"))
	}
	p, err := New(cfg.Akahu.BaseURL, cfg.Akahu.AppToken, cfg.Akahu.UserToken, log)
	if err != nil {
		return nil, bank.NewError(Name, bank.ReasonUnknown, err)
	}
	return p, nil
}

// Accounts streams every connected account.
func (p *Provider) Accounts(ctx context.Context) iter.Seq2[Account, error] {
	return paginate.Stream(ctx, p.api, paginate.Get(p.baseURL+"/accounts", nil), extract[Account], nil)
}

// LastRefreshed returns the oldest transaction refresh time across all
// accounts. Accounts that report no refresh count as refreshed now.
func (p *Provider) LastRefreshed(ctx context.Context) (time.Time, error) {
	var oldest time.Time
	found := false
	for acct, err := range p.Accounts(ctx) {
		if err != nil {
			return time.Time{}, fmt.Errorf("listing accounts: %w", err)
		}
		t := p.now()
		if acct.Refreshed.Transactions != nil {
			t = *acct.Refreshed.Transactions
		}
		if !found || t.Before(oldest) {
			oldest = t
		}
		found = true
	}
	if !found {
		return time.Time{}, errors.New("no connected accounts")
	}
	return oldest, nil
}

// Refresh asks Akahu to fetch the latest data from every connected bank.
func (p *Provider) Refresh(ctx context.Context) error {
	return p.api.Do(ctx, paginate.Request{Method: http.MethodPost, URL: p.baseURL + "/refresh"}, nil)
}

// refresh triggers a refresh and polls until the refresh timestamp moves
// strictly past its previous value. A timestamp that never moves, or that
// cannot be read while waiting, leaves the provider stale rather than failing.
func (p *Provider) refresh(ctx context.Context) error {
	p.log.Info().Msg("refreshing transactions")
	before, err := p.LastRefreshed(ctx)
	if err != nil {
		return err
	}
	if err := p.Refresh(ctx); err != nil {
		return fmt.Errorf("requesting refresh: %w", err)
	}

	err = retry.Do(ctx, p.poll, func() error {
		after, err := p.LastRefreshed(ctx)
		if err != nil {
			return err
		}
		if !after.After(before) {
			return errStale
		}
		p.log.Debug().Time("before", before).Time("after", after).Msg("refresh complete")
		return nil
	}, func(attempt int, err error, delay time.Duration) {
		p.log.Debug().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("waiting for refresh")
	})
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, errStale):
		p.stale = fmt.Sprintf("refresh did not advance past %s; account skipped", before.UTC().Format(time.RFC3339))
	default:
		p.stale = fmt.Sprintf("checking refresh: %v; account skipped", err)
	}
	p.log.Warn().Err(err).Time("last_refreshed", before).Msg("refresh did not complete, exporting nothing")
	return nil
}

func (p *Provider) ensureRefreshed(ctx context.Context) error {
	p.refreshOnce.Do(func() {
		p.refreshErr = p.refresh(ctx)
	})
	return p.refreshErr
}

// Degraded reports why accountID's export is empty when the refresh never
// completed.
func (p *Provider) Degraded(string) string {
	return p.stale
}

// Pending streams accountID's pending transactions since start.
func (p *Provider) Pending(ctx context.Context, accountID string, start time.Time) iter.Seq2[PendingTransaction, error] {
	return paginate.Stream(ctx, p.api, paginate.Get(p.accountURL(accountID, "transactions", "pending"), url.Values{
		"start":            {start.UTC().Format(time.RFC3339)},
		"amount_as_number": {"true"},
	}), extract[PendingTransaction], nil)
}

// Posted streams accountID's posted transactions since start.
func (p *Provider) Posted(ctx context.Context, accountID string, start time.Time) iter.Seq2[Transaction, error] {
	return paginate.Stream(ctx, p.api, paginate.Get(p.accountURL(accountID, "transactions"), url.Values{
		"start": {start.UTC().Format(time.RFC3339)},
	}), extract[Transaction], nil)
}

func (p *Provider) accountURL(accountID string, parts ...string) string {
	u := p.baseURL + "/accounts/" + url.PathEscape(accountID)
	for _, part := range parts {
		u += "/" + part
	}
	return u
}

// ExportAccount returns pending and posted transactions from the last 30
// days, or nothing when the refresh did not complete.
func (p *Provider) ExportAccount(ctx context.Context, accountID string) ([]model.AccountTransaction, error) {
	if err := p.ensureRefreshed(ctx); err != nil {
		return nil, bank.FromHTTP(Name, err)
	}
	if p.stale != "" {
		p.log.Warn().Str("account", accountID).Str("reason", p.stale).Msg("skipping stale account")
		return nil, nil
	}

	start := bank.WindowStart(p.now())
	pending, err := paginate.Collect(p.Pending(ctx, accountID, start))
	if err != nil {
		return nil, p.classify(accountID, "pending", err)
	}
	posted, err := paginate.Collect(p.Posted(ctx, accountID, start))
	if err != nil {
		return nil, p.classify(accountID, "posted", err)
	}
	out := make([]model.AccountTransaction, 0, len(pending)+len(posted))
	for _, txn := range pending {
		out = append(out, txn.AccountTransaction(p.loc))
	}
	for _, txn := range posted {
		out = append(out, txn.AccountTransaction(p.loc))
	}
	p.log.Debug().Str("account", accountID).Int("count", len(out)).Msg("exported account")
	return out, nil
}

func (p *Provider) classify(accountID, kind string, err error) error {
	err = fmt.Errorf("listing %s transactions for %s: %w", kind, accountID, err)
	if paginate.StatusCode(err) == http.StatusNotFound {
		return bank.NewError(Name, bank.ReasonAccountNotFound, err)
	}
	return bank.FromHTTP(Name, err)
}

// Close releases idle connections.
func (p *Provider) Close() error {
	if p.http != nil {
		p.http.CloseIdleConnections()
	}
	return nil
}
