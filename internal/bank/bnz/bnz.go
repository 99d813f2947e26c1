// Package bnz exports transactions from BNZ internet banking. BNZ has no
// public API, so a browser session logs in and calls the internal API the
// web app uses.
package bnz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
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
const Name = "bnz"

// HomeZone is the zone BNZ timestamps are recorded in.
const HomeZone = "Pacific/Auckland"

// APIBase is the internet banking API root.
const APIBase = "https://www.bnz.co.nz/ib/api"

// AuthPolicy caps login attempts.
var AuthPolicy = retry.Policy{Attempts: 3, Initial: time.Second, Multiplier: 2}

// Session is an authenticated browser session.
type Session interface {
	// Login signs in with the given credentials.
	Login(ctx context.Context, accessNumber, password string) error
	// Fetch issues a same-origin GET for path below APIBase and returns the
	// response status and body.
	Fetch(ctx context.Context, path string) (status int, body []byte, err error)
	Close() error
}

// Credentials sign in to internet banking.
type Credentials struct {
	AccessNumber string
	Password     string
}

// Provider implements bank.Provider for BNZ.
type Provider struct {
	session Session
	creds   Credentials
	loc     *time.Location
	now     func() time.Time
	auth    retry.Policy
	fetch   retry.Policy
	log     zerolog.Logger

	loggedIn bool
	accounts []Account
}

// New creates a Provider that signs in with creds on first use. The
// provider owns session and closes it.
func New(session Session, creds Credentials, log zerolog.Logger) (*Provider, error) {
	loc, err := time.LoadLocation(HomeZone)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", HomeZone, err)
	}
	return &Provider{
		session: session,
		creds:   creds,
		loc:     loc,
		now:     time.Now,
		auth:    AuthPolicy,
		fetch:   retry.Default,
		log:     logger.Service(log, "bank/bnz"),
	}, nil
}

// Factory launches a browser and builds the provider from configuration.
func Factory(ctx context.Context, cfg *config.Config, log zerolog.Logger) (bank.Provider, error) {
	if cfg.Bnz.AccessNumber == "" || cfg.Bnz.Password == "" {
		return nil, bank.NewError(Name, bank.ReasonUnauthorized, errors.New("missing access number or password"))
	}
	session, err := LaunchBrowser(BrowserOptions{Headless: cfg.Bnz.Headless})
	if err != nil {
		return nil, bank.NewError(Name, bank.ReasonUnknown, err)
	}
	p, err := New(session, Credentials{AccessNumber: cfg.Bnz.AccessNumber, Password: cfg.Bnz.Password}, log)
	if err != nil {
		_ = session.Close()
		return nil, bank.NewError(Name, bank.ReasonUnknown, err)
	}
	return p, nil
}

func (p *Provider) login(ctx context.Context) error {
	if p.loggedIn {
		return nil
	}
	err := retry.Do(ctx, p.auth, func() error {
		return p.session.Login(ctx, p.creds.AccessNumber, p.creds.Password)
	}, func(attempt int, err error, delay time.Duration) {
		p.log.Warn().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("login failed, retrying")
	})
	if err != nil {
		return bank.NewError(Name, bank.ReasonUnauthorized, fmt.Errorf("logging in: %w", err))
	}
	p.loggedIn = true
	p.log.Info().Msg("logged in")
	return nil
}

// get fetches path and decodes the JSON body into out. Transient statuses
// are retried.
func (p *Provider) get(ctx context.Context, path string, out any) error {
	return retry.Do(ctx, p.fetch, func() error {
		status, body, err := p.session.Fetch(ctx, path)
		if err != nil {
			return fmt.Errorf("fetching %s: %w", path, err)
		}
		if status < 200 || status > 299 {
			se := &paginate.StatusError{Method: http.MethodGet, URL: APIBase + path, StatusCode: status, Body: string(body)}
			if paginate.IsTransient(se) {
				return se
			}
			return retry.Permanent(se)
		}
		if err := json.Unmarshal(body, out); err != nil {
			return retry.Permanent(fmt.Errorf("decoding %s response: %w", path, err))
		}
		return nil
	}, nil)
}

// Accounts signs in if needed and returns the account list, fetched once.
func (p *Provider) Accounts(ctx context.Context) ([]Account, error) {
	if err := p.login(ctx); err != nil {
		return nil, err
	}
	if p.accounts != nil {
		return p.accounts, nil
	}
	var list accountList
	if err := p.get(ctx, "/accounts", &list); err != nil {
		return nil, bank.FromHTTP(Name, fmt.Errorf("listing accounts: %w", err))
	}
	p.accounts = list.AccountList
	if p.accounts == nil {
		p.accounts = []Account{}
	}
	return p.accounts, nil
}

// Transactions lists the account's transactions between from and to,
// inclusive calendar dates.
func (p *Provider) Transactions(ctx context.Context, accountID string, from, to time.Time) ([]Transaction, error) {
	q := url.Values{
		"from":    {from.Format(time.DateOnly)},
		"to":      {to.Format(time.DateOnly)},
		"account": {accountID},
	}
	var list transactionList
	if err := p.get(ctx, "/transactions?"+q.Encode(), &list); err != nil {
		return nil, err
	}
	return list.Transactions, nil
}

// ExportAccount returns the last 30 days of transactions for the account
// whose nickname is accountID. Pending foreign currency transactions and
// transactions dated after today are dropped.
func (p *Provider) ExportAccount(ctx context.Context, accountID string) ([]model.AccountTransaction, error) {
	accounts, err := p.Accounts(ctx)
	if err != nil {
		return nil, err
	}
	var account *Account
	for i := range accounts {
		if accounts[i].Nickname == accountID {
			account = &accounts[i]
			break
		}
	}
	if account == nil {
		return nil, bank.NewError(Name, bank.ReasonAccountNotFound, fmt.Errorf("no account nicknamed %q", accountID))
	}

	now := p.now().In(p.loc)
	raw, err := p.Transactions(ctx, account.ID, bank.WindowStart(now), now.AddDate(0, 0, 1))
	if err != nil {
		return nil, bank.FromHTTP(Name, fmt.Errorf("listing transactions for %s: %w", accountID, err))
	}

	today := now.Format(time.DateOnly)
	out := make([]model.AccountTransaction, 0, len(raw))
	skipped := 0
	for _, t := range raw {
		if t.PendingForeign() {
			skipped++
			continue
		}
		txn, err := t.AccountTransaction(p.loc)
		if err != nil {
			return nil, bank.NewError(Name, bank.ReasonUnknown, err)
		}
		if txn.DateTime.Format(time.DateOnly) > today {
			skipped++
			continue
		}
		out = append(out, txn)
	}
	p.log.Debug().Str("account", accountID).Int("count", len(out)).Int("skipped", skipped).Msg("exported account")
	return out, nil
}

// Close ends the browser session.
func (p *Provider) Close() error {
	return p.session.Close()
}
