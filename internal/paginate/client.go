// Package paginate fetches cursor-paginated JSON APIs as lazy sequences.
package paginate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/cleared-dev/banksync/internal/buildinfo"
	"github.com/cleared-dev/banksync/internal/retry"
)

// Doer is satisfied by *http.Client.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Request is a template for one API call.
type Request struct {
	Method string
	URL    string // absolute
	Query  url.Values
	Body   any // JSON-encoded when non-nil
}

// Get returns a GET request template.
func Get(rawURL string, query url.Values) Request {
	return Request{Method: http.MethodGet, URL: rawURL, Query: query}
}

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

// DefaultTransient treats 5xx and 429 as retryable.
func DefaultTransient(se *StatusError) bool {
	return se.StatusCode >= 500 || se.StatusCode == http.StatusTooManyRequests
}

// IsTransient reports whether err is worth retrying: a transport failure
// or a status DefaultTransient accepts. Context errors are never transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return DefaultTransient(se)
	}
	return true
}

const maxErrorBody = 4 << 10

// Client issues JSON requests, retrying transient failures.
type Client struct {
	HTTP     Doer
	Retry    retry.Policy
	Decorate func(req *http.Request) // adds credentials
	// Transient overrides DefaultTransient for provider-specific rate limits.
	Transient func(se *StatusError) bool
	Log       zerolog.Logger
}

// NewClient returns a Client using http.DefaultClient semantics with a
// per-request timeout and the default retry policy.
func NewClient(decorate func(req *http.Request), log zerolog.Logger) *Client {
	return &Client{
		HTTP:     &http.Client{Timeout: 60 * time.Second},
		Retry:    retry.Default,
		Decorate: decorate,
		Log:      log,
	}
}

// Do executes r and decodes a 2xx JSON body into out (skipped when out is nil).
// Transport errors and transient statuses are retried; anything else aborts.
func (c *Client) Do(ctx context.Context, r Request, out any) error {
	target, err := r.resolve()
	if err != nil {
		return err
	}
	var payload []byte
	if r.Body != nil {
		if payload, err = json.Marshal(r.Body); err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
	}

	return retry.Do(ctx, c.Retry, func() error {
		return c.attempt(ctx, r.method(), target, payload, out)
	}, func(attempt int, err error, delay time.Duration) {
		c.Log.Debug().Err(err).Int("attempt", attempt).Dur("delay", delay).Str("url", target).Msg("retrying request")
	})
}

func (c *Client) attempt(ctx context.Context, method, target string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return retry.Permanent(fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", buildinfo.UserAgent())
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Decorate != nil {
		c.Decorate(req)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return retry.Permanent(ctx.Err())
		}
		return fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		se := &StatusError{Method: method, URL: target, StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
		transient := c.Transient
		if transient == nil {
			transient = DefaultTransient
		}
		if transient(se) {
			return se
		}
		return retry.Permanent(se)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return retry.Permanent(fmt.Errorf("decoding %s response: %w", target, err))
	}
	return nil
}

func (r Request) method() string {
	if r.Method == "" {
		return http.MethodGet
	}
	return r.Method
}

func (r Request) resolve() (string, error) {
	u, err := url.Parse(r.URL)
	if err != nil {
		return "", fmt.Errorf("parsing url %q: %w", r.URL, err)
	}
	if len(r.Query) > 0 {
		q := u.Query()
		for k, vs := range r.Query {
			q.Del(k)
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
