package bnz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/playwright-community/playwright-go"
)

// LoginURL is the personal internet banking sign-in page.
const LoginURL = "https://secure.bnz.co.nz/auth/personal-login"

const (
	selectorAccessNumber = "input#field-principal"
	selectorPassword     = "input#field-credentials"
	selectorSubmit       = "button[type=submit]"
	selectorMenu         = "span.js-main-menu-button-text"
	selectorAccept       = "input[title=Accept]"
)

// fetchScript runs in the page so requests carry the session cookies.
const fetchScript = `async (url) => {
  const r = await fetch(url, { credentials: "same-origin" });
  return JSON.stringify({ status: r.status, body: await r.text() });
}`

// BrowserOptions configures the Chromium instance.
type BrowserOptions struct {
	Headless bool
}

// Browser is a Session backed by a Playwright-driven Chromium page.
type Browser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
}

var _ Session = (*Browser)(nil)

// LaunchBrowser starts Playwright and opens a single page. Close releases
// the page, context, browser and driver.
func LaunchBrowser(opts BrowserOptions) (*Browser, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("starting playwright: %w", err)
	}
	b := &Browser{pw: pw}

	launch := playwright.BrowserTypeLaunchOptions{Headless: playwright.Bool(opts.Headless)}
	if opts.Headless {
		launch.Args = []string{"--no-sandbox"}
	}
	if b.browser, err = pw.Chromium.Launch(launch); err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("launching chromium: %w", err)
	}
	if b.context, err = b.browser.NewContext(playwright.BrowserNewContextOptions{BypassCSP: playwright.Bool(true)}); err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("creating browser context: %w", err)
	}
	if b.page, err = b.context.NewPage(); err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("opening page: %w", err)
	}
	return b, nil
}

// Login fills the sign-in form and waits for the main menu, accepting the
// terms interstitial when it appears.
func (b *Browser) Login(ctx context.Context, accessNumber, password string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := b.page.Goto(LoginURL); err != nil {
		return fmt.Errorf("opening login page: %w", err)
	}
	if err := b.page.Locator(selectorAccessNumber).Fill(accessNumber); err != nil {
		return fmt.Errorf("entering access number: %w", err)
	}
	if err := b.page.Locator(selectorPassword).Fill(password); err != nil {
		return fmt.Errorf("entering password: %w", err)
	}
	if err := b.page.Locator(selectorSubmit).Click(); err != nil {
		return fmt.Errorf("submitting login: %w", err)
	}

	el, err := b.page.WaitForSelector(selectorMenu + ", " + selectorAccept)
	if err != nil {
		return fmt.Errorf("waiting for login: %w", err)
	}
	tag, err := el.Evaluate("el => el.tagName")
	if err != nil {
		return fmt.Errorf("inspecting login result: %w", err)
	}
	if name, _ := tag.(string); strings.EqualFold(name, "span") {
		return nil
	}
	if err := el.Click(); err != nil {
		return fmt.Errorf("accepting terms: %w", err)
	}
	if _, err := b.page.WaitForSelector(selectorMenu); err != nil {
		return fmt.Errorf("waiting for main menu: %w", err)
	}
	return nil
}

// Fetch calls the internet banking API from inside the page.
func (b *Browser) Fetch(ctx context.Context, path string) (int, []byte, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	raw, err := b.page.Evaluate(fetchScript, APIBase+path)
	if err != nil {
		return 0, nil, err
	}
	s, ok := raw.(string)
	if !ok {
		return 0, nil, fmt.Errorf("unexpected fetch result %T", raw)
	}
	var resp struct {
		Status int    `json:"status"`
		Body   string `json:"body"`
	}
	if err := json.Unmarshal([]byte(s), &resp); err != nil {
		return 0, nil, fmt.Errorf("decoding fetch result: %w", err)
	}
	return resp.Status, []byte(resp.Body), nil
}

// Close tears down everything LaunchBrowser started.
func (b *Browser) Close() error {
	var errs []error
	if b.page != nil {
		errs = append(errs, b.page.Close())
	}
	if b.context != nil {
		errs = append(errs, b.context.Close())
	}
	if b.browser != nil {
		errs = append(errs, b.browser.Close())
	}
	if b.pw != nil {
		errs = append(errs, b.pw.Stop())
	}
	return errors.Join(errs...)
}
