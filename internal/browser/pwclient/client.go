// internal/browser/pwclient/client.go
package pwclient

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/kickstart-cli/internal/browser"
	"github.com/xkilldash9x/kickstart-cli/internal/config"
)

// Client drives Chromium through Playwright. Playwright calls are not
// context aware; each call checks ctx first and relies on the configured
// default timeout to bound itself.
type Client struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
	logger  *zap.Logger

	mu     sync.Mutex
	status int
}

var _ browser.Client = (*Client)(nil)

// New starts the Playwright driver, launches Chromium and opens one page.
// When installDriver is set, missing driver and browser binaries are
// downloaded first.
func New(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger, installDriver bool) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.With(zap.String("backend", config.BackendPlaywright))

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if installDriver {
		if err := playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}}); err != nil {
			return nil, fmt.Errorf("failed to install playwright: %w", err)
		}
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}
	c := &Client{pw: pw, logger: log}

	c.browser, err = pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(cfg.Headless),
		Args:     cfg.Args,
	})
	if err != nil {
		c.Close(ctx)
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	contextOptions := playwright.BrowserNewContextOptions{
		IgnoreHttpsErrors: playwright.Bool(cfg.IgnoreTLSErrors),
	}
	if cfg.UserAgent != "" {
		contextOptions.UserAgent = playwright.String(cfg.UserAgent)
	}
	if len(cfg.Headers) > 0 {
		contextOptions.ExtraHttpHeaders = cfg.Headers
	}
	c.context, err = c.browser.NewContext(contextOptions)
	if err != nil {
		c.Close(ctx)
		return nil, fmt.Errorf("failed to create context: %w", err)
	}
	if cfg.Timeout > 0 {
		ms := float64(cfg.Timeout.Milliseconds())
		c.context.SetDefaultTimeout(ms)
		c.context.SetDefaultNavigationTimeout(ms)
	}

	c.page, err = c.context.NewPage()
	if err != nil {
		c.Close(ctx)
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	c.page.OnResponse(c.onResponse)
	return c, nil
}

// onResponse records the status of main frame document responses, which
// also covers navigations started by clicks.
func (c *Client) onResponse(resp playwright.Response) {
	if resp.Request().ResourceType() != "document" || resp.Frame() != c.page.MainFrame() {
		return
	}
	c.mu.Lock()
	c.status = resp.Status()
	c.mu.Unlock()
}

// Navigate loads target and records the status of its document response.
func (c *Client) Navigate(ctx context.Context, target string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	resolved, err := c.resolve(target)
	if err != nil {
		return err
	}
	resp, err := c.page.Goto(resolved, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
	})
	if err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	c.record(resp)
	return nil
}

func (c *Client) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.CurrentURL() == "" || c.CurrentURL() == "about:blank" {
		return fmt.Errorf("cannot reload before the first navigation")
	}
	resp, err := c.page.Reload(playwright.PageReloadOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
	})
	if err != nil {
		return fmt.Errorf("reload failed: %w", err)
	}
	c.record(resp)
	return nil
}

func (c *Client) record(resp playwright.Response) {
	if resp == nil {
		return
	}
	c.mu.Lock()
	c.status = resp.Status()
	c.mu.Unlock()
}

func (c *Client) resolve(target string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("failed to resolve URL '%s': %w", target, err)
	}
	if u.IsAbs() {
		return u.String(), nil
	}
	base, err := url.Parse(c.CurrentURL())
	if err != nil || !base.IsAbs() {
		return "", fmt.Errorf("initial navigation target must be an absolute URL: '%s'", target)
	}
	return base.ResolveReference(u).String(), nil
}

func (c *Client) StatusCode() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// CurrentURL returns the page URL, reflecting client side redirects too.
func (c *Client) CurrentURL() string {
	if c.page == nil {
		return ""
	}
	return c.page.URL()
}

func (c *Client) Content(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return c.page.Content()
}

// selector maps XPath to Playwright's xpath engine prefix.
func selector(s string) string {
	if browser.IsXPath(s) {
		return "xpath=" + strings.TrimSpace(s)
	}
	return s
}

func (c *Client) Find(ctx context.Context, sel string) (browser.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	locator := c.page.Locator(selector(sel))
	count, err := locator.Count()
	if err != nil {
		return nil, fmt.Errorf("failed to query '%s': %w", sel, err)
	}
	if count == 0 {
		return nil, nil
	}
	return &element{client: c, locator: locator.First()}, nil
}

func (c *Client) FindAll(ctx context.Context, sel string) ([]browser.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	locators, err := c.page.Locator(selector(sel)).All()
	if err != nil {
		return nil, fmt.Errorf("failed to query '%s': %w", sel, err)
	}
	out := make([]browser.Element, len(locators))
	for i, l := range locators {
		out[i] = &element{client: c, locator: l}
	}
	return out, nil
}

// Close tears down page, browser and driver, keeping the first error.
func (c *Client) Close(ctx context.Context) error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if c.browser != nil {
		keep(c.browser.Close())
	}
	if c.pw != nil {
		keep(c.pw.Stop())
	}
	return firstErr
}
