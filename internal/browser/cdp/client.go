// internal/browser/cdp/client.go
package cdp

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	cdproto "github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/kickstart-cli/internal/browser"
	"github.com/xkilldash9x/kickstart-cli/internal/browser/session"
	"github.com/xkilldash9x/kickstart-cli/internal/config"
)

// pressSettle bounds how long Press waits for a navigation to start before
// deciding the click stayed on the page.
const pressSettle = 3 * time.Second

// Client drives a real Chrome through the DevTools protocol.
type Client struct {
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	logger        *zap.Logger
	timeout       time.Duration

	mu     sync.Mutex
	status int
	docURL string
	loads  chan struct{}
}

var _ browser.Client = (*Client)(nil)

// ExecAllocatorOptions translates the browser config into Chrome flags.
func ExecAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		// DefaultExecAllocatorOptions includes headless; undo it explicitly when disabled.
		chromedp.Flag("headless", cfg.Headless),
	)
	if cfg.IgnoreTLSErrors {
		opts = append(opts, chromedp.IgnoreCertErrors)
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	for name, value := range ParseFlags(cfg.Args) {
		opts = append(opts, chromedp.Flag(name, value))
	}
	return opts
}

// ParseFlags turns "--flag" and "--key=value" style arguments into the
// name/value pairs chromedp.Flag expects. Leading dashes are optional.
func ParseFlags(args []string) map[string]interface{} {
	flags := make(map[string]interface{}, len(args))
	for _, arg := range args {
		arg = strings.TrimLeft(strings.TrimSpace(arg), "-")
		if arg == "" {
			continue
		}
		if key, value, ok := strings.Cut(arg, "="); ok {
			flags[key] = value
			continue
		}
		flags[arg] = true
	}
	return flags
}

// New launches Chrome and opens one tab.
func New(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.With(zap.String("backend", config.BackendChromedp))

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, ExecAllocatorOptions(cfg)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(log.Sugar().Debugf),
		chromedp.WithErrorf(log.Sugar().Debugf),
	)

	c := &Client{
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		logger:        log,
		timeout:       cfg.Timeout,
		loads:         make(chan struct{}, 1),
	}
	chromedp.ListenTarget(browserCtx, c.onEvent)

	tasks := chromedp.Tasks{network.Enable()}
	if len(cfg.Headers) > 0 {
		headers := make(network.Headers, len(cfg.Headers))
		for k, v := range cfg.Headers {
			headers[k] = v
		}
		tasks = append(tasks, network.SetExtraHTTPHeaders(headers))
	}
	if err := chromedp.Run(browserCtx, tasks); err != nil {
		c.Close(context.Background())
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	return c, nil
}

// onEvent tracks the status of top level document responses and load events.
// It runs on chromedp's event goroutine.
func (c *Client) onEvent(ev interface{}) {
	switch e := ev.(type) {
	case *network.EventResponseReceived:
		if e.Type != network.ResourceTypeDocument || e.Response == nil {
			return
		}
		c.mu.Lock()
		c.status = int(e.Response.Status)
		c.docURL = e.Response.URL
		c.mu.Unlock()
	case *page.EventLoadEventFired:
		select {
		case c.loads <- struct{}{}:
		default:
		}
	}
}

// run executes actions bounded by both the browser lifetime and ctx.
func (c *Client) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := session.CombineContext(c.browserCtx, ctx)
	defer cancel()
	if c.timeout > 0 {
		var timeoutCancel context.CancelFunc
		runCtx, timeoutCancel = context.WithTimeout(runCtx, c.timeout)
		defer timeoutCancel()
	}
	return chromedp.Run(runCtx, actions...)
}

// Navigate loads target and waits for the load event of the new document.
func (c *Client) Navigate(ctx context.Context, target string) error {
	resolved, err := c.resolve(target)
	if err != nil {
		return err
	}
	return c.navigate(ctx, chromedp.Navigate(resolved))
}

func (c *Client) Reload(ctx context.Context) error {
	if c.CurrentURL() == "" {
		return fmt.Errorf("cannot reload before the first navigation")
	}
	return c.navigate(ctx, chromedp.Reload())
}

func (c *Client) navigate(ctx context.Context, action chromedp.Action) error {
	runCtx, cancel := session.CombineContext(c.browserCtx, ctx)
	defer cancel()
	if c.timeout > 0 {
		var timeoutCancel context.CancelFunc
		runCtx, timeoutCancel = context.WithTimeout(runCtx, c.timeout)
		defer timeoutCancel()
	}

	resp, err := chromedp.RunResponse(runCtx, action)
	if err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	if resp != nil {
		c.mu.Lock()
		c.status = int(resp.Status)
		c.docURL = resp.URL
		c.mu.Unlock()
	}
	return nil
}

func (c *Client) resolve(target string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("failed to resolve URL '%s': %w", target, err)
	}
	if u.IsAbs() {
		return u.String(), nil
	}
	current := c.CurrentURL()
	if current == "" {
		return "", fmt.Errorf("initial navigation target must be an absolute URL: '%s'", target)
	}
	base, err := url.Parse(current)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(u).String(), nil
}

// StatusCode is the status of the last main frame document response.
func (c *Client) StatusCode() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Client) CurrentURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.docURL
}

func (c *Client) Content(ctx context.Context) (string, error) {
	var content string
	if err := c.run(ctx, chromedp.OuterHTML("html", &content, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to read document: %w", err)
	}
	return content, nil
}

// Find returns the first node matching selector, or (nil, nil). It does not
// wait for the element to appear.
func (c *Client) Find(ctx context.Context, selector string) (browser.Element, error) {
	elements, err := c.FindAll(ctx, selector)
	if err != nil || len(elements) == 0 {
		return nil, err
	}
	return elements[0], nil
}

// FindAll does not wait for elements to appear; the document is expected to
// be loaded already.
func (c *Client) FindAll(ctx context.Context, selector string) ([]browser.Element, error) {
	by := chromedp.ByQueryAll
	if browser.IsXPath(selector) {
		by = chromedp.BySearch
	}

	var nodes []*cdproto.Node
	if err := c.run(ctx, chromedp.Nodes(selector, &nodes, by, chromedp.AtLeast(0))); err != nil {
		return nil, fmt.Errorf("failed to query '%s': %w", selector, err)
	}

	out := make([]browser.Element, 0, len(nodes))
	for _, n := range nodes {
		if n.NodeType != cdproto.NodeTypeElement {
			continue
		}
		out = append(out, &element{client: c, id: n.NodeID, name: strings.ToLower(n.LocalName)})
	}
	return out, nil
}

// waitForLoad waits for a load event triggered after a click. Clicks that do
// not navigate return after pressSettle.
func (c *Client) waitForLoad(ctx context.Context) error {
	timer := time.NewTimer(pressSettle)
	defer timer.Stop()
	select {
	case <-c.loads:
		return nil
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) drainLoads() {
	for {
		select {
		case <-c.loads:
		default:
			return
		}
	}
}

// Close shuts the browser down.
func (c *Client) Close(ctx context.Context) error {
	err := chromedp.Cancel(c.browserCtx)
	c.browserCancel()
	c.allocCancel()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
