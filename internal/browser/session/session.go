// internal/browser/session/session.go
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/antchfx/htmlquery"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/kickstart-cli/internal/browser"
	"github.com/xkilldash9x/kickstart-cli/internal/browser/dom"
	"github.com/xkilldash9x/kickstart-cli/internal/browser/network"
	"github.com/xkilldash9x/kickstart-cli/internal/config"
)

const maxRedirects = 10

// ErrStaleElement is returned when an element handle outlives the page it
// was found on.
var ErrStaleElement = errors.New("element belongs to a previous page")

// Session is the pure Go page client. It keeps a cookie jar, follows
// redirects itself and holds the parsed DOM of the last document. Form
// state (values, selections) lives in that DOM until the next navigation.
// No JavaScript runs, which is sufficient for Drupal forms as they degrade
// to plain form posts.
type Session struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
	client *http.Client

	mu         sync.RWMutex
	currentURL *url.URL
	currentDOM *html.Node
	status     int
	// generation increments on every document change; element handles
	// remember the generation they were created in.
	generation uint64

	closeOnce sync.Once
}

var _ browser.Client = (*Session)(nil)

// NewSession initializes a new browsing session.
func NewSession(parentCtx context.Context, cfg config.BrowserConfig, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	sessionID := uuid.New().String()
	log := logger.With(zap.String("session_id", sessionID), zap.String("backend", config.BackendHTTP))

	ctx, cancel := context.WithCancel(parentCtx)
	return &Session{
		id:     sessionID,
		ctx:    ctx,
		cancel: cancel,
		logger: log,
		client: network.NewClient(network.NewClientConfig(cfg, log.Named("network"))),
	}
}

// ID returns the session ID.
func (s *Session) ID() string { return s.id }

// Close terminates the session. Requests in flight are canceled.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.logger.Debug("Closing session.")
		s.cancel()
		s.client.CloseIdleConnections()
	})
	return nil
}

// -- Navigation --

// Navigate loads targetURL, resolving it against the current page when it
// is relative.
func (s *Session) Navigate(ctx context.Context, targetURL string) error {
	navCtx, navCancel := CombineContext(s.ctx, ctx)
	defer navCancel()

	resolvedURL, err := s.resolveURL(targetURL)
	if err != nil {
		return fmt.Errorf("failed to resolve URL '%s': %w", targetURL, err)
	}

	req, err := http.NewRequestWithContext(navCtx, http.MethodGet, resolvedURL.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request for '%s': %w", resolvedURL, err)
	}
	return s.executeRequest(navCtx, req)
}

// Reload re-requests the current document with GET.
func (s *Session) Reload(ctx context.Context) error {
	current := s.CurrentURL()
	if current == "" {
		return fmt.Errorf("cannot reload before the first navigation")
	}
	return s.Navigate(ctx, current)
}

// executeRequest sends req, follows redirects and updates the page state.
func (s *Session) executeRequest(ctx context.Context, req *http.Request) error {
	currentReq := req

	for i := 0; i < maxRedirects; i++ {
		s.prepareRequestHeaders(currentReq)
		s.logger.Debug("Executing request", zap.String("method", currentReq.Method), zap.String("url", currentReq.URL.String()))

		resp, err := s.client.Do(currentReq)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}

		if resp.StatusCode >= 300 && resp.StatusCode < 400 && resp.Header.Get("Location") != "" {
			nextReq, err := s.handleRedirect(ctx, resp, currentReq)
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			if err != nil {
				return fmt.Errorf("failed to handle redirect: %w", err)
			}
			currentReq = nextReq
			continue
		}

		return s.processResponse(resp)
	}

	return fmt.Errorf("maximum number of redirects (%d) exceeded", maxRedirects)
}

// handleRedirect builds the follow-up request. 301, 302 and 303 turn into a
// GET; 307 and 308 replay method and body.
func (s *Session) handleRedirect(ctx context.Context, resp *http.Response, originalReq *http.Request) (*http.Request, error) {
	nextURL, err := originalReq.URL.Parse(resp.Header.Get("Location"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse redirect Location '%s': %w", resp.Header.Get("Location"), err)
	}

	method := originalReq.Method
	var body io.ReadCloser

	switch resp.StatusCode {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther:
		if method != http.MethodHead {
			method = http.MethodGet
		}
	default:
		if originalReq.GetBody != nil {
			body, err = originalReq.GetBody()
			if err != nil {
				return nil, fmt.Errorf("failed to get body for redirect reuse: %w", err)
			}
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, nextURL.String(), body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", originalReq.Header.Get("Content-Type"))
	}
	req.Header.Set("Referer", originalReq.URL.String())
	return req, nil
}

// processResponse parses the final response into the page state. Error
// pages are parsed too so their markup can be inspected.
func (s *Session) processResponse(resp *http.Response) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		s.logger.Debug("Request resulted in error status code", zap.Int("status", resp.StatusCode), zap.String("url", resp.Request.URL.String()))
	}

	var doc *html.Node
	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	if contentType == "" || strings.Contains(contentType, "html") {
		parsed, err := htmlquery.Parse(resp.Body)
		if err != nil {
			s.updateState(resp.Request.URL, nil, resp.StatusCode)
			return fmt.Errorf("failed to parse HTML response from '%s': %w", resp.Request.URL, err)
		}
		doc = parsed
	} else {
		s.logger.Debug("Response is not HTML, skipping DOM parsing.", zap.String("content_type", contentType))
	}

	s.updateState(resp.Request.URL, doc, resp.StatusCode)
	return nil
}

func (s *Session) updateState(newURL *url.URL, doc *html.Node, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.currentURL = newURL
	s.currentDOM = doc
	s.status = status
	s.generation++
}

// -- Page state --

// StatusCode returns the status of the last final response, after redirects.
// It is 0 before the first navigation.
func (s *Session) StatusCode() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// CurrentURL returns the URL of the current document, or "" before the first
// navigation. Redirects are reflected.
func (s *Session) CurrentURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.currentURL != nil {
		return s.currentURL.String()
	}
	return ""
}

// Content renders the current DOM, including values set through elements.
func (s *Session) Content(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.currentDOM == nil {
		return "", nil
	}
	var buf bytes.Buffer
	if err := html.Render(&buf, s.currentDOM); err != nil {
		return "", fmt.Errorf("failed to render DOM snapshot: %w", err)
	}
	return buf.String(), nil
}

// Find returns the first element matching selector in the current document,
// or (nil, nil). An XPath expression whose first match is a text node finds
// nothing.
func (s *Session) Find(ctx context.Context, selector string) (browser.Element, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, err := dom.Query(s.currentDOM, selector)
	if err != nil || n == nil || n.Type != html.ElementNode {
		return nil, err
	}
	return &element{session: s, node: n, generation: s.generation}, nil
}

// FindAll returns every element matching selector, in document order.
// Handles are bound to the current document and go stale on navigation.
func (s *Session) FindAll(ctx context.Context, selector string) ([]browser.Element, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	nodes, err := dom.QueryAll(s.currentDOM, selector)
	if err != nil {
		return nil, err
	}
	out := make([]browser.Element, 0, len(nodes))
	for _, n := range nodes {
		if n.Type != html.ElementNode {
			continue
		}
		out = append(out, &element{session: s, node: n, generation: s.generation})
	}
	return out, nil
}

// -- Helpers --

// resolveURL resolves targetURL against the current page.
func (s *Session) resolveURL(targetURL string) (*url.URL, error) {
	s.mu.RLock()
	currentURL := s.currentURL
	s.mu.RUnlock()

	parsedURL, err := url.Parse(targetURL)
	if err != nil {
		return nil, err
	}
	if currentURL != nil {
		return currentURL.ResolveReference(parsedURL), nil
	}
	if !parsedURL.IsAbs() {
		return nil, fmt.Errorf("initial navigation target must be an absolute URL: '%s'", targetURL)
	}
	return parsedURL, nil
}

func (s *Session) prepareRequestHeaders(req *http.Request) {
	if req.Header.Get("Referer") != "" {
		return
	}
	if current := s.CurrentURL(); current != "" {
		req.Header.Set("Referer", current)
	}
}
