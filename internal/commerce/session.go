// File: internal/commerce/session.go
package commerce

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/kickstart-cli/internal/browser"
	"github.com/xkilldash9x/kickstart-cli/internal/browser/dom"
	"github.com/xkilldash9x/kickstart-cli/internal/config"
	"github.com/xkilldash9x/kickstart-cli/internal/faults"
	"github.com/xkilldash9x/kickstart-cli/internal/observability"
)

// Login form selectors of a stock Drupal 7 site.
const (
	SelectorLoginName   = "input#edit-name"
	SelectorLoginPass   = "input#edit-pass"
	SelectorLoginSubmit = "input#edit-submit"
	SelectorLoginError  = "div.error"
)

// Session binds one page client to one site. It is not safe for concurrent
// use: the install and checkout drivers must not share a Session at the same
// time.
type Session struct {
	id       string
	baseURL  string
	username string
	password string

	client  browser.Client
	asserts *dom.Asserter
	diag    *observability.Diagnostics
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewSession takes ownership of client. metrics may be nil.
func NewSession(client browser.Client, site config.SiteConfig, logger *zap.Logger, metrics *observability.Metrics) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.New().String()
	log := logger.With(zap.String("run_id", id))
	diag := observability.NewDiagnostics(log, site.Verbose)

	return &Session{
		id:       id,
		baseURL:  strings.TrimRight(site.BaseURL, "/") + "/",
		username: site.Username,
		password: site.Password,
		client:   client,
		asserts:  dom.NewAsserter(client, diag),
		diag:     diag,
		metrics:  metrics,
		logger:   log,
	}
}

// ID is the run id, attached to every log line, span and report of the session.
func (s *Session) ID() string { return s.id }

// Client returns the page client the session drives.
func (s *Session) Client() browser.Client { return s.client }

// Asserter returns the element checks bound to the session's client.
func (s *Session) Asserter() *dom.Asserter { return s.asserts }

// Diagnostics returns the verbose trace channel.
func (s *Session) Diagnostics() *observability.Diagnostics { return s.diag }

// Metrics returns the run metrics. It may be nil; the Observe methods accept that.
func (s *Session) Metrics() *observability.Metrics { return s.metrics }

// Logger returns the session logger, tagged with the run id.
func (s *Session) Logger() *zap.Logger { return s.logger }

// URL joins path onto the base URL the way Drupal's l() builds links.
func (s *Session) URL(path string) string {
	return s.baseURL + strings.TrimLeft(path, "/")
}

// Visit loads path relative to the base URL and requires a 2xx response.
func (s *Session) Visit(ctx context.Context, path string) error {
	target := s.URL(path)
	if err := s.client.Navigate(ctx, target); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return faults.NavigationFailed(target, err)
	}

	status := s.client.StatusCode()
	s.diag.Navigation(target, status)
	s.metrics.ObserveNavigation(status)
	if status/100 != 2 {
		return faults.Navigation(target, status)
	}
	return nil
}

// Login submits the site's login form with the session credentials.
func (s *Session) Login(ctx context.Context) error {
	if s.username == "" || s.password == "" {
		return faults.MissingCredentials()
	}
	if err := s.Visit(ctx, "user"); err != nil {
		return err
	}

	name, err := s.asserts.AssertExistence(ctx, SelectorLoginName, true)
	if err != nil {
		return err
	}
	pass, err := s.asserts.AssertExistence(ctx, SelectorLoginPass, true)
	if err != nil {
		return err
	}
	submit, err := s.asserts.AssertExistence(ctx, SelectorLoginSubmit, true)
	if err != nil {
		return err
	}

	if err := name.SetValue(ctx, s.username); err != nil {
		return err
	}
	if err := pass.SetValue(ctx, s.password); err != nil {
		return err
	}
	if err := submit.Press(ctx); err != nil {
		return err
	}

	failed, err := s.asserts.AssertExistence(ctx, SelectorLoginError, false)
	if err != nil {
		return err
	}
	if failed != nil {
		return faults.AuthenticationFailed()
	}
	s.logger.Info("Logged in", zap.String("username", s.username))
	return nil
}

// PageContent returns the current document, or an empty string when it
// cannot be read.
func (s *Session) PageContent(ctx context.Context) string {
	content, err := s.client.Content(ctx)
	if err != nil {
		s.logger.Debug("Could not read page content", zap.Error(err))
		return ""
	}
	return content
}

// Close releases the page client.
func (s *Session) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}
