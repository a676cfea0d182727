// File: internal/commerce/session_test.go
package commerce

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/kickstart-cli/internal/config"
	"github.com/xkilldash9x/kickstart-cli/internal/faults"
	"github.com/xkilldash9x/kickstart-cli/internal/observability"
	"github.com/xkilldash9x/kickstart-cli/internal/testing/fakesite"
)

func browserConfig() config.BrowserConfig {
	return config.BrowserConfig{Backend: config.BackendHTTP, Timeout: 10 * time.Second, UserAgent: "kickstart-test"}
}

func newTestSession(t *testing.T, site config.SiteConfig, metrics *observability.Metrics) *Session {
	t.Helper()
	client, err := OpenClient(context.Background(), browserConfig(), zaptest.NewLogger(t), false)
	require.NoError(t, err)
	s := NewSession(client, site, zaptest.NewLogger(t), metrics)
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

func TestURL(t *testing.T) {
	s := NewSession(nil, config.SiteConfig{BaseURL: "http://shop.test/"}, nil, nil)
	assert.Equal(t, "http://shop.test/", s.URL(""))
	assert.Equal(t, "http://shop.test/user", s.URL("user"))
	assert.Equal(t, "http://shop.test/install.php?locale=en", s.URL("/install.php?locale=en"))
	assert.NotEmpty(t, s.ID())
}

func TestVisit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			w.Write([]byte(`<html><body><h2 class="site-name">Commerce Kickstart</h2></body></html>`))
		case "/moved":
			http.Redirect(w, r, "/", http.StatusFound)
		default:
			http.Error(w, "gone", http.StatusNotFound)
		}
	}))
	defer server.Close()

	metrics := observability.NewMetrics()
	s := newTestSession(t, config.SiteConfig{BaseURL: server.URL}, metrics)
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		require.NoError(t, s.Visit(ctx, ""))
		require.NoError(t, s.Visit(ctx, "moved"))
		assert.Equal(t, server.URL+"/", s.Client().CurrentURL())
	})

	t.Run("non 2xx status", func(t *testing.T) {
		err := s.Visit(ctx, "missing")
		require.Error(t, err)
		var fe *faults.Error
		require.True(t, errors.As(err, &fe))
		assert.Equal(t, faults.KindNavigation, fe.Kind)
		assert.Equal(t, http.StatusNotFound, fe.Status)
		assert.Equal(t, server.URL+"/missing", fe.URL)
	})

	t.Run("transport failure", func(t *testing.T) {
		dead := httptest.NewServer(http.NotFoundHandler())
		dead.Close()
		other := newTestSession(t, config.SiteConfig{BaseURL: dead.URL}, nil)
		err := other.Visit(ctx, "")
		assert.True(t, errors.Is(err, faults.ErrNavigation))
	})

	t.Run("canceled context", func(t *testing.T) {
		canceled, cancel := context.WithCancel(ctx)
		cancel()
		assert.ErrorIs(t, s.Visit(canceled, ""), context.Canceled)
	})

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.NavigationsTotal.WithLabelValues("2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.NavigationsTotal.WithLabelValues("4xx")))
}

func TestVisitLogsNavigationWhenVerbose(t *testing.T) {
	site := fakesite.New(t, fakesite.Options{})
	core, logs := observer.New(zap.InfoLevel)
	client, err := OpenClient(context.Background(), browserConfig(), nil, false)
	require.NoError(t, err)
	s := NewSession(client, config.SiteConfig{BaseURL: site.URL, Verbose: true}, zap.New(core), nil)
	defer s.Close(context.Background())

	require.NoError(t, s.Visit(context.Background(), ""))
	entries := logs.FilterMessage("Visited page").All()
	require.Len(t, entries, 1)
	assert.Equal(t, site.URL+"/", entries[0].ContextMap()["url"])
}

func TestLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("missing credentials never navigates", func(t *testing.T) {
		site := fakesite.New(t, fakesite.Options{Username: "admin", Password: "secret"})
		for _, creds := range [][2]string{{"", ""}, {"admin", ""}, {"", "secret"}} {
			s := newTestSession(t, config.SiteConfig{BaseURL: site.URL, Username: creds[0], Password: creds[1]}, nil)
			err := s.Login(ctx)
			assert.True(t, errors.Is(err, faults.ErrMissingCredentials), "credentials %q", creds)
		}
		assert.Zero(t, site.Requests())
	})

	t.Run("valid credentials", func(t *testing.T) {
		site := fakesite.New(t, fakesite.Options{Username: "admin", Password: "secret"})
		s := newTestSession(t, config.SiteConfig{BaseURL: site.URL, Username: "admin", Password: "secret"}, nil)
		require.NoError(t, s.Login(ctx))
		assert.Equal(t, site.URL+"/user/1", s.Client().CurrentURL())

		// The session cookie sticks for later visits.
		require.NoError(t, s.Visit(ctx, "user/1"))
	})

	t.Run("rejected credentials", func(t *testing.T) {
		site := fakesite.New(t, fakesite.Options{Username: "admin", Password: "secret"})
		s := newTestSession(t, config.SiteConfig{BaseURL: site.URL, Username: "admin", Password: "wrong"}, nil)
		err := s.Login(ctx)
		assert.True(t, errors.Is(err, faults.ErrAuthenticationFailed))
	})

	t.Run("login form missing", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<html><body><input id="edit-name"></body></html>`))
		}))
		defer server.Close()
		s := newTestSession(t, config.SiteConfig{BaseURL: server.URL, Username: "a", Password: "b"}, nil)
		err := s.Login(ctx)
		var fe *faults.Error
		require.True(t, errors.As(err, &fe))
		assert.Equal(t, faults.KindElementNotFound, fe.Kind)
		assert.Equal(t, SelectorLoginPass, fe.Selector)
	})
}

func TestPageContent(t *testing.T) {
	site := fakesite.New(t, fakesite.Options{})
	s := newTestSession(t, config.SiteConfig{BaseURL: site.URL}, nil)
	require.NoError(t, s.Visit(context.Background(), ""))
	assert.Contains(t, s.PageContent(context.Background()), "Welcome to your new store.")
}

func TestOpenClientUnknownBackend(t *testing.T) {
	_, err := OpenClient(context.Background(), config.BrowserConfig{Backend: "lynx"}, nil, false)
	assert.EqualError(t, err, `unknown browser backend "lynx"`)
}
