// File: internal/install/poller_test.go
package install

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/kickstart-cli/internal/browser/dom"
	"github.com/xkilldash9x/kickstart-cli/internal/browser/session"
	"github.com/xkilldash9x/kickstart-cli/internal/config"
	"github.com/xkilldash9x/kickstart-cli/internal/faults"
	"github.com/xkilldash9x/kickstart-cli/internal/observability"
)

// progressServer serves a batch page that reaches 100% on load number
// doneAt. A negative doneAt never completes; withoutPercentage drops the
// percentage element.
func progressServer(t *testing.T, doneAt int, withoutPercentage bool) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var loads atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(loads.Add(1))
		pct := 50
		if doneAt >= 0 && n >= doneAt {
			pct = 100
		}
		w.Header().Set("Content-Type", "text/html")
		pctHTML := fmt.Sprintf(`<div class="percentage">%d%%</div>`, pct)
		if withoutPercentage {
			pctHTML = ""
		}
		fmt.Fprintf(w, `<html><body><div class="progress">%s<div class="message">Installed %d modules.Configuring store</div></div></body></html>`, pctHTML, n)
	}))
	t.Cleanup(server.Close)
	return server, &loads
}

func newPoller(t *testing.T, target string, logger *zap.Logger, metrics *observability.Metrics, maxPolls int, timeout time.Duration) *Poller {
	t.Helper()
	client := session.NewSession(context.Background(), config.BrowserConfig{Timeout: 5 * time.Second}, nil)
	t.Cleanup(func() { client.Close(context.Background()) })
	require.NoError(t, client.Navigate(context.Background(), target))

	diag := observability.NewDiagnostics(logger, true)
	return &Poller{
		client:   client,
		asserts:  dom.NewAsserter(client, diag),
		diag:     diag,
		metrics:  metrics,
		interval: time.Millisecond,
		maxPolls: maxPolls,
		timeout:  timeout,
	}
}

func TestPollerWaitsForCompletion(t *testing.T) {
	server, loads := progressServer(t, 4, false)
	core, logs := observer.New(zap.InfoLevel)
	metrics := observability.NewMetrics()
	p := newPoller(t, server.URL, zap.New(core), metrics, 10, time.Minute)

	polls, err := p.Wait(context.Background(), StageInstallProfile)
	require.NoError(t, err)
	assert.Equal(t, 3, polls)
	assert.EqualValues(t, 4, loads.Load())
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.PollsTotal.WithLabelValues(StageInstallProfile)))

	progress := logs.FilterField(zap.Int("poll", 1)).All()
	require.Len(t, progress, 1)
	assert.Equal(t, "Installed 2 modules. Configuring store", progress[0].Message)
}

func TestPollerNoProgressBar(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><form><input id="edit-site-mail"></form></body></html>`)
	}))
	defer server.Close()
	p := newPoller(t, server.URL, zap.NewNop(), nil, 10, time.Minute)

	polls, err := p.Wait(context.Background(), StageInstallProfile)
	require.NoError(t, err)
	assert.Zero(t, polls)
}

func TestPollerMaxPolls(t *testing.T) {
	server, loads := progressServer(t, -1, false)
	p := newPoller(t, server.URL, zap.NewNop(), nil, 3, time.Minute)

	polls, err := p.Wait(context.Background(), StageConfigureStore)
	assert.Equal(t, 3, polls)
	var fe *faults.Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, faults.KindInstallTimeout, fe.Kind)
	assert.Equal(t, StageConfigureStore, fe.Stage)
	assert.EqualValues(t, 4, loads.Load())
}

func TestPollerMissingPercentageKeepsPolling(t *testing.T) {
	server, _ := progressServer(t, 1, true)
	p := newPoller(t, server.URL, zap.NewNop(), nil, 2, time.Minute)

	_, err := p.Wait(context.Background(), StageInstallProfile)
	assert.True(t, errors.Is(err, faults.ErrInstallTimeout))
}

func TestPollerWallClockBudget(t *testing.T) {
	server, _ := progressServer(t, -1, false)
	p := newPoller(t, server.URL, zap.NewNop(), nil, 1_000_000, 50*time.Millisecond)
	p.interval = 20 * time.Millisecond

	_, err := p.Wait(context.Background(), StageInstallProfile)
	assert.True(t, errors.Is(err, faults.ErrInstallTimeout), "got %v", err)
}

func TestPollerHonorsCancellation(t *testing.T) {
	server, _ := progressServer(t, -1, false)
	p := newPoller(t, server.URL, zap.NewNop(), nil, 1_000_000, time.Minute)
	p.interval = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := p.Wait(ctx, StageInstallProfile)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, errors.Is(err, faults.ErrInstallTimeout))
}

func TestPollerErrorPageIsNotCompletion(t *testing.T) {
	var loads atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if loads.Add(1) > 1 {
			http.Error(w, "The website encountered an unexpected error.", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `<html><body><div class="progress"><div class="percentage">40%</div></div></body></html>`)
	}))
	defer server.Close()
	metrics := observability.NewMetrics()
	p := newPoller(t, server.URL, zap.NewNop(), metrics, 10, time.Minute)

	polls, err := p.Wait(context.Background(), StageInstallProfile)
	assert.Equal(t, 1, polls)
	var fe *faults.Error
	require.True(t, errors.As(err, &fe), "got %v", err)
	assert.Equal(t, faults.KindNavigation, fe.Kind)
	assert.Equal(t, http.StatusInternalServerError, fe.Status)
	assert.Contains(t, fe.URL, server.URL)
	assert.False(t, errors.Is(err, faults.ErrInstallTimeout))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.NavigationsTotal.WithLabelValues("5xx")))
}
