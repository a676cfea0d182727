// File: internal/install/driver_test.go
package install

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/kickstart-cli/internal/commerce"
	"github.com/xkilldash9x/kickstart-cli/internal/config"
	"github.com/xkilldash9x/kickstart-cli/internal/faults"
	"github.com/xkilldash9x/kickstart-cli/internal/observability"
	"github.com/xkilldash9x/kickstart-cli/internal/testing/fakesite"
)

var params = Params{DBName: "kickstart", DBUser: "drupal", DBPass: "s3cret", SiteMail: "admin@shop.test"}

func installConfig() config.InstallConfig {
	return config.InstallConfig{
		PollInterval:     time.Millisecond,
		MaxPolls:         50,
		PollTimeout:      time.Minute,
		StoreSettle:      time.Millisecond,
		PostInstallPath:  "install.php?locale=en",
		SiteNameSelector: "h2.site-name",
	}
}

type fixture struct {
	driver  *Driver
	metrics *observability.Metrics
	logs    *observer.ObservedLogs
}

func newFixture(t *testing.T, baseURL string, verbose bool) *fixture {
	t.Helper()
	client, err := commerce.OpenClient(context.Background(),
		config.BrowserConfig{Backend: config.BackendHTTP, Timeout: 10 * time.Second}, zaptest.NewLogger(t), false)
	require.NoError(t, err)

	core, logs := observer.New(zap.DebugLevel)
	metrics := observability.NewMetrics()
	s := commerce.NewSession(client, config.SiteConfig{BaseURL: baseURL, Verbose: verbose}, zap.New(core), metrics)
	t.Cleanup(func() { s.Close(context.Background()) })

	return &fixture{
		driver:  NewDriver(s, installConfig(), "Commerce Kickstart"),
		metrics: metrics,
		logs:    logs,
	}
}

func TestInstallResumesFromDetectedTask(t *testing.T) {
	tests := []struct {
		task   string
		stages []string
	}{
		{StageChooseLanguage, []string{"choose_language", "set_up_database", "install_profile", "configure_site", "configure_store", "finished"}},
		{StageSetUpDatabase, []string{"set_up_database", "install_profile", "configure_site", "configure_store", "finished"}},
		{StageInstallProfile, []string{"install_profile", "configure_site", "configure_store", "finished"}},
		{StageConfigureSite, []string{"configure_site", "configure_store", "finished"}},
		{StageConfigureStore, []string{"configure_store", "finished"}},
		{StageFinished, []string{"finished"}},
	}
	for _, tt := range tests {
		t.Run(tt.task, func(t *testing.T) {
			site := fakesite.New(t, fakesite.Options{Task: tt.task, ProfilePolls: 3, StorePolls: 2})
			fx := newFixture(t, site.URL, false)

			report, err := fx.driver.Install(context.Background(), params)
			require.NoError(t, err)
			assert.Equal(t, tt.task, report.DetectedTask)
			if diff := cmp.Diff(tt.stages, report.StageNames()); diff != "" {
				t.Errorf("stages mismatch (-want +got):\n%s", diff)
			}
			assert.True(t, site.Installed())
			assert.Positive(t, report.Duration)
		})
	}
}

func TestInstallFillsForms(t *testing.T) {
	site := fakesite.New(t, fakesite.Options{Task: StageSetUpDatabase, ProfilePolls: 3, StorePolls: 2})
	fx := newFixture(t, site.URL, false)

	report, err := fx.driver.Install(context.Background(), params)
	require.NoError(t, err)

	db := site.Database()
	assert.Equal(t, "kickstart", db.Get("mysql[database]"))
	assert.Equal(t, "drupal", db.Get("mysql[username]"))
	assert.Equal(t, "s3cret", db.Get("mysql[password]"))
	assert.Equal(t, "admin@shop.test", site.SiteMail())

	// The profile batch page is loaded once by the redirect and then
	// reloaded until it shows 100%.
	polls := map[string]int{}
	for _, s := range report.Stages {
		polls[s.Name] = s.Polls
	}
	assert.Equal(t, 2, polls[StageInstallProfile])
	assert.Equal(t, 1, polls[StageConfigureStore])

	assert.Equal(t, 2.0, testutil.ToFloat64(fx.metrics.PollsTotal.WithLabelValues(StageInstallProfile)))
	assert.Equal(t, 1.0, testutil.ToFloat64(fx.metrics.StepsTotal.WithLabelValues(Flow, StageSetUpDatabase, "ok")))
	assert.Zero(t, testutil.CollectAndCount(fx.metrics.FailuresTotal), "no failure series expected")
}

func TestInstallVerboseBanner(t *testing.T) {
	site := fakesite.New(t, fakesite.Options{Task: StageConfigureSite})
	fx := newFixture(t, site.URL, true)

	_, err := fx.driver.Install(context.Background(), params)
	require.NoError(t, err)

	var banners []string
	for _, e := range fx.logs.FilterLevelExact(zap.InfoLevel).All() {
		if _, ok := e.ContextMap()["stage"]; ok {
			banners = append(banners, e.Message)
		}
	}
	assert.Equal(t, []string{"Step: Configure site", "Step: Configure store", "Step: Finished"}, banners)
	assert.Equal(t, 1, fx.logs.FilterMessage("Installation finished.").Len())
}

func TestInstallFailures(t *testing.T) {
	tests := []struct {
		name  string
		opts  fakesite.Options
		want  *faults.Error
		check func(t *testing.T, report *Report, site *fakesite.Site)
	}{
		{
			name: "profile not preselected",
			opts: fakesite.Options{Task: TaskChooseProfile},
			want: faults.ErrProfileNotPreselected,
			check: func(t *testing.T, report *Report, site *fakesite.Site) {
				assert.Empty(t, report.Stages)
				assert.Empty(t, site.Posts(), "no stage action may run")
			},
		},
		{
			name: "unmet requirements",
			opts: fakesite.Options{Task: TaskVerifyRequirements},
			want: faults.ErrUnmetRequirements,
			check: func(t *testing.T, report *Report, site *fakesite.Site) {
				assert.Empty(t, site.Posts())
			},
		},
		{
			name: "no task list",
			opts: fakesite.Options{Task: StageSetUpDatabase, NoTasks: true},
			want: faults.ErrNoActiveInstallTask,
		},
		{
			name: "database input missing",
			opts: fakesite.Options{Task: StageSetUpDatabase, OmitDBUser: true},
			want: faults.ErrMissingInput,
			check: func(t *testing.T, report *Report, site *fakesite.Site) {
				assert.Equal(t, []string{StageSetUpDatabase}, report.StageNames())
				assert.Empty(t, site.Posts(), "the form must not be submitted")
			},
		},
		{
			name: "wrong front page",
			opts: fakesite.Options{Task: StageFinished, SiteName: "Drupal"},
			want: faults.ErrInstallationIncomplete,
		},
		{
			name: "batch never completes",
			opts: fakesite.Options{Task: StageInstallProfile, ProfilePolls: 1000},
			want: faults.ErrInstallTimeout,
			check: func(t *testing.T, report *Report, site *fakesite.Site) {
				require.Len(t, report.Stages, 1)
				assert.Equal(t, 50, report.Stages[0].Polls)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			site := fakesite.New(t, tt.opts)
			fx := newFixture(t, site.URL, false)

			report, err := fx.driver.Install(context.Background(), params)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			require.NotNil(t, report)
			if tt.check != nil {
				tt.check(t, report, site)
			}
			assert.Equal(t, 1.0, testutil.ToFloat64(fx.metrics.FailuresTotal.WithLabelValues(Flow, tt.want.Kind.String())))
		})
	}
}

func TestInstallUnknownTask(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><ol class="task-list">
<li class="done">Choose profile</li>
<li class="active">Import translations<span class="element-invisible"> (active)</span></li>
</ol></body></html>`)
	}))
	defer server.Close()
	fx := newFixture(t, server.URL, false)

	report, err := fx.driver.Install(context.Background(), params)
	var fe *faults.Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, faults.KindUnknownInstallTask, fe.Kind)
	assert.Equal(t, "import_translations", fe.Task)
	assert.Equal(t, "import_translations", report.DetectedTask)
	assert.Len(t, report.Tasks, 2)
}

func TestInstallSiteUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer server.Close()
	fx := newFixture(t, server.URL, false)

	_, err := fx.driver.Install(context.Background(), params)
	var fe *faults.Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, faults.KindNavigation, fe.Kind)
	assert.Equal(t, http.StatusServiceUnavailable, fe.Status)
}

func TestInstallCanceled(t *testing.T) {
	site := fakesite.New(t, fakesite.Options{Task: StageInstallProfile, ProfilePolls: 1000})
	fx := newFixture(t, site.URL, false)
	fx.driver.poller.interval = 5 * time.Millisecond
	fx.driver.poller.maxPolls = 1_000_000

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	_, err := fx.driver.Install(ctx, params)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStages(t *testing.T) {
	d := &Driver{}
	assert.Equal(t, []string{"choose_language", "set_up_database", "install_profile", "configure_site", "configure_store", "finished"}, d.Stages())
}
