// File: cmd/runtime.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/kickstart-cli/internal/commerce"
	"github.com/xkilldash9x/kickstart-cli/internal/config"
	"github.com/xkilldash9x/kickstart-cli/internal/observability"
	"github.com/xkilldash9x/kickstart-cli/internal/reporting"
)

const cleanupTimeout = 10 * time.Second

// siteRun holds what a site command needs between opening the client and
// writing its outputs.
type siteRun struct {
	cfg     config.Interface
	logger  *zap.Logger
	metrics *observability.Metrics
	tracer  *observability.TracerProvider
	session *commerce.Session
	runs    []*reporting.Run
}

// startSiteRun validates the site settings and opens the page client.
func startSiteRun(cmd *cobra.Command, factory commerce.ClientFactory) (*siteRun, error) {
	ctx := cmd.Context()
	cfg, err := getConfig(ctx)
	if err != nil {
		return nil, err
	}
	if err := cfg.Site().RequireBaseURL(); err != nil {
		return nil, err
	}
	logger := observability.GetLogger()

	tracer, err := observability.NewTracerProvider(ctx, cfg.Tracing().File, cfg.Logger().ServiceName)
	if err != nil {
		return nil, err
	}

	client, err := factory.Open(ctx, cfg.Browser(), logger)
	if err != nil {
		_ = tracer.Shutdown(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("failed to open page client: %w", err)
	}

	metrics := observability.NewMetrics()
	return &siteRun{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		tracer:  tracer,
		session: commerce.NewSession(client, cfg.Site(), logger, metrics),
	}, nil
}

// record adds a flow result to the run report.
func (r *siteRun) record(run *reporting.Run) {
	r.runs = append(r.runs, run)
}

// finish closes the client and writes the report, metrics and spans. It
// returns cause when set, otherwise the first output failure.
func (r *siteRun) finish(ctx context.Context, cause error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	// Verbose runs show the page at Info, otherwise it needs a debug level.
	if diag := r.session.Diagnostics(); cause != nil && (diag.Verbose() || r.logger.Core().Enabled(zap.DebugLevel)) {
		diag.Note("Page at failure",
			zap.String("url", r.session.Client().CurrentURL()),
			zap.String("html", r.session.PageContent(ctx)))
	}

	var errs []error
	if err := r.session.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to close page client: %w", err))
	}
	if err := r.writeReport(); err != nil {
		errs = append(errs, err)
	}
	if err := r.metrics.WriteTextfile(r.cfg.Metrics().Textfile); err != nil {
		errs = append(errs, err)
	}
	if err := r.tracer.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}

	if cause != nil {
		for _, err := range errs {
			r.logger.Warn("Cleanup after failure incomplete", zap.Error(err))
		}
		return cause
	}
	return errors.Join(errs...)
}

func (r *siteRun) writeReport() error {
	rc := r.cfg.Report()
	if rc.Path == "" || len(r.runs) == 0 {
		return nil
	}
	reporter, err := reporting.New(rc.Format, rc.Path, Version)
	if err != nil {
		return err
	}
	for _, run := range r.runs {
		if err := reporter.Write(run); err != nil {
			reporter.Close()
			return err
		}
	}
	if err := reporter.Close(); err != nil {
		return err
	}
	r.logger.Info("Run report written", zap.String("path", rc.Path), zap.String("format", rc.Format))
	return nil
}
