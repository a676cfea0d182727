// File: internal/install/poller.go
package install

import (
	"context"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/xkilldash9x/kickstart-cli/internal/browser"
	"github.com/xkilldash9x/kickstart-cli/internal/browser/dom"
	"github.com/xkilldash9x/kickstart-cli/internal/faults"
	"github.com/xkilldash9x/kickstart-cli/internal/observability"
)

// Batch progress widget selectors.
const (
	SelectorProgress   = "div.progress"
	SelectorPercentage = "div.percentage"
	SelectorMessage    = "div.message"

	completeMarker = "100%"
)

// Poller reloads a batch progress page until it reports completion.
type Poller struct {
	client   browser.Client
	asserts  *dom.Asserter
	diag     *observability.Diagnostics
	metrics  *observability.Metrics
	interval time.Duration
	maxPolls int
	timeout  time.Duration
}

// Wait blocks while a progress bar is shown and not at 100%. It returns the
// number of reloads issued. Exceeding the poll count or the wall clock budget
// yields faults.InstallTimeout; cancellation of ctx returns ctx's error.
func (p *Poller) Wait(ctx context.Context, stage string) (int, error) {
	var (
		waitCtx context.Context
		cancel  context.CancelFunc
	)
	if p.timeout > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, p.timeout)
	} else {
		waitCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(p.interval), 1)
	// Spend the burst so the first reload is followed by a full pause.
	limiter.Allow()

	polls := 0
	for {
		done, err := p.complete(waitCtx)
		if err != nil {
			return polls, p.interrupted(ctx, waitCtx, stage, polls, err)
		}
		if done {
			return polls, nil
		}
		if polls >= p.maxPolls {
			return polls, faults.InstallTimeout(stage, polls, nil)
		}

		if err := p.client.Reload(waitCtx); err != nil {
			return polls, p.interrupted(ctx, waitCtx, stage, polls, err)
		}
		polls++
		p.metrics.ObservePoll(stage)
		// An error page has no progress bar and would read as complete.
		if status := p.client.StatusCode(); status/100 != 2 {
			p.metrics.ObserveNavigation(status)
			return polls, faults.Navigation(p.client.CurrentURL(), status)
		}

		slot := limiter.Reserve()
		if err := settle(waitCtx, slot.Delay()); err != nil {
			slot.Cancel()
			return polls, p.interrupted(ctx, waitCtx, stage, polls, err)
		}
		p.report(waitCtx, polls)
	}
}

// interrupted maps an error raised while polling. Cancellation of the caller
// wins over the poll budget; other errors pass through.
func (p *Poller) interrupted(ctx, waitCtx context.Context, stage string, polls int, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if waitCtx.Err() != nil {
		return faults.InstallTimeout(stage, polls, waitCtx.Err())
	}
	return err
}

// complete reports whether the progress widget is gone or shows 100%. A bar
// without a percentage is still running.
func (p *Poller) complete(ctx context.Context) (bool, error) {
	bar, err := p.asserts.AssertExistence(ctx, SelectorProgress, false)
	if err != nil {
		return false, err
	}
	if bar == nil {
		return true, nil
	}
	pct, err := p.asserts.AssertExistence(ctx, SelectorPercentage, false)
	if err != nil || pct == nil {
		return false, err
	}
	text, err := pct.Text(ctx)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(text) == completeMarker, nil
}

// report echoes the batch message. Drupal glues sentences together
// ("modules.Installing"), so every period gets a trailing space.
func (p *Poller) report(ctx context.Context, polls int) {
	if p.diag == nil {
		return
	}
	el, err := p.client.Find(ctx, SelectorMessage)
	if err != nil || el == nil {
		return
	}
	text, err := el.Text(ctx)
	if err != nil {
		return
	}
	p.diag.Progress(strings.TrimSpace(strings.ReplaceAll(text, ".", ". ")), polls)
}
