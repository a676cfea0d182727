// File: internal/install/driver.go
package install

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/kickstart-cli/internal/browser"
	"github.com/xkilldash9x/kickstart-cli/internal/browser/dom"
	"github.com/xkilldash9x/kickstart-cli/internal/commerce"
	"github.com/xkilldash9x/kickstart-cli/internal/config"
	"github.com/xkilldash9x/kickstart-cli/internal/faults"
	"github.com/xkilldash9x/kickstart-cli/internal/observability"
)

// Flow is the label install runs carry in metrics, spans and reports.
const Flow = "install"

// Wizard form selectors.
const (
	SelectorSubmit   = "input#edit-submit"
	SelectorSave     = "input#edit-save"
	SelectorDBName   = "input#edit-mysql-database"
	SelectorDBUser   = "input#edit-mysql-username"
	SelectorDBPass   = "input#edit-mysql-password"
	SelectorSiteMail = "input#edit-site-mail"

	DefaultSiteNameSelector = "h2.site-name"
	DefaultPostInstallPath  = "install.php?locale=en"
)

// Stage names, in wizard order. Install resumes at the detected task and runs
// every later stage without looking at the task list again.
const (
	StageChooseLanguage = "choose_language"
	StageSetUpDatabase  = "set_up_database"
	StageInstallProfile = "install_profile"
	StageConfigureSite  = "configure_site"
	StageConfigureStore = "configure_store"
	StageFinished       = "finished"

	// Tasks the wizard can stop at that the driver cannot get past.
	TaskChooseProfile      = "choose_profile"
	TaskVerifyRequirements = "verify_requirements"
)

// Params are the values typed into the wizard. The database settings assume
// the MySQL driver form.
type Params struct {
	DBName   string
	DBUser   string
	DBPass   string
	SiteMail string
}

// StageResult records one executed stage.
type StageResult struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
	Polls    int           `json:"polls,omitempty"`
	Err      error         `json:"-"`
}

// Report summarizes an install run. It is returned even when Install fails.
type Report struct {
	RunID        string        `json:"run_id"`
	Tasks        []Task        `json:"tasks"`
	DetectedTask string        `json:"detected_task"`
	Stages       []StageResult `json:"stages"`
	Duration     time.Duration `json:"duration"`
}

// StageNames lists the executed stages in order.
func (r *Report) StageNames() []string {
	names := make([]string, len(r.Stages))
	for i, s := range r.Stages {
		names[i] = s.Name
	}
	return names
}

type stage struct {
	name string
	run  func(ctx context.Context, p Params, res *StageResult) error
}

// Driver walks the Commerce Kickstart installation wizard.
type Driver struct {
	session      *commerce.Session
	asserts      *dom.Asserter
	diag         *observability.Diagnostics
	cfg          config.InstallConfig
	distribution string
	poller       *Poller
	logger       *zap.Logger
}

// NewDriver creates a driver on top of session. distribution is the site name
// expected on the front page once installation completes.
func NewDriver(session *commerce.Session, cfg config.InstallConfig, distribution string) *Driver {
	if cfg.SiteNameSelector == "" {
		cfg.SiteNameSelector = DefaultSiteNameSelector
	}
	if cfg.PostInstallPath == "" {
		cfg.PostInstallPath = DefaultPostInstallPath
	}
	return &Driver{
		session:      session,
		asserts:      session.Asserter(),
		diag:         session.Diagnostics(),
		cfg:          cfg,
		distribution: distribution,
		logger:       session.Logger().Named(Flow),
		poller: &Poller{
			client:   session.Client(),
			asserts:  session.Asserter(),
			diag:     session.Diagnostics(),
			metrics:  session.Metrics(),
			interval: cfg.PollInterval,
			maxPolls: cfg.MaxPolls,
			timeout:  cfg.PollTimeout,
		},
	}
}

// Tasks reads the task list of the current page.
func (d *Driver) Tasks(ctx context.Context) ([]Task, error) {
	return ReadTasks(ctx, d.session.Client())
}

// pipeline returns the stages in wizard order.
func (d *Driver) pipeline() []stage {
	return []stage{
		{StageChooseLanguage, d.chooseLanguage},
		{StageSetUpDatabase, d.setUpDatabase},
		{StageInstallProfile, d.installProfile},
		{StageConfigureSite, d.configureSite},
		{StageConfigureStore, d.configureStore},
		{StageFinished, d.finished},
	}
}

// Stages lists the pipeline's stage names.
func (d *Driver) Stages() []string {
	var names []string
	for _, s := range d.pipeline() {
		names = append(names, s.name)
	}
	return names
}

// Install visits the site root, detects the active task and runs the wizard
// from there to the front page.
func (d *Driver) Install(ctx context.Context, p Params) (report *Report, err error) {
	ctx, span := observability.StartSpan(ctx, Flow,
		observability.AttrFlow.String(Flow),
		observability.AttrRunID.String(d.session.ID()))
	start := time.Now()
	report = &Report{RunID: d.session.ID()}
	defer func() {
		report.Duration = time.Since(start)
		if err != nil {
			d.session.Metrics().ObserveFailure(Flow, err)
			d.logger.Debug("Installation stopped", zap.Error(err), zap.Stringer("kind", faults.KindOf(err)))
		}
		observability.EndSpan(span, err)
	}()

	if err := d.session.Visit(ctx, ""); err != nil {
		return report, err
	}
	tasks, err := d.Tasks(ctx)
	if err != nil {
		return report, err
	}
	report.Tasks = tasks

	current, ok := CurrentTask(tasks)
	if !ok {
		return report, faults.NoActiveInstallTask()
	}
	report.DetectedTask = current
	d.logger.Info("Detected installation task", zap.String("task", current), zap.Int("tasks", len(tasks)))

	switch current {
	case TaskChooseProfile:
		return report, faults.ProfileNotPreselected()
	case TaskVerifyRequirements:
		return report, faults.UnmetRequirements()
	}

	stages := d.pipeline()
	from := -1
	for i, s := range stages {
		if s.name == current {
			from = i
			break
		}
	}
	if from < 0 {
		return report, faults.UnknownInstallTask(current)
	}

	for _, s := range stages[from:] {
		res, err := d.runStage(ctx, s, p)
		report.Stages = append(report.Stages, res)
		if err != nil {
			return report, err
		}
	}

	if !d.asserts.AssertText(ctx, d.cfg.SiteNameSelector, d.distribution) {
		return report, faults.InstallationIncomplete(d.distribution)
	}
	d.diag.Note("Installation finished.")
	d.logger.Info("Installation finished", zap.Strings("stages", report.StageNames()))
	return report, nil
}

func (d *Driver) runStage(ctx context.Context, s stage, p Params) (StageResult, error) {
	ctx, span := observability.StartSpan(ctx, Flow+"."+s.name,
		observability.AttrFlow.String(Flow),
		observability.AttrStep.String(s.name))
	d.diag.Stage(s.name)

	res := StageResult{Name: s.name}
	start := time.Now()
	err := s.run(ctx, p, &res)
	res.Duration = time.Since(start)
	res.Err = err

	if res.Polls > 0 {
		span.SetAttributes(observability.AttrPolls.Int(res.Polls))
	}
	d.session.Metrics().ObserveStep(Flow, s.name, res.Duration.Seconds(), err)
	observability.EndSpan(span, err)
	return res, err
}

// -- Stage actions --

func (d *Driver) press(ctx context.Context, selector string) error {
	el, err := d.asserts.AssertExistence(ctx, selector, true)
	if err != nil {
		return err
	}
	return el.Press(ctx)
}

func (d *Driver) chooseLanguage(ctx context.Context, _ Params, _ *StageResult) error {
	return d.press(ctx, SelectorSubmit)
}

func (d *Driver) setUpDatabase(ctx context.Context, p Params, _ *StageResult) error {
	fields := []struct{ selector, value string }{
		{SelectorDBName, p.DBName},
		{SelectorDBUser, p.DBUser},
		{SelectorDBPass, p.DBPass},
	}
	// All three inputs must exist before any is touched.
	inputs := make([]browser.Element, len(fields))
	for i, f := range fields {
		el, err := d.asserts.AssertExistence(ctx, f.selector, false)
		if err != nil {
			return err
		}
		if el == nil {
			return faults.MissingInput(f.selector)
		}
		inputs[i] = el
	}
	for i, f := range fields {
		if err := inputs[i].SetValue(ctx, f.value); err != nil {
			return err
		}
	}
	return d.press(ctx, SelectorSave)
}

func (d *Driver) installProfile(ctx context.Context, _ Params, res *StageResult) error {
	polls, err := d.poller.Wait(ctx, StageInstallProfile)
	res.Polls = polls
	if err != nil {
		return err
	}
	return d.session.Visit(ctx, d.cfg.PostInstallPath)
}

func (d *Driver) configureSite(ctx context.Context, p Params, _ *StageResult) error {
	mail, err := d.asserts.AssertExistence(ctx, SelectorSiteMail, true)
	if err != nil {
		return err
	}
	if err := mail.SetValue(ctx, p.SiteMail); err != nil {
		return err
	}
	return d.press(ctx, SelectorSubmit)
}

func (d *Driver) configureStore(ctx context.Context, _ Params, res *StageResult) error {
	if err := d.press(ctx, SelectorSubmit); err != nil {
		return err
	}
	if err := settle(ctx, d.cfg.StoreSettle); err != nil {
		return err
	}
	polls, err := d.poller.Wait(ctx, StageConfigureStore)
	res.Polls = polls
	return err
}

func (d *Driver) finished(ctx context.Context, _ Params, _ *StageResult) error {
	return d.session.Visit(ctx, "")
}

// settle pauses for d unless ctx ends first.
func settle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
