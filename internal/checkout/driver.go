// File: internal/checkout/driver.go
package checkout

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/kickstart-cli/internal/browser/dom"
	"github.com/xkilldash9x/kickstart-cli/internal/commerce"
	"github.com/xkilldash9x/kickstart-cli/internal/config"
	"github.com/xkilldash9x/kickstart-cli/internal/faults"
	"github.com/xkilldash9x/kickstart-cli/internal/observability"
)

// Flow labels for metrics, spans and reports.
const (
	Flow     = "checkout"
	CartFlow = "cart"
)

// Page selectors of the Commerce Kickstart cart and checkout pages.
const (
	SelectorAddToCart     = "input#edit-submit"
	SelectorStatusMessage = "div.messages.status"
	SelectorCartEmpty     = "div.cart-empty-page"
	SelectorStartCheckout = "input#edit-checkout"
	SelectorContinue      = "input#edit-continue"
	SelectorFormErrors    = "div.messages.error"
	SelectorAccountMail   = "input#edit-account-login-mail"
	SelectorPaymentName   = "input#edit-commerce-payment-payment-details-name"
	SelectorCompletion    = "div.checkout-completion-message a"
)

// Customer profiles and address lines filled on the information page.
var (
	profiles     = []string{"shipping", "billing"}
	addressParts = []string{"name-line", "thoroughfare", "locality", "postal-code"}
)

// AddressSelector returns the input for one address line of a profile.
func AddressSelector(profile, part string) string {
	return fmt.Sprintf("input#edit-customer-profile-%s-commerce-customer-address-und-0-%s", profile, part)
}

// AdministrativeAreaSelector returns the state select of a profile.
func AdministrativeAreaSelector(profile string) string {
	return fmt.Sprintf("select#edit-customer-profile-%s-commerce-customer-address-und-0-administrative-area", profile)
}

// Level is a checkout depth. Reaching a level runs every level below it.
type Level int

const (
	LevelStart Level = iota + 1
	LevelInformation
	LevelShipping
	LevelReview
)

// MaxLevel is the deepest level, which places the order.
const MaxLevel = LevelReview

var levelNames = map[Level]string{
	LevelStart:       "start",
	LevelInformation: "information",
	LevelShipping:    "shipping",
	LevelReview:      "review",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// Valid reports whether l is within 1..4.
func (l Level) Valid() bool {
	return l >= LevelStart && l <= MaxLevel
}

// LevelResult records one executed level.
type LevelResult struct {
	Level    Level         `json:"level"`
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

// Report summarizes a checkout run. It is returned even when Checkout fails.
type Report struct {
	RunID         string        `json:"run_id"`
	Target        Level         `json:"target"`
	Levels        []LevelResult `json:"levels"`
	CompletionURL string        `json:"completion_url,omitempty"`
	Duration      time.Duration `json:"duration"`
}

// LevelNames lists the executed levels in order.
func (r *Report) LevelNames() []string {
	names := make([]string, len(r.Levels))
	for i, l := range r.Levels {
		names[i] = l.Name
	}
	return names
}

type level struct {
	level Level
	run   func(ctx context.Context, r *Report) error
}

// Driver adds products to the cart and walks the checkout pages.
type Driver struct {
	session *commerce.Session
	asserts *dom.Asserter
	diag    *observability.Diagnostics
	cfg     config.CheckoutConfig
	filler  *commerce.Filler
	logger  *zap.Logger
}

// NewDriver creates a checkout driver. A nil filler is seeded from cfg.Seed.
func NewDriver(session *commerce.Session, cfg config.CheckoutConfig, filler *commerce.Filler) *Driver {
	if filler == nil {
		filler = commerce.NewFiller(cfg.Seed)
	}
	if cfg.FillerLength <= 0 {
		cfg.FillerLength = 8
	}
	return &Driver{
		session: session,
		asserts: session.Asserter(),
		diag:    session.Diagnostics(),
		cfg:     cfg,
		filler:  filler,
		logger:  session.Logger().Named(Flow),
	}
}

// AddToCart puts one unit of the product displayed at node/<productID> into
// the cart. productID must be a positive integer; otherwise nothing is
// requested.
func (d *Driver) AddToCart(ctx context.Context, productID string) (err error) {
	id, convErr := strconv.Atoi(productID)
	if convErr != nil || id <= 0 {
		return faults.InvalidProductID(productID)
	}

	ctx, span := observability.StartSpan(ctx, CartFlow+".add",
		observability.AttrFlow.String(CartFlow),
		observability.AttrProduct.Int(id))
	start := time.Now()
	defer func() {
		d.session.Metrics().ObserveStep(CartFlow, "add", time.Since(start).Seconds(), err)
		d.session.Metrics().ObserveFailure(CartFlow, err)
		observability.EndSpan(span, err)
	}()

	if err := d.session.Visit(ctx, "node/"+strconv.Itoa(id)); err != nil {
		return err
	}
	if err := d.press(ctx, SelectorAddToCart); err != nil {
		return err
	}
	if !d.asserts.AssertText(ctx, SelectorStatusMessage, d.cfg.SuccessText) {
		return faults.AddToCartFailed(productID)
	}
	d.logger.Info("Added product to cart", zap.Int("product_id", id))
	return nil
}

// levels returns every level in ascending order.
func (d *Driver) levels() []level {
	return []level{
		{LevelStart, d.start},
		{LevelInformation, d.information},
		{LevelShipping, d.shipping},
		{LevelReview, d.review},
	}
}

// Checkout opens the cart and runs levels 1..target in order. The cart must
// hold at least one item.
func (d *Driver) Checkout(ctx context.Context, target Level) (report *Report, err error) {
	report = &Report{RunID: d.session.ID(), Target: target}
	if !target.Valid() {
		return report, faults.InvalidCheckoutLevel(int(target))
	}

	ctx, span := observability.StartSpan(ctx, Flow,
		observability.AttrFlow.String(Flow),
		observability.AttrRunID.String(d.session.ID()))
	start := time.Now()
	defer func() {
		report.Duration = time.Since(start)
		if err != nil {
			d.session.Metrics().ObserveFailure(Flow, err)
			d.logger.Debug("Checkout stopped", zap.Error(err), zap.Stringer("kind", faults.KindOf(err)))
		}
		observability.EndSpan(span, err)
	}()

	if err := d.session.Visit(ctx, "cart"); err != nil {
		return report, err
	}
	if d.asserts.AssertText(ctx, SelectorCartEmpty, d.cfg.EmptyText) {
		return report, faults.EmptyCart()
	}

	for _, l := range d.levels()[:target] {
		res, err := d.runLevel(ctx, l, report)
		report.Levels = append(report.Levels, res)
		if err != nil {
			return report, err
		}
	}
	d.logger.Info("Checkout finished", zap.Stringer("level", target), zap.String("completion_url", report.CompletionURL))
	return report, nil
}

func (d *Driver) runLevel(ctx context.Context, l level, r *Report) (LevelResult, error) {
	ctx, span := observability.StartSpan(ctx, Flow+"."+l.level.String(),
		observability.AttrFlow.String(Flow),
		observability.AttrStep.String(l.level.String()))
	d.diag.Stage(Flow + "_" + l.level.String())

	res := LevelResult{Level: l.level, Name: l.level.String()}
	start := time.Now()
	err := l.run(ctx, r)
	res.Duration = time.Since(start)
	res.Err = err

	d.session.Metrics().ObserveStep(Flow, res.Name, res.Duration.Seconds(), err)
	observability.EndSpan(span, err)
	return res, err
}

// -- Level actions --

func (d *Driver) press(ctx context.Context, selector string) error {
	el, err := d.asserts.AssertExistence(ctx, selector, true)
	if err != nil {
		return err
	}
	return el.Press(ctx)
}

func (d *Driver) fill(ctx context.Context, selector, value string) error {
	el, err := d.asserts.AssertExistence(ctx, selector, true)
	if err != nil {
		return err
	}
	return el.SetValue(ctx, value)
}

// continueTo presses continue and fails with the page's validation errors.
func (d *Driver) continueTo(ctx context.Context, stage string) error {
	if err := d.press(ctx, SelectorContinue); err != nil {
		return err
	}
	errs, err := d.asserts.AssertExistence(ctx, SelectorFormErrors, false)
	if err != nil {
		return err
	}
	if errs != nil {
		return faults.CheckoutFormInvalid(stage)
	}
	return nil
}

func (d *Driver) start(ctx context.Context, _ *Report) error {
	return d.press(ctx, SelectorStartCheckout)
}

func (d *Driver) information(ctx context.Context, _ *Report) error {
	mail := d.filler.String(d.cfg.FillerLength) + "@" + d.cfg.EmailDomain
	if err := d.fill(ctx, SelectorAccountMail, mail); err != nil {
		return err
	}
	for _, profile := range profiles {
		for _, part := range addressParts {
			if err := d.fill(ctx, AddressSelector(profile, part), d.filler.String(d.cfg.FillerLength)); err != nil {
				return err
			}
		}
	}
	for _, profile := range profiles {
		area, err := d.asserts.AssertExistence(ctx, AdministrativeAreaSelector(profile), true)
		if err != nil {
			return err
		}
		if err := area.SelectOption(ctx, d.cfg.AdministrativeArea); err != nil {
			return err
		}
	}
	return d.continueTo(ctx, LevelInformation.String())
}

func (d *Driver) shipping(ctx context.Context, _ *Report) error {
	return d.continueTo(ctx, LevelShipping.String())
}

func (d *Driver) review(ctx context.Context, r *Report) error {
	if err := d.fill(ctx, SelectorPaymentName, d.filler.String(d.cfg.FillerLength)); err != nil {
		return err
	}
	if err := d.continueTo(ctx, LevelReview.String()); err != nil {
		return err
	}

	link, err := d.asserts.AssertExistence(ctx, SelectorCompletion, true)
	if err != nil {
		return err
	}
	href, _, err := link.Attribute(ctx, "href")
	if err != nil {
		return err
	}
	r.CompletionURL = d.absolute(href)
	d.diag.Note("Order completed", zap.String("completion_url", r.CompletionURL))
	return nil
}

// absolute resolves href against the current page.
func (d *Driver) absolute(href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	base, err := url.Parse(d.session.Client().CurrentURL())
	if err != nil || !base.IsAbs() {
		return href
	}
	return base.ResolveReference(ref).String()
}
