// browser/dom/asserter.go
package dom

import (
	"context"
	"strings"

	"github.com/xkilldash9x/kickstart-cli/internal/browser"
	"github.com/xkilldash9x/kickstart-cli/internal/faults"
	"github.com/xkilldash9x/kickstart-cli/internal/observability"
	"go.uber.org/zap"
)

// Asserter performs the element checks every flow is built on. A mandatory
// check that fails stops the flow; an optional one only reports absence.
type Asserter struct {
	client browser.Client
	diag   *observability.Diagnostics
}

// NewAsserter returns an Asserter on top of client. diag may be nil.
func NewAsserter(client browser.Client, diag *observability.Diagnostics) *Asserter {
	return &Asserter{client: client, diag: diag}
}

// AssertExistence looks selector up once. When nothing matches it returns
// faults.ElementNotFound if mandatory, and (nil, nil) otherwise.
func (a *Asserter) AssertExistence(ctx context.Context, selector string, mandatory bool) (browser.Element, error) {
	el, err := a.client.Find(ctx, selector)
	if err != nil {
		return nil, err
	}
	a.diag.Found(selector, el != nil)
	if el == nil && mandatory {
		return nil, faults.ElementNotFound(selector)
	}
	return el, nil
}

// AssertText reports whether selector matches and the element's text
// contains substring. Absence and lookup failures both yield false.
func (a *Asserter) AssertText(ctx context.Context, selector, substring string) bool {
	el, err := a.AssertExistence(ctx, selector, false)
	if err != nil {
		a.diag.Note("Text lookup failed", zap.String("selector", selector), zap.Error(err))
		return false
	}
	ok := el != nil && a.elementContains(ctx, el, substring)
	a.diag.TextCheck(selector, substring, ok)
	return ok
}

// AssertElementText is AssertText for an already resolved element.
func (a *Asserter) AssertElementText(ctx context.Context, el browser.Element, substring string) bool {
	if el == nil {
		return false
	}
	ok := a.elementContains(ctx, el, substring)
	a.diag.TextCheck("<element>", substring, ok)
	return ok
}

func (a *Asserter) elementContains(ctx context.Context, el browser.Element, substring string) bool {
	text, err := el.Text(ctx)
	if err != nil {
		a.diag.Note("Reading element text failed", zap.Error(err))
		return false
	}
	return strings.Contains(text, substring)
}
