// internal/browser/cdp/element.go
package cdp

import (
	"context"
	"fmt"
	"strings"

	cdproto "github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/kickstart-cli/internal/browser"
)

// element addresses a DOM node by its protocol node ID. IDs are invalidated
// by the next document load.
type element struct {
	client *Client
	id     cdproto.NodeID
	name   string
}

var _ browser.Element = (*element)(nil)

func (e *element) ids() []cdproto.NodeID { return []cdproto.NodeID{e.id} }

func (e *element) Text(ctx context.Context) (string, error) {
	var text string
	if err := e.client.run(ctx, chromedp.Text(e.ids(), &text, chromedp.ByNodeID)); err != nil {
		return "", fmt.Errorf("failed to read text of <%s>: %w", e.name, err)
	}
	return strings.Join(strings.Fields(text), " "), nil
}

func (e *element) Attribute(ctx context.Context, name string) (string, bool, error) {
	var (
		value string
		ok    bool
	)
	if err := e.client.run(ctx, chromedp.AttributeValue(e.ids(), name, &value, &ok, chromedp.ByNodeID)); err != nil {
		return "", false, fmt.Errorf("failed to read attribute '%s' of <%s>: %w", name, e.name, err)
	}
	return value, ok, nil
}

func (e *element) SetValue(ctx context.Context, value string) error {
	if e.name != "input" && e.name != "textarea" {
		return fmt.Errorf("element <%s> is not a supported text input type", e.name)
	}
	return e.client.run(ctx, chromedp.SetValue(e.ids(), value, chromedp.ByNodeID))
}

// SelectOption sets the select's value and verifies that an option with
// that value exists, since the DOM silently ignores unknown values.
func (e *element) SelectOption(ctx context.Context, value string) error {
	if e.name != "select" {
		return fmt.Errorf("element <%s> is not a select element", e.name)
	}
	var got string
	err := e.client.run(ctx,
		chromedp.SetValue(e.ids(), value, chromedp.ByNodeID),
		chromedp.Value(e.ids(), &got, chromedp.ByNodeID),
	)
	if err != nil {
		return err
	}
	if got != value {
		return fmt.Errorf("option with value '%s' not found in select element", value)
	}
	return nil
}

// Press clicks the node and waits for the page load it triggers.
func (e *element) Press(ctx context.Context) error {
	e.client.drainLoads()
	if err := e.client.run(ctx, chromedp.Click(e.ids(), chromedp.ByNodeID)); err != nil {
		return fmt.Errorf("failed to click <%s>: %w", e.name, err)
	}
	if err := e.client.waitForLoad(ctx); err != nil {
		return err
	}
	var loc string
	if err := e.client.run(ctx, chromedp.WaitReady("body", chromedp.ByQuery), chromedp.Location(&loc)); err != nil {
		return fmt.Errorf("page did not become ready after click: %w", err)
	}
	e.client.mu.Lock()
	e.client.docURL = loc
	e.client.mu.Unlock()
	return nil
}
