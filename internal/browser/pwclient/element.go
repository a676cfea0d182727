// internal/browser/pwclient/element.go
package pwclient

import (
	"context"
	"fmt"
	"strings"

	"github.com/playwright-community/playwright-go"

	"github.com/xkilldash9x/kickstart-cli/internal/browser"
)

type element struct {
	client  *Client
	locator playwright.Locator
}

var _ browser.Element = (*element)(nil)

func (e *element) Text(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text, err := e.locator.TextContent()
	if err != nil {
		return "", err
	}
	return strings.Join(strings.Fields(text), " "), nil
}

func (e *element) Attribute(ctx context.Context, name string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	present, err := e.locator.Evaluate("(el, name) => el.hasAttribute(name)", name)
	if err != nil {
		return "", false, err
	}
	if ok, _ := present.(bool); !ok {
		return "", false, nil
	}
	value, err := e.locator.GetAttribute(name)
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (e *element) SetValue(ctx context.Context, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.locator.Fill(value)
}

func (e *element) SelectOption(ctx context.Context, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	values := []string{value}
	selected, err := e.locator.SelectOption(playwright.SelectOptionValues{Values: &values})
	if err != nil {
		return err
	}
	if len(selected) == 0 {
		return fmt.Errorf("option with value '%s' not found in select element", value)
	}
	return nil
}

// Press clicks and waits for the load state of whatever page results.
func (e *element) Press(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.locator.Click(); err != nil {
		return err
	}
	return e.client.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State: playwright.LoadStateLoad,
	})
}
