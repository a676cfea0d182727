// internal/browser/session/element.go
package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/kickstart-cli/internal/browser"
	"github.com/xkilldash9x/kickstart-cli/internal/browser/dom"
)

// element is a handle on a node of the session's current DOM.
type element struct {
	session    *Session
	node       *html.Node
	generation uint64
}

var _ browser.Element = (*element)(nil)

// checkFresh must be called with the session lock held.
func (e *element) checkFresh() error {
	if e.generation != e.session.generation {
		return ErrStaleElement
	}
	return nil
}

func (e *element) tag() string { return strings.ToLower(e.node.Data) }

func (e *element) String() string {
	id, _ := dom.Attr(e.node, "id")
	return fmt.Sprintf("%s#%s", e.tag(), id)
}

func (e *element) Text(ctx context.Context) (string, error) {
	e.session.mu.RLock()
	defer e.session.mu.RUnlock()
	if err := e.checkFresh(); err != nil {
		return "", err
	}
	return dom.Text(e.node), nil
}

func (e *element) Attribute(ctx context.Context, name string) (string, bool, error) {
	e.session.mu.RLock()
	defer e.session.mu.RUnlock()
	if err := e.checkFresh(); err != nil {
		return "", false, err
	}
	v, ok := dom.Attr(e.node, name)
	return v, ok, nil
}

// SetValue writes the value attribute of an input, or the text of a
// textarea. The change is picked up by the next form submission.
func (e *element) SetValue(ctx context.Context, value string) error {
	e.session.mu.Lock()
	defer e.session.mu.Unlock()
	if err := e.checkFresh(); err != nil {
		return err
	}

	switch e.tag() {
	case "textarea":
		for c := e.node.FirstChild; c != nil; {
			next := c.NextSibling
			e.node.RemoveChild(c)
			c = next
		}
		e.node.AppendChild(&html.Node{Type: html.TextNode, Data: value})
	case "input":
		setAttr(e.node, "value", value)
	default:
		return fmt.Errorf("element '%s' is not a supported text input type", e)
	}
	return nil
}

// SelectOption marks the option with the given value as selected, matching
// on the option text when it has no value attribute.
func (e *element) SelectOption(ctx context.Context, value string) error {
	e.session.mu.Lock()
	defer e.session.mu.Unlock()
	if err := e.checkFresh(); err != nil {
		return err
	}
	if e.tag() != "select" {
		return fmt.Errorf("element '%s' is not a select element", e)
	}

	options, err := htmlquery.QueryAll(e.node, ".//option")
	if err != nil {
		return fmt.Errorf("failed to query options for select element '%s': %w", e, err)
	}

	var match *html.Node
	for _, opt := range options {
		if optionValue(opt) == value {
			match = opt
			break
		}
	}
	if match == nil {
		return fmt.Errorf("option with value '%s' not found in select element '%s'", value, e)
	}
	for _, opt := range options {
		if opt == match {
			setAttr(opt, "selected", "selected")
		} else {
			removeAttr(opt, "selected")
		}
	}
	return nil
}

// Press follows links and submits forms. Anything else has no effect
// without a script engine and is only logged.
func (e *element) Press(ctx context.Context) error {
	e.session.mu.RLock()
	if err := e.checkFresh(); err != nil {
		e.session.mu.RUnlock()
		return err
	}
	tag := e.tag()
	inputType := strings.ToLower(htmlquery.SelectAttr(e.node, "type"))
	href := htmlquery.SelectAttr(e.node, "href")
	form := findParentForm(e.node)
	e.session.mu.RUnlock()

	if tag == "a" && href != "" && !strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return e.session.Navigate(ctx, href)
	}

	isSubmit := (tag == "button" && (inputType == "submit" || inputType == "")) ||
		(tag == "input" && (inputType == "submit" || inputType == "image"))
	if isSubmit {
		if form == nil {
			return fmt.Errorf("submit control '%s' is not inside a form", e)
		}
		return e.session.submitForm(ctx, form, e.node)
	}

	e.session.logger.Debug("Press has no effect on element", zap.Stringer("element", e))
	return nil
}

func optionValue(opt *html.Node) string {
	if v, ok := dom.Attr(opt, "value"); ok {
		return v
	}
	return strings.TrimSpace(htmlquery.InnerText(opt))
}

func removeAttr(n *html.Node, key string) {
	for i, attr := range n.Attr {
		if attr.Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

func setAttr(n *html.Node, key, val string) {
	for i, attr := range n.Attr {
		if attr.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func findParentForm(n *html.Node) *html.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && strings.ToLower(p.Data) == "form" {
			return p
		}
	}
	return nil
}
