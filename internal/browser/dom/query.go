// browser/dom/query.go
package dom

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"github.com/xkilldash9x/kickstart-cli/internal/browser"
	"golang.org/x/net/html"
)

// QueryAll evaluates selector against root and returns the matches in
// document order. XPath selectors go through htmlquery, everything else is
// compiled as CSS and matched with goquery.
func QueryAll(root *html.Node, selector string) ([]*html.Node, error) {
	if root == nil {
		return nil, nil
	}
	if browser.IsXPath(selector) {
		nodes, err := htmlquery.QueryAll(root, selector)
		if err != nil {
			return nil, fmt.Errorf("invalid XPath selector '%s': %w", selector, err)
		}
		return nodes, nil
	}

	compiled, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid CSS selector '%s': %w", selector, err)
	}
	return goquery.NewDocumentFromNode(root).FindMatcher(compiled).Nodes, nil
}

// Query returns the first match of selector, or nil.
func Query(root *html.Node, selector string) (*html.Node, error) {
	nodes, err := QueryAll(root, selector)
	if err != nil || len(nodes) == 0 {
		return nil, err
	}
	return nodes[0], nil
}

// Text returns the text content of n with runs of whitespace collapsed, the
// way a browser reports innerText for simple markup.
func Text(n *html.Node) string {
	if n == nil {
		return ""
	}
	return strings.Join(strings.Fields(htmlquery.InnerText(n)), " ")
}

// Attr returns the value of attribute name on n and whether it is present.
func Attr(n *html.Node, name string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val, true
		}
	}
	return "", false
}

// HasClass reports whether the class attribute value classes contains token.
// It takes the attribute rather than a node so every backend can use it.
func HasClass(classes, token string) bool {
	for _, c := range strings.Fields(classes) {
		if c == token {
			return true
		}
	}
	return false
}
