package browser

import (
	"context"
	"strings"
)

// Client drives a single page. Implementations are not safe for concurrent
// use; a session owns exactly one Client and calls it from one goroutine.
type Client interface {
	// Navigate loads url (absolute, or relative to the current page) and
	// waits for the document to load.
	Navigate(ctx context.Context, url string) error
	// Reload re-requests the current page.
	Reload(ctx context.Context) error
	// StatusCode is the HTTP status of the last document response, 0 before
	// the first navigation.
	StatusCode() int
	// Content returns the current document as HTML.
	Content(ctx context.Context) (string, error)
	// CurrentURL is the URL of the current document after redirects.
	CurrentURL() string
	// Find returns the first element matching selector, or (nil, nil) when
	// nothing matches. Errors are reserved for transport and selector syntax
	// failures.
	Find(ctx context.Context, selector string) (Element, error)
	// FindAll returns every match in document order.
	FindAll(ctx context.Context, selector string) ([]Element, error)
	Close(ctx context.Context) error
}

// Element is a handle to a node of the current document. Handles become stale
// after the page changes.
type Element interface {
	Text(ctx context.Context) (string, error)
	Attribute(ctx context.Context, name string) (string, bool, error)
	// SetValue sets the value of a text-like input or textarea.
	SetValue(ctx context.Context, value string) error
	// SelectOption selects the option of a select element by value.
	SelectOption(ctx context.Context, value string) error
	// Press activates a button, submit input or link and waits for the
	// resulting page load.
	Press(ctx context.Context) error
}

// IsXPath reports whether selector is XPath rather than CSS.
func IsXPath(selector string) bool {
	s := strings.TrimSpace(selector)
	return strings.HasPrefix(s, "/") || strings.HasPrefix(s, "./") || strings.HasPrefix(s, "(")
}
