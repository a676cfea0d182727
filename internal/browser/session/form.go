// internal/browser/session/form.go
package session

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// submitForm serializes form the way a browser does for the given submitter
// and sends it. The submitter's name=value pair is included, which Drupal
// relies on to tell apart buttons sharing one form (the "op" field).
func (s *Session) submitForm(ctx context.Context, form, submitter *html.Node) error {
	s.mu.RLock()
	action := htmlquery.SelectAttr(form, "action")
	method := strings.ToUpper(htmlquery.SelectAttr(form, "method"))
	enctype := strings.ToLower(htmlquery.SelectAttr(form, "enctype"))
	fields, err := serializeForm(form, submitter)
	s.mu.RUnlock()
	if err != nil {
		return err
	}

	if method != http.MethodPost {
		method = http.MethodGet
	}

	targetURL, err := s.resolveURL(action)
	if err != nil {
		return fmt.Errorf("failed to determine form submission URL: %w", err)
	}

	submitCtx, submitCancel := CombineContext(s.ctx, ctx)
	defer submitCancel()

	var req *http.Request
	switch {
	case method == http.MethodPost && enctype == "multipart/form-data":
		body, contentType, err := encodeMultipart(fields)
		if err != nil {
			return err
		}
		req, err = http.NewRequestWithContext(submitCtx, method, targetURL.String(), body)
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", contentType)
	case method == http.MethodPost:
		req, err = http.NewRequestWithContext(submitCtx, method, targetURL.String(), strings.NewReader(fields.Encode()))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	default:
		target := *targetURL
		target.RawQuery = fields.Encode()
		req, err = http.NewRequestWithContext(submitCtx, method, target.String(), nil)
		if err != nil {
			return err
		}
	}

	s.logger.Debug("Submitting form", zap.String("method", method), zap.String("url", targetURL.String()))
	return s.executeRequest(submitCtx, req)
}

// serializeForm collects the successful controls of form. Must be called
// with the session lock held.
func serializeForm(form, submitter *html.Node) (url.Values, error) {
	controls, err := htmlquery.QueryAll(form, ".//input | .//textarea | .//select | .//button")
	if err != nil {
		return nil, fmt.Errorf("failed to query form elements: %w", err)
	}

	data := url.Values{}
	for _, c := range controls {
		name := htmlquery.SelectAttr(c, "name")
		if name == "" || hasAttr(c, "disabled") {
			continue
		}
		inputType := strings.ToLower(htmlquery.SelectAttr(c, "type"))

		switch strings.ToLower(c.Data) {
		case "input":
			switch inputType {
			case "checkbox", "radio":
				if hasAttr(c, "checked") {
					value := htmlquery.SelectAttr(c, "value")
					if value == "" {
						value = "on"
					}
					data.Add(name, value)
				}
			case "submit", "image", "button", "reset":
				if c == submitter {
					data.Add(name, htmlquery.SelectAttr(c, "value"))
				}
			case "file":
				// Nothing selected.
			default:
				data.Add(name, htmlquery.SelectAttr(c, "value"))
			}
		case "button":
			if c == submitter {
				data.Add(name, htmlquery.SelectAttr(c, "value"))
			}
		case "textarea":
			data.Add(name, htmlquery.InnerText(c))
		case "select":
			options := htmlquery.Find(c, ".//option")
			picked := false
			for _, opt := range options {
				if hasAttr(opt, "selected") {
					data.Add(name, optionValue(opt))
					picked = true
				}
			}
			// A single select without an explicit selection submits its first option.
			if !picked && len(options) > 0 && !hasAttr(c, "multiple") {
				data.Add(name, optionValue(options[0]))
			}
		}
	}
	return data, nil
}

func encodeMultipart(fields url.Values) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, values := range fields {
		for _, v := range values {
			if err := w.WriteField(name, v); err != nil {
				return nil, "", fmt.Errorf("failed to encode multipart field '%s': %w", name, err)
			}
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}
