// File: internal/faults/faults.go
package faults

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a driver failure. Every failure a flow can surface maps to
// exactly one Kind.
type Kind int

const (
	KindUnknown Kind = iota
	KindNavigation
	KindElementNotFound
	KindMissingCredentials
	KindAuthenticationFailed
	KindMissingInput
	KindUnknownInstallTask
	KindNoActiveInstallTask
	KindProfileNotPreselected
	KindUnmetRequirements
	KindInstallationIncomplete
	KindInstallTimeout
	KindInvalidProductID
	KindAddToCartFailed
	KindEmptyCart
	KindInvalidCheckoutLevel
	KindCheckoutFormInvalid
)

var kindNames = map[Kind]string{
	KindUnknown:                "unknown",
	KindNavigation:             "navigation_error",
	KindElementNotFound:        "element_not_found",
	KindMissingCredentials:     "missing_credentials",
	KindAuthenticationFailed:   "authentication_failed",
	KindMissingInput:           "missing_input",
	KindUnknownInstallTask:     "unknown_install_task",
	KindNoActiveInstallTask:    "no_active_install_task",
	KindProfileNotPreselected:  "profile_not_preselected",
	KindUnmetRequirements:      "unmet_requirements",
	KindInstallationIncomplete: "installation_incomplete",
	KindInstallTimeout:         "install_timeout",
	KindInvalidProductID:       "invalid_product_id",
	KindAddToCartFailed:        "add_to_cart_failed",
	KindEmptyCart:              "empty_cart",
	KindInvalidCheckoutLevel:   "invalid_checkout_level",
	KindCheckoutFormInvalid:    "checkout_form_invalid",
}

// String returns the snake_case name used in logs, metrics and reports.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is the single error type surfaced by the drivers. Only the fields
// relevant to a Kind are populated.
type Error struct {
	Kind     Kind
	Message  string
	URL      string
	Status   int
	Selector string
	Task     string
	Stage    string
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	var details []string
	if e.URL != "" {
		details = append(details, "url="+e.URL)
	}
	if e.Status != 0 {
		details = append(details, fmt.Sprintf("status=%d", e.Status))
	}
	if e.Selector != "" {
		details = append(details, "selector="+e.Selector)
	}
	if e.Task != "" {
		details = append(details, "task="+e.Task)
	}
	if e.Stage != "" {
		details = append(details, "stage="+e.Stage)
	}
	if len(details) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(details, ", "))
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind. When the target carries a Stage, the stage must match as well,
// so errors.Is(err, faults.CheckoutFormInvalid("information")) is precise.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Stage == "" || t.Stage == e.Stage
}

// Sentinels for errors.Is comparisons.
var (
	ErrNavigation             = &Error{Kind: KindNavigation}
	ErrElementNotFound        = &Error{Kind: KindElementNotFound}
	ErrMissingCredentials     = &Error{Kind: KindMissingCredentials}
	ErrAuthenticationFailed   = &Error{Kind: KindAuthenticationFailed}
	ErrMissingInput           = &Error{Kind: KindMissingInput}
	ErrUnknownInstallTask     = &Error{Kind: KindUnknownInstallTask}
	ErrNoActiveInstallTask    = &Error{Kind: KindNoActiveInstallTask}
	ErrProfileNotPreselected  = &Error{Kind: KindProfileNotPreselected}
	ErrUnmetRequirements      = &Error{Kind: KindUnmetRequirements}
	ErrInstallationIncomplete = &Error{Kind: KindInstallationIncomplete}
	ErrInstallTimeout         = &Error{Kind: KindInstallTimeout}
	ErrInvalidProductID       = &Error{Kind: KindInvalidProductID}
	ErrAddToCartFailed        = &Error{Kind: KindAddToCartFailed}
	ErrEmptyCart              = &Error{Kind: KindEmptyCart}
	ErrInvalidCheckoutLevel   = &Error{Kind: KindInvalidCheckoutLevel}
	ErrCheckoutFormInvalid    = &Error{Kind: KindCheckoutFormInvalid}
)

// -- Constructors --

// Navigation reports a page that loaded with a non-2xx status.
func Navigation(url string, status int) *Error {
	return &Error{Kind: KindNavigation, Message: fmt.Sprintf("unsuccessful, server returned %d", status), URL: url, Status: status}
}

// NavigationFailed reports a request that never produced a response.
func NavigationFailed(url string, err error) *Error {
	return &Error{Kind: KindNavigation, Message: "request failed", URL: url, Err: err}
}

// ElementNotFound reports a mandatory element missing from the current page.
func ElementNotFound(selector string) *Error {
	return &Error{Kind: KindElementNotFound, Message: "no element matches selector", Selector: selector}
}

func MissingCredentials() *Error {
	return &Error{Kind: KindMissingCredentials, Message: "username and password must be provided for login"}
}

func AuthenticationFailed() *Error {
	return &Error{Kind: KindAuthenticationFailed, Message: "unable to login, check username and password or whether the account is blocked"}
}

// MissingInput reports a database form input the installer page lacks.
func MissingInput(selector string) *Error {
	return &Error{Kind: KindMissingInput, Message: "could not find database parameter input", Selector: selector}
}

func UnknownInstallTask(task string) *Error {
	return &Error{Kind: KindUnknownInstallTask, Message: "unknown installation task", Task: task}
}

func NoActiveInstallTask() *Error {
	return &Error{Kind: KindNoActiveInstallTask, Message: "task list has no active task"}
}

func ProfileNotPreselected() *Error {
	return &Error{Kind: KindProfileNotPreselected, Message: "installation profile should already be selected", Task: "choose_profile"}
}

func UnmetRequirements() *Error {
	return &Error{Kind: KindUnmetRequirements, Message: "unmet requirements for installation", Task: "verify_requirements"}
}

func InstallationIncomplete(expected string) *Error {
	return &Error{Kind: KindInstallationIncomplete, Message: fmt.Sprintf("front page does not show site name %q", expected)}
}

// InstallTimeout reports a batch that did not finish within the poll budget.
// err is the deadline error when the wall clock ran out.
func InstallTimeout(stage string, polls int, err error) *Error {
	return &Error{Kind: KindInstallTimeout, Message: fmt.Sprintf("progress did not complete after %d polls", polls), Stage: stage, Err: err}
}

func InvalidProductID(id string) *Error {
	return &Error{Kind: KindInvalidProductID, Message: fmt.Sprintf("product id %q is not a positive integer", id)}
}

func AddToCartFailed(productID string) *Error {
	return &Error{Kind: KindAddToCartFailed, Message: fmt.Sprintf("product %s was not added to the cart", productID)}
}

func EmptyCart() *Error {
	return &Error{Kind: KindEmptyCart, Message: "cart is empty, add a product before checkout"}
}

func InvalidCheckoutLevel(level int) *Error {
	return &Error{Kind: KindInvalidCheckoutLevel, Message: fmt.Sprintf("checkout level %d is outside 1..4", level)}
}

// CheckoutFormInvalid reports validation errors shown after a checkout page
// was submitted. stage is the level name.
func CheckoutFormInvalid(stage string) *Error {
	return &Error{Kind: KindCheckoutFormInvalid, Message: "form returned validation errors", Stage: stage}
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, KindUnknown otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
