// Package fakesite serves a small stateful imitation of a Commerce Kickstart
// site over httptest: the install wizard with its batch progress pages, the
// login form, product pages, the cart and the four checkout pages.
package fakesite

import (
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// Install tasks in the order the wizard lists them.
var TaskLabels = []struct{ Key, Label string }{
	{"choose_profile", "Choose profile"},
	{"choose_language", "Choose language"},
	{"verify_requirements", "Verify requirements"},
	{"set_up_database", "Set up database"},
	{"install_profile", "Install profile"},
	{"configure_site", "Configure site"},
	{"configure_store", "Configure store"},
	{"finished", "Finished"},
}

const sessionCookie = "SESSkickstart"

// Options shapes the site before the server starts.
type Options struct {
	// Task is the active install task. Empty means the site is installed.
	Task string
	// NoTasks renders install pages without a task list.
	NoTasks bool
	// ProfilePolls and StorePolls are the page loads each batch needs to
	// reach 100%.
	ProfilePolls int
	StorePolls   int
	// OmitDBUser drops the database username input.
	OmitDBUser bool
	SiteName   string

	Username string
	Password string
	// Products maps node ids to titles. Ids listed in SoldOut render the
	// add to cart form but never add anything.
	Products map[int]string
	SoldOut  map[int]bool
	// Cart pre-fills the cart of the first visitor session the site issues.
	Cart []int

	// Fail* make the matching checkout page return a validation error.
	FailInformation bool
	FailShipping    bool
	FailReview      bool
}

type batch struct {
	polls  int
	needed int
	done   bool
}

// Site is the running fake.
type Site struct {
	*httptest.Server

	mu        sync.Mutex
	opts      Options
	task      string
	installed bool
	batch     *batch
	db        url.Values
	siteMail  string
	// Carts and logins live in the visitor session named by the session
	// cookie, the way Drupal keeps an anonymous cart in the PHP session.
	sessions  []string
	carts     map[string][]int
	users     map[string]bool
	posts     []string
	hits      map[string]int
	checkout  url.Values
}

// New starts a site and closes it when the test ends.
func New(t testing.TB, opts Options) *Site {
	t.Helper()
	if opts.SiteName == "" {
		opts.SiteName = "Commerce Kickstart"
	}
	if opts.ProfilePolls <= 0 {
		opts.ProfilePolls = 1
	}
	if opts.StorePolls <= 0 {
		opts.StorePolls = 1
	}
	s := &Site{
		opts:      opts,
		task:      opts.Task,
		installed: opts.Task == "",
		carts:     map[string][]int{},
		users:     map[string]bool{},
		hits:      map[string]int{},
		checkout:  url.Values{},
	}
	if opts.Task == "install_profile" {
		s.batch = &batch{needed: opts.ProfilePolls}
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

func (s *Site) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/{$}", s.handleInstall)
	mux.HandleFunc("/install.php", s.handleInstall)
	mux.HandleFunc("/user", s.handleLogin)
	mux.HandleFunc("GET /user/1", s.handleAccount)
	mux.HandleFunc("/node/{id}", s.handleProduct)
	mux.HandleFunc("/cart", s.handleCart)
	mux.HandleFunc("/checkout/1", s.handleInformation)
	mux.HandleFunc("/checkout/1/shipping", s.handleShipping)
	mux.HandleFunc("/checkout/1/review", s.handleReview)
	mux.HandleFunc("GET /checkout/1/complete", s.handleComplete)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		if r.Method == http.MethodPost {
			s.posts = append(s.posts, r.URL.Path)
		}
		s.mu.Unlock()
		mux.ServeHTTP(w, r)
	})
}

// Hits counts requests to path.
func (s *Site) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// Requests is the total number of requests served.
func (s *Site) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.hits {
		n += c
	}
	return n
}

// Posts lists the paths of every form submission in order.
func (s *Site) Posts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.posts...)
}

// Cart returns the node ids in every visitor cart, oldest session first.
func (s *Site) Cart() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int
	for _, sid := range s.sessions {
		out = append(out, s.carts[sid]...)
	}
	return out
}

// Sessions is the number of visitor sessions the site has issued.
func (s *Site) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// session returns the visitor session of r, starting one with a cookie when
// the request carries none. Callers hold s.mu.
func (s *Site) session(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(sessionCookie); err == nil {
		if _, known := s.carts[c.Value]; known {
			return c.Value
		}
	}
	sid := fmt.Sprintf("sess-%d", len(s.sessions)+1)
	var cart []int
	if len(s.sessions) == 0 {
		cart = append(cart, s.opts.Cart...)
	}
	s.sessions = append(s.sessions, sid)
	s.carts[sid] = cart
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: sid, Path: "/"})
	return sid
}

// Installed reports whether the wizard reached the front page.
func (s *Site) Installed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.installed
}

// Database returns the submitted database settings.
func (s *Site) Database() url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db
}

// SiteMail returns the submitted site mail.
func (s *Site) SiteMail() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.siteMail
}

// CheckoutValues returns every field posted during checkout.
func (s *Site) CheckoutValues() url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := url.Values{}
	for k, v := range s.checkout {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// -- Pages --

func (s *Site) render(w http.ResponseWriter, status int, title, body string) {
	s.mu.Lock()
	name := s.opts.SiteName
	s.mu.Unlock()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, `<!DOCTYPE html><html><head><title>%s | %s</title></head><body>
<div id="page"><h2 class="site-name"><a href="/">%s</a></h2>
%s
</div></body></html>`, html.EscapeString(title), html.EscapeString(name), html.EscapeString(name), body)
}

func redirect(w http.ResponseWriter, r *http.Request, to string) {
	http.Redirect(w, r, to, http.StatusSeeOther)
}

func errorMessage(text string) string {
	return `<div class="messages error"><h2 class="element-invisible">Error message</h2>` + html.EscapeString(text) + `</div>`
}

// -- Install wizard --

func (s *Site) taskList() string {
	if s.opts.NoTasks {
		return ""
	}
	var b strings.Builder
	b.WriteString(`<h2 class="element-invisible">Installation tasks</h2><ol class="task-list">`)
	seen := false
	for _, t := range TaskLabels {
		switch {
		case t.Key == s.task:
			seen = true
			fmt.Fprintf(&b, `<li class="active">%s<span class="element-invisible"> (active)</span></li>`, t.Label)
		case !seen:
			fmt.Fprintf(&b, `<li class="done">%s<span class="element-invisible"> (done)</span></li>`, t.Label)
		default:
			fmt.Fprintf(&b, `<li>%s</li>`, t.Label)
		}
	}
	b.WriteString(`</ol>`)
	return b.String()
}

func installForm(fields string) string {
	return `<form action="/install.php?profile=commerce_kickstart&amp;locale=en" method="post" id="install-form">` + fields + `</form>`
}

func (s *Site) handleInstall(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.installed {
		s.mu.Unlock()
		if r.URL.Path == "/install.php" {
			s.render(w, http.StatusOK, "Drupal already installed", `<p>Drupal already installed.</p>`)
			return
		}
		s.render(w, http.StatusOK, "Welcome", `<div id="content"><p>Welcome to your new store.</p></div>`)
		return
	}

	if r.Method == http.MethodPost {
		_ = r.ParseForm()
		switch s.task {
		case "choose_language":
			s.task = "set_up_database"
		case "set_up_database":
			s.db = r.PostForm
			s.task = "install_profile"
			s.batch = &batch{needed: s.opts.ProfilePolls}
		case "configure_site":
			s.siteMail = r.PostForm.Get("site_mail")
			s.task = "configure_store"
		case "configure_store":
			s.batch = &batch{needed: s.opts.StorePolls}
		}
		s.mu.Unlock()
		redirect(w, r, "/install.php?profile=commerce_kickstart&locale=en")
		return
	}

	// A load after a finished batch moves on to the next task.
	if s.batch != nil && s.batch.done {
		s.batch = nil
		switch s.task {
		case "install_profile":
			s.task = "configure_site"
		case "configure_store":
			s.task = "finished"
		}
	}
	if s.batch != nil {
		s.batch.polls++
		pct := s.batch.polls * 100 / s.batch.needed
		if pct >= 100 {
			pct = 100
			s.batch.done = true
		}
		body := fmt.Sprintf(`%s<div id="progress" class="progress"><div class="bar"><div class="filled" style="width: %d%%"></div></div>
<div class="percentage">%d%%</div><div class="message">Installed %d of %d modules.Installing Commerce Kickstart</div></div>`,
			s.taskList(), pct, pct, s.batch.polls, s.batch.needed)
		s.mu.Unlock()
		s.render(w, http.StatusOK, "Installing", body)
		return
	}

	tasks := s.taskList()
	var body string
	switch s.task {
	case "choose_profile":
		body = installForm(`<input type="radio" name="profile" value="commerce_kickstart"><input type="submit" id="edit-submit" name="op" value="Save and continue">`)
	case "choose_language":
		body = installForm(`<input type="radio" name="locale" value="en" checked><input type="submit" id="edit-submit" name="op" value="Save and continue">`)
	case "verify_requirements":
		body = errorMessage("Requirements problem: PHP memory limit too low.")
	case "set_up_database":
		user := `<input type="text" id="edit-mysql-username" name="mysql[username]" value="">`
		if s.opts.OmitDBUser {
			user = ""
		}
		body = installForm(`<input type="radio" name="driver" value="mysql" checked>
<input type="text" id="edit-mysql-database" name="mysql[database]" value="">` + user + `
<input type="password" id="edit-mysql-password" name="mysql[password]" value="">
<input type="submit" id="edit-save" name="op" value="Save and continue">`)
	case "configure_site":
		body = installForm(`<input type="text" id="edit-site-name" name="site_name" value="Commerce Kickstart">
<input type="text" id="edit-site-mail" name="site_mail" value="">
<input type="submit" id="edit-submit" name="op" value="Save and continue">`)
	case "configure_store":
		body = installForm(`<input type="checkbox" name="install_demo_store" value="1" checked>
<input type="submit" id="edit-submit" name="op" value="Create and Finish">`)
	case "finished":
		body = `<p>Congratulations, you installed Commerce Kickstart!</p><a href="/">Visit your new site</a>`
		s.installed = true
	}
	s.mu.Unlock()
	s.render(w, http.StatusOK, "Install", tasks+body)
}

// -- Accounts --

const loginForm = `<form action="/user" method="post" id="user-login">
<input type="text" id="edit-name" name="name" value="">
<input type="password" id="edit-pass" name="pass" value="">
<input type="hidden" name="form_id" value="user_login">
<input type="submit" id="edit-submit" name="op" value="Log in">
</form>`

func (s *Site) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.render(w, http.StatusOK, "User account", loginForm)
		return
	}
	_ = r.ParseForm()
	s.mu.Lock()
	ok := s.opts.Username != "" &&
		r.PostForm.Get("name") == s.opts.Username &&
		r.PostForm.Get("pass") == s.opts.Password
	if ok {
		// The anonymous cart carries over to the account.
		s.users[s.session(w, r)] = true
	}
	s.mu.Unlock()
	if !ok {
		s.render(w, http.StatusOK, "User account", errorMessage("Sorry, unrecognized username or password.")+loginForm)
		return
	}
	redirect(w, r, "/user/1")
}

func (s *Site) handleAccount(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	var signedIn bool
	if c, err := r.Cookie(sessionCookie); err == nil {
		signedIn = s.users[c.Value]
	}
	s.mu.Unlock()
	if !signedIn {
		s.render(w, http.StatusForbidden, "Access denied", `<p>You are not authorized to access this page.</p>`)
		return
	}
	s.render(w, http.StatusOK, s.opts.Username, `<h1 class="page-title">`+html.EscapeString(s.opts.Username)+`</h1>`)
}

// -- Catalog and cart --

func (s *Site) handleProduct(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	s.mu.Lock()
	title, found := s.opts.Products[id]
	s.mu.Unlock()
	if err != nil || !found {
		s.render(w, http.StatusNotFound, "Page not found", `<p>The requested page could not be found.</p>`)
		return
	}

	form := fmt.Sprintf(`<form action="/node/%d" method="post" class="commerce-add-to-cart">
<input type="hidden" name="product_id" value="%d">
<input type="text" id="edit-quantity" name="quantity" value="1">
<input type="submit" id="edit-submit" name="op" value="Add to cart">
</form>`, id, id)

	if r.Method != http.MethodPost {
		s.render(w, http.StatusOK, title, form)
		return
	}
	s.mu.Lock()
	soldOut := s.opts.SoldOut[id]
	if !soldOut {
		sid := s.session(w, r)
		s.carts[sid] = append(s.carts[sid], id)
	}
	s.mu.Unlock()
	if soldOut {
		s.render(w, http.StatusOK, title, errorMessage("The maximum quantity of "+title+" that can be purchased is 0.")+form)
		return
	}
	status := `<div class="messages status"><h2 class="element-invisible">Status message</h2>` +
		html.EscapeString(title) + ` added to <a href="/cart">your cart</a>.</div>`
	s.render(w, http.StatusOK, title, status+form)
}

func (s *Site) handleCart(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	items := len(s.carts[s.session(w, r)])
	s.mu.Unlock()

	if r.Method == http.MethodPost && items > 0 {
		redirect(w, r, "/checkout/1")
		return
	}
	if items == 0 {
		s.render(w, http.StatusOK, "Shopping cart", `<div class="cart-empty-page">Your shopping cart is empty.</div>`)
		return
	}
	s.render(w, http.StatusOK, "Shopping cart", fmt.Sprintf(`<form action="/cart" method="post" id="views-form-commerce-cart-form-default">
<table><tr><td>%d items</td></tr></table>
<input type="submit" id="edit-submit" name="op" value="Update cart">
<input type="submit" id="edit-checkout" name="op" value="Checkout">
</form>`, items))
}

// -- Checkout --

var addressParts = []string{"name-line", "thoroughfare", "locality", "postal-code"}

func addressFieldName(profile, part string) string {
	return fmt.Sprintf("customer_profile_%s[commerce_customer_address][und][0][%s]", profile, strings.ReplaceAll(part, "-", "_"))
}

func informationForm() string {
	var b strings.Builder
	b.WriteString(`<form action="/checkout/1" method="post" id="commerce-checkout-form-checkout">
<input type="text" id="edit-account-login-mail" name="account[login][mail]" value="">`)
	for _, profile := range []string{"shipping", "billing"} {
		for _, part := range addressParts {
			fmt.Fprintf(&b, `<input type="text" id="edit-customer-profile-%s-commerce-customer-address-und-0-%s" name="%s" value="">`,
				profile, part, addressFieldName(profile, part))
		}
		fmt.Fprintf(&b, `<select id="edit-customer-profile-%s-commerce-customer-address-und-0-administrative-area" name="%s">
<option value="">--</option><option value="AK">Alaska</option><option value="CA">California</option></select>`,
			profile, addressFieldName(profile, "administrative_area"))
	}
	b.WriteString(`<input type="submit" id="edit-continue" name="op" value="Continue to next step">
<input type="submit" id="edit-cancel" name="op" value="Cancel"></form>`)
	return b.String()
}

func (s *Site) record(values url.Values) {
	for k, v := range values {
		s.checkout[k] = append([]string(nil), v...)
	}
}

func (s *Site) handleInformation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.render(w, http.StatusOK, "Checkout", informationForm())
		return
	}
	_ = r.ParseForm()
	s.mu.Lock()
	s.record(r.PostForm)
	fail := s.opts.FailInformation
	s.mu.Unlock()

	valid := strings.Contains(r.PostForm.Get("account[login][mail]"), "@")
	for _, profile := range []string{"shipping", "billing"} {
		for _, part := range addressParts {
			valid = valid && r.PostForm.Get(addressFieldName(profile, part)) != ""
		}
		valid = valid && r.PostForm.Get(addressFieldName(profile, "administrative_area")) != ""
	}
	if fail || !valid {
		s.render(w, http.StatusOK, "Checkout", errorMessage("Please enter a valid address.")+informationForm())
		return
	}
	redirect(w, r, "/checkout/1/shipping")
}

const shippingForm = `<form action="/checkout/1/shipping" method="post">
<input type="radio" id="edit-commerce-shipping-shipping-service-flat-rate" name="commerce_shipping[shipping_service]" value="flat_rate" checked>
<input type="submit" id="edit-continue" name="op" value="Continue to next step"></form>`

func (s *Site) handleShipping(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.render(w, http.StatusOK, "Shipping", shippingForm)
		return
	}
	_ = r.ParseForm()
	s.mu.Lock()
	s.record(r.PostForm)
	fail := s.opts.FailShipping
	s.mu.Unlock()
	if fail {
		s.render(w, http.StatusOK, "Shipping", errorMessage("No shipping rates found for your order.")+shippingForm)
		return
	}
	redirect(w, r, "/checkout/1/review")
}

const reviewForm = `<form action="/checkout/1/review" method="post">
<input type="radio" name="commerce_payment[payment_method]" value="commerce_payment_example|commerce_payment_commerce_payment_example" checked>
<input type="text" id="edit-commerce-payment-payment-details-name" name="commerce_payment[payment_details][name]" value="">
<input type="submit" id="edit-continue" name="op" value="Continue to next step"></form>`

func (s *Site) handleReview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.render(w, http.StatusOK, "Review order", reviewForm)
		return
	}
	_ = r.ParseForm()
	s.mu.Lock()
	s.record(r.PostForm)
	fail := s.opts.FailReview
	s.mu.Unlock()
	if fail || r.PostForm.Get("commerce_payment[payment_details][name]") == "" {
		s.render(w, http.StatusOK, "Review order", errorMessage("Name field is required.")+reviewForm)
		return
	}
	s.mu.Lock()
	s.carts[s.session(w, r)] = nil
	s.mu.Unlock()
	redirect(w, r, "/checkout/1/complete")
}

func (s *Site) handleComplete(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, "Checkout complete",
		`<div class="checkout-completion-message"><p>Your order number is 1.</p><p><a href="/user/1/orders/1">View your order</a></p></div>`)
}
