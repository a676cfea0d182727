// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/xkilldash9x/kickstart-cli/internal/browser"
	"github.com/xkilldash9x/kickstart-cli/internal/config"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

var _ config.Interface = (*MockConfig)(nil)

// --- Getters ---

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Site() config.SiteConfig {
	args := m.Called()
	return args.Get(0).(config.SiteConfig)
}

func (m *MockConfig) Browser() config.BrowserConfig {
	args := m.Called()
	return args.Get(0).(config.BrowserConfig)
}

func (m *MockConfig) Install() config.InstallConfig {
	args := m.Called()
	return args.Get(0).(config.InstallConfig)
}

func (m *MockConfig) Checkout() config.CheckoutConfig {
	args := m.Called()
	return args.Get(0).(config.CheckoutConfig)
}

func (m *MockConfig) Report() config.ReportConfig {
	args := m.Called()
	return args.Get(0).(config.ReportConfig)
}

func (m *MockConfig) Metrics() config.MetricsConfig {
	args := m.Called()
	return args.Get(0).(config.MetricsConfig)
}

func (m *MockConfig) Tracing() config.TracingConfig {
	args := m.Called()
	return args.Get(0).(config.TracingConfig)
}

// --- Setters ---

func (m *MockConfig) SetSiteBaseURL(u string) {
	m.Called(u)
}

func (m *MockConfig) SetSiteCredentials(username, password string) {
	m.Called(username, password)
}

func (m *MockConfig) SetSiteVerbose(b bool) {
	m.Called(b)
}

func (m *MockConfig) SetBrowserBackend(b string) {
	m.Called(b)
}

func (m *MockConfig) SetBrowserTimeout(d time.Duration) {
	m.Called(d)
}

// -- Page Client Mocks --

// MockClient mocks browser.Client.
type MockClient struct {
	mock.Mock
}

var _ browser.Client = (*MockClient)(nil)

func (m *MockClient) Navigate(ctx context.Context, url string) error {
	args := m.Called(ctx, url)
	return args.Error(0)
}

func (m *MockClient) Reload(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockClient) StatusCode() int {
	args := m.Called()
	return args.Int(0)
}

func (m *MockClient) Content(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockClient) CurrentURL() string {
	args := m.Called()
	return args.String(0)
}

// Find returns a nil interface when the mock is set up with a nil element.
func (m *MockClient) Find(ctx context.Context, selector string) (browser.Element, error) {
	args := m.Called(ctx, selector)
	if el, ok := args.Get(0).(browser.Element); ok && el != nil {
		return el, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockClient) FindAll(ctx context.Context, selector string) ([]browser.Element, error) {
	args := m.Called(ctx, selector)
	if els, ok := args.Get(0).([]browser.Element); ok {
		return els, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockClient) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockElement mocks browser.Element.
type MockElement struct {
	mock.Mock
}

var _ browser.Element = (*MockElement)(nil)

func (m *MockElement) Text(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockElement) Attribute(ctx context.Context, name string) (string, bool, error) {
	args := m.Called(ctx, name)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockElement) SetValue(ctx context.Context, value string) error {
	args := m.Called(ctx, value)
	return args.Error(0)
}

func (m *MockElement) SelectOption(ctx context.Context, value string) error {
	args := m.Called(ctx, value)
	return args.Error(0)
}

func (m *MockElement) Press(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// -- Client Factory Mock --

// MockClientFactory mocks commerce.ClientFactory.
type MockClientFactory struct {
	mock.Mock
}

func (m *MockClientFactory) Open(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (browser.Client, error) {
	args := m.Called(ctx, cfg, logger)
	if c, ok := args.Get(0).(browser.Client); ok {
		return c, args.Error(1)
	}
	return nil, args.Error(1)
}
