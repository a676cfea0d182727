// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Site() SiteConfig
	Browser() BrowserConfig
	Install() InstallConfig
	Checkout() CheckoutConfig
	Report() ReportConfig
	Metrics() MetricsConfig
	Tracing() TracingConfig

	// Site Setters
	SetSiteBaseURL(string)
	SetSiteCredentials(username, password string)
	SetSiteVerbose(bool)

	// Browser Setters
	SetBrowserBackend(string)
	SetBrowserTimeout(time.Duration)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	SiteCfg     SiteConfig     `mapstructure:"site" yaml:"site"`
	BrowserCfg  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	InstallCfg  InstallConfig  `mapstructure:"install" yaml:"install"`
	CheckoutCfg CheckoutConfig `mapstructure:"checkout" yaml:"checkout"`
	ReportCfg   ReportConfig   `mapstructure:"report" yaml:"report"`
	MetricsCfg  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
	TracingCfg  TracingConfig  `mapstructure:"tracing" yaml:"tracing"`
}

var _ Interface = (*Config)(nil)

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig     { return c.LoggerCfg }
func (c *Config) Site() SiteConfig         { return c.SiteCfg }
func (c *Config) Browser() BrowserConfig   { return c.BrowserCfg }
func (c *Config) Install() InstallConfig   { return c.InstallCfg }
func (c *Config) Checkout() CheckoutConfig { return c.CheckoutCfg }
func (c *Config) Report() ReportConfig     { return c.ReportCfg }
func (c *Config) Metrics() MetricsConfig   { return c.MetricsCfg }
func (c *Config) Tracing() TracingConfig   { return c.TracingCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetSiteBaseURL(u string) { c.SiteCfg.BaseURL = u }
func (c *Config) SetSiteCredentials(username, password string) {
	c.SiteCfg.Username = username
	c.SiteCfg.Password = password
}
func (c *Config) SetSiteVerbose(b bool) { c.SiteCfg.Verbose = b }

func (c *Config) SetBrowserBackend(b string)        { c.BrowserCfg.Backend = b }
func (c *Config) SetBrowserTimeout(d time.Duration) { c.BrowserCfg.Timeout = d }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// SiteConfig describes the Drupal Commerce site under test.
type SiteConfig struct {
	// BaseURL is the site root without a trailing slash.
	BaseURL          string `mapstructure:"base_url" yaml:"base_url"`
	Username         string `mapstructure:"username" yaml:"username"`
	Password         string `mapstructure:"password" yaml:"-"`
	Verbose          bool   `mapstructure:"verbose" yaml:"verbose"`
	DistributionName string `mapstructure:"distribution_name" yaml:"distribution_name"`
}

// Supported page client backends.
const (
	BackendHTTP       = "http"
	BackendChromedp   = "chromedp"
	BackendPlaywright = "playwright"
)

// BrowserConfig selects and tunes the page client.
type BrowserConfig struct {
	Backend         string            `mapstructure:"backend" yaml:"backend"`
	Headless        bool              `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors bool              `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	UserAgent       string            `mapstructure:"user_agent" yaml:"user_agent"`
	Args            []string          `mapstructure:"args" yaml:"args"`
	Headers         map[string]string `mapstructure:"headers" yaml:"headers"`
	// Timeout bounds every single request issued by the page client.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// InstallConfig tunes the installation wizard driver.
type InstallConfig struct {
	PollInterval     time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	MaxPolls         int           `mapstructure:"max_polls" yaml:"max_polls"`
	PollTimeout      time.Duration `mapstructure:"poll_timeout" yaml:"poll_timeout"`
	StoreSettle      time.Duration `mapstructure:"store_settle" yaml:"store_settle"`
	PostInstallPath  string        `mapstructure:"post_install_path" yaml:"post_install_path"`
	SiteNameSelector string        `mapstructure:"site_name_selector" yaml:"site_name_selector"`
}

// CheckoutConfig tunes the cart and checkout driver.
type CheckoutConfig struct {
	EmailDomain        string `mapstructure:"email_domain" yaml:"email_domain"`
	AdministrativeArea string `mapstructure:"administrative_area" yaml:"administrative_area"`
	FillerLength       int    `mapstructure:"filler_length" yaml:"filler_length"`
	// Seed fixes the filler generator. Zero seeds from the clock.
	Seed        int64  `mapstructure:"seed" yaml:"seed"`
	SuccessText string `mapstructure:"success_text" yaml:"success_text"`
	EmptyText   string `mapstructure:"empty_text" yaml:"empty_text"`
}

// ReportConfig controls the run report written after a flow.
type ReportConfig struct {
	Path   string `mapstructure:"path" yaml:"path"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig controls the Prometheus textfile export.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile" yaml:"textfile"`
}

// TracingConfig controls span export.
type TracingConfig struct {
	File string `mapstructure:"file" yaml:"file"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "kickstart")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Site --
	v.SetDefault("site.base_url", "")
	v.SetDefault("site.verbose", false)
	v.SetDefault("site.distribution_name", "Commerce Kickstart")

	// -- Browser --
	v.SetDefault("browser.backend", BackendHTTP)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.user_agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36 Kickstart/1.0")
	v.SetDefault("browser.timeout", "60s")

	// -- Install --
	v.SetDefault("install.poll_interval", "1s")
	v.SetDefault("install.max_polls", 1800)
	v.SetDefault("install.poll_timeout", "45m")
	v.SetDefault("install.store_settle", "2s")
	v.SetDefault("install.post_install_path", "install.php?locale=en")
	v.SetDefault("install.site_name_selector", "h2.site-name")

	// -- Checkout --
	v.SetDefault("checkout.email_domain", "example.com")
	v.SetDefault("checkout.administrative_area", "CA")
	v.SetDefault("checkout.filler_length", 8)
	v.SetDefault("checkout.seed", 0)
	v.SetDefault("checkout.success_text", "added to your cart")
	v.SetDefault("checkout.empty_text", "Your shopping cart is empty")

	// -- Report --
	v.SetDefault("report.format", "junit")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	v.BindEnv("site.username", "KICKSTART_USERNAME")
	v.BindEnv("site.password", "KICKSTART_PASSWORD")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Manually load the password if Unmarshal didn't pick it up
	if cfg.SiteCfg.Password == "" {
		cfg.SiteCfg.Password = os.Getenv("KICKSTART_PASSWORD")
	}
	cfg.SiteCfg.BaseURL = strings.TrimRight(cfg.SiteCfg.BaseURL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for sane values. The base URL is checked
// separately by RequireBaseURL since not every command talks to a site.
func (c *Config) Validate() error {
	switch c.BrowserCfg.Backend {
	case BackendHTTP, BackendChromedp, BackendPlaywright:
	default:
		return fmt.Errorf("browser.backend must be one of %q, %q or %q", BackendHTTP, BackendChromedp, BackendPlaywright)
	}
	if c.BrowserCfg.Timeout <= 0 {
		return fmt.Errorf("browser.timeout must be a positive duration")
	}
	if err := c.InstallCfg.Validate(); err != nil {
		return fmt.Errorf("install configuration invalid: %w", err)
	}
	if err := c.CheckoutCfg.Validate(); err != nil {
		return fmt.Errorf("checkout configuration invalid: %w", err)
	}
	switch c.ReportCfg.Format {
	case "junit", "json":
	default:
		return fmt.Errorf("report.format must be 'junit' or 'json'")
	}
	return nil
}

// RequireBaseURL checks that the site base URL is an absolute http(s) URL.
func (c *Config) RequireBaseURL() error {
	return c.SiteCfg.RequireBaseURL()
}

// RequireBaseURL checks that BaseURL is an absolute http(s) URL.
func (s SiteConfig) RequireBaseURL() error {
	if s.BaseURL == "" {
		return fmt.Errorf("site.base_url is required (hint: --base-url or KICKSTART_SITE_BASE_URL)")
	}
	u, err := url.Parse(s.BaseURL)
	if err != nil {
		return fmt.Errorf("site.base_url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("site.base_url must use http or https, got %q", u.Scheme)
	}
	return nil
}

// Validate checks the install polling bounds.
func (i *InstallConfig) Validate() error {
	if i.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be a positive duration")
	}
	if i.MaxPolls <= 0 {
		return fmt.Errorf("max_polls must be greater than 0")
	}
	if i.PollTimeout <= 0 {
		return fmt.Errorf("poll_timeout must be a positive duration")
	}
	if i.StoreSettle < 0 {
		return fmt.Errorf("store_settle must not be negative")
	}
	return nil
}

// Validate checks the checkout filler settings.
func (c *CheckoutConfig) Validate() error {
	if c.FillerLength <= 0 {
		return fmt.Errorf("filler_length must be greater than 0")
	}
	if c.EmailDomain == "" {
		return fmt.Errorf("email_domain is required")
	}
	return nil
}
