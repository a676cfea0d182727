// File: cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/kickstart-cli/internal/commerce"
	"github.com/xkilldash9x/kickstart-cli/internal/config"
	"github.com/xkilldash9x/kickstart-cli/internal/faults"
	"github.com/xkilldash9x/kickstart-cli/internal/observability"
)

type contextKey string

const configKey contextKey = "config"

// Config files searched when --config is not given, in order.
var defaultConfigFiles = []string{"kickstart.yaml", "~/.kickstart.yaml"}

// flagBindings maps global flags to their viper keys.
var flagBindings = map[string]string{
	"base-url":      "site.base_url",
	"username":      "site.username",
	"password":      "site.password",
	"verbose":       "site.verbose",
	"timeout":       "browser.timeout",
	"backend":       "browser.backend",
	"report":        "report.path",
	"report-format": "report.format",
	"metrics-file":  "metrics.textfile",
	"trace-file":    "tracing.file",
}

// Execute builds the command tree with the production client factory and runs it.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand(commerce.NewClientFactory())
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger := observability.GetLogger()
		if errors.Is(err, context.Canceled) {
			logger.Warn("Command aborted")
		} else {
			logger.Error("Command execution failed", zap.Error(err), zap.Stringer("kind", faults.KindOf(err)))
		}
		return err
	}
	return nil
}

// NewRootCommand creates the kickstart command tree. factory opens the page
// client for every command that talks to a site.
func NewRootCommand(factory commerce.ClientFactory) *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "kickstart",
		Short: "Drives a Drupal Commerce Kickstart site through installation and checkout.",
		// Version is dynamically set at build time. See cmd/version.go.
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(cmd, v, cfgFile); err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "kickstart"})
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "kickstart"})
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Debug("Starting kickstart",
				zap.String("version", Version),
				zap.String("config_file", v.ConfigFileUsed()))

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, config.Interface(cfg)))
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file (default is ./kickstart.yaml, then ~/.kickstart.yaml)")
	flags.String("base-url", "", "site root, e.g. http://localhost:8080")
	flags.String("username", "", "account name for login")
	flags.String("password", "", "account password for login (prefer KICKSTART_PASSWORD)")
	flags.BoolP("verbose", "v", false, "log every navigation, assertion and stage")
	flags.Duration("timeout", 0, "per-request timeout (default 60s)")
	flags.String("backend", "", "page client backend: http, chromedp or playwright")
	flags.String("report", "", "write a run report to this file")
	flags.String("report-format", "", "run report format: junit or json")
	flags.String("metrics-file", "", "write Prometheus metrics to this textfile")
	flags.String("trace-file", "", "write spans as JSON lines to this file")

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(newVisitCmd(factory))
	rootCmd.AddCommand(newLoginCmd(factory))
	rootCmd.AddCommand(newInstallCmd(factory))
	rootCmd.AddCommand(newCartCmd(factory))
	rootCmd.AddCommand(newCheckoutCmd(factory))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// initializeConfig layers .env, the config file, KICKSTART_* variables and
// flags onto v.
func initializeConfig(cmd *cobra.Command, v *viper.Viper, cfgFile string) error {
	// Existing environment variables win over .env entries.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("error loading .env file: %w", err)
	}

	path, err := findConfigFile(cfgFile)
	if err != nil {
		return err
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("KICKSTART")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for name, key := range flagBindings {
		if flag := cmd.Flags().Lookup(name); flag != nil {
			if err := v.BindPFlag(key, flag); err != nil {
				return fmt.Errorf("failed to bind flag --%s: %w", name, err)
			}
		}
	}
	return nil
}

// findConfigFile returns the explicit file, or the first default that
// exists, or "" when there is none.
func findConfigFile(explicit string) (string, error) {
	if explicit != "" {
		path, err := homedir.Expand(explicit)
		if err != nil {
			return "", fmt.Errorf("invalid config path %q: %w", explicit, err)
		}
		return path, nil
	}
	for _, candidate := range defaultConfigFiles {
		path, err := homedir.Expand(candidate)
		if err != nil {
			continue
		}
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", nil
}

// getConfig returns the configuration stored by PersistentPreRunE.
func getConfig(ctx context.Context) (config.Interface, error) {
	cfg, ok := ctx.Value(configKey).(config.Interface)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	return cfg, nil
}
