// File: cmd/helpers_test.go
package cmd

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/kickstart-cli/internal/browser"
	"github.com/xkilldash9x/kickstart-cli/internal/commerce"
	"github.com/xkilldash9x/kickstart-cli/internal/config"
)

func init() {
	// Tests point HOME at temp dirs; the cached value would hide that.
	homedir.DisableCache = true
}

// httpFactory opens the HTTP backend without touching any browser install.
type httpFactory struct{}

func (httpFactory) Open(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (browser.Client, error) {
	return commerce.OpenClient(ctx, cfg, logger, false)
}

// isolate runs the test in an empty working directory and home so that no
// kickstart.yaml or .env of the developer is picked up.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", t.TempDir())
	// Keep the install tests fast.
	t.Setenv("KICKSTART_INSTALL_POLL_INTERVAL", "1ms")
	t.Setenv("KICKSTART_INSTALL_STORE_SETTLE", "1ms")
	return dir
}

// executeCommand runs a fresh command tree and returns what it wrote to stdout.
func executeCommand(t *testing.T, factory commerce.ClientFactory, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand(factory)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}
