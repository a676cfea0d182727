// File: internal/commerce/factory.go
package commerce

import (
	"context"
	"fmt"
	"sync"

	"github.com/xkilldash9x/kickstart-cli/internal/browser"
	"github.com/xkilldash9x/kickstart-cli/internal/browser/cdp"
	"github.com/xkilldash9x/kickstart-cli/internal/browser/pwclient"
	"github.com/xkilldash9x/kickstart-cli/internal/browser/session"
	"github.com/xkilldash9x/kickstart-cli/internal/config"
	"go.uber.org/zap"
)

// ClientFactory opens the page client a run drives. Commands receive it as a
// dependency so tests can substitute their own client.
type ClientFactory interface {
	Open(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (browser.Client, error)
}

// concreteFactory picks the backend named by browser.backend.
type concreteFactory struct {
	// installPlaywright downloads the driver and Chromium on first use.
	installPlaywright bool
}

// NewClientFactory creates the production factory.
func NewClientFactory() ClientFactory {
	return &concreteFactory{installPlaywright: true}
}

func (f *concreteFactory) Open(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (browser.Client, error) {
	return OpenClient(ctx, cfg, logger, f.installPlaywright)
}

// OpenClient creates the page client for cfg.Backend.
func OpenClient(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger, installPlaywright bool) (browser.Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Debug("Opening page client", zap.String("backend", cfg.Backend), zap.Duration("timeout", cfg.Timeout))

	switch cfg.Backend {
	case config.BackendHTTP, "":
		return session.NewSession(ctx, cfg, logger), nil
	case config.BackendChromedp:
		c, err := cdp.New(ctx, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to start chromedp backend: %w", err)
		}
		return c, nil
	case config.BackendPlaywright:
		c, err := pwclient.New(ctx, cfg, logger, installPlaywright)
		if err != nil {
			return nil, fmt.Errorf("failed to start playwright backend: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown browser backend %q", cfg.Backend)
	}
}

// SharedClientFactory opens one client and hands it to every command, so the
// cookie jar (login, anonymous cart) carries over from one command to the
// next. The browser settings of the first Open win.
type SharedClientFactory struct {
	factory ClientFactory

	mu     sync.Mutex
	client browser.Client
}

// NewSharedClientFactory wraps factory. Close releases the shared client.
func NewSharedClientFactory(factory ClientFactory) *SharedClientFactory {
	return &SharedClientFactory{factory: factory}
}

// Open returns the shared client, opening it on first use. Closing the
// returned client is a no-op.
func (f *SharedClientFactory) Open(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (browser.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.client == nil {
		// The client outlives the command that first asked for it.
		c, err := f.factory.Open(context.WithoutCancel(ctx), cfg, logger)
		if err != nil {
			return nil, err
		}
		f.client = c
	}
	return borrowedClient{f.client}, nil
}

// Close closes the shared client, if one was opened.
func (f *SharedClientFactory) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.client == nil {
		return nil
	}
	err := f.client.Close(ctx)
	f.client = nil
	return err
}

// borrowedClient keeps a command from closing the shared client.
type borrowedClient struct {
	browser.Client
}

func (borrowedClient) Close(context.Context) error { return nil }
