// File: internal/commerce/factory_test.go
package commerce

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/kickstart-cli/internal/browser"
	"github.com/xkilldash9x/kickstart-cli/internal/config"
	"github.com/xkilldash9x/kickstart-cli/internal/mocks"
	"github.com/xkilldash9x/kickstart-cli/internal/testing/fakesite"
)

// httpOnly opens the HTTP backend without touching Playwright.
type httpOnly struct{}

func (httpOnly) Open(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (browser.Client, error) {
	return OpenClient(ctx, cfg, logger, false)
}

func TestSharedClientFactory(t *testing.T) {
	ctx := context.Background()

	t.Run("opens once and survives command close", func(t *testing.T) {
		client := new(mocks.MockClient)
		client.On("CurrentURL").Return("http://shop.test/cart")
		client.On("Close", mock.Anything).Return(nil).Once()

		inner := new(mocks.MockClientFactory)
		inner.On("Open", mock.Anything, mock.Anything, mock.Anything).Return(client, nil).Once()

		shared := NewSharedClientFactory(inner)
		first, err := shared.Open(ctx, browserConfig(), nil)
		require.NoError(t, err)
		require.NoError(t, first.Close(ctx))

		second, err := shared.Open(ctx, config.BrowserConfig{Backend: config.BackendChromedp}, nil)
		require.NoError(t, err)
		assert.Equal(t, "http://shop.test/cart", second.CurrentURL())
		client.AssertNotCalled(t, "Close", mock.Anything)

		require.NoError(t, shared.Close(ctx))
		require.NoError(t, shared.Close(ctx))
		inner.AssertExpectations(t)
		client.AssertExpectations(t)
	})

	t.Run("open failure is retried on the next command", func(t *testing.T) {
		client := new(mocks.MockClient)
		inner := new(mocks.MockClientFactory)
		inner.On("Open", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("no chrome")).Once()
		inner.On("Open", mock.Anything, mock.Anything, mock.Anything).Return(client, nil).Once()

		shared := NewSharedClientFactory(inner)
		_, err := shared.Open(ctx, browserConfig(), nil)
		assert.EqualError(t, err, "no chrome")
		_, err = shared.Open(ctx, browserConfig(), nil)
		require.NoError(t, err)
		inner.AssertExpectations(t)
	})

	t.Run("cookies carry over between sessions", func(t *testing.T) {
		site := fakesite.New(t, fakesite.Options{})
		shared := NewSharedClientFactory(httpOnly{})
		t.Cleanup(func() { shared.Close(ctx) })

		for i := 0; i < 2; i++ {
			client, err := shared.Open(ctx, browserConfig(), nil)
			require.NoError(t, err)
			s := NewSession(client, config.SiteConfig{BaseURL: site.URL}, nil, nil)
			require.NoError(t, s.Visit(ctx, "cart"))
			require.NoError(t, s.Close(ctx))
		}
		assert.Equal(t, 1, site.Sessions())
	})
}
