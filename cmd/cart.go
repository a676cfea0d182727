// File: cmd/cart.go
package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/kickstart-cli/internal/checkout"
	"github.com/xkilldash9x/kickstart-cli/internal/commerce"
	"github.com/xkilldash9x/kickstart-cli/internal/reporting"
)

func newCartCmd(factory commerce.ClientFactory) *cobra.Command {
	cartCmd := &cobra.Command{
		Use:   "cart",
		Short: "Manage the shopping cart",
	}

	cartCmd.AddCommand(&cobra.Command{
		Use:   "add <product-id>...",
		Short: "Add one unit of each product to the cart",
		Long: `Adds one unit of each product to the cart, in order.

The cart lives in the browser session. Run it from the interactive prompt
before "checkout", or use "checkout --add", to check the products out.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			r, err := startSiteRun(cmd, factory)
			if err != nil {
				return err
			}
			defer func() { err = r.finish(cmd.Context(), err) }()

			if _, shared := factory.(*commerce.SharedClientFactory); !shared {
				r.logger.Warn("The cart is discarded when this command exits; use the interactive prompt or checkout --add to keep it")
			}
			driver := checkout.NewDriver(r.session, r.cfg.Checkout(), nil)
			return addToCart(cmd, r, driver, args)
		},
	})
	return cartCmd
}

// addToCart adds the products in order and stops at the first failure.
func addToCart(cmd *cobra.Command, r *siteRun, driver *checkout.Driver, ids []string) error {
	run := reporting.NewRun(checkout.CartFlow, r.session.ID())
	start := time.Now()
	defer func() { r.record(run) }()

	for _, id := range ids {
		stepStart := time.Now()
		err := driver.AddToCart(cmd.Context(), id)
		run.AddStep("add_"+id, time.Since(stepStart), 0, err)
		if err != nil {
			run.Finish(time.Since(start), err)
			return err
		}
	}
	run.Finish(time.Since(start), nil)
	r.logger.Info("Cart updated", zap.Strings("products", ids))
	return nil
}
