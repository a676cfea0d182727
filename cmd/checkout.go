// File: cmd/checkout.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/kickstart-cli/internal/checkout"
	"github.com/xkilldash9x/kickstart-cli/internal/commerce"
	"github.com/xkilldash9x/kickstart-cli/internal/faults"
	"github.com/xkilldash9x/kickstart-cli/internal/reporting"
)

func newCheckoutCmd(factory commerce.ClientFactory) *cobra.Command {
	var (
		level     int
		withLogin bool
		products  []string
	)

	checkoutCmd := &cobra.Command{
		Use:   "checkout",
		Short: "Walk the checkout pages up to --level",
		Long: `Runs the checkout levels 1..N in order:
  1 start        open the checkout from the cart
  2 information  fill the account e-mail and both addresses
  3 shipping     accept the shipping method
  4 review       enter the payment name and place the order`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			target := checkout.Level(level)
			if !target.Valid() {
				return faults.InvalidCheckoutLevel(level)
			}

			r, err := startSiteRun(cmd, factory)
			if err != nil {
				return err
			}
			defer func() { err = r.finish(cmd.Context(), err) }()

			if withLogin {
				if err := login(cmd, r); err != nil {
					return err
				}
			}

			driver := checkout.NewDriver(r.session, r.cfg.Checkout(), nil)
			if len(products) > 0 {
				if err := addToCart(cmd, r, driver, products); err != nil {
					return err
				}
			}

			report, err := driver.Checkout(cmd.Context(), target)
			r.record(reporting.FromCheckout(report, err))
			if err != nil {
				return err
			}

			r.logger.Info("Checkout complete",
				zap.Strings("levels", report.LevelNames()),
				zap.Duration("duration", report.Duration))
			if report.CompletionURL != "" {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), report.CompletionURL)
			}
			return err
		},
	}

	checkoutCmd.Flags().IntVar(&level, "level", int(checkout.MaxLevel), "deepest checkout level to reach (1-4)")
	checkoutCmd.Flags().BoolVar(&withLogin, "login", false, "sign in before checking out")
	checkoutCmd.Flags().StringSliceVar(&products, "add", nil, "product ids to add to the cart first")
	return checkoutCmd
}
