// File: cmd/login.go
package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/kickstart-cli/internal/commerce"
	"github.com/xkilldash9x/kickstart-cli/internal/reporting"
)

const loginFlow = "login"

func newLoginCmd(factory commerce.ClientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Sign in with --username and --password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			r, err := startSiteRun(cmd, factory)
			if err != nil {
				return err
			}
			defer func() { err = r.finish(cmd.Context(), err) }()

			if err := login(cmd, r); err != nil {
				return err
			}
			r.logger.Info("Logged in", zap.String("username", r.cfg.Site().Username))
			return nil
		},
	}
}

// login signs in and records the attempt as its own run.
func login(cmd *cobra.Command, r *siteRun) error {
	run := reporting.NewRun(loginFlow, r.session.ID())
	start := time.Now()
	err := r.session.Login(cmd.Context())
	run.AddStep(loginFlow, time.Since(start), 0, err)
	run.Finish(time.Since(start), err)
	r.record(run)
	return err
}
