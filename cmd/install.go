// File: cmd/install.go
package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/kickstart-cli/internal/commerce"
	"github.com/xkilldash9x/kickstart-cli/internal/install"
	"github.com/xkilldash9x/kickstart-cli/internal/reporting"
)

func newInstallCmd(factory commerce.ClientFactory) *cobra.Command {
	var params install.Params

	installCmd := &cobra.Command{
		Use:   "install",
		Short: "Run the Commerce Kickstart installation wizard",
		Long: `Detects the active step of install.php and completes it and every later
step: database, profile installation, site and store configuration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			r, err := startSiteRun(cmd, factory)
			if err != nil {
				return err
			}
			defer func() { err = r.finish(cmd.Context(), err) }()

			driver := install.NewDriver(r.session, r.cfg.Install(), r.cfg.Site().DistributionName)
			report, err := driver.Install(cmd.Context(), params)
			r.record(reporting.FromInstall(report, err))
			if err != nil {
				return err
			}

			r.logger.Info("Installation complete",
				zap.String("detected_task", report.DetectedTask),
				zap.Strings("stages", report.StageNames()),
				zap.Duration("duration", report.Duration))
			return nil
		},
	}

	installCmd.Flags().StringVar(&params.DBName, "db-name", "", "database name")
	installCmd.Flags().StringVar(&params.DBUser, "db-user", "", "database user")
	installCmd.Flags().StringVar(&params.DBPass, "db-pass", "", "database password")
	installCmd.Flags().StringVar(&params.SiteMail, "site-mail", "", "site e-mail address")
	return installCmd
}
