// File: cmd/visit.go
package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/kickstart-cli/internal/commerce"
	"github.com/xkilldash9x/kickstart-cli/internal/reporting"
)

func newVisitCmd(factory commerce.ClientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "visit [path]",
		Short: "Load a page of the site and print its HTML",
		Long:  "Loads path relative to the base URL, fails on a non-2xx status and writes the page content to stdout.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}

			r, err := startSiteRun(cmd, factory)
			if err != nil {
				return err
			}
			defer func() { err = r.finish(cmd.Context(), err) }()

			run := reporting.NewRun("visit", r.session.ID())
			start := time.Now()
			err = r.session.Visit(cmd.Context(), path)
			run.AddStep(r.session.URL(path), time.Since(start), 0, err)
			run.Finish(time.Since(start), err)
			r.record(run)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), r.session.PageContent(cmd.Context()))
			return err
		},
	}
}
