package main

import (
	"errors"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/David-Botos/retail-ingress/pkg/export"
	"github.com/David-Botos/retail-ingress/pkg/store"
)

func newVerifyCmd(a *app) *cobra.Command {
	var noColor bool

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check the current snapshot's structure and cleaning invariants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(cmd); err != nil {
				return err
			}

			ctx := cmd.Context()
			pg, err := a.connectStore(ctx)
			if err != nil {
				return err
			}
			defer closeConnector(a.logger, "postgres", pg)

			report, err := store.NewVerifier(pg.SQLX(), a.logger.Named("verifier")).VerifySnapshot(ctx, nil)
			if err != nil {
				return &exitError{code: exitCode(err), err: err}
			}

			renderer := export.NewRenderer(!noColor && !color.NoColor)
			if err := renderer.RenderVerification(cmd.OutOrStdout(), report); err != nil {
				return err
			}

			if !report.Passed() {
				return &exitError{code: 3, err: errors.New("snapshot verification failed")}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable colored output")

	return cmd
}
