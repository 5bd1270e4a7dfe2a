package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/David-Botos/retail-ingress/pkg/analytics"
	"github.com/David-Botos/retail-ingress/pkg/cleaner"
	"github.com/David-Botos/retail-ingress/pkg/config"
	"github.com/David-Botos/retail-ingress/pkg/connector"
	"github.com/David-Botos/retail-ingress/pkg/loader"
	"github.com/David-Botos/retail-ingress/pkg/pipeline"
	"github.com/David-Botos/retail-ingress/pkg/store"
)

func newIngestCmd(a *app) *cobra.Command {
	var verify bool

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Load, clean and write a new snapshot",
		Long: `Load the three raw extracts, repair them and replace the snapshot tables
in a single transaction. A failure at any stage leaves the previous snapshot in place.

Exit status: 0 success, 2 missing or unreadable input, 3 malformed data,
4 snapshot write failed, 5 store unreachable, 1 anything else.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(cmd); err != nil {
				return err
			}
			return runIngest(cmd.Context(), a, verify)
		},
	}

	flags := cmd.Flags()
	flags.String("source", "", "input source (csv, excel, snowflake)")
	flags.String("data-dir", "", "directory holding the CSV files or the workbook")
	flags.String("workbook", "", "Excel workbook file name")
	flags.String("metrics-textfile", "", "write run metrics in Prometheus text format to this file")
	flags.BoolVar(&verify, "verify", false, "verify the snapshot after writing it")
	a.bind(flags.Lookup("source"), "input_source")
	a.bind(flags.Lookup("data-dir"), "input_dir")
	a.bind(flags.Lookup("workbook"), "input_workbook")
	a.bind(flags.Lookup("metrics-textfile"), "metrics_textfile")

	return cmd
}

func runIngest(ctx context.Context, a *app, verify bool) error {
	logger := a.logger
	factory := connector.NewConnectorFactory(a.cfg, logger)

	pg, err := a.connectStore(ctx)
	if err != nil {
		return err
	}
	defer closeConnector(logger, "postgres", pg)

	if err := pg.Validate(ctx); err != nil {
		return &exitError{code: exitCode(err), err: err}
	}

	var staging loader.TextQuerier
	if a.cfg.Input.Source == config.SourceSnowflake {
		sf, err := factory.CreateSnowflakeConnector(ctx)
		if err != nil {
			return &exitError{code: 2, err: err}
		}
		defer closeConnector(logger, "snowflake", sf)

		if err := sf.Validate(ctx); err != nil {
			return &exitError{code: exitCode(err), err: err}
		}
		staging = sf
	}

	source, err := loader.NewSource(a.cfg.Input, staging)
	if err != nil {
		return &exitError{code: 2, err: err}
	}

	dataCleaner, err := cleaner.NewDataCleaner(logger.Named("cleaner"))
	if err != nil {
		return err
	}

	db := pg.SQLX()
	queries := analytics.NewService(db, a.cfg.Analytics, logger.Named("analytics"))
	manager := pipeline.NewManager(
		loader.NewLoader(source, logger.Named("loader")),
		dataCleaner,
		store.NewWriter(db, a.cfg.BatchSize, logger.Named("store")),
		logger.Named("pipeline"),
	).WithInvalidator(queries)

	if verify {
		manager.WithVerifier(store.NewVerifier(db, logger.Named("verifier")))
	}
	if a.cfg.MetricsTextfile != "" {
		manager.WithMetricsTextfile(a.cfg.MetricsTextfile)
	}

	summary, runErr := manager.Run(ctx)
	fmt.Fprint(a.stdout, pipeline.GenerateRunReport(summary))

	if runErr != nil {
		code := 1
		if first := summary.FirstError(); first != nil {
			code = first.Category.ExitCode()
		}
		return &exitError{code: code, err: runErr}
	}

	logSnapshotKPIs(ctx, logger, queries)
	return nil
}

// logSnapshotKPIs reads the headline figures of the snapshot just committed
func logSnapshotKPIs(ctx context.Context, logger *zap.Logger, queries *analytics.Service) {
	kpis, err := queries.KPIs(ctx)
	if err != nil {
		logger.Warn("Failed to read snapshot KPIs", zap.Error(err))
		return
	}
	logger.Info("Snapshot KPIs",
		zap.String("generation", queries.Generation()),
		zap.Stringer("total_revenue", kpis.TotalRevenue),
		zap.Stringer("average_transaction_value", kpis.AverageTransactionValue),
		zap.Int64("unique_customers", kpis.UniqueCustomers),
		zap.Int64("unique_products_sold", kpis.UniqueProductsSold))
}

type closer interface {
	Close() error
}

func closeConnector(logger *zap.Logger, name string, c closer) {
	if err := c.Close(); err != nil {
		logger.Warn("Failed to close connection", zap.String("connection", name), zap.Error(err))
	}
}
