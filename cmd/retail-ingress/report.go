package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/David-Botos/retail-ingress/pkg/analytics"
	"github.com/David-Botos/retail-ingress/pkg/export"
)

type reportOptions struct {
	all      bool
	list     bool
	years    string
	category string
	top      int
	format   string
	output   string
	noColor  bool
}

func newReportCmd(a *app) *cobra.Command {
	var opts reportOptions

	cmd := &cobra.Command{
		Use:   "report [QUERY...]",
		Short: "Run dashboard queries against the current snapshot",
		Example: `  retail-ingress report kpis monthly_sales_trend --years 2023,2024
  retail-ingress report product_revenue_in_category --category Electronics
  retail-ingress report --all --format csv --output ./reports`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.list {
				for _, name := range analytics.QueryNames() {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			}

			names, err := reportNames(args, opts.all)
			if err != nil {
				return err
			}
			format, err := export.ParseFormat(opts.format)
			if err != nil {
				return err
			}

			if err := a.setup(cmd); err != nil {
				return err
			}
			return runReport(cmd, a, names, format, opts)
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&opts.all, "all", false, "run every query of the catalog")
	flags.BoolVar(&opts.list, "list", false, "list the query names and exit")
	flags.StringVar(&opts.years, "years", "all", `comma separated sales years, "all", or "" for none`)
	flags.StringVar(&opts.category, "category", "", "product category for product_revenue_in_category")
	flags.IntVar(&opts.top, "top", 0, "rows kept by top-N queries (0 uses the configured default)")
	flags.StringVar(&opts.format, "format", string(export.FormatTable), "output format (table, json, csv)")
	flags.StringVar(&opts.output, "output", "", "write one timestamped file per query into this directory")
	flags.BoolVar(&opts.noColor, "no-color", false, "disable colored output")
	flags.Int("low-stock", 0, "stock level below which a product is low on stock")
	flags.Int("low-sales", 0, "transaction count below which a product sells poorly")
	a.bind(flags.Lookup("low-stock"), "low_stock_threshold")
	a.bind(flags.Lookup("low-sales"), "low_sales_threshold")

	return cmd
}

// reportNames validates the requested queries
func reportNames(args []string, all bool) ([]string, error) {
	switch {
	case all && len(args) > 0:
		return nil, errors.New("pass query names or --all, not both")
	case all:
		return analytics.QueryNames(), nil
	case len(args) == 0:
		return nil, errors.New("name at least one query, or pass --all (see --list)")
	}

	for _, name := range args {
		if !analytics.HasQuery(name) {
			return nil, fmt.Errorf("%w: %s (see --list)", analytics.ErrUnknownQuery, name)
		}
	}
	return args, nil
}

// reportParams applies the command line selection on top of the configured defaults
func reportParams(svc *analytics.Service, opts reportOptions) (analytics.Params, error) {
	p := svc.DefaultParams()

	years, err := analytics.ParseYears(opts.years)
	if err != nil {
		return p, err
	}
	p.Years = years
	p.Category = opts.category
	if opts.top < 0 {
		return p, errors.New("--top cannot be negative")
	}
	p.TopN = opts.top

	return p, nil
}

func runReport(cmd *cobra.Command, a *app, names []string, format export.Format, opts reportOptions) error {
	ctx := cmd.Context()

	pg, err := a.connectStore(ctx)
	if err != nil {
		return err
	}
	defer closeConnector(a.logger, "postgres", pg)

	svc := analytics.NewService(pg.SQLX(), a.cfg.Analytics, a.logger.Named("analytics"))
	params, err := reportParams(svc, opts)
	if err != nil {
		return err
	}

	report, err := svc.RunReport(ctx, names, params)
	if err != nil {
		return &exitError{code: exitCode(err), err: err}
	}
	if report.Generation == "" {
		a.logger.Warn("No snapshot has been written yet")
	}
	stats := svc.CacheStats()
	a.logger.Debug("Query cache after report",
		zap.Int("entries", stats.Entries),
		zap.Int64("hits", stats.Hits),
		zap.Int64("misses", stats.Misses))

	if opts.output != "" {
		paths, err := export.ExportReport(opts.output, report, format, time.Now())
		if err != nil {
			return err
		}
		for _, path := range paths {
			fmt.Fprintln(cmd.OutOrStdout(), "Exported to:", path)
		}
		for _, res := range report.Failed() {
			fmt.Fprintf(cmd.OutOrStdout(), "Skipped %s: %s\n", res.Name, export.ResultMessage(res.Err))
		}
		return nil
	}

	useColor := !opts.noColor && !color.NoColor
	return export.WriteReport(cmd.OutOrStdout(), report, format, useColor)
}
