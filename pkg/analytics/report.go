// pkg/analytics/report.go
package analytics

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/David-Botos/retail-ingress/pkg/model"
)

// QueryResult is the outcome of one query of a report. Err is set when the
// query had no selection or the store was unavailable.
type QueryResult struct {
	Name     string
	Table    *Table
	Err      error
	Duration time.Duration
}

// Report is the set of query results, in request order
type Report struct {
	Generation string
	Results    []QueryResult
	Duration   time.Duration
}

// Failed returns the results that carry an error
func (r *Report) Failed() []QueryResult {
	var failed []QueryResult
	for _, res := range r.Results {
		if res.Err != nil {
			failed = append(failed, res)
		}
	}
	return failed
}

// RunReport runs the named catalog queries concurrently, at most
// WorkerPoolSize at a time, all against the generation live when it starts.
// No selection and store unavailability are recorded per query; any other
// failure cancels the report.
func (s *Service) RunReport(ctx context.Context, names []string, p Params) (*Report, error) {
	for _, name := range names {
		if !HasQuery(name) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownQuery, name)
		}
	}

	limit := s.cfg.WorkerPoolSize
	if limit <= 0 {
		limit = runtime.NumCPU()
	}

	start := time.Now()
	report := &Report{Results: make([]QueryResult, len(names))}

	generation, err := s.Refresh(ctx)
	switch {
	case model.IsStoreUnavailable(err):
		s.logger.Warn("Snapshot generation unavailable, queries will report it", zap.Error(err))
	case err != nil:
		return nil, err
	default:
		report.Generation = generation
		ctx = pinGeneration(ctx, generation)
	}

	s.logger.Info("Running report",
		zap.Int("queries", len(names)),
		zap.Int("concurrency", limit),
		zap.String("generation", report.Generation))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			queryStart := time.Now()
			table, err := s.Run(ctx, name, p)
			report.Results[i] = QueryResult{
				Name:     name,
				Table:    table,
				Err:      err,
				Duration: time.Since(queryStart),
			}

			switch {
			case err == nil:
				return nil
			case errors.Is(err, model.ErrNoSelection):
				s.logger.Info("Query skipped, nothing selected", zap.String("query", name))
				return nil
			case model.IsStoreUnavailable(err):
				return nil
			default:
				return err
			}
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	report.Duration = time.Since(start)
	s.logger.Info("Report completed",
		zap.Int("queries", len(names)),
		zap.Int("failed", len(report.Failed())),
		zap.Duration("duration", report.Duration))

	return report, nil
}
