package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/David-Botos/retail-ingress/pkg/cleaner"
	"github.com/David-Botos/retail-ingress/pkg/model"
	"github.com/David-Botos/retail-ingress/pkg/store"
)

// ErrInvalidDataset is returned when the cleaned dataset breaks an invariant
// the cleaner guarantees; nothing is written in that case
var ErrInvalidDataset = errors.New("cleaned dataset is invalid")

// RecordLoader reads the raw records
type RecordLoader interface {
	Load(ctx context.Context) (*model.RawDataset, error)
}

// SnapshotWriter persists a cleaned dataset as the new snapshot
type SnapshotWriter interface {
	Generation(ctx context.Context) (string, error)
	WriteSnapshot(ctx context.Context, d *model.Dataset, ops []model.CleaningOperation) (*store.WriteResult, error)
}

// SnapshotVerifier checks a written snapshot
type SnapshotVerifier interface {
	VerifySnapshot(ctx context.Context, d *model.Dataset) (*store.VerificationReport, error)
}

// CacheInvalidator drops query results of older snapshots
type CacheInvalidator interface {
	Invalidate(generation string)
}

// Manager runs one ingest: load, clean, validate, write and optionally
// verify, then tells the query side a new snapshot exists
type Manager struct {
	loader       RecordLoader
	cleaner      *cleaner.DataCleaner
	writer       SnapshotWriter
	verifier     SnapshotVerifier
	invalidators []CacheInvalidator
	errorHandler *ErrorHandler
	metrics      *RunMetrics
	logger       *zap.Logger

	metricsTextfile string
}

// NewManager creates a new run manager
func NewManager(
	loader RecordLoader,
	dataCleaner *cleaner.DataCleaner,
	writer SnapshotWriter,
	logger *zap.Logger,
) *Manager {
	return &Manager{
		loader:       loader,
		cleaner:      dataCleaner,
		writer:       writer,
		errorHandler: NewErrorHandler(logger.Named("errors")),
		metrics:      NewRunMetrics(logger.Named("metrics")),
		logger:       logger,
	}
}

// WithVerifier verifies every committed snapshot with v
func (m *Manager) WithVerifier(v SnapshotVerifier) *Manager {
	m.verifier = v
	return m
}

// WithInvalidator registers a cache to invalidate after each committed snapshot
func (m *Manager) WithInvalidator(c CacheInvalidator) *Manager {
	m.invalidators = append(m.invalidators, c)
	return m
}

// WithMetricsTextfile writes the run metrics to path after each run
func (m *Manager) WithMetricsTextfile(path string) *Manager {
	m.metricsTextfile = path
	return m
}

// Metrics returns the metrics of the last run
func (m *Manager) Metrics() *RunMetrics {
	return m.metrics
}

// ErrorHandler returns the handler recording the run's errors
func (m *Manager) ErrorHandler() *ErrorHandler {
	return m.errorHandler
}

// Run executes one full batch. The returned summary is never nil; the error
// is the first fatal failure. A failed verification is reported in the
// summary but does not fail the run, the snapshot is already committed.
func (m *Manager) Run(ctx context.Context) (summary *RunSummary, err error) {
	summary = NewRunSummary()
	logger := m.logger.With(zap.String("runID", summary.RunID))
	logger.Info("Starting ingest run")

	defer func() {
		summary.Complete(err == nil)
		m.metrics.Complete(summary)
		if m.metricsTextfile != "" {
			if werr := m.metrics.WriteTextfile(m.metricsTextfile); werr != nil {
				logger.Warn("Failed to write metrics", zap.Error(werr))
			}
		}
	}()

	// Load
	raw, err := runStage(m, summary, StageLoad, func() (*model.RawDataset, error) {
		return m.loader.Load(ctx)
	})
	if err != nil {
		return summary, err
	}

	// Clean
	var report *cleaner.CleaningReport
	dataset, err := runStage(m, summary, StageClean, func() (*model.Dataset, error) {
		d, r, err := m.cleaner.Clean(raw)
		report = r
		return d, err
	})
	if err != nil {
		return summary, err
	}
	summary.Cleaning = report
	summary.RecordTables(report, nil)
	m.metrics.RecordCleaning(report)

	// Validate
	_, err = runStage(m, summary, StageValidate, func() (struct{}, error) {
		if violations := cleaner.ValidateDataset(dataset); len(violations) > 0 {
			return struct{}{}, fmt.Errorf("%w: %w", ErrInvalidDataset, errors.Join(violations...))
		}
		return struct{}{}, nil
	})
	if err != nil {
		return summary, err
	}

	// Write
	if previous, gerr := m.writer.Generation(ctx); gerr != nil {
		logger.Warn("Failed to read the live snapshot generation", zap.Error(gerr))
	} else {
		summary.PreviousGeneration = previous
	}
	write, err := runStage(m, summary, StageWrite, func() (*store.WriteResult, error) {
		return m.writer.WriteSnapshot(ctx, dataset, report.Operations)
	})
	if err != nil {
		return summary, err
	}
	summary.Write = write
	summary.Generation = write.Generation
	summary.RecordTables(report, write)

	// Verify
	if m.verifier != nil {
		start := time.Now()
		verification, verr := m.verifier.VerifySnapshot(ctx, dataset)
		summary.AddStage(StageVerify, start, verr)
		m.metrics.RecordStage(summary.Stages[len(summary.Stages)-1])
		switch {
		case verr != nil:
			logger.Warn("Snapshot verification could not run", zap.Error(verr))
		case !verification.Passed():
			logger.Warn("Snapshot verification found issues",
				zap.String("generation", verification.Generation),
				zap.Int("snapshotIssues", len(verification.SnapshotIssues)))
		}
		summary.Verification = verification
	}

	// Invalidate
	start := time.Now()
	for _, c := range m.invalidators {
		c.Invalidate(write.Generation)
	}
	summary.AddStage(StageInvalidate, start, nil)

	logger.Info("Ingest run committed a new snapshot",
		zap.String("generation", write.Generation),
		zap.String("previousGeneration", summary.PreviousGeneration),
		zap.Int("duplicatesRemoved", report.TotalDuplicatesRemoved()),
		zap.Int("locationsRepaired", report.LocationsRepaired),
		zap.Int("pricesCorrected", report.PricesCorrected),
		zap.Int("unreconcilableTransactions", report.UnreconcilableTransactions))

	return summary, nil
}

// runStage times fn, records it in the summary and the metrics, and turns a
// failure into a categorised error record
func runStage[T any](m *Manager, summary *RunSummary, stage Stage, fn func() (T, error)) (T, error) {
	start := time.Now()
	result, err := fn()
	summary.AddStage(stage, start, err)
	m.metrics.RecordStage(summary.Stages[len(summary.Stages)-1])

	if err != nil {
		category := m.errorHandler.CategorizeError(err)
		record := NewErrorRecord(err, category, stage)
		summary.AddError(record)
		m.metrics.RecordError(category)

		if m.errorHandler.HandleError(record) == ActionAbort {
			var zero T
			return zero, fmt.Errorf("%s stage failed: %w", stage, err)
		}
	}

	return result, nil
}
