package pipeline

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/David-Botos/retail-ingress/pkg/cleaner"
)

const metricsNamespace = "retail_ingress"

// RunMetrics collects the figures of one run in a Prometheus registry, so a
// batch run can hand them to a node exporter textfile collector
type RunMetrics struct {
	mu       sync.Mutex
	logger   *zap.Logger
	registry *prometheus.Registry

	rowsRead          *prometheus.GaugeVec
	rowsWritten       *prometheus.GaugeVec
	duplicatesRemoved *prometheus.GaugeVec
	repairs           *prometheus.GaugeVec
	stageDuration     *prometheus.GaugeVec
	errors            *prometheus.CounterVec
	runDuration       prometheus.Gauge
	runSuccess        prometheus.Gauge
	lastRun           prometheus.Gauge
}

// NewRunMetrics creates the collectors and registers them in a private registry
func NewRunMetrics(logger *zap.Logger) *RunMetrics {
	m := &RunMetrics{
		logger:   logger,
		registry: prometheus.NewRegistry(),
		rowsRead: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "rows_read",
			Help:      "Raw rows read per table in the last run.",
		}, []string{"table"}),
		rowsWritten: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "rows_written",
			Help:      "Rows written to the snapshot per table in the last run.",
		}, []string{"table"}),
		duplicatesRemoved: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "duplicates_removed",
			Help:      "Duplicate-key rows dropped per table in the last run.",
		}, []string{"table"}),
		repairs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "repairs",
			Help:      "Self-healed data defects in the last run.",
		}, []string{"kind"}),
		stageDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of each run stage.",
		}, []string{"stage"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "errors_total",
			Help:      "Run errors by category.",
		}, []string{"category"}),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of the last run.",
		}),
		runSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "run_success",
			Help:      "1 when the last run committed a snapshot, 0 otherwise.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
	}

	m.registry.MustRegister(
		m.rowsRead,
		m.rowsWritten,
		m.duplicatesRemoved,
		m.repairs,
		m.stageDuration,
		m.errors,
		m.runDuration,
		m.runSuccess,
		m.lastRun,
	)

	return m
}

// Registry exposes the collectors
func (m *RunMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordStage records the duration of a finished stage
func (m *RunMetrics) RecordStage(result StageResult) {
	m.stageDuration.WithLabelValues(string(result.Stage)).Set(result.Duration.Seconds())

	if m.logger != nil {
		m.logger.Info("Stage completed",
			zap.String("stage", string(result.Stage)),
			zap.Duration("duration", result.Duration),
			zap.Bool("success", result.Err == nil))
	}
}

// RecordCleaning records the self-healing counters of the cleaning report
func (m *RunMetrics) RecordCleaning(report *cleaner.CleaningReport) {
	if report == nil {
		return
	}

	for table, n := range report.DuplicatesRemoved {
		m.duplicatesRemoved.WithLabelValues(table).Set(float64(n))
	}
	m.repairs.WithLabelValues("location").Set(float64(report.LocationsRepaired))
	m.repairs.WithLabelValues("price").Set(float64(report.PricesCorrected))
	m.repairs.WithLabelValues("unreconcilable").Set(float64(report.UnreconcilableTransactions))
}

// RecordTable records the row counts of a table
func (m *RunMetrics) RecordTable(result TableResult) {
	m.rowsRead.WithLabelValues(result.Table).Set(float64(result.RowsRead))
	m.rowsWritten.WithLabelValues(result.Table).Set(float64(result.RowsWritten))
}

// RecordError counts an error
func (m *RunMetrics) RecordError(category ErrorCategory) {
	m.errors.WithLabelValues(category.String()).Inc()
}

// Complete records the outcome of the run
func (m *RunMetrics) Complete(summary *RunSummary) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range summary.Tables {
		m.RecordTable(t)
	}

	m.runDuration.Set(summary.Duration.Seconds())
	if summary.Success {
		m.runSuccess.Set(1)
	} else {
		m.runSuccess.Set(0)
	}
	m.lastRun.Set(float64(summary.EndTime.Unix()))

	if m.logger != nil {
		m.logger.Info("Run completed",
			zap.String("runID", summary.RunID),
			zap.String("generation", summary.Generation),
			zap.Bool("success", summary.Success),
			zap.Duration("totalDuration", summary.Duration),
			zap.Int64("totalRowsWritten", summary.TotalRowsWritten()),
			zap.Float64("throughput", summary.Throughput))
	}
}

// WriteTextfile writes the metrics in Prometheus text format, replacing path atomically
func (m *RunMetrics) WriteTextfile(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

// GenerateRunReport renders a plain-text report of a run
func GenerateRunReport(summary *RunSummary) string {
	var sb strings.Builder

	status := "SUCCESS"
	if !summary.Success {
		status = "FAILED"
	}

	sb.WriteString(fmt.Sprintf(`
Ingest Run Report
=================
Run ID:                  %s
Status:                  %s
Snapshot Generation:     %s
Replaced Generation:     %s
Duration:                %s
Start Time:              %s
End Time:                %s
Average Throughput:      %.2f rows/sec
`,
		summary.RunID,
		status,
		valueOr(summary.Generation, "-"),
		valueOr(summary.PreviousGeneration, "-"),
		formatDuration(summary.Duration),
		summary.StartTime.Format(time.RFC3339),
		summary.EndTime.Format(time.RFC3339),
		summary.Throughput,
	))

	sb.WriteString("\nTables\n------\n")
	for _, t := range summary.Tables {
		sb.WriteString(fmt.Sprintf("- %s: %d read, %d duplicates removed, %d written\n",
			t.Table, t.RowsRead, t.DuplicatesRemoved, t.RowsWritten))
	}

	if c := summary.Cleaning; c != nil {
		sb.WriteString(fmt.Sprintf(`
Cleaning
--------
Locations Repaired:      %d
Prices Corrected:        %d
Unreconcilable Sales:    %d
Duplicates Removed:      %d
`,
			c.LocationsRepaired,
			c.PricesCorrected,
			c.UnreconcilableTransactions,
			c.TotalDuplicatesRemoved(),
		))
	}

	sb.WriteString("\nStages\n------\n")
	for _, st := range summary.Stages {
		outcome := "ok"
		if st.Err != nil {
			outcome = "failed"
		}
		sb.WriteString(fmt.Sprintf("- %s: %s (%s)\n", st.Stage, formatDuration(st.Duration), outcome))
	}

	if v := summary.Verification; v != nil {
		sb.WriteString(fmt.Sprintf("\nVerification: passed=%t\n", v.Passed()))
		for _, issue := range v.SnapshotIssues {
			sb.WriteString(fmt.Sprintf("- %s: %s (%d rows)\n", issue.IssueType, issue.Description, issue.AffectedRows))
		}
	}

	if len(summary.Errors) > 0 {
		sb.WriteString("\nErrors\n------\n")
		sorted := append([]ErrorRecord(nil), summary.Errors...)
		sort.SliceStable(sorted, func(a, b int) bool { return sorted[a].Category > sorted[b].Category })
		for _, e := range sorted {
			sb.WriteString("- " + e.String() + "\n")
		}
	}

	return sb.String()
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	d -= s * time.Second
	ms := d / time.Millisecond

	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	} else if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	} else if s > 0 {
		return fmt.Sprintf("%d.%03ds", s, ms)
	}
	return fmt.Sprintf("%dms", ms)
}
