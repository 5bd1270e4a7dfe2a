package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/David-Botos/retail-ingress/pkg/cleaner"
	"github.com/David-Botos/retail-ingress/pkg/model"
	"github.com/David-Botos/retail-ingress/pkg/store"
)

// Stage names a step of a run
type Stage string

// Run stages, in execution order
const (
	StageLoad       Stage = "load"
	StageClean      Stage = "clean"
	StageValidate   Stage = "validate"
	StageWrite      Stage = "write"
	StageVerify     Stage = "verify"
	StageInvalidate Stage = "invalidate"
)

// StageResult records one executed stage
type StageResult struct {
	Stage     Stage
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Err       error
}

// TableResult represents what a run did to one table
type TableResult struct {
	Table             string
	RowsRead          int64
	RowsCleaned       int64
	DuplicatesRemoved int64
	RowsWritten       int64
}

// RunSummary represents the outcome of one ingest run
type RunSummary struct {
	RunID      string
	Generation string
	Success    bool

	// PreviousGeneration is the snapshot the run replaced, "" for the first one
	PreviousGeneration string

	Tables   []TableResult
	Stages   []StageResult
	Cleaning *cleaner.CleaningReport
	Write    *store.WriteResult

	// Verification is nil unless the run verified the snapshot
	Verification *store.VerificationReport

	Errors     []ErrorRecord
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	Throughput float64 // rows written per second
}

// NewRunSummary initializes a summary with a fresh run ID
func NewRunSummary() *RunSummary {
	return &RunSummary{
		RunID:     uuid.New().String(),
		StartTime: time.Now(),
		Tables:    make([]TableResult, 0, 3),
		Stages:    make([]StageResult, 0, 6),
		Errors:    make([]ErrorRecord, 0),
	}
}

// AddStage appends a finished stage
func (s *RunSummary) AddStage(stage Stage, start time.Time, err error) {
	end := time.Now()
	s.Stages = append(s.Stages, StageResult{
		Stage:     stage,
		StartTime: start,
		EndTime:   end,
		Duration:  end.Sub(start),
		Err:       err,
	})
}

// AddError adds an error to the summary
func (s *RunSummary) AddError(record ErrorRecord) {
	s.Errors = append(s.Errors, record)
	s.Success = false
}

// HasErrors checks if any errors occurred
func (s *RunSummary) HasErrors() bool {
	return len(s.Errors) > 0
}

// FirstError returns the first recorded error, nil when there is none
func (s *RunSummary) FirstError() *ErrorRecord {
	if len(s.Errors) == 0 {
		return nil
	}
	return &s.Errors[0]
}

// RecordTables fills the per-table results from the cleaning report and, when
// present, the write result
func (s *RunSummary) RecordTables(report *cleaner.CleaningReport, write *store.WriteResult) {
	s.Tables = s.Tables[:0]
	for _, meta := range model.SnapshotTables() {
		tr := TableResult{Table: meta.Table}
		if report != nil {
			tr.RowsRead = int64(report.RowsIn[meta.Table])
			tr.RowsCleaned = int64(report.RowsOut[meta.Table])
			tr.DuplicatesRemoved = int64(report.DuplicatesRemoved[meta.Table])
		}
		if write != nil {
			tr.RowsWritten = write.RowsWritten[meta.Table]
		}
		s.Tables = append(s.Tables, tr)
	}
}

// TotalRowsWritten sums the rows written over all tables
func (s *RunSummary) TotalRowsWritten() int64 {
	var total int64
	for _, t := range s.Tables {
		total += t.RowsWritten
	}
	return total
}

// Complete marks the run as finished and calculates duration and throughput
func (s *RunSummary) Complete(success bool) {
	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)
	s.Success = success && !s.HasErrors()
	if s.Duration.Seconds() > 0 {
		s.Throughput = float64(s.TotalRowsWritten()) / s.Duration.Seconds()
	}
}
