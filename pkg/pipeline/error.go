package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/David-Botos/retail-ingress/pkg/model"
	"github.com/David-Botos/retail-ingress/pkg/store"
)

// Action defines the recommended action after an error
type Action int

const (
	// ActionContinue indicates the run can go on despite the error
	ActionContinue Action = iota
	// ActionAbort indicates the run must stop
	ActionAbort
)

// String returns a string representation of the action
func (a Action) String() string {
	switch a {
	case ActionContinue:
		return "Continue"
	case ActionAbort:
		return "Abort"
	default:
		return fmt.Sprintf("Unknown(%d)", a)
	}
}

// ErrorCategory defines categories of errors during a run
type ErrorCategory int

const (
	ErrorCategoryNone ErrorCategory = iota
	// ErrorCategoryInput is an input source that is missing or unreadable
	ErrorCategoryInput
	// ErrorCategoryData is a malformed record or a cleaning defect
	ErrorCategoryData
	// ErrorCategoryStore is a failed snapshot write
	ErrorCategoryStore
	// ErrorCategoryStoreUnavailable is a store that cannot be reached
	ErrorCategoryStoreUnavailable
	// ErrorCategorySystem is anything else, including cancellation
	ErrorCategorySystem
)

// String returns a string representation of the error category
func (ec ErrorCategory) String() string {
	switch ec {
	case ErrorCategoryNone:
		return "None"
	case ErrorCategoryInput:
		return "Input"
	case ErrorCategoryData:
		return "Data"
	case ErrorCategoryStore:
		return "Store"
	case ErrorCategoryStoreUnavailable:
		return "StoreUnavailable"
	case ErrorCategorySystem:
		return "System"
	default:
		return fmt.Sprintf("Unknown(%d)", ec)
	}
}

// ExitCode is the process exit status the CLI uses for the category
func (ec ErrorCategory) ExitCode() int {
	switch ec {
	case ErrorCategoryNone:
		return 0
	case ErrorCategoryInput:
		return 2
	case ErrorCategoryData:
		return 3
	case ErrorCategoryStore:
		return 4
	case ErrorCategoryStoreUnavailable:
		return 5
	default:
		return 1
	}
}

// ErrorRecord represents a single error during a run
type ErrorRecord struct {
	Category  ErrorCategory
	Stage     Stage
	TableName string
	Line      int
	Column    string
	Value     string
	Error     error
	Message   string // Derived from Error but stored for serialization
	Timestamp time.Time
}

// NewErrorRecord creates a new error record with current timestamp
func NewErrorRecord(err error, category ErrorCategory, stage Stage) ErrorRecord {
	record := ErrorRecord{
		Category:  category,
		Stage:     stage,
		Error:     err,
		Timestamp: time.Now(),
	}

	if err != nil {
		record.Message = err.Error()
	}

	var malformed *model.MalformedRecordError
	var dateErr *model.DateParseError
	var writeErr *model.StoreWriteError
	var missing *model.MissingInputError
	switch {
	case errors.As(err, &malformed):
		record.TableName = malformed.Source
		record.Line = malformed.Line
		record.Column = malformed.Column
		record.Value = malformed.Value
	case errors.As(err, &dateErr):
		record.TableName = dateErr.Table
		record.Line = dateErr.Line
		record.Column = dateErr.Column
		record.Value = dateErr.Value
	case errors.As(err, &writeErr):
		record.TableName = writeErr.Table
	case errors.As(err, &missing):
		record.TableName = missing.Source
	}

	return record
}

// String returns a formatted error message
func (r ErrorRecord) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] ", r.Category))

	if r.Stage != "" {
		sb.WriteString(fmt.Sprintf("Stage: %s ", r.Stage))
	}

	if r.TableName != "" {
		sb.WriteString(fmt.Sprintf("Table: %s ", r.TableName))
	}

	if r.Line > 0 {
		sb.WriteString(fmt.Sprintf("Line: %d ", r.Line))
	}

	if r.Column != "" {
		sb.WriteString(fmt.Sprintf("Column: %s ", r.Column))
		if r.Value != "" {
			sb.WriteString(fmt.Sprintf("Value: %q ", r.Value))
		}
	}

	if r.Error != nil {
		sb.WriteString(fmt.Sprintf("Error: %s", r.Error.Error()))
	} else if r.Message != "" {
		sb.WriteString(fmt.Sprintf("Error: %s", r.Message))
	}

	return sb.String()
}

// ErrorHandler categorises and records the errors of a run
type ErrorHandler struct {
	logger       *zap.Logger
	errorCounts  map[ErrorCategory]int
	sampleErrors map[ErrorCategory][]ErrorRecord
	mu           sync.Mutex
	maxSamples   int
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(logger *zap.Logger) *ErrorHandler {
	return &ErrorHandler{
		logger:       logger,
		errorCounts:  make(map[ErrorCategory]int),
		sampleErrors: make(map[ErrorCategory][]ErrorRecord),
		maxSamples:   5, // Store up to 5 sample errors per category
	}
}

// CategorizeError determines the category of an error from its type
func (eh *ErrorHandler) CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ErrorCategoryNone
	}

	var category ErrorCategory
	var missing *model.MissingInputError
	var malformed *model.MalformedRecordError
	var dateErr *model.DateParseError
	var writeErr *model.StoreWriteError

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		category = ErrorCategorySystem
	case errors.As(err, &missing):
		category = ErrorCategoryInput
	case errors.As(err, &malformed), errors.As(err, &dateErr), errors.Is(err, ErrInvalidDataset):
		category = ErrorCategoryData
	case model.IsStoreUnavailable(err), store.IsUnavailable(err):
		category = ErrorCategoryStoreUnavailable
	case errors.As(err, &writeErr):
		category = ErrorCategoryStore
	default:
		category = ErrorCategorySystem
	}

	if eh.logger != nil {
		eh.logger.Debug("Categorized error",
			zap.String("error", err.Error()),
			zap.String("category", category.String()))
	}

	return category
}

// HandleError records an error and determines the action
func (eh *ErrorHandler) HandleError(record ErrorRecord) Action {
	eh.RecordError(record)

	switch record.Category {
	case ErrorCategoryNone:
		return ActionContinue
	default:
		// Every failure before the commit leaves the previous snapshot in place
		if eh.logger != nil {
			eh.logger.Error("Aborting run",
				zap.String("category", record.Category.String()),
				zap.String("stage", string(record.Stage)),
				zap.String("error", record.Message))
		}
		return ActionAbort
	}
}

// RecordError saves an error occurrence
func (eh *ErrorHandler) RecordError(record ErrorRecord) {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	eh.errorCounts[record.Category]++

	samples := eh.sampleErrors[record.Category]
	if len(samples) < eh.maxSamples {
		eh.sampleErrors[record.Category] = append(samples, record)
	}

	if eh.logger != nil {
		logLevel := zap.WarnLevel
		if record.Category == ErrorCategorySystem {
			logLevel = zap.ErrorLevel
		}

		eh.logger.Log(logLevel, "Run error",
			zap.String("category", record.Category.String()),
			zap.String("stage", string(record.Stage)),
			zap.String("table", record.TableName),
			zap.Int("line", record.Line),
			zap.String("column", record.Column),
			zap.String("error", record.Message))
	}
}

// GetErrorSummary returns the error counts by category
func (eh *ErrorHandler) GetErrorSummary() map[ErrorCategory]int {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	summary := make(map[ErrorCategory]int, len(eh.errorCounts))
	for category, count := range eh.errorCounts {
		summary[category] = count
	}

	return summary
}

// GetErrorSamples returns sample errors for each category
func (eh *ErrorHandler) GetErrorSamples() map[ErrorCategory][]ErrorRecord {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	samples := make(map[ErrorCategory][]ErrorRecord, len(eh.sampleErrors))
	for category, records := range eh.sampleErrors {
		categorySamples := make([]ErrorRecord, len(records))
		copy(categorySamples, records)
		samples[category] = categorySamples
	}

	return samples
}
