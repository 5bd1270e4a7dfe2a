package model

import (
	"errors"
	"fmt"
)

// ErrNoSelection is returned by parameterised queries when the caller selected
// nothing, e.g. no year or no category. The query is not executed.
var ErrNoSelection = errors.New("no selection")

// MissingInputError reports an input source that could not be found or opened
type MissingInputError struct {
	Source string
	Err    error
}

func (e *MissingInputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("missing input %s: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("missing input %s", e.Source)
}

func (e *MissingInputError) Unwrap() error { return e.Err }

// MalformedRecordError reports a required field that could not be parsed as its declared type
type MalformedRecordError struct {
	Source string
	Line   int
	Column string
	Value  string
	Err    error
}

func (e *MalformedRecordError) Error() string {
	msg := fmt.Sprintf("malformed record in %s at line %d", e.Source, e.Line)
	if e.Column != "" {
		msg += fmt.Sprintf(", column %s", e.Column)
	}
	if e.Value != "" {
		msg += fmt.Sprintf(" (value %q)", e.Value)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedRecordError) Unwrap() error { return e.Err }

// DateParseError reports a date field that does not match the raw dd/mm/yy layout
type DateParseError struct {
	Table    string
	RecordID int64
	Line     int
	Column   string
	Value    string
	Err      error
}

func (e *DateParseError) Error() string {
	return fmt.Sprintf("cannot parse %s.%s %q for record %d (line %d): %v",
		e.Table, e.Column, e.Value, e.RecordID, e.Line, e.Err)
}

func (e *DateParseError) Unwrap() error { return e.Err }

// StoreWriteError reports a failure while persisting a snapshot
type StoreWriteError struct {
	Table string
	Op    string
	// InvariantViolation is set when the store rejected rows on a constraint.
	// The cleaner guarantees key uniqueness, so this is a defect, not a retryable condition.
	InvariantViolation bool
	Err                error
}

func (e *StoreWriteError) Error() string {
	target := e.Table
	if target == "" {
		target = "snapshot"
	}
	msg := fmt.Sprintf("store write failed (%s %s)", e.Op, target)
	if e.InvariantViolation {
		msg += " [invariant violation]"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StoreWriteError) Unwrap() error { return e.Err }

// StoreUnavailableError reports that the store could not be reached or holds no snapshot.
// Callers render this as "no data"; it is distinct from an empty result.
type StoreUnavailableError struct {
	Query string
	Err   error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("store unavailable for %s: %v", e.Query, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

// IsStoreUnavailable reports whether err is or wraps a StoreUnavailableError
func IsStoreUnavailable(err error) bool {
	var target *StoreUnavailableError
	return errors.As(err, &target)
}
