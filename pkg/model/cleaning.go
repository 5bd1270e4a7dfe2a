// pkg/model/cleaning.go
package model

import (
	"time"
)

// Cleaning operation kinds
const (
	OperationLocationFill     = "location_fill"
	OperationDuplicateRemoval = "duplicate_removal"
	OperationPriceAlignment   = "price_alignment"
)

// CleaningOperation represents a single data cleaning operation
type CleaningOperation struct {
	TableName         string      // Table the row belongs to
	ColumnName        string      // Column that was cleaned (primary key column for dropped rows)
	OriginalValue     interface{} // Original value (may be nil)
	NewValue          string      // New value after cleaning; empty for dropped rows
	RowIdentifier     string      // Primary key of the affected row
	SourceLine        int         // Line of the affected row in the raw source
	CleaningOperation string      // Type of cleaning performed (e.g., "location_fill")
	CleaningReason    string      // Reason for cleaning (e.g., "blank_location")
	CleanedAt         time.Time   // When the cleaning occurred (set by database)
}
