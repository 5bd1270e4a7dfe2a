// pkg/loader/source.go
package loader

import (
	"context"
	"fmt"

	"github.com/David-Botos/retail-ingress/pkg/config"
)

// RawRow is one data row as text fields, tagged with its 1-based source line
type RawRow struct {
	Line   int
	Fields []string
}

// RawTable is the header and rows of one dataset in source order
type RawTable struct {
	Name   string
	Header []string
	Rows   []RawRow
}

// Source reads the raw text of one dataset. Implementations must be safe for
// concurrent use across different datasets.
type Source interface {
	// Open returns the dataset's table, or a *model.MissingInputError when it does not exist
	Open(ctx context.Context, dataset string) (*RawTable, error)

	// Describe names the location of a dataset for logs and errors
	Describe(dataset string) string
}

// NewSource builds the source selected by the input configuration. staging is
// only used, and must be non-nil, for the snowflake source.
func NewSource(cfg config.InputConfig, staging TextQuerier) (Source, error) {
	switch cfg.Source {
	case config.SourceCSV:
		return NewCSVSource(cfg), nil
	case config.SourceExcel:
		return NewExcelSource(cfg), nil
	case config.SourceSnowflake:
		if staging == nil {
			return nil, fmt.Errorf("snowflake source requires a staging connection")
		}
		return NewSnowflakeSource(staging), nil
	default:
		return nil, fmt.Errorf("unknown input source %q", cfg.Source)
	}
}
