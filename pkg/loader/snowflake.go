// pkg/loader/snowflake.go
package loader

import (
	"context"
	"errors"

	sf "github.com/snowflakedb/gosnowflake"

	"github.com/David-Botos/retail-ingress/pkg/model"
)

// objectDoesNotExist is the Snowflake SQL compilation error for unknown tables
const objectDoesNotExist = 2003

// TextQuerier streams a staging table as text fields.
// connector.SnowflakeConnector implements it.
type TextQuerier interface {
	SelectAsText(ctx context.Context, table string, fn func(columns []string, fields []string) error) error
}

// SnowflakeSource reads the datasets from raw staging tables named after them
type SnowflakeSource struct {
	conn TextQuerier
}

// NewSnowflakeSource creates a source backed by Snowflake staging tables
func NewSnowflakeSource(conn TextQuerier) *SnowflakeSource {
	return &SnowflakeSource{conn: conn}
}

// Describe names the staging table
func (s *SnowflakeSource) Describe(dataset string) string {
	return "snowflake:" + dataset
}

// Open reads a whole staging table. Rows are numbered as if the table were
// a file with a header line, so line 2 is the first row.
func (s *SnowflakeSource) Open(ctx context.Context, dataset string) (*RawTable, error) {
	table := &RawTable{Name: dataset}

	err := s.conn.SelectAsText(ctx, dataset, func(columns []string, fields []string) error {
		if table.Header == nil {
			table.Header = columns
		}
		table.Rows = append(table.Rows, RawRow{Line: len(table.Rows) + 2, Fields: fields})
		return nil
	})
	if err != nil {
		var sfErr *sf.SnowflakeError
		if errors.As(err, &sfErr) && sfErr.Number == objectDoesNotExist {
			return nil, &model.MissingInputError{Source: s.Describe(dataset), Err: err}
		}
		return nil, err
	}

	return table, nil
}
