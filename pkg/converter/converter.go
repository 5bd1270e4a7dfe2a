// pkg/converter/converter.go
package converter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/David-Botos/retail-ingress/pkg/model"
)

// TypeConverter maps snapshot records and table metadata to PostgreSQL DDL and row values
type TypeConverter struct {
	logger *zap.Logger
}

// NewTypeConverter creates a new TypeConverter
func NewTypeConverter(logger *zap.Logger) *TypeConverter {
	return &TypeConverter{
		logger: logger,
	}
}

// GenerateColumnDefinitions creates PostgreSQL column definitions
func (c *TypeConverter) GenerateColumnDefinitions(metadata *model.TableMetadata) ([]string, error) {
	if len(metadata.Columns) == 0 {
		return nil, fmt.Errorf("table %s has no columns", metadata.Table)
	}

	definitions := make([]string, 0, len(metadata.Columns))

	for _, col := range metadata.Columns {
		if col.PgType == "" {
			return nil, fmt.Errorf("column %s.%s has no PostgreSQL type", metadata.Table, col.Name)
		}

		nullability := "NULL"
		if col.IsPrimaryKey || !col.Nullable {
			nullability = "NOT NULL"
		}

		def := fmt.Sprintf("%s %s %s",
			quoteIdentifier(col.Name),
			col.PgType,
			nullability)

		definitions = append(definitions, def)
	}

	return definitions, nil
}

// CreateTableSQL returns the CREATE TABLE statement for a snapshot table
func (c *TypeConverter) CreateTableSQL(metadata *model.TableMetadata) (string, error) {
	defs, err := c.GenerateColumnDefinitions(metadata)
	if err != nil {
		return "", err
	}

	if len(metadata.PrimaryKeys) > 0 {
		keys := make([]string, len(metadata.PrimaryKeys))
		for i, k := range metadata.PrimaryKeys {
			keys[i] = quoteIdentifier(k)
		}
		defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(keys, ", ")))
	}

	return fmt.Sprintf("CREATE TABLE %s (\n\t%s\n)",
		quoteIdentifier(metadata.Table),
		strings.Join(defs, ",\n\t")), nil
}

// QuoteColumns returns the quoted column list of a table, in insert order
func QuoteColumns(metadata *model.TableMetadata) []string {
	cols := make([]string, len(metadata.Columns))
	for i, col := range metadata.Columns {
		cols[i] = quoteIdentifier(col.Name)
	}
	return cols
}

// QuoteIdentifier quotes a published column or table name the way the
// snapshot schema stores it
func QuoteIdentifier(name string) string {
	return quoteIdentifier(name)
}

// quoteIdentifier lower-cases and quotes a PostgreSQL identifier, so the
// stored names match unquoted references such as CustomerID in queries
func quoteIdentifier(name string) string {
	return pq.QuoteIdentifier(strings.ToLower(name))
}

var errUnknownTable = errors.New("unknown snapshot table")
