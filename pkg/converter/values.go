// pkg/converter/values.go
package converter

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/David-Botos/retail-ingress/pkg/model"
)

// TableRows converts one cleaned collection of the dataset into insert rows,
// ordered like metadata.Columns. Dates are written as ISO-8601 text.
func (c *TypeConverter) TableRows(metadata *model.TableMetadata, d *model.Dataset) ([][]interface{}, error) {
	var rows [][]interface{}

	switch metadata.Table {
	case model.CustomerProfiles:
		rows = make([][]interface{}, 0, len(d.Customers))
		for _, r := range d.Customers {
			rows = append(rows, []interface{}{
				r.CustomerID,
				r.Age,
				r.Gender,
				r.Location,
				dateText(r.JoinDate),
			})
		}

	case model.ProductInventory:
		rows = make([][]interface{}, 0, len(d.Products))
		for _, r := range d.Products {
			rows = append(rows, []interface{}{
				r.ProductID,
				r.ProductName,
				r.Category,
				r.StockLevel,
				r.Price.StringFixed(2),
			})
		}

	case model.SalesTransaction:
		rows = make([][]interface{}, 0, len(d.Transactions))
		for _, r := range d.Transactions {
			rows = append(rows, []interface{}{
				r.TransactionID,
				r.CustomerID,
				r.ProductID,
				r.QuantityPurchased,
				dateText(r.TransactionDate),
				r.Price.StringFixed(2),
			})
		}

	default:
		return nil, fmt.Errorf("%w: %s", errUnknownTable, metadata.Table)
	}

	if len(rows) > 0 && len(rows[0]) != len(metadata.Columns) {
		return nil, fmt.Errorf("table %s: %d values per row, %d columns", metadata.Table, len(rows[0]), len(metadata.Columns))
	}

	c.logger.Debug("Converted rows",
		zap.String("table", metadata.Table),
		zap.Int("rows", len(rows)))

	return rows, nil
}

// AuditColumns are the inserted columns of the cleaned_on_ingress table
var AuditColumns = []string{
	"run_id", "table_name", "column_name", "original_value", "new_value",
	"row_identifier", "source_line", "cleaning_operation", "cleaning_reason", "cleaned_at",
}

// OperationRows converts cleaning operations into cleaned_on_ingress rows
func (c *TypeConverter) OperationRows(runID string, ops []model.CleaningOperation) [][]interface{} {
	rows := make([][]interface{}, 0, len(ops))
	for _, op := range ops {
		cleanedAt := op.CleanedAt
		if cleanedAt.IsZero() {
			cleanedAt = time.Now().UTC()
		}
		rows = append(rows, []interface{}{
			runID,
			op.TableName,
			op.ColumnName,
			toNullableString(op.OriginalValue),
			op.NewValue,
			op.RowIdentifier,
			op.SourceLine,
			op.CleaningOperation,
			op.CleaningReason,
			cleanedAt,
		})
	}
	return rows
}

// dateText returns the ISO form of d, or nil for the zero date
func dateText(d model.Date) interface{} {
	if d.IsZero() {
		return nil
	}
	return d.String()
}

// toNullableString renders an original value for the audit table
func toNullableString(value interface{}) interface{} {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
