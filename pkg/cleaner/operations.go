// pkg/cleaner/operations.go
package cleaner

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/David-Botos/retail-ingress/pkg/model"
)

// sourced pairs a cleaned record with the source line it came from
type sourced[T any] struct {
	line int
	rec  T
}

// coerceDate parses a raw dd/mm/yy field
func coerceDate(table, column string, recordID int64, line int, value string) (model.Date, error) {
	d, err := model.ParseRawDate(value)
	if err != nil {
		return model.Date{}, &model.DateParseError{
			Table:    table,
			RecordID: recordID,
			Line:     line,
			Column:   column,
			Value:    value,
			Err:      err,
		}
	}
	return d, nil
}

// repairLocation replaces a missing or blank location with the Unknown sentinel
func repairLocation(r model.RawCustomerProfile, cleanedAt time.Time) (string, *model.CleaningOperation) {
	if r.Location != nil && strings.TrimSpace(*r.Location) != "" {
		return *r.Location, nil
	}

	var original interface{}
	reason := "missing_location"
	if r.Location != nil {
		original = *r.Location
		reason = "blank_location"
	}

	return model.UnknownLocation, &model.CleaningOperation{
		TableName:         model.CustomerProfiles,
		ColumnName:        "Location",
		OriginalValue:     original,
		NewValue:          model.UnknownLocation,
		RowIdentifier:     strconv.FormatInt(r.CustomerID, 10),
		SourceLine:        r.Line,
		CleaningOperation: model.OperationLocationFill,
		CleaningReason:    reason,
		CleanedAt:         cleanedAt,
	}
}

// dedupe keeps the first record per key, where first means lowest source
// line. The returned records are in source order.
func dedupe[T any](
	rows []sourced[T],
	meta model.TableMetadata,
	key func(T) int64,
	cleanedAt time.Time,
) ([]T, []model.CleaningOperation) {
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].line < rows[j].line })

	firstLine := make(map[int64]int, len(rows))
	kept := make([]T, 0, len(rows))
	var ops []model.CleaningOperation

	for _, row := range rows {
		id := key(row.rec)
		if first, seen := firstLine[id]; seen {
			rowID := strconv.FormatInt(id, 10)
			ops = append(ops, model.CleaningOperation{
				TableName:         meta.Table,
				ColumnName:        meta.PrimaryKey(),
				OriginalValue:     rowID,
				RowIdentifier:     rowID,
				SourceLine:        row.line,
				CleaningOperation: model.OperationDuplicateRemoval,
				CleaningReason:    fmt.Sprintf("duplicate_of_line_%d", first),
				CleanedAt:         cleanedAt,
			})
			continue
		}
		firstLine[id] = row.line
		kept = append(kept, row.rec)
	}

	return kept, ops
}

// reconcilePrices aligns each transaction's price with its product's current
// price. Transactions for unknown products keep their price.
func reconcilePrices(
	transactions []model.TransactionRecord,
	products []model.ProductRecord,
	report *CleaningReport,
	cleanedAt time.Time,
) {
	current := make(map[int64]decimal.Decimal, len(products))
	for _, p := range products {
		current[p.ProductID] = p.Price
	}

	for i := range transactions {
		tx := &transactions[i]
		price, ok := current[tx.ProductID]
		if !ok {
			report.UnreconcilableTransactions++
			continue
		}
		if tx.Price.Equal(price) {
			continue
		}

		report.Operations = append(report.Operations, model.CleaningOperation{
			TableName:         model.SalesTransaction,
			ColumnName:        "Price",
			OriginalValue:     tx.Price.String(),
			NewValue:          price.String(),
			RowIdentifier:     strconv.FormatInt(tx.TransactionID, 10),
			CleaningOperation: model.OperationPriceAlignment,
			CleaningReason:    "product_price_mismatch",
			CleanedAt:         cleanedAt,
		})
		tx.Price = price
		report.PricesCorrected++
	}
}

// ValidateDataset checks the invariants a cleaned dataset must hold before it
// is written: unique keys, non-blank locations and reconciled prices.
// It returns every violation found.
func ValidateDataset(d *model.Dataset) []error {
	var violations []error

	seen := make(map[int64]bool, len(d.Customers))
	for _, c := range d.Customers {
		if seen[c.CustomerID] {
			violations = append(violations, fmt.Errorf("%s: duplicate CustomerID %d", model.CustomerProfiles, c.CustomerID))
		}
		seen[c.CustomerID] = true
		if strings.TrimSpace(c.Location) == "" {
			violations = append(violations, fmt.Errorf("%s: blank Location for CustomerID %d", model.CustomerProfiles, c.CustomerID))
		}
	}

	prices := make(map[int64]decimal.Decimal, len(d.Products))
	for _, p := range d.Products {
		if _, dup := prices[p.ProductID]; dup {
			violations = append(violations, fmt.Errorf("%s: duplicate ProductID %d", model.ProductInventory, p.ProductID))
		}
		prices[p.ProductID] = p.Price
	}

	seen = make(map[int64]bool, len(d.Transactions))
	for _, t := range d.Transactions {
		if seen[t.TransactionID] {
			violations = append(violations, fmt.Errorf("%s: duplicate TransactionID %d", model.SalesTransaction, t.TransactionID))
		}
		seen[t.TransactionID] = true
		if price, ok := prices[t.ProductID]; ok && !price.Equal(t.Price) {
			violations = append(violations, fmt.Errorf("%s: TransactionID %d price %s differs from product price %s",
				model.SalesTransaction, t.TransactionID, t.Price, price))
		}
	}

	return violations
}
