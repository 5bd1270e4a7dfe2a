// pkg/loader/parse.go
package loader

import (
	"errors"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/David-Botos/retail-ingress/pkg/model"
)

var errMissingColumn = errors.New("required column not present in header")

// columnIndex maps lower-cased header names to field positions
type columnIndex map[string]int

func newColumnIndex(header []string) columnIndex {
	idx := make(columnIndex, len(header))
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(name))
		if _, dup := idx[key]; !dup {
			idx[key] = i
		}
	}
	return idx
}

// require checks that every named column is present
func (ci columnIndex) require(source string, names []string) error {
	for _, name := range names {
		if _, ok := ci[strings.ToLower(name)]; !ok {
			return &model.MalformedRecordError{Source: source, Line: 1, Column: name, Err: errMissingColumn}
		}
	}
	return nil
}

// rowReader extracts typed fields from one raw row
type rowReader struct {
	source string
	idx    columnIndex
	row    RawRow
}

// text returns the raw cell, or "" when the row is short
func (r rowReader) text(column string) string {
	i, ok := r.idx[strings.ToLower(column)]
	if !ok || i >= len(r.row.Fields) {
		return ""
	}
	return r.row.Fields[i]
}

// optional returns nil for an empty cell
func (r rowReader) optional(column string) *string {
	v := r.text(column)
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return &v
}

func (r rowReader) int64(column string) (int64, error) {
	raw := r.text(column)
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, r.malformed(column, raw, unwrapNumError(err))
	}
	return v, nil
}

func (r rowReader) int(column string) (int, error) {
	raw := r.text(column)
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, r.malformed(column, raw, unwrapNumError(err))
	}
	return v, nil
}

func (r rowReader) decimal(column string) (decimal.Decimal, error) {
	raw := r.text(column)
	v, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, r.malformed(column, raw, err)
	}
	return v, nil
}

func (r rowReader) malformed(column, value string, err error) error {
	return &model.MalformedRecordError{
		Source: r.source,
		Line:   r.row.Line,
		Column: column,
		Value:  value,
		Err:    err,
	}
}

func unwrapNumError(err error) error {
	var numErr *strconv.NumError
	if errors.As(err, &numErr) {
		return numErr.Err
	}
	return err
}

func parseCustomer(r rowReader) (model.RawCustomerProfile, error) {
	var (
		rec model.RawCustomerProfile
		err error
	)
	rec.Line = r.row.Line
	if rec.CustomerID, err = r.int64("CustomerID"); err != nil {
		return rec, err
	}
	if rec.Age, err = r.int("Age"); err != nil {
		return rec, err
	}
	rec.Gender = strings.TrimSpace(r.text("Gender"))
	rec.Location = r.optional("Location")
	rec.JoinDate = r.text("JoinDate")
	return rec, nil
}

func parseProduct(r rowReader) (model.RawProductRecord, error) {
	var (
		rec model.RawProductRecord
		err error
	)
	rec.Line = r.row.Line
	if rec.ProductID, err = r.int64("ProductID"); err != nil {
		return rec, err
	}
	rec.ProductName = strings.TrimSpace(r.text("ProductName"))
	rec.Category = strings.TrimSpace(r.text("Category"))
	if rec.StockLevel, err = r.int("StockLevel"); err != nil {
		return rec, err
	}
	if rec.Price, err = r.decimal("Price"); err != nil {
		return rec, err
	}
	return rec, nil
}

func parseTransaction(r rowReader) (model.RawSalesTransaction, error) {
	var (
		rec model.RawSalesTransaction
		err error
	)
	rec.Line = r.row.Line
	if rec.TransactionID, err = r.int64("TransactionID"); err != nil {
		return rec, err
	}
	if rec.CustomerID, err = r.int64("CustomerID"); err != nil {
		return rec, err
	}
	if rec.ProductID, err = r.int64("ProductID"); err != nil {
		return rec, err
	}
	if rec.QuantityPurchased, err = r.int("QuantityPurchased"); err != nil {
		return rec, err
	}
	rec.TransactionDate = r.text("TransactionDate")
	if rec.Price, err = r.decimal("Price"); err != nil {
		return rec, err
	}
	return rec, nil
}
