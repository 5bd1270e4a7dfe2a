// pkg/loader/excel.go
package loader

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/David-Botos/retail-ingress/pkg/config"
	"github.com/David-Botos/retail-ingress/pkg/model"
)

// ExcelSource reads the three datasets from sheets of one workbook.
// Sheets are named after the datasets (customer_profiles, ...).
type ExcelSource struct {
	path string
}

// NewExcelSource creates a source for the configured workbook
func NewExcelSource(cfg config.InputConfig) *ExcelSource {
	path := cfg.Workbook
	if !filepath.IsAbs(path) {
		path = filepath.Join(cfg.Dir, path)
	}
	return &ExcelSource{path: path}
}

// Describe returns workbook and sheet of a dataset
func (s *ExcelSource) Describe(dataset string) string {
	return fmt.Sprintf("%s[%s]", s.path, dataset)
}

// Open reads one sheet. Blank rows are skipped; line numbers are sheet row numbers.
func (s *ExcelSource) Open(ctx context.Context, dataset string) (*RawTable, error) {
	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return nil, &model.MissingInputError{Source: s.path, Err: err}
	}
	defer f.Close()

	sheet, ok := findSheet(f.GetSheetList(), dataset)
	if !ok {
		return nil, &model.MissingInputError{
			Source: s.Describe(dataset),
			Err:    errors.New("sheet not found"),
		}
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, &model.MalformedRecordError{Source: s.Describe(dataset), Err: err}
	}

	table := &RawTable{Name: dataset}
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if isBlankRow(row) {
			continue
		}
		if table.Header == nil {
			table.Header = row
			continue
		}
		table.Rows = append(table.Rows, RawRow{Line: i + 1, Fields: row})
	}

	if table.Header == nil {
		return nil, &model.MalformedRecordError{Source: s.Describe(dataset), Line: 1, Err: errors.New("sheet has no header row")}
	}

	return table, nil
}

func findSheet(sheets []string, dataset string) (string, bool) {
	for _, name := range sheets {
		if strings.EqualFold(strings.TrimSpace(name), dataset) {
			return name, true
		}
	}
	return "", false
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
