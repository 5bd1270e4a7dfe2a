// pkg/loader/csv.go
package loader

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/David-Botos/retail-ingress/pkg/config"
	"github.com/David-Botos/retail-ingress/pkg/model"
)

// CSVSource reads each dataset from its own delimited file in a directory
type CSVSource struct {
	dir   string
	files map[string]string
}

// NewCSVSource creates a source for the three raw CSV files
func NewCSVSource(cfg config.InputConfig) *CSVSource {
	return &CSVSource{
		dir: cfg.Dir,
		files: map[string]string{
			model.CustomerProfiles: cfg.CustomersFile,
			model.ProductInventory: cfg.ProductsFile,
			model.SalesTransaction: cfg.SalesFile,
		},
	}
}

// Describe returns the file path of a dataset
func (s *CSVSource) Describe(dataset string) string {
	return filepath.Join(s.dir, s.files[dataset])
}

// Open reads the whole file of a dataset
func (s *CSVSource) Open(ctx context.Context, dataset string) (*RawTable, error) {
	path := s.Describe(dataset)
	if s.files[dataset] == "" {
		return nil, &model.MissingInputError{Source: dataset, Err: errors.New("no file configured")}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &model.MissingInputError{Source: path, Err: err}
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &model.MalformedRecordError{Source: path, Line: 1, Err: errors.New("file has no header row")}
		}
		return nil, csvError(path, err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	table := &RawTable{Name: dataset, Header: header}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, csvError(path, err)
		}

		line, _ := reader.FieldPos(0)
		table.Rows = append(table.Rows, RawRow{Line: line, Fields: record})
	}

	return table, nil
}

func csvError(path string, err error) error {
	var parseErr *csv.ParseError
	if errors.As(err, &parseErr) {
		return &model.MalformedRecordError{
			Source: path,
			Line:   parseErr.Line,
			Column: fmt.Sprintf("#%d", parseErr.Column),
			Err:    parseErr.Err,
		}
	}
	return &model.MalformedRecordError{Source: path, Err: err}
}
