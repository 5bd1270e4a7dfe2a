// pkg/loader/loader.go
package loader

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/David-Botos/retail-ingress/pkg/model"
)

// Loader parses the three raw datasets from a Source into typed raw records
type Loader struct {
	source   Source
	validate *validator.Validate
	logger   *zap.Logger
}

// NewLoader creates a loader over source
func NewLoader(source Source, logger *zap.Logger) *Loader {
	return &Loader{
		source:   source,
		validate: newValidator(),
		logger:   logger,
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	// Compare money as a number so gte/gt tags apply to decimal fields
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// Load reads the three datasets concurrently. Row order within each
// collection is the source order.
func (l *Loader) Load(ctx context.Context) (*model.RawDataset, error) {
	start := time.Now()
	raw := &model.RawDataset{}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		raw.Customers, err = loadTable(gctx, l, model.CustomerProfilesMetadata, parseCustomer)
		return err
	})
	g.Go(func() error {
		var err error
		raw.Products, err = loadTable(gctx, l, model.ProductInventoryMetadata, parseProduct)
		return err
	})
	g.Go(func() error {
		var err error
		raw.Transactions, err = loadTable(gctx, l, model.SalesTransactionMetadata, parseTransaction)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	l.logger.Info("Loaded raw records",
		zap.Int("customers", len(raw.Customers)),
		zap.Int("products", len(raw.Products)),
		zap.Int("transactions", len(raw.Transactions)),
		zap.Duration("duration", time.Since(start)))

	return raw, nil
}

func loadTable[T any](
	ctx context.Context,
	l *Loader,
	meta model.TableMetadata,
	parse func(rowReader) (T, error),
) ([]T, error) {
	table, err := l.source.Open(ctx, meta.Table)
	if err != nil {
		return nil, err
	}

	source := l.source.Describe(meta.Table)
	if table.Header == nil && len(table.Rows) == 0 {
		l.logger.Warn("Dataset is empty", zap.String("source", source))
		return nil, nil
	}

	idx := newColumnIndex(table.Header)
	if err := idx.require(source, meta.ColumnNames()); err != nil {
		return nil, err
	}

	records := make([]T, 0, len(table.Rows))
	for _, row := range table.Rows {
		rec, err := parse(rowReader{source: source, idx: idx, row: row})
		if err != nil {
			return nil, err
		}
		if err := l.check(source, row.Line, rec); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	l.logger.Debug("Parsed dataset",
		zap.String("source", source),
		zap.Int("rows", len(records)))

	return records, nil
}

// check applies the struct-tag constraints of a raw record
func (l *Loader) check(source string, line int, rec interface{}) error {
	err := l.validate.Struct(rec)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &model.MalformedRecordError{
			Source: source,
			Line:   line,
			Column: fe.Field(),
			Value:  fmt.Sprint(fe.Value()),
			Err:    fmt.Errorf("violates %s=%s", fe.Tag(), fe.Param()),
		}
	}
	return &model.MalformedRecordError{Source: source, Line: line, Err: err}
}
