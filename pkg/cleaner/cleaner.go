// pkg/cleaner/cleaner.go
package cleaner

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/David-Botos/retail-ingress/pkg/model"
)

// DataCleaner turns raw records into the key-unique, repaired collections that get persisted
type DataCleaner struct {
	logger *zap.Logger
	now    func() time.Time
}

// CleaningReport summarises one cleaning run
type CleaningReport struct {
	RowsIn                     map[string]int
	RowsOut                    map[string]int
	DuplicatesRemoved          map[string]int
	LocationsRepaired          int
	PricesCorrected            int
	UnreconcilableTransactions int

	// Operations lists every repair, in the order it was made
	Operations []model.CleaningOperation
}

// TotalDuplicatesRemoved sums duplicates over all tables
func (r *CleaningReport) TotalDuplicatesRemoved() int {
	total := 0
	for _, n := range r.DuplicatesRemoved {
		total += n
	}
	return total
}

// NewDataCleaner creates a new DataCleaner instance
func NewDataCleaner(logger *zap.Logger) (*DataCleaner, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	return &DataCleaner{
		logger: logger,
		now:    time.Now,
	}, nil
}

// Clean runs the per-collection steps (date coercion, location repair,
// duplicate-key removal) and then price reconciliation across collections.
// A malformed date aborts with a *model.DateParseError; everything else is
// repaired and counted in the report.
func (c *DataCleaner) Clean(raw *model.RawDataset) (*model.Dataset, *CleaningReport, error) {
	if raw == nil {
		return nil, nil, errors.New("raw dataset cannot be nil")
	}

	report := &CleaningReport{
		RowsIn: map[string]int{
			model.CustomerProfiles: len(raw.Customers),
			model.ProductInventory: len(raw.Products),
			model.SalesTransaction: len(raw.Transactions),
		},
		DuplicatesRemoved: make(map[string]int),
	}
	cleanedAt := c.now().UTC()

	customers, err := c.cleanCustomers(raw.Customers, report, cleanedAt)
	if err != nil {
		return nil, nil, err
	}

	products := c.cleanProducts(raw.Products, report, cleanedAt)

	transactions, err := c.cleanTransactions(raw.Transactions, report, cleanedAt)
	if err != nil {
		return nil, nil, err
	}

	reconcilePrices(transactions, products, report, cleanedAt)

	dataset := &model.Dataset{
		Customers:    customers,
		Products:     products,
		Transactions: transactions,
	}
	report.RowsOut = dataset.RowCounts()

	c.logger.Info("Cleaning complete",
		zap.Int("customers", len(customers)),
		zap.Int("products", len(products)),
		zap.Int("transactions", len(transactions)),
		zap.Int("locations_repaired", report.LocationsRepaired),
		zap.Int("duplicate_customers", report.DuplicatesRemoved[model.CustomerProfiles]),
		zap.Int("duplicate_products", report.DuplicatesRemoved[model.ProductInventory]),
		zap.Int("duplicate_transactions", report.DuplicatesRemoved[model.SalesTransaction]),
		zap.Int("prices_corrected", report.PricesCorrected),
		zap.Int("unreconcilable_transactions", report.UnreconcilableTransactions))

	if report.UnreconcilableTransactions > 0 {
		c.logger.Warn("Transactions reference unknown products and keep their recorded price",
			zap.Int("count", report.UnreconcilableTransactions))
	}

	return dataset, report, nil
}

func (c *DataCleaner) cleanCustomers(
	raw []model.RawCustomerProfile,
	report *CleaningReport,
	cleanedAt time.Time,
) ([]model.CustomerProfile, error) {
	rows := make([]sourced[model.CustomerProfile], 0, len(raw))
	for _, r := range raw {
		joinDate, err := coerceDate(model.CustomerProfiles, "JoinDate", r.CustomerID, r.Line, r.JoinDate)
		if err != nil {
			return nil, err
		}

		location, op := repairLocation(r, cleanedAt)
		if op != nil {
			report.LocationsRepaired++
			report.Operations = append(report.Operations, *op)
		}

		rows = append(rows, sourced[model.CustomerProfile]{
			line: r.Line,
			rec: model.CustomerProfile{
				CustomerID: r.CustomerID,
				Age:        r.Age,
				Gender:     r.Gender,
				Location:   location,
				JoinDate:   joinDate,
			},
		})
	}

	kept, ops := dedupe(rows, model.CustomerProfilesMetadata,
		func(p model.CustomerProfile) int64 { return p.CustomerID }, cleanedAt)
	c.recordDuplicates(model.CustomerProfiles, ops, report)

	return kept, nil
}

func (c *DataCleaner) cleanProducts(
	raw []model.RawProductRecord,
	report *CleaningReport,
	cleanedAt time.Time,
) []model.ProductRecord {
	rows := make([]sourced[model.ProductRecord], 0, len(raw))
	for _, r := range raw {
		rows = append(rows, sourced[model.ProductRecord]{
			line: r.Line,
			rec: model.ProductRecord{
				ProductID:   r.ProductID,
				ProductName: r.ProductName,
				Category:    r.Category,
				StockLevel:  r.StockLevel,
				Price:       r.Price,
			},
		})
	}

	kept, ops := dedupe(rows, model.ProductInventoryMetadata,
		func(p model.ProductRecord) int64 { return p.ProductID }, cleanedAt)
	c.recordDuplicates(model.ProductInventory, ops, report)

	return kept
}

func (c *DataCleaner) cleanTransactions(
	raw []model.RawSalesTransaction,
	report *CleaningReport,
	cleanedAt time.Time,
) ([]model.TransactionRecord, error) {
	rows := make([]sourced[model.TransactionRecord], 0, len(raw))
	for _, r := range raw {
		date, err := coerceDate(model.SalesTransaction, "TransactionDate", r.TransactionID, r.Line, r.TransactionDate)
		if err != nil {
			return nil, err
		}

		rows = append(rows, sourced[model.TransactionRecord]{
			line: r.Line,
			rec: model.TransactionRecord{
				TransactionID:     r.TransactionID,
				CustomerID:        r.CustomerID,
				ProductID:         r.ProductID,
				QuantityPurchased: r.QuantityPurchased,
				TransactionDate:   date,
				Price:             r.Price,
			},
		})
	}

	kept, ops := dedupe(rows, model.SalesTransactionMetadata,
		func(t model.TransactionRecord) int64 { return t.TransactionID }, cleanedAt)
	c.recordDuplicates(model.SalesTransaction, ops, report)

	return kept, nil
}

func (c *DataCleaner) recordDuplicates(table string, ops []model.CleaningOperation, report *CleaningReport) {
	report.DuplicatesRemoved[table] = len(ops)
	report.Operations = append(report.Operations, ops...)

	if len(ops) > 0 {
		c.logger.Debug("Removed duplicate keys",
			zap.String("table", table),
			zap.Int("count", len(ops)))
	}
}
