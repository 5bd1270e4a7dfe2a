// pkg/analytics/catalog.go
package analytics

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownQuery is returned for a name that is not in the catalog
var ErrUnknownQuery = errors.New("unknown query")

// Table is a tabular query result with ordered columns
type Table struct {
	Name    string          `json:"name"`
	Columns []string        `json:"columns"`
	Rows    [][]interface{} `json:"rows"`
}

// Len returns the number of rows
func (t *Table) Len() int { return len(t.Rows) }

// Params are the caller supplied inputs of catalog queries
type Params struct {
	Years             YearFilter
	Category          string
	TopN              int // 0 means the query's default
	LowStockThreshold int // 0 means the configured threshold
	LowSalesThreshold int // 0 means the configured threshold
}

// DefaultParams returns parameters selecting every year with the configured thresholds
func (s *Service) DefaultParams() Params {
	return Params{
		Years:             AllYears(),
		LowStockThreshold: s.cfg.LowStockThreshold,
		LowSalesThreshold: s.cfg.LowSalesThreshold,
	}
}

func (p Params) topN(fallback int) int {
	return orDefault(p.TopN, fallback)
}

func (p Params) lowStock(fallback int) int {
	return orDefault(p.LowStockThreshold, fallback)
}

func (p Params) lowSales(fallback int) int {
	return orDefault(p.LowSalesThreshold, fallback)
}

func orDefault(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

type queryFunc func(ctx context.Context, s *Service, p Params) (*Table, error)

var catalog = map[string]queryFunc{
	"total_revenue": func(ctx context.Context, s *Service, _ Params) (*Table, error) {
		v, err := s.TotalRevenue(ctx)
		if err != nil {
			return nil, err
		}
		return &Table{Columns: []string{"TotalRevenue"}, Rows: [][]interface{}{{v}}}, nil
	},
	"average_transaction_value": func(ctx context.Context, s *Service, _ Params) (*Table, error) {
		v, err := s.AverageTransactionValue(ctx)
		if err != nil {
			return nil, err
		}
		return &Table{Columns: []string{"AverageTransactionValue"}, Rows: [][]interface{}{{v}}}, nil
	},
	"kpis": func(ctx context.Context, s *Service, _ Params) (*Table, error) {
		k, err := s.KPIs(ctx)
		if err != nil {
			return nil, err
		}
		return &Table{
			Columns: []string{"TotalRevenue", "AverageTransactionValue", "NumberOfUniqueCustomers", "NumberOfUniqueProductsSold"},
			Rows:    [][]interface{}{{k.TotalRevenue, k.AverageTransactionValue, k.UniqueCustomers, k.UniqueProductsSold}},
		}, nil
	},
	"available_years": func(ctx context.Context, s *Service, _ Params) (*Table, error) {
		years, err := s.AvailableYears(ctx)
		if err != nil {
			return nil, err
		}
		t := &Table{Columns: []string{"SalesYear"}, Rows: make([][]interface{}, 0, len(years))}
		for _, y := range years {
			t.Rows = append(t.Rows, []interface{}{y})
		}
		return t, nil
	},
	"monthly_sales_trend": func(ctx context.Context, s *Service, p Params) (*Table, error) {
		rows, err := s.MonthlySalesTrend(ctx, p.Years)
		if err != nil {
			return nil, err
		}
		return periodTable(rows, "SalesPeriod", "TotalMonthlyRevenue", "NumberOfMonthlyTransactions"), nil
	},
	"top_months_by_revenue":      topPeriodsQuery(Month, ByRevenue),
	"top_days_by_revenue":        topPeriodsQuery(Day, ByRevenue),
	"top_months_by_transactions": topPeriodsQuery(Month, ByTransactions),
	"top_days_by_transactions":   topPeriodsQuery(Day, ByTransactions),
	"revenue_by_category": func(ctx context.Context, s *Service, _ Params) (*Table, error) {
		rows, err := s.RevenueByCategory(ctx)
		if err != nil {
			return nil, err
		}
		t := &Table{Columns: []string{"Category", "TotalRevenue"}, Rows: make([][]interface{}, 0, len(rows))}
		for _, r := range rows {
			t.Rows = append(t.Rows, []interface{}{r.Category, r.Revenue})
		}
		return t, nil
	},
	"top_products_by_quantity": func(ctx context.Context, s *Service, p Params) (*Table, error) {
		rows, err := s.TopProductsByQuantity(ctx, p.topN(s.cfg.TrendTopN))
		if err != nil {
			return nil, err
		}
		t := &Table{Columns: []string{"ProductID", "ProductName", "Category", "TotalQuantitySold"}, Rows: make([][]interface{}, 0, len(rows))}
		for _, r := range rows {
			t.Rows = append(t.Rows, []interface{}{r.ProductID, r.ProductName, r.Category, r.QuantitySold})
		}
		return t, nil
	},
	"top_products_by_revenue":      topProductsQuery(ByRevenue),
	"top_products_by_transactions": topProductsQuery(ByTransactions),
	"categories": func(ctx context.Context, s *Service, _ Params) (*Table, error) {
		categories, err := s.Categories(ctx)
		if err != nil {
			return nil, err
		}
		t := &Table{Columns: []string{"Category"}, Rows: make([][]interface{}, 0, len(categories))}
		for _, c := range categories {
			t.Rows = append(t.Rows, []interface{}{c})
		}
		return t, nil
	},
	"product_revenue_in_category": func(ctx context.Context, s *Service, p Params) (*Table, error) {
		rows, err := s.ProductRevenueInCategory(ctx, p.Category)
		if err != nil {
			return nil, err
		}
		return productSalesTable(rows), nil
	},
	"low_stock_products": func(ctx context.Context, s *Service, p Params) (*Table, error) {
		rows, err := s.LowStockProducts(ctx, p.lowStock(s.cfg.LowStockThreshold))
		if err != nil {
			return nil, err
		}
		return stockTable(rows), nil
	},
	"low_sales_products": func(ctx context.Context, s *Service, p Params) (*Table, error) {
		rows, err := s.LowSalesProducts(ctx, p.lowSales(s.cfg.LowSalesThreshold))
		if err != nil {
			return nil, err
		}
		return stockTable(rows), nil
	},
	"gender_distribution": func(ctx context.Context, s *Service, _ Params) (*Table, error) {
		rows, err := s.GenderDistribution(ctx)
		if err != nil {
			return nil, err
		}
		return shareTable("Gender", rows), nil
	},
	"location_distribution": func(ctx context.Context, s *Service, _ Params) (*Table, error) {
		rows, err := s.LocationDistribution(ctx)
		if err != nil {
			return nil, err
		}
		return shareTable("Location", rows), nil
	},
	"rfm_segments": func(ctx context.Context, s *Service, _ Params) (*Table, error) {
		rows, err := s.RFMSegments(ctx)
		if err != nil {
			return nil, err
		}
		t := &Table{
			Columns: []string{"CustomerID", "RecencyInDays", "Frequency", "MonetaryValue",
				"R_Score", "F_Score", "M_Score", "RFM_Score_String", "CustomerSegment"},
			Rows: make([][]interface{}, 0, len(rows)),
		}
		for _, r := range rows {
			t.Rows = append(t.Rows, []interface{}{
				r.CustomerID, r.Recency, r.Frequency, r.Monetary,
				r.RScore, r.FScore, r.MScore, r.RFMScore, r.Segment,
			})
		}
		return t, nil
	},
	"rfm_segment_counts": func(ctx context.Context, s *Service, _ Params) (*Table, error) {
		rows, err := s.RFMSegmentCounts(ctx)
		if err != nil {
			return nil, err
		}
		t := &Table{Columns: []string{"CustomerSegment", "NumberOfCustomers"}, Rows: make([][]interface{}, 0, len(rows))}
		for _, r := range rows {
			t.Rows = append(t.Rows, []interface{}{r.Segment, r.Customers})
		}
		return t, nil
	},
}

// QueryNames lists the catalog alphabetically
func QueryNames() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasQuery reports whether name is in the catalog
func HasQuery(name string) bool {
	_, ok := catalog[name]
	return ok
}

// Run executes one catalog query
func (s *Service) Run(ctx context.Context, name string, p Params) (*Table, error) {
	fn, ok := catalog[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownQuery, name)
	}

	t, err := fn(ctx, s, p)
	if err != nil {
		return nil, err
	}
	t.Name = name
	return t, nil
}

func topPeriodsQuery(g Granularity, m Metric) queryFunc {
	label := "SalesPeriod"
	if g == Day {
		label = "SalesDate"
	}
	return func(ctx context.Context, s *Service, p Params) (*Table, error) {
		rows, err := s.TopPeriods(ctx, g, m, p.Years, p.topN(s.cfg.TrendTopN))
		if err != nil {
			return nil, err
		}
		return periodTable(rows, label, "TotalRevenue", "NumberOfTransactions"), nil
	}
}

func topProductsQuery(m Metric) queryFunc {
	return func(ctx context.Context, s *Service, p Params) (*Table, error) {
		rows, err := s.TopProducts(ctx, m, p.topN(s.cfg.InventoryTopN))
		if err != nil {
			return nil, err
		}
		return productSalesTable(rows), nil
	}
}

func periodTable(rows []PeriodSales, period, revenue, transactions string) *Table {
	t := &Table{Columns: []string{period, revenue, transactions}, Rows: make([][]interface{}, 0, len(rows))}
	for _, r := range rows {
		t.Rows = append(t.Rows, []interface{}{r.Period, r.Revenue, r.Transactions})
	}
	return t
}

func productSalesTable(rows []ProductSales) *Table {
	t := &Table{
		Columns: []string{"ProductID", "ProductName", "Category", "TotalRevenue", "NumberOfTransactions"},
		Rows:    make([][]interface{}, 0, len(rows)),
	}
	for _, r := range rows {
		t.Rows = append(t.Rows, []interface{}{r.ProductID, r.ProductName, r.Category, r.Revenue, r.Transactions})
	}
	return t
}

func stockTable(rows []StockAlert) *Table {
	t := &Table{
		Columns: []string{"ProductID", "ProductName", "Category", "StockLevel", "NumberOfTransactions"},
		Rows:    make([][]interface{}, 0, len(rows)),
	}
	for _, r := range rows {
		t.Rows = append(t.Rows, []interface{}{r.ProductID, r.ProductName, r.Category, r.StockLevel, r.Transactions})
	}
	return t
}

func shareTable(group string, rows []GroupShare) *Table {
	t := &Table{Columns: []string{group, "NumberOfCustomers", "Percentage"}, Rows: make([][]interface{}, 0, len(rows))}
	for _, r := range rows {
		t.Rows = append(t.Rows, []interface{}{r.Group, r.Customers, r.Percentage})
	}
	return t
}
