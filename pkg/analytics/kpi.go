// pkg/analytics/kpi.go
package analytics

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// KPIs are the headline sales figures
type KPIs struct {
	TotalRevenue            decimal.Decimal `json:"total_revenue"`
	AverageTransactionValue decimal.Decimal `json:"average_transaction_value"`
	UniqueCustomers         int64           `json:"unique_customers"`
	UniqueProductsSold      int64           `json:"unique_products_sold"`
}

type salesTotals struct {
	Revenue         decimal.Decimal `db:"total_revenue"`
	Transactions    int64           `db:"transactions"`
	UniqueCustomers int64           `db:"unique_customers"`
	UniqueProducts  int64           `db:"unique_products"`
}

const totalsSQL = `
	SELECT
		COALESCE(SUM(QuantityPurchased * Price), 0) AS total_revenue,
		COUNT(DISTINCT TransactionID) AS transactions,
		COUNT(DISTINCT CustomerID) AS unique_customers,
		COUNT(DISTINCT ProductID) AS unique_products
	FROM sales_transaction
`

func (s *Service) totals(ctx context.Context) (salesTotals, error) {
	return cachedQuery(ctx, s, "totals", "", func(ctx context.Context) (salesTotals, error) {
		var t salesTotals
		err := sqlx.GetContext(ctx, s.db, &t, totalsSQL)
		return t, err
	})
}

// TotalRevenue is the sum of quantity times price over all transactions
func (s *Service) TotalRevenue(ctx context.Context) (decimal.Decimal, error) {
	t, err := s.totals(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return t.Revenue, nil
}

// AverageTransactionValue is the total revenue divided by the number of
// distinct transactions, rounded to 2 decimals. It is 0 without transactions.
func (s *Service) AverageTransactionValue(ctx context.Context) (decimal.Decimal, error) {
	t, err := s.totals(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return averageValue(t.Revenue, t.Transactions), nil
}

// KPIs returns the four dashboard figures
func (s *Service) KPIs(ctx context.Context) (*KPIs, error) {
	t, err := s.totals(ctx)
	if err != nil {
		return nil, err
	}
	return &KPIs{
		TotalRevenue:            t.Revenue,
		AverageTransactionValue: averageValue(t.Revenue, t.Transactions),
		UniqueCustomers:         t.UniqueCustomers,
		UniqueProductsSold:      t.UniqueProducts,
	}, nil
}

// AvailableYears lists the years with sales, most recent first
func (s *Service) AvailableYears(ctx context.Context) ([]int, error) {
	return cachedQuery(ctx, s, "available_years", "", func(ctx context.Context) ([]int, error) {
		years := make([]int, 0)
		err := sqlx.SelectContext(ctx, s.db, &years, `
			SELECT DISTINCT CAST(LEFT(TransactionDate, 4) AS INTEGER) AS sales_year
			FROM sales_transaction
			WHERE TransactionDate IS NOT NULL
			ORDER BY sales_year DESC
		`)
		return years, err
	})
}

func averageValue(revenue decimal.Decimal, transactions int64) decimal.Decimal {
	if transactions == 0 {
		return decimal.Zero
	}
	return revenue.Div(decimal.NewFromInt(transactions)).Round(2)
}

// percentage returns part*100/total rounded to 2 decimals, 0 when total is 0
func percentage(part, total int64) decimal.Decimal {
	if total == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(part * 100).Div(decimal.NewFromInt(total)).Round(2)
}
