// pkg/analytics/trend.go
package analytics

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/David-Botos/retail-ingress/pkg/model"
)

// YearFilter selects the sales years a trend query covers. The zero value
// selects nothing; queries given an empty selection return model.ErrNoSelection.
type YearFilter struct {
	all   bool
	years []int
}

// AllYears leaves the query unfiltered
func AllYears() YearFilter {
	return YearFilter{all: true}
}

// Years restricts the query to the given years
func Years(years ...int) YearFilter {
	seen := make(map[int]bool, len(years))
	unique := make([]int, 0, len(years))
	for _, y := range years {
		if !seen[y] {
			seen[y] = true
			unique = append(unique, y)
		}
	}
	sort.Ints(unique)
	return YearFilter{years: unique}
}

// ParseYears reads a comma separated year list. "all" selects every year,
// "" selects none.
func ParseYears(s string) (YearFilter, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "all") {
		return AllYears(), nil
	}

	var years []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		y, err := strconv.Atoi(part)
		if err != nil {
			return YearFilter{}, fmt.Errorf("invalid year %q: %w", part, err)
		}
		years = append(years, y)
	}
	return Years(years...), nil
}

// All reports whether the filter leaves the query unfiltered
func (f YearFilter) All() bool { return f.all }

// Empty reports whether nothing is selected
func (f YearFilter) Empty() bool { return !f.all && len(f.years) == 0 }

// Selected returns the selected years in ascending order
func (f YearFilter) Selected() []int {
	return append([]int(nil), f.years...)
}

// String is the canonical form used in cache keys
func (f YearFilter) String() string {
	if f.all {
		return "all"
	}
	parts := make([]string, len(f.years))
	for i, y := range f.years {
		parts[i] = strconv.Itoa(y)
	}
	return strings.Join(parts, ",")
}

// whereClause filters sales_transaction by year; the year list is bound to $argPos
func (f YearFilter) whereClause(argPos int) (string, []interface{}) {
	if f.all {
		return "WHERE TransactionDate IS NOT NULL", nil
	}
	years := make([]int64, len(f.years))
	for i, y := range f.years {
		years[i] = int64(y)
	}
	clause := fmt.Sprintf("WHERE TransactionDate IS NOT NULL AND CAST(LEFT(TransactionDate, 4) AS INTEGER) = ANY($%d)", argPos)
	return clause, []interface{}{pq.Array(years)}
}

// Granularity is the period a trend groups by
type Granularity string

// Supported granularities
const (
	Month Granularity = "month"
	Day   Granularity = "day"
)

func (g Granularity) expr() (string, error) {
	switch g {
	case Month:
		return "LEFT(TransactionDate, 7)", nil
	case Day:
		return "TransactionDate", nil
	default:
		return "", fmt.Errorf("unknown granularity %q", g)
	}
}

// Metric ranks periods and products
type Metric string

// Supported metrics
const (
	ByRevenue      Metric = "revenue"
	ByTransactions Metric = "transactions"
)

func (m Metric) column() (string, error) {
	switch m {
	case ByRevenue:
		return "total_revenue", nil
	case ByTransactions:
		return "transactions", nil
	default:
		return "", fmt.Errorf("unknown metric %q", m)
	}
}

// PeriodSales is the revenue and transaction count of one period
type PeriodSales struct {
	Period       string          `db:"sales_period" json:"period"`
	Revenue      decimal.Decimal `db:"total_revenue" json:"revenue"`
	Transactions int64           `db:"transactions" json:"transactions"`
}

const periodSalesSQL = `
	SELECT
		%s AS sales_period,
		COALESCE(SUM(QuantityPurchased * Price), 0) AS total_revenue,
		COUNT(DISTINCT TransactionID) AS transactions
	FROM sales_transaction
	%s
	GROUP BY sales_period
	ORDER BY %s
`

// MonthlySalesTrend returns revenue and transactions per year-month, oldest first
func (s *Service) MonthlySalesTrend(ctx context.Context, years YearFilter) ([]PeriodSales, error) {
	if years.Empty() {
		return nil, model.ErrNoSelection
	}

	return cachedQuery(ctx, s, "monthly_sales_trend", years.String(), func(ctx context.Context) ([]PeriodSales, error) {
		where, args := years.whereClause(1)
		query := fmt.Sprintf(periodSalesSQL, "LEFT(TransactionDate, 7)", where, "sales_period ASC")

		rows := make([]PeriodSales, 0)
		err := sqlx.SelectContext(ctx, s.db, &rows, query, args...)
		return rows, err
	})
}

// TopPeriods returns the n best months or days by metric, best first
func (s *Service) TopPeriods(
	ctx context.Context,
	granularity Granularity,
	metric Metric,
	years YearFilter,
	n int,
) ([]PeriodSales, error) {
	if years.Empty() {
		return nil, model.ErrNoSelection
	}
	period, err := granularity.expr()
	if err != nil {
		return nil, err
	}
	column, err := metric.column()
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, fmt.Errorf("top-N must be positive, got %d", n)
	}

	name := fmt.Sprintf("top_%ss_by_%s", granularity, metric)
	params := fmt.Sprintf("years=%s;n=%d", years, n)

	return cachedQuery(ctx, s, name, params, func(ctx context.Context) ([]PeriodSales, error) {
		where, args := years.whereClause(1)
		order := fmt.Sprintf("%s DESC, sales_period ASC\n\tLIMIT $%d", column, len(args)+1)
		query := fmt.Sprintf(periodSalesSQL, period, where, order)
		args = append(args, n)

		rows := make([]PeriodSales, 0, n)
		err := sqlx.SelectContext(ctx, s.db, &rows, query, args...)
		return rows, err
	})
}
