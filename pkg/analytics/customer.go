// pkg/analytics/customer.go
package analytics

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// GroupShare is the number and share of customers in one group
type GroupShare struct {
	Group      string          `db:"grp" json:"group"`
	Customers  int64           `db:"customers" json:"customers"`
	Percentage decimal.Decimal `db:"-" json:"percentage"`
}

// GenderDistribution groups customers by gender, largest group first
func (s *Service) GenderDistribution(ctx context.Context) ([]GroupShare, error) {
	return s.distribution(ctx, "gender_distribution", "Gender")
}

// LocationDistribution groups customers by location, largest group first
func (s *Service) LocationDistribution(ctx context.Context) ([]GroupShare, error) {
	return s.distribution(ctx, "location_distribution", "Location")
}

// distribution counts customer_profiles rows per value of column. Shares are
// taken of every customer, so they add up to 100 up to rounding.
func (s *Service) distribution(ctx context.Context, name, column string) ([]GroupShare, error) {
	return cachedQuery(ctx, s, name, "", func(ctx context.Context) ([]GroupShare, error) {
		rows := make([]GroupShare, 0)
		err := sqlx.SelectContext(ctx, s.db, &rows, fmt.Sprintf(`
			SELECT
				COALESCE(%[1]s, '') AS grp,
				COUNT(*) AS customers
			FROM customer_profiles
			GROUP BY %[1]s
			ORDER BY customers DESC, grp ASC
		`, column))
		if err != nil {
			return nil, err
		}

		var total int64
		for _, r := range rows {
			total += r.Customers
		}
		for i := range rows {
			rows[i].Percentage = percentage(rows[i].Customers, total)
		}
		return rows, nil
	})
}
