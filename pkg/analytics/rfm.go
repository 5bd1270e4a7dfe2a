// pkg/analytics/rfm.go
package analytics

import (
	"context"
	"sort"
	"strconv"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// Customer segments
const (
	SegmentChampions          = "Champions"
	SegmentLoyalCustomers     = "Loyal Customers"
	SegmentPotentialLoyalists = "Potential Loyalists"
	SegmentNewCustomers       = "New Customers"
	SegmentPromising          = "Promising"
	SegmentLostCustomers      = "Lost Customers"
	SegmentAtRisk             = "At Risk"
	SegmentCantLoseThem       = "Can't Lose Them"
	SegmentBestCustomers      = "Best Customers"
	SegmentOther              = "Other Segment"
)

// Segments lists every label Segment can return
var Segments = []string{
	SegmentChampions,
	SegmentLoyalCustomers,
	SegmentPotentialLoyalists,
	SegmentNewCustomers,
	SegmentPromising,
	SegmentLostCustomers,
	SegmentAtRisk,
	SegmentCantLoseThem,
	SegmentBestCustomers,
	SegmentOther,
}

const quintiles = 5

// RFMMetrics are the raw recency, frequency and monetary figures of a customer
type RFMMetrics struct {
	CustomerID int64           `db:"customer_id" json:"customer_id"`
	Recency    int             `db:"recency" json:"recency_days"`
	Frequency  int64           `db:"frequency" json:"frequency"`
	Monetary   decimal.Decimal `db:"monetary" json:"monetary_value"`
}

// CustomerRFM is a scored and segmented customer
type CustomerRFM struct {
	RFMMetrics
	RScore   int    `json:"r_score"`
	FScore   int    `json:"f_score"`
	MScore   int    `json:"m_score"`
	RFMScore string `json:"rfm_score"`
	Segment  string `json:"segment"`
}

// SegmentCount is the number of customers in a segment
type SegmentCount struct {
	Segment   string `json:"segment"`
	Customers int    `json:"customers"`
}

// Recency is measured against the latest sale in the store, not the current date
const rfmBaseSQL = `
	WITH last_sale AS (
		SELECT MAX(CAST(TransactionDate AS DATE)) AS sale_date
		FROM sales_transaction
	)
	SELECT
		s.CustomerID AS customer_id,
		(SELECT sale_date FROM last_sale) - MAX(CAST(s.TransactionDate AS DATE)) AS recency,
		COUNT(DISTINCT s.TransactionID) AS frequency,
		SUM(s.QuantityPurchased * s.Price) AS monetary
	FROM sales_transaction s
	WHERE s.TransactionDate IS NOT NULL
	GROUP BY s.CustomerID
	ORDER BY s.CustomerID ASC
`

// RFMSegments scores every customer with at least one transaction, highest
// monetary value first
func (s *Service) RFMSegments(ctx context.Context) ([]CustomerRFM, error) {
	return cachedQuery(ctx, s, "rfm_segments", "", func(ctx context.Context) ([]CustomerRFM, error) {
		base := make([]RFMMetrics, 0)
		if err := sqlx.SelectContext(ctx, s.db, &base, rfmBaseSQL); err != nil {
			return nil, err
		}
		return ScoreRFM(base), nil
	})
}

// RFMSegmentCounts returns the number of customers per segment, largest first
func (s *Service) RFMSegmentCounts(ctx context.Context) ([]SegmentCount, error) {
	customers, err := s.RFMSegments(ctx)
	if err != nil {
		return nil, err
	}
	return CountSegments(customers), nil
}

// ScoreRFM assigns quintile scores and segments. base must be in a stable
// order; it decides the ranking of ties.
func ScoreRFM(base []RFMMetrics) []CustomerRFM {
	n := len(base)
	out := make([]CustomerRFM, n)
	for i, m := range base {
		out[i].RFMMetrics = m
	}

	rScores := ntile(n, func(a, b int) bool { return base[a].Recency > base[b].Recency })
	fScores := ntile(n, func(a, b int) bool { return base[a].Frequency < base[b].Frequency })
	mScores := ntile(n, func(a, b int) bool { return base[a].Monetary.LessThan(base[b].Monetary) })

	for i := range out {
		out[i].RScore = rScores[i]
		out[i].FScore = fScores[i]
		out[i].MScore = mScores[i]
		out[i].RFMScore = strconv.Itoa(rScores[i]) + strconv.Itoa(fScores[i]) + strconv.Itoa(mScores[i])
		out[i].Segment = Segment(rScores[i], fScores[i], mScores[i])
	}

	sort.SliceStable(out, func(a, b int) bool {
		if c := out[a].Monetary.Cmp(out[b].Monetary); c != 0 {
			return c > 0
		}
		return out[a].CustomerID < out[b].CustomerID
	})

	return out
}

// ntile ranks n items with less and splits the ranking into five contiguous
// buckets whose sizes differ by at most one, larger buckets first. Ties keep
// their input order. It returns the 1-based bucket of every item by input index.
func ntile(n int, less func(a, b int) bool) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return less(order[a], order[b]) })

	size, larger := n/quintiles, n%quintiles
	scores := make([]int, n)
	for pos, idx := range order {
		if pos < larger*(size+1) {
			scores[idx] = pos/(size+1) + 1
		} else {
			scores[idx] = larger + (pos-larger*(size+1))/size + 1
		}
	}
	return scores
}

// Segment maps R, F and M scores to a label. Rules are tried in order and the first match wins.
func Segment(r, f, m int) string {
	switch {
	case r == 5 && f == 5 && m == 5:
		return SegmentChampions
	case r == 5 && f >= 4:
		return SegmentLoyalCustomers
	case r >= 4 && f == 5:
		return SegmentLoyalCustomers
	case r >= 4 && f >= 4 && m >= 4:
		return SegmentPotentialLoyalists
	case r == 5 && f >= 3:
		return SegmentNewCustomers
	case r >= 4 && m >= 4:
		return SegmentPromising
	case r <= 2 && f <= 2 && m <= 2:
		return SegmentLostCustomers
	case r <= 2 && f >= 3:
		return SegmentAtRisk
	case r <= 2 && m >= 3:
		return SegmentCantLoseThem
	case f == 5 && m == 5:
		return SegmentBestCustomers
	default:
		return SegmentOther
	}
}

// CountSegments tallies customers per segment, largest first, ties by label
func CountSegments(customers []CustomerRFM) []SegmentCount {
	counts := make(map[string]int)
	for _, c := range customers {
		counts[c.Segment]++
	}

	out := make([]SegmentCount, 0, len(counts))
	for segment, n := range counts {
		out = append(out, SegmentCount{Segment: segment, Customers: n})
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Customers != out[b].Customers {
			return out[a].Customers > out[b].Customers
		}
		return out[a].Segment < out[b].Segment
	})
	return out
}
