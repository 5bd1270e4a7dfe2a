package analytics

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ascending(n int) []int {
	scores := ntile(n, func(a, b int) bool { return a < b })
	return scores
}

func TestNtile(t *testing.T) {
	tests := []struct {
		n    int
		want []int
	}{
		{0, []int{}},
		{3, []int{1, 2, 3}},
		{5, []int{1, 2, 3, 4, 5}},
		{7, []int{1, 1, 2, 2, 3, 4, 5}},
		{10, []int{1, 1, 2, 2, 3, 3, 4, 4, 5, 5}},
		{12, []int{1, 1, 1, 2, 2, 2, 3, 3, 4, 4, 5, 5}},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ascending(tt.n), "n=%d", tt.n)
	}
}

func TestNtileTiesKeepInputOrder(t *testing.T) {
	scores := ntile(5, func(a, b int) bool { return false })
	assert.Equal(t, []int{1, 2, 3, 4, 5}, scores)
}

func TestSegmentRules(t *testing.T) {
	tests := []struct {
		r, f, m int
		want    string
	}{
		{5, 5, 5, SegmentChampions},
		{5, 4, 1, SegmentLoyalCustomers},
		{4, 5, 1, SegmentLoyalCustomers},
		{4, 4, 4, SegmentPotentialLoyalists},
		{5, 3, 1, SegmentNewCustomers},
		{4, 1, 4, SegmentPromising},
		{2, 2, 2, SegmentLostCustomers},
		{1, 3, 1, SegmentAtRisk},
		{2, 1, 3, SegmentCantLoseThem},
		{3, 5, 5, SegmentBestCustomers},
		{3, 3, 3, SegmentOther},
		{4, 3, 3, SegmentOther},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Segment(tt.r, tt.f, tt.m), "r=%d f=%d m=%d", tt.r, tt.f, tt.m)
	}
}

func TestSegmentAlwaysReturnsKnownLabel(t *testing.T) {
	for r := 1; r <= 5; r++ {
		for f := 1; f <= 5; f++ {
			for m := 1; m <= 5; m++ {
				assert.Contains(t, Segments, Segment(r, f, m))
			}
		}
	}
}

func rfmBase() []RFMMetrics {
	return []RFMMetrics{
		{CustomerID: 1, Recency: 40, Frequency: 1, Monetary: decimal.NewFromInt(10)},
		{CustomerID: 2, Recency: 30, Frequency: 2, Monetary: decimal.NewFromInt(20)},
		{CustomerID: 3, Recency: 20, Frequency: 3, Monetary: decimal.NewFromInt(30)},
		{CustomerID: 4, Recency: 10, Frequency: 4, Monetary: decimal.NewFromInt(40)},
		{CustomerID: 5, Recency: 0, Frequency: 5, Monetary: decimal.NewFromInt(50)},
	}
}

func TestScoreRFM(t *testing.T) {
	scored := ScoreRFM(rfmBase())
	require.Len(t, scored, 5)

	// highest monetary value first
	ids := make([]int64, len(scored))
	for i, c := range scored {
		ids[i] = c.CustomerID
	}
	assert.Equal(t, []int64{5, 4, 3, 2, 1}, ids)

	assert.Equal(t, "555", scored[0].RFMScore)
	assert.Equal(t, SegmentChampions, scored[0].Segment)
	assert.Equal(t, "444", scored[1].RFMScore)
	assert.Equal(t, SegmentPotentialLoyalists, scored[1].Segment)
	assert.Equal(t, SegmentOther, scored[2].Segment)
	assert.Equal(t, "111", scored[4].RFMScore)
	assert.Equal(t, SegmentLostCustomers, scored[4].Segment)

	for _, c := range scored {
		for _, score := range []int{c.RScore, c.FScore, c.MScore} {
			assert.GreaterOrEqual(t, score, 1)
			assert.LessOrEqual(t, score, 5)
		}
	}
}

func TestScoreRFMOrdersMonetaryTiesByCustomer(t *testing.T) {
	base := []RFMMetrics{
		{CustomerID: 9, Recency: 1, Frequency: 1, Monetary: decimal.RequireFromString("12.50")},
		{CustomerID: 3, Recency: 2, Frequency: 1, Monetary: decimal.RequireFromString("12.5")},
		{CustomerID: 4, Recency: 3, Frequency: 1, Monetary: decimal.RequireFromString("99")},
	}

	scored := ScoreRFM(base)
	require.Len(t, scored, 3)
	assert.Equal(t, int64(4), scored[0].CustomerID)
	assert.Equal(t, int64(3), scored[1].CustomerID)
	assert.Equal(t, int64(9), scored[2].CustomerID)
}

func TestScoreRFMEmpty(t *testing.T) {
	assert.Empty(t, ScoreRFM(nil))
}

func TestCountSegments(t *testing.T) {
	counts := CountSegments(ScoreRFM(rfmBase()))

	assert.Equal(t, []SegmentCount{
		{Segment: SegmentLostCustomers, Customers: 2},
		{Segment: SegmentChampions, Customers: 1},
		{Segment: SegmentOther, Customers: 1},
		{Segment: SegmentPotentialLoyalists, Customers: 1},
	}, counts)
}
