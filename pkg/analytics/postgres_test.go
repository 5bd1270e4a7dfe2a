package analytics

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/David-Botos/retail-ingress/pkg/config"
	"github.com/David-Botos/retail-ingress/pkg/connector"
	"github.com/David-Botos/retail-ingress/pkg/model"
	"github.com/David-Botos/retail-ingress/pkg/store"
)

// postgresDSNEnv names a disposable database the snapshot queries run against
const postgresDSNEnv = "RETAIL_TEST_POSTGRES_DSN"

// openTestPostgres connects to the database named by postgresDSNEnv and
// confines the test to a fresh schema dropped on cleanup
func openTestPostgres(t *testing.T) *sqlx.DB {
	t.Helper()

	dsn := os.Getenv(postgresDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", postgresDSNEnv)
	}

	ctx := context.Background()
	db, err := sqlx.Open(connector.PostgresDriver, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	if err := db.PingContext(ctx); err != nil {
		t.Skipf("postgres unavailable: %v", err)
	}

	// one connection, so the search_path below holds for every statement
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	schema := "retail_test_" + uuid.New().String()[:8]
	_, err = db.ExecContext(ctx, "CREATE SCHEMA "+schema)
	require.NoError(t, err)
	t.Cleanup(func() {
		if _, err := db.ExecContext(context.Background(), "DROP SCHEMA "+schema+" CASCADE"); err != nil {
			t.Logf("failed to drop schema %s: %v", schema, err)
		}
	})

	_, err = db.ExecContext(ctx, "SET search_path TO "+schema)
	require.NoError(t, err)

	return db
}

func snapshotFixture() *model.Dataset {
	price := decimal.RequireFromString
	return &model.Dataset{
		Customers: []model.CustomerProfile{
			{CustomerID: 1, Age: 34, Gender: "Male", Location: "North", JoinDate: model.NewDate(2020, time.February, 1)},
			{CustomerID: 2, Age: 28, Gender: "Female", Location: model.UnknownLocation, JoinDate: model.NewDate(2021, time.May, 12)},
			{CustomerID: 3, Age: 51, Gender: "Female", Location: "South", JoinDate: model.NewDate(2022, time.August, 30)},
		},
		Products: []model.ProductRecord{
			{ProductID: 10, ProductName: "Product-10", Category: "Home", StockLevel: 5, Price: price("20.00")},
			{ProductID: 11, ProductName: "Product-11", Category: "Toys", StockLevel: 10, Price: price("5.50")},
			{ProductID: 12, ProductName: "Product-12", Category: "Toys", StockLevel: 40, Price: price("3.00")},
		},
		Transactions: []model.TransactionRecord{
			{TransactionID: 100, CustomerID: 1, ProductID: 10, QuantityPurchased: 2,
				TransactionDate: model.NewDate(2023, time.June, 5), Price: price("20.00")},
			{TransactionID: 101, CustomerID: 1, ProductID: 11, QuantityPurchased: 1,
				TransactionDate: model.NewDate(2024, time.January, 15), Price: price("5.50")},
			{TransactionID: 102, CustomerID: 2, ProductID: 10, QuantityPurchased: 1,
				TransactionDate: model.NewDate(2024, time.January, 20), Price: price("20.00")},
		},
	}
}

func TestSnapshotQueriesAgainstPostgres(t *testing.T) {
	db := openTestPostgres(t)
	ctx := context.Background()
	d := snapshotFixture()

	written, err := store.NewWriter(db, 100, zap.NewNop()).WriteSnapshot(ctx, d, []model.CleaningOperation{{
		TableName: model.CustomerProfiles, ColumnName: "Location", NewValue: model.UnknownLocation,
		RowIdentifier: "2", SourceLine: 3,
		CleaningOperation: model.OperationLocationFill, CleaningReason: "blank_location",
	}})
	require.NoError(t, err)

	s := NewService(db, config.DefaultAnalyticsConfig(), zap.NewNop())

	t.Run("verifier accepts the snapshot", func(t *testing.T) {
		report, err := store.NewVerifier(db, zap.NewNop()).VerifySnapshot(ctx, d)
		require.NoError(t, err)
		assert.True(t, report.Passed(), "%+v", report)
		assert.Equal(t, written.Generation, report.Generation)
	})

	t.Run("dates round trip as ISO text", func(t *testing.T) {
		var got model.Date
		require.NoError(t, db.GetContext(ctx, &got, "SELECT TransactionDate FROM sales_transaction WHERE TransactionID = $1", 100))
		assert.Equal(t, "2023-06-05", got.String())
	})

	t.Run("kpis", func(t *testing.T) {
		k, err := s.KPIs(ctx)
		require.NoError(t, err)
		assert.Equal(t, "65.50", k.TotalRevenue.StringFixed(2))
		assert.Equal(t, "21.83", k.AverageTransactionValue.StringFixed(2))
		assert.Equal(t, int64(2), k.UniqueCustomers)
		assert.Equal(t, int64(2), k.UniqueProductsSold)
		assert.Equal(t, written.Generation, s.Generation())
	})

	t.Run("years most recent first", func(t *testing.T) {
		years, err := s.AvailableYears(ctx)
		require.NoError(t, err)
		assert.Equal(t, []int{2024, 2023}, years)
	})

	t.Run("monthly trend groups by year-month", func(t *testing.T) {
		trend, err := s.MonthlySalesTrend(ctx, AllYears())
		require.NoError(t, err)
		require.Len(t, trend, 2)
		assert.Equal(t, "2023-06", trend[0].Period)
		assert.Equal(t, "40.00", trend[0].Revenue.StringFixed(2))
		assert.Equal(t, "2024-01", trend[1].Period)
		assert.Equal(t, "25.50", trend[1].Revenue.StringFixed(2))
		assert.Equal(t, int64(2), trend[1].Transactions)

		filtered, err := s.MonthlySalesTrend(ctx, Years(2024))
		require.NoError(t, err)
		require.Len(t, filtered, 1)
		assert.Equal(t, "2024-01", filtered[0].Period)

		none, err := s.MonthlySalesTrend(ctx, Years(2019))
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("top days by revenue", func(t *testing.T) {
		top, err := s.TopPeriods(ctx, Day, ByRevenue, AllYears(), 2)
		require.NoError(t, err)
		require.Len(t, top, 2)
		assert.Equal(t, "2023-06-05", top[0].Period)
		assert.Equal(t, "2024-01-20", top[1].Period)
	})

	t.Run("low stock is strictly below the threshold", func(t *testing.T) {
		rows, err := s.LowStockProducts(ctx, 10)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, int64(10), rows[0].ProductID)
		assert.Equal(t, 5, rows[0].StockLevel)
	})

	t.Run("low sales includes unsold products", func(t *testing.T) {
		rows, err := s.LowSalesProducts(ctx, 2)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, int64(12), rows[0].ProductID)
		assert.Equal(t, int64(0), rows[0].Transactions)
		assert.Equal(t, int64(11), rows[1].ProductID)
		assert.Equal(t, int64(1), rows[1].Transactions)
	})

	t.Run("revenue by category", func(t *testing.T) {
		rows, err := s.RevenueByCategory(ctx)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "Home", rows[0].Category)
		assert.Equal(t, "60.00", rows[0].Revenue.StringFixed(2))
	})

	t.Run("location distribution", func(t *testing.T) {
		rows, err := s.LocationDistribution(ctx)
		require.NoError(t, err)
		require.Len(t, rows, 3)
		groups := make([]string, len(rows))
		for i, r := range rows {
			groups[i] = r.Group
			assert.Equal(t, "33.33", r.Percentage.StringFixed(2))
		}
		assert.ElementsMatch(t, []string{"North", "South", model.UnknownLocation}, groups)
	})

	t.Run("rfm recency against the latest sale", func(t *testing.T) {
		customers, err := s.RFMSegments(ctx)
		require.NoError(t, err)
		require.Len(t, customers, 2)

		assert.Equal(t, int64(1), customers[0].CustomerID)
		assert.Equal(t, 5, customers[0].Recency)
		assert.Equal(t, int64(2), customers[0].Frequency)
		assert.Equal(t, "45.50", customers[0].Monetary.StringFixed(2))

		assert.Equal(t, int64(2), customers[1].CustomerID)
		assert.Equal(t, 0, customers[1].Recency)
		assert.Equal(t, int64(1), customers[1].Frequency)
	})

	t.Run("report runs against one generation", func(t *testing.T) {
		report, err := s.RunReport(ctx, []string{"kpis", "low_stock_products", "categories"}, Params{Years: AllYears()})
		require.NoError(t, err)
		assert.Equal(t, written.Generation, report.Generation)
		assert.Empty(t, report.Failed())
	})
}
