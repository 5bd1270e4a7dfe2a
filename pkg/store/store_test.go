package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/David-Botos/retail-ingress/pkg/model"
)

var writtenAt = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "pgx"), mock
}

func newTestWriter(db *sqlx.DB) *Writer {
	w := NewWriter(db, 100, zap.NewNop())
	w.newGeneration = func() string { return "gen-1" }
	w.now = func() time.Time { return writtenAt }
	return w
}

func sampleDataset() *model.Dataset {
	return &model.Dataset{
		Customers: []model.CustomerProfile{
			{CustomerID: 1, Age: 30, Gender: "Male", Location: "North", JoinDate: model.NewDate(2020, time.February, 1)},
		},
		Products: []model.ProductRecord{
			{ProductID: 10, ProductName: "Product-10", Category: "Home", StockLevel: 5, Price: decimal.RequireFromString("12.5")},
		},
		Transactions: []model.TransactionRecord{
			{TransactionID: 7, CustomerID: 1, ProductID: 10, QuantityPurchased: 2, TransactionDate: model.NewDate(2023, time.June, 5), Price: decimal.RequireFromString("12.5")},
		},
	}
}

func expectReplace(mock sqlmock.Sqlmock, table string, args ...driver.Value) {
	mock.ExpectExec(regexp.QuoteMeta(fmt.Sprintf(`DROP TABLE IF EXISTS "%s"`, table))).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(fmt.Sprintf(`CREATE TABLE "%s"`, table))).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(fmt.Sprintf(`INSERT INTO "%s"`, table))).
		WithArgs(args...).
		WillReturnResult(sqlmock.NewResult(0, 1))
}

func TestWriteSnapshot(t *testing.T) {
	db, mock := newMockDB(t)
	w := newTestWriter(db)

	ops := []model.CleaningOperation{{
		TableName: model.CustomerProfiles, ColumnName: "Location", NewValue: "Unknown",
		RowIdentifier: "2", SourceLine: 3, CleaningOperation: model.OperationLocationFill,
		CleaningReason: "missing_location", CleanedAt: writtenAt,
	}}

	mock.ExpectBegin()
	expectReplace(mock, model.CustomerProfiles, int64(1), 30, "Male", "North", "2020-02-01")
	expectReplace(mock, model.ProductInventory, int64(10), "Product-10", "Home", 5, "12.50")
	expectReplace(mock, model.SalesTransaction, int64(7), int64(1), int64(10), 2, "2023-06-05", "12.50")
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS cleaned_on_ingress").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "cleaned_on_ingress"`)).
		WithArgs("gen-1", model.CustomerProfiles, "Location", nil, "Unknown", "2", 3,
			model.OperationLocationFill, "missing_location", writtenAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS snapshot_meta").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO snapshot_meta").
		WithArgs("gen-1", writtenAt, 1, 1, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := w.WriteSnapshot(context.Background(), sampleDataset(), ops)
	require.NoError(t, err)

	assert.Equal(t, "gen-1", result.Generation)
	assert.Equal(t, int64(1), result.RowsWritten[model.SalesTransaction])
	assert.Equal(t, int64(1), result.AuditRows)
	assert.Equal(t, writtenAt, result.WrittenAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteSnapshotUniqueViolationRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	w := newTestWriter(db)

	mock.ExpectBegin()
	expectReplace(mock, model.CustomerProfiles, int64(1), 30, "Male", "North", "2020-02-01")
	mock.ExpectExec(regexp.QuoteMeta(`DROP TABLE IF EXISTS "product_inventory"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE "product_inventory"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "product_inventory"`)).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})
	mock.ExpectRollback()

	_, err := w.WriteSnapshot(context.Background(), sampleDataset(), nil)
	require.Error(t, err)

	var writeErr *model.StoreWriteError
	require.ErrorAs(t, err, &writeErr)
	assert.Equal(t, model.ProductInventory, writeErr.Table)
	assert.Equal(t, "insert", writeErr.Op)
	assert.True(t, writeErr.InvariantViolation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteSnapshotBeginFails(t *testing.T) {
	db, mock := newMockDB(t)
	w := newTestWriter(db)

	mock.ExpectBegin().WillReturnError(&net.OpError{Op: "read", Net: "tcp", Err: errors.New("connection reset by peer")})

	_, err := w.WriteSnapshot(context.Background(), sampleDataset(), nil)
	var writeErr *model.StoreWriteError
	require.ErrorAs(t, err, &writeErr)
	assert.Equal(t, "begin", writeErr.Op)
	assert.False(t, writeErr.InvariantViolation)
	assert.True(t, IsUnavailable(err))
}

func TestGeneration(t *testing.T) {
	db, mock := newMockDB(t)
	w := newTestWriter(db)

	mock.ExpectQuery("SELECT generation, written_at, customers, products, transactions").
		WillReturnRows(sqlmock.NewRows([]string{"generation", "written_at", "customers", "products", "transactions"}).
			AddRow("gen-9", writtenAt, 3, 2, 1))
	gen, err := w.Generation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "gen-9", gen)

	mock.ExpectQuery("FROM snapshot_meta").
		WillReturnError(&pgconn.PgError{Code: "42P01", Message: `relation "snapshot_meta" does not exist`})
	gen, err = w.Generation(context.Background())
	require.NoError(t, err)
	assert.Empty(t, gen)

	mock.ExpectQuery("FROM snapshot_meta").WillReturnError(sql.ErrNoRows)
	info, err := w.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Nil(t, info)

	mock.ExpectQuery("FROM snapshot_meta").WillReturnError(errors.New("syntax error"))
	_, err = w.Generation(context.Background())
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsUnavailable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"bad conn", driver.ErrBadConn, true},
		{"conn done", fmt.Errorf("query: %w", sql.ErrConnDone), true},
		{"undefined table", &pgconn.PgError{Code: "42P01"}, true},
		{"unknown database", &pgconn.PgError{Code: "3D000"}, true},
		{"connection failure", &pgconn.PgError{Code: "08006"}, true},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, true},
		{"syntax error", &pgconn.PgError{Code: "42601"}, false},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"network", &net.OpError{Op: "dial", Err: errors.New("refused")}, true},
		{"wrapped dial", fmt.Errorf("failed to connect to `host=db user=etl`: %w",
			&net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}), true},
		{"plain", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsUnavailable(tt.err))
		})
	}
}

// pgTypes maps schema types to information_schema data_type values
var pgTypes = map[string]string{
	"BIGINT":        "bigint",
	"INTEGER":       "integer",
	"TEXT":          "text",
	"NUMERIC(12,2)": "numeric",
}

func expectTableChecks(mock sqlmock.Sqlmock, meta model.TableMetadata, count int64, dupGroups, dupAffected int64) {
	mock.ExpectQuery(regexp.QuoteMeta(fmt.Sprintf(`SELECT COUNT(*) FROM "%s"`, meta.Table))).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(count))

	cols := sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable"})
	for _, c := range meta.Columns {
		cols.AddRow(strings.ToLower(c.Name), pgTypes[c.PgType], c.Nullable && !c.IsPrimaryKey)
	}
	mock.ExpectQuery("FROM information_schema.columns").WithArgs(meta.Table).WillReturnRows(cols)

	mock.ExpectQuery(regexp.QuoteMeta(fmt.Sprintf(`SELECT COUNT(*) FROM "%s" WHERE "%s" IS NULL`,
		meta.Table, strings.ToLower(meta.PrimaryKey())))).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	mock.ExpectQuery("HAVING COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"dup_groups", "affected"}).AddRow(dupGroups, dupAffected))
}

func TestVerifySnapshot(t *testing.T) {
	db, mock := newMockDB(t)
	v := NewVerifier(db, zap.NewNop())

	mock.ExpectQuery("FROM snapshot_meta").
		WillReturnRows(sqlmock.NewRows([]string{"generation", "written_at", "customers", "products", "transactions"}).
			AddRow("gen-1", writtenAt, 1, 1, 1))
	expectTableChecks(mock, model.CustomerProfilesMetadata, 1, 0, 0)
	expectTableChecks(mock, model.ProductInventoryMetadata, 1, 0, 0)
	expectTableChecks(mock, model.SalesTransactionMetadata, 2, 1, 1)
	mock.ExpectQuery("TRIM\\(Location\\)").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("s.Price <> p.Price").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery("SUM\\(QuantityPurchased \\* Price\\)").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow("25.00"))

	report, err := v.VerifySnapshot(context.Background(), sampleDataset())
	require.NoError(t, err)

	assert.Equal(t, "gen-1", report.Generation)
	require.Len(t, report.Tables, 3)
	assert.True(t, report.Tables[0].RowCountMatches)
	assert.True(t, report.Tables[0].StructureMatches)
	assert.False(t, report.Tables[2].RowCountMatches)
	require.Len(t, report.Tables[2].IntegrityIssues, 1)
	assert.Equal(t, IssuePrimaryKey, report.Tables[2].IntegrityIssues[0].IssueType)
	require.Len(t, report.SnapshotIssues, 1)
	assert.Equal(t, IssuePriceReconciliation, report.SnapshotIssues[0].IssueType)
	assert.Equal(t, int64(3), report.SnapshotIssues[0].AffectedRows)
	assert.False(t, report.Passed())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVerifyRevenue(t *testing.T) {
	tests := []struct {
		name      string
		stored    string
		wantIssue bool
	}{
		{"matches", "25.00", false},
		{"differs", "24.00", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			mock.ExpectQuery("FROM sales_transaction").
				WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(tt.stored))

			issue, err := NewVerifier(db, zap.NewNop()).VerifyRevenue(context.Background(), sampleDataset())
			require.NoError(t, err)
			if !tt.wantIssue {
				assert.Nil(t, issue)
				return
			}
			require.NotNil(t, issue)
			assert.Equal(t, IssueRevenueMismatch, issue.IssueType)
			assert.Equal(t, "Stored revenue 24.00, cleaned data 25.00", issue.Description)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestVerifySnapshotWithoutSnapshot(t *testing.T) {
	db, mock := newMockDB(t)
	v := NewVerifier(db, zap.NewNop())

	mock.ExpectQuery("FROM snapshot_meta").
		WillReturnError(&pgconn.PgError{Code: "42P01"})

	_, err := v.VerifySnapshot(context.Background(), nil)
	assert.True(t, model.IsStoreUnavailable(err))
}

func TestVerifyTableStructureDiscrepancies(t *testing.T) {
	db, mock := newMockDB(t)
	v := NewVerifier(db, zap.NewNop())

	mock.ExpectQuery("FROM information_schema.columns").
		WithArgs(model.ProductInventory).
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable"}).
			AddRow("productid", "bigint", false).
			AddRow("productname", "text", true).
			AddRow("category", "text", true).
			AddRow("price", "double precision", true).
			AddRow("legacy", "text", true))

	matches, discrepancies, err := v.VerifyTableStructure(context.Background(), &model.ProductInventoryMetadata)
	require.NoError(t, err)
	assert.False(t, matches)
	require.Len(t, discrepancies, 3)
	assert.True(t, discrepancies[0].IsMissing)
	assert.Equal(t, "StockLevel", discrepancies[0].ColumnName)
	assert.Equal(t, "double precision", discrepancies[1].ActualType)
	assert.True(t, discrepancies[2].IsExtra)
}
