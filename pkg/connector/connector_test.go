package connector

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/David-Botos/retail-ingress/pkg/config"
	"github.com/David-Botos/retail-ingress/pkg/model"
)

func TestBatchInsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := [][]interface{}{
		{int64(1), "Electronics"},
		{int64(2), "Clothing"},
		{int64(3), "Home"},
	}

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "product_inventory" (ProductID, Category) VALUES ($1, $2), ($3, $4)`)).
		WithArgs(int64(1), "Electronics", int64(2), "Clothing").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "product_inventory" (ProductID, Category) VALUES ($1, $2)`)).
		WithArgs(int64(3), "Home").
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := BatchInsert(context.Background(), sqlx.NewDb(db, PostgresDriver),
		"product_inventory", []string{"ProductID", "Category"}, rows, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchInsertEmptyAndErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	x := sqlx.NewDb(db, PostgresDriver)

	n, err := BatchInsert(context.Background(), x, "t", []string{"a"}, nil, 10)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = BatchInsert(context.Background(), x, "t", []string{"a", "b"}, [][]interface{}{{1}}, 10)
	assert.Error(t, err)

	mock.ExpectExec("INSERT INTO").WillReturnError(errors.New("boom"))
	_, err = BatchInsert(context.Background(), x, "t", []string{"a"}, [][]interface{}{{1}}, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch insert failed")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSelectAsText(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cfg := &config.SnowflakeConfig{Database: "RETAILANALYSIS", Schema: "raw", OrderColumn: "LOAD_SEQ"}
	conn := newSnowflakeConnector(db, cfg, zap.NewNop())

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM RAW.CUSTOMER_PROFILES ORDER BY LOAD_SEQ LIMIT 10000 OFFSET 0")).
		WillReturnRows(sqlmock.NewRows([]string{"LOAD_SEQ", "CustomerID", "Location"}).
			AddRow(int64(1), "1", "North").
			AddRow(int64(2), "2", nil))

	var got [][]string
	err = conn.SelectAsText(context.Background(), "customer_profiles", func(columns, fields []string) error {
		assert.Equal(t, []string{"LOAD_SEQ", "CustomerID", "Location"}, columns)
		got = append(got, fields)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"1", "1", "North"}, {"2", "2", ""}}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyConnectionSettings(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ApplyConnectionSettings(db, 7, 3, 0, 0)
	stats := GetConnectionStats(db)
	assert.Equal(t, 7, stats.MaxOpenConns)
}

func TestPostgresValidate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	conn := &PostgresConnector{
		db:     sqlx.NewDb(db, PostgresDriver),
		logger: zap.NewNop(),
		cfg:    &config.PostgresConfig{Database: "retail_analysis", Host: "localhost", Port: 5432},
	}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT version()")).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow("PostgreSQL 16.2"))
	mock.ExpectExec("CREATE TEMP TABLE _permission_check").
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, conn.Validate(context.Background()))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT version()")).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow("PostgreSQL 16.2"))
	mock.ExpectExec("CREATE TEMP TABLE _permission_check").
		WillReturnError(errors.New("permission denied for schema public"))
	err = conn.Validate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission validation failed")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSnowflakeValidate(t *testing.T) {
	tests := []struct {
		name        string
		tables      []string
		wantMissing string
	}{
		{
			name:   "all staging tables present",
			tables: []string{"CUSTOMER_PROFILES", "PRODUCT_INVENTORY", "SALES_TRANSACTION", "STAGE_LOG"},
		},
		{
			name:        "sales table missing",
			tables:      []string{"CUSTOMER_PROFILES", "PRODUCT_INVENTORY"},
			wantMissing: "RAW.SALES_TRANSACTION",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			cfg := &config.SnowflakeConfig{Database: "RETAILANALYSIS", Schema: "raw"}
			conn := newSnowflakeConnector(db, cfg, zap.NewNop())

			mock.ExpectQuery(regexp.QuoteMeta("SELECT CURRENT_ROLE(), CURRENT_DATABASE(), CURRENT_WAREHOUSE()")).
				WillReturnRows(sqlmock.NewRows([]string{"role", "database", "warehouse"}).
					AddRow("LOADER", "RETAILANALYSIS", "COMPUTE_WH"))
			tableRows := sqlmock.NewRows([]string{"TABLE_NAME"})
			for _, name := range tt.tables {
				tableRows.AddRow(name)
			}
			mock.ExpectQuery("SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES").
				WithArgs("RAW").
				WillReturnRows(tableRows)

			err = conn.Validate(context.Background())
			if tt.wantMissing == "" {
				require.NoError(t, err)
			} else {
				var missing *model.MissingInputError
				require.ErrorAs(t, err, &missing)
				assert.Equal(t, tt.wantMissing, missing.Source)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSnowflakeExecWithTimeout(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	conn := newSnowflakeConnector(db, &config.SnowflakeConfig{Schema: "raw"}, zap.NewNop())

	mock.ExpectExec(regexp.QuoteMeta("ALTER SESSION SET TIMEZONE = 'UTC'")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err = conn.ExecWithTimeout(context.Background(), "ALTER SESSION SET TIMEZONE = 'UTC'", time.Second)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
