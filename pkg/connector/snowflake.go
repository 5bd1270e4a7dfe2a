// pkg/connector/snowflake.go
package connector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sf "github.com/snowflakedb/gosnowflake"
	"go.uber.org/zap"

	"github.com/David-Botos/retail-ingress/pkg/config"
	"github.com/David-Botos/retail-ingress/pkg/model"
)

var _ DatabaseConnector = (*SnowflakeConnector)(nil)

// SnowflakeConnector implements the DatabaseConnector interface for Snowflake.
// It serves the raw staging tables as an alternative to flat files.
type SnowflakeConnector struct {
	db     *sql.DB
	logger *zap.Logger
	cfg    *config.SnowflakeConfig
}

// NewSnowflakeConnector creates a new Snowflake connection
func NewSnowflakeConnector(ctx context.Context, cfg *config.SnowflakeConfig, logger *zap.Logger) (*SnowflakeConnector, error) {
	// Log connection attempt (without credentials)
	logger.Info("Connecting to Snowflake",
		zap.String("account", cfg.Account),
		zap.String("user", cfg.User),
		zap.String("database", cfg.Database),
		zap.String("schema", cfg.Schema),
		zap.String("warehouse", cfg.Warehouse),
		zap.String("role", cfg.Role))

	dsn, err := sf.DSN(cfg.DSNConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to build Snowflake DSN: %w", err)
	}

	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Snowflake connection: %w", err)
	}

	ApplyConnectionSettings(
		db,
		cfg.MaxOpenConns,
		cfg.MaxIdleConns,
		cfg.ConnMaxLifetime,
		cfg.ConnMaxIdleTime,
	)

	if err := PingWithTimeout(ctx, db, 10*time.Second); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to Snowflake: %w", err)
	}

	connector := newSnowflakeConnector(db, cfg, logger)
	LogConnectionStats(logger, cfg.Database, db)
	return connector, nil
}

func newSnowflakeConnector(db *sql.DB, cfg *config.SnowflakeConfig, logger *zap.Logger) *SnowflakeConnector {
	return &SnowflakeConnector{
		db:     db,
		logger: logger,
		cfg:    cfg,
	}
}

// DB returns the underlying database connection
func (c *SnowflakeConnector) DB() *sql.DB {
	return c.db
}

// Validate verifies the Snowflake connection and that the staging tables are visible
func (c *SnowflakeConnector) Validate(ctx context.Context) error {
	var role, database, warehouse string
	err := c.db.QueryRowContext(ctx, "SELECT CURRENT_ROLE(), CURRENT_DATABASE(), CURRENT_WAREHOUSE()").Scan(
		&role, &database, &warehouse)
	if err != nil {
		return fmt.Errorf("failed to verify Snowflake access: %w", err)
	}

	c.logger.Info("Connected to Snowflake",
		zap.String("role", role),
		zap.String("database", database),
		zap.String("warehouse", warehouse))

	if !strings.EqualFold(database, c.cfg.Database) {
		return fmt.Errorf("connected to wrong database: %s (expected: %s)",
			database, c.cfg.Database)
	}

	tables, err := c.GetTables(ctx)
	if err != nil {
		return fmt.Errorf("failed to list staging tables: %w", err)
	}
	c.logger.Debug("Staging tables visible", zap.Strings("tables", tables))

	visible := make(map[string]bool, len(tables))
	for _, t := range tables {
		visible[strings.ToUpper(t)] = true
	}
	for _, meta := range model.SnapshotTables() {
		if !visible[strings.ToUpper(meta.Table)] {
			return &model.MissingInputError{
				Source: strings.ToUpper(c.cfg.Schema + "." + meta.Table),
				Err:    errors.New("staging table not found"),
			}
		}
	}

	return nil
}

// Close closes the database connection
func (c *SnowflakeConnector) Close() error {
	c.logger.Info("Closing Snowflake connection")
	LogConnectionStats(c.logger, c.cfg.Database, c.db)
	return c.db.Close()
}

// GetTables lists the tables in the configured schema
func (c *SnowflakeConnector) GetTables(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx,
		"SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = ? ORDER BY TABLE_NAME",
		strings.ToUpper(c.cfg.Schema))
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve tables from schema %s: %w", c.cfg.Schema, err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var tableName string
		if err := rows.Scan(&tableName); err != nil {
			return nil, fmt.Errorf("failed to scan table row: %w", err)
		}
		tables = append(tables, tableName)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tables: %w", err)
	}

	return tables, nil
}

// ExecWithTimeout executes a statement with a timeout
func (c *SnowflakeConnector) ExecWithTimeout(
	ctx context.Context,
	query string,
	timeout time.Duration,
	args ...interface{},
) (sql.Result, error) {
	return execWithTimeout(ctx, c.db, query, timeout, args...)
}

// BatchQuery fetches data in LIMIT/OFFSET pages to handle large result sets.
// query must carry an ORDER BY so pages do not overlap. columns receives the
// result column names once, before the first row.
func (c *SnowflakeConnector) BatchQuery(
	ctx context.Context,
	query string,
	batchSize int,
	columns func([]string) error,
	processor func(*sql.Rows) error,
) error {
	if batchSize <= 0 {
		batchSize = 10000
	}

	offset := 0
	for {
		rowCount, err := c.queryPage(ctx, fmt.Sprintf("%s LIMIT %d OFFSET %d", query, batchSize, offset),
			offset == 0, columns, processor)
		if err != nil {
			return fmt.Errorf("batch query failed at offset %d: %w", offset, err)
		}

		if rowCount < batchSize {
			break
		}
		offset += batchSize
	}

	return nil
}

func (c *SnowflakeConnector) queryPage(
	ctx context.Context,
	query string,
	first bool,
	columns func([]string) error,
	processor func(*sql.Rows) error,
) (int, error) {
	timeout := c.cfg.QueryTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	pageCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rows, err := c.db.QueryContext(pageCtx, query)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	if first && columns != nil {
		names, err := rows.Columns()
		if err != nil {
			return 0, fmt.Errorf("failed to read result columns: %w", err)
		}
		if err := columns(names); err != nil {
			return 0, err
		}
	}

	rowCount := 0
	for rows.Next() {
		rowCount++
		if err := processor(rows); err != nil {
			return rowCount, fmt.Errorf("row processing failed: %w", err)
		}
	}

	return rowCount, rows.Err()
}

// SelectAsText streams every row of a staging table as text fields, in the
// order of the configured sequence column. NULL cells arrive as "".
func (c *SnowflakeConnector) SelectAsText(
	ctx context.Context,
	table string,
	fn func(columns []string, fields []string) error,
) error {
	query := fmt.Sprintf("SELECT * FROM %s.%s ORDER BY %s",
		strings.ToUpper(c.cfg.Schema), strings.ToUpper(table), c.cfg.OrderColumn)

	var names []string
	return c.BatchQuery(ctx, query, 10000,
		func(cols []string) error {
			names = cols
			return nil
		},
		func(rows *sql.Rows) error {
			cells := make([]sql.NullString, len(names))
			dest := make([]interface{}, len(names))
			for i := range cells {
				dest[i] = &cells[i]
			}
			if err := rows.Scan(dest...); err != nil {
				return fmt.Errorf("failed to scan %s row: %w", table, err)
			}
			fields := make([]string, len(cells))
			for i, cell := range cells {
				fields[i] = cell.String
			}
			return fn(names, fields)
		})
}
