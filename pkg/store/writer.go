// pkg/store/writer.go
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/David-Botos/retail-ingress/pkg/connector"
	"github.com/David-Botos/retail-ingress/pkg/converter"
	"github.com/David-Botos/retail-ingress/pkg/model"
)

// Writer replaces the snapshot tables with a cleaned dataset
type Writer struct {
	db        *sqlx.DB
	converter *converter.TypeConverter
	logger    *zap.Logger
	batchSize int

	newGeneration func() string
	now           func() time.Time
}

// WriteResult describes a committed snapshot
type WriteResult struct {
	Generation  string
	RowsWritten map[string]int64
	AuditRows   int64
	WrittenAt   time.Time
	Duration    time.Duration
}

// SnapshotInfo is the snapshot_meta row
type SnapshotInfo struct {
	Generation   string    `db:"generation" json:"generation"`
	WrittenAt    time.Time `db:"written_at" json:"written_at"`
	Customers    int       `db:"customers" json:"customers"`
	Products     int       `db:"products" json:"products"`
	Transactions int       `db:"transactions" json:"transactions"`
}

// NewWriter creates a snapshot writer over db
func NewWriter(db *sqlx.DB, batchSize int, logger *zap.Logger) *Writer {
	return &Writer{
		db:            db,
		converter:     converter.NewTypeConverter(logger.Named("converter")),
		logger:        logger,
		batchSize:     batchSize,
		newGeneration: func() string { return uuid.New().String() },
		now:           time.Now,
	}
}

// WriteSnapshot drops, recreates and fills the three snapshot tables, records
// the cleaning operations and stamps a new generation, all in one transaction.
// Readers see either the previous snapshot or the new one.
func (w *Writer) WriteSnapshot(
	ctx context.Context,
	d *model.Dataset,
	ops []model.CleaningOperation,
) (result *WriteResult, err error) {
	if d == nil {
		return nil, errors.New("dataset cannot be nil")
	}

	start := time.Now()
	generation := w.newGeneration()

	w.logger.Info("Writing snapshot",
		zap.String("generation", generation),
		zap.Int("customers", len(d.Customers)),
		zap.Int("products", len(d.Products)),
		zap.Int("transactions", len(d.Transactions)),
		zap.Int("cleaning_operations", len(ops)))

	tx, err := w.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, writeError("", "begin", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				w.logger.Error("Failed to rollback transaction",
					zap.Error(rbErr),
					zap.NamedError("cause", err))
			}
		}
	}()

	result = &WriteResult{
		Generation:  generation,
		RowsWritten: make(map[string]int64, 3),
	}

	for _, meta := range model.SnapshotTables() {
		meta := meta
		n, err := w.replaceTable(ctx, tx, &meta, d)
		if err != nil {
			return nil, err
		}
		result.RowsWritten[meta.Table] = n
	}

	if _, err = tx.ExecContext(ctx, createAuditTableSQL); err != nil {
		return nil, writeError(AuditTable, "create", err)
	}
	result.AuditRows, err = connector.BatchInsert(ctx, tx, AuditTable, converter.AuditColumns,
		w.converter.OperationRows(generation, ops), w.batchSize)
	if err != nil {
		return nil, writeError(AuditTable, "insert", err)
	}

	result.WrittenAt = w.now().UTC()
	if _, err = tx.ExecContext(ctx, createMetaTableSQL); err != nil {
		return nil, writeError(MetaTable, "create", err)
	}
	if _, err = tx.ExecContext(ctx, upsertMetaSQL,
		generation, result.WrittenAt,
		len(d.Customers), len(d.Products), len(d.Transactions)); err != nil {
		return nil, writeError(MetaTable, "upsert", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, writeError("", "commit", err)
	}

	result.Duration = time.Since(start)
	w.logger.Info("Snapshot committed",
		zap.String("generation", generation),
		zap.Int64("customers", result.RowsWritten[model.CustomerProfiles]),
		zap.Int64("products", result.RowsWritten[model.ProductInventory]),
		zap.Int64("transactions", result.RowsWritten[model.SalesTransaction]),
		zap.Int64("audit_rows", result.AuditRows),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// replaceTable drops and recreates one table inside tx and inserts its rows
func (w *Writer) replaceTable(ctx context.Context, tx *sqlx.Tx, meta *model.TableMetadata, d *model.Dataset) (int64, error) {
	createSQL, err := w.converter.CreateTableSQL(meta)
	if err != nil {
		return 0, writeError(meta.Table, "create", err)
	}

	rows, err := w.converter.TableRows(meta, d)
	if err != nil {
		return 0, writeError(meta.Table, "convert", err)
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", converter.QuoteIdentifier(meta.Table))); err != nil {
		return 0, writeError(meta.Table, "drop", err)
	}
	if _, err := tx.ExecContext(ctx, createSQL); err != nil {
		return 0, writeError(meta.Table, "create", err)
	}

	n, err := connector.BatchInsert(ctx, tx, meta.Table, converter.QuoteColumns(meta), rows, w.batchSize)
	if err != nil {
		return n, writeError(meta.Table, "insert", err)
	}

	w.logger.Debug("Replaced table",
		zap.String("table", meta.Table),
		zap.Int64("rows", n))

	return n, nil
}

// Snapshot returns the live snapshot description, or nil when no snapshot was written yet
func (w *Writer) Snapshot(ctx context.Context) (*SnapshotInfo, error) {
	return ReadSnapshotInfo(ctx, w.db)
}

// ReadSnapshotInfo reads the snapshot_meta row. A store without snapshot_meta
// or without a row yields nil and no error.
func ReadSnapshotInfo(ctx context.Context, q sqlx.QueryerContext) (*SnapshotInfo, error) {
	var info SnapshotInfo
	err := sqlx.GetContext(ctx, q, &info, selectMetaSQL)
	switch {
	case err == nil:
		return &info, nil
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case isUndefinedTable(err):
		return nil, nil
	default:
		return nil, fmt.Errorf("failed to read snapshot generation: %w", err)
	}
}

// Generation returns the generation of the live snapshot, "" when there is none
func (w *Writer) Generation(ctx context.Context) (string, error) {
	info, err := w.Snapshot(ctx)
	if err != nil || info == nil {
		return "", err
	}
	return info.Generation, nil
}
