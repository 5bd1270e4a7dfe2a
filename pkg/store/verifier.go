// pkg/store/verifier.go
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/David-Botos/retail-ingress/pkg/converter"
	"github.com/David-Botos/retail-ingress/pkg/model"
)

// Integrity issue kinds
const (
	IssueNullConstraint      = "NULL_CONSTRAINT_VIOLATION"
	IssuePrimaryKey          = "PRIMARY_KEY_VIOLATION"
	IssueBlankLocation       = "BLANK_LOCATION"
	IssuePriceReconciliation = "PRICE_NOT_RECONCILED"
	IssueRevenueMismatch     = "REVENUE_MISMATCH"
)

// StructureDiscrepancy represents a discrepancy in table structure
type StructureDiscrepancy struct {
	ColumnName       string
	ExpectedType     string
	ActualType       string
	ExpectedNullable bool
	ActualNullable   bool
	IsMissing        bool
	IsExtra          bool
}

// IntegrityIssue represents a data integrity issue
type IntegrityIssue struct {
	IssueType    string
	Description  string
	ColumnName   string
	AffectedRows int64
}

// TableVerification holds the checks of one snapshot table
type TableVerification struct {
	Table                  string
	ExpectedRowCount       int64 // -1 when no dataset was given
	ActualRowCount         int64
	RowCountMatches        bool
	StructureMatches       bool
	StructureDiscrepancies []StructureDiscrepancy
	IntegrityIssues        []IntegrityIssue
}

// VerificationReport contains the results of a snapshot verification
type VerificationReport struct {
	Generation       string
	VerificationTime time.Time
	Tables           []TableVerification
	SnapshotIssues   []IntegrityIssue
	Duration         time.Duration
}

// Passed reports whether every check succeeded
func (r *VerificationReport) Passed() bool {
	for _, t := range r.Tables {
		if !t.RowCountMatches || !t.StructureMatches || len(t.IntegrityIssues) > 0 {
			return false
		}
	}
	return len(r.SnapshotIssues) == 0
}

// Verifier checks a written snapshot against its dataset and the cleaning invariants
type Verifier struct {
	db      *sqlx.DB
	logger  *zap.Logger
	timeout time.Duration
}

// NewVerifier creates a new verifier
func NewVerifier(db *sqlx.DB, logger *zap.Logger) *Verifier {
	return &Verifier{
		db:      db,
		logger:  logger,
		timeout: time.Minute * 5,
	}
}

// WithTimeout sets a custom timeout for verification operations
func (v *Verifier) WithTimeout(timeout time.Duration) *Verifier {
	v.timeout = timeout
	return v
}

// VerifySnapshot runs every check. When d is nil, row counts are reported
// but not compared.
func (v *Verifier) VerifySnapshot(ctx context.Context, d *model.Dataset) (*VerificationReport, error) {
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	report := &VerificationReport{VerificationTime: startTime}

	info, err := ReadSnapshotInfo(ctx, v.db)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, &model.StoreUnavailableError{Query: "verify", Err: fmt.Errorf("no snapshot has been written")}
	}
	report.Generation = info.Generation

	var expected map[string]int
	if d != nil {
		expected = d.RowCounts()
	}

	for _, meta := range model.SnapshotTables() {
		meta := meta
		tv := TableVerification{Table: meta.Table, ExpectedRowCount: -1}

		want := int64(-1)
		if expected != nil {
			want = int64(expected[meta.Table])
		}
		tv.RowCountMatches, tv.ActualRowCount, err = v.VerifyRowCount(ctx, meta.Table, want)
		if err != nil {
			return nil, err
		}
		tv.ExpectedRowCount = want

		tv.StructureMatches, tv.StructureDiscrepancies, err = v.VerifyTableStructure(ctx, &meta)
		if err != nil {
			return nil, err
		}

		_, tv.IntegrityIssues, err = v.VerifyDataIntegrity(ctx, &meta)
		if err != nil {
			return nil, err
		}

		report.Tables = append(report.Tables, tv)
	}

	report.SnapshotIssues, err = v.VerifyCleaningInvariants(ctx)
	if err != nil {
		return nil, err
	}

	if d != nil {
		issue, err := v.VerifyRevenue(ctx, d)
		if err != nil {
			return nil, err
		}
		if issue != nil {
			report.SnapshotIssues = append(report.SnapshotIssues, *issue)
		}
	}

	report.Duration = time.Since(startTime)

	v.logger.Info("Verification report completed",
		zap.String("generation", report.Generation),
		zap.Bool("passed", report.Passed()),
		zap.Duration("duration", report.Duration))

	return report, nil
}

// VerifyRowCount counts a table's rows and compares them with expected.
// A negative expected count always matches.
func (v *Verifier) VerifyRowCount(ctx context.Context, table string, expected int64) (bool, int64, error) {
	var count int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", converter.QuoteIdentifier(table))
	if err := sqlx.GetContext(ctx, v.db, &count, query); err != nil {
		return false, 0, fmt.Errorf("failed to count rows of %s: %w", table, err)
	}

	matches := expected < 0 || count == expected
	if matches {
		v.logger.Info("Row count verification successful",
			zap.String("table", table),
			zap.Int64("count", count))
	} else {
		v.logger.Warn("Row count mismatch",
			zap.String("table", table),
			zap.Int64("expected", expected),
			zap.Int64("actual", count),
			zap.Int64("difference", expected-count))
	}

	return matches, count, nil
}

type columnInfo struct {
	Name     string `db:"column_name"`
	DataType string `db:"data_type"`
	Nullable bool   `db:"is_nullable"`
}

// VerifyTableStructure compares the table's columns with the fixed schema
func (v *Verifier) VerifyTableStructure(
	ctx context.Context,
	expectedMetadata *model.TableMetadata,
) (bool, []StructureDiscrepancy, error) {
	var actualColumns []columnInfo
	err := sqlx.SelectContext(ctx, v.db, &actualColumns, `
		SELECT
			column_name,
			data_type,
			CASE WHEN is_nullable = 'YES' THEN true ELSE false END AS is_nullable
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
		ORDER BY ordinal_position
	`, expectedMetadata.Table)
	if err != nil {
		return false, nil, fmt.Errorf("failed to get table structure: %w", err)
	}

	actualColumnMap := make(map[string]columnInfo, len(actualColumns))
	for _, col := range actualColumns {
		actualColumnMap[strings.ToLower(col.Name)] = col
	}

	discrepancies := make([]StructureDiscrepancy, 0)

	for _, expected := range expectedMetadata.Columns {
		actual, exists := actualColumnMap[strings.ToLower(expected.Name)]
		if !exists {
			discrepancies = append(discrepancies, StructureDiscrepancy{
				ColumnName:   expected.Name,
				ExpectedType: expected.PgType,
				IsMissing:    true,
			})
			continue
		}

		if baseType(expected.PgType) != baseType(actual.DataType) {
			discrepancies = append(discrepancies, StructureDiscrepancy{
				ColumnName:   expected.Name,
				ExpectedType: expected.PgType,
				ActualType:   actual.DataType,
			})
		}

		expectedNullable := expected.Nullable && !expected.IsPrimaryKey
		if expectedNullable != actual.Nullable {
			discrepancies = append(discrepancies, StructureDiscrepancy{
				ColumnName:       expected.Name,
				ExpectedNullable: expectedNullable,
				ActualNullable:   actual.Nullable,
			})
		}
	}

	for _, col := range actualColumns {
		if expectedMetadata.GetColumnByName(col.Name) == nil {
			discrepancies = append(discrepancies, StructureDiscrepancy{
				ColumnName: col.Name,
				ActualType: col.DataType,
				IsExtra:    true,
			})
		}
	}

	matches := len(discrepancies) == 0
	if !matches {
		v.logger.Warn("Table structure discrepancies found",
			zap.String("table", expectedMetadata.Table),
			zap.Int("discrepancies", len(discrepancies)))
	}

	return matches, discrepancies, nil
}

// VerifyDataIntegrity checks NOT NULL columns and primary key uniqueness
func (v *Verifier) VerifyDataIntegrity(
	ctx context.Context,
	metadata *model.TableMetadata,
) (bool, []IntegrityIssue, error) {
	issues, err := v.checkNullConstraints(ctx, metadata)
	if err != nil {
		return false, nil, fmt.Errorf("failed to check null constraints: %w", err)
	}

	pkIssues, err := v.checkPrimaryKeyUniqueness(ctx, metadata)
	if err != nil {
		return false, nil, fmt.Errorf("failed to check primary key uniqueness: %w", err)
	}
	issues = append(issues, pkIssues...)

	success := len(issues) == 0
	if success {
		v.logger.Info("Data integrity verification successful",
			zap.String("table", metadata.Table))
	} else {
		v.logger.Warn("Data integrity issues found",
			zap.String("table", metadata.Table),
			zap.Int("issues", len(issues)))
	}

	return success, issues, nil
}

// VerifyCleaningInvariants checks the properties the cleaner guarantees:
// every customer has a location and every transaction of a known product
// carries that product's price
func (v *Verifier) VerifyCleaningInvariants(ctx context.Context) ([]IntegrityIssue, error) {
	issues := make([]IntegrityIssue, 0)

	var blank int64
	if err := sqlx.GetContext(ctx, v.db, &blank, `
		SELECT COUNT(*) FROM customer_profiles
		WHERE Location IS NULL OR TRIM(Location) = ''
	`); err != nil {
		return nil, fmt.Errorf("failed to check locations: %w", err)
	}
	if blank > 0 {
		issues = append(issues, IntegrityIssue{
			IssueType:    IssueBlankLocation,
			Description:  "Customers without a location",
			ColumnName:   "Location",
			AffectedRows: blank,
		})
	}

	var mismatched int64
	if err := sqlx.GetContext(ctx, v.db, &mismatched, `
		SELECT COUNT(*)
		FROM sales_transaction s
		JOIN product_inventory p ON s.ProductID = p.ProductID
		WHERE s.Price <> p.Price
	`); err != nil {
		return nil, fmt.Errorf("failed to check price reconciliation: %w", err)
	}
	if mismatched > 0 {
		issues = append(issues, IntegrityIssue{
			IssueType:    IssuePriceReconciliation,
			Description:  "Transactions priced differently from their product",
			ColumnName:   "Price",
			AffectedRows: mismatched,
		})
	}

	for _, issue := range issues {
		v.logger.Warn("Cleaning invariant violated",
			zap.String("issue", issue.IssueType),
			zap.Int64("affectedRows", issue.AffectedRows))
	}

	return issues, nil
}

// VerifyRevenue compares the stored total revenue with the revenue of the
// cleaned transactions. It returns nil when they agree.
func (v *Verifier) VerifyRevenue(ctx context.Context, d *model.Dataset) (*IntegrityIssue, error) {
	expected := decimal.Zero
	for _, t := range d.Transactions {
		expected = expected.Add(t.Revenue())
	}

	var stored decimal.Decimal
	if err := sqlx.GetContext(ctx, v.db, &stored, `
		SELECT COALESCE(SUM(QuantityPurchased * Price), 0) FROM sales_transaction
	`); err != nil {
		return nil, fmt.Errorf("failed to check revenue: %w", err)
	}

	if stored.Equal(expected) {
		return nil, nil
	}

	v.logger.Warn("Stored revenue differs from the cleaned data",
		zap.String("stored", stored.StringFixed(2)),
		zap.String("expected", expected.StringFixed(2)))

	return &IntegrityIssue{
		IssueType:   IssueRevenueMismatch,
		Description: fmt.Sprintf("Stored revenue %s, cleaned data %s", stored.StringFixed(2), expected.StringFixed(2)),
		ColumnName:  "Price",
	}, nil
}

// checkNullConstraints verifies that non-nullable columns don't contain NULL values
func (v *Verifier) checkNullConstraints(ctx context.Context, metadata *model.TableMetadata) ([]IntegrityIssue, error) {
	issues := make([]IntegrityIssue, 0)

	for _, col := range metadata.Columns {
		if col.Nullable && !col.IsPrimaryKey {
			continue
		}

		var nullCount int64
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s IS NULL",
			converter.QuoteIdentifier(metadata.Table), converter.QuoteIdentifier(col.Name))
		if err := sqlx.GetContext(ctx, v.db, &nullCount, query); err != nil {
			return nil, fmt.Errorf("failed to check null constraint for column %s: %w", col.Name, err)
		}

		if nullCount > 0 {
			issues = append(issues, IntegrityIssue{
				IssueType:    IssueNullConstraint,
				Description:  "Non-nullable column contains NULL values",
				ColumnName:   col.Name,
				AffectedRows: nullCount,
			})
		}
	}

	return issues, nil
}

// checkPrimaryKeyUniqueness verifies that primary keys are unique
func (v *Verifier) checkPrimaryKeyUniqueness(ctx context.Context, metadata *model.TableMetadata) ([]IntegrityIssue, error) {
	issues := make([]IntegrityIssue, 0)
	if len(metadata.PrimaryKeys) == 0 {
		return issues, nil
	}

	keys := make([]string, len(metadata.PrimaryKeys))
	for i, k := range metadata.PrimaryKeys {
		keys[i] = converter.QuoteIdentifier(k)
	}
	pkColumns := strings.Join(keys, ", ")

	// Each duplicate group affects (count-1) rows
	var dup struct {
		Groups   int64 `db:"dup_groups"`
		Affected int64 `db:"affected"`
	}
	query := fmt.Sprintf(`
		SELECT COUNT(*) AS dup_groups, COALESCE(SUM(cnt - 1), 0) AS affected
		FROM (
			SELECT COUNT(*) AS cnt
			FROM %s
			GROUP BY %s
			HAVING COUNT(*) > 1
		) d
	`, converter.QuoteIdentifier(metadata.Table), pkColumns)

	if err := sqlx.GetContext(ctx, v.db, &dup, query); err != nil {
		return nil, err
	}

	if dup.Groups > 0 {
		pkDescription := strings.Join(metadata.PrimaryKeys, ",")
		issues = append(issues, IntegrityIssue{
			IssueType:    IssuePrimaryKey,
			Description:  fmt.Sprintf("Duplicate values found for primary key (%s)", pkDescription),
			ColumnName:   pkDescription,
			AffectedRows: dup.Affected,
		})
		v.logger.Warn("Primary key uniqueness violation",
			zap.String("table", metadata.Table),
			zap.Strings("primaryKeys", metadata.PrimaryKeys),
			zap.Int64("duplicateGroups", dup.Groups),
			zap.Int64("affectedRows", dup.Affected))
	}

	return issues, nil
}

// baseType lower-cases a type and drops its modifiers: NUMERIC(12,2) -> numeric
func baseType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = t[:i]
	}
	return strings.TrimSpace(t)
}
