// pkg/model/metadata.go
package model

import "strings"

// TableMetadata contains the structure information for a store table
type TableMetadata struct {
	Table       string   // Table name
	Columns     []Column // Column definitions, in insert order
	PrimaryKeys []string // List of primary key column names
}

// Column represents metadata about a store column
type Column struct {
	Name         string // Column name as published in the schema
	PgType       string // PostgreSQL type
	Nullable     bool   // Whether column allows NULL values
	IsPrimaryKey bool   // Whether column is part of primary key
}

// GetColumnByName returns a column by name (case-insensitive)
// Returns nil if column not found
func (tm *TableMetadata) GetColumnByName(name string) *Column {
	for i := range tm.Columns {
		if strings.EqualFold(tm.Columns[i].Name, name) {
			return &tm.Columns[i]
		}
	}
	return nil
}

// ColumnNames returns the column names in insert order
func (tm *TableMetadata) ColumnNames() []string {
	names := make([]string, len(tm.Columns))
	for i, col := range tm.Columns {
		names[i] = col.Name
	}
	return names
}

// PrimaryKey returns the single primary key column name
func (tm *TableMetadata) PrimaryKey() string {
	if len(tm.PrimaryKeys) == 0 {
		return ""
	}
	return tm.PrimaryKeys[0]
}

// The fixed snapshot schema. Column order matches the raw input files.
var (
	CustomerProfilesMetadata = TableMetadata{
		Table: CustomerProfiles,
		Columns: []Column{
			{Name: "CustomerID", PgType: "BIGINT", IsPrimaryKey: true},
			{Name: "Age", PgType: "INTEGER", Nullable: true},
			{Name: "Gender", PgType: "TEXT", Nullable: true},
			{Name: "Location", PgType: "TEXT", Nullable: true},
			{Name: "JoinDate", PgType: "TEXT", Nullable: true},
		},
		PrimaryKeys: []string{"CustomerID"},
	}

	ProductInventoryMetadata = TableMetadata{
		Table: ProductInventory,
		Columns: []Column{
			{Name: "ProductID", PgType: "BIGINT", IsPrimaryKey: true},
			{Name: "ProductName", PgType: "TEXT", Nullable: true},
			{Name: "Category", PgType: "TEXT", Nullable: true},
			{Name: "StockLevel", PgType: "INTEGER", Nullable: true},
			{Name: "Price", PgType: "NUMERIC(12,2)", Nullable: true},
		},
		PrimaryKeys: []string{"ProductID"},
	}

	SalesTransactionMetadata = TableMetadata{
		Table: SalesTransaction,
		Columns: []Column{
			{Name: "TransactionID", PgType: "BIGINT", IsPrimaryKey: true},
			{Name: "CustomerID", PgType: "BIGINT", Nullable: true},
			{Name: "ProductID", PgType: "BIGINT", Nullable: true},
			{Name: "QuantityPurchased", PgType: "INTEGER", Nullable: true},
			{Name: "TransactionDate", PgType: "TEXT", Nullable: true},
			{Name: "Price", PgType: "NUMERIC(12,2)", Nullable: true},
		},
		PrimaryKeys: []string{"TransactionID"},
	}
)

// SnapshotTables lists the snapshot tables in write order
func SnapshotTables() []TableMetadata {
	return []TableMetadata{
		CustomerProfilesMetadata,
		ProductInventoryMetadata,
		SalesTransactionMetadata,
	}
}
