// pkg/store/schema.go
package store

// Bookkeeping tables written next to the snapshot
const (
	AuditTable = "cleaned_on_ingress"
	MetaTable  = "snapshot_meta"
)

const createAuditTableSQL = `
	CREATE TABLE IF NOT EXISTS cleaned_on_ingress (
		id SERIAL PRIMARY KEY,
		run_id TEXT NOT NULL,
		table_name TEXT NOT NULL,
		column_name TEXT NOT NULL,
		original_value TEXT,
		new_value TEXT NOT NULL,
		row_identifier TEXT NOT NULL,
		source_line INTEGER NOT NULL,
		cleaning_operation TEXT NOT NULL,
		cleaning_reason TEXT NOT NULL,
		cleaned_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
	)
`

// snapshot_meta holds a single row describing the live snapshot
const createMetaTableSQL = `
	CREATE TABLE IF NOT EXISTS snapshot_meta (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		generation TEXT NOT NULL,
		written_at TIMESTAMP WITH TIME ZONE NOT NULL,
		customers INTEGER NOT NULL,
		products INTEGER NOT NULL,
		transactions INTEGER NOT NULL
	)
`

const upsertMetaSQL = `
	INSERT INTO snapshot_meta (id, generation, written_at, customers, products, transactions)
	VALUES (1, $1, $2, $3, $4, $5)
	ON CONFLICT (id) DO UPDATE SET
		generation = EXCLUDED.generation,
		written_at = EXCLUDED.written_at,
		customers = EXCLUDED.customers,
		products = EXCLUDED.products,
		transactions = EXCLUDED.transactions
`

const selectMetaSQL = `
	SELECT generation, written_at, customers, products, transactions
	FROM snapshot_meta
	WHERE id = 1
`
