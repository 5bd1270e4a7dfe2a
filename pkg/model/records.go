// pkg/model/records.go
package model

import (
	"github.com/shopspring/decimal"
)

// Dataset names, also used as table names in the store
const (
	CustomerProfiles = "customer_profiles"
	ProductInventory = "product_inventory"
	SalesTransaction = "sales_transaction"
)

// UnknownLocation replaces missing customer locations
const UnknownLocation = "Unknown"

// RawCustomerProfile is a customer row as parsed from the source, before cleaning
type RawCustomerProfile struct {
	Line       int // 1-based line in the source, defines first-seen order
	CustomerID int64
	Age        int `validate:"gte=0"`
	Gender     string
	Location   *string // nil when the source cell was empty
	JoinDate   string  // raw dd/mm/yy text
}

// RawProductRecord is a product row as parsed from the source
type RawProductRecord struct {
	Line        int
	ProductID   int64
	ProductName string
	Category    string
	StockLevel  int             `validate:"gte=0"`
	Price       decimal.Decimal `validate:"gte=0"`
}

// RawSalesTransaction is a sales row as parsed from the source
type RawSalesTransaction struct {
	Line              int
	TransactionID     int64
	CustomerID        int64
	ProductID         int64
	QuantityPurchased int             `validate:"gt=0"`
	TransactionDate   string          // raw dd/mm/yy text
	Price             decimal.Decimal `validate:"gte=0"`
}

// RawDataset holds the three raw collections in source order
type RawDataset struct {
	Customers    []RawCustomerProfile
	Products     []RawProductRecord
	Transactions []RawSalesTransaction
}

// CustomerProfile is a cleaned customer
type CustomerProfile struct {
	CustomerID int64  `db:"customerid" json:"customer_id"`
	Age        int    `db:"age" json:"age"`
	Gender     string `db:"gender" json:"gender"`
	Location   string `db:"location" json:"location"`
	JoinDate   Date   `db:"joindate" json:"join_date"`
}

// ProductRecord is a cleaned product; Price is the current authoritative price
type ProductRecord struct {
	ProductID   int64           `db:"productid" json:"product_id"`
	ProductName string          `db:"productname" json:"product_name"`
	Category    string          `db:"category" json:"category"`
	StockLevel  int             `db:"stocklevel" json:"stock_level"`
	Price       decimal.Decimal `db:"price" json:"price"`
}

// TransactionRecord is a cleaned sale
type TransactionRecord struct {
	TransactionID     int64           `db:"transactionid" json:"transaction_id"`
	CustomerID        int64           `db:"customerid" json:"customer_id"`
	ProductID         int64           `db:"productid" json:"product_id"`
	QuantityPurchased int             `db:"quantitypurchased" json:"quantity_purchased"`
	TransactionDate   Date            `db:"transactiondate" json:"transaction_date"`
	Price             decimal.Decimal `db:"price" json:"price"`
}

// Revenue returns quantity times price
func (s TransactionRecord) Revenue() decimal.Decimal {
	return s.Price.Mul(decimal.NewFromInt(int64(s.QuantityPurchased)))
}

// Dataset holds the three cleaned collections, each key-unique
type Dataset struct {
	Customers    []CustomerProfile
	Products     []ProductRecord
	Transactions []TransactionRecord
}

// RowCounts returns the number of rows per table
func (d *Dataset) RowCounts() map[string]int {
	return map[string]int{
		CustomerProfiles: len(d.Customers),
		ProductInventory: len(d.Products),
		SalesTransaction: len(d.Transactions),
	}
}
