package loader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	sf "github.com/snowflakedb/gosnowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/David-Botos/retail-ingress/pkg/config"
	"github.com/David-Botos/retail-ingress/pkg/model"
)

const (
	customersCSV = `CustomerID,Age,Gender,Location,JoinDate
1,34,Male,North,01/02/20
2,28,Female,,15/03/21
2,28,Female,South,15/03/21
`
	productsCSV = `ProductID,ProductName,Category,StockLevel,Price
10,Product-10,Electronics,5,99.50
11,Product-11,Clothing,20,10.00
`
	salesCSV = `TransactionID,CustomerID,ProductID,QuantityPurchased,TransactionDate,Price
7,1,10,2,03/04/23,99.50
7,2,11,1,04/04/23,10.00
`
)

func writeInputs(t *testing.T, customers, products, sales string) config.InputConfig {
	t.Helper()
	dir := t.TempDir()
	cfg := config.InputConfig{
		Source:        config.SourceCSV,
		Dir:           dir,
		CustomersFile: "customers.csv",
		ProductsFile:  "products.csv",
		SalesFile:     "sales.csv",
	}
	files := map[string]string{
		cfg.CustomersFile: customers,
		cfg.ProductsFile:  products,
		cfg.SalesFile:     sales,
	}
	for name, content := range files {
		if content == "" {
			continue
		}
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return cfg
}

func TestLoadCSV(t *testing.T) {
	cfg := writeInputs(t, customersCSV, productsCSV, salesCSV)

	raw, err := NewLoader(NewCSVSource(cfg), zap.NewNop()).Load(context.Background())
	require.NoError(t, err)

	require.Len(t, raw.Customers, 3)
	assert.Equal(t, 2, raw.Customers[0].Line)
	assert.Equal(t, int64(1), raw.Customers[0].CustomerID)
	require.NotNil(t, raw.Customers[0].Location)
	assert.Equal(t, "North", *raw.Customers[0].Location)
	assert.Nil(t, raw.Customers[1].Location, "empty cell is missing")
	assert.Equal(t, "15/03/21", raw.Customers[1].JoinDate)
	assert.Equal(t, 4, raw.Customers[2].Line)

	require.Len(t, raw.Products, 2)
	assert.True(t, decimal.RequireFromString("99.5").Equal(raw.Products[0].Price))

	require.Len(t, raw.Transactions, 2)
	assert.Equal(t, int64(7), raw.Transactions[1].TransactionID)
	assert.Equal(t, int64(11), raw.Transactions[1].ProductID)
}

func TestLoadCSVHeaderCaseInsensitive(t *testing.T) {
	customers := "customerid,AGE,gender,LOCATION,joindate,extra\n5,40,Male,East,01/01/22,x\n"
	cfg := writeInputs(t, customers, productsCSV, salesCSV)

	raw, err := NewLoader(NewCSVSource(cfg), zap.NewNop()).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, raw.Customers, 1)
	assert.Equal(t, int64(5), raw.Customers[0].CustomerID)
	assert.Equal(t, 40, raw.Customers[0].Age)
}

func TestLoadMissingInput(t *testing.T) {
	cfg := writeInputs(t, customersCSV, productsCSV, "")

	_, err := NewLoader(NewCSVSource(cfg), zap.NewNop()).Load(context.Background())
	require.Error(t, err)

	var missing *model.MissingInputError
	require.ErrorAs(t, err, &missing)
	assert.Contains(t, missing.Source, "sales.csv")
}

func TestLoadMalformed(t *testing.T) {
	tests := []struct {
		name     string
		products string
		line     int
		column   string
	}{
		{
			name:     "non-numeric stock",
			products: "ProductID,ProductName,Category,StockLevel,Price\n10,P,C,lots,1.00\n",
			line:     2,
			column:   "StockLevel",
		},
		{
			name:     "bad price",
			products: "ProductID,ProductName,Category,StockLevel,Price\n10,P,C,1,1.00\n11,P,C,1,abc\n",
			line:     3,
			column:   "Price",
		},
		{
			name:     "negative stock",
			products: "ProductID,ProductName,Category,StockLevel,Price\n10,P,C,-1,1.00\n",
			line:     2,
			column:   "StockLevel",
		},
		{
			name:     "negative price",
			products: "ProductID,ProductName,Category,StockLevel,Price\n10,P,C,1,-0.01\n",
			line:     2,
			column:   "Price",
		},
		{
			name:     "missing column",
			products: "ProductID,ProductName,Category,Price\n10,P,C,1.00\n",
			line:     1,
			column:   "StockLevel",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := writeInputs(t, customersCSV, tt.products, salesCSV)

			_, err := NewLoader(NewCSVSource(cfg), zap.NewNop()).Load(context.Background())
			require.Error(t, err)

			var malformed *model.MalformedRecordError
			require.ErrorAs(t, err, &malformed)
			assert.Equal(t, tt.line, malformed.Line)
			assert.Equal(t, tt.column, malformed.Column)
		})
	}
}

func TestLoadRejectsZeroQuantity(t *testing.T) {
	sales := "TransactionID,CustomerID,ProductID,QuantityPurchased,TransactionDate,Price\n1,1,10,0,01/01/23,1.00\n"
	cfg := writeInputs(t, customersCSV, productsCSV, sales)

	_, err := NewLoader(NewCSVSource(cfg), zap.NewNop()).Load(context.Background())
	var malformed *model.MalformedRecordError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "QuantityPurchased", malformed.Column)
}

func TestLoadExcel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "retail.xlsx")

	f := excelize.NewFile()
	sheets := map[string][][]interface{}{
		model.CustomerProfiles: {
			{"CustomerID", "Age", "Gender", "Location", "JoinDate"},
			{1, 30, "Male", "", "01/01/21"},
			{},
			{2, 41, "Female", "West", "02/01/21"},
		},
		model.ProductInventory: {
			{"ProductID", "ProductName", "Category", "StockLevel", "Price"},
			{10, "Product-10", "Home", 3, "12.25"},
		},
		model.SalesTransaction: {
			{"TransactionID", "CustomerID", "ProductID", "QuantityPurchased", "TransactionDate", "Price"},
			{100, 1, 10, 2, "05/05/23", "12.25"},
		},
	}
	for name, rows := range sheets {
		_, err := f.NewSheet(name)
		require.NoError(t, err)
		for i, row := range rows {
			cell, err := excelize.CoordinatesToCellName(1, i+1)
			require.NoError(t, err)
			require.NoError(t, f.SetSheetRow(name, cell, &row))
		}
	}
	require.NoError(t, f.DeleteSheet("Sheet1"))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	cfg := config.InputConfig{Source: config.SourceExcel, Dir: dir, Workbook: "retail.xlsx"}
	raw, err := NewLoader(NewExcelSource(cfg), zap.NewNop()).Load(context.Background())
	require.NoError(t, err)

	require.Len(t, raw.Customers, 2)
	assert.Nil(t, raw.Customers[0].Location)
	assert.Equal(t, 4, raw.Customers[1].Line, "blank row keeps sheet numbering")
	require.Len(t, raw.Products, 1)
	assert.Equal(t, 3, raw.Products[0].StockLevel)
	require.Len(t, raw.Transactions, 1)
	assert.Equal(t, "05/05/23", raw.Transactions[0].TransactionDate)
}

func TestExcelMissingSheet(t *testing.T) {
	dir := t.TempDir()
	f := excelize.NewFile()
	require.NoError(t, f.SaveAs(filepath.Join(dir, "empty.xlsx")))
	require.NoError(t, f.Close())

	cfg := config.InputConfig{Dir: dir, Workbook: "empty.xlsx"}
	_, err := NewExcelSource(cfg).Open(context.Background(), model.ProductInventory)

	var missing *model.MissingInputError
	require.ErrorAs(t, err, &missing)
	assert.Contains(t, missing.Source, model.ProductInventory)
}

type fakeStaging struct {
	tables map[string][][]string // first row is the header
	err    error
}

func (f *fakeStaging) SelectAsText(_ context.Context, table string, fn func([]string, []string) error) error {
	if f.err != nil {
		return f.err
	}
	rows := f.tables[table]
	for _, row := range rows[1:] {
		if err := fn(rows[0], row); err != nil {
			return err
		}
	}
	return nil
}

func TestLoadSnowflake(t *testing.T) {
	staging := &fakeStaging{tables: map[string][][]string{
		model.CustomerProfiles: {
			{"LOAD_SEQ", "CUSTOMERID", "AGE", "GENDER", "LOCATION", "JOINDATE"},
			{"1", "1", "20", "Male", "", "01/01/20"},
		},
		model.ProductInventory: {
			{"LOAD_SEQ", "PRODUCTID", "PRODUCTNAME", "CATEGORY", "STOCKLEVEL", "PRICE"},
		},
		model.SalesTransaction: {
			{"LOAD_SEQ", "TRANSACTIONID", "CUSTOMERID", "PRODUCTID", "QUANTITYPURCHASED", "TRANSACTIONDATE", "PRICE"},
			{"1", "1", "1", "99", "1", "01/01/21", "5.00"},
			{"2", "2", "1", "99", "3", "02/01/21", "5.00"},
		},
	}}

	raw, err := NewLoader(NewSnowflakeSource(staging), zap.NewNop()).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, raw.Customers, 1)
	assert.Equal(t, 2, raw.Customers[0].Line)
	assert.Empty(t, raw.Products)
	require.Len(t, raw.Transactions, 2)
	assert.Equal(t, 3, raw.Transactions[1].Line)
}

func TestSnowflakeMissingTable(t *testing.T) {
	staging := &fakeStaging{err: &sf.SnowflakeError{Number: objectDoesNotExist, Message: "does not exist"}}

	_, err := NewSnowflakeSource(staging).Open(context.Background(), model.SalesTransaction)
	var missing *model.MissingInputError
	require.ErrorAs(t, err, &missing)

	staging.err = errors.New("network down")
	_, err = NewSnowflakeSource(staging).Open(context.Background(), model.SalesTransaction)
	require.Error(t, err)
	assert.False(t, errors.As(err, &missing))
}

func TestNewSource(t *testing.T) {
	src, err := NewSource(config.InputConfig{Source: config.SourceCSV}, nil)
	require.NoError(t, err)
	assert.IsType(t, &CSVSource{}, src)

	_, err = NewSource(config.InputConfig{Source: config.SourceSnowflake}, nil)
	assert.Error(t, err)

	_, err = NewSource(config.InputConfig{Source: "xml"}, nil)
	assert.Error(t, err)
}
