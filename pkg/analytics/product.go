// pkg/analytics/product.go
package analytics

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/David-Botos/retail-ingress/pkg/model"
)

// CategoryRevenue is the revenue of one product category
type CategoryRevenue struct {
	Category string          `db:"category" json:"category"`
	Revenue  decimal.Decimal `db:"total_revenue" json:"revenue"`
}

// ProductQuantity is the number of units sold of one product
type ProductQuantity struct {
	ProductID    int64  `db:"product_id" json:"product_id"`
	ProductName  string `db:"product_name" json:"product_name"`
	Category     string `db:"category" json:"category"`
	QuantitySold int64  `db:"quantity_sold" json:"quantity_sold"`
}

// ProductSales is the revenue and transaction count of one product
type ProductSales struct {
	ProductID    int64           `db:"product_id" json:"product_id"`
	ProductName  string          `db:"product_name" json:"product_name"`
	Category     string          `db:"category" json:"category"`
	Revenue      decimal.Decimal `db:"total_revenue" json:"revenue"`
	Transactions int64           `db:"transactions" json:"transactions"`
}

// StockAlert is a product flagged by an inventory threshold
type StockAlert struct {
	ProductID    int64  `db:"product_id" json:"product_id"`
	ProductName  string `db:"product_name" json:"product_name"`
	Category     string `db:"category" json:"category"`
	StockLevel   int    `db:"stock_level" json:"stock_level"`
	Transactions int64  `db:"transactions" json:"transactions"`
}

// RevenueByCategory returns the revenue per category, highest first
func (s *Service) RevenueByCategory(ctx context.Context) ([]CategoryRevenue, error) {
	return cachedQuery(ctx, s, "revenue_by_category", "", func(ctx context.Context) ([]CategoryRevenue, error) {
		rows := make([]CategoryRevenue, 0)
		err := sqlx.SelectContext(ctx, s.db, &rows, `
			SELECT
				COALESCE(p.Category, '') AS category,
				SUM(s.QuantityPurchased * s.Price) AS total_revenue
			FROM sales_transaction s
			JOIN product_inventory p ON s.ProductID = p.ProductID
			GROUP BY p.Category
			ORDER BY total_revenue DESC, category ASC
		`)
		return rows, err
	})
}

// TopProductsByQuantity returns the n products with the most units sold
func (s *Service) TopProductsByQuantity(ctx context.Context, n int) ([]ProductQuantity, error) {
	if n <= 0 {
		return nil, fmt.Errorf("top-N must be positive, got %d", n)
	}

	return cachedQuery(ctx, s, "top_products_by_quantity", strconv.Itoa(n), func(ctx context.Context) ([]ProductQuantity, error) {
		rows := make([]ProductQuantity, 0, n)
		err := sqlx.SelectContext(ctx, s.db, &rows, `
			SELECT
				p.ProductID AS product_id,
				COALESCE(p.ProductName, '') AS product_name,
				COALESCE(p.Category, '') AS category,
				SUM(s.QuantityPurchased) AS quantity_sold
			FROM sales_transaction s
			JOIN product_inventory p ON s.ProductID = p.ProductID
			GROUP BY p.ProductID, p.ProductName, p.Category
			ORDER BY quantity_sold DESC, p.ProductID ASC
			LIMIT $1
		`, n)
		return rows, err
	})
}

// TopProducts returns the n best products by revenue or by transaction count
func (s *Service) TopProducts(ctx context.Context, metric Metric, n int) ([]ProductSales, error) {
	column, err := metric.column()
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, fmt.Errorf("top-N must be positive, got %d", n)
	}

	name := "top_products_by_" + string(metric)
	return cachedQuery(ctx, s, name, strconv.Itoa(n), func(ctx context.Context) ([]ProductSales, error) {
		rows := make([]ProductSales, 0, n)
		err := sqlx.SelectContext(ctx, s.db, &rows, fmt.Sprintf(`
			SELECT
				p.ProductID AS product_id,
				COALESCE(p.ProductName, '') AS product_name,
				COALESCE(p.Category, '') AS category,
				SUM(s.QuantityPurchased * s.Price) AS total_revenue,
				COUNT(DISTINCT s.TransactionID) AS transactions
			FROM sales_transaction s
			JOIN product_inventory p ON s.ProductID = p.ProductID
			GROUP BY p.ProductID, p.ProductName, p.Category
			ORDER BY %s DESC, p.ProductID ASC
			LIMIT $1
		`, column), n)
		return rows, err
	})
}

// Categories lists the product categories alphabetically
func (s *Service) Categories(ctx context.Context) ([]string, error) {
	return cachedQuery(ctx, s, "categories", "", func(ctx context.Context) ([]string, error) {
		categories := make([]string, 0)
		err := sqlx.SelectContext(ctx, s.db, &categories, `
			SELECT DISTINCT Category
			FROM product_inventory
			WHERE Category IS NOT NULL
			ORDER BY Category ASC
		`)
		return categories, err
	})
}

// ProductRevenueInCategory returns the revenue of every sold product of one
// category, highest first. An empty category is no selection.
func (s *Service) ProductRevenueInCategory(ctx context.Context, category string) ([]ProductSales, error) {
	if strings.TrimSpace(category) == "" {
		return nil, model.ErrNoSelection
	}

	return cachedQuery(ctx, s, "product_revenue_in_category", category, func(ctx context.Context) ([]ProductSales, error) {
		rows := make([]ProductSales, 0)
		err := sqlx.SelectContext(ctx, s.db, &rows, `
			SELECT
				p.ProductID AS product_id,
				COALESCE(p.ProductName, '') AS product_name,
				p.Category AS category,
				SUM(s.QuantityPurchased * s.Price) AS total_revenue,
				COUNT(DISTINCT s.TransactionID) AS transactions
			FROM sales_transaction s
			JOIN product_inventory p ON s.ProductID = p.ProductID
			WHERE p.Category = $1
			GROUP BY p.ProductID, p.ProductName, p.Category
			ORDER BY total_revenue DESC, p.ProductID ASC
		`, category)
		return rows, err
	})
}

// LowStockProducts returns the products whose stock is below threshold, lowest first
func (s *Service) LowStockProducts(ctx context.Context, threshold int) ([]StockAlert, error) {
	return cachedQuery(ctx, s, "low_stock_products", strconv.Itoa(threshold), func(ctx context.Context) ([]StockAlert, error) {
		rows := make([]StockAlert, 0)
		err := sqlx.SelectContext(ctx, s.db, &rows, `
			SELECT
				p.ProductID AS product_id,
				COALESCE(p.ProductName, '') AS product_name,
				COALESCE(p.Category, '') AS category,
				p.StockLevel AS stock_level,
				COUNT(s.TransactionID) AS transactions
			FROM product_inventory p
			LEFT JOIN sales_transaction s ON s.ProductID = p.ProductID
			WHERE p.StockLevel < $1
			GROUP BY p.ProductID, p.ProductName, p.Category, p.StockLevel
			ORDER BY p.StockLevel ASC, p.ProductID ASC
		`, threshold)
		return rows, err
	})
}

// LowSalesProducts returns the products with fewer than threshold
// transactions, products never sold included, least sold first
func (s *Service) LowSalesProducts(ctx context.Context, threshold int) ([]StockAlert, error) {
	return cachedQuery(ctx, s, "low_sales_products", strconv.Itoa(threshold), func(ctx context.Context) ([]StockAlert, error) {
		rows := make([]StockAlert, 0)
		err := sqlx.SelectContext(ctx, s.db, &rows, `
			SELECT
				p.ProductID AS product_id,
				COALESCE(p.ProductName, '') AS product_name,
				COALESCE(p.Category, '') AS category,
				COALESCE(p.StockLevel, 0) AS stock_level,
				COUNT(s.TransactionID) AS transactions
			FROM product_inventory p
			LEFT JOIN sales_transaction s ON s.ProductID = p.ProductID
			GROUP BY p.ProductID, p.ProductName, p.Category, p.StockLevel
			HAVING COUNT(s.TransactionID) < $1
			ORDER BY transactions ASC, p.ProductID ASC
		`, threshold)
		return rows, err
	})
}
