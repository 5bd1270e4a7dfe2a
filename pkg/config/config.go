// pkg/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Input source kinds
const (
	SourceCSV       = "csv"
	SourceExcel     = "excel"
	SourceSnowflake = "snowflake"
)

// Config represents the application configuration
type Config struct {
	// Database connections
	Postgres  *PostgresConfig
	Snowflake *SnowflakeConfig // only set when Input.Source is snowflake

	Input     InputConfig
	Analytics AnalyticsConfig

	// Store write settings
	BatchSize int

	// Logging
	LogLevel  string
	LogFormat string

	// MetricsTextfile, when set, receives the run metrics in Prometheus text format
	MetricsTextfile string
}

// InputConfig locates the raw records
type InputConfig struct {
	Source        string
	Dir           string
	CustomersFile string
	ProductsFile  string
	SalesFile     string
	Workbook      string // Excel source only
}

// AnalyticsConfig holds query defaults
type AnalyticsConfig struct {
	LowStockThreshold int
	LowSalesThreshold int
	TrendTopN         int
	InventoryTopN     int
	WorkerPoolSize    int // concurrent queries in a report, 0 means runtime.NumCPU()
	CacheSize         int
}

// LoadConfig loads configuration from environment variables.
// A .env file in the working directory is read first when present; real
// environment variables take precedence over it.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env file: %w", err)
	}

	cfg := &Config{
		Input: InputConfig{
			Source:        strings.ToLower(getEnv("INPUT_SOURCE", SourceCSV)),
			Dir:           getEnv("INPUT_DIR", "."),
			CustomersFile: getEnv("CUSTOMERS_FILE", "customer_profiles_raw_data.csv"),
			ProductsFile:  getEnv("PRODUCTS_FILE", "product_inventory_raw_data.csv"),
			SalesFile:     getEnv("SALES_FILE", "sales_transaction_raw_data.csv"),
			Workbook:      getEnv("INPUT_WORKBOOK", "retail_raw_data.xlsx"),
		},
		Analytics:       DefaultAnalyticsConfig(),
		BatchSize:       getEnvAsInt("BATCH_SIZE", 1000),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "json"),
		MetricsTextfile: getEnv("METRICS_TEXTFILE", ""),
	}

	cfg.Analytics.LowStockThreshold = getEnvAsInt("LOW_STOCK_THRESHOLD", cfg.Analytics.LowStockThreshold)
	cfg.Analytics.LowSalesThreshold = getEnvAsInt("LOW_SALES_THRESHOLD", cfg.Analytics.LowSalesThreshold)
	cfg.Analytics.TrendTopN = getEnvAsInt("TREND_TOP_N", cfg.Analytics.TrendTopN)
	cfg.Analytics.InventoryTopN = getEnvAsInt("INVENTORY_TOP_N", cfg.Analytics.InventoryTopN)
	cfg.Analytics.WorkerPoolSize = getEnvAsInt("WORKER_POOL_SIZE", cfg.Analytics.WorkerPoolSize)
	cfg.Analytics.CacheSize = getEnvAsInt("QUERY_CACHE_SIZE", cfg.Analytics.CacheSize)

	pgConfig, err := LoadPostgresConfig()
	if err != nil {
		return nil, errors.New("failed to load PostgreSQL configuration: " + err.Error())
	}
	cfg.Postgres = pgConfig

	if cfg.Input.Source == SourceSnowflake {
		snowConfig, err := LoadSnowflakeConfig()
		if err != nil {
			return nil, errors.New("failed to load Snowflake configuration: " + err.Error())
		}
		cfg.Snowflake = snowConfig
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DefaultAnalyticsConfig returns the thresholds and limits used by the dashboard
func DefaultAnalyticsConfig() AnalyticsConfig {
	return AnalyticsConfig{
		LowStockThreshold: 10,
		LowSalesThreshold: 15,
		TrendTopN:         5,
		InventoryTopN:     10,
		WorkerPoolSize:    0,
		CacheSize:         256,
	}
}

// Validate ensures all required configuration is present and valid
func (c *Config) Validate() error {
	if c.Postgres == nil {
		return errors.New("postgreSQL configuration is required")
	}

	switch c.Input.Source {
	case SourceCSV, SourceExcel:
	case SourceSnowflake:
		if c.Snowflake == nil {
			return errors.New("snowflake configuration is required for the snowflake input source")
		}
	default:
		return fmt.Errorf("unknown input source %q", c.Input.Source)
	}

	if c.BatchSize <= 0 {
		return errors.New("batch size must be positive")
	}

	if c.Analytics.LowStockThreshold < 0 || c.Analytics.LowSalesThreshold < 0 {
		return errors.New("thresholds cannot be negative")
	}

	if c.Analytics.TrendTopN <= 0 || c.Analytics.InventoryTopN <= 0 {
		return errors.New("top-N limits must be positive")
	}

	if c.Analytics.WorkerPoolSize < 0 {
		return errors.New("worker pool size cannot be negative")
	}

	return nil
}

// Helper functions for environment variables
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
