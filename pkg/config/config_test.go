package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setPostgresEnv(t *testing.T) {
	t.Setenv("POSTGRES_USER", "retail")
	t.Setenv("POSTGRES_PASSWORD", "secret")
	t.Setenv("POSTGRES_DB", "retail_analysis")
}

func TestLoadConfigDefaults(t *testing.T) {
	setPostgresEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, SourceCSV, cfg.Input.Source)
	assert.Equal(t, "customer_profiles_raw_data.csv", cfg.Input.CustomersFile)
	assert.Equal(t, 10, cfg.Analytics.LowStockThreshold)
	assert.Equal(t, 15, cfg.Analytics.LowSalesThreshold)
	assert.Equal(t, 5, cfg.Analytics.TrendTopN)
	assert.Equal(t, 10, cfg.Analytics.InventoryTopN)
	assert.Equal(t, 1000, cfg.BatchSize)
	assert.Nil(t, cfg.Snowflake)
	assert.Equal(t, "localhost", cfg.Postgres.Host)
	assert.Equal(t, 5432, cfg.Postgres.Port)
}

func TestLoadConfigOverrides(t *testing.T) {
	setPostgresEnv(t)
	t.Setenv("LOW_STOCK_THRESHOLD", "3")
	t.Setenv("LOW_SALES_THRESHOLD", "not-a-number")
	t.Setenv("INPUT_SOURCE", "EXCEL")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Analytics.LowStockThreshold)
	assert.Equal(t, 15, cfg.Analytics.LowSalesThreshold, "unparseable values fall back to the default")
	assert.Equal(t, SourceExcel, cfg.Input.Source)
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		errorMsg string
	}{
		{
			name:     "missing postgres user",
			env:      map[string]string{"POSTGRES_PASSWORD": "x", "POSTGRES_DB": "db"},
			errorMsg: "POSTGRES_USER",
		},
		{
			name: "snowflake source without credentials",
			env: map[string]string{
				"POSTGRES_USER": "u", "POSTGRES_PASSWORD": "x", "POSTGRES_DB": "db",
				"INPUT_SOURCE": "snowflake",
			},
			errorMsg: "SNOWFLAKE_USER",
		},
		{
			name: "unknown source",
			env: map[string]string{
				"POSTGRES_USER": "u", "POSTGRES_PASSWORD": "x", "POSTGRES_DB": "db",
				"INPUT_SOURCE": "parquet",
			},
			errorMsg: "unknown input source",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range []string{"POSTGRES_USER", "POSTGRES_PASSWORD", "POSTGRES_DB", "INPUT_SOURCE"} {
				t.Setenv(key, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := LoadConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Postgres:  &PostgresConfig{},
			Input:     InputConfig{Source: SourceCSV},
			Analytics: DefaultAnalyticsConfig(),
			BatchSize: 100,
		}
	}

	assert.NoError(t, valid().Validate())

	cfg := valid()
	cfg.BatchSize = 0
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Analytics.TrendTopN = 0
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Analytics.LowStockThreshold = -1
	assert.Error(t, cfg.Validate())
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("debug", "console")
	require.NoError(t, err)
	assert.NotNil(t, logger)

	_, err = NewLogger("loud", "json")
	assert.Error(t, err)

	_, err = NewLogger("info", "xml")
	assert.Error(t, err)
}

func TestPostgresConnectionString(t *testing.T) {
	cfg := &PostgresConfig{Host: "db", Port: 6543, User: "u", Password: "p", Database: "retail", SSLMode: "require"}
	assert.Equal(t, "host=db port=6543 user=u password=p dbname=retail sslmode=require", cfg.ConnectionString())
}
