package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sailpolar/polar-service/internal/polar"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Empty(t, cfg.APIToken)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)

	assert.Equal(t, polar.DefaultBinConfig(), cfg.Bins)
	assert.Equal(t, 30.0, cfg.Filter.MaxTWS)
	assert.Equal(t, 9, cfg.Filter.OutlierWindow)

	assert.False(t, cfg.KafkaEnabled())
	assert.False(t, cfg.ClickHouseEnabled())
}

func TestLoad_CustomValues(t *testing.T) {
	t.Setenv("DATA_DIR", "/var/lib/polar")
	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("API_TOKEN", "sekrit")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("WIND_BIN_SIZE", "1.5")
	t.Setenv("ANGLE_BIN_SIZE", "10")
	t.Setenv("MIN_CELL_SAMPLES", "5")
	t.Setenv("MIN_TOTAL_SAMPLES", "250")
	t.Setenv("GAP_FILL", "true")
	t.Setenv("TARGET_POLICY", "p90")
	t.Setenv("MAX_TWS", "40")
	t.Setenv("OUTLIER_WINDOW", "0")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/polar", cfg.DataDir)
	assert.Equal(t, ":9999", cfg.HTTPAddr)
	assert.Equal(t, "sekrit", cfg.APIToken)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)

	assert.Equal(t, 1.5, cfg.Bins.WindBinSize)
	assert.Equal(t, 10.0, cfg.Bins.AngleBinSize)
	assert.Equal(t, 5, cfg.Bins.MinCellCount)
	assert.Equal(t, 250, cfg.Bins.MinTotal)
	assert.True(t, cfg.Bins.GapFill)
	assert.Equal(t, polar.PolicyP90, cfg.Bins.Policy)

	assert.Equal(t, 40.0, cfg.Filter.MaxTWS)
	assert.Equal(t, 0, cfg.Filter.OutlierWindow)
}

func TestLoad_Kafka(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "broker1:9092, broker2:9092")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.KafkaEnabled())
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "polar-generated", cfg.KafkaTopic)
}

func TestLoad_ClickHouse(t *testing.T) {
	t.Setenv("CLICKHOUSE_ADDR", "ch:9000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.ClickHouseEnabled())
	assert.Equal(t, "sailing", cfg.ClickHouseDatabase)
	assert.Equal(t, "polar_samples", cfg.ClickHouseTable)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad shutdown timeout", "SHUTDOWN_TIMEOUT", "soon"},
		{"negative shutdown timeout", "SHUTDOWN_TIMEOUT", "-5s"},
		{"bad wind bin", "WIND_BIN_SIZE", "wide"},
		{"zero wind bin", "WIND_BIN_SIZE", "0"},
		{"bad policy", "TARGET_POLICY", "median"},
		{"bad gap fill", "GAP_FILL", "maybe"},
		{"max tws below min", "MAX_TWS", "1"},
		{"bad outlier window", "OUTLIER_WINDOW", "wide"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
