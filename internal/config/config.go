package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sailpolar/polar-service/internal/domain"
	"github.com/sailpolar/polar-service/internal/polar"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	DataDir         string
	HTTPAddr        string
	APIToken        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	Bins   polar.BinConfig
	Filter domain.FilterConfig

	// Kafka generation notifications. Disabled when no brokers are set.
	KafkaBrokers []string
	KafkaTopic   string

	// ClickHouse sample archive. Disabled when no address is set.
	ClickHouseAddr     string
	ClickHouseDatabase string
	ClickHouseTable    string
}

// KafkaEnabled reports whether generation events should be published.
func (c *Config) KafkaEnabled() bool { return len(c.KafkaBrokers) > 0 }

// ClickHouseEnabled reports whether retained samples should be archived.
func (c *Config) ClickHouseEnabled() bool { return c.ClickHouseAddr != "" }

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := envDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	bins, err := loadBinConfig()
	if err != nil {
		return nil, err
	}

	filter, err := loadFilterConfig()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DataDir:         envOrDefault("DATA_DIR", "./data"),
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		APIToken:        os.Getenv("API_TOKEN"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		Bins:   bins,
		Filter: filter,

		KafkaBrokers: splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   envOrDefault("KAFKA_TOPIC", "polar-generated"),

		ClickHouseAddr:     os.Getenv("CLICKHOUSE_ADDR"),
		ClickHouseDatabase: envOrDefault("CLICKHOUSE_DATABASE", "sailing"),
		ClickHouseTable:    envOrDefault("CLICKHOUSE_TABLE", "polar_samples"),
	}

	if cfg.DataDir == "" {
		return nil, errors.New("DATA_DIR is required")
	}
	if cfg.KafkaEnabled() && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_BROKERS is set but KAFKA_TOPIC is empty")
	}

	return cfg, nil
}

func loadBinConfig() (polar.BinConfig, error) {
	bins := polar.DefaultBinConfig()

	var err error
	if bins.WindBinSize, err = envFloat("WIND_BIN_SIZE", bins.WindBinSize); err != nil {
		return bins, err
	}
	if bins.AngleBinSize, err = envFloat("ANGLE_BIN_SIZE", bins.AngleBinSize); err != nil {
		return bins, err
	}
	if bins.MinCellCount, err = envInt("MIN_CELL_SAMPLES", bins.MinCellCount); err != nil {
		return bins, err
	}
	if bins.MinTotal, err = envInt("MIN_TOTAL_SAMPLES", bins.MinTotal); err != nil {
		return bins, err
	}
	if bins.GapFill, err = envBool("GAP_FILL", bins.GapFill); err != nil {
		return bins, err
	}
	if bins.Policy, err = polar.ParsePolicy(os.Getenv("TARGET_POLICY")); err != nil {
		return bins, err
	}
	if err := bins.Validate(); err != nil {
		return bins, err
	}
	return bins, nil
}

func loadFilterConfig() (domain.FilterConfig, error) {
	filter := domain.DefaultFilterConfig()

	var err error
	if filter.MaxTWS, err = envFloat("MAX_TWS", filter.MaxTWS); err != nil {
		return filter, err
	}
	if filter.MaxBSP, err = envFloat("MAX_BSP", filter.MaxBSP); err != nil {
		return filter, err
	}
	if filter.OutlierWindow, err = envInt("OUTLIER_WINDOW", filter.OutlierWindow); err != nil {
		return filter, err
	}
	if filter.OutlierRatio, err = envFloat("OUTLIER_RATIO", filter.OutlierRatio); err != nil {
		return filter, err
	}
	if filter.MaxTWS <= filter.MinTWS {
		return filter, fmt.Errorf("MAX_TWS %g must exceed %g", filter.MaxTWS, filter.MinTWS)
	}
	if filter.MaxBSP <= filter.MinBSP {
		return filter, fmt.Errorf("MAX_BSP %g must exceed %g", filter.MaxBSP, filter.MinBSP)
	}
	return filter, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return d, nil
}

func envFloat(key string, fallback float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return v, nil
}

func envInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return v, nil
}

func envBool(key string, fallback bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %q", key, s)
	}
	return v, nil
}

// splitList parses a comma-separated list, dropping empty entries.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
