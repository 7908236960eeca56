// Package clickhouse archives the retained samples of each generation run
// for offline analytics (seasonal trim comparisons, instrument drift).
//
// Expected table, ordered for per-boat range scans:
//
//	CREATE TABLE sailing.polar_samples (
//	    boat     LowCardinality(String),
//	    version  UInt32,
//	    tws      Float64,
//	    twa      Float64,
//	    bsp      Float64,
//	    at       DateTime
//	) ENGINE = MergeTree ORDER BY (boat, version, at)
package clickhouse

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/sailpolar/polar-service/internal/domain"
)

// Options configures the archive connection.
type Options struct {
	Addr     string
	Database string
	Table    string
	Username string
	Password string
}

// Archiver batch-inserts retained samples. It implements
// pipeline.Archiver.
type Archiver struct {
	conn   driver.Conn
	table  string
	logger *slog.Logger
}

// NewArchiver connects and pings ClickHouse. Async inserts with LZ4
// compression keep archive writes off the generation latency path.
func NewArchiver(ctx context.Context, opts Options, logger *slog.Logger) (*Archiver, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{opts.Addr},
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.Username,
			Password: opts.Password,
		},
		Settings: clickhouse.Settings{
			"async_insert":          1,
			"wait_for_async_insert": 0,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse connect: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	return &Archiver{
		conn:   conn,
		table:  fmt.Sprintf("%s.%s", opts.Database, opts.Table),
		logger: logger,
	}, nil
}

// ArchiveSamples inserts one run's retained samples in a single batch.
func (a *Archiver) ArchiveSamples(ctx context.Context, boat string, version int, samples []domain.Sample) error {
	if len(samples) == 0 {
		return nil
	}

	batch, err := a.conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s (boat, version, tws, twa, bsp, at)", a.table))
	if err != nil {
		return fmt.Errorf("prepare archive batch: %w", err)
	}
	for _, s := range samples {
		at := s.At
		if at.IsZero() {
			// DateTime has no null; runs from logs without a Utc channel
			// archive under the epoch so they stay distinguishable.
			at = time.Unix(0, 0).UTC()
		}
		if err := batch.Append(boat, uint32(version), s.TWS, s.TWA, s.BSP, at); err != nil {
			return fmt.Errorf("append archive row: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send archive batch: %w", err)
	}

	a.logger.Debug("samples archived", "boat", boat, "version", version, "rows", len(samples))
	return nil
}

func (a *Archiver) Close() error {
	return a.conn.Close()
}
