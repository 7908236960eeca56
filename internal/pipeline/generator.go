// Package pipeline orchestrates polar generation: stream a boat's stored
// logs through parse and filter into one aggregation pass, build the
// table, merge it with the boat's prior version, and persist the result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/klauspost/pgzip"

	"github.com/sailpolar/polar-service/internal/domain"
	"github.com/sailpolar/polar-service/internal/observability"
	"github.com/sailpolar/polar-service/internal/polar"
)

// LogSource lists and opens a boat's stored raw logs.
type LogSource interface {
	ListLogs(ctx context.Context, boat string) ([]string, error)
	OpenLog(ctx context.Context, key string) (io.ReadCloser, error)
}

// PolarStore loads the prior polar version and persists new ones.
type PolarStore interface {
	LatestPolar(ctx context.Context, boat string) (polar.Table, int, error)
	SavePolar(ctx context.Context, boat string, version int, t polar.Table, summary domain.Summary) error
}

// Notifier announces a completed generation, e.g. to a Kafka topic.
type Notifier interface {
	NotifyGenerated(ctx context.Context, summary domain.Summary) error
}

// Archiver records the retained samples of a run for offline analytics.
type Archiver interface {
	ArchiveSamples(ctx context.Context, boat string, version int, samples []domain.Sample) error
}

// Generator runs polar generation for boats. Notifier and Archiver are
// optional; pass nil to disable. Safe for concurrent use; runs for the
// same boat are serialized so two generations can never interleave their
// progressive merges.
type Generator struct {
	source   LogSource
	store    PolarStore
	notifier Notifier
	archive  Archiver

	bins   polar.BinConfig
	filter domain.FilterConfig

	logger  *slog.Logger
	metrics *observability.Metrics
	clock   clockwork.Clock

	boats keyedLocks
}

// New creates a Generator.
func New(source LogSource, store PolarStore, notifier Notifier, archiver Archiver,
	bins polar.BinConfig, filter domain.FilterConfig,
	logger *slog.Logger, metrics *observability.Metrics) *Generator {
	return &Generator{
		source:   source,
		store:    store,
		notifier: notifier,
		archive:  archiver,
		bins:     bins,
		filter:   filter,
		logger:   logger,
		metrics:  metrics,
		clock:    clockwork.NewRealClock(),
	}
}

// SetClock swaps the time source; tests freeze it for deterministic
// version timestamps.
func (g *Generator) SetClock(c clockwork.Clock) {
	if c != nil {
		g.clock = c
	}
}

// Generate runs one complete generation for a boat and returns the merged
// table and its diagnostics. Failure modes the caller can act on:
// domain.ErrNoValidData (nothing parseable in the boat's logs) and
// domain.ErrInsufficientData (parsed, but too thin to trust).
func (g *Generator) Generate(ctx context.Context, boat string) (polar.Table, domain.Summary, error) {
	unlock := g.boats.lock(boat)
	defer unlock()

	start := g.clock.Now()

	table, summary, err := g.generate(ctx, boat)
	if err != nil {
		g.metrics.GenerationFailures.WithLabelValues(failureReason(err)).Inc()
		return polar.Table{}, domain.Summary{}, err
	}

	g.metrics.GenerationsTotal.Inc()
	g.metrics.GenerationDuration.Observe(g.clock.Since(start).Seconds())
	g.metrics.CellsFilled.Observe(float64(summary.CellsFilled))

	g.logger.Info("polar generated",
		"boat", boat,
		"version", summary.Version,
		"files", summary.Files,
		"samples", summary.Filter.Accepted,
		"cells", summary.CellsFilled,
	)
	return table, summary, nil
}

func (g *Generator) generate(ctx context.Context, boat string) (polar.Table, domain.Summary, error) {
	keys, err := g.source.ListLogs(ctx, boat)
	if err != nil {
		return polar.Table{}, domain.Summary{}, fmt.Errorf("list logs for %s: %w", boat, err)
	}
	if len(keys) == 0 {
		return polar.Table{}, domain.Summary{}, fmt.Errorf("%w: boat %s has no log files", domain.ErrNoValidData, boat)
	}

	summary := domain.Summary{Boat: boat, Files: len(keys)}
	agg := polar.NewAggregator(g.bins)
	var retained []domain.Sample

	// Files are processed strictly sequentially into one shared
	// accumulation pass; ordering between files does not affect the result.
	for _, key := range keys {
		samples, parseStats, err := g.readLog(ctx, key)
		if err != nil {
			return polar.Table{}, domain.Summary{}, fmt.Errorf("read log %s: %w", key, err)
		}
		accepted, filterStats := domain.Filter(samples, g.filter)

		summary.Parse.Add(parseStats)
		summary.Filter.Input += filterStats.Input
		summary.Filter.Accepted += filterStats.Accepted
		summary.Filter.Rejected += filterStats.Rejected
		summary.Filter.Outliers += filterStats.Outliers

		agg.AddAll(accepted)
		retained = append(retained, accepted...)

		g.logger.Debug("log processed", "boat", boat, "key", key,
			"lines", parseStats.TotalLines, "accepted", filterStats.Accepted)
	}

	g.metrics.LinesParsed.Add(float64(summary.Parse.Parsed))
	g.metrics.LinesRejected.Add(float64(summary.Parse.Skipped + summary.Filter.Rejected + summary.Filter.Outliers))

	if agg.Total() == 0 {
		return polar.Table{}, domain.Summary{}, fmt.Errorf("%w: %d lines read, none usable", domain.ErrNoValidData, summary.Parse.TotalLines)
	}
	if agg.Total() < g.bins.MinTotal {
		return polar.Table{}, domain.Summary{}, fmt.Errorf("%w: %d retained samples, need %d", domain.ErrInsufficientData, agg.Total(), g.bins.MinTotal)
	}

	fresh, err := agg.Build(g.clock.Now().UTC())
	if err != nil {
		return polar.Table{}, domain.Summary{}, err
	}

	prior, priorVersion, err := g.store.LatestPolar(ctx, boat)
	if err != nil {
		return polar.Table{}, domain.Summary{}, fmt.Errorf("load prior polar for %s: %w", boat, err)
	}

	version := priorVersion + 1
	fresh.Version = version
	merged := polar.Merge(prior, fresh, g.bins.MinCellCount)

	summary.Version = version
	summary.GeneratedAt = merged.GeneratedAt
	summary.CellsFilled, summary.CellsInterpolated = merged.CellCount()

	if err := g.store.SavePolar(ctx, boat, version, merged, summary); err != nil {
		return polar.Table{}, domain.Summary{}, fmt.Errorf("save polar v%d for %s: %w", version, boat, err)
	}

	// Notification and archival are best effort: the polar is already
	// persisted, so downstream hiccups only get logged and counted.
	if g.notifier != nil {
		if err := g.notifier.NotifyGenerated(ctx, summary); err != nil {
			g.metrics.NotifyErrors.Inc()
			g.logger.Warn("generation notify failed", "boat", boat, "version", version, "error", err)
		}
	}
	if g.archive != nil {
		if err := g.archive.ArchiveSamples(ctx, boat, version, retained); err != nil {
			g.metrics.ArchiveErrors.Inc()
			g.logger.Warn("sample archive failed", "boat", boat, "version", version, "error", err)
		}
	}

	return merged, summary, nil
}

// readLog opens a stored log, transparently decompressing .gz uploads, and
// parses it into samples.
func (g *Generator) readLog(ctx context.Context, key string) ([]domain.Sample, domain.ParseStats, error) {
	rc, err := g.source.OpenLog(ctx, key)
	if err != nil {
		return nil, domain.ParseStats{}, err
	}
	defer rc.Close()

	var r io.Reader = rc
	if strings.HasSuffix(key, ".gz") {
		gz, err := pgzip.NewReader(rc)
		if err != nil {
			return nil, domain.ParseStats{}, fmt.Errorf("gzip: %w", err)
		}
		defer gz.Close()
		r = gz
	}
	return domain.ParseLog(r)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrNoValidData):
		return "no_data"
	case errors.Is(err, domain.ErrInsufficientData):
		return "insufficient"
	default:
		return "internal"
	}
}

// keyedLocks serializes work per key while letting distinct keys proceed
// concurrently. Lock entries are never removed; the boat population is
// small and bounded by what the store holds.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedLocks) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}
