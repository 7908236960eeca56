// Package polar turns filtered sailing samples into polar tables: target
// boat speed as a function of true wind speed and true wind angle.
//
// Samples are bucketed into (wind bin, angle bin) cells by integer division
// on the configured bin sizes; each cell reduces its samples to one target
// speed under the configured policy. Axis values are bin lower edges, so
// with 2 kt / 5 degree bins a 10.9 kt, 62 degree sample lands in the
// (10 kt, 60 degree) cell.
package polar

import (
	"fmt"
	"sort"

	"github.com/sailpolar/polar-service/internal/domain"
)

// TargetPolicy selects how a cell's samples reduce to one target speed.
// "Optimal speed" has more than one reasonable definition, so the choice is
// explicit configuration rather than a buried constant.
type TargetPolicy int

const (
	// PolicyMax records the best achieved speed: the racing target.
	PolicyMax TargetPolicy = iota
	// PolicyP90 records the 90th percentile, resisting single-sample noise.
	PolicyP90
	// PolicyTopKMean records the mean of the fastest topK samples.
	PolicyTopKMean
)

// topK is the sample count averaged under PolicyTopKMean.
const topK = 5

// ParsePolicy maps a config string to a TargetPolicy.
func ParsePolicy(s string) (TargetPolicy, error) {
	switch s {
	case "max", "":
		return PolicyMax, nil
	case "p90":
		return PolicyP90, nil
	case "topk":
		return PolicyTopKMean, nil
	}
	return PolicyMax, fmt.Errorf("unknown target policy %q (want max, p90, or topk)", s)
}

func (p TargetPolicy) String() string {
	switch p {
	case PolicyP90:
		return "p90"
	case PolicyTopKMean:
		return "topk"
	default:
		return "max"
	}
}

// BinConfig controls bucketing, cell reliability, and gap filling.
type BinConfig struct {
	WindBinSize  float64      // knots per wind-speed bin
	AngleBinSize float64      // degrees per wind-angle bin
	MinCellCount int          // samples required before a cell is trusted
	MinTotal     int          // retained samples required before generating at all
	Policy       TargetPolicy // cell reduction policy
	GapFill      bool         // interpolate empty cells along the wind axis
}

// DefaultBinConfig returns 2 kt / 5 degree bins, 3 samples per cell,
// 100 samples overall, max policy, gap filling off.
func DefaultBinConfig() BinConfig {
	return BinConfig{
		WindBinSize:  2,
		AngleBinSize: 5,
		MinCellCount: 3,
		MinTotal:     100,
		Policy:       PolicyMax,
	}
}

// Validate rejects configurations that cannot bucket.
func (c BinConfig) Validate() error {
	if c.WindBinSize <= 0 {
		return fmt.Errorf("wind bin size must be positive, got %g", c.WindBinSize)
	}
	if c.AngleBinSize <= 0 {
		return fmt.Errorf("angle bin size must be positive, got %g", c.AngleBinSize)
	}
	if c.MinCellCount < 1 {
		return fmt.Errorf("min cell count must be at least 1, got %d", c.MinCellCount)
	}
	return nil
}

// BucketKey identifies one (wind bin, angle bin) cell.
type BucketKey struct {
	Wind  int // floor(TWS / WindBinSize)
	Angle int // floor(TWA / AngleBinSize)
}

// cellAccum accumulates one cell's samples during aggregation.
// Mutated only by Add; read-only after the table is built.
type cellAccum struct {
	count int
	max   float64
	// speeds holds the full distribution under PolicyP90 and only the
	// topK largest values under PolicyTopKMean; empty under PolicyMax.
	speeds []float64
}

// Aggregator folds samples into cells. It is value-oriented: feed it
// samples file by file, then Build the table once. Not safe for concurrent
// use; generation runs single threaded per boat.
type Aggregator struct {
	cfg   BinConfig
	cells map[BucketKey]*cellAccum
	total int
}

// NewAggregator creates an empty Aggregator for the given bin config.
func NewAggregator(cfg BinConfig) *Aggregator {
	return &Aggregator{
		cfg:   cfg,
		cells: make(map[BucketKey]*cellAccum),
	}
}

// Key computes the bucket for a sample.
func (a *Aggregator) Key(s domain.Sample) BucketKey {
	return BucketKey{
		Wind:  int(s.TWS / a.cfg.WindBinSize),
		Angle: int(s.TWA / a.cfg.AngleBinSize),
	}
}

// Add folds one sample into its cell.
func (a *Aggregator) Add(s domain.Sample) {
	key := a.Key(s)
	cell, ok := a.cells[key]
	if !ok {
		cell = &cellAccum{}
		a.cells[key] = cell
	}

	cell.count++
	if s.BSP > cell.max {
		cell.max = s.BSP
	}
	switch a.cfg.Policy {
	case PolicyP90:
		cell.speeds = append(cell.speeds, s.BSP)
	case PolicyTopKMean:
		cell.speeds = insertTop(cell.speeds, s.BSP, topK)
	}
	a.total++
}

// AddAll folds a batch of samples.
func (a *Aggregator) AddAll(samples []domain.Sample) {
	for _, s := range samples {
		a.Add(s)
	}
}

// Total returns the number of samples folded in so far.
func (a *Aggregator) Total() int { return a.total }

// target reduces one cell under the configured policy.
func (a *Aggregator) target(c *cellAccum) float64 {
	switch a.cfg.Policy {
	case PolicyP90:
		return percentile(c.speeds, 0.90)
	case PolicyTopKMean:
		return topMean(c.speeds, topK)
	default:
		return c.max
	}
}

// percentile returns the p-quantile of values by linear interpolation
// between closest ranks.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p * float64(len(sorted)-1)
	lo := int(rank)
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[lo+1]*frac
}

// insertTop inserts v into a descending slice holding at most k values,
// dropping the smallest on overflow. Keeps per-cell memory constant no
// matter how many samples a cell sees.
func insertTop(top []float64, v float64, k int) []float64 {
	i := sort.Search(len(top), func(i int) bool { return top[i] < v })
	if i == len(top) {
		if len(top) < k {
			return append(top, v)
		}
		return top
	}
	if len(top) < k {
		top = append(top, 0)
	}
	copy(top[i+1:], top[i:])
	top[i] = v
	return top
}

// topMean returns the mean of the k largest values (all of them when the
// cell holds fewer than k).
func topMean(values []float64, k int) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))

	if k > len(sorted) {
		k = len(sorted)
	}
	var sum float64
	for _, v := range sorted[:k] {
		sum += v
	}
	return sum / float64(k)
}
