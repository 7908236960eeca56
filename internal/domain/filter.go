package domain

import "sort"

// FilterConfig holds the plausibility windows and outlier settings applied
// to parsed samples before aggregation.
type FilterConfig struct {
	MinTWS float64 // knots, exclusive lower bound on true wind speed
	MaxTWS float64 // knots, inclusive upper bound
	MinBSP float64 // knots, inclusive lower bound on boat speed
	MaxBSP float64 // knots, inclusive upper bound
	MinTWA float64 // degrees, folded; below this the boat is head to wind
	MaxTWA float64 // degrees, folded

	// OutlierWindow is the rolling-median window size (samples). Zero or
	// one disables outlier rejection.
	OutlierWindow int
	// OutlierRatio is the maximum relative deviation of boat speed from
	// the window median, e.g. 0.3 rejects readings more than 30% off.
	OutlierRatio float64
}

// DefaultFilterConfig returns the practical racing windows: 2-30 kt true
// wind, 1-25 kt boat speed, 5-180 degrees folded wind angle, with a
// 9-sample / 30% rolling-median outlier check.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		MinTWS:        2,
		MaxTWS:        30,
		MinBSP:        1,
		MaxBSP:        25,
		MinTWA:        5,
		MaxTWA:        180,
		OutlierWindow: 9,
		OutlierRatio:  0.3,
	}
}

// FilterStats counts sample-level outcomes of one filter pass.
type FilterStats struct {
	Input    int `json:"input"`
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"` // outside the plausibility windows
	Outliers int `json:"outliers"` // failed the rolling-median check
}

// Filter returns the samples that pass the plausibility windows and, when
// configured, the rolling-median outlier check. The input slice is never
// mutated; a fresh slice is returned so the pass can be re-run from the
// original data.
func Filter(samples []Sample, cfg FilterConfig) ([]Sample, FilterStats) {
	stats := FilterStats{Input: len(samples)}

	plausible := make([]Sample, 0, len(samples))
	for _, s := range samples {
		if !inWindows(s, cfg) {
			stats.Rejected++
			continue
		}
		plausible = append(plausible, s)
	}

	if cfg.OutlierWindow <= 1 || cfg.OutlierRatio <= 0 {
		stats.Accepted = len(plausible)
		return plausible, stats
	}

	accepted := make([]Sample, 0, len(plausible))
	window := make([]float64, 0, cfg.OutlierWindow)
	for i, s := range plausible {
		window = window[:0]
		for j := i - cfg.OutlierWindow/2; j <= i+cfg.OutlierWindow/2; j++ {
			if j >= 0 && j < len(plausible) {
				window = append(window, plausible[j].BSP)
			}
		}
		// The check needs a full window; samples near the ends of a run
		// pass through unchecked rather than being judged on thin context.
		if len(window) < cfg.OutlierWindow {
			accepted = append(accepted, s)
			continue
		}
		med := median(window)
		if med > 0 && abs(s.BSP-med)/med > cfg.OutlierRatio {
			stats.Outliers++
			continue
		}
		accepted = append(accepted, s)
	}

	stats.Accepted = len(accepted)
	return accepted, stats
}

func inWindows(s Sample, cfg FilterConfig) bool {
	return s.TWS > cfg.MinTWS-1e-9 && s.TWS <= cfg.MaxTWS &&
		s.BSP >= cfg.MinBSP && s.BSP <= cfg.MaxBSP &&
		s.TWA >= cfg.MinTWA && s.TWA <= cfg.MaxTWA
}

// median returns the median of values. The slice is copied before sorting
// so callers can keep stable windows.
func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
