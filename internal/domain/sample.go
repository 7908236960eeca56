package domain

import (
	"errors"
	"time"
)

// Sample is one cleaned instrument reading. Immutable once parsed.
type Sample struct {
	TWS float64   `json:"tws"` // true wind speed, knots
	TWA float64   `json:"twa"` // true wind angle, degrees, folded to [0,180]
	BSP float64   `json:"bsp"` // boat speed, knots
	At  time.Time `json:"at"`  // zero when the log carried no timestamp channel
}

// ParseStats counts line-level outcomes for one parsed log.
type ParseStats struct {
	TotalLines int `json:"total_lines"`
	Parsed     int `json:"parsed"`
	Skipped    int `json:"skipped"`
}

// Add combines stats from multiple files.
func (s *ParseStats) Add(other ParseStats) {
	s.TotalLines += other.TotalLines
	s.Parsed += other.Parsed
	s.Skipped += other.Skipped
}

var (
	// ErrNoValidData reports a log (or set of logs) that produced zero
	// accepted samples: empty file, unparseable content, or everything
	// rejected by the filter.
	ErrNoValidData = errors.New("no valid samples in log data")

	// ErrInsufficientData reports that parsing succeeded but the retained
	// samples are too thin to build a reliable polar; upload more sessions.
	ErrInsufficientData = errors.New("insufficient data for polar generation")
)
