package domain

import "time"

// Summary is the diagnostic record of one polar generation run. It is
// returned to the caller and stored next to the generated polar.
type Summary struct {
	Boat              string      `json:"boat"`
	Version           int         `json:"version"`
	Files             int         `json:"files"`
	Parse             ParseStats  `json:"parse"`
	Filter            FilterStats `json:"filter"`
	CellsFilled       int         `json:"cells_filled"`
	CellsInterpolated int         `json:"cells_interpolated"`
	GeneratedAt       time.Time   `json:"generated_at"`
}
