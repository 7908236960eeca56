package polar

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sailpolar/polar-service/internal/domain"
)

// CellSource records how a cell's value was produced.
type CellSource uint8

const (
	SourceEmpty CellSource = iota
	SourceObserved
	SourceInterpolated
)

func (s CellSource) String() string {
	switch s {
	case SourceObserved:
		return "observed"
	case SourceInterpolated:
		return "interpolated"
	default:
		return "empty"
	}
}

// Cell is one entry of a polar table grid.
type Cell struct {
	Speed   float64    `json:"speed"`
	Samples int        `json:"samples"`
	Source  CellSource `json:"source"`
}

// Empty reports whether the cell holds no value.
func (c Cell) Empty() bool { return c.Source == SourceEmpty }

// Table is a finished polar: target speeds on a (wind speed, angle) grid.
// Axis values are bin lower edges in knots and degrees, strictly
// increasing. Cells is indexed [wind][angle]. Immutable once built; new
// generations produce new versions.
type Table struct {
	WindAxis    []float64 `json:"wind_axis"`
	AngleAxis   []float64 `json:"angle_axis"`
	Cells       [][]Cell  `json:"cells"`
	GeneratedAt time.Time `json:"generated_at"`
	Version     int       `json:"version"`
}

// IsZero reports whether the table holds no grid at all, e.g. the prior of
// a boat's first generation.
func (t Table) IsZero() bool {
	return len(t.WindAxis) == 0 && len(t.AngleAxis) == 0
}

// CellCount returns the number of non-empty cells by source.
func (t Table) CellCount() (observed, interpolated int) {
	for _, row := range t.Cells {
		for _, c := range row {
			switch c.Source {
			case SourceObserved:
				observed++
			case SourceInterpolated:
				interpolated++
			}
		}
	}
	return observed, interpolated
}

// Build reduces the accumulated cells into a Table. Cells with fewer than
// MinCellCount samples are unreliable and stay empty. When not a single
// cell is reliable the result is domain.ErrInsufficientData.
func (a *Aggregator) Build(generatedAt time.Time) (Table, error) {
	reliable := make(map[BucketKey]Cell, len(a.cells))
	for key, acc := range a.cells {
		if acc.count < a.cfg.MinCellCount {
			continue
		}
		reliable[key] = Cell{
			Speed:   a.target(acc),
			Samples: acc.count,
			Source:  SourceObserved,
		}
	}
	if len(reliable) == 0 {
		return Table{}, fmt.Errorf("%w: %d samples produced no cell with %d or more",
			domain.ErrInsufficientData, a.total, a.cfg.MinCellCount)
	}

	windBins := make(map[int]struct{})
	angleBins := make(map[int]struct{})
	for key := range reliable {
		windBins[key.Wind] = struct{}{}
		angleBins[key.Angle] = struct{}{}
	}

	t := Table{
		WindAxis:    axisValues(windBins, a.cfg.WindBinSize),
		AngleAxis:   axisValues(angleBins, a.cfg.AngleBinSize),
		GeneratedAt: generatedAt,
	}

	t.Cells = make([][]Cell, len(t.WindAxis))
	for i := range t.Cells {
		t.Cells[i] = make([]Cell, len(t.AngleAxis))
	}
	for key, cell := range reliable {
		i := axisIndex(t.WindAxis, float64(key.Wind)*a.cfg.WindBinSize)
		j := axisIndex(t.AngleAxis, float64(key.Angle)*a.cfg.AngleBinSize)
		t.Cells[i][j] = cell
	}

	if a.cfg.GapFill {
		fillGaps(&t)
	}
	return t, nil
}

// axisValues converts a set of bin indices into sorted bin lower edges.
func axisValues(bins map[int]struct{}, binSize float64) []float64 {
	values := make([]float64, 0, len(bins))
	for b := range bins {
		values = append(values, float64(b)*binSize)
	}
	sort.Float64s(values)
	return values
}

// axisIndex locates a value on a strictly increasing axis.
func axisIndex(axis []float64, v float64) int {
	i := sort.SearchFloat64s(axis, v-1e-9)
	if i < len(axis) && math.Abs(axis[i]-v) < 1e-6 {
		return i
	}
	return -1
}

// fillGaps linearly interpolates empty cells along the wind axis at each
// fixed angle, only between two observed neighbors. Extrapolation beyond
// the observed envelope is never attempted.
func fillGaps(t *Table) {
	for j := range t.AngleAxis {
		for i := range t.WindAxis {
			if !t.Cells[i][j].Empty() {
				continue
			}
			lo, hi := -1, -1
			for k := i - 1; k >= 0; k-- {
				if t.Cells[k][j].Source == SourceObserved {
					lo = k
					break
				}
			}
			for k := i + 1; k < len(t.WindAxis); k++ {
				if t.Cells[k][j].Source == SourceObserved {
					hi = k
					break
				}
			}
			if lo < 0 || hi < 0 {
				continue
			}
			frac := (t.WindAxis[i] - t.WindAxis[lo]) / (t.WindAxis[hi] - t.WindAxis[lo])
			speed := t.Cells[lo][j].Speed + frac*(t.Cells[hi][j].Speed-t.Cells[lo][j].Speed)
			t.Cells[i][j] = Cell{Speed: round2(speed), Source: SourceInterpolated}
		}
	}
}

// TargetSpeed looks up the target boat speed for the given true wind angle
// and speed, using the nearest non-empty cell at or below the request on
// both axes. Returns 0, false when the table has no data there. The angle
// is folded to [0,180] first.
func (t Table) TargetSpeed(twa, tws float64) (float64, bool) {
	if t.IsZero() {
		return 0, false
	}
	twa = domain.FoldTWA(twa)

	i := lowerIndex(t.WindAxis, tws)
	j := lowerIndex(t.AngleAxis, twa)
	if i < 0 || j < 0 {
		return 0, false
	}
	if c := t.Cells[i][j]; !c.Empty() {
		return c.Speed, true
	}
	return 0, false
}

// lowerIndex returns the index of the greatest axis value <= v, or -1.
func lowerIndex(axis []float64, v float64) int {
	i := sort.SearchFloat64s(axis, v+1e-9) - 1
	if i < 0 {
		return -1
	}
	return i
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
