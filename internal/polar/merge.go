package polar

import "sort"

// Merge folds a newly generated table into a boat's prior one,
// cell by cell on the union of both grids. A new cell replaces the prior
// value only when its sample count reaches minSamples and its speed is
// strictly higher; the performance envelope only grows, reflecting
// best-observed semantics. A zero prior is the first-generation case and
// yields next unchanged, so merge never fails on a missing prior.
//
// Merging a table with itself is idempotent. The operation is
// commutative in effect but not strictly associative when the sample
// threshold interacts with counts across three or more sessions; that is a
// documented approximation of "best observed so far", not a defect.
func Merge(prev, next Table, minSamples int) Table {
	if prev.IsZero() {
		return next
	}

	merged := Table{
		WindAxis:    unionAxis(prev.WindAxis, next.WindAxis),
		AngleAxis:   unionAxis(prev.AngleAxis, next.AngleAxis),
		GeneratedAt: next.GeneratedAt,
		Version:     next.Version,
	}
	merged.Cells = make([][]Cell, len(merged.WindAxis))
	for i := range merged.Cells {
		merged.Cells[i] = make([]Cell, len(merged.AngleAxis))
	}

	copyCells(&merged, prev)

	for i, w := range next.WindAxis {
		for j, a := range next.AngleAxis {
			newCell := next.Cells[i][j]
			if newCell.Empty() {
				continue
			}
			mi := axisIndex(merged.WindAxis, w)
			mj := axisIndex(merged.AngleAxis, a)
			old := merged.Cells[mi][mj]

			switch {
			case old.Empty():
				merged.Cells[mi][mj] = newCell
			case newCell.Samples >= minSamples && newCell.Speed > old.Speed:
				merged.Cells[mi][mj] = newCell
			}
		}
	}
	return merged
}

// copyCells places every non-empty cell of src onto dst's (larger) grid.
func copyCells(dst *Table, src Table) {
	for i, w := range src.WindAxis {
		for j, a := range src.AngleAxis {
			c := src.Cells[i][j]
			if c.Empty() {
				continue
			}
			dst.Cells[axisIndex(dst.WindAxis, w)][axisIndex(dst.AngleAxis, a)] = c
		}
	}
}

// unionAxis merges two strictly increasing axes into one.
func unionAxis(a, b []float64) []float64 {
	seen := make(map[float64]struct{}, len(a)+len(b))
	out := make([]float64, 0, len(a)+len(b))
	for _, axis := range [][]float64{a, b} {
		for _, v := range axis {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Float64s(out)
	return out
}
