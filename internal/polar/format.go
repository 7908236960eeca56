package polar

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// WriteExpedition serializes a table in Expedition polar text format:
//
//	!BoatName%
//	6 45 4.81 52 5.2 60 5.44 ...
//	8 45 5.32 52 5.9 ...
//
// One line per wind speed, then alternating angle / target-speed pairs.
// Empty cells are simply absent, which is how routing software expects
// sparse polars.
func WriteExpedition(w io.Writer, t Table, boatName string) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "!%s%%\n", boatName); err != nil {
		return err
	}

	for i, tws := range t.WindAxis {
		var fields []string
		for j, twa := range t.AngleAxis {
			c := t.Cells[i][j]
			if c.Empty() {
				continue
			}
			fields = append(fields,
				formatFloat(twa),
				formatFloat(round2(c.Speed)),
			)
		}
		if len(fields) == 0 {
			continue
		}
		if _, err := fmt.Fprintf(bw, "%s %s\n", formatFloat(tws), strings.Join(fields, " ")); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadExpedition parses an Expedition polar file back into a Table, e.g.
// to load a boat's prior version before a progressive merge. Loaded cells
// carry no sample counts; they act as the standing envelope a new
// generation must beat.
func ReadExpedition(r io.Reader) (Table, error) {
	type point struct {
		tws, twa, speed float64
	}
	var points []point

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "!") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 || len(fields)%2 == 0 {
			return Table{}, fmt.Errorf("polar line %d: want wind speed plus angle/speed pairs, got %d fields", lineNo, len(fields))
		}
		tws, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return Table{}, fmt.Errorf("polar line %d: bad wind speed %q", lineNo, fields[0])
		}
		for k := 1; k+1 < len(fields); k += 2 {
			twa, err := strconv.ParseFloat(fields[k], 64)
			if err != nil {
				return Table{}, fmt.Errorf("polar line %d: bad angle %q", lineNo, fields[k])
			}
			speed, err := strconv.ParseFloat(fields[k+1], 64)
			if err != nil {
				return Table{}, fmt.Errorf("polar line %d: bad speed %q", lineNo, fields[k+1])
			}
			points = append(points, point{tws: tws, twa: twa, speed: speed})
		}
	}
	if err := scanner.Err(); err != nil {
		return Table{}, fmt.Errorf("read polar: %w", err)
	}
	if len(points) == 0 {
		return Table{}, nil
	}

	windSet := make(map[float64]struct{})
	angleSet := make(map[float64]struct{})
	for _, p := range points {
		windSet[p.tws] = struct{}{}
		angleSet[p.twa] = struct{}{}
	}

	t := Table{
		WindAxis:  sortedKeys(windSet),
		AngleAxis: sortedKeys(angleSet),
	}
	t.Cells = make([][]Cell, len(t.WindAxis))
	for i := range t.Cells {
		t.Cells[i] = make([]Cell, len(t.AngleAxis))
	}
	for _, p := range points {
		i := axisIndex(t.WindAxis, p.tws)
		j := axisIndex(t.AngleAxis, p.twa)
		t.Cells[i][j] = Cell{Speed: p.speed, Source: SourceObserved}
	}
	return t, nil
}

func sortedKeys(set map[float64]struct{}) []float64 {
	out := make([]float64, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Float64s(out)
	return out
}

// formatFloat renders axis values and speeds without trailing zeros,
// matching the compact style routing tools emit.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
