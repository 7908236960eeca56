// Command polargen generates a polar table offline from Expedition log
// files, without the service or its stores. Useful for trying bin settings
// against a season of logs before uploading anything.
//
// Usage:
//
//	go run ./cmd/polargen -boat Aurelius -out aurelius.pol logs/
//	go run ./cmd/polargen -policy p90 -gap-fill -prior old.pol log-2025Mar14.csv
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/pgzip"

	"github.com/sailpolar/polar-service/internal/domain"
	"github.com/sailpolar/polar-service/internal/polar"
)

func main() {
	var (
		boat          = flag.String("boat", "Boat", "boat name written into the polar header")
		out           = flag.String("out", "", "output polar file (default stdout)")
		prior         = flag.String("prior", "", "existing polar file to progressively merge into")
		windBin       = flag.Float64("wind-bin", 2, "wind-speed bin size, knots")
		angleBin      = flag.Float64("angle-bin", 5, "wind-angle bin size, degrees")
		minCell       = flag.Int("min-cell", 3, "minimum samples per cell")
		minTotal      = flag.Int("min-total", 100, "minimum retained samples overall")
		policy        = flag.String("policy", "max", "cell target policy: max, p90, or topk")
		gapFill       = flag.Bool("gap-fill", false, "interpolate empty cells along the wind axis")
		maxTWS        = flag.Float64("max-tws", 30, "maximum plausible true wind speed, knots")
		maxBSP        = flag.Float64("max-bsp", 25, "maximum plausible boat speed, knots")
		outlierWindow = flag.Int("outlier-window", 9, "rolling-median window for outlier rejection (0 disables)")
		outlierRatio  = flag.Float64("outlier-ratio", 0.3, "maximum relative deviation from the window median")
	)
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: polargen [flags] <log file or directory>...")
		flag.PrintDefaults()
		os.Exit(2)
	}

	targetPolicy, err := polar.ParsePolicy(*policy)
	if err != nil {
		fatal(err)
	}
	bins := polar.BinConfig{
		WindBinSize:  *windBin,
		AngleBinSize: *angleBin,
		MinCellCount: *minCell,
		MinTotal:     *minTotal,
		Policy:       targetPolicy,
		GapFill:      *gapFill,
	}
	if err := bins.Validate(); err != nil {
		fatal(err)
	}

	filter := domain.DefaultFilterConfig()
	filter.MaxTWS = *maxTWS
	filter.MaxBSP = *maxBSP
	filter.OutlierWindow = *outlierWindow
	filter.OutlierRatio = *outlierRatio

	files, err := collectLogFiles(flag.Args())
	if err != nil {
		fatal(err)
	}
	if len(files) == 0 {
		fatal(fmt.Errorf("no .csv or .csv.gz files found in %v", flag.Args()))
	}

	summary := domain.Summary{Boat: *boat, Files: len(files)}
	agg := polar.NewAggregator(bins)

	for _, path := range files {
		samples, parseStats, err := readLogFile(path)
		if err != nil {
			fatal(fmt.Errorf("%s: %w", path, err))
		}
		accepted, filterStats := domain.Filter(samples, filter)

		summary.Parse.Add(parseStats)
		summary.Filter.Input += filterStats.Input
		summary.Filter.Accepted += filterStats.Accepted
		summary.Filter.Rejected += filterStats.Rejected
		summary.Filter.Outliers += filterStats.Outliers

		agg.AddAll(accepted)
		fmt.Fprintf(os.Stderr, "%s: %d lines, %d samples retained\n", path, parseStats.TotalLines, filterStats.Accepted)
	}

	if agg.Total() == 0 {
		fatal(fmt.Errorf("%w across %d files", domain.ErrNoValidData, len(files)))
	}
	if agg.Total() < bins.MinTotal {
		fatal(fmt.Errorf("%w: %d retained samples, need %d", domain.ErrInsufficientData, agg.Total(), bins.MinTotal))
	}

	table, err := agg.Build(time.Now().UTC())
	if err != nil {
		fatal(err)
	}
	table.Version = 1

	if *prior != "" {
		prev, err := readPolarFile(*prior)
		if err != nil {
			fatal(fmt.Errorf("prior polar %s: %w", *prior, err))
		}
		table = polar.Merge(prev, table, bins.MinCellCount)
	}

	summary.GeneratedAt = table.GeneratedAt
	summary.Version = table.Version
	summary.CellsFilled, summary.CellsInterpolated = table.CellCount()

	dst := os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			fatal(err)
		}
		defer f.Close()
		dst = f
	}
	if err := polar.WriteExpedition(dst, table, *boat); err != nil {
		fatal(err)
	}

	enc := json.NewEncoder(os.Stderr)
	enc.SetIndent("", "  ")
	enc.Encode(summary) //nolint:errcheck // diagnostics only
}

// collectLogFiles expands arguments into log file paths, walking
// directories for .csv and .csv.gz entries.
func collectLogFiles(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			lower := strings.ToLower(path)
			if strings.HasSuffix(lower, ".csv") || strings.HasSuffix(lower, ".csv.gz") {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

func readLogFile(path string) ([]domain.Sample, domain.ParseStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, domain.ParseStats{}, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, domain.ParseStats{}, err
		}
		defer gz.Close()
		r = gz
	}
	return domain.ParseLog(r)
}

func readPolarFile(path string) (polar.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return polar.Table{}, err
	}
	defer f.Close()
	return polar.ReadExpedition(f)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "polargen:", err)
	os.Exit(1)
}
