package domain

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

// Expedition channel numbers for the instruments the polar engine needs.
const (
	chanUTC = 0 // fractional days since the Excel epoch
	chanBSP = 1
	chanTWS = 2
	chanTWA = 3
	chanSOG = 4
)

// minPairsPerLine guards against preamble rows that happen to contain commas:
// a real data line carries at least five channel,value pairs.
const minPairsPerLine = 5

// excelEpoch is day zero of the Expedition Utc channel.
var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// maxLineBytes bounds how much of a single line is buffered; Expedition
// lines run a few hundred bytes even with every channel logged. Longer
// lines are skipped as malformed, never fatal to the file.
const maxLineBytes = 64 * 1024

// ParseLog reads an Expedition log and returns the samples it contains.
// Malformed lines are skipped and counted in the stats; the only error
// condition is a failed read of the underlying stream.
func ParseLog(r io.Reader) ([]Sample, ParseStats, error) {
	var (
		samples []Sample
		stats   ParseStats
	)

	br := bufio.NewReaderSize(r, 4096)
	for {
		line, tooLong, err := readLine(br)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, stats, fmt.Errorf("read log: %w", err)
		}

		if tooLong {
			// An oversized line is malformed like any other: skip and count.
			stats.TotalLines++
			stats.Skipped++
		} else if line := strings.TrimSpace(line); line != "" {
			stats.TotalLines++
			if strings.HasPrefix(line, "!") {
				stats.Skipped++
			} else if sample, perr := ParseLine(line); perr != nil {
				stats.Skipped++
			} else {
				samples = append(samples, sample)
				stats.Parsed++
			}
		}

		if errors.Is(err, io.EOF) {
			return samples, stats, nil
		}
	}
}

// readLine reads the next newline-terminated line. A line longer than
// maxLineBytes is discarded and reported as tooLong instead of an error.
// err is io.EOF alongside the final line.
func readLine(br *bufio.Reader) (line string, tooLong bool, err error) {
	var buf []byte
	for {
		chunk, err := br.ReadSlice('\n')
		if len(buf)+len(chunk) > maxLineBytes {
			for err == bufio.ErrBufferFull {
				_, err = br.ReadSlice('\n')
			}
			return "", true, err
		}
		buf = append(buf, chunk...)
		if err != bufio.ErrBufferFull {
			return string(buf), false, err
		}
	}
}

// ParseLine decodes one Expedition data line into a Sample.
// It fails when the line is not channel,value formatted or when wind speed,
// wind angle, or a usable boat speed is missing.
func ParseLine(line string) (Sample, error) {
	channels, err := decodeChannels(line)
	if err != nil {
		return Sample{}, err
	}

	tws, okTWS := channels[chanTWS]
	twa, okTWA := channels[chanTWA]
	if !okTWS || !okTWA {
		return Sample{}, fmt.Errorf("line missing wind channels (tws=%v twa=%v)", okTWS, okTWA)
	}

	// Prefer boat speed through water; fall back to SOG when the paddle
	// wheel reads zero or the channel is absent.
	bsp, okBSP := channels[chanBSP]
	if !okBSP || bsp <= 0 {
		bsp, okBSP = channels[chanSOG]
	}
	if !okBSP || bsp <= 0 {
		return Sample{}, fmt.Errorf("line has no usable boat speed")
	}

	sample := Sample{
		TWS: tws,
		TWA: FoldTWA(twa),
		BSP: bsp,
	}
	if days, ok := channels[chanUTC]; ok && days > 0 {
		sample.At = timeFromExcelDays(days)
	}
	return sample, nil
}

// decodeChannels splits a data line into its channel,value pairs.
// Pairs with a non-integer channel or non-numeric value are dropped
// individually; the line as a whole fails only when too few pairs survive.
func decodeChannels(line string) (map[int]float64, error) {
	parts := strings.Split(line, ",")
	if len(parts) < minPairsPerLine*2 {
		return nil, fmt.Errorf("line has %d fields, need at least %d", len(parts), minPairsPerLine*2)
	}

	channels := make(map[int]float64, len(parts)/2)
	for i := 0; i+1 < len(parts); i += 2 {
		ch, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[i+1]), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		channels[ch] = v
	}

	if len(channels) < minPairsPerLine {
		return nil, fmt.Errorf("line decoded only %d channels, need at least %d", len(channels), minPairsPerLine)
	}
	return channels, nil
}

// FoldTWA normalizes a true wind angle to [0, 180], treating port and
// starboard tacks as symmetric.
func FoldTWA(twa float64) float64 {
	twa = math.Abs(math.Mod(twa, 360))
	if twa > 180 {
		twa = 360 - twa
	}
	return twa
}

// timeFromExcelDays converts an Expedition Utc value (fractional days since
// 1899-12-30) into a time.Time, truncated to the second.
func timeFromExcelDays(days float64) time.Time {
	secs := days * 24 * 3600
	return excelEpoch.Add(time.Duration(secs) * time.Second)
}
