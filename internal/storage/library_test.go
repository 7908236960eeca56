package storage

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sailpolar/polar-service/internal/domain"
	"github.com/sailpolar/polar-service/internal/polar"
)

func newTestLibrary(t *testing.T) *Library {
	t.Helper()
	return NewLibrary(newTestStore(t))
}

// smallTable builds a one-cell polar for persistence tests.
func smallTable(speed float64) polar.Table {
	return polar.Table{
		WindAxis:  []float64{10},
		AngleAxis: []float64{60},
		Cells: [][]polar.Cell{
			{{Speed: speed, Samples: 5, Source: polar.SourceObserved}},
		},
		GeneratedAt: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}
}

func TestValidBoatID(t *testing.T) {
	tests := []struct {
		id string
		ok bool
	}{
		{"aurelius", true},
		{"Vega-2", true},
		{"j._105", true},
		{"", false},
		{"-leading-dash", false},
		{"has space", false},
		{"slash/boat", false},
		{strings.Repeat("a", 64), true},
		{strings.Repeat("a", 65), false},
	}
	for _, tt := range tests {
		t.Run("id "+tt.id, func(t *testing.T) {
			assert.Equal(t, tt.ok, ValidBoatID(tt.id))
		})
	}
}

func TestLibrary_AddLog(t *testing.T) {
	lib := newTestLibrary(t)
	ctx := context.Background()

	key, err := lib.AddLog(ctx, "aurelius", "race1.csv", strings.NewReader("data"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "boats/aurelius/logs/"))
	assert.True(t, strings.HasSuffix(key, "-race1.csv"))

	rc, err := lib.OpenLog(ctx, key)
	require.NoError(t, err)
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	assert.Equal(t, "data", string(data))
}

func TestLibrary_AddLogSanitizesFilename(t *testing.T) {
	lib := newTestLibrary(t)
	ctx := context.Background()

	key, err := lib.AddLog(ctx, "aurelius", "../../evil/../race1.csv", strings.NewReader("data"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(key, "-race1.csv"))
	assert.NotContains(t, key, "..")

	key, err = lib.AddLog(ctx, "aurelius", `C:\Users\skipper\race2.csv`, strings.NewReader("data"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(key, "-race2.csv"))
}

func TestLibrary_AddLogSameNameTwice(t *testing.T) {
	lib := newTestLibrary(t)
	ctx := context.Background()

	k1, err := lib.AddLog(ctx, "aurelius", "race.csv", strings.NewReader("one"))
	require.NoError(t, err)
	k2, err := lib.AddLog(ctx, "aurelius", "race.csv", strings.NewReader("two"))
	require.NoError(t, err)
	assert.NotEqual(t, k1, k2, "uploads must never clobber each other")

	keys, err := lib.ListLogs(ctx, "aurelius")
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}

func TestLibrary_InvalidBoat(t *testing.T) {
	lib := newTestLibrary(t)
	ctx := context.Background()

	_, err := lib.AddLog(ctx, "bad/boat", "race.csv", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrInvalidBoat)

	_, err = lib.ListLogs(ctx, "bad/boat")
	assert.ErrorIs(t, err, ErrInvalidBoat)

	err = lib.SavePolar(ctx, "bad/boat", 1, smallTable(6.5), domain.Summary{})
	assert.ErrorIs(t, err, ErrInvalidBoat)

	_, _, err = lib.LatestPolar(ctx, "bad/boat")
	assert.ErrorIs(t, err, ErrInvalidBoat)
}

func TestLibrary_SaveAndLatestPolar(t *testing.T) {
	lib := newTestLibrary(t)
	ctx := context.Background()

	table, version, err := lib.LatestPolar(ctx, "aurelius")
	require.NoError(t, err)
	assert.True(t, table.IsZero())
	assert.Equal(t, 0, version, "a boat with no polars has version zero")

	summary := domain.Summary{Boat: "aurelius", Version: 1, CellsFilled: 1}
	require.NoError(t, lib.SavePolar(ctx, "aurelius", 1, smallTable(6.5), summary))

	table, version, err = lib.LatestPolar(ctx, "aurelius")
	require.NoError(t, err)
	assert.Equal(t, 1, version)
	assert.Equal(t, 1, table.Version)

	speed, ok := table.TargetSpeed(60, 10)
	require.True(t, ok)
	assert.Equal(t, 6.5, speed)
}

func TestLibrary_LatestPicksHighestVersion(t *testing.T) {
	lib := newTestLibrary(t)
	ctx := context.Background()

	for v := 1; v <= 3; v++ {
		summary := domain.Summary{Boat: "aurelius", Version: v}
		require.NoError(t, lib.SavePolar(ctx, "aurelius", v, smallTable(6.0+float64(v)/10), summary))
	}

	table, version, err := lib.LatestPolar(ctx, "aurelius")
	require.NoError(t, err)
	assert.Equal(t, 3, version)

	speed, ok := table.TargetSpeed(60, 10)
	require.True(t, ok)
	assert.Equal(t, 6.3, speed)
}

func TestLibrary_ListPolars(t *testing.T) {
	lib := newTestLibrary(t)
	ctx := context.Background()

	summaries, err := lib.ListPolars(ctx, "aurelius")
	require.NoError(t, err)
	assert.Empty(t, summaries)

	for v := 1; v <= 3; v++ {
		summary := domain.Summary{Boat: "aurelius", Version: v, Files: v}
		require.NoError(t, lib.SavePolar(ctx, "aurelius", v, smallTable(6.5), summary))
	}

	summaries, err = lib.ListPolars(ctx, "aurelius")
	require.NoError(t, err)
	require.Len(t, summaries, 3)
	assert.Equal(t, 3, summaries[0].Version, "newest first")
	assert.Equal(t, 1, summaries[2].Version)
	assert.Equal(t, 3, summaries[0].Files, "sidecar fields round trip")
}

func TestLibrary_ListPolarsMissingSidecar(t *testing.T) {
	store := newTestStore(t)
	lib := NewLibrary(store)
	ctx := context.Background()

	require.NoError(t, lib.SavePolar(ctx, "aurelius", 1, smallTable(6.5),
		domain.Summary{Boat: "aurelius", Version: 1, Files: 2}))

	// A crash between the two puts leaves a version without its sidecar.
	var buf bytes.Buffer
	require.NoError(t, polar.WriteExpedition(&buf, smallTable(6.6), "aurelius"))
	require.NoError(t, store.Put(ctx, "boats/aurelius/polars/v0002.pol", &buf))

	summaries, err := lib.ListPolars(ctx, "aurelius")
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, 2, summaries[0].Version)
	assert.Zero(t, summaries[0].Files, "orphaned version lists with bare diagnostics")
	assert.Equal(t, 1, summaries[1].Version)
	assert.Equal(t, 2, summaries[1].Files)

	table, version, err := lib.LatestPolar(ctx, "aurelius")
	require.NoError(t, err)
	assert.Equal(t, 2, version)
	assert.False(t, table.IsZero())
}

func TestLibrary_OpenPolar(t *testing.T) {
	lib := newTestLibrary(t)
	ctx := context.Background()

	require.NoError(t, lib.SavePolar(ctx, "aurelius", 1, smallTable(6.5), domain.Summary{}))

	rc, err := lib.OpenPolar(ctx, "aurelius", 1)
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	text := string(data)
	assert.True(t, strings.HasPrefix(text, "!aurelius%\n"))
	assert.Contains(t, text, "10 60 6.5")

	_, err = lib.OpenPolar(ctx, "aurelius", 9)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLibrary_CheckReadiness(t *testing.T) {
	lib := newTestLibrary(t)
	assert.NoError(t, lib.CheckReadiness(context.Background()))
}
