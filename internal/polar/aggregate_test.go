package polar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sailpolar/polar-service/internal/domain"
)

func sample(tws, twa, bsp float64) domain.Sample {
	return domain.Sample{TWS: tws, TWA: twa, BSP: bsp}
}

// testBins returns bins that trust single-sample cells, so small fixtures
// produce cells without padding.
func testBins() BinConfig {
	cfg := DefaultBinConfig()
	cfg.MinCellCount = 1
	cfg.MinTotal = 1
	return cfg
}

func TestAggregator_Key(t *testing.T) {
	a := NewAggregator(testBins()) // 2 kt / 5 degree bins

	tests := []struct {
		name string
		in   domain.Sample
		want BucketKey
	}{
		{"mid bin", sample(10.9, 62, 6), BucketKey{Wind: 5, Angle: 12}},
		{"lower edge", sample(10, 60, 6), BucketKey{Wind: 5, Angle: 12}},
		{"just below edge", sample(9.9, 59.9, 6), BucketKey{Wind: 4, Angle: 11}},
		{"origin", sample(0.5, 2, 6), BucketKey{Wind: 0, Angle: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.Key(tt.in))
		})
	}
}

func TestAggregator_BucketsShareCell(t *testing.T) {
	// 60 and 62 degrees at 10 kt fall in the same 5-degree bin; 121 degrees
	// lands in its own. The shared cell keeps the faster reading.
	a := NewAggregator(testBins())
	a.AddAll([]domain.Sample{
		sample(10, 60, 6.0),
		sample(10, 62, 6.5),
		sample(10, 121, 7.0),
	})
	require.Equal(t, 3, a.Total())

	table, err := a.Build(time.Now())
	require.NoError(t, err)

	assert.Equal(t, []float64{10}, table.WindAxis)
	assert.Equal(t, []float64{60, 120}, table.AngleAxis)

	beam, ok := table.TargetSpeed(60, 10)
	require.True(t, ok)
	assert.Equal(t, 6.5, beam)

	run, ok := table.TargetSpeed(121, 10)
	require.True(t, ok)
	assert.Equal(t, 7.0, run)
}

func TestAggregator_Policies(t *testing.T) {
	// Ten readings 1..10 kt in a single cell.
	feed := func(cfg BinConfig) *Aggregator {
		a := NewAggregator(cfg)
		for v := 1; v <= 10; v++ {
			a.Add(sample(10, 60, float64(v)))
		}
		return a
	}

	t.Run("max", func(t *testing.T) {
		cfg := testBins()
		cfg.Policy = PolicyMax
		table, err := feed(cfg).Build(time.Now())
		require.NoError(t, err)
		speed, ok := table.TargetSpeed(60, 10)
		require.True(t, ok)
		assert.Equal(t, 10.0, speed)
	})

	t.Run("p90", func(t *testing.T) {
		cfg := testBins()
		cfg.Policy = PolicyP90
		table, err := feed(cfg).Build(time.Now())
		require.NoError(t, err)
		speed, ok := table.TargetSpeed(60, 10)
		require.True(t, ok)
		assert.InDelta(t, 9.1, speed, 1e-9)
	})

	t.Run("topk", func(t *testing.T) {
		cfg := testBins()
		cfg.Policy = PolicyTopKMean
		table, err := feed(cfg).Build(time.Now())
		require.NoError(t, err)
		speed, ok := table.TargetSpeed(60, 10)
		require.True(t, ok)
		assert.Equal(t, 8.0, speed, "mean of the five fastest")
	})
}

func TestAggregator_TopKBoundedRetention(t *testing.T) {
	cfg := testBins()
	cfg.Policy = PolicyTopKMean

	a := NewAggregator(cfg)
	for v := 1; v <= 100; v++ {
		a.Add(sample(10, 60, float64(v)))
	}
	a.Add(sample(10, 60, 97.5))

	key := BucketKey{Wind: 5, Angle: 12}
	require.Len(t, a.cells[key].speeds, topK, "retention stays constant however many samples arrive")
	assert.Equal(t, []float64{100, 99, 98, 97.5, 97}, a.cells[key].speeds)
	assert.Equal(t, 101, a.cells[key].count)

	table, err := a.Build(time.Now())
	require.NoError(t, err)
	speed, ok := table.TargetSpeed(60, 10)
	require.True(t, ok)
	assert.InDelta(t, 98.3, speed, 1e-9)
}

func TestAggregator_MinCellCount(t *testing.T) {
	cfg := testBins()
	cfg.MinCellCount = 3

	a := NewAggregator(cfg)
	a.AddAll([]domain.Sample{
		sample(10, 60, 6.0),
		sample(10, 61, 6.2), // two samples: below the threshold
		sample(12, 90, 7.0),
		sample(12, 91, 7.1),
		sample(12, 92, 7.2), // three samples: trusted
	})

	table, err := a.Build(time.Now())
	require.NoError(t, err)

	_, ok := table.TargetSpeed(60, 10)
	assert.False(t, ok, "thin cell must stay empty")

	speed, ok := table.TargetSpeed(90, 12)
	require.True(t, ok)
	assert.Equal(t, 7.2, speed)
}

func TestAggregator_BuildInsufficient(t *testing.T) {
	cfg := testBins()
	cfg.MinCellCount = 3

	a := NewAggregator(cfg)
	a.Add(sample(10, 60, 6.0))

	_, err := a.Build(time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInsufficientData)
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    TargetPolicy
		wantErr bool
	}{
		{"max", PolicyMax, false},
		{"", PolicyMax, false},
		{"p90", PolicyP90, false},
		{"topk", PolicyTopKMean, false},
		{"median", PolicyMax, true},
	}
	for _, tt := range tests {
		t.Run("policy "+tt.in, func(t *testing.T) {
			got, err := ParsePolicy(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBinConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultBinConfig().Validate())

	bad := DefaultBinConfig()
	bad.WindBinSize = 0
	assert.Error(t, bad.Validate())

	bad = DefaultBinConfig()
	bad.AngleBinSize = -5
	assert.Error(t, bad.Validate())

	bad = DefaultBinConfig()
	bad.MinCellCount = 0
	assert.Error(t, bad.Validate())
}
