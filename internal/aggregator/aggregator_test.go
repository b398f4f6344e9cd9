package aggregator

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/abdoElHodaky/lobcore/internal/diagnostics"
	"github.com/abdoElHodaky/lobcore/internal/wal"
	"github.com/abdoElHodaky/lobcore/pkg/lobtypes"
)

func sec(n float64) lobtypes.Ts { return lobtypes.Ts(n * 1e9) }

func TestNewDropsZeroWidthTimeframes(t *testing.T) {
	a := New(Config{Timeframes: []uint64{0, uint64(1e9)}, RingCapacity: 10}, nil)

	require.NoError(t, a.ProcessTrade(1, sec(0.1), lobtypes.PxFromFloat(100), lobtypes.QtyFromFloat(10), true))

	_, ok := a.GetCurrentCandle(1, uint64(1e9))
	require.True(t, ok)
	_, ok = a.GetCurrentCandle(1, 0)
	require.False(t, ok)
}

func TestProcessTradeSealsOnBucketCrossing(t *testing.T) {
	a := New(Config{Timeframes: []uint64{uint64(1e9)}, RingCapacity: 10}, nil)

	require.NoError(t, a.ProcessTrade(1, sec(0.1), lobtypes.PxFromFloat(100), lobtypes.QtyFromFloat(10), true))
	require.NoError(t, a.ProcessTrade(1, sec(0.5), lobtypes.PxFromFloat(102), lobtypes.QtyFromFloat(5), false))
	require.NoError(t, a.ProcessTrade(1, sec(0.9), lobtypes.PxFromFloat(99), lobtypes.QtyFromFloat(3), true))

	cur, ok := a.GetCurrentCandle(1, uint64(1e9))
	require.True(t, ok)
	require.Equal(t, lobtypes.PxFromFloat(100), cur.Open)
	require.Equal(t, lobtypes.PxFromFloat(102), cur.High)
	require.Equal(t, lobtypes.PxFromFloat(99), cur.Low)
	require.Equal(t, lobtypes.PxFromFloat(99), cur.Close)
	require.Equal(t, uint32(3), cur.Trades)
	require.Equal(t, lobtypes.QtyFromFloat(18), cur.Volume)

	require.NoError(t, a.ProcessTrade(1, sec(1.1), lobtypes.PxFromFloat(101), lobtypes.QtyFromFloat(1), true))

	sealed := a.GetCandles(1, uint64(1e9), 10)
	require.Len(t, sealed, 1)
	require.Equal(t, lobtypes.PxFromFloat(99), sealed[0].Close)
	require.NotEmpty(t, sealed[0].SequenceID)

	cur2, ok := a.GetCurrentCandle(1, uint64(1e9))
	require.True(t, ok)
	require.Equal(t, lobtypes.PxFromFloat(101), cur2.Open)
}

func TestRingEvictsOldestWhenFull(t *testing.T) {
	a := New(Config{Timeframes: []uint64{uint64(1e9)}, RingCapacity: 2}, nil)
	for i := 0; i < 5; i++ {
		require.NoError(t, a.ProcessTrade(1, lobtypes.Ts(i)*1e9, lobtypes.PxFromFloat(float64(100+i)), lobtypes.QtyFromFloat(1), true))
	}
	sealed := a.GetCandles(1, uint64(1e9), 10)
	require.Len(t, sealed, 2)
	require.Equal(t, lobtypes.PxFromFloat(102), sealed[0].Open)
	require.Equal(t, lobtypes.PxFromFloat(103), sealed[1].Open)
}

func TestMultiTimeframeFanOut(t *testing.T) {
	a := New(Config{Timeframes: []uint64{uint64(1e9), uint64(5e9)}}, nil)
	require.NoError(t, a.ProcessTrade(1, sec(0.5), lobtypes.PxFromFloat(100), lobtypes.QtyFromFloat(1), true))
	require.NoError(t, a.ProcessTrade(1, sec(1.5), lobtypes.PxFromFloat(101), lobtypes.QtyFromFloat(1), true))

	oneSec, ok := a.GetCurrentCandle(1, uint64(1e9))
	require.True(t, ok)
	require.Equal(t, lobtypes.PxFromFloat(101), oneSec.Open)

	fiveSec, ok := a.GetCurrentCandle(1, uint64(5e9))
	require.True(t, ok)
	require.Equal(t, lobtypes.PxFromFloat(100), fiveSec.Open)
	require.Equal(t, uint32(2), fiveSec.Trades)
}

func TestProcessTradePersistsTickWhenWALConfigured(t *testing.T) {
	dir := t.TempDir()
	mgr, err := wal.Open(wal.Config{Dir: dir}, nil, nil)
	require.NoError(t, err)
	defer mgr.Close()

	a := New(Config{Timeframes: []uint64{uint64(1e9)}, WAL: mgr}, nil)
	require.NoError(t, a.ProcessTrade(1, sec(0.1), lobtypes.PxFromFloat(100), lobtypes.QtyFromFloat(10), true))
	require.NoError(t, mgr.Flush())

	stats, err := mgr.Stats()
	require.NoError(t, err)
	require.EqualValues(t, 1, stats.TotalRecords)
}

func TestDiagnosticsCountsSealedCandles(t *testing.T) {
	reg := diagnostics.NewRegistry(prometheus.NewRegistry())
	a := New(Config{Timeframes: []uint64{uint64(1e9)}, Diagnostics: reg}, nil)

	require.NoError(t, a.ProcessTrade(1, sec(0.1), lobtypes.PxFromFloat(100), lobtypes.QtyFromFloat(1), true))
	require.NoError(t, a.ProcessTrade(1, sec(1.1), lobtypes.PxFromFloat(101), lobtypes.QtyFromFloat(1), true))

	m := &dto.Metric{}
	require.NoError(t, reg.CandlesSealedTotal.WithLabelValues("1", "1000000000").Write(m))
	require.Equal(t, float64(1), m.GetCounter().GetValue())
}

func TestSnapshotIncludesOpenAndSealed(t *testing.T) {
	a := New(Config{Timeframes: []uint64{uint64(1e9)}}, nil)
	require.NoError(t, a.ProcessTrade(1, sec(0.1), lobtypes.PxFromFloat(100), lobtypes.QtyFromFloat(1), true))
	require.NoError(t, a.ProcessTrade(1, sec(1.1), lobtypes.PxFromFloat(101), lobtypes.QtyFromFloat(1), true))

	snap := a.Snapshot()
	candles := snap[1][uint64(1e9)]
	require.Len(t, candles, 2)
}
