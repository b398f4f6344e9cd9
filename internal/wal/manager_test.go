package wal

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/abdoElHodaky/lobcore/pkg/coreerrors"
	"github.com/abdoElHodaky/lobcore/pkg/events"
	"github.com/abdoElHodaky/lobcore/pkg/lobtypes"
)

func tickAt(ts uint64) events.WalEvent {
	return events.NewTick(events.TickEvent{Ts: lobtypes.Ts(ts), Symbol: 1, Price: 1000000, Qty: 100, Venue: "TEST"})
}

func drain(t *testing.T, s *Stream) []events.WalEvent {
	t.Helper()
	var got []events.WalEvent
	for {
		e, err := s.Next()
		if err == io.EOF {
			return got
		}
		require.NoError(t, err)
		got = append(got, e)
	}
}

// S4 — WAL round-trip.
func TestScenarioS4RoundTrip(t *testing.T) {
	dir := t.TempDir()
	mgr, err := Open(Config{Dir: dir, MaxSegmentBytes: 1024}, nil, nil)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, mgr.Append(tickAt(uint64(i+1))))
	}
	require.NoError(t, mgr.Flush())
	require.NoError(t, mgr.Close())

	mgr2, err := Open(Config{Dir: dir, MaxSegmentBytes: 1024}, nil, nil)
	require.NoError(t, err)
	stream, err := mgr2.Stream(0, false)
	require.NoError(t, err)

	got := drain(t, stream)
	require.Len(t, got, 10)
	for i, e := range got {
		require.Equal(t, uint64(i+1), uint64(e.Timestamp()))
	}
}

// S5 — WAL rotation.
func TestScenarioS5Rotation(t *testing.T) {
	dir := t.TempDir()
	mgr, err := Open(Config{Dir: dir, MaxSegmentBytes: 256}, nil, nil)
	require.NoError(t, err)

	venue := make([]byte, 16)
	for i := range venue {
		venue[i] = 'V'
	}
	n := 0
	for {
		stats, err := mgr.Stats()
		require.NoError(t, err)
		if stats.SegmentCount >= 3 && n > 0 {
			break
		}
		require.NoError(t, mgr.Append(events.NewTick(events.TickEvent{
			Ts: lobtypes.Ts(n + 1), Symbol: 1, Price: 1000000, Qty: 100, Venue: string(venue),
		})))
		n++
		if n > 200 {
			t.Fatal("rotation never reached 3 segments")
		}
	}
	require.NoError(t, mgr.Flush())

	stats, err := mgr.Stats()
	require.NoError(t, err)
	require.GreaterOrEqual(t, stats.SegmentCount, 3)

	stream, err := mgr.Stream(0, false)
	require.NoError(t, err)
	got := drain(t, stream)
	require.Len(t, got, n)
	for i, e := range got {
		require.Equal(t, uint64(i+1), uint64(e.Timestamp()))
	}
}

// S6 — recovery from torn write.
func TestScenarioS6RecoveryFromTornWrite(t *testing.T) {
	dir := t.TempDir()
	mgr, err := Open(Config{Dir: dir, MaxSegmentBytes: 1024}, nil, nil)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		require.NoError(t, mgr.Append(tickAt(uint64(i+1))))
	}
	require.NoError(t, mgr.Flush())
	require.NoError(t, mgr.Close())

	path := segmentPath(dir, 0)
	info, err := os.Stat(path)
	require.NoError(t, err)
	fullSize := info.Size()

	require.NoError(t, os.Truncate(path, fullSize-5))

	mgr2, err := Open(Config{Dir: dir, MaxSegmentBytes: 1024}, nil, nil)
	require.NoError(t, err)

	stream, err := mgr2.Stream(0, false)
	require.NoError(t, err)
	got := drain(t, stream)
	require.Len(t, got, 9)

	info2, err := os.Stat(path)
	require.NoError(t, err)

	// Figure out the offset of the end of the 9th record directly.
	r, err := openSegmentForRead(path)
	require.NoError(t, err)
	var offset int64
	for i := 0; i < 9; i++ {
		_, err := r.readNext()
		require.NoError(t, err)
		offset = r.offset
	}
	r.close()

	require.Equal(t, offset, info2.Size())
}

func TestCRCMismatchSurfacesAsSegmentCorrupted(t *testing.T) {
	dir := t.TempDir()
	mgr, err := Open(Config{Dir: dir, MaxSegmentBytes: 1024}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, mgr.Append(tickAt(1)))
	require.NoError(t, mgr.Append(tickAt(2)))
	require.NoError(t, mgr.Flush())
	require.NoError(t, mgr.Close())

	path := segmentPath(dir, 0)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	// Flip a byte inside the first record's payload region.
	data[headerSize+9] ^= 0xFF
	require.NoError(t, os.WriteFile(path, data, 0o644))

	r, err := openSegmentForRead(path)
	require.NoError(t, err)
	defer r.close()
	_, err = r.readNext()
	require.Error(t, err)
	require.True(t, coreerrors.Is(err, coreerrors.SegmentCorrupted))
}

func TestOpenCreatesDirAndFreshSegment(t *testing.T) {
	dir := t.TempDir() + "/nested/wal"
	mgr, err := Open(Config{Dir: dir}, nil, nil)
	require.NoError(t, err)
	stats, err := mgr.Stats()
	require.NoError(t, err)
	require.Equal(t, 1, stats.SegmentCount)
	require.Equal(t, int64(DefaultMaxSegmentBytes), int64(mgr.cfg.MaxSegmentBytes))
}

func TestFlushThrottledSkipsBeyondBurst(t *testing.T) {
	dir := t.TempDir()
	mgr, err := Open(Config{Dir: dir, FlushRateLimit: 1, FlushBurst: 1}, nil, nil)
	require.NoError(t, err)
	defer mgr.Close()

	require.NoError(t, mgr.Append(tickAt(1)))
	require.NoError(t, mgr.FlushThrottled())

	require.NoError(t, mgr.Append(tickAt(2)))
	require.NoError(t, mgr.FlushThrottled())

	stats, err := mgr.Stats()
	require.NoError(t, err)
	require.EqualValues(t, 2, stats.TotalRecords)
}

func TestFlushThrottledUnconfiguredAlwaysFlushes(t *testing.T) {
	dir := t.TempDir()
	mgr, err := Open(Config{Dir: dir}, nil, nil)
	require.NoError(t, err)
	defer mgr.Close()

	require.NoError(t, mgr.Append(tickAt(1)))
	require.NoError(t, mgr.FlushThrottled())
	require.NoError(t, mgr.FlushThrottled())
}
