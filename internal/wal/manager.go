package wal

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/abdoElHodaky/lobcore/internal/diagnostics"
	"github.com/abdoElHodaky/lobcore/pkg/coreerrors"
	"github.com/abdoElHodaky/lobcore/pkg/events"
)

// DefaultMaxSegmentBytes is applied when Config.MaxSegmentBytes is zero.
const DefaultMaxSegmentBytes = 128 << 20 // 128 MiB

// Config configures a Manager at construction.
type Config struct {
	Dir             string
	MaxSegmentBytes int64

	// FlushRateLimit caps how many FlushThrottled calls actually fsync
	// per second, smoothing bursts of many small events into fewer,
	// larger fsyncs. Zero disables throttling: FlushThrottled behaves
	// like Flush. FlushBurst sizes the token bucket; it defaults to 1
	// when FlushRateLimit is set but FlushBurst is zero.
	FlushRateLimit float64
	FlushBurst     int
}

// Manager owns a directory of WAL segments. Exactly one is active for
// append at any time; reads stream across all of them in index order.
// At most one appender exists per Manager (mutating methods require
// exclusive access; streaming is safe alongside it).
type Manager struct {
	cfg          Config
	active       *segmentWriter
	logger       *zap.Logger
	diag         *diagnostics.Registry
	flushLimiter *rate.Limiter
}

// Stats reports directory-level counters.
type Stats struct {
	SegmentCount int
	TotalBytes   int64
	TotalRecords int64
	ActiveBytes  int64
}

func segmentPath(dir string, index uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%010d.wal", index))
}

func listSegmentIndices(dir string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var indices []uint64
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".wal") {
			continue
		}
		base := strings.TrimSuffix(e.Name(), ".wal")
		idx, err := strconv.ParseUint(base, 10, 64)
		if err != nil {
			continue
		}
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })
	return indices, nil
}

// Open creates dir if absent, scans existing segments, and makes the
// highest-indexed one active if it has room, else opens index+1. On
// open, the active segment's tail is scanned and truncated to the last
// valid record boundary if the final record was torn.
func Open(cfg Config, logger *zap.Logger, diag *diagnostics.Registry) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxSegmentBytes <= 0 {
		cfg.MaxSegmentBytes = DefaultMaxSegmentBytes
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, coreerrors.Wrap(err, coreerrors.Io, "create wal dir")
	}

	indices, err := listSegmentIndices(cfg.Dir)
	if err != nil {
		return nil, coreerrors.Wrap(err, coreerrors.Io, "scan wal dir")
	}

	var index uint64
	if len(indices) == 0 {
		index = 0
	} else {
		last := indices[len(indices)-1]
		info, err := os.Stat(segmentPath(cfg.Dir, last))
		if err != nil {
			return nil, coreerrors.Wrap(err, coreerrors.Io, "stat latest segment")
		}
		if info.Size() < cfg.MaxSegmentBytes {
			index = last
		} else {
			if last == ^uint64(0) {
				return nil, coreerrors.New(coreerrors.Io, "wal segment index would overflow u64")
			}
			index = last + 1
		}
	}

	m := &Manager{cfg: cfg, logger: logger, diag: diag}
	if cfg.FlushRateLimit > 0 {
		burst := cfg.FlushBurst
		if burst <= 0 {
			burst = 1
		}
		m.flushLimiter = rate.NewLimiter(rate.Limit(cfg.FlushRateLimit), burst)
	}
	if err := m.openActive(index); err != nil {
		return nil, err
	}
	if err := m.recoverTail(); err != nil {
		return nil, err
	}
	if err := m.reportStats(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) reportStats() error {
	if m.diag == nil {
		return nil
	}
	stats, err := m.Stats()
	if err != nil {
		return err
	}
	m.diag.ObserveWalStats(stats.SegmentCount, stats.TotalBytes)
	return nil
}

func (m *Manager) openActive(index uint64) error {
	w, err := createSegment(segmentPath(m.cfg.Dir, index), index, uint64(time.Now().UnixNano()))
	if err != nil {
		return err
	}
	m.active = w
	return nil
}

// recoverTail scans the active segment for a torn trailing record and
// truncates the file to the last valid record boundary if found.
// CRC-confirmed records earlier in the file are not re-examined.
func (m *Manager) recoverTail() error {
	r, err := openSegmentForRead(segmentPath(m.cfg.Dir, m.active.index))
	if err != nil {
		return err
	}
	defer r.close()

	for {
		_, err := r.readNext()
		if err == io.EOF {
			return nil
		}
		if ce, ok := err.(*coreerrors.CoreError); ok && ce.Code == coreerrors.EndOfSegment {
			m.logger.Warn("truncating torn trailing record", zap.Int64("offset", ce.Offset))
			return m.active.truncate(ce.Offset)
		}
		if err != nil {
			return err
		}
	}
}

// Append serializes event and writes it to the active segment, rotating
// first if the frame would cross MaxSegmentBytes. Rotation seals
// (fsyncs and closes) the prior segment before the first byte of the
// next one is written, so a crash never leaves an unflushed record in an
// older segment than the newest one's contents.
func (m *Manager) Append(event events.WalEvent) error {
	payload := events.Encode(event)
	if m.active.size+frameSize(len(payload)) > m.cfg.MaxSegmentBytes {
		if err := m.rotate(); err != nil {
			return err
		}
	}
	if err := m.active.append(payload); err != nil {
		return err
	}
	m.diag.IncWalRecords(1)
	return nil
}

func (m *Manager) rotate() error {
	if err := m.active.flush(); err != nil {
		return err
	}
	if err := m.active.close(); err != nil {
		return err
	}
	nextIndex := m.active.index + 1
	if nextIndex == 0 {
		return coreerrors.New(coreerrors.Io, "wal segment index overflowed u64")
	}
	if err := m.openActive(nextIndex); err != nil {
		return err
	}
	return m.reportStats()
}

// Flush fsyncs the active segment's file descriptor unconditionally.
func (m *Manager) Flush() error {
	return m.active.flush()
}

// FlushThrottled fsyncs the active segment's file descriptor unless a
// FlushRateLimit is configured and the token bucket is currently empty,
// in which case it returns nil without syncing. Callers on a hot path
// that flush after every append should use this instead of Flush so a
// burst of small events collapses into one fsync per tick of the
// limiter rather than one fsync per event.
func (m *Manager) FlushThrottled() error {
	if m.flushLimiter != nil && !m.flushLimiter.Allow() {
		return nil
	}
	return m.active.flush()
}

// Close flushes and closes the active segment.
func (m *Manager) Close() error {
	if err := m.active.flush(); err != nil {
		return err
	}
	return m.active.close()
}

// Stats reports segment count, total bytes, total records and the
// current active segment's size.
func (m *Manager) Stats() (Stats, error) {
	indices, err := listSegmentIndices(m.cfg.Dir)
	if err != nil {
		return Stats{}, coreerrors.Wrap(err, coreerrors.Io, "scan wal dir")
	}
	var stats Stats
	stats.SegmentCount = len(indices)
	for _, idx := range indices {
		path := segmentPath(m.cfg.Dir, idx)
		info, err := os.Stat(path)
		if err != nil {
			return Stats{}, coreerrors.Wrap(err, coreerrors.Io, "stat segment")
		}
		stats.TotalBytes += info.Size()
		if idx == m.active.index {
			stats.ActiveBytes = info.Size()
		}
		count, err := countRecords(path)
		if err != nil {
			return Stats{}, err
		}
		stats.TotalRecords += count
	}
	return stats, nil
}

func countRecords(path string) (int64, error) {
	r, err := openSegmentForRead(path)
	if err != nil {
		return 0, err
	}
	defer r.close()
	var n int64
	for {
		_, err := r.readNext()
		if err == io.EOF {
			return n, nil
		}
		if ce, ok := err.(*coreerrors.CoreError); ok && ce.Code == coreerrors.EndOfSegment {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
	}
}

// Stream returns an iterator over every segment in index order, skipping
// records whose timestamp is before fromTs (pass 0 for "from the
// beginning"). Iteration stops at the latest segment's EOF without
// signaling error; a CRC mismatch in an earlier segment still surfaces
// as an error from Next.
type Stream struct {
	dir       string
	indices   []uint64
	pos       int
	reader    *segmentReader
	fromTs    uint64
	hasFromTs bool
}

// Stream opens a streaming iterator. fromTs of 0 with hasFromTs=false
// streams from the beginning.
func (m *Manager) Stream(fromTs uint64, hasFromTs bool) (*Stream, error) {
	indices, err := listSegmentIndices(m.cfg.Dir)
	if err != nil {
		return nil, coreerrors.Wrap(err, coreerrors.Io, "scan wal dir")
	}
	return &Stream{dir: m.cfg.Dir, indices: indices, fromTs: fromTs, hasFromTs: hasFromTs}, nil
}

// Next returns the next event in order, or (zero, io.EOF) once every
// segment has been exhausted.
func (s *Stream) Next() (events.WalEvent, error) {
	for {
		if s.reader == nil {
			if s.pos >= len(s.indices) {
				return events.WalEvent{}, io.EOF
			}
			r, err := openSegmentForRead(segmentPath(s.dir, s.indices[s.pos]))
			if err != nil {
				return events.WalEvent{}, err
			}
			s.reader = r
		}

		payload, err := s.reader.readNext()
		if err == io.EOF {
			s.reader.close()
			s.reader = nil
			s.pos++
			continue
		}
		if ce, ok := err.(*coreerrors.CoreError); ok && ce.Code == coreerrors.EndOfSegment {
			// A torn record only legitimately occurs at the tail of the
			// active segment; treat it like EOF for a sealed one too.
			s.reader.close()
			s.reader = nil
			s.pos++
			continue
		}
		if err != nil {
			return events.WalEvent{}, err
		}

		event, err := events.Decode(payload)
		if err != nil {
			return events.WalEvent{}, coreerrors.Wrap(err, coreerrors.Io, "decode wal record")
		}
		if s.hasFromTs && uint64(event.Timestamp()) < s.fromTs {
			continue
		}
		return event, nil
	}
}

// Close releases the iterator's open segment file, if any.
func (s *Stream) Close() error {
	if s.reader != nil {
		return s.reader.close()
	}
	return nil
}
