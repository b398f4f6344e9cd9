package aggregator

import (
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/lobcore/internal/diagnostics"
	"github.com/abdoElHodaky/lobcore/internal/wal"
	"github.com/abdoElHodaky/lobcore/pkg/coreerrors"
	"github.com/abdoElHodaky/lobcore/pkg/events"
	"github.com/abdoElHodaky/lobcore/pkg/lobtypes"
)

// DefaultRingCapacity bounds the number of sealed candles retained per
// (symbol, timeframe) when Config.RingCapacity is unset.
const DefaultRingCapacity = 256

// Config configures an Aggregator at construction. Timeframes is the
// fixed set of bucket widths (nanoseconds) every processed trade is
// fanned out to; it does not change after construction.
type Config struct {
	Timeframes   []uint64
	RingCapacity int
	WAL          *wal.Manager // optional; every trade is also appended as a Tick
	Diagnostics  *diagnostics.Registry
}

// series is the mutable state for one (symbol, timeframe) candle stream:
// the currently-open candle plus a bounded ring of sealed ones.
type series struct {
	hasCurrent bool
	bucket     uint64
	current    Candle

	sealed []Candle
	head   int
	count  int
}

func newSeries(capacity int) *series {
	return &series{sealed: make([]Candle, capacity)}
}

func (s *series) push(c Candle) {
	idx := (s.head + s.count) % len(s.sealed)
	if s.count < len(s.sealed) {
		s.sealed[idx] = c
		s.count++
	} else {
		s.sealed[s.head] = c
		s.head = (s.head + 1) % len(s.sealed)
	}
}

// recent returns up to limit most-recently-sealed candles, oldest first.
func (s *series) recent(limit int) []Candle {
	n := s.count
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Candle, n)
	start := s.head + s.count - n
	for i := 0; i < n; i++ {
		out[i] = s.sealed[(start+i)%len(s.sealed)]
	}
	return out
}

// Aggregator is not safe for concurrent use; like OrderBook, it is owned
// by a single task per symbol.
type Aggregator struct {
	cfg    Config
	logger *zap.Logger
	series map[bucketKey]*series
}

// New constructs an Aggregator. logger may be nil. A zero timeframe
// would divide by zero in bucketIndex, so any zero entries in
// cfg.Timeframes are dropped with a warning rather than accepted.
func New(cfg Config, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RingCapacity <= 0 {
		cfg.RingCapacity = DefaultRingCapacity
	}
	timeframes := cfg.Timeframes[:0:0]
	for _, tf := range cfg.Timeframes {
		if tf == 0 {
			logger.Warn("dropping zero-width timeframe from aggregator config")
			continue
		}
		timeframes = append(timeframes, tf)
	}
	cfg.Timeframes = timeframes
	return &Aggregator{cfg: cfg, logger: logger, series: make(map[bucketKey]*series)}
}

// ProcessTrade folds one trade into every configured timeframe's bucket
// for symbol, sealing and rotating the ring whenever ts crosses into a
// new bucket. When a WAL manager is configured, the trade is also
// appended as a Tick event before the candle state is updated, so a
// replay of the WAL can rebuild the same candles.
func (a *Aggregator) ProcessTrade(symbol lobtypes.Symbol, ts lobtypes.Ts, price lobtypes.Px, qty lobtypes.Qty, isBuy bool) error {
	if a.cfg.WAL != nil {
		if err := a.cfg.WAL.Append(events.NewTick(events.TickEvent{
			Ts: ts, Symbol: symbol, Price: price, Qty: qty,
		})); err != nil {
			return coreerrors.Wrap(err, coreerrors.Io, "aggregator append tick")
		}
	}

	for _, tf := range a.cfg.Timeframes {
		key := bucketKey{symbol: symbol, timeframe: tf}
		s, ok := a.series[key]
		if !ok {
			s = newSeries(a.cfg.RingCapacity)
			a.series[key] = s
		}
		a.fold(s, symbol, ts, price, qty, isBuy, tf)
	}
	return nil
}

func (a *Aggregator) fold(s *series, symbol lobtypes.Symbol, ts lobtypes.Ts, price lobtypes.Px, qty lobtypes.Qty, isBuy bool, timeframeNs uint64) {
	bucket := bucketIndex(ts, timeframeNs)

	if !s.hasCurrent {
		s.hasCurrent = true
		s.bucket = bucket
		s.current = Candle{BucketTs: ts, Open: price, High: price, Low: price, Close: price, Volume: qty, Trades: 1}
		return
	}

	if bucket != s.bucket {
		sealed := s.current
		sealed.SequenceID = uuid.New().String()
		s.push(sealed)
		s.bucket = bucket
		s.current = Candle{BucketTs: ts, Open: price, High: price, Low: price, Close: price, Volume: qty, Trades: 1}
		a.cfg.Diagnostics.IncCandlesSealed(symbolLabel(symbol), timeframeLabel(timeframeNs))
		return
	}

	c := &s.current
	if price > c.High {
		c.High = price
	}
	if price < c.Low {
		c.Low = price
	}
	c.Close = price
	c.Volume += qty
	c.Trades++
}

func symbolLabel(symbol lobtypes.Symbol) string {
	return strconv.FormatUint(uint64(symbol), 10)
}

func timeframeLabel(timeframeNs uint64) string {
	return strconv.FormatUint(timeframeNs, 10)
}

// GetCurrentCandle returns the open (unsealed) candle for (symbol, tf).
func (a *Aggregator) GetCurrentCandle(symbol lobtypes.Symbol, timeframeNs uint64) (Candle, bool) {
	s, ok := a.series[bucketKey{symbol: symbol, timeframe: timeframeNs}]
	if !ok || !s.hasCurrent {
		return Candle{}, false
	}
	return s.current, true
}

// GetCandles returns up to limit most recently sealed candles for
// (symbol, tf), oldest first. A limit of 0 returns every retained candle.
func (a *Aggregator) GetCandles(symbol lobtypes.Symbol, timeframeNs uint64, limit int) []Candle {
	s, ok := a.series[bucketKey{symbol: symbol, timeframe: timeframeNs}]
	if !ok {
		return nil
	}
	return s.recent(limit)
}

// Snapshot returns every sealed candle currently retained, grouped by
// (symbol, timeframe), for diagnostics/export. The open candle of each
// series is included only if present, appended last.
func (a *Aggregator) Snapshot() map[lobtypes.Symbol]map[uint64][]Candle {
	out := make(map[lobtypes.Symbol]map[uint64][]Candle, len(a.series))
	for key, s := range a.series {
		bySymbol, ok := out[key.symbol]
		if !ok {
			bySymbol = make(map[uint64][]Candle)
			out[key.symbol] = bySymbol
		}
		candles := s.recent(0)
		if s.hasCurrent {
			candles = append(candles, s.current)
		}
		bySymbol[key.timeframe] = candles
	}
	return out
}
