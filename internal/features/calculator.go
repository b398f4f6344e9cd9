// Package features computes per-update derived analytics from an
// OrderBook: spread, mid, microprice, imbalance and a sliding-window VWAP
// deviation, plus an optional realized-volatility regime classification.
package features

import (
	"math/big"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/abdoElHodaky/lobcore/internal/lob"
	"github.com/abdoElHodaky/lobcore/pkg/lobtypes"
)

// Regime is a categorical label derived from recent realized volatility.
type Regime int

const (
	RegimeUnclassified Regime = iota
	RegimeStable
	RegimeNormal
	RegimeVolatile
	RegimeStressed
)

func (r Regime) String() string {
	switch r {
	case RegimeStable:
		return "stable"
	case RegimeNormal:
		return "normal"
	case RegimeVolatile:
		return "volatile"
	case RegimeStressed:
		return "stressed"
	default:
		return "unclassified"
	}
}

// RegimeThresholds are the realized-volatility cutoffs (in the same units
// as the log-return series) that separate the four regimes. Stressed is
// anything at or above VolatileBelow.
type RegimeThresholds struct {
	StableBelow   float64
	NormalBelow   float64
	VolatileBelow float64
}

// DefaultRegimeThresholds are reasonable defaults for a venue quoting in
// ticks with typical intraday mid-price volatility.
var DefaultRegimeThresholds = RegimeThresholds{StableBelow: 0.0005, NormalBelow: 0.002, VolatileBelow: 0.01}

// FeatureFrame is an immutable snapshot derived from an OrderBook at one
// timestamp. It is produced once per update and never mutated.
type FeatureFrame struct {
	Ts         lobtypes.Ts
	Symbol     lobtypes.Symbol
	SpreadTick lobtypes.Px
	HasSpread  bool
	Mid        lobtypes.Px
	HasMid     bool
	Microprice lobtypes.Px
	Imbalance  float64
	VWAPDev    float64
	Regime     Regime
}

// sample is one retained (ts, mid, total_top_qty) observation.
type sample struct {
	ts  lobtypes.Ts
	mid lobtypes.Px
	qty lobtypes.Qty
}

// Config configures a Calculator at construction.
type Config struct {
	WindowNs         uint64
	Capacity         int
	ImbalanceDepth   int
	RegimeThresholds *RegimeThresholds // nil disables regime classification
	RegimeCache      *RegimeCache      // optional, shared by Calculators with the same symbol and WindowNs
}

// Calculator owns a bounded ring buffer of samples for sliding-window
// VWAP and computes FeatureFrames from OrderBook state. It is not safe
// for concurrent use; like OrderBook, it is owned by the symbol's task.
type Calculator struct {
	cfg     Config
	ring    []sample
	head    int
	count   int
	returns  []float64 // recent log-returns of mid, for regime classification
	lastMidF float64
	logger   *zap.Logger
	bound    *lobtypes.AnalyticsBoundary
}

// New constructs a Calculator. capacity bounds the ring buffer; windowNs
// is the retention window in nanoseconds.
func New(cfg Config, logger *zap.Logger) *Calculator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ImbalanceDepth <= 0 {
		cfg.ImbalanceDepth = lob.Depth
	}
	return &Calculator{
		cfg:    cfg,
		ring:   make([]sample, cfg.Capacity),
		logger: logger,
		bound:  lobtypes.NewAnalyticsBoundary(logger),
	}
}

// Reset clears the ring and all retained return history. lastMidF is
// cleared too, so the first sample after Reset starts a fresh return
// series instead of computing a spurious jump from the pre-reset price.
func (c *Calculator) Reset() {
	c.head = 0
	c.count = 0
	c.returns = c.returns[:0]
	c.lastMidF = 0
}

func (c *Calculator) push(s sample) {
	idx := (c.head + c.count) % len(c.ring)
	if c.count < len(c.ring) {
		c.ring[idx] = s
		c.count++
	} else {
		c.ring[c.head] = s
		c.head = (c.head + 1) % len(c.ring)
	}
}

func (c *Calculator) evictOlderThan(cutoff lobtypes.Ts) {
	for c.count > 0 {
		oldest := c.ring[c.head]
		if oldest.ts >= cutoff {
			break
		}
		c.head = (c.head + 1) % len(c.ring)
		c.count--
	}
}

func (c *Calculator) at(i int) sample {
	return c.ring[(c.head+i)%len(c.ring)]
}

// Calculate derives a FeatureFrame from book at its last-update timestamp.
// When only one side is populated, VWAP deviation is 0.0.
func (c *Calculator) Calculate(book *lob.OrderBook) FeatureFrame {
	ts := book.LastUpdate()
	frame := FeatureFrame{Ts: ts, Symbol: book.Symbol()}

	spread, hasSpread := book.SpreadTicks()
	frame.SpreadTick = spread
	frame.HasSpread = hasSpread

	mid, hasMid := book.Mid()
	frame.Mid = mid
	frame.HasMid = hasMid

	micro, hasMicro := book.Microprice()
	if hasMicro {
		frame.Microprice = micro
	}

	frame.Imbalance = book.Imbalance(c.cfg.ImbalanceDepth)

	if !hasMid {
		return frame
	}

	bidQty := book.BidTotalQty(1)
	askQty := book.AskTotalQty(1)
	totalQty := bidQty + askQty

	c.push(sample{ts: ts, mid: mid, qty: totalQty})
	if ts >= lobtypes.Ts(c.cfg.WindowNs) {
		c.evictOlderThan(ts - lobtypes.Ts(c.cfg.WindowNs))
	}

	frame.VWAPDev = c.vwapDeviation(mid)
	c.trackReturn(mid)
	frame.Regime = c.classifyRegime(frame.Symbol)

	return frame
}

// vwapDeviation computes (mid - vwap) / vwap * 100.0 over the retained
// samples. Per-sample products accumulate in big.Int to guarantee no
// overflow regardless of how many samples or how large price/qty get;
// the single float64 division at the end is the designated f64 boundary
// and is never fed back into integer state.
func (c *Calculator) vwapDeviation(mid lobtypes.Px) float64 {
	if c.count == 0 {
		return 0.0
	}
	sumPxQty := new(big.Int)
	var sumQty int64
	term := new(big.Int)
	for i := 0; i < c.count; i++ {
		s := c.at(i)
		term.Mul(big.NewInt(int64(s.mid)), big.NewInt(int64(s.qty)))
		sumPxQty.Add(sumPxQty, term)
		sumQty += int64(s.qty)
	}
	if sumQty == 0 {
		return 0.0
	}
	vwap := new(big.Float).Quo(new(big.Float).SetInt(sumPxQty), big.NewFloat(float64(sumQty)))
	vwapF, _ := vwap.Float64()
	if vwapF == 0 {
		return 0.0
	}
	// vwapF is still in raw scaled-tick units (Σ(mid·qty)/Σqty never
	// passed through PxToFloat), so mid must stay raw here too; the ratio
	// is scale-invariant, so de-scaling only one side breaks it.
	midF := float64(mid)
	return (midF - vwapF) / vwapF * 100.0
}

const maxReturnHistory = 256

func (c *Calculator) trackReturn(mid lobtypes.Px) {
	midF := c.bound.PxToFloat(mid)
	if midF <= 0 {
		return
	}
	if len(c.returns) > 0 {
		prev := c.lastMidF
		if prev > 0 {
			// log-return approximated with a simple relative difference
			// to avoid importing math just for Log1p at this scale.
			c.returns = append(c.returns, (midF-prev)/prev)
			if len(c.returns) > maxReturnHistory {
				c.returns = c.returns[len(c.returns)-maxReturnHistory:]
			}
		}
	} else if c.lastMidF > 0 {
		c.returns = append(c.returns, (midF-c.lastMidF)/c.lastMidF)
	}
	c.lastMidF = midF
}

func (c *Calculator) classifyRegime(symbol lobtypes.Symbol) Regime {
	if c.cfg.RegimeThresholds == nil || len(c.returns) < 2 {
		return RegimeUnclassified
	}
	if c.cfg.RegimeCache != nil {
		if cached, ok := c.cfg.RegimeCache.Get(uint32(symbol), c.cfg.WindowNs); ok {
			return cached
		}
	}
	vol := stat.StdDev(c.returns, nil)
	th := c.cfg.RegimeThresholds
	var regime Regime
	switch {
	case vol < th.StableBelow:
		regime = RegimeStable
	case vol < th.NormalBelow:
		regime = RegimeNormal
	case vol < th.VolatileBelow:
		regime = RegimeVolatile
	default:
		regime = RegimeStressed
	}
	if c.cfg.RegimeCache != nil {
		c.cfg.RegimeCache.Set(uint32(symbol), c.cfg.WindowNs, regime)
	}
	return regime
}
