package lob

import (
	"strconv"

	"go.uber.org/zap"

	"github.com/abdoElHodaky/lobcore/internal/diagnostics"
	"github.com/abdoElHodaky/lobcore/pkg/coreerrors"
	"github.com/abdoElHodaky/lobcore/pkg/lobtypes"
)

// CrossResolution is the construction-time policy for reacting to an
// incoming update that would make bid >= ask. It is never read from a
// global and never changes after construction.
type CrossResolution int

const (
	// Reject refuses the offending update; the book keeps its prior state.
	Reject CrossResolution = iota
	// AutoResolve evicts opposite-side levels, starting from best, until
	// the book is no longer crossed.
	AutoResolve
	// Accept leaves the book crossed; downstream treats it as a signal.
	Accept
)

// State is the coarse classification of an OrderBook's current shape.
type State int

const (
	Empty State = iota
	BidOnly
	AskOnly
	TwoSided
	Crossed
	Locked
)

// Config configures an OrderBook at construction.
type Config struct {
	Symbol          lobtypes.Symbol
	TickSize        lobtypes.Px
	LotSize         lobtypes.Qty
	ROICenter       lobtypes.Px
	ROIWidth        lobtypes.Px
	CrossResolution CrossResolution
}

// OrderBook is the two-sided per-symbol container. It replicates an
// external venue's top-N depth; it never crosses orders internally.
type OrderBook struct {
	cfg    Config
	bid    SideBook
	ask    SideBook
	lastTs lobtypes.Ts
	logger *zap.Logger
	diag   *diagnostics.Registry
}

// New constructs an empty OrderBook for cfg.Symbol. diag is optional;
// a nil Registry disables metrics reporting entirely.
func New(cfg Config, logger *zap.Logger, diag *diagnostics.Registry) *OrderBook {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderBook{
		cfg:    cfg,
		logger: logger.With(zap.Uint32("symbol", uint32(cfg.Symbol))),
		diag:   diag,
	}
}

func (b *OrderBook) symbolLabel() string { return strconv.FormatUint(uint64(b.cfg.Symbol), 10) }

func (b *OrderBook) policyLabel() string {
	switch b.cfg.CrossResolution {
	case AutoResolve:
		return "auto_resolve"
	case Accept:
		return "accept"
	default:
		return "reject"
	}
}

// Symbol returns the symbol this book tracks.
func (b *OrderBook) Symbol() lobtypes.Symbol { return b.cfg.Symbol }

// LastUpdate returns the timestamp of the most recent applied update.
func (b *OrderBook) LastUpdate() lobtypes.Ts { return b.lastTs }

// ApplyResult describes what ApplyValidated did with an update.
type ApplyResult struct {
	Applied  bool
	Resolved bool // true when AutoResolve evicted opposing levels
	Evicted  int
	State    State
}

// ApplyFast applies u with no validation; used when the feed is trusted.
func (b *OrderBook) ApplyFast(u lobtypes.L2Update) {
	b.applyRaw(u)
}

// ApplyValidated applies u, then checks for cross/lock and executes the
// configured cross-resolution policy. Under Reject, a crossing update is
// not applied and the returned error is *coreerrors.CoreError with code
// CrossDetected.
func (b *OrderBook) ApplyValidated(u lobtypes.L2Update) (ApplyResult, error) {
	if u.Level >= Depth {
		b.logger.Warn("invalid level dropped", zap.Uint8("level", u.Level))
		return ApplyResult{State: b.classify()}, coreerrors.New(coreerrors.InvalidLevel, "level out of range")
	}

	// Peek at whether this update, once applied, would cross the book.
	would := b.wouldCross(u)
	if !would {
		b.applyRaw(u)
		return ApplyResult{Applied: true, State: b.classify()}, nil
	}

	b.diag.IncBookCross(b.symbolLabel(), b.policyLabel())
	switch b.cfg.CrossResolution {
	case Reject:
		return ApplyResult{Applied: false, State: b.classify()}, coreerrors.New(coreerrors.CrossDetected, "update would cross the book")
	case Accept:
		b.applyRaw(u)
		return ApplyResult{Applied: true, State: Crossed}, nil
	default: // AutoResolve
		b.applyRaw(u)
		evicted := b.autoResolve(u.Side)
		return ApplyResult{Applied: true, Resolved: evicted > 0, Evicted: evicted, State: b.classify()}, nil
	}
}

func (b *OrderBook) applyRaw(u lobtypes.L2Update) {
	switch u.Side {
	case lobtypes.Bid:
		b.bid.Set(int(u.Level), u.Price, u.Qty)
	case lobtypes.Ask:
		b.ask.Set(int(u.Level), u.Price, u.Qty)
	}
	if u.Ts > b.lastTs {
		b.lastTs = u.Ts
	}
}

// wouldCross reports whether, after applying u, best bid would exceed
// best ask strictly (a lock, bid == ask, is reported but never rejected).
func (b *OrderBook) wouldCross(u lobtypes.L2Update) bool {
	bidBest, bidOK := b.bid.Best()
	askBest, askOK := b.ask.Best()

	switch u.Side {
	case lobtypes.Bid:
		if u.Level != 0 || u.Qty.IsZero() {
			return false
		}
		if !askOK {
			return false
		}
		return u.Price > askBest.Price
	case lobtypes.Ask:
		if u.Level != 0 || u.Qty.IsZero() {
			return false
		}
		if !bidOK {
			return false
		}
		return u.Price < bidBest.Price
	}
	return false
}

// autoResolve evicts stale levels on the side opposite triggerSide,
// starting from best, until the book is no longer crossed. triggerSide
// is the side of the update that caused the cross, i.e. the side that
// just moved aggressively and must be kept; the other side is the stale
// quote being crossed through. Returns the number of levels evicted.
func (b *OrderBook) autoResolve(triggerSide lobtypes.Side) int {
	stale := &b.ask
	if triggerSide == lobtypes.Ask {
		stale = &b.bid
	}
	evicted := 0
	for {
		bidBest, bidOK := b.bid.Best()
		askBest, askOK := b.ask.Best()
		if !bidOK || !askOK || bidBest.Price <= askBest.Price {
			break
		}
		(*stale).remove(0)
		evicted++
		if (*stale).Depth() == 0 {
			break
		}
	}
	return evicted
}

func (b *OrderBook) classify() State {
	bidOK := b.bid.Depth() > 0
	askOK := b.ask.Depth() > 0
	switch {
	case !bidOK && !askOK:
		return Empty
	case bidOK && !askOK:
		return BidOnly
	case !bidOK && askOK:
		return AskOnly
	}
	bidBest, _ := b.bid.Best()
	askBest, _ := b.ask.Best()
	switch {
	case bidBest.Price > askBest.Price:
		return Crossed
	case bidBest.Price == askBest.Price:
		return Locked
	default:
		return TwoSided
	}
}

// State returns the book's current coarse classification.
func (b *OrderBook) State() State {
	s := b.classify()
	if s == Locked {
		b.diag.IncBookLocked(b.symbolLabel())
	}
	return s
}

// BestBid delegates to the bid side book.
func (b *OrderBook) BestBid() (Level, bool) { return b.bid.Best() }

// BestAsk delegates to the ask side book.
func (b *OrderBook) BestAsk() (Level, bool) { return b.ask.Best() }

// BidLevel returns the bid side level at index i.
func (b *OrderBook) BidLevel(i int) (Level, bool) { return b.bid.LevelAt(i) }

// AskLevel returns the ask side level at index i.
func (b *OrderBook) AskLevel(i int) (Level, bool) { return b.ask.LevelAt(i) }

// BidTotalQty sums bid quantity across the top maxDepth levels.
func (b *OrderBook) BidTotalQty(maxDepth int) lobtypes.Qty { return b.bid.TotalQty(maxDepth) }

// AskTotalQty sums ask quantity across the top maxDepth levels.
func (b *OrderBook) AskTotalQty(maxDepth int) lobtypes.Qty { return b.ask.TotalQty(maxDepth) }

// SpreadTicks returns ask.best.price - bid.best.price, and false when
// either side is empty.
func (b *OrderBook) SpreadTicks() (lobtypes.Px, bool) {
	bidBest, bidOK := b.bid.Best()
	askBest, askOK := b.ask.Best()
	if !bidOK || !askOK {
		return 0, false
	}
	return askBest.Price - bidBest.Price, true
}

// Mid returns the integer midpoint of best bid and best ask.
func (b *OrderBook) Mid() (lobtypes.Px, bool) {
	bidBest, bidOK := b.bid.Best()
	askBest, askOK := b.ask.Best()
	if !bidOK || !askOK {
		return 0, false
	}
	return (bidBest.Price + askBest.Price) / 2, true
}

// Microprice returns the size-weighted midpoint, falling back to Mid when
// total quantity at best is zero.
func (b *OrderBook) Microprice() (lobtypes.Px, bool) {
	bidBest, bidOK := b.bid.Best()
	askBest, askOK := b.ask.Best()
	if !bidOK || !askOK {
		return 0, false
	}
	denom := int64(bidBest.Qty) + int64(askBest.Qty)
	if denom == 0 {
		return b.Mid()
	}
	num := int64(bidBest.Price)*int64(askBest.Qty) + int64(askBest.Price)*int64(bidBest.Qty)
	return lobtypes.Px(num / denom), true
}

// Imbalance returns the normalized difference of aggregated bid and ask
// sizes across the top depth levels, in [-1, 1]. This is one of the two
// f64 boundaries permitted by the design: the division is computed here,
// once, and never fed back into integer state. A zero denominator
// coerces to 0.0, per spec; ImbalanceOK exposes the has-data flag for
// callers that prefer an explicit absence.
func (b *OrderBook) Imbalance(depth int) float64 {
	v, _ := b.ImbalanceOK(depth)
	return v
}

// ImbalanceOK is Imbalance plus an explicit ok flag for a zero
// denominator, for callers that would rather treat that case as "no
// signal" than as a hard 0.0.
func (b *OrderBook) ImbalanceOK(depth int) (float64, bool) {
	bidQty := int64(b.bid.TotalQty(depth))
	askQty := int64(b.ask.TotalQty(depth))
	denom := bidQty + askQty
	if denom == 0 {
		return 0.0, false
	}
	return float64(bidQty-askQty) / float64(denom), true
}

// BBOUpdate is the compact best-bid/best-offer snapshot produced by
// ToUpdate for publication onto the bus.
type BBOUpdate struct {
	Ts       lobtypes.Ts
	Symbol   lobtypes.Symbol
	BidPrice lobtypes.Px
	BidQty   lobtypes.Qty
	AskPrice lobtypes.Px
	AskQty   lobtypes.Qty
}

// ToUpdate produces a compact best-bid/best-offer snapshot envelope.
func (b *OrderBook) ToUpdate() BBOUpdate {
	bidBest, _ := b.bid.Best()
	askBest, _ := b.ask.Best()
	return BBOUpdate{
		Ts:       b.lastTs,
		Symbol:   b.cfg.Symbol,
		BidPrice: bidBest.Price,
		BidQty:   bidBest.Qty,
		AskPrice: askBest.Price,
		AskQty:   askBest.Qty,
	}
}
