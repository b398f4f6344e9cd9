// Package events defines the persistable WalEvent tagged union. Every
// variant carries a timestamp and a uniform accessor; dispatch on the
// discriminant happens at the persistence and replay boundaries, never
// through a polymorphic base type.
package events

import "github.com/abdoElHodaky/lobcore/pkg/lobtypes"

// Kind discriminates a WalEvent's variant. Serialized as a single byte.
type Kind uint8

const (
	KindTick Kind = iota
	KindOrder
	KindFill
	KindSignal
	KindRisk
	KindSystem
	KindSnapshot
)

func (k Kind) String() string {
	switch k {
	case KindTick:
		return "tick"
	case KindOrder:
		return "order"
	case KindFill:
		return "fill"
	case KindSignal:
		return "signal"
	case KindRisk:
		return "risk"
	case KindSystem:
		return "system"
	case KindSnapshot:
		return "snapshot"
	default:
		return "unknown"
	}
}

// maxVenueLen caps venue strings at 16 bytes to bound record size.
const maxVenueLen = 16

// TickEvent carries a single trade print.
type TickEvent struct {
	Ts     lobtypes.Ts
	Symbol lobtypes.Symbol
	Price  lobtypes.Px
	Qty    lobtypes.Qty
	Venue  string
}

// OrderEvent carries an order lifecycle transition.
type OrderEvent struct {
	Ts       lobtypes.Ts
	Symbol   lobtypes.Symbol
	OrderID  uint64
	Side     lobtypes.Side
	Price    lobtypes.Px
	Qty      lobtypes.Qty
	StatusID uint8
}

// FillEvent carries an execution against an order.
type FillEvent struct {
	Ts      lobtypes.Ts
	Symbol  lobtypes.Symbol
	OrderID uint64
	Price   lobtypes.Px
	Qty     lobtypes.Qty
}

// SignalEvent carries a derived trading signal (e.g. a feature snapshot
// worth persisting for replay/backtest).
type SignalEvent struct {
	Ts         lobtypes.Ts
	Symbol     lobtypes.Symbol
	Name       string
	Value      float64
}

// RiskEvent carries a risk-policy notification. The core does not
// interpret Detail; it is an opaque payload for the risk layer.
type RiskEvent struct {
	Ts     lobtypes.Ts
	Symbol lobtypes.Symbol
	Code   string
	Detail string
}

// SystemEvent carries venue connect/disconnect/reset notifications.
type SystemEvent struct {
	Ts     lobtypes.Ts
	Venue  string
	Kind   string
	Detail string
}

// SnapshotEvent carries a full best-bid/offer snapshot for fast replay
// seeding, avoiding a full L2Update replay from the start of a segment.
type SnapshotEvent struct {
	Ts       lobtypes.Ts
	Symbol   lobtypes.Symbol
	BidPrice lobtypes.Px
	BidQty   lobtypes.Qty
	AskPrice lobtypes.Px
	AskQty   lobtypes.Qty
}

// WalEvent is the tagged union persisted to and replayed from the WAL.
// Exactly one of the typed fields is meaningful, selected by Kind.
type WalEvent struct {
	Kind     Kind
	Tick     *TickEvent
	Order    *OrderEvent
	Fill     *FillEvent
	Signal   *SignalEvent
	Risk     *RiskEvent
	System   *SystemEvent
	Snapshot *SnapshotEvent
}

// Timestamp is total: defined for every variant.
func (e WalEvent) Timestamp() lobtypes.Ts {
	switch e.Kind {
	case KindTick:
		return e.Tick.Ts
	case KindOrder:
		return e.Order.Ts
	case KindFill:
		return e.Fill.Ts
	case KindSignal:
		return e.Signal.Ts
	case KindRisk:
		return e.Risk.Ts
	case KindSystem:
		return e.System.Ts
	case KindSnapshot:
		return e.Snapshot.Ts
	default:
		return 0
	}
}

// NewTick builds a Tick-kind WalEvent, truncating Venue to maxVenueLen.
func NewTick(e TickEvent) WalEvent {
	e.Venue = truncateVenue(e.Venue)
	return WalEvent{Kind: KindTick, Tick: &e}
}

// NewOrder builds an Order-kind WalEvent.
func NewOrder(e OrderEvent) WalEvent { return WalEvent{Kind: KindOrder, Order: &e} }

// NewFill builds a Fill-kind WalEvent.
func NewFill(e FillEvent) WalEvent { return WalEvent{Kind: KindFill, Fill: &e} }

// NewSignal builds a Signal-kind WalEvent.
func NewSignal(e SignalEvent) WalEvent { return WalEvent{Kind: KindSignal, Signal: &e} }

// NewRisk builds a Risk-kind WalEvent.
func NewRisk(e RiskEvent) WalEvent { return WalEvent{Kind: KindRisk, Risk: &e} }

// NewSystem builds a System-kind WalEvent, truncating Venue to
// maxVenueLen.
func NewSystem(e SystemEvent) WalEvent {
	e.Venue = truncateVenue(e.Venue)
	return WalEvent{Kind: KindSystem, System: &e}
}

// NewSnapshot builds a Snapshot-kind WalEvent.
func NewSnapshot(e SnapshotEvent) WalEvent { return WalEvent{Kind: KindSnapshot, Snapshot: &e} }

func truncateVenue(v string) string {
	if len(v) > maxVenueLen {
		return v[:maxVenueLen]
	}
	return v
}
