package events

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/abdoElHodaky/lobcore/pkg/lobtypes"
)

// Encode serializes e to its integer-native wire form: a single-byte
// discriminant followed by the variant's fields. Strings are
// length-prefixed u16 LE + UTF-8 bytes. Every field is integer-encoded
// except SignalEvent.Value, a float64 written as its raw IEEE-754 bits
// (u64 LE).
func Encode(e WalEvent) []byte {
	buf := make([]byte, 0, 64)
	buf = append(buf, byte(e.Kind))

	switch e.Kind {
	case KindTick:
		buf = appendU64(buf, uint64(e.Tick.Ts))
		buf = appendU32(buf, uint32(e.Tick.Symbol))
		buf = appendI64(buf, int64(e.Tick.Price))
		buf = appendI64(buf, int64(e.Tick.Qty))
		buf = appendString(buf, e.Tick.Venue)
	case KindOrder:
		buf = appendU64(buf, uint64(e.Order.Ts))
		buf = appendU32(buf, uint32(e.Order.Symbol))
		buf = appendU64(buf, e.Order.OrderID)
		buf = append(buf, byte(e.Order.Side))
		buf = appendI64(buf, int64(e.Order.Price))
		buf = appendI64(buf, int64(e.Order.Qty))
		buf = append(buf, e.Order.StatusID)
	case KindFill:
		buf = appendU64(buf, uint64(e.Fill.Ts))
		buf = appendU32(buf, uint32(e.Fill.Symbol))
		buf = appendU64(buf, e.Fill.OrderID)
		buf = appendI64(buf, int64(e.Fill.Price))
		buf = appendI64(buf, int64(e.Fill.Qty))
	case KindSignal:
		buf = appendU64(buf, uint64(e.Signal.Ts))
		buf = appendU32(buf, uint32(e.Signal.Symbol))
		buf = appendString(buf, e.Signal.Name)
		buf = appendF64(buf, e.Signal.Value)
	case KindRisk:
		buf = appendU64(buf, uint64(e.Risk.Ts))
		buf = appendU32(buf, uint32(e.Risk.Symbol))
		buf = appendString(buf, e.Risk.Code)
		buf = appendString(buf, e.Risk.Detail)
	case KindSystem:
		buf = appendU64(buf, uint64(e.System.Ts))
		buf = appendString(buf, e.System.Venue)
		buf = appendString(buf, e.System.Kind)
		buf = appendString(buf, e.System.Detail)
	case KindSnapshot:
		buf = appendU64(buf, uint64(e.Snapshot.Ts))
		buf = appendU32(buf, uint32(e.Snapshot.Symbol))
		buf = appendI64(buf, int64(e.Snapshot.BidPrice))
		buf = appendI64(buf, int64(e.Snapshot.BidQty))
		buf = appendI64(buf, int64(e.Snapshot.AskPrice))
		buf = appendI64(buf, int64(e.Snapshot.AskQty))
	}
	return buf
}

// Decode is Encode's inverse. decode(encode(E)) == E for every
// constructible WalEvent, byte-exact after deserialization.
func Decode(b []byte) (WalEvent, error) {
	if len(b) < 1 {
		return WalEvent{}, fmt.Errorf("events: empty payload")
	}
	kind := Kind(b[0])
	r := &reader{buf: b[1:]}

	switch kind {
	case KindTick:
		e := TickEvent{
			Ts:     lobtypes.Ts(r.u64()),
			Symbol: lobtypes.Symbol(r.u32()),
			Price:  lobtypes.Px(r.i64()),
			Qty:    lobtypes.Qty(r.i64()),
			Venue:  r.string(),
		}
		return WalEvent{Kind: KindTick, Tick: &e}, r.err
	case KindOrder:
		e := OrderEvent{
			Ts:     lobtypes.Ts(r.u64()),
			Symbol: lobtypes.Symbol(r.u32()),
		}
		e.OrderID = r.u64()
		e.Side = lobtypes.Side(r.byte())
		e.Price = lobtypes.Px(r.i64())
		e.Qty = lobtypes.Qty(r.i64())
		e.StatusID = r.byte()
		return WalEvent{Kind: KindOrder, Order: &e}, r.err
	case KindFill:
		e := FillEvent{
			Ts:     lobtypes.Ts(r.u64()),
			Symbol: lobtypes.Symbol(r.u32()),
		}
		e.OrderID = r.u64()
		e.Price = lobtypes.Px(r.i64())
		e.Qty = lobtypes.Qty(r.i64())
		return WalEvent{Kind: KindFill, Fill: &e}, r.err
	case KindSignal:
		e := SignalEvent{
			Ts:     lobtypes.Ts(r.u64()),
			Symbol: lobtypes.Symbol(r.u32()),
		}
		e.Name = r.string()
		e.Value = r.f64()
		return WalEvent{Kind: KindSignal, Signal: &e}, r.err
	case KindRisk:
		e := RiskEvent{
			Ts:     lobtypes.Ts(r.u64()),
			Symbol: lobtypes.Symbol(r.u32()),
		}
		e.Code = r.string()
		e.Detail = r.string()
		return WalEvent{Kind: KindRisk, Risk: &e}, r.err
	case KindSystem:
		e := SystemEvent{Ts: lobtypes.Ts(r.u64())}
		e.Venue = r.string()
		e.Kind = r.string()
		e.Detail = r.string()
		return WalEvent{Kind: KindSystem, System: &e}, r.err
	case KindSnapshot:
		e := SnapshotEvent{
			Ts:     lobtypes.Ts(r.u64()),
			Symbol: lobtypes.Symbol(r.u32()),
		}
		e.BidPrice = lobtypes.Px(r.i64())
		e.BidQty = lobtypes.Qty(r.i64())
		e.AskPrice = lobtypes.Px(r.i64())
		e.AskQty = lobtypes.Qty(r.i64())
		return WalEvent{Kind: KindSnapshot, Snapshot: &e}, r.err
	default:
		return WalEvent{}, fmt.Errorf("events: unknown kind %d", kind)
	}
}

func appendU64(b []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendU32(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendI64(b []byte, v int64) []byte { return appendU64(b, uint64(v)) }

func appendF64(b []byte, v float64) []byte {
	return appendU64(b, math.Float64bits(v))
}

func appendString(b []byte, s string) []byte {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], uint16(len(s)))
	b = append(b, tmp[:]...)
	return append(b, s...)
}

type reader struct {
	buf []byte
	err error
}

func (r *reader) need(n int) []byte {
	if r.err != nil || len(r.buf) < n {
		if r.err == nil {
			r.err = fmt.Errorf("events: short payload, need %d bytes, have %d", n, len(r.buf))
		}
		return make([]byte, n)
	}
	out := r.buf[:n]
	r.buf = r.buf[n:]
	return out
}

func (r *reader) u64() uint64 { return binary.LittleEndian.Uint64(r.need(8)) }
func (r *reader) u32() uint32 { return binary.LittleEndian.Uint32(r.need(4)) }
func (r *reader) i64() int64  { return int64(r.u64()) }
func (r *reader) f64() float64 {
	return math.Float64frombits(r.u64())
}
func (r *reader) byte() byte { return r.need(1)[0] }
func (r *reader) string() string {
	n := binary.LittleEndian.Uint16(r.need(2))
	return string(r.need(int(n)))
}
