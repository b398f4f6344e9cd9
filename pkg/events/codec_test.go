package events

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/abdoElHodaky/lobcore/pkg/lobtypes"
)

// invariant 3: for all WalEvent E, decode(encode(E)) == E.
func TestRoundTripEveryVariant(t *testing.T) {
	cases := []WalEvent{
		NewTick(TickEvent{Ts: 1, Symbol: 7, Price: 1000000, Qty: 500, Venue: "NASDAQ"}),
		NewOrder(OrderEvent{Ts: 2, Symbol: 7, OrderID: 42, Side: lobtypes.Bid, Price: 999000, Qty: 10, StatusID: 3}),
		NewFill(FillEvent{Ts: 3, Symbol: 7, OrderID: 42, Price: 999000, Qty: 10}),
		NewSignal(SignalEvent{Ts: 4, Symbol: 7, Name: "imbalance", Value: -0.2}),
		NewRisk(RiskEvent{Ts: 5, Symbol: 7, Code: "LIMIT", Detail: "position cap exceeded"}),
		NewSystem(SystemEvent{Ts: 6, Venue: "NASDAQ", Kind: "reset", Detail: "venue snapshot boundary"}),
		NewSnapshot(SnapshotEvent{Ts: 7, Symbol: 7, BidPrice: 995000, BidQty: 20, AskPrice: 1005000, AskQty: 30}),
	}

	for _, e := range cases {
		encoded := Encode(e)
		decoded, err := Decode(encoded)
		require.NoError(t, err)
		require.Equal(t, e, decoded)
		require.Equal(t, e.Timestamp(), decoded.Timestamp())
	}
}

func TestVenueTruncatedTo16Bytes(t *testing.T) {
	e := NewTick(TickEvent{Ts: 1, Symbol: 1, Venue: "this-venue-name-is-definitely-too-long"})
	require.LessOrEqual(t, len(e.Tick.Venue), 16)
}

func TestDecodeTruncatedPayloadErrors(t *testing.T) {
	e := NewTick(TickEvent{Ts: 1, Symbol: 1, Price: 1, Qty: 1, Venue: "X"})
	encoded := Encode(e)
	_, err := Decode(encoded[:len(encoded)-2])
	require.Error(t, err)
}

func TestDecodeUnknownKindErrors(t *testing.T) {
	_, err := Decode([]byte{99, 0, 0, 0})
	require.Error(t, err)
}
