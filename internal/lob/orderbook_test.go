package lob

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/abdoElHodaky/lobcore/pkg/coreerrors"
	"github.com/abdoElHodaky/lobcore/pkg/lobtypes"
)

func newTestBook(cr CrossResolution) *OrderBook {
	return New(Config{Symbol: 1, CrossResolution: cr}, nil, nil)
}

// S1 — basic two-sided book.
func TestScenarioS1BasicTwoSidedBook(t *testing.T) {
	b := newTestBook(Reject)
	b.ApplyFast(lobtypes.L2Update{Ts: 1, Symbol: 1, Side: lobtypes.Bid, Price: lobtypes.PxFromFloat(99.5), Qty: lobtypes.QtyFromFloat(100), Level: 0})
	b.ApplyFast(lobtypes.L2Update{Ts: 2, Symbol: 1, Side: lobtypes.Ask, Price: lobtypes.PxFromFloat(100.5), Qty: lobtypes.QtyFromFloat(150), Level: 0})

	spread, ok := b.SpreadTicks()
	require.True(t, ok)
	require.Equal(t, lobtypes.Px(10000), spread)

	mid, ok := b.Mid()
	require.True(t, ok)
	require.Equal(t, lobtypes.Px(1_000_000), mid)

	micro, ok := b.Microprice()
	require.True(t, ok)
	require.Equal(t, lobtypes.Px(999_000), micro)

	imb := b.Imbalance(1)
	require.InDelta(t, -0.2, imb, 1e-9)
}

// S2 — level removal and shift.
func TestScenarioS2LevelRemovalAndShift(t *testing.T) {
	b := newTestBook(Reject)
	b.ApplyFast(lobtypes.L2Update{Ts: 1, Side: lobtypes.Bid, Price: lobtypes.PxFromFloat(99.5), Qty: lobtypes.QtyFromFloat(100), Level: 0})
	b.ApplyFast(lobtypes.L2Update{Ts: 2, Side: lobtypes.Ask, Price: lobtypes.PxFromFloat(100.5), Qty: lobtypes.QtyFromFloat(150), Level: 0})
	b.ApplyFast(lobtypes.L2Update{Ts: 3, Side: lobtypes.Bid, Price: lobtypes.PxFromFloat(99.0), Qty: lobtypes.QtyFromFloat(200), Level: 1})
	b.ApplyFast(lobtypes.L2Update{Ts: 4, Side: lobtypes.Bid, Price: lobtypes.PxFromFloat(98.5), Qty: lobtypes.QtyFromFloat(300), Level: 2})

	b.ApplyFast(lobtypes.L2Update{Ts: 5, Side: lobtypes.Bid, Price: lobtypes.PxFromFloat(99.0), Qty: 0, Level: 1})

	lvl, ok := b.BidLevel(1)
	require.True(t, ok)
	require.Equal(t, lobtypes.PxFromFloat(98.5), lvl.Price)
	require.Equal(t, lobtypes.QtyFromFloat(300), lvl.Qty)
}

// S3 — cross under AutoResolve.
func TestScenarioS3CrossUnderAutoResolve(t *testing.T) {
	b := newTestBook(AutoResolve)
	b.ApplyFast(lobtypes.L2Update{Ts: 1, Side: lobtypes.Bid, Price: lobtypes.PxFromFloat(100.0), Qty: lobtypes.QtyFromFloat(10), Level: 0})
	b.ApplyFast(lobtypes.L2Update{Ts: 2, Side: lobtypes.Ask, Price: lobtypes.PxFromFloat(100.5), Qty: lobtypes.QtyFromFloat(10), Level: 0})

	res, err := b.ApplyValidated(lobtypes.L2Update{Ts: 3, Side: lobtypes.Bid, Price: lobtypes.PxFromFloat(101.0), Qty: lobtypes.QtyFromFloat(10), Level: 0})
	require.NoError(t, err)
	require.True(t, res.Applied)
	require.True(t, res.Resolved)

	bestBid, ok := b.BestBid()
	require.True(t, ok)
	require.Equal(t, lobtypes.PxFromFloat(101.0), bestBid.Price)

	_, ok = b.BestAsk()
	require.False(t, ok)
}

func TestScenarioS3CrossTriggeredByAskUnderAutoResolve(t *testing.T) {
	b := newTestBook(AutoResolve)
	b.ApplyFast(lobtypes.L2Update{Ts: 1, Side: lobtypes.Bid, Price: lobtypes.PxFromFloat(100.0), Qty: lobtypes.QtyFromFloat(10), Level: 0})
	b.ApplyFast(lobtypes.L2Update{Ts: 2, Side: lobtypes.Ask, Price: lobtypes.PxFromFloat(100.5), Qty: lobtypes.QtyFromFloat(10), Level: 0})

	res, err := b.ApplyValidated(lobtypes.L2Update{Ts: 3, Side: lobtypes.Ask, Price: lobtypes.PxFromFloat(99.5), Qty: lobtypes.QtyFromFloat(10), Level: 0})
	require.NoError(t, err)
	require.True(t, res.Applied)
	require.True(t, res.Resolved)

	// The ask just moved aggressively through the bid; the stale bid
	// level must be evicted, not the ask that was just applied.
	bestAsk, ok := b.BestAsk()
	require.True(t, ok)
	require.Equal(t, lobtypes.PxFromFloat(99.5), bestAsk.Price)

	_, ok = b.BestBid()
	require.False(t, ok)
}

func TestCrossUnderRejectLeavesBookUnchanged(t *testing.T) {
	b := newTestBook(Reject)
	b.ApplyFast(lobtypes.L2Update{Ts: 1, Side: lobtypes.Bid, Price: lobtypes.PxFromFloat(100.0), Qty: lobtypes.QtyFromFloat(10), Level: 0})
	b.ApplyFast(lobtypes.L2Update{Ts: 2, Side: lobtypes.Ask, Price: lobtypes.PxFromFloat(100.5), Qty: lobtypes.QtyFromFloat(10), Level: 0})

	res, err := b.ApplyValidated(lobtypes.L2Update{Ts: 3, Side: lobtypes.Bid, Price: lobtypes.PxFromFloat(101.0), Qty: lobtypes.QtyFromFloat(10), Level: 0})
	require.Error(t, err)
	require.True(t, coreerrors.Is(err, coreerrors.CrossDetected))
	require.False(t, res.Applied)

	bestBid, ok := b.BestBid()
	require.True(t, ok)
	require.Equal(t, lobtypes.PxFromFloat(100.0), bestBid.Price)
}

func TestInvalidLevelIsDroppedAndLogged(t *testing.T) {
	b := newTestBook(Reject)
	_, err := b.ApplyValidated(lobtypes.L2Update{Side: lobtypes.Bid, Level: Depth})
	require.Error(t, err)
	require.True(t, coreerrors.Is(err, coreerrors.InvalidLevel))
}

// invariant 7: when bid_qty == ask_qty at best, microprice == mid.
func TestFeatureMonotonicityMicropriceEqualsMidWhenBalanced(t *testing.T) {
	b := newTestBook(Reject)
	b.ApplyFast(lobtypes.L2Update{Side: lobtypes.Bid, Price: lobtypes.PxFromFloat(100.0), Qty: lobtypes.QtyFromFloat(50), Level: 0})
	b.ApplyFast(lobtypes.L2Update{Side: lobtypes.Ask, Price: lobtypes.PxFromFloat(101.0), Qty: lobtypes.QtyFromFloat(50), Level: 0})

	mid, _ := b.Mid()
	micro, _ := b.Microprice()
	require.Equal(t, mid, micro)
}

func TestLockedBookIsReportedNotRejected(t *testing.T) {
	b := newTestBook(Reject)
	b.ApplyFast(lobtypes.L2Update{Side: lobtypes.Bid, Price: lobtypes.PxFromFloat(100.0), Qty: lobtypes.QtyFromFloat(10), Level: 0})
	b.ApplyFast(lobtypes.L2Update{Side: lobtypes.Ask, Price: lobtypes.PxFromFloat(100.0), Qty: lobtypes.QtyFromFloat(10), Level: 0})
	require.Equal(t, Locked, b.State())
}

func TestImbalanceZeroDenominatorCoercesToZero(t *testing.T) {
	b := newTestBook(Reject)
	require.Equal(t, 0.0, b.Imbalance(5))
	_, ok := b.ImbalanceOK(5)
	require.False(t, ok)
}
