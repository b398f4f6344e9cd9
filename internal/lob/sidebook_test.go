package lob

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/abdoElHodaky/lobcore/pkg/lobtypes"
)

func TestSideBookSetAndBest(t *testing.T) {
	var s SideBook
	_, ok := s.Best()
	require.False(t, ok)

	s.Set(0, lobtypes.PxFromFloat(99.5), lobtypes.QtyFromFloat(100))
	best, ok := s.Best()
	require.True(t, ok)
	require.Equal(t, lobtypes.PxFromFloat(99.5), best.Price)
	require.Equal(t, 1, s.Depth())
}

func TestSideBookRemovalShiftsLevelsDown(t *testing.T) {
	var s SideBook
	s.Set(0, lobtypes.PxFromFloat(99.5), lobtypes.QtyFromFloat(100))
	s.Set(1, lobtypes.PxFromFloat(99.0), lobtypes.QtyFromFloat(200))
	s.Set(2, lobtypes.PxFromFloat(98.5), lobtypes.QtyFromFloat(300))

	s.Set(1, lobtypes.PxFromFloat(99.0), 0) // remove level 1

	require.Equal(t, 2, s.Depth())
	lvl, ok := s.LevelAt(1)
	require.True(t, ok)
	require.Equal(t, lobtypes.PxFromFloat(98.5), lvl.Price)
	require.Equal(t, lobtypes.QtyFromFloat(300), lvl.Qty)
}

func TestSideBookOutOfRangeLevelIgnored(t *testing.T) {
	var s SideBook
	s.Set(Depth, lobtypes.PxFromFloat(1), lobtypes.QtyFromFloat(1))
	require.Equal(t, 0, s.Depth())
}

func TestSideBookTotalQtyAndClear(t *testing.T) {
	var s SideBook
	s.Set(0, lobtypes.PxFromFloat(100), lobtypes.QtyFromFloat(10))
	s.Set(1, lobtypes.PxFromFloat(99), lobtypes.QtyFromFloat(20))
	require.Equal(t, lobtypes.QtyFromFloat(30), s.TotalQty(5))
	require.Equal(t, lobtypes.QtyFromFloat(10), s.TotalQty(1))

	s.Clear()
	require.Equal(t, 0, s.Depth())
	_, ok := s.Best()
	require.False(t, ok)
}

// invariant: for all sequences of Set operations, depth <= Depth and every
// populated slot below depth is non-zero.
func TestSideBookInvariantAfterRandomizedSets(t *testing.T) {
	var s SideBook
	ops := []struct {
		level int
		price float64
		qty   float64
	}{
		{0, 100, 5}, {1, 99, 5}, {2, 98, 5}, {1, 99, 0}, {0, 100, 0}, {5, 90, 3}, {40, 1, 1},
	}
	for _, op := range ops {
		s.Set(op.level, lobtypes.PxFromFloat(op.price), lobtypes.QtyFromFloat(op.qty))
		require.LessOrEqual(t, s.Depth(), Depth)
		for i := 0; i < s.Depth(); i++ {
			lvl, ok := s.LevelAt(i)
			require.True(t, ok)
			require.False(t, lvl.Qty.IsZero())
		}
	}
}
