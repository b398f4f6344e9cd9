// Package lob implements the per-symbol limit order book: a fixed-depth
// structure-of-arrays side book and the two-sided order book built on top
// of it. Books are exclusively owned by one goroutine per symbol; nothing
// in this package synchronizes access internally, matching the
// single-writer-per-symbol model the bus enforces upstream.
package lob

import "github.com/abdoElHodaky/lobcore/pkg/lobtypes"

// Depth is the maximum number of levels tracked per side. The core
// publishes at most this many levels; anything beyond is dropped.
const Depth = 32

// SideBook holds one side (bid or ask) of a book as two parallel
// fixed-length arrays, following the structure-of-arrays layout that lets
// a vectorizing compiler reduce total_qty and bulk comparisons to SIMD
// loads. No heap allocation occurs after construction.
type SideBook struct {
	prices [Depth]lobtypes.Px
	qtys   [Depth]lobtypes.Qty
	depth  int
}

// Level is a single (price, qty) pair read out of a SideBook.
type Level struct {
	Price lobtypes.Px
	Qty   lobtypes.Qty
}

// Set applies an absolute-replace-at-level update. A zero qty removes the
// level and shifts every level above it down by one; level indices at or
// beyond Depth are silently ignored, as the feed is at fault, not the
// book.
func (s *SideBook) Set(level int, price lobtypes.Px, qty lobtypes.Qty) {
	if level < 0 || level >= Depth {
		return
	}
	if qty.IsZero() {
		s.remove(level)
		return
	}
	s.prices[level] = price
	s.qtys[level] = qty
	if level+1 > s.depth {
		s.depth = level + 1
	}
}

// remove clears slot `level` and shifts every entry above it down by one,
// zeroing the vacated top slot. O(depth - level).
func (s *SideBook) remove(level int) {
	if level >= s.depth {
		return
	}
	for i := level; i < s.depth-1; i++ {
		s.prices[i] = s.prices[i+1]
		s.qtys[i] = s.qtys[i+1]
	}
	last := s.depth - 1
	s.prices[last] = 0
	s.qtys[last] = 0
	s.depth--
}

// Best returns the top-of-book level and true iff the book is non-empty
// and slot 0 carries a non-zero quantity.
func (s *SideBook) Best() (Level, bool) {
	if s.depth == 0 || s.qtys[0].IsZero() {
		return Level{}, false
	}
	return Level{Price: s.prices[0], Qty: s.qtys[0]}, true
}

// Depth returns the current number of populated levels.
func (s *SideBook) Depth() int { return s.depth }

// LevelAt returns the level at the given index and whether it exists.
func (s *SideBook) LevelAt(i int) (Level, bool) {
	if i < 0 || i >= s.depth {
		return Level{}, false
	}
	return Level{Price: s.prices[i], Qty: s.qtys[i]}, true
}

// TotalQty sums the quantity across the top min(maxDepth, depth) levels.
func (s *SideBook) TotalQty(maxDepth int) lobtypes.Qty {
	n := s.depth
	if maxDepth < n {
		n = maxDepth
	}
	var total int64
	for i := 0; i < n; i++ {
		total += int64(s.qtys[i])
	}
	return lobtypes.Qty(total)
}

// Clear zeroes every populated slot and resets depth to 0, for venue
// reset notifications.
func (s *SideBook) Clear() {
	for i := 0; i < s.depth; i++ {
		s.prices[i] = 0
		s.qtys[i] = 0
	}
	s.depth = 0
}
