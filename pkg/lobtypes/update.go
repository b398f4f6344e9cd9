package lobtypes

// L2Update is the in-process wire shape a feed adapter emits onto the bus
// for the book to apply: an absolute replace of one (symbol, side, level).
// It is never persisted in this form — the WAL stores WalEvent instead.
type L2Update struct {
	Ts     Ts
	Symbol Symbol
	Side   Side
	Price  Px
	Qty    Qty
	Level  uint8
}
