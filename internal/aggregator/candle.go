// Package aggregator consumes trades and produces OHLCV candles per
// (symbol, timeframe), optionally persisting every processed trade to a
// WAL as a Tick event.
package aggregator

import (
	"github.com/abdoElHodaky/lobcore/pkg/lobtypes"
)

// Candle is one sealed or open OHLCV bucket.
type Candle struct {
	SequenceID string // assigned on seal, for downstream dedup/ordering
	BucketTs   lobtypes.Ts
	Open       lobtypes.Px
	High       lobtypes.Px
	Low        lobtypes.Px
	Close      lobtypes.Px
	Volume     lobtypes.Qty
	Trades     uint32
}

// bucketKey identifies one (symbol, timeframe) candle stream.
type bucketKey struct {
	symbol    lobtypes.Symbol
	timeframe uint64
}

func bucketIndex(ts lobtypes.Ts, timeframeNs uint64) uint64 {
	return uint64(ts) / timeframeNs
}
