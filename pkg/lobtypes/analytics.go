package lobtypes

import "go.uber.org/zap"

// AnalyticsBoundary range-checks Px/Qty to float64 conversions and logs
// an out-of-range value rather than silently truncating it. The features
// Calculator routes its mid-price return series through it;
// OrderBook.Imbalance and the Calculator's VWAP deviation convert to
// float64 directly and do not pass through this boundary.
type AnalyticsBoundary struct {
	logger *zap.Logger
}

// NewAnalyticsBoundary builds a boundary bound to logger. A nil logger is
// replaced with zap.NewNop() so callers never need a nil check.
func NewAnalyticsBoundary(logger *zap.Logger) *AnalyticsBoundary {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalyticsBoundary{logger: logger}
}

// PxToFloat converts p to float64, logging a warning and returning 0 when
// the safe-integer range is exceeded instead of silently wrapping.
func (a *AnalyticsBoundary) PxToFloat(p Px) float64 {
	v, ok := p.AsFloat()
	if !ok {
		a.logger.Warn("px exceeds safe f64 integer range", zap.Int64("raw_ticks", int64(p)))
		return 0
	}
	return v
}

// QtyToFloat converts q to float64 under the same guard.
func (a *AnalyticsBoundary) QtyToFloat(q Qty) float64 {
	v, ok := q.AsFloat()
	if !ok {
		a.logger.Warn("qty exceeds safe f64 integer range", zap.Int64("raw_lots", int64(q)))
		return 0
	}
	return v
}
