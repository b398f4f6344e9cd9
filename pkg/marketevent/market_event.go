// Package marketevent defines the per-symbol union the core publishes on
// the bus at the public surface: one of L2Update | LOBUpdate |
// FeatureFrame, selected by which field is non-nil. Subscribers select by
// concrete type at the call site; there is no string-topic system here.
package marketevent

import (
	"github.com/abdoElHodaky/lobcore/internal/features"
	"github.com/abdoElHodaky/lobcore/internal/lob"
	"github.com/abdoElHodaky/lobcore/pkg/lobtypes"
)

// MarketEvent is cloned on publish, like every bus message.
type MarketEvent struct {
	L2Update *lobtypes.L2Update
	LOB      *lob.BBOUpdate
	Feature  *features.FeatureFrame
}

// FromL2Update wraps a raw feed update.
func FromL2Update(u lobtypes.L2Update) MarketEvent { return MarketEvent{L2Update: &u} }

// FromLOB wraps a compact best-bid/offer snapshot.
func FromLOB(u lob.BBOUpdate) MarketEvent { return MarketEvent{LOB: &u} }

// FromFeature wraps a derived feature frame.
func FromFeature(f features.FeatureFrame) MarketEvent { return MarketEvent{Feature: &f} }
