package bus

import (
	"github.com/abdoElHodaky/lobcore/pkg/events"
	"github.com/abdoElHodaky/lobcore/pkg/marketevent"
)

// MarketEventBus carries the market-update union (L2Update | LOBUpdate |
// FeatureFrame) that C3/C4 publish per symbol update.
type MarketEventBus = Bus[marketevent.MarketEvent]

// NewMarketEventBus constructs a MarketEventBus with the given capacity
// (0 for unbounded).
func NewMarketEventBus(cfg Config) *MarketEventBus { return New[marketevent.MarketEvent](cfg) }

// WalEventBus carries the persisted-event union (tick | order | fill |
// signal | risk | system | snapshot) alongside WAL append.
type WalEventBus = Bus[events.WalEvent]

// NewWalEventBus constructs a WalEventBus with the given capacity (0 for
// unbounded).
func NewWalEventBus(cfg Config) *WalEventBus { return New[events.WalEvent](cfg) }
