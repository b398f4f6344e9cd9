package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/abdoElHodaky/lobcore/internal/aggregator"
	"github.com/abdoElHodaky/lobcore/internal/config"
	"github.com/abdoElHodaky/lobcore/internal/diagnostics"
	"github.com/abdoElHodaky/lobcore/internal/features"
	"github.com/abdoElHodaky/lobcore/internal/lob"
	"github.com/abdoElHodaky/lobcore/internal/wal"
	"github.com/abdoElHodaky/lobcore/pkg/bus"
	"github.com/abdoElHodaky/lobcore/pkg/events"
	"github.com/abdoElHodaky/lobcore/pkg/feed"
	"github.com/abdoElHodaky/lobcore/pkg/feed/simfeed"
	"github.com/abdoElHodaky/lobcore/pkg/lobtypes"
	"github.com/abdoElHodaky/lobcore/pkg/marketevent"
)

// symbolState bundles the per-symbol resources an update fans out
// through: book, feature calculator, and the last computed mid (to
// derive a synthetic print for the aggregator).
type symbolState struct {
	book   *lob.OrderBook
	calc   *features.Calculator
	hasMid bool
	lastMid lobtypes.Px
}

// Engine owns the demo pipeline: it drives the feed adapter, applies
// every L2Update to the right book, publishes derived market events, and
// mirrors trade-like activity through the candle aggregator and WAL.
type Engine struct {
	cfg    *config.Config
	logger *zap.Logger
	diag   *diagnostics.Registry

	table       *symbolTable
	feedAdapter feed.Adapter

	l2Bus     *bus.Bus[lobtypes.L2Update]
	marketBus *bus.MarketEventBus
	walBus    *bus.WalEventBus
	marketPub *bus.Publisher[marketevent.MarketEvent]
	walPub    *bus.Publisher[events.WalEvent]

	walMgr *wal.Manager
	agg    *aggregator.Aggregator

	states map[lobtypes.Symbol]*symbolState

	cancel context.CancelFunc
	done   chan struct{}
}

func newEngine(
	cfg *config.Config,
	logger *zap.Logger,
	diag *diagnostics.Registry,
	table *symbolTable,
	feedAdapter *simfeed.Adapter,
	l2Bus *bus.Bus[lobtypes.L2Update],
	marketBus *bus.MarketEventBus,
	walBus *bus.WalEventBus,
	walMgr *wal.Manager,
	agg *aggregator.Aggregator,
) *Engine {
	e := &Engine{
		cfg:         cfg,
		logger:      logger.Named("engine"),
		diag:        diag,
		table:       table,
		feedAdapter: feedAdapter,
		l2Bus:       l2Bus,
		marketBus:   marketBus,
		walBus:      walBus,
		walMgr:      walMgr,
		agg:         agg,
		states:      make(map[lobtypes.Symbol]*symbolState, len(table.byID)),
	}
	crossRes := crossResolutionFromString(cfg.Book.CrossResolution)
	regimeCache := features.NewRegimeCache(cfg.Features.RegimeCacheTTL)
	for _, id := range table.ids() {
		e.states[id] = &symbolState{
			book: lob.New(lob.Config{Symbol: id, CrossResolution: crossRes}, logger.Named("book"), diag),
			calc: features.New(features.Config{
				WindowNs: uint64(cfg.Features.WindowNs),
				Capacity: 256,
				RegimeThresholds: &features.RegimeThresholds{
					StableBelow:   cfg.Features.StableBelow,
					NormalBelow:   cfg.Features.NormalBelow,
					VolatileBelow: cfg.Features.VolatileBelow,
				},
				RegimeCache: regimeCache,
			}, logger.Named("features")),
		}
	}
	return e
}

func crossResolutionFromString(s string) lob.CrossResolution {
	switch s {
	case "auto_resolve":
		return lob.AutoResolve
	case "accept":
		return lob.Accept
	default:
		return lob.Reject
	}
}

// Start connects the feed, subscribes to the configured symbols, and
// launches the consumer and producer loops.
func (e *Engine) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})

	if err := e.feedAdapter.Connect(ctx); err != nil {
		cancel()
		return err
	}
	if err := e.feedAdapter.Subscribe(ctx, e.table.ids()); err != nil {
		cancel()
		return err
	}
	e.marketPub = e.marketBus.NewPublisher()
	e.walPub = e.walBus.NewPublisher()
	e.appendSystem("connect")

	l2Pub := e.l2Bus.NewPublisher()
	go func() {
		if err := e.feedAdapter.Run(runCtx, l2Pub); err != nil {
			e.logger.Warn("feed run exited", zap.Error(err))
		}
	}()

	sub := e.l2Bus.Subscribe()
	go e.consume(runCtx, sub.Receiver())

	return nil
}

// Stop tears down the feed and consumer loops and appends a disconnect
// marker to the WAL.
func (e *Engine) Stop(ctx context.Context) error {
	if e.cancel != nil {
		e.cancel()
	}
	if e.done != nil {
		<-e.done
	}
	e.appendSystem("disconnect")
	return e.feedAdapter.Disconnect(ctx)
}

func (e *Engine) consume(ctx context.Context, recv *bus.Receiver[lobtypes.L2Update]) {
	defer close(e.done)
	for {
		update, err := recv.Recv(ctx)
		if err != nil {
			return
		}
		e.processUpdate(update)
	}
}

func (e *Engine) processUpdate(u lobtypes.L2Update) {
	st, ok := e.states[u.Symbol]
	if !ok {
		return
	}

	if _, err := st.book.ApplyValidated(u); err != nil {
		e.logger.Debug("update rejected", zap.Error(err), zap.Uint32("symbol", uint32(u.Symbol)))
		return
	}

	e.publishMarketEvent(marketevent.FromL2Update(u))
	e.publishMarketEvent(marketevent.FromLOB(st.book.ToUpdate()))

	frame := st.calc.Calculate(st.book)
	e.publishMarketEvent(marketevent.FromFeature(frame))

	if frame.HasMid {
		e.maybeEmitPrint(u.Symbol, st, frame)
	}
}

func (e *Engine) publishMarketEvent(ev marketevent.MarketEvent) {
	if err := e.marketPub.Publish(ev); err != nil {
		e.logger.Warn("publish market event failed", zap.String("kind", marketEventKind(ev)), zap.Error(err))
	}
}

func marketEventKind(ev marketevent.MarketEvent) string {
	switch {
	case ev.L2Update != nil:
		return "l2update"
	case ev.LOB != nil:
		return "lob"
	case ev.Feature != nil:
		return "feature"
	default:
		return "unknown"
	}
}

// maybeEmitPrint derives a synthetic trade print whenever the mid moves,
// so the candle aggregator (which expects actual prints) has something
// to fold even though the simulated feed only emits book deltas.
func (e *Engine) maybeEmitPrint(symbol lobtypes.Symbol, st *symbolState, frame features.FeatureFrame) {
	if st.hasMid && frame.Mid == st.lastMid {
		return
	}
	isBuy := !st.hasMid || frame.Mid >= st.lastMid
	st.hasMid = true
	st.lastMid = frame.Mid

	qty := st.book.BidTotalQty(1) + st.book.AskTotalQty(1)
	if err := e.agg.ProcessTrade(symbol, frame.Ts, frame.Mid, qty, isBuy); err != nil {
		e.logger.Warn("aggregator process trade failed", zap.Error(err))
	}
	e.appendWalEvent(events.NewTick(events.TickEvent{
		Ts:     frame.Ts,
		Symbol: symbol,
		Price:  frame.Mid,
		Qty:    qty,
		Venue:  "simfeed",
	}))
}

func (e *Engine) appendSystem(kind string) {
	e.appendWalEvent(events.NewSystem(events.SystemEvent{
		Ts:    lobtypes.Ts(time.Now().UnixNano()),
		Venue: "simfeed",
		Kind:  kind,
	}))
}

// appendWalEvent persists ev to the WAL and mirrors it onto walBus so any
// subscriber sees the same persisted-event stream without reading the log.
func (e *Engine) appendWalEvent(ev events.WalEvent) {
	if e.walMgr != nil {
		if err := e.walMgr.Append(ev); err != nil {
			e.logger.Warn("append wal event failed", zap.Error(err))
		}
		if err := e.walMgr.FlushThrottled(); err != nil {
			e.logger.Warn("flush wal failed", zap.Error(err))
		}
	}
	if e.walPub != nil {
		if err := e.walPub.Publish(ev); err != nil {
			e.logger.Warn("publish wal event failed", zap.Error(err))
		}
	}
}
