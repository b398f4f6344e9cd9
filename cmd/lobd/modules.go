package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/lobcore/internal/aggregator"
	"github.com/abdoElHodaky/lobcore/internal/config"
	"github.com/abdoElHodaky/lobcore/internal/diagnostics"
	"github.com/abdoElHodaky/lobcore/internal/wal"
	"github.com/abdoElHodaky/lobcore/pkg/bus"
	"github.com/abdoElHodaky/lobcore/pkg/feed"
	"github.com/abdoElHodaky/lobcore/pkg/feed/simfeed"
	"github.com/abdoElHodaky/lobcore/pkg/lobtypes"
)

// ConfigModule loads the effective configuration and a level-appropriate
// zap.Logger from it. Both are supplied once and shared by every other
// module.
var ConfigModule = fx.Options(
	fx.Provide(loadConfig),
	fx.Provide(buildLogger),
)

func loadConfig() (*config.Config, error) {
	path := os.Getenv("LOBD_CONFIG_PATH")
	return config.LoadConfig(path)
}

func buildLogger(cfg *config.Config) (*zap.Logger, error) {
	return config.InitLogger(cfg)
}

// DiagnosticsModule provides the Prometheus registry/registry wrapper
// and exposes them over HTTP when Config.Diagnostics.Enabled.
var DiagnosticsModule = fx.Options(
	fx.Provide(newPrometheusRegisterer),
	fx.Provide(diagnostics.NewRegistry),
	fx.Invoke(registerMetricsHandler),
)

func newPrometheusRegisterer() prometheus.Registerer {
	return prometheus.NewRegistry()
}

func registerMetricsHandler(lc fx.Lifecycle, cfg *config.Config, reg prometheus.Registerer, logger *zap.Logger) {
	promReg, ok := reg.(*prometheus.Registry)
	if !ok || !cfg.Diagnostics.Enabled {
		return
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Diagnostics.Path, promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: cfg.Diagnostics.Addr, Handler: mux}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			logger.Info("starting diagnostics exporter", zap.String("addr", server.Addr), zap.String("path", cfg.Diagnostics.Path))
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("diagnostics exporter error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("stopping diagnostics exporter")
			return server.Shutdown(ctx)
		},
	})
}

// WALModule opens the segmented WAL and registers it to close on shutdown.
var WALModule = fx.Options(
	fx.Provide(openWAL),
)

func openWAL(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger, diag *diagnostics.Registry) (*wal.Manager, error) {
	mgr, err := wal.Open(wal.Config{
		Dir:             cfg.WAL.Dir,
		MaxSegmentBytes: cfg.WAL.MaxSegmentBytes,
		FlushRateLimit:  cfg.WAL.FlushRateLimit,
		FlushBurst:      cfg.WAL.FlushBurst,
	}, logger, diag)
	if err != nil {
		return nil, fmt.Errorf("open wal: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return mgr.Close()
		},
	})
	return mgr, nil
}

// BusModule provides the three in-process busses the pipeline moves
// data across: raw L2 updates from the feed, the published market-event
// union, and the persisted-event union mirrored onto the WAL.
var BusModule = fx.Options(
	fx.Provide(newL2Bus),
	fx.Provide(newMarketEventBus),
	fx.Provide(newWalEventBus),
)

func newL2Bus(cfg *config.Config, diag *diagnostics.Registry) *bus.Bus[lobtypes.L2Update] {
	return bus.New[lobtypes.L2Update](bus.Config{Capacity: cfg.Bus.MarketCapacity, Topic: "l2update", Diagnostics: diag})
}

func newMarketEventBus(cfg *config.Config, diag *diagnostics.Registry) *bus.MarketEventBus {
	return bus.NewMarketEventBus(bus.Config{Capacity: cfg.Bus.MarketCapacity, Topic: "marketevent", Diagnostics: diag})
}

func newWalEventBus(cfg *config.Config, diag *diagnostics.Registry) *bus.WalEventBus {
	return bus.NewWalEventBus(bus.Config{Capacity: cfg.Bus.WalCapacity, Topic: "walevent", Diagnostics: diag})
}

// FeedModule provides the simulated feed adapter and the symbol table it
// drives.
var FeedModule = fx.Options(
	fx.Provide(newSymbolTableFromConfig),
	fx.Provide(newSimFeed),
)

func newSymbolTableFromConfig(cfg *config.Config) *symbolTable {
	return newSymbolTable(cfg.Feed.Symbols)
}

func newSimFeed(cfg *config.Config, table *symbolTable, logger *zap.Logger) *simfeed.Adapter {
	return simfeed.New(simfeed.Config{
		Symbols:    table.ids(),
		StartPrice: lobtypes.PxFromFloat(cfg.Feed.StartPrice),
		TickSize:   lobtypes.PxFromFloat(cfg.Feed.TickSize),
		LevelCount: uint8(cfg.Feed.LevelCount),
		Interval:   cfg.Feed.Interval,
		Seed:       cfg.Feed.Seed,
		Breaker: gobreaker.Settings{
			Name:        "lobd-feed",
			MaxRequests: 3,
			Interval:    10 * time.Second,
			Timeout:     2 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		},
	}, logger.Named("simfeed"))
}

var _ feed.Adapter = (*simfeed.Adapter)(nil)

// AggregatorModule provides the candle aggregator. The engine owns tick
// persistence and WAL-bus mirroring for every synthetic print it derives
// (see Engine.maybeEmitPrint), so the aggregator here is not also given a
// *wal.Manager — that would append the same Tick event twice.
var AggregatorModule = fx.Options(
	fx.Provide(newAggregator),
)

func newAggregator(cfg *config.Config, diag *diagnostics.Registry, logger *zap.Logger) *aggregator.Aggregator {
	timeframes := make([]uint64, len(cfg.Aggregator.TimeframesSeconds))
	for i, s := range cfg.Aggregator.TimeframesSeconds {
		timeframes[i] = uint64(s) * uint64(time.Second)
	}
	return aggregator.New(aggregator.Config{
		Timeframes:   timeframes,
		RingCapacity: cfg.Aggregator.RingCapacity,
		Diagnostics:  diag,
	}, logger.Named("aggregator"))
}

// EngineModule provides the pipeline engine and starts/stops it with the
// fx application lifecycle.
var EngineModule = fx.Options(
	fx.Provide(newEngine),
	fx.Invoke(registerEngineLifecycle),
)

func registerEngineLifecycle(lc fx.Lifecycle, e *Engine) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return e.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return e.Stop(ctx)
		},
	})
}
