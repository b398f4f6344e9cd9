// Package simfeed is an illustrative simulated Adapter: a random-walk L2
// feed used by cmd/lobd and tests in place of a real exchange transport.
package simfeed

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/lobcore/pkg/feed"
	"github.com/abdoElHodaky/lobcore/pkg/lobtypes"
)

// Config parameterizes the simulated walk.
type Config struct {
	Symbols      []lobtypes.Symbol
	StartPrice   lobtypes.Px
	TickSize     lobtypes.Px
	LevelCount   uint8 // levels populated per side, 1..32
	Interval     time.Duration
	Seed         int64
	Breaker      gobreaker.Settings
}

// Adapter is a simulated feed.Adapter. Each Run loop wraps its emission
// step in a circuit breaker so a string of synthetic transport errors
// (injected via FailNext, used in tests) trips and backs off instead of
// spinning.
type Adapter struct {
	cfg       Config
	logger    *zap.Logger
	sessionID string
	rng       *rand.Rand
	breaker   *gobreaker.CircuitBreaker
	mids      map[lobtypes.Symbol]lobtypes.Px

	connected bool
	failNext  int
}

// New constructs a simulated adapter. logger may be nil.
func New(cfg Config, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.LevelCount == 0 || cfg.LevelCount > 32 {
		cfg.LevelCount = 5
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Millisecond
	}
	if cfg.Breaker.Name == "" {
		cfg.Breaker = gobreaker.Settings{
			Name:        "simfeed",
			MaxRequests: 3,
			Interval:    10 * time.Second,
			Timeout:     2 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("simfeed circuit breaker state change",
					zap.String("name", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		}
	}

	a := &Adapter{
		cfg:    cfg,
		logger: logger,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		mids:   make(map[lobtypes.Symbol]lobtypes.Px),
	}
	a.breaker = gobreaker.NewCircuitBreaker(cfg.Breaker)
	for _, s := range cfg.Symbols {
		a.mids[s] = cfg.StartPrice
	}
	return a
}

// FailNext forces the next n emission attempts to return a synthetic
// transport error, exercising the circuit breaker in tests.
func (a *Adapter) FailNext(n int) { a.failNext = n }

// Connect assigns a session ID and marks the adapter connected.
func (a *Adapter) Connect(ctx context.Context) error {
	a.sessionID = uuid.NewString()
	a.connected = true
	a.logger.Info("simfeed connected", zap.String("session_id", a.sessionID))
	return nil
}

// Subscribe records the symbol set, initializing any not already seeded.
func (a *Adapter) Subscribe(ctx context.Context, symbols []lobtypes.Symbol) error {
	for _, s := range symbols {
		if _, ok := a.mids[s]; !ok {
			a.mids[s] = a.cfg.StartPrice
		}
	}
	a.cfg.Symbols = symbols
	return nil
}

// Run emits random-walk L2Updates until ctx is canceled. Each step is
// submitted through the circuit breaker so a burst of synthetic errors
// opens it and pauses emission instead of hammering the sender.
func (a *Adapter) Run(ctx context.Context, sender feed.Sender) error {
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_, err := a.breaker.Execute(func() (interface{}, error) {
				return nil, a.emit(sender)
			})
			if err != nil && err != gobreaker.ErrOpenState {
				a.logger.Warn("simfeed emit failed", zap.Error(err))
			}
		}
	}
}

func (a *Adapter) emit(sender feed.Sender) error {
	if a.failNext > 0 {
		a.failNext--
		return context.DeadlineExceeded
	}
	for _, symbol := range a.cfg.Symbols {
		mid := a.mids[symbol]
		step := lobtypes.Px((a.rng.Int63n(3) - 1) * int64(a.cfg.TickSize))
		mid += step
		if mid < a.cfg.TickSize {
			mid = a.cfg.TickSize
		}
		a.mids[symbol] = mid

		now := lobtypes.Ts(time.Now().UnixNano())
		for level := uint8(0); level < a.cfg.LevelCount; level++ {
			bidPx := mid - a.cfg.TickSize*lobtypes.Px(level+1)
			askPx := mid + a.cfg.TickSize*lobtypes.Px(level+1)
			qty := lobtypes.Qty((1 + a.rng.Int63n(50)) * int64(lobtypes.Scale))

			if err := sender.Publish(lobtypes.L2Update{
				Ts: now, Symbol: symbol, Side: lobtypes.Bid, Price: bidPx, Qty: qty, Level: level,
			}); err != nil {
				return err
			}
			if err := sender.Publish(lobtypes.L2Update{
				Ts: now, Symbol: symbol, Side: lobtypes.Ask, Price: askPx, Qty: qty, Level: level,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// Disconnect marks the adapter disconnected.
func (a *Adapter) Disconnect(ctx context.Context) error {
	a.connected = false
	a.logger.Info("simfeed disconnected", zap.String("session_id", a.sessionID))
	return nil
}
