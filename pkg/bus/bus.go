// Package bus implements a typed multi-producer/multi-consumer channel
// with both blocking and non-blocking receive, in bounded and unbounded
// flavors. Publishers are cheap to clone; each Subscriber registration
// can in turn produce one or more Receiver handles that share its queue
// (a consumer group), while distinct Subscribers each get their own full
// copy of every published message.
package bus

import (
	"context"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/abdoElHodaky/lobcore/internal/diagnostics"
	"github.com/abdoElHodaky/lobcore/pkg/coreerrors"
)

// dispatchPoolSize bounds the goroutine pool used to fan a single
// publish out to many subscribers concurrently, instead of spawning one
// goroutine per subscriber per message.
const dispatchPoolSize = 64

// Config configures a Bus at construction. Capacity of 0 means
// Unbounded; any positive value makes every subscriber's queue bounded
// to that depth. Topic labels this bus's metrics when Diagnostics is
// set; it has no effect on delivery.
type Config struct {
	Capacity    int
	Topic       string
	Diagnostics *diagnostics.Registry
}

// Bus is the shared channel state. Construct one per message type with
// New; obtain Publisher/Subscriber handles from it.
type Bus[T any] struct {
	cfg    Config
	mu     sync.Mutex
	closed bool
	subs   map[uint64]*subscriber[T]
	nextID uint64
	pool   *ants.Pool
}

// New constructs a Bus. If the backing dispatch pool fails to allocate,
// the Bus has no pool and Publish delivers to subscribers one after
// another on the caller's goroutine.
func New[T any](cfg Config) *Bus[T] {
	b := &Bus[T]{cfg: cfg, subs: make(map[uint64]*subscriber[T])}
	pool, err := ants.NewPool(dispatchPoolSize, ants.WithNonblocking(false))
	if err == nil {
		b.pool = pool
	}
	return b
}

func (b *Bus[T]) topic() string {
	if b.cfg.Topic == "" {
		return "default"
	}
	return b.cfg.Topic
}

// Close disconnects every subscriber; subsequent Publish calls fail with
// ChannelDisconnected and pending Receivers observe ChannelDisconnected
// once their queue drains.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, s := range b.subs {
		s.closeQueue()
	}
	if b.pool != nil {
		b.pool.Release()
	}
}

// NewPublisher returns a cheap, cloneable handle for publishing onto b.
func (b *Bus[T]) NewPublisher() *Publisher[T] {
	return &Publisher[T]{bus: b}
}

// Subscribe registers a new Subscriber with its own queue.
func (b *Bus[T]) Subscribe() *Subscriber[T] {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	s := newSubscriber[T](b.cfg)
	b.subs[id] = s
	return &Subscriber[T]{bus: b, id: id, sub: s}
}

func (b *Bus[T]) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.subs[id]; ok {
		s.closeQueue()
		delete(b.subs, id)
	}
}

// Publisher is a cheap, cloneable handle used to enqueue messages.
type Publisher[T any] struct {
	bus *Bus[T]
}

// Clone returns another handle to the same bus, matching the teacher's
// convention of cheap, cloneable publisher handles.
func (p *Publisher[T]) Clone() *Publisher[T] { return p.bus.NewPublisher() }

// Publish enqueues msg onto every current subscriber's queue. On a
// bounded subscriber whose queue is full, Publish blocks until space is
// available. If no subscriber exists, it fails immediately with
// ChannelDisconnected.
func (p *Publisher[T]) Publish(msg T) error {
	b := p.bus
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.cfg.Diagnostics.IncBusDropped(b.topic())
		return coreerrors.New(coreerrors.ChannelDisconnected, "bus is closed")
	}
	if len(b.subs) == 0 {
		b.mu.Unlock()
		b.cfg.Diagnostics.IncBusDropped(b.topic())
		return coreerrors.New(coreerrors.ChannelDisconnected, "no subscriber registered")
	}
	targets := make([]*subscriber[T], 0, len(b.subs))
	for _, s := range b.subs {
		targets = append(targets, s)
	}
	pool := b.pool
	b.mu.Unlock()

	if len(targets) == 1 || pool == nil {
		for _, s := range targets {
			s.enqueue(msg)
		}
		b.cfg.Diagnostics.IncBusEnqueued(b.topic())
		return nil
	}

	var wg sync.WaitGroup
	wg.Add(len(targets))
	for _, s := range targets {
		s := s
		err := pool.Submit(func() {
			defer wg.Done()
			s.enqueue(msg)
		})
		if err != nil {
			// Pool saturated or closed mid-publish: fall back to a
			// direct call so delivery still happens.
			wg.Done()
			s.enqueue(msg)
		}
	}
	wg.Wait()
	b.cfg.Diagnostics.IncBusEnqueued(b.topic())
	return nil
}

// TryPublish is Publish for bounded busses where the caller wants
// ChannelFull instead of blocking when any subscriber's queue is full.
// On an unbounded bus it always succeeds (barring disconnection).
func (p *Publisher[T]) TryPublish(msg T) error {
	b := p.bus
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.cfg.Diagnostics.IncBusDropped(b.topic())
		return coreerrors.New(coreerrors.ChannelDisconnected, "bus is closed")
	}
	if len(b.subs) == 0 {
		b.mu.Unlock()
		b.cfg.Diagnostics.IncBusDropped(b.topic())
		return coreerrors.New(coreerrors.ChannelDisconnected, "no subscriber registered")
	}
	targets := make([]*subscriber[T], 0, len(b.subs))
	for _, s := range b.subs {
		targets = append(targets, s)
	}
	b.mu.Unlock()

	for _, s := range targets {
		if !s.tryEnqueue(msg) {
			b.cfg.Diagnostics.IncBusDropped(b.topic())
			return coreerrors.New(coreerrors.ChannelFull, "subscriber queue full")
		}
	}
	b.cfg.Diagnostics.IncBusEnqueued(b.topic())
	return nil
}

// Subscriber is a registration on a Bus; it owns one shared queue that
// every Receiver produced from it competes to drain.
type Subscriber[T any] struct {
	bus *Bus[T]
	id  uint64
	sub *subscriber[T]
}

// Receiver returns a handle sharing this Subscriber's queue. Multiple
// Receivers from the same Subscriber form a consumer group: each
// message is delivered to exactly one of them.
func (s *Subscriber[T]) Receiver() *Receiver[T] {
	return &Receiver[T]{sub: s.sub}
}

// Unsubscribe removes this Subscriber from the bus.
func (s *Subscriber[T]) Unsubscribe() {
	s.bus.unsubscribe(s.id)
}

// Receiver reads from a Subscriber's shared queue.
type Receiver[T any] struct {
	sub *subscriber[T]
}

// Recv blocks until a message is available, the bus is disconnected, or
// ctx is canceled.
func (r *Receiver[T]) Recv(ctx context.Context) (T, error) {
	return r.sub.recv(ctx)
}

// TryRecv returns immediately: (msg, true, nil) on success, (zero,
// false, nil) when nothing is queued, or (zero, false, err) when the bus
// is disconnected.
func (r *Receiver[T]) TryRecv() (T, bool, error) {
	return r.sub.tryRecv()
}
