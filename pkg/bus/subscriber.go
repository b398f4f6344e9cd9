package bus

import (
	"context"
	"sync"

	"github.com/abdoElHodaky/lobcore/pkg/coreerrors"
)

// subscriber holds one Subscriber's queue, shared by every Receiver
// produced from it. Exactly one of the two storage strategies is active,
// chosen at construction from Config.Capacity.
type subscriber[T any] struct {
	bounded chan T // non-nil when Capacity > 0

	mu     sync.Mutex
	items  []T // unbounded storage
	signal chan struct{}
	closed bool
}

func newSubscriber[T any](cfg Config) *subscriber[T] {
	s := &subscriber[T]{signal: make(chan struct{}, 1)}
	if cfg.Capacity > 0 {
		s.bounded = make(chan T, cfg.Capacity)
	}
	return s
}

func (s *subscriber[T]) closeQueue() {
	if s.bounded != nil {
		s.mu.Lock()
		if !s.closed {
			s.closed = true
			close(s.bounded)
		}
		s.mu.Unlock()
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.wake()
}

func (s *subscriber[T]) wake() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// enqueue delivers msg, blocking on a full bounded queue until space is
// available. It is a no-op once the subscriber has been closed.
func (s *subscriber[T]) enqueue(msg T) {
	if s.bounded != nil {
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return
		}
		s.bounded <- msg
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.items = append(s.items, msg)
	s.mu.Unlock()
	s.wake()
}

// tryEnqueue delivers msg without blocking, reporting false if a bounded
// queue is full.
func (s *subscriber[T]) tryEnqueue(msg T) bool {
	if s.bounded != nil {
		select {
		case s.bounded <- msg:
			return true
		default:
			return false
		}
	}
	s.enqueue(msg)
	return true
}

func (s *subscriber[T]) recv(ctx context.Context) (T, error) {
	var zero T
	if s.bounded != nil {
		select {
		case msg, ok := <-s.bounded:
			if !ok {
				return zero, coreerrors.New(coreerrors.ChannelDisconnected, "subscriber closed")
			}
			return msg, nil
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}

	for {
		if msg, ok := s.pop(); ok {
			return msg, nil
		}
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return zero, coreerrors.New(coreerrors.ChannelDisconnected, "subscriber closed")
		}
		select {
		case <-s.signal:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

func (s *subscriber[T]) tryRecv() (T, bool, error) {
	var zero T
	if s.bounded != nil {
		select {
		case msg, ok := <-s.bounded:
			if !ok {
				return zero, false, coreerrors.New(coreerrors.ChannelDisconnected, "subscriber closed")
			}
			return msg, true, nil
		default:
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return zero, false, coreerrors.New(coreerrors.ChannelDisconnected, "subscriber closed")
			}
			return zero, false, nil
		}
	}

	if msg, ok := s.pop(); ok {
		return msg, true, nil
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return zero, false, coreerrors.New(coreerrors.ChannelDisconnected, "subscriber closed")
	}
	return zero, false, nil
}

func (s *subscriber[T]) pop() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.items) == 0 {
		var zero T
		return zero, false
	}
	msg := s.items[0]
	s.items[0] = *new(T)
	s.items = s.items[1:]
	return msg, true
}
