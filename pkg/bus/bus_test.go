package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/abdoElHodaky/lobcore/pkg/coreerrors"
)

func TestUnboundedFIFOPerPublisher(t *testing.T) {
	b := New[int](Config{})
	sub := b.Subscribe()
	recv := sub.Receiver()
	pub := b.NewPublisher()

	for i := 0; i < 100; i++ {
		require.NoError(t, pub.Publish(i))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for i := 0; i < 100; i++ {
		msg, err := recv.Recv(ctx)
		require.NoError(t, err)
		require.Equal(t, i, msg)
	}
}

func TestBoundedTryPublishReportsFullThenDelivers(t *testing.T) {
	b := New[int](Config{Capacity: 2})
	sub := b.Subscribe()
	recv := sub.Receiver()
	pub := b.NewPublisher()

	require.NoError(t, pub.Publish(1))
	require.NoError(t, pub.Publish(2))

	err := pub.TryPublish(3)
	require.Error(t, err)
	require.True(t, coreerrors.Is(err, coreerrors.ChannelFull))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, err := recv.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, msg)

	require.NoError(t, pub.TryPublish(3))
}

func TestPublishWithNoSubscriberIsDisconnected(t *testing.T) {
	b := New[int](Config{})
	pub := b.NewPublisher()
	err := pub.Publish(1)
	require.Error(t, err)
	require.True(t, coreerrors.Is(err, coreerrors.ChannelDisconnected))
}

func TestMultipleSubscribersEachGetFullCopy(t *testing.T) {
	b := New[string](Config{})
	subA := b.Subscribe()
	subB := b.Subscribe()
	recvA := subA.Receiver()
	recvB := subB.Receiver()
	pub := b.NewPublisher()

	require.NoError(t, pub.Publish("hello"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msgA, err := recvA.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, "hello", msgA)

	msgB, err := recvB.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, "hello", msgB)
}

func TestReceiversFromSameSubscriberShareQueue(t *testing.T) {
	b := New[int](Config{})
	sub := b.Subscribe()
	r1 := sub.Receiver()
	r2 := sub.Receiver()
	pub := b.NewPublisher()

	for i := 0; i < 10; i++ {
		require.NoError(t, pub.Publish(i))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	seen := make(map[int]bool)
	for i := 0; i < 10; i++ {
		var msg int
		var err error
		if i%2 == 0 {
			msg, err = r1.Recv(ctx)
		} else {
			msg, err = r2.Recv(ctx)
		}
		require.NoError(t, err)
		seen[msg] = true
	}
	require.Len(t, seen, 10)
}

func TestTryRecvOnEmptyQueueReturnsFalse(t *testing.T) {
	b := New[int](Config{})
	sub := b.Subscribe()
	recv := sub.Receiver()

	_, ok, err := recv.TryRecv()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCloseDisconnectsPendingReceiver(t *testing.T) {
	b := New[int](Config{})
	sub := b.Subscribe()
	recv := sub.Receiver()

	errCh := make(chan error, 1)
	go func() {
		_, err := recv.Recv(context.Background())
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	b.Close()

	select {
	case err := <-errCh:
		require.True(t, coreerrors.Is(err, coreerrors.ChannelDisconnected))
	case <-time.After(time.Second):
		t.Fatal("Recv did not observe bus close")
	}
}

func TestUnsubscribeRemovesTarget(t *testing.T) {
	b := New[int](Config{})
	sub := b.Subscribe()
	pub := b.NewPublisher()
	sub.Unsubscribe()

	err := pub.Publish(1)
	require.Error(t, err)
	require.True(t, coreerrors.Is(err, coreerrors.ChannelDisconnected))
}
