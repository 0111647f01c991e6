package broker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryPublishFansOutToAllSubscribers(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	ch1, cancel1, err := m.Subscribe(ctx, "topic.a")
	require.NoError(t, err)
	defer cancel1()
	ch2, cancel2, err := m.Subscribe(ctx, "topic.a")
	require.NoError(t, err)
	defer cancel2()

	require.NoError(t, m.Publish(ctx, "topic.a", []byte("hello")))

	msg1 := <-ch1
	msg2 := <-ch2
	assert.Equal(t, []byte("hello"), msg1.Payload)
	assert.Equal(t, []byte("hello"), msg2.Payload)
}

func TestMemoryPublishWithNoSubscribersDoesNotBlock(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	assert.NoError(t, m.Publish(context.Background(), "nobody.listening", []byte("x")))
}

func TestMemoryPublishDropsWhenSubscriberBufferFull(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	ch, cancel, err := m.Subscribe(ctx, "topic.full")
	require.NoError(t, err)
	defer cancel()

	// Flood past the subscriber's buffer without ever draining it; Publish
	// must never block the publishing goroutine.
	done := make(chan struct{})
	go func() {
		for i := 0; i < subBufferSize*4; i++ {
			_ = m.Publish(ctx, "topic.full", []byte("x"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
	assert.LessOrEqual(t, len(ch), subBufferSize)
}

func TestMemorySubscribeCancelClosesChannel(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	ch, cancel, err := m.Subscribe(ctx, "topic.b")
	require.NoError(t, err)
	cancel()

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after cancel")
}

func TestMemorySubscribeUnsubscribesOnContextDone(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx, cancel := context.WithCancel(context.Background())

	ch, _, err := m.Subscribe(ctx, "topic.c")
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel was not closed after context cancellation")
	}
}

func TestMemorySetGetRoundTrip(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "key.1", []byte("value"), time.Minute))
	got, err := m.Get(ctx, "key.1")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), got)
}

func TestMemoryGetExpiredKeyReturnsNotFound(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "key.expiring", []byte("value"), time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	_, err := m.Get(ctx, "key.expiring")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryGetMissingKeyReturnsNotFound(t *testing.T) {
	m := NewMemory()
	defer m.Close()

	_, err := m.Get(context.Background(), "never.set")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryDeleteIsIdempotent(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "key.del", []byte("v"), time.Minute))
	require.NoError(t, m.Delete(ctx, "key.del"))
	_, err := m.Get(ctx, "key.del")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting an absent key must not error.
	assert.NoError(t, m.Delete(ctx, "key.del"))
}
