package goch

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"globetrotter/mq/mq"
)

// receiveMsgWithTimeout returns the next message, or false on timeout or close.
func receiveMsgWithTimeout[T any](tb testing.TB, ch <-chan T, timeout time.Duration) (T, bool) {
	tb.Helper()
	select {
	case msg, ok := <-ch:
		if !ok {
			var zero T
			return zero, false
		}
		return msg, true
	case <-time.After(timeout):
		var zero T
		return zero, false
	}
}

type mockItem struct {
	Value   int
	TopicID uuid.UUID
}

func (item mockItem) GetTopic() uuid.UUID {
	return item.TopicID
}

func TestFanOutQueueCore_TopicRouting(t *testing.T) {
	t.Parallel()
	core := newFanOutQueueCore[mockItem](10)
	defer core.Stop()

	topic1, topic2 := uuid.New(), uuid.New()
	_, ch1, err := core.Subscribe(topic1)
	require.NoError(t, err)
	_, ch2, err := core.Subscribe(topic2)
	require.NoError(t, err)

	require.NoError(t, core.Publish(mockItem{Value: 1, TopicID: topic1}))
	require.NoError(t, core.Publish(mockItem{Value: 2, TopicID: topic2}))
	require.NoError(t, core.Publish(mockItem{Value: 3, TopicID: uuid.New()}))

	msg, ok := receiveMsgWithTimeout(t, ch1, time.Second)
	require.True(t, ok)
	assert.Equal(t, 1, msg.Value)
	msg, ok = receiveMsgWithTimeout(t, ch2, time.Second)
	require.True(t, ok)
	assert.Equal(t, 2, msg.Value)

	// nothing else arrives
	_, ok = receiveMsgWithTimeout(t, ch1, 100*time.Millisecond)
	assert.False(t, ok)
}

func TestFanOutQueueCore_MultipleSubscribersInOrder(t *testing.T) {
	t.Parallel()
	core := newFanOutQueueCore[mockItem](10)
	defer core.Stop()

	topic := uuid.New()
	var chans []<-chan mockItem
	for i := 0; i < 3; i++ {
		_, ch, err := core.Subscribe(topic)
		require.NoError(t, err)
		chans = append(chans, ch)
	}
	for v := 1; v <= 3; v++ {
		require.NoError(t, core.Publish(mockItem{Value: v, TopicID: topic}))
	}
	for _, ch := range chans {
		for v := 1; v <= 3; v++ {
			msg, ok := receiveMsgWithTimeout(t, ch, time.Second)
			require.True(t, ok)
			assert.Equal(t, v, msg.Value)
		}
	}
}

func TestFanOutQueueCore_DeSubscribe(t *testing.T) {
	t.Parallel()
	core := newFanOutQueueCore[mockItem](1)
	defer core.Stop()

	id, ch, err := core.Subscribe(uuid.New())
	require.NoError(t, err)
	require.NoError(t, core.DeSubscribe(id))
	_, open := <-ch
	assert.False(t, open, "channel should be closed after DeSubscribe")

	missing := uuid.New()
	err = core.DeSubscribe(missing)
	require.Error(t, err)
	assert.Equal(t, fmt.Sprintf("goch: subscriber with ID '%s' not found", missing), err.Error())
}

func TestFanOutQueueCore_BlockedSubscriberIsRemoved(t *testing.T) {
	t.Parallel()
	core := newFanOutQueueCore[mockItem](0)
	defer core.Stop()

	topic := uuid.New()
	id, ch, err := core.Subscribe(topic)
	require.NoError(t, err)

	// nobody reads ch, so the unbuffered send times out
	go func() { _ = core.Publish(mockItem{Value: 1, TopicID: topic}) }()

	assert.Eventually(t, func() bool {
		core.mu.RLock()
		defer core.mu.RUnlock()
		_, still := core.subscribers[id]
		return !still
	}, 2*time.Second, 20*time.Millisecond)

	_, open := <-ch
	assert.False(t, open)
}

func TestFanOutQueueCore_StoppedQueueRejects(t *testing.T) {
	t.Parallel()
	core := newFanOutQueueCore[mockItem](1)
	core.Stop()
	core.Stop() // idempotent

	assert.ErrorIs(t, core.Publish(mockItem{TopicID: uuid.New()}), ErrQueueClosed)
	_, _, err := core.Subscribe(uuid.New())
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestChannelTripEventQueue_WithSubscribeProcessor(t *testing.T) {
	t.Parallel()
	q := NewChannelTripEventQueue(8)
	defer q.Close()

	tripID := uuid.New()
	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan string, 4)
	err := mq.SubscribeProcessor(tripID, ctx, q, func(e mq.TripEvent) (string, bool, error) {
		return string(e.Type), e.Type == mq.EventExpenseAdded, nil
	}, out)
	require.NoError(t, err)

	// the subscription is registered synchronously, so nothing is lost
	require.NoError(t, q.Publish(ctx, mq.TripEvent{TripID: tripID, Type: mq.EventExpenseAdded}))
	require.NoError(t, q.Publish(ctx, mq.TripEvent{TripID: tripID, Type: mq.EventStopAppended}))

	got, ok := receiveMsgWithTimeout(t, out, time.Second)
	require.True(t, ok)
	assert.Equal(t, string(mq.EventStopAppended), got)

	cancel()
	assert.Eventually(t, func() bool {
		_, open := <-out
		return !open
	}, time.Second, 10*time.Millisecond)
}
