package goch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"globetrotter/mq/mq"
)

// slowSubscriberTimeout bounds how long fan-out waits on one subscriber before dropping it.
const slowSubscriberTimeout = 200 * time.Millisecond

type subscriber[M any] struct {
	topic uuid.UUID
	ch    chan M
}

// fanOutQueueCore delivers every published message to each subscriber of its topic.
// A single routine does the fan-out, so per-topic order is preserved.
type fanOutQueueCore[M mq.TopicProvider] struct {
	publishChan chan M
	bufferSize  int
	mu          sync.RWMutex
	subscribers map[uuid.UUID]subscriber[M]
	quit        chan struct{}
	done        chan struct{}
	stopOnce    sync.Once
}

func newFanOutQueueCore[M mq.TopicProvider](bufferSize int) *fanOutQueueCore[M] {
	core := &fanOutQueueCore[M]{
		publishChan: make(chan M, bufferSize),
		bufferSize:  bufferSize,
		subscribers: make(map[uuid.UUID]subscriber[M]),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	go core.fanOutRoutine()
	return core
}

func (c *fanOutQueueCore[M]) fanOutRoutine() {
	defer close(c.done)
	for {
		select {
		case msg := <-c.publishChan:
			c.deliver(msg)
		case <-c.quit:
			return
		}
	}
}

// deliver holds the read lock while sending so DeSubscribe cannot close a
// channel mid-send. Subscribers that stay blocked are dropped afterwards.
func (c *fanOutQueueCore[M]) deliver(msg M) {
	topic := msg.GetTopic()
	var slow []uuid.UUID

	c.mu.RLock()
	for id, sub := range c.subscribers {
		if sub.topic != topic {
			continue
		}
		timer := time.NewTimer(slowSubscriberTimeout)
		select {
		case sub.ch <- msg:
			timer.Stop()
		case <-timer.C:
			slow = append(slow, id)
		}
	}
	c.mu.RUnlock()

	for _, id := range slow {
		slog.Warn("dropping slow subscriber", "subscription", id, "topic", topic)
		_ = c.DeSubscribe(id)
	}
}

// Publish enqueues msg without blocking; a full queue yields ErrQueueFull.
func (c *fanOutQueueCore[M]) Publish(msg M) error {
	select {
	case <-c.quit:
		return ErrQueueClosed
	default:
	}
	select {
	case c.publishChan <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

func (c *fanOutQueueCore[M]) Subscribe(topic uuid.UUID) (uuid.UUID, <-chan M, error) {
	select {
	case <-c.quit:
		return uuid.Nil, nil, ErrQueueClosed
	default:
	}
	id := uuid.New()
	ch := make(chan M, c.bufferSize)

	c.mu.Lock()
	c.subscribers[id] = subscriber[M]{topic: topic, ch: ch}
	c.mu.Unlock()
	return id, ch, nil
}

// DeSubscribe removes the subscriber and closes its channel.
func (c *fanOutQueueCore[M]) DeSubscribe(id uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, ok := c.subscribers[id]
	if !ok {
		return fmt.Errorf("goch: subscriber with ID '%s' not found", id)
	}
	delete(c.subscribers, id)
	close(sub.ch)
	return nil
}

// Stop ends the fan-out routine. Subscriber channels stay open until DeSubscribe.
func (c *fanOutQueueCore[M]) Stop() {
	c.stopOnce.Do(func() {
		close(c.quit)
		<-c.done
	})
}

// ChannelTripEventQueue implements mq.TripEventQueue in process.
type ChannelTripEventQueue struct {
	core *fanOutQueueCore[mq.TripEvent]
}

var _ mq.TripEventQueue = (*ChannelTripEventQueue)(nil)

// NewChannelTripEventQueue creates a queue; bufferSize applies to the publish
// queue and to every subscriber channel.
func NewChannelTripEventQueue(bufferSize int) *ChannelTripEventQueue {
	return &ChannelTripEventQueue{core: newFanOutQueueCore[mq.TripEvent](bufferSize)}
}

func (q *ChannelTripEventQueue) Publish(ctx context.Context, event mq.TripEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return q.core.Publish(event)
}

func (q *ChannelTripEventQueue) Subscribe(tripID uuid.UUID) (uuid.UUID, <-chan mq.TripEvent, error) {
	return q.core.Subscribe(tripID)
}

func (q *ChannelTripEventQueue) DeSubscribe(id uuid.UUID) error {
	return q.core.DeSubscribe(id)
}

func (q *ChannelTripEventQueue) Close() error {
	q.core.Stop()
	return nil
}

// --- Error Definitions ---
type QueueError string

func (e QueueError) Error() string {
	return string(e)
}

const (
	ErrQueueFull   QueueError = "message queue is full"
	ErrQueueClosed QueueError = "message queue is closed"
)
