package rabbit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"

	"globetrotter/mq/mq"
)

const (
	exchangeName = "trip_events_exchange" // All trip events go through this exchange
)

// routingKey is trip.<trip id>.<event type>, so a subscriber binds trip.<id>.#
func routingKey(event mq.TripEvent) string {
	return fmt.Sprintf("trip.%s.%s", event.TripID, event.Type)
}

func bindingKey(tripID uuid.UUID) string {
	return fmt.Sprintf("trip.%s.#", tripID)
}

type consumer struct {
	channel *amqp091.Channel
	out     chan mq.TripEvent
	done    chan struct{}
}

// RabbitTripEventQueue implements mq.TripEventQueue on a RabbitMQ topic exchange.
// Each subscriber gets its own exclusive queue and AMQP channel.
type RabbitTripEventQueue struct {
	conn      *amqp091.Connection
	pubMu     sync.Mutex // amqp channels are not safe for concurrent publishing
	pubChan   *amqp091.Channel
	mu        sync.Mutex // Protects the consumers map
	consumers map[uuid.UUID]*consumer
}

var _ mq.TripEventQueue = (*RabbitTripEventQueue)(nil)

func NewRabbitTripEventQueue(conn *amqp091.Connection) (*RabbitTripEventQueue, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchangeName, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchangeName, err)
	}
	return &RabbitTripEventQueue{
		conn:      conn,
		pubChan:   ch,
		consumers: make(map[uuid.UUID]*consumer),
	}, nil
}

func (q *RabbitTripEventQueue) Publish(ctx context.Context, event mq.TripEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal trip event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	q.pubMu.Lock()
	defer q.pubMu.Unlock()
	err = q.pubChan.PublishWithContext(ctx,
		exchangeName,      // exchange
		routingKey(event), // routing key
		false,             // mandatory
		false,             // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    event.At,
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("failed to publish trip event: %w", err)
	}
	return nil
}

func (q *RabbitTripEventQueue) Subscribe(tripID uuid.UUID) (uuid.UUID, <-chan mq.TripEvent, error) {
	ch, err := q.conn.Channel()
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	queueName, err := DeclareQueueAndExchange(ch, "", exchangeName, bindingKey(tripID))
	if err != nil {
		ch.Close()
		return uuid.Nil, nil, err
	}
	deliveries, err := ch.Consume(
		queueName, // queue
		"",        // consumer
		true,      // auto-ack
		true,      // exclusive
		false,     // no-local
		false,     // no-wait
		nil,       // args
	)
	if err != nil {
		ch.Close()
		return uuid.Nil, nil, fmt.Errorf("failed to register a consumer: %w", err)
	}

	subscriberID := uuid.New()
	c := &consumer{channel: ch, out: make(chan mq.TripEvent, 16), done: make(chan struct{})}
	q.mu.Lock()
	q.consumers[subscriberID] = c
	q.mu.Unlock()

	go func() {
		defer close(c.out)
		for d := range deliveries {
			var event mq.TripEvent
			if err := json.Unmarshal(d.Body, &event); err != nil {
				slog.Warn("failed to unmarshal trip event", "subscription", subscriberID, "error", err)
				continue
			}
			select {
			case c.out <- event:
			case <-c.done:
				return
			case <-time.After(1 * time.Second): // Prevent blocking indefinitely
				slog.Warn("timeout sending trip event to consumer, skipping", "subscription", subscriberID)
			}
		}
	}()

	return subscriberID, c.out, nil
}

// DeSubscribe closes the subscriber's AMQP channel, which also deletes its queue.
func (q *RabbitTripEventQueue) DeSubscribe(subscriberID uuid.UUID) error {
	q.mu.Lock()
	c, ok := q.consumers[subscriberID]
	delete(q.consumers, subscriberID)
	q.mu.Unlock()

	if !ok {
		return fmt.Errorf("consumer with ID %s not found", subscriberID)
	}
	close(c.done)
	return c.channel.Close()
}

// Close closes all channels and the RabbitMQ connection.
func (q *RabbitTripEventQueue) Close() error {
	q.mu.Lock()
	for id, c := range q.consumers {
		close(c.done)
		c.channel.Close()
		delete(q.consumers, id)
	}
	q.mu.Unlock()

	q.pubChan.Close()
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}
