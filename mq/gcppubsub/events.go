package gcppubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/google/uuid"

	"globetrotter/mq/mq"
)

const (
	tripIDAttribute    = "tripId"
	eventTypeAttribute = "eventType"
	tripEventsTopicID  = "trip-events"
)

// subscriptionInfo holds details about an active Pub/Sub subscription.
type subscriptionInfo struct {
	gcpSubscription *pubsub.Subscription
	cancel          context.CancelFunc
}

// GenericPubSubService publishes messages of type M on one topic and serves
// per-topic subscriptions through attribute filters.
type GenericPubSubService[M mq.TopicProvider] struct {
	client              *pubsub.Client
	topic               *pubsub.Topic
	activeSubscriptions map[uuid.UUID]*subscriptionInfo
	subscriptionsMutex  sync.Mutex
	ctx                 context.Context
	// attributes adds extra message attributes next to the trip id.
	attributes func(M) map[string]string
}

// NewGenericPubSubService ensures topicID exists, creating it if necessary.
func NewGenericPubSubService[M mq.TopicProvider](ctx context.Context, client *pubsub.Client, topicID string) (*GenericPubSubService[M], error) {
	if client == nil {
		return nil, fmt.Errorf("GCP Pub/Sub client is nil")
	}

	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check for existence of topic %s: %w", topicID, err)
	}
	if !exists {
		topic, err = client.CreateTopic(ctx, topicID)
		if err != nil {
			return nil, fmt.Errorf("failed to create topic %s: %w", topicID, err)
		}
		slog.Info("created Pub/Sub topic", "topic", topicID)
	}

	return &GenericPubSubService[M]{
		client:              client,
		topic:               topic,
		activeSubscriptions: make(map[uuid.UUID]*subscriptionInfo),
		ctx:                 ctx,
	}, nil
}

func typeName[M any]() string {
	return reflect.TypeOf(*new(M)).Name()
}

// Publish waits for the server to acknowledge msg.
func (s *GenericPubSubService[M]) Publish(ctx context.Context, msg M) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", typeName[M](), err)
	}

	attrs := map[string]string{tripIDAttribute: msg.GetTopic().String()}
	if s.attributes != nil {
		for k, v := range s.attributes(msg) {
			attrs[k] = v
		}
	}

	result := s.topic.Publish(ctx, &pubsub.Message{Data: body, Attributes: attrs})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("failed to publish %s to topic %s: %w", typeName[M](), s.topic.ID(), err)
	}
	return nil
}

// Subscribe creates a filtered subscription on GCP and starts listening for messages.
func (s *GenericPubSubService[M]) Subscribe(topicID uuid.UUID) (uuid.UUID, <-chan M, error) {
	subscriptionID := uuid.New()
	gcpSubName := fmt.Sprintf("sub-%s-%s", topicID, subscriptionID)

	config := pubsub.SubscriptionConfig{
		Topic:            s.topic,
		Filter:           fmt.Sprintf("attributes.%s = \"%s\"", tripIDAttribute, topicID),
		ExpirationPolicy: 24 * time.Hour,
		AckDeadline:      10 * time.Second,
	}
	gcpSub, err := s.client.CreateSubscription(s.ctx, gcpSubName, config)
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("failed to create GCP subscription %s: %w", gcpSubName, err)
	}

	msgChan := make(chan M, 16)
	receiveCtx, cancel := context.WithCancel(s.ctx)

	s.subscriptionsMutex.Lock()
	s.activeSubscriptions[subscriptionID] = &subscriptionInfo{gcpSubscription: gcpSub, cancel: cancel}
	s.subscriptionsMutex.Unlock()

	go func() {
		defer func() {
			s.subscriptionsMutex.Lock()
			delete(s.activeSubscriptions, subscriptionID)
			s.subscriptionsMutex.Unlock()

			// the GCP subscription would otherwise live until it expires
			if err := gcpSub.Delete(context.Background()); err != nil {
				slog.Warn("failed to delete GCP subscription", "subscription", gcpSub.ID(), "error", err)
			}
			close(msgChan)
		}()

		// Receive blocks until the context is cancelled.
		err := gcpSub.Receive(receiveCtx, func(ctx context.Context, pubsubMsg *pubsub.Message) {
			pubsubMsg.Ack()

			var msg M
			if err := json.Unmarshal(pubsubMsg.Data, &msg); err != nil {
				slog.Warn("failed to unmarshal message", "type", typeName[M](), "subscription", subscriptionID, "error", err)
				return
			}

			select {
			case msgChan <- msg:
			case <-time.After(2 * time.Second):
				slog.Warn("timeout handing message to subscriber", "type", typeName[M](), "subscription", subscriptionID)
			case <-receiveCtx.Done():
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("Pub/Sub receive loop failed", "subscription", subscriptionID, "error", err)
		}
	}()

	return subscriptionID, msgChan, nil
}

// DeSubscribe stops the receiver; its goroutine deletes the GCP subscription.
func (s *GenericPubSubService[M]) DeSubscribe(id uuid.UUID) error {
	s.subscriptionsMutex.Lock()
	info, ok := s.activeSubscriptions[id]
	if ok {
		info.cancel()
	}
	s.subscriptionsMutex.Unlock()

	if !ok {
		return fmt.Errorf("subscription ID %s not found for %s service", id, typeName[M]())
	}
	return nil
}

// Close cancels every active subscription.
func (s *GenericPubSubService[M]) Close() {
	s.subscriptionsMutex.Lock()
	defer s.subscriptionsMutex.Unlock()

	for _, info := range s.activeSubscriptions {
		info.cancel()
	}
}

// GCPTripEventQueue implements mq.TripEventQueue on a single Pub/Sub topic.
type GCPTripEventQueue struct {
	service *GenericPubSubService[mq.TripEvent]
	client  *pubsub.Client
}

var _ mq.TripEventQueue = (*GCPTripEventQueue)(nil)

// NewGCPTripEventQueue creates the queue using GCP Pub/Sub.
func NewGCPTripEventQueue(ctx context.Context, projectID string) (*GCPTripEventQueue, error) {
	client, err := NewClient(ctx, projectID)
	if err != nil {
		return nil, err
	}
	service, err := NewGenericPubSubService[mq.TripEvent](ctx, client, tripEventsTopicID)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create generic service for TripEvent: %w", err)
	}
	service.attributes = func(e mq.TripEvent) map[string]string {
		return map[string]string{eventTypeAttribute: string(e.Type)}
	}
	return &GCPTripEventQueue{service: service, client: client}, nil
}

func (q *GCPTripEventQueue) Publish(ctx context.Context, event mq.TripEvent) error {
	return q.service.Publish(ctx, event)
}

func (q *GCPTripEventQueue) Subscribe(tripID uuid.UUID) (uuid.UUID, <-chan mq.TripEvent, error) {
	return q.service.Subscribe(tripID)
}

func (q *GCPTripEventQueue) DeSubscribe(id uuid.UUID) error {
	return q.service.DeSubscribe(id)
}

func (q *GCPTripEventQueue) Close() error {
	q.service.Close()
	q.service.topic.Stop()
	return q.client.Close()
}
