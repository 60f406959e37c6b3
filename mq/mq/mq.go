package mq

import (
	"context"

	"github.com/google/uuid"
)

// Mode names an event queue backend.
type Mode string

const (
	ModeGoChan    Mode = "go_chan"
	ModeRabbitMQ  Mode = "rabbitmq"
	ModeGCPPubSub Mode = "gcp_pub_sub"
)

// TopicProvider is implemented by messages routed per trip.
type TopicProvider interface {
	GetTopic() uuid.UUID
}

// TripEventQueue carries committed itinerary changes to subscribers of one trip.
type TripEventQueue interface {
	Publish(ctx context.Context, event TripEvent) error
	Subscribe(tripID uuid.UUID) (uuid.UUID, <-chan TripEvent, error)
	DeSubscribe(id uuid.UUID) error
	Close() error
}
