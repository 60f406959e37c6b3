package mq

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventTripCreated       EventType = "trip.created"
	EventTripUpdated       EventType = "trip.updated"
	EventTripDeleted       EventType = "trip.deleted"
	EventTripPublished     EventType = "trip.published"
	EventTripUnpublished   EventType = "trip.unpublished"
	EventTripForked        EventType = "trip.forked"
	EventStopAppended      EventType = "stop.appended"
	EventStopsReordered    EventType = "stop.reordered"
	EventStopDeleted       EventType = "stop.deleted"
	EventActivityAssigned  EventType = "assignment.created"
	EventAssignmentUpdated EventType = "assignment.updated"
	EventAssignmentDeleted EventType = "assignment.deleted"
	EventExpenseAdded      EventType = "expense.created"
	EventExpenseDeleted    EventType = "expense.deleted"
)

// FieldChange is one changed trip field.
type FieldChange struct {
	Field string `json:"field"`
	From  any    `json:"from"`
	To    any    `json:"to"`
}

// TripEvent is published after a mutation of TripID commits.
type TripEvent struct {
	TripID  uuid.UUID `json:"tripId"`
	Type    EventType `json:"type"`
	ActorID uuid.UUID `json:"actorId"`
	// set depending on Type
	StopID       uuid.UUID     `json:"stopId,omitzero"`
	AssignmentID uuid.UUID     `json:"assignmentId,omitzero"`
	ExpenseID    uuid.UUID     `json:"expenseId,omitzero"`
	StopOrder    []uuid.UUID   `json:"stopOrder,omitempty"`
	Slug         string        `json:"slug,omitempty"`
	SourceTripID uuid.UUID     `json:"sourceTripId,omitzero"`
	Changes      []FieldChange `json:"changes,omitempty"`
	// Public is the trip's visibility when the change committed.
	Public       bool          `json:"public"`
	At           time.Time     `json:"at"`
}

func (e TripEvent) GetTopic() uuid.UUID {
	return e.TripID
}
