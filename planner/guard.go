package planner

import (
	"github.com/google/uuid"

	dbt "globetrotter/db/db"
	"globetrotter/libs/apperr"
)

// AccessGuard decides visibility and ownership of a trip. It is consulted
// before every trip-scoped read or mutation.
type AccessGuard interface {
	CanRead(trip *dbt.Trip, userID uuid.UUID) bool
	CanMutate(trip *dbt.Trip, userID uuid.UUID) bool
}

// OwnerGuard lets the owner do everything and everyone read public trips.
type OwnerGuard struct{}

func (OwnerGuard) CanRead(trip *dbt.Trip, userID uuid.UUID) bool {
	return trip != nil && ((userID != uuid.Nil && trip.OwnerID == userID) || trip.IsPublic)
}

// CanMutate ignores visibility: a public trip is still only its owner's.
func (OwnerGuard) CanMutate(trip *dbt.Trip, userID uuid.UUID) bool {
	return trip != nil && userID != uuid.Nil && trip.OwnerID == userID
}

func (p *Planner) authorizeRead(op string, trip *dbt.Trip, userID uuid.UUID) error {
	if !p.guard.CanRead(trip, userID) {
		return apperr.Authorization(op, "trip %s is private", trip.ID)
	}
	return nil
}

func (p *Planner) authorizeMutate(op string, trip *dbt.Trip, userID uuid.UUID) error {
	if !p.guard.CanMutate(trip, userID) {
		return apperr.Authorization(op, "only the owner may change trip %s", trip.ID)
	}
	return nil
}
