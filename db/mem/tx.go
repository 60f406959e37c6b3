package mem

import (
	"context"
	"time"

	"github.com/google/uuid"

	dbt "globetrotter/db/db"
	"globetrotter/libs/apperr"
)

// txStore writes into the private state of one InTx call.
type txStore struct {
	view
}

var _ dbt.Store = (*txStore)(nil)

func (tx *txStore) LockTrip(ctx context.Context, id uuid.UUID) (*dbt.Trip, error) {
	// transactions are already serialized, the lock is implied
	return tx.GetTrip(ctx, id)
}

func (tx *txStore) CreateTrip(ctx context.Context, trip *dbt.Trip) error {
	if err := ctxErr(ctx, "create trip"); err != nil {
		return err
	}
	if trip.ID == uuid.Nil {
		trip.ID = uuid.New()
	}
	if _, exists := tx.st.trips[trip.ID]; exists {
		return apperr.Conflict("create trip", "trip %s already exists", trip.ID)
	}
	if err := tx.checkSlug(trip); err != nil {
		return err
	}
	now := time.Now().UTC()
	trip.CreatedAt, trip.UpdatedAt = now, now
	tx.st.trips[trip.ID] = *trip
	return nil
}

func (tx *txStore) UpdateTrip(ctx context.Context, trip *dbt.Trip) error {
	if err := ctxErr(ctx, "update trip"); err != nil {
		return err
	}
	old, exists := tx.st.trips[trip.ID]
	if !exists {
		return apperr.NotFound("update trip", "trip %s not found", trip.ID)
	}
	if err := tx.checkSlug(trip); err != nil {
		return err
	}
	trip.CreatedAt = old.CreatedAt
	trip.UpdatedAt = time.Now().UTC()
	tx.st.trips[trip.ID] = *trip
	return nil
}

func (tx *txStore) checkSlug(trip *dbt.Trip) error {
	if trip.PublicSlug == "" {
		return nil
	}
	for id, t := range tx.st.trips {
		if id != trip.ID && t.PublicSlug == trip.PublicSlug {
			return apperr.Conflict("save trip", "public slug already in use")
		}
	}
	return nil
}

// DeleteTrip removes the trip with its stops, their assignments and its expenses.
func (tx *txStore) DeleteTrip(ctx context.Context, id uuid.UUID) error {
	if err := ctxErr(ctx, "delete trip"); err != nil {
		return err
	}
	if _, exists := tx.st.trips[id]; !exists {
		return apperr.NotFound("delete trip", "trip %s not found", id)
	}
	for stopID, s := range tx.st.stops {
		if s.TripID == id {
			tx.deleteStop(stopID)
		}
	}
	for expenseID, e := range tx.st.expenses {
		if e.TripID == id {
			delete(tx.st.expenses, expenseID)
		}
	}
	delete(tx.st.trips, id)
	return nil
}

func (tx *txStore) CreateStop(ctx context.Context, stop *dbt.Stop) error {
	if err := ctxErr(ctx, "create stop"); err != nil {
		return err
	}
	if _, ok := tx.st.trips[stop.TripID]; !ok {
		return apperr.Validation("create stop", "dangling reference: trip %s does not exist", stop.TripID)
	}
	tx.catalog.mu.RLock()
	_, cityOK := tx.catalog.cities[stop.CityID]
	tx.catalog.mu.RUnlock()
	if !cityOK {
		return apperr.Validation("create stop", "dangling reference: city %d does not exist", stop.CityID)
	}
	if stop.OrderIndex < 1 {
		return apperr.Validation("create stop", "order index must be positive, got %d", stop.OrderIndex)
	}
	for _, s := range tx.st.stops {
		if s.TripID == stop.TripID && s.OrderIndex == stop.OrderIndex {
			return apperr.Conflict("create stop", "order index %d already taken in trip %s", stop.OrderIndex, stop.TripID)
		}
	}
	if stop.ID == uuid.Nil {
		stop.ID = uuid.New()
	}
	tx.st.stops[stop.ID] = *stop
	return nil
}

func (tx *txStore) MaxStopOrder(ctx context.Context, tripID uuid.UUID) (int, error) {
	if err := ctxErr(ctx, "max stop order"); err != nil {
		return 0, err
	}
	maxOrder := 0
	for _, s := range tx.st.stops {
		if s.TripID == tripID && s.OrderIndex > maxOrder {
			maxOrder = s.OrderIndex
		}
	}
	return maxOrder, nil
}

func (tx *txStore) SetStopOrder(ctx context.Context, tripID uuid.UUID, stopIDs []uuid.UUID) error {
	if err := ctxErr(ctx, "set stop order"); err != nil {
		return err
	}
	for _, id := range stopIDs {
		s, ok := tx.st.stops[id]
		if !ok || s.TripID != tripID {
			return apperr.Validation("set stop order", "stop %s does not belong to trip %s", id, tripID)
		}
	}
	for i, id := range stopIDs {
		s := tx.st.stops[id]
		s.OrderIndex = i + 1
		tx.st.stops[id] = s
	}
	return nil
}

func (tx *txStore) DeleteStop(ctx context.Context, id uuid.UUID) error {
	if err := ctxErr(ctx, "delete stop"); err != nil {
		return err
	}
	if _, ok := tx.st.stops[id]; !ok {
		return apperr.NotFound("delete stop", "stop %s not found", id)
	}
	tx.deleteStop(id)
	return nil
}

func (tx *txStore) deleteStop(id uuid.UUID) {
	for assignmentID, a := range tx.st.assignments {
		if a.StopID == id {
			delete(tx.st.assignments, assignmentID)
		}
	}
	delete(tx.st.stops, id)
}

func (tx *txStore) CreateAssignment(ctx context.Context, a *dbt.ActivityAssignment) error {
	if err := ctxErr(ctx, "create assignment"); err != nil {
		return err
	}
	if _, ok := tx.st.stops[a.StopID]; !ok {
		return apperr.Validation("create assignment", "dangling reference: stop %s does not exist", a.StopID)
	}
	tx.catalog.mu.RLock()
	_, activityOK := tx.catalog.activities[a.ActivityID]
	tx.catalog.mu.RUnlock()
	if !activityOK {
		return apperr.Validation("create assignment", "dangling reference: activity %d does not exist", a.ActivityID)
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = time.Now().UTC()
	tx.st.assignments[a.ID] = *a
	return nil
}

func (tx *txStore) UpdateAssignment(ctx context.Context, a *dbt.ActivityAssignment) error {
	if err := ctxErr(ctx, "update assignment"); err != nil {
		return err
	}
	old, ok := tx.st.assignments[a.ID]
	if !ok {
		return apperr.NotFound("update assignment", "assignment %s not found", a.ID)
	}
	// only the schedule and the notes are mutable
	old.ScheduledAt = a.ScheduledAt
	old.Notes = a.Notes
	tx.st.assignments[a.ID] = old
	*a = old
	return nil
}

func (tx *txStore) DeleteAssignment(ctx context.Context, id uuid.UUID) error {
	if err := ctxErr(ctx, "delete assignment"); err != nil {
		return err
	}
	if _, ok := tx.st.assignments[id]; !ok {
		return apperr.NotFound("delete assignment", "assignment %s not found", id)
	}
	delete(tx.st.assignments, id)
	return nil
}

func (tx *txStore) CreateExpense(ctx context.Context, e *dbt.ExpenseRecord) error {
	if err := ctxErr(ctx, "create expense"); err != nil {
		return err
	}
	if _, ok := tx.st.trips[e.TripID]; !ok {
		return apperr.Validation("create expense", "dangling reference: trip %s does not exist", e.TripID)
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.CreatedAt = time.Now().UTC()
	tx.st.expenses[e.ID] = *e
	return nil
}

func (tx *txStore) DeleteExpense(ctx context.Context, id uuid.UUID) error {
	if err := ctxErr(ctx, "delete expense"); err != nil {
		return err
	}
	if _, ok := tx.st.expenses[id]; !ok {
		return apperr.NotFound("delete expense", "expense %s not found", id)
	}
	delete(tx.st.expenses, id)
	return nil
}
