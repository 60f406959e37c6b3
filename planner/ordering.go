package planner

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	dbt "globetrotter/db/db"
	"globetrotter/libs/apperr"
	"globetrotter/mq/mq"
)

type NewStop struct {
	CityID        int64
	ArrivalDate   *time.Time
	DepartureDate *time.Time
	Notes         string
}

// AppendStop adds a stop after the last one of the trip. Concurrent appends to
// one trip serialize on the trip lock, so each gets a distinct position.
func (p *Planner) AppendStop(ctx context.Context, tripID, userID uuid.UUID, in NewStop) (*dbt.Stop, error) {
	const op = "append_stop"
	if err := validateDates(op, in.ArrivalDate, in.DepartureDate, "arrival date", "departure date"); err != nil {
		return nil, err
	}

	var (
		stop   *dbt.Stop
		public bool
	)
	err := p.run(ctx, op, false, func(ctx context.Context) error {
		return p.db.InTx(ctx, func(tx dbt.Store) error {
			trip, err := tx.LockTrip(ctx, tripID)
			if err != nil {
				return err
			}
			if err := p.authorizeMutate(op, trip, userID); err != nil {
				return err
			}
			last, err := tx.MaxStopOrder(ctx, tripID)
			if err != nil {
				return err
			}
			s := &dbt.Stop{
				TripID:        tripID,
				CityID:        in.CityID,
				ArrivalDate:   in.ArrivalDate,
				DepartureDate: in.DepartureDate,
				OrderIndex:    last + 1,
				Notes:         in.Notes,
			}
			if err := tx.CreateStop(ctx, s); err != nil {
				return err
			}
			stops, err := tx.ListStops(ctx, tripID)
			if err != nil {
				return err
			}
			// the new stop holds the highest index, so its position is the count
			s.OrderIndex = len(stops)
			stop, public = s, trip.IsPublic
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	p.committed(ctx, op, tripID, "stop_id", stop.ID, "position", stop.OrderIndex)
	p.emit(ctx, mq.TripEvent{TripID: tripID, Type: mq.EventStopAppended, ActorID: userID, StopID: stop.ID, Public: public})
	return stop, nil
}

// Reorder assigns positions 1..N following stopIDs, which must list every stop
// of the trip exactly once. On any rejection the stored order is untouched.
func (p *Planner) Reorder(ctx context.Context, tripID, userID uuid.UUID, stopIDs []uuid.UUID) ([]dbt.Stop, error) {
	const op = "reorder_stops"

	var (
		stops  []dbt.Stop
		public bool
	)
	err := p.run(ctx, op, true, func(ctx context.Context) error {
		return p.db.InTx(ctx, func(tx dbt.Store) error {
			trip, err := tx.LockTrip(ctx, tripID)
			if err != nil {
				return err
			}
			if err := p.authorizeMutate(op, trip, userID); err != nil {
				return err
			}
			current, err := tx.ListStops(ctx, tripID)
			if err != nil {
				return err
			}
			if err := checkPermutation(op, current, stopIDs); err != nil {
				return err
			}
			if len(stopIDs) > 0 {
				if err := tx.SetStopOrder(ctx, tripID, stopIDs); err != nil {
					return err
				}
			}
			public = trip.IsPublic
			stops, err = tx.ListStops(ctx, tripID)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	p.committed(ctx, op, tripID, "stops", len(stops))
	p.emit(ctx, mq.TripEvent{TripID: tripID, Type: mq.EventStopsReordered, ActorID: userID, StopOrder: slices.Clone(stopIDs), Public: public})
	return normalizePositions(stops), nil
}

func checkPermutation(op string, current []dbt.Stop, stopIDs []uuid.UUID) error {
	if len(stopIDs) != len(current) {
		return apperr.Validation(op, "expected %d stop ids, got %d", len(current), len(stopIDs))
	}
	remaining := make(map[uuid.UUID]struct{}, len(current))
	for _, s := range current {
		remaining[s.ID] = struct{}{}
	}
	for _, id := range stopIDs {
		if _, ok := remaining[id]; !ok {
			return apperr.Validation(op, "stop %s is not part of the trip or is listed twice", id)
		}
		delete(remaining, id)
	}
	return nil
}

// DeleteStop removes a stop and its assignments. The remaining stops keep their
// relative order; gaps left in the stored indexes never show up in reads.
func (p *Planner) DeleteStop(ctx context.Context, stopID, userID uuid.UUID) error {
	const op = "delete_stop"

	var (
		tripID uuid.UUID
		public bool
	)
	err := p.run(ctx, op, false, func(ctx context.Context) error {
		return p.db.InTx(ctx, func(tx dbt.Store) error {
			stop, err := tx.GetStop(ctx, stopID)
			if err != nil {
				return err
			}
			trip, err := tx.LockTrip(ctx, stop.TripID)
			if err != nil {
				return err
			}
			if err := p.authorizeMutate(op, trip, userID); err != nil {
				return err
			}
			tripID, public = trip.ID, trip.IsPublic
			return tx.DeleteStop(ctx, stopID)
		})
	})
	if err != nil {
		return err
	}

	p.committed(ctx, op, tripID, "stop_id", stopID)
	p.emit(ctx, mq.TripEvent{TripID: tripID, Type: mq.EventStopDeleted, ActorID: userID, StopID: stopID, Public: public})
	return nil
}

// ListStops returns the stops of a trip with positions 1..N.
func (p *Planner) ListStops(ctx context.Context, tripID, userID uuid.UUID) ([]dbt.Stop, error) {
	const op = "list_stops"

	var stops []dbt.Stop
	err := p.run(ctx, op, true, func(ctx context.Context) error {
		trip, err := p.db.GetTrip(ctx, tripID)
		if err != nil {
			return err
		}
		if err := p.authorizeRead(op, trip, userID); err != nil {
			return err
		}
		stops, err = p.db.ListStops(ctx, tripID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return normalizePositions(stops), nil
}

// normalizePositions rewrites OrderIndex of stops sorted by it to 1..N.
func normalizePositions(stops []dbt.Stop) []dbt.Stop {
	for i := range stops {
		stops[i].OrderIndex = i + 1
	}
	return stops
}
