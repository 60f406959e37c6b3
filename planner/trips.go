package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vikstrous/dataloadgen"

	dbt "globetrotter/db/db"
	"globetrotter/libs/apperr"
	"globetrotter/libs/diff"
	"globetrotter/mq/mq"
)

type NewTrip struct {
	Title         string
	StartDate     *time.Time
	EndDate       *time.Time
	CoverPhotoURL string
}

// TripPatch changes only the fields that are set.
type TripPatch struct {
	Title          *string
	StartDate      *time.Time
	EndDate        *time.Time
	ClearStartDate bool
	ClearEndDate   bool
	CoverPhotoURL  *string
}

type TripDetail struct {
	Trip  dbt.Trip
	Stops []StopDetail
}

type StopDetail struct {
	dbt.Stop
	City       *dbt.City
	Activities []dbt.AssignedActivity
}

func (p *Planner) CreateTrip(ctx context.Context, ownerID uuid.UUID, in NewTrip) (*dbt.Trip, error) {
	const op = "create_trip"
	if ownerID == Anonymous {
		return nil, apperr.Authorization(op, "sign in to create a trip")
	}
	title, err := validateTitle(op, in.Title)
	if err != nil {
		return nil, err
	}
	if err := validateDates(op, in.StartDate, in.EndDate, "start date", "end date"); err != nil {
		return nil, err
	}

	trip := &dbt.Trip{
		OwnerID:       ownerID,
		Title:         title,
		StartDate:     in.StartDate,
		EndDate:       in.EndDate,
		CoverPhotoURL: strings.TrimSpace(in.CoverPhotoURL),
	}
	err = p.run(ctx, op, false, func(ctx context.Context) error {
		return p.db.InTx(ctx, func(tx dbt.Store) error {
			return tx.CreateTrip(ctx, trip)
		})
	})
	if err != nil {
		return nil, err
	}

	p.committed(ctx, op, trip.ID)
	p.emit(ctx, mq.TripEvent{TripID: trip.ID, Type: mq.EventTripCreated, ActorID: ownerID})
	return trip, nil
}

// ListTrips returns the caller's own trips by start date, undated ones last.
func (p *Planner) ListTrips(ctx context.Context, ownerID uuid.UUID) ([]dbt.Trip, error) {
	const op = "list_trips"
	if ownerID == Anonymous {
		return nil, apperr.Authorization(op, "sign in to list trips")
	}
	var trips []dbt.Trip
	err := p.run(ctx, op, true, func(ctx context.Context) error {
		var err error
		trips, err = p.db.ListTripsByOwner(ctx, ownerID)
		return err
	})
	return trips, err
}

func (p *Planner) GetTrip(ctx context.Context, tripID, userID uuid.UUID) (*dbt.Trip, error) {
	const op = "get_trip"
	var trip *dbt.Trip
	err := p.run(ctx, op, true, func(ctx context.Context) error {
		t, err := p.db.GetTrip(ctx, tripID)
		if err != nil {
			return err
		}
		if err := p.authorizeRead(op, t, userID); err != nil {
			return err
		}
		trip = t
		return nil
	})
	return trip, err
}

// GetTripDetail returns the trip with its stops in order, each joined with
// its city and assigned activities.
func (p *Planner) GetTripDetail(ctx context.Context, tripID, userID uuid.UUID) (*TripDetail, error) {
	const op = "get_trip_detail"
	var detail *TripDetail
	err := p.run(ctx, op, true, func(ctx context.Context) error {
		trip, err := p.db.GetTrip(ctx, tripID)
		if err != nil {
			return err
		}
		if err := p.authorizeRead(op, trip, userID); err != nil {
			return err
		}
		detail, err = p.loadDetail(ctx, trip)
		return err
	})
	return detail, err
}

func (p *Planner) loadDetail(ctx context.Context, trip *dbt.Trip) (*TripDetail, error) {
	stops, err := p.db.ListStops(ctx, trip.ID)
	if err != nil {
		return nil, err
	}
	stops = normalizePositions(stops)

	stopIDs := make([]uuid.UUID, len(stops))
	cityIDs := make([]int64, 0, len(stops))
	seen := make(map[int64]struct{}, len(stops))
	for i, s := range stops {
		stopIDs[i] = s.ID
		if _, ok := seen[s.CityID]; !ok {
			seen[s.CityID] = struct{}{}
			cityIDs = append(cityIDs, s.CityID)
		}
	}

	loader := dbt.NewTripDataLoader(p.db)
	activities, err := loader.GetStopActivityList.LoadAll(ctx, stopIDs)
	if err != nil {
		return nil, loadError("load stop activities", err)
	}
	cities, err := loader.GetCityList.LoadAll(ctx, cityIDs)
	if err != nil {
		return nil, loadError("load cities", err)
	}
	cityByID := make(map[int64]*dbt.City, len(cities))
	for _, c := range cities {
		if c != nil {
			cityByID[c.ID] = c
		}
	}

	detail := &TripDetail{Trip: *trip, Stops: make([]StopDetail, len(stops))}
	for i, s := range stops {
		detail.Stops[i] = StopDetail{Stop: s, City: cityByID[s.CityID], Activities: activities[i]}
	}
	return detail, nil
}

// loadError flattens a dataloadgen.ErrorSlice so errors.Is sees the
// per-key causes, such as an expired storage deadline.
func loadError(what string, err error) error {
	var perKey dataloadgen.ErrorSlice
	if errors.As(err, &perKey) {
		err = errors.Join(perKey...)
	}
	return fmt.Errorf("%s: %w", what, err)
}

// UpdateTrip applies patch to the trip. Visibility is changed through Publish
// and Unpublish only.
func (p *Planner) UpdateTrip(ctx context.Context, tripID, userID uuid.UUID, patch TripPatch) (*dbt.Trip, error) {
	const op = "update_trip"

	var (
		trip    *dbt.Trip
		changes []mq.FieldChange
	)
	err := p.run(ctx, op, false, func(ctx context.Context) error {
		return p.db.InTx(ctx, func(tx dbt.Store) error {
			before, err := tx.LockTrip(ctx, tripID)
			if err != nil {
				return err
			}
			if err := p.authorizeMutate(op, before, userID); err != nil {
				return err
			}
			after, err := applyTripPatch(op, *before, patch)
			if err != nil {
				return err
			}
			changes, err = diff.TripChanges(*before, after)
			if err != nil {
				return err
			}
			if len(changes) == 0 {
				trip = before
				return nil
			}
			if err := tx.UpdateTrip(ctx, &after); err != nil {
				return err
			}
			trip = &after
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if len(changes) == 0 {
		return trip, nil
	}

	p.committed(ctx, op, tripID, "changes", len(changes))
	p.emit(ctx, mq.TripEvent{TripID: tripID, Type: mq.EventTripUpdated, ActorID: userID, Changes: changes, Public: trip.IsPublic})
	return trip, nil
}

func applyTripPatch(op string, t dbt.Trip, patch TripPatch) (dbt.Trip, error) {
	if patch.Title != nil {
		title, err := validateTitle(op, *patch.Title)
		if err != nil {
			return t, err
		}
		t.Title = title
	}
	switch {
	case patch.ClearStartDate:
		t.StartDate = nil
	case patch.StartDate != nil:
		t.StartDate = patch.StartDate
	}
	switch {
	case patch.ClearEndDate:
		t.EndDate = nil
	case patch.EndDate != nil:
		t.EndDate = patch.EndDate
	}
	if patch.CoverPhotoURL != nil {
		t.CoverPhotoURL = strings.TrimSpace(*patch.CoverPhotoURL)
	}
	return t, validateDates(op, t.StartDate, t.EndDate, "start date", "end date")
}

// DeleteTrip removes the trip with all its stops, assignments and expenses.
func (p *Planner) DeleteTrip(ctx context.Context, tripID, userID uuid.UUID) error {
	const op = "delete_trip"
	var public bool
	err := p.run(ctx, op, false, func(ctx context.Context) error {
		return p.db.InTx(ctx, func(tx dbt.Store) error {
			trip, err := tx.LockTrip(ctx, tripID)
			if err != nil {
				return err
			}
			if err := p.authorizeMutate(op, trip, userID); err != nil {
				return err
			}
			public = trip.IsPublic
			return tx.DeleteTrip(ctx, tripID)
		})
	})
	if err != nil {
		return err
	}

	p.committed(ctx, op, tripID)
	p.emit(ctx, mq.TripEvent{TripID: tripID, Type: mq.EventTripDeleted, ActorID: userID, Public: public})
	return nil
}
