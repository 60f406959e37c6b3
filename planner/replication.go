package planner

import (
	"context"

	"github.com/google/uuid"

	dbt "globetrotter/db/db"
	"globetrotter/libs/apperr"
	"globetrotter/mq/mq"
)

// slugAttempts bounds how often Publish draws a new slug after a collision.
const slugAttempts = 3

// Publish makes a trip readable by anyone holding its new public slug. Every
// call draws a fresh slug, so publishing again revokes the previous link.
func (p *Planner) Publish(ctx context.Context, tripID, userID uuid.UUID) (*dbt.Trip, error) {
	const op = "publish_trip"

	var trip *dbt.Trip
	var err error
	for range slugAttempts {
		trip, err = p.publishOnce(ctx, op, tripID, userID)
		if !apperr.IsKind(err, apperr.KindConflict) {
			break
		}
		p.logger.WarnContext(ctx, "public slug collided, drawing a new one", "trip_id", tripID)
	}
	if err != nil {
		return nil, err
	}

	p.committed(ctx, op, tripID, "slug", trip.PublicSlug)
	p.emit(ctx, mq.TripEvent{TripID: tripID, Type: mq.EventTripPublished, ActorID: userID, Slug: trip.PublicSlug, Public: trip.IsPublic})
	return trip, nil
}

func (p *Planner) publishOnce(ctx context.Context, op string, tripID, userID uuid.UUID) (*dbt.Trip, error) {
	var trip *dbt.Trip
	err := p.run(ctx, op, false, func(ctx context.Context) error {
		return p.db.InTx(ctx, func(tx dbt.Store) error {
			t, err := tx.LockTrip(ctx, tripID)
			if err != nil {
				return err
			}
			if err := p.authorizeMutate(op, t, userID); err != nil {
				return err
			}
			slug, err := p.newSlug()
			if err != nil {
				return err
			}
			t.IsPublic = true
			t.PublicSlug = slug
			if err := tx.UpdateTrip(ctx, t); err != nil {
				return err
			}
			trip = t
			return nil
		})
	})
	return trip, err
}

// Unpublish makes the trip private again and drops its slug.
func (p *Planner) Unpublish(ctx context.Context, tripID, userID uuid.UUID) (*dbt.Trip, error) {
	const op = "unpublish_trip"

	var trip *dbt.Trip
	err := p.run(ctx, op, true, func(ctx context.Context) error {
		return p.db.InTx(ctx, func(tx dbt.Store) error {
			t, err := tx.LockTrip(ctx, tripID)
			if err != nil {
				return err
			}
			if err := p.authorizeMutate(op, t, userID); err != nil {
				return err
			}
			if t.IsPublic || t.PublicSlug != "" {
				t.IsPublic = false
				t.PublicSlug = ""
				if err := tx.UpdateTrip(ctx, t); err != nil {
					return err
				}
			}
			trip = t
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	p.committed(ctx, op, tripID)
	p.emit(ctx, mq.TripEvent{TripID: tripID, Type: mq.EventTripUnpublished, ActorID: userID, Public: trip.IsPublic})
	return trip, nil
}

// CopyTrip deep-copies the public trip behind slug into a new private trip of
// newOwnerID: its stops in the same order and every activity assignment of
// each stop. Expense records stay with the source. Either the whole copy
// commits or nothing does.
func (p *Planner) CopyTrip(ctx context.Context, slug string, newOwnerID uuid.UUID) (*dbt.Trip, error) {
	const op = "copy_trip"
	if newOwnerID == Anonymous {
		return nil, apperr.Authorization(op, "sign in to copy a trip")
	}

	var (
		copied *dbt.Trip
		source uuid.UUID
		nStops int
	)
	err := p.run(ctx, op, true, func(ctx context.Context) error {
		return p.db.InTx(ctx, func(tx dbt.Store) error {
			src, err := publicTrip(ctx, op, tx, slug)
			if err != nil {
				return err
			}
			title := "Copy of " + src.Title
			if r := []rune(title); len(r) > maxTitleLength {
				title = string(r[:maxTitleLength])
			}
			dst := &dbt.Trip{
				OwnerID:       newOwnerID,
				Title:         title,
				StartDate:     src.StartDate,
				EndDate:       src.EndDate,
				CoverPhotoURL: src.CoverPhotoURL,
			}
			if err := tx.CreateTrip(ctx, dst); err != nil {
				return err
			}

			stops, err := tx.ListStops(ctx, src.ID)
			if err != nil {
				return err
			}
			for _, s := range stops {
				ns := &dbt.Stop{
					TripID:        dst.ID,
					CityID:        s.CityID,
					ArrivalDate:   s.ArrivalDate,
					DepartureDate: s.DepartureDate,
					OrderIndex:    s.OrderIndex,
					Notes:         s.Notes,
				}
				if err := tx.CreateStop(ctx, ns); err != nil {
					return err
				}
				assignments, err := tx.ListAssignments(ctx, s.ID)
				if err != nil {
					return err
				}
				for _, a := range assignments {
					na := &dbt.ActivityAssignment{
						StopID:      ns.ID,
						ActivityID:  a.ActivityID,
						ScheduledAt: a.ScheduledAt,
						Notes:       a.Notes,
					}
					if err := tx.CreateAssignment(ctx, na); err != nil {
						return err
					}
				}
			}
			copied, source, nStops = dst, src.ID, len(stops)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	p.metrics.observeCopy(nStops)
	p.committed(ctx, op, copied.ID, "source_trip_id", source, "stops", nStops)
	p.emit(ctx, mq.TripEvent{TripID: copied.ID, Type: mq.EventTripForked, ActorID: newOwnerID, SourceTripID: source})
	return copied, nil
}

// GetPublicTrip returns the full itinerary of the public trip behind slug.
// It needs no session.
func (p *Planner) GetPublicTrip(ctx context.Context, slug string) (*TripDetail, error) {
	const op = "get_public_trip"

	var detail *TripDetail
	err := p.run(ctx, op, true, func(ctx context.Context) error {
		trip, err := publicTrip(ctx, op, p.db, slug)
		if err != nil {
			return err
		}
		detail, err = p.loadDetail(ctx, trip)
		return err
	})
	return detail, err
}

// publicTrip treats an unknown slug and a slug of a private trip alike.
func publicTrip(ctx context.Context, op string, r dbt.Reader, slug string) (*dbt.Trip, error) {
	if slug == "" {
		return nil, apperr.NotFound(op, "no public trip with an empty slug")
	}
	trip, err := r.GetTripBySlug(ctx, slug)
	if apperr.IsKind(err, apperr.KindNotFound) || (err == nil && !trip.IsPublic) {
		return nil, apperr.NotFound(op, "no public trip with slug %q", slug)
	}
	return trip, err
}
