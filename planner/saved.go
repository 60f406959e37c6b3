package planner

import (
	"context"

	"github.com/google/uuid"

	dbt "globetrotter/db/db"
	"globetrotter/libs/apperr"
)

// Stats is the store-wide overview shown to admins.
type Stats struct {
	dbt.EntityCounts
	PopularCities []dbt.CityPopularity
}

func (p *Planner) ListSavedCities(ctx context.Context, userID uuid.UUID) ([]dbt.City, error) {
	const op = "list_saved_cities"
	if userID == Anonymous {
		return nil, apperr.Authorization(op, "sign in to see saved cities")
	}
	var cities []dbt.City
	err := p.run(ctx, op, true, func(ctx context.Context) error {
		var err error
		cities, err = p.db.ListSavedCities(ctx, userID)
		return err
	})
	return cities, err
}

// SaveCity bookmarks a catalog city. Saving it again changes nothing.
func (p *Planner) SaveCity(ctx context.Context, userID uuid.UUID, cityID int64) error {
	const op = "save_city"
	if userID == Anonymous {
		return apperr.Authorization(op, "sign in to save cities")
	}
	err := p.run(ctx, op, true, func(ctx context.Context) error {
		return p.db.InTx(ctx, func(tx dbt.Store) error {
			return tx.SaveCity(ctx, userID, cityID)
		})
	})
	if err != nil {
		return err
	}
	p.logger.InfoContext(ctx, "planner mutation committed", "op", op, "user_id", userID, "city_id", cityID)
	return nil
}

// UnsaveCity removes a bookmark. Removing one that does not exist is not an error.
func (p *Planner) UnsaveCity(ctx context.Context, userID uuid.UUID, cityID int64) error {
	const op = "unsave_city"
	if userID == Anonymous {
		return apperr.Authorization(op, "sign in to manage saved cities")
	}
	err := p.run(ctx, op, true, func(ctx context.Context) error {
		return p.db.InTx(ctx, func(tx dbt.Store) error {
			return tx.UnsaveCity(ctx, userID, cityID)
		})
	})
	if err != nil {
		return err
	}
	p.logger.InfoContext(ctx, "planner mutation committed", "op", op, "user_id", userID, "city_id", cityID)
	return nil
}

// Stats reports entity counts and the five most visited cities. Only
// configured admins may read it.
func (p *Planner) Stats(ctx context.Context, userID uuid.UUID) (*Stats, error) {
	const op = "stats"
	if _, ok := p.admins[userID]; !ok {
		return nil, apperr.Authorization(op, "admin access required")
	}
	stats := &Stats{}
	err := p.run(ctx, op, true, func(ctx context.Context) error {
		counts, err := p.db.CountEntities(ctx)
		if err != nil {
			return err
		}
		popular, err := p.db.PopularCities(ctx, defaultPopularCities)
		if err != nil {
			return err
		}
		stats.EntityCounts, stats.PopularCities = counts, popular
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}
