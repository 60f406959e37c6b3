package planner

import (
	"context"

	dbt "globetrotter/db/db"
	"globetrotter/libs/apperr"
)

const (
	maxCityResults     = 50
	maxActivityResults = 100
	// popular cities default to a top five
	defaultPopularCities = 5
)

func clampLimit(limit, ceiling int) int {
	if limit <= 0 || limit > ceiling {
		return ceiling
	}
	return limit
}

func (p *Planner) SearchCities(ctx context.Context, filter dbt.CityFilter) ([]dbt.City, error) {
	filter.Limit = clampLimit(filter.Limit, maxCityResults)
	var cities []dbt.City
	err := p.run(ctx, "search_cities", true, func(ctx context.Context) error {
		var err error
		cities, err = p.db.SearchCities(ctx, filter)
		return err
	})
	return cities, err
}

// PopularCities ranks catalog cities by how many stops, across all trips, visit them.
func (p *Planner) PopularCities(ctx context.Context, limit int) ([]dbt.CityPopularity, error) {
	if limit <= 0 {
		limit = defaultPopularCities
	}
	limit = clampLimit(limit, maxCityResults)
	var popular []dbt.CityPopularity
	err := p.run(ctx, "popular_cities", true, func(ctx context.Context) error {
		var err error
		popular, err = p.db.PopularCities(ctx, limit)
		return err
	})
	return popular, err
}

func (p *Planner) SearchActivities(ctx context.Context, filter dbt.ActivityFilter) ([]dbt.Activity, error) {
	const op = "search_activities"
	if filter.MinCost != nil && filter.MaxCost != nil && filter.MaxCost.LessThan(*filter.MinCost) {
		return nil, apperr.Validation(op, "max cost must not be below min cost")
	}
	filter.Limit = clampLimit(filter.Limit, maxActivityResults)
	var activities []dbt.Activity
	err := p.run(ctx, op, true, func(ctx context.Context) error {
		var err error
		activities, err = p.db.SearchActivities(ctx, filter)
		return err
	})
	for _, a := range activities {
		p.activities.Add(a.ID, a)
	}
	return activities, err
}

// activity resolves a catalog activity through the cache. The catalog is
// read-only, so entries never go stale. An unknown id is a validation error
// of the request that references it.
func (p *Planner) activity(ctx context.Context, op string, id int64) (dbt.Activity, error) {
	if a, ok := p.activities.Get(id); ok {
		return a, nil
	}
	a, err := p.db.GetActivity(ctx, id)
	if apperr.IsKind(err, apperr.KindNotFound) {
		return dbt.Activity{}, apperr.Validation(op, "dangling reference: activity %d does not exist", id)
	}
	if err != nil {
		return dbt.Activity{}, err
	}
	p.activities.Add(id, *a)
	return *a, nil
}
