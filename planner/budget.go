package planner

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	dbt "globetrotter/db/db"
)

type Budget struct {
	Total decimal.Decimal
	// Breakdown holds one entry per expense category, in name order, followed
	// by the activities entry, which is always present.
	Breakdown []dbt.CategoryCost
}

// ComputeBudget sums the trip's expense records by category and the catalog
// cost of every assigned activity. Null catalog costs count as zero.
func (p *Planner) ComputeBudget(ctx context.Context, tripID, userID uuid.UUID) (*Budget, error) {
	const op = "compute_budget"

	var budget Budget
	err := p.run(ctx, op, true, func(ctx context.Context) error {
		trip, err := p.db.GetTrip(ctx, tripID)
		if err != nil {
			return err
		}
		if err := p.authorizeRead(op, trip, userID); err != nil {
			return err
		}
		expenses, err := p.db.SumExpensesByCategory(ctx, tripID)
		if err != nil {
			return err
		}
		activities, err := p.db.SumActivityCost(ctx, tripID)
		if err != nil {
			return err
		}
		budget = AggregateBudget(expenses, activities)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &budget, nil
}

// AggregateBudget builds a Budget from per-category expense sums and the total
// activity cost. Repeated categories are merged.
func AggregateBudget(expenses []dbt.CategoryCost, activities decimal.Decimal) Budget {
	byCategory := make(map[string]decimal.Decimal, len(expenses))
	for _, e := range expenses {
		byCategory[e.Category] = byCategory[e.Category].Add(e.Cost)
	}
	names := make([]string, 0, len(byCategory))
	for name := range byCategory {
		names = append(names, name)
	}
	sort.Strings(names)

	b := Budget{Total: activities, Breakdown: make([]dbt.CategoryCost, 0, len(names)+1)}
	for _, name := range names {
		cost := byCategory[name]
		b.Total = b.Total.Add(cost)
		b.Breakdown = append(b.Breakdown, dbt.CategoryCost{Category: name, Cost: cost})
	}
	b.Breakdown = append(b.Breakdown, dbt.CategoryCost{Category: dbt.ActivitiesCategory, Cost: activities})
	return b
}
