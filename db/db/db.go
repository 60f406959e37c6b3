package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Reader covers every read the planner performs. Missing rows come back as
// apperr NotFound errors.
type Reader interface {
	// Trip
	GetTrip(ctx context.Context, id uuid.UUID) (*Trip, error)
	GetTripBySlug(ctx context.Context, slug string) (*Trip, error)
	ListTripsByOwner(ctx context.Context, ownerID uuid.UUID) ([]Trip, error)
	// Stop, ordered by order_index
	GetStop(ctx context.Context, id uuid.UUID) (*Stop, error)
	ListStops(ctx context.Context, tripID uuid.UUID) ([]Stop, error)
	// Assignment, ordered by scheduled_at with unscheduled ones last
	GetAssignment(ctx context.Context, id uuid.UUID) (*ActivityAssignment, error)
	ListAssignments(ctx context.Context, stopID uuid.UUID) ([]ActivityAssignment, error)
	// Budget
	ListExpenses(ctx context.Context, tripID uuid.UUID) ([]ExpenseRecord, error)
	SumActivityCost(ctx context.Context, tripID uuid.UUID) (decimal.Decimal, error)
	SumExpensesByCategory(ctx context.Context, tripID uuid.UUID) ([]CategoryCost, error)
	// Catalog
	GetActivity(ctx context.Context, id int64) (*Activity, error)
	GetCity(ctx context.Context, id int64) (*City, error)
	SearchActivities(ctx context.Context, filter ActivityFilter) ([]Activity, error)
	SearchCities(ctx context.Context, filter CityFilter) ([]City, error)
	// PopularCities orders cities by stop count, then name. Cities no stop visits are left out.
	PopularCities(ctx context.Context, limit int) ([]CityPopularity, error)
	CountEntities(ctx context.Context) (EntityCounts, error)
	// Saved cities, ordered by name
	ListSavedCities(ctx context.Context, userID uuid.UUID) ([]City, error)
}

// Writer mutates the store. It is only reachable inside InTx.
type Writer interface {
	// LockTrip serializes mutations of one trip until the transaction ends.
	LockTrip(ctx context.Context, id uuid.UUID) (*Trip, error)
	CreateTrip(ctx context.Context, trip *Trip) error
	UpdateTrip(ctx context.Context, trip *Trip) error
	DeleteTrip(ctx context.Context, id uuid.UUID) error

	CreateStop(ctx context.Context, stop *Stop) error
	// MaxStopOrder returns 0 for a trip without stops.
	MaxStopOrder(ctx context.Context, tripID uuid.UUID) (int, error)
	// SetStopOrder rewrites order_index to 1..N following stopIDs in one statement.
	SetStopOrder(ctx context.Context, tripID uuid.UUID, stopIDs []uuid.UUID) error
	DeleteStop(ctx context.Context, id uuid.UUID) error

	CreateAssignment(ctx context.Context, a *ActivityAssignment) error
	UpdateAssignment(ctx context.Context, a *ActivityAssignment) error
	DeleteAssignment(ctx context.Context, id uuid.UUID) error

	CreateExpense(ctx context.Context, e *ExpenseRecord) error
	DeleteExpense(ctx context.Context, id uuid.UUID) error

	// SaveCity and UnsaveCity are no-ops when the city is already saved or not saved.
	SaveCity(ctx context.Context, userID uuid.UUID, cityID int64) error
	UnsaveCity(ctx context.Context, userID uuid.UUID, cityID int64) error
}

// Store is the view of the database handed to a transaction.
type Store interface {
	Reader
	Writer
}

type ItineraryDBWrapper interface {
	Reader
	// InTx commits iff fn returns nil. Nothing fn wrote is visible otherwise.
	InTx(ctx context.Context, fn func(tx Store) error) error
	// Data Loader
	DataLoaderGetStopActivityList(ctx context.Context, stopIDs []uuid.UUID) (map[uuid.UUID][]AssignedActivity, error)
	DataLoaderGetCityList(ctx context.Context, cityIDs []int64) (map[int64]*City, error)
}
