package db

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ActivitiesCategory labels the budget bucket holding the summed activity costs.
const ActivitiesCategory = "activities"

type Trip struct {
	ID            uuid.UUID  `diff:"id"`
	OwnerID       uuid.UUID  `diff:"owner_id"`
	Title         string     `diff:"title"`
	StartDate     *time.Time `diff:"start_date"`
	EndDate       *time.Time `diff:"end_date"`
	CoverPhotoURL string     `diff:"cover_photo_url"`
	IsPublic      bool       `diff:"is_public"`
	// PublicSlug is empty iff IsPublic is false.
	PublicSlug string    `diff:"public_slug"`
	CreatedAt  time.Time `diff:"-"`
	UpdatedAt  time.Time `diff:"-"`
}

type Stop struct {
	ID            uuid.UUID
	TripID        uuid.UUID
	CityID        int64
	ArrivalDate   *time.Time
	DepartureDate *time.Time
	OrderIndex    int
	Notes         string
}

type ActivityAssignment struct {
	ID          uuid.UUID
	StopID      uuid.UUID
	ActivityID  int64
	ScheduledAt *time.Time
	Notes       string
	CreatedAt   time.Time
}

// Activity is read-only catalog data scoped to a city.
type Activity struct {
	ID              int64
	CityID          int64
	Name            string
	Type            string
	Description     string
	Cost            decimal.NullDecimal
	ImageURL        string
	LocationAddress string
}

// CostOrZero treats a null catalog cost as free.
func (a Activity) CostOrZero() decimal.Decimal {
	if !a.Cost.Valid {
		return decimal.Zero
	}
	return a.Cost.Decimal
}

type City struct {
	ID          int64
	Name        string
	Country     string
	Description string
	ImageURL    string
	Latitude    float64
	Longitude   float64
}

// CityPopularity counts the stops, across all trips, that visit City.
type CityPopularity struct {
	City      City
	StopCount int64
}

// EntityCounts sizes the store. Travelers are the distinct trip owners.
type EntityCounts struct {
	Travelers  int64
	Trips      int64
	Cities     int64
	Activities int64
}

type ExpenseRecord struct {
	ID        uuid.UUID
	TripID    uuid.UUID
	Category  string
	Amount    decimal.Decimal
	CreatedAt time.Time
}

// AssignedActivity is an assignment joined with the catalog activity it references.
type AssignedActivity struct {
	ActivityAssignment
	Activity Activity
}

type CategoryCost struct {
	Category string
	Cost     decimal.Decimal
}

type CityFilter struct {
	Search  string
	Country string
	Limit   int
}

type ActivityFilter struct {
	CityID  *int64
	Type    string
	MinCost *decimal.Decimal
	MaxCost *decimal.Decimal
	Search  string
	Limit   int
}
