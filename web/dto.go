package web

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	dbt "globetrotter/db/db"
	"globetrotter/planner"
)

type tripResponse struct {
	ID            uuid.UUID `json:"id"`
	OwnerID       uuid.UUID `json:"owner_id"`
	Title         string    `json:"title"`
	StartDate     string    `json:"start_date,omitempty"`
	EndDate       string    `json:"end_date,omitempty"`
	CoverPhotoURL string    `json:"cover_photo_url,omitempty"`
	IsPublic      bool      `json:"is_public"`
	PublicSlug    string    `json:"public_slug,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type stopResponse struct {
	ID            uuid.UUID            `json:"id"`
	TripID        uuid.UUID            `json:"trip_id"`
	CityID        int64                `json:"city_id"`
	City          *cityResponse        `json:"city,omitempty"`
	ArrivalDate   string               `json:"arrival_date,omitempty"`
	DepartureDate string               `json:"departure_date,omitempty"`
	OrderIndex    int                  `json:"order_index"`
	Notes         string               `json:"notes,omitempty"`
	Activities    []assignmentResponse `json:"activities,omitempty"`
}

type assignmentResponse struct {
	ID          uuid.UUID         `json:"id"`
	StopID      uuid.UUID         `json:"stop_id"`
	ActivityID  int64             `json:"activity_id"`
	ScheduledAt *time.Time        `json:"scheduled_at,omitempty"`
	Notes       string            `json:"notes,omitempty"`
	Activity    *activityResponse `json:"activity,omitempty"`
}

type activityResponse struct {
	ID              int64            `json:"id"`
	CityID          int64            `json:"city_id"`
	Name            string           `json:"name"`
	Type            string           `json:"type"`
	Description     string           `json:"description,omitempty"`
	Cost            *decimal.Decimal `json:"cost"`
	ImageURL        string           `json:"image_url,omitempty"`
	LocationAddress string           `json:"location_address,omitempty"`
}

type cityResponse struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Country     string  `json:"country"`
	Description string  `json:"description,omitempty"`
	ImageURL    string  `json:"image_url,omitempty"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

type expenseResponse struct {
	ID        uuid.UUID       `json:"id"`
	TripID    uuid.UUID       `json:"trip_id"`
	Category  string          `json:"category"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}

type categoryCostResponse struct {
	Category string          `json:"category"`
	Cost     decimal.Decimal `json:"cost"`
}

type budgetResponse struct {
	Total     decimal.Decimal        `json:"total"`
	Breakdown []categoryCostResponse `json:"breakdown"`
}

type tripDetailResponse struct {
	tripResponse
	Stops []stopResponse `json:"stops"`
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.DateOnly)
}

func toTripResponse(t *dbt.Trip) tripResponse {
	return tripResponse{
		ID:            t.ID,
		OwnerID:       t.OwnerID,
		Title:         t.Title,
		StartDate:     formatDate(t.StartDate),
		EndDate:       formatDate(t.EndDate),
		CoverPhotoURL: t.CoverPhotoURL,
		IsPublic:      t.IsPublic,
		PublicSlug:    t.PublicSlug,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}

func toStopResponse(s dbt.Stop) stopResponse {
	return stopResponse{
		ID:            s.ID,
		TripID:        s.TripID,
		CityID:        s.CityID,
		ArrivalDate:   formatDate(s.ArrivalDate),
		DepartureDate: formatDate(s.DepartureDate),
		OrderIndex:    s.OrderIndex,
		Notes:         s.Notes,
	}
}

func toAssignmentResponse(a dbt.ActivityAssignment) assignmentResponse {
	return assignmentResponse{
		ID:          a.ID,
		StopID:      a.StopID,
		ActivityID:  a.ActivityID,
		ScheduledAt: a.ScheduledAt,
		Notes:       a.Notes,
	}
}

func toActivityResponse(a dbt.Activity) activityResponse {
	r := activityResponse{
		ID:              a.ID,
		CityID:          a.CityID,
		Name:            a.Name,
		Type:            a.Type,
		Description:     a.Description,
		ImageURL:        a.ImageURL,
		LocationAddress: a.LocationAddress,
	}
	if a.Cost.Valid {
		cost := a.Cost.Decimal
		r.Cost = &cost
	}
	return r
}

func toCityResponse(c dbt.City) cityResponse {
	return cityResponse{
		ID:          c.ID,
		Name:        c.Name,
		Country:     c.Country,
		Description: c.Description,
		ImageURL:    c.ImageURL,
		Latitude:    c.Latitude,
		Longitude:   c.Longitude,
	}
}

func toExpenseResponse(e dbt.ExpenseRecord) expenseResponse {
	return expenseResponse{ID: e.ID, TripID: e.TripID, Category: e.Category, Amount: e.Amount, CreatedAt: e.CreatedAt}
}

func toBudgetResponse(b *planner.Budget) budgetResponse {
	r := budgetResponse{Total: b.Total, Breakdown: make([]categoryCostResponse, len(b.Breakdown))}
	for i, c := range b.Breakdown {
		r.Breakdown[i] = categoryCostResponse{Category: c.Category, Cost: c.Cost}
	}
	return r
}

func toTripDetailResponse(d *planner.TripDetail) tripDetailResponse {
	r := tripDetailResponse{tripResponse: toTripResponse(&d.Trip), Stops: make([]stopResponse, len(d.Stops))}
	for i, s := range d.Stops {
		sr := toStopResponse(s.Stop)
		if s.City != nil {
			city := toCityResponse(*s.City)
			sr.City = &city
		}
		sr.Activities = make([]assignmentResponse, len(s.Activities))
		for j, a := range s.Activities {
			ar := toAssignmentResponse(a.ActivityAssignment)
			activity := toActivityResponse(a.Activity)
			ar.Activity = &activity
			sr.Activities[j] = ar
		}
		r.Stops[i] = sr
	}
	return r
}

func mapSlice[T, R any](in []T, f func(T) R) []R {
	out := make([]R, len(in))
	for i, v := range in {
		out[i] = f(v)
	}
	return out
}
