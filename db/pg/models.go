package pg

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	dbt "globetrotter/db/db"
)

type TripModel struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey"`
	OwnerID       uuid.UUID  `gorm:"type:uuid;not null;index"`
	Title         string     `gorm:"size:255;not null"`
	StartDate     *time.Time `gorm:"type:date"`
	EndDate       *time.Time `gorm:"type:date"`
	CoverPhotoURL string     `gorm:"type:text"`
	IsPublic      bool       `gorm:"not null;default:false"`
	// nil while private, so the unique index only covers published trips
	PublicSlug *string `gorm:"size:64;uniqueIndex"`
	// meta data
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName returns the table name for TripModel.
func (TripModel) TableName() string {
	return "trips"
}

func tripModelFrom(t *dbt.Trip) TripModel {
	m := TripModel{
		ID:            t.ID,
		OwnerID:       t.OwnerID,
		Title:         t.Title,
		StartDate:     t.StartDate,
		EndDate:       t.EndDate,
		CoverPhotoURL: t.CoverPhotoURL,
		IsPublic:      t.IsPublic,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
	if t.PublicSlug != "" {
		slug := t.PublicSlug
		m.PublicSlug = &slug
	}
	return m
}

func (m TripModel) toTrip() dbt.Trip {
	t := dbt.Trip{
		ID:            m.ID,
		OwnerID:       m.OwnerID,
		Title:         m.Title,
		StartDate:     m.StartDate,
		EndDate:       m.EndDate,
		CoverPhotoURL: m.CoverPhotoURL,
		IsPublic:      m.IsPublic,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
	if m.PublicSlug != nil {
		t.PublicSlug = *m.PublicSlug
	}
	return t
}

type StopModel struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey"`
	TripID        uuid.UUID  `gorm:"type:uuid;not null"`
	CityID        int64      `gorm:"not null"`
	ArrivalDate   *time.Time `gorm:"type:date"`
	DepartureDate *time.Time `gorm:"type:date"`
	OrderIndex    int        `gorm:"not null"`
	Notes         string     `gorm:"type:text"`
}

// TableName returns the table name for StopModel.
func (StopModel) TableName() string {
	return "trip_stops"
}

func (m StopModel) toStop() dbt.Stop {
	return dbt.Stop{
		ID:            m.ID,
		TripID:        m.TripID,
		CityID:        m.CityID,
		ArrivalDate:   m.ArrivalDate,
		DepartureDate: m.DepartureDate,
		OrderIndex:    m.OrderIndex,
		Notes:         m.Notes,
	}
}

type AssignmentModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	StopID      uuid.UUID `gorm:"type:uuid;not null;index"`
	ActivityID  int64     `gorm:"not null"`
	ScheduledAt *time.Time
	Notes       string `gorm:"type:text"`
	CreatedAt   time.Time
}

// TableName returns the table name for AssignmentModel.
func (AssignmentModel) TableName() string {
	return "stop_activities"
}

func (m AssignmentModel) toAssignment() dbt.ActivityAssignment {
	return dbt.ActivityAssignment{
		ID:          m.ID,
		StopID:      m.StopID,
		ActivityID:  m.ActivityID,
		ScheduledAt: m.ScheduledAt,
		Notes:       m.Notes,
		CreatedAt:   m.CreatedAt,
	}
}

type ActivityModel struct {
	ID              int64               `gorm:"primaryKey"`
	CityID          int64               `gorm:"not null;index"`
	Name            string              `gorm:"size:255;not null"`
	Type            string              `gorm:"size:50"`
	Description     string              `gorm:"type:text"`
	Cost            decimal.NullDecimal `gorm:"type:numeric(10,2)"`
	ImageURL        string              `gorm:"type:text"`
	LocationAddress string              `gorm:"type:text"`
}

func (ActivityModel) TableName() string {
	return "activities"
}

func (m ActivityModel) toActivity() dbt.Activity {
	return dbt.Activity{
		ID:              m.ID,
		CityID:          m.CityID,
		Name:            m.Name,
		Type:            m.Type,
		Description:     m.Description,
		Cost:            m.Cost,
		ImageURL:        m.ImageURL,
		LocationAddress: m.LocationAddress,
	}
}

type CityModel struct {
	ID          int64   `gorm:"primaryKey"`
	Name        string  `gorm:"size:255;not null"`
	Country     string  `gorm:"size:255;not null"`
	Description string  `gorm:"type:text"`
	ImageURL    string  `gorm:"type:text"`
	Latitude    float64 `gorm:"type:numeric(9,6)"`
	Longitude   float64 `gorm:"type:numeric(9,6)"`
}

func (CityModel) TableName() string {
	return "cities"
}

func (m CityModel) toCity() dbt.City {
	return dbt.City{
		ID:          m.ID,
		Name:        m.Name,
		Country:     m.Country,
		Description: m.Description,
		ImageURL:    m.ImageURL,
		Latitude:    m.Latitude,
		Longitude:   m.Longitude,
	}
}

type ExpenseModel struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey"`
	TripID    uuid.UUID       `gorm:"type:uuid;not null;index"`
	Category  string          `gorm:"size:50;not null"`
	Amount    decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	CreatedAt time.Time
}

func (ExpenseModel) TableName() string {
	return "trip_expenses"
}

func (m ExpenseModel) toExpense() dbt.ExpenseRecord {
	return dbt.ExpenseRecord{
		ID:        m.ID,
		TripID:    m.TripID,
		Category:  m.Category,
		Amount:    m.Amount,
		CreatedAt: m.CreatedAt,
	}
}

type SavedCityModel struct {
	UserID    uuid.UUID `gorm:"type:uuid;primaryKey"`
	CityID    int64     `gorm:"primaryKey"`
	CreatedAt time.Time
}

func (SavedCityModel) TableName() string {
	return "saved_cities"
}
