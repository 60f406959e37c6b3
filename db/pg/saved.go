package pg

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm/clause"

	dbt "globetrotter/db/db"
)

func (r reader) PopularCities(ctx context.Context, limit int) ([]dbt.CityPopularity, error) {
	var rows []struct {
		CityModel
		StopCount int64
	}
	q := r.db.WithContext(ctx).Model(&CityModel{}).
		Select("cities.*, COUNT(trip_stops.id) AS stop_count").
		Joins("JOIN trip_stops ON trip_stops.city_id = cities.id").
		Group("cities.id").
		Order("stop_count DESC, cities.name ASC, cities.id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(&rows).Error; err != nil {
		return nil, translateError("popular cities", err)
	}
	res := make([]dbt.CityPopularity, 0, len(rows))
	for _, row := range rows {
		res = append(res, dbt.CityPopularity{City: row.toCity(), StopCount: row.StopCount})
	}
	return res, nil
}

func (r reader) CountEntities(ctx context.Context) (dbt.EntityCounts, error) {
	var counts dbt.EntityCounts
	row := r.db.WithContext(ctx).Raw(`
		SELECT
			(SELECT COUNT(DISTINCT owner_id) FROM trips),
			(SELECT COUNT(*) FROM trips),
			(SELECT COUNT(*) FROM cities),
			(SELECT COUNT(*) FROM activities)
	`).Row()
	if err := row.Scan(&counts.Travelers, &counts.Trips, &counts.Cities, &counts.Activities); err != nil {
		return dbt.EntityCounts{}, translateError("count entities", err)
	}
	return counts, nil
}

func (r reader) ListSavedCities(ctx context.Context, userID uuid.UUID) ([]dbt.City, error) {
	var models []CityModel
	err := r.db.WithContext(ctx).Model(&CityModel{}).
		Joins("JOIN saved_cities ON saved_cities.city_id = cities.id").
		Where("saved_cities.user_id = ?", userID).
		Order("cities.name ASC, cities.id ASC").
		Find(&models).Error
	if err != nil {
		return nil, translateError("list saved cities", err)
	}
	res := make([]dbt.City, 0, len(models))
	for _, m := range models {
		res = append(res, m.toCity())
	}
	return res, nil
}

// SaveCity inserts with ON CONFLICT DO NOTHING, so saving twice keeps the first row.
func (s *gormStore) SaveCity(ctx context.Context, userID uuid.UUID, cityID int64) error {
	m := SavedCityModel{UserID: userID, CityID: cityID}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&m).Error
	if err != nil {
		return translateError("save city", err)
	}
	return nil
}

func (s *gormStore) UnsaveCity(ctx context.Context, userID uuid.UUID, cityID int64) error {
	err := s.db.WithContext(ctx).
		Delete(&SavedCityModel{}, "user_id = ? AND city_id = ?", userID, cityID).Error
	if err != nil {
		return translateError("unsave city", err)
	}
	return nil
}
