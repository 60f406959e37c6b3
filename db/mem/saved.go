package mem

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	dbt "globetrotter/db/db"
	"globetrotter/libs/apperr"
)

func (db *InMemoryItineraryDBWrapper) PopularCities(ctx context.Context, limit int) ([]dbt.CityPopularity, error) {
	return db.snapshot().PopularCities(ctx, limit)
}

func (db *InMemoryItineraryDBWrapper) CountEntities(ctx context.Context) (dbt.EntityCounts, error) {
	return db.snapshot().CountEntities(ctx)
}

func (db *InMemoryItineraryDBWrapper) ListSavedCities(ctx context.Context, userID uuid.UUID) ([]dbt.City, error) {
	return db.snapshot().ListSavedCities(ctx, userID)
}

func (v *view) PopularCities(ctx context.Context, limit int) ([]dbt.CityPopularity, error) {
	if err := ctxErr(ctx, "popular cities"); err != nil {
		return nil, err
	}
	counts := make(map[int64]int64)
	for _, s := range v.st.stops {
		counts[s.CityID]++
	}

	v.catalog.mu.RLock()
	defer v.catalog.mu.RUnlock()
	res := make([]dbt.CityPopularity, 0, len(counts))
	for id, n := range counts {
		if c, ok := v.catalog.cities[id]; ok {
			res = append(res, dbt.CityPopularity{City: c, StopCount: n})
		}
	}
	slices.SortFunc(res, func(a, b dbt.CityPopularity) int {
		if c := cmp.Compare(b.StopCount, a.StopCount); c != 0 {
			return c
		}
		if c := strings.Compare(a.City.Name, b.City.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.City.ID, b.City.ID)
	})
	return truncate(res, limit), nil
}

func (v *view) CountEntities(ctx context.Context) (dbt.EntityCounts, error) {
	if err := ctxErr(ctx, "count entities"); err != nil {
		return dbt.EntityCounts{}, err
	}
	owners := make(map[uuid.UUID]struct{})
	for _, t := range v.st.trips {
		owners[t.OwnerID] = struct{}{}
	}
	v.catalog.mu.RLock()
	defer v.catalog.mu.RUnlock()
	return dbt.EntityCounts{
		Travelers:  int64(len(owners)),
		Trips:      int64(len(v.st.trips)),
		Cities:     int64(len(v.catalog.cities)),
		Activities: int64(len(v.catalog.activities)),
	}, nil
}

func (v *view) ListSavedCities(ctx context.Context, userID uuid.UUID) ([]dbt.City, error) {
	if err := ctxErr(ctx, "list saved cities"); err != nil {
		return nil, err
	}
	v.catalog.mu.RLock()
	defer v.catalog.mu.RUnlock()
	res := []dbt.City{}
	for k := range v.st.saved {
		if k.userID != userID {
			continue
		}
		if c, ok := v.catalog.cities[k.cityID]; ok {
			res = append(res, c)
		}
	}
	slices.SortFunc(res, func(a, b dbt.City) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return res, nil
}

func (tx *txStore) SaveCity(ctx context.Context, userID uuid.UUID, cityID int64) error {
	if err := ctxErr(ctx, "save city"); err != nil {
		return err
	}
	tx.catalog.mu.RLock()
	_, ok := tx.catalog.cities[cityID]
	tx.catalog.mu.RUnlock()
	if !ok {
		return apperr.Validation("save city", "dangling reference: city %d does not exist", cityID)
	}
	key := savedKey{userID: userID, cityID: cityID}
	if _, exists := tx.st.saved[key]; !exists {
		tx.st.saved[key] = time.Now().UTC()
	}
	return nil
}

func (tx *txStore) UnsaveCity(ctx context.Context, userID uuid.UUID, cityID int64) error {
	if err := ctxErr(ctx, "unsave city"); err != nil {
		return err
	}
	delete(tx.st.saved, savedKey{userID: userID, cityID: cityID})
	return nil
}
