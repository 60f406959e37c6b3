package pg

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"globetrotter/config"
	dbt "globetrotter/db/db"
	"globetrotter/libs/apperr"
)

var testDB *gorm.DB
var itineraryDB *GORMItineraryDBWrapper

// initTest connects to a migrated database; the tests are skipped without DATABASE_URL.
func initTest(t *testing.T) {
	t.Helper()
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set, skipping postgres tests")
	}
	cfg := config.Default()
	cfg.Database.URL = os.Getenv("DATABASE_URL")

	var err error
	testDB, err = InitPostgresGORM(CreateDSN(cfg.Database), false)
	require.NoError(t, err, "failed to initialize test database")
	itineraryDB = NewGORMItineraryDBWrapper(testDB)

	require.NoError(t, testDB.Exec(`INSERT INTO cities (id, name, country) VALUES
		(9001, 'Testville', 'Testland'), (9002, 'Mocktown', 'Testland')
		ON CONFLICT (id) DO NOTHING`).Error)
	require.NoError(t, testDB.Exec(`INSERT INTO activities (id, city_id, name, type, cost) VALUES
		(9001, 9001, 'Museum', 'sightseeing', 10.00),
		(9002, 9001, 'Walk', 'sightseeing', NULL),
		(9003, 9002, 'Dinner', 'food', 20.00)
		ON CONFLICT (id) DO NOTHING`).Error)
	t.Cleanup(cleanupTest)
}

func cleanupTest() {
	// children go with the trips through ON DELETE CASCADE
	testDB.Exec("DELETE FROM trips;")
	testDB.Exec("DELETE FROM activities WHERE id >= 9001 AND id <= 9003;")
	testDB.Exec("DELETE FROM cities WHERE id IN (9001, 9002);")
	CloseGORM(testDB)
}

func mustCreateTrip(t *testing.T, ctx context.Context) *dbt.Trip {
	t.Helper()
	trip := &dbt.Trip{OwnerID: uuid.New(), Title: "PG Trip"}
	require.NoError(t, itineraryDB.InTx(ctx, func(tx dbt.Store) error {
		return tx.CreateTrip(ctx, trip)
	}))
	return trip
}

func TestCreateTripAndSlug(t *testing.T) {
	initTest(t)
	ctx := context.Background()

	trip := mustCreateTrip(t, ctx)
	got, err := itineraryDB.GetTrip(ctx, trip.ID)
	require.NoError(t, err)
	assert.Equal(t, "PG Trip", got.Title)
	assert.Empty(t, got.PublicSlug)

	// Test 2: Duplicate public slug is a conflict
	other := mustCreateTrip(t, ctx)
	trip.IsPublic, trip.PublicSlug = true, "0123456789abcdef"
	require.NoError(t, itineraryDB.InTx(ctx, func(tx dbt.Store) error { return tx.UpdateTrip(ctx, trip) }))
	other.IsPublic, other.PublicSlug = true, "0123456789abcdef"
	err = itineraryDB.InTx(ctx, func(tx dbt.Store) error { return tx.UpdateTrip(ctx, other) })
	assert.True(t, apperr.IsKind(err, apperr.KindConflict), "got %v", err)

	bySlug, err := itineraryDB.GetTripBySlug(ctx, "0123456789abcdef")
	require.NoError(t, err)
	assert.Equal(t, trip.ID, bySlug.ID)
}

func TestBulkReorder(t *testing.T) {
	initTest(t)
	ctx := context.Background()
	trip := mustCreateTrip(t, ctx)

	var ids []uuid.UUID
	require.NoError(t, itineraryDB.InTx(ctx, func(tx dbt.Store) error {
		for i := 1; i <= 3; i++ {
			s := &dbt.Stop{TripID: trip.ID, CityID: 9001, OrderIndex: i}
			if err := tx.CreateStop(ctx, s); err != nil {
				return err
			}
			ids = append(ids, s.ID)
		}
		return nil
	}))

	reversed := []uuid.UUID{ids[2], ids[1], ids[0]}
	require.NoError(t, itineraryDB.InTx(ctx, func(tx dbt.Store) error {
		return tx.SetStopOrder(ctx, trip.ID, reversed)
	}))

	stops, err := itineraryDB.ListStops(ctx, trip.ID)
	require.NoError(t, err)
	require.Len(t, stops, 3)
	for i, s := range stops {
		assert.Equal(t, reversed[i], s.ID)
		assert.Equal(t, i+1, s.OrderIndex)
	}

	// Test 2: Foreign stop rolls the whole statement back
	err = itineraryDB.InTx(ctx, func(tx dbt.Store) error {
		return tx.SetStopOrder(ctx, trip.ID, []uuid.UUID{ids[0], uuid.New(), ids[1]})
	})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	stops, err = itineraryDB.ListStops(ctx, trip.ID)
	require.NoError(t, err)
	assert.Equal(t, reversed[0], stops[0].ID)
}

func TestConcurrentAppendsUnderLock(t *testing.T) {
	initTest(t)
	ctx := context.Background()
	trip := mustCreateTrip(t, ctx)

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- itineraryDB.InTx(ctx, func(tx dbt.Store) error {
				if _, err := tx.LockTrip(ctx, trip.ID); err != nil {
					return err
				}
				maxOrder, err := tx.MaxStopOrder(ctx, trip.ID)
				if err != nil {
					return err
				}
				return tx.CreateStop(ctx, &dbt.Stop{TripID: trip.ID, CityID: 9001, OrderIndex: maxOrder + 1})
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	stops, err := itineraryDB.ListStops(ctx, trip.ID)
	require.NoError(t, err)
	require.Len(t, stops, n)
	for i, s := range stops {
		assert.Equal(t, i+1, s.OrderIndex)
	}
}

func TestSumsAndDanglingReference(t *testing.T) {
	initTest(t)
	ctx := context.Background()
	trip := mustCreateTrip(t, ctx)

	var stopID uuid.UUID
	require.NoError(t, itineraryDB.InTx(ctx, func(tx dbt.Store) error {
		s := &dbt.Stop{TripID: trip.ID, CityID: 9001, OrderIndex: 1}
		if err := tx.CreateStop(ctx, s); err != nil {
			return err
		}
		stopID = s.ID
		for _, activityID := range []int64{9001, 9002, 9003} {
			if err := tx.CreateAssignment(ctx, &dbt.ActivityAssignment{StopID: s.ID, ActivityID: activityID}); err != nil {
				return err
			}
		}
		return tx.CreateExpense(ctx, &dbt.ExpenseRecord{TripID: trip.ID, Category: "food", Amount: decimal.NewFromInt(15)})
	}))

	sum, err := itineraryDB.SumActivityCost(ctx, trip.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(30).Equal(sum), sum.String())

	byCategory, err := itineraryDB.SumExpensesByCategory(ctx, trip.ID)
	require.NoError(t, err)
	require.Len(t, byCategory, 1)
	assert.True(t, decimal.NewFromInt(15).Equal(byCategory[0].Cost))

	loaded, err := itineraryDB.DataLoaderGetStopActivityList(ctx, []uuid.UUID{stopID})
	require.NoError(t, err)
	assert.Len(t, loaded[stopID], 3)

	// Test 2: Unknown activity is a validation error and nothing is written
	err = itineraryDB.InTx(ctx, func(tx dbt.Store) error {
		return tx.CreateAssignment(ctx, &dbt.ActivityAssignment{StopID: stopID, ActivityID: 424242})
	})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation), "got %v", err)
	list, err := itineraryDB.ListAssignments(ctx, stopID)
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func TestSavedCitiesAndPopularity(t *testing.T) {
	initTest(t)
	ctx := context.Background()
	user := uuid.New()
	t.Cleanup(func() { testDB.Exec("DELETE FROM saved_cities WHERE user_id = ?", user) })

	// Test 1: saving twice is a no-op, unknown cities are dangling references
	for _, cityID := range []int64{9002, 9001, 9002} {
		require.NoError(t, itineraryDB.InTx(ctx, func(tx dbt.Store) error { return tx.SaveCity(ctx, user, cityID) }))
	}
	err := itineraryDB.InTx(ctx, func(tx dbt.Store) error { return tx.SaveCity(ctx, user, 424242) })
	assert.True(t, apperr.IsKind(err, apperr.KindValidation), "got %v", err)

	saved, err := itineraryDB.ListSavedCities(ctx, user)
	require.NoError(t, err)
	require.Len(t, saved, 2)
	assert.Equal(t, "Mocktown", saved[0].Name)

	require.NoError(t, itineraryDB.InTx(ctx, func(tx dbt.Store) error { return tx.UnsaveCity(ctx, user, 9002) }))
	require.NoError(t, itineraryDB.InTx(ctx, func(tx dbt.Store) error { return tx.UnsaveCity(ctx, user, 9002) }))
	saved, err = itineraryDB.ListSavedCities(ctx, user)
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, "Testville", saved[0].Name)

	// Test 2: popularity counts stops per city
	trip := mustCreateTrip(t, ctx)
	require.NoError(t, itineraryDB.InTx(ctx, func(tx dbt.Store) error {
		for i, cityID := range []int64{9002, 9001, 9002} {
			if err := tx.CreateStop(ctx, &dbt.Stop{TripID: trip.ID, CityID: cityID, OrderIndex: i + 1}); err != nil {
				return err
			}
		}
		return nil
	}))
	popular, err := itineraryDB.PopularCities(ctx, 5)
	require.NoError(t, err)
	require.NotEmpty(t, popular)
	assert.Equal(t, int64(9002), popular[0].City.ID)
	assert.EqualValues(t, 2, popular[0].StopCount)

	counts, err := itineraryDB.CountEntities(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, counts.Trips, int64(1))
	assert.GreaterOrEqual(t, counts.Cities, int64(2))
	assert.GreaterOrEqual(t, counts.Travelers, int64(1))
}
