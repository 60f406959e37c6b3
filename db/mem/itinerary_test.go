package mem_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbt "globetrotter/db/db"
	"globetrotter/db/mem"
	"globetrotter/libs/apperr"
)

// setupTest creates a store seeded with the demo catalog for each test.
func setupTest(t *testing.T) *mem.InMemoryItineraryDBWrapper {
	t.Helper()
	db := mem.NewInMemoryItineraryDBWrapper()
	require.NoError(t, db.SeedDemoCatalog())
	return db
}

func createTrip(t *testing.T, db dbt.ItineraryDBWrapper, owner uuid.UUID, title string) *dbt.Trip {
	t.Helper()
	trip := &dbt.Trip{OwnerID: owner, Title: title}
	require.NoError(t, db.InTx(context.Background(), func(tx dbt.Store) error {
		return tx.CreateTrip(context.Background(), trip)
	}))
	return trip
}

func addStop(t *testing.T, db dbt.ItineraryDBWrapper, tripID uuid.UUID, cityID int64, order int) *dbt.Stop {
	t.Helper()
	stop := &dbt.Stop{TripID: tripID, CityID: cityID, OrderIndex: order}
	require.NoError(t, db.InTx(context.Background(), func(tx dbt.Store) error {
		return tx.CreateStop(context.Background(), stop)
	}))
	return stop
}

func TestCreateAndGetTrip(t *testing.T) {
	db := setupTest(t)
	ctx := context.Background()

	// Test 1: Successfully create a trip
	owner := uuid.New()
	trip := createTrip(t, db, owner, "Europe")
	assert.NotEqual(t, uuid.Nil, trip.ID)
	assert.False(t, trip.CreatedAt.IsZero())

	got, err := db.GetTrip(ctx, trip.ID)
	require.NoError(t, err)
	assert.Equal(t, "Europe", got.Title)
	assert.Equal(t, owner, got.OwnerID)

	// Test 2: Duplicate id is a conflict
	err = db.InTx(ctx, func(tx dbt.Store) error {
		return tx.CreateTrip(ctx, &dbt.Trip{ID: trip.ID, OwnerID: owner, Title: "dup"})
	})
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))

	// Test 3: Unknown id is not found
	_, err = db.GetTrip(ctx, uuid.New())
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestTransactionRollback(t *testing.T) {
	db := setupTest(t)
	ctx := context.Background()
	trip := createTrip(t, db, uuid.New(), "Rollback")

	boom := errors.New("boom")
	err := db.InTx(ctx, func(tx dbt.Store) error {
		if err := tx.CreateStop(ctx, &dbt.Stop{TripID: trip.ID, CityID: 1, OrderIndex: 1}); err != nil {
			return err
		}
		// visible inside the transaction
		stops, err := tx.ListStops(ctx, trip.ID)
		require.NoError(t, err)
		assert.Len(t, stops, 1)
		// not visible outside until commit
		outside, err := db.ListStops(ctx, trip.ID)
		require.NoError(t, err)
		assert.Empty(t, outside)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	stops, err := db.ListStops(ctx, trip.ID)
	require.NoError(t, err)
	assert.Empty(t, stops, "rolled back stop must not be visible")
}

func TestStopOrdering(t *testing.T) {
	db := setupTest(t)
	ctx := context.Background()
	trip := createTrip(t, db, uuid.New(), "Order")

	a := addStop(t, db, trip.ID, 1, 1)
	b := addStop(t, db, trip.ID, 2, 2)
	c := addStop(t, db, trip.ID, 3, 3)

	// Test 1: Duplicate order index is a conflict
	err := db.InTx(ctx, func(tx dbt.Store) error {
		return tx.CreateStop(ctx, &dbt.Stop{TripID: trip.ID, CityID: 4, OrderIndex: 2})
	})
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))

	// Test 2: Bulk rewrite
	require.NoError(t, db.InTx(ctx, func(tx dbt.Store) error {
		return tx.SetStopOrder(ctx, trip.ID, []uuid.UUID{c.ID, a.ID, b.ID})
	}))
	stops, err := db.ListStops(ctx, trip.ID)
	require.NoError(t, err)
	require.Len(t, stops, 3)
	assert.Equal(t, []uuid.UUID{c.ID, a.ID, b.ID}, []uuid.UUID{stops[0].ID, stops[1].ID, stops[2].ID})
	assert.Equal(t, []int{1, 2, 3}, []int{stops[0].OrderIndex, stops[1].OrderIndex, stops[2].OrderIndex})

	// Test 3: Delete leaves a gap, max order is unchanged
	require.NoError(t, db.InTx(ctx, func(tx dbt.Store) error {
		return tx.DeleteStop(ctx, a.ID)
	}))
	require.NoError(t, db.InTx(ctx, func(tx dbt.Store) error {
		maxOrder, err := tx.MaxStopOrder(ctx, trip.ID)
		assert.Equal(t, 3, maxOrder)
		return err
	}))

	// Test 4: Stop of another trip is rejected
	other := createTrip(t, db, uuid.New(), "Other")
	foreign := addStop(t, db, other.ID, 1, 1)
	err = db.InTx(ctx, func(tx dbt.Store) error {
		return tx.SetStopOrder(ctx, trip.ID, []uuid.UUID{foreign.ID})
	})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestDanglingReferences(t *testing.T) {
	db := setupTest(t)
	ctx := context.Background()
	trip := createTrip(t, db, uuid.New(), "Refs")

	err := db.InTx(ctx, func(tx dbt.Store) error {
		return tx.CreateStop(ctx, &dbt.Stop{TripID: trip.ID, CityID: 999, OrderIndex: 1})
	})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	stop := addStop(t, db, trip.ID, 1, 1)
	err = db.InTx(ctx, func(tx dbt.Store) error {
		return tx.CreateAssignment(ctx, &dbt.ActivityAssignment{StopID: stop.ID, ActivityID: 999})
	})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	err = db.InTx(ctx, func(tx dbt.Store) error {
		return tx.CreateAssignment(ctx, &dbt.ActivityAssignment{StopID: uuid.New(), ActivityID: 1})
	})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestAssignmentsAndBudgetSums(t *testing.T) {
	db := setupTest(t)
	ctx := context.Background()
	trip := createTrip(t, db, uuid.New(), "Budget")
	paris := addStop(t, db, trip.ID, 1, 1)

	late := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	early := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, db.InTx(ctx, func(tx dbt.Store) error {
		for _, a := range []*dbt.ActivityAssignment{
			{StopID: paris.ID, ActivityID: 3}, // null cost
			{StopID: paris.ID, ActivityID: 1, ScheduledAt: &late},
			{StopID: paris.ID, ActivityID: 2, ScheduledAt: &early},
		} {
			if err := tx.CreateAssignment(ctx, a); err != nil {
				return err
			}
		}
		if err := tx.CreateExpense(ctx, &dbt.ExpenseRecord{TripID: trip.ID, Category: "food", Amount: decimal.NewFromInt(10)}); err != nil {
			return err
		}
		return tx.CreateExpense(ctx, &dbt.ExpenseRecord{TripID: trip.ID, Category: "food", Amount: decimal.NewFromInt(5)})
	}))

	// Test 1: Scheduled first, unscheduled last
	list, err := db.ListAssignments(ctx, paris.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, int64(2), list[0].ActivityID)
	assert.Equal(t, int64(1), list[1].ActivityID)
	assert.Equal(t, int64(3), list[2].ActivityID)

	// Test 2: Null cost counts as zero
	sum, err := db.SumActivityCost(ctx, trip.ID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("37.50").Equal(sum), sum.String())

	// Test 3: Expenses grouped by category
	byCategory, err := db.SumExpensesByCategory(ctx, trip.ID)
	require.NoError(t, err)
	require.Len(t, byCategory, 1)
	assert.Equal(t, "food", byCategory[0].Category)
	assert.True(t, decimal.NewFromInt(15).Equal(byCategory[0].Cost))

	// Test 4: Data loader returns every requested stop
	empty := addStop(t, db, trip.ID, 2, 2)
	loaded, err := db.DataLoaderGetStopActivityList(ctx, []uuid.UUID{paris.ID, empty.ID})
	require.NoError(t, err)
	assert.Len(t, loaded[paris.ID], 3)
	assert.Equal(t, "Seine River Cruise", loaded[paris.ID][0].Activity.Name)
	assert.Empty(t, loaded[empty.ID])
}

func TestDeleteTripCascades(t *testing.T) {
	db := setupTest(t)
	ctx := context.Background()
	trip := createTrip(t, db, uuid.New(), "Cascade")
	stop := addStop(t, db, trip.ID, 1, 1)
	assignment := &dbt.ActivityAssignment{StopID: stop.ID, ActivityID: 1}
	require.NoError(t, db.InTx(ctx, func(tx dbt.Store) error {
		return tx.CreateAssignment(ctx, assignment)
	}))

	require.NoError(t, db.InTx(ctx, func(tx dbt.Store) error {
		return tx.DeleteTrip(ctx, trip.ID)
	}))

	_, err := db.GetStop(ctx, stop.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	_, err = db.GetAssignment(ctx, assignment.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestSlugLookup(t *testing.T) {
	db := setupTest(t)
	ctx := context.Background()
	first := createTrip(t, db, uuid.New(), "First")
	second := createTrip(t, db, uuid.New(), "Second")

	first.IsPublic, first.PublicSlug = true, "abc123"
	require.NoError(t, db.InTx(ctx, func(tx dbt.Store) error { return tx.UpdateTrip(ctx, first) }))

	got, err := db.GetTripBySlug(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	// Test 2: Slugs are unique
	second.IsPublic, second.PublicSlug = true, "abc123"
	err = db.InTx(ctx, func(tx dbt.Store) error { return tx.UpdateTrip(ctx, second) })
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))

	// Test 3: Empty slug never matches a private trip
	_, err = db.GetTripBySlug(ctx, "")
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestSearchCatalog(t *testing.T) {
	db := setupTest(t)
	ctx := context.Background()

	paris := int64(1)
	minCost := decimal.NewFromInt(16)
	res, err := db.SearchActivities(ctx, dbt.ActivityFilter{CityID: &paris, MinCost: &minCost})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "Louvre Museum", res[0].Name)

	res, err = db.SearchActivities(ctx, dbt.ActivityFilter{Search: "TOUR", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, res, 1)

	cities, err := db.SearchCities(ctx, dbt.CityFilter{Country: "japan"})
	require.NoError(t, err)
	require.Len(t, cities, 1)
	assert.Equal(t, "Kyoto", cities[0].Name)
}

func TestCanceledContextIsTransient(t *testing.T) {
	db := setupTest(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := db.ListTripsByOwner(ctx, uuid.New())
	assert.True(t, apperr.IsKind(err, apperr.KindTransient))

	err = db.InTx(ctx, func(tx dbt.Store) error { return nil })
	assert.True(t, apperr.IsKind(err, apperr.KindTransient))
}
