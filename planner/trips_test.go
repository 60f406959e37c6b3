package planner_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbt "globetrotter/db/db"
	"globetrotter/libs/apperr"
	"globetrotter/mq/goch"
	"globetrotter/mq/mq"
	"globetrotter/planner"
)

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(time.DateOnly, s)
	require.NoError(t, err)
	return d
}

func TestCreateTrip(t *testing.T) {
	p, _ := setupTest(t)
	ctx := context.Background()
	owner := uuid.New()

	// Test 1: title is trimmed
	trip, err := p.CreateTrip(ctx, owner, planner.NewTrip{Title: "  Alps  "})
	require.NoError(t, err)
	assert.Equal(t, "Alps", trip.Title)
	assert.False(t, trip.IsPublic)

	// Test 2: rejected input
	_, err = p.CreateTrip(ctx, owner, planner.NewTrip{Title: "   "})
	assertKind(t, err, apperr.KindValidation)
	_, err = p.CreateTrip(ctx, owner, planner.NewTrip{Title: strings.Repeat("x", 256)})
	assertKind(t, err, apperr.KindValidation)
	start, end := mustDate(t, "2025-03-02"), mustDate(t, "2025-03-01")
	_, err = p.CreateTrip(ctx, owner, planner.NewTrip{Title: "Backwards", StartDate: &start, EndDate: &end})
	assertKind(t, err, apperr.KindValidation)
	_, err = p.CreateTrip(ctx, planner.Anonymous, planner.NewTrip{Title: "Nobody"})
	assertKind(t, err, apperr.KindAuthorization)

	trips, err := p.ListTrips(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, trips, 1)
}

func TestUpdateTrip(t *testing.T) {
	db := newStore(t)
	queue := goch.NewChannelTripEventQueue(8)
	defer queue.Close()
	p := newPlanner(t, db, planner.WithEvents(queue))
	ctx := context.Background()
	owner := uuid.New()
	trip := mustCreateTrip(t, p, owner, "Draft")
	_, events, err := queue.Subscribe(trip.ID)
	require.NoError(t, err)

	// Test 1: changed fields are reported
	title := "Final"
	end := mustDate(t, "2025-09-30")
	updated, err := p.UpdateTrip(ctx, trip.ID, owner, planner.TripPatch{Title: &title, EndDate: &end})
	require.NoError(t, err)
	assert.Equal(t, "Final", updated.Title)
	ev := nextEvent(t, events)
	assert.Equal(t, mq.EventTripUpdated, ev.Type)
	fields := make([]string, 0, len(ev.Changes))
	for _, c := range ev.Changes {
		fields = append(fields, c.Field)
	}
	assert.Contains(t, fields, "title")

	// Test 2: a no-op patch writes nothing
	_, err = p.UpdateTrip(ctx, trip.ID, owner, planner.TripPatch{Title: &title})
	require.NoError(t, err)
	select {
	case ev := <-events:
		t.Fatalf("unexpected event %s", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}

	// Test 3: start after the stored end date
	start := mustDate(t, "2025-10-01")
	_, err = p.UpdateTrip(ctx, trip.ID, owner, planner.TripPatch{StartDate: &start})
	assertKind(t, err, apperr.KindValidation)
	updated, err = p.UpdateTrip(ctx, trip.ID, owner, planner.TripPatch{StartDate: &start, ClearEndDate: true})
	require.NoError(t, err)
	assert.Nil(t, updated.EndDate)

	// Test 4: strangers cannot edit
	_, err = p.UpdateTrip(ctx, trip.ID, uuid.New(), planner.TripPatch{Title: &title})
	assertKind(t, err, apperr.KindAuthorization)
}

func TestDeleteTripCascades(t *testing.T) {
	p, db := setupTest(t)
	ctx := context.Background()
	owner := uuid.New()
	trip := mustCreateTrip(t, p, owner, "Gone")
	stop := mustAppend(t, p, trip.ID, owner, 1)
	a, err := p.AssignActivity(ctx, stop.ID, owner, planner.NewAssignment{ActivityID: 1})
	require.NoError(t, err)

	assertKind(t, p.DeleteTrip(ctx, trip.ID, uuid.New()), apperr.KindAuthorization)
	require.NoError(t, p.DeleteTrip(ctx, trip.ID, owner))

	_, err = p.GetTrip(ctx, trip.ID, owner)
	assertKind(t, err, apperr.KindNotFound)
	_, err = db.GetStop(ctx, stop.ID)
	assertKind(t, err, apperr.KindNotFound)
	_, err = db.GetAssignment(ctx, a.ID)
	assertKind(t, err, apperr.KindNotFound)
}

func TestAssignments(t *testing.T) {
	p, _ := setupTest(t)
	ctx := context.Background()
	owner := uuid.New()
	trip := mustCreateTrip(t, p, owner, "Busy")
	stop := mustAppend(t, p, trip.ID, owner, 1)

	// Test 1: unknown activity and foreign stop
	_, err := p.AssignActivity(ctx, stop.ID, owner, planner.NewAssignment{ActivityID: 999})
	assertKind(t, err, apperr.KindValidation)
	_, err = p.AssignActivity(ctx, stop.ID, uuid.New(), planner.NewAssignment{ActivityID: 1})
	assertKind(t, err, apperr.KindAuthorization)
	_, err = p.AssignActivity(ctx, uuid.New(), owner, planner.NewAssignment{ActivityID: 1})
	assertKind(t, err, apperr.KindNotFound)

	// Test 2: the same activity may be assigned twice
	a, err := p.AssignActivity(ctx, stop.ID, owner, planner.NewAssignment{ActivityID: 1})
	require.NoError(t, err)
	_, err = p.AssignActivity(ctx, stop.ID, owner, planner.NewAssignment{ActivityID: 1})
	require.NoError(t, err)

	// Test 3: reschedule and annotate
	at := time.Date(2025, 7, 1, 14, 0, 0, 0, time.UTC)
	notes := "tickets in inbox"
	updated, err := p.UpdateAssignment(ctx, a.ID, owner, planner.AssignmentPatch{ScheduledAt: &at, Notes: &notes})
	require.NoError(t, err)
	require.NotNil(t, updated.ScheduledAt)
	assert.True(t, at.Equal(*updated.ScheduledAt))
	assert.Equal(t, notes, updated.Notes)
	assert.EqualValues(t, 1, updated.ActivityID)

	updated, err = p.UpdateAssignment(ctx, a.ID, owner, planner.AssignmentPatch{ClearSchedule: true})
	require.NoError(t, err)
	assert.Nil(t, updated.ScheduledAt)

	// Test 4: delete
	assertKind(t, p.DeleteAssignment(ctx, a.ID, uuid.New()), apperr.KindAuthorization)
	require.NoError(t, p.DeleteAssignment(ctx, a.ID, owner))
	assertKind(t, p.DeleteAssignment(ctx, a.ID, owner), apperr.KindNotFound)

	budget, err := p.ComputeBudget(ctx, trip.ID, owner)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("22").Equal(budget.Total))
}

func TestSearchCatalog(t *testing.T) {
	p, _ := setupTest(t)
	ctx := context.Background()

	cities, err := p.SearchCities(ctx, dbt.CityFilter{Search: "ROM"})
	require.NoError(t, err)
	require.Len(t, cities, 1)
	assert.Equal(t, "Rome", cities[0].Name)

	paris := int64(1)
	maxCost := decimal.RequireFromString("20")
	activities, err := p.SearchActivities(ctx, dbt.ActivityFilter{CityID: &paris, MaxCost: &maxCost})
	require.NoError(t, err)
	require.Len(t, activities, 1)
	assert.Equal(t, "Seine River Cruise", activities[0].Name)

	minCost := decimal.RequireFromString("30")
	_, err = p.SearchActivities(ctx, dbt.ActivityFilter{MinCost: &minCost, MaxCost: &maxCost})
	assertKind(t, err, apperr.KindValidation)
}
