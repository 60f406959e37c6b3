package diff

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbt "globetrotter/db/db"
)

func TestTripChanges(t *testing.T) {
	start := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	before := dbt.Trip{ID: uuid.New(), OwnerID: uuid.New(), Title: "Italy", CreatedAt: time.Now()}

	// Test 1: Same trip, only timestamps moved
	after := before
	after.UpdatedAt = time.Now().Add(time.Hour)
	changes, err := TripChanges(before, after)
	require.NoError(t, err)
	assert.Empty(t, changes)

	// Test 2: Title and start date changed
	after.Title = "Italy & Greece"
	after.StartDate = &start
	changes, err = TripChanges(before, after)
	require.NoError(t, err)

	fields := map[string]any{}
	for _, c := range changes {
		fields[c.Field] = c.To
	}
	assert.Equal(t, "Italy & Greece", fields["title"])
	assert.Contains(t, fields, "start_date")
	assert.Len(t, changes, 2)
}

func TestUUIDComparer(t *testing.T) {
	type owned struct {
		Owner uuid.UUID `diff:"owner"`
	}
	a := owned{Owner: uuid.New()}
	b := owned{Owner: uuid.New()}

	changelog, err := GetCustomDiffer().Diff(a, b)
	require.NoError(t, err)
	require.Len(t, changelog, 1, "a uuid change is a single update")
	assert.Equal(t, []string{"owner"}, changelog[0].Path)
	assert.Equal(t, a.Owner, changelog[0].From)
	assert.Equal(t, b.Owner, changelog[0].To)
}
