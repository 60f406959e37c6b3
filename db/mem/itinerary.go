package mem

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	dbt "globetrotter/db/db"
	"globetrotter/libs/apperr"
)

// state is one committed version of the store. A committed state is never
// mutated: transactions work on a clone and swap it in on success.
type state struct {
	trips       map[uuid.UUID]dbt.Trip
	stops       map[uuid.UUID]dbt.Stop
	assignments map[uuid.UUID]dbt.ActivityAssignment
	expenses    map[uuid.UUID]dbt.ExpenseRecord
	saved       map[savedKey]time.Time
}

type savedKey struct {
	userID uuid.UUID
	cityID int64
}

func newState() *state {
	return &state{
		trips:       make(map[uuid.UUID]dbt.Trip),
		stops:       make(map[uuid.UUID]dbt.Stop),
		assignments: make(map[uuid.UUID]dbt.ActivityAssignment),
		expenses:    make(map[uuid.UUID]dbt.ExpenseRecord),
		saved:       make(map[savedKey]time.Time),
	}
}

func (s *state) clone() *state {
	c := &state{
		trips:       make(map[uuid.UUID]dbt.Trip, len(s.trips)),
		stops:       make(map[uuid.UUID]dbt.Stop, len(s.stops)),
		assignments: make(map[uuid.UUID]dbt.ActivityAssignment, len(s.assignments)),
		expenses:    make(map[uuid.UUID]dbt.ExpenseRecord, len(s.expenses)),
		saved:       make(map[savedKey]time.Time, len(s.saved)),
	}
	for k, v := range s.trips {
		c.trips[k] = v
	}
	for k, v := range s.stops {
		c.stops[k] = v
	}
	for k, v := range s.assignments {
		c.assignments[k] = v
	}
	for k, v := range s.expenses {
		c.expenses[k] = v
	}
	for k, v := range s.saved {
		c.saved[k] = v
	}
	return c
}

// catalog holds the read-only city and activity reference data.
type catalog struct {
	mu         sync.RWMutex
	cities     map[int64]dbt.City
	activities map[int64]dbt.Activity
}

// InMemoryItineraryDBWrapper is an in-memory implementation of dbt.ItineraryDBWrapper.
type InMemoryItineraryDBWrapper struct {
	// txMu serializes transactions, which makes every trip lock trivially held.
	txMu sync.Mutex
	// mu guards the current pointer only.
	mu      sync.RWMutex
	current *state
	catalog *catalog
}

// NewInMemoryItineraryDBWrapper creates an empty store with an empty catalog.
func NewInMemoryItineraryDBWrapper() *InMemoryItineraryDBWrapper {
	return &InMemoryItineraryDBWrapper{
		current: newState(),
		catalog: &catalog{
			cities:     make(map[int64]dbt.City),
			activities: make(map[int64]dbt.Activity),
		},
	}
}

// SeedCatalog loads reference data. Activities must point at a seeded city.
func (db *InMemoryItineraryDBWrapper) SeedCatalog(cities []dbt.City, activities []dbt.Activity) error {
	db.catalog.mu.Lock()
	defer db.catalog.mu.Unlock()

	for _, c := range cities {
		db.catalog.cities[c.ID] = c
	}
	for _, a := range activities {
		if _, ok := db.catalog.cities[a.CityID]; !ok {
			return apperr.Validation("seed catalog", "activity %d references unknown city %d", a.ID, a.CityID)
		}
		if a.Cost.Valid && a.Cost.Decimal.IsNegative() {
			return apperr.Validation("seed catalog", "activity %d has negative cost", a.ID)
		}
		db.catalog.activities[a.ID] = a
	}
	return nil
}

func (db *InMemoryItineraryDBWrapper) snapshot() *view {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return &view{st: db.current, catalog: db.catalog}
}

// InTx runs fn against a private copy of the store and publishes it only when fn succeeds.
func (db *InMemoryItineraryDBWrapper) InTx(ctx context.Context, fn func(tx dbt.Store) error) error {
	db.txMu.Lock()
	defer db.txMu.Unlock()

	if err := ctxErr(ctx, "begin transaction"); err != nil {
		return err
	}

	db.mu.RLock()
	working := db.current.clone()
	db.mu.RUnlock()

	if err := fn(&txStore{view: view{st: working, catalog: db.catalog}}); err != nil {
		return err
	}
	// a commit is not cancellable once started

	db.mu.Lock()
	db.current = working
	db.mu.Unlock()
	return nil
}

func (db *InMemoryItineraryDBWrapper) GetTrip(ctx context.Context, id uuid.UUID) (*dbt.Trip, error) {
	return db.snapshot().GetTrip(ctx, id)
}

func (db *InMemoryItineraryDBWrapper) GetTripBySlug(ctx context.Context, slug string) (*dbt.Trip, error) {
	return db.snapshot().GetTripBySlug(ctx, slug)
}

func (db *InMemoryItineraryDBWrapper) ListTripsByOwner(ctx context.Context, ownerID uuid.UUID) ([]dbt.Trip, error) {
	return db.snapshot().ListTripsByOwner(ctx, ownerID)
}

func (db *InMemoryItineraryDBWrapper) GetStop(ctx context.Context, id uuid.UUID) (*dbt.Stop, error) {
	return db.snapshot().GetStop(ctx, id)
}

func (db *InMemoryItineraryDBWrapper) ListStops(ctx context.Context, tripID uuid.UUID) ([]dbt.Stop, error) {
	return db.snapshot().ListStops(ctx, tripID)
}

func (db *InMemoryItineraryDBWrapper) GetAssignment(ctx context.Context, id uuid.UUID) (*dbt.ActivityAssignment, error) {
	return db.snapshot().GetAssignment(ctx, id)
}

func (db *InMemoryItineraryDBWrapper) ListAssignments(ctx context.Context, stopID uuid.UUID) ([]dbt.ActivityAssignment, error) {
	return db.snapshot().ListAssignments(ctx, stopID)
}

func (db *InMemoryItineraryDBWrapper) ListExpenses(ctx context.Context, tripID uuid.UUID) ([]dbt.ExpenseRecord, error) {
	return db.snapshot().ListExpenses(ctx, tripID)
}

func (db *InMemoryItineraryDBWrapper) SumActivityCost(ctx context.Context, tripID uuid.UUID) (decimal.Decimal, error) {
	return db.snapshot().SumActivityCost(ctx, tripID)
}

func (db *InMemoryItineraryDBWrapper) SumExpensesByCategory(ctx context.Context, tripID uuid.UUID) ([]dbt.CategoryCost, error) {
	return db.snapshot().SumExpensesByCategory(ctx, tripID)
}

func (db *InMemoryItineraryDBWrapper) GetActivity(ctx context.Context, id int64) (*dbt.Activity, error) {
	return db.snapshot().GetActivity(ctx, id)
}

func (db *InMemoryItineraryDBWrapper) GetCity(ctx context.Context, id int64) (*dbt.City, error) {
	return db.snapshot().GetCity(ctx, id)
}

func (db *InMemoryItineraryDBWrapper) SearchActivities(ctx context.Context, filter dbt.ActivityFilter) ([]dbt.Activity, error) {
	return db.snapshot().SearchActivities(ctx, filter)
}

func (db *InMemoryItineraryDBWrapper) SearchCities(ctx context.Context, filter dbt.CityFilter) ([]dbt.City, error) {
	return db.snapshot().SearchCities(ctx, filter)
}

func (db *InMemoryItineraryDBWrapper) DataLoaderGetStopActivityList(ctx context.Context, stopIDs []uuid.UUID) (map[uuid.UUID][]dbt.AssignedActivity, error) {
	v := db.snapshot()
	res := make(map[uuid.UUID][]dbt.AssignedActivity, len(stopIDs))
	for _, id := range stopIDs {
		list, err := v.ListAssignments(ctx, id)
		if err != nil {
			return nil, err
		}
		assigned := make([]dbt.AssignedActivity, 0, len(list))
		for _, a := range list {
			act, err := v.GetActivity(ctx, a.ActivityID)
			if err != nil {
				return nil, err
			}
			assigned = append(assigned, dbt.AssignedActivity{ActivityAssignment: a, Activity: *act})
		}
		res[id] = assigned
	}
	return res, nil
}

func (db *InMemoryItineraryDBWrapper) DataLoaderGetCityList(ctx context.Context, cityIDs []int64) (map[int64]*dbt.City, error) {
	v := db.snapshot()
	res := make(map[int64]*dbt.City, len(cityIDs))
	for _, id := range cityIDs {
		c, err := v.GetCity(ctx, id)
		if err != nil {
			return nil, err
		}
		res[id] = c
	}
	return res, nil
}

func ctxErr(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return apperr.Wrap(apperr.KindTransient, op, err)
	}
	return nil
}

// view reads one state. Returned values are copies.
type view struct {
	st      *state
	catalog *catalog
}

func (v *view) GetTrip(ctx context.Context, id uuid.UUID) (*dbt.Trip, error) {
	if err := ctxErr(ctx, "get trip"); err != nil {
		return nil, err
	}
	t, ok := v.st.trips[id]
	if !ok {
		return nil, apperr.NotFound("get trip", "trip %s not found", id)
	}
	return &t, nil
}

func (v *view) GetTripBySlug(ctx context.Context, slug string) (*dbt.Trip, error) {
	if err := ctxErr(ctx, "get trip by slug"); err != nil {
		return nil, err
	}
	if slug != "" {
		for _, t := range v.st.trips {
			if t.PublicSlug == slug {
				return &t, nil
			}
		}
	}
	return nil, apperr.NotFound("get trip by slug", "no trip with slug %q", slug)
}

func (v *view) ListTripsByOwner(ctx context.Context, ownerID uuid.UUID) ([]dbt.Trip, error) {
	if err := ctxErr(ctx, "list trips"); err != nil {
		return nil, err
	}
	res := []dbt.Trip{}
	for _, t := range v.st.trips {
		if t.OwnerID == ownerID {
			res = append(res, t)
		}
	}
	slices.SortFunc(res, func(a, b dbt.Trip) int {
		if c := compareNullTime(a.StartDate, b.StartDate); c != 0 {
			return c
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return res, nil
}

func (v *view) GetStop(ctx context.Context, id uuid.UUID) (*dbt.Stop, error) {
	if err := ctxErr(ctx, "get stop"); err != nil {
		return nil, err
	}
	s, ok := v.st.stops[id]
	if !ok {
		return nil, apperr.NotFound("get stop", "stop %s not found", id)
	}
	return &s, nil
}

func (v *view) ListStops(ctx context.Context, tripID uuid.UUID) ([]dbt.Stop, error) {
	if err := ctxErr(ctx, "list stops"); err != nil {
		return nil, err
	}
	res := []dbt.Stop{}
	for _, s := range v.st.stops {
		if s.TripID == tripID {
			res = append(res, s)
		}
	}
	slices.SortFunc(res, func(a, b dbt.Stop) int { return cmp.Compare(a.OrderIndex, b.OrderIndex) })
	return res, nil
}

func (v *view) GetAssignment(ctx context.Context, id uuid.UUID) (*dbt.ActivityAssignment, error) {
	if err := ctxErr(ctx, "get assignment"); err != nil {
		return nil, err
	}
	a, ok := v.st.assignments[id]
	if !ok {
		return nil, apperr.NotFound("get assignment", "assignment %s not found", id)
	}
	return &a, nil
}

func (v *view) ListAssignments(ctx context.Context, stopID uuid.UUID) ([]dbt.ActivityAssignment, error) {
	if err := ctxErr(ctx, "list assignments"); err != nil {
		return nil, err
	}
	res := []dbt.ActivityAssignment{}
	for _, a := range v.st.assignments {
		if a.StopID == stopID {
			res = append(res, a)
		}
	}
	slices.SortFunc(res, func(a, b dbt.ActivityAssignment) int {
		if c := compareNullTime(a.ScheduledAt, b.ScheduledAt); c != 0 {
			return c
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})
	return res, nil
}

func (v *view) ListExpenses(ctx context.Context, tripID uuid.UUID) ([]dbt.ExpenseRecord, error) {
	if err := ctxErr(ctx, "list expenses"); err != nil {
		return nil, err
	}
	res := []dbt.ExpenseRecord{}
	for _, e := range v.st.expenses {
		if e.TripID == tripID {
			res = append(res, e)
		}
	}
	slices.SortFunc(res, func(a, b dbt.ExpenseRecord) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return res, nil
}

func (v *view) SumActivityCost(ctx context.Context, tripID uuid.UUID) (decimal.Decimal, error) {
	if err := ctxErr(ctx, "sum activity cost"); err != nil {
		return decimal.Zero, err
	}
	v.catalog.mu.RLock()
	defer v.catalog.mu.RUnlock()

	total := decimal.Zero
	for _, a := range v.st.assignments {
		stop, ok := v.st.stops[a.StopID]
		if !ok || stop.TripID != tripID {
			continue
		}
		total = total.Add(v.catalog.activities[a.ActivityID].CostOrZero())
	}
	return total, nil
}

func (v *view) SumExpensesByCategory(ctx context.Context, tripID uuid.UUID) ([]dbt.CategoryCost, error) {
	if err := ctxErr(ctx, "sum expenses"); err != nil {
		return nil, err
	}
	sums := make(map[string]decimal.Decimal)
	for _, e := range v.st.expenses {
		if e.TripID == tripID {
			sums[e.Category] = sums[e.Category].Add(e.Amount)
		}
	}
	res := make([]dbt.CategoryCost, 0, len(sums))
	for category, cost := range sums {
		res = append(res, dbt.CategoryCost{Category: category, Cost: cost})
	}
	slices.SortFunc(res, func(a, b dbt.CategoryCost) int { return strings.Compare(a.Category, b.Category) })
	return res, nil
}

func (v *view) GetActivity(ctx context.Context, id int64) (*dbt.Activity, error) {
	if err := ctxErr(ctx, "get activity"); err != nil {
		return nil, err
	}
	v.catalog.mu.RLock()
	defer v.catalog.mu.RUnlock()
	a, ok := v.catalog.activities[id]
	if !ok {
		return nil, apperr.NotFound("get activity", "activity %d not found", id)
	}
	return &a, nil
}

func (v *view) GetCity(ctx context.Context, id int64) (*dbt.City, error) {
	if err := ctxErr(ctx, "get city"); err != nil {
		return nil, err
	}
	v.catalog.mu.RLock()
	defer v.catalog.mu.RUnlock()
	c, ok := v.catalog.cities[id]
	if !ok {
		return nil, apperr.NotFound("get city", "city %d not found", id)
	}
	return &c, nil
}

func (v *view) SearchActivities(ctx context.Context, filter dbt.ActivityFilter) ([]dbt.Activity, error) {
	if err := ctxErr(ctx, "search activities"); err != nil {
		return nil, err
	}
	v.catalog.mu.RLock()
	defer v.catalog.mu.RUnlock()

	search := strings.ToLower(filter.Search)
	res := []dbt.Activity{}
	for _, a := range v.catalog.activities {
		if filter.CityID != nil && a.CityID != *filter.CityID {
			continue
		}
		if filter.Type != "" && !strings.EqualFold(a.Type, filter.Type) {
			continue
		}
		if filter.MinCost != nil && (!a.Cost.Valid || a.Cost.Decimal.LessThan(*filter.MinCost)) {
			continue
		}
		if filter.MaxCost != nil && (!a.Cost.Valid || a.Cost.Decimal.GreaterThan(*filter.MaxCost)) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(a.Name), search) &&
			!strings.Contains(strings.ToLower(a.Description), search) {
			continue
		}
		res = append(res, a)
	}
	slices.SortFunc(res, func(a, b dbt.Activity) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return truncate(res, filter.Limit), nil
}

func (v *view) SearchCities(ctx context.Context, filter dbt.CityFilter) ([]dbt.City, error) {
	if err := ctxErr(ctx, "search cities"); err != nil {
		return nil, err
	}
	v.catalog.mu.RLock()
	defer v.catalog.mu.RUnlock()

	search := strings.ToLower(filter.Search)
	res := []dbt.City{}
	for _, c := range v.catalog.cities {
		if filter.Country != "" && !strings.EqualFold(c.Country, filter.Country) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(c.Name), search) &&
			!strings.Contains(strings.ToLower(c.Country), search) {
			continue
		}
		res = append(res, c)
	}
	slices.SortFunc(res, func(a, b dbt.City) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return truncate(res, filter.Limit), nil
}

func truncate[T any](list []T, limit int) []T {
	if limit > 0 && len(list) > limit {
		return list[:limit]
	}
	return list
}

// compareNullTime orders nil after every set time.
func compareNullTime(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	default:
		return a.Compare(*b)
	}
}
