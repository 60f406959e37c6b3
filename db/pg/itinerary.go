package pg

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dbt "globetrotter/db/db"
	"globetrotter/libs/apperr"
)

// GORMItineraryDBWrapper is a GORM-based PostgreSQL implementation of dbt.ItineraryDBWrapper.
type GORMItineraryDBWrapper struct {
	reader
}

var _ dbt.ItineraryDBWrapper = (*GORMItineraryDBWrapper)(nil)

// NewGORMItineraryDBWrapper creates and returns a new instance of GORMItineraryDBWrapper.
func NewGORMItineraryDBWrapper(db *gorm.DB) *GORMItineraryDBWrapper {
	return &GORMItineraryDBWrapper{reader: reader{db: db}}
}

// InTx runs fn inside one database transaction.
func (pgdb *GORMItineraryDBWrapper) InTx(ctx context.Context, fn func(tx dbt.Store) error) error {
	err := pgdb.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{reader: reader{db: tx}})
	})
	if err == nil {
		return nil
	}
	// errors from fn already carry a kind, the rest come from begin or commit
	if apperr.KindOf(err) != apperr.KindInternal {
		return err
	}
	return translateError("transaction", err)
}

func (pgdb *GORMItineraryDBWrapper) DataLoaderGetStopActivityList(ctx context.Context, stopIDs []uuid.UUID) (map[uuid.UUID][]dbt.AssignedActivity, error) {
	var assignments []AssignmentModel
	err := pgdb.db.WithContext(ctx).
		Where("stop_id IN ?", stopIDs).
		Order("scheduled_at ASC NULLS LAST, created_at ASC, id ASC").
		Find(&assignments).Error
	if err != nil {
		return nil, translateError("load stop activities", err)
	}

	activityIDs := make([]int64, 0, len(assignments))
	for _, a := range assignments {
		activityIDs = append(activityIDs, a.ActivityID)
	}
	var activities []ActivityModel
	if len(activityIDs) > 0 {
		if err := pgdb.db.WithContext(ctx).Where("id IN ?", activityIDs).Find(&activities).Error; err != nil {
			return nil, translateError("load stop activities", err)
		}
	}
	byID := make(map[int64]dbt.Activity, len(activities))
	for _, a := range activities {
		byID[a.ID] = a.toActivity()
	}

	res := make(map[uuid.UUID][]dbt.AssignedActivity, len(stopIDs))
	for _, a := range assignments {
		res[a.StopID] = append(res[a.StopID], dbt.AssignedActivity{
			ActivityAssignment: a.toAssignment(),
			Activity:           byID[a.ActivityID],
		})
	}
	return res, nil
}

func (pgdb *GORMItineraryDBWrapper) DataLoaderGetCityList(ctx context.Context, cityIDs []int64) (map[int64]*dbt.City, error) {
	var cities []CityModel
	if err := pgdb.db.WithContext(ctx).Where("id IN ?", cityIDs).Find(&cities).Error; err != nil {
		return nil, translateError("load cities", err)
	}
	res := make(map[int64]*dbt.City, len(cities))
	for _, c := range cities {
		city := c.toCity()
		res[c.ID] = &city
	}
	return res, nil
}

// reader implements dbt.Reader on top of a *gorm.DB, which may be a transaction.
type reader struct {
	db *gorm.DB
}

func (r reader) GetTrip(ctx context.Context, id uuid.UUID) (*dbt.Trip, error) {
	var m TripModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, translateError(fmt.Sprintf("get trip %s", id), err)
	}
	t := m.toTrip()
	return &t, nil
}

func (r reader) GetTripBySlug(ctx context.Context, slug string) (*dbt.Trip, error) {
	if slug == "" {
		return nil, apperr.NotFound("get trip by slug", "empty slug")
	}
	var m TripModel
	if err := r.db.WithContext(ctx).First(&m, "public_slug = ?", slug).Error; err != nil {
		return nil, translateError("get trip by slug", err)
	}
	t := m.toTrip()
	return &t, nil
}

func (r reader) ListTripsByOwner(ctx context.Context, ownerID uuid.UUID) ([]dbt.Trip, error) {
	var models []TripModel
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("start_date ASC NULLS LAST, created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, translateError("list trips", err)
	}
	trips := make([]dbt.Trip, 0, len(models))
	for _, m := range models {
		trips = append(trips, m.toTrip())
	}
	return trips, nil
}

func (r reader) GetStop(ctx context.Context, id uuid.UUID) (*dbt.Stop, error) {
	var m StopModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, translateError(fmt.Sprintf("get stop %s", id), err)
	}
	s := m.toStop()
	return &s, nil
}

func (r reader) ListStops(ctx context.Context, tripID uuid.UUID) ([]dbt.Stop, error) {
	var models []StopModel
	if err := r.db.WithContext(ctx).Where("trip_id = ?", tripID).Order("order_index ASC").Find(&models).Error; err != nil {
		return nil, translateError("list stops", err)
	}
	stops := make([]dbt.Stop, 0, len(models))
	for _, m := range models {
		stops = append(stops, m.toStop())
	}
	return stops, nil
}

func (r reader) GetAssignment(ctx context.Context, id uuid.UUID) (*dbt.ActivityAssignment, error) {
	var m AssignmentModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, translateError(fmt.Sprintf("get assignment %s", id), err)
	}
	a := m.toAssignment()
	return &a, nil
}

func (r reader) ListAssignments(ctx context.Context, stopID uuid.UUID) ([]dbt.ActivityAssignment, error) {
	var models []AssignmentModel
	err := r.db.WithContext(ctx).
		Where("stop_id = ?", stopID).
		Order("scheduled_at ASC NULLS LAST, created_at ASC, id ASC").
		Find(&models).Error
	if err != nil {
		return nil, translateError("list assignments", err)
	}
	list := make([]dbt.ActivityAssignment, 0, len(models))
	for _, m := range models {
		list = append(list, m.toAssignment())
	}
	return list, nil
}

func (r reader) ListExpenses(ctx context.Context, tripID uuid.UUID) ([]dbt.ExpenseRecord, error) {
	var models []ExpenseModel
	if err := r.db.WithContext(ctx).Where("trip_id = ?", tripID).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, translateError("list expenses", err)
	}
	list := make([]dbt.ExpenseRecord, 0, len(models))
	for _, m := range models {
		list = append(list, m.toExpense())
	}
	return list, nil
}

func (r reader) SumActivityCost(ctx context.Context, tripID uuid.UUID) (decimal.Decimal, error) {
	var total decimal.Decimal
	row := r.db.WithContext(ctx).Raw(`
		SELECT COALESCE(SUM(COALESCE(a.cost, 0)), 0)
		FROM stop_activities sa
		JOIN trip_stops ts ON ts.id = sa.stop_id
		JOIN activities a ON a.id = sa.activity_id
		WHERE ts.trip_id = ?`, tripID).Row()
	if err := row.Scan(&total); err != nil {
		return decimal.Zero, translateError("sum activity cost", err)
	}
	return total, nil
}

func (r reader) SumExpensesByCategory(ctx context.Context, tripID uuid.UUID) ([]dbt.CategoryCost, error) {
	var rows []struct {
		Category string
		Cost     decimal.Decimal
	}
	err := r.db.WithContext(ctx).Model(&ExpenseModel{}).
		Select("category, SUM(amount) AS cost").
		Where("trip_id = ?", tripID).
		Group("category").
		Order("category ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, translateError("sum expenses", err)
	}
	res := make([]dbt.CategoryCost, 0, len(rows))
	for _, row := range rows {
		res = append(res, dbt.CategoryCost{Category: row.Category, Cost: row.Cost})
	}
	return res, nil
}

func (r reader) GetActivity(ctx context.Context, id int64) (*dbt.Activity, error) {
	var m ActivityModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, translateError(fmt.Sprintf("get activity %d", id), err)
	}
	a := m.toActivity()
	return &a, nil
}

func (r reader) GetCity(ctx context.Context, id int64) (*dbt.City, error) {
	var m CityModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, translateError(fmt.Sprintf("get city %d", id), err)
	}
	c := m.toCity()
	return &c, nil
}

func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

func (r reader) SearchActivities(ctx context.Context, filter dbt.ActivityFilter) ([]dbt.Activity, error) {
	q := r.db.WithContext(ctx).Model(&ActivityModel{})
	if filter.CityID != nil {
		q = q.Where("city_id = ?", *filter.CityID)
	}
	if filter.Type != "" {
		q = q.Where("LOWER(type) = LOWER(?)", filter.Type)
	}
	if filter.MinCost != nil {
		q = q.Where("cost >= ?", *filter.MinCost)
	}
	if filter.MaxCost != nil {
		q = q.Where("cost <= ?", *filter.MaxCost)
	}
	if filter.Search != "" {
		p := likePattern(filter.Search)
		q = q.Where("(name ILIKE ? OR description ILIKE ?)", p, p)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var models []ActivityModel
	if err := q.Order("name ASC, id ASC").Find(&models).Error; err != nil {
		return nil, translateError("search activities", err)
	}
	res := make([]dbt.Activity, 0, len(models))
	for _, m := range models {
		res = append(res, m.toActivity())
	}
	return res, nil
}

func (r reader) SearchCities(ctx context.Context, filter dbt.CityFilter) ([]dbt.City, error) {
	q := r.db.WithContext(ctx).Model(&CityModel{})
	if filter.Country != "" {
		q = q.Where("LOWER(country) = LOWER(?)", filter.Country)
	}
	if filter.Search != "" {
		p := likePattern(filter.Search)
		q = q.Where("(name ILIKE ? OR country ILIKE ?)", p, p)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var models []CityModel
	if err := q.Order("name ASC, id ASC").Find(&models).Error; err != nil {
		return nil, translateError("search cities", err)
	}
	res := make([]dbt.City, 0, len(models))
	for _, m := range models {
		res = append(res, m.toCity())
	}
	return res, nil
}

// gormStore is the transactional view handed to InTx callbacks.
type gormStore struct {
	reader
}

var _ dbt.Store = (*gormStore)(nil)

// LockTrip takes a row lock on the trip that is released at commit or rollback.
func (s *gormStore) LockTrip(ctx context.Context, id uuid.UUID) (*dbt.Trip, error) {
	var m TripModel
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&m, "id = ?", id).Error
	if err != nil {
		return nil, translateError(fmt.Sprintf("lock trip %s", id), err)
	}
	t := m.toTrip()
	return &t, nil
}

func (s *gormStore) CreateTrip(ctx context.Context, trip *dbt.Trip) error {
	if trip.ID == uuid.Nil {
		trip.ID = uuid.New()
	}
	m := tripModelFrom(trip)
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return translateError("create trip", err)
	}
	trip.CreatedAt, trip.UpdatedAt = m.CreatedAt, m.UpdatedAt
	return nil
}

func (s *gormStore) UpdateTrip(ctx context.Context, trip *dbt.Trip) error {
	m := tripModelFrom(trip)
	result := s.db.WithContext(ctx).Model(&TripModel{ID: trip.ID}).
		Select("title", "start_date", "end_date", "cover_photo_url", "is_public", "public_slug", "updated_at").
		Updates(&m)
	if result.Error != nil {
		return translateError("update trip", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("update trip", "trip %s not found", trip.ID)
	}
	trip.UpdatedAt = m.UpdatedAt
	return nil
}

// DeleteTrip relies on ON DELETE CASCADE for stops, assignments and expenses.
func (s *gormStore) DeleteTrip(ctx context.Context, id uuid.UUID) error {
	result := s.db.WithContext(ctx).Delete(&TripModel{}, "id = ?", id)
	if result.Error != nil {
		return translateError("delete trip", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("delete trip", "trip %s not found", id)
	}
	return nil
}

func (s *gormStore) CreateStop(ctx context.Context, stop *dbt.Stop) error {
	if stop.ID == uuid.Nil {
		stop.ID = uuid.New()
	}
	m := StopModel{
		ID:            stop.ID,
		TripID:        stop.TripID,
		CityID:        stop.CityID,
		ArrivalDate:   stop.ArrivalDate,
		DepartureDate: stop.DepartureDate,
		OrderIndex:    stop.OrderIndex,
		Notes:         stop.Notes,
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return translateError("create stop", err)
	}
	return nil
}

func (s *gormStore) MaxStopOrder(ctx context.Context, tripID uuid.UUID) (int, error) {
	var maxOrder int
	row := s.db.WithContext(ctx).Model(&StopModel{}).
		Select("COALESCE(MAX(order_index), 0)").
		Where("trip_id = ?", tripID).Row()
	if err := row.Scan(&maxOrder); err != nil {
		return 0, translateError("max stop order", err)
	}
	return maxOrder, nil
}

// SetStopOrder rewrites every listed stop in a single UPDATE. The unique
// (trip_id, order_index) constraint is deferred, so the intermediate
// duplicates never fail the statement.
func (s *gormStore) SetStopOrder(ctx context.Context, tripID uuid.UUID, stopIDs []uuid.UUID) error {
	if len(stopIDs) == 0 {
		return nil
	}
	values := make([]string, 0, len(stopIDs))
	args := make([]any, 0, len(stopIDs)*2+1)
	for i, id := range stopIDs {
		values = append(values, "(?::uuid, ?::int)")
		args = append(args, id, i+1)
	}
	args = append(args, tripID)

	sql := `UPDATE trip_stops AS s SET order_index = v.order_index
		FROM (VALUES ` + strings.Join(values, ", ") + `) AS v(id, order_index)
		WHERE s.id = v.id AND s.trip_id = ?`
	result := s.db.WithContext(ctx).Exec(sql, args...)
	if result.Error != nil {
		return translateError("set stop order", result.Error)
	}
	if int(result.RowsAffected) != len(stopIDs) {
		return apperr.Validation("set stop order", "%d of %d stops belong to trip %s", result.RowsAffected, len(stopIDs), tripID)
	}
	return nil
}

func (s *gormStore) DeleteStop(ctx context.Context, id uuid.UUID) error {
	result := s.db.WithContext(ctx).Delete(&StopModel{}, "id = ?", id)
	if result.Error != nil {
		return translateError("delete stop", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("delete stop", "stop %s not found", id)
	}
	return nil
}

func (s *gormStore) CreateAssignment(ctx context.Context, a *dbt.ActivityAssignment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	m := AssignmentModel{
		ID:          a.ID,
		StopID:      a.StopID,
		ActivityID:  a.ActivityID,
		ScheduledAt: a.ScheduledAt,
		Notes:       a.Notes,
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return translateError("create assignment", err)
	}
	a.CreatedAt = m.CreatedAt
	return nil
}

func (s *gormStore) UpdateAssignment(ctx context.Context, a *dbt.ActivityAssignment) error {
	result := s.db.WithContext(ctx).Model(&AssignmentModel{ID: a.ID}).
		Select("scheduled_at", "notes").
		Updates(&AssignmentModel{ScheduledAt: a.ScheduledAt, Notes: a.Notes})
	if result.Error != nil {
		return translateError("update assignment", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("update assignment", "assignment %s not found", a.ID)
	}
	updated, err := s.GetAssignment(ctx, a.ID)
	if err != nil {
		return err
	}
	*a = *updated
	return nil
}

func (s *gormStore) DeleteAssignment(ctx context.Context, id uuid.UUID) error {
	result := s.db.WithContext(ctx).Delete(&AssignmentModel{}, "id = ?", id)
	if result.Error != nil {
		return translateError("delete assignment", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("delete assignment", "assignment %s not found", id)
	}
	return nil
}

func (s *gormStore) CreateExpense(ctx context.Context, e *dbt.ExpenseRecord) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	m := ExpenseModel{ID: e.ID, TripID: e.TripID, Category: e.Category, Amount: e.Amount}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return translateError("create expense", err)
	}
	e.CreatedAt = m.CreatedAt
	return nil
}

func (s *gormStore) DeleteExpense(ctx context.Context, id uuid.UUID) error {
	result := s.db.WithContext(ctx).Delete(&ExpenseModel{}, "id = ?", id)
	if result.Error != nil {
		return translateError("delete expense", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("delete expense", "expense %s not found", id)
	}
	return nil
}
