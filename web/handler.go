package web

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	dbt "globetrotter/db/db"
	"globetrotter/libs/apperr"
	"globetrotter/mq/mq"
	"globetrotter/planner"
)

// Handler adapts planner operations to JSON over HTTP.
type Handler struct {
	planner *planner.Planner
	events  mq.TripEventQueue
	logger  *slog.Logger
}

func NewHandler(p *planner.Planner, events mq.TripEventQueue, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{planner: p, events: events, logger: logger}
}

func statusOf(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindAuthorization:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindTransient:
		return http.StatusServiceUnavailable
	case apperr.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.ErrorContext(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
		msg = "internal error"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func (h *Handler) badRequest(c *gin.Context, format string, args ...any) {
	h.fail(c, apperr.Validation(c.FullPath(), format, args...))
}

func (h *Handler) uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		// an id that cannot exist names nothing
		h.fail(c, apperr.NotFound(c.FullPath(), "%s %q not found", name, c.Param(name)))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) Register(r gin.IRouter) {
	r.GET("/cities", h.searchCities)
	r.GET("/cities/popular", h.popularCities)
	r.GET("/activities", h.searchActivities)

	r.GET("/saved-cities", h.listSavedCities)
	r.POST("/saved-cities", h.saveCity)
	r.DELETE("/saved-cities/:cityId", h.unsaveCity)
	r.GET("/admin/stats", h.stats)

	r.GET("/trips", h.listTrips)
	r.POST("/trips", h.createTrip)
	r.GET("/trips/:id", h.getTrip)
	r.PATCH("/trips/:id", h.updateTrip)
	r.DELETE("/trips/:id", h.deleteTrip)

	r.GET("/trips/:id/stops", h.listStops)
	r.POST("/trips/:id/stops", h.appendStop)
	r.PUT("/trips/:id/stops/order", h.reorderStops)
	r.DELETE("/stops/:id", h.deleteStop)

	r.POST("/stops/:id/activities", h.assignActivity)
	r.PATCH("/assignments/:id", h.updateAssignment)
	r.DELETE("/assignments/:id", h.deleteAssignment)

	r.GET("/trips/:id/budget", h.budget)
	r.GET("/trips/:id/expenses", h.listExpenses)
	r.POST("/trips/:id/expenses", h.addExpense)
	r.DELETE("/trips/:id/expenses/:expenseId", h.deleteExpense)

	r.POST("/trips/:id/publish", h.publish)
	r.DELETE("/trips/:id/publish", h.unpublish)
	r.GET("/public/:slug", h.publicTrip)
	r.POST("/public/:slug/copy", h.copyTrip)

	r.GET("/trips/:id/events", h.tripEvents)
}

func (h *Handler) searchCities(c *gin.Context) {
	filter := dbt.CityFilter{Search: c.Query("search"), Country: c.Query("country")}
	if !verifySearch(filter.Search) || !verifySearch(filter.Country) {
		h.badRequest(c, "search terms may only contain letters, digits and spaces")
		return
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.badRequest(c, "invalid limit %q", raw)
			return
		}
		filter.Limit = n
	}
	cities, err := h.planner.SearchCities(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, mapSlice(cities, toCityResponse))
}

func (h *Handler) searchActivities(c *gin.Context) {
	filter := dbt.ActivityFilter{Search: c.Query("search"), Type: c.Query("type")}
	if !verifySearch(filter.Search) || !verifySearch(filter.Type) {
		h.badRequest(c, "search terms may only contain letters, digits and spaces")
		return
	}
	if raw := c.Query("city_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			h.badRequest(c, "invalid city_id %q", raw)
			return
		}
		filter.CityID = &id
	}
	for name, dst := range map[string]**decimal.Decimal{"min_cost": &filter.MinCost, "max_cost": &filter.MaxCost} {
		if raw := c.Query(name); raw != "" {
			d, err := decimal.NewFromString(raw)
			if err != nil {
				h.badRequest(c, "invalid %s %q", name, raw)
				return
			}
			*dst = &d
		}
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.badRequest(c, "invalid limit %q", raw)
			return
		}
		filter.Limit = n
	}
	activities, err := h.planner.SearchActivities(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, mapSlice(activities, toActivityResponse))
}

func (h *Handler) listTrips(c *gin.Context) {
	trips, err := h.planner.ListTrips(c.Request.Context(), currentUser(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, mapSlice(trips, func(t dbt.Trip) tripResponse { return toTripResponse(&t) }))
}

type createTripRequest struct {
	Title         string  `json:"title" binding:"required"`
	StartDate     *string `json:"start_date"`
	EndDate       *string `json:"end_date"`
	CoverPhotoURL string  `json:"cover_photo_url"`
}

func (h *Handler) createTrip(c *gin.Context) {
	var req createTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid body: %v", err)
		return
	}
	start, err := parseOptionalTime(req.StartDate)
	if err != nil {
		h.badRequest(c, "start_date: %v", err)
		return
	}
	end, err := parseOptionalTime(req.EndDate)
	if err != nil {
		h.badRequest(c, "end_date: %v", err)
		return
	}
	trip, err := h.planner.CreateTrip(c.Request.Context(), currentUser(c), planner.NewTrip{
		Title:         req.Title,
		StartDate:     start,
		EndDate:       end,
		CoverPhotoURL: req.CoverPhotoURL,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toTripResponse(trip))
}

func (h *Handler) getTrip(c *gin.Context) {
	tripID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	detail, err := h.planner.GetTripDetail(c.Request.Context(), tripID, currentUser(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toTripDetailResponse(detail))
}

// updateTripRequest treats an empty date string as "clear".
type updateTripRequest struct {
	Title         *string `json:"title"`
	StartDate     *string `json:"start_date"`
	EndDate       *string `json:"end_date"`
	CoverPhotoURL *string `json:"cover_photo_url"`
}

func (h *Handler) updateTrip(c *gin.Context) {
	tripID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var req updateTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid body: %v", err)
		return
	}
	patch := planner.TripPatch{Title: req.Title, CoverPhotoURL: req.CoverPhotoURL}
	var err error
	if patch.StartDate, err = parseOptionalTime(req.StartDate); err != nil {
		h.badRequest(c, "start_date: %v", err)
		return
	}
	if patch.EndDate, err = parseOptionalTime(req.EndDate); err != nil {
		h.badRequest(c, "end_date: %v", err)
		return
	}
	patch.ClearStartDate = req.StartDate != nil && patch.StartDate == nil
	patch.ClearEndDate = req.EndDate != nil && patch.EndDate == nil

	trip, err := h.planner.UpdateTrip(c.Request.Context(), tripID, currentUser(c), patch)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toTripResponse(trip))
}

func (h *Handler) deleteTrip(c *gin.Context) {
	tripID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.planner.DeleteTrip(c.Request.Context(), tripID, currentUser(c)); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listStops(c *gin.Context) {
	tripID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	stops, err := h.planner.ListStops(c.Request.Context(), tripID, currentUser(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, mapSlice(stops, toStopResponse))
}

type appendStopRequest struct {
	CityID        int64   `json:"city_id" binding:"required"`
	ArrivalDate   *string `json:"arrival_date"`
	DepartureDate *string `json:"departure_date"`
	Notes         string  `json:"notes"`
}

func (h *Handler) appendStop(c *gin.Context) {
	tripID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var req appendStopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid body: %v", err)
		return
	}
	arrival, err := parseOptionalTime(req.ArrivalDate)
	if err != nil {
		h.badRequest(c, "arrival_date: %v", err)
		return
	}
	departure, err := parseOptionalTime(req.DepartureDate)
	if err != nil {
		h.badRequest(c, "departure_date: %v", err)
		return
	}
	stop, err := h.planner.AppendStop(c.Request.Context(), tripID, currentUser(c), planner.NewStop{
		CityID:        req.CityID,
		ArrivalDate:   arrival,
		DepartureDate: departure,
		Notes:         req.Notes,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toStopResponse(*stop))
}

type reorderRequest struct {
	StopIDs []uuid.UUID `json:"stop_ids"`
}

func (h *Handler) reorderStops(c *gin.Context) {
	tripID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var req reorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid body: %v", err)
		return
	}
	stops, err := h.planner.Reorder(c.Request.Context(), tripID, currentUser(c), req.StopIDs)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, mapSlice(stops, toStopResponse))
}

func (h *Handler) deleteStop(c *gin.Context) {
	stopID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.planner.DeleteStop(c.Request.Context(), stopID, currentUser(c)); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type assignActivityRequest struct {
	ActivityID  int64   `json:"activity_id" binding:"required"`
	ScheduledAt *string `json:"scheduled_at"`
	Notes       string  `json:"notes"`
}

func (h *Handler) assignActivity(c *gin.Context) {
	stopID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var req assignActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid body: %v", err)
		return
	}
	at, err := parseOptionalTime(req.ScheduledAt)
	if err != nil {
		h.badRequest(c, "scheduled_at: %v", err)
		return
	}
	a, err := h.planner.AssignActivity(c.Request.Context(), stopID, currentUser(c), planner.NewAssignment{
		ActivityID:  req.ActivityID,
		ScheduledAt: at,
		Notes:       req.Notes,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toAssignmentResponse(*a))
}

type updateAssignmentRequest struct {
	ScheduledAt *string `json:"scheduled_at"`
	Notes       *string `json:"notes"`
}

func (h *Handler) updateAssignment(c *gin.Context) {
	assignmentID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var req updateAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid body: %v", err)
		return
	}
	at, err := parseOptionalTime(req.ScheduledAt)
	if err != nil {
		h.badRequest(c, "scheduled_at: %v", err)
		return
	}
	a, err := h.planner.UpdateAssignment(c.Request.Context(), assignmentID, currentUser(c), planner.AssignmentPatch{
		ScheduledAt:   at,
		ClearSchedule: req.ScheduledAt != nil && at == nil,
		Notes:         req.Notes,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toAssignmentResponse(*a))
}

func (h *Handler) deleteAssignment(c *gin.Context) {
	assignmentID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.planner.DeleteAssignment(c.Request.Context(), assignmentID, currentUser(c)); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) budget(c *gin.Context) {
	tripID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	b, err := h.planner.ComputeBudget(c.Request.Context(), tripID, currentUser(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toBudgetResponse(b))
}

func (h *Handler) listExpenses(c *gin.Context) {
	tripID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	expenses, err := h.planner.ListExpenses(c.Request.Context(), tripID, currentUser(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, mapSlice(expenses, toExpenseResponse))
}

type addExpenseRequest struct {
	Category string          `json:"category" binding:"required"`
	Amount   decimal.Decimal `json:"amount"`
}

func (h *Handler) addExpense(c *gin.Context) {
	tripID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var req addExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid body: %v", err)
		return
	}
	if !verifyLabel(req.Category) {
		h.badRequest(c, "category must be 1 to %d letters, digits or spaces", maxTextLength)
		return
	}
	e, err := h.planner.AddExpense(c.Request.Context(), tripID, currentUser(c), req.Category, req.Amount)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toExpenseResponse(*e))
}

func (h *Handler) deleteExpense(c *gin.Context) {
	tripID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	expenseID, ok := h.uuidParam(c, "expenseId")
	if !ok {
		return
	}
	if err := h.planner.DeleteExpense(c.Request.Context(), tripID, expenseID, currentUser(c)); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) publish(c *gin.Context) {
	tripID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	trip, err := h.planner.Publish(c.Request.Context(), tripID, currentUser(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toTripResponse(trip))
}

func (h *Handler) unpublish(c *gin.Context) {
	tripID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	trip, err := h.planner.Unpublish(c.Request.Context(), tripID, currentUser(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toTripResponse(trip))
}

func (h *Handler) publicTrip(c *gin.Context) {
	detail, err := h.planner.GetPublicTrip(c.Request.Context(), c.Param("slug"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toTripDetailResponse(detail))
}

func (h *Handler) copyTrip(c *gin.Context) {
	trip, err := h.planner.CopyTrip(c.Request.Context(), c.Param("slug"), currentUser(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toTripResponse(trip))
}
