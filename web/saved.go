package web

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	dbt "globetrotter/db/db"
)

type cityPopularityResponse struct {
	City      cityResponse `json:"city"`
	StopCount int64        `json:"stop_count"`
}

type statsResponse struct {
	Travelers     int64                    `json:"travelers"`
	Trips         int64                    `json:"trips"`
	Cities        int64                    `json:"cities"`
	Activities    int64                    `json:"activities"`
	PopularCities []cityPopularityResponse `json:"popular_cities"`
}

func toCityPopularityResponse(p dbt.CityPopularity) cityPopularityResponse {
	return cityPopularityResponse{City: toCityResponse(p.City), StopCount: p.StopCount}
}

func (h *Handler) popularCities(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.badRequest(c, "invalid limit %q", raw)
			return
		}
		limit = n
	}
	popular, err := h.planner.PopularCities(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, mapSlice(popular, toCityPopularityResponse))
}

func (h *Handler) listSavedCities(c *gin.Context) {
	cities, err := h.planner.ListSavedCities(c.Request.Context(), currentUser(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, mapSlice(cities, toCityResponse))
}

type saveCityRequest struct {
	CityID int64 `json:"city_id" binding:"required"`
}

func (h *Handler) saveCity(c *gin.Context) {
	var req saveCityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid body: %v", err)
		return
	}
	if err := h.planner.SaveCity(c.Request.Context(), currentUser(c), req.CityID); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusCreated)
}

func (h *Handler) unsaveCity(c *gin.Context) {
	cityID, err := strconv.ParseInt(c.Param("cityId"), 10, 64)
	if err != nil {
		h.badRequest(c, "invalid city id %q", c.Param("cityId"))
		return
	}
	if err := h.planner.UnsaveCity(c.Request.Context(), currentUser(c), cityID); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) stats(c *gin.Context) {
	stats, err := h.planner.Stats(c.Request.Context(), currentUser(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, statsResponse{
		Travelers:     stats.Travelers,
		Trips:         stats.Trips,
		Cities:        stats.Cities,
		Activities:    stats.Activities,
		PopularCities: mapSlice(stats.PopularCities, toCityPopularityResponse),
	})
}
