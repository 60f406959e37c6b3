package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"globetrotter/config"
	"globetrotter/db/mem"
	"globetrotter/mq/goch"
	"globetrotter/mq/mq"
	"globetrotter/planner"
	"globetrotter/web"
)

const secret = "test-secret"

var admin = uuid.MustParse("0b6f3c2e-8d4a-4f7e-9a51-3c2d1e0f9b87")

type testServer struct {
	t      *testing.T
	router *gin.Engine
	queue  *goch.ChannelTripEventQueue
}

func setupTest(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := mem.NewInMemoryItineraryDBWrapper()
	require.NoError(t, db.SeedDemoCatalog())
	queue := goch.NewChannelTripEventQueue(16)
	t.Cleanup(func() { _ = queue.Close() })

	reg := prometheus.NewRegistry()
	plannerCfg := config.DefaultPlanner()
	plannerCfg.AdminUserIDs = []string{admin.String()}
	p, err := planner.New(db, planner.WithEvents(queue), planner.WithMetrics(planner.NewMetrics(reg)), planner.WithConfig(plannerCfg))
	require.NoError(t, err)
	cfg := config.ServerConfig{JWTSecret: secret}
	return &testServer{t: t, router: web.NewRouter(p, queue, reg, cfg, nil), queue: queue}
}

func token(t *testing.T, user uuid.UUID) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": user.String(),
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

// do sends body as JSON on behalf of user (uuid.Nil for anonymous) and
// decodes the response into out when given.
func (s *testServer) do(method, path string, user uuid.UUID, body any, out any) int {
	s.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if user != uuid.Nil {
		req.Header.Set("Authorization", "Bearer "+token(s.t, user))
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if out != nil && w.Body.Len() > 0 {
		require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
	}
	return w.Code
}

// readEvent reads frames until one of type want arrives and returns it with
// the types read before it. Setup events may still be in flight when the
// socket subscribes, so callers decide which of those matter.
func readEvent(t *testing.T, conn *websocket.Conn, want mq.EventType) (mq.TripEvent, []mq.EventType) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var skipped []mq.EventType
	for {
		var event mq.TripEvent
		require.NoError(t, conn.ReadJSON(&event))
		if event.Type == want {
			return event, skipped
		}
		skipped = append(skipped, event.Type)
	}
}

type trip struct {
	ID         uuid.UUID `json:"id"`
	Title      string    `json:"title"`
	StartDate  string    `json:"start_date"`
	IsPublic   bool      `json:"is_public"`
	PublicSlug string    `json:"public_slug"`
	Stops      []stop    `json:"stops"`
}

type stop struct {
	ID         uuid.UUID `json:"id"`
	CityID     int64     `json:"city_id"`
	OrderIndex int       `json:"order_index"`
	City       *struct {
		Name string `json:"name"`
	} `json:"city"`
	Activities []struct {
		ActivityID int64 `json:"activity_id"`
	} `json:"activities"`
}

type budget struct {
	Total     string `json:"total"`
	Breakdown []struct {
		Category string `json:"category"`
		Cost     string `json:"cost"`
	} `json:"breakdown"`
}

type apiError struct {
	Error string `json:"error"`
}

func TestTripLifecycle(t *testing.T) {
	s := setupTest(t)
	alice, bob := uuid.New(), uuid.New()

	var created trip
	code := s.do(http.MethodPost, "/api/trips", alice, map[string]any{"title": "Italy", "start_date": "2025-06-01"}, &created)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "2025-06-01", created.StartDate)

	base := "/api/trips/" + created.ID.String()
	var stops []stop
	for _, city := range []int64{1, 2, 4} {
		var st stop
		require.Equal(t, http.StatusCreated, s.do(http.MethodPost, base+"/stops", alice, map[string]any{"city_id": city}, &st))
		stops = append(stops, st)
	}
	assert.Equal(t, 3, stops[2].OrderIndex)

	// reorder
	order := []uuid.UUID{stops[2].ID, stops[0].ID, stops[1].ID}
	var reordered []stop
	require.Equal(t, http.StatusOK, s.do(http.MethodPut, base+"/stops/order", alice, map[string]any{"stop_ids": order}, &reordered))
	assert.Equal(t, int64(4), reordered[0].CityID)

	var e apiError
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPut, base+"/stops/order", alice, map[string]any{"stop_ids": order[:2]}, &e))
	assert.Contains(t, e.Error, "validation")

	// activities and expenses
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/stops/"+stops[0].ID.String()+"/activities", alice,
		map[string]any{"activity_id": 1, "scheduled_at": "2025-06-02T10:00:00Z"}, nil))
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, base+"/expenses", alice, map[string]any{"category": "food", "amount": "12.50"}, nil))
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, base+"/expenses", alice, map[string]any{"category": "<script>", "amount": 1}, nil))

	var b budget
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, base+"/budget", alice, nil, &b))
	assert.Equal(t, "34.5", b.Total)
	require.Len(t, b.Breakdown, 2)
	assert.Equal(t, "activities", b.Breakdown[1].Category)

	// detail
	var detail trip
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, base, alice, nil, &detail))
	require.Len(t, detail.Stops, 3)
	assert.Equal(t, "Lisbon", detail.Stops[0].City.Name)
	assert.Len(t, detail.Stops[1].Activities, 1)

	// strangers and anonymous callers
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, base, bob, nil, nil))
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, base, uuid.Nil, nil, nil))
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodDelete, "/api/stops/"+stops[0].ID.String(), bob, nil, nil))
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/trips/"+uuid.NewString(), alice, nil, nil))
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/trips/not-a-uuid", alice, nil, nil))

	// publish and copy
	var published trip
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, base+"/publish", alice, nil, &published))
	require.True(t, published.IsPublic)
	require.Len(t, published.PublicSlug, 32)

	var public trip
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/public/"+published.PublicSlug, uuid.Nil, nil, &public))
	assert.Len(t, public.Stops, 3)

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPost, "/api/public/"+published.PublicSlug+"/copy", uuid.Nil, nil, nil))
	var copied trip
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/public/"+published.PublicSlug+"/copy", bob, nil, &copied))
	assert.Equal(t, "Copy of Italy", copied.Title)
	assert.False(t, copied.IsPublic)

	var bobs []trip
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/trips", bob, nil, &bobs))
	require.Len(t, bobs, 1)
	assert.Equal(t, copied.ID, bobs[0].ID)

	// unpublish hides the slug
	require.Equal(t, http.StatusOK, s.do(http.MethodDelete, base+"/publish", alice, nil, nil))
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/public/"+published.PublicSlug, uuid.Nil, nil, nil))

	// delete
	assert.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, base, alice, nil, nil))
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, base, alice, nil, nil))
}

func TestUpdateTripClearsDates(t *testing.T) {
	s := setupTest(t)
	alice := uuid.New()
	var created trip
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/trips", alice, map[string]any{"title": "Dates", "start_date": "2025-01-01"}, &created))

	var updated trip
	require.Equal(t, http.StatusOK, s.do(http.MethodPatch, "/api/trips/"+created.ID.String(), alice, map[string]any{"start_date": ""}, &updated))
	assert.Empty(t, updated.StartDate)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPatch, "/api/trips/"+created.ID.String(), alice, map[string]any{"start_date": "tomorrow"}, nil))
}

func TestAuth(t *testing.T) {
	s := setupTest(t)

	req := httptest.NewRequest(http.MethodGet, "/api/trips", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// a token signed with another key
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": uuid.NewString()}).SignedString([]byte("other"))
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/api/trips", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// no token at all is anonymous, which may not list trips
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/api/trips", uuid.Nil, nil, nil))
}

func TestCatalogAndHealth(t *testing.T) {
	s := setupTest(t)

	var cities []struct {
		Name string `json:"name"`
	}
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/cities?search=ky", uuid.Nil, nil, &cities))
	require.Len(t, cities, 1)
	assert.Equal(t, "Kyoto", cities[0].Name)

	var activities []struct {
		Name string  `json:"name"`
		Cost *string `json:"cost"`
	}
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/activities?city_id=1&type=sightseeing", uuid.Nil, nil, &activities))
	require.Len(t, activities, 2)
	assert.Equal(t, "Louvre Museum", activities[0].Name)
	assert.Nil(t, activities[1].Cost)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/activities?min_cost=cheap", uuid.Nil, nil, nil))
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/health", uuid.Nil, nil, nil))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "planner_operations_total")
}

func TestTripEventsWebsocket(t *testing.T) {
	s := setupTest(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()
	alice := uuid.New()

	var created trip
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/trips", alice, map[string]any{"title": "Live"}, &created))

	url := fmt.Sprintf("ws%s/api/trips/%s/events?access_token=%s", strings.TrimPrefix(srv.URL, "http"), created.ID, token(t, alice))
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/trips/"+created.ID.String()+"/stops", alice, map[string]any{"city_id": 3}, nil))
	event, skipped := readEvent(t, conn, mq.EventStopAppended)
	assert.Equal(t, created.ID, event.TripID)
	assert.Subset(t, []mq.EventType{mq.EventTripCreated}, skipped)

	// strangers cannot subscribe
	url = fmt.Sprintf("ws%s/api/trips/%s/events?access_token=%s", strings.TrimPrefix(srv.URL, "http"), created.ID, token(t, uuid.New()))
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestTripEventsStopWhenTripTurnsPrivate(t *testing.T) {
	s := setupTest(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()
	alice := uuid.New()

	var created trip
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/trips", alice, map[string]any{"title": "Open for now"}, &created))
	tripPath := "/api/trips/" + created.ID.String()
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, tripPath+"/publish", alice, nil, nil))

	url := fmt.Sprintf("ws%s%s/events", strings.TrimPrefix(srv.URL, "http"), tripPath)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Test 1: anonymous readers follow a public trip
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, tripPath+"/stops", alice, map[string]any{"city_id": 1}, nil))
	_, skipped := readEvent(t, conn, mq.EventStopAppended)
	assert.Subset(t, []mq.EventType{mq.EventTripCreated, mq.EventTripPublished}, skipped)

	// Test 2: once private, the stream closes before anything else is sent
	require.Equal(t, http.StatusOK, s.do(http.MethodDelete, tripPath+"/publish", alice, nil, nil))
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, tripPath, uuid.Nil, nil, nil))
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, tripPath+"/stops", alice, map[string]any{"city_id": 2}, nil))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event mq.TripEvent
	err = conn.ReadJSON(&event)
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
}

func TestTripEventsHidePrivateWindow(t *testing.T) {
	s := setupTest(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()
	alice := uuid.New()

	var created trip
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/trips", alice, map[string]any{"title": "On and off"}, &created))
	tripPath := "/api/trips/" + created.ID.String()
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, tripPath+"/publish", alice, nil, nil))

	url := fmt.Sprintf("ws%s%s/events", strings.TrimPrefix(srv.URL, "http"), tripPath)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// a change committed while the trip was private reaches the socket only
	// after the trip is public again
	hidden := mq.TripEvent{TripID: created.ID, Type: mq.EventStopDeleted, ActorID: alice, StopID: uuid.New(), At: time.Now()}
	require.NoError(t, s.queue.Publish(context.Background(), hidden))
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, tripPath+"/stops", alice, map[string]any{"city_id": 1}, nil))

	event, skipped := readEvent(t, conn, mq.EventStopAppended)
	assert.True(t, event.Public)
	assert.NotContains(t, skipped, mq.EventStopDeleted)

	// the owner still sees everything
	ownerURL := fmt.Sprintf("%s?access_token=%s", url, token(t, alice))
	ownerConn, _, err := websocket.DefaultDialer.Dial(ownerURL, nil)
	require.NoError(t, err)
	defer ownerConn.Close()
	require.NoError(t, s.queue.Publish(context.Background(), hidden))
	event, _ = readEvent(t, ownerConn, mq.EventStopDeleted)
	assert.False(t, event.Public)
}

func TestSavedCitiesAndStats(t *testing.T) {
	s := setupTest(t)
	alice := uuid.New()

	type city struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}

	// Test 1: bookmarks need a session
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPost, "/api/saved-cities", uuid.Nil, map[string]any{"city_id": 1}, nil))
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/api/saved-cities", alice, map[string]any{}, nil))
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/api/saved-cities", alice, map[string]any{"city_id": 999}, nil))

	// Test 2: save, save again, list, unsave
	assert.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/saved-cities", alice, map[string]any{"city_id": 4}, nil))
	assert.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/saved-cities", alice, map[string]any{"city_id": 4}, nil))
	assert.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/saved-cities", alice, map[string]any{"city_id": 2}, nil))
	var saved []city
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/saved-cities", alice, nil, &saved))
	require.Len(t, saved, 2)
	assert.Equal(t, "Lisbon", saved[0].Name)
	assert.Equal(t, "Rome", saved[1].Name)

	assert.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, "/api/saved-cities/4", alice, nil, nil))
	assert.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, "/api/saved-cities/4", alice, nil, nil))
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodDelete, "/api/saved-cities/lisbon", alice, nil, nil))
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/saved-cities", alice, nil, &saved))
	require.Len(t, saved, 1)

	// Test 3: popular cities and admin stats
	var created trip
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/trips", alice, map[string]any{"title": "Stats"}, &created))
	for _, cityID := range []int{3, 3, 1} {
		require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/trips/"+created.ID.String()+"/stops", alice, map[string]any{"city_id": cityID}, nil))
	}
	var popular []struct {
		City      city  `json:"city"`
		StopCount int64 `json:"stop_count"`
	}
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/cities/popular", uuid.Nil, nil, &popular))
	require.Len(t, popular, 2)
	assert.Equal(t, "Kyoto", popular[0].City.Name)
	assert.EqualValues(t, 2, popular[0].StopCount)

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/api/admin/stats", alice, nil, nil))
	var stats struct {
		Travelers     int64 `json:"travelers"`
		Trips         int64 `json:"trips"`
		Cities        int64 `json:"cities"`
		Activities    int64 `json:"activities"`
		PopularCities []struct {
			City city `json:"city"`
		} `json:"popular_cities"`
	}
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/admin/stats", admin, nil, &stats))
	assert.EqualValues(t, 1, stats.Travelers)
	assert.EqualValues(t, 1, stats.Trips)
	assert.EqualValues(t, 4, stats.Cities)
	assert.EqualValues(t, 8, stats.Activities)
	require.Len(t, stats.PopularCities, 2)
}
