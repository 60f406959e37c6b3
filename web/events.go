package web

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"globetrotter/libs/apperr"
	"globetrotter/mq/mq"
	"globetrotter/planner"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	// browsers connect from the frontend origin; the token guards access
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// tripEvents streams committed changes of one trip to a websocket client that
// may read the trip.
func (h *Handler) tripEvents(c *gin.Context) {
	tripID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	if h.events == nil {
		h.fail(c, apperr.NotFound(c.FullPath(), "live events are disabled"))
		return
	}
	user := currentUser(c)
	trip, err := h.planner.GetTrip(c.Request.Context(), tripID, user)
	if err != nil {
		h.fail(c, err)
		return
	}
	owner := user != planner.Anonymous && trip.OwnerID == user

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// subscribe before the upgrade so no event committed after the handshake is missed
	out := make(chan mq.TripEvent, 16)
	err = mq.SubscribeProcessor[mq.TripEventQueue, mq.TripEvent, mq.TripEvent](tripID, ctx, h.events,
		func(e mq.TripEvent) (mq.TripEvent, bool, error) { return e, false, nil }, out)
	if err != nil {
		h.fail(c, apperr.Wrap(apperr.KindTransient, "subscribe trip events", err))
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WarnContext(ctx, "websocket upgrade failed", "trip_id", tripID, "error", err)
		return
	}
	defer conn.Close()

	// the client only sends control frames; a read error means it left
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for event := range out {
		// visibility can change while the stream is open; only the owner keeps it unconditionally
		if !owner && !h.stillReadable(ctx, tripID, user) {
			h.closeStream(conn, websocket.ClosePolicyViolation, "trip is no longer visible")
			cancel()
			break
		}
		// committed while the trip was private, even if it is public again now
		if !owner && !event.Public {
			continue
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(event); err != nil {
			cancel()
			break
		}
		if event.Type == mq.EventTripDeleted {
			h.closeStream(conn, websocket.CloseNormalClosure, "trip deleted")
			cancel()
			break
		}
	}
	// drain so the processor can exit
	for range out {
	}
}

func (h *Handler) stillReadable(ctx context.Context, tripID uuid.UUID, user uuid.UUID) bool {
	_, err := h.planner.GetTrip(ctx, tripID, user)
	return err == nil
}

func (h *Handler) closeStream(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
