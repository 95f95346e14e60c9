// Package stream is the server-sent events gateway: one room per request,
// filtered to broadcasts and messages addressed to a single user.
package stream

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/dkeye/Chat/internal/adapters/render"
	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/dkeye/Chat/internal/metrics"
	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// BackfillLimit bounds how many stored messages a resuming client is replayed.
const BackfillLimit = domain.MaxHistoryLimit

// History is the read side used for resume backfill.
type History interface {
	History(ctx context.Context, room domain.RoomID, limit int) ([]domain.Message, error)
}

type Controller struct {
	bus       core.Bus
	history   History
	keepAlive time.Duration
}

func NewController(bus core.Bus, history History, keepAlive time.Duration) *Controller {
	if keepAlive <= 0 {
		keepAlive = 15 * time.Second
	}
	return &Controller{bus: bus, history: history, keepAlive: keepAlive}
}

// HandleStream serves GET /sse/rooms/:room_id?toUserId=U until the client
// disconnects, ctx ends or the subscription is closed.
func (ctl *Controller) HandleStream(ctx context.Context, c *gin.Context) {
	roomID, err := strconv.ParseInt(c.Param("room_id"), 10, 64)
	if err != nil || roomID <= 0 {
		render.Error(c, domain.InvalidInput("invalid_room", "room_id must be a positive integer"))
		return
	}
	toUser, err := strconv.ParseInt(c.Query("toUserId"), 10, 64)
	if err != nil || toUser <= 0 {
		render.Error(c, domain.InvalidInput("invalid_input", "toUserId must be a positive integer"))
		return
	}
	room, user := domain.RoomID(roomID), domain.UserID(toUser)
	lastID, resume := lastEventID(c)

	owner := "sse:" + uuid.NewString()
	sub := ctl.bus.Subscribe(room, core.SubscribeOptions{Owner: owner})
	defer ctl.bus.Unsubscribe(sub)

	metrics.ActiveConnections.WithLabelValues("stream").Inc()
	defer metrics.ActiveConnections.WithLabelValues("stream").Dec()

	logger := log.With().Str("module", "stream").Str("sub", owner).Int64("room", roomID).Int64("to", toUser).Logger()
	logger.Info().Bool("resume", resume).Int64("last_event_id", lastID).Msg("stream opened")
	defer logger.Info().Msg("stream closed")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.Request.Context().Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	cutoff := lastID
	if resume {
		cutoff, err = ctl.backfill(ctx, c, room, user, lastID)
		if err != nil {
			logger.Warn().Err(err).Msg("backfill failed")
			return
		}
	}

	ticker := time.NewTicker(ctl.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C():
			if !ok {
				logger.Warn().Msg("subscription closed")
				return
			}
			if ev.Message.Seq <= cutoff || !ev.VisibleTo(user) {
				continue
			}
			if err := writeEvent(c, ev.Message); err != nil {
				logger.Debug().Err(err).Msg("write failed")
				return
			}
		case <-ticker.C:
			if _, err := c.Writer.WriteString(": keepalive\n\n"); err != nil {
				logger.Debug().Err(err).Msg("keepalive failed")
				return
			}
			c.Writer.Flush()
		}
	}
}

// backfill replays stored messages newer than lastID and returns the highest
// seq the client now has. Live events at or below it are duplicates.
func (ctl *Controller) backfill(ctx context.Context, c *gin.Context, room domain.RoomID, user domain.UserID, lastID int64) (int64, error) {
	if ctl.history == nil {
		return lastID, nil
	}
	rows, err := ctl.history.History(ctx, room, BackfillLimit)
	if err != nil {
		return lastID, err
	}
	cutoff := lastID
	for _, m := range rows {
		if m.Seq <= lastID {
			continue
		}
		cutoff = m.Seq
		if !(domain.Event{Message: m}).VisibleTo(user) {
			continue
		}
		if err := writeEvent(c, m); err != nil {
			return cutoff, err
		}
	}
	return cutoff, nil
}

func writeEvent(c *gin.Context, m domain.Message) error {
	if err := sse.Encode(c.Writer, sse.Event{
		Id:    strconv.FormatInt(m.Seq, 10),
		Event: "message",
		Data:  m.StreamPayload(),
	}); err != nil {
		return err
	}
	c.Writer.Flush()
	return nil
}

// lastEventID reads the resume position from the Last-Event-ID header or the
// lastEventId query parameter.
func lastEventID(c *gin.Context) (int64, bool) {
	raw := c.GetHeader("Last-Event-ID")
	if raw == "" {
		raw = c.Query("lastEventId")
	}
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		return 0, false
	}
	return id, true
}
