package socket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dkeye/Chat/internal/domain"
	"github.com/dkeye/Chat/internal/metrics"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *Controller) writePump(ctx context.Context, c *wsConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "socket").Str("conn", c.id).Msg("writePump ctx done")
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(ctl.opts.WriteWait))
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "socket").Str("conn", c.id).Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "socket").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "socket").Str("conn", c.id).Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctl.opts.WriteWait)); err != nil {
				log.Warn().Err(err).Str("module", "socket").Str("conn", c.id).Msg("ping failed")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, cancel context.CancelFunc, c *wsConn) {
	defer func() {
		log.Info().Str("module", "socket").Str("conn", c.id).Msg("readPump closing")
		cancel()
		ctl.cleanup(c)
		c.Close()
		metrics.ActiveConnections.WithLabelValues("socket").Dec()
	}()

	c.conn.SetReadLimit(ctl.opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "socket").Str("conn", c.id).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warn().Err(err).Str("module", "socket").Str("conn", c.id).Msg("readPump read error")
				}
				return
			}
			ctl.handleFrame(ctx, c, data)
		}
	}
}

// inbound is the union of every client frame. Type selects which fields apply.
type inbound struct {
	Type      string            `json:"type"`
	RoomID    domain.RoomID     `json:"roomId"`
	SenderID  domain.UserID     `json:"senderId"`
	Content   string            `json:"content"`
	ToUserID  *domain.UserID    `json:"toUserId"`
	ReplyToID *domain.MessageID `json:"replyToId"`
}

func (ctl *Controller) handleFrame(ctx context.Context, c *wsConn, data []byte) {
	var in inbound
	if err := json.Unmarshal(data, &in); err != nil {
		log.Debug().Err(err).Str("module", "socket").Str("conn", c.id).Msg("bad json")
		ctl.sendError(c, "invalid_input", "invalid_json")
		return
	}

	switch in.Type {
	case "join_room":
		ctl.handleJoin(c, in.RoomID)
	case "leave_room":
		ctl.handleLeave(c, in.RoomID)
	case "publish":
		ctl.handlePublish(ctx, c, in)
	default:
		log.Warn().Str("module", "socket").Str("conn", c.id).Str("type", in.Type).Msg("unknown event")
		ctl.sendError(c, "unknown_event", "unknown_event: "+in.Type)
	}
}

type errorFrame struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type roomFrame struct {
	Type   string        `json:"type"`
	RoomID domain.RoomID `json:"roomId"`
}

type messageFrame struct {
	Type string         `json:"type"`
	Data domain.Message `json:"data"`
}

func (ctl *Controller) sendError(c *wsConn, code, message string) {
	ctl.sendJSON(c, errorFrame{Type: "error", Code: code, Message: message})
}

func (ctl *Controller) sendJSON(c *wsConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "socket").Msg("sendJSON marshal")
		return
	}
	if err := c.TrySend(b); err != nil {
		log.Debug().Err(err).Str("module", "socket").Str("conn", c.id).Msg("frame dropped")
	}
}
