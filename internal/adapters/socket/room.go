package socket

import (
	"encoding/json"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/dkeye/Chat/internal/metrics"
	"github.com/rs/zerolog/log"
)

func (ctl *Controller) handleJoin(c *wsConn, room domain.RoomID) {
	if room <= 0 {
		ctl.sendError(c, "invalid_room", "roomId must be positive")
		return
	}

	c.roomsMu.Lock()
	sub, ok := c.rooms[room]
	if !ok {
		sub = ctl.bus.Subscribe(room, core.SubscribeOptions{Owner: c.id, SkipOwn: true})
		c.rooms[room] = sub
	}
	c.roomsMu.Unlock()

	if !ok {
		go ctl.forward(c, sub)
		log.Info().Str("module", "socket").Str("conn", c.id).Int64("room", int64(room)).Msg("join")
	}
	ctl.sendJSON(c, roomFrame{Type: "joined", RoomID: room})
}

// handleLeave unsubscribes from the room; the connection stays open.
// Leaving a room that was never joined still acks.
func (ctl *Controller) handleLeave(c *wsConn, room domain.RoomID) {
	c.roomsMu.Lock()
	sub, ok := c.rooms[room]
	delete(c.rooms, room)
	c.roomsMu.Unlock()

	if ok {
		ctl.bus.Unsubscribe(sub)
		log.Info().Str("module", "socket").Str("conn", c.id).Int64("room", int64(room)).Msg("leave")
	}
	ctl.sendJSON(c, roomFrame{Type: "left", RoomID: room})
}

// forward copies one room's events to the connection until the subscription
// is closed by leave, disconnect or the slow-consumer policy.
func (ctl *Controller) forward(c *wsConn, sub *core.Subscription) {
	for ev := range sub.C() {
		ctl.deliver(c, ev)
	}

	c.roomsMu.Lock()
	evicted := c.rooms[sub.Room()] == sub
	if evicted {
		delete(c.rooms, sub.Room())
	}
	c.roomsMu.Unlock()

	if evicted {
		log.Warn().Str("module", "socket").Str("conn", c.id).Int64("room", int64(sub.Room())).Msg("room feed closed")
		ctl.sendError(c, "slow_consumer", "room feed closed")
	}
}

func (ctl *Controller) deliver(c *wsConn, ev domain.Event) {
	b, err := json.Marshal(messageFrame{Type: "message", Data: ev.Message})
	if err != nil {
		log.Error().Err(err).Str("module", "socket").Msg("deliver marshal")
		return
	}
	if err := c.TrySend(b); err != nil {
		metrics.DeliveriesDropped.Inc()
		log.Debug().Err(err).Str("module", "socket").Str("conn", c.id).Int64("seq", ev.Message.Seq).Msg("message dropped")
	}
}
