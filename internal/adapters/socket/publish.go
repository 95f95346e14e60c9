package socket

import (
	"context"

	"github.com/dkeye/Chat/internal/app"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *Controller) handlePublish(ctx context.Context, c *wsConn, in inbound) {
	d, err := domain.NewDraft(in.RoomID, in.SenderID, in.Content, in.ToUserID, in.ReplyToID)
	if err != nil {
		ctl.sendError(c, domain.CodeOf(err), domain.MessageOf(err))
		return
	}
	if ctl.limiter != nil && !ctl.limiter.Allow(d.SenderID) {
		ctl.sendError(c, "rate_limited", "too many messages")
		return
	}

	msg, err := ctl.pub.Publish(ctx, d, app.Origin{Transport: "socket", ConnID: c.id})
	if err != nil {
		log.Warn().Err(err).Str("module", "socket").Str("conn", c.id).Int64("room", int64(d.RoomID)).Msg("publish failed")
		ctl.sendError(c, domain.CodeOf(err), domain.MessageOf(err))
		return
	}
	ctl.sendJSON(c, messageFrame{Type: "ack", Data: msg})
}
