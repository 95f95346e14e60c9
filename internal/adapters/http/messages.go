package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/dkeye/Chat/internal/adapters/render"
	"github.com/dkeye/Chat/internal/app"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/gin-gonic/gin"
)

// MessageService is implemented by app.Publisher.
type MessageService interface {
	Publish(ctx context.Context, d domain.Draft, from app.Origin) (domain.Message, error)
	History(ctx context.Context, room domain.RoomID, limit int) ([]domain.Message, error)
	Page(ctx context.Context, room domain.RoomID, page, size int) (app.Page, error)
}

type messageHandlers struct {
	svc MessageService
}

type createMessageRequest struct {
	RoomID    domain.RoomID     `json:"roomId"`
	SenderID  domain.UserID     `json:"senderId"`
	Content   string            `json:"content"`
	ToUserID  *domain.UserID    `json:"toUserId"`
	ReplyToID *domain.MessageID `json:"replyToId"`
}

func (h *messageHandlers) create(c *gin.Context) {
	var req createMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		render.Error(c, domain.InvalidInput("invalid_input", "invalid_json"))
		return
	}
	d, err := domain.NewDraft(req.RoomID, req.SenderID, req.Content, req.ToUserID, req.ReplyToID)
	if err != nil {
		render.Error(c, err)
		return
	}
	msg, err := h.svc.Publish(c.Request.Context(), d, app.Origin{Transport: "http"})
	if err != nil {
		render.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (h *messageHandlers) history(c *gin.Context) {
	room, err := strconv.ParseInt(c.Query("roomId"), 10, 64)
	if err != nil {
		render.Error(c, domain.InvalidInput("invalid_room", "roomId must be an integer"))
		return
	}
	limit, ok := optionalInt(c, "limit", domain.DefaultHistoryLimit)
	if !ok {
		return
	}
	items, err := h.svc.History(c.Request.Context(), domain.RoomID(room), limit)
	if err != nil {
		render.Error(c, err)
		return
	}
	if items == nil {
		items = []domain.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *messageHandlers) page(c *gin.Context) {
	room, err := strconv.ParseInt(c.Param("room_id"), 10, 64)
	if err != nil {
		render.Error(c, domain.InvalidInput("invalid_room", "room_id must be an integer"))
		return
	}
	page, ok := optionalInt(c, "page", 1)
	if !ok {
		return
	}
	size, ok := optionalInt(c, "size", domain.DefaultPageSize)
	if !ok {
		return
	}
	res, err := h.svc.Page(c.Request.Context(), domain.RoomID(room), page, size)
	if err != nil {
		render.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// optionalInt parses a query parameter, def when absent. An explicit value
// is returned as given and clamped later. On a malformed value it writes the
// error response and reports false.
func optionalInt(c *gin.Context, name string, def int) (int, bool) {
	raw, present := c.GetQuery(name)
	if !present || raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		render.Error(c, domain.InvalidInput("invalid_input", name+" must be an integer"))
		return 0, false
	}
	return v, true
}
