package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

const MaxContentRunes = 4000

// Message is a persisted chat message. Only a store creates one.
type Message struct {
	ID        MessageID  `json:"id"`
	RoomID    RoomID     `json:"roomId"`
	SenderID  UserID     `json:"senderId"`
	ToUserID  *UserID    `json:"toUserId"`
	Content   string     `json:"content"`
	Seq       int64      `json:"seq"`
	CreatedAt time.Time  `json:"createdAt"`
	ReplyToID *MessageID `json:"replyToId"`
}

// Draft is a validated append request.
type Draft struct {
	RoomID    RoomID
	SenderID  UserID
	Content   string
	ToUserID  *UserID
	ReplyToID *MessageID
}

// NewDraft validates the fields of a publish request.
func NewDraft(room RoomID, sender UserID, content string, to *UserID, replyTo *MessageID) (Draft, error) {
	if room <= 0 {
		return Draft{}, InvalidInput("invalid_room", "roomId must be positive")
	}
	if sender <= 0 {
		return Draft{}, InvalidInput("invalid_sender", "senderId must be positive")
	}
	if to != nil && *to <= 0 {
		return Draft{}, InvalidInput("invalid_recipient", "toUserId must be positive")
	}
	if replyTo != nil && *replyTo <= 0 {
		return Draft{}, InvalidInput("invalid_reply", "replyToId must be positive")
	}
	if strings.TrimSpace(content) == "" {
		return Draft{}, InvalidInput("empty_content", "content is required")
	}
	if utf8.RuneCountInString(content) > MaxContentRunes {
		return Draft{}, InvalidInput("content_too_long", "content must be at most 4000 characters")
	}
	return Draft{
		RoomID:    room,
		SenderID:  sender,
		Content:   content,
		ToUserID:  to,
		ReplyToID: replyTo,
	}, nil
}

// Event is the payload fanned out by the bus: a copy of a persisted message
// plus the identity of the connection that published it, if any.
type Event struct {
	Message Message
	Origin  string
}

// Recipient reports the direct recipient of the event, if any.
func (e Event) Recipient() (UserID, bool) {
	if e.Message.ToUserID == nil {
		return 0, false
	}
	return *e.Message.ToUserID, true
}

// VisibleTo reports whether a recipient-filtered listener should see the event.
// Broadcasts are visible to everyone.
func (e Event) VisibleTo(user UserID) bool {
	to, ok := e.Recipient()
	return !ok || to == user
}

// StreamPayload is the reduced message shape written to event streams.
type StreamPayload struct {
	ID       MessageID `json:"id"`
	RoomID   RoomID    `json:"roomId"`
	SenderID UserID    `json:"senderId"`
	ToUserID *UserID   `json:"toUserId"`
	Seq      int64     `json:"seq"`
	Content  string    `json:"content"`
}

func (m Message) StreamPayload() StreamPayload {
	return StreamPayload{
		ID:       m.ID,
		RoomID:   m.RoomID,
		SenderID: m.SenderID,
		ToUserID: m.ToUserID,
		Seq:      m.Seq,
		Content:  m.Content,
	}
}
