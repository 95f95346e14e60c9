package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/dkeye/Chat/internal/domain"
	"github.com/jackc/pgx/v5"
)

const channelPrefix = "room_evt_"

// Channel returns the notification channel name for a room.
func Channel(room domain.RoomID) string {
	return channelPrefix + strconv.FormatInt(int64(room), 10)
}

// Listener receives the insert notifications emitted by the messages trigger.
// It owns a dedicated connection; LISTEN state does not survive pool reuse.
type Listener struct {
	conn *pgx.Conn
}

// NewListener connects and subscribes to the channels of rooms.
func NewListener(ctx context.Context, databaseURL string, rooms ...domain.RoomID) (*Listener, error) {
	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect listener: %w", err)
	}
	l := &Listener{conn: conn}
	for _, room := range rooms {
		if err := l.Listen(ctx, room); err != nil {
			_ = conn.Close(ctx)
			return nil, err
		}
	}
	return l, nil
}

// Listen adds a room channel.
func (l *Listener) Listen(ctx context.Context, room domain.RoomID) error {
	if room <= 0 {
		return domain.InvalidInput("invalid_room", "roomId must be positive")
	}
	if _, err := l.conn.Exec(ctx, "LISTEN "+pgx.Identifier{Channel(room)}.Sanitize()); err != nil {
		return fmt.Errorf("listen %s: %w", Channel(room), err)
	}
	return nil
}

// Next blocks until a notification arrives or ctx ends.
// Content dropped from an oversized payload is read back from the row.
func (l *Listener) Next(ctx context.Context) (domain.Event, error) {
	n, err := l.conn.WaitForNotification(ctx)
	if err != nil {
		return domain.Event{}, err
	}
	note, err := DecodeNotification(n.Channel, n.Payload)
	if err != nil {
		return domain.Event{}, err
	}
	if note.Truncated {
		if err := l.conn.QueryRow(ctx,
			`SELECT content FROM messages WHERE id = $1`, int64(note.Event.Message.ID),
		).Scan(&note.Event.Message.Content); err != nil {
			return domain.Event{}, fmt.Errorf("load content of message %d: %w", note.Event.Message.ID, err)
		}
	}
	return note.Event, nil
}

// Close releases the connection.
func (l *Listener) Close(ctx context.Context) error {
	return l.conn.Close(ctx)
}

// Notification is a decoded trigger payload. Truncated means the payload
// was too large to carry content; Event.Message.Content is then empty.
type Notification struct {
	Event     domain.Event
	Truncated bool
}

type notifyPayload struct {
	domain.StreamPayload
	Truncated bool `json:"truncated"`
}

// DecodeNotification turns a trigger payload into a Notification.
// Notifications carry no createdAt or replyTo; those stay zero.
func DecodeNotification(channel, payload string) (Notification, error) {
	if !strings.HasPrefix(channel, channelPrefix) {
		return Notification{}, domain.Protocol("unknown_channel", "unexpected channel "+channel)
	}
	var p notifyPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return Notification{}, domain.Protocol("invalid_payload", err.Error())
	}
	room, err := strconv.ParseInt(strings.TrimPrefix(channel, channelPrefix), 10, 64)
	if err != nil || domain.RoomID(room) != p.RoomID {
		return Notification{}, domain.Protocol("invalid_payload", "room mismatch on "+channel)
	}
	return Notification{
		Event: domain.Event{Message: domain.Message{
			ID:       p.ID,
			RoomID:   p.RoomID,
			SenderID: p.SenderID,
			ToUserID: p.ToUserID,
			Content:  p.Content,
			Seq:      p.Seq,
		}},
		Truncated: p.Truncated,
	}, nil
}
