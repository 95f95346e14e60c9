package core

import (
	"github.com/dkeye/Chat/internal/domain"
)

// Subscription pairs a room with one delivery queue.
// The bus holds it without owning it; the owner must Unsubscribe.
type Subscription struct {
	room    domain.RoomID
	owner   string
	skipOwn bool
	queue   chan domain.Event
	// closed is guarded by the feed mutex of room.
	closed bool
}

// C returns the delivery queue. It is closed once the subscription is removed.
func (s *Subscription) C() <-chan domain.Event { return s.queue }

func (s *Subscription) Room() domain.RoomID { return s.room }

func (s *Subscription) Owner() string { return s.owner }

func (s *Subscription) accepts(ev domain.Event) bool {
	return !(s.skipOwn && ev.Origin != "" && ev.Origin == s.owner)
}
