package core

import (
	"sort"
	"sync"

	"github.com/dkeye/Chat/internal/domain"
	"github.com/rs/zerolog/log"
)

const DefaultQueueSize = 64

// RoomBus is a threadsafe in-memory publish/subscribe hub keyed by room.
// One instance per process; it is injected into every gateway.
type RoomBus struct {
	mu        sync.RWMutex
	rooms     map[domain.RoomID]*roomFeed
	queueSize int
}

var _ Bus = (*RoomBus)(nil)

func NewRoomBus(queueSize int) *RoomBus {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &RoomBus{
		rooms:     make(map[domain.RoomID]*roomFeed),
		queueSize: queueSize,
	}
}

func (b *RoomBus) Subscribe(room domain.RoomID, opts SubscribeOptions) *Subscription {
	sub := &Subscription{
		room:    room,
		owner:   opts.Owner,
		skipOwn: opts.SkipOwn,
		queue:   make(chan domain.Event, b.queueSize),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	feed, ok := b.rooms[room]
	if !ok {
		feed = newRoomFeed(room)
		b.rooms[room] = feed
	}
	feed.add(sub)
	log.Debug().Str("module", "core.bus").Int64("room", int64(room)).Str("owner", opts.Owner).Msg("subscribed")
	return sub
}

func (b *RoomBus) Unsubscribe(sub *Subscription) bool {
	if sub == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	feed, ok := b.rooms[sub.room]
	if !ok {
		return false
	}
	removed, empty := feed.remove(sub)
	if empty {
		delete(b.rooms, sub.room)
	}
	if removed {
		log.Debug().Str("module", "core.bus").Int64("room", int64(sub.room)).Str("owner", sub.owner).Msg("unsubscribed")
	}
	return removed
}

func (b *RoomBus) Publish(room domain.RoomID, ev domain.Event) PublishResult {
	b.mu.RLock()
	defer b.mu.RUnlock()
	feed, ok := b.rooms[room]
	if !ok {
		return PublishResult{}
	}
	res := feed.broadcast(ev)
	log.Debug().
		Str("module", "core.bus").
		Int64("room", int64(room)).
		Int64("seq", ev.Message.Seq).
		Int("sent_to", res.Delivered).
		Int("dropped", len(res.Dropped)).
		Msg("broadcast result")
	return res
}

// Subscribers returns the number of live subscriptions of a room.
func (b *RoomBus) Subscribers(room domain.RoomID) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if feed, ok := b.rooms[room]; ok {
		return feed.count()
	}
	return 0
}

// Total returns the number of live subscriptions across rooms.
func (b *RoomBus) Total() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, feed := range b.rooms {
		n += feed.count()
	}
	return n
}

// Rooms lists rooms with at least one subscriber, ordered by id.
func (b *RoomBus) Rooms() []domain.RoomInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]domain.RoomInfo, 0, len(b.rooms))
	for id, feed := range b.rooms {
		out = append(out, domain.RoomInfo{ID: id, Subscribers: feed.count()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
