package core

import (
	"sync"

	"github.com/dkeye/Chat/internal/domain"
)

// roomFeed is the subscriber set of one room.
// Publishing holds mu, so all subscribers of a room see one event order.
type roomFeed struct {
	id   domain.RoomID
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

func newRoomFeed(id domain.RoomID) *roomFeed {
	return &roomFeed{
		id:   id,
		subs: make(map[*Subscription]struct{}),
	}
}

func (f *roomFeed) add(sub *Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[sub] = struct{}{}
}

// remove closes the queue of sub and reports whether the feed is now empty.
func (f *roomFeed) remove(sub *Subscription) (removed bool, empty bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subs[sub]; ok {
		delete(f.subs, sub)
		sub.closed = true
		close(sub.queue)
		removed = true
	}
	return removed, len(f.subs) == 0
}

func (f *roomFeed) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *roomFeed) broadcast(ev domain.Event) PublishResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	res := PublishResult{}
	for sub := range f.subs {
		if sub.closed {
			continue
		}
		if !sub.accepts(ev) {
			res.Skipped++
			continue
		}
		select {
		case sub.queue <- ev:
			res.Delivered++
		default:
			res.Dropped = append(res.Dropped, sub)
		}
	}
	return res
}
