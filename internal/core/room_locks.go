package core

import (
	"sync"

	"github.com/dkeye/Chat/internal/domain"
)

// RoomLocks serializes work per room while letting rooms proceed in parallel.
// Entries are reference counted and dropped when no goroutine holds or waits on them.
type RoomLocks struct {
	mu    sync.Mutex
	locks map[domain.RoomID]*roomLock
}

type roomLock struct {
	mu   sync.Mutex
	refs int
}

func NewRoomLocks() *RoomLocks {
	return &RoomLocks{locks: make(map[domain.RoomID]*roomLock)}
}

// Lock blocks until the room is free and returns its unlock func.
func (l *RoomLocks) Lock(room domain.RoomID) (unlock func()) {
	l.mu.Lock()
	rl, ok := l.locks[room]
	if !ok {
		rl = &roomLock{}
		l.locks[room] = rl
	}
	rl.refs++
	l.mu.Unlock()

	rl.mu.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			rl.mu.Unlock()
			l.mu.Lock()
			rl.refs--
			if rl.refs == 0 {
				delete(l.locks, room)
			}
			l.mu.Unlock()
		})
	}
}

// Len returns the number of rooms currently locked or waited on.
func (l *RoomLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
