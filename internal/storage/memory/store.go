// Package memory provides an in-process message store.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
)

// Store keeps messages in memory. Each room has its own log and lock,
// so sequence assignment is serialized per room only.
type Store struct {
	mu     sync.RWMutex
	nextID int64
	rooms  map[domain.RoomID]*roomLog
	now    func() time.Time
}

type roomLog struct {
	mu       sync.RWMutex
	messages []domain.Message
}

var _ core.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		rooms: make(map[domain.RoomID]*roomLog),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) room(id domain.RoomID, create bool) *roomLog {
	s.mu.RLock()
	rl, ok := s.rooms[id]
	s.mu.RUnlock()
	if ok || !create {
		return rl
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if rl, ok = s.rooms[id]; ok {
		return rl
	}
	rl = &roomLog{}
	s.rooms[id] = rl
	return rl
}

func (s *Store) allocID() domain.MessageID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return domain.MessageID(s.nextID)
}

func (s *Store) Append(ctx context.Context, d domain.Draft) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, err
	}
	rl := s.room(d.RoomID, true)
	rl.mu.Lock()
	defer rl.mu.Unlock()

	var seq int64 = 1
	if n := len(rl.messages); n > 0 {
		seq = rl.messages[n-1].Seq + 1
	}
	msg := domain.Message{
		ID:        s.allocID(),
		RoomID:    d.RoomID,
		SenderID:  d.SenderID,
		ToUserID:  d.ToUserID,
		Content:   d.Content,
		Seq:       seq,
		CreatedAt: s.now(),
		ReplyToID: d.ReplyToID,
	}
	rl.messages = append(rl.messages, msg)
	return msg, nil
}

func (s *Store) History(ctx context.Context, room domain.RoomID, limit int) ([]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit = domain.ClampHistoryLimit(limit)
	rl := s.room(room, false)
	if rl == nil {
		return []domain.Message{}, nil
	}
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	start := len(rl.messages) - limit
	if start < 0 {
		start = 0
	}
	out := make([]domain.Message, len(rl.messages)-start)
	copy(out, rl.messages[start:])
	return out, nil
}

func (s *Store) Page(ctx context.Context, room domain.RoomID, page, size int) ([]domain.Message, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	page, size = domain.ClampPage(page, size)
	rl := s.room(room, false)
	if rl == nil {
		return []domain.Message{}, 0, nil
	}
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	total := len(rl.messages)
	out := make([]domain.Message, 0, size)
	// newest first: walk backwards from total-1-offset
	for i := total - 1 - domain.Offset(page, size); i >= 0 && len(out) < size; i-- {
		out = append(out, rl.messages[i])
	}
	return out, total, nil
}
