package core

import (
	"context"

	"github.com/dkeye/Chat/internal/domain"
)

//go:generate go run go.uber.org/mock/mockgen -source=interfaces.go -destination=mocks/mock_core.go -package=mocks

// Store persists messages and assigns each one its room-scoped position.
// Append must serialize sequence assignment per room.
type Store interface {
	Append(ctx context.Context, d domain.Draft) (domain.Message, error)
	// History returns the newest limit messages of a room, oldest first.
	History(ctx context.Context, room domain.RoomID, limit int) ([]domain.Message, error)
	// Page returns one newest-first page and the total message count of the room.
	Page(ctx context.Context, room domain.RoomID, page, size int) ([]domain.Message, int, error)
}

// SubscribeOptions describe who owns a subscription.
// With SkipOwn set, events whose Origin equals Owner are not delivered.
type SubscribeOptions struct {
	Owner   string
	SkipOwn bool
}

// PublishResult reports delivery stats/backpressure to the publisher.
type PublishResult struct {
	Delivered int
	Skipped   int
	Dropped   []*Subscription
}

// Bus is the in-process room fan-out. It never blocks the publisher.
type Bus interface {
	Subscribe(room domain.RoomID, opts SubscribeOptions) *Subscription
	// Unsubscribe reports whether the subscription was still registered.
	Unsubscribe(sub *Subscription) bool
	Publish(room domain.RoomID, ev domain.Event) PublishResult
}

// Directory validates the identities referenced by a draft.
// Implementations return an error wrapping domain.ErrNotFound for unknown ids.
type Directory interface {
	Resolve(ctx context.Context, d domain.Draft) error
}
