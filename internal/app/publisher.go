package app

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/dkeye/Chat/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Origin identifies where a publish request came from.
// ConnID is set by the socket gateway so the bus can suppress self-echo.
type Origin struct {
	Transport string
	ConnID    string
}

// Publisher persists a message and then fans it out.
// Durability and distribution fail independently: once Append commits,
// the message is returned even if distribution fails.
type Publisher struct {
	store  core.Store
	bus    core.Bus
	dir    core.Directory
	policy Policy
	locks  *core.RoomLocks
}

type Option func(*Publisher)

// WithDirectory sets the room/user lookup run before each append.
func WithDirectory(dir core.Directory) Option {
	return func(p *Publisher) { p.dir = dir }
}

func WithPolicy(policy Policy) Option {
	return func(p *Publisher) {
		if policy != nil {
			p.policy = policy
		}
	}
}

func NewPublisher(store core.Store, bus core.Bus, opts ...Option) *Publisher {
	p := &Publisher{
		store:  store,
		bus:    bus,
		policy: DropPolicy{},
		locks:  core.NewRoomLocks(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish stores d and distributes the result to the room's subscribers.
// Append and bus publish run under the room lock, so bus order matches seq order.
func (p *Publisher) Publish(ctx context.Context, d domain.Draft, from Origin) (domain.Message, error) {
	if p.dir != nil {
		if err := p.dir.Resolve(ctx, d); err != nil {
			metrics.PublishFailures.WithLabelValues(domain.CodeOf(err)).Inc()
			return domain.Message{}, err
		}
	}

	unlock := p.locks.Lock(d.RoomID)
	defer unlock()

	start := time.Now()
	msg, err := p.store.Append(ctx, d)
	metrics.AppendDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		if !errors.Is(err, domain.ErrPersistence) && !errors.Is(err, domain.ErrInvalidInput) {
			err = domain.Persistence("append message", err)
		}
		metrics.PublishFailures.WithLabelValues(domain.CodeOf(err)).Inc()
		log.Error().Err(err).Str("module", "app.publisher").Int64("room", int64(d.RoomID)).Msg("append failed")
		return domain.Message{}, err
	}

	metrics.MessagesPublished.WithLabelValues(from.Transport).Inc()
	log.Info().
		Str("module", "app.publisher").
		Str("transport", from.Transport).
		Int64("room", int64(msg.RoomID)).
		Int64("id", int64(msg.ID)).
		Int64("seq", msg.Seq).
		Msg("message stored")

	p.distribute(msg, from)
	return msg, nil
}

func (p *Publisher) distribute(msg domain.Message, from Origin) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("module", "app.publisher").Interface("panic", r).Int64("seq", msg.Seq).Msg("distribution failed")
		}
	}()

	res := p.bus.Publish(msg.RoomID, domain.Event{Message: msg, Origin: from.ConnID})
	metrics.Deliveries.Add(float64(res.Delivered))
	for _, slow := range res.Dropped {
		metrics.DeliveriesDropped.Inc()
		switch p.policy.OnBackpressure(slow) {
		case CloseSubscriber:
			if p.bus.Unsubscribe(slow) {
				metrics.SlowConsumersClosed.Inc()
				log.Warn().Str("module", "app.publisher").Int64("room", int64(msg.RoomID)).Str("owner", slow.Owner()).Msg("slow consumer closed")
			}
		case DropEvent:
		}
	}
}

// History returns up to limit of the newest messages of room, oldest first.
func (p *Publisher) History(ctx context.Context, room domain.RoomID, limit int) ([]domain.Message, error) {
	if room <= 0 {
		return nil, domain.InvalidInput("invalid_room", "roomId must be positive")
	}
	return p.store.History(ctx, room, domain.ClampHistoryLimit(limit))
}

// Page is a newest-first page of room. The clamped page and size are returned with it.
type Page struct {
	Items []domain.Message `json:"items"`
	Total int              `json:"total"`
	Page  int              `json:"page"`
	Size  int              `json:"size"`
}

func (p *Publisher) Page(ctx context.Context, room domain.RoomID, page, size int) (Page, error) {
	if room <= 0 {
		return Page{}, domain.InvalidInput("invalid_room", "roomId must be positive")
	}
	page, size = domain.ClampPage(page, size)
	items, total, err := p.store.Page(ctx, room, page, size)
	if err != nil {
		return Page{}, err
	}
	if items == nil {
		items = []domain.Message{}
	}
	return Page{Items: items, Total: total, Page: page, Size: size}, nil
}
