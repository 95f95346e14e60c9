package core

import (
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Chat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func event(room domain.RoomID, seq int64, origin string) domain.Event {
	return domain.Event{
		Message: domain.Message{ID: domain.MessageID(seq), RoomID: room, Seq: seq, Content: "m"},
		Origin:  origin,
	}
}

func receive(t *testing.T, sub *Subscription) domain.Event {
	t.Helper()
	select {
	case ev, ok := <-sub.C():
		require.True(t, ok, "queue closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
	return domain.Event{}
}

func assertEmpty(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case ev := <-sub.C():
		t.Fatalf("unexpected event seq=%d", ev.Message.Seq)
	default:
	}
}

func TestRoomBusDeliversToCurrentSubscribersOnly(t *testing.T) {
	bus := NewRoomBus(8)

	early := bus.Subscribe(42, SubscribeOptions{})
	res := bus.Publish(42, event(42, 1, ""))
	late := bus.Subscribe(42, SubscribeOptions{})

	assert.Equal(t, 1, res.Delivered)
	assert.Equal(t, int64(1), receive(t, early).Message.Seq)
	assertEmpty(t, early)
	assertEmpty(t, late)
}

func TestRoomBusIsolatesRooms(t *testing.T) {
	bus := NewRoomBus(8)
	a := bus.Subscribe(1, SubscribeOptions{})
	b := bus.Subscribe(2, SubscribeOptions{})

	bus.Publish(1, event(1, 1, ""))

	receive(t, a)
	assertEmpty(t, b)
}

func TestRoomBusPreservesPublishOrder(t *testing.T) {
	bus := NewRoomBus(128)
	subs := []*Subscription{
		bus.Subscribe(7, SubscribeOptions{}),
		bus.Subscribe(7, SubscribeOptions{}),
	}
	for seq := int64(1); seq <= 100; seq++ {
		bus.Publish(7, event(7, seq, ""))
	}
	for _, sub := range subs {
		for seq := int64(1); seq <= 100; seq++ {
			assert.Equal(t, seq, receive(t, sub).Message.Seq)
		}
	}
}

func TestRoomBusDropsWhenQueueFull(t *testing.T) {
	bus := NewRoomBus(1)
	slow := bus.Subscribe(3, SubscribeOptions{})
	fast := bus.Subscribe(3, SubscribeOptions{})

	bus.Publish(3, event(3, 1, ""))
	receive(t, fast)
	res := bus.Publish(3, event(3, 2, ""))

	require.Len(t, res.Dropped, 1)
	assert.Same(t, slow, res.Dropped[0])
	assert.Equal(t, 1, res.Delivered)
	assert.Equal(t, int64(1), receive(t, slow).Message.Seq)
	assert.Equal(t, int64(2), receive(t, fast).Message.Seq)
}

func TestRoomBusSkipsOwnEvents(t *testing.T) {
	bus := NewRoomBus(8)
	own := bus.Subscribe(5, SubscribeOptions{Owner: "conn-a", SkipOwn: true})
	peer := bus.Subscribe(5, SubscribeOptions{Owner: "conn-b", SkipOwn: true})
	listener := bus.Subscribe(5, SubscribeOptions{Owner: "conn-a"})

	res := bus.Publish(5, event(5, 1, "conn-a"))

	assert.Equal(t, 2, res.Delivered)
	assert.Equal(t, 1, res.Skipped)
	assertEmpty(t, own)
	receive(t, peer)
	receive(t, listener)
}

func TestRoomBusUnsubscribeIsIdempotent(t *testing.T) {
	bus := NewRoomBus(8)
	sub := bus.Subscribe(9, SubscribeOptions{})
	other := bus.Subscribe(9, SubscribeOptions{})
	require.Equal(t, 2, bus.Subscribers(9))

	assert.True(t, bus.Unsubscribe(sub))
	assert.False(t, bus.Unsubscribe(sub))
	assert.Equal(t, 1, bus.Subscribers(9))

	_, ok := <-sub.C()
	assert.False(t, ok, "queue must be closed after unsubscribe")

	assert.True(t, bus.Unsubscribe(other))
	assert.Equal(t, 0, bus.Subscribers(9))
	assert.Empty(t, bus.Rooms())
	assert.False(t, bus.Unsubscribe(nil))

	res := bus.Publish(9, event(9, 1, ""))
	assert.Zero(t, res.Delivered)
}

func TestRoomBusConcurrentSubscribeAndPublish(t *testing.T) {
	bus := NewRoomBus(4)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				sub := bus.Subscribe(1, SubscribeOptions{})
				bus.Unsubscribe(sub)
			}
		}()
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				bus.Publish(1, event(1, int64(i*50+j), ""))
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, bus.Total())
}

func TestRoomBusRooms(t *testing.T) {
	bus := NewRoomBus(0)
	bus.Subscribe(2, SubscribeOptions{})
	bus.Subscribe(1, SubscribeOptions{})
	bus.Subscribe(2, SubscribeOptions{})

	assert.Equal(t, []domain.RoomInfo{{ID: 1, Subscribers: 1}, {ID: 2, Subscribers: 2}}, bus.Rooms())
	assert.Equal(t, 3, bus.Total())
}
