package app

import (
	"context"
	"testing"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/dkeye/Chat/internal/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomAllowlistResolve(t *testing.T) {
	a := NewRoomAllowlist([]int64{5})
	assert.NoError(t, a.Resolve(context.Background(), draft(t, 5, "x")))
	assert.ErrorIs(t, a.Resolve(context.Background(), draft(t, 6, "x")), domain.ErrNotFound)
}

func TestPublishThroughRoomAllowlist(t *testing.T) {
	bus := core.NewRoomBus(4)
	store := memory.New()
	pub := NewPublisher(store, bus, WithDirectory(NewRoomAllowlist([]int64{1, 2})))

	msg, err := pub.Publish(context.Background(), draft(t, 2, "open room"), Origin{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), msg.Seq)

	_, err = pub.Publish(context.Background(), draft(t, 3, "closed room"), Origin{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, "room_not_found", domain.CodeOf(err))

	hist, err := pub.History(context.Background(), 3, 10)
	require.NoError(t, err)
	assert.Empty(t, hist)
}
