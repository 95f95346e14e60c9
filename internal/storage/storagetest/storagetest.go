// Package storagetest is a conformance suite shared by every core.Store.
package storagetest

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// Factory returns an empty store. Cleanup is registered on t.
type Factory func(t *testing.T) core.Store

func Run(t *testing.T, open Factory) {
	t.Run("sequential appends are gapless", func(t *testing.T) { testSequential(t, open(t)) })
	t.Run("concurrent appends stay unique and gapless", func(t *testing.T) { testConcurrent(t, open(t)) })
	t.Run("rooms are numbered independently", func(t *testing.T) { testRoomsIndependent(t, open(t)) })
	t.Run("append keeps optional fields", func(t *testing.T) { testOptionalFields(t, open(t)) })
	t.Run("history and page", func(t *testing.T) { testHistoryAndPage(t, open(t)) })
	t.Run("empty room", func(t *testing.T) { testEmptyRoom(t, open(t)) })
}

func draft(t *testing.T, room domain.RoomID, content string) domain.Draft {
	t.Helper()
	d, err := domain.NewDraft(room, 1, content, nil, nil)
	require.NoError(t, err)
	return d
}

func appendN(t *testing.T, s core.Store, room domain.RoomID, n int) []domain.Message {
	t.Helper()
	out := make([]domain.Message, 0, n)
	for i := 1; i <= n; i++ {
		msg, err := s.Append(context.Background(), draft(t, room, fmt.Sprintf("m%d", i)))
		require.NoError(t, err)
		out = append(out, msg)
	}
	return out
}

func seqs(msgs []domain.Message) []int64 {
	out := make([]int64, len(msgs))
	for i, m := range msgs {
		out[i] = m.Seq
	}
	return out
}

func span(from, to int64) []int64 {
	var out []int64
	if from <= to {
		for s := from; s <= to; s++ {
			out = append(out, s)
		}
		return out
	}
	for s := from; s >= to; s-- {
		out = append(out, s)
	}
	return out
}

func testSequential(t *testing.T, s core.Store) {
	msgs := appendN(t, s, 1, 12)
	assert.Equal(t, span(1, 12), seqs(msgs))

	ids := map[domain.MessageID]bool{}
	for _, m := range msgs {
		assert.False(t, ids[m.ID], "duplicate id %d", m.ID)
		ids[m.ID] = true
		assert.False(t, m.CreatedAt.IsZero())
		assert.Equal(t, domain.RoomID(1), m.RoomID)
	}
}

func testConcurrent(t *testing.T, s core.Store) {
	const writers, each = 8, 15
	var g errgroup.Group
	results := make([][]int64, writers)
	for w := 0; w < writers; w++ {
		g.Go(func() error {
			for i := 0; i < each; i++ {
				d, err := domain.NewDraft(77, domain.UserID(w+1), fmt.Sprintf("w%d-%d", w, i), nil, nil)
				if err != nil {
					return err
				}
				msg, err := s.Append(context.Background(), d)
				if err != nil {
					return err
				}
				results[w] = append(results[w], msg.Seq)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var all []int64
	for _, r := range results {
		all = append(all, r...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })
	assert.Equal(t, span(1, writers*each), all)
}

func testRoomsIndependent(t *testing.T, s core.Store) {
	appendN(t, s, 10, 3)
	msgs := appendN(t, s, 11, 2)
	assert.Equal(t, []int64{1, 2}, seqs(msgs))
	more := appendN(t, s, 10, 1)
	assert.Equal(t, int64(4), more[0].Seq)
}

func testOptionalFields(t *testing.T, s core.Store) {
	first := appendN(t, s, 5, 1)[0]
	to := domain.UserID(9)
	reply := first.ID
	d, err := domain.NewDraft(5, 3, "direct", &to, &reply)
	require.NoError(t, err)

	msg, err := s.Append(context.Background(), d)
	require.NoError(t, err)
	require.NotNil(t, msg.ToUserID)
	require.NotNil(t, msg.ReplyToID)
	assert.Equal(t, to, *msg.ToUserID)
	assert.Equal(t, reply, *msg.ReplyToID)

	hist, err := s.History(context.Background(), 5, 10)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Nil(t, hist[0].ToUserID)
	assert.Nil(t, hist[0].ReplyToID)
	require.NotNil(t, hist[1].ToUserID)
	assert.Equal(t, to, *hist[1].ToUserID)
	assert.Equal(t, domain.UserID(3), hist[1].SenderID)
	assert.Equal(t, "direct", hist[1].Content)
}

func testHistoryAndPage(t *testing.T, s core.Store) {
	ctx := context.Background()
	appendN(t, s, 42, 30)

	first, total, err := s.Page(ctx, 42, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 30, total)
	assert.Equal(t, span(30, 21), seqs(first))

	second, _, err := s.Page(ctx, 42, 2, 10)
	require.NoError(t, err)
	assert.Equal(t, span(20, 11), seqs(second))

	beyond, total, err := s.Page(ctx, 42, 4, 10)
	require.NoError(t, err)
	assert.Equal(t, 30, total)
	assert.Empty(t, beyond)

	hist, err := s.History(ctx, 42, 50)
	require.NoError(t, err)
	assert.Equal(t, span(1, 30), seqs(hist))

	tail, err := s.History(ctx, 42, 5)
	require.NoError(t, err)
	assert.Equal(t, span(26, 30), seqs(tail))
}

func testEmptyRoom(t *testing.T, s core.Store) {
	hist, err := s.History(context.Background(), 404, 10)
	require.NoError(t, err)
	assert.Empty(t, hist)

	items, total, err := s.Page(context.Background(), 404, 1, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, items)
}
