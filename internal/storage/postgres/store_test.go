package postgres

import (
	"context"
	"os"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/dkeye/Chat/internal/storage/storagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDatabaseURL(t *testing.T) string {
	t.Helper()
	url := os.Getenv("CHAT_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("CHAT_TEST_DATABASE_URL not set")
	}
	return url
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	s, err := NewStore(ctx, testDatabaseURL(t), 0)
	require.NoError(t, err)
	_, err = s.pool.Exec(ctx, `TRUNCATE messages RESTART IDENTITY`)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestStoreConformance(t *testing.T) {
	testDatabaseURL(t)
	storagetest.Run(t, func(t *testing.T) core.Store {
		return openTestStore(t)
	})
}

func TestListenerReceivesInsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	l, err := NewListener(ctx, testDatabaseURL(t), 9)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close(context.Background()) })

	to := domain.UserID(4)
	d, err := domain.NewDraft(9, 3, "notify me", &to, nil)
	require.NoError(t, err)
	msg, err := s.Append(ctx, d)
	require.NoError(t, err)

	ev, err := l.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, msg.ID, ev.Message.ID)
	assert.Equal(t, msg.Seq, ev.Message.Seq)
	assert.Equal(t, "notify me", ev.Message.Content)
	require.NotNil(t, ev.Message.ToUserID)
	assert.Equal(t, to, *ev.Message.ToUserID)
}

func TestListenerReceivesLongMultibyteInsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	l, err := NewListener(ctx, testDatabaseURL(t), 10)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close(context.Background()) })

	content := strings.Repeat("한", domain.MaxContentRunes)
	require.Greater(t, len(content), 8000)
	d, err := domain.NewDraft(10, 3, content, nil, nil)
	require.NoError(t, err)

	msg, err := s.Append(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, int64(1), msg.Seq)

	hist, err := s.History(ctx, 10, 1)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, domain.MaxContentRunes, utf8.RuneCountInString(hist[0].Content))

	ev, err := l.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, msg.ID, ev.Message.ID)
	assert.Equal(t, content, ev.Message.Content)
}

func TestChannel(t *testing.T) {
	assert.Equal(t, "room_evt_42", Channel(42))
}

func TestDecodeNotification(t *testing.T) {
	note, err := DecodeNotification("room_evt_42",
		`{"id":7,"roomId":42,"senderId":3,"toUserId":null,"seq":5,"content":"hi"}`)
	require.NoError(t, err)
	assert.False(t, note.Truncated)
	ev := note.Event
	assert.Equal(t, domain.MessageID(7), ev.Message.ID)
	assert.Equal(t, domain.RoomID(42), ev.Message.RoomID)
	assert.Equal(t, domain.UserID(3), ev.Message.SenderID)
	assert.Nil(t, ev.Message.ToUserID)
	assert.Equal(t, int64(5), ev.Message.Seq)
	assert.Equal(t, "hi", ev.Message.Content)
	assert.Empty(t, ev.Origin)
}

func TestDecodeTruncatedNotification(t *testing.T) {
	note, err := DecodeNotification("room_evt_42",
		`{"id":8,"roomId":42,"senderId":3,"toUserId":4,"seq":6,"truncated":true}`)
	require.NoError(t, err)
	assert.True(t, note.Truncated)
	assert.Empty(t, note.Event.Message.Content)
	assert.Equal(t, domain.MessageID(8), note.Event.Message.ID)
	require.NotNil(t, note.Event.Message.ToUserID)
	assert.Equal(t, domain.UserID(4), *note.Event.Message.ToUserID)
}

func TestDecodeNotificationRejects(t *testing.T) {
	cases := []struct {
		name    string
		channel string
		payload string
	}{
		{"foreign channel", "other_42", `{"roomId":42}`},
		{"bad json", "room_evt_42", `{`},
		{"room mismatch", "room_evt_41", `{"roomId":42}`},
		{"bad room suffix", "room_evt_x", `{"roomId":42}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeNotification(tc.channel, tc.payload)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrProtocol)
		})
	}
}

func TestExtractUp(t *testing.T) {
	got := extractUp("-- +migrate Up\nSELECT 1;\n-- +migrate Down\nSELECT 2;\n")
	assert.Equal(t, "\nSELECT 1;\n", got)
}
