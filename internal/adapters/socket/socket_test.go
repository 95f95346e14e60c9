package socket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/Chat/internal/app"
	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/storage/memory"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frame struct {
	Type    string         `json:"type"`
	RoomID  int64          `json:"roomId"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
}

type harness struct {
	srv *httptest.Server
	bus *core.RoomBus
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	bus := core.NewRoomBus(core.DefaultQueueSize)
	pub := app.NewPublisher(memory.New(), bus)
	ctl := NewController(pub, bus, opts)

	ctx, cancel := context.WithCancel(context.Background())
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) { ctl.HandleSocket(ctx, c) })
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return &harness{srv: srv, bus: bus}
}

func (h *harness) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(v))
}

func read(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var f frame
	require.NoError(t, json.Unmarshal(data, &f))
	return f
}

func assertSilent(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	_, data, err := conn.ReadMessage()
	assert.Error(t, err, "unexpected frame %s", data)
}

func join(t *testing.T, conn *websocket.Conn, room int64) {
	t.Helper()
	send(t, conn, map[string]any{"type": "join_room", "roomId": room})
	f := read(t, conn)
	require.Equal(t, "joined", f.Type)
	require.Equal(t, room, f.RoomID)
}

func TestPublishAcksSenderAndBroadcastsToPeers(t *testing.T) {
	h := newHarness(t, Options{})
	a := h.dial(t)
	b := h.dial(t)
	join(t, a, 5)
	join(t, b, 5)

	send(t, a, map[string]any{"type": "publish", "roomId": 5, "senderId": 1, "content": "hello"})

	ack := read(t, a)
	require.Equal(t, "ack", ack.Type)
	assert.Equal(t, float64(1), ack.Data["seq"])
	assert.Equal(t, "hello", ack.Data["content"])

	msg := read(t, b)
	require.Equal(t, "message", msg.Type)
	assert.Equal(t, ack.Data["id"], msg.Data["id"])
	assert.Equal(t, float64(1), msg.Data["seq"])

	assertSilent(t, a)
	assertSilent(t, b)
}

func TestPublishWithoutJoinStillAcks(t *testing.T) {
	h := newHarness(t, Options{})
	a := h.dial(t)
	b := h.dial(t)
	join(t, b, 8)

	send(t, a, map[string]any{"type": "publish", "roomId": 8, "senderId": 2, "content": "drive-by"})
	assert.Equal(t, "ack", read(t, a).Type)
	assert.Equal(t, "drive-by", read(t, b).Data["content"])
}

func TestUnknownEventKeepsConnectionUsable(t *testing.T) {
	h := newHarness(t, Options{})
	conn := h.dial(t)

	send(t, conn, map[string]any{"type": "ping"})
	f := read(t, conn)
	assert.Equal(t, "error", f.Type)
	assert.Equal(t, "unknown_event", f.Code)
	assert.Equal(t, "unknown_event: ping", f.Message)

	join(t, conn, 1)
}

func TestInvalidJSONKeepsConnectionUsable(t *testing.T) {
	h := newHarness(t, Options{})
	conn := h.dial(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	f := read(t, conn)
	assert.Equal(t, "error", f.Type)
	assert.Equal(t, "invalid_input", f.Code)
	assert.Equal(t, "invalid_json", f.Message)

	join(t, conn, 1)
}

func TestPublishRejectsInvalidDraft(t *testing.T) {
	h := newHarness(t, Options{})
	conn := h.dial(t)

	send(t, conn, map[string]any{"type": "publish", "roomId": 1, "senderId": 1, "content": "   "})
	f := read(t, conn)
	assert.Equal(t, "error", f.Type)
	assert.Equal(t, "empty_content", f.Code)
}

func TestJoinTwiceKeepsOneSubscription(t *testing.T) {
	h := newHarness(t, Options{})
	conn := h.dial(t)

	join(t, conn, 4)
	join(t, conn, 4)
	assert.Equal(t, 1, h.bus.Subscribers(4))
}

func TestJoinRejectsInvalidRoom(t *testing.T) {
	h := newHarness(t, Options{})
	conn := h.dial(t)

	send(t, conn, map[string]any{"type": "join_room", "roomId": 0})
	f := read(t, conn)
	assert.Equal(t, "error", f.Type)
	assert.Equal(t, "invalid_room", f.Code)
	assert.Zero(t, h.bus.Total())
}

func TestDoubleLeaveIsNoop(t *testing.T) {
	h := newHarness(t, Options{})
	a := h.dial(t)
	b := h.dial(t)
	join(t, a, 3)

	for i := 0; i < 2; i++ {
		send(t, a, map[string]any{"type": "leave_room", "roomId": 3})
		f := read(t, a)
		assert.Equal(t, "left", f.Type)
		assert.Equal(t, int64(3), f.RoomID)
	}
	assert.Zero(t, h.bus.Subscribers(3))

	send(t, b, map[string]any{"type": "publish", "roomId": 3, "senderId": 9, "content": "anyone?"})
	assert.Equal(t, "ack", read(t, b).Type)
	assertSilent(t, a)
}

func TestDisconnectUnsubscribesEveryRoom(t *testing.T) {
	h := newHarness(t, Options{})
	conn := h.dial(t)
	join(t, conn, 1)
	join(t, conn, 2)
	require.Equal(t, 2, h.bus.Total())

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return h.bus.Total() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestPublishRateLimited(t *testing.T) {
	h := newHarness(t, Options{PublishLimit: 1, PublishInterval: time.Minute})
	conn := h.dial(t)

	send(t, conn, map[string]any{"type": "publish", "roomId": 1, "senderId": 1, "content": "first"})
	assert.Equal(t, "ack", read(t, conn).Type)

	send(t, conn, map[string]any{"type": "publish", "roomId": 1, "senderId": 1, "content": "second"})
	f := read(t, conn)
	assert.Equal(t, "error", f.Type)
	assert.Equal(t, "rate_limited", f.Code)
}
