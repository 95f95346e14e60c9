// Package socket is the bidirectional WebSocket gateway: clients join rooms,
// publish into them and receive every other connection's messages.
package socket

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/Chat/internal/app"
	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/dkeye/Chat/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

// Publisher is the part of app.Publisher the gateway needs.
type Publisher interface {
	Publish(ctx context.Context, d domain.Draft, from app.Origin) (domain.Message, error)
}

type Options struct {
	ReadLimit       int64
	PingPeriod      time.Duration
	PongWait        time.Duration
	WriteWait       time.Duration
	SendBuffer      int
	PublishLimit    int
	PublishInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.ReadLimit <= 0 {
		o.ReadLimit = 32768
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = o.PongWait * 9 / 10
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 32
	}
	return o
}

type Controller struct {
	pub     Publisher
	bus     core.Bus
	opts    Options
	limiter *RateLimiter
}

func NewController(pub Publisher, bus core.Bus, opts Options) *Controller {
	opts = opts.withDefaults()
	ctl := &Controller{pub: pub, bus: bus, opts: opts}
	if opts.PublishLimit > 0 && opts.PublishInterval > 0 {
		ctl.limiter = NewRateLimiter(opts.PublishLimit, opts.PublishInterval)
	}
	return ctl
}

// wsConn is one client connection and the set of rooms it has joined.
type wsConn struct {
	id    string
	token string
	conn  *websocket.Conn
	send  chan core.Frame

	mu     sync.RWMutex
	closed bool

	roomsMu sync.Mutex
	rooms   map[domain.RoomID]*core.Subscription
}

var _ core.SignalConnection = (*wsConn)(nil)

func (c *wsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSocket upgrades the request and serves the connection until the peer
// goes away or ctx ends. It returns once the pumps are started.
func (ctl *Controller) HandleSocket(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "socket").Msg("ws upgrade")
		return
	}

	conn := &wsConn{
		id:    uuid.NewString(),
		token: c.GetString("client_token"),
		conn:  ws,
		send:  make(chan core.Frame, ctl.opts.SendBuffer),
		rooms: make(map[domain.RoomID]*core.Subscription),
	}
	log.Info().Str("module", "socket").Str("conn", conn.id).Str("token", conn.token).Msg("new WS connection")
	metrics.ActiveConnections.WithLabelValues("socket").Inc()

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, conn)
}

// cleanup unsubscribes every joined room. Safe to call more than once.
func (ctl *Controller) cleanup(c *wsConn) {
	c.roomsMu.Lock()
	subs := make([]*core.Subscription, 0, len(c.rooms))
	for room, sub := range c.rooms {
		subs = append(subs, sub)
		delete(c.rooms, room)
	}
	c.roomsMu.Unlock()

	for _, sub := range subs {
		ctl.bus.Unsubscribe(sub)
	}
}
