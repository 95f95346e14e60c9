package http

import (
	"context"
	"net/http"

	"github.com/dkeye/Chat/internal/adapters/socket"
	"github.com/dkeye/Chat/internal/adapters/stream"
	"github.com/dkeye/Chat/internal/config"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const clientTokenKey = "ct"

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware keeps a per-browser token in the session so log
// lines from the same client can be correlated across connections.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		token, _ := session.Get(clientTokenKey).(string)
		if token == "" {
			token = genClientToken()
			session.Set(clientTokenKey, token)
			if err := session.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("session save")
			}
		}
		c.Set("client_token", token)
		c.Next()
	}
}

// RoomStats reports live subscriber counts.
type RoomStats interface {
	Rooms() []domain.RoomInfo
	Total() int
}

type Deps struct {
	Messages MessageService
	Stats    RoomStats
	Socket   *socket.Controller
	Stream   *stream.Controller
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(MetricsMiddleware())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions("ChatSessions", store))
	r.Use(ClientTokenMiddleware())

	r.GET("/up", func(c *gin.Context) { c.String(http.StatusOK, "OK") })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h := &messageHandlers{svc: deps.Messages}
	r.POST("/messages", h.create)
	r.GET("/messages", h.history)
	r.GET("/rooms/:room_id/messages", h.page)

	if deps.Stats != nil {
		r.GET("/rooms/stats", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"rooms": deps.Stats.Rooms(), "subscribers": deps.Stats.Total()})
		})
	}

	if deps.Socket != nil {
		r.GET("/ws", func(c *gin.Context) {
			log.Debug().Str("module", "adapters.http").Str("token", c.GetString("client_token")).Msg("ws endpoint hit")
			deps.Socket.HandleSocket(ctx, c)
		})
	}
	if deps.Stream != nil {
		r.GET("/sse/rooms/:room_id", func(c *gin.Context) {
			deps.Stream.HandleStream(ctx, c)
		})
	}

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")
	return r
}
