package server

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/BioHazard786/Warpcall/backend/internal/config"
	"github.com/BioHazard786/Warpcall/backend/internal/signaling"
)

const participantKey = "participant_token"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,

	// Clients are CLIs and arbitrary browsers; no origin pinning.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ParticipantTokenMiddleware keeps a participant id in a cookie session so a
// client that omits participant_id on join keeps the same id across reconnects.
func ParticipantTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		token, _ := session.Get(participantKey).(string)
		if token == "" {
			token = uuid.NewString()
			session.Set(participantKey, token)
			if err := session.Save(); err != nil {
				log.Warn().Str("module", "server").Err(err).Msg("failed to save session")
			}
		}
		c.Set(participantKey, token)
		c.Next()
	}
}

func SetupRouter(cfg *config.Config, hub *signaling.Hub) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(sessions.Sessions("warpcall", cookie.NewStore([]byte(cfg.Secret))))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "Signaling server is healthy.")
	})

	r.GET("/ws", ParticipantTokenMiddleware(), ServeWs(hub, cfg.ReadLimit))

	api := r.Group("/api")
	api.GET("/rooms", func(c *gin.Context) {
		rooms, err := hub.Rooms(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, signaling.ErrorPayload{Error: err.Error()})
			return
		}
		c.JSON(http.StatusOK, rooms)
	})

	log.Info().Str("module", "server").Msg("router setup")
	return r
}

// ServeWs upgrades the request and hands the connection to the hub.
func ServeWs(hub *signaling.Hub, readLimit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		// The upgrader only sends headers passed to it explicitly.
		header := http.Header{}
		for _, v := range c.Writer.Header().Values("Set-Cookie") {
			header.Add("Set-Cookie", v)
		}
		conn, err := upgrader.Upgrade(c.Writer, c.Request, header)
		if err != nil {
			log.Warn().Str("module", "server").Err(err).Msg("failed to upgrade connection")
			return
		}

		client := signaling.NewClient(hub, conn)
		client.ParticipantID = c.GetString(participantKey)
		if readLimit > 0 {
			client.ReadLimit = readLimit
		}

		if !hub.Attach(client) {
			conn.Close()
			return
		}

		go client.WritePump()
		go client.ReadPump()
	}
}
