package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"

	"chatwire/internal/auth"
	"chatwire/internal/command"
	"chatwire/internal/gate"
	"chatwire/internal/handler"
	"chatwire/internal/hub"
	"chatwire/internal/middleware"
	"chatwire/internal/registry"
	"chatwire/internal/rooms"
	"chatwire/internal/socketio"
	"chatwire/internal/store"
)

type Deps struct {
	Store       *store.Store
	TokenConfig auth.TokenConfig
	CORSOrigins []string
	Log         *slog.Logger
}

// NewHandler wires the hub and the HTTP surface and returns the root handler
// with CORS applied.
func NewHandler(deps Deps) http.Handler {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}

	reg := registry.New()
	router := rooms.NewRouter()
	g := gate.New(deps.Store)
	dispatcher := command.NewDispatcher(deps.Store, reg, router, deps.TokenConfig, log.With("component", "command"))
	eventHub := hub.New(deps.Store, reg, router, g, dispatcher, log.With("component", "hub"))
	socketServer := socketio.NewServer(eventHub, log.With("component", "socketio"))

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	r.GET("/socket.io/", gin.WrapH(socketServer))

	authLimiter := middleware.NewLimiter(10, time.Minute)
	userHandler := &handler.UserHandler{Store: deps.Store, TokenConfig: deps.TokenConfig}
	r.POST("/v1/users", middleware.RateLimit(authLimiter), userHandler.Register)
	r.POST("/v1/login", middleware.RateLimit(authLimiter), userHandler.Login)

	protected := r.Group("/v1")
	protected.Use(middleware.RequireAuth(deps.TokenConfig))
	protected.GET("/me", userHandler.Me)

	messageHandler := &handler.MessageHandler{Store: deps.Store}
	protected.GET("/messages", messageHandler.Conversation)

	friendsHandler := &handler.FriendsHandler{Store: deps.Store, Registry: reg}
	protected.GET("/friends", friendsHandler.List)
	protected.GET("/friends/requests", friendsHandler.Requests)

	corsOptions := cors.Options{
		AllowedOrigins:   deps.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}
	if len(deps.CORSOrigins) == 0 {
		corsOptions.AllowedOrigins = []string{"*"}
	}
	for _, origin := range corsOptions.AllowedOrigins {
		// Browsers reject credentialed responses with a wildcard origin.
		if origin == "*" {
			corsOptions.AllowCredentials = false
		}
	}
	return cors.New(corsOptions).Handler(r)
}
