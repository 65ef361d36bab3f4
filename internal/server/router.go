package server

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"pairchat/internal/auth"
	"pairchat/internal/chat"
	"pairchat/internal/handler"
	"pairchat/internal/hub"
	"pairchat/internal/middleware"
	"pairchat/internal/store"
)

type Deps struct {
	Store       store.Store
	Hub         *hub.Hub
	Chat        *chat.Service
	TokenConfig auth.TokenConfig
	Log         *slog.Logger
}

func NewRouter(deps Deps) *gin.Engine {
	if deps.Log == nil {
		deps.Log = slog.Default()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})

	authHandler := &handler.AuthHandler{Store: deps.Store, TokenConfig: deps.TokenConfig}
	credentialLimiter := middleware.NewRateLimiter(10, time.Minute)

	v1 := r.Group("/api/v1")
	authGroup := v1.Group("/auth")
	authGroup.POST("/register", middleware.RateLimitMiddleware(credentialLimiter), authHandler.Register)
	authGroup.POST("/login", middleware.RateLimitMiddleware(credentialLimiter), authHandler.Login)
	authGroup.GET("/me", middleware.RequireAuth(deps.TokenConfig), authHandler.Me)

	protected := v1.Group("")
	protected.Use(middleware.RequireAuth(deps.TokenConfig))

	usersHandler := &handler.UsersHandler{Store: deps.Store, Chat: deps.Chat}
	protected.GET("/users/search", usersHandler.Search)
	protected.GET("/contacts", usersHandler.ListContacts)
	protected.POST("/contacts", usersHandler.AddContact)

	historyHandler := &handler.HistoryHandler{Chat: deps.Chat}
	protected.GET("/history/:userID", historyHandler.Get)

	wsHandler := &handler.WebSocketHandler{
		Hub:         deps.Hub,
		Chat:        deps.Chat,
		TokenConfig: deps.TokenConfig,
		Log:         deps.Log,
	}
	r.GET("/ws", wsHandler.Serve)

	return r
}
