// Package http exposes the quiz service over REST (gin) and WebSocket (gorilla).
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"live-quiz-service/internal/app"
)

// RouterConfig wires the handlers into a gin engine.
type RouterConfig struct {
	Service        *app.QuizService
	WS             *WSHandler
	Auth           *Authenticator
	AllowedOrigins []string
	PublicURL      string
	Logger         *slog.Logger
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Auth == nil {
		cfg.Auth = NewAuthenticator("", "")
	}
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(cfg.Logger))

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Disposition"},
		MaxAge:        12 * time.Hour,
	}))

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	if cfg.WS != nil {
		r.GET("/ws", gin.WrapF(cfg.WS.ServeWS))
	}

	sets := NewQuestionSetHandler(cfg.Service)
	sessions := NewSessionHandler(cfg.Service, cfg.PublicURL)

	api := r.Group("/api")
	{
		qs := api.Group("/question-sets")
		qs.Use(cfg.Auth.Middleware())
		qs.POST("", sets.Create)
		qs.GET("", sets.List)
		qs.GET("/:id", sets.Get)
		qs.DELETE("/:id", sets.Delete)

		api.POST("/sessions", cfg.Auth.Middleware(), sessions.Create)
		api.GET("/sessions/:pin", sessions.Get)
		api.GET("/sessions/:pin/leaderboard", sessions.Leaderboard)
		api.GET("/sessions/:pin/export", sessions.Export)
		api.GET("/sessions/:pin/qr", sessions.QR)
	}
	return r
}

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		}
		if len(c.Errors) > 0 {
			log.Error("request failed", append(attrs, "error", c.Errors.String())...)
			return
		}
		log.Debug("request", attrs...)
	}
}
