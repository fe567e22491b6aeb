package routes

import (
	"context"
	"net/http"
	"time"

	"ChatKit/middleware"
	"ChatKit/pkg/chat"
	"ChatKit/pkg/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	chatRoutes "ChatKit/routes/chat"
)

// Deps are the long-lived collaborators the handlers share.
type Deps struct {
	Pipeline *chat.Pipeline
	// Store is nil in stateless mode.
	Store     store.Store
	Limiter   *middleware.Limiter
	JWTSecret string
	Logger    zerolog.Logger
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"msg": "chat backend running", "mode": d.Pipeline.Mode().String()})
	})
	r.GET("/healthz", health(d.Store))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/")
	api.Use(middleware.Identity(d.JWTSecret))
	chatRoutes.Register(api, d.Pipeline, d.Limiter, d.Logger)
}

func health(s store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := s.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "database": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	}
}
