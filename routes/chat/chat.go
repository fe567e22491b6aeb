package chat

import (
	"ChatKit/controllers"
	"ChatKit/middleware"
	"ChatKit/pkg/chat"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Register registers the chat and conversation routes.
func Register(g *gin.RouterGroup, p *chat.Pipeline, limiter *middleware.Limiter, logger zerolog.Logger) {
	// rate limit and cap concurrent streams on the turn endpoints
	g.POST("/chat", limiter.RateLimit("chat"), limiter.StreamSlots("chat"), controllers.Chat(p, logger))
	g.GET("/chat/ws", limiter.RateLimit("chat_ws"), limiter.StreamSlots("chat_ws"), controllers.ChatWS(p, logger))

	g.POST("/chat/conversations", controllers.CreateConversation(p, logger))
	g.GET("/chat/conversations", controllers.ListConversations(p, logger))
	g.GET("/chat/conversations/:id", controllers.GetConversation(p, logger))
	g.PUT("/chat/conversations/:id", controllers.UpdateConversation(p, logger))
	g.DELETE("/chat/conversations/:id", controllers.DeleteConversation(p, logger))
}
