package controllers

import (
	"net/http"

	"ChatKit/pkg/chat"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const ConversationIDHeader = "X-Conversation-Id"

// Chat streams one turn as Server-Sent Events.
// Client will receive:
// - event: delta (multiple) with partial text
// - event: tool-call / tool-result when the model uses tools
// - event: error once if generation failed
// - event: done (once) with conversationId and finishReason
//
// Validation, authorization and storage errors are returned as plain JSON
// before the stream starts.
func Chat(p *chat.Pipeline, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req chat.TurnRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"msg": "invalid request body"})
			return
		}

		turn, err := p.StartTurn(c.Request.Context(), req)
		if err != nil {
			respondError(c, logger, err)
			return
		}

		if turn.ConversationID != "" {
			c.Header(ConversationIDHeader, turn.ConversationID)
		}
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no") // nginx buffering off

		events := turn.Start()
		// generation keeps running if the client goes away
		defer turn.Detach()

		gone := c.Request.Context().Done()
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				c.Render(-1, sse.Event{Event: string(ev.Type), Data: ev})
				c.Writer.Flush()
			case <-gone:
				logger.Debug().Str("conversation_id", turn.ConversationID).Msg("client disconnected mid-stream")
				return
			}
		}
	}
}
