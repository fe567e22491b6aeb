package controllers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"ChatKit/pkg/chat"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS handled at HTTP level; allow WS here
		return true
	},
}

const (
	wsReadLimit  = 1 << 20
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 50 * time.Second
	wsWriteWait  = 10 * time.Second
)

type wsFrame struct {
	Type string `json:"type"`
	chat.TurnRequest
}

// ChatWS runs one turn over a WebSocket.
// Client protocol (JSON frames):
//
//	-> {type: "start", messages: [...], conversationId?, pageContext?, availableTools?}
//	<- {type: "delta"|"tool-call"|"tool-result"|"error"|"done", ...}
//	-> {type: "stop"}   stop relaying; the reply is still generated and stored
//
// Pre-stream failures are sent as {type: "error", status, msg} before closing.
func ChatWS(p *chat.Pipeline, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}
		defer conn.Close()

		conn.SetReadLimit(wsReadLimit)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})

		_, raw, err := conn.ReadMessage()
		if err != nil {
			logger.Debug().Err(err).Msg("websocket read failed")
			return
		}
		var start wsFrame
		if err := json.Unmarshal(raw, &start); err != nil || strings.ToLower(start.Type) != "start" {
			writeFrame(conn, gin.H{"type": "error", "status": http.StatusBadRequest, "msg": "invalid start frame"})
			return
		}

		turn, err := p.StartTurn(c.Request.Context(), start.TurnRequest)
		if err != nil {
			status := chat.HTTPStatus(err)
			if status >= http.StatusInternalServerError {
				logger.Error().Err(err).Msg("websocket turn failed")
			}
			writeFrame(conn, gin.H{"type": "error", "status": status, "msg": chat.PublicMessage(err)})
			return
		}
		events := turn.Start()
		defer turn.Detach()

		// reader: stop frames and connection loss end the relay
		stop := make(chan struct{})
		go func() {
			defer close(stop)
			for {
				_, raw, err := conn.ReadMessage()
				if err != nil {
					return
				}
				var f wsFrame
				if json.Unmarshal(raw, &f) == nil && strings.ToLower(f.Type) == "stop" {
					return
				}
			}
		}()

		ping := time.NewTicker(wsPingPeriod)
		defer ping.Stop()
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				if !writeFrame(conn, ev) {
					return
				}
				if ev.Type == chat.EventDone {
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
						time.Now().Add(wsWriteWait))
					return
				}
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					return
				}
			case <-stop:
				logger.Debug().Str("conversation_id", turn.ConversationID).Msg("websocket client stopped relay")
				return
			}
		}
	}
}

func writeFrame(conn *websocket.Conn, v any) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(v) == nil
}
