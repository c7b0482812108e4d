package controllers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"personachat/middlewares"
	"personachat/models"
	"personachat/personas"
	"personachat/services"
)

const (
	wsRequestTimeout = 30 * time.Second
	wsWriteTimeout   = 10 * time.Second
)

// ChatSocketController exposes the relay over a WebSocket: the client sends
// one ConversationRequest as JSON and receives one text frame per fragment.
//
// Close codes:
//   - 1000 the answer is complete
//   - 1011 the upstream failed mid-stream
//   - 1008 the persona is unknown, no stream was opened
//   - 1013 the upstream could not be reached, no stream was opened
//   - 1003 the request is not valid JSON
type ChatSocketController struct {
	relay    *services.Relay
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

func NewChatSocketController(relay *services.Relay, allowedOrigin string, logger zerolog.Logger) *ChatSocketController {
	return &ChatSocketController{
		relay: relay,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowedOrigin == "" || allowedOrigin == "*" || origin == "" || origin == allowedOrigin
			},
		},
		logger: logger.With().Str("component", "chat_socket").Logger(),
	}
}

func (sc *ChatSocketController) HandleChatSocket(c *gin.Context) {
	requestID := c.GetString(middlewares.RequestIDKey)
	ws, err := sc.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		sc.logger.Warn().Err(err).Str("request_id", requestID).Msg("websocket upgrade failed")
		return
	}
	defer ws.Close()

	_ = ws.SetReadDeadline(time.Now().Add(wsRequestTimeout))
	var request models.ConversationRequest
	if err := ws.ReadJSON(&request); err != nil {
		sc.close(ws, websocket.CloseUnsupportedData, "Invalid chat request")
		return
	}
	_ = ws.SetReadDeadline(time.Time{})

	ex, err := sc.relay.Open(c.Request.Context(), request, services.TransportWebSocket, requestID)
	if err != nil {
		code := websocket.CloseTryAgainLater
		if errors.Is(err, personas.ErrUnknownPersona) {
			code = websocket.ClosePolicyViolation
		}
		sc.close(ws, code, errorBody)
		return
	}

	for {
		fragment, err := ex.Next()
		if errors.Is(err, io.EOF) {
			ex.Finish(nil)
			sc.close(ws, websocket.CloseNormalClosure, "")
			return
		}
		if err != nil {
			ex.Finish(err)
			sc.close(ws, websocket.CloseInternalServerErr, errorBody)
			return
		}
		_ = ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := ws.WriteMessage(websocket.TextMessage, []byte(fragment)); err != nil {
			ex.Finish(services.ErrClientGone)
			return
		}
	}
}

func (sc *ChatSocketController) close(ws *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	if err := ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteTimeout)); err != nil {
		sc.logger.Debug().Err(err).Msg("failed to send close frame")
	}
}
