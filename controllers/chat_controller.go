package controllers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"personachat/middlewares"
	"personachat/models"
	"personachat/services"
)

const errorBody = "Error processing chat request"

// ChatController exposes the relay over HTTP.
type ChatController struct {
	relay  *services.Relay
	logger zerolog.Logger
}

func NewChatController(relay *services.Relay, logger zerolog.Logger) *ChatController {
	return &ChatController{
		relay:  relay,
		logger: logger.With().Str("component", "chat_controller").Logger(),
	}
}

// HandleChat streams the model answer as an unframed plain-text body.
//
// Failures before the first byte produce a 500 with a short text body.
// Failures after streaming started abort the connection, so the client sees
// a truncated chunked body rather than a clean end of stream.
func (cc *ChatController) HandleChat(c *gin.Context) {
	var request models.ConversationRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		cc.logger.Warn().Err(err).Str("request_id", c.GetString(middlewares.RequestIDKey)).Msg("invalid chat request")
		c.String(http.StatusBadRequest, "Invalid chat request body")
		return
	}

	ex, err := cc.relay.Open(c.Request.Context(), request, services.TransportHTTP, c.GetString(middlewares.RequestIDKey))
	if err != nil {
		c.String(http.StatusInternalServerError, errorBody)
		return
	}

	header := c.Writer.Header()
	header.Set("Content-Type", "text/plain; charset=utf-8")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	for {
		fragment, err := ex.Next()
		if errors.Is(err, io.EOF) {
			ex.Finish(nil)
			return
		}
		if err != nil {
			ex.Finish(err)
			panic(http.ErrAbortHandler)
		}
		if _, err := io.WriteString(c.Writer, fragment); err != nil {
			ex.Finish(services.ErrClientGone)
			return
		}
		c.Writer.Flush()
	}
}
