// Package client consumes the relay's streamed chat answers.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"personachat/models"
	"personachat/personas"
)

var (
	// ErrClientDecode is returned when the relay body is not valid UTF-8.
	ErrClientDecode = errors.New("relay stream could not be decoded")
	// ErrBadStatus is returned when the relay answers with a non-200 status.
	ErrBadStatus = errors.New("relay returned a non-success status")
)

const (
	chatPath      = "/api/chat"
	readChunkSize = 4096
	errorBodyMax  = 512
)

type Config struct {
	ServerURL string
	// Timeout bounds the whole exchange, zero means no limit.
	Timeout time.Duration
}

// Result is the outcome of one send: either the streamed answer, or a
// complete fallback message with the cause in Err.
type Result struct {
	Answer   models.StreamedAnswer
	Fallback bool
	Err      error
}

type Client struct {
	http      *resty.Client
	templates *personas.Templates
	logger    zerolog.Logger
}

func New(cfg Config, templates *personas.Templates, logger zerolog.Logger) *Client {
	if templates == nil {
		templates = personas.DefaultTemplates()
	}
	rc := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.ServerURL, "/")).
		SetHeader("Accept", "text/plain")
	if cfg.Timeout > 0 {
		rc.SetTimeout(cfg.Timeout)
	}
	return &Client{
		http:      rc,
		templates: templates,
		logger:    logger.With().Str("component", "chat_client").Logger(),
	}
}

// Stream sends req and reads the answer as it arrives. observe, when not nil,
// is called synchronously after every decoded chunk with the cumulative
// answer. On any failure the partial answer is dropped and the result carries
// a complete fallback message for the request's persona.
func (c *Client) Stream(ctx context.Context, req models.ConversationRequest, observe func(models.StreamedAnswer)) Result {
	answer := models.StreamedAnswer{ID: uuid.NewString(), IsStreaming: true}

	resp, err := c.http.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		SetBody(req).
		Post(chatPath)
	if err != nil {
		return c.fallback(answer.ID, req.PersonaID, fmt.Errorf("send chat request: %w", err))
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(body, errorBodyMax))
		return c.fallback(answer.ID, req.PersonaID,
			fmt.Errorf("%w: %d %s", ErrBadStatus, resp.StatusCode(), strings.TrimSpace(string(detail))))
	}

	var dec textDecoder
	var content strings.Builder
	buf := make([]byte, readChunkSize)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			text, err := dec.decode(buf[:n])
			if err != nil {
				return c.fallback(answer.ID, req.PersonaID, err)
			}
			if text != "" {
				content.WriteString(text)
				answer.Content = content.String()
				if observe != nil {
					observe(answer)
				}
			}
		}
		if errors.Is(readErr, io.EOF) {
			if err := dec.finish(); err != nil {
				return c.fallback(answer.ID, req.PersonaID, err)
			}
			answer.IsStreaming = false
			return Result{Answer: answer}
		}
		if readErr != nil {
			return c.fallback(answer.ID, req.PersonaID, fmt.Errorf("read chat stream: %w", readErr))
		}
	}
}

func (c *Client) fallback(id, persona string, cause error) Result {
	c.logger.Warn().Err(cause).Str("persona", persona).Msg("chat stream failed, using fallback message")
	return Result{
		Answer: models.StreamedAnswer{
			ID:          id,
			Content:     c.templates.Fallback(persona),
			IsStreaming: false,
		},
		Fallback: true,
		Err:      cause,
	}
}
