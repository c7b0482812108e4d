package services

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"personachat/models"
)

// FragmentStream is a lazy, finite, non-restartable sequence of text deltas.
// Recv returns io.EOF on normal completion and an *UpstreamError on failure.
// Either terminal signal is delivered once; later calls get ErrStreamFinished.
type FragmentStream interface {
	Recv() (string, error)
	Close() error
}

// CompletionStreamer starts streaming completion calls.
type CompletionStreamer interface {
	OpenStream(ctx context.Context, messages []models.RoleMessage) (FragmentStream, error)
}

// UpstreamConfig describes the single provider endpoint.
type UpstreamConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxTokens  int
	HTTPClient *http.Client
}

// OpenAIStreamer talks to any OpenAI compatible chat completions endpoint.
type OpenAIStreamer struct {
	api       *openai.Client
	model     string
	maxTokens int
	logger    zerolog.Logger
}

func NewOpenAIStreamer(cfg UpstreamConfig, logger zerolog.Logger) (*OpenAIStreamer, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("upstream api key is not set")
	}
	if cfg.Model == "" {
		return nil, errors.New("upstream model is not set")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	}

	return &OpenAIStreamer{
		api:       openai.NewClientWithConfig(clientCfg),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		logger:    logger.With().Str("component", "upstream").Logger(),
	}, nil
}

// OpenStream issues one streaming call. A non-success status or network
// failure surfaces here, before any fragment is produced.
func (s *OpenAIStreamer) OpenStream(ctx context.Context, messages []models.RoleMessage) (FragmentStream, error) {
	req := openai.ChatCompletionRequest{
		Model:    s.model,
		Messages: toAPIMessages(messages),
		Stream:   true,
	}
	if s.maxTokens > 0 {
		req.MaxTokens = s.maxTokens
	}

	s.logger.Debug().Str("model", s.model).Int("messages", len(messages)).Msg("opening completion stream")

	stream, err := s.api.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, &UpstreamError{Op: "open", Err: err}
	}
	return &openAIFragmentStream{stream: stream}, nil
}

func toAPIMessages(msgs []models.RoleMessage) []openai.ChatCompletionMessage {
	res := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		res = append(res, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	return res
}

type openAIFragmentStream struct {
	stream *openai.ChatCompletionStream
	done   bool
}

func (f *openAIFragmentStream) Recv() (string, error) {
	if f.done {
		return "", ErrStreamFinished
	}
	for {
		resp, err := f.stream.Recv()
		if errors.Is(err, io.EOF) {
			f.done = true
			return "", io.EOF
		}
		if err != nil {
			f.done = true
			return "", &UpstreamError{Op: "recv", Err: err}
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if delta := resp.Choices[0].Delta.Content; delta != "" {
			return delta, nil
		}
	}
}

func (f *openAIFragmentStream) Close() error {
	f.done = true
	f.stream.Close()
	return nil
}
