package controllers

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"personachat/middlewares"
	"personachat/models"
	"personachat/observability"
	"personachat/personas"
	"personachat/services"
	"personachat/services/servicestest"
)

const (
	testTimeout = 2 * time.Second
	testTick    = 10 * time.Millisecond
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newServer(t *testing.T, streamer services.CompletionStreamer) (*httptest.Server, *servicestest.Recorder) {
	t.Helper()
	rec := &servicestest.Recorder{}
	relay := services.NewRelay(streamer, rec, observability.NewRelayMetrics(prometheus.NewRegistry()), zerolog.Nop())

	r := gin.New()
	r.Use(middlewares.Logger(zerolog.Nop()), middlewares.Recovery(zerolog.Nop()))
	r.POST("/api/chat", NewChatController(relay, zerolog.Nop()).HandleChat)
	r.GET("/api/chat/ws", NewChatSocketController(relay, "*", zerolog.Nop()).HandleChatSocket)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, rec
}

func postChat(t *testing.T, srv *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+"/api/chat", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHandleChatStreamsPlainText(t *testing.T) {
	streamer := servicestest.NewStreamer("A closure ", "remembers ", "its scope.")
	srv, rec := newServer(t, streamer)

	resp := postChat(t, srv, `{"message":"explain closures","persona":"hitesh","conversationHistory":[{"content":"hi","sender":"user"}]}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))
	assert.Equal(t, "keep-alive", resp.Header.Get("Connection"))
	assert.Equal(t, "no", resp.Header.Get("X-Accel-Buffering"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "A closure remembers its scope.", string(body))

	msgs := streamer.LastMessages()
	require.Len(t, msgs, 3)
	assert.Equal(t, models.RoleSystem, msgs[0].Role)
	assert.Equal(t, models.RoleMessage{Role: models.RoleUser, Content: "explain closures"}, msgs[2])

	records := rec.Records()
	require.Len(t, records, 1)
	assert.Equal(t, services.StateClosed.String(), records[0].State)
	assert.Equal(t, services.TransportHTTP, records[0].Transport)
}

func TestHandleChatRejectsMalformedJSON(t *testing.T) {
	streamer := servicestest.NewStreamer("unused")
	srv, rec := newServer(t, streamer)

	for _, body := range []string{`not json`, `{"message":`, `{"message":42,"persona":"hitesh"}`} {
		resp := postChat(t, srv, body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	}
	assert.Zero(t, streamer.Calls())
	assert.Empty(t, rec.Records())
}

func TestHandleChatMissingPersonaIsUnknown(t *testing.T) {
	for _, body := range []string{`{"message":"hi"}`, `{"message":"hi","persona":""}`} {
		t.Run(body, func(t *testing.T) {
			streamer := servicestest.NewStreamer("unused")
			srv, rec := newServer(t, streamer)

			resp := postChat(t, srv, body)
			assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
			got, _ := io.ReadAll(resp.Body)
			assert.Equal(t, errorBody, string(got))
			assert.Zero(t, streamer.Calls())

			records := rec.Records()
			require.Len(t, records, 1)
			assert.Equal(t, services.ReasonUnknownPersona, records[0].Reason)
			assert.Equal(t, services.StateErrored.String(), records[0].State)
		})
	}
}

func TestHandleChatAcceptsEmptyMessage(t *testing.T) {
	streamer := servicestest.NewStreamer("Haanji?")
	srv, _ := newServer(t, streamer)

	resp := postChat(t, srv, `{"persona":"hitesh"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "Haanji?", string(body))
	assert.Equal(t, 1, streamer.Calls())
}

func TestHandleChatUnknownPersona(t *testing.T) {
	streamer := servicestest.NewStreamer("unused")
	srv, rec := newServer(t, streamer)

	resp := postChat(t, srv, `{"message":"hi","persona":"nobody"}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, errorBody, string(body))
	assert.Zero(t, streamer.Calls())

	records := rec.Records()
	require.Len(t, records, 1)
	assert.Equal(t, services.ReasonUnknownPersona, records[0].Reason)
}

func TestHandleChatUpstreamUnavailable(t *testing.T) {
	streamer := servicestest.NewStreamer()
	streamer.OpenErr = errors.New("connection refused")
	srv, _ := newServer(t, streamer)

	resp := postChat(t, srv, `{"message":"hi","persona":"piyush"}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestHandleChatAbortsOnMidStreamFailure(t *testing.T) {
	streamer := servicestest.NewStreamer("Hel", "lo, ", "world")
	streamer.FailAfter = 2
	srv, rec := newServer(t, streamer)

	resp := postChat(t, srv, `{"message":"hi","persona":"hitesh"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, "Hello, ", string(body))

	records := rec.Records()
	require.Len(t, records, 1)
	assert.Equal(t, services.StateErrored.String(), records[0].State)
	assert.Equal(t, services.ReasonUpstreamStream, records[0].Reason)
	assert.Equal(t, 2, records[0].Fragments)
}

func dialChat(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/chat/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readFrames(ws *websocket.Conn) ([]string, error) {
	var frames []string
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return frames, err
		}
		frames = append(frames, string(data))
	}
}

func closeCode(t *testing.T, err error) int {
	t.Helper()
	var ce *websocket.CloseError
	require.ErrorAs(t, err, &ce)
	return ce.Code
}

func TestChatSocketStreamsFrames(t *testing.T) {
	srv, rec := newServer(t, servicestest.NewStreamer("Chai ", "aur ", "code"))
	ws := dialChat(t, srv)

	require.NoError(t, ws.WriteJSON(models.ConversationRequest{Message: "hello", PersonaID: personas.Hitesh}))
	frames, err := readFrames(ws)
	assert.Equal(t, []string{"Chai ", "aur ", "code"}, frames)
	assert.Equal(t, websocket.CloseNormalClosure, closeCode(t, err))

	require.Eventually(t, func() bool { return len(rec.Records()) == 1 }, testTimeout, testTick)
	assert.Equal(t, services.TransportWebSocket, rec.Records()[0].Transport)
}

func TestChatSocketCloseCodes(t *testing.T) {
	failing := servicestest.NewStreamer("partial")
	failing.FailAfter = 1
	unavailable := servicestest.NewStreamer()
	unavailable.OpenErr = errors.New("dial tcp: refused")

	tests := []struct {
		name     string
		streamer *servicestest.Streamer
		request  any
		code     int
		frames   []string
	}{
		{"unknown persona", servicestest.NewStreamer("x"), models.ConversationRequest{Message: "hi", PersonaID: "nobody"}, websocket.ClosePolicyViolation, nil},
		{"upstream unavailable", unavailable, models.ConversationRequest{Message: "hi", PersonaID: personas.Piyush}, websocket.CloseTryAgainLater, nil},
		{"mid-stream failure", failing, models.ConversationRequest{Message: "hi", PersonaID: personas.Piyush}, websocket.CloseInternalServerErr, []string{"partial"}},
		{"missing persona", servicestest.NewStreamer("x"), map[string]string{"message": "hi"}, websocket.ClosePolicyViolation, nil},
		{"malformed request", servicestest.NewStreamer("x"), []string{"not", "an", "object"}, websocket.CloseUnsupportedData, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newServer(t, tt.streamer)
			ws := dialChat(t, srv)

			require.NoError(t, ws.WriteJSON(tt.request))
			frames, err := readFrames(ws)
			assert.Equal(t, tt.frames, frames)
			assert.Equal(t, tt.code, closeCode(t, err))
		})
	}
}

func TestChatSocketRejectsForeignOrigin(t *testing.T) {
	relay := services.NewRelay(servicestest.NewStreamer("x"), nil, nil, zerolog.Nop())
	r := gin.New()
	r.GET("/ws", NewChatSocketController(relay, "http://localhost:3000", zerolog.Nop()).HandleChatSocket)
	srv := httptest.NewServer(r)
	defer srv.Close()

	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", header)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
