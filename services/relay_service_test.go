package services_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"personachat/models"
	"personachat/observability"
	"personachat/personas"
	"personachat/services"
	"personachat/services/servicestest"
)

func newRelay(t *testing.T, streamer services.CompletionStreamer) (*services.Relay, *servicestest.Recorder, *observability.RelayMetrics) {
	t.Helper()
	rec := &servicestest.Recorder{}
	metrics := observability.NewRelayMetrics(prometheus.NewRegistry())
	return services.NewRelay(streamer, rec, metrics, zerolog.Nop()), rec, metrics
}

func drain(t *testing.T, ex *services.Exchange) ([]string, error) {
	t.Helper()
	var out []string
	for {
		frag, err := ex.Next()
		if err != nil {
			return out, err
		}
		out = append(out, frag)
	}
}

func TestRelayStreamsAndCloses(t *testing.T) {
	streamer := servicestest.NewStreamer("A closure ", "captures ", "scope.")
	relay, rec, metrics := newRelay(t, streamer)

	ex, err := relay.Open(context.Background(), models.ConversationRequest{
		Message:   "explain closures",
		PersonaID: personas.Hitesh,
	}, services.TransportHTTP, "req-1")
	require.NoError(t, err)
	assert.Equal(t, services.StateStreaming, ex.State())

	frags, err := drain(t, ex)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, []string{"A closure ", "captures ", "scope."}, frags)

	assert.Equal(t, services.StateClosed, ex.Finish(err))
	assert.Equal(t, services.StateClosed, ex.Finish(nil), "finish is idempotent")

	records := rec.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "closed", records[0].State)
	assert.Equal(t, 3, records[0].Fragments)
	assert.Equal(t, len("A closure captures scope."), records[0].Bytes)
	assert.Equal(t, "req-1", records[0].RequestID)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.StreamsTotal.WithLabelValues(personas.Hitesh, "http", "closed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.ActiveStreams.WithLabelValues("http")))
}

func TestRelaySendsNormalizedConversationUpstream(t *testing.T) {
	streamer := servicestest.NewStreamer("ok")
	relay, _, _ := newRelay(t, streamer)

	ex, err := relay.Open(context.Background(), models.ConversationRequest{
		Message:   "q2",
		PersonaID: personas.Piyush,
		History: []models.Turn{
			{Content: "q1", Sender: models.SenderUser},
			{Content: "Switched to Piyush", Sender: models.SenderBot, Kind: models.KindSwitch},
			{Content: "a1", Sender: models.SenderBot},
		},
	}, services.TransportHTTP, "")
	require.NoError(t, err)
	ex.Finish(nil)

	prompt, _ := personas.Resolve(personas.Piyush)
	assert.Equal(t, []models.RoleMessage{
		{Role: models.RoleSystem, Content: prompt},
		{Role: models.RoleUser, Content: "q1"},
		{Role: models.RoleAssistant, Content: "a1"},
		{Role: models.RoleUser, Content: "q2"},
	}, streamer.LastMessages())
}

func TestRelayUnknownPersonaNeverCallsUpstream(t *testing.T) {
	streamer := servicestest.NewStreamer("never")
	relay, rec, metrics := newRelay(t, streamer)

	ex, err := relay.Open(context.Background(), models.ConversationRequest{
		Message:   "hi",
		PersonaID: "elon",
	}, services.TransportHTTP, "req-2")

	assert.Nil(t, ex)
	assert.ErrorIs(t, err, personas.ErrUnknownPersona)
	assert.Equal(t, 0, streamer.Calls())

	records := rec.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "errored", records[0].State)
	assert.Equal(t, services.ReasonUnknownPersona, records[0].Reason)
	assert.Equal(t, "unknown", records[0].PersonaID)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RejectedTotal.WithLabelValues("http", services.ReasonUnknownPersona)))
}

func TestRelayUpstreamOpenFailure(t *testing.T) {
	streamer := servicestest.NewStreamer()
	streamer.OpenErr = errors.New("connection refused")
	relay, rec, _ := newRelay(t, streamer)

	ex, err := relay.Open(context.Background(), models.ConversationRequest{
		Message:   "hi",
		PersonaID: personas.Hitesh,
	}, services.TransportHTTP, "")

	assert.Nil(t, ex)
	assert.ErrorIs(t, err, services.ErrUpstreamConnect)
	assert.Equal(t, 1, streamer.Calls())
	require.Len(t, rec.Records(), 1)
	assert.Equal(t, services.ReasonUpstreamOpen, rec.Records()[0].Reason)
}

func TestRelayMidStreamFailure(t *testing.T) {
	streamer := servicestest.NewStreamer("Hel", "lo")
	streamer.FailAfter = 1
	relay, rec, _ := newRelay(t, streamer)

	ex, err := relay.Open(context.Background(), models.ConversationRequest{
		Message:   "hi",
		PersonaID: personas.Hitesh,
	}, services.TransportWebSocket, "")
	require.NoError(t, err)

	frags, err := drain(t, ex)
	assert.Equal(t, []string{"Hel"}, frags)
	assert.ErrorIs(t, err, services.ErrUpstreamConnect)

	assert.Equal(t, services.StateErrored, ex.Finish(err))
	records := rec.Records()
	require.Len(t, records, 1)
	assert.Equal(t, services.ReasonUpstreamStream, records[0].Reason)
	assert.Equal(t, services.TransportWebSocket, records[0].Transport)
}

func TestRelayClientGone(t *testing.T) {
	relay, rec, _ := newRelay(t, servicestest.NewStreamer("a", "b"))

	ex, err := relay.Open(context.Background(), models.ConversationRequest{
		Message:   "hi",
		PersonaID: personas.Hitesh,
	}, services.TransportHTTP, "")
	require.NoError(t, err)

	assert.Equal(t, services.StateErrored, ex.Finish(services.ErrClientGone))
	assert.Equal(t, services.ReasonClientGone, rec.Records()[0].Reason)
}
