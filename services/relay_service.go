package services

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"personachat/models"
	"personachat/observability"
	"personachat/personas"
)

const (
	TransportHTTP      = "http"
	TransportWebSocket = "websocket"
)

// Reasons recorded for exchanges that end in StateErrored.
const (
	ReasonUnknownPersona = "unknown_persona"
	ReasonUpstreamOpen   = "upstream_open"
	ReasonUpstreamStream = "upstream_stream"
	ReasonClientGone     = "client_gone"
)

const recordTimeout = 5 * time.Second

var tracer = otel.Tracer("personachat/services")

// Relay bridges a client conversation request to the upstream streamer.
// It holds no per-conversation state; every call is independent.
type Relay struct {
	streamer CompletionStreamer
	recorder ExchangeRecorder
	metrics  *observability.RelayMetrics
	logger   zerolog.Logger
	now      func() time.Time
}

func NewRelay(streamer CompletionStreamer, recorder ExchangeRecorder, metrics *observability.RelayMetrics, logger zerolog.Logger) *Relay {
	if recorder == nil {
		recorder = NoopRecorder{}
	}
	return &Relay{
		streamer: streamer,
		recorder: recorder,
		metrics:  metrics,
		logger:   logger.With().Str("component", "relay").Logger(),
		now:      time.Now,
	}
}

// Open resolves the persona, normalizes the history and starts the upstream
// call. On success the caller owns the Exchange and must drive it to Finish.
// Errors match personas.ErrUnknownPersona or ErrUpstreamConnect; in both
// cases no stream is open.
func (r *Relay) Open(ctx context.Context, req models.ConversationRequest, transport, requestID string) (*Exchange, error) {
	ex := &Exchange{
		relay: r,
		ctx:   ctx,
		record: models.ExchangeRecord{
			ID:         uuid.NewString(),
			RequestID:  requestID,
			PersonaID:  req.PersonaID,
			Transport:  transport,
			StartedAt:  r.now(),
			HistoryLen: len(req.History),
		},
	}
	if !personas.Valid(req.PersonaID) {
		ex.record.PersonaID = "unknown"
	}
	ctx, ex.span = tracer.Start(ctx, "relay.exchange", trace.WithAttributes(
		attribute.String("persona", ex.record.PersonaID),
		attribute.String("transport", transport),
		attribute.String("request_id", requestID),
		attribute.Int("history_len", len(req.History)),
	))
	ex.ctx = ctx

	messages, err := PrepareConversation(req)
	if err != nil {
		ex.reject(ReasonUnknownPersona, err)
		return nil, err
	}
	ex.advance(StatePersonaResolved)

	stream, err := r.streamer.OpenStream(ctx, messages)
	if err != nil {
		ex.reject(ReasonUpstreamOpen, err)
		return nil, err
	}
	ex.stream = stream
	ex.advance(StateStreaming)
	if r.metrics != nil {
		r.metrics.ActiveStreams.WithLabelValues(transport).Inc()
	}
	return ex, nil
}

// Exchange is one open relay stream. Next and Finish must be called from a
// single goroutine.
type Exchange struct {
	relay   *Relay
	ctx     context.Context
	stream  FragmentStream
	span    trace.Span
	tracker RelayTracker
	record  models.ExchangeRecord
}

// Next returns the next non-empty fragment, io.EOF at normal completion, or
// the upstream error.
func (e *Exchange) Next() (string, error) {
	frag, err := e.stream.Recv()
	if err != nil {
		return "", err
	}
	if e.record.Fragments == 0 {
		e.record.FirstByte = e.relay.now().Sub(e.record.StartedAt)
		if m := e.relay.metrics; m != nil {
			m.TimeToFirstFragmentSeconds.WithLabelValues(e.record.Transport).Observe(e.record.FirstByte.Seconds())
		}
	}
	e.record.Fragments++
	e.record.Bytes += len(frag)
	return frag, nil
}

// Record returns a copy of the audit record collected so far.
func (e *Exchange) Record() models.ExchangeRecord {
	return e.record
}

// State returns the current lifecycle state.
func (e *Exchange) State() RelayState {
	return e.tracker.State()
}

// Finish closes the upstream stream and moves to a terminal state: Closed
// when cause is nil or io.EOF, Errored otherwise. Calling it again is a no-op.
func (e *Exchange) Finish(cause error) RelayState {
	if e.tracker.State().Terminal() {
		return e.tracker.State()
	}
	_ = e.stream.Close()

	r := e.relay
	if m := r.metrics; m != nil {
		m.ActiveStreams.WithLabelValues(e.record.Transport).Dec()
	}

	if cause == nil || errors.Is(cause, io.EOF) {
		e.advance(StateClosed)
	} else {
		e.record.Reason = ReasonUpstreamStream
		if e.ctx.Err() != nil || errors.Is(cause, ErrClientGone) {
			e.record.Reason = ReasonClientGone
		}
		e.advance(StateErrored)
		e.span.RecordError(cause)
		e.span.SetStatus(codes.Error, e.record.Reason)
		r.logger.Error().Err(cause).
			Str("request_id", e.record.RequestID).
			Str("persona", e.record.PersonaID).
			Str("reason", e.record.Reason).
			Int("fragments", e.record.Fragments).
			Msg("relay stream ended abnormally")
	}

	e.record.Duration = r.now().Sub(e.record.StartedAt)
	e.span.SetAttributes(
		attribute.String("state", e.tracker.State().String()),
		attribute.Int("fragments", e.record.Fragments),
		attribute.Int("bytes", e.record.Bytes),
	)
	e.span.End()
	if m := r.metrics; m != nil {
		state := e.tracker.State().String()
		m.StreamsTotal.WithLabelValues(e.record.PersonaID, e.record.Transport, state).Inc()
		m.FragmentsTotal.WithLabelValues(e.record.PersonaID).Add(float64(e.record.Fragments))
		m.BytesTotal.WithLabelValues(e.record.PersonaID).Add(float64(e.record.Bytes))
		m.StreamDurationSeconds.WithLabelValues(e.record.Transport, state).Observe(e.record.Duration.Seconds())
	}
	e.save()
	return e.tracker.State()
}

func (e *Exchange) reject(reason string, cause error) {
	r := e.relay
	e.record.Reason = reason
	e.advance(StateErrored)
	e.record.Duration = r.now().Sub(e.record.StartedAt)
	e.span.RecordError(cause)
	e.span.SetStatus(codes.Error, reason)
	e.span.End()
	if r.metrics != nil {
		r.metrics.RejectedTotal.WithLabelValues(e.record.Transport, reason).Inc()
	}
	r.logger.Warn().Err(cause).
		Str("request_id", e.record.RequestID).
		Str("persona", e.record.PersonaID).
		Str("reason", reason).
		Msg("relay request rejected before streaming")
	e.save()
}

func (e *Exchange) advance(next RelayState) {
	if err := e.tracker.Advance(next); err != nil {
		e.relay.logger.Error().Err(err).Str("request_id", e.record.RequestID).Msg("relay state")
		return
	}
	e.record.State = next.String()
}

func (e *Exchange) save() {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(e.ctx), recordTimeout)
	defer cancel()
	if err := e.relay.recorder.Record(ctx, e.record); err != nil {
		e.relay.logger.Warn().Err(err).Str("request_id", e.record.RequestID).Msg("failed to record exchange")
	}
}
