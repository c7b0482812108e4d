// Package servicestest provides in-memory upstream and recorder doubles for
// tests of the relay and its clients.
package servicestest

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"personachat/models"
	"personachat/services"
)

// Streamer is a scripted services.CompletionStreamer.
type Streamer struct {
	// Fragments are emitted in order by every opened stream.
	Fragments []string
	// FailAfter, when >= 0, makes the stream fail once that many fragments
	// have been emitted. Use -1 for a clean completion.
	FailAfter int
	// OpenErr, when set, is returned by OpenStream.
	OpenErr error
	// Gate, when set, is received from before every fragment but the first.
	Gate <-chan struct{}

	mu       sync.Mutex
	calls    int
	messages [][]models.RoleMessage
}

// NewStreamer returns a streamer that emits fragments and completes.
func NewStreamer(fragments ...string) *Streamer {
	return &Streamer{Fragments: fragments, FailAfter: -1}
}

func (s *Streamer) OpenStream(ctx context.Context, messages []models.RoleMessage) (services.FragmentStream, error) {
	s.mu.Lock()
	s.calls++
	s.messages = append(s.messages, messages)
	s.mu.Unlock()

	if s.OpenErr != nil {
		return nil, &services.UpstreamError{Op: "open", Err: s.OpenErr}
	}
	return &Stream{ctx: ctx, fragments: s.Fragments, failAfter: s.FailAfter, gate: s.Gate}, nil
}

// Calls returns how many streams were opened.
func (s *Streamer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// LastMessages returns the messages of the most recent OpenStream call.
func (s *Streamer) LastMessages() []models.RoleMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		return nil
	}
	return s.messages[len(s.messages)-1]
}

// ErrScripted is the cause of scripted stream failures.
var ErrScripted = errors.New("scripted upstream failure")

// Stream is a scripted services.FragmentStream.
type Stream struct {
	ctx       context.Context
	fragments []string
	failAfter int
	gate      <-chan struct{}
	next      int
	done      bool
	closed    bool
}

func (s *Stream) Recv() (string, error) {
	if s.done {
		return "", services.ErrStreamFinished
	}
	if s.failAfter >= 0 && s.next >= s.failAfter {
		s.done = true
		return "", &services.UpstreamError{Op: "recv", Err: ErrScripted}
	}
	if s.next >= len(s.fragments) {
		s.done = true
		return "", io.EOF
	}
	if s.gate != nil && s.next > 0 {
		select {
		case <-s.gate:
		case <-s.ctx.Done():
			s.done = true
			return "", &services.UpstreamError{Op: "recv", Err: s.ctx.Err()}
		case <-time.After(5 * time.Second):
			s.done = true
			return "", &services.UpstreamError{Op: "recv", Err: errors.New("gate timeout")}
		}
	}
	frag := s.fragments[s.next]
	s.next++
	return frag, nil
}

func (s *Stream) Close() error {
	s.closed = true
	return nil
}

// Recorder keeps every record in memory.
type Recorder struct {
	mu      sync.Mutex
	records []models.ExchangeRecord
}

func (r *Recorder) Record(_ context.Context, rec models.ExchangeRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

// Records returns a copy of the stored records.
func (r *Recorder) Records() []models.ExchangeRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.ExchangeRecord(nil), r.records...)
}
