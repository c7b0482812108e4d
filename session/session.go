// Package session owns the client-side chat state: one conversation per
// persona, the selected persona, and the single-send-per-conversation guard.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"personachat/client"
	"personachat/models"
	"personachat/personas"
)

var (
	ErrSendInFlight = errors.New("a reply is still streaming for this persona")
	ErrNoPersona    = errors.New("no persona selected")
	ErrEmptyMessage = errors.New("message is empty")
)

// Message is one displayed entry of a persona conversation.
type Message struct {
	ID          string
	Content     string
	Sender      models.Sender
	Kind        models.TurnKind
	Persona     string
	Timestamp   time.Time
	IsStreaming bool
}

// Streamer sends one request to the relay and reports the streamed answer.
type Streamer interface {
	Stream(ctx context.Context, req models.ConversationRequest, observe func(models.StreamedAnswer)) client.Result
}

// Reply is the final bot message of a Send.
type Reply struct {
	Message  Message
	Fallback bool
	Cause    error
}

// State is safe for concurrent use. Sends to different personas run
// independently; a persona switch never interrupts a running send.
type State struct {
	mu            sync.Mutex
	conversations map[string][]Message
	inFlight      map[string]bool
	selected      string
	now           func() time.Time
}

// New seeds every persona conversation with one greeting.
func New(templates *personas.Templates) *State {
	if templates == nil {
		templates = personas.DefaultTemplates()
	}
	s := &State{
		conversations: make(map[string][]Message),
		inFlight:      make(map[string]bool),
		now:           time.Now,
	}
	for _, id := range personas.IDs() {
		greeting, err := templates.Pick(id, personas.CategoryGreeting)
		if err != nil {
			continue
		}
		s.conversations[id] = []Message{s.botMessage(id, greeting)}
	}
	return s
}

// Select makes persona the active conversation. Switching away from another
// persona appends a display-only marker to the newly selected conversation.
func (s *State) Select(persona string) error {
	p, ok := personas.Lookup(persona)
	if !ok {
		return fmt.Errorf("%w: %q", personas.ErrUnknownPersona, persona)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == persona {
		return nil
	}
	if s.selected != "" {
		marker := s.botMessage(persona, "Switched to "+p.DisplayName)
		marker.Kind = models.KindSwitch
		s.conversations[persona] = append(s.conversations[persona], marker)
	}
	s.selected = persona
	return nil
}

func (s *State) Selected() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// Messages returns a copy of persona's conversation.
func (s *State) Messages(persona string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.conversations[persona]...)
}

// Busy reports whether a send to persona is still running.
func (s *State) Busy(persona string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight[persona]
}

// Send posts text to the selected persona and streams the answer into its
// conversation. observe sees the placeholder bot message after every chunk.
// The returned error covers only the preconditions; a failed stream still
// yields a Reply holding the fallback message.
func (s *State) Send(ctx context.Context, streamer Streamer, text string, observe func(Message)) (Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Reply{}, ErrEmptyMessage
	}

	s.mu.Lock()
	persona := s.selected
	if persona == "" {
		s.mu.Unlock()
		return Reply{}, ErrNoPersona
	}
	if s.inFlight[persona] {
		s.mu.Unlock()
		return Reply{}, ErrSendInFlight
	}
	req := models.ConversationRequest{
		Message:   text,
		PersonaID: persona,
		History:   historyOf(s.conversations[persona]),
	}
	user := Message{
		ID:        uuid.NewString(),
		Content:   text,
		Sender:    models.SenderUser,
		Kind:      models.KindNormal,
		Persona:   persona,
		Timestamp: s.now(),
	}
	placeholder := s.botMessage(persona, "")
	placeholder.IsStreaming = true
	s.conversations[persona] = append(s.conversations[persona], user, placeholder)
	s.inFlight[persona] = true
	s.mu.Unlock()

	res := streamer.Stream(ctx, req, func(a models.StreamedAnswer) {
		msg, ok := s.update(persona, placeholder.ID, func(m *Message) {
			m.Content = a.Content
		})
		if ok && observe != nil {
			observe(msg)
		}
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, persona)

	if res.Fallback {
		s.remove(persona, placeholder.ID)
		fallback := s.botMessage(persona, res.Answer.Content)
		s.conversations[persona] = append(s.conversations[persona], fallback)
		return Reply{Message: fallback, Fallback: true, Cause: res.Err}, nil
	}

	final, _ := s.updateLocked(persona, placeholder.ID, func(m *Message) {
		m.Content = res.Answer.Content
		m.IsStreaming = false
	})
	return Reply{Message: final}, nil
}

func (s *State) update(persona, id string, fn func(*Message)) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(persona, id, fn)
}

func (s *State) updateLocked(persona, id string, fn func(*Message)) (Message, bool) {
	msgs := s.conversations[persona]
	for i := range msgs {
		if msgs[i].ID == id {
			fn(&msgs[i])
			return msgs[i], true
		}
	}
	return Message{}, false
}

func (s *State) remove(persona, id string) {
	msgs := s.conversations[persona]
	for i := range msgs {
		if msgs[i].ID == id {
			s.conversations[persona] = append(msgs[:i:i], msgs[i+1:]...)
			return
		}
	}
}

func (s *State) botMessage(persona, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Content:   content,
		Sender:    models.SenderBot,
		Kind:      models.KindNormal,
		Persona:   persona,
		Timestamp: s.now(),
	}
}

// historyOf converts a conversation into request turns, leaving out markers.
func historyOf(msgs []Message) []models.Turn {
	turns := make([]models.Turn, 0, len(msgs))
	for _, m := range msgs {
		if m.Kind == models.KindSwitch {
			continue
		}
		turns = append(turns, models.Turn{Content: m.Content, Sender: m.Sender})
	}
	return turns
}
