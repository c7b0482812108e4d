package models

// Sender identifies who produced a Turn.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// TurnKind separates conversational turns from display-only markers.
type TurnKind string

const (
	KindNormal TurnKind = "normal"
	KindSwitch TurnKind = "switch"
)

// Turn is one prior exchange unit as sent by the client.
type Turn struct {
	Content string   `json:"content"`
	Sender  Sender   `json:"sender"`
	Kind    TurnKind `json:"type,omitempty"`
}

// ConversationRequest is the body of POST /api/chat. PersonaID is checked
// against the persona allow-list by the relay, not at bind time.
type ConversationRequest struct {
	Message   string `json:"message"`
	PersonaID string `json:"persona"`
	History   []Turn `json:"conversationHistory"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// RoleMessage is the role-tagged form sent upstream.
type RoleMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
