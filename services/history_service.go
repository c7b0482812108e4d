package services

import (
	"personachat/models"
	"personachat/personas"
)

// IsMarker reports whether t exists only for display, such as a persona
// switch notice.
func IsMarker(t models.Turn) bool {
	return t.Kind == models.KindSwitch
}

// NormalizeHistory builds the upstream message list: the system prompt,
// then every conversational turn in order, then message as the final user
// entry. Any sender other than "user" is replayed as the assistant.
func NormalizeHistory(systemPrompt string, history []models.Turn, message string) []models.RoleMessage {
	messages := make([]models.RoleMessage, 0, len(history)+2)
	messages = append(messages, models.RoleMessage{
		Role:    models.RoleSystem,
		Content: systemPrompt,
	})

	for _, turn := range history {
		if IsMarker(turn) {
			continue
		}
		role := models.RoleAssistant
		if turn.Sender == models.SenderUser {
			role = models.RoleUser
		}
		messages = append(messages, models.RoleMessage{
			Role:    role,
			Content: turn.Content,
		})
	}

	return append(messages, models.RoleMessage{
		Role:    models.RoleUser,
		Content: message,
	})
}

// PrepareConversation resolves the persona and normalizes the request.
// It fails only with personas.ErrUnknownPersona.
func PrepareConversation(req models.ConversationRequest) ([]models.RoleMessage, error) {
	prompt, err := personas.Resolve(req.PersonaID)
	if err != nil {
		return nil, err
	}
	return NormalizeHistory(prompt, req.History, req.Message), nil
}
