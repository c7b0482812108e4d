// Package personas holds the fixed set of chat personas: the system prompt
// that conditions the model for each one and the canned messages the client
// shows when the model is unavailable.
package personas

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownPersona is returned for any identifier outside the allow-list.
var ErrUnknownPersona = errors.New("unknown persona")

const (
	Hitesh = "hitesh"
	Piyush = "piyush"
)

// Persona is the static configuration of one chat agent.
type Persona struct {
	ID           string
	DisplayName  string
	SystemPrompt string
}

var registry = map[string]Persona{
	Hitesh: {
		ID:           Hitesh,
		DisplayName:  "Hitesh Choudhary",
		SystemPrompt: hiteshPrompt,
	},
	Piyush: {
		ID:           Piyush,
		DisplayName:  "Piyush Garg",
		SystemPrompt: piyushPrompt,
	},
}

// Resolve returns the system prompt for id.
func Resolve(id string) (string, error) {
	p, ok := registry[id]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownPersona, id)
	}
	return p.SystemPrompt, nil
}

// Lookup returns the full persona configuration for id.
func Lookup(id string) (Persona, bool) {
	p, ok := registry[id]
	return p, ok
}

// Valid reports whether id is in the allow-list.
func Valid(id string) bool {
	_, ok := registry[id]
	return ok
}

// IDs lists the configured persona identifiers in a stable order.
func IDs() []string {
	ids := make([]string, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
