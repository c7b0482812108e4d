package personas

import (
	"fmt"
	"math/rand/v2"
)

// Category groups canned messages by purpose.
type Category string

const (
	CategoryGreeting    Category = "greeting"
	CategoryExplanation Category = "explanation"
)

var defaultPools = map[string]map[Category][]string{
	Hitesh: {
		CategoryGreeting: {
			"Haanji! Swagat hai aapka. Chai ready hai? Bataiye aaj kya seekhna hai.",
			"Haanji, kaise hain aap? Aaj kaunsa concept clear karte hain, JavaScript ya kuch aur?",
		},
		CategoryExplanation: {
			"Haanji, abhi thoda network ka issue lag raha hai. Tab tak ek kaam kijiye: jo concept pucha hai uska ek chhota sa example khud likh ke dekhiye, phir se puchiye, main detail mein samjhaunga.",
			"Dekhiye, abhi main poora answer nahi de paa raha hoon. Thodi der baad try kijiye, aur tab tak documentation ka ek chakkar laga lijiye. Chai piyo, code karo!",
		},
	},
	Piyush: {
		CategoryGreeting: {
			"Hey there! Ready to build something awesome today? Ask me anything about full-stack or system design.",
			"Hello! Let's dive deep. What are we building or debugging today?",
		},
		CategoryExplanation: {
			"Looks like I can't reach my brain right now. Quick tip while you wait: break the problem into small steps and try each one in isolation. Ask me again in a moment and we'll go deep.",
			"Something went wrong on my side, so no full answer this time. Meanwhile, open the docs, build a tiny prototype, and come back with what you find. Let's keep shipping!",
		},
	},
}

// Templates is a read-only pool of canned messages per persona.
type Templates struct {
	pools map[string]map[Category][]string
	intn  func(n int) int
}

// DefaultTemplates returns the built-in pools with random selection.
func DefaultTemplates() *Templates {
	return NewTemplates(defaultPools, rand.IntN)
}

// NewTemplates builds a pool set. intn picks an index in [0, n).
func NewTemplates(pools map[string]map[Category][]string, intn func(n int) int) *Templates {
	if intn == nil {
		intn = rand.IntN
	}
	return &Templates{pools: pools, intn: intn}
}

// Pick returns one message of the given category for persona.
func (t *Templates) Pick(persona string, category Category) (string, error) {
	byCategory, ok := t.pools[persona]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownPersona, persona)
	}
	pool := byCategory[category]
	if len(pool) == 0 {
		return "", fmt.Errorf("no %s templates for persona %q", category, persona)
	}
	return pool[t.intn(len(pool))], nil
}

// Fallback returns a complete explanation-style message for persona. It never
// fails: an unknown persona gets a neutral message.
func (t *Templates) Fallback(persona string) string {
	msg, err := t.Pick(persona, CategoryExplanation)
	if err != nil {
		return "Sorry, I couldn't answer that right now. Please try again in a moment."
	}
	return msg
}
