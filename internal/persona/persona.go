// Package persona defines the fixed set of conversational styles the
// assistant can adopt.
package persona

import (
	"errors"
	"fmt"

	"github.com/nugget/cinebot/internal/prompts"
)

// ErrUnknown is returned by Get for a name that is not a persona.
var ErrUnknown = errors.New("unknown persona")

// Persona is a named style directive.
type Persona struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Style       string `json:"-"`
}

// SystemPrompt returns the full system instruction for p.
func (p Persona) SystemPrompt() string {
	return prompts.PersonaSystemPrompt(p.Style)
}

const (
	CasualCinephile = "Casual Cinephile"
	FilmCritic      = "Film Critic"

	// Default is used when no persona, or an unknown one, is requested.
	Default = CasualCinephile
)

var personas = []Persona{
	{
		Name:        CasualCinephile,
		Description: "Relaxed, slangy and enthusiastic.",
		Style:       "Talk casually, like a friend who lives at the movies: relaxed, full of slang, and enthusiastic.",
	},
	{
		Name:        FilmCritic,
		Description: "Formal, elegant, poetic and analytical.",
		Style:       "Use formal, elegant language that is poetic and analytical, like a professional film critic.",
	},
}

// All returns every persona in display order.
func All() []Persona {
	out := make([]Persona, len(personas))
	copy(out, personas)
	return out
}

// Names returns the persona names in display order.
func Names() []string {
	names := make([]string, len(personas))
	for i, p := range personas {
		names[i] = p.Name
	}
	return names
}

// Get returns the persona called name.
func Get(name string) (Persona, error) {
	for _, p := range personas {
		if p.Name == name {
			return p, nil
		}
	}
	return Persona{}, fmt.Errorf("%w: %q", ErrUnknown, name)
}

// Lookup returns the persona called name, or the default persona when
// there is none.
func Lookup(name string) Persona {
	if p, err := Get(name); err == nil {
		return p
	}
	p, _ := Get(Default)
	return p
}
