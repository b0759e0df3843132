// Package conversation holds a session's message log: a single system
// message derived from the active persona, followed by the turns in
// the order they happened.
package conversation

import (
	"sync"
	"time"

	"github.com/nugget/cinebot/internal/llm"
	"github.com/nugget/cinebot/internal/persona"
)

// DefaultWindow is the number of recent messages sent to the model
// alongside the system message.
const DefaultWindow = 10

// State is a conversation log. It is safe for concurrent use.
type State struct {
	mu        sync.RWMutex
	persona   persona.Persona
	messages  []llm.Message
	updatedAt time.Time
}

// New returns a conversation seeded with p's system message.
func New(p persona.Persona) *State {
	s := &State{}
	s.seed(p)
	return s
}

func (s *State) seed(p persona.Persona) {
	s.persona = p
	s.messages = []llm.Message{{Role: llm.RoleSystem, Content: p.SystemPrompt()}}
	s.updatedAt = time.Now()
}

// Append adds m to the end of the log. System messages are ignored; the
// log has exactly one and it is always first.
func (s *State) Append(m llm.Message) {
	if m.Role == llm.RoleSystem {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, m)
	s.updatedAt = time.Now()
}

// Messages returns a copy of the full log, system message first.
func (s *State) Messages() []llm.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]llm.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of messages including the system message.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Persona returns the active persona.
func (s *State) Persona() persona.Persona {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.persona
}

// UpdatedAt returns the time of the last change.
func (s *State) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}

// Reset truncates the log to the system message. The persona is kept.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = s.messages[:1:1]
	s.updatedAt = time.Now()
}

// ChangePersona discards the whole log and starts over with the system
// message of the persona called name. Unknown names select the default
// persona. It returns the persona now active.
func (s *State) ChangePersona(name string) persona.Persona {
	p := persona.Lookup(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seed(p)
	return p
}

// Window returns the system message followed by the k most recent
// messages. The cut is positional: a tool result can appear without the
// assistant message that requested it when that message falls outside
// the window.
func (s *State) Window(k int) []llm.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.messages[1:]
	if k < 0 {
		k = 0
	}
	if len(history) > k {
		history = history[len(history)-k:]
	}
	out := make([]llm.Message, 0, len(history)+1)
	out = append(out, s.messages[0])
	return append(out, history...)
}
