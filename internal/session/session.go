package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Turn roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Invocation is one capability invocation emitted by an assistant turn.
// Arguments are kept as the serialized text the model produced so history
// replays byte-for-byte.
type Invocation struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Turn is one logical history entry. Tool-role turns carry the
// InvocationID of the assistant invocation they resolve.
type Turn struct {
	Role           string       `json:"role"`
	Content        string       `json:"content,omitempty"`
	Invocations    []Invocation `json:"capability_invocations,omitempty"`
	InvocationID   string       `json:"invocation_id,omitempty"`
	CapabilityName string       `json:"capability_name,omitempty"`
}

// Session owns an append-only ordered turn history plus a free-form
// preference bag. One agent turn loop invocation processes a session at a
// time; Lock guards that single-writer assumption.
type Session struct {
	ID          string
	Preferences map[string]interface{}
	CreatedAt   time.Time
	UpdatedAt   time.Time

	mu    sync.Mutex
	turns []Turn
}

// New creates a session with a generated id
func New() *Session {
	return NewWithID(uuid.NewString())
}

// NewWithID creates a session with a caller-provided id
func NewWithID(id string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:          id,
		Preferences: make(map[string]interface{}),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Lock takes the single-writer turn lock
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the single-writer turn lock
func (s *Session) Unlock() { s.mu.Unlock() }

// Append adds a turn to the history. Turns are never mutated or removed
// once a user turn completes; ordering is the sole basis for prompt
// reconstruction. Callers must hold the session lock.
func (s *Session) Append(t Turn) {
	s.turns = append(s.turns, t)
	s.UpdatedAt = time.Now().UTC()
}

// History returns a copy of the turn history. Callers must hold the
// session lock.
func (s *Session) History() []Turn {
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Len reports the current history length, used as a rollback mark before
// a turn starts appending.
func (s *Session) Len() int {
	return len(s.turns)
}

// Rewind truncates history back to mark. Only error paths use this, so a
// turn that fails mid-append never leaves the session half-written.
func (s *Session) Rewind(mark int) {
	if mark < 0 || mark > len(s.turns) {
		return
	}
	s.turns = s.turns[:mark]
}

// CheckInvariant verifies the per-turn linkage rules over a completed
// history: every tool turn resolves exactly one invocation of the nearest
// preceding assistant turn, and no assistant turn follows while earlier
// invocations remain unresolved.
func (s *Session) CheckInvariant() error {
	pending := map[string]bool{}

	for i, t := range s.turns {
		switch t.Role {
		case RoleAssistant:
			if len(pending) > 0 {
				return fmt.Errorf("turn %d: assistant turn appended with %d unresolved invocations", i, len(pending))
			}
			for _, inv := range t.Invocations {
				if pending[inv.ID] {
					return fmt.Errorf("turn %d: duplicate invocation id %s", i, inv.ID)
				}
				pending[inv.ID] = true
			}
		case RoleTool:
			if t.InvocationID == "" {
				return fmt.Errorf("turn %d: tool turn without invocation id", i)
			}
			if !pending[t.InvocationID] {
				return fmt.Errorf("turn %d: tool turn resolves unknown invocation %s", i, t.InvocationID)
			}
			delete(pending, t.InvocationID)
		}
	}

	if len(pending) > 0 {
		return fmt.Errorf("history ends with %d unresolved invocations", len(pending))
	}
	return nil
}
