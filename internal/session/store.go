package session

import (
	"sync"
)

// Store is an in-memory session store. Sessions live for the process
// lifetime; no persistence guarantees.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
	}
}

// Create allocates a new session and registers it
func (st *Store) Create() *Session {
	s := New()
	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()
	return s
}

// Get returns the session for id, or nil when unknown
func (st *Store) Get(id string) *Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.sessions[id]
}

// GetOrCreate returns the session for id, creating it on first contact
func (st *Store) GetOrCreate(id string) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	if s, ok := st.sessions[id]; ok {
		return s
	}
	s := NewWithID(id)
	st.sessions[id] = s
	return s
}

// Delete evicts a session
func (st *Store) Delete(id string) {
	st.mu.Lock()
	delete(st.sessions, id)
	st.mu.Unlock()
}
