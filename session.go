package main

import "sync"

const maxSessions = 100

// SessionManager is the arena of live GameSessions, keyed by UUID. Scheduled
// tasks and reconnecting clients reach a session only through a lookup here;
// a missing entry means the session is gone and the caller no-ops.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*GameSession
}

// NewSessionManager creates an empty manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{sessions: make(map[string]*GameSession)}
}

// Add registers a session and wires its teardown back to the registry.
// Returns false when the session limit is reached.
func (sm *SessionManager) Add(g *GameSession) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if len(sm.sessions) >= maxSessions {
		return false
	}
	g.onTeardown = func() { sm.Remove(g.ID) }
	sm.sessions[g.ID] = g
	return true
}

// Get returns a session by ID, nil when gone.
func (sm *SessionManager) Get(id string) *GameSession {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.sessions[id]
}

// Remove drops a session from the registry.
func (sm *SessionManager) Remove(id string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.sessions, id)
}

// Count returns the number of live sessions.
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}
