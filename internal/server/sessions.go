package server

import (
	"sync"

	"github.com/pitwall-ai/pitwall"
)

// historyLimit bounds how many messages a session carries into a turn.
// Older exchanges matter less than the facts memory keeps about them.
const historyLimit = 20

// sessionStore keeps per-session conversation history in memory. History
// is transport-level state; durable facts live in the memory store.
type sessionStore struct {
	mu       sync.RWMutex
	sessions map[string][]pitwall.Message
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: make(map[string][]pitwall.Message)}
}

// conversation builds the conversation context for a session.
func (s *sessionStore) conversation(sessionID string) pitwall.ConversationContext {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.sessions[sessionID]
	copied := make([]pitwall.Message, len(history))
	copy(copied, history)

	return pitwall.ConversationContext{
		SessionID: sessionID,
		SubjectID: sessionID,
		History:   copied,
	}
}

// append records one completed exchange.
func (s *sessionStore) append(sessionID, question, answer string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := append(s.sessions[sessionID],
		pitwall.Message{Role: "user", Content: question},
		pitwall.Message{Role: "assistant", Content: answer},
	)
	if len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}
	s.sessions[sessionID] = history
}
