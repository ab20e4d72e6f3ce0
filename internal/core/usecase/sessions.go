package usecase

import (
	"log/slog"
	"sync"
	"time"

	"github.com/cdco-dev/chantier-assistant/internal/core/domain"
)

// SessionStore keeps per-session conversation history in memory. Entries
// expire passively: every write sweeps sessions older than the TTL, no
// background timer. A model switch clears the session's history because tool
// message formats are not portable across providers.
type SessionStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]*sessionEntry
	now     func() time.Time
}

type sessionEntry struct {
	messages []domain.ChatMessage
	model    string
	touched  time.Time
}

func NewSessionStore(ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &SessionStore{
		ttl:     ttl,
		entries: make(map[string]*sessionEntry),
		now:     time.Now,
	}
}

// History returns a copy of the stored messages for the session, empty when
// the session is unknown, expired, or was held under a different model.
func (s *SessionStore) History(sessionID, model string) []domain.ChatMessage {
	if sessionID == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[sessionID]
	if !ok {
		return nil
	}
	if s.now().Sub(entry.touched) > s.ttl {
		delete(s.entries, sessionID)
		return nil
	}
	if model != "" && entry.model != "" && entry.model != model {
		slog.Info("session_model_switch", "session_id", sessionID, "from", entry.model, "to", model)
		delete(s.entries, sessionID)
		return nil
	}

	out := make([]domain.ChatMessage, len(entry.messages))
	copy(out, entry.messages)
	return out
}

// Append records new turns for the session and sweeps expired sessions.
func (s *SessionStore) Append(sessionID, model string, messages ...domain.ChatMessage) {
	if sessionID == "" || len(messages) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked()

	entry, ok := s.entries[sessionID]
	if !ok {
		entry = &sessionEntry{}
		s.entries[sessionID] = entry
	}
	entry.messages = append(entry.messages, messages...)
	entry.model = model
	entry.touched = s.now()
}

func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *SessionStore) sweepLocked() {
	cutoff := s.now().Add(-s.ttl)
	expired := 0
	for id, entry := range s.entries {
		if entry.touched.Before(cutoff) {
			delete(s.entries, id)
			expired++
		}
	}
	if expired > 0 {
		slog.Info("sessions_expired", "count", expired)
	}
}
