package usecase

import (
	"testing"
	"time"

	"github.com/cdco-dev/chantier-assistant/internal/core/domain"
)

func userMsg(s string) domain.ChatMessage {
	return domain.ChatMessage{Role: "user", Content: s}
}

func TestSessionStoreRoundTrip(t *testing.T) {
	s := NewSessionStore(time.Hour)

	if got := s.History("s1", "gpt-4o"); len(got) != 0 {
		t.Fatalf("unknown session returned history: %v", got)
	}

	s.Append("s1", "gpt-4o", userMsg("bonjour"), domain.ChatMessage{Role: "assistant", Content: "salut"})
	got := s.History("s1", "gpt-4o")
	if len(got) != 2 || got[0].Content != "bonjour" {
		t.Fatalf("history = %+v", got)
	}

	// The returned slice is a copy.
	got[0].Content = "mutated"
	if again := s.History("s1", "gpt-4o"); again[0].Content != "bonjour" {
		t.Fatal("history escaped the store")
	}
}

func TestSessionStoreModelSwitchClearsHistory(t *testing.T) {
	s := NewSessionStore(time.Hour)
	s.Append("s1", "gpt-4o", userMsg("bonjour"))

	if got := s.History("s1", "mistral-large"); got != nil {
		t.Fatalf("model switch kept history: %v", got)
	}
	if got := s.History("s1", "gpt-4o"); got != nil {
		t.Fatal("session should have been dropped on model switch")
	}
}

func TestSessionStoreExpiry(t *testing.T) {
	s := NewSessionStore(time.Hour)
	current := time.Unix(1700000000, 0)
	s.now = func() time.Time { return current }

	s.Append("old", "gpt-4o", userMsg("a"))
	current = current.Add(30 * time.Minute)
	s.Append("fresh", "gpt-4o", userMsg("b"))

	// Reading an expired session drops it.
	current = current.Add(45 * time.Minute)
	if got := s.History("old", "gpt-4o"); got != nil {
		t.Fatalf("expired session returned history: %v", got)
	}
	if got := s.History("fresh", "gpt-4o"); len(got) != 1 {
		t.Fatalf("fresh session lost: %v", got)
	}

	// Writes sweep everything stale.
	current = current.Add(2 * time.Hour)
	s.Append("new", "gpt-4o", userMsg("c"))
	if s.Len() != 1 {
		t.Fatalf("sweep left %d sessions, want 1", s.Len())
	}
}

func TestSessionStoreIgnoresEmptySessionID(t *testing.T) {
	s := NewSessionStore(time.Hour)
	s.Append("", "gpt-4o", userMsg("a"))
	if s.Len() != 0 {
		t.Fatal("empty session id was stored")
	}
}
