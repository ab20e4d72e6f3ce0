package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cdco-dev/chantier-assistant/internal/core/domain"
)

type promptLLM struct {
	reply string
	err   error
	calls int
	got   string
}

func (p *promptLLM) RunPrompt(ctx context.Context, model, prompt string) (string, error) {
	p.calls++
	p.got = prompt
	return p.reply, p.err
}

func (p *promptLLM) StreamChat(ctx context.Context, messages []domain.ChatMessage, tools []domain.ToolSpec, onToken func(string) error) (*domain.ChatTurn, error) {
	return nil, errors.New("not implemented")
}

func TestQueryExpanderDisabledMakesNoCalls(t *testing.T) {
	llm := &promptLLM{reply: "should not be used"}
	e := NewQueryExpander(false, llm, "gpt-4o-mini", "")

	got := e.Expand(context.Background(), "chantier de type d")
	if got != "chantier de type d" {
		t.Fatalf("disabled expander changed the query: %q", got)
	}
	if llm.calls != 0 {
		t.Fatalf("disabled expander made %d LLM calls", llm.calls)
	}
}

func TestQueryExpanderAppendsExpansion(t *testing.T) {
	llm := &promptLLM{reply: "  travaux voirie catégorie D\n"}
	e := NewQueryExpander(true, llm, "gpt-4o-mini", "")

	got := e.Expand(context.Background(), "chantier de type d")
	want := "chantier de type d travaux voirie catégorie D"
	if got != want {
		t.Fatalf("Expand = %q, want %q", got, want)
	}
	if llm.calls != 1 {
		t.Fatalf("expected one LLM call, got %d", llm.calls)
	}
	if !strings.Contains(llm.got, "chantier de type d") {
		t.Fatalf("prompt does not embed the query: %q", llm.got)
	}
}

func TestQueryExpanderFailureIsNonFatal(t *testing.T) {
	llm := &promptLLM{err: errors.New("upstream down")}
	e := NewQueryExpander(true, llm, "gpt-4o-mini", "")

	got := e.Expand(context.Background(), "chantier de type d")
	if got != "chantier de type d" {
		t.Fatalf("failed expansion changed the query: %q", got)
	}
}

func TestQueryExpanderEmptyReplyIsIgnored(t *testing.T) {
	llm := &promptLLM{reply: "   \n  "}
	e := NewQueryExpander(true, llm, "gpt-4o-mini", "")

	if got := e.Expand(context.Background(), "signalisation"); got != "signalisation" {
		t.Fatalf("empty expansion changed the query: %q", got)
	}
}
