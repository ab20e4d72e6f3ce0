package usecase

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/cdco-dev/chantier-assistant/internal/core/ports"
)

// defaultExpansionPrompt asks for a one-line synonym enrichment. %s is the
// query.
const defaultExpansionPrompt = `Tu es un assistant de reformulation de requêtes pour la recherche documentaire.

Reformule la question suivante en ajoutant des synonymes pertinents et des termes techniques.
Garde la reformulation concise (40 mots maximum) sur une seule ligne.
N'ajoute ni point d'interrogation ni mise en forme.

Question : %s

Reformulation enrichie :`

// QueryExpander asks the language model for domain synonyms and appends them
// to the normalized query. When disabled it is a strict pass-through with
// zero external calls. Expansion failures never propagate: the pipeline
// continues with the unexpanded query.
type QueryExpander struct {
	enabled    bool
	llm        ports.LLMClient
	model      string
	promptFile string

	promptOnce sync.Once
	prompt     string
}

func NewQueryExpander(enabled bool, llm ports.LLMClient, model, promptFile string) *QueryExpander {
	return &QueryExpander{
		enabled:    enabled,
		llm:        llm,
		model:      model,
		promptFile: promptFile,
	}
}

func (e *QueryExpander) Expand(ctx context.Context, query string) string {
	if !e.enabled || e.llm == nil {
		return query
	}

	prompt := strings.Replace(e.promptTemplate(), "%s", query, 1)
	expansion, err := e.llm.RunPrompt(ctx, e.model, prompt)
	if err != nil {
		slog.Warn("query_expansion_failed", "error", err)
		return query
	}

	expansion = strings.TrimSpace(strings.ReplaceAll(expansion, "\n", " "))
	if expansion == "" {
		return query
	}
	return query + " " + expansion
}

// promptTemplate loads the configured prompt file once, falling back to the
// built-in default when the file is absent or unreadable.
func (e *QueryExpander) promptTemplate() string {
	e.promptOnce.Do(func() {
		e.prompt = defaultExpansionPrompt
		if e.promptFile == "" {
			return
		}
		raw, err := os.ReadFile(e.promptFile)
		if err != nil {
			slog.Warn("expansion_prompt_file_unreadable", "path", e.promptFile, "error", err)
			return
		}
		if custom := strings.TrimSpace(string(raw)); strings.Contains(custom, "%s") {
			e.prompt = custom
		}
	})
	return e.prompt
}
