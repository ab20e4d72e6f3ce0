package usecase

import (
	"fmt"
	"strings"

	"github.com/cdco-dev/chantier-assistant/internal/core/domain"
)

const (
	noResultsMessage = "⚠️ HORS PÉRIMÈTRE: Aucune information pertinente trouvée dans la base de connaissances pour cette requête."

	outOfScopeMessageFmt = "⚠️ PERTINENCE FAIBLE: Les résultats trouvés ont une pertinence maximale de %d%%, ce qui suggère que cette question est probablement HORS DU PÉRIMÈTRE de la base de connaissances."

	// Below this similarity a source is flagged as low confidence in the
	// context shown to the model.
	lowConfidenceSimilarity = 0.60
)

// FormatForModel renders a retrieval as the numbered source blocks handed to
// the language model. Indices are 1-based and define the citation space the
// model may reference. Non-result outcomes render as refusal instructions.
func FormatForModel(retrieval *domain.Retrieval) string {
	switch retrieval.Outcome {
	case domain.RetrievalNoResults:
		return noResultsMessage
	case domain.RetrievalOutOfScope:
		return fmt.Sprintf(outOfScopeMessageFmt, int(retrieval.MaxSimilarity*100))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Trouvé %d résultats pertinents (triés par pertinence):\n\n", len(retrieval.Passages))

	for i, p := range retrieval.Passages {
		marker := ""
		if p.Similarity < lowConfidenceSimilarity {
			marker = " - FAIBLE"
		}
		fmt.Fprintf(&b, "[%d] Source: %q (Pertinence: %d%%%s)\n%s\n", i+1, p.Title, int(p.Similarity*100), marker, p.Content)
		if i < len(retrieval.Passages)-1 {
			b.WriteString("\n---\n")
		}
	}
	return b.String()
}

// DescribeSources builds the outward-facing source list in presentation
// order, so a citation index [n] maps to entry n-1.
func DescribeSources(retrieval *domain.Retrieval, includeContent bool) []domain.SourceDescriptor {
	if retrieval == nil || len(retrieval.Passages) == 0 {
		return nil
	}
	out := make([]domain.SourceDescriptor, 0, len(retrieval.Passages))
	for _, p := range retrieval.Passages {
		out = append(out, p.Describe(includeContent))
	}
	return out
}
