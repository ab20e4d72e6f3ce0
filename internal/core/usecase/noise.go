package usecase

import (
	"github.com/cdco-dev/chantier-assistant/internal/core/domain"
)

// filterBoilerplate removes residual table-of-contents passages the store's
// label-based exclusion missed. The upstream label short-circuits; otherwise
// the shared textual heuristics decide. Removal never empties a non-empty
// list: when every passage looks like boilerplate the original list is kept
// and skipped=true tells the caller filtering was abandoned.
func filterBoilerplate(passages []domain.Passage, lineFraction float64) (kept []domain.Passage, skipped bool) {
	if len(passages) == 0 {
		return passages, false
	}

	kept = make([]domain.Passage, 0, len(passages))
	for _, p := range passages {
		if isBoilerplatePassage(p, lineFraction) {
			continue
		}
		kept = append(kept, p)
	}

	if len(kept) == 0 {
		// Never return zero context if context exists.
		return passages, true
	}
	return kept, false
}

func isBoilerplatePassage(p domain.Passage, lineFraction float64) bool {
	if p.Boilerplate {
		return true
	}
	return domain.LooksLikeTOC(p.Content, lineFraction)
}
