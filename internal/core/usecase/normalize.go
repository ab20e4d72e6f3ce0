package usecase

import "strings"

// NormalizeQuery strips interrogative scaffolding from a French question
// while keeping the tokens that carry scope or relationship meaning. Pure
// and deterministic; never returns an empty string.
func (lx *Lexicon) NormalizeQuery(raw string) string {
	q := strings.ToLower(strings.TrimSpace(raw))
	q = strings.TrimRight(q, " \t?!.;:")
	if q == "" {
		return raw
	}

	for _, pattern := range lx.QuestionPatterns {
		idx := strings.Index(q, pattern)
		if idx < 0 {
			continue
		}
		// Remove only whole-phrase occurrences, not substrings of words.
		if !isBoundary(q, idx, len(pattern)) {
			continue
		}
		q = strings.TrimSpace(q[:idx] + " " + q[idx+len(pattern):])
		q = lx.trimDanglingArticles(q)
	}

	tokens := strings.Fields(q)
	kept := make([]string, 0, len(tokens))
	for _, token := range tokens {
		bare := strings.Trim(token, "'’")
		if bare == "" {
			continue
		}
		if lx.isSemanticMarker(bare) {
			kept = append(kept, token)
			continue
		}
		if lx.isStopword(bare) {
			continue
		}
		kept = append(kept, token)
	}

	normalized := strings.Join(kept, " ")
	if strings.TrimSpace(normalized) == "" {
		// Stripping removed everything; the original query is better than
		// nothing for the lexical side of the search.
		return strings.TrimSpace(raw)
	}
	return normalized
}

func (lx *Lexicon) trimDanglingArticles(q string) string {
	for changed := true; changed; {
		changed = false
		for _, article := range lx.DanglingArticles {
			if strings.HasSuffix(article, "'") {
				if strings.HasPrefix(q, article) {
					q = strings.TrimSpace(q[len(article):])
					changed = true
				}
				continue
			}
			if strings.HasPrefix(q, article+" ") {
				q = strings.TrimSpace(q[len(article)+1:])
				changed = true
			}
		}
	}
	return q
}

// isBoundary reports whether q[idx:idx+n] sits on word boundaries.
func isBoundary(q string, idx, n int) bool {
	if idx > 0 {
		prev := q[idx-1]
		if prev != ' ' && prev != '\t' {
			return false
		}
	}
	end := idx + n
	if end < len(q) {
		next := q[end]
		if next != ' ' && next != '\t' && next != '\'' {
			return false
		}
	}
	return true
}
