package usecase

import (
	"regexp"
	"sort"
	"strings"

	"github.com/cdco-dev/chantier-assistant/internal/core/domain"
)

// Boost shares: a classifier pattern hit in the title is worth two thirds of
// the configured maximum, a plain keyword hit one fifth. The total is capped
// at the maximum and the boosted similarity re-clamped to 1.0.
const (
	classifierBoostShare = 2.0 / 3.0
	keywordBoostShare    = 1.0 / 5.0
)

type titleKeyword struct {
	text       string
	classifier bool
}

// rerankByTitle boosts passages whose parent-document title matches keywords
// extracted from the original (pre-normalization) query, then re-sorts by
// boosted similarity. Sorting is stable so ties keep their fused order.
func rerankByTitle(lx *Lexicon, rawQuery string, passages []domain.Passage, classifiers []string, maxBoost float64) []domain.Passage {
	if len(passages) == 0 || maxBoost <= 0 {
		return passages
	}

	keywords := extractTitleKeywords(lx, rawQuery, classifiers)
	if len(keywords) == 0 {
		return passages
	}

	out := make([]domain.Passage, len(passages))
	copy(out, passages)

	for i := range out {
		title := foldAccents(strings.ToLower(out[i].Title))
		if title == "" {
			continue
		}
		boost := 0.0
		for _, kw := range keywords {
			if !strings.Contains(title, kw.text) {
				continue
			}
			if kw.classifier {
				boost += maxBoost * classifierBoostShare
			} else {
				boost += maxBoost * keywordBoostShare
			}
		}
		if boost > maxBoost {
			boost = maxBoost
		}
		if boost > 0 {
			out[i].Similarity += boost
			if out[i].Similarity > 1.0 {
				out[i].Similarity = 1.0
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Similarity > out[j].Similarity
	})
	return out
}

// classifierSuffix matches the token following a classifier stem: an
// alphanumeric designation or a roman numeral ("type D", "classe 2",
// "phase III").
var classifierSuffix = regexp.MustCompile(`^([a-z0-9]+|[ivxlcdm]+)$`)

// extractTitleKeywords pulls match candidates from the query: classifier
// stem + suffix pairs first, then remaining content words longer than three
// characters. Everything is accent-stripped and lower-cased so "catégorie"
// matches "categorie".
func extractTitleKeywords(lx *Lexicon, rawQuery string, classifiers []string) []titleKeyword {
	folded := foldAccents(strings.ToLower(rawQuery))
	tokens := strings.FieldsFunc(folded, func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})

	stems := make(map[string]struct{}, len(classifiers))
	for _, c := range classifiers {
		c = foldAccents(strings.ToLower(strings.TrimSpace(c)))
		if c != "" {
			stems[c] = struct{}{}
		}
	}

	keywords := make([]titleKeyword, 0, len(tokens))
	seen := make(map[string]struct{}, len(tokens))
	consumed := make(map[int]struct{}, len(tokens))

	for i, token := range tokens {
		if _, ok := stems[token]; !ok {
			continue
		}
		if i+1 >= len(tokens) {
			continue
		}
		suffix := tokens[i+1]
		if !classifierSuffix.MatchString(suffix) || len(suffix) > 8 {
			continue
		}
		kw := token + " " + suffix
		if _, dup := seen[kw]; dup {
			continue
		}
		seen[kw] = struct{}{}
		consumed[i] = struct{}{}
		consumed[i+1] = struct{}{}
		keywords = append(keywords, titleKeyword{text: kw, classifier: true})
	}

	for i, token := range tokens {
		if _, ok := consumed[i]; ok {
			continue
		}
		if len(token) <= 3 || lx.isStopword(token) || lx.isSemanticMarker(token) {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		keywords = append(keywords, titleKeyword{text: token})
	}

	return keywords
}

var accentFold = strings.NewReplacer(
	"à", "a", "â", "a", "ä", "a",
	"é", "e", "è", "e", "ê", "e", "ë", "e",
	"î", "i", "ï", "i",
	"ô", "o", "ö", "o",
	"ù", "u", "û", "u", "ü", "u",
	"ç", "c",
	"œ", "oe", "æ", "ae",
)

func foldAccents(s string) string {
	return accentFold.Replace(s)
}
