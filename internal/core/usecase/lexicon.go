package usecase

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Lexicon holds the French linguistic rules driving query normalization and
// keyword extraction. Defaults cover the worksite-regulation corpus; an
// optional YAML file can override any list per deployment.
type Lexicon struct {
	// Stopwords are generic filler words safe to drop from queries.
	Stopwords []string `yaml:"stopwords"`
	// SemanticMarkers are kept even when they look like stopwords: they carry
	// scope or relationship meaning ("de", "tous", "sans").
	SemanticMarkers []string `yaml:"semantic_markers"`
	// QuestionPatterns are interrogative phrases stripped from queries,
	// matched longest-first.
	QuestionPatterns []string `yaml:"question_patterns"`
	// DanglingArticles are removed from the start of a query when pattern
	// stripping leaves them hanging.
	DanglingArticles []string `yaml:"dangling_articles"`

	stopwordSet map[string]struct{}
	markerSet   map[string]struct{}
}

func DefaultLexicon() *Lexicon {
	lx := &Lexicon{
		Stopwords: []string{
			"le", "la", "les", "un", "une",
			"je", "tu", "il", "elle", "nous", "vous", "ils", "elles",
			"ce", "cette", "ces", "se", "sa", "ses", "son", "leur",
			"est", "sont", "peut", "faut", "sera", "doit", "doivent",
			"quoi", "que", "qui", "quel", "quelle", "quels", "quelles",
			"et", "ou", "donc", "mais", "car", "si", "y", "en", "on",
		},
		SemanticMarkers: []string{
			"de", "du", "des", "d",
			"tous", "toutes", "tout", "toute",
			"plus", "moins", "maximum", "minimum",
			"ne", "pas", "sans",
		},
		QuestionPatterns: []string{
			"c'est quoi",
			"c est quoi",
			"qu'est-ce que c'est",
			"qu est ce que c est",
			"qu'est-ce que",
			"qu est ce que",
			"quelle est",
			"quel est",
			"quelles sont",
			"quels sont",
			"quelles",
			"quels",
			"comment est-ce que",
			"comment est ce que",
			"comment",
			"quand est-ce que",
			"quand est ce que",
			"quand",
			"où est-ce que",
			"où est ce que",
			"où",
			"combien de",
			"combien d",
			"combien",
			"pourquoi est-ce que",
			"pourquoi est ce que",
			"pourquoi",
			"est-ce que",
			"est ce que",
		},
		DanglingArticles: []string{"le", "la", "les", "l'", "un", "une", "d'"},
	}
	lx.compile()
	return lx
}

// LoadLexicon reads overrides from a YAML file; empty lists fall back to the
// defaults so a file can override just one rule set.
func LoadLexicon(path string) (*Lexicon, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lexicon file: %w", err)
	}

	var override Lexicon
	if err := yaml.Unmarshal(raw, &override); err != nil {
		return nil, fmt.Errorf("parse lexicon file %s: %w", path, err)
	}

	lx := DefaultLexicon()
	if len(override.Stopwords) > 0 {
		lx.Stopwords = override.Stopwords
	}
	if len(override.SemanticMarkers) > 0 {
		lx.SemanticMarkers = override.SemanticMarkers
	}
	if len(override.QuestionPatterns) > 0 {
		lx.QuestionPatterns = override.QuestionPatterns
	}
	if len(override.DanglingArticles) > 0 {
		lx.DanglingArticles = override.DanglingArticles
	}
	lx.compile()
	return lx, nil
}

func (lx *Lexicon) compile() {
	lx.stopwordSet = make(map[string]struct{}, len(lx.Stopwords))
	for _, w := range lx.Stopwords {
		lx.stopwordSet[strings.ToLower(w)] = struct{}{}
	}
	lx.markerSet = make(map[string]struct{}, len(lx.SemanticMarkers))
	for _, w := range lx.SemanticMarkers {
		lx.markerSet[strings.ToLower(w)] = struct{}{}
	}
	// Longest-first so "pourquoi est-ce que" wins over "pourquoi".
	sort.SliceStable(lx.QuestionPatterns, func(i, j int) bool {
		return len(lx.QuestionPatterns[i]) > len(lx.QuestionPatterns[j])
	})
}

func (lx *Lexicon) isStopword(token string) bool {
	_, ok := lx.stopwordSet[token]
	return ok
}

func (lx *Lexicon) isSemanticMarker(token string) bool {
	_, ok := lx.markerSet[token]
	return ok
}
