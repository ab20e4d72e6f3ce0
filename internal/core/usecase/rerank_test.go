package usecase

import (
	"math"
	"testing"

	"github.com/cdco-dev/chantier-assistant/internal/core/domain"
)

var rerankClassifiers = []string{"type", "classe", "categorie", "niveau", "phase", "etape", "version"}

func TestRerankByTitleClassifierBoost(t *testing.T) {
	passages := []domain.Passage{
		{ChunkID: "general", Title: "Dispositions générales", Similarity: 0.50},
		{ChunkID: "typed", Title: "Chantiers de type D", Similarity: 0.45},
	}

	out := rerankByTitle(DefaultLexicon(), "C'est quoi un chantier de type D ?", passages, rerankClassifiers, 0.15)

	if out[0].ChunkID != "typed" {
		t.Fatalf("boosted passage not first: %q", out[0].ChunkID)
	}
	// "type d" classifier hit (2/3 of max) plus "chantier" keyword hit (1/5).
	want := 0.45 + 0.15*classifierBoostShare + 0.15*keywordBoostShare
	if math.Abs(out[0].Similarity-want) > 1e-9 {
		t.Fatalf("boosted similarity = %v, want %v", out[0].Similarity, want)
	}
	if out[1].Similarity != 0.50 {
		t.Fatalf("unboosted passage changed: %v", out[1].Similarity)
	}
}

func TestRerankByTitleAccentInsensitive(t *testing.T) {
	passages := []domain.Passage{
		{ChunkID: "a", Title: "Catégorie 2 - Interventions urgentes", Similarity: 0.40},
		{ChunkID: "b", Title: "Redevances", Similarity: 0.42},
	}

	out := rerankByTitle(DefaultLexicon(), "redevance pour un chantier de categorie 2", passages, rerankClassifiers, 0.15)
	if out[0].ChunkID != "a" {
		t.Fatalf("accent-folded classifier match did not boost: first is %q", out[0].ChunkID)
	}
}

func TestRerankByTitleBoostCapAndClamp(t *testing.T) {
	// Title matching a classifier pair and several keywords: the sum would
	// exceed the cap, and the capped boost would push similarity past 1.0.
	passages := []domain.Passage{
		{ChunkID: "a", Title: "Chantiers de type D signalisation trottoir", Similarity: 0.95},
	}

	out := rerankByTitle(DefaultLexicon(), "signalisation du trottoir pour chantier de type d", passages, rerankClassifiers, 0.15)
	if out[0].Similarity != 1.0 {
		t.Fatalf("similarity = %v, want clamped 1.0", out[0].Similarity)
	}
}

func TestRerankByTitleStableOnTies(t *testing.T) {
	passages := []domain.Passage{
		{ChunkID: "first", Title: "Annexe 1", Similarity: 0.5},
		{ChunkID: "second", Title: "Annexe 2", Similarity: 0.5},
		{ChunkID: "third", Title: "Annexe 3", Similarity: 0.5},
	}

	out := rerankByTitle(DefaultLexicon(), "question sans rapport", passages, rerankClassifiers, 0.15)
	for i, id := range []string{"first", "second", "third"} {
		if out[i].ChunkID != id {
			t.Fatalf("tie order broken at %d: got %q", i, out[i].ChunkID)
		}
	}
}

func TestRerankByTitleDoesNotMutateInput(t *testing.T) {
	passages := []domain.Passage{
		{ChunkID: "a", Title: "Chantiers de type D", Similarity: 0.45},
	}
	_ = rerankByTitle(DefaultLexicon(), "chantier de type d", passages, rerankClassifiers, 0.15)
	if passages[0].Similarity != 0.45 {
		t.Fatalf("input slice mutated: %v", passages[0].Similarity)
	}
}

func TestExtractTitleKeywords(t *testing.T) {
	keywords := extractTitleKeywords(DefaultLexicon(), "C'est quoi un chantier de type D ?", rerankClassifiers)

	var classifier, plain []string
	for _, kw := range keywords {
		if kw.classifier {
			classifier = append(classifier, kw.text)
		} else {
			plain = append(plain, kw.text)
		}
	}

	if len(classifier) != 1 || classifier[0] != "type d" {
		t.Fatalf("classifier keywords = %v, want [type d]", classifier)
	}
	if len(plain) != 1 || plain[0] != "chantier" {
		t.Fatalf("plain keywords = %v, want [chantier]", plain)
	}
}

func TestExtractTitleKeywordsRomanNumeralSuffix(t *testing.T) {
	keywords := extractTitleKeywords(DefaultLexicon(), "obligations en phase III", rerankClassifiers)
	found := false
	for _, kw := range keywords {
		if kw.classifier && kw.text == "phase iii" {
			found = true
		}
	}
	if !found {
		t.Fatalf("roman numeral classifier pair missing: %v", keywords)
	}
}

func TestExtractTitleKeywordsHonorsLexiconOverrides(t *testing.T) {
	// A deployment can declare domain terms as stopwords; keyword extraction
	// must follow the configured lexicon, not the built-in defaults.
	override := &Lexicon{Stopwords: []string{"signalisation"}}
	override.compile()

	keywords := extractTitleKeywords(override, "signalisation du trottoir", rerankClassifiers)
	for _, kw := range keywords {
		if kw.text == "signalisation" {
			t.Fatalf("overridden stopword extracted as keyword: %v", keywords)
		}
	}

	defaults := extractTitleKeywords(DefaultLexicon(), "signalisation du trottoir", rerankClassifiers)
	found := false
	for _, kw := range defaults {
		if kw.text == "signalisation" {
			found = true
		}
	}
	if !found {
		t.Fatalf("default lexicon should keep the keyword: %v", defaults)
	}
}
