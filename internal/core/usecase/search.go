package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cdco-dev/chantier-assistant/internal/core/domain"
	"github.com/cdco-dev/chantier-assistant/internal/core/ports"
)

// SearchParams are the tunable thresholds of the retrieval pipeline.
type SearchParams struct {
	DefaultLimit        int
	MaxLimit            int
	SimilarityThreshold float64
	OutOfScopeThreshold float64
	MaxPerDocument      int
	RRFK                int
	ExcludeBoilerplate  bool
	TOCLineFraction     float64

	RerankEnabled     bool
	RerankMaxBoost    float64
	RerankClassifiers []string
}

func (p SearchParams) normalize() SearchParams {
	if p.DefaultLimit <= 0 {
		p.DefaultLimit = 30
	}
	if p.MaxLimit <= 0 {
		p.MaxLimit = 100
	}
	if p.SimilarityThreshold <= 0 {
		p.SimilarityThreshold = 0.25
	}
	if p.OutOfScopeThreshold <= 0 {
		p.OutOfScopeThreshold = 0.40
	}
	if p.MaxPerDocument <= 0 {
		p.MaxPerDocument = 5
	}
	if p.RRFK <= 0 {
		p.RRFK = 50
	}
	if p.TOCLineFraction <= 0 {
		p.TOCLineFraction = domain.DefaultTOCLineFraction
	}
	if p.RerankMaxBoost <= 0 {
		p.RerankMaxBoost = 0.15
	}
	return p
}

// SearchUseCase is the hybrid retrieval pipeline: normalization, optional
// expansion, embedding, fused search with a single vector-only fallback,
// noise filtering, title re-ranking and the out-of-scope guard.
type SearchUseCase struct {
	lexicon  *Lexicon
	expander *QueryExpander
	embedder ports.Embedder
	store    ports.SearchStore
	params   SearchParams
}

func NewSearchUseCase(
	lexicon *Lexicon,
	expander *QueryExpander,
	embedder ports.Embedder,
	store ports.SearchStore,
	params SearchParams,
) *SearchUseCase {
	if lexicon == nil {
		lexicon = DefaultLexicon()
	}
	return &SearchUseCase{
		lexicon:  lexicon,
		expander: expander,
		embedder: embedder,
		store:    store,
		params:   params.normalize(),
	}
}

func (uc *SearchUseCase) Params() SearchParams {
	return uc.params
}

// Retrieve runs the full pipeline for one query. Semantic non-results come
// back as outcomes on the Retrieval, not as errors.
func (uc *SearchUseCase) Retrieve(ctx context.Context, rawQuery string, limit int) (*domain.Retrieval, error) {
	if strings.TrimSpace(rawQuery) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "retrieve", fmt.Errorf("query is empty"))
	}
	if limit <= 0 {
		limit = uc.params.DefaultLimit
	}
	if limit > uc.params.MaxLimit {
		limit = uc.params.MaxLimit
	}

	query := domain.Query{Raw: rawQuery, Limit: limit, Threshold: uc.params.SimilarityThreshold}
	query.Normalized = uc.lexicon.NormalizeQuery(query.Raw)
	if uc.expander != nil {
		query.Expanded = uc.expander.Expand(ctx, query.Normalized)
	}

	embedding, err := uc.embedder.EmbedQuery(ctx, query.EffectiveText())
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	passages, err := uc.search(ctx, query, embedding)
	if err != nil {
		return nil, err
	}

	slog.Info("retrieval_candidates",
		"query", query.Raw,
		"normalized", query.Normalized,
		"candidates", len(passages),
	)

	if len(passages) == 0 {
		return &domain.Retrieval{Outcome: domain.RetrievalNoResults}, nil
	}

	filtered, skipped := filterBoilerplate(passages, uc.params.TOCLineFraction)
	if skipped {
		slog.Warn("noise_filter_skipped", "query", query.Raw, "candidates", len(passages))
	}

	if uc.params.RerankEnabled {
		filtered = rerankByTitle(uc.lexicon, query.Raw, filtered, uc.params.RerankClassifiers, uc.params.RerankMaxBoost)
	}

	// The guard must see post-rerank scores: a boost can lift a borderline
	// passage above the out-of-scope threshold.
	retrieval := applyScopeGuard(filtered, uc.params.OutOfScopeThreshold)
	retrieval.NoiseFilterSkipped = skipped
	return retrieval, nil
}

// search runs the fused operation and falls back to vector-only search at
// most once. Both paths enforce the same similarity threshold store-side.
func (uc *SearchUseCase) search(ctx context.Context, query domain.Query, embedding []float32) ([]domain.Passage, error) {
	passages, err := uc.store.FusedSearch(ctx, ports.FusedSearchRequest{
		QueryText:           query.EffectiveText(),
		QueryEmbedding:      embedding,
		Limit:               query.Limit,
		SimilarityThreshold: query.Threshold,
		ExcludeBoilerplate:  uc.params.ExcludeBoilerplate,
		RRFK:                uc.params.RRFK,
		MaxPerDocument:      uc.params.MaxPerDocument,
	})
	if err == nil {
		return passages, nil
	}

	slog.Warn("fused_search_failed_falling_back", "error", err)
	passages, err = uc.store.VectorSearch(ctx, embedding, query.Limit, query.Threshold)
	if err != nil {
		return nil, fmt.Errorf("vector search fallback: %w", err)
	}
	return passages, nil
}

// applyScopeGuard decides whether the corpus can answer at all. Empty list
// means "no results"; a non-empty list whose best similarity sits strictly
// below the threshold means "out of scope".
func applyScopeGuard(passages []domain.Passage, outOfScopeThreshold float64) *domain.Retrieval {
	if len(passages) == 0 {
		return &domain.Retrieval{Outcome: domain.RetrievalNoResults}
	}

	maxSim := passages[0].Similarity
	for _, p := range passages[1:] {
		if p.Similarity > maxSim {
			maxSim = p.Similarity
		}
	}

	if maxSim < outOfScopeThreshold {
		return &domain.Retrieval{
			Outcome:       domain.RetrievalOutOfScope,
			MaxSimilarity: maxSim,
		}
	}
	return &domain.Retrieval{
		Outcome:       domain.RetrievalOK,
		Passages:      passages,
		MaxSimilarity: maxSim,
	}
}
