package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/cdco-dev/chantier-assistant/internal/core/domain"
	"github.com/cdco-dev/chantier-assistant/internal/core/ports"
)

// Store memoizes fused search results for a short window. Identical queries
// arriving in bursts (retries, multi-tab users) skip the embedding round trip
// already, so the cache only needs to absorb the store-side ranking cost.
// Entries are copied on the way out; callers may mutate their slice freely.
type Store struct {
	next ports.SearchStore
	ttl  time.Duration
	mem  *gocache.Cache
}

func New(next ports.SearchStore, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Store{
		next: next,
		ttl:  ttl,
		mem:  gocache.New(ttl, 5*time.Minute),
	}
}

func (s *Store) FusedSearch(ctx context.Context, req ports.FusedSearchRequest) ([]domain.Passage, error) {
	key := fusedKey(req)
	if cached, ok := s.mem.Get(key); ok {
		return copyPassages(cached.([]domain.Passage)), nil
	}

	passages, err := s.next.FusedSearch(ctx, req)
	if err != nil {
		return nil, err
	}
	s.mem.Set(key, copyPassages(passages), s.ttl)
	return passages, nil
}

// VectorSearch is the degraded path; caching it would mask store recovery.
func (s *Store) VectorSearch(ctx context.Context, embedding []float32, limit int, threshold float64) ([]domain.Passage, error) {
	return s.next.VectorSearch(ctx, embedding, limit, threshold)
}

// Flush drops all cached results. Indexing runs in the worker process, which
// holds no cache, so nothing calls this on (re)indexing; staleness in the API
// process is bounded by the entry TTL. Exposed for operational use.
func (s *Store) Flush() {
	s.mem.Flush()
}

func fusedKey(req ports.FusedSearchRequest) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%g|%t|%d|%d|", req.QueryText, req.Limit,
		req.SimilarityThreshold, req.ExcludeBoilerplate, req.RRFK, req.MaxPerDocument)
	for _, x := range req.QueryEmbedding {
		fmt.Fprintf(h, "%g,", x)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func copyPassages(in []domain.Passage) []domain.Passage {
	out := make([]domain.Passage, len(in))
	copy(out, in)
	return out
}
