package ports

import (
	"context"

	"github.com/cdco-dev/chantier-assistant/internal/core/domain"
)

// Embedder builds vectors for chunk batches and single query strings.
// Implementations retry rate-limited calls internally; a batch that still
// fails surfaces an error classified with domain.ErrRateLimited when
// appropriate so callers can fall back to one-at-a-time processing.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// FusedSearchRequest carries the full contract of the store's fused-ranking
// operation: RRF over the semantic and lexical rankings, boilerplate
// exclusion and the per-document diversity cap all execute store-side.
type FusedSearchRequest struct {
	QueryText           string
	QueryEmbedding      []float32
	Limit               int
	SimilarityThreshold float64
	ExcludeBoilerplate  bool
	RRFK                int
	MaxPerDocument      int
}

// SearchStore is the black-box search service. Both operations guarantee no
// returned passage has similarity below the requested threshold.
type SearchStore interface {
	FusedSearch(ctx context.Context, req FusedSearchRequest) ([]domain.Passage, error)
	VectorSearch(ctx context.Context, embedding []float32, limit int, threshold float64) ([]domain.Passage, error)
}

// DocumentStore persists document and chunk state in the knowledge base.
type DocumentStore interface {
	InsertDocument(ctx context.Context, doc *domain.Document) error
	GetDocument(ctx context.Context, id string) (*domain.Document, error)
	UpdateDocumentStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	InsertChunks(ctx context.Context, doc *domain.Document, chunks []domain.Chunk, vectors [][]float32) error
	Counts(ctx context.Context) (documents int, chunks int, err error)
}

// LLMClient is the language-model collaborator. StreamChat delivers tokens
// through onToken as they arrive; the returned turn is complete only after
// streaming finishes. RunPrompt is the short non-streaming call used by
// query expansion.
type LLMClient interface {
	StreamChat(ctx context.Context, messages []domain.ChatMessage, tools []domain.ToolSpec, onToken func(token string) error) (*domain.ChatTurn, error)
	RunPrompt(ctx context.Context, model, prompt string) (string, error)
}

// MessageQueue publishes and consumes document-ingested events.
type MessageQueue interface {
	PublishDocumentIngested(ctx context.Context, documentID string) error
	SubscribeDocumentIngested(ctx context.Context, handler func(context.Context, string) error) error
}

// TextExtractor turns a stored source file into per-page text.
type TextExtractor interface {
	Extract(ctx context.Context, path, mimeType string) ([]domain.PageText, error)
}

// Chunker splits extracted pages into indexable chunks, marking boilerplate.
type Chunker interface {
	Split(pages []domain.PageText) []domain.Chunk
}

// WeatherProvider answers the auxiliary geo/weather tool calls.
type WeatherProvider interface {
	CurrentWeather(ctx context.Context, location string) (string, error)
}
