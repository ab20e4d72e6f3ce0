package ports

import (
	"context"
	"io"

	"github.com/cdco-dev/chantier-assistant/internal/core/domain"
)

// ChatService is the inbound contract for retrieval-augmented chat. Events
// are emitted in order; the stream always terminates with a "done" or
// "error" event even when the pipeline fails.
type ChatService interface {
	Stream(ctx context.Context, req domain.ChatRequest, emit func(domain.ChatEvent) error) error
}

// Retriever exposes the retrieval pipeline on its own, without generation.
type Retriever interface {
	Retrieve(ctx context.Context, rawQuery string, limit int) (*domain.Retrieval, error)
}

// DocumentIngestor accepts an uploaded source file and queues it for
// asynchronous processing.
type DocumentIngestor interface {
	Upload(ctx context.Context, filename, mimeType string, body io.Reader) (*domain.Document, error)
}

// DocumentProcessor runs extraction, chunking, embedding and indexing for a
// previously uploaded document.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}
