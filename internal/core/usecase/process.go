package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cdco-dev/chantier-assistant/internal/core/domain"
	"github.com/cdco-dev/chantier-assistant/internal/core/ports"
)

// ProcessMonitor receives ingestion progress signals. The worker binary puts
// its Prometheus counters behind it; a nil monitor disables reporting.
type ProcessMonitor interface {
	AddChunksIndexed(n int)
	RecordEmbedDegraded()
}

// ProcessParams tune the worker side of ingestion.
type ProcessParams struct {
	EmbedBatchSize int
	// Pause between embedding batches, to stay under provider rate limits.
	BatchPause time.Duration
	Monitor    ProcessMonitor
}

func (p ProcessParams) normalize() ProcessParams {
	if p.EmbedBatchSize <= 0 {
		p.EmbedBatchSize = 64
	}
	return p
}

// ProcessUseCase runs the ingestion pipeline for one uploaded document:
// extraction, chunking with boilerplate marking, embedding and indexing.
// Progress is tracked through the document status so a crashed run is visible
// as "processing" and a failed one carries its error message.
type ProcessUseCase struct {
	store     ports.DocumentStore
	extractor ports.TextExtractor
	chunker   ports.Chunker
	embedder  ports.Embedder
	params    ProcessParams
}

func NewProcessUseCase(
	store ports.DocumentStore,
	extractor ports.TextExtractor,
	chunker ports.Chunker,
	embedder ports.Embedder,
	params ProcessParams,
) *ProcessUseCase {
	return &ProcessUseCase{
		store:     store,
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		params:    params.normalize(),
	}
}

// ProcessByID moves a document from "uploaded" to "ready", or to "failed"
// with the cause recorded. Re-processing a ready document re-indexes it.
func (uc *ProcessUseCase) ProcessByID(ctx context.Context, documentID string) error {
	doc, err := uc.store.GetDocument(ctx, documentID)
	if err != nil {
		return fmt.Errorf("load document %s: %w", documentID, err)
	}

	if err := uc.store.UpdateDocumentStatus(ctx, doc.ID, domain.StatusProcessing, ""); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	if err := uc.process(ctx, doc); err != nil {
		if statusErr := uc.store.UpdateDocumentStatus(ctx, doc.ID, domain.StatusFailed, err.Error()); statusErr != nil {
			slog.Error("mark_failed_failed", "document_id", doc.ID, "error", statusErr)
		}
		return fmt.Errorf("process document %s: %w", doc.ID, err)
	}

	if err := uc.store.UpdateDocumentStatus(ctx, doc.ID, domain.StatusReady, ""); err != nil {
		return fmt.Errorf("mark ready: %w", err)
	}
	return nil
}

func (uc *ProcessUseCase) process(ctx context.Context, doc *domain.Document) error {
	start := time.Now()

	pages, err := uc.extractor.Extract(ctx, doc.Path, doc.MimeType)
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	if len(pages) == 0 {
		return errors.New("extract: no text content")
	}

	chunks := uc.chunker.Split(pages)
	if len(chunks) == 0 {
		return errors.New("split: no chunks produced")
	}

	tocChunks := 0
	for _, c := range chunks {
		if c.IsTOC {
			tocChunks++
		}
	}

	vectors, err := uc.embedChunks(ctx, chunks)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}

	if err := uc.store.InsertChunks(ctx, doc, chunks, vectors); err != nil {
		return fmt.Errorf("index: %w", err)
	}
	if uc.params.Monitor != nil {
		uc.params.Monitor.AddChunksIndexed(len(chunks))
	}

	slog.Info("document_processed",
		"document_id", doc.ID,
		"source", doc.Source,
		"pages", len(pages),
		"chunks", len(chunks),
		"toc_chunks", tocChunks,
		"duration", time.Since(start),
	)
	return nil
}

// embedChunks embeds in batches. A batch that fails with a rate-limit error
// degrades to one-at-a-time embedding for that batch instead of failing the
// whole document.
func (uc *ProcessUseCase) embedChunks(ctx context.Context, chunks []domain.Chunk) ([][]float32, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	vectors := make([][]float32, 0, len(texts))
	for offset := 0; offset < len(texts); offset += uc.params.EmbedBatchSize {
		end := offset + uc.params.EmbedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[offset:end]

		batchVectors, err := uc.embedder.Embed(ctx, batch)
		if err != nil {
			if !domain.IsKind(err, domain.ErrRateLimited) {
				return nil, err
			}
			slog.Warn("embed_batch_rate_limited_degrading",
				"offset", offset,
				"size", len(batch),
			)
			if uc.params.Monitor != nil {
				uc.params.Monitor.RecordEmbedDegraded()
			}
			batchVectors, err = uc.embedOneByOne(ctx, batch)
			if err != nil {
				return nil, err
			}
		}
		if len(batchVectors) != len(batch) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(batchVectors), len(batch))
		}
		vectors = append(vectors, batchVectors...)

		if uc.params.BatchPause > 0 && end < len(texts) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(uc.params.BatchPause):
			}
		}
	}
	return vectors, nil
}

func (uc *ProcessUseCase) embedOneByOne(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for i, text := range texts {
		vec, err := uc.embedder.EmbedQuery(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed item %d: %w", i, err)
		}
		vectors = append(vectors, vec)
	}
	return vectors, nil
}
