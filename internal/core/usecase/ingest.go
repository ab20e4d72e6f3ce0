package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cdco-dev/chantier-assistant/internal/core/domain"
	"github.com/cdco-dev/chantier-assistant/internal/core/ports"
)

// IngestUseCase accepts uploaded source files, persists them and queues the
// heavy processing for the worker. Upload stays cheap: the file is written to
// the upload directory, the document row is created in the "uploaded" state
// and an ingestion event is published.
type IngestUseCase struct {
	store     ports.DocumentStore
	queue     ports.MessageQueue
	uploadDir string
	maxBytes  int64
}

func NewIngestUseCase(store ports.DocumentStore, queue ports.MessageQueue, uploadDir string, maxBytes int64) *IngestUseCase {
	if uploadDir == "" {
		uploadDir = "uploads"
	}
	if maxBytes <= 0 {
		maxBytes = 50 << 20
	}
	return &IngestUseCase{
		store:     store,
		queue:     queue,
		uploadDir: uploadDir,
		maxBytes:  maxBytes,
	}
}

var allowedExtensions = map[string]struct{}{
	".pdf":  {},
	".xlsx": {},
	".txt":  {},
	".md":   {},
}

// Upload stores the file, records the document and publishes the ingestion
// event. The returned document is in the "uploaded" state; processing happens
// asynchronously.
func (uc *IngestUseCase) Upload(ctx context.Context, filename, mimeType string, body io.Reader) (*domain.Document, error) {
	const op = "document upload"

	base := filepath.Base(strings.TrimSpace(filename))
	if base == "" || base == "." {
		return nil, domain.WrapError(domain.ErrInvalidInput, op, fmt.Errorf("filename is required"))
	}
	ext := strings.ToLower(filepath.Ext(base))
	if _, ok := allowedExtensions[ext]; !ok {
		return nil, domain.WrapError(domain.ErrInvalidInput, op, fmt.Errorf("unsupported file type %q", ext))
	}

	if err := os.MkdirAll(uc.uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("%s: create upload dir: %w", op, err)
	}

	id := uuid.NewString()
	path := filepath.Join(uc.uploadDir, id+ext)

	written, err := uc.writeFile(path, body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if written == 0 {
		_ = os.Remove(path)
		return nil, domain.WrapError(domain.ErrInvalidInput, op, fmt.Errorf("file is empty"))
	}

	now := time.Now().UTC()
	doc := &domain.Document{
		ID:        id,
		Title:     strings.TrimSuffix(base, ext),
		Source:    base,
		MimeType:  mimeType,
		Path:      path,
		Status:    domain.StatusUploaded,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := uc.store.InsertDocument(ctx, doc); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("%s: insert document: %w", op, err)
	}

	if err := uc.queue.PublishDocumentIngested(ctx, doc.ID); err != nil {
		// The document row survives; a later republish or manual
		// reprocess can pick it up.
		slog.Error("document_ingested_publish_failed", "document_id", doc.ID, "error", err)
		return nil, fmt.Errorf("%s: publish event: %w", op, err)
	}

	slog.Info("document_uploaded",
		"document_id", doc.ID,
		"source", doc.Source,
		"bytes", written,
	)
	return doc, nil
}

func (uc *IngestUseCase) writeFile(path string, body io.Reader) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	written, err := io.Copy(f, io.LimitReader(body, uc.maxBytes+1))
	if err != nil {
		_ = os.Remove(path)
		return 0, fmt.Errorf("write file: %w", err)
	}
	if written > uc.maxBytes {
		_ = os.Remove(path)
		return 0, domain.WrapError(domain.ErrInvalidInput, "write file",
			fmt.Errorf("file exceeds %d bytes", uc.maxBytes))
	}
	return written, nil
}
