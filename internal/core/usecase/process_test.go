package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/cdco-dev/chantier-assistant/internal/core/domain"
)

type fakeDocStore struct {
	doc        *domain.Document
	getErr     error
	statuses   []domain.DocumentStatus
	lastErrMsg string

	insertedDoc  *domain.Document
	insertDocErr error

	insertedChunks  []domain.Chunk
	insertedVectors [][]float32
	insertErr       error
}

func (f *fakeDocStore) InsertDocument(ctx context.Context, doc *domain.Document) error {
	if f.insertDocErr != nil {
		return f.insertDocErr
	}
	f.insertedDoc = doc
	return nil
}

func (f *fakeDocStore) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.doc, nil
}

func (f *fakeDocStore) UpdateDocumentStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	f.statuses = append(f.statuses, status)
	f.lastErrMsg = errMessage
	return nil
}

func (f *fakeDocStore) InsertChunks(ctx context.Context, doc *domain.Document, chunks []domain.Chunk, vectors [][]float32) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.insertedChunks = chunks
	f.insertedVectors = vectors
	return nil
}

func (f *fakeDocStore) Counts(ctx context.Context) (int, int, error) { return 1, len(f.insertedChunks), nil }

type fakeExtractor struct {
	pages []domain.PageText
	err   error
}

func (f *fakeExtractor) Extract(ctx context.Context, path, mimeType string) ([]domain.PageText, error) {
	return f.pages, f.err
}

type fakeChunker struct{}

func (fakeChunker) Split(pages []domain.PageText) []domain.Chunk {
	chunks := make([]domain.Chunk, 0, len(pages))
	for i, p := range pages {
		chunks = append(chunks, domain.Chunk{
			Index:   i,
			Content: p.Text,
			Pages:   &domain.PageRange{Start: p.Page, End: p.Page},
		})
	}
	return chunks
}

// batchyEmbedder fails whole batches a configurable number of times with a
// rate-limit error, while single-item calls always succeed.
type batchyEmbedder struct {
	failBatches int
	batchCalls  int
	singleCalls int
}

func (b *batchyEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	b.batchCalls++
	if b.batchCalls <= b.failBatches {
		return nil, domain.WrapError(domain.ErrRateLimited, "embed", errors.New("429"))
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1}
	}
	return out, nil
}

func (b *batchyEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	b.singleCalls++
	return []float32{1}, nil
}

func docFixture() *domain.Document {
	return &domain.Document{ID: "doc-1", Source: "reglement.pdf", Path: "/tmp/doc-1.pdf", Status: domain.StatusUploaded}
}

func pagesFixture(n int) []domain.PageText {
	pages := make([]domain.PageText, 0, n)
	for i := 1; i <= n; i++ {
		pages = append(pages, domain.PageText{Page: i, Text: fmt.Sprintf("page %d", i)})
	}
	return pages
}

func TestProcessByIDHappyPath(t *testing.T) {
	store := &fakeDocStore{doc: docFixture()}
	emb := &batchyEmbedder{}
	uc := NewProcessUseCase(store, &fakeExtractor{pages: pagesFixture(3)}, fakeChunker{}, emb, ProcessParams{})

	if err := uc.ProcessByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("ProcessByID: %v", err)
	}

	wantStatuses := []domain.DocumentStatus{domain.StatusProcessing, domain.StatusReady}
	if len(store.statuses) != 2 || store.statuses[0] != wantStatuses[0] || store.statuses[1] != wantStatuses[1] {
		t.Fatalf("statuses = %v, want %v", store.statuses, wantStatuses)
	}
	if len(store.insertedChunks) != 3 || len(store.insertedVectors) != 3 {
		t.Fatalf("indexed %d chunks / %d vectors", len(store.insertedChunks), len(store.insertedVectors))
	}
}

func TestProcessByIDRateLimitDegradesToSingles(t *testing.T) {
	store := &fakeDocStore{doc: docFixture()}
	emb := &batchyEmbedder{failBatches: 1}
	uc := NewProcessUseCase(store, &fakeExtractor{pages: pagesFixture(5)}, fakeChunker{}, emb, ProcessParams{EmbedBatchSize: 5})

	if err := uc.ProcessByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("ProcessByID: %v", err)
	}
	if emb.singleCalls != 5 {
		t.Fatalf("single embed calls = %d, want 5", emb.singleCalls)
	}
	if len(store.insertedVectors) != 5 {
		t.Fatalf("vectors = %d, want 5", len(store.insertedVectors))
	}
}

func TestProcessByIDNonRateLimitEmbedErrorFails(t *testing.T) {
	store := &fakeDocStore{doc: docFixture()}
	failing := &failingEmbedder{err: errors.New("boom")}
	uc := NewProcessUseCase(store, &fakeExtractor{pages: pagesFixture(2)}, fakeChunker{}, failing, ProcessParams{})

	if err := uc.ProcessByID(context.Background(), "doc-1"); err == nil {
		t.Fatal("expected failure")
	}
	if store.statuses[len(store.statuses)-1] != domain.StatusFailed {
		t.Fatalf("final status = %v, want failed", store.statuses)
	}
}

func TestProcessByIDExtractionFailureMarksFailed(t *testing.T) {
	store := &fakeDocStore{doc: docFixture()}
	uc := NewProcessUseCase(store, &fakeExtractor{err: errors.New("encrypted pdf")}, fakeChunker{}, &batchyEmbedder{}, ProcessParams{})

	if err := uc.ProcessByID(context.Background(), "doc-1"); err == nil {
		t.Fatal("expected failure")
	}
	if store.statuses[len(store.statuses)-1] != domain.StatusFailed {
		t.Fatalf("final status = %v, want failed", store.statuses)
	}
	if !strings.Contains(store.lastErrMsg, "encrypted pdf") {
		t.Fatalf("error message not recorded: %q", store.lastErrMsg)
	}
}

func TestProcessByIDEmptyExtraction(t *testing.T) {
	store := &fakeDocStore{doc: docFixture()}
	uc := NewProcessUseCase(store, &fakeExtractor{}, fakeChunker{}, &batchyEmbedder{}, ProcessParams{})

	if err := uc.ProcessByID(context.Background(), "doc-1"); err == nil {
		t.Fatal("expected failure on empty extraction")
	}
}

type failingEmbedder struct{ err error }

func (f *failingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, f.err
}

func (f *failingEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return nil, f.err
}

type recordingMonitor struct {
	chunksIndexed int
	degraded      int
}

func (m *recordingMonitor) AddChunksIndexed(n int) { m.chunksIndexed += n }
func (m *recordingMonitor) RecordEmbedDegraded()   { m.degraded++ }

func TestProcessByIDReportsProgressToMonitor(t *testing.T) {
	store := &fakeDocStore{doc: docFixture()}
	monitor := &recordingMonitor{}
	emb := &batchyEmbedder{failBatches: 1}
	uc := NewProcessUseCase(store, &fakeExtractor{pages: pagesFixture(5)}, fakeChunker{}, emb,
		ProcessParams{EmbedBatchSize: 5, Monitor: monitor})

	if err := uc.ProcessByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("ProcessByID: %v", err)
	}
	if monitor.chunksIndexed != 5 {
		t.Fatalf("chunks indexed = %d, want 5", monitor.chunksIndexed)
	}
	if monitor.degraded != 1 {
		t.Fatalf("degraded batches = %d, want 1", monitor.degraded)
	}
}

func TestProcessByIDFailureReportsNothingToMonitor(t *testing.T) {
	store := &fakeDocStore{doc: docFixture(), insertErr: errors.New("disk full")}
	monitor := &recordingMonitor{}
	uc := NewProcessUseCase(store, &fakeExtractor{pages: pagesFixture(2)}, fakeChunker{}, &batchyEmbedder{},
		ProcessParams{Monitor: monitor})

	if err := uc.ProcessByID(context.Background(), "doc-1"); err == nil {
		t.Fatal("expected indexing failure")
	}
	if monitor.chunksIndexed != 0 {
		t.Fatalf("chunks indexed = %d, want 0 after failed indexing", monitor.chunksIndexed)
	}
}
