package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cdco-dev/chantier-assistant/internal/core/domain"
	"github.com/cdco-dev/chantier-assistant/internal/observability/metrics"
)

type fakeChat struct {
	events []domain.ChatEvent
	err    error
	calls  int
	gotReq domain.ChatRequest
}

func (f *fakeChat) Stream(_ context.Context, req domain.ChatRequest, emit func(domain.ChatEvent) error) error {
	f.calls++
	f.gotReq = req
	for _, event := range f.events {
		if err := emit(event); err != nil {
			return err
		}
	}
	return f.err
}

type fakeRetriever struct {
	retrieval *domain.Retrieval
	err       error
	gotQuery  string
	gotLimit  int
}

func (f *fakeRetriever) Retrieve(_ context.Context, rawQuery string, limit int) (*domain.Retrieval, error) {
	f.gotQuery = rawQuery
	f.gotLimit = limit
	return f.retrieval, f.err
}

type fakeIngestor struct {
	doc         *domain.Document
	err         error
	gotFilename string
}

func (f *fakeIngestor) Upload(_ context.Context, filename, _ string, _ io.Reader) (*domain.Document, error) {
	f.gotFilename = filename
	return f.doc, f.err
}

type fakeDocStore struct {
	doc       *domain.Document
	getErr    error
	documents int
	chunks    int
	countsErr error
}

func (f *fakeDocStore) InsertDocument(context.Context, *domain.Document) error { return nil }

func (f *fakeDocStore) GetDocument(_ context.Context, id string) (*domain.Document, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.doc, nil
}

func (f *fakeDocStore) UpdateDocumentStatus(context.Context, string, domain.DocumentStatus, string) error {
	return nil
}

func (f *fakeDocStore) InsertChunks(context.Context, *domain.Document, []domain.Chunk, [][]float32) error {
	return nil
}

func (f *fakeDocStore) Counts(context.Context) (int, int, error) {
	return f.documents, f.chunks, f.countsErr
}

type routerFixture struct {
	chat      *fakeChat
	retriever *fakeRetriever
	ingestor  *fakeIngestor
	docs      *fakeDocStore
	handler   http.Handler
}

func newRouterFixture(t *testing.T, opts Options) *routerFixture {
	t.Helper()
	if opts.Service == "" {
		opts.Service = "api-test"
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewAPIMetrics(opts.Service)
	}

	fixture := &routerFixture{
		chat:      &fakeChat{},
		retriever: &fakeRetriever{},
		ingestor:  &fakeIngestor{},
		docs:      &fakeDocStore{},
	}
	router := NewRouter(
		fixture.chat,
		fixture.retriever,
		fixture.ingestor,
		fixture.docs,
		SystemConfig{ChatModel: "gpt-4o", DefaultLimit: 30, OutOfScopeThreshold: 0.40},
		opts,
	)
	fixture.handler = router.Handler()
	return fixture
}

func decodeSSEEvents(t *testing.T, body string) []domain.ChatEvent {
	t.Helper()
	var events []domain.ChatEvent
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event domain.ChatEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
			t.Fatalf("decode event %q: %v", line, err)
		}
		events = append(events, event)
	}
	return events
}

func TestHealthz(t *testing.T) {
	fixture := newRouterFixture(t, Options{})

	res := httptest.NewRecorder()
	fixture.handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if res.Code != http.StatusOK {
		t.Fatalf("status = %d", res.Code)
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatal("expected request id header")
	}
}

func TestChatStreamEmitsEvents(t *testing.T) {
	fixture := newRouterFixture(t, Options{})
	fixture.chat.events = []domain.ChatEvent{
		{Type: "token", Content: "Bon"},
		{Type: "token", Content: "jour"},
		{Type: "done"},
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/chat",
		strings.NewReader(`{"message":"Bonjour","session_id":"s1"}`))
	res := httptest.NewRecorder()
	fixture.handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", res.Code, res.Body.String())
	}
	if got := res.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("content type = %q", got)
	}

	events := decodeSSEEvents(t, res.Body.String())
	if len(events) != 3 {
		t.Fatalf("events = %d, want 3", len(events))
	}
	if events[0].Type != "token" || events[0].Content != "Bon" {
		t.Fatalf("first event = %+v", events[0])
	}
	if events[2].Type != "done" {
		t.Fatalf("last event = %+v", events[2])
	}
	if fixture.chat.gotReq.SessionID != "s1" {
		t.Fatalf("session id = %q", fixture.chat.gotReq.SessionID)
	}
}

func TestChatStreamRejectsBadRequests(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"invalid json", `{"message"`},
		{"blank message", `{"message":"   "}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fixture := newRouterFixture(t, Options{})

			req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(tc.body))
			res := httptest.NewRecorder()
			fixture.handler.ServeHTTP(res, req)

			if res.Code != http.StatusBadRequest {
				t.Fatalf("status = %d", res.Code)
			}
			if fixture.chat.calls != 0 {
				t.Fatal("chat service should not run for rejected requests")
			}
		})
	}
}

func TestSearchReturnsDescribedSources(t *testing.T) {
	fixture := newRouterFixture(t, Options{})
	fixture.retriever.retrieval = &domain.Retrieval{
		Outcome:       domain.RetrievalOK,
		MaxSimilarity: 0.72,
		Passages: []domain.Passage{{
			Title:      "Règlement voirie",
			Source:     "reglement.pdf",
			Content:    "Les chantiers de type D...",
			Similarity: 0.72,
			Pages:      &domain.PageRange{Start: 4, End: 6},
		}},
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/search",
		strings.NewReader(`{"query":"chantier de type D","limit":5}`))
	res := httptest.NewRecorder()
	fixture.handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", res.Code, res.Body.String())
	}
	var resp struct {
		Outcome       string                    `json:"outcome"`
		MaxSimilarity float64                   `json:"max_similarity"`
		Results       []domain.SourceDescriptor `json:"results"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Outcome != "ok" || len(resp.Results) != 1 {
		t.Fatalf("response = %+v", resp)
	}
	if resp.Results[0].PageLabel != "p. 4-6" {
		t.Fatalf("page label = %q", resp.Results[0].PageLabel)
	}
	if resp.Results[0].Content == "" {
		t.Fatal("search endpoint should inline passage content")
	}
	if fixture.retriever.gotLimit != 5 {
		t.Fatalf("limit = %d", fixture.retriever.gotLimit)
	}
}

func TestSearchMapsDomainErrors(t *testing.T) {
	fixture := newRouterFixture(t, Options{})
	fixture.retriever.err = domain.WrapError(domain.ErrInvalidInput, "retrieve", fmt.Errorf("query is empty"))

	req := httptest.NewRequest(http.MethodPost, "/v1/search", strings.NewReader(`{"query":""}`))
	res := httptest.NewRecorder()
	fixture.handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", res.Code)
	}
}

func multipartBody(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, writer.FormDataContentType()
}

func TestUploadDocumentAccepted(t *testing.T) {
	fixture := newRouterFixture(t, Options{})
	fixture.ingestor.doc = &domain.Document{ID: "doc-1", Title: "regles", Status: domain.StatusUploaded}

	body, contentType := multipartBody(t, "regles.pdf", "%PDF-1.4 fake")
	req := httptest.NewRequest(http.MethodPost, "/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	fixture.handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", res.Code, res.Body.String())
	}
	var doc domain.Document
	if err := json.Unmarshal(res.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode document: %v", err)
	}
	if doc.ID != "doc-1" || doc.Status != domain.StatusUploaded {
		t.Fatalf("document = %+v", doc)
	}
	if fixture.ingestor.gotFilename != "regles.pdf" {
		t.Fatalf("filename = %q", fixture.ingestor.gotFilename)
	}
}

func TestUploadDocumentRejectsUnsupportedType(t *testing.T) {
	fixture := newRouterFixture(t, Options{})
	fixture.ingestor.err = domain.WrapError(domain.ErrInvalidInput, "document upload",
		fmt.Errorf(`unsupported file type ".exe"`))

	body, contentType := multipartBody(t, "setup.exe", "MZ")
	req := httptest.NewRequest(http.MethodPost, "/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	fixture.handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", res.Code)
	}
}

func TestGetDocumentByID(t *testing.T) {
	fixture := newRouterFixture(t, Options{})
	fixture.docs.doc = &domain.Document{ID: "doc-1", Status: domain.StatusReady}

	res := httptest.NewRecorder()
	fixture.handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/documents/doc-1", nil))

	if res.Code != http.StatusOK {
		t.Fatalf("status = %d", res.Code)
	}
	var doc domain.Document
	if err := json.Unmarshal(res.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode document: %v", err)
	}
	if doc.ID != "doc-1" {
		t.Fatalf("document = %+v", doc)
	}
}

func TestGetDocumentNotFound(t *testing.T) {
	fixture := newRouterFixture(t, Options{})
	fixture.docs.getErr = domain.WrapError(domain.ErrNotFound, "get document", fmt.Errorf("no row"))

	res := httptest.NewRecorder()
	fixture.handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/documents/missing", nil))

	if res.Code != http.StatusNotFound {
		t.Fatalf("status = %d", res.Code)
	}
}

func TestSystemConfigAndStats(t *testing.T) {
	fixture := newRouterFixture(t, Options{})
	fixture.docs.documents = 3
	fixture.docs.chunks = 42

	res := httptest.NewRecorder()
	fixture.handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/system/config", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("config status = %d", res.Code)
	}
	var cfg SystemConfig
	if err := json.Unmarshal(res.Body.Bytes(), &cfg); err != nil {
		t.Fatalf("decode config: %v", err)
	}
	if cfg.ChatModel != "gpt-4o" || cfg.OutOfScopeThreshold != 0.40 {
		t.Fatalf("config = %+v", cfg)
	}

	res = httptest.NewRecorder()
	fixture.handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/system/stats", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("stats status = %d", res.Code)
	}
	var stats map[string]int
	if err := json.Unmarshal(res.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats["documents"] != 3 || stats["chunks"] != 42 {
		t.Fatalf("stats = %v", stats)
	}
}

func TestRateLimitReturns429(t *testing.T) {
	fixture := newRouterFixture(t, Options{RateLimitRPS: 1, RateLimitBurst: 1})

	res1 := httptest.NewRecorder()
	fixture.handler.ServeHTTP(res1, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if res1.Code != http.StatusOK {
		t.Fatalf("first request expected 200, got %d", res1.Code)
	}

	res2 := httptest.NewRecorder()
	fixture.handler.ServeHTTP(res2, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if res2.Code != http.StatusTooManyRequests {
		t.Fatalf("second request expected 429, got %d", res2.Code)
	}
	if res2.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header for 429 response")
	}
}

func TestBackpressureReturns503WhenSaturated(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan int, 1)

	base := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		<-release
		w.WriteHeader(http.StatusNoContent)
	})
	handler := backpressureMiddleware(base, 1, 20*time.Millisecond)

	go func() {
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		done <- res.Code
	}()

	<-started

	res2 := httptest.NewRecorder()
	handler.ServeHTTP(res2, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if res2.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for saturated backpressure gate, got %d", res2.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(res2.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode overload response: %v", err)
	}
	if resp["error"] == "" {
		t.Fatal("expected overload error message in response")
	}

	close(release)

	select {
	case code := <-done:
		if code != http.StatusNoContent {
			t.Fatalf("first request expected 204, got %d", code)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for first request completion")
	}
}
