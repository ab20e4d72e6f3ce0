package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/cdco-dev/chantier-assistant/internal/core/domain"
	"github.com/cdco-dev/chantier-assistant/internal/core/ports"
	"github.com/cdco-dev/chantier-assistant/internal/core/usecase"
	"github.com/cdco-dev/chantier-assistant/internal/observability/metrics"
)

// SystemConfig is the non-secret runtime configuration exposed on the system
// endpoint so operators can confirm what the API is running with.
type SystemConfig struct {
	ChatModel           string  `json:"chat_model"`
	EmbedModel          string  `json:"embed_model"`
	DefaultLimit        int     `json:"default_limit"`
	MaxLimit            int     `json:"max_limit"`
	SimilarityThreshold float64 `json:"similarity_threshold"`
	OutOfScopeThreshold float64 `json:"out_of_scope_threshold"`
	MaxPerDocument      int     `json:"max_per_document"`
	RerankEnabled       bool    `json:"rerank_enabled"`
	QueryExpansion      bool    `json:"query_expansion"`
	MaxToolRounds       int     `json:"max_tool_rounds"`
}

// Options tunes the middleware chain around the routes.
type Options struct {
	Service          string
	RateLimitRPS     float64
	RateLimitBurst   int
	MaxInFlight      int
	BackpressureWait time.Duration
	Metrics          *metrics.APIMetrics
}

type Router struct {
	chat   ports.ChatService
	search ports.Retriever
	ingest ports.DocumentIngestor
	docs   ports.DocumentStore
	cfg    SystemConfig
	opts   Options
}

func NewRouter(
	chat ports.ChatService,
	search ports.Retriever,
	ingest ports.DocumentIngestor,
	docs ports.DocumentStore,
	cfg SystemConfig,
	opts Options,
) *Router {
	if opts.Service == "" {
		opts.Service = "api"
	}
	return &Router{
		chat:   chat,
		search: search,
		ingest: ingest,
		docs:   docs,
		cfg:    cfg,
		opts:   opts,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/chat", rt.chatStream)
	mux.HandleFunc("/v1/search", rt.searchPassages)
	mux.HandleFunc("/v1/documents", rt.uploadDocument)
	mux.HandleFunc("/v1/documents/", rt.getDocumentByID)
	mux.HandleFunc("/v1/system/config", rt.systemConfig)
	mux.HandleFunc("/v1/system/stats", rt.systemStats)

	var handler http.Handler = mux
	if rt.opts.MaxInFlight > 0 {
		handler = backpressureMiddleware(handler, rt.opts.MaxInFlight, rt.opts.BackpressureWait)
	}
	if rt.opts.RateLimitRPS > 0 {
		handler = rateLimitMiddleware(handler, rt.opts.RateLimitRPS, rt.opts.RateLimitBurst)
	}
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	if rt.opts.Metrics != nil {
		handler = rt.opts.Metrics.Middleware(rt.opts.Service, handler)
	}
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) chatStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req domain.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "message is required"})
		return
	}

	stream, err := newSSEWriter(w)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	result := "done"
	emit := func(event domain.ChatEvent) error {
		switch event.Type {
		case "tool_call":
			if rt.opts.Metrics != nil {
				rt.opts.Metrics.RecordToolCall(rt.opts.Service, event.ToolName)
			}
		case "error":
			result = "error"
		}
		return stream.WriteEvent(event)
	}

	if err := rt.chat.Stream(r.Context(), req, emit); err != nil {
		// The terminal error event has already been emitted on the stream.
		result = "error"
	}
	if rt.opts.Metrics != nil {
		rt.opts.Metrics.RecordStream(rt.opts.Service, result)
	}
}

func (rt *Router) searchPassages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	start := time.Now()
	retrieval, err := rt.search.Retrieve(r.Context(), req.Query, req.Limit)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	if rt.opts.Metrics != nil {
		rt.opts.Metrics.RecordRetrieval(
			rt.opts.Service,
			retrieval.Outcome.String(),
			len(retrieval.Passages),
			retrieval.NoiseFilterSkipped,
			time.Since(start),
		)
	}

	writeJSON(w, http.StatusOK, struct {
		Outcome       string                    `json:"outcome"`
		MaxSimilarity float64                   `json:"max_similarity"`
		Results       []domain.SourceDescriptor `json:"results"`
	}{
		Outcome:       retrieval.Outcome.String(),
		MaxSimilarity: retrieval.MaxSimilarity,
		Results:       usecase.DescribeSources(retrieval, true),
	})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	doc, err := rt.ingest.Upload(
		r.Context(),
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		file,
	)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) getDocumentByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/documents/")
	if id == "" || strings.Contains(id, "/") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document id is required"})
		return
	}

	doc, err := rt.docs.GetDocument(r.Context(), id)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) systemConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, rt.cfg)
}

func (rt *Router) systemStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	documents, chunks, err := rt.docs.Counts(r.Context())
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"documents": documents,
		"chunks":    chunks,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
