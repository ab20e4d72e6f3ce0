package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/cdco-dev/chantier-assistant/internal/config"
	"github.com/cdco-dev/chantier-assistant/internal/core/ports"
	"github.com/cdco-dev/chantier-assistant/internal/core/usecase"
	"github.com/cdco-dev/chantier-assistant/internal/infrastructure/chunking"
	"github.com/cdco-dev/chantier-assistant/internal/infrastructure/extractor"
	"github.com/cdco-dev/chantier-assistant/internal/infrastructure/geotools"
	"github.com/cdco-dev/chantier-assistant/internal/infrastructure/llm/openaiapi"
	natsqueue "github.com/cdco-dev/chantier-assistant/internal/infrastructure/queue/nats"
	"github.com/cdco-dev/chantier-assistant/internal/infrastructure/resilience"
	searchcache "github.com/cdco-dev/chantier-assistant/internal/infrastructure/searchstore/cache"
	"github.com/cdco-dev/chantier-assistant/internal/infrastructure/searchstore/postgres"
)

// App wires the whole dependency graph once, explicitly. Both binaries share
// it: the API uses the chat, search and ingest sides, the worker the
// processing side.
type App struct {
	Config config.Config

	Queue ports.MessageQueue
	Docs  ports.DocumentStore

	ChatUC    *usecase.ChatUseCase
	SearchUC  *usecase.SearchUseCase
	IngestUC  *usecase.IngestUseCase
	ProcessUC *usecase.ProcessUseCase

	closeFn func()
}

// New wires the graph. monitor is the worker's ingestion-progress sink; the
// API passes nil.
func New(ctx context.Context, cfg config.Config, monitor usecase.ProcessMonitor) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	store := postgres.NewStore(db, cfg.EmbeddingDim)
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	exec := resilience.NewExecutor(resilience.DefaultPolicy())

	queue, err := natsqueue.New(cfg.NATSURL, cfg.NATSSubject, natsqueue.Options{Executor: exec})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	llm, err := openaiapi.New(openaiapi.Config{
		BaseURL:    cfg.OpenAIBaseURL,
		APIKey:     cfg.OpenAIAPIKey,
		ChatModel:  cfg.ChatModel,
		EmbedModel: cfg.EmbedModel,
		Timeout:    time.Duration(cfg.LLMTimeoutSeconds) * time.Second,
		Resilience: resilience.DefaultPolicy(),
	})
	if err != nil {
		queue.Close()
		_ = db.Close()
		return nil, fmt.Errorf("init llm client: %w", err)
	}

	lexicon := loadLexicon(cfg.LexiconPath)
	expander := usecase.NewQueryExpander(
		cfg.QueryExpansionEnabled,
		llm,
		cfg.QueryExpansionModel,
		cfg.QueryExpansionPromptFile,
	)

	var searchStore ports.SearchStore = store
	if cfg.SearchCacheTTLSeconds > 0 {
		searchStore = searchcache.New(store, time.Duration(cfg.SearchCacheTTLSeconds)*time.Second)
	}

	searchUC := usecase.NewSearchUseCase(lexicon, expander, llm, searchStore, usecase.SearchParams{
		DefaultLimit:        cfg.SearchDefaultLimit,
		MaxLimit:            cfg.SearchMaxLimit,
		SimilarityThreshold: cfg.SimilarityThreshold,
		OutOfScopeThreshold: cfg.OutOfScopeThreshold,
		MaxPerDocument:      cfg.MaxPerDocument,
		RRFK:                cfg.RRFK,
		ExcludeBoilerplate:  cfg.ExcludeBoilerplate,
		TOCLineFraction:     cfg.TOCLineFraction,
		RerankEnabled:       cfg.RerankEnabled,
		RerankMaxBoost:      cfg.RerankMaxBoost,
		RerankClassifiers:   cfg.RerankClassifiers,
	})

	var weather ports.WeatherProvider
	if cfg.WeatherEnabled {
		weather = geotools.NewOpenMeteo(geotools.Options{})
	}

	sessions := usecase.NewSessionStore(time.Duration(cfg.SessionTTLMinutes) * time.Minute)
	chatUC := usecase.NewChatUseCase(llm, searchUC, weather, sessions, usecase.ChatConfig{
		Model:                cfg.ChatModel,
		SystemPrompt:         loadSystemPrompt(cfg.SystemPromptFile),
		StreamTimeout:        time.Duration(cfg.StreamTimeoutSeconds) * time.Second,
		MaxToolRounds:        cfg.MaxToolRounds,
		IncludeSourceContent: cfg.IncludeSourceContent,
	})

	ingestUC := usecase.NewIngestUseCase(store, queue, cfg.UploadDir, cfg.MaxUploadBytes)
	processUC := usecase.NewProcessUseCase(
		store,
		extractor.NewDispatcher(),
		chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap, cfg.TOCLineFraction),
		llm,
		usecase.ProcessParams{
			EmbedBatchSize: cfg.EmbedBatchSize,
			BatchPause:     time.Duration(cfg.EmbedBatchPauseMillis) * time.Millisecond,
			Monitor:        monitor,
		},
	)

	return &App{
		Config: cfg,

		Queue: queue,
		Docs:  store,

		ChatUC:    chatUC,
		SearchUC:  searchUC,
		IngestUC:  ingestUC,
		ProcessUC: processUC,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func loadLexicon(path string) *usecase.Lexicon {
	if path == "" {
		return usecase.DefaultLexicon()
	}
	lexicon, err := usecase.LoadLexicon(path)
	if err != nil {
		slog.Warn("lexicon_file_unusable", "path", path, "error", err)
		return usecase.DefaultLexicon()
	}
	return lexicon
}

func loadSystemPrompt(path string) string {
	if path == "" {
		return ""
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("system_prompt_file_unusable", "path", path, "error", err)
		return ""
	}
	return strings.TrimSpace(string(raw))
}
