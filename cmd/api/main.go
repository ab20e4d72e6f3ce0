package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	httpadapter "github.com/cdco-dev/chantier-assistant/internal/adapters/http"
	"github.com/cdco-dev/chantier-assistant/internal/bootstrap"
	"github.com/cdco-dev/chantier-assistant/internal/config"
	"github.com/cdco-dev/chantier-assistant/internal/observability/logging"
	"github.com/cdco-dev/chantier-assistant/internal/observability/metrics"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := logging.Setup("api", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, nil)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	apiMetrics := metrics.NewAPIMetrics("api")
	router := httpadapter.NewRouter(
		app.ChatUC,
		app.SearchUC,
		app.IngestUC,
		app.Docs,
		httpadapter.SystemConfig{
			ChatModel:           cfg.ChatModel,
			EmbedModel:          cfg.EmbedModel,
			DefaultLimit:        cfg.SearchDefaultLimit,
			MaxLimit:            cfg.SearchMaxLimit,
			SimilarityThreshold: cfg.SimilarityThreshold,
			OutOfScopeThreshold: cfg.OutOfScopeThreshold,
			MaxPerDocument:      cfg.MaxPerDocument,
			RerankEnabled:       cfg.RerankEnabled,
			QueryExpansion:      cfg.QueryExpansionEnabled,
			MaxToolRounds:       cfg.MaxToolRounds,
		},
		httpadapter.Options{
			Service:          "api",
			RateLimitRPS:     cfg.APIRateLimitRPS,
			RateLimitBurst:   cfg.APIRateLimitBurst,
			MaxInFlight:      cfg.APIMaxInFlight,
			BackpressureWait: time.Duration(cfg.APIBackpressureWaitMillis) * time.Millisecond,
			Metrics:          apiMetrics,
		},
	)

	mux := http.NewServeMux()
	mux.Handle("/", router.Handler())
	mux.Handle("/metrics", apiMetrics.Handler())

	server := &http.Server{
		Addr:        ":" + cfg.APIPort,
		Handler:     mux,
		ReadTimeout: 30 * time.Second,
		// Chat streams stay open up to the stream timeout; the write
		// timeout must outlive it.
		WriteTimeout: 2 * time.Duration(cfg.StreamTimeoutSeconds) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("api_listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api_shutdown_failed", "error", err)
	}
}
