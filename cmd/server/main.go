package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/massy-ia/citydesk/internal/adapters"
	"github.com/massy-ia/citydesk/internal/api"
	"github.com/massy-ia/citydesk/internal/auth"
	"github.com/massy-ia/citydesk/internal/autosync"
	"github.com/massy-ia/citydesk/internal/config"
	"github.com/massy-ia/citydesk/internal/core"
	"github.com/massy-ia/citydesk/internal/logging"
	"github.com/massy-ia/citydesk/internal/store"
)

func main() {
	ingestFile := flag.String("ingest", "", "Ingest the documents table of this markdown file and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbStore, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer dbStore.Close()

	llmService, err := core.NewLLMService(ctx, cfg.GeminiAPIKey, cfg.ChatModel, cfg.EmbeddingModel)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize LLM service")
	}
	defer llmService.Close()

	if *ingestFile != "" {
		if err := ingest(ctx, dbStore, llmService, *ingestFile); err != nil {
			logging.Fatal().Err(err).Msg("Data ingestion failed")
		}
		return
	}

	ragService, err := core.NewRAGService(ctx, dbStore, llmService)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize RAG service")
	}

	webhook := adapters.NewWebhook(cfg.WebhookURL)
	defer webhook.Wait()
	scraper := adapters.NewScraper(cfg.NewsURL, cfg.EventsURL)
	assistant := core.NewAssistant(llmService, cfg.ChatModel, cfg.ChatTemperature)

	handler := api.NewHandler(api.Deps{
		Users:     dbStore,
		Tokens:    auth.NewTokenIssuer(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL),
		Chat:      core.NewChatService(dbStore, ragService, assistant, webhook),
		Police:    core.NewPoliceService(dbStore, 0),
		Research:  core.NewResearchService(dbStore, 0),
		Dashboard: core.NewDashboardService(dbStore),
		Analysis:  core.NewAnalysisService(assistant, dbStore, webhook),
		Places:    adapters.NewPlacesClient(cfg.PlacesBaseURL, cfg.GooglePlacesAPIKey),
		SNCF:      adapters.NewSNCFClient(cfg.SNCFBaseURL, cfg.SNCFAPIKey),
		RATP:      adapters.NewRATPClient(cfg.RATPBaseURL),
		News:      scraper,
		Health:    dbStore,
	})
	router := api.NewRouter(handler, api.RouterConfig{
		CORSOrigins:       cfg.CORSOrigins,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
		AuthRateLimit:     cfg.AuthRateLimit,
	})

	if cfg.SyncEnabled {
		job := autosync.New(scraper, dbStore, 0)
		if err := job.Start(ctx, cfg.SyncInterval); err != nil {
			logging.Fatal().Err(err).Msg("Failed to start sync job")
		}
		defer job.Stop()
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // completions with retries can take a while
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logging.Info().Str("addr", srv.Addr).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal().Err(err).Str("addr", srv.Addr).Msg("Could not listen")
		}
	}()

	<-ctx.Done()
	logging.Info().Msg("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("Server forced to shutdown")
	}
	logging.Info().Msg("Server exited")
}

func ingest(ctx context.Context, dbStore *store.SQLiteStore, llm *core.LLMService, path string) error {
	logging.Info().Str("file", path).Msg("Starting data ingestion")
	n, err := dbStore.IngestDataFromFile(ctx, path, llm.Embed)
	if err != nil {
		return err
	}
	logging.Info().Int("chunks", n).Msg("Data ingestion complete")
	return nil
}
