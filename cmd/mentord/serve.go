package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hikarilab/mentorchat/internal/chat"
	"github.com/hikarilab/mentorchat/internal/config"
	"github.com/hikarilab/mentorchat/internal/convcache"
	"github.com/hikarilab/mentorchat/internal/docstore"
	"github.com/hikarilab/mentorchat/internal/janitor"
	"github.com/hikarilab/mentorchat/internal/llm"
	"github.com/hikarilab/mentorchat/internal/persona"
	"github.com/hikarilab/mentorchat/internal/telemetry"
	"github.com/hikarilab/mentorchat/internal/trainlog"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the chat API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := telemetry.NewLogger(os.Stdout, logLevel(cfg.LogLevel))
	metrics := telemetry.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	registry := persona.NewRegistry()
	watcher, err := persona.NewWatcher(cfg.PersonaDir, registry, logger)
	if err != nil {
		return err
	}
	defer watcher.Close()

	client, err := buildClient(cfg, logger)
	if err != nil {
		return err
	}

	cache := convcache.NewService(store, cfg.Cache, logger)
	chatSvc := chat.NewService(registry, cache, client, metrics, logger)
	training := trainlog.NewService(store)

	jan := janitor.New(cache, logger, metrics,
		janitor.WithInitialDelay(cfg.Janitor.InitialDelay),
		janitor.WithInterval(cfg.Janitor.Interval),
	)
	jan.Start()
	defer jan.Shutdown()

	// Observe cache churn for operators; purely informational.
	cancelWatch, err := store.Watch(ctx, convcache.Collection, func(ev docstore.Event) {
		logger.Debug("conversation cache changed", "op", string(ev.Type), "key", ev.Key)
	})
	if err != nil {
		logger.Warn("cache watch unavailable", "error", err)
	} else {
		defer cancelWatch()
	}

	api := &apiServer{
		chat:     chatSvc,
		registry: registry,
		training: training,
		logger:   logger,
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Post("/v1/chat", api.handleChat)
	router.Get("/v1/status", api.handleStatus)
	router.Get("/v1/agents", api.handleAgents)
	router.Post("/v1/agents/{agentID}/training", api.handleTraining)
	router.Get("/v1/agents/{agentID}/analytics", api.handleAnalytics)
	router.Handle("/metrics", metrics.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("mentord listening", "addr", cfg.Listen)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// openStore selects Postgres when a DSN is configured, the in-memory store
// otherwise.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (docstore.Store, func(), error) {
	if cfg.Postgres.DSN == "" {
		logger.Info("using in-memory document store")
		return docstore.NewMemory(), func() {}, nil
	}
	pg, err := docstore.NewPostgres(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, nil, err
	}
	if err := pg.Migrate(ctx); err != nil {
		pg.Close()
		return nil, nil, err
	}
	logger.Info("using postgres document store")
	return pg, pg.Close, nil
}

// buildClient wires the completion backend: a rotating key pool when
// multiple keys are configured, a single client otherwise.
func buildClient(cfg config.Config, logger *slog.Logger) (llm.Client, error) {
	model := cfg.LLM.Model
	maxTokens := cfg.LLM.MaxTokens

	switch len(cfg.LLM.APIKeys) {
	case 0:
		if os.Getenv("ANTHROPIC_API_KEY") == "" {
			return nil, fmt.Errorf("no API keys configured: set llm.api_keys or ANTHROPIC_API_KEY")
		}
		return llm.NewAnthropicClient(model, maxTokens), nil
	case 1:
		return llm.NewAnthropicClientWithKey(cfg.LLM.APIKeys[0], model, maxTokens), nil
	default:
		return llm.NewKeyPool(cfg.LLM.APIKeys, cfg.LLM.MaxDailyRequests, func(apiKey string) llm.Client {
			return llm.NewAnthropicClientWithKey(apiKey, model, maxTokens)
		}, logger), nil
	}
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
