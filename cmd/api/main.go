// Package main is the entry point for the API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/capitalize-ai/lead-qualifier/internal/config"
	"github.com/capitalize-ai/lead-qualifier/internal/handler"
	"github.com/capitalize-ai/lead-qualifier/internal/knowledge"
	"github.com/capitalize-ai/lead-qualifier/internal/llm"
	"github.com/capitalize-ai/lead-qualifier/internal/middleware"
	natsclient "github.com/capitalize-ai/lead-qualifier/internal/nats"
	"github.com/capitalize-ai/lead-qualifier/internal/notify"
	"github.com/capitalize-ai/lead-qualifier/internal/orchestrator"
	"github.com/capitalize-ai/lead-qualifier/internal/service"
	"github.com/capitalize-ai/lead-qualifier/internal/session"
	"github.com/capitalize-ai/lead-qualifier/internal/store"
	"github.com/capitalize-ai/lead-qualifier/internal/tools"
	"github.com/capitalize-ai/lead-qualifier/pkg/logger"
	"github.com/capitalize-ai/lead-qualifier/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	newLogger := func() (*logger.Logger, error) { return logger.New(cfg.LogLevel) }
	if cfg.Environment == "development" {
		newLogger = logger.NewDevelopment
	}
	log, err := newLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	log.Info("starting API server")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "lead-qualifier", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Open the store and load mock data
	st, err := store.NewGormStore(cfg.StoreDriver, cfg.StoreDSN)
	if err != nil {
		log.Fatal("failed to open store", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	defer st.Close()

	if err := loadSeed(ctx, st, cfg, log); err != nil {
		log.Fatal("failed to load seed data", zap.Error(err))
	}

	// Knowledge base
	kb := knowledge.New(cfg.KnowledgeDir, knowledge.Options{
		MinScore:   cfg.KnowledgeMinScore,
		MaxResults: knowledge.DefaultOptions.MaxResults,
		TTL:        cfg.KnowledgeTTL,
	}, log)
	if err := kb.Reload(); err != nil {
		log.Warn("knowledge base unavailable", zap.String("dir", cfg.KnowledgeDir), zap.Error(err))
	}

	// Meeting invites
	var (
		calendar notify.Calendar
		mailer   notify.Mailer
	)
	if cfg.CalendarWebhookURL != "" {
		calendar = notify.NewWebhookCalendar(cfg.CalendarWebhookURL, cfg.CalendarToken)
	}
	if cfg.ResendAPIKey != "" {
		mailer = notify.NewResendMailer(cfg.ResendAPIKey, cfg.EmailFrom, cfg.EmailFromName, cfg.ResendEndpoint)
	}
	notifier := notify.New(
		calendar,
		mailer,
		notify.Template{Organizer: cfg.InviteOrganizer, Topic: cfg.InviteTopic, Location: cfg.InviteLocation},
		notify.Policy{Timeout: cfg.NotifyTimeout, Retries: cfg.NotifyRetries},
		log,
	)

	// Connect to NATS when the event log is enabled
	var (
		natsClient *natsclient.Client
		exporter   tools.LeadExporter
		events     service.EventPublisher
		transcript service.TranscriptReader
		coreOpts   []orchestrator.Option
	)
	if cfg.NATSEnabled {
		natsClient, err = natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Fatal("failed to connect to NATS", zap.Error(err))
		}
		defer natsClient.Close()

		streamManager := natsclient.NewStreamManager(natsClient)
		if err := streamManager.EnsureStreams(ctx); err != nil {
			log.Fatal("failed to ensure streams", zap.Error(err))
		}
		exporter, events, transcript = streamManager, streamManager, streamManager
		coreOpts = append(coreOpts, orchestrator.WithRecorder(streamManager))
		go refreshStreamStats(streamManager, log)
	}

	// Initialize LLM client
	provider, err := llm.NewClient(llm.Options{
		Provider: llm.Provider(cfg.LLMProvider),
		APIKey:   apiKey(cfg),
		BaseURL:  cfg.LLMBaseURL,
	})
	if err != nil {
		log.Fatal("failed to create LLM client", zap.Error(err))
	}
	llmClient := llm.NewRetryClient(provider, llm.RetryPolicy{
		Timeout:         cfg.LLMTimeout,
		Retries:         cfg.LLMRetries,
		InitialInterval: cfg.LLMBackoffInitial,
		MaxInterval:     cfg.LLMBackoffMax,
	}, log)

	systemPrompt := ""
	if cfg.SystemPromptFile != "" {
		data, err := os.ReadFile(cfg.SystemPromptFile)
		if err != nil {
			log.Fatal("failed to read system prompt", zap.String("path", cfg.SystemPromptFile), zap.Error(err))
		}
		systemPrompt = string(data)
	}

	// Tools and orchestration
	registry := tools.NewRegistry(tools.Deps{
		Store:     st,
		Knowledge: kb,
		Notifier:  notifier,
		Exporter:  exporter,
		Hours: tools.BusinessHours{
			Open:     cfg.BusinessOpenHour,
			Close:    cfg.BusinessCloseHour,
			Slot:     cfg.BusinessSlot,
			Location: cfg.Location(),
		},
		Log: log,
	})
	sessions := session.NewManager(log)
	core := orchestrator.New(llmClient, registry, sessions, orchestrator.Config{
		Model:          cfg.LLMModel,
		SystemPrompt:   systemPrompt,
		MaxTokens:      cfg.LLMMaxTokens,
		Temperature:    cfg.LLMTemperature,
		MaxToolRounds:  cfg.MaxToolRounds,
		MaxCorrections: cfg.MaxCorrections,
		HistoryWindow:  cfg.HistoryWindow,
		ToolTimeout:    cfg.ToolTimeout,
	}, log, coreOpts...)

	// Initialize services
	sessionSvc := service.NewSessionService(sessions, events, transcript, log)
	chatSvc := service.NewChatService(sessionSvc, core)
	leadSvc := service.NewLeadService(st)
	customerSvc := service.NewCustomerService(st)

	sweeper, err := session.NewSweeper(sessions, cfg.SessionSweep, cfg.SessionIdleTimeout, log)
	if err != nil {
		log.Fatal("invalid session sweep schedule", zap.Error(err))
	}
	sweeper.Start()

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(st, natsClient)
	sessionHandler := handler.NewSessionHandler(sessionSvc, log)
	streamHandler := handler.NewStreamHandler(chatSvc, log)
	wsHandler := handler.NewWebSocketHandler(sessionSvc, chatSvc, originChecker(cfg.CORSOrigins), log)
	leadHandler := handler.NewLeadHandler(leadSvc, log)
	customerHandler := handler.NewCustomerHandler(customerSvc, log)
	knowledgeHandler := handler.NewKnowledgeHandler(kb, registry)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSOrigins))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", sessionHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", sessionHandler.Get)
				r.Delete("/", sessionHandler.Delete)
				r.Get("/transcript", sessionHandler.Transcript)

				r.Group(func(r chi.Router) {
					r.Use(middleware.UserRateLimit(cfg.TurnRateLimit, time.Minute))
					r.Post("/turns", streamHandler.Turn)
					r.Get("/ws", wsHandler.Serve)
				})
			})
		})

		r.Route("/leads", func(r chi.Router) {
			r.Get("/", leadHandler.List)
			r.Get("/high-priority", leadHandler.HighPriority)
			r.Get("/summary", leadHandler.Summary)
			r.Get("/{id}", leadHandler.Get)
			r.Get("/{id}/handoff", leadHandler.Handoff)
		})

		r.Route("/customers/{id}", func(r chi.Router) {
			r.Get("/", customerHandler.Get)
			r.Get("/appointments", customerHandler.Appointments)
			r.Get("/orders", customerHandler.Orders)
		})

		r.Get("/knowledge/topics", knowledgeHandler.Topics)
		r.Get("/knowledge/search", knowledgeHandler.Search)
		r.Get("/tools", knowledgeHandler.Tools)
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	sweeper.Stop(shutdownCtx)

	log.Info("server stopped")
}

func apiKey(cfg *config.Config) string {
	if llm.Provider(cfg.LLMProvider) == llm.ProviderOpenAI {
		return cfg.OpenAIAPIKey
	}
	return cfg.AnthropicAPIKey
}

// loadSeed bulk-loads the seed snapshot. A missing file is generated when
// enabled, otherwise the store starts empty. Integrity issues are logged;
// only an unreadable file is fatal.
func loadSeed(ctx context.Context, st store.Store, cfg *config.Config, log *logger.Logger) error {
	if cfg.StoreSeedFile == "" {
		return nil
	}
	snap, err := store.ReadSnapshot(cfg.StoreSeedFile)
	switch {
	case errors.Is(err, os.ErrNotExist) && cfg.StoreGenerateSeed:
		snap = store.GenerateSnapshot(time.Now().UTC(), cfg.StoreSeedValue, store.DefaultSeedSizes)
		if err := store.WriteSnapshot(cfg.StoreSeedFile, snap); err != nil {
			return fmt.Errorf("write generated seed: %w", err)
		}
		log.Info("generated seed data", zap.String("path", cfg.StoreSeedFile))
	case errors.Is(err, os.ErrNotExist):
		log.Info("no seed file, starting with an empty store", zap.String("path", cfg.StoreSeedFile))
		return nil
	case err != nil:
		return err
	}

	report, err := st.Load(ctx, snap)
	if err != nil {
		return fmt.Errorf("load seed: %w", err)
	}
	fields := []zap.Field{
		zap.Int("customers", report.Customers),
		zap.Int("appointments", report.Appointments),
		zap.Int("orders", report.Orders),
	}
	if report.Clean() {
		log.Info("seed data loaded", fields...)
		return nil
	}
	log.Warn("seed data loaded with integrity issues", append(fields, zap.Strings("issues", report.Issues()))...)
	return nil
}

// originChecker accepts WebSocket upgrades from the configured CORS
// origins. With none configured gorilla's same-origin check applies.
func originChecker(origins []string) func(*http.Request) bool {
	if len(origins) == 0 {
		return nil
	}
	return func(r *http.Request) bool {
		return slices.Contains(origins, r.Header.Get("Origin"))
	}
}

func refreshStreamStats(m *natsclient.StreamManager, log *logger.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := m.RefreshStats(ctx); err != nil {
			log.Debug("failed to refresh stream stats", zap.Error(err))
		}
		cancel()
	}
}
