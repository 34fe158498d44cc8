package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"tally-attio-relay/internal/config"
	"tally-attio-relay/internal/crm"
	"tally-attio-relay/internal/intake"
	"tally-attio-relay/internal/middleware"
	"tally-attio-relay/internal/pipeline"
	"tally-attio-relay/internal/setup"
	"tally-attio-relay/internal/webhooks"
	"tally-attio-relay/internal/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := godotenv.Load(); err != nil {
		logger.Warn("No .env file found, continuing with environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Invalid configuration. Application cannot start.", "error", err)
		os.Exit(1)
	}

	// A missing token is reported per request so the health endpoint stays up.
	if cfg.APIToken == "" {
		logger.Warn("ATTIO_API_KEY is not set; submissions will be rejected with a configuration error")
	}
	if cfg.SigningSecret == "" {
		logger.Warn("TALLY_SIGNING_SECRET is not set; webhook signatures will not be verified")
	}

	// 1. Create the CRM client and the submission pipeline.
	client := crm.NewClient(cfg.BaseURL, cfg.APIToken, logger)
	p := pipeline.New(client, intake.NewExtractor(cfg.Fields), intake.NewNormalizer(cfg.PersonalDomains...), pipeline.Options{
		DealStage:      cfg.DealStage,
		DealOwner:      cfg.DealOwner,
		ExternalIDAttr: cfg.ExternalIDAttr,
	}, logger)

	// 2. Bound how many submissions hit the CRM at once.
	workerPool := worker.NewPool(cfg.QueueSize, p, logger)
	workerPool.Start(cfg.Workers)

	router := newRouter(logger, cfg, workerPool, client)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("Server starting", "address", server.Addr, "workers", cfg.Workers, "external_id_attribute", cfg.ExternalIDAttr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Server shutting down...")

	// Shut down the HTTP server first so in-flight requests can still reach the workers.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	workerPool.Stop()

	logger.Info("Server exited gracefully")
}

func newRouter(logger *slog.Logger, cfg *config.Config, runner webhooks.Runner, identifier setup.Identifier) http.Handler {
	webhookHandler := webhooks.NewHandler(logger, runner, cfg)
	setupHandler := &setup.Handler{Logger: logger, CRM: identifier, APIToken: cfg.APIToken}

	router := chi.NewRouter()
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(chimw.Recoverer)

	router.Route("/webhooks", func(r chi.Router) {
		r.With(middleware.VerifySignature(logger, cfg.SigningSecret)).Post("/tally", webhookHandler.HandleWebhook)
		r.MethodNotAllowed(webhookHandler.MethodNotAllowed)
	})
	router.Get("/health", webhookHandler.HealthCheck)
	router.Get("/setup/crm", setupHandler.HandleCRMCheck(cfg.ExternalIDAttr, cfg.SigningSecret != ""))

	return router
}
