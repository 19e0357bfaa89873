// Package main is the entry point for the satlearn billing API server.
//
// It loads configuration, connects the Supabase Postgres pool, constructs the
// Stripe/Resend/identity clients, wires the handlers onto the core chassis,
// and starts serving.
//
// In local mode (APP_ENV=local) it runs as a standard HTTP server on the
// configured port with graceful shutdown on SIGINT/SIGTERM. Inside AWS Lambda
// it bridges API Gateway events to the chi router via the HTTP adapter.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"

	"satlearn/internal/api/handlers"
	"satlearn/internal/billing"
	"satlearn/internal/config"
	"satlearn/internal/core"
	"satlearn/internal/db"
	"satlearn/internal/external"
	"satlearn/internal/feedback"
	"satlearn/internal/metrics"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("satlearn API starting",
		"environment", cfg.Environment,
		"port", cfg.Server.Port,
	)

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}
	defer pool.Close()

	publisher, err := newMetricsPublisher(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing metrics: %w", err)
	}

	// External clients. Local mode swaps in stubs so the server runs without
	// live Stripe/Resend/Supabase credentials.
	var (
		billingSvc  external.BillingService
		emailer     external.EmailProvider
		identitySvc external.IdentityService
	)
	if cfg.Environment == "local" {
		billingSvc = external.NewStubBillingService(logger)
		emailer = external.NewStubEmailProvider(logger)
		identitySvc = external.NewStubIdentityService(logger)
	} else {
		httpClient := &http.Client{Timeout: 30 * time.Second}
		billingSvc = external.NewStripeClient(httpClient, external.StripeClientConfig{
			SecretKey: cfg.Billing.StripeSecretKey.Unmask(),
			Logger:    logger,
		})
		emailer = external.NewResendClient(httpClient, external.ResendClientConfig{
			APIKey: cfg.Email.ResendAPIKey.Unmask(),
			Logger: logger,
		})
		identitySvc = external.NewIdentityClient(httpClient, external.IdentityClientConfig{
			BaseURL:    cfg.Identity.BaseURL,
			ServiceKey: cfg.Identity.ServiceKey.Unmask(),
			Logger:     logger,
		})
	}

	subRepo := db.NewSubscriptionRepo(pool, logger)
	feedbackRepo := db.NewFeedbackRepo(pool, logger)

	reconciler := billing.NewReconciler(subRepo, logger)
	feedbackSvc := feedback.NewService(feedbackRepo, emailer, feedback.Config{
		FromAddress: cfg.Email.FromAddress,
		Recipient:   cfg.Email.FeedbackRecipient,
	}, publisher, logger)

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.HealthProbes = append(srv.HealthProbes, db.NewPoolProbe(pool))

	webhookHandler := handlers.NewStripeWebhookHandler(
		external.NewStripeVerifier(cfg.Billing.WebhookTolerance),
		reconciler,
		subRepo,
		billingSvc,
		cfg.Billing.StripeWebhookSecret.Unmask(),
		publisher,
		logger,
	)
	billingHandler := handlers.NewBillingHandler(
		billingSvc,
		subRepo,
		identitySvc,
		srv.Validator,
		strings.TrimSuffix(cfg.Server.SiteURL, "/"),
		logger,
	)
	feedbackHandler := handlers.NewFeedbackHandler(feedbackSvc, srv.Validator, logger)

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		billingHandler.RegisterRoutes,
		feedbackHandler.RegisterRoutes,
	)
	srv.RootRouteRegistrars = append(srv.RootRouteRegistrars,
		webhookHandler.RegisterRoutes,
		feedbackHandler.RegisterInternalRoutes,
	)

	srv.MountRoutes()

	if isLambdaEnvironment() {
		return runLambda(srv, logger)
	}
	return runHTTPServer(srv, cfg, logger)
}

// newLogger builds the process-wide structured JSON logger.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}

// newMetricsPublisher creates the CloudWatch publisher, or a nil (no-op)
// publisher when metrics are disabled.
func newMetricsPublisher(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*metrics.Publisher, error) {
	if !cfg.Metrics.Enabled {
		return nil, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return metrics.NewPublisher(cloudwatch.NewFromConfig(awsCfg), cfg.Metrics.Namespace, logger), nil
}

// isLambdaEnvironment returns true if the process is running inside AWS Lambda.
func isLambdaEnvironment() bool {
	_, hasRuntimeAPI := os.LookupEnv("AWS_LAMBDA_RUNTIME_API")
	_, hasServerPort := os.LookupEnv("_LAMBDA_SERVER_PORT")
	return hasRuntimeAPI || hasServerPort
}

// runLambda bridges API Gateway proxy events to the chi router.
func runLambda(srv *core.Server, logger *slog.Logger) error {
	logger.Info("starting in Lambda mode")
	adapter := httpadapter.New(srv.Handler())
	lambda.Start(adapter.ProxyWithContext)
	return nil
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	return srv.Shutdown(ctx)
}
