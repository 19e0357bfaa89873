// Package main is the entrypoint for the feedback sweep Lambda function.
//
// The worker runs on a CloudWatch schedule (EventBridge rule, every few
// minutes) and sweeps feedback rows whose notification email has not gone out
// yet -- the durable fallback behind the synchronous dispatch endpoint. Each
// invocation processes one batch; anything beyond the batch cap waits for the
// next tick.
//
// Cold start initializes configuration, the Postgres pool, the Resend client,
// and the CloudWatch metrics publisher; the handler then reuses them across
// invocations.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"satlearn/internal/config"
	"satlearn/internal/db"
	"satlearn/internal/external"
	"satlearn/internal/feedback"
	"satlearn/internal/metrics"
)

// Handler holds the long-lived dependencies for the sweep Lambda.
type Handler struct {
	service *feedback.Service
	logger  *slog.Logger
}

// Handle runs one sweep in response to a scheduled event.
func (h *Handler) Handle(ctx context.Context, event events.CloudWatchEvent) error {
	h.logger.InfoContext(ctx, "feedback sweep triggered",
		"event_id", event.ID,
		"event_time", event.Time,
	)

	result, err := h.service.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("running feedback sweep: %w", err)
	}

	h.logger.InfoContext(ctx, "feedback sweep completed",
		"processed", result.Processed,
		"errors", result.Errors,
	)
	return nil
}

func main() {
	handler, cleanup, err := initialize(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	lambda.Start(handler.Handle)
}

// initialize wires the handler dependencies at cold start.
func initialize(ctx context.Context) (*Handler, func(), error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("feedback worker starting", "environment", cfg.Environment)

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting database: %w", err)
	}

	var publisher *metrics.Publisher
	if cfg.Metrics.Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("loading AWS config: %w", err)
		}
		publisher = metrics.NewPublisher(cloudwatch.NewFromConfig(awsCfg), cfg.Metrics.Namespace, logger)
	}

	var emailer external.EmailProvider
	if cfg.Environment == "local" {
		emailer = external.NewStubEmailProvider(logger)
	} else {
		emailer = external.NewResendClient(&http.Client{Timeout: 30 * time.Second}, external.ResendClientConfig{
			APIKey: cfg.Email.ResendAPIKey.Unmask(),
			Logger: logger,
		})
	}

	service := feedback.NewService(
		db.NewFeedbackRepo(pool, logger),
		emailer,
		feedback.Config{
			FromAddress: cfg.Email.FromAddress,
			Recipient:   cfg.Email.FeedbackRecipient,
		},
		publisher,
		logger,
	)

	return &Handler{service: service, logger: logger}, pool.Close, nil
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
