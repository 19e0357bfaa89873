// Package feedback turns user-submitted feedback rows into notification
// emails for the team. The same service backs the synchronous dispatch
// endpoint and the scheduled sweep job.
package feedback

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"satlearn/internal/external"
	"satlearn/internal/metrics"
	"satlearn/internal/types"
)

// sweepBatchSize caps how many rows a single sweep run handles. The sweep is
// scheduled; anything beyond the cap waits for the next run.
const sweepBatchSize = 10

// Store is the persistence surface the service needs.
// Implemented by db.FeedbackRepo.
type Store interface {
	ListUnsent(ctx context.Context, limit int) ([]types.Feedback, error)
	MarkEmailSent(ctx context.Context, id string) error
}

// Config holds the addressing for outgoing feedback notifications.
type Config struct {
	FromAddress string
	Recipient   string
}

// SweepResult summarizes one sweep run.
type SweepResult struct {
	Processed int `json:"processed"`
	Errors    int `json:"errors"`
}

// Service sends feedback notification emails and tracks delivery state.
type Service struct {
	store   Store
	emailer external.EmailProvider
	cfg     Config
	metrics *metrics.Publisher
	logger  *slog.Logger
}

// NewService creates a feedback Service. The metrics publisher may be nil.
func NewService(store Store, emailer external.EmailProvider, cfg Config, m *metrics.Publisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:   store,
		emailer: emailer,
		cfg:     cfg,
		metrics: m,
		logger:  logger,
	}
}

// Dispatch sends the notification email for a single feedback entry and
// returns the provider message id. It does not touch the email_sent flag;
// that belongs to the sweep, which owns the persisted row.
func (s *Service) Dispatch(ctx context.Context, fb types.Feedback) (string, error) {
	msgID, err := s.emailer.Send(ctx, buildEmail(fb, s.cfg))
	if err != nil {
		s.metrics.RecordEmailDelivery(ctx, metrics.ResultFailure)
		return "", err
	}

	s.metrics.RecordEmailDelivery(ctx, metrics.ResultSuccess)
	s.logger.InfoContext(ctx, "feedback email dispatched",
		slog.String("feedback_id", fb.ID),
		slog.String("message_id", msgID),
	)
	return msgID, nil
}

// Sweep sends notification emails for up to sweepBatchSize unsent feedback
// rows, sequentially, continuing past per-item failures. A row is flagged
// email_sent only after its email went out, so failed rows are retried on the
// next run.
func (s *Service) Sweep(ctx context.Context) (SweepResult, error) {
	rows, err := s.store.ListUnsent(ctx, sweepBatchSize)
	if err != nil {
		return SweepResult{}, err
	}

	var result SweepResult
	for _, fb := range rows {
		if _, err := s.Dispatch(ctx, fb); err != nil {
			result.Errors++
			s.logger.ErrorContext(ctx, "feedback email failed",
				slog.String("feedback_id", fb.ID),
				slog.Any("error", err),
			)
			continue
		}

		if err := s.store.MarkEmailSent(ctx, fb.ID); err != nil {
			// The email went out but the flag did not stick; the next sweep
			// will resend. Counted as an error so operators notice.
			result.Errors++
			s.logger.ErrorContext(ctx, "failed to mark feedback sent",
				slog.String("feedback_id", fb.ID),
				slog.Any("error", err),
			)
			continue
		}

		result.Processed++
	}

	s.metrics.RecordSweepBatch(ctx, result.Processed)
	s.logger.InfoContext(ctx, "feedback sweep finished",
		slog.Int("processed", result.Processed),
		slog.Int("errors", result.Errors),
	)
	return result, nil
}

// buildEmail renders the notification email for a feedback entry.
func buildEmail(fb types.Feedback, cfg Config) types.SendInput {
	name := fb.Name
	if name == "" {
		name = "Anonymous"
	}
	category := fb.Category
	if category == "" {
		category = "general"
	}

	subject := fmt.Sprintf("New %s feedback from %s", category, name)

	var htmlBody strings.Builder
	htmlBody.WriteString("<h2>New feedback</h2>")
	htmlBody.WriteString(fmt.Sprintf("<p><strong>From:</strong> %s (%s)</p>",
		html.EscapeString(name), html.EscapeString(fb.Email)))
	htmlBody.WriteString(fmt.Sprintf("<p><strong>Category:</strong> %s</p>", html.EscapeString(category)))
	htmlBody.WriteString(fmt.Sprintf("<p>%s</p>", html.EscapeString(fb.Message)))

	text := fmt.Sprintf("New feedback\nFrom: %s (%s)\nCategory: %s\n\n%s",
		name, fb.Email, category, fb.Message)

	return types.SendInput{
		To:          cfg.Recipient,
		From:        cfg.FromAddress,
		Subject:     subject,
		HTML:        htmlBody.String(),
		Text:        text,
		ReferenceID: fb.ID,
	}
}
