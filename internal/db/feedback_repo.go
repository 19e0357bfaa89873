package db

import (
	"context"
	"log/slog"

	"satlearn/internal/types"
)

// FeedbackRepo reads user feedback rows written by the public site and flags
// them once the notification email has gone out.
type FeedbackRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewFeedbackRepo creates a new FeedbackRepo.
func NewFeedbackRepo(db DBTX, logger *slog.Logger) *FeedbackRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &FeedbackRepo{db: db, logger: logger}
}

// ListUnsent returns up to limit feedback rows whose notification email has
// not been sent yet, oldest first.
func (r *FeedbackRepo) ListUnsent(ctx context.Context, limit int) ([]types.Feedback, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, email, COALESCE(name, ''), COALESCE(category, ''), message, email_sent, created_at
		 FROM feedback
		 WHERE email_sent = FALSE
		 ORDER BY created_at ASC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list unsent feedback", err)
	}
	defer rows.Close()

	var out []types.Feedback
	for rows.Next() {
		var f types.Feedback
		if err := rows.Scan(&f.ID, &f.Email, &f.Name, &f.Category, &f.Message, &f.EmailSent, &f.CreatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan feedback row", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate feedback rows", err)
	}
	return out, nil
}

// MarkEmailSent flips the email_sent flag for a single feedback row.
func (r *FeedbackRepo) MarkEmailSent(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE feedback SET email_sent = TRUE WHERE id = $1`,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark feedback sent", err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.WarnContext(ctx, "mark sent for unknown feedback row", slog.String("id", id))
	}
	return nil
}
