package db

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"satlearn/internal/types"
)

// SubscriptionRepo manages the local subscriptions table, which mirrors the
// payment provider's state one row per user.
//
// Key invariants:
//   - Upsert is a single conflict-resolving statement keyed on user_id, so a
//     webhook and a checkout placeholder racing on the same user cannot
//     produce duplicate rows or a lost update.
//   - Rows are never hard-deleted; cancellation is a status transition.
type SubscriptionRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewSubscriptionRepo creates a new SubscriptionRepo backed by the given
// database connection (pool or transaction).
func NewSubscriptionRepo(db DBTX, logger *slog.Logger) *SubscriptionRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubscriptionRepo{db: db, logger: logger}
}

// Upsert merges provider-derived state into the user's subscription row.
// Inserts when no row exists, otherwise overwrites the billing columns.
func (r *SubscriptionRepo) Upsert(ctx context.Context, sub types.SubscriptionUpsert) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO subscriptions (
		     user_id, tier, status,
		     stripe_customer_id, stripe_subscription_id, stripe_price_id,
		     start_date, end_date, cancel_at_period_end,
		     created_at, updated_at
		 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		 ON CONFLICT (user_id) DO UPDATE SET
		     tier = EXCLUDED.tier,
		     status = EXCLUDED.status,
		     stripe_customer_id = EXCLUDED.stripe_customer_id,
		     stripe_subscription_id = EXCLUDED.stripe_subscription_id,
		     stripe_price_id = EXCLUDED.stripe_price_id,
		     start_date = EXCLUDED.start_date,
		     end_date = EXCLUDED.end_date,
		     cancel_at_period_end = EXCLUDED.cancel_at_period_end,
		     updated_at = NOW()`,
		sub.UserID,
		sub.Tier,
		sub.Status,
		sub.StripeCustomerID,
		sub.StripeSubscriptionID,
		sub.StripePriceID,
		sub.StartDate,
		sub.EndDate,
		sub.CancelAtPeriodEnd,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert subscription", err)
	}
	return nil
}

// GetByUserID loads the user's subscription row. Returns a not-found AppError
// when no row exists, distinguishable from infrastructure failures.
func (r *SubscriptionRepo) GetByUserID(ctx context.Context, userID string) (*types.Subscription, error) {
	var sub types.Subscription
	err := r.db.QueryRow(ctx,
		`SELECT user_id, tier, status,
		        COALESCE(stripe_customer_id, ''),
		        COALESCE(stripe_subscription_id, ''),
		        COALESCE(stripe_price_id, ''),
		        start_date, end_date, cancel_at_period_end,
		        created_at, updated_at
		 FROM subscriptions
		 WHERE user_id = $1`,
		userID,
	).Scan(
		&sub.UserID,
		&sub.Tier,
		&sub.Status,
		&sub.StripeCustomerID,
		&sub.StripeSubscriptionID,
		&sub.StripePriceID,
		&sub.StartDate,
		&sub.EndDate,
		&sub.CancelAtPeriodEnd,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundSubscription, "subscription not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load subscription", err)
	}
	return &sub, nil
}

// InsertPlaceholder records a newly created Stripe customer for a user who has
// not purchased anything yet (tier free, status none). Uses the same
// conflict-resolving statement as Upsert but only touches the customer id on
// conflict, so it cannot clobber billing state written by a racing webhook.
func (r *SubscriptionRepo) InsertPlaceholder(ctx context.Context, userID, customerID string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO subscriptions (user_id, tier, status, stripe_customer_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, NOW(), NOW())
		 ON CONFLICT (user_id) DO UPDATE SET
		     stripe_customer_id = EXCLUDED.stripe_customer_id,
		     updated_at = NOW()`,
		userID,
		types.TierFree,
		types.SubStatusNone,
		customerID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert placeholder subscription", err)
	}
	return nil
}

// MarkCanceled transitions the row identified by the provider subscription id
// to canceled, stamping the end date with the deletion time.
func (r *SubscriptionRepo) MarkCanceled(ctx context.Context, stripeSubscriptionID string, endedAt time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE subscriptions
		 SET status = $1,
		     end_date = $2,
		     cancel_at_period_end = FALSE,
		     updated_at = NOW()
		 WHERE stripe_subscription_id = $3`,
		types.SubStatusCanceled,
		endedAt,
		stripeSubscriptionID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark subscription canceled", err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.WarnContext(ctx, "deletion event for unknown subscription",
			slog.String("stripe_subscription_id", stripeSubscriptionID),
		)
	}
	return nil
}

// SetStatusBySubscriptionID narrows the payment-state column only, leaving
// tier and period bounds untouched. Used by invoice payment events, which do
// not carry full subscription snapshots.
func (r *SubscriptionRepo) SetStatusBySubscriptionID(ctx context.Context, stripeSubscriptionID string, status types.SubscriptionStatus) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE subscriptions
		 SET status = $1,
		     updated_at = NOW()
		 WHERE stripe_subscription_id = $2`,
		status,
		stripeSubscriptionID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update subscription status", err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.WarnContext(ctx, "status update for unknown subscription",
			slog.String("stripe_subscription_id", stripeSubscriptionID),
			slog.String("status", string(status)),
		)
	}
	return nil
}

// SetCancelAtPeriodEnd flags the user's subscription for end-of-period
// cancellation. The WHERE clause is scoped by both the subscription id and the
// user id so a caller can never flag another user's row.
func (r *SubscriptionRepo) SetCancelAtPeriodEnd(ctx context.Context, stripeSubscriptionID, userID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE subscriptions
		 SET cancel_at_period_end = TRUE,
		     status = $1,
		     updated_at = NOW()
		 WHERE stripe_subscription_id = $2
		   AND user_id = $3`,
		types.SubStatusActiveUntilPeriodEnd,
		stripeSubscriptionID,
		userID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to flag cancel at period end", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundSubscription,
			"subscription not found for user", nil)
	}
	return nil
}
