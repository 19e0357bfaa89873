// Package billing holds the subscription reconciliation domain logic: mapping
// payment-provider subscription state into the canonical local record.
package billing

import (
	"context"
	"log/slog"
	"time"

	"satlearn/internal/types"
)

// paymentFailedCancelThreshold is the invoice attempt count at which a
// past-due subscription is given up on and marked canceled. Stripe retries
// failed invoices on its own schedule; after the third attempt we stop
// treating the subscription as recoverable.
const paymentFailedCancelThreshold = 3

// ProviderSubscription is the subset of the provider's subscription object
// that reconciliation consumes. Epoch fields are provider-native Unix seconds.
type ProviderSubscription struct {
	ID                string
	CustomerID        string
	Status            string
	CancelAtPeriodEnd bool
	Created           int64
	CurrentPeriodEnd  int64
	PriceID           string
}

// SubscriptionStore is the persistence surface the reconciler needs.
// Implemented by db.SubscriptionRepo.
type SubscriptionStore interface {
	Upsert(ctx context.Context, sub types.SubscriptionUpsert) error
}

// Reconciler computes the canonical local subscription record from a
// provider-side subscription object and persists it with a single
// conflict-resolving upsert keyed on user_id.
type Reconciler struct {
	store  SubscriptionStore
	logger *slog.Logger
}

// NewReconciler creates a Reconciler.
func NewReconciler(store SubscriptionStore, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{store: store, logger: logger}
}

// Reconcile merges the provider subscription into the user's local row.
// Applying the same payload twice yields the same row (excluding updated_at).
// Only invoked for paid subscriptions, so the tier is always premium.
func (r *Reconciler) Reconcile(ctx context.Context, ps ProviderSubscription, userID string) error {
	upsert := types.SubscriptionUpsert{
		UserID:               userID,
		Tier:                 types.TierPremium,
		Status:               DeriveStatus(ps.Status, ps.CancelAtPeriodEnd),
		StripeCustomerID:     ps.CustomerID,
		StripeSubscriptionID: ps.ID,
		StripePriceID:        ps.PriceID,
		StartDate:            epochToTime(ps.Created),
		EndDate:              epochToTime(ps.CurrentPeriodEnd),
		CancelAtPeriodEnd:    ps.CancelAtPeriodEnd,
	}

	if err := r.store.Upsert(ctx, upsert); err != nil {
		return err
	}

	r.logger.InfoContext(ctx, "subscription reconciled",
		slog.String("user_id", userID),
		slog.String("stripe_subscription_id", ps.ID),
		slog.String("status", string(upsert.Status)),
	)
	return nil
}

// DeriveStatus maps the provider's subscription status to the local lifecycle
// state. An active subscription scheduled to cancel at period end is surfaced
// as active_until_period_end so the app can show the right banner.
func DeriveStatus(providerStatus string, cancelAtPeriodEnd bool) types.SubscriptionStatus {
	if providerStatus == "active" && cancelAtPeriodEnd {
		return types.SubStatusActiveUntilPeriodEnd
	}
	switch providerStatus {
	case "active", "trialing":
		return types.SubStatusActive
	case "past_due":
		return types.SubStatusPastDue
	case "canceled", "unpaid", "incomplete_expired":
		return types.SubStatusCanceled
	default:
		// Transient provider states (incomplete, paused) pass through
		// unchanged; the next lifecycle webhook settles them.
		return types.SubscriptionStatus(providerStatus)
	}
}

// PaymentFailureStatus decides the local status after a failed invoice
// payment: past_due while the provider is still retrying, canceled once the
// attempt count reaches the threshold.
func PaymentFailureStatus(attemptCount int) types.SubscriptionStatus {
	if attemptCount >= paymentFailedCancelThreshold {
		return types.SubStatusCanceled
	}
	return types.SubStatusPastDue
}

func epochToTime(epoch int64) *time.Time {
	if epoch == 0 {
		return nil
	}
	t := time.Unix(epoch, 0).UTC()
	return &t
}
