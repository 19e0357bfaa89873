// Package types defines the shared domain model for the satlearn billing
// platform: subscription records, feedback entries, enums, the AppError
// taxonomy, and context helpers used across packages.
package types

import "time"

// Tier is the access level granted to a user.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// SubscriptionStatus is the local subscription lifecycle state. It is derived
// from the payment provider's state, never invented locally.
type SubscriptionStatus string

const (
	// SubStatusNone marks a placeholder row created before any checkout
	// completed (e.g., when a Stripe customer is created for a free user).
	SubStatusNone SubscriptionStatus = "none"

	SubStatusActive SubscriptionStatus = "active"

	// SubStatusActiveUntilPeriodEnd means the provider reports the
	// subscription as active but it is scheduled to cancel at period end.
	SubStatusActiveUntilPeriodEnd SubscriptionStatus = "active_until_period_end"

	SubStatusPastDue  SubscriptionStatus = "past_due"
	SubStatusCanceled SubscriptionStatus = "canceled"
)

// Subscription is the local mirror of a user's billing state. One row per
// user; the row is created on first checkout attempt or first webhook event
// and is never hard-deleted -- cancellation is a status transition.
type Subscription struct {
	UserID               string             `json:"user_id"`
	Tier                 Tier               `json:"tier"`
	Status               SubscriptionStatus `json:"status"`
	StripeCustomerID     string             `json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID string             `json:"stripe_subscription_id,omitempty"`
	StripePriceID        string             `json:"stripe_price_id,omitempty"`
	StartDate            *time.Time         `json:"start_date,omitempty"`
	EndDate              *time.Time         `json:"end_date,omitempty"`
	CancelAtPeriodEnd    bool               `json:"cancel_at_period_end"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

// SubscriptionUpsert carries the provider-derived fields merged into the
// subscriptions table by a single conflict-resolving upsert keyed on user_id.
type SubscriptionUpsert struct {
	UserID               string
	Tier                 Tier
	Status               SubscriptionStatus
	StripeCustomerID     string
	StripeSubscriptionID string
	StripePriceID        string
	StartDate            *time.Time
	EndDate              *time.Time
	CancelAtPeriodEnd    bool
}

// Feedback is a user-submitted feedback entry. Rows are written by the public
// site (external collaborator); this service only reads them and flags
// email_sent after the notification email goes out.
type Feedback struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	Message   string    `json:"message"`
	EmailSent bool      `json:"email_sent"`
	CreatedAt time.Time `json:"created_at"`
}

// SendInput describes a single transactional email handed to the provider.
type SendInput struct {
	To      string
	From    string
	Subject string
	HTML    string
	Text    string
	// ReferenceID correlates the provider message with a local record
	// (e.g., a feedback row id).
	ReferenceID string
}

// IdentityUser is the subset of the identity service's user record that the
// billing flows need.
type IdentityUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}
