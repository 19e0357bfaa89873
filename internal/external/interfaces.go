package external

import (
	"context"

	"satlearn/internal/billing"
	"satlearn/internal/types"
)

// ---------------------------------------------------------------------------
// Billing Integration (Stripe)
// ---------------------------------------------------------------------------

// CheckoutSessionParams carries everything needed to open a subscription-mode
// checkout for a known customer.
type CheckoutSessionParams struct {
	CustomerID string
	PriceID    string
	UserID     string
	SuccessURL string
	CancelURL  string
}

// BillingService abstracts the payment provider's REST API. Implementations
// translate between domain types and vendor-specific wire formats.
type BillingService interface {
	// EnsureCustomer retrieves or creates a provider customer for the given
	// user. Search-first by user_id metadata to prevent duplicates.
	EnsureCustomer(ctx context.Context, userID string, email string) (string, error)

	// CreateCheckoutSession opens a subscription-mode checkout session with
	// promotion codes enabled and user_id metadata on both the session and
	// the future subscription, so webhook events can correlate back.
	CreateCheckoutSession(ctx context.Context, p CheckoutSessionParams) (sessionID string, err error)

	// CreatePortalSession opens a self-serve billing portal session for an
	// existing customer and returns its URL.
	CreatePortalSession(ctx context.Context, customerID string, returnURL string) (portalURL string, err error)

	// SetCancelAtPeriodEnd flags the provider subscription to stop renewing
	// at the end of the current period.
	SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string) error

	// GetSubscription retrieves the provider subscription by id. Needed by
	// the checkout-completed webhook, whose session object only references
	// the subscription.
	GetSubscription(ctx context.Context, subscriptionID string) (*billing.ProviderSubscription, error)
}

// WebhookVerifier abstracts webhook signature checking.
type WebhookVerifier interface {
	// Verify validates a webhook payload against the provided signature
	// header and signing secret. Returns nil on success.
	Verify(payload []byte, header string, secret string) error
}

// Stripe event type constants prevent magic strings in the webhook handler.
const (
	EventCheckoutCompleted     = "checkout.session.completed"
	EventSubscriptionCreated   = "customer.subscription.created"
	EventSubscriptionUpdated   = "customer.subscription.updated"
	EventSubscriptionDeleted   = "customer.subscription.deleted"
	EventInvoicePaymentSuccess = "invoice.payment_succeeded"
	EventInvoicePaymentFailed  = "invoice.payment_failed"
)

// ---------------------------------------------------------------------------
// Email Integration (Resend)
// ---------------------------------------------------------------------------

// EmailProvider abstracts the transactional email service. Implementations
// transmit pre-rendered content and return the provider's message id.
type EmailProvider interface {
	Send(ctx context.Context, input types.SendInput) (providerMsgID string, err error)
}

// ---------------------------------------------------------------------------
// Identity Integration (Supabase Auth)
// ---------------------------------------------------------------------------

// IdentityService resolves a user id into the identity record (notably the
// email address) needed when creating a provider customer.
type IdentityService interface {
	GetUser(ctx context.Context, userID string) (*types.IdentityUser, error)
}
