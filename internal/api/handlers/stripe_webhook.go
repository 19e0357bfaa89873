// Package handlers contains the HTTP handler implementations for the
// satlearn billing API.
//
// This file implements the Stripe webhook receiver. The endpoint is NOT
// behind auth middleware -- Stripe calls it directly. Security comes from
// verifying the Stripe-Signature header with HMAC-SHA256.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"satlearn/internal/billing"
	"satlearn/internal/core"
	"satlearn/internal/external"
	"satlearn/internal/metrics"
	"satlearn/internal/types"
)

// maxWebhookBodySize is the maximum allowed Stripe webhook payload (64 KB).
// Stripe payloads are small; the limit protects against abuse.
const maxWebhookBodySize = 64 * 1024

// errEventDropped marks an event that cannot be applied (no user correlator,
// no subscription reference). Dropped events are acknowledged, never retried.
var errEventDropped = errors.New("webhook event dropped")

// ---------------------------------------------------------------------------
// Interfaces for webhook handler dependencies
// ---------------------------------------------------------------------------

// SubscriptionReconciler merges a provider subscription into the local record.
// Implemented by billing.Reconciler.
type SubscriptionReconciler interface {
	Reconcile(ctx context.Context, ps billing.ProviderSubscription, userID string) error
}

// SubscriptionStatusWriter is the narrow update surface invoice and deletion
// events need: they carry no full subscription snapshot, so they may only
// touch the status columns of the row matching the provider subscription id.
type SubscriptionStatusWriter interface {
	MarkCanceled(ctx context.Context, stripeSubscriptionID string, endedAt time.Time) error
	SetStatusBySubscriptionID(ctx context.Context, stripeSubscriptionID string, status types.SubscriptionStatus) error
}

// SubscriptionFetcher retrieves the full provider subscription referenced by
// a checkout session.
type SubscriptionFetcher interface {
	GetSubscription(ctx context.Context, subscriptionID string) (*billing.ProviderSubscription, error)
}

// ---------------------------------------------------------------------------
// Stripe Webhook Handler
// ---------------------------------------------------------------------------

// StripeWebhookHandler handles asynchronous billing events from Stripe.
type StripeWebhookHandler struct {
	verifier   external.WebhookVerifier
	reconciler SubscriptionReconciler
	subs       SubscriptionStatusWriter
	fetcher    SubscriptionFetcher
	secret     string
	metrics    *metrics.Publisher
	logger     *slog.Logger

	nowFn func() time.Time
}

// NewStripeWebhookHandler creates a StripeWebhookHandler. The metrics
// publisher may be nil.
func NewStripeWebhookHandler(
	verifier external.WebhookVerifier,
	reconciler SubscriptionReconciler,
	subs SubscriptionStatusWriter,
	fetcher SubscriptionFetcher,
	secret string,
	m *metrics.Publisher,
	logger *slog.Logger,
) *StripeWebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeWebhookHandler{
		verifier:   verifier,
		reconciler: reconciler,
		subs:       subs,
		fetcher:    fetcher,
		secret:     secret,
		metrics:    m,
		logger:     logger,
		nowFn:      time.Now,
	}
}

// RegisterRoutes mounts the webhook endpoint. Separate from the billing
// routes because webhook routes are public (no auth, raw body).
func (h *StripeWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/stripe", h.Handle)
}

// Handle processes an incoming Stripe webhook delivery:
//  1. Reads the raw body (size-limited).
//  2. Verifies the Stripe-Signature header; 400 on failure.
//  3. Parses the event envelope and routes by type.
//  4. Always acknowledges with 200 {"received": true} once the signature
//     checks out, even if processing failed -- Stripe redelivery is the only
//     retry mechanism, and a 500 on a poison event would loop forever.
func (h *StripeWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.WarnContext(r.Context(), "failed to read webhook body", "error", err)
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationInvalidJSON,
			"failed to read request body",
			err,
		))
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if err := h.verifier.Verify(payload, sigHeader, h.secret); err != nil {
		h.logger.WarnContext(r.Context(), "webhook signature verification failed", "error", err)
		core.Error(w, r, err)
		return
	}

	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to parse webhook event JSON", "error", err)
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationInvalidJSON,
			"invalid webhook event JSON",
			err,
		))
		return
	}

	h.logger.InfoContext(r.Context(), "processing stripe webhook event",
		"event_id", event.ID,
		"event_type", event.Type,
	)

	switch err := h.routeEvent(r.Context(), &event); {
	case errors.Is(err, errEventDropped):
		h.metrics.RecordWebhookEvent(r.Context(), event.Type, metrics.ResultDropped)
	case err != nil:
		h.metrics.RecordWebhookEvent(r.Context(), event.Type, metrics.ResultFailure)
		h.logger.ErrorContext(r.Context(), "webhook event processing failed",
			"event_id", event.ID,
			"event_type", event.Type,
			"error", err,
		)
	default:
		h.metrics.RecordWebhookEvent(r.Context(), event.Type, metrics.ResultSuccess)
	}

	core.JSON(w, r, http.StatusOK, map[string]bool{"received": true})
}

// routeEvent dispatches the event to the matching handler. Unrecognized
// types are a logged no-op; the delivery is still acknowledged.
func (h *StripeWebhookHandler) routeEvent(ctx context.Context, event *stripeEvent) error {
	switch event.Type {
	case external.EventCheckoutCompleted:
		return h.handleCheckoutCompleted(ctx, event)

	case external.EventSubscriptionCreated, external.EventSubscriptionUpdated:
		return h.handleSubscriptionChanged(ctx, event)

	case external.EventSubscriptionDeleted:
		return h.handleSubscriptionDeleted(ctx, event)

	case external.EventInvoicePaymentSuccess:
		return h.handleInvoicePaymentSucceeded(ctx, event)

	case external.EventInvoicePaymentFailed:
		return h.handleInvoicePaymentFailed(ctx, event)

	default:
		h.logger.InfoContext(ctx, "ignoring unhandled webhook event type",
			"event_type", event.Type,
		)
		return nil
	}
}

// handleCheckoutCompleted confirms a new subscription after the user finished
// the hosted checkout flow. The session object only references the
// subscription, so the full object is fetched before reconciling.
func (h *StripeWebhookHandler) handleCheckoutCompleted(ctx context.Context, event *stripeEvent) error {
	var session checkoutSessionPayload
	if err := event.decodeObject(&session); err != nil {
		return fmt.Errorf("checkout.session.completed: %w", err)
	}

	userID := session.userID()
	if userID == "" {
		// Accepted data loss: without a correlator there is no row to
		// write. Logged and dropped, never escalated.
		h.logger.WarnContext(ctx, "checkout session event without user_id, dropping",
			"event_id", event.ID,
		)
		return errEventDropped
	}
	if session.Subscription == "" {
		h.logger.WarnContext(ctx, "checkout session event without subscription, dropping",
			"event_id", event.ID,
			"user_id", userID,
		)
		return errEventDropped
	}

	ps, err := h.fetcher.GetSubscription(ctx, session.Subscription)
	if err != nil {
		return fmt.Errorf("checkout.session.completed: fetch subscription: %w", err)
	}

	return h.reconciler.Reconcile(ctx, *ps, userID)
}

// handleSubscriptionChanged reconciles created/updated subscription events.
// The event carries the full subscription object inline.
func (h *StripeWebhookHandler) handleSubscriptionChanged(ctx context.Context, event *stripeEvent) error {
	var sub subscriptionPayload
	if err := event.decodeObject(&sub); err != nil {
		return fmt.Errorf("%s: %w", event.Type, err)
	}

	userID := sub.Metadata["user_id"]
	if userID == "" {
		h.logger.WarnContext(ctx, "subscription event without user_id metadata, dropping",
			"event_id", event.ID,
			"stripe_subscription_id", sub.ID,
		)
		return errEventDropped
	}

	return h.reconciler.Reconcile(ctx, sub.toProviderSubscription(), userID)
}

// handleSubscriptionDeleted transitions the local row straight to canceled.
// This is a narrow status update, not a full reconcile: the deleted object's
// period fields describe the subscription that no longer exists.
func (h *StripeWebhookHandler) handleSubscriptionDeleted(ctx context.Context, event *stripeEvent) error {
	var sub subscriptionPayload
	if err := event.decodeObject(&sub); err != nil {
		return fmt.Errorf("customer.subscription.deleted: %w", err)
	}
	if sub.ID == "" {
		h.logger.WarnContext(ctx, "subscription deleted event without id, dropping",
			"event_id", event.ID,
		)
		return errEventDropped
	}

	return h.subs.MarkCanceled(ctx, sub.ID, h.nowFn().UTC())
}

// handleInvoicePaymentSucceeded forces the matching row back to active
// without touching tier or period bounds.
func (h *StripeWebhookHandler) handleInvoicePaymentSucceeded(ctx context.Context, event *stripeEvent) error {
	var invoice invoicePayload
	if err := event.decodeObject(&invoice); err != nil {
		return fmt.Errorf("invoice.payment_succeeded: %w", err)
	}
	if invoice.Subscription == "" {
		h.logger.WarnContext(ctx, "invoice event without subscription, dropping",
			"event_id", event.ID,
		)
		return errEventDropped
	}

	return h.subs.SetStatusBySubscriptionID(ctx, invoice.Subscription, types.SubStatusActive)
}

// handleInvoicePaymentFailed marks the row past_due while Stripe is still
// retrying the invoice, or canceled once the attempt count hits the dunning
// threshold.
func (h *StripeWebhookHandler) handleInvoicePaymentFailed(ctx context.Context, event *stripeEvent) error {
	var invoice invoicePayload
	if err := event.decodeObject(&invoice); err != nil {
		return fmt.Errorf("invoice.payment_failed: %w", err)
	}
	if invoice.Subscription == "" {
		h.logger.WarnContext(ctx, "invoice event without subscription, dropping",
			"event_id", event.ID,
		)
		return errEventDropped
	}

	status := billing.PaymentFailureStatus(invoice.AttemptCount)
	h.logger.WarnContext(ctx, "invoice payment failed",
		"event_id", event.ID,
		"stripe_subscription_id", invoice.Subscription,
		"attempt_count", invoice.AttemptCount,
		"new_status", string(status),
	)

	return h.subs.SetStatusBySubscriptionID(ctx, invoice.Subscription, status)
}

// ---------------------------------------------------------------------------
// Stripe Event Parsing
// ---------------------------------------------------------------------------

// stripeEvent is a minimal representation of a Stripe webhook event. The full
// stripe.Event type is avoided so the handler stays decoupled from the SDK
// and the typed payloads below document exactly which fields each branch
// consumes.
type stripeEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

// decodeObject unmarshals the nested data.object into the typed payload.
func (e *stripeEvent) decodeObject(dst any) error {
	if len(e.Data.Object) == 0 {
		return fmt.Errorf("event %s has no data object", e.ID)
	}
	if err := json.Unmarshal(e.Data.Object, dst); err != nil {
		return fmt.Errorf("event %s: decoding data object: %w", e.ID, err)
	}
	return nil
}

// checkoutSessionPayload is the subset of checkout.session.completed's object.
type checkoutSessionPayload struct {
	ID                string            `json:"id"`
	ClientReferenceID string            `json:"client_reference_id"`
	Customer          string            `json:"customer"`
	Subscription      string            `json:"subscription"`
	Metadata          map[string]string `json:"metadata"`
}

// userID resolves the user correlator: client_reference_id first (set by the
// checkout initiator), then session metadata.
func (p *checkoutSessionPayload) userID() string {
	if p.ClientReferenceID != "" {
		return p.ClientReferenceID
	}
	return p.Metadata["user_id"]
}

// subscriptionPayload is the subset of a customer.subscription.* object.
type subscriptionPayload struct {
	ID                string            `json:"id"`
	Customer          string            `json:"customer"`
	Status            string            `json:"status"`
	CancelAtPeriodEnd bool              `json:"cancel_at_period_end"`
	Created           int64             `json:"created"`
	CurrentPeriodEnd  int64             `json:"current_period_end"`
	Metadata          map[string]string `json:"metadata"`
	Items             subItemsPayload   `json:"items"`
}

type subItemsPayload struct {
	Data []subItemPayload `json:"data"`
}

type subItemPayload struct {
	Price subPricePayload `json:"price"`
}

type subPricePayload struct {
	ID string `json:"id"`
}

func (p *subscriptionPayload) toProviderSubscription() billing.ProviderSubscription {
	ps := billing.ProviderSubscription{
		ID:                p.ID,
		CustomerID:        p.Customer,
		Status:            p.Status,
		CancelAtPeriodEnd: p.CancelAtPeriodEnd,
		Created:           p.Created,
		CurrentPeriodEnd:  p.CurrentPeriodEnd,
	}
	if len(p.Items.Data) > 0 {
		ps.PriceID = p.Items.Data[0].Price.ID
	}
	return ps
}

// invoicePayload is the subset of an invoice.* object.
type invoicePayload struct {
	ID           string `json:"id"`
	Subscription string `json:"subscription"`
	AttemptCount int    `json:"attempt_count"`
}
