package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"satlearn/internal/core"
	"satlearn/internal/external"
	"satlearn/internal/types"
)

// ---------------------------------------------------------------------------
// Interfaces for billing handler dependencies
// ---------------------------------------------------------------------------

// CheckoutService is the slice of the payment provider client the handler
// needs. Implemented by external.StripeClient.
type CheckoutService interface {
	EnsureCustomer(ctx context.Context, userID, email string) (string, error)
	CreateCheckoutSession(ctx context.Context, p external.CheckoutSessionParams) (string, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
	SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string) error
}

// SubscriptionStore is the subscription persistence surface the billing
// endpoints use. Implemented by db.SubscriptionRepo.
type SubscriptionStore interface {
	GetByUserID(ctx context.Context, userID string) (*types.Subscription, error)
	InsertPlaceholder(ctx context.Context, userID, stripeCustomerID string) error
	SetCancelAtPeriodEnd(ctx context.Context, stripeSubscriptionID, userID string) error
}

// UserDirectory resolves a user id to their account email. Implemented by
// external.IdentityClient against the Supabase admin API.
type UserDirectory interface {
	GetUser(ctx context.Context, userID string) (*types.IdentityUser, error)
}

// ---------------------------------------------------------------------------
// Request / Response Types
// ---------------------------------------------------------------------------

type createCheckoutSessionRequest struct {
	PriceID string `json:"price_id" validate:"required"`
	UserID  string `json:"user_id" validate:"required"`
}

type createCheckoutSessionResponse struct {
	SessionID string `json:"session_id"`
}

type createPortalSessionRequest struct {
	UserID    string `json:"user_id" validate:"required"`
	ReturnURL string `json:"return_url" validate:"omitempty,url"`
}

type createPortalSessionResponse struct {
	URL string `json:"url"`
}

type cancelSubscriptionRequest struct {
	StripeSubscriptionID string `json:"stripe_subscription_id" validate:"required"`
	UserID               string `json:"user_id" validate:"required"`
}

type cancelSubscriptionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ---------------------------------------------------------------------------
// Billing Handler
// ---------------------------------------------------------------------------

// BillingHandler handles the synchronous, user-initiated billing endpoints:
// starting a checkout, opening the self-service portal, and scheduling a
// cancellation.
type BillingHandler struct {
	checkout  CheckoutService
	subs      SubscriptionStore
	directory UserDirectory
	validator *core.Validator
	siteURL   string
	logger    *slog.Logger
}

// NewBillingHandler creates a BillingHandler. siteURL is the fallback for
// building checkout redirect URLs when the request carries no Origin header.
func NewBillingHandler(
	checkout CheckoutService,
	subs SubscriptionStore,
	directory UserDirectory,
	validator *core.Validator,
	siteURL string,
	logger *slog.Logger,
) *BillingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BillingHandler{
		checkout:  checkout,
		subs:      subs,
		directory: directory,
		validator: validator,
		siteURL:   siteURL,
		logger:    logger,
	}
}

// RegisterRoutes mounts the billing endpoints on the v1 router.
func (h *BillingHandler) RegisterRoutes(r chi.Router) {
	r.Post("/billing/checkout-session", h.CreateCheckoutSession)
	r.Post("/billing/portal-session", h.CreatePortalSession)
	r.Post("/billing/cancel", h.CancelSubscription)
}

// CreateCheckoutSession starts a hosted checkout flow for the given price.
// The Stripe customer is resolved before the session is created so repeat
// purchases reuse the same customer record.
func (h *BillingHandler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	var req createCheckoutSessionRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	customerID, err := h.resolveCustomer(r.Context(), req.UserID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	origin := r.Header.Get("Origin")
	if origin == "" {
		origin = h.siteURL
	}

	sessionID, err := h.checkout.CreateCheckoutSession(r.Context(), external.CheckoutSessionParams{
		CustomerID: customerID,
		PriceID:    req.PriceID,
		UserID:     req.UserID,
		SuccessURL: origin + "/billing/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  origin + "/billing/cancel",
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "created checkout session",
		"user_id", req.UserID,
		"price_id", req.PriceID,
	)

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: createCheckoutSessionResponse{SessionID: sessionID}})
}

// resolveCustomer finds the user's Stripe customer id, creating the customer
// (and a placeholder subscription row carrying it) if they have never gone
// through checkout before.
func (h *BillingHandler) resolveCustomer(ctx context.Context, userID string) (string, error) {
	sub, err := h.subs.GetByUserID(ctx, userID)
	if err != nil {
		var appErr *types.AppError
		if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeNotFoundSubscription {
			return "", err
		}
		// No row yet. Fall through and create the customer.
	} else if sub.StripeCustomerID != "" {
		return sub.StripeCustomerID, nil
	}

	user, err := h.directory.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}

	customerID, err := h.checkout.EnsureCustomer(ctx, userID, user.Email)
	if err != nil {
		return "", err
	}

	if err := h.subs.InsertPlaceholder(ctx, userID, customerID); err != nil {
		return "", err
	}

	h.logger.InfoContext(ctx, "provisioned stripe customer",
		"user_id", userID,
		"stripe_customer_id", customerID,
	)
	return customerID, nil
}

// CreatePortalSession opens a Stripe billing portal session for the user. The
// user must already have a customer record; there is nothing to manage
// otherwise.
func (h *BillingHandler) CreatePortalSession(w http.ResponseWriter, r *http.Request) {
	var req createPortalSessionRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	sub, err := h.subs.GetByUserID(r.Context(), req.UserID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if sub.StripeCustomerID == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeNotFoundCustomer,
			"no billing account exists for this user",
			nil,
		))
		return
	}

	returnURL := req.ReturnURL
	if returnURL == "" {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = h.siteURL
		}
		returnURL = origin + "/account"
	}

	url, err := h.checkout.CreatePortalSession(r.Context(), sub.StripeCustomerID, returnURL)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: createPortalSessionResponse{URL: url}})
}

// CancelSubscription schedules the subscription to end at the period
// boundary. The provider is updated first; the local row is only rewritten
// once Stripe accepted the change, and the update is scoped to the requesting
// user so one user cannot cancel another's subscription by guessing ids.
func (h *BillingHandler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	var req cancelSubscriptionRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.checkout.SetCancelAtPeriodEnd(r.Context(), req.StripeSubscriptionID); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.subs.SetCancelAtPeriodEnd(r.Context(), req.StripeSubscriptionID, req.UserID); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "scheduled subscription cancellation",
		"user_id", req.UserID,
		"stripe_subscription_id", req.StripeSubscriptionID,
	)

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: cancelSubscriptionResponse{
		Success: true,
		Message: "subscription will cancel at the end of the current billing period",
	}})
}
