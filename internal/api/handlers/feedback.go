package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"satlearn/internal/core"
	"satlearn/internal/feedback"
	"satlearn/internal/types"
)

// ---------------------------------------------------------------------------
// Request / Response Types
// ---------------------------------------------------------------------------

type dispatchFeedbackRequest struct {
	ID       string `json:"id" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Message  string `json:"message" validate:"required"`
}

type dispatchFeedbackResponse struct {
	Success bool   `json:"success"`
	EmailID string `json:"email_id"`
}

type sweepFeedbackResponse struct {
	Success   bool `json:"success"`
	Processed int  `json:"processed"`
	Errors    int  `json:"errors"`
}

// ---------------------------------------------------------------------------
// Feedback Handler
// ---------------------------------------------------------------------------

// FeedbackHandler exposes the feedback notification endpoints: an immediate
// dispatch called when a feedback entry is submitted, and a sweep that
// re-sends anything the immediate path missed.
type FeedbackHandler struct {
	service   *feedback.Service
	validator *core.Validator
	logger    *slog.Logger
}

func NewFeedbackHandler(service *feedback.Service, validator *core.Validator, logger *slog.Logger) *FeedbackHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &FeedbackHandler{
		service:   service,
		validator: validator,
		logger:    logger,
	}
}

// RegisterRoutes mounts the dispatch endpoint on the v1 router.
func (h *FeedbackHandler) RegisterRoutes(r chi.Router) {
	r.Post("/feedback/dispatch", h.Dispatch)
}

// RegisterInternalRoutes mounts the sweep endpoint at the root router,
// outside the public v1 surface. It is invoked by the scheduled worker (or
// operators), not by end users.
func (h *FeedbackHandler) RegisterInternalRoutes(r chi.Router) {
	r.Post("/internal/feedback/sweep", h.Sweep)
}

// Dispatch sends the notification email for a single feedback entry. The
// entry is passed in the request body rather than loaded from the database:
// the caller (the site backend) already holds the row it just inserted, and
// the sweep provides the durable fallback if this call never arrives.
func (h *FeedbackHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	var req dispatchFeedbackRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	emailID, err := h.service.Dispatch(r.Context(), req.toFeedback())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: dispatchFeedbackResponse{
		Success: true,
		EmailID: emailID,
	}})
}

// Sweep processes one batch of feedback rows whose notification email has
// not gone out yet. Per-row failures are counted, not fatal; only a failure
// to read the batch itself is an error response.
func (h *FeedbackHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Sweep(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: sweepFeedbackResponse{
		Success:   true,
		Processed: result.Processed,
		Errors:    result.Errors,
	}})
}

func (r *dispatchFeedbackRequest) toFeedback() types.Feedback {
	return types.Feedback{
		ID:       r.ID,
		Email:    r.Email,
		Name:     r.Name,
		Category: r.Category,
		Message:  r.Message,
	}
}
