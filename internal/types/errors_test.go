package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeValidationMissingField, http.StatusBadRequest},
		{ErrCodeValidationInvalidJSON, http.StatusBadRequest},
		{ErrCodeWebhookSignatureMissing, http.StatusBadRequest},
		{ErrCodeWebhookSignatureInvalid, http.StatusBadRequest},
		{ErrCodeProviderRejected, http.StatusBadRequest},
		{ErrCodeNotFoundSubscription, http.StatusNotFound},
		{ErrCodeNotFoundCustomer, http.StatusNotFound},
		{ErrCodeNotFoundUser, http.StatusNotFound},
		{ErrCodeInternalDB, http.StatusInternalServerError},
		{ErrCodeInternalUnexpected, http.StatusInternalServerError},
		{ErrCodeUpstreamStripe, http.StatusBadGateway},
		{ErrCodeUpstreamEmailProvider, http.StatusBadGateway},
		{ErrCodeUpstreamIdentity, http.StatusBadGateway},
		{ErrCodeUpstreamUnavailable, http.StatusBadGateway},
		{ErrCodeUpstreamRateLimited, http.StatusTooManyRequests},
		{ErrorCode("something_unknown"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := tt.code.HTTPStatus(); got != tt.want {
				t.Errorf("HTTPStatus(%q) = %d, want %d", tt.code, got, tt.want)
			}
		})
	}
}

func TestAppError_ErrorAndUnwrap(t *testing.T) {
	inner := errors.New("connection refused")
	appErr := NewAppError(ErrCodeInternalDB, "failed to upsert subscription", inner)

	if got := appErr.Error(); got != "internal_database_error: failed to upsert subscription" {
		t.Errorf("unexpected Error() output %q", got)
	}
	if !errors.Is(appErr, inner) {
		t.Error("expected errors.Is to find the wrapped error")
	}

	wrapped := fmt.Errorf("handler: %w", appErr)
	var target *AppError
	if !errors.As(wrapped, &target) {
		t.Fatal("expected errors.As to recover *AppError through a wrap")
	}
	if target.Code != ErrCodeInternalDB {
		t.Errorf("expected code preserved, got %q", target.Code)
	}
}

func TestNewAppErrorWithDetails(t *testing.T) {
	appErr := NewAppErrorWithDetails(
		ErrCodeProviderRejected,
		"no such price",
		nil,
		map[string]any{"stripe_code": "resource_missing"},
	)

	if appErr.Details["stripe_code"] != "resource_missing" {
		t.Errorf("expected details preserved, got %v", appErr.Details)
	}
	if appErr.HTTPStatus() != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", appErr.HTTPStatus())
	}
}
