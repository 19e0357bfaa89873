package core

import (
	"errors"
	"strings"
	"testing"

	"satlearn/internal/types"
)

type validatedRequest struct {
	UserID  string `json:"user_id" validate:"required"`
	Email   string `json:"email" validate:"omitempty,email"`
	SiteURL string `json:"site_url" validate:"omitempty,url"`
}

func TestValidateStruct_Valid(t *testing.T) {
	v := NewValidator(nil)

	err := v.ValidateStruct(validatedRequest{
		UserID:  "user_123",
		Email:   "learner@example.com",
		SiteURL: "https://satlearn.app",
	})
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestValidateStruct_MissingRequired(t *testing.T) {
	v := NewValidator(nil)

	err := v.ValidateStruct(validatedRequest{Email: "learner@example.com"})
	if err == nil {
		t.Fatal("expected an error")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeValidationMissingField {
		t.Errorf("expected validation code, got %q", appErr.Code)
	}
	if !strings.Contains(appErr.Message, "userid") {
		t.Errorf("expected failing field in message, got %q", appErr.Message)
	}
	if appErr.Details["userid"] != "required" {
		t.Errorf("expected details to name the failed tag, got %v", appErr.Details)
	}
}

func TestValidateStruct_InvalidFormats(t *testing.T) {
	v := NewValidator(nil)

	tests := []struct {
		name string
		req  validatedRequest
	}{
		{"bad email", validatedRequest{UserID: "u", Email: "not-an-email"}},
		{"bad url", validatedRequest{UserID: "u", SiteURL: "not a url"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateStruct(tt.req)
			if err == nil {
				t.Fatal("expected an error")
			}
			var appErr *types.AppError
			if !errors.As(err, &appErr) {
				t.Fatalf("expected *types.AppError, got %T", err)
			}
			if appErr.HTTPStatus() != 400 {
				t.Errorf("expected 400 mapping, got %d", appErr.HTTPStatus())
			}
		})
	}
}
