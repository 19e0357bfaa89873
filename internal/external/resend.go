package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"satlearn/internal/types"
)

// resendAPIBase is the default Resend API base URL.
// Overridable in tests via ResendClientConfig.BaseURL.
const resendAPIBase = "https://api.resend.com"

// ResendClientConfig holds the configuration for creating a ResendClient.
type ResendClientConfig struct {
	APIKey  string
	BaseURL string // Override for testing; defaults to resendAPIBase
	Logger  *slog.Logger
}

// ResendClient implements EmailProvider against the Resend /emails endpoint
// through BaseClient, inheriting the shared circuit breaker and retry
// behavior.
type ResendClient struct {
	base    *BaseClient
	apiKey  string
	baseURL string
	logger  *slog.Logger
}

// NewResendClient creates a new ResendClient.
func NewResendClient(httpClient *http.Client, cfg ResendClientConfig) *ResendClient {
	base := NewBaseClient(
		httpClient,
		"resend",
		DefaultRetryPolicy(),
		"Satlearn/1.0",
		WithSleepFunc(time.Sleep),
	)
	return NewResendClientWithBase(base, cfg)
}

// NewResendClientWithBase creates a ResendClient with a pre-configured
// BaseClient. Useful in tests to control retry behavior.
func NewResendClientWithBase(base *BaseClient, cfg ResendClientConfig) *ResendClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = resendAPIBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &ResendClient{
		base:    base,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// resendSendRequest is the JSON payload for POST /emails.
type resendSendRequest struct {
	From    string            `json:"from"`
	To      []string          `json:"to"`
	Subject string            `json:"subject"`
	HTML    string            `json:"html,omitempty"`
	Text    string            `json:"text,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// resendSendResponse is the success body: just the message id.
type resendSendResponse struct {
	ID string `json:"id"`
}

// resendErrorResponse is the error body returned by the Resend API.
type resendErrorResponse struct {
	StatusCode int    `json:"statusCode"`
	Name       string `json:"name"`
	Message    string `json:"message"`
}

// Send transmits a single email and returns the provider message id.
// 429 and 5xx are retried by BaseClient; any other non-2xx is a hard
// provider failure.
func (r *ResendClient) Send(ctx context.Context, input types.SendInput) (string, error) {
	payload := resendSendRequest{
		From:    input.From,
		To:      []string{input.To},
		Subject: input.Subject,
		HTML:    input.HTML,
		Text:    input.Text,
	}
	if input.ReferenceID != "" {
		payload.Headers = map[string]string{"X-Entity-Ref-ID": input.ReferenceID}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to marshal email payload",
			err,
		)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to build email request",
			err,
		)
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.base.Do(req)
	if err != nil {
		if _, ok := err.(*types.AppError); ok {
			return "", err
		}
		return "", types.NewAppError(
			types.ErrCodeUpstreamEmailProvider,
			fmt.Sprintf("email send request failed: %v", err),
			err,
		)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", r.handleErrorResponse(resp)
	}

	var sendResp resendSendResponse
	if err := json.NewDecoder(resp.Body).Decode(&sendResp); err != nil {
		return "", types.NewAppError(
			types.ErrCodeUpstreamEmailProvider,
			"failed to decode email send response",
			err,
		)
	}
	if sendResp.ID == "" {
		return "", types.NewAppError(
			types.ErrCodeUpstreamEmailProvider,
			"email provider returned no message id",
			nil,
		)
	}

	return sendResp.ID, nil
}

func (r *ResendClient) handleErrorResponse(resp *http.Response) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamEmailProvider,
			fmt.Sprintf("email provider returned status %d and response body was unreadable", resp.StatusCode),
			readErr,
		)
	}

	var provErr resendErrorResponse
	if jsonErr := json.Unmarshal(body, &provErr); jsonErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamEmailProvider,
			fmt.Sprintf("email provider returned status %d with non-JSON body", resp.StatusCode),
			jsonErr,
		)
	}

	return types.NewAppErrorWithDetails(
		types.ErrCodeUpstreamEmailProvider,
		fmt.Sprintf("email provider rejected the request (%d)", resp.StatusCode),
		nil,
		map[string]any{
			"provider_name":    provErr.Name,
			"provider_message": provErr.Message,
		},
	)
}

// Compile-time assertion that ResendClient satisfies EmailProvider.
var _ EmailProvider = (*ResendClient)(nil)
