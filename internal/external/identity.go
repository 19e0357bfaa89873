package external

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"satlearn/internal/types"
)

// IdentityClientConfig holds the configuration for creating an IdentityClient.
type IdentityClientConfig struct {
	// BaseURL is the Supabase project URL (https://<project>.supabase.co).
	BaseURL    string
	ServiceKey string
	Logger     *slog.Logger
}

// IdentityClient implements IdentityService against the Supabase Auth admin
// API. It is used during checkout to resolve a user id into the email address
// a new Stripe customer should carry.
type IdentityClient struct {
	base       *BaseClient
	baseURL    string
	serviceKey string
	logger     *slog.Logger
}

// NewIdentityClient creates a new IdentityClient.
func NewIdentityClient(httpClient *http.Client, cfg IdentityClientConfig) *IdentityClient {
	base := NewBaseClient(
		httpClient,
		"identity",
		DefaultRetryPolicy(),
		"Satlearn/1.0",
		WithSleepFunc(time.Sleep),
	)
	return NewIdentityClientWithBase(base, cfg)
}

// NewIdentityClientWithBase creates an IdentityClient with a pre-configured
// BaseClient. Useful in tests to control retry behavior.
func NewIdentityClientWithBase(base *BaseClient, cfg IdentityClientConfig) *IdentityClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &IdentityClient{
		base:       base,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		serviceKey: cfg.ServiceKey,
		logger:     logger,
	}
}

// identityUserResponse is the subset of the admin user record we consume.
type identityUserResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// GetUser fetches the identity record for a user id via the admin endpoint.
// Requires the service-role key; the anon key cannot read other users.
func (c *IdentityClient) GetUser(ctx context.Context, userID string) (*types.IdentityUser, error) {
	reqURL := c.baseURL + "/auth/v1/admin/users/" + url.PathEscape(userID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to build identity request",
			err,
		)
	}
	req.Header.Set("apikey", c.serviceKey)
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)

	resp, err := c.base.Do(req)
	if err != nil {
		if _, ok := err.(*types.AppError); ok {
			return nil, err
		}
		return nil, types.NewAppError(
			types.ErrCodeUpstreamIdentity,
			fmt.Sprintf("identity request failed: %v", err),
			err,
		)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through
	case resp.StatusCode == http.StatusNotFound:
		return nil, types.NewAppError(
			types.ErrCodeNotFoundUser,
			fmt.Sprintf("identity service has no user %s", userID),
			nil,
		)
	default:
		return nil, types.NewAppError(
			types.ErrCodeUpstreamIdentity,
			fmt.Sprintf("identity service returned status %d", resp.StatusCode),
			nil,
		)
	}

	var user identityUserResponse
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamIdentity,
			"failed to decode identity response",
			err,
		)
	}
	if user.Email == "" {
		return nil, types.NewAppError(
			types.ErrCodeNotFoundUser,
			fmt.Sprintf("identity record for user %s has no email", userID),
			nil,
		)
	}

	return &types.IdentityUser{ID: user.ID, Email: user.Email}, nil
}

// Compile-time assertion that IdentityClient satisfies IdentityService.
var _ IdentityService = (*IdentityClient)(nil)
