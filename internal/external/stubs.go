package external

import (
	"context"
	"fmt"
	"log/slog"

	"satlearn/internal/billing"
	"satlearn/internal/types"
)

// ---------------------------------------------------------------------------
// Stub Implementations
//
// Stubs let the application boot in local mode without real vendor
// credentials. They log every call and return predictable, safe values.
// ---------------------------------------------------------------------------

// StubBillingService implements BillingService by logging calls and returning
// test-safe defaults. Used when APP_ENV=local.
type StubBillingService struct {
	logger *slog.Logger
}

// NewStubBillingService creates a new StubBillingService.
func NewStubBillingService(logger *slog.Logger) *StubBillingService {
	return &StubBillingService{logger: logger}
}

func (s *StubBillingService) EnsureCustomer(ctx context.Context, userID string, email string) (string, error) {
	s.logger.InfoContext(ctx, "stub: EnsureCustomer called",
		"user_id", userID,
		"email", email,
	)
	return fmt.Sprintf("cus_stub_%s", userID), nil
}

func (s *StubBillingService) CreateCheckoutSession(ctx context.Context, p CheckoutSessionParams) (string, error) {
	s.logger.InfoContext(ctx, "stub: CreateCheckoutSession called",
		"user_id", p.UserID,
		"price_id", p.PriceID,
	)
	return fmt.Sprintf("cs_stub_%s", p.UserID), nil
}

func (s *StubBillingService) CreatePortalSession(ctx context.Context, customerID string, returnURL string) (string, error) {
	s.logger.InfoContext(ctx, "stub: CreatePortalSession called",
		"customer_id", customerID,
		"return_url", returnURL,
	)
	return "https://portal.stub.local/session", nil
}

func (s *StubBillingService) SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string) error {
	s.logger.InfoContext(ctx, "stub: SetCancelAtPeriodEnd called",
		"subscription_id", subscriptionID,
	)
	return nil
}

func (s *StubBillingService) GetSubscription(ctx context.Context, subscriptionID string) (*billing.ProviderSubscription, error) {
	s.logger.InfoContext(ctx, "stub: GetSubscription called",
		"subscription_id", subscriptionID,
	)
	return &billing.ProviderSubscription{
		ID:     subscriptionID,
		Status: "active",
	}, nil
}

// StubEmailProvider implements EmailProvider by logging calls and returning
// a fake message id. Used when APP_ENV=local.
type StubEmailProvider struct {
	logger *slog.Logger
}

// NewStubEmailProvider creates a new StubEmailProvider.
func NewStubEmailProvider(logger *slog.Logger) *StubEmailProvider {
	return &StubEmailProvider{logger: logger}
}

func (s *StubEmailProvider) Send(ctx context.Context, input types.SendInput) (string, error) {
	s.logger.InfoContext(ctx, "stub: Send called",
		"to", input.To,
		"subject", input.Subject,
	)
	return "msg_stub_001", nil
}

// StubIdentityService implements IdentityService by returning a synthetic
// user record. Used when APP_ENV=local.
type StubIdentityService struct {
	logger *slog.Logger
}

// NewStubIdentityService creates a new StubIdentityService.
func NewStubIdentityService(logger *slog.Logger) *StubIdentityService {
	return &StubIdentityService{logger: logger}
}

func (s *StubIdentityService) GetUser(ctx context.Context, userID string) (*types.IdentityUser, error) {
	s.logger.InfoContext(ctx, "stub: GetUser called", "user_id", userID)
	return &types.IdentityUser{
		ID:    userID,
		Email: fmt.Sprintf("%s@stub.local", userID),
	}, nil
}

// Compile-time assertions that stubs satisfy their interfaces.
var (
	_ BillingService  = (*StubBillingService)(nil)
	_ EmailProvider   = (*StubEmailProvider)(nil)
	_ IdentityService = (*StubIdentityService)(nil)
)
