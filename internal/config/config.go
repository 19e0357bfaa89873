// Package config defines the global configuration for the satlearn billing
// service. Configuration is loaded once at process initialization (cold start)
// and is immutable thereafter; handlers receive the subsets they need via
// explicit construction, never by reading the environment mid-request.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File (Lowest)
//
// Any missing required value or invalid format fails startup immediately.
package config

import (
	"time"

	"satlearn/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration to prevent accidental logging of sensitive
// values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the satlearn service.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"oneof=local dev staging prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Server   ServerConfig
	Database DatabaseConfig
	Billing  BillingConfig
	Identity IdentityConfig
	Email    EmailConfig
	Metrics  MetricsConfig
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// SiteURL is the public web app origin, used as the fallback for
	// checkout/portal redirect URLs when the request carries no Origin
	// header (no trailing slash).
	SiteURL string `envconfig:"SITE_URL" default:"https://satlearn.app" validate:"url"`
	// CorsAllowedOrigins defaults to wildcard: the endpoints are called
	// directly from the public SPA.
	CorsAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// DatabaseConfig holds the Supabase Postgres connection and pool tuning.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns        int           `envconfig:"DB_MAX_CONNS" default:"5"`
	MinConns        int           `envconfig:"DB_MIN_CONNS" default:"1"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout  time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
}

// BillingConfig holds Stripe credentials and webhook verification settings.
type BillingConfig struct {
	StripeSecretKey     SecretString `envconfig:"STRIPE_SECRET_KEY" validate:"required"`
	StripeWebhookSecret SecretString `envconfig:"STRIPE_WEBHOOK_SECRET" validate:"required"`
	// WebhookTolerance bounds how old a webhook signature timestamp may be
	// before it is rejected as a potential replay.
	WebhookTolerance time.Duration `envconfig:"STRIPE_WEBHOOK_TOLERANCE" default:"5m"`
}

// IdentityConfig holds the identity service (Supabase Auth) admin credentials
// used to resolve a user_id into an email address during checkout.
type IdentityConfig struct {
	BaseURL    string       `envconfig:"SUPABASE_URL" validate:"required,url"`
	ServiceKey SecretString `envconfig:"SUPABASE_SERVICE_ROLE_KEY" validate:"required"`
}

// EmailConfig holds the transactional email provider credentials.
type EmailConfig struct {
	ResendAPIKey SecretString `envconfig:"RESEND_API_KEY" validate:"required"`
	FromAddress  string       `envconfig:"EMAIL_FROM_ADDRESS" default:"hello@satlearn.app"`
	// FeedbackRecipient receives the feedback notification emails.
	FeedbackRecipient string `envconfig:"FEEDBACK_RECIPIENT" default:"team@satlearn.app"`
}

// MetricsConfig holds CloudWatch telemetry settings.
type MetricsConfig struct {
	Namespace string `envconfig:"METRIC_NAMESPACE" default:"Satlearn"`
	Enabled   bool   `envconfig:"METRICS_ENABLED" default:"false"`
}
