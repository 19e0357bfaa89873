package external

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"satlearn/internal/types"
)

// ---------------------------------------------------------------------------
// Stripe Webhook Verification
// ---------------------------------------------------------------------------

// StripeVerifier checks Stripe-Signature headers: HMAC-SHA256 over
// "<timestamp>.<payload>" with the endpoint's signing secret. The header is a
// comma-separated list of k=v pairs carrying one t value and one or more v1
// signatures (multiple v1 values appear during secret rotation; matching any
// of them is a pass).
type StripeVerifier struct {
	// Tolerance bounds how old the signed timestamp may be. Zero disables
	// the freshness check.
	Tolerance time.Duration

	nowFn func() time.Time
}

// NewStripeVerifier creates a verifier with the given replay tolerance.
func NewStripeVerifier(tolerance time.Duration) *StripeVerifier {
	return &StripeVerifier{
		Tolerance: tolerance,
		nowFn:     time.Now,
	}
}

// Verify validates the payload against the signature header. It fails closed:
// a missing timestamp, no v1 values, a stale timestamp, or no matching
// signature all reject the payload.
func (v *StripeVerifier) Verify(payload []byte, header string, secret string) error {
	if strings.TrimSpace(header) == "" {
		return types.NewAppError(types.ErrCodeWebhookSignatureMissing,
			"missing signature header", nil)
	}

	timestamp, signatures := parseSignatureHeader(header)
	if timestamp == "" {
		return types.NewAppError(types.ErrCodeWebhookSignatureInvalid,
			"signature header has no timestamp", nil)
	}
	if len(signatures) == 0 {
		return types.NewAppError(types.ErrCodeWebhookSignatureInvalid,
			"signature header has no v1 signatures", nil)
	}

	if v.Tolerance > 0 {
		ts, err := strconv.ParseInt(timestamp, 10, 64)
		if err != nil {
			return types.NewAppError(types.ErrCodeWebhookSignatureInvalid,
				"signature timestamp is not a valid epoch", err)
		}
		now := v.now()
		if now.Sub(time.Unix(ts, 0)) > v.Tolerance {
			return types.NewAppError(types.ErrCodeWebhookSignatureInvalid,
				"signature timestamp outside tolerance", nil)
		}
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := mac.Sum(nil)

	for _, sig := range signatures {
		decoded, err := hex.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(expected, decoded) {
			return nil
		}
	}

	return types.NewAppError(types.ErrCodeWebhookSignatureInvalid,
		"no matching signature", nil)
}

func (v *StripeVerifier) now() time.Time {
	if v.nowFn != nil {
		return v.nowFn()
	}
	return time.Now()
}

// parseSignatureHeader splits the header into the t value and all v1 values.
// Unknown schemes (v0, future versions) are ignored.
func parseSignatureHeader(header string) (timestamp string, signatures []string) {
	for _, pair := range strings.Split(header, ",") {
		k, val, found := strings.Cut(strings.TrimSpace(pair), "=")
		if !found {
			continue
		}
		switch k {
		case "t":
			timestamp = val
		case "v1":
			signatures = append(signatures, val)
		}
	}
	return timestamp, signatures
}

// Compile-time assertion that StripeVerifier satisfies WebhookVerifier.
var _ WebhookVerifier = (*StripeVerifier)(nil)
