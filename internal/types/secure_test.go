package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
)

func TestSecretString_Redaction(t *testing.T) {
	secret := SecretString("sk_live_supersecret")

	if got := secret.String(); got != "***REDACTED***" {
		t.Errorf("String() = %q, want redacted placeholder", got)
	}
	if got := fmt.Sprintf("%v", secret); strings.Contains(got, "supersecret") {
		t.Errorf("fmt.Sprintf leaked the secret: %q", got)
	}
	if got := fmt.Sprintf("key=%s", secret); strings.Contains(got, "supersecret") {
		t.Errorf("%%s formatting leaked the secret: %q", got)
	}
}

func TestSecretString_MarshalJSON(t *testing.T) {
	payload := struct {
		Key SecretString `json:"key"`
	}{Key: "sk_live_supersecret"}

	b, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if strings.Contains(string(b), "supersecret") {
		t.Errorf("JSON marshalling leaked the secret: %s", b)
	}
	if !strings.Contains(string(b), "***REDACTED***") {
		t.Errorf("expected redacted placeholder in output, got %s", b)
	}
}

func TestSecretString_Unmask(t *testing.T) {
	secret := SecretString("sk_live_supersecret")
	if got := secret.Unmask(); got != "sk_live_supersecret" {
		t.Errorf("Unmask() = %q, want raw value", got)
	}
}
