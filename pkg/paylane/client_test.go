package paylane

import (
	"testing"

	"github.com/simvoyage/esim-backend/pkg/config"
)

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(config.PayLaneConfig{SigningKey: "  "}); err == nil {
		t.Fatal("expected error for blank signing key")
	}

	client, err := NewClient(config.PayLaneConfig{SigningKey: "whsec"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if client.SigningKey() != "whsec" {
		t.Fatalf("unexpected signing key %q", client.SigningKey())
	}
}

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"reference":"SIMV-1-abc"}`)
	key := "secret"
	header := Sign(payload, key)

	if !VerifySignature(payload, key, header) {
		t.Fatal("expected valid signature to verify")
	}
	if VerifySignature(payload, "other", header) {
		t.Fatal("expected wrong key to fail")
	}
	if VerifySignature([]byte("tampered"), key, header) {
		t.Fatal("expected tampered payload to fail")
	}
	if VerifySignature(payload, key, "") {
		t.Fatal("expected empty header to fail")
	}
}
