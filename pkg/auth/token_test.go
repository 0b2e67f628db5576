package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/simvoyage/esim-backend/pkg/config"
	"github.com/simvoyage/esim-backend/pkg/enums"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "test-secret",
		Issuer:            "esim-backend-test",
		ExpirationMinutes: 60,
	}
}

func TestMintAndParseAccessToken(t *testing.T) {
	cfg := testJWTConfig()
	accountID := uuid.New()

	token, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{
		AccountID: accountID,
		Role:      enums.AccountRoleCustomer,
	})
	if err != nil {
		t.Fatalf("MintAccessToken: %v", err)
	}

	claims, err := ParseAccessToken(cfg, token)
	if err != nil {
		t.Fatalf("ParseAccessToken: %v", err)
	}
	if claims.AccountID != accountID {
		t.Fatalf("account id mismatch: %s", claims.AccountID)
	}
	if claims.Role != enums.AccountRoleCustomer {
		t.Fatalf("role mismatch: %s", claims.Role)
	}
}

func TestParseAccessTokenRejectsWrongSecret(t *testing.T) {
	cfg := testJWTConfig()
	token, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{
		AccountID: uuid.New(),
		Role:      enums.AccountRoleAdmin,
	})
	if err != nil {
		t.Fatalf("MintAccessToken: %v", err)
	}

	other := cfg
	other.Secret = "different-secret"
	if _, err := ParseAccessToken(other, token); err == nil {
		t.Fatal("expected parse failure with wrong secret")
	}
}

func TestMintAccessTokenValidation(t *testing.T) {
	cfg := testJWTConfig()
	if _, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{Role: enums.AccountRoleCustomer}); err == nil {
		t.Fatal("expected error for missing account id")
	}
	if _, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{AccountID: uuid.New(), Role: "owner"}); err == nil {
		t.Fatal("expected error for invalid role")
	}
}
