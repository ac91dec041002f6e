package auth

import (
	"testing"
	"time"

	"github.com/harveywang/codedesk-backend/pkg/config"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "unit-test-secret",
		Issuer:            "codedesk-test",
		ExpirationMinutes: 30,
	}
}

func TestMintAndParseAccessToken(t *testing.T) {
	cfg := testJWTConfig()
	now := time.Now()

	signed, err := MintAccessToken(cfg, now, AccessTokenPayload{AdminID: 7, Username: "ops", Role: AdminRole})
	if err != nil {
		t.Fatalf("mint failed: %v", err)
	}

	claims, err := ParseAccessToken(cfg, signed)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if claims.AdminID != 7 {
		t.Fatalf("unexpected admin id %d", claims.AdminID)
	}
	if claims.Role != AdminRole {
		t.Fatalf("unexpected role %q", claims.Role)
	}
	if claims.ID == "" {
		t.Fatal("expected generated jti")
	}
}

func TestMintRejectsMissingAdminID(t *testing.T) {
	if _, err := MintAccessToken(testJWTConfig(), time.Now(), AccessTokenPayload{}); err == nil {
		t.Fatal("expected error for missing admin id")
	}
}

func TestParseRejectsWrongIssuer(t *testing.T) {
	cfg := testJWTConfig()
	signed, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{AdminID: 1})
	if err != nil {
		t.Fatalf("mint failed: %v", err)
	}

	other := cfg
	other.Issuer = "someone-else"
	if _, err := ParseAccessToken(other, signed); err == nil {
		t.Fatal("expected issuer mismatch error")
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	cfg := testJWTConfig()
	signed, err := MintAccessToken(cfg, time.Now().Add(-2*time.Hour), AccessTokenPayload{AdminID: 1})
	if err != nil {
		t.Fatalf("mint failed: %v", err)
	}
	if _, err := ParseAccessToken(cfg, signed); err == nil {
		t.Fatal("expected expiry error")
	}
}
