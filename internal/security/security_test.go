package security

import (
	"testing"
	"time"
)

func TestSignAndParseAdminToken(t *testing.T) {
	token, errSign := SignAdminToken("test-secret", "ops", time.Hour)
	if errSign != nil {
		t.Fatalf("sign: %v", errSign)
	}

	claims, errParse := ParseAdminToken("test-secret", token)
	if errParse != nil {
		t.Fatalf("parse: %v", errParse)
	}
	if claims.Username != "ops" {
		t.Fatalf("expected username ops, got %q", claims.Username)
	}

	if _, errParse := ParseAdminToken("wrong-secret", token); errParse == nil {
		t.Fatalf("expected parse failure with wrong secret")
	}
}

func TestSignAdminToken_EmptySecret(t *testing.T) {
	if _, errSign := SignAdminToken("  ", "ops", time.Hour); errSign == nil {
		t.Fatalf("expected error for empty secret")
	}
}

func TestParseAdminToken_Expired(t *testing.T) {
	token, errSign := SignAdminToken("test-secret", "ops", -time.Minute)
	if errSign != nil {
		t.Fatalf("sign: %v", errSign)
	}
	if _, errParse := ParseAdminToken("test-secret", token); errParse == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestHashAndCheckPassword(t *testing.T) {
	hash, errHash := HashPassword("correct-horse")
	if errHash != nil {
		t.Fatalf("hash: %v", errHash)
	}
	if hash == "correct-horse" {
		t.Fatalf("hash must not equal the plaintext")
	}
	if !CheckPassword(hash, "correct-horse") {
		t.Fatalf("expected password to verify")
	}
	if CheckPassword(hash, "wrong") {
		t.Fatalf("wrong password must not verify")
	}
}
