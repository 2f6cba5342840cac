package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestSessionTokenRoundTrip(t *testing.T) {
	t.Setenv(secretEnvVariable, "unit-test-session-secret")
	ResetSecretForTests()

	token, expires, err := GenerateSessionToken("01J0TESTIDENTITY", DefaultSessionTTL)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if time.Until(expires) < 11*time.Hour {
		t.Fatalf("unexpected expiry %v", expires)
	}

	subject, err := ParseSessionToken(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if subject != "01J0TESTIDENTITY" {
		t.Fatalf("subject mismatch: %s", subject)
	}
}

func TestSessionTokenRejectsTampering(t *testing.T) {
	t.Setenv(secretEnvVariable, "unit-test-session-secret")
	ResetSecretForTests()

	token, _, err := GenerateSessionToken("01J0TESTIDENTITY", time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := ParseSessionToken(token + "x"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestSessionTokenRejectsWrongSecret(t *testing.T) {
	t.Setenv(secretEnvVariable, "secret-one")
	ResetSecretForTests()
	token, _, err := GenerateSessionToken("01J0TESTIDENTITY", time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	t.Setenv(secretEnvVariable, "secret-two")
	ResetSecretForTests()
	if _, err := ParseSessionToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken after secret rotation, got %v", err)
	}
}

func TestSessionTokenRejectsExpired(t *testing.T) {
	t.Setenv(secretEnvVariable, "unit-test-session-secret")
	ResetSecretForTests()

	now := time.Now().UTC()
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   "01J0TESTIDENTITY",
			IssuedAt:  jwt.NewNumericDate(now.Add(-2 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(now.Add(-time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte("unit-test-session-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := ParseSessionToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := VerifyPassword(hash, "correct horse battery staple"); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := VerifyPassword(hash, "wrong"); err == nil {
		t.Fatal("expected mismatch error")
	}
}
