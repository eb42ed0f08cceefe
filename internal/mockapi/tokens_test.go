package mockapi

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenRoundTrip(t *testing.T) {
	m := NewTokenManager("test-secret")
	raw, err := m.Sign("admin@sse.gov.py", []string{"VER_EXPEDIENTE"}, time.Minute)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	email, err := m.Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if email != "admin@sse.gov.py" {
		t.Fatalf("unexpected email %q", email)
	}
}

func TestTokenWrongSecretRejected(t *testing.T) {
	raw, err := NewTokenManager("secret-a").Sign("admin@sse.gov.py", nil, time.Minute)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, err := NewTokenManager("secret-b").Parse(raw); err == nil {
		t.Fatal("expected a signature failure")
	}
}

func TestTokenExpiryIsDetectable(t *testing.T) {
	m := NewTokenManager("test-secret")
	raw, err := m.Sign("admin@sse.gov.py", nil, -time.Minute)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	_, err = m.Parse(raw)
	if !errors.Is(err, jwt.ErrTokenExpired) {
		t.Fatalf("expected jwt.ErrTokenExpired, got %v", err)
	}
}

func TestTokenWrongIssuerRejected(t *testing.T) {
	claims := jwt.RegisteredClaims{
		Issuer:    "someone-else",
		Subject:   "admin@sse.gov.py",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := NewTokenManager("test-secret").Parse(raw); err == nil {
		t.Fatal("expected an issuer mismatch")
	}
}
