package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signToken(t *testing.T, secret, subject string, expires time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"exp": expires.Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestVerifyTokenRoundTrip(t *testing.T) {
	Init(&Config{JWTSecret: "test-secret"})

	tokenString := signToken(t, "test-secret", "user-42", time.Now().Add(time.Hour))

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Bearer "+tokenString)

	userID, err := VerifyToken(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if userID != "user-42" {
		t.Errorf("userID = %q, want user-42", userID)
	}
}

func TestVerifyTokenWrongSecret(t *testing.T) {
	Init(&Config{JWTSecret: "test-secret"})

	tokenString := signToken(t, "other-secret", "user-42", time.Now().Add(time.Hour))

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Bearer "+tokenString)

	if _, err := VerifyToken(r); err == nil {
		t.Error("token signed with wrong secret should be rejected")
	}
}

func TestVerifyTokenExpired(t *testing.T) {
	Init(&Config{JWTSecret: "test-secret"})

	tokenString := signToken(t, "test-secret", "user-42", time.Now().Add(-time.Hour))

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Bearer "+tokenString)

	if _, err := VerifyToken(r); err == nil {
		t.Error("expired token should be rejected")
	}
}

func TestVerifyTokenMissingHeader(t *testing.T) {
	Init(&Config{JWTSecret: "test-secret"})

	r := httptest.NewRequest("GET", "/", nil)
	if _, err := VerifyToken(r); err == nil {
		t.Error("request without Authorization header should be rejected")
	}
}

func TestCurrentUserAnonymous(t *testing.T) {
	Init(&Config{JWTSecret: "test-secret"})

	r := httptest.NewRequest("GET", "/", nil)
	if got := CurrentUser(r); got != "" {
		t.Errorf("CurrentUser = %q, want empty for anonymous", got)
	}
}

func TestCurrentUserAuthenticated(t *testing.T) {
	Init(&Config{JWTSecret: "test-secret"})

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Bearer "+signToken(t, "test-secret", "user-7", time.Now().Add(time.Hour)))

	if got := CurrentUser(r); got != "user-7" {
		t.Errorf("CurrentUser = %q, want user-7", got)
	}
}
