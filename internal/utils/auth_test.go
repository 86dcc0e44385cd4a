package utils

import (
	"testing"
	"time"
)

func TestPasswordHashing(t *testing.T) {
	password := "secret123"

	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}
	if hash == password {
		t.Error("Hash should not match plaintext password")
	}

	if !CheckPasswordHash(password, hash) {
		t.Error("Password should match hash")
	}
	if CheckPasswordHash("wrongpassword", hash) {
		t.Error("Wrong password should not match hash")
	}
}

func TestJWT(t *testing.T) {
	secret := []byte("test-secret-key-12345")

	accessToken, refreshToken, err := GenerateTokens("user-1", "test@example.com", secret, time.Hour)
	if err != nil {
		t.Fatalf("Failed to generate tokens: %v", err)
	}
	if accessToken == "" || refreshToken == "" {
		t.Fatal("Tokens should not be empty")
	}

	claims, err := ValidateToken(accessToken, secret, TokenTypeAccess)
	if err != nil {
		t.Fatalf("Failed to validate access token: %v", err)
	}
	if claims["email"] != "test@example.com" {
		t.Errorf("Expected email test@example.com, got %v", claims["email"])
	}

	if _, err := ValidateToken(refreshToken, secret, TokenTypeRefresh); err != nil {
		t.Errorf("Failed to validate refresh token: %v", err)
	}
	if _, err := ValidateToken(refreshToken, secret, TokenTypeAccess); err == nil {
		t.Error("Refresh token must not pass as access token")
	}
	if _, err := ValidateToken(accessToken, []byte("wrong-secret"), TokenTypeAccess); err == nil {
		t.Error("Validation should fail with wrong secret")
	}
}

func TestExpiredToken(t *testing.T) {
	secret := []byte("s")
	accessToken, _, err := GenerateTokens("user-1", "a@b.c", secret, -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ValidateToken(accessToken, secret, TokenTypeAccess); err == nil {
		t.Error("Expired token should not validate")
	}

	exp, err := TokenExpiry(accessToken)
	if err != nil {
		t.Fatalf("TokenExpiry: %v", err)
	}
	if !exp.Before(time.Now()) {
		t.Errorf("Expected expiry in the past, got %v", exp)
	}
}

func TestTokenExpiryGarbage(t *testing.T) {
	if _, err := TokenExpiry("not-a-jwt"); err == nil {
		t.Error("Expected error for malformed token")
	}
}
