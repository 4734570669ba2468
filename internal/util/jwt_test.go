package util

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func claimsFor(sub string, exp time.Time) Claims {
	return Claims{
		Email: "recruiter@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
}

func signHS256(t *testing.T, c Claims, secret string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestValidateJWTHMAC(t *testing.T) {
	token := signHS256(t, claimsFor("acct-1", time.Now().Add(time.Hour)), testSecret)

	claims, err := ValidateJWT(token, testSecret)
	require.NoError(t, err)
	require.Equal(t, "acct-1", claims.Subject)
	require.Equal(t, "recruiter@example.com", claims.Email)
}

func TestValidateJWTECDSA(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pemKey := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))

	token, err := jwt.NewWithClaims(jwt.SigningMethodES256, claimsFor("acct-2", time.Now().Add(time.Hour))).SignedString(key)
	require.NoError(t, err)

	claims, err := ValidateJWT(token, pemKey)
	require.NoError(t, err)
	require.Equal(t, "acct-2", claims.Subject)

	_, err = ParseRSAPublicKey(pemKey)
	require.Error(t, err)
}

func TestValidateJWTRejects(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-jwt"},
		{"wrong secret", signHS256(t, claimsFor("acct-1", time.Now().Add(time.Hour)), "other-secret")},
		{"expired", signHS256(t, claimsFor("acct-1", time.Now().Add(-time.Minute)), testSecret)},
		{"no expiry", signHS256(t, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "acct-1"}}, testSecret)},
		{"no subject", signHS256(t, claimsFor("", time.Now().Add(time.Hour)), testSecret)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateJWT(tt.token, testSecret)
			require.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
