package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func token(t *testing.T, sub, email string) string {
	t.Helper()
	claims := jwt.MapClaims{"sub": sub, "email": email, "exp": time.Now().Add(time.Hour).Unix()}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func echoAccount() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := AccountID(r.Context())
		email, _ := r.Context().Value(EmailContextKey).(string)
		_, _ = w.Write([]byte(id + "|" + email))
	})
}

func TestAuthMiddleware(t *testing.T) {
	h := AuthMiddleware(secret, zerolog.Nop())(echoAccount())

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"valid", "Bearer " + token(t, "acct-1", "r@example.com"), http.StatusOK, "acct-1|r@example.com"},
		{"lowercase scheme", "bearer " + token(t, "acct-1", ""), http.StatusOK, "acct-1|"},
		{"missing", "", http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, ""},
		{"bad token", "Bearer nope", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			require.Equal(t, tt.status, rec.Code)
			if tt.body != "" {
				require.Equal(t, tt.body, rec.Body.String())
			}
		})
	}
}

func TestAdminOnly(t *testing.T) {
	h := AuthMiddleware(secret, zerolog.Nop())(AdminOnly("admin@example.com", zerolog.Nop())(echoAccount()))

	for email, status := range map[string]int{
		"admin@example.com": http.StatusOK,
		"ADMIN@example.com": http.StatusOK,
		"r@example.com":     http.StatusForbidden,
		"":                  http.StatusForbidden,
	} {
		req := httptest.NewRequest(http.MethodGet, "/admin/credits/reset", nil)
		req.Header.Set("Authorization", "Bearer "+token(t, "acct-1", email))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, status, rec.Code, email)
	}

	disabled := AuthMiddleware(secret, zerolog.Nop())(AdminOnly("", zerolog.Nop())(echoAccount()))
	req := httptest.NewRequest(http.MethodGet, "/admin/credits/reset", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, "acct-1", ""))
	rec := httptest.NewRecorder()
	disabled.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestLoggerMiddleware(t *testing.T) {
	var buf bytes.Buffer
	h := LoggerMiddleware(zerolog.New(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs?limit=5", nil))

	require.Equal(t, http.StatusTeapot, rec.Code)
	require.Contains(t, buf.String(), `"path":"/jobs?limit=5"`)
	require.Contains(t, buf.String(), `"status":418`)
}
