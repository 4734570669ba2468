package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"outreach/internal/provider"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", "key-1", "claude-haiku-4-5", provider.NewHTTPClient(5*time.Second))
}

func TestCompleteSendsPromptAndJoinsText(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/messages", r.URL.Path)
		require.Equal(t, "key-1", r.Header.Get("x-api-key"))
		require.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))

		var in messagesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		require.Equal(t, "claude-haiku-4-5", in.Model)
		require.Equal(t, 300, in.MaxTokens)
		require.Equal(t, "be brief", in.System)
		require.Equal(t, []message{{Role: "user", Content: "Write hello"}}, in.Messages)

		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":" Hello "},{"type":"text","text":"there.\n"}],"stop_reason":"end_turn"}`))
	})

	text, err := client.Complete(context.Background(), "be brief", "Write hello", 300)
	require.NoError(t, err)
	require.Equal(t, "Hello there.", text)
}

func TestCompleteClassifiesErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		rejected string
	}{
		{"overloaded", 529, `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`, ""},
		{"rate limited", http.StatusTooManyRequests, `{}`, ""},
		{"bad key", http.StatusUnauthorized, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`, "authentication_error"},
		{"no body", http.StatusBadRequest, ``, "HTTP_400"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := client.Complete(context.Background(), "", "hi", 10)
			require.Error(t, err)
			if tt.rejected == "" {
				require.ErrorIs(t, err, provider.ErrProviderUnavailable)
				return
			}
			var rejected *provider.RejectedError
			require.True(t, errors.As(err, &rejected))
			require.Equal(t, tt.rejected, rejected.Code)
		})
	}
}

func TestCompleteWithoutText(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"content":[],"stop_reason":"end_turn"}`))
	})
	_, err := client.Complete(context.Background(), "", "hi", 10)
	require.ErrorIs(t, err, ErrEmptyCompletion)
}
