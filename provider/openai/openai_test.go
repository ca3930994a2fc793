package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ig "github.com/ineyio/imagegate"
	"github.com/ineyio/imagegate/provider/openai"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestGenerate_Success(t *testing.T) {
	var body map[string]any
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/images/generations", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"created":1700000000,"data":[{"url":"https://img.example/1.png","revised_prompt":"a detailed cat"}]}`))
	})

	g := openai.New("sk-test", openai.WithBaseURL(srv.URL))
	resp, err := g.Generate(context.Background(), ig.GenerateRequest{Prompt: "a cat", Size: ig.SizePortrait})
	require.NoError(t, err)

	assert.Equal(t, "openai", g.Name())
	assert.Equal(t, "dall-e-3", resp.Model)
	assert.Equal(t, "a detailed cat", resp.RevisedPrompt)
	require.Len(t, resp.Images, 1)
	assert.Equal(t, "https://img.example/1.png", resp.Images[0].URL)

	assert.Equal(t, "a cat", body["prompt"])
	assert.Equal(t, "dall-e-3", body["model"])
	assert.Equal(t, "1024x1792", body["size"])
	assert.EqualValues(t, 1, body["n"])
}

func TestGenerate_NotConfigured(t *testing.T) {
	g := openai.New("")
	_, err := g.Generate(context.Background(), ig.GenerateRequest{Prompt: "a cat"})
	assert.ErrorIs(t, err, ig.ErrNotConfigured)
	assert.True(t, ig.IsFatal(err))
}

func TestGenerate_MapsErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		message string
		want    error
	}{
		{"unauthorized", http.StatusUnauthorized, "Incorrect API key provided", ig.ErrAuthFailed},
		{"forbidden", http.StatusForbidden, "Project does not have access", ig.ErrAuthFailed},
		{"bad request", http.StatusBadRequest, "Your request was rejected by the safety system", ig.ErrInvalidRequest},
		{"rate limited", http.StatusTooManyRequests, "Rate limit reached", ig.ErrRateLimited},
		{"billing", http.StatusBadRequest, "Billing hard limit has been reached", ig.ErrBillingLimit},
		{"server error", http.StatusInternalServerError, "The server had an error", ig.ErrProviderUnavailable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				payload, _ := json.Marshal(map[string]any{
					"error": map[string]any{
						"message": tc.message,
						"type":    "invalid_request_error",
					},
					"message": tc.message,
				})
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				w.Write(payload)
			})

			g := openai.New("sk-test", openai.WithBaseURL(srv.URL))
			_, err := g.Generate(context.Background(), ig.GenerateRequest{Prompt: "a cat"})
			assert.ErrorIs(t, err, tc.want)
		})
	}
}
