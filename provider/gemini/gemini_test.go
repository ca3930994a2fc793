package gemini

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/genai"

	"github.com/ineyio/imagegate"
)

func TestGenerate_NotConfigured(t *testing.T) {
	g := New("")
	_, err := g.Generate(context.Background(), imagegate.GenerateRequest{Prompt: "a cat"})
	assert.ErrorIs(t, err, imagegate.ErrNotConfigured)
}

func TestOptions(t *testing.T) {
	g := New("key", WithName("imagen"), WithModel("imagen-4.0-generate-001"), WithBaseURL("http://localhost:9/"))
	assert.Equal(t, "imagen", g.Name())
	assert.Equal(t, "imagen-4.0-generate-001", g.model)
	assert.Equal(t, "http://localhost:9", g.baseURL)
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"rate limited", genai.APIError{Code: 429, Message: "Resource exhausted"}, imagegate.ErrRateLimited},
		{"wrapped auth", fmt.Errorf("call: %w", genai.APIError{Code: 403, Message: "denied"}), imagegate.ErrAuthFailed},
		{"pointer bad request", &genai.APIError{Code: 400, Message: "bad prompt"}, imagegate.ErrInvalidRequest},
		{"unknown model", genai.APIError{Code: 404, Message: "model not found"}, imagegate.ErrInvalidRequest},
		{"server error", genai.APIError{Code: 503, Message: "overloaded"}, imagegate.ErrProviderUnavailable},
		{"transport", errors.New("connection refused"), imagegate.ErrProviderUnavailable},
		{"cancelled", context.Canceled, context.Canceled},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, mapError(tc.err), tc.want)
		})
	}
}
