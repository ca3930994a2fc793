// Package gemini provides an image Generator for Google's Imagen models
// through the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/ineyio/imagegate"
)

const defaultModel = "imagen-3.0-generate-002"

// Generator calls the Gemini API image endpoint.
type Generator struct {
	name       string
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client

	mu     sync.Mutex
	client *genai.Client
}

var _ imagegate.Generator = (*Generator)(nil)

// Option configures the generator.
type Option func(*Generator)

// WithName sets the generator name (default "gemini").
func WithName(name string) Option {
	return func(g *Generator) { g.name = name }
}

// WithModel sets the image model.
func WithModel(model string) Option {
	return func(g *Generator) { g.model = model }
}

// WithBaseURL sets a custom base URL.
func WithBaseURL(url string) Option {
	return func(g *Generator) { g.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Generator) { g.httpClient = c }
}

// New creates a Gemini image generator. The API client is created on first
// use. An empty apiKey yields calls failing with imagegate.ErrNotConfigured.
func New(apiKey string, opts ...Option) *Generator {
	g := &Generator{
		name:   "gemini",
		apiKey: apiKey,
		model:  defaultModel,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Generator) Name() string { return g.name }

func (g *Generator) Generate(ctx context.Context, req imagegate.GenerateRequest) (imagegate.GenerateResponse, error) {
	client, err := g.getClient(ctx)
	if err != nil {
		return imagegate.GenerateResponse{Model: g.model}, err
	}

	resp, err := client.Models.GenerateImages(ctx, g.model, req.Prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		AspectRatio:    req.Size.AspectRatio(),
	})
	if err != nil {
		return imagegate.GenerateResponse{Model: g.model}, mapError(err)
	}

	out := imagegate.GenerateResponse{Model: g.model}
	var filtered string
	for _, gi := range resp.GeneratedImages {
		if gi == nil {
			continue
		}
		if gi.Image == nil || len(gi.Image.ImageBytes) == 0 {
			if gi.RAIFilteredReason != "" {
				filtered = gi.RAIFilteredReason
			}
			continue
		}
		contentType := gi.Image.MIMEType
		if contentType == "" {
			contentType = "image/png"
		}
		out.Images = append(out.Images, imagegate.Image{
			Data:        gi.Image.ImageBytes,
			ContentType: contentType,
		})
		if out.RevisedPrompt == "" {
			out.RevisedPrompt = gi.EnhancedPrompt
		}
	}

	if len(out.Images) == 0 && filtered != "" {
		return out, fmt.Errorf("%w: image filtered: %s", imagegate.ErrInvalidRequest, filtered)
	}
	return out, nil
}

func (g *Generator) getClient(ctx context.Context) (*genai.Client, error) {
	if g.apiKey == "" {
		return nil, fmt.Errorf("%w: gemini api key is not set", imagegate.ErrNotConfigured)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client != nil {
		return g.client, nil
	}

	cfg := &genai.ClientConfig{
		APIKey:     g.apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: g.httpClient,
	}
	if g.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: g.baseURL + "/"}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("imagegate/gemini: new client: %w", err)
	}
	g.client = client
	return client, nil
}

// mapError converts API errors into imagegate sentinel errors.
func mapError(err error) error {
	code, msg := 0, ""
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code, msg = apiErr.Code, apiErr.Message
	case errors.As(err, &apiErrPtr):
		code, msg = apiErrPtr.Code, apiErrPtr.Message
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %v", imagegate.ErrProviderUnavailable, err)
	}

	switch code {
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", imagegate.ErrRateLimited, msg)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", imagegate.ErrAuthFailed, msg)
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", imagegate.ErrInvalidRequest, msg)
	case http.StatusNotFound:
		return fmt.Errorf("%w: model not found: %s", imagegate.ErrInvalidRequest, msg)
	default:
		return fmt.Errorf("%w: status %d: %s", imagegate.ErrProviderUnavailable, code, msg)
	}
}
