// Package openai provides an image Generator for the OpenAI Images API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/ineyio/imagegate"
)

const (
	defaultModel   = "dall-e-3"
	defaultTimeout = 60 * time.Second
)

// Generator calls the OpenAI Images API.
type Generator struct {
	name    string
	apiKey  string
	model   string
	baseURL string
	timeout time.Duration
	client  *http.Client
}

var _ imagegate.Generator = (*Generator)(nil)

// Option configures the generator.
type Option func(*Generator)

// WithName sets the generator name (default "openai").
func WithName(name string) Option {
	return func(g *Generator) { g.name = name }
}

// WithModel sets the image model (default "dall-e-3").
func WithModel(model string) Option {
	return func(g *Generator) { g.model = model }
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(g *Generator) { g.baseURL = strings.TrimRight(url, "/") }
}

// WithTimeout sets the per-request timeout (default 60s).
func WithTimeout(d time.Duration) Option {
	return func(g *Generator) { g.timeout = d }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Generator) { g.client = c }
}

// New creates an OpenAI image generator. An empty apiKey yields a generator
// whose calls fail with imagegate.ErrNotConfigured.
func New(apiKey string, opts ...Option) *Generator {
	g := &Generator{
		name:    "openai",
		apiKey:  apiKey,
		model:   defaultModel,
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Generator) Name() string { return g.name }

func (g *Generator) Generate(ctx context.Context, req imagegate.GenerateRequest) (imagegate.GenerateResponse, error) {
	if g.apiKey == "" {
		return imagegate.GenerateResponse{}, fmt.Errorf("%w: openai api key is not set", imagegate.ErrNotConfigured)
	}

	client := openai.NewClient(g.clientOptions()...)
	resp, err := client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:         req.Prompt,
		Model:          openai.ImageModel(g.model),
		N:              openai.Int(1),
		Size:           imageSize(req.Size),
		ResponseFormat: openai.ImageGenerateParamsResponseFormatURL,
	})
	if err != nil {
		return imagegate.GenerateResponse{Model: g.model}, mapError(err)
	}

	out := imagegate.GenerateResponse{Model: g.model}
	for _, d := range resp.Data {
		if d.URL == "" {
			continue
		}
		out.Images = append(out.Images, imagegate.Image{URL: d.URL})
		if out.RevisedPrompt == "" {
			out.RevisedPrompt = d.RevisedPrompt
		}
	}
	return out, nil
}

func (g *Generator) clientOptions() []option.RequestOption {
	opts := []option.RequestOption{
		option.WithAPIKey(g.apiKey),
		option.WithRequestTimeout(g.timeout),
		// The relay decides about retries.
		option.WithMaxRetries(0),
	}
	if g.baseURL != "" {
		opts = append(opts, option.WithBaseURL(g.baseURL+"/"))
	}
	if g.client != nil {
		opts = append(opts, option.WithHTTPClient(g.client))
	}
	return opts
}

func imageSize(s imagegate.Size) openai.ImageGenerateParamsSize {
	switch imagegate.NormalizeSize(s) {
	case imagegate.SizePortrait:
		return openai.ImageGenerateParamsSize1024x1792
	case imagegate.SizeLandscape:
		return openai.ImageGenerateParamsSize1792x1024
	default:
		return openai.ImageGenerateParamsSize1024x1024
	}
}

// mapError converts API errors into imagegate sentinel errors.
func mapError(err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("%w: %v", imagegate.ErrProviderUnavailable, err)
	}

	if strings.Contains(apiErr.Message, "Billing hard limit") || strings.Contains(apiErr.Error(), "Billing hard limit") {
		return fmt.Errorf("%w: %s", imagegate.ErrBillingLimit, apiErr.Message)
	}

	switch apiErr.StatusCode {
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", imagegate.ErrRateLimited, apiErr.Message)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", imagegate.ErrAuthFailed, apiErr.Message)
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", imagegate.ErrInvalidRequest, apiErr.Message)
	default:
		return fmt.Errorf("%w: status %d: %s", imagegate.ErrProviderUnavailable, apiErr.StatusCode, apiErr.Message)
	}
}
