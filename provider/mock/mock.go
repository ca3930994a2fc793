// Package mock provides a Generator that returns sample images without
// calling any API. It backs local development and tests.
package mock

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ineyio/imagegate"
)

// DefaultImages are the sample URLs returned when none are configured.
// They are site-relative: the server serves them from the examples folder
// of its static directory (public/examples by default). Other hosts see
// them as placeholders.
var DefaultImages = []string{
	"/examples/moon-cat.jpg",
	"/examples/mountain-lake-sunset.jpg",
}

// Generator is a mock image generator.
type Generator struct {
	name      string
	images    []string
	latency   time.Duration
	failAfter int
	callCount atomic.Int64
	staticErr error
	inline    []byte
	generate  func(context.Context, imagegate.GenerateRequest) (imagegate.GenerateResponse, error)
}

var _ imagegate.Generator = (*Generator)(nil)

// Option configures a mock Generator.
type Option func(*Generator)

// New creates a mock generator with the given options.
func New(opts ...Option) *Generator {
	g := &Generator{
		name:   "mock",
		images: DefaultImages,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// WithName sets the generator name.
func WithName(name string) Option {
	return func(g *Generator) { g.name = name }
}

// WithImages sets the URLs returned, one image per URL.
func WithImages(urls ...string) Option {
	return func(g *Generator) { g.images = urls }
}

// WithInlineImage makes the generator return data as a single inline PNG.
func WithInlineImage(data []byte) Option {
	return func(g *Generator) { g.inline = data }
}

// WithLatency adds simulated latency to each call.
func WithLatency(d time.Duration) Option {
	return func(g *Generator) { g.latency = d }
}

// WithFailAfter makes the generator fail after N successful calls.
func WithFailAfter(n int) Option {
	return func(g *Generator) { g.failAfter = n }
}

// WithError makes the generator always return this error.
func WithError(err error) Option {
	return func(g *Generator) { g.staticErr = err }
}

// WithGenerateFunc sets a custom generate function.
func WithGenerateFunc(fn func(context.Context, imagegate.GenerateRequest) (imagegate.GenerateResponse, error)) Option {
	return func(g *Generator) { g.generate = fn }
}

func (g *Generator) Name() string { return g.name }

func (g *Generator) Generate(ctx context.Context, req imagegate.GenerateRequest) (imagegate.GenerateResponse, error) {
	if g.latency > 0 {
		select {
		case <-time.After(g.latency):
		case <-ctx.Done():
			return imagegate.GenerateResponse{}, ctx.Err()
		}
	}

	count := g.callCount.Add(1)

	if g.staticErr != nil {
		return imagegate.GenerateResponse{}, g.staticErr
	}

	if g.failAfter > 0 && int(count) > g.failAfter {
		return imagegate.GenerateResponse{}, imagegate.ErrProviderUnavailable
	}

	if g.generate != nil {
		return g.generate(ctx, req)
	}

	resp := imagegate.GenerateResponse{
		RevisedPrompt: fmt.Sprintf("%s (high detail, professional photo, striking visuals)", req.Prompt),
		Model:         "mock-image",
	}
	if g.inline != nil {
		resp.Images = []imagegate.Image{{Data: g.inline, ContentType: "image/png"}}
		return resp, nil
	}
	for _, u := range g.images {
		resp.Images = append(resp.Images, imagegate.Image{URL: u})
	}
	return resp, nil
}

// CallCount returns the number of calls made to the generator.
func (g *Generator) CallCount() int64 { return g.callCount.Load() }
