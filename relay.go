package imagegate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jonboulle/clockwork"
)

// Relay forwards generation requests to the configured generators, in
// order, falling back to the next one on retryable errors.
type Relay struct {
	generators []Generator
	meter      Meter
	health     *HealthTracker
	clock      clockwork.Clock
}

// RelayOption configures a Relay.
type RelayOption func(*Relay)

// WithRelayMeter sets the meter.
func WithRelayMeter(m Meter) RelayOption {
	return func(r *Relay) { r.meter = m }
}

// WithHealthTracker sets the health tracker.
func WithHealthTracker(h *HealthTracker) RelayOption {
	return func(r *Relay) { r.health = h }
}

// WithRelayClock sets the clock used to time generator calls.
func WithRelayClock(c clockwork.Clock) RelayOption {
	return func(r *Relay) { r.clock = c }
}

// NewRelay creates a Relay over generators, tried in the given order.
func NewRelay(generators []Generator, opts ...RelayOption) (*Relay, error) {
	if len(generators) == 0 {
		return nil, fmt.Errorf("imagegate: at least one generator is required")
	}

	r := &Relay{generators: generators}
	for _, opt := range opts {
		opt(r)
	}

	if r.clock == nil {
		r.clock = clockwork.NewRealClock()
	}
	if r.health == nil {
		r.health = NewHealthTracker(r.clock)
	}
	if r.meter == nil {
		r.meter = &noopMeter{}
	}
	return r, nil
}

// Health returns the relay's health tracker.
func (r *Relay) Health() *HealthTracker { return r.health }

// Generate validates req and runs it against the first healthy generator
// that succeeds.
func (r *Relay) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error) {
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" {
		return GenerateResponse{}, fmt.Errorf("%w: prompt is required", ErrInvalidRequest)
	}
	req.Size = NormalizeSize(req.Size)

	var lastErr error
	attempts := 0
	for _, g := range r.generators {
		if r.health.State(g.Name()) == HealthUnhealthy {
			continue
		}
		attempts++

		start := r.clock.Now()
		resp, err := g.Generate(ctx, req)
		duration := r.clock.Since(start)

		if err == nil && len(resp.Images) == 0 {
			err = fmt.Errorf("%w: no images returned", ErrProviderUnavailable)
		}

		if err != nil {
			if countsAgainstGenerator(ctx, err) {
				r.health.RecordFailure(g.Name())
			}
			r.meter.OnResult(ResultEvent{
				Generator: g.Name(),
				Model:     resp.Model,
				Attempt:   attempts,
				Success:   false,
				Duration:  duration,
				Error:     err,
			})

			if IsFatal(err) || ctx.Err() != nil {
				return GenerateResponse{}, &RelayError{
					Err:       err,
					Generator: g.Name(),
					Attempts:  attempts,
				}
			}

			lastErr = err
			continue
		}

		r.health.RecordSuccess(g.Name())
		r.meter.OnResult(ResultEvent{
			Generator: g.Name(),
			Model:     resp.Model,
			Attempt:   attempts,
			Success:   true,
			Duration:  duration,
			Images:    len(resp.Images),
		})

		resp.Generator = g.Name()
		resp.Attempts = attempts
		return resp, nil
	}

	if lastErr != nil {
		return GenerateResponse{}, &RelayError{
			Err:      fmt.Errorf("%w: last error: %w", ErrAllFailed, lastErr),
			Attempts: attempts,
		}
	}
	return GenerateResponse{}, ErrNoGenerators
}

// countsAgainstGenerator reports whether err says something about the
// generator itself. Rejected prompts and callers that went away do not.
func countsAgainstGenerator(ctx context.Context, err error) bool {
	return ctx.Err() == nil && !errors.Is(err, ErrInvalidRequest)
}
