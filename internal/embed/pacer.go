package embed

import (
	"context"

	"golang.org/x/time/rate"
)

// Pacer throttles outgoing embedding requests. One Pacer instance is shared
// by every concurrent ingestion job so the aggregate call rate honors the
// configured budget; it is passed in explicitly so tests can substitute a
// deterministic implementation.
type Pacer interface {
	// Wait blocks until n requests may be dispatched.
	Wait(ctx context.Context, n int) error
}

// RatePacer implements Pacer with a token bucket.
type RatePacer struct {
	limiter *rate.Limiter
}

// NewRatePacer builds a pacer allowing requestsPerMinute sustained calls with
// the given burst. A zero or negative budget means unlimited.
func NewRatePacer(requestsPerMinute, burst int) *RatePacer {
	if requestsPerMinute <= 0 {
		return &RatePacer{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	if burst < 1 {
		burst = 1
	}
	return &RatePacer{limiter: rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), burst)}
}

func (p *RatePacer) Wait(ctx context.Context, n int) error {
	if n < 1 {
		return nil
	}
	if n > p.limiter.Burst() && p.limiter.Limit() != rate.Inf {
		// A batch larger than the bucket is drained in bucket-sized
		// slices instead of erroring out.
		burst := p.limiter.Burst()
		for n > 0 {
			take := n
			if take > burst {
				take = burst
			}
			if err := p.limiter.WaitN(ctx, take); err != nil {
				return err
			}
			n -= take
		}
		return nil
	}
	return p.limiter.WaitN(ctx, n)
}

// PacedProvider waits on a shared Pacer before dispatching each batch, so
// batched callers self-throttle to the requests-per-minute budget.
type PacedProvider struct {
	inner Provider
	pacer Pacer
}

// NewPacedProvider wraps a provider with request pacing. A nil pacer means
// no throttling.
func NewPacedProvider(inner Provider, pacer Pacer) *PacedProvider {
	return &PacedProvider{inner: inner, pacer: pacer}
}

func (p *PacedProvider) Name() string { return p.inner.Name() }

func (p *PacedProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if p.pacer != nil {
		if err := p.pacer.Wait(ctx, len(texts)); err != nil {
			return nil, err
		}
	}
	return p.inner.Embed(ctx, texts)
}
