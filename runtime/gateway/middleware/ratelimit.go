// Package middleware provides reusable gateway.Server middleware, notably an
// adaptive tokens-per-minute rate limiter.
package middleware

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/cellmind/agentcore/runtime/gateway"
	"github.com/cellmind/agentcore/runtime/model"
)

// AdaptiveRateLimiter applies an AIMD-style adaptive token bucket in front of
// a gateway.Server. It estimates the token cost of each request, blocks
// callers until capacity is available, and shrinks or grows its effective
// tokens-per-minute budget in response to rate-limit signals from the
// provider.
//
// The limiter is process-local: construct one instance per process and
// register its middleware on every gateway.Server that shares a provider
// quota.
type AdaptiveRateLimiter struct {
	mu sync.Mutex

	limiter *rate.Limiter

	currentTPM float64
	minTPM     float64
	maxTPM     float64

	recoveryRate float64
}

// NewAdaptiveRateLimiter constructs a limiter with an initial and maximum
// tokens-per-minute budget. When maxTPM is zero or less than initialTPM, it
// is clamped to initialTPM.
func NewAdaptiveRateLimiter(initialTPM, maxTPM float64) *AdaptiveRateLimiter {
	if initialTPM <= 0 {
		initialTPM = 60000
	}
	if maxTPM <= 0 || maxTPM < initialTPM {
		maxTPM = initialTPM
	}
	minTPM := initialTPM * 0.1
	if minTPM < 1 {
		minTPM = 1
	}
	recoveryRate := initialTPM * 0.05
	if recoveryRate < 1 {
		recoveryRate = 1
	}
	lim := rate.NewLimiter(rate.Limit(initialTPM/60.0), int(initialTPM))

	return &AdaptiveRateLimiter{
		limiter:      lim,
		currentTPM:   initialTPM,
		minTPM:       minTPM,
		maxTPM:       maxTPM,
		recoveryRate: recoveryRate,
	}
}

// Generate returns gateway.GenerateMiddleware enforcing the limiter.
func (l *AdaptiveRateLimiter) Generate() gateway.GenerateMiddleware {
	return func(next gateway.GenerateHandler) gateway.GenerateHandler {
		return func(ctx context.Context, req *model.Request) (*model.Response, error) {
			if err := l.wait(ctx, req); err != nil {
				return nil, err
			}
			resp, err := next(ctx, req)
			l.observe(err)
			return resp, err
		}
	}
}

// Stream returns gateway.StreamMiddleware enforcing the limiter.
func (l *AdaptiveRateLimiter) Stream() gateway.StreamMiddleware {
	return func(next gateway.StreamHandler) gateway.StreamHandler {
		return func(ctx context.Context, req *model.Request, send func(model.Chunk) error) error {
			if err := l.wait(ctx, req); err != nil {
				return err
			}
			err := next(ctx, req, send)
			l.observe(err)
			return err
		}
	}
}

func (l *AdaptiveRateLimiter) wait(ctx context.Context, req *model.Request) error {
	return l.limiter.WaitN(ctx, estimateTokens(req))
}

func (l *AdaptiveRateLimiter) observe(err error) {
	if err == nil {
		l.probe()
		return
	}
	if gateway.IsRateLimited(err) {
		l.backoff()
	}
}

func (l *AdaptiveRateLimiter) backoff() {
	l.mu.Lock()
	defer l.mu.Unlock()

	newTPM := l.currentTPM * 0.5
	if newTPM < l.minTPM {
		newTPM = l.minTPM
	}
	if newTPM == l.currentTPM {
		return
	}
	l.currentTPM = newTPM
	l.limiter.SetLimit(rate.Limit(newTPM / 60.0))
	l.limiter.SetBurst(int(newTPM))
}

func (l *AdaptiveRateLimiter) probe() {
	l.mu.Lock()
	defer l.mu.Unlock()

	newTPM := l.currentTPM + l.recoveryRate
	if newTPM > l.maxTPM {
		newTPM = l.maxTPM
	}
	if newTPM == l.currentTPM {
		return
	}
	l.currentTPM = newTPM
	l.limiter.SetLimit(rate.Limit(newTPM / 60.0))
	l.limiter.SetBurst(int(newTPM))
}

// CurrentTPM reports the limiter's current effective budget, for telemetry.
func (l *AdaptiveRateLimiter) CurrentTPM() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentTPM
}

// estimateTokens is a cheap heuristic over message text: roughly one token
// per three characters plus a fixed buffer for system prompts and provider
// framing overhead.
func estimateTokens(req *model.Request) int {
	charCount := len(req.System)
	for _, m := range req.Messages {
		charCount += len(m.Content)
	}
	if charCount <= 0 {
		return 500
	}
	tokens := charCount / 3
	if tokens < 1 {
		tokens = 1
	}
	return tokens + 500
}
