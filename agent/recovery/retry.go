// Package recovery wraps exactly one kind of operation: the external model
// call. Tool execution only happens after a model response is successfully
// obtained, so retries here can never replay an order mutation.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go/v2"
	"github.com/rs/zerolog/log"

	contractx "github.com/hanbit-dev/kiosk-agent/agent/contract"
)

type Config struct {
	MaxRetries int           `envconfig:"MAX_RETRIES" split_words:"true" default:"3"`
	BaseDelay  time.Duration `envconfig:"BASE_DELAY" split_words:"true" default:"1s"`
	MaxDelay   time.Duration `envconfig:"MAX_DELAY" split_words:"true" default:"30s"`
	Jitter     bool          `envconfig:"JITTER" split_words:"true" default:"true"`
}

// Policy implements the ATTEMPT(n) -> DONE | FAILED state machine: on a
// retryable failure with attempts left it waits Delay(n) and re-enters
// ATTEMPT(n+1); a non-retryable failure or exhaustion transitions to FAILED.
type Policy struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	jitter     bool

	sleep   func(ctx context.Context, d time.Duration) error
	jitterN func() float64
}

type Option func(*Policy)

// WithSleepFunc replaces the backoff wait, used by tests to observe delays.
func WithSleepFunc(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Policy) {
		if fn != nil {
			p.sleep = fn
		}
	}
}

// WithJitterFunc replaces the jitter source with a deterministic one.
func WithJitterFunc(fn func() float64) Option {
	return func(p *Policy) {
		if fn != nil {
			p.jitterN = fn
		}
	}
}

func NewPolicy(cfg Config, opts ...Option) *Policy {
	p := &Policy{
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.BaseDelay,
		maxDelay:   cfg.MaxDelay,
		jitter:     cfg.Jitter,
		sleep:      sleepCtx,
		jitterN:    rand.Float64,
	}
	if p.maxRetries < 1 {
		p.maxRetries = 1
	}
	if p.baseDelay <= 0 {
		p.baseDelay = time.Second
	}
	if p.maxDelay < p.baseDelay {
		p.maxDelay = p.baseDelay
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Delay is a pure function of the attempt count: base_delay * 2^attempt,
// bounded by the configured cap. Jitter is applied separately at wait time.
func (p *Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := p.baseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.maxDelay {
			return p.maxDelay
		}
	}
	if d > p.maxDelay {
		return p.maxDelay
	}
	return d
}

func (p *Policy) wait(ctx context.Context, attempt int) error {
	d := p.Delay(attempt)
	if p.jitter {
		// up to +-25% around the deterministic delay
		factor := 0.75 + p.jitterN()*0.5
		d = time.Duration(float64(d) * factor)
	}
	return p.sleep(ctx, d)
}

// Do runs op until it succeeds, a non-retryable error occurs, or attempts are
// exhausted. Exhaustion and non-retryable failures wrap ErrModelUnavailable.
func Do[T any](ctx context.Context, p *Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt < p.maxRetries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, fmt.Errorf("%w: %v", contractx.ErrModelUnavailable, ctxErr)
		}

		out, err := op(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if !Retryable(err) || attempt == p.maxRetries-1 {
			break
		}

		log.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Int("max_retries", p.maxRetries).
			Msg("model call failed, backing off")

		if waitErr := p.wait(ctx, attempt); waitErr != nil {
			return zero, fmt.Errorf("%w: %v", contractx.ErrModelUnavailable, waitErr)
		}
	}

	return zero, fmt.Errorf("%w: %v", contractx.ErrModelUnavailable, lastErr)
}

// Retryable classifies a model-call failure. Timeouts, rate limits, and
// transient server errors retry; authentication and malformed-request
// failures do not.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var apiErr *openaisdk.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 408, apiErr.StatusCode == 409, apiErr.StatusCode == 429:
			return true
		case apiErr.StatusCode >= 500:
			return true
		default:
			return false
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "authentication"), strings.Contains(msg, "api key"):
		return false
	case strings.Contains(msg, "malformed"), strings.Contains(msg, "invalid request"):
		return false
	}
	return true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
