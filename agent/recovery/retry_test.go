package recovery

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	contractx "github.com/hanbit-dev/kiosk-agent/agent/contract"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "dial tcp: i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func noJitter() float64 { return 0.5 } // factor 1.0

func testPolicy(cfg Config, sleeps *[]time.Duration) *Policy {
	return NewPolicy(cfg,
		WithJitterFunc(noJitter),
		WithSleepFunc(func(_ context.Context, d time.Duration) error {
			*sleeps = append(*sleeps, d)
			return nil
		}),
	)
}

func TestDelayIsPureDoubling(t *testing.T) {
	t.Parallel()

	p := NewPolicy(Config{MaxRetries: 5, BaseDelay: time.Second, MaxDelay: 30 * time.Second})

	want := []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second, // capped
		30 * time.Second,
	}
	for attempt, wantD := range want {
		if got := p.Delay(attempt); got != wantD {
			t.Fatalf("Delay(%d) = %v, want %v", attempt, got, wantD)
		}
	}
	if got := p.Delay(-1); got != time.Second {
		t.Fatalf("Delay(-1) = %v, want base", got)
	}
}

func TestDoRetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	var sleeps []time.Duration
	p := testPolicy(Config{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second, Jitter: true}, &sleeps)

	calls := 0
	got, err := Do(context.Background(), p, func(context.Context) (string, error) {
		calls++
		if calls <= 2 {
			return "", timeoutErr{}
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if got != "ok" || calls != 3 {
		t.Fatalf("got %q after %d calls", got, calls)
	}

	want := []time.Duration{time.Second, 2 * time.Second}
	if len(sleeps) != len(want) {
		t.Fatalf("sleeps = %v, want %v", sleeps, want)
	}
	for i := range want {
		if sleeps[i] != want[i] {
			t.Fatalf("sleeps[%d] = %v, want %v", i, sleeps[i], want[i])
		}
	}
}

func TestDoExhaustionWrapsModelUnavailable(t *testing.T) {
	t.Parallel()

	var sleeps []time.Duration
	p := testPolicy(Config{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second}, &sleeps)

	calls := 0
	_, err := Do(context.Background(), p, func(context.Context) (int, error) {
		calls++
		return 0, timeoutErr{}
	})
	if !errors.Is(err, contractx.ErrModelUnavailable) {
		t.Fatalf("Do() error = %v, want ErrModelUnavailable", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	if len(sleeps) != 2 {
		t.Fatalf("sleeps = %d, want 2 (no sleep after last attempt)", len(sleeps))
	}
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	t.Parallel()

	var sleeps []time.Duration
	p := testPolicy(Config{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second}, &sleeps)

	calls := 0
	_, err := Do(context.Background(), p, func(context.Context) (int, error) {
		calls++
		return 0, fmt.Errorf("authentication failed: bad api key")
	})
	if !errors.Is(err, contractx.ErrModelUnavailable) {
		t.Fatalf("Do() error = %v, want ErrModelUnavailable wrap", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (no retry on auth failure)", calls)
	}
	if len(sleeps) != 0 {
		t.Fatalf("sleeps = %v, want none", sleeps)
	}
}

func TestDoRespectsCancelledContext(t *testing.T) {
	t.Parallel()

	var sleeps []time.Duration
	p := testPolicy(Config{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second}, &sleeps)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := Do(ctx, p, func(context.Context) (int, error) {
		calls++
		return 0, timeoutErr{}
	})
	if !errors.Is(err, contractx.ErrModelUnavailable) {
		t.Fatalf("Do() error = %v, want ErrModelUnavailable", err)
	}
	if calls != 0 {
		t.Fatalf("calls = %d, want 0", calls)
	}
}

func TestRetryableClassification(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"context canceled", context.Canceled, false},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"net timeout", timeoutErr{}, true},
		{"auth message", errors.New("authentication failed"), false},
		{"api key message", errors.New("invalid api key"), false},
		{"malformed message", errors.New("malformed function call"), false},
		{"invalid request message", errors.New("invalid request body"), false},
		{"unknown transient", errors.New("connection reset by peer"), true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Retryable(tc.err); got != tc.want {
				t.Fatalf("Retryable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestJitterBoundsDelay(t *testing.T) {
	t.Parallel()

	var slept time.Duration
	p := NewPolicy(Config{MaxRetries: 2, BaseDelay: 4 * time.Second, MaxDelay: 30 * time.Second, Jitter: true},
		WithJitterFunc(func() float64 { return 0 }), // factor 0.75
		WithSleepFunc(func(_ context.Context, d time.Duration) error {
			slept = d
			return nil
		}),
	)

	_, _ = Do(context.Background(), p, func(context.Context) (int, error) {
		return 0, timeoutErr{}
	})
	if slept != 3*time.Second {
		t.Fatalf("slept = %v, want 3s (4s * 0.75)", slept)
	}
}
