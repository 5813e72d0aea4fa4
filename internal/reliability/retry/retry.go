// Package retry wraps fallible operations with bounded exponential backoff.
//
// The retry boundary is explicit at every call site: callers pass the
// operation and a Policy to Execute instead of relying on hidden wrappers.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/vietddude/marketsync/internal/reliability/classify"
)

// Policy defines retry behavior. Immutable, constructed per call site.
type Policy struct {
	MaxRetries    int // 0 means exactly one attempt
	InitialDelay  time.Duration
	BackoffFactor float64
	MaxDelay      time.Duration
	JitterEnabled bool
}

// DefaultPolicy provides sensible defaults for rate-limited market APIs.
// 1s, 2s, 4s, 8s, 16s (max 60s).
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:    5,
		InitialDelay:  1 * time.Second,
		BackoffFactor: 2.0,
		MaxDelay:      60 * time.Second,
		JitterEnabled: true,
	}
}

// AttemptHook observes failed attempts. It must not affect control flow;
// typical uses are error-log persistence and failure-tracker updates.
type AttemptHook func(attempt int, kind classify.ErrorKind, err error)

// ExhaustedError is returned when the retry budget is spent on retryable
// failures. It wraps the last underlying error and preserves its kind.
type ExhaustedError struct {
	Attempts int
	Kind     classify.ErrorKind
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts (%s): %v", e.Attempts, e.Kind, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Delay computes the backoff before retry number attempt (0-indexed),
// ignoring jitter: min(InitialDelay * BackoffFactor^attempt, MaxDelay),
// clamped to zero.
func Delay(policy Policy, attempt int) time.Duration {
	d := float64(policy.InitialDelay) * math.Pow(policy.BackoffFactor, float64(attempt))
	if d > float64(policy.MaxDelay) {
		d = float64(policy.MaxDelay)
	}
	if d < 0 {
		return 0
	}
	return time.Duration(d)
}

// Execute runs op, retrying retryable failures per policy. Non-retryable
// failures propagate immediately; a spent budget surfaces ExhaustedError.
// The backoff sleep aborts when ctx is cancelled.
func Execute(ctx context.Context, op func() error, policy Policy, hook AttemptHook) error {
	var lastErr error
	var lastKind classify.ErrorKind

	attempts := policy.MaxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		err := op()
		if err == nil {
			return nil
		}

		lastErr = err
		lastKind = classify.Classify(err)
		if hook != nil {
			hook(attempt, lastKind, err)
		}

		if !lastKind.Retryable() {
			return err
		}
		if attempt == attempts-1 {
			break
		}

		d := Delay(policy, attempt)
		if policy.JitterEnabled {
			// Uniform factor in [0.5, 1.5) spreads synchronized retries.
			d = time.Duration(float64(d) * (0.5 + rand.Float64()))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d):
		}
	}

	return &ExhaustedError{Attempts: attempts, Kind: lastKind, Err: lastErr}
}

// ExecuteValue is Execute for operations that return a value.
func ExecuteValue[T any](
	ctx context.Context,
	op func() (T, error),
	policy Policy,
	hook AttemptHook,
) (T, error) {
	var result T
	err := Execute(ctx, func() error {
		v, err := op()
		if err != nil {
			return err
		}
		result = v
		return nil
	}, policy, hook)
	return result, err
}
