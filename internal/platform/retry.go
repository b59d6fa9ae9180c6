package platform

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// Error is a typed platform API error carrying retryability.
type Error struct {
	StatusCode int
	Message    string
	Retryable  bool
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("platform API error (HTTP %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("platform API error: %s", e.Message)
}

// NewHTTPError classifies an HTTP status into a platform Error. Server
// errors and rate limiting are transient; everything else is permanent.
func NewHTTPError(statusCode int, message string) *Error {
	return &Error{
		StatusCode: statusCode,
		Message:    message,
		Retryable:  statusCode >= 500 || statusCode == 429,
	}
}

// NewNetworkError wraps a transport-level failure, which is always
// considered transient.
func NewNetworkError(err error) *Error {
	return &Error{Message: err.Error(), Retryable: true}
}

// RetryConfig is an explicit wait schedule: Schedule[n] is the pause
// before retry n+1, and its length bounds how many retries happen at all.
// Jitter widens or narrows each pause by up to that fraction, so a fleet
// of pollers hitting the same flaky instance does not retry in lockstep.
type RetryConfig struct {
	Schedule []time.Duration
	Jitter   float64
}

// DefaultRetryConfig returns the engine's transient-failure policy: up to
// three retries, pausing 1s, 4s, 16s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Schedule: []time.Duration{time.Second, 4 * time.Second, 16 * time.Second},
		Jitter:   0.25,
	}
}

// wait returns the (jittered) pause before the given retry.
func (c RetryConfig) wait(retry int) time.Duration {
	d := c.Schedule[retry]
	if c.Jitter <= 0 {
		return d
	}
	span := c.Jitter * float64(d)
	return time.Duration(float64(d) + (2*rand.Float64()-1)*span)
}

// retryable reports whether err is a transient platform error worth
// another attempt.
func retryable(err error) bool {
	var platformErr *Error
	return errors.As(err, &platformErr) && platformErr.Retryable
}

// RetryWithBackoff runs op, pausing and re-running it per config while it
// keeps failing with a transient error. Permanent errors, an exhausted
// schedule, or context cancellation end the loop; the last error (or nil)
// is returned.
func RetryWithBackoff(ctx context.Context, op func(context.Context) error, config RetryConfig) error {
	err := op(ctx)

	for retry := 0; err != nil && retry < len(config.Schedule); retry++ {
		if !retryable(err) {
			return err
		}

		timer := time.NewTimer(config.wait(retry))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		err = op(ctx)
	}

	return err
}
