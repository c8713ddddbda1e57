package httpx

import (
	"context"
	"fmt"
	"time"

	"github.com/yungbote/talentgraph-backend/internal/pkg/errors"
)

// PollOptions bounds a polling loop. Interval grows by Multiplier (when > 1)
// up to MaxInterval, with jitter. Timeout is a hard wall-clock bound.
type PollOptions struct {
	Interval    time.Duration
	MaxInterval time.Duration
	Multiplier  float64
	MaxAttempts int
	Timeout     time.Duration
	Jitter      bool
}

// PollTimeoutError is returned when the attempt budget is exhausted.
type PollTimeoutError struct {
	Attempts int
	Elapsed  time.Duration
	LastErr  error
}

func (e *PollTimeoutError) Error() string {
	if e.LastErr != nil {
		return fmt.Sprintf("poll timed out after %d attempts (%s): %v", e.Attempts, e.Elapsed.Round(time.Millisecond), e.LastErr)
	}
	return fmt.Sprintf("poll timed out after %d attempts (%s)", e.Attempts, e.Elapsed.Round(time.Millisecond))
}

func (e *PollTimeoutError) Unwrap() error { return e.LastErr }

// PollFunc reports done=true when the awaited condition holds. A non-nil
// error that is not retryable aborts the loop.
type PollFunc func(ctx context.Context, attempt int) (done bool, err error)

// Poll invokes fn until it reports done, the attempt budget runs out, or ctx ends.
func Poll(ctx context.Context, opts PollOptions, fn PollFunc) error {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.Interval < 0 {
		opts.Interval = 0
	}
	start := time.Now()
	parent := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	interval := opts.Interval
	var lastErr error
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if parent.Err() == nil {
				return &PollTimeoutError{Attempts: attempt - 1, Elapsed: time.Since(start), LastErr: lastErr}
			}
			return err
		}
		done, err := fn(ctx, attempt)
		if err != nil {
			if !IsRetryableError(err) {
				return err
			}
			lastErr = err
		} else if done {
			return nil
		}
		if attempt == opts.MaxAttempts {
			break
		}
		sleepFor := interval
		if opts.Jitter {
			sleepFor = JitterSleep(sleepFor)
		}
		if err := Sleep(ctx, sleepFor); err != nil {
			if parent.Err() == nil {
				return &PollTimeoutError{Attempts: attempt, Elapsed: time.Since(start), LastErr: lastErr}
			}
			return err
		}
		interval = nextInterval(interval, opts)
	}
	return &PollTimeoutError{Attempts: opts.MaxAttempts, Elapsed: time.Since(start), LastErr: lastErr}
}

// IsPollTimeout reports whether err is (or wraps) a PollTimeoutError.
func IsPollTimeout(err error) bool {
	var pt *PollTimeoutError
	return errors.As(err, &pt)
}

func nextInterval(cur time.Duration, opts PollOptions) time.Duration {
	if opts.Multiplier <= 1 {
		return cur
	}
	next := time.Duration(float64(cur) * opts.Multiplier)
	if opts.MaxInterval > 0 && next > opts.MaxInterval {
		next = opts.MaxInterval
	}
	return next
}
