// Package stabilizer waits for input files to stop growing before the
// daemon consumes them.
package stabilizer

import (
	"context"
	"errors"
	"os"
	"time"
)

// ErrStabilizationTimeout is returned when the file does not stabilize within the timeout.
var ErrStabilizationTimeout = errors.New("stabilization timeout: file did not stabilize in time")

// Stabilizer waits for a file to finish writing.
type Stabilizer interface {
	WaitForStable(ctx context.Context, path string) error
}

// PollStabilizer implements Stabilizer by polling size and modification time.
type PollStabilizer struct {
	// Interval is the duration between checks.
	Interval time.Duration

	// Checks is the number of consecutive unchanged observations required.
	// Zero disables stabilization.
	Checks int

	// Timeout bounds the wait when the context has no deadline. Zero means no bound.
	Timeout time.Duration
}

// NewPollStabilizer creates a new polling-based stabilizer.
func NewPollStabilizer(interval time.Duration, checks int) *PollStabilizer {
	return &PollStabilizer{
		Interval: interval,
		Checks:   checks,
	}
}

// WaitForStable blocks until neither the size nor the modification time of
// path changed across Checks consecutive polls. It returns immediately when
// stabilization is disabled.
func (s *PollStabilizer) WaitForStable(ctx context.Context, path string) error {
	if s.Checks <= 0 {
		return nil
	}

	usingInternalTimeout := false
	if s.Timeout > 0 {
		if _, hasDeadline := ctx.Deadline(); !hasDeadline {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.Timeout)
			defer cancel()
			usingInternalTimeout = true
		}
	}

	var (
		lastSize    int64 = -1
		lastModTime time.Time
		stableCount int
	)

	for stableCount < s.Checks {
		select {
		case <-ctx.Done():
			if usingInternalTimeout && errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return ErrStabilizationTimeout
			}
			return ctx.Err()
		case <-time.After(s.Interval):
		}

		info, err := os.Stat(path)
		if err != nil {
			return err
		}

		if info.Size() == lastSize && info.ModTime().Equal(lastModTime) {
			stableCount++
			continue
		}
		stableCount = 0
		lastSize = info.Size()
		lastModTime = info.ModTime()
	}

	return nil
}
