package toolset

import (
	"time"
)

// retryPolicy retries an operation a bounded number of times. The delay
// doubles between attempts (a zero initial delay never sleeps), shouldRetry
// filters which errors are worth another attempt, and beforeRetry runs
// between attempts so the caller can mutate state, renaming a conflicting
// dataset for instance, before trying again.
type retryPolicy struct {
	maxAttempts  int
	initialDelay time.Duration
	shouldRetry  func(error) bool
	beforeRetry  func(attempt int, err error)
}

func (p retryPolicy) run(operation func() error) error {
	delay := p.initialDelay
	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		lastErr = operation()
		if lastErr == nil {
			return nil
		}
		if p.shouldRetry != nil && !p.shouldRetry(lastErr) {
			return lastErr
		}
		if attempt == p.maxAttempts {
			break
		}
		if p.beforeRetry != nil {
			p.beforeRetry(attempt, lastErr)
		}
		if delay > 0 {
			time.Sleep(delay)
			delay *= 2
		}
	}
	return lastErr
}
