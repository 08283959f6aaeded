package services

import (
	"context"
	"time"

	"post-insight-pipeline/internal/logger"
)

// retryWithBackoff retries operation with exponential backoff while it keeps
// failing transiently. A permanent error returns immediately; the last
// transient error is returned once maxAttempts is exhausted. The delay doubles
// on each retry and the wait is context-aware.
func retryWithBackoff(ctx context.Context, operation func() error, maxAttempts int, baseDelay time.Duration) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	delay := baseDelay
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lastErr = operation()
		if lastErr == nil {
			if attempt > 1 {
				logger.Debug("operation succeeded after retry", "attempt", attempt)
			}
			return nil
		}

		if !IsTransient(lastErr) {
			return lastErr
		}

		if attempt == maxAttempts {
			break
		}

		logger.Debug("transient failure, backing off", "attempt", attempt, "delay", delay.String(), "error", lastErr.Error())

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}

	return lastErr
}
