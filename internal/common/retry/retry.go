// Package retry re-runs notification deliveries that fail with transient errors.
// The refresh workflow itself is never retried.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/textproto"
	"strings"
	"time"
)

// maxDelay caps the exponential backoff.
const maxDelay = 30 * time.Second

// IsRetryableError determines if an error is transient and worth retrying.
// Returns true for network timeouts, connection errors, 4xx SMTP replies and
// errors whose Temporary method reports true. Context cancellation is never retried.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		return IsSMTPRetryableError(protoErr.Code)
	}

	var temp interface{ Temporary() bool }
	if errors.As(err, &temp) && temp.Temporary() {
		return true
	}

	errMsg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"timeout",
		"connection reset",
		"connection refused",
		"temporary failure",
		"try again",
		"i/o timeout",
		"no such host",
		"network is unreachable",
		"broken pipe",
		"connection timed out",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errMsg, pattern) {
			return true
		}
	}

	return false
}

// IsSMTPRetryableError reports whether an SMTP reply code is a temporary (4xx) failure.
func IsSMTPRetryableError(smtpCode int) bool {
	return smtpCode >= 400 && smtpCode < 500
}

// RetryWithBackoff runs operation up to maxRetries+1 times.
// The delay starts at baseDelay and doubles on each attempt, capped at 30 seconds.
// Non-retryable errors and context cancellation stop immediately.
//
// Example usage:
//
//	err := retry.RetryWithBackoff(ctx, 3, 2*time.Second, logger, func() error {
//	    return mailer.Send(ctx, msg)
//	})
func RetryWithBackoff(ctx context.Context, maxRetries int, baseDelay time.Duration, logger *slog.Logger, operation func() error) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		lastErr = operation()
		if lastErr == nil {
			if attempt > 0 && logger != nil {
				logger.Info("Operation succeeded after retries", "retries", attempt)
			}
			return nil
		}

		if !IsRetryableError(lastErr) {
			return lastErr
		}

		if attempt == maxRetries {
			return fmt.Errorf("operation failed after %d retries: %w", maxRetries, lastErr)
		}

		delay := baseDelay * time.Duration(1<<uint(attempt))
		if delay > maxDelay {
			delay = maxDelay
		}

		if logger != nil {
			logger.Warn("Retryable error encountered",
				"attempt", attempt+1, "maxRetries", maxRetries, "error", lastErr, "retryIn", delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	}

	return lastErr
}
