package http

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"time"
)

// ErrorType classifies a failed storage write for the retry loop.
type ErrorType int

const (
	ErrorTypeSuccess ErrorType = iota
	// ErrorTypeNetwork covers timeouts, resets and refused connections.
	ErrorTypeNetwork
	// ErrorTypeRetryable covers throttling and 5xx responses from the store.
	ErrorTypeRetryable
	// ErrorTypeFatal is everything else: bad credentials, missing bucket, 4xx.
	ErrorTypeFatal
)

// RetryConfig holds retry parameters for ExecuteWithRetry.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// OnRetry is invoked before each new attempt.
	OnRetry func(attempt int, err error, errorType ErrorType)
}

// DefaultRetryConfig suits a single export object write.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  4,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
	}
}

// ClassifyError determines the retry strategy for err.
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ErrorTypeSuccess
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeFatal
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorTypeNetwork
	}

	errStr := strings.ToLower(err.Error())

	if strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "i/o timeout") ||
		strings.Contains(errStr, "tls handshake timeout") ||
		strings.Contains(errStr, "unexpected eof") {
		return ErrorTypeNetwork
	}

	// S3 (SlowDown, InternalError) and Azure (ServerBusy, OperationTimedOut) transient codes
	if strings.Contains(errStr, "slowdown") ||
		strings.Contains(errStr, "throttl") ||
		strings.Contains(errStr, "internalerror") ||
		strings.Contains(errStr, "serverbusy") ||
		strings.Contains(errStr, "operationtimedout") ||
		strings.Contains(errStr, "serviceunavailable") ||
		strings.Contains(errStr, "statuscode: 429") ||
		strings.Contains(errStr, "statuscode: 5") ||
		strings.Contains(errStr, "response 5") {
		return ErrorTypeRetryable
	}

	return ErrorTypeFatal
}

// CalculateBackoff returns exponential backoff with full jitter:
// random(0, min(maxDelay, initialDelay * 2^attempt)).
func CalculateBackoff(attempt int, initialDelay, maxDelay time.Duration) time.Duration {
	if attempt <= 0 || initialDelay <= 0 {
		return 0
	}
	base := time.Duration(1<<uint(attempt)) * initialDelay
	if base > maxDelay || base <= 0 {
		base = maxDelay
	}
	return time.Duration(rand.Int63n(int64(base) + 1))
}

// ExecuteWithRetry runs operation until it succeeds, fails fatally, the
// context ends, or MaxAttempts is exhausted.
func ExecuteWithRetry(ctx context.Context, cfg RetryConfig, operation func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		errType := ClassifyError(err)
		if errType == ErrorTypeFatal {
			return err
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err, errType)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(CalculateBackoff(attempt+1, cfg.InitialDelay, cfg.MaxDelay)):
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}

// ErrorTypeName returns a human-readable name for an ErrorType.
func ErrorTypeName(errType ErrorType) string {
	switch errType {
	case ErrorTypeSuccess:
		return "success"
	case ErrorTypeNetwork:
		return "network"
	case ErrorTypeRetryable:
		return "retryable"
	case ErrorTypeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}
