package llm

import (
	"context"
	"math"
	"net/http"
	"time"

	"github.com/spherical/image-ocr/internal/observability"
)

const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second
)

// RetryConfig holds retry configuration. MaxRetries of 0 means one attempt.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// shouldRetry determines if a status code is retryable
func shouldRetry(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// calculateBackoff calculates exponential backoff duration
func calculateBackoff(attempt int, config RetryConfig) time.Duration {
	backoff := float64(config.InitialBackoff) * math.Pow(2, float64(attempt))

	if config.MaxBackoff > 0 && backoff > float64(config.MaxBackoff) {
		backoff = float64(config.MaxBackoff)
	}

	return time.Duration(backoff)
}

// retryWithBackoff runs reqFunc until it yields a non-retryable response or
// the retry budget is spent. The last response is returned as is so the
// caller can classify its status. Transport errors are not retried.
func retryWithBackoff(ctx context.Context, config RetryConfig, logger *observability.Logger, reqFunc func() (*http.Response, error)) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := reqFunc()
		if err != nil {
			return nil, err
		}

		if !shouldRetry(resp.StatusCode) || attempt >= config.MaxRetries {
			return resp, nil
		}

		resp.Body.Close()

		backoff := calculateBackoff(attempt, config)
		logger.Warn().
			Int("status", resp.StatusCode).
			Int("attempt", attempt+1).
			Int("max_retries", config.MaxRetries).
			Dur("backoff", backoff).
			Msg("Request failed, retrying")

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}
