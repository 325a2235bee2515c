package llm

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/image-ocr/internal/observability"
)

func response(code int) *http.Response {
	return &http.Response{StatusCode: code, Body: io.NopCloser(strings.NewReader(""))}
}

func TestShouldRetry(t *testing.T) {
	for _, code := range []int{429, 500, 502, 503, 504} {
		assert.True(t, shouldRetry(code), code)
	}
	for _, code := range []int{200, 400, 401, 403, 404} {
		assert.False(t, shouldRetry(code), code)
	}
}

func TestCalculateBackoff(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: time.Second, MaxBackoff: 5 * time.Second}
	assert.Equal(t, time.Second, calculateBackoff(0, cfg))
	assert.Equal(t, 2*time.Second, calculateBackoff(1, cfg))
	assert.Equal(t, 4*time.Second, calculateBackoff(2, cfg))
	assert.Equal(t, 5*time.Second, calculateBackoff(3, cfg))
}

func TestRetryWithBackoff(t *testing.T) {
	fast := RetryConfig{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
	logger := observability.Nop()

	t.Run("bounded by max retries", func(t *testing.T) {
		calls := 0
		resp, err := retryWithBackoff(context.Background(), fast, logger, func() (*http.Response, error) {
			calls++
			return response(http.StatusTooManyRequests), nil
		})
		require.NoError(t, err)
		assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
		assert.Equal(t, 3, calls)
	})

	t.Run("non-retryable status returns immediately", func(t *testing.T) {
		calls := 0
		resp, err := retryWithBackoff(context.Background(), fast, logger, func() (*http.Response, error) {
			calls++
			return response(http.StatusBadRequest), nil
		})
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, 1, calls)
	})

	t.Run("transport errors are not retried", func(t *testing.T) {
		calls := 0
		_, err := retryWithBackoff(context.Background(), fast, logger, func() (*http.Response, error) {
			calls++
			return nil, errors.New("connection refused")
		})
		assert.EqualError(t, err, "connection refused")
		assert.Equal(t, 1, calls)
	})

	t.Run("cancelled context stops waiting", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		slow := RetryConfig{MaxRetries: 5, InitialBackoff: time.Hour, MaxBackoff: time.Hour}
		calls := 0
		_, err := retryWithBackoff(ctx, slow, logger, func() (*http.Response, error) {
			calls++
			cancel()
			return response(http.StatusServiceUnavailable), nil
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}
