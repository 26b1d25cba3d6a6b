package gateway_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellmind/agentcore/runtime/gateway"
)

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	cfg := gateway.DefaultRetryConfig()
	cfg.NetworkBase = time.Millisecond
	cfg.RateLimitBase = time.Millisecond

	attempts := 0
	err := gateway.Retry(context.Background(), cfg, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return &gateway.StatusError{StatusCode: http.StatusServiceUnavailable}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryStopsOnFatal4xx(t *testing.T) {
	attempts := 0
	err := gateway.Retry(context.Background(), gateway.DefaultRetryConfig(), func(ctx context.Context) error {
		attempts++
		return &gateway.StatusError{StatusCode: http.StatusBadRequest}
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryExhaustion(t *testing.T) {
	cfg := gateway.DefaultRetryConfig()
	cfg.NetworkBase = time.Millisecond
	cfg.MaxAttempts = 3

	attempts := 0
	err := gateway.Retry(context.Background(), cfg, func(ctx context.Context) error {
		attempts++
		return &gateway.StatusError{StatusCode: http.StatusTooManyRequests}
	})
	var exhausted *gateway.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Equal(t, 3, attempts)
}

func TestRetryHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := gateway.Retry(ctx, gateway.DefaultRetryConfig(), func(ctx context.Context) error {
		return &gateway.StatusError{StatusCode: http.StatusServiceUnavailable}
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestIsRetryableClassification(t *testing.T) {
	assert.True(t, gateway.IsRetryable(&gateway.StatusError{StatusCode: 429}))
	assert.True(t, gateway.IsRetryable(&gateway.StatusError{StatusCode: 503}))
	assert.False(t, gateway.IsRetryable(&gateway.StatusError{StatusCode: 400}))
	assert.False(t, gateway.IsRetryable(nil))
}
