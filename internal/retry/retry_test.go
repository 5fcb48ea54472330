package retry

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond, Multiplier: 2}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(3), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsAtMaxAttempts(t *testing.T) {
	calls := 0
	sentinel := errors.New("still down")
	err := Do(context.Background(), fastPolicy(3), func(context.Context) error {
		calls++
		return sentinel
	})

	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 3, calls)
}

func TestDo_PermanentErrorIsNotRetried(t *testing.T) {
	calls := 0
	sentinel := errors.New("bad request")
	err := Do(context.Background(), fastPolicy(5), func(context.Context) error {
		calls++
		return Permanent(sentinel)
	})

	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Do(ctx, fastPolicy(5), func(context.Context) error {
		calls++
		return errors.New("transient")
	})

	assert.Error(t, err)
	assert.LessOrEqual(t, calls, 1)
}

func TestPolicy_Apply(t *testing.T) {
	c := DefaultPolicy().Apply(retryablehttp.NewClient())

	assert.Equal(t, 2, c.RetryMax, "three attempts means two retries")
	assert.Equal(t, 500*time.Millisecond, c.RetryWaitMin)
	assert.Equal(t, 3*time.Second, c.RetryWaitMax)
}

func TestCheckRetry(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		status int
		want   bool
	}{
		{name: "ok", status: http.StatusOK, want: false},
		{name: "not found", status: http.StatusNotFound, want: false},
		{name: "rate limited", status: http.StatusTooManyRequests, want: false},
		{name: "server error", status: http.StatusInternalServerError, want: true},
		{name: "gateway timeout", status: http.StatusGatewayTimeout, want: true},
		{name: "not implemented", status: http.StatusNotImplemented, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CheckRetry(ctx, &http.Response{StatusCode: tt.status}, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
