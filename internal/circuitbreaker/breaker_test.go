package circuitbreaker

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var errUpstream = errors.New("503 service unavailable")

func TestCircuitBreaker_BasicFunctionality(t *testing.T) {
	cb := New(3)
	assert.Equal(t, StateClosed, cb.GetState(), "Circuit breaker should start closed")

	require.NoError(t, cb.Allow())
	cb.RecordSuccess()
	assert.Equal(t, StateClosed, cb.GetState(), "Circuit should remain closed after success")
}

func TestCircuitBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	cb := New(3)

	cb.RecordFailure(errUpstream)
	cb.RecordFailure(errUpstream)
	assert.Equal(t, StateClosed, cb.GetState(), "Two failures should not trip a threshold of three")

	cb.RecordFailure(errUpstream)
	assert.Equal(t, StateOpen, cb.GetState(), "Circuit should be open after the third failure")
	assert.ErrorIs(t, cb.Allow(), ErrOpen)
}

func TestCircuitBreaker_SuccessResetsFailureRun(t *testing.T) {
	cb := New(3)

	cb.RecordFailure(errUpstream)
	cb.RecordFailure(errUpstream)
	cb.RecordSuccess()
	cb.RecordFailure(errUpstream)
	cb.RecordFailure(errUpstream)

	assert.Equal(t, StateClosed, cb.GetState(), "Interleaved success should reset the failure run")
}

func TestCircuitBreaker_Recovery(t *testing.T) {
	clock := &manualClock{now: time.Date(2025, 8, 15, 18, 0, 0, 0, time.UTC)}
	cb := New(1).
		WithResetDelay(time.Minute).
		WithSuccessThreshold(2).
		WithClock(clock.Now)

	cb.RecordFailure(errUpstream)
	require.Equal(t, StateOpen, cb.GetState())

	clock.Advance(30 * time.Second)
	assert.ErrorIs(t, cb.Allow(), ErrOpen, "Should stay open before the reset delay")

	clock.Advance(31 * time.Second)
	require.NoError(t, cb.Allow())
	assert.Equal(t, StateHalfOpen, cb.GetState())

	cb.RecordSuccess()
	assert.Equal(t, StateHalfOpen, cb.GetState(), "One probe is not enough with a threshold of two")

	cb.RecordSuccess()
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := &manualClock{now: time.Date(2025, 8, 15, 18, 0, 0, 0, time.UTC)}
	cb := New(1).WithResetDelay(time.Minute).WithClock(clock.Now)

	cb.RecordFailure(errUpstream)
	clock.Advance(2 * time.Minute)
	require.NoError(t, cb.Allow())

	cb.RecordFailure(errUpstream)
	assert.Equal(t, StateOpen, cb.GetState())
	assert.ErrorIs(t, cb.Allow(), ErrOpen)
}

func TestCircuitBreaker_ManualReset(t *testing.T) {
	cb := New(1)
	cb.RecordFailure(errUpstream)
	require.Equal(t, StateOpen, cb.GetState())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.GetState())
	assert.NoError(t, cb.Allow())
}

func TestCircuitBreaker_TripCallback(t *testing.T) {
	reasons := make(chan string, 1)
	cb := New(2).WithTripCallback(func(reason string) {
		reasons <- reason
	})

	cb.RecordFailure(errUpstream)
	cb.RecordFailure(errUpstream)

	select {
	case reason := <-reasons:
		assert.Contains(t, reason, "2 consecutive failures")
	case <-time.After(time.Second):
		t.Fatal("Trip callback was not invoked")
	}
}

func TestCircuitBreaker_DisabledThreshold(t *testing.T) {
	cb := New(0)
	for i := 0; i < 50; i++ {
		cb.RecordFailure(errUpstream)
	}
	assert.Equal(t, StateClosed, cb.GetState())
}
