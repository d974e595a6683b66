package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("upstream 503")

func fail(context.Context) error    { return errUpstream }
func succeed(context.Context) error { return nil }

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var transitions []string
	cb := New(Config{
		FailureThreshold: 3,
		Timeout:          time.Minute,
		Clock:            clock,
		OnStateChange:    func(from, to State) { transitions = append(transitions, from.String()+"->"+to.String()) },
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Call(ctx, fail), errUpstream)
	}
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Call(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called, "fn must not run while open")
	assert.Equal(t, []string{"closed->open"}, transitions)
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := New(Config{FailureThreshold: 2, Clock: clockwork.NewFakeClock()})
	ctx := context.Background()

	_ = cb.Call(ctx, fail)
	require.NoError(t, cb.Call(ctx, succeed))
	_ = cb.Call(ctx, fail)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cb := New(Config{FailureThreshold: 1, SuccessThreshold: 2, Timeout: time.Minute, Clock: clock})
	ctx := context.Background()

	_ = cb.Call(ctx, fail)
	require.Equal(t, StateOpen, cb.State())

	clock.Advance(time.Minute)
	require.NoError(t, cb.Call(ctx, succeed))
	assert.Equal(t, StateHalfOpen, cb.State())
	require.NoError(t, cb.Call(ctx, succeed))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cb := New(Config{FailureThreshold: 1, Timeout: time.Minute, Clock: clock})
	ctx := context.Background()

	_ = cb.Call(ctx, fail)
	clock.Advance(time.Minute)
	_ = cb.Call(ctx, fail)
	assert.Equal(t, StateOpen, cb.State())

	clock.Advance(30 * time.Second)
	assert.ErrorIs(t, cb.Call(ctx, succeed), ErrOpen, "reopen restarts the timeout")
}

func TestCircuitBreaker_IgnoredErrors(t *testing.T) {
	cb := New(Config{
		FailureThreshold: 1,
		Clock:            clockwork.NewFakeClock(),
		IsFailure:        func(err error) bool { return !errors.Is(err, context.Canceled) },
	})

	err := cb.Call(context.Background(), func(context.Context) error { return context.Canceled })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.State())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "half_open", StateHalfOpen.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "unknown", State(42).String())
}
