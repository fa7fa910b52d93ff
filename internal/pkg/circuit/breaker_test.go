package circuit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreakerOpensAfterThresholdAndRecovers(t *testing.T) {
	now := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker("news", 2, time.Minute)
	cb.now = func() time.Time { return now }
	cb.SetStateChangeHandler(func(string, State, State) {})

	boom := errors.New("boom")
	assert.ErrorIs(t, cb.Do(func() error { return boom }), boom)
	assert.Equal(t, StateClosed, cb.State())
	assert.ErrorIs(t, cb.Do(func() error { return boom }), boom)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Do(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)

	now = now.Add(2 * time.Minute)
	assert.NoError(t, cb.Do(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreakerIgnoresCancellation(t *testing.T) {
	cb := NewCircuitBreaker("quote", 1, time.Minute)
	cb.SetStateChangeHandler(func(string, State, State) {})
	assert.ErrorIs(t, cb.Do(func() error { return context.Canceled }), context.Canceled)
	assert.Equal(t, StateClosed, cb.State())
}

func TestNilBreakerPassesThrough(t *testing.T) {
	var cb *CircuitBreaker
	assert.NoError(t, cb.Do(func() error { return nil }))
}
