package gateway

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	b := NewCircuitBreaker()
	boom := errors.New("boom")

	for i := 0; i < defaultFailureThreshold; i++ {
		assert.Equal(t, BreakerClosed, b.State())
		err := b.Call(func() error { return boom })
		require.ErrorIs(t, err, boom)
	}
	assert.Equal(t, BreakerOpen, b.State())

	// While open, calls are refused without running fn.
	ran := false
	err := b.Call(func() error { ran = true; return nil })
	assert.ErrorIs(t, err, ErrBreakerOpen)
	assert.False(t, ran)
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	b := NewCircuitBreaker()
	boom := errors.New("boom")

	base := time.Now()
	now := base
	b.now = func() time.Time { return now }

	for i := 0; i < defaultFailureThreshold; i++ {
		_ = b.Call(func() error { return boom })
	}
	require.Equal(t, BreakerOpen, b.State())

	// After the cooldown a single probe is admitted; success closes the
	// breaker.
	now = base.Add(defaultRecoveryTimeout + time.Second)
	require.NoError(t, b.Call(func() error { return nil }))
	assert.Equal(t, BreakerClosed, b.State())
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	b := NewCircuitBreaker()
	boom := errors.New("boom")

	base := time.Now()
	now := base
	b.now = func() time.Time { return now }

	for i := 0; i < defaultFailureThreshold; i++ {
		_ = b.Call(func() error { return boom })
	}

	now = base.Add(defaultRecoveryTimeout + time.Second)
	err := b.Call(func() error { return boom })
	require.ErrorIs(t, err, boom)
	assert.Equal(t, BreakerOpen, b.State())

	// Still within the new cooldown: refused again.
	err = b.Call(func() error { return nil })
	assert.ErrorIs(t, err, ErrBreakerOpen)
}

func TestCircuitBreaker_SuccessResetsCount(t *testing.T) {
	b := NewCircuitBreaker()
	boom := errors.New("boom")

	for i := 0; i < defaultFailureThreshold-1; i++ {
		_ = b.Call(func() error { return boom })
	}
	require.NoError(t, b.Call(func() error { return nil }))

	// The earlier failures no longer count toward the threshold.
	for i := 0; i < defaultFailureThreshold-1; i++ {
		_ = b.Call(func() error { return boom })
	}
	assert.Equal(t, BreakerClosed, b.State())
}
