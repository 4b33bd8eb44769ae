package gateway

import (
	"errors"
	"sync"
	"time"
)

// BreakerState is the circuit breaker state.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// ErrBreakerOpen is returned when a call is refused because the breaker is
// open and the cooldown has not elapsed.
var ErrBreakerOpen = errors.New("gateway: circuit breaker is open")

const (
	defaultFailureThreshold = 5
	defaultRecoveryTimeout  = 60 * time.Second
)

// CircuitBreaker guards one upstream service. After failureThreshold
// consecutive failures it opens and refuses calls until recoveryTimeout
// passes, then admits a single probe (half-open). A successful probe closes
// it; a failed one re-opens it.
type CircuitBreaker struct {
	mu               sync.Mutex
	failureThreshold int
	recoveryTimeout  time.Duration
	failureCount     int
	lastFailure      time.Time
	state            BreakerState
	now              func() time.Time
}

// NewCircuitBreaker creates a breaker with the default threshold and
// cooldown.
func NewCircuitBreaker() *CircuitBreaker {
	return &CircuitBreaker{
		failureThreshold: defaultFailureThreshold,
		recoveryTimeout:  defaultRecoveryTimeout,
		state:            BreakerClosed,
		now:              time.Now,
	}
}

// Call runs fn under the breaker's failure accounting.
func (b *CircuitBreaker) Call(fn func() error) error {
	if err := b.allow(); err != nil {
		return err
	}
	if err := fn(); err != nil {
		b.recordFailure()
		return err
	}
	b.reset()
	return nil
}

func (b *CircuitBreaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != BreakerOpen {
		return nil
	}
	if b.now().Sub(b.lastFailure) < b.recoveryTimeout {
		return ErrBreakerOpen
	}
	b.state = BreakerHalfOpen
	return nil
}

func (b *CircuitBreaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount++
	b.lastFailure = b.now()
	if b.state == BreakerHalfOpen || b.failureCount >= b.failureThreshold {
		b.state = BreakerOpen
	}
}

func (b *CircuitBreaker) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount = 0
	b.state = BreakerClosed
}

// State returns the current breaker state.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
