package http

import (
	"errors"
	"sync"
	"time"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed is the normal state where requests are allowed.
	CircuitClosed CircuitState = iota
	// CircuitOpen is the state where requests fail fast.
	CircuitOpen
	// CircuitHalfOpen lets a limited number of probe requests through.
	CircuitHalfOpen
)

// String returns the string representation of a circuit state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

const (
	// DefaultFailureThreshold is the number of consecutive failures that opens a circuit.
	DefaultFailureThreshold = 5
	// DefaultRecoveryTimeout is how long a circuit stays open before probing.
	DefaultRecoveryTimeout = 30 * time.Second
	// DefaultHalfOpenMaxRequests is the number of probes allowed while half-open.
	DefaultHalfOpenMaxRequests = 1
)

// ErrCircuitOpen is returned when the circuit breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerConfig configures circuit breaker behavior.
type CircuitBreakerConfig struct {
	FailureThreshold    int
	RecoveryTimeout     time.Duration
	HalfOpenMaxRequests int
	// IsTransientError decides whether a failure counts toward opening the
	// circuit. Nil counts every failure.
	IsTransientError func(error) bool
	// OnStateChange, if set, is called (outside the lock) on every transition.
	OnStateChange func(host string, from, to CircuitState)
}

// DefaultCircuitBreakerConfig returns sensible defaults for circuit breaker configuration.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:    DefaultFailureThreshold,
		RecoveryTimeout:     DefaultRecoveryTimeout,
		HalfOpenMaxRequests: DefaultHalfOpenMaxRequests,
		IsTransientError:    IsTransientHTTPError,
	}
}

type circuit struct {
	state             CircuitState
	consecutiveErrors int
	lastError         time.Time
	lastStateChange   time.Time
	halfOpenRequests  int
}

// CircuitBreaker tracks failures per host and fails fast once a host has
// failed FailureThreshold times in a row.
type CircuitBreaker struct {
	circuits map[string]*circuit
	mu       sync.Mutex
	config   CircuitBreakerConfig
}

// NewCircuitBreaker creates a new circuit breaker with the given configuration.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = DefaultRecoveryTimeout
	}
	if cfg.HalfOpenMaxRequests <= 0 {
		cfg.HalfOpenMaxRequests = DefaultHalfOpenMaxRequests
	}

	return &CircuitBreaker{
		circuits: make(map[string]*circuit),
		config:   cfg,
	}
}

// Allow returns nil if a request to host may proceed, or ErrCircuitOpen.
func (cb *CircuitBreaker) Allow(host string) error {
	if cb == nil {
		return nil
	}

	cb.mu.Lock()
	c := cb.getOrCreate(host)
	from := c.state
	var err error

	switch c.state {
	case CircuitOpen:
		if time.Since(c.lastStateChange) >= cb.config.RecoveryTimeout {
			cb.transition(c, CircuitHalfOpen)
			c.halfOpenRequests = 1
		} else {
			err = ErrCircuitOpen
		}
	case CircuitHalfOpen:
		if c.halfOpenRequests < cb.config.HalfOpenMaxRequests {
			c.halfOpenRequests++
		} else {
			err = ErrCircuitOpen
		}
	}
	to := c.state
	cb.mu.Unlock()

	cb.notify(host, from, to)
	return err
}

// RecordSuccess closes a half-open circuit and clears the failure count.
func (cb *CircuitBreaker) RecordSuccess(host string) {
	if cb == nil {
		return
	}

	cb.mu.Lock()
	c := cb.getOrCreate(host)
	from := c.state
	if c.state == CircuitHalfOpen {
		cb.transition(c, CircuitClosed)
		c.halfOpenRequests = 0
	}
	c.consecutiveErrors = 0
	to := c.state
	cb.mu.Unlock()

	cb.notify(host, from, to)
}

// RecordFailure counts a failure against host. Errors the config classifies
// as permanent leave the circuit untouched.
func (cb *CircuitBreaker) RecordFailure(host string, err error) {
	if cb == nil {
		return
	}
	if cb.config.IsTransientError != nil && !cb.config.IsTransientError(err) {
		return
	}

	cb.mu.Lock()
	c := cb.getOrCreate(host)
	from := c.state
	c.consecutiveErrors++
	c.lastError = time.Now()

	switch c.state {
	case CircuitClosed:
		if c.consecutiveErrors >= cb.config.FailureThreshold {
			cb.transition(c, CircuitOpen)
		}
	case CircuitHalfOpen:
		cb.transition(c, CircuitOpen)
	}
	to := c.state
	cb.mu.Unlock()

	cb.notify(host, from, to)
}

// GetState returns the state of host's circuit, reporting an expired open
// circuit as half-open.
func (cb *CircuitBreaker) GetState(host string) CircuitState {
	return cb.GetStats(host).State
}

// CircuitStats contains statistics about a circuit's state.
type CircuitStats struct {
	State             CircuitState
	ConsecutiveErrors int
	LastError         time.Time
	LastStateChange   time.Time
}

// GetStats returns statistics for host's circuit.
func (cb *CircuitBreaker) GetStats(host string) CircuitStats {
	if cb == nil {
		return CircuitStats{State: CircuitClosed}
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	c, exists := cb.circuits[host]
	if !exists {
		return CircuitStats{State: CircuitClosed}
	}

	state := c.state
	if state == CircuitOpen && time.Since(c.lastStateChange) >= cb.config.RecoveryTimeout {
		state = CircuitHalfOpen
	}
	return CircuitStats{
		State:             state,
		ConsecutiveErrors: c.consecutiveErrors,
		LastError:         c.lastError,
		LastStateChange:   c.lastStateChange,
	}
}

// Reset closes host's circuit.
func (cb *CircuitBreaker) Reset(host string) {
	if cb == nil {
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()
	delete(cb.circuits, host)
}

// Must be called with mutex held.
func (cb *CircuitBreaker) getOrCreate(host string) *circuit {
	c, exists := cb.circuits[host]
	if !exists {
		c = &circuit{state: CircuitClosed, lastStateChange: time.Now()}
		cb.circuits[host] = c
	}
	return c
}

// Must be called with mutex held.
func (cb *CircuitBreaker) transition(c *circuit, to CircuitState) {
	c.state = to
	c.lastStateChange = time.Now()
}

func (cb *CircuitBreaker) notify(host string, from, to CircuitState) {
	if from != to && cb.config.OnStateChange != nil {
		cb.config.OnStateChange(host, from, to)
	}
}

// IsTransientHTTPError reports whether err should count toward opening a
// circuit: throttling, 5xx and transport errors do; other 4xx do not.
func IsTransientHTTPError(err error) bool {
	if err == nil {
		return false
	}

	var rateLimitErr *RateLimitError
	if errors.As(err, &rateLimitErr) {
		return true
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 500 || httpErr.StatusCode == 429
	}

	return true
}
