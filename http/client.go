// Package http provides the outbound HTTP stack used to reach the YouTube
// Data API: connection pooling, per-host rate limiting with dynamic backoff,
// and a circuit breaker that fails fast while an upstream is unhealthy.
package http

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Config holds HTTP client configuration.
type Config struct {
	// Timeout for individual HTTP requests
	Timeout time.Duration

	// User agent for HTTP requests
	UserAgent string

	// Rate limiter configuration
	RateLimiter RateLimiterConfig

	// Circuit breaker configuration
	CircuitBreaker CircuitBreakerConfig

	// Connection pool configuration
	Transport TransportConfig

	// Logger receives throttling and circuit transitions. Nil disables logging.
	Logger *zap.Logger
}

// TransportConfig configures the HTTP transport (connection pooling).
type TransportConfig struct {
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	IdleConnTimeout     time.Duration
	ForceAttemptHTTP2   bool
	DisableKeepAlives   bool
}

// DefaultConfig returns sensible defaults for HTTP client configuration.
func DefaultConfig() *Config {
	return &Config{
		Timeout:        30 * time.Second,
		UserAgent:      "storefeed/1.0",
		RateLimiter:    DefaultRateLimiterConfig(),
		CircuitBreaker: DefaultCircuitBreakerConfig(),
		Transport:      DefaultTransportConfig(),
	}
}

// DefaultTransportConfig returns sensible defaults for HTTP transport configuration.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}
}

// Transport is an http.RoundTripper that applies the circuit breaker and
// rate limiter around a pooled base transport. It does not retry; callers
// layer retry.Do on top.
type Transport struct {
	base           http.RoundTripper
	userAgent      string
	rateLimiter    *RateLimiter
	circuitBreaker *CircuitBreaker
	logger         *zap.Logger
}

var _ http.RoundTripper = (*Transport)(nil)

// NewTransport builds a Transport from cfg. A nil cfg uses DefaultConfig.
func NewTransport(cfg *Config) *Transport {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	cbConfig := cfg.CircuitBreaker
	if cbConfig.OnStateChange == nil {
		cbConfig.OnStateChange = func(host string, from, to CircuitState) {
			logger.Warn("circuit state changed",
				zap.String("host", host),
				zap.Stringer("from", from),
				zap.Stringer("to", to))
		}
	}

	return &Transport{
		base: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        cfg.Transport.MaxIdleConns,
			MaxIdleConnsPerHost: cfg.Transport.MaxIdleConnsPerHost,
			MaxConnsPerHost:     cfg.Transport.MaxConnsPerHost,
			IdleConnTimeout:     cfg.Transport.IdleConnTimeout,
			ForceAttemptHTTP2:   cfg.Transport.ForceAttemptHTTP2,
			DisableKeepAlives:   cfg.Transport.DisableKeepAlives,
		},
		userAgent:      cfg.UserAgent,
		rateLimiter:    NewRateLimiter(cfg.RateLimiter),
		circuitBreaker: NewCircuitBreaker(cbConfig),
		logger:         logger,
	}
}

// NewClient returns an *http.Client using a Transport built from cfg.
func NewClient(cfg *Config) *http.Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &http.Client{
		Timeout:   cfg.Timeout,
		Transport: NewTransport(cfg),
	}
}

// RoundTrip implements http.RoundTripper. Throttled (429) and 5xx responses
// are returned unchanged so API clients can decode them; they only feed the
// limiter and breaker.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	host := hostOf(req.URL)
	ctx := req.Context()

	if err := t.circuitBreaker.Allow(host); err != nil {
		return nil, fmt.Errorf("%s: %w", host, err)
	}
	if err := t.rateLimiter.WaitForBackoff(ctx, host); err != nil {
		return nil, err
	}
	if err := t.rateLimiter.Wait(ctx, host); err != nil {
		return nil, err
	}

	if t.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req = req.Clone(ctx)
		req.Header.Set("User-Agent", t.userAgent)
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		t.circuitBreaker.RecordFailure(host, err)
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(resp.Header)
		backoff := t.rateLimiter.RecordRateLimitError(host, retryAfter)
		t.logger.Warn("upstream throttled request",
			zap.String("host", host),
			zap.Int("status", resp.StatusCode),
			zap.Duration("backoff", backoff))
		t.circuitBreaker.RecordFailure(host, &RateLimitError{StatusCode: resp.StatusCode, RetryAfter: backoff})
	case resp.StatusCode >= 500:
		t.circuitBreaker.RecordFailure(host, &HTTPError{StatusCode: resp.StatusCode})
	default:
		t.rateLimiter.RecordSuccess(host)
		t.circuitBreaker.RecordSuccess(host)
	}

	return resp, nil
}

// CircuitState reports the breaker state for host.
func (t *Transport) CircuitState(host string) CircuitState {
	return t.circuitBreaker.GetState(host)
}

// CloseIdleConnections closes idle connections held by the base transport.
func (t *Transport) CloseIdleConnections() {
	if ci, ok := t.base.(interface{ CloseIdleConnections() }); ok {
		ci.CloseIdleConnections()
	}
}

// parseRetryAfter extracts the Retry-After header value, in seconds or as
// an HTTP date. Returns 0 if absent or malformed.
func parseRetryAfter(header http.Header) time.Duration {
	retryAfter := header.Get("Retry-After")
	if retryAfter == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(retryAfter); err == nil {
		return time.Duration(seconds) * time.Second
	}

	if t, err := http.ParseTime(retryAfter); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}

	return 0
}
