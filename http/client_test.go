package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.RateLimiter = RateLimiterConfig{DefaultRPS: 0}
	cfg.CircuitBreaker = CircuitBreakerConfig{
		FailureThreshold: 2,
		RecoveryTimeout:  time.Minute,
		IsTransientError: IsTransientHTTPError,
	}
	return cfg
}

func TestDefaultTransportConfig(t *testing.T) {
	cfg := DefaultTransportConfig()

	if cfg.MaxIdleConns != 20 {
		t.Errorf("MaxIdleConns = %d, want 20", cfg.MaxIdleConns)
	}
	if cfg.MaxIdleConnsPerHost != 10 {
		t.Errorf("MaxIdleConnsPerHost = %d, want 10", cfg.MaxIdleConnsPerHost)
	}
	if cfg.IdleConnTimeout != 90*time.Second {
		t.Errorf("IdleConnTimeout = %v, want 90s", cfg.IdleConnTimeout)
	}
	if !cfg.ForceAttemptHTTP2 {
		t.Error("ForceAttemptHTTP2 should be true")
	}
}

func TestTransportSetsUserAgent(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.UserAgent = "storefeed-test/1.0"
	client := NewClient(cfg)

	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	resp.Body.Close()

	if got != "storefeed-test/1.0" {
		t.Errorf("User-Agent = %q, want storefeed-test/1.0", got)
	}
}

func TestTransportOpensCircuitOnServerErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	transport := NewTransport(testConfig())
	client := &http.Client{Transport: transport}

	for i := 0; i < 2; i++ {
		resp, err := client.Get(srv.URL)
		if err != nil {
			t.Fatalf("Get() #%d error = %v", i+1, err)
		}
		// 5xx responses are passed through for the caller to decode
		if resp.StatusCode != http.StatusBadGateway {
			t.Errorf("status = %d, want 502", resp.StatusCode)
		}
		resp.Body.Close()
	}

	_, err := client.Get(srv.URL)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Get() after threshold error = %v, want ErrCircuitOpen", err)
	}
	if n := atomic.LoadInt32(&hits); n != 2 {
		t.Errorf("server hits = %d, want 2", n)
	}
	if got := transport.CircuitState("127.0.0.1"); got != CircuitOpen {
		t.Errorf("CircuitState() = %v, want open", got)
	}
}

func TestTransportClientErrorsKeepCircuitClosed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	transport := NewTransport(testConfig())
	client := &http.Client{Transport: transport}

	for i := 0; i < 5; i++ {
		resp, err := client.Get(srv.URL)
		if err != nil {
			t.Fatalf("Get() #%d error = %v", i+1, err)
		}
		resp.Body.Close()
	}
	if got := transport.CircuitState("127.0.0.1"); got != CircuitClosed {
		t.Errorf("CircuitState() = %v, want closed", got)
	}
}

func TestTransportRecordsThrottling(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.RateLimiter = RateLimiterConfig{DefaultRPS: 100, EnableDynamicBackoff: true}
	transport := NewTransport(cfg)
	client := &http.Client{Transport: transport}

	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	resp.Body.Close()

	state := transport.rateLimiter.GetBackoffState("127.0.0.1")
	if state == nil {
		t.Fatal("expected backoff state after 429")
	}
	if state.ReducedRPS != 75 {
		t.Errorf("ReducedRPS = %v, want 75", state.ReducedRPS)
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   time.Duration
	}{
		{"empty", "", 0},
		{"seconds", "30", 30 * time.Second},
		{"garbage", "soon", 0},
		{"past date", "Mon, 02 Jan 2006 15:04:05 GMT", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.header != "" {
				h.Set("Retry-After", tt.header)
			}
			if got := parseRetryAfter(h); got != tt.want {
				t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.header, got, tt.want)
			}
		})
	}
}
