package http

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewRateLimiterDefaults(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{DefaultRPS: 2})

	if rl.config.Burst != 1 {
		t.Errorf("Burst = %d, want 1", rl.config.Burst)
	}
	if rl.config.HostRates == nil {
		t.Error("HostRates should be initialized")
	}
}

func TestRateLimiterWait(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{DefaultRPS: 20})
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := rl.Wait(ctx, testHost); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}
	elapsed := time.Since(start)

	// 3 requests at 20 rps with burst 1 take at least ~100ms
	if elapsed < 80*time.Millisecond {
		t.Errorf("3 waits took %v, want >= 80ms", elapsed)
	}
}

func TestRateLimiterContextCanceled(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{DefaultRPS: 0.5})
	ctx, cancel := context.WithCancel(context.Background())

	// consume the burst token
	if err := rl.Wait(ctx, testHost); err != nil {
		t.Fatalf("first Wait() error = %v", err)
	}
	cancel()

	if err := rl.Wait(ctx, testHost); err == nil {
		t.Error("Wait() with canceled context returned nil")
	}
}

func TestRateLimiterUnlimitedHost(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{DefaultRPS: 1, HostRates: map[string]float64{"localhost": 0}})
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 10; i++ {
		if err := rl.Wait(ctx, "localhost"); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("unlimited host waits took %v", elapsed)
	}
}

func TestRateLimiterSetHostRate(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{DefaultRPS: 1})
	rl.Wait(context.Background(), testHost)
	rl.RecordRateLimitError(testHost, 0)

	rl.SetHostRate(testHost, 50)

	if rl.GetBackoffState(testHost) != nil {
		t.Error("SetHostRate() should clear backoff state")
	}
	rl.mu.Lock()
	got := rl.rpsFor(testHost)
	rl.mu.Unlock()
	if got != 50 {
		t.Errorf("rpsFor() = %v, want 50", got)
	}
}

func TestRateLimiterRecordRateLimitError(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{DefaultRPS: 4, EnableDynamicBackoff: true})
	rl.Wait(context.Background(), testHost)

	tests := []struct {
		wantBackoff time.Duration
		wantRPS     float64
	}{
		{1 * time.Second, 3},
		{2 * time.Second, 2},
		{4 * time.Second, 1},
		{8 * time.Second, 1},
	}

	for i, tt := range tests {
		got := rl.RecordRateLimitError(testHost, 0)
		if got != tt.wantBackoff {
			t.Errorf("error %d: backoff = %v, want %v", i+1, got, tt.wantBackoff)
		}
		state := rl.GetBackoffState(testHost)
		if state.ReducedRPS != tt.wantRPS {
			t.Errorf("error %d: ReducedRPS = %v, want %v", i+1, state.ReducedRPS, tt.wantRPS)
		}
	}
}

func TestRateLimiterRetryAfterRespected(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{DefaultRPS: 1, EnableDynamicBackoff: true})

	if got := rl.RecordRateLimitError(testHost, 10*time.Second); got != 10*time.Second {
		t.Errorf("backoff = %v, want 10s", got)
	}
}

func TestRateLimiterBackoffCapped(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{DefaultRPS: 1, EnableDynamicBackoff: true})

	var got time.Duration
	for i := 0; i < 20; i++ {
		got = rl.RecordRateLimitError(testHost, 0)
	}
	if got != MaxBackoff {
		t.Errorf("backoff after many errors = %v, want %v", got, MaxBackoff)
	}
}

func TestRateLimiterRecordSuccess(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{DefaultRPS: 1, EnableDynamicBackoff: true})

	rl.RecordRateLimitError(testHost, 0)
	rl.RecordRateLimitError(testHost, 0)
	rl.RecordSuccess(testHost)

	state := rl.GetBackoffState(testHost)
	if state == nil {
		t.Fatal("backoff state should persist within the cooldown period")
	}
	if state.ConsecutiveErrors != 1 {
		t.Errorf("ConsecutiveErrors = %d, want 1", state.ConsecutiveErrors)
	}
}

func TestRateLimiterWaitForBackoff(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{DefaultRPS: 1, EnableDynamicBackoff: true})
	rl.RecordRateLimitError(testHost, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := rl.WaitForBackoff(ctx, testHost); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitForBackoff() = %v, want context.DeadlineExceeded", err)
	}
	if err := rl.WaitForBackoff(context.Background(), "other.example.com"); err != nil {
		t.Errorf("WaitForBackoff() on clean host = %v, want nil", err)
	}
}

func TestRateLimiterDisabledDynamicBackoff(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{DefaultRPS: 1, EnableDynamicBackoff: false})

	if got := rl.RecordRateLimitError(testHost, 0); got != InitialBackoff {
		t.Errorf("backoff = %v, want %v", got, InitialBackoff)
	}
	if got := rl.RecordRateLimitError(testHost, 3*time.Second); got != 3*time.Second {
		t.Errorf("backoff with Retry-After = %v, want 3s", got)
	}
	if rl.GetBackoffState(testHost) != nil {
		t.Error("no backoff state should be kept when dynamic backoff is disabled")
	}
}
