package engine

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestCountdownExpiresExactlyOnce(t *testing.T) {
	var expirations int32
	countdown := NewCountdownWithInterval(3, 2*time.Millisecond, nil, func() {
		atomic.AddInt32(&expirations, 1)
	})
	countdown.Start()

	time.Sleep(60 * time.Millisecond)
	if got := atomic.LoadInt32(&expirations); got != 1 {
		t.Fatalf("expected exactly one expiry, got %d", got)
	}
	if countdown.Remaining() != 0 {
		t.Fatalf("expected zero remaining, got %d", countdown.Remaining())
	}
	if countdown.Stop() {
		t.Fatalf("stop after expiry should report false")
	}
}

func TestCountdownStopSuppressesExpiry(t *testing.T) {
	var expirations int32
	countdown := NewCountdownWithInterval(5, 10*time.Millisecond, nil, func() {
		atomic.AddInt32(&expirations, 1)
	})
	countdown.Start()

	if !countdown.Stop() {
		t.Fatalf("expected stop to succeed on a live timer")
	}
	time.Sleep(100 * time.Millisecond)
	if got := atomic.LoadInt32(&expirations); got != 0 {
		t.Fatalf("expected no expiry after stop, got %d", got)
	}
}

func TestCountdownTicksDown(t *testing.T) {
	ticks := make(chan int, 10)
	countdown := NewCountdownWithInterval(3, 5*time.Millisecond, func(remaining int) {
		ticks <- remaining
	}, nil)
	countdown.Start()

	var seen []int
	timeout := time.After(200 * time.Millisecond)
	for len(seen) < 3 {
		select {
		case remaining := <-ticks:
			seen = append(seen, remaining)
		case <-timeout:
			t.Fatalf("expected 3 ticks, saw %v", seen)
		}
	}
	for i, remaining := range seen {
		if want := 2 - i; remaining != want {
			t.Fatalf("tick %d: expected remaining %d, got %d", i, want, remaining)
		}
	}
}

func TestCountdownPercentClamped(t *testing.T) {
	countdown := NewCountdownWithInterval(4, time.Hour, nil, nil)
	if pct := countdown.Percent(); pct != 100 {
		t.Fatalf("expected 100%% before start, got %v", pct)
	}

	expired := NewCountdownWithInterval(1, time.Millisecond, nil, nil)
	expired.Start()
	time.Sleep(30 * time.Millisecond)
	if pct := expired.Percent(); pct != 0 {
		t.Fatalf("expected 0%% after expiry, got %v", pct)
	}
	if elapsed := expired.Elapsed(); elapsed != 1 {
		t.Fatalf("expected full elapsed, got %d", elapsed)
	}
}

func TestCountdownFreshValuePerInstance(t *testing.T) {
	first := NewCountdownWithInterval(10, time.Hour, nil, nil)
	if first.Remaining() != 10 {
		t.Fatalf("expected full value, got %d", first.Remaining())
	}
	second := NewCountdownWithInterval(7, time.Hour, nil, nil)
	if second.Remaining() != 7 {
		t.Fatalf("expected fresh full value, got %d", second.Remaining())
	}
}
