package util

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLinearBackOff(t *testing.T) {
	b := &LinearBackOff{Step: 100 * time.Millisecond}
	for i, want := range []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond} {
		if got := b.NextBackOff(); got != want {
			t.Fatalf("wait %d = %v, want %v", i+1, got, want)
		}
	}
	b.Reset()
	if got := b.NextBackOff(); got != 100*time.Millisecond {
		t.Fatalf("after reset = %v", got)
	}
}

func TestExponentialBackOffCapped(t *testing.T) {
	b := NewExponentialBackOff(100*time.Millisecond, time.Second)
	for i := 0; i < 10; i++ {
		d := b.NextBackOff()
		if d <= 0 || d > 1500*time.Millisecond {
			t.Fatalf("wait %d = %v, outside (0, max+jitter]", i+1, d)
		}
	}
}

func TestRetryStopsAfterRetries(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), &LinearBackOff{Step: time.Millisecond}, 2, func() error {
		calls++
		return errors.New("boom")
	}, nil)
	if err == nil || err.Error() != "boom" || calls != 3 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	calls, notified := 0, 0
	err := Retry(context.Background(), &LinearBackOff{}, 5, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, func(error, time.Duration) { notified++ })
	if err != nil || calls != 3 || notified != 2 {
		t.Fatalf("err=%v calls=%d notified=%d", err, calls, notified)
	}
}

func TestRetryHonorsCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	start := time.Now()
	err := Retry(ctx, &LinearBackOff{Step: time.Hour}, 3, func() error {
		calls++
		cancel()
		return errors.New("down")
	}, nil)
	if !errors.Is(err, context.Canceled) || calls != 1 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
	if time.Since(start) > time.Second {
		t.Fatal("Retry did not return promptly")
	}
}

func TestHostLimiterDisabled(t *testing.T) {
	hl := NewHostLimiter(0, 0)
	for i := 0; i < 100; i++ {
		if err := hl.WaitURL(context.Background(), "https://example.com/x"); err != nil {
			t.Fatal(err)
		}
	}
}

func TestCleanText(t *testing.T) {
	got := CleanText("  Lima  Metropolitana \n\t Perú ")
	if got != "Lima Metropolitana Perú" {
		t.Fatalf("got %q", got)
	}
}
