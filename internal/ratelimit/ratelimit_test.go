package ratelimit

import (
	"errors"
	"testing"
)

func TestUnlimitedWhenRateZero(t *testing.T) {
	l := NewLimiter(Config{})
	for i := 0; i < 1000; i++ {
		if err := l.Allow("cli"); err != nil {
			t.Fatalf("Allow() error = %v on request %d, want nil (unlimited)", err, i)
		}
	}
}

func TestBurstExhaustion(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 60, BurstSize: 3})

	for i := 0; i < 3; i++ {
		if err := l.Allow("cli"); err != nil {
			t.Fatalf("Allow() error = %v on request %d, want nil", err, i)
		}
	}
	if err := l.Allow("cli"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("Allow() error = %v, want ErrRateLimited", err)
	}
}

func TestClientsAreIsolated(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 60, BurstSize: 1})

	if err := l.Allow("a"); err != nil {
		t.Fatalf("Allow(a) error = %v", err)
	}
	if err := l.Allow("a"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("Allow(a) error = %v, want ErrRateLimited", err)
	}
	// Client b still has a full bucket.
	if err := l.Allow("b"); err != nil {
		t.Fatalf("Allow(b) error = %v, want nil", err)
	}
}

func TestBurstDefaultsToRate(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 2})

	if err := l.Allow("cli"); err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if err := l.Allow("cli"); err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if err := l.Allow("cli"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("Allow() error = %v, want ErrRateLimited", err)
	}
}
