package server

import (
	"testing"
	"time"
)

func TestLoginRateLimiterBlocksAndExpires(t *testing.T) {
	limiter := newLoginRateLimiter(3, time.Minute, 5*time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	key := "10.0.0.1|alice"

	for i := 0; i < 2; i++ {
		limiter.RegisterFailure(key, now.Add(time.Duration(i)*time.Second))
	}
	if !limiter.Allow(key, now.Add(3*time.Second)) {
		t.Fatal("expected key to be allowed below the failure threshold")
	}

	limiter.RegisterFailure(key, now.Add(4*time.Second))
	if limiter.Allow(key, now.Add(5*time.Second)) {
		t.Fatal("expected key to be blocked after reaching the threshold")
	}
	if !limiter.Allow("10.0.0.1|bob", now.Add(5*time.Second)) {
		t.Fatal("expected other usernames from the same client to stay allowed")
	}
	if !limiter.Allow(key, now.Add(4*time.Second+5*time.Minute)) {
		t.Fatal("expected block to lapse after the block duration")
	}
}

func TestLoginRateLimiterWindowRestartsCount(t *testing.T) {
	limiter := newLoginRateLimiter(2, time.Minute, time.Hour)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	key := "10.0.0.2|carol"

	limiter.RegisterFailure(key, now)
	limiter.RegisterFailure(key, now.Add(2*time.Minute))
	if !limiter.Allow(key, now.Add(2*time.Minute)) {
		t.Fatal("failures in separate windows must not accumulate")
	}

	limiter.RegisterFailure(key, now.Add(2*time.Minute+time.Second))
	if limiter.Allow(key, now.Add(2*time.Minute+2*time.Second)) {
		t.Fatal("expected block after two failures in one window")
	}

	limiter.Reset(key)
	if !limiter.Allow(key, now.Add(2*time.Minute+3*time.Second)) {
		t.Fatal("expected reset to clear the block")
	}
}

func TestLoginRateLimiterDisabled(t *testing.T) {
	var limiter *loginRateLimiter
	if got := newLoginRateLimiter(0, time.Minute, time.Minute); got != nil {
		t.Fatal("expected zero max failures to disable the limiter")
	}
	limiter.RegisterFailure("k", time.Now())
	limiter.Reset("k")
	if !limiter.Allow("k", time.Now()) {
		t.Fatal("nil limiter must allow everything")
	}
}
