package server

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const loginLimiterCapacity = 4096

// loginRateLimiter blocks a client+username key after maxFailures failed
// logins inside window. State lives in a bounded LRU whose TTL drops keys
// that have gone quiet, so a flood of distinct usernames cannot grow it.
type loginRateLimiter struct {
	mu          sync.Mutex
	attempts    *expirable.LRU[string, loginAttempts]
	maxFailures int
	window      time.Duration
	blockedFor  time.Duration
}

type loginAttempts struct {
	failures     int
	windowStart  time.Time
	blockedUntil time.Time
}

func newLoginRateLimiter(maxFailures int, window, blockedFor time.Duration) *loginRateLimiter {
	if maxFailures <= 0 || window <= 0 || blockedFor <= 0 {
		return nil
	}
	ttl := 2 * max(window, blockedFor)
	return &loginRateLimiter{
		attempts:    expirable.NewLRU[string, loginAttempts](loginLimiterCapacity, nil, ttl),
		maxFailures: maxFailures,
		window:      window,
		blockedFor:  blockedFor,
	}
}

// Allow reports whether key may attempt a login at now.
func (l *loginRateLimiter) Allow(key string, now time.Time) bool {
	if l == nil || key == "" {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	state, ok := l.attempts.Get(key)
	if !ok {
		return true
	}
	return state.blockedUntil.IsZero() || !now.Before(state.blockedUntil)
}

// RegisterFailure counts one failed login; reaching maxFailures inside the
// window starts a block and clears the counter.
func (l *loginRateLimiter) RegisterFailure(key string, now time.Time) {
	if l == nil || key == "" {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	state, _ := l.attempts.Get(key)
	if !state.blockedUntil.IsZero() && !now.Before(state.blockedUntil) {
		state.blockedUntil = time.Time{}
	}
	if state.windowStart.IsZero() || now.Sub(state.windowStart) > l.window {
		state.failures = 0
		state.windowStart = now
	}
	state.failures++
	if state.failures >= l.maxFailures {
		state.blockedUntil = now.Add(l.blockedFor)
		state.failures = 0
		state.windowStart = time.Time{}
	}
	l.attempts.Add(key, state)
}

// Reset forgets key after a successful login.
func (l *loginRateLimiter) Reset(key string) {
	if l == nil || key == "" {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts.Remove(key)
}
