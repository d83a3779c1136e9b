// Package ratelimit provides per-key token-bucket rate limiting for the
// authentication and API surfaces (login/twoFA/api, each with its own
// quota).
package ratelimit

import (
    "sync"

    "golang.org/x/time/rate"
)

// keyedLimiter holds one token bucket per key, created lazily on first use.
type keyedLimiter struct {
    mu       sync.Mutex
    limiters map[string]*rate.Limiter
    r        rate.Limit
    burst    int
}

func newKeyedLimiter(perMinute int) *keyedLimiter {
    return &keyedLimiter{
        limiters: make(map[string]*rate.Limiter),
        r:        rate.Limit(float64(perMinute) / 60),
        burst:    perMinute,
    }
}

func (k *keyedLimiter) allow(key string) bool {
    k.mu.Lock()
    l, ok := k.limiters[key]
    if !ok {
        l = rate.NewLimiter(k.r, k.burst)
        k.limiters[key] = l
    }
    k.mu.Unlock()
    return l.Allow()
}

// Limiters bundles the three named rate limiters used across the server.
// Keys are meant to be client IP addresses; the transport does not extract
// them yet, so callers currently share one key.
type Limiters struct {
    login *keyedLimiter
    twoFA *keyedLimiter
    api   *keyedLimiter
}

func New() *Limiters {
    return &Limiters{
        login: newKeyedLimiter(20),
        twoFA: newKeyedLimiter(30),
        api:   newKeyedLimiter(60),
    }
}

// AllowLogin reports whether a login attempt from key is within quota.
func (l *Limiters) AllowLogin(key string) bool { return l.login.allow(key) }

// AllowTwoFA reports whether a 2FA attempt from key is within quota.
func (l *Limiters) AllowTwoFA(key string) bool { return l.twoFA.allow(key) }

// AllowAPI reports whether an API request from key is within quota.
func (l *Limiters) AllowAPI(key string) bool { return l.api.allow(key) }
