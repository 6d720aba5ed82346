// Package ratelimit guards the event router and the HTTP API with
// per-remote-address token buckets kept in a mutex-guarded map of
// visitors, adapted from the teacher's handler.RateLimiter and extended
// with the cooldown-on-overflow and localhost-bypass behavior spec'd for
// the event router (§4.5 step 1).
package ratelimit

import (
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type visitor struct {
	limiter     *rate.Limiter
	lastSeen    time.Time
	cooldownUntil time.Time
}

// Limiter tracks per-address token buckets plus a cooldown window applied
// once a bucket is exhausted.
type Limiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor

	r     rate.Limit
	burst int

	cooldown time.Duration

	bypassLocalhost bool

	done chan struct{}
}

// Option configures a Limiter at construction time.
type Option func(*Limiter)

// WithCooldown sets the lockout period applied after a bucket is exhausted.
func WithCooldown(d time.Duration) Option {
	return func(l *Limiter) { l.cooldown = d }
}

// WithoutLocalhostBypass disables the default localhost exemption, so
// loopback addresses are limited like any other address.
func WithoutLocalhostBypass() Option {
	return func(l *Limiter) { l.bypassLocalhost = false }
}

// New returns a Limiter allowing r events/sec with the given burst,
// localhost-exempt by default. It starts a background goroutine that
// evicts stale visitor entries every 10 minutes.
func New(r rate.Limit, burst int, opts ...Option) *Limiter {
	l := &Limiter{
		visitors:        make(map[string]*visitor),
		r:               r,
		burst:           burst,
		bypassLocalhost: true,
		done:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	go l.cleanup()
	return l
}

// EventRouterLimiter reproduces spec §4.5 step 1 exactly: 100 events per
// 10 s, 5 s cooldown on overflow, localhost bypass.
func EventRouterLimiter() *Limiter {
	return New(rate.Every(10*time.Second/100), 100, WithCooldown(5*time.Second))
}

// PerMinute returns the token rate for n events allowed per 1-minute
// window, for the §6.3 per-endpoint HTTP limiters.
func PerMinute(n int) rate.Limit {
	return rate.Every(time.Minute / time.Duration(n))
}

func (l *Limiter) cleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.mu.Lock()
			for addr, v := range l.visitors {
				if time.Since(v.lastSeen) > 10*time.Minute {
					delete(l.visitors, addr)
				}
			}
			l.mu.Unlock()
		case <-l.done:
			return
		}
	}
}

// Stop terminates the background cleanup goroutine.
func (l *Limiter) Stop() {
	close(l.done)
}

func isLocalhost(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return host == "localhost"
	}
	return ip.IsLoopback()
}

// Allow reports whether an event from addr may proceed right now. While in
// cooldown it always returns false without consuming a token.
func (l *Limiter) Allow(addr string) bool {
	if l.bypassLocalhost && isLocalhost(addr) {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.visitors[addr]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.r, l.burst)}
		l.visitors[addr] = v
	}
	v.lastSeen = time.Now()

	if !v.cooldownUntil.IsZero() && time.Now().Before(v.cooldownUntil) {
		return false
	}

	if !v.limiter.Allow() {
		if l.cooldown > 0 {
			v.cooldownUntil = time.Now().Add(l.cooldown)
		}
		return false
	}
	return true
}

// RetryAfter reports how long addr should wait before retrying, for
// populating rate-limit-error{retryAfter}.
func (l *Limiter) RetryAfter(addr string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.visitors[addr]
	if !ok {
		return 0
	}
	if remaining := time.Until(v.cooldownUntil); remaining > 0 {
		return remaining
	}
	return l.cooldown
}
