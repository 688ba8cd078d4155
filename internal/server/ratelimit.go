// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

package server

import (
	"log/slog"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"golang.org/x/time/rate"

	vwerr "github.com/visuworld/visuworld/pkg/errors"
)

const (
	visitorCleanupInterval = 5 * time.Minute
	visitorStaleAfter      = 10 * time.Minute
	defaultMaxVisitors     = 10000
)

// RateLimitConfig configures per-IP rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained request rate per IP. Zero disables limiting.
	RequestsPerSecond float64
	// Burst is the maximum burst size per IP.
	Burst int
	// MaxVisitors caps the number of IPs tracked at once; the least recently
	// seen are evicted first. Zero uses 10000.
	MaxVisitors int
}

// Validate checks the config and applies defaults.
func (c *RateLimitConfig) Validate() error {
	if c.RequestsPerSecond < 0 {
		return vwerr.Errorf(vwerr.CodeServerConfigInvalid,
			"rate limit requests per second must not be negative (got %g)", c.RequestsPerSecond)
	}
	if c.RequestsPerSecond > 0 && c.Burst <= 0 {
		return vwerr.Errorf(vwerr.CodeServerConfigInvalid,
			"rate limit burst must be positive when rate is set (got burst=%d, rate=%g)",
			c.Burst, c.RequestsPerSecond)
	}
	if c.MaxVisitors < 0 {
		return vwerr.Errorf(vwerr.CodeServerConfigInvalid,
			"rate limit max visitors must not be negative (got %d)", c.MaxVisitors)
	}
	if c.MaxVisitors == 0 {
		c.MaxVisitors = defaultMaxVisitors
	}
	return nil
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// visitors holds one token bucket per client IP.
type visitors struct {
	mu      sync.Mutex
	cfg     RateLimitConfig
	entries map[string]*visitor
	now     func() time.Time
}

func newVisitors(cfg RateLimitConfig) *visitors {
	return &visitors{cfg: cfg, entries: make(map[string]*visitor), now: time.Now}
}

func (v *visitors) allow(ip string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	e, ok := v.entries[ip]
	if !ok {
		e = &visitor{limiter: rate.NewLimiter(rate.Limit(v.cfg.RequestsPerSecond), v.cfg.Burst)}
		v.entries[ip] = e
	}
	e.lastSeen = v.now()
	return e.limiter.Allow()
}

// cleanup drops stale visitors and enforces the MaxVisitors cap.
func (v *visitors) cleanup() {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.now()
	type entry struct {
		ip       string
		lastSeen time.Time
	}
	live := make([]entry, 0, len(v.entries))
	for ip, e := range v.entries {
		if now.Sub(e.lastSeen) > visitorStaleAfter {
			delete(v.entries, ip)
			continue
		}
		live = append(live, entry{ip: ip, lastSeen: e.lastSeen})
	}

	if v.cfg.MaxVisitors > 0 && len(live) > v.cfg.MaxVisitors {
		slices.SortFunc(live, func(a, b entry) int { return a.lastSeen.Compare(b.lastSeen) })
		evict := len(live) - v.cfg.MaxVisitors
		for _, e := range live[:evict] {
			delete(v.entries, e.ip)
		}
		slog.Warn("rate limiter visitor map cap enforced",
			"evicted", evict, "max_visitors", v.cfg.MaxVisitors, "remaining", len(v.entries))
	}
}

func (v *visitors) cleanupLoop(done <-chan struct{}) {
	ticker := time.NewTicker(visitorCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			v.cleanup()
		case <-done:
			return
		}
	}
}

// rateLimitMiddleware enforces per-IP limits. A zero rate passes everything
// through. done stops the cleanup goroutine.
func rateLimitMiddleware(cfg RateLimitConfig, done <-chan struct{}) func(http.Handler) http.Handler {
	if cfg.RequestsPerSecond <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	v := newVisitors(cfg)
	go v.cleanupLoop(done)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Limit by IP, not by connection.
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}

			if !v.allow(ip) {
				slog.Warn("rate limit exceeded", "ip", ip, "path", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				if _, err := w.Write([]byte(`{"error":"rate limit exceeded"}`)); err != nil {
					slog.Warn("failed to write rate limit response", "error", err)
				}
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
