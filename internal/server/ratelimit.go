// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

package server

import (
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	nyayaerr "github.com/nyaya-dev/nyaya/pkg/errors"
)

const (
	staleVisitorAge = 10 * time.Minute
	cleanupInterval = 5 * time.Minute
)

// RateLimitConfig configures per-IP rate limiting of the /api routes.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained request rate per IP. Zero disables limiting.
	RequestsPerSecond float64
	Burst             int
	// MaxVisitors caps the number of tracked IPs. Default: 10000.
	MaxVisitors int
}

// Validate checks that the RateLimitConfig is valid and applies defaults.
func (c *RateLimitConfig) Validate() error {
	if c.RequestsPerSecond < 0 {
		return nyayaerr.Errorf(nyayaerr.CodeServerConfigInvalid,
			"rate limit requests per second must not be negative (got %g)", c.RequestsPerSecond)
	}
	if c.RequestsPerSecond > 0 && c.Burst <= 0 {
		return nyayaerr.Errorf(nyayaerr.CodeServerConfigInvalid,
			"rate limit burst must be positive when rate is set (got burst=%d, rate=%g)",
			c.Burst, c.RequestsPerSecond)
	}
	if c.MaxVisitors < 0 {
		return nyayaerr.Errorf(nyayaerr.CodeServerConfigInvalid,
			"rate limit max visitors must not be negative (got %d)", c.MaxVisitors)
	}
	if c.MaxVisitors == 0 {
		c.MaxVisitors = 10000
	}
	return nil
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type visitors struct {
	mu  sync.Mutex
	cfg RateLimitConfig
	m   map[string]*visitor
}

func (v *visitors) allow(ip string, now time.Time) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	e, ok := v.m[ip]
	if !ok {
		e = &visitor{limiter: rate.NewLimiter(rate.Limit(v.cfg.RequestsPerSecond), v.cfg.Burst)}
		v.m[ip] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// sweep drops stale visitors, then the oldest ones above MaxVisitors.
func (v *visitors) sweep(now time.Time) (evicted int) {
	v.mu.Lock()
	defer v.mu.Unlock()

	type entry struct {
		ip       string
		lastSeen time.Time
	}
	entries := make([]entry, 0, len(v.m))
	for ip, e := range v.m {
		if now.Sub(e.lastSeen) > staleVisitorAge {
			delete(v.m, ip)
			continue
		}
		entries = append(entries, entry{ip: ip, lastSeen: e.lastSeen})
	}

	if v.cfg.MaxVisitors <= 0 || len(entries) <= v.cfg.MaxVisitors {
		return 0
	}
	slices.SortFunc(entries, func(a, b entry) int { return a.lastSeen.Compare(b.lastSeen) })
	evicted = len(entries) - v.cfg.MaxVisitors
	for _, e := range entries[:evicted] {
		delete(v.m, e.ip)
	}
	return evicted
}

// rateLimitMiddleware enforces per-IP limits on /api paths. It passes
// everything through when cfg.RequestsPerSecond is zero. Closing done stops
// the cleanup goroutine.
func rateLimitMiddleware(cfg RateLimitConfig, logger *slog.Logger, done <-chan struct{}) func(http.Handler) http.Handler {
	if cfg.RequestsPerSecond <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	v := &visitors{cfg: cfg, m: make(map[string]*visitor)}

	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				if n := v.sweep(now); n > 0 {
					logger.Warn("rate limiter visitor cap enforced", "evicted", n, "max_visitors", cfg.MaxVisitors)
				}
			case <-done:
				return
			}
		}
	}()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, "/api/") {
				next.ServeHTTP(w, r)
				return
			}

			// Limit by IP, not by connection.
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}

			if !v.allow(ip, time.Now()) {
				logger.Warn("rate limit exceeded", "ip", ip, "path", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				if _, err := w.Write([]byte(`{"error":"rate limit exceeded"}`)); err != nil {
					logger.Warn("failed to write rate limit response", "error", err)
				}
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
