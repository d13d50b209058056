// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

package provider

import (
	"sync"
	"time"

	nyayaerr "github.com/nyaya-dev/nyaya/pkg/errors"
)

// DefaultHealthCooldown is how long a failed provider stays unavailable.
const DefaultHealthCooldown = 30 * time.Second

// HealthSnapshot is a serializable view of a HealthTracker.
type HealthSnapshot struct {
	FailureCount  int64      `json:"failure_count"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`
	CooldownUntil *time.Time `json:"cooldown_until,omitempty"`
	Available     bool       `json:"available"`
}

// HealthTracker marks a provider unavailable for a cooldown after each
// failure. It starts healthy.
type HealthTracker struct {
	mu       sync.RWMutex
	healthy  bool
	failedAt time.Time
	cooldown time.Duration
	failures int64
	now      func() time.Time
}

func NewHealthTracker(cooldown time.Duration) (*HealthTracker, error) {
	if cooldown <= 0 {
		return nil, nyayaerr.Errorf(nyayaerr.CodeConfigValidateInvalidValue,
			"health cooldown must be positive, got %s", cooldown)
	}
	return &HealthTracker{healthy: true, cooldown: cooldown, now: time.Now}, nil
}

// caller holds h.mu
func (h *HealthTracker) available() bool {
	return h.healthy || h.now().Sub(h.failedAt) >= h.cooldown
}

func (h *HealthTracker) IsHealthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.available()
}

func (h *HealthTracker) RecordSuccess() {
	h.mu.Lock()
	h.healthy = true
	h.mu.Unlock()
}

func (h *HealthTracker) RecordFailure() {
	h.mu.Lock()
	h.healthy = false
	h.failedAt = h.now()
	h.failures++
	h.mu.Unlock()
}

// SetNowFunc replaces the clock.
func (h *HealthTracker) SetNowFunc(fn func() time.Time) {
	h.mu.Lock()
	h.now = fn
	h.mu.Unlock()
}

func (h *HealthTracker) Snapshot() HealthSnapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s := HealthSnapshot{FailureCount: h.failures, Available: h.available()}
	if h.failures > 0 {
		t := h.failedAt
		s.LastFailureAt = &t
	}
	if !h.healthy {
		until := h.failedAt.Add(h.cooldown)
		s.CooldownUntil = &until
	}
	return s
}

// Status builds a ProviderStatus for the named provider.
func (h *HealthTracker) Status(name string) ProviderStatus {
	snap := h.Snapshot()
	msg := "ok"
	if !snap.Available {
		msg = "cooling down after failure"
	}
	return ProviderStatus{Available: snap.Available, Provider: name, Message: msg, Health: &snap}
}
