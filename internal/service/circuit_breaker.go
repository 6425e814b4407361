package service

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// circuitEntry tracks consecutive failures against one store instance.
type circuitEntry struct {
	consecutiveFailures int
	openedAt            time.Time
	open                bool
}

// CircuitBreaker gates statement-store calls per instance. The circuit
// opens once consecutive failures reach the threshold and stays open for
// the cooldown window; the first call after the window acts as a half-open
// probe. A success in any state closes the circuit and resets the counter.
type CircuitBreaker struct {
	mu        sync.Mutex
	entries   map[string]*circuitEntry
	threshold int
	cooldown  time.Duration
	clock     clockwork.Clock

	// OnStateChange is invoked outside the lock whenever an instance's
	// circuit opens or closes. Used to flip the circuit-state gauge.
	OnStateChange func(instanceID string, open bool)
}

// NewCircuitBreaker constructs a breaker with the given threshold and
// cooldown. Non-positive values fall back to 5 failures / 30s.
func NewCircuitBreaker(threshold int, cooldown time.Duration, clock clockwork.Clock) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &CircuitBreaker{
		entries:   make(map[string]*circuitEntry),
		threshold: threshold,
		cooldown:  cooldown,
		clock:     clock,
	}
}

// Allow reports whether a call against the instance may proceed. While the
// circuit is open and within cooldown it returns false (fail fast); once
// the cooldown elapses it allows a single half-open attempt.
func (b *CircuitBreaker) Allow(instanceID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.entries[instanceID]
	if !ok || !entry.open {
		return true
	}
	return b.clock.Since(entry.openedAt) >= b.cooldown
}

// RecordFailure increments the instance's consecutive-failure counter,
// opening the circuit at the threshold. A failed half-open probe restarts
// the cooldown window.
func (b *CircuitBreaker) RecordFailure(instanceID string) {
	b.mu.Lock()
	entry, ok := b.entries[instanceID]
	if !ok {
		entry = &circuitEntry{}
		b.entries[instanceID] = entry
	}
	entry.consecutiveFailures++

	opened := false
	if entry.consecutiveFailures >= b.threshold {
		opened = !entry.open || b.clock.Since(entry.openedAt) >= b.cooldown
		entry.open = true
		entry.openedAt = b.clock.Now()
	}
	notify := b.OnStateChange
	b.mu.Unlock()

	if opened && notify != nil {
		notify(instanceID, true)
	}
}

// RecordSuccess closes the circuit and resets the failure counter.
func (b *CircuitBreaker) RecordSuccess(instanceID string) {
	b.mu.Lock()
	entry, ok := b.entries[instanceID]
	wasOpen := ok && entry.open
	if ok {
		entry.consecutiveFailures = 0
		entry.open = false
		entry.openedAt = time.Time{}
	}
	notify := b.OnStateChange
	b.mu.Unlock()

	if wasOpen && notify != nil {
		notify(instanceID, false)
	}
}

// Failures returns the current consecutive-failure count for an instance.
func (b *CircuitBreaker) Failures(instanceID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if entry, ok := b.entries[instanceID]; ok {
		return entry.consecutiveFailures
	}
	return 0
}
