// Copyright (C) 2026 ragserve contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cache

import (
	"sync"
	"time"
)

// BreakerState is one of the three circuit breaker states.
type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half_open"
)

// Breaker is a simple failure-threshold circuit breaker: once
// consecutive failures reach Threshold, it opens and rejects calls for
// Cooldown; after Cooldown it allows a single half-open trial call,
// closing again on success or reopening on failure.
type Breaker struct {
	mu sync.Mutex

	threshold int
	cooldown  time.Duration

	state       BreakerState
	failures    int
	openedAt    time.Time
	halfOpenUse bool

	now func() time.Time
}

// BreakerConfig configures a Breaker.
type BreakerConfig struct {
	// Threshold is the number of consecutive failures that trips the
	// breaker open.
	Threshold int
	// Cooldown is how long the breaker stays open before allowing a
	// half-open trial.
	Cooldown time.Duration
}

// NewBreaker constructs a Breaker in the closed state.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &Breaker{
		threshold: cfg.Threshold,
		cooldown:  cfg.Cooldown,
		state:     StateClosed,
		now:       time.Now,
	}
}

// Allow reports whether a call should proceed. When the breaker is
// open and the cooldown has elapsed, it transitions to half-open and
// allows exactly one trial call through; further calls are rejected
// until that trial resolves via RecordSuccess/RecordFailure.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return false
		}
		b.state = StateHalfOpen
		b.halfOpenUse = true
		return true
	case StateHalfOpen:
		if b.halfOpenUse {
			return false
		}
		b.halfOpenUse = true
		return true
	default:
		return true
	}
}

// RecordSuccess resets the failure count and closes the breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.state = StateClosed
	b.halfOpenUse = false
}

// RecordFailure increments the failure count, tripping the breaker
// open once the threshold is reached. A failure during a half-open
// trial reopens immediately regardless of the threshold.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.open()
		return
	}
	b.failures++
	if b.failures >= b.threshold {
		b.open()
	}
}

func (b *Breaker) open() {
	b.state = StateOpen
	b.openedAt = b.now()
	b.halfOpenUse = false
	b.failures = 0
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
