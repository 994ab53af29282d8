// Copyright (C) 2026 ragserve contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreaker_StaysClosedBelowThreshold(t *testing.T) {
	b := NewBreaker(BreakerConfig{Threshold: 3, Cooldown: time.Minute})
	b.RecordFailure()
	b.RecordFailure()
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.Allow())
}

func TestBreaker_TripsOpenAtThreshold(t *testing.T) {
	b := NewBreaker(BreakerConfig{Threshold: 3, Cooldown: time.Minute})
	b.RecordFailure()
	b.RecordFailure()
	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
	assert.False(t, b.Allow())
}

func TestBreaker_HalfOpenAfterCooldownThenCloses(t *testing.T) {
	b := NewBreaker(BreakerConfig{Threshold: 1, Cooldown: 10 * time.Millisecond})
	frozen := time.Now()
	b.now = func() time.Time { return frozen }

	b.RecordFailure()
	require.Equal(t, StateOpen, b.State())
	assert.False(t, b.Allow())

	b.now = func() time.Time { return frozen.Add(20 * time.Millisecond) }
	assert.True(t, b.Allow()) // single half-open trial granted
	assert.False(t, b.Allow()) // second concurrent caller rejected until trial resolves

	b.RecordSuccess()
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.Allow())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker(BreakerConfig{Threshold: 1, Cooldown: 10 * time.Millisecond})
	frozen := time.Now()
	b.now = func() time.Time { return frozen }
	b.RecordFailure()

	b.now = func() time.Time { return frozen.Add(20 * time.Millisecond) }
	require.True(t, b.Allow())
	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
}
