// Copyright (C) 2026 ragserve contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyedLocks_SerializesSameKey(t *testing.T) {
	k := newKeyedLocks()
	var active int32
	var maxActive int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			k.Lock("session-1")
			defer k.Unlock("session-1")

			n := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxActive)
				if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&active, -1)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxActive, "only one goroutine should hold session-1's lock at a time")
}

func TestKeyedLocks_DifferentKeysDoNotContend(t *testing.T) {
	k := newKeyedLocks()
	var wg sync.WaitGroup
	done := make(chan struct{})

	k.Lock("session-a")
	wg.Add(1)
	go func() {
		defer wg.Done()
		k.Lock("session-b")
		k.Unlock("session-b")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("locking a different key blocked on an unrelated held key")
	}
	k.Unlock("session-a")
	wg.Wait()
}

func TestKeyedLocks_MapIsReclaimedAfterUnlock(t *testing.T) {
	k := newKeyedLocks()
	k.Lock("x")
	k.Unlock("x")

	k.mu.Lock()
	n := len(k.locks)
	k.mu.Unlock()
	assert.Zero(t, n, "entry should be removed once its last holder unlocks")
}
