// Copyright (C) 2026 ragserve contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import "sync"

// keyedLocks hands out one *sync.Mutex per session id, so two
// concurrent requests against the same session serialize while
// requests against different sessions never contend. Entries are
// refcounted and removed once the last holder releases, keeping the
// map bounded by concurrently-active sessions rather than growing
// without limit over the process lifetime.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*refcountedMutex
}

type refcountedMutex struct {
	mu  sync.Mutex
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*refcountedMutex)}
}

// Lock blocks until the named key is uncontended, then holds it.
// Unlock must be called exactly once per Lock to release it and allow
// the entry to be reclaimed.
func (k *keyedLocks) Lock(key string) {
	k.mu.Lock()
	rm, ok := k.locks[key]
	if !ok {
		rm = &refcountedMutex{}
		k.locks[key] = rm
	}
	rm.refs++
	k.mu.Unlock()

	rm.mu.Lock()
}

// Unlock releases the named key's lock acquired by a matching Lock.
func (k *keyedLocks) Unlock(key string) {
	k.mu.Lock()
	rm, ok := k.locks[key]
	if !ok {
		k.mu.Unlock()
		panic("session: Unlock called without a matching Lock for key " + key)
	}
	rm.refs--
	if rm.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()

	rm.mu.Unlock()
}
