// Copyright (C) 2026 ragserve contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package cache implements the Cache Layer: an in-memory, LRU-ordered,
// byte-budgeted, TTL-expiring map from fingerprint to value, plus a
// circuit breaker for the computation it memoizes (see breaker.go and
// memo.go).
//
// A hand-rolled container/list-backed LRU was chosen over an
// admission-based cache library (ristretto, the closest candidate
// available in this module's dependency tree via badger) because
// several of this package's invariants — the byte budget is never
// exceeded immediately after any Put, and a Get hit synchronously
// reorders the entry to most-recently-used — require synchronous
// eviction. Admission-based caches apply cost accounting and eviction
// through an asynchronous ring buffer, so the budget can transiently
// be exceeded between a Put and the next buffer drain; that is
// incompatible with the deterministic invariants this package is
// tested against.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Entry is the value shape stored per key, including LRU/TTL
// accounting. Callers of Get/Put only see Value; the rest is the
// cache's own bookkeeping.
type Entry struct {
	Key        string
	Value      []byte
	SizeBytes  int
	CreatedAt  time.Time
	ExpiresAt  time.Time
	LastAccess time.Time
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	BytesUsed int64
	Entries   int
}

type node struct {
	entry Entry
}

// Cache is an LRU, byte-budgeted, TTL-expiring map. Safe for
// concurrent use: a single mutex guards the LRU list and byte
// accounting; hashing and serialization happen outside the critical
// section in the caller (Put takes already-serialized bytes).
type Cache struct {
	mu         sync.Mutex
	maxBytes   int64
	defaultTTL time.Duration
	bytesUsed  int64

	ll    *list.List               // most-recently-used at the front
	items map[string]*list.Element // key -> element holding *node

	hits, misses, evictions int64

	now func() time.Time

	closeOnce sync.Once
	stopSweep chan struct{}
}

// Config configures a Cache.
type Config struct {
	// MaxBytes is the total byte budget B. Entries are evicted LRU
	// first once a Put would exceed it.
	MaxBytes int64
	// DefaultTTL is used when Put is called without an explicit TTL.
	DefaultTTL time.Duration
	// SweepInterval runs a background goroutine that proactively
	// evicts expired entries so memory isn't held by dead entries
	// between accesses. Zero disables the sweeper (expiry is still
	// enforced lazily on Get).
	SweepInterval time.Duration
}

// New constructs a Cache per Config.
func New(cfg Config) *Cache {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 100 << 20
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = time.Hour
	}
	c := &Cache{
		maxBytes:   cfg.MaxBytes,
		defaultTTL: cfg.DefaultTTL,
		ll:         list.New(),
		items:      make(map[string]*list.Element),
		now:        time.Now,
		stopSweep:  make(chan struct{}),
	}
	if cfg.SweepInterval > 0 {
		go c.sweepLoop(cfg.SweepInterval)
	}
	return c
}

func (c *Cache) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweepExpired()
		case <-c.stopSweep:
			return
		}
	}
}

func (c *Cache) sweepExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for key, el := range c.items {
		n := el.Value.(*node)
		if now.After(n.entry.ExpiresAt) {
			c.removeElement(el)
			c.evictions++
			_ = key
		}
	}
}

// Close stops the background sweeper, if any. Safe to call
// concurrently with in-flight Get/Put calls and idempotent.
func (c *Cache) Close() error {
	c.closeOnce.Do(func() { close(c.stopSweep) })
	return nil
}

// Get returns the value for key and true if present and unexpired. A
// hit moves the entry to most-recently-used. An expired entry is
// evicted and reported as a miss.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}
	n := el.Value.(*node)
	if c.now().After(n.entry.ExpiresAt) {
		c.removeElement(el)
		c.evictions++
		c.misses++
		return nil, false
	}

	n.entry.LastAccess = c.now()
	c.ll.MoveToFront(el)
	c.hits++
	return n.entry.Value, true
}

// Put inserts or replaces key with value, with the given ttl (or the
// configured default when ttl <= 0). If bytesUsed + len(value) would
// exceed the byte budget, least-recently-used entries are evicted
// until it fits. A single value larger than the whole budget is
// rejected.
func (c *Cache) Put(key string, value []byte, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	size := int64(len(value))
	if size > c.maxBytes {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.removeElement(el)
	}

	for c.bytesUsed+size > c.maxBytes && c.ll.Len() > 0 {
		back := c.ll.Back()
		c.removeElement(back)
		c.evictions++
	}

	now := c.now()
	entry := Entry{
		Key:        key,
		Value:      value,
		SizeBytes:  len(value),
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
		LastAccess: now,
	}
	el := c.ll.PushFront(&node{entry: entry})
	c.items[key] = el
	c.bytesUsed += size
	return true
}

// Invalidate removes key if present.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.removeElement(el)
	}
}

// Clear removes every entry, resetting byte accounting. Counters
// (hits/misses/evictions) are preserved; they describe lifetime
// activity, not current occupancy.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.items = make(map[string]*list.Element)
	c.bytesUsed = 0
}

// Stats returns a snapshot of cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		BytesUsed: c.bytesUsed,
		Entries:   c.ll.Len(),
	}
}

// removeElement detaches el from the list and map and decrements
// byte accounting. Caller holds c.mu.
func (c *Cache) removeElement(el *list.Element) {
	n := el.Value.(*node)
	c.ll.Remove(el)
	delete(c.items, n.entry.Key)
	c.bytesUsed -= int64(n.entry.SizeBytes)
}
