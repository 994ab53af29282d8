// Copyright (C) 2026 ragserve contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package concurrency provides the bounded-concurrency primitives used
// by the Embedding Client: a counting semaphore with guaranteed release
// on every exit path, and a generic fan-out/fan-in helper that
// preserves input order.
package concurrency

import "context"

// Semaphore is a counting semaphore for bounded concurrency. Safe for
// concurrent use.
type Semaphore struct {
	ch chan struct{}
}

// NewSemaphore creates a semaphore with the given capacity. A
// non-positive capacity is treated as 1.
func NewSemaphore(capacity int) *Semaphore {
	if capacity <= 0 {
		capacity = 1
	}
	return &Semaphore{ch: make(chan struct{}, capacity)}
}

// Acquire blocks until a slot is available or ctx is done. On ctx
// cancellation, no slot is held and the caller must not call Release.
func (s *Semaphore) Acquire(ctx context.Context) error {
	select {
	case s.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire acquires a slot without blocking, reporting whether it
// succeeded.
func (s *Semaphore) TryAcquire() bool {
	select {
	case s.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release returns a slot. Must be called exactly once per successful
// Acquire/TryAcquire, typically via defer so it runs on every exit
// path including panics and early returns.
func (s *Semaphore) Release() {
	select {
	case <-s.ch:
	default:
		panic("concurrency: semaphore released without a matching acquire")
	}
}

// Available reports the number of free slots. Used by tests asserting
// the semaphore round-trip invariant: after any sequence of calls,
// Available() equals the capacity passed to NewSemaphore.
func (s *Semaphore) Available() int {
	return cap(s.ch) - len(s.ch)
}

// Capacity returns the semaphore's total capacity.
func (s *Semaphore) Capacity() int {
	return cap(s.ch)
}

// MapOrdered runs mapper over items with at most sem's capacity
// in-flight at once, and returns results in input order regardless of
// completion order. A mapper error for item i is recorded in errs[i];
// MapOrdered itself never returns early, so downstream code can still
// consume the ordered, partially-failed result set (the Embedding
// Client's batch-reassembly contract).
func MapOrdered[T any, R any](
	ctx context.Context,
	sem *Semaphore,
	items []T,
	mapper func(ctx context.Context, item T) (R, error),
) (results []R, errs []error) {
	results = make([]R, len(items))
	errs = make([]error, len(items))

	done := make(chan struct{}, len(items))
	for i, item := range items {
		i, item := i, item
		go func() {
			defer func() { done <- struct{}{} }()

			if err := sem.Acquire(ctx); err != nil {
				errs[i] = err
				return
			}
			defer sem.Release()

			r, err := mapper(ctx, item)
			results[i] = r
			errs[i] = err
		}()
	}
	for range items {
		<-done
	}
	return results, errs
}
