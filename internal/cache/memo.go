// Copyright (C) 2026 ragserve contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cache

import (
	"context"

	"github.com/ragserve/ragserve/internal/apierr"
)

// Memo composes a Cache with a Breaker around a single compute
// function, giving callers a single GetOrCompute entrypoint: check the
// cache, fall through to compute on miss (tripping the breaker on
// repeated upstream failure), and populate the cache on success.
type Memo struct {
	cache   *Cache
	breaker *Breaker
}

// NewMemo builds a Memo over an existing Cache and Breaker. Both are
// also usable directly (e.g. for admin/metrics endpoints), which is
// why they're constructed independently rather than owned privately.
func NewMemo(c *Cache, b *Breaker) *Memo {
	return &Memo{cache: c, breaker: b}
}

// Encoder and Decoder let GetOrCompute store arbitrary Go values in a
// byte-oriented Cache without every caller hand-rolling serialization.
type Encoder[T any] func(T) ([]byte, error)
type Decoder[T any] func([]byte) (T, error)

// GetOrCompute returns the cached value for key if present, otherwise
// calls compute, caches its result, and returns it. If the breaker is
// open, compute is skipped entirely and apierr.UpstreamUnavailable is
// returned without a cache lookup side effect beyond the initial Get.
func GetOrCompute[T any](ctx context.Context, m *Memo, key string, enc Encoder[T], dec Decoder[T], compute func(context.Context) (T, error)) (T, error) {
	var zero T

	if raw, ok := m.cache.Get(key); ok {
		v, err := dec(raw)
		if err == nil {
			return v, nil
		}
		// A corrupt cached entry shouldn't wedge future calls; evict
		// it and fall through to recompute.
		m.cache.Invalidate(key)
	}

	if !m.breaker.Allow() {
		return zero, apierr.UpstreamUnavailable("upstream circuit open", nil)
	}

	v, err := compute(ctx)
	if err != nil {
		m.breaker.RecordFailure()
		return zero, err
	}
	m.breaker.RecordSuccess()

	if raw, encErr := enc(v); encErr == nil {
		m.cache.Put(key, raw, 0)
	}
	return v, nil
}
