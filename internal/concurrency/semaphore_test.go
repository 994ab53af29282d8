// Copyright (C) 2026 ragserve contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package concurrency

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSemaphore_TryAcquire_RespectsCapacity(t *testing.T) {
	sem := NewSemaphore(2)
	require.True(t, sem.TryAcquire())
	require.True(t, sem.TryAcquire())
	assert.False(t, sem.TryAcquire(), "a third acquire should fail at capacity 2")
	assert.Equal(t, 0, sem.Available())
}

func TestSemaphore_Release_FreesASlot(t *testing.T) {
	sem := NewSemaphore(1)
	require.True(t, sem.TryAcquire())
	sem.Release()
	assert.Equal(t, 1, sem.Available())
}

func TestSemaphore_Release_WithoutAcquire_Panics(t *testing.T) {
	sem := NewSemaphore(1)
	assert.Panics(t, sem.Release)
}

func TestSemaphore_Acquire_BlocksUntilContextCancelled(t *testing.T) {
	sem := NewSemaphore(1)
	require.True(t, sem.TryAcquire())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := sem.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSemaphore_NonPositiveCapacity_TreatedAsOne(t *testing.T) {
	sem := NewSemaphore(0)
	assert.Equal(t, 1, sem.Capacity())
}

func TestSemaphore_ConcurrentAcquireRelease_NeverExceedsCapacity(t *testing.T) {
	const capacity = 4
	sem := NewSemaphore(capacity)
	var wg sync.WaitGroup
	var mu sync.Mutex
	maxInFlight := 0
	inFlight := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, sem.Acquire(context.Background()))
			defer sem.Release()

			mu.Lock()
			inFlight++
			if inFlight > maxInFlight {
				maxInFlight = inFlight
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inFlight--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, maxInFlight, capacity)
	assert.Equal(t, capacity, sem.Available())
}

func TestMapOrdered_PreservesInputOrder(t *testing.T) {
	sem := NewSemaphore(3)
	items := []int{1, 2, 3, 4, 5}

	results, errs := MapOrdered(context.Background(), sem, items, func(ctx context.Context, item int) (int, error) {
		time.Sleep(time.Duration(5-item) * time.Millisecond)
		return item * 2, nil
	})

	for i := range errs {
		require.NoError(t, errs[i])
	}
	assert.Equal(t, []int{2, 4, 6, 8, 10}, results)
}

func TestMapOrdered_RecordsPerItemError(t *testing.T) {
	sem := NewSemaphore(2)
	items := []int{1, 2, 3}
	failing := errors.New("boom")

	_, errs := MapOrdered(context.Background(), sem, items, func(ctx context.Context, item int) (int, error) {
		if item == 2 {
			return 0, failing
		}
		return item, nil
	})

	assert.NoError(t, errs[0])
	assert.ErrorIs(t, errs[1], failing)
	assert.NoError(t, errs[2])
}
