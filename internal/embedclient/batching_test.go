// Copyright (C) 2026 ragserve contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package embedclient

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDynamicBatchSize(t *testing.T) {
	cases := []struct {
		name          string
		base          int
		texts         []string
		nearRateLimit bool
		want          int
	}{
		{"short texts double base", 100, []string{"hi", "there"}, false, 200},
		{"medium texts use base", 100, []string{strings.Repeat("a", 1000)}, false, 100},
		{"long texts halve base", 100, []string{strings.Repeat("a", 3000)}, false, 50},
		{"near rate limit halves again", 100, []string{strings.Repeat("a", 1000)}, true, 50},
		{"floors at MinBatch", 10, []string{strings.Repeat("a", 3000)}, true, MinBatch},
		{"ceilings at MaxBatch", 1000, []string{"a"}, false, MaxBatch},
		{"empty texts uses base", 100, nil, false, 100},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := dynamicBatchSize(tc.base, tc.texts, tc.nearRateLimit)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestPartition_PreservesOrderAndSize(t *testing.T) {
	texts := []string{"a", "b", "c", "d", "e"}
	batches := partition(texts, 2)
	require.Len(t, batches, 3)
	assert.Equal(t, []string{"a", "b"}, batches[0])
	assert.Equal(t, []string{"c", "d"}, batches[1])
	assert.Equal(t, []string{"e"}, batches[2])
}

func TestPartition_SingleBatchWhenFits(t *testing.T) {
	texts := []string{"a", "b"}
	batches := partition(texts, 10)
	require.Len(t, batches, 1)
	assert.Equal(t, texts, batches[0])
}

func TestTruncate(t *testing.T) {
	short := "hello"
	out, truncated := truncate(short, 100)
	assert.Equal(t, short, out)
	assert.False(t, truncated)

	long := strings.Repeat("x", 50)
	out, truncated = truncate(long, 10)
	assert.Len(t, out, 10)
	assert.True(t, truncated)

	// Exactly at the boundary is not truncated.
	exact := strings.Repeat("y", 10)
	out, truncated = truncate(exact, 10)
	assert.Equal(t, exact, out)
	assert.False(t, truncated)
}
