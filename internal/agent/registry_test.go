// Copyright (C) 2026 ragserve contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTool struct{ name string }

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return "stub" }
func (s *stubTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{"type": "object"}
}
func (s *stubTool) Invoke(ctx context.Context, args map[string]interface{}) (Outcome, error) {
	return Outcome{}, nil
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{name: "vector_search"})

	tool, ok := r.Get("vector_search")
	require.True(t, ok)
	assert.Equal(t, "vector_search", tool.Name())

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegistry_Register_ReplacesExisting(t *testing.T) {
	r := NewRegistry()
	first := &stubTool{name: "vector_search"}
	second := &stubTool{name: "vector_search"}
	r.Register(first)
	r.Register(second)

	tool, ok := r.Get("vector_search")
	require.True(t, ok)
	assert.Same(t, second, tool)
}

func TestRegistry_Definitions_SortedByName(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{name: "zeta"})
	r.Register(&stubTool{name: "alpha"})
	r.Register(&stubTool{name: "mid"})

	defs := r.Definitions()
	require.Len(t, defs, 3)
	assert.Equal(t, "alpha", defs[0].Name)
	assert.Equal(t, "mid", defs[1].Name)
	assert.Equal(t, "zeta", defs[2].Name)
}

func TestRegistry_Definitions_EmptyRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Empty(t, r.Definitions())
}
