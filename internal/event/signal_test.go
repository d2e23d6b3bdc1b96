// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignal_EmitInSubscriptionOrder(t *testing.T) {
	var s Signal[string]
	var got []string

	s.Subscribe(func(v string) { got = append(got, "a:"+v) })
	s.Subscribe(func(v string) { got = append(got, "b:"+v) })
	s.Subscribe(func(v string) { got = append(got, "c:"+v) })

	s.Emit("x")
	s.Emit("y")

	assert.Equal(t, []string{"a:x", "b:x", "c:x", "a:y", "b:y", "c:y"}, got)
}

func TestSignal_Unsubscribe(t *testing.T) {
	var s Signal[bool]
	calls := 0

	unsub := s.Subscribe(func(bool) { calls++ })
	require.Equal(t, 1, s.Len())

	s.Emit(true)
	unsub()
	unsub()
	s.Emit(true)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, s.Len())
}

func TestSignal_UnsubscribeMiddleKeepsOrder(t *testing.T) {
	var s Signal[int]
	var got []string

	s.Subscribe(func(int) { got = append(got, "first") })
	unsub := s.Subscribe(func(int) { got = append(got, "second") })
	s.Subscribe(func(int) { got = append(got, "third") })

	unsub()
	s.Emit(1)

	assert.Equal(t, []string{"first", "third"}, got)
}

func TestSignal_SubscribeDuringEmit(t *testing.T) {
	var s Signal[int]
	late := 0

	s.Subscribe(func(int) {
		s.Subscribe(func(int) { late++ })
	})

	s.Emit(1)
	assert.Equal(t, 0, late, "handler added during Emit must not run in the same Emit")

	s.Emit(2)
	assert.Equal(t, 1, late)
}

func TestSignal_NilHandlerIgnored(t *testing.T) {
	var s Signal[string]
	unsub := s.Subscribe(nil)
	unsub()
	assert.Equal(t, 0, s.Len())
	s.Emit("no panic")
}

func TestSignal_Reset(t *testing.T) {
	var s Signal[error]
	s.Subscribe(func(error) {})
	s.Subscribe(func(error) {})
	s.Reset()
	assert.Equal(t, 0, s.Len())
}
