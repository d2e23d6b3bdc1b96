// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package event

import "sync"

// Signal is a list of handlers for one payload type. The zero value is ready
// to use. Handlers run synchronously on the emitting goroutine, in the order
// they subscribed.
type Signal[T any] struct {
	mu       sync.Mutex
	nextID   uint64
	handlers []handler[T]
}

type handler[T any] struct {
	id uint64
	fn func(T)
}

// Subscribe registers fn and returns a function that removes it again.
// Calling the returned function more than once is harmless.
func (s *Signal[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.handlers = append(s.handlers, handler[T]{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { s.remove(id) })
	}
}

func (s *Signal[T]) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, h := range s.handlers {
		if h.id == id {
			s.handlers = append(s.handlers[:i:i], s.handlers[i+1:]...)
			return
		}
	}
}

// Emit calls every handler with v. The handler list is copied first, so a
// handler may subscribe or unsubscribe without deadlocking; such changes
// take effect on the next Emit.
func (s *Signal[T]) Emit(v T) {
	s.mu.Lock()
	hs := make([]handler[T], len(s.handlers))
	copy(hs, s.handlers)
	s.mu.Unlock()

	for _, h := range hs {
		h.fn(v)
	}
}

// Len returns the number of subscribed handlers.
func (s *Signal[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handlers)
}

// Reset removes every handler.
func (s *Signal[T]) Reset() {
	s.mu.Lock()
	s.handlers = nil
	s.mu.Unlock()
}
