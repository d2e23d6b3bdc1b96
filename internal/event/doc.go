// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package event provides a small typed notification primitive.
//
// A Signal carries one payload type. Each kind of notification an owner
// publishes is its own Signal field, so subscribing to an unknown kind is a
// compile error rather than a runtime lookup failure.
//
// # Usage
//
//	var words event.Signal[string]
//	unsub := words.Subscribe(func(w string) { fmt.Print(w) })
//	defer unsub()
//	words.Emit("hello")
package event
