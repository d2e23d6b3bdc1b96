// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"context"
	"sync"
)

// Lister is the part of the backend client the directory needs.
type Lister interface {
	ModelNames(ctx context.Context) ([]string, error)
}

// =============================================================================
// MODEL DIRECTORY
// =============================================================================

// Directory caches the model names offered by the backend.
//
// The first read after construction, SetClient or Reload fetches the list
// once; later reads return the cached result, including a cached failure.
// Only Reload fetches again. Concurrent loads share one fetch.
type Directory struct {
	mu       sync.Mutex
	client   Lister
	names    []string
	loaded   bool
	lastErr  error
	gen      uint64        // bumped when a fetch result must be discarded
	inflight chan struct{} // closed when the running fetch finishes
}

// NewDirectory creates a directory bound to client, which may be nil.
func NewDirectory(client Lister) *Directory {
	return &Directory{client: client}
}

// SetClient binds a new client and drops the cache without fetching.
// Pass a nil interface, not a typed nil pointer, when there is no client.
func (d *Directory) SetClient(client Lister) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.client = client
	d.invalidateLocked()
}

func (d *Directory) invalidateLocked() {
	d.loaded = false
	d.names = nil
	d.lastErr = nil
	d.gen++
}

// Load fetches the names unless they are already loaded and returns the
// recorded error. Without a client it records ErrNoClient and still counts
// as loaded.
func (d *Directory) Load(ctx context.Context) error {
	d.mu.Lock()
	for {
		if d.loaded {
			err := d.lastErr
			d.mu.Unlock()
			return err
		}
		if d.inflight == nil {
			break
		}
		wait := d.inflight
		d.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
		d.mu.Lock()
	}

	if d.client == nil {
		d.loaded = true
		d.names = nil
		d.lastErr = ErrNoClient
		d.mu.Unlock()
		return ErrNoClient
	}

	client, gen := d.client, d.gen
	done := make(chan struct{})
	d.inflight = done
	d.mu.Unlock()

	names, err := client.ModelNames(ctx)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.inflight = nil
	close(done)

	if err != nil {
		err = &ConnectionError{Cause: err}
	}
	if gen != d.gen {
		// Client replaced or Reload called mid-fetch; the next read fetches
		// again against the current client.
		return err
	}

	d.loaded = true
	if err != nil {
		d.names = nil
		d.lastErr = err
		return err
	}
	if names == nil {
		names = []string{}
	}
	d.names = names
	d.lastErr = nil
	return nil
}

// Reload drops the cache and loads again. It is the only way to retry
// after a failure.
func (d *Directory) Reload(ctx context.Context) error {
	d.mu.Lock()
	d.invalidateLocked()
	d.mu.Unlock()
	return d.Load(ctx)
}

// =============================================================================
// ACCESSORS
// =============================================================================

// Names returns a copy of the model names, loading them first if needed.
// It returns nil when loading failed.
func (d *Directory) Names() []string {
	_ = d.Load(context.Background())
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.names == nil {
		return nil
	}
	out := make([]string, len(d.names))
	copy(out, d.names)
	return out
}

// Len returns the number of models, loading them first if needed.
func (d *Directory) Len() int {
	_ = d.Load(context.Background())
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.names)
}

// At returns the i-th model name, loading the list first if needed.
func (d *Directory) At(i int) (string, bool) {
	_ = d.Load(context.Background())
	d.mu.Lock()
	defer d.mu.Unlock()
	if i < 0 || i >= len(d.names) {
		return "", false
	}
	return d.names[i], true
}

// Contains reports whether name is an installed model.
func (d *Directory) Contains(name string) bool {
	for _, n := range d.Names() {
		if n == name {
			return true
		}
	}
	return false
}

// LastError returns the error recorded by the last load, or nil. An empty
// model list is not an error.
func (d *Directory) LastError() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastErr
}

// Choices loads the names and returns what a selection list should show.
// On error it returns the UnableToConnect sentinel and false, meaning the
// list should be disabled.
func (d *Directory) Choices(ctx context.Context) ([]string, bool) {
	_ = d.Load(ctx)
	return d.Snapshot().Choices()
}

// Snapshot returns the current state without fetching. UI code running on
// the event loop uses it so it never blocks on the network.
func (d *Directory) Snapshot() DirectorySnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := DirectorySnapshot{Loaded: d.loaded, Err: d.lastErr}
	if d.names != nil {
		s.Names = make([]string, len(d.names))
		copy(s.Names, d.names)
	}
	return s
}

// DirectorySnapshot is a point-in-time copy of a Directory.
type DirectorySnapshot struct {
	Names  []string
	Err    error
	Loaded bool
}

// Choices returns the names, or the UnableToConnect sentinel and false when
// the snapshot holds an error.
func (s DirectorySnapshot) Choices() ([]string, bool) {
	if s.Err != nil {
		return []string{UnableToConnect}, false
	}
	return s.Names, true
}
