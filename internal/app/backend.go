// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/nshiell/ollama-chat/internal/config"
	"github.com/nshiell/ollama-chat/internal/model"
	"github.com/nshiell/ollama-chat/internal/ollama"
	"github.com/nshiell/ollama-chat/internal/tasks"
)

// Backend owns the Ollama client. The client is rebuilt whenever the
// settings URL changes, and the model directory is rebound each time.
// An invalid URL leaves no client.
type Backend struct {
	mu        sync.RWMutex
	client    *ollama.Client
	url       string
	err       error
	directory *model.Directory

	unsubscribe func()
}

// NewBackend connects to the URL in settings and follows later changes.
func NewBackend(settings *config.Store, directory *model.Directory) *Backend {
	b := &Backend{directory: directory}
	b.Connect(settings.Get().URL)
	b.unsubscribe = settings.Changed.Subscribe(func(s config.Settings) {
		if s.URL != b.URL() {
			b.Connect(s.URL)
		}
	})
	return b
}

// Connect rebuilds the client for url and rebinds the directory, dropping
// its cached names. It returns the URL validation error, if any.
func (b *Backend) Connect(url string) error {
	client, err := ollama.NewClient(url)

	b.mu.Lock()
	b.url = url
	b.client = client
	b.err = err
	b.mu.Unlock()

	if err != nil {
		log.Warn().Err(err).Str("url", url).Msg("no backend client")
		b.directory.SetClient(nil)
		return err
	}
	log.Debug().Str("url", client.BaseURL()).Msg("backend client ready")
	b.directory.SetClient(client)
	return nil
}

// Client returns the current client; ok is false when the URL is invalid.
func (b *Backend) Client() (client *ollama.Client, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.client, b.client != nil
}

// Streamer implements asker.Backend.
func (b *Backend) Streamer() (tasks.Streamer, bool) {
	client, ok := b.Client()
	if !ok {
		return nil, false
	}
	return tasks.FromClient(client), true
}

// URL returns the URL of the last Connect, valid or not.
func (b *Backend) URL() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.url
}

// Err returns why there is no client, or nil.
func (b *Backend) Err() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.err
}

// EnsureRunning starts a local Ollama server when none answers.
func (b *Backend) EnsureRunning(ctx context.Context) error {
	client, ok := b.Client()
	if !ok {
		return model.ErrNoClient
	}
	return client.EnsureRunning(ctx)
}

// Close stops following settings changes.
func (b *Backend) Close() {
	if b.unsubscribe != nil {
		b.unsubscribe()
	}
}
