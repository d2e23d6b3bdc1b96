// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nshiell/ollama-chat/internal/config"
	"github.com/nshiell/ollama-chat/internal/model"
	"github.com/nshiell/ollama-chat/internal/storage"
)

func testPaths(t *testing.T) config.Paths {
	t.Helper()
	t.Setenv(config.EnvURL, "")
	t.Setenv(config.EnvModel, "")
	return config.PathsIn(t.TempDir())
}

func tagsServer(t *testing.T, names ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			http.NotFound(w, r)
			return
		}
		var models []map[string]string
		for _, n := range names {
			models = append(models, map[string]string{"name": n, "model": n})
		}
		json.NewEncoder(w).Encode(map[string]any{"models": models})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func reply(t *testing.T, c *model.Conversation, question, answer string) {
	t.Helper()
	require.NoError(t, c.AddUserMessage(question))
	c.SetTyping(true)
	c.AppendToken(answer)
	c.SetTyping(false)
}

// =============================================================================
// OPEN / SAVE
// =============================================================================

func TestOpen_FreshStartsOneConversation(t *testing.T) {
	paths := testPaths(t)

	a, err := Open(Options{Paths: paths})
	require.NoError(t, err)
	defer a.Close()

	convs := a.Conversations()
	require.Len(t, convs, 1)
	assert.Equal(t, config.Default().ModelName, convs[0].ModelName())
	assert.True(t, convs[0].IsEmpty())
}

func TestSave_SkipsEmptyAndWritesSettings(t *testing.T) {
	paths := testPaths(t)
	a, err := Open(Options{Paths: paths})
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.Save())

	_, err = os.Stat(paths.Settings)
	assert.NoError(t, err, "settings written")

	metas, err := a.Store.List()
	require.NoError(t, err)
	assert.Empty(t, metas, "empty conversation not written")
}

func TestSave_RoundTripsConversations(t *testing.T) {
	paths := testPaths(t)
	a, err := Open(Options{Paths: paths})
	require.NoError(t, err)

	first := a.Conversations()[0]
	reply(t, first, "hi", "hello")
	second := a.NewConversation()
	second.SetModelName("llama3:latest")
	reply(t, second, "2+2?", "4")

	require.NoError(t, a.Save())
	require.NoError(t, a.Close())

	b, err := Open(Options{Paths: paths})
	require.NoError(t, err)
	defer b.Close()

	convs := b.Conversations()
	require.Len(t, convs, 2)
	assert.Equal(t, first.ID(), convs[0].ID())
	assert.Equal(t, second.ID(), convs[1].ID())
	assert.Equal(t, "llama3:latest", convs[1].ModelName())
	last, _ := convs[1].Last()
	assert.Equal(t, "4", last.Content)
}

func TestSave_DeletesMarkedConversations(t *testing.T) {
	paths := testPaths(t)
	a, err := Open(Options{Paths: paths})
	require.NoError(t, err)
	defer a.Close()

	keep := a.Conversations()[0]
	reply(t, keep, "keep me", "ok")
	drop := a.NewConversation()
	reply(t, drop, "drop me", "ok")
	require.NoError(t, a.Save())

	drop.MarkForDeletion()
	assert.Len(t, a.Conversations(), 1, "marked conversation hidden at once")
	_, found := a.Conversation(drop.ID())
	assert.False(t, found)

	require.NoError(t, a.Save())

	_, err = a.Store.Load(drop.ID())
	assert.ErrorIs(t, err, storage.ErrConversationNotFound)
	_, err = a.Store.Load(keep.ID())
	assert.NoError(t, err)
}

func TestSave_MarkedButNeverSavedIsDropped(t *testing.T) {
	paths := testPaths(t)
	a, err := Open(Options{Paths: paths})
	require.NoError(t, err)
	defer a.Close()

	c := a.NewConversation()
	c.MarkForDeletion()
	require.NoError(t, a.Save())
	assert.Len(t, a.Conversations(), 1)
}

func TestOpen_SQLiteStore(t *testing.T) {
	paths := testPaths(t)
	a, err := Open(Options{Paths: paths, StoreKind: storage.KindSQLite})
	require.NoError(t, err)
	reply(t, a.Conversations()[0], "stored in sqlite", "yes")
	require.NoError(t, a.Save())
	require.NoError(t, a.Close())

	_, err = os.Stat(paths.Database)
	require.NoError(t, err)

	b, err := Open(Options{Paths: paths, StoreKind: storage.KindSQLite})
	require.NoError(t, err)
	defer b.Close()
	first, _ := b.Conversations()[0].At(0)
	assert.Equal(t, "stored in sqlite", first.Content)
}

func TestOpen_Overrides(t *testing.T) {
	paths := testPaths(t)
	a, err := Open(Options{Paths: paths, Overrides: map[string]any{
		config.KeyURL:       "http://example.invalid:1234",
		config.KeyModelName: "phi3",
	}})
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, "http://example.invalid:1234", a.Backend.URL())
	assert.Equal(t, "phi3", a.Conversations()[0].ModelName())
}

func TestOpen_BadOverrideFails(t *testing.T) {
	paths := testPaths(t)
	_, err := Open(Options{Paths: paths, Overrides: map[string]any{config.KeyFontSize: "huge"}})
	assert.Error(t, err)
}

func TestOpen_DamagedSettingsStillOpens(t *testing.T) {
	paths := testPaths(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(paths.Settings), 0700))
	require.NoError(t, os.WriteFile(paths.Settings, []byte("this is = = not toml"), 0600))

	a, err := Open(Options{Paths: paths})
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, config.Default(), a.Settings.Get())
}

// =============================================================================
// BACKEND
// =============================================================================

func TestBackend_FollowsSettingsURL(t *testing.T) {
	paths := testPaths(t)
	srv := tagsServer(t, "llama3:latest", "phi3:mini")

	a, err := Open(Options{Paths: paths, Overrides: map[string]any{config.KeyURL: srv.URL}})
	require.NoError(t, err)
	defer a.Close()

	_, ok := a.Backend.Streamer()
	require.True(t, ok)
	require.NoError(t, a.Directory.Load(context.Background()))
	assert.Equal(t, []string{"llama3:latest", "phi3:mini"}, a.Directory.Names())

	// An invalid URL leaves no client and invalidates the directory.
	require.NoError(t, a.Settings.Update(map[string]any{config.KeyURL: "not a url"}))
	_, ok = a.Backend.Streamer()
	assert.False(t, ok)
	assert.Error(t, a.Backend.Err())
	err = a.Directory.Load(context.Background())
	assert.ErrorIs(t, err, model.ErrNoClient)
	choices, enabled := a.Directory.Choices(context.Background())
	assert.False(t, enabled)
	assert.Equal(t, []string{model.UnableToConnect}, choices)

	// Back to a good URL.
	require.NoError(t, a.Settings.Update(map[string]any{config.KeyURL: srv.URL}))
	_, ok = a.Backend.Streamer()
	assert.True(t, ok)
	assert.NoError(t, a.Directory.Load(context.Background()))
	assert.Equal(t, 2, a.Directory.Len())
}

func TestBackend_IgnoresUnrelatedChanges(t *testing.T) {
	paths := testPaths(t)
	srv := tagsServer(t, "llama3:latest")
	a, err := Open(Options{Paths: paths, Overrides: map[string]any{config.KeyURL: srv.URL}})
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.Directory.Load(context.Background()))
	before, _ := a.Backend.Client()

	require.NoError(t, a.Settings.Update(map[string]any{config.KeyStyle: "Green"}))
	after, _ := a.Backend.Client()
	assert.Same(t, before, after)
	snap := a.Directory.Snapshot()
	assert.True(t, snap.Loaded, "cache kept")
	assert.Len(t, snap.Names, 1)
}

func TestBackend_CloseUnsubscribes(t *testing.T) {
	paths := testPaths(t)
	a, err := Open(Options{Paths: paths})
	require.NoError(t, err)
	url := a.Backend.URL()
	require.NoError(t, a.Close())

	require.NoError(t, a.Settings.Update(map[string]any{config.KeyURL: "http://other:1"}))
	assert.Equal(t, url, a.Backend.URL())
}

func TestNewAsker_UsesSettingsContext(t *testing.T) {
	paths := testPaths(t)
	a, err := Open(Options{Paths: paths})
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.Settings.Update(map[string]any{config.KeyContext: "Answer in French"}))
	assert.Equal(t, "Answer in French", a.SystemContext())
	ask := a.NewAsker(a.Conversations()[0])
	assert.Same(t, a.Conversations()[0], ask.Conversation())
}
