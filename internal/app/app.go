// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package app

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/nshiell/ollama-chat/internal/asker"
	"github.com/nshiell/ollama-chat/internal/config"
	"github.com/nshiell/ollama-chat/internal/model"
	"github.com/nshiell/ollama-chat/internal/storage"
)

// Options controls Open.
type Options struct {
	Paths     config.Paths
	StoreKind storage.Kind

	// Overrides are applied with Settings.Update after loading, so they
	// persist like any other change.
	Overrides map[string]any
}

// App holds the state shared by every front end.
type App struct {
	Settings  *config.Store
	Store     storage.Store
	Backend   *Backend
	Directory *model.Directory
	Paths     config.Paths

	conversations []*model.Conversation
}

// Open loads settings and every saved conversation. When nothing was saved
// it starts one new conversation. A damaged settings file is logged and
// replaced by defaults; storage failures are returned.
func Open(opts Options) (*App, error) {
	settings, err := config.Open(opts.Paths.Settings)
	if err != nil {
		log.Warn().Err(err).Str("path", opts.Paths.Settings).Msg("settings file had problems, using defaults where needed")
	}
	if len(opts.Overrides) > 0 {
		if err := settings.Update(opts.Overrides); err != nil {
			return nil, fmt.Errorf("invalid setting override: %w", err)
		}
	}
	if err := settings.Get().Validate(); err != nil {
		log.Warn().Err(err).Msg("settings did not validate")
	}

	store, err := OpenStore(opts.Paths, opts.StoreKind)
	if err != nil {
		return nil, err
	}

	saved, err := store.LoadAll()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to load conversations: %w", err)
	}

	directory := model.NewDirectory(nil)
	a := &App{
		Settings:  settings,
		Store:     store,
		Backend:   NewBackend(settings, directory),
		Directory: directory,
		Paths:     opts.Paths,
	}
	for _, sc := range saved {
		a.conversations = append(a.conversations, sc.Conversation())
	}
	if len(a.conversations) == 0 {
		a.NewConversation()
	}

	log.Info().Int("conversations", len(a.conversations)).Msg("application opened")
	return a, nil
}

// OpenStore opens the conversation store of the given kind at its place
// under paths. An empty kind means JSON.
func OpenStore(paths config.Paths, kind storage.Kind) (storage.Store, error) {
	if kind == "" {
		kind = storage.KindJSON
	}
	path := paths.Conversations
	if kind == storage.KindSQLite {
		path = paths.Database
	}
	store, err := storage.Open(kind, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open conversation store: %w", err)
	}
	log.Debug().Str("store", string(kind)).Str("path", path).Msg("conversation store opened")
	return store, nil
}

// Conversations returns the conversations not marked for deletion, in
// creation order.
func (a *App) Conversations() []*model.Conversation {
	out := make([]*model.Conversation, 0, len(a.conversations))
	for _, c := range a.conversations {
		if !c.MarkedForDeletion() {
			out = append(out, c)
		}
	}
	return out
}

// Conversation finds a live conversation by ID.
func (a *App) Conversation(id string) (*model.Conversation, bool) {
	for _, c := range a.conversations {
		if c.ID() == id && !c.MarkedForDeletion() {
			return c, true
		}
	}
	return nil, false
}

// NewConversation starts an empty conversation using the settings model.
func (a *App) NewConversation() *model.Conversation {
	c := model.NewConversation(a.Settings.Get().ModelName)
	a.conversations = append(a.conversations, c)
	return c
}

// SystemContext returns the extra system prompt from settings.
func (a *App) SystemContext() string {
	return a.Settings.Get().Context
}

// NewAsker creates an Asker for conv bound to this application's backend.
func (a *App) NewAsker(conv *model.Conversation) *asker.Asker {
	return asker.New(conv, a.Backend, a.SystemContext, log.Logger)
}

// Save deletes conversations marked for deletion, writes every other
// non-empty conversation and then the settings. It attempts every write
// and joins the failures.
func (a *App) Save() error {
	var errs []error
	kept := make([]*model.Conversation, 0, len(a.conversations))

	for _, c := range a.conversations {
		if c.MarkedForDeletion() {
			err := a.Store.Delete(c.ID())
			if err == nil || errors.Is(err, storage.ErrConversationNotFound) {
				log.Debug().Str("conversation", c.ID()).Msg("conversation deleted")
				continue
			}
			errs = append(errs, fmt.Errorf("delete %s: %w", c.ID(), err))
			kept = append(kept, c)
			continue
		}

		kept = append(kept, c)
		if c.IsEmpty() {
			continue
		}
		if err := a.Store.Save(storage.FromConversation(c)); err != nil {
			errs = append(errs, fmt.Errorf("save %s: %w", c.ID(), err))
		}
	}
	a.conversations = kept

	if err := a.Settings.Save(); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		log.Error().Err(err).Msg("save incomplete")
		return err
	}
	return nil
}

// Close stops following settings and closes the store. It does not save.
func (a *App) Close() error {
	a.Backend.Close()
	return a.Store.Close()
}
