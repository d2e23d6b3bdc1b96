// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/nshiell/ollama-chat/internal/util"
)

const jsonExt = ".json"

// JSONStore keeps one JSON file per conversation in a directory.
type JSONStore struct {
	mu  sync.Mutex
	dir string
}

// NewJSONStore creates a store rooted at dir, creating it if needed.
func NewJSONStore(dir string) (*JSONStore, error) {
	if err := os.MkdirAll(dir, util.DefaultDirPerm); err != nil {
		return nil, fmt.Errorf("failed to create conversations directory: %w", err)
	}
	return &JSONStore{dir: dir}, nil
}

// Dir returns the directory the store writes to.
func (s *JSONStore) Dir() string {
	return s.dir
}

// =============================================================================
// SAVE / LOAD
// =============================================================================

// Save writes conv atomically, replacing any previous file.
func (s *JSONStore) Save(conv *StoredConversation) error {
	if !validID(conv.ID) {
		return invalidID(conv.ID)
	}
	conv.stamp()

	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode conversation %s: %w", conv.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := util.AtomicWriteFile(s.filePath(conv.ID), data, 0600); err != nil {
		return fmt.Errorf("failed to write conversation %s: %w", conv.ID, err)
	}
	return nil
}

// Load reads one conversation.
func (s *JSONStore) Load(id string) (*StoredConversation, error) {
	if !validID(id) {
		return nil, invalidID(id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(id)
}

func (s *JSONStore) load(id string) (*StoredConversation, error) {
	data, err := os.ReadFile(s.filePath(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, notFound(id)
		}
		return nil, err
	}

	var conv StoredConversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("corrupt conversation file %s: %w", id, err)
	}
	if conv.ID == "" {
		conv.ID = id
	}
	return &conv, nil
}

// LoadAll reads every conversation file. Unreadable files are logged and
// skipped.
func (s *JSONStore) LoadAll() ([]*StoredConversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.ids()
	if err != nil {
		return nil, err
	}

	convs := make([]*StoredConversation, 0, len(ids))
	for _, id := range ids {
		conv, err := s.load(id)
		if err != nil {
			log.Warn().Err(err).Str("conversation", id).Msg("skipping unreadable conversation")
			continue
		}
		convs = append(convs, conv)
	}

	sort.SliceStable(convs, func(i, j int) bool {
		return convs[i].CreatedAt.Before(convs[j].CreatedAt)
	})
	return convs, nil
}

// =============================================================================
// LIST / SEARCH
// =============================================================================

// List returns metadata for every readable conversation.
func (s *JSONStore) List() ([]ConversationMeta, error) {
	return s.filter("")
}

// Search returns conversations mentioning query.
func (s *JSONStore) Search(query string) ([]ConversationMeta, error) {
	return s.filter(strings.ToLower(strings.TrimSpace(query)))
}

func (s *JSONStore) filter(query string) ([]ConversationMeta, error) {
	convs, err := s.LoadAll()
	if err != nil {
		return nil, err
	}

	metas := make([]ConversationMeta, 0, len(convs))
	for _, conv := range convs {
		if query == "" || conv.matches(query) {
			metas = append(metas, conv.Meta())
		}
	}
	sortMetas(metas)
	return metas, nil
}

// =============================================================================
// DELETE
// =============================================================================

// Delete removes a conversation file.
func (s *JSONStore) Delete(id string) error {
	if !validID(id) {
		return invalidID(id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.filePath(id)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return notFound(id)
		}
		return err
	}
	return nil
}

// Close is a no-op; files are closed after every operation.
func (s *JSONStore) Close() error {
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *JSONStore) filePath(id string) string {
	return filepath.Join(s.dir, id+jsonExt)
}

func (s *JSONStore) ids() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, jsonExt) || strings.HasPrefix(name, ".") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, jsonExt))
	}
	return ids, nil
}
