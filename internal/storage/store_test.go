// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nshiell/ollama-chat/internal/model"
)

// backends runs fn once per Store implementation.
func backends(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("json", func(t *testing.T) {
		s, err := Open(KindJSON, filepath.Join(t.TempDir(), "conversations"))
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		fn(t, s)
	})
	t.Run("sqlite", func(t *testing.T) {
		s, err := Open(KindSQLite, filepath.Join(t.TempDir(), "history.db"))
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		fn(t, s)
	})
}

func storedConv(id string, created time.Time, texts ...string) *StoredConversation {
	conv := &StoredConversation{
		ID:        id,
		Model:     "mistral-nemo:latest",
		CreatedAt: created,
		UpdatedAt: created,
	}
	for i, text := range texts {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		conv.Messages = append(conv.Messages, StoredMessage{Role: role, Content: text, Timestamp: created})
	}
	return conv
}

// =============================================================================
// SAVE / LOAD
// =============================================================================

func TestStore_SaveAndLoad(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
		require.NoError(t, s.Save(storedConv("c1", created, "What is Go?", "A language.")))

		got, err := s.Load("c1")
		require.NoError(t, err)
		assert.Equal(t, "c1", got.ID)
		assert.Equal(t, "mistral-nemo:latest", got.Model)
		assert.Equal(t, "What is Go?", got.Summary, "summary derived from first user message")
		assert.True(t, got.CreatedAt.Equal(created))
		require.Len(t, got.Messages, 2)
		assert.Equal(t, "user", got.Messages[0].Role)
		assert.Equal(t, "A language.", got.Messages[1].Content)
		assert.True(t, got.Messages[1].Timestamp.Equal(created))
	})
}

func TestStore_ZeroMessageTimestampStaysZero(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		conv := storedConv("c1", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), "undated")
		conv.Messages[0].Timestamp = time.Time{}
		require.NoError(t, s.Save(conv))

		got, err := s.Load("c1")
		require.NoError(t, err)
		require.Len(t, got.Messages, 1)
		assert.True(t, got.Messages[0].Timestamp.IsZero(), "got %v", got.Messages[0].Timestamp)
	})
}

func TestStore_SaveReplacesMessages(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		now := time.Now()
		require.NoError(t, s.Save(storedConv("c1", now, "one", "two", "three")))
		require.NoError(t, s.Save(storedConv("c1", now, "only")))

		got, err := s.Load("c1")
		require.NoError(t, err)
		require.Len(t, got.Messages, 1)
		assert.Equal(t, "only", got.Messages[0].Content)
	})
}

func TestStore_LoadNotFound(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		_, err := s.Load("missing")
		assert.True(t, errors.Is(err, ErrConversationNotFound))
		assert.Contains(t, err.Error(), "missing")
	})
}

func TestStore_RejectsPathLikeIDs(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		for _, id := range []string{"", "..", "../escape", `a\b`} {
			err := s.Save(storedConv(id, time.Now(), "x"))
			assert.ErrorIs(t, err, ErrInvalidID, "id %q", id)
		}
	})
}

func TestStore_LoadAllOldestFirst(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		require.NoError(t, s.Save(storedConv("b", base.Add(time.Hour), "second")))
		require.NoError(t, s.Save(storedConv("a", base, "first")))
		require.NoError(t, s.Save(storedConv("c", base.Add(2*time.Hour), "third")))

		all, err := s.LoadAll()
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []string{"a", "b", "c"}, []string{all[0].ID, all[1].ID, all[2].ID})
		assert.Equal(t, "third", all[2].Messages[0].Content)
	})
}

// =============================================================================
// LIST / SEARCH / DELETE
// =============================================================================

func TestStore_ListNewestFirstWithPreview(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		require.NoError(t, s.Save(storedConv("old", base, "old question", "answer")))
		require.NoError(t, s.Save(storedConv("new", base.Add(time.Minute), strings.Repeat("x", 200))))

		metas, err := s.List()
		require.NoError(t, err)
		require.Len(t, metas, 2)
		assert.Equal(t, "new", metas[0].ID)
		assert.Equal(t, "old", metas[1].ID)
		assert.Equal(t, 2, metas[1].MessageCount)
		assert.Equal(t, "old question", metas[1].Preview)
		assert.Len(t, []rune(metas[0].Preview), previewRunes)
	})
}

func TestStore_Search(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		now := time.Now()
		require.NoError(t, s.Save(storedConv("go", now, "Tell me about Goroutines", "They are cheap threads.")))
		require.NoError(t, s.Save(storedConv("rust", now, "Borrow checker?", "It checks 100% of borrows.")))

		hits, err := s.Search("CHEAP")
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "go", hits[0].ID)

		hits, err = s.Search("100%")
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "rust", hits[0].ID)

		hits, err = s.Search("nothing like this")
		require.NoError(t, err)
		assert.Empty(t, hits)

		hits, err = s.Search("")
		require.NoError(t, err)
		assert.Len(t, hits, 2)
	})
}

func TestStore_Delete(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		require.NoError(t, s.Save(storedConv("c1", time.Now(), "hi")))
		require.NoError(t, s.Delete("c1"))

		_, err := s.Load("c1")
		assert.ErrorIs(t, err, ErrConversationNotFound)
		assert.ErrorIs(t, s.Delete("c1"), ErrConversationNotFound)

		metas, err := s.List()
		require.NoError(t, err)
		assert.Empty(t, metas)
	})
}

func TestResolve(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		now := time.Now()
		require.NoError(t, s.Save(storedConv("abc123", now, "x")))
		require.NoError(t, s.Save(storedConv("abd456", now, "y")))

		id, err := Resolve(s, "abc")
		require.NoError(t, err)
		assert.Equal(t, "abc123", id)

		_, err = Resolve(s, "ab")
		assert.ErrorContains(t, err, "ambiguous")

		_, err = Resolve(s, "zzz")
		assert.ErrorIs(t, err, ErrConversationNotFound)
	})
}

// =============================================================================
// BACKEND SPECIFICS
// =============================================================================

func TestJSONStore_SkipsCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewJSONStore(dir)
	require.NoError(t, err)

	require.NoError(t, s.Save(storedConv("good", time.Now(), "fine")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0600))

	all, err := s.LoadAll()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "good", all[0].ID)

	_, err = s.Load("bad")
	assert.ErrorContains(t, err, "corrupt")
}

func TestJSONStore_FilePermissions(t *testing.T) {
	if os.PathSeparator == '\\' {
		t.Skip("permission bits are not meaningful on Windows")
	}
	dir := t.TempDir()
	s, err := NewJSONStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.Save(storedConv("c1", time.Now(), "secret")))

	info, err := os.Stat(filepath.Join(dir, "c1.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(storedConv("c1", time.Now(), "remember me")))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Load("c1")
	require.NoError(t, err)
	assert.Equal(t, "remember me", got.Messages[0].Content)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("")
	require.NoError(t, err)
	assert.Equal(t, KindJSON, k)

	k, err = ParseKind(" SQLite ")
	require.NoError(t, err)
	assert.Equal(t, KindSQLite, k)

	_, err = ParseKind("postgres")
	assert.ErrorContains(t, err, "unknown store")
}

// =============================================================================
// CONVERSION / EXPORT
// =============================================================================

func TestConversationRoundTrip(t *testing.T) {
	conv := model.NewConversation("llama3")
	require.NoError(t, conv.AddUserMessage("Hello\nthere"))
	conv.SetTyping(true)
	conv.AppendToken("Hi!")
	conv.SetTyping(false)

	stored := FromConversation(conv)
	assert.Equal(t, conv.ID(), stored.ID)
	assert.Equal(t, "Hello there", stored.Summary)
	require.Len(t, stored.Messages, 2)

	back := stored.Conversation()
	assert.Equal(t, conv.ID(), back.ID())
	assert.Equal(t, "llama3", back.ModelName())
	assert.Equal(t, conv.Messages(), back.Messages())
	assert.False(t, back.Typing())
}

func TestConversation_DropsUnknownRoles(t *testing.T) {
	stored := storedConv("c1", time.Now(), "q", "a")
	stored.Messages = append(stored.Messages, StoredMessage{Role: "tool", Content: "ignored"})

	conv := stored.Conversation()
	assert.Equal(t, 2, conv.Len())
}

func TestFormatList(t *testing.T) {
	now := time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "No conversations found.\n", FormatList(nil, now))

	out := FormatList([]ConversationMeta{{
		ID:           "0123456789abcdef",
		Summary:      "Tell me a joke",
		Model:        "llama3",
		UpdatedAt:    now.Add(-2 * time.Hour),
		MessageCount: 4,
	}}, now)

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "01234567 ")
	assert.NotContains(t, lines[1], "89abcdef")
	assert.Contains(t, lines[1], "2 hours ago")
	assert.Contains(t, lines[1], "Tell me a joke")
}
