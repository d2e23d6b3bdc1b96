// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nshiell/ollama-chat/internal/model"
	"github.com/nshiell/ollama-chat/internal/util"
)

// =============================================================================
// STORE INTERFACE
// =============================================================================

// Store persists conversations.
type Store interface {
	// Save inserts or replaces a conversation.
	Save(conv *StoredConversation) error

	// Load returns one conversation or ErrConversationNotFound.
	Load(id string) (*StoredConversation, error)

	// LoadAll returns every readable conversation, oldest first.
	LoadAll() ([]*StoredConversation, error)

	// List returns metadata for every conversation, most recently updated
	// first.
	List() ([]ConversationMeta, error)

	// Search returns metadata for conversations whose title or messages
	// contain query, case-insensitively.
	Search(query string) ([]ConversationMeta, error)

	// Delete removes a conversation or returns ErrConversationNotFound.
	Delete(id string) error

	Close() error
}

// Kind names a Store backend.
type Kind string

const (
	KindJSON   Kind = "json"
	KindSQLite Kind = "sqlite"
)

// Kinds lists the supported backends.
var Kinds = []Kind{KindJSON, KindSQLite}

// ParseKind parses a backend name. Empty means KindJSON.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return KindJSON, nil
	case KindJSON, KindSQLite:
		return k, nil
	default:
		return "", fmt.Errorf("unknown store %q (want one of %v)", s, Kinds)
	}
}

// Open opens the backend of the given kind. path is the conversations
// directory for KindJSON and the database file for KindSQLite.
func Open(kind Kind, path string) (Store, error) {
	switch kind {
	case KindJSON:
		return NewJSONStore(path)
	case KindSQLite:
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unknown store %q (want one of %v)", kind, Kinds)
	}
}

// =============================================================================
// STORED TYPES
// =============================================================================

// StoredConversation is the persisted form of a conversation.
type StoredConversation struct {
	ID        string          `json:"id"`
	Summary   string          `json:"summary"`
	Model     string          `json:"model"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Messages  []StoredMessage `json:"messages"`
}

// StoredMessage is the persisted form of a message.
type StoredMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationMeta is the listing view of a conversation.
type ConversationMeta struct {
	ID           string    `json:"id"`
	Summary      string    `json:"summary"`
	Model        string    `json:"model"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
	Preview      string    `json:"preview"`
}

const previewRunes = 80

// FromConversation captures conv for saving.
func FromConversation(conv *model.Conversation) *StoredConversation {
	msgs := conv.Messages()
	stored := make([]StoredMessage, len(msgs))
	for i, m := range msgs {
		stored[i] = StoredMessage{Role: m.Role.String(), Content: m.Content, Timestamp: m.Timestamp}
	}
	return &StoredConversation{
		ID:        conv.ID(),
		Summary:   conv.Title(),
		Model:     conv.ModelName(),
		CreatedAt: conv.CreatedAt(),
		UpdatedAt: conv.UpdatedAt(),
		Messages:  stored,
	}
}

// Conversation rebuilds a live conversation. Messages with unknown roles
// are dropped.
func (c *StoredConversation) Conversation() *model.Conversation {
	msgs := make([]model.Message, len(c.Messages))
	for i, m := range c.Messages {
		msgs[i] = model.Message{Role: model.Role(m.Role), Content: m.Content, Timestamp: m.Timestamp}
	}
	return model.Restore(c.ID, c.Model, msgs, c.CreatedAt, c.UpdatedAt)
}

// Preview returns the first user message, truncated.
func (c *StoredConversation) Preview() string {
	for _, m := range c.Messages {
		if m.Role == string(model.RoleUser) && m.Content != "" {
			return util.Preview(m.Content, previewRunes)
		}
	}
	return ""
}

// Meta returns the listing view of c.
func (c *StoredConversation) Meta() ConversationMeta {
	return ConversationMeta{
		ID:           c.ID,
		Summary:      c.Summary,
		Model:        c.Model,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
		MessageCount: len(c.Messages),
		Preview:      c.Preview(),
	}
}

// matches reports whether query appears in the title or any message.
// query must already be lower case.
func (c *StoredConversation) matches(query string) bool {
	if strings.Contains(strings.ToLower(c.Summary), query) {
		return true
	}
	for _, m := range c.Messages {
		if strings.Contains(strings.ToLower(m.Content), query) {
			return true
		}
	}
	return false
}

// stamp fills in missing identity and times before a save.
func (c *StoredConversation) stamp() {
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = c.UpdatedAt
	}
	if c.Summary == "" {
		c.Summary = c.Conversation().Title()
	}
}

func sortMetas(metas []ConversationMeta) {
	sort.SliceStable(metas, func(i, j int) bool {
		return metas[i].UpdatedAt.After(metas[j].UpdatedAt)
	})
}

// shortIDLen is how much of an ID listings show. Resolve accepts any
// unique prefix.
const shortIDLen = 8

// Resolve expands a unique ID prefix to the full conversation ID.
func Resolve(s Store, prefix string) (string, error) {
	prefix = strings.TrimSpace(prefix)
	if !validID(prefix) {
		return "", invalidID(prefix)
	}
	metas, err := s.List()
	if err != nil {
		return "", err
	}

	var found []string
	for _, m := range metas {
		if m.ID == prefix {
			return m.ID, nil
		}
		if strings.HasPrefix(m.ID, prefix) {
			found = append(found, m.ID)
		}
	}
	switch len(found) {
	case 0:
		return "", notFound(prefix)
	case 1:
		return found[0], nil
	default:
		return "", fmt.Errorf("conversation id %q is ambiguous (%d matches)", prefix, len(found))
	}
}

// validID rejects identifiers that could escape the store directory.
func validID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, `/\`)
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrConversationNotFound is returned when a conversation doesn't exist.
// Use errors.Is(err, ErrConversationNotFound) to check for this error.
var ErrConversationNotFound = &ConversationError{Message: "conversation not found"}

// ErrInvalidID is returned for identifiers that are empty or contain path
// separators.
var ErrInvalidID = &ConversationError{Message: "invalid conversation id"}

// ConversationError represents a conversation-related error.
type ConversationError struct {
	Message string
	ID      string
}

func (e *ConversationError) Error() string {
	if e.ID == "" {
		return e.Message
	}
	return e.Message + ": " + e.ID
}

// Is matches errors with the same message, ignoring the ID.
func (e *ConversationError) Is(target error) bool {
	t, ok := target.(*ConversationError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

func notFound(id string) error {
	return &ConversationError{Message: ErrConversationNotFound.Message, ID: id}
}

func invalidID(id string) error {
	return &ConversationError{Message: ErrInvalidID.Message, ID: id}
}
