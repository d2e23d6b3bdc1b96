// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/nshiell/ollama-chat/internal/event"
	"github.com/nshiell/ollama-chat/internal/ollama"
)

// titleRunes is the length of a title derived from the first user message.
const titleRunes = 50

// untitled is the title of a conversation with no user message yet.
const untitled = "New conversation"

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation is an ordered message log with a two-state response
// lifecycle:
//
//	Idle (typing=false) --SetTyping(true)--> Responding (typing=true)
//	Responding --SetTyping(false)--> Idle
//
// A Conversation is not safe for concurrent use. It belongs to the UI
// goroutine; background work reaches it only through events that goroutine
// applies.
type Conversation struct {
	id        string
	modelName string
	messages  []Message
	typing    bool
	deleted   bool
	createdAt time.Time
	updatedAt time.Time

	// OnWord receives each streamed token, not the accumulated content.
	OnWord event.Signal[string]
	// OnTyping fires on every Idle/Responding transition.
	OnTyping event.Signal[bool]
	// OnUserMessage fires after a user message is appended.
	OnUserMessage event.Signal[string]
	// OnWordError receives per-fragment stream failures.
	OnWordError event.Signal[error]
}

// NewConversation creates an empty conversation using modelName.
func NewConversation(modelName string) *Conversation {
	now := time.Now()
	return &Conversation{
		id:        uuid.NewString(),
		modelName: modelName,
		createdAt: now,
		updatedAt: now,
	}
}

// Restore rebuilds a conversation from persisted fields. Messages with an
// unknown role are dropped. A blank id gets a fresh one.
func Restore(id, modelName string, messages []Message, createdAt, updatedAt time.Time) *Conversation {
	if id == "" {
		id = uuid.NewString()
	}
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}

	kept := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role.Valid() {
			kept = append(kept, m)
		}
	}

	return &Conversation{
		id:        id,
		modelName: modelName,
		messages:  kept,
		createdAt: createdAt,
		updatedAt: updatedAt,
	}
}

// =============================================================================
// STATE MACHINE
// =============================================================================

// AddUserMessage appends a user message. It fails with an error matching
// ErrInvalidState while a reply is streaming; the message is not added.
func (c *Conversation) AddUserMessage(text string) error {
	if c.typing {
		return &StateError{
			Op:     "add user message",
			Reason: "unable to add a message while the assistant is typing",
		}
	}

	c.messages = append(c.messages, NewUserMessage(text))
	c.touch()
	c.OnUserMessage.Emit(text)
	return nil
}

// SetTyping moves between Idle and Responding. Repeating the current state
// changes nothing and notifies no one.
func (c *Conversation) SetTyping(typing bool) {
	if c.typing == typing {
		return
	}
	c.typing = typing
	c.OnTyping.Emit(typing)
}

// AppendToken adds one streamed fragment to the reply in progress, opening
// a new assistant message first when the last message is not one.
// Observers receive only text.
func (c *Conversation) AppendToken(text string) {
	if n := len(c.messages); n == 0 || c.messages[n-1].Role != RoleAssistant {
		c.messages = append(c.messages, NewAssistantMessage())
	}
	c.messages[len(c.messages)-1].Content += text
	c.touch()
	c.OnWord.Emit(text)
}

// WordError passes a fragment failure on to observers. The log is not
// changed.
func (c *Conversation) WordError(err error) {
	c.OnWordError.Emit(err)
}

func (c *Conversation) touch() {
	c.updatedAt = time.Now()
}

// =============================================================================
// ACCESSORS
// =============================================================================

// ID returns the stable identifier used as the storage key.
func (c *Conversation) ID() string { return c.id }

// ModelName returns the model replies are requested from.
func (c *Conversation) ModelName() string { return c.modelName }

// SetModelName selects the model for the next request.
func (c *Conversation) SetModelName(name string) {
	if name == c.modelName {
		return
	}
	c.modelName = name
	c.touch()
}

// Typing reports whether a reply is streaming.
func (c *Conversation) Typing() bool { return c.typing }

// Len returns the number of messages.
func (c *Conversation) Len() int { return len(c.messages) }

// IsEmpty reports whether the log has no messages.
func (c *Conversation) IsEmpty() bool { return len(c.messages) == 0 }

// At returns the message at index i.
func (c *Conversation) At(i int) (Message, bool) {
	if i < 0 || i >= len(c.messages) {
		return Message{}, false
	}
	return c.messages[i], true
}

// Last returns the most recent message.
func (c *Conversation) Last() (Message, bool) {
	return c.At(len(c.messages) - 1)
}

// LastAssistant returns the most recent assistant message.
func (c *Conversation) LastAssistant() (Message, bool) {
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].Role == RoleAssistant {
			return c.messages[i], true
		}
	}
	return Message{}, false
}

// Messages returns a copy of the log.
func (c *Conversation) Messages() []Message {
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Title is a preview of the first user message.
func (c *Conversation) Title() string {
	for _, m := range c.messages {
		if m.Role == RoleUser {
			return m.Preview(titleRunes)
		}
	}
	return untitled
}

// CreatedAt returns when the conversation was started.
func (c *Conversation) CreatedAt() time.Time { return c.createdAt }

// UpdatedAt returns when the log or model last changed.
func (c *Conversation) UpdatedAt() time.Time { return c.updatedAt }

// MarkForDeletion flags the conversation for removal by the next save
// cycle. It stays in memory until then.
func (c *Conversation) MarkForDeletion() { c.deleted = true }

// MarkedForDeletion reports whether MarkForDeletion was called.
func (c *Conversation) MarkedForDeletion() bool { return c.deleted }

// ToOllamaMessages converts the log for a chat request.
func (c *Conversation) ToOllamaMessages() []ollama.Message {
	out := make([]ollama.Message, 0, len(c.messages))
	for _, m := range c.messages {
		out = append(out, ollama.Message{Role: m.Role.String(), Content: m.Content})
	}
	return out
}
