// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/charmbracelet/bubbles/textinput"

	"github.com/nshiell/ollama-chat/internal/asker"
	"github.com/nshiell/ollama-chat/internal/model"
	"github.com/nshiell/ollama-chat/internal/util"
)

const (
	inputCharLimit = 8192
	tabTitleWidth  = 20
)

// tab is one open conversation with its own input line and Asker.
type tab struct {
	conv  *model.Conversation
	asker *asker.Asker
	input textinput.Model

	// streamErr is the last fragment error of the current reply
	streamErr error

	unsubscribe []func()
}

func newTab(conv *model.Conversation, a *asker.Asker) *tab {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask " + conv.ModelName() + "..."
	ti.CharLimit = inputCharLimit

	t := &tab{conv: conv, asker: a, input: ti}
	t.unsubscribe = append(t.unsubscribe,
		conv.OnWordError.Subscribe(func(err error) { t.streamErr = err }),
		conv.OnUserMessage.Subscribe(func(string) { t.streamErr = nil }),
	)
	return t
}

func (t *tab) title() string {
	return util.TruncateWidth(t.conv.Title(), tabTitleWidth)
}

// close aborts any reply and detaches from the conversation.
func (t *tab) close() {
	t.asker.Close()
	for _, unsub := range t.unsubscribe {
		unsub()
	}
	t.unsubscribe = nil
}
