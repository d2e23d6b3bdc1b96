// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/nshiell/ollama-chat/internal/util"
)

// =============================================================================
// LIST FORMATTING
// =============================================================================

// FormatList renders conversation metadata as a plain table. now anchors
// the relative "updated" column.
func FormatList(metas []ConversationMeta, now time.Time) string {
	if len(metas) == 0 {
		return "No conversations found.\n"
	}

	var sb strings.Builder
	sb.WriteString(util.PadRight("ID", 10) + " " + util.PadRight("Updated", 16) + " " +
		util.PadRight("Msgs", 5) + " " + util.PadRight("Model", 22) + " Title\n")

	for _, m := range metas {
		id := m.ID
		if len(id) > shortIDLen {
			id = id[:shortIDLen]
		}
		updated := humanize.RelTime(m.UpdatedAt, now, "ago", "from now")
		sb.WriteString(util.PadRight(id, 10) + " " +
			util.PadRight(updated, 16) + " " +
			util.PadRight(strconv.Itoa(m.MessageCount), 5) + " " +
			util.PadRight(m.Model, 22) + " " +
			util.TruncateWidth(m.Summary, 50) + "\n")
	}
	return sb.String()
}
