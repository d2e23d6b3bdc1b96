// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nshiell/ollama-chat/internal/storage"
)

var created = time.Date(2024, 3, 2, 9, 30, 0, 0, time.UTC)

func sample() *storage.StoredConversation {
	return &storage.StoredConversation{
		ID:        "3f2a9c01-0000-4000-8000-000000000000",
		Summary:   "What is 2+2?",
		Model:     "mistral-nemo:latest",
		CreatedAt: created,
		UpdatedAt: created.Add(time.Minute),
		Messages: []storage.StoredMessage{
			{Role: "user", Content: "What is 2+2? <b>quick</b>", Timestamp: created},
			{Role: "assistant", Content: "It is **4**.\n\n```go\nfmt.Println(2 + 2)\n```\n<script>alert(1)</script>", Timestamp: created.Add(time.Minute)},
		},
	}
}

func fixedOptions() Options {
	opts := DefaultOptions()
	opts.Now = created.Add(time.Hour)
	return opts
}

// =============================================================================
// FORMATS
// =============================================================================

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatMarkdown, "MD": FormatMarkdown, "htm": FormatHTML, "json": FormatJSON} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFormat("pdf")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestFormatForPath(t *testing.T) {
	f, ok := FormatForPath("talk.html")
	assert.True(t, ok)
	assert.Equal(t, FormatHTML, f)

	_, ok = FormatForPath("talk")
	assert.False(t, ok)
	_, ok = FormatForPath("talk.docx")
	assert.False(t, ok)
}

func TestEmptyConversationRejected(t *testing.T) {
	empty := sample()
	empty.Messages = nil
	for _, f := range Formats {
		exp, err := ForFormat(f, DefaultOptions())
		require.NoError(t, err)
		_, err = exp.Export(empty)
		assert.ErrorIs(t, err, ErrEmptyConversation, f)
	}
}

// =============================================================================
// MARKDOWN
// =============================================================================

func TestMarkdown(t *testing.T) {
	data, err := NewMarkdownExporter(fixedOptions()).Export(sample())
	require.NoError(t, err)
	md := string(data)

	assert.True(t, strings.HasPrefix(md, "---\ntitle: What is 2+2?\n"), md)
	assert.Contains(t, md, "model: \"mistral-nemo:latest\"\n")
	assert.Contains(t, md, "exported: 2024-03-02T10:30:00Z\n")
	assert.Contains(t, md, "# What is 2+2?\n")
	assert.Contains(t, md, "### You <sub>2024-03-02 09:30</sub>\n\nWhat is 2+2?")
	assert.Contains(t, md, "### Assistant <sub>2024-03-02 09:31</sub>")
	assert.Contains(t, md, "```go\nfmt.Println(2 + 2)\n```")
}

func TestMarkdown_WithoutMetadata(t *testing.T) {
	opts := Options{}
	data, err := NewMarkdownExporter(opts).Export(sample())
	require.NoError(t, err)
	md := string(data)

	assert.True(t, strings.HasPrefix(md, "# What is 2+2?\n"))
	assert.Contains(t, md, "### You\n")
	assert.NotContains(t, md, "<sub>")
}

func TestEscapeYAML(t *testing.T) {
	assert.Equal(t, "plain", escapeYAML("plain"))
	assert.Equal(t, `"a\nb"`, escapeYAML("a\nb"))
	assert.Equal(t, `"back\\slash"`, escapeYAML(`back\slash`))
}

// =============================================================================
// HTML
// =============================================================================

func TestHTML(t *testing.T) {
	data, err := NewHTMLExporter(fixedOptions()).Export(sample())
	require.NoError(t, err)
	page := string(data)

	assert.Contains(t, page, "<title>What is 2+2?</title>")
	assert.Contains(t, page, `<body class="dark-theme">`)
	// User text is shown as typed.
	assert.Contains(t, page, "What is 2+2? &lt;b&gt;quick&lt;/b&gt;")
	// Replies are rendered from Markdown.
	assert.Contains(t, page, "<strong>4</strong>")
	assert.Contains(t, page, `<code class="language-go">`)
	// Raw HTML in replies never reaches the page.
	assert.NotContains(t, page, "<script>alert(1)</script>")
	assert.Contains(t, page, "March 2, 2024 at 10:30 AM")
}

func TestHTML_LightThemeAndUnknownRole(t *testing.T) {
	opts := fixedOptions()
	opts.Theme = "light"
	conv := sample()
	conv.Summary = `<img src=x onerror="x">`
	conv.Messages = append(conv.Messages, storage.StoredMessage{Role: "tool", Content: "ran"})

	data, err := NewHTMLExporter(opts).Export(conv)
	require.NoError(t, err)
	page := string(data)

	assert.Contains(t, page, `<body class="light-theme">`)
	assert.Contains(t, page, `class="message other-message"`)
	assert.Contains(t, page, ">Tool<")
	assert.NotContains(t, page, "<img")
}

func TestPlainParagraphs(t *testing.T) {
	assert.Equal(t, "<p>one<br>\ntwo</p>\n<p>three &amp; four</p>\n", plainParagraphs("one\ntwo\n\nthree & four\n"))
}

// =============================================================================
// JSON
// =============================================================================

func TestJSON_RoundTrips(t *testing.T) {
	data, err := NewJSONExporter(DefaultOptions()).Export(sample())
	require.NoError(t, err)

	var back storage.StoredConversation
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, sample().ID, back.ID)
	assert.Len(t, back.Messages, 2)
}

// =============================================================================
// FILES
// =============================================================================

func TestToFile_FormatFromExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "talk.html")

	got, err := ToFile(sample(), path, "", fixedOptions())
	require.NoError(t, err)
	assert.Equal(t, path, got)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "<!DOCTYPE html>"))
}

func TestToFile_DirectoryGetsGeneratedName(t *testing.T) {
	dir := t.TempDir()

	got, err := ToFile(sample(), dir, FormatJSON, fixedOptions())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "conversation_What_is_2+2-_20240302_103000.json"), got)
	_, err = os.Stat(got)
	assert.NoError(t, err)
}

func TestToFile_UnknownExtensionIsMarkdown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")

	_, err := ToFile(sample(), path, "", fixedOptions())
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "---\n"))
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "a-b-c_d", sanitizeFilename(`a/b:c d`))
	assert.Equal(t, "conversation", sanitizeFilename("   "))
	assert.Len(t, []rune(sanitizeFilename(strings.Repeat("é", 80))), 50)
}
