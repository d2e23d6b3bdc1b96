// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export renders saved conversations as Markdown, HTML or JSON.
//
// # Supported Formats
//
//   - Markdown: YAML front matter, one heading per message
//   - HTML: a standalone page; replies are rendered from Markdown
//   - JSON: the stored conversation, indented
//
// # Usage
//
//	exp, err := export.ForFormat(export.FormatHTML, export.DefaultOptions())
//	data, err := exp.Export(conv)
//
// or, picking the format from the file name:
//
//	path, err := export.ToFile(conv, "talk.html", export.DefaultOptions())
package export
