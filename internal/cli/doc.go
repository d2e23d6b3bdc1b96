// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the ollama-chat command line.
//
// Without a subcommand the terminal UI starts. The line-oriented commands
// share the same application core:
//
//	ollama-chat                      # tabbed terminal UI
//	ollama-chat ask "why is the sky blue"
//	git diff | ollama-chat ask "review this"
//	ollama-chat chat                 # readline REPL
//	ollama-chat models --long
//	ollama-chat conversations list
//	ollama-chat settings set url=http://gpu-box:11434
//
// Global flags --url and --model override the saved settings for one run;
// --store picks the conversation backend (json or sqlite).
package cli
