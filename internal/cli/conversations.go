// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/nshiell/ollama-chat/internal/export"
	"github.com/nshiell/ollama-chat/internal/storage"
)

func newConversationsCmd(g *globalFlags) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"conv", "c"},
		Short:   "Manage saved conversations",
		Long: `List, search, show, delete and export saved conversations.

Conversations are named by ID; any unique prefix of at least one character
works, as printed by the list command.

Examples:
  ollama-chat conversations
  ollama-chat conversations search kubernetes
  ollama-chat conversations show 3f2a
  ollama-chat conversations export 3f2a talk.md
  ollama-chat conversations delete 3f2a 9c01`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConversationsList(cmd, g, limit)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "most conversations to list, 0 for all")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List conversations, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConversationsList(cmd, g, limit)
		},
	}
	listCmd.Flags().IntVarP(&limit, "limit", "n", 20, "most conversations to list, 0 for all")

	searchCmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find conversations mentioning a phrase",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConversationsSearch(cmd, g, strings.Join(args, " "))
		},
	}

	showCmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConversationsShow(cmd, g, args[0])
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete conversations",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConversationsDelete(cmd, g, args)
		},
	}

	var format string
	var light bool
	exportCmd := &cobra.Command{
		Use:   "export <id> [path]",
		Short: "Export a conversation as Markdown, HTML or JSON",
		Long: `Export a conversation to stdout or a file.

Without --format the format follows the file extension (.md, .html, .json)
and defaults to Markdown. A directory as path gets a generated file name.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 2 {
				path = args[1]
			}
			return runConversationsExport(cmd, g, args[0], path, format, light)
		},
	}
	exportCmd.Flags().StringVarP(&format, "format", "f", "", "markdown, html or json")
	exportCmd.Flags().BoolVar(&light, "light", false, "light theme for HTML")

	cmd.AddCommand(listCmd, searchCmd, showCmd, deleteCmd, exportCmd)
	return cmd
}

func runConversationsList(cmd *cobra.Command, g *globalFlags, limit int) error {
	store, err := g.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	metas, err := store.List()
	if err != nil {
		return err
	}
	total := len(metas)
	if limit > 0 && total > limit {
		metas = metas[:limit]
	}
	fmt.Fprint(cmd.OutOrStdout(), storage.FormatList(metas, time.Now()))
	if len(metas) < total {
		fmt.Fprintln(cmd.ErrOrStderr(), dimStyle.Render(fmt.Sprintf("%d of %d shown, use --limit 0 for all", len(metas), total)))
	}
	return nil
}

func runConversationsSearch(cmd *cobra.Command, g *globalFlags, query string) error {
	store, err := g.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	metas, err := store.Search(query)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), storage.FormatList(metas, time.Now()))
	return nil
}

// loadByPrefix resolves prefix and loads the conversation.
func loadByPrefix(store storage.Store, prefix string) (*storage.StoredConversation, error) {
	id, err := storage.Resolve(store, prefix)
	if err != nil {
		return nil, err
	}
	return store.Load(id)
}

func runConversationsShow(cmd *cobra.Command, g *globalFlags, prefix string) error {
	store, err := g.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	conv, err := loadByPrefix(store, prefix)
	if err != nil {
		return err
	}
	md, err := export.NewMarkdownExporter(export.Options{IncludeTimestamps: true}).Export(conv)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), renderMarkdown(string(md), cmd.OutOrStdout()))
	return nil
}

// renderMarkdown styles md with glamour on a terminal and returns it as is
// otherwise.
func renderMarkdown(md string, out any) string {
	f, ok := out.(*os.File)
	if !ok || !isTerminal(f) {
		return md
	}
	width := 80
	if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
		width = min(w, 120)
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(width))
	if err != nil {
		log.Debug().Err(err).Msg("markdown renderer unavailable")
		return md
	}
	rendered, err := r.Render(md)
	if err != nil {
		return md
	}
	return rendered
}

func runConversationsDelete(cmd *cobra.Command, g *globalFlags, prefixes []string) error {
	store, err := g.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	// Resolve everything first so a typo deletes nothing.
	ids := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		id, err := storage.Resolve(store, p)
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}
	for _, id := range ids {
		if err := store.Delete(id); err != nil {
			return err
		}
		log.Info().Str("conversation", id).Msg("conversation deleted")
		fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Deleted")+" "+shortID(id))
	}
	return nil
}

func runConversationsExport(cmd *cobra.Command, g *globalFlags, prefix, path, formatName string, light bool) error {
	var format export.Format
	if formatName != "" {
		f, err := export.ParseFormat(formatName)
		if err != nil {
			return err
		}
		format = f
	}

	store, err := g.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	conv, err := loadByPrefix(store, prefix)
	if err != nil {
		return err
	}

	opts := export.DefaultOptions()
	if light {
		opts.Theme = "light"
	}

	if path == "" || path == "-" {
		if format == "" {
			format = export.FormatMarkdown
		}
		exporter, err := export.ForFormat(format, opts)
		if err != nil {
			return err
		}
		data, err := exporter.Export(conv)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}

	written, err := export.ToFile(conv, path, format, opts)
	if err != nil {
		return err
	}
	log.Info().Str("conversation", conv.ID).Str("path", written).Msg("conversation exported")
	fmt.Fprintln(cmd.ErrOrStderr(), successStyle.Render("Exported")+" "+shortID(conv.ID)+" to "+written)
	return nil
}
