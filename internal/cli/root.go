// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/nshiell/ollama-chat/internal/app"
	"github.com/nshiell/ollama-chat/internal/config"
	"github.com/nshiell/ollama-chat/internal/logging"
	"github.com/nshiell/ollama-chat/internal/storage"
	"github.com/nshiell/ollama-chat/internal/ui/chat"
)

// globalFlags are the persistent flags every command sees.
type globalFlags struct {
	url         string
	model       string
	store       string
	debug       bool
	logConsole  bool
	startServer bool

	logCloser io.Closer
}

// Execute runs the command line and exits 1 on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// NewRootCmd builds the full command tree. Each call returns independent
// flag state.
func NewRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   "ollama-chat",
		Short: "Chat with models served by a local Ollama",
		Long: `ollama-chat holds several conversations with Ollama models at once.

Run without a subcommand for the tabbed terminal UI. Conversations and
settings live in ~/.ollama-chat (override with OLLAMA_CHAT_HOME).

Examples:
  ollama-chat
  ollama-chat ask "explain goroutines"
  cat main.go | ollama-chat ask "what does this do" --save
  ollama-chat chat --model llama3.2:latest
  ollama-chat conversations export 3f2a > talk.md`,
		Version:           versionString(),
		SilenceUsage:      true,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.setupLogging(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return g.closeLog()
		},
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.runTUI(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.url, "url", "", "Ollama server URL for this run (saved on exit)")
	pf.StringVarP(&g.model, "model", "m", "", "model for new conversations")
	pf.StringVar(&g.store, "store", string(storage.KindJSON), "conversation store: json or sqlite")
	pf.BoolVar(&g.debug, "debug", false, "log at debug level")
	pf.BoolVar(&g.logConsole, "log-console", false, "also write log lines to stderr")
	pf.BoolVar(&g.startServer, "start", false, "start ollama serve when the server is not answering")

	root.AddCommand(
		newAskCmd(g),
		newChatCmd(g),
		newModelsCmd(g),
		newConversationsCmd(g),
		newSettingsCmd(g),
		newVersionCmd(),
	)
	return root
}

func (g *globalFlags) setupLogging(cmd *cobra.Command) error {
	paths, err := config.DefaultPaths()
	if err != nil {
		return err
	}
	closer, err := logging.Setup(logging.Options{
		Path:    paths.Log,
		Debug:   g.debug,
		Console: g.logConsole,
		Stderr:  cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	g.logCloser = closer
	log.Debug().Str("command", cmd.CommandPath()).Msg("starting")
	return nil
}

func (g *globalFlags) closeLog() error {
	if g.logCloser == nil {
		return nil
	}
	err := g.logCloser.Close()
	g.logCloser = nil
	return err
}

// overrides turns the --url and --model flags into a settings update.
func (g *globalFlags) overrides() map[string]any {
	fields := map[string]any{}
	if g.url != "" {
		fields[config.KeyURL] = g.url
	}
	if g.model != "" {
		fields[config.KeyModelName] = g.model
	}
	return fields
}

func (g *globalFlags) storeKind() (storage.Kind, error) {
	return storage.ParseKind(g.store)
}

// openApp loads settings and conversations with the flag overrides applied.
func (g *globalFlags) openApp(cmd *cobra.Command) (*app.App, error) {
	paths, err := config.DefaultPaths()
	if err != nil {
		return nil, err
	}
	kind, err := g.storeKind()
	if err != nil {
		return nil, err
	}
	a, err := app.Open(app.Options{Paths: paths, StoreKind: kind, Overrides: g.overrides()})
	if err != nil {
		return nil, err
	}
	if g.startServer {
		if err := a.Backend.EnsureRunning(cmd.Context()); err != nil {
			log.Warn().Err(err).Msg("could not start ollama")
			fmt.Fprintln(cmd.ErrOrStderr(), warningStyle.Render("Ollama is not answering: "+err.Error()))
		}
	}
	return a, nil
}

// openStore opens only the conversation store, for commands that do not
// talk to the server.
func (g *globalFlags) openStore() (storage.Store, error) {
	paths, err := config.DefaultPaths()
	if err != nil {
		return nil, err
	}
	kind, err := g.storeKind()
	if err != nil {
		return nil, err
	}
	return app.OpenStore(paths, kind)
}

func (g *globalFlags) runTUI(cmd *cobra.Command) error {
	if !isTerminal(cmd.InOrStdin()) || !isTerminal(cmd.OutOrStdout()) {
		return errors.New("the chat interface needs a terminal; try `ollama-chat ask` or `ollama-chat chat`")
	}
	a, err := g.openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	return chat.Run(a)
}
