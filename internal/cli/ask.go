// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newAskCmd(g *globalFlags) *cobra.Command {
	var save bool

	cmd := &cobra.Command{
		Use:   "ask [prompt]",
		Short: "Ask one question and stream the answer",
		Long: `Ask one question and stream the answer to stdout.

Text piped on stdin is sent ahead of the prompt arguments. Ctrl+C stops the
answer where it is.

Examples:
  ollama-chat ask "what is a monad"
  git diff | ollama-chat ask "write a commit message" --model qwen2.5-coder
  ollama-chat ask --save "plan a trip to Lisbon"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, g, args, save)
		},
	}
	cmd.Flags().BoolVar(&save, "save", false, "keep the exchange as a conversation")
	return cmd
}

func runAsk(cmd *cobra.Command, g *globalFlags, args []string, save bool) error {
	prompt, err := readPrompt(args, cmd.InOrStdin())
	if err != nil {
		return err
	}

	a, err := g.openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	conv := a.NewConversation()
	ask := a.NewAsker(conv)
	defer ask.Close()

	res, err := streamReply(cmd.Context(), interruptContext, ask, prompt, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	for _, e := range res.Errors {
		log.Warn().Err(e).Str("conversation", conv.ID()).Msg("stream error")
	}
	if res.Failed() {
		return res.Err()
	}
	if res.Stopped {
		fmt.Fprintln(cmd.ErrOrStderr(), dimStyle.Render("[stopped]"))
	}

	if save {
		if err := a.Save(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.ErrOrStderr(), dimStyle.Render("saved as "+shortID(conv.ID())))
	}
	return nil
}

// shortID is the prefix shown in listings and accepted by conversation
// commands.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
