// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/peterh/liner"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/nshiell/ollama-chat/internal/app"
	"github.com/nshiell/ollama-chat/internal/asker"
	"github.com/nshiell/ollama-chat/internal/model"
	"github.com/nshiell/ollama-chat/internal/storage"
)

func newChatCmd(g *globalFlags) *cobra.Command {
	var resume string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat on the command line",
		Long: `Chat with a model in a line-oriented session with input history.

Ctrl+C stops the answer being written; at the prompt it ends the session.
Type /help for the session commands. The conversation is saved on exit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, g, resume)
		},
	}
	cmd.Flags().StringVarP(&resume, "resume", "r", "", "continue a saved conversation (ID or unique prefix)")
	return cmd
}

func runChat(cmd *cobra.Command, g *globalFlags, resume string) error {
	a, err := g.openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	conv, err := pickConversation(a, resume)
	if err != nil {
		return err
	}

	r := newREPL(a, conv, cmd.OutOrStdout())
	r.banner()

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetCompleter(completeCommand)
	loadHistory(line, a.Paths.History)
	defer saveHistory(line, a.Paths.History)

	ctx := cmd.Context()
	for {
		input, err := line.Prompt(r.prompt())
		if err != nil {
			// Ctrl+C at the prompt, Ctrl+D or a closed stdin.
			fmt.Fprintln(r.out)
			break
		}
		if strings.TrimSpace(input) != "" {
			line.AppendHistory(input)
		}
		if !r.handle(ctx, input) {
			break
		}
	}
	return r.finish()
}

// pickConversation returns a new conversation, or the saved one matching
// prefix.
func pickConversation(a *app.App, prefix string) (*model.Conversation, error) {
	if prefix == "" {
		return a.NewConversation(), nil
	}
	id, err := storage.Resolve(a.Store, prefix)
	if err != nil {
		return nil, err
	}
	conv, ok := a.Conversation(id)
	if !ok {
		return nil, fmt.Errorf("conversation %s is not loaded", id)
	}
	return conv, nil
}

func loadHistory(line *liner.State, path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()
	if _, err := line.ReadHistory(f); err != nil {
		log.Debug().Err(err).Str("path", path).Msg("history not loaded")
	}
}

func saveHistory(line *liner.State, path string) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("history not saved")
		return
	}
	defer f.Close()
	if _, err := line.WriteHistory(f); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("history not saved")
	}
}

// replCommands are the slash commands, in help order.
var replCommands = []struct {
	name string
	help string
}{
	{"/help", "show this list"},
	{"/model", "list models, or /model <name> to switch this conversation"},
	{"/new", "start a new conversation"},
	{"/history", "print this conversation"},
	{"/save", "save conversations and settings now"},
	{"/stop", "stop the answer being written (Ctrl+C does the same)"},
	{"/quit", "save and leave"},
}

func completeCommand(line string) []string {
	if !strings.HasPrefix(line, "/") {
		return nil
	}
	var out []string
	for _, c := range replCommands {
		if strings.HasPrefix(c.name, line) {
			out = append(out, c.name)
		}
	}
	return out
}

// repl is the state of one chat session. All methods run on the loop
// goroutine.
type repl struct {
	app  *app.App
	conv *model.Conversation
	ask  *asker.Asker
	out  io.Writer

	// interrupts derives the context whose cancellation stops a reply.
	interrupts interruptFunc
}

func newREPL(a *app.App, conv *model.Conversation, out io.Writer) *repl {
	return &repl{
		app:        a,
		conv:       conv,
		ask:        a.NewAsker(conv),
		out:        out,
		interrupts: interruptContext,
	}
}

func (r *repl) banner() {
	fmt.Fprintf(r.out, "%s %s\n", titleStyle.Render("ollama-chat"), dimStyle.Render(r.app.Backend.URL()))
	if r.conv.Len() > 0 {
		fmt.Fprintf(r.out, "Resuming %q (%d messages)\n", r.conv.Title(), r.conv.Len())
	}
	fmt.Fprintln(r.out, dimStyle.Render("Type /help for commands, Ctrl+D to leave."))
}

func (r *repl) prompt() string {
	return promptStyle.Render(r.conv.ModelName() + "> ")
}

// handle processes one input line and reports whether the session goes on.
func (r *repl) handle(ctx context.Context, input string) bool {
	input = strings.TrimSpace(input)
	if input == "" {
		return true
	}
	if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
		return false
	}
	if strings.HasPrefix(input, "/") {
		return r.command(ctx, input)
	}

	res, err := streamReply(ctx, r.interrupts, r.ask, input, r.out)
	if err != nil {
		r.printError(err)
		if res.Aborted || errors.Is(err, asker.ErrClosed) {
			r.ask = r.app.NewAsker(r.conv)
		}
		return ctx.Err() == nil
	}
	if res.Aborted {
		r.ask = r.app.NewAsker(r.conv)
	}
	if res.Failed() {
		r.printError(res.Err())
		return true
	}
	for _, e := range res.Errors {
		fmt.Fprintln(r.out, warningStyle.Render("[stream] "+e.Error()))
	}
	if res.Stopped {
		fmt.Fprintln(r.out, dimStyle.Render("[stopped]"))
	}
	return true
}

func (r *repl) command(ctx context.Context, input string) bool {
	name, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(name) {
	case "/quit", "/exit", "/q":
		return false
	case "/help", "/?":
		for _, c := range replCommands {
			fmt.Fprintf(r.out, "  %s %s\n", labelStyle.Render(c.name), c.help)
		}
	case "/new":
		r.ask.Close()
		r.conv = r.app.NewConversation()
		r.ask = r.app.NewAsker(r.conv)
		fmt.Fprintln(r.out, successStyle.Render("New conversation with "+r.conv.ModelName()))
	case "/model":
		r.model(ctx, arg)
	case "/history":
		r.history()
	case "/save":
		if err := r.app.Save(); err != nil {
			r.printError(err)
		} else {
			fmt.Fprintln(r.out, successStyle.Render("Saved"))
		}
	case "/stop":
		if r.ask.Busy() {
			r.ask.Stop()
		} else {
			fmt.Fprintln(r.out, dimStyle.Render("Nothing is being written."))
		}
	default:
		r.printError(fmt.Errorf("unknown command %s, try /help", name))
	}
	return true
}

func (r *repl) model(ctx context.Context, name string) {
	ctx, cancel := context.WithTimeout(ctx, modelsTimeout)
	defer cancel()

	if name == "" {
		names, ok := r.app.Directory.Choices(ctx)
		if !ok {
			r.printError(fmt.Errorf("%s %v", model.UnableToConnect, r.app.Directory.LastError()))
			return
		}
		if len(names) == 0 {
			fmt.Fprintln(r.out, "No models installed.")
			return
		}
		for _, n := range names {
			marker := "  "
			if n == r.conv.ModelName() {
				marker = "* "
			}
			fmt.Fprintln(r.out, marker+n)
		}
		return
	}

	if err := r.app.Directory.Load(ctx); err == nil && !r.app.Directory.Contains(name) {
		fmt.Fprintln(r.out, warningStyle.Render(name+" is not installed on the server"))
	}
	r.conv.SetModelName(name)
	fmt.Fprintln(r.out, successStyle.Render("Now using "+name))
}

func (r *repl) history() {
	if r.conv.IsEmpty() {
		fmt.Fprintln(r.out, dimStyle.Render("Nothing said yet."))
		return
	}
	for _, m := range r.conv.Messages() {
		fmt.Fprintf(r.out, "%s\n%s\n\n", titleStyle.Render(m.Role.DisplayName()), m.Content)
	}
}

func (r *repl) printError(err error) {
	fmt.Fprintln(r.out, errorStyle.Render("[error] ")+err.Error())
}

// finish releases the asker and saves everything.
func (r *repl) finish() error {
	r.ask.Close()
	return r.app.Save()
}
