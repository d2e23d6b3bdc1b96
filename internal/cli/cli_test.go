// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nshiell/ollama-chat/internal/app"
	"github.com/nshiell/ollama-chat/internal/config"
	"github.com/nshiell/ollama-chat/internal/model"
	"github.com/nshiell/ollama-chat/internal/storage"
)

// =============================================================================
// HELPERS
// =============================================================================

// testHome points the config directory at a temp dir and clears overrides.
func testHome(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(config.HomeEnv, dir)
	t.Setenv(config.EnvURL, "")
	t.Setenv(config.EnvModel, "")
	return dir
}

// ollamaServer serves two models and answers every chat with tokens,
// pausing delay between them.
func ollamaServer(t *testing.T, delay time.Duration, tokens ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			json.NewEncoder(w).Encode(map[string]any{"models": []map[string]any{
				{"name": "llama3:latest", "model": "llama3:latest", "size": 4_700_000_000,
					"modified_at": time.Now().Add(-48 * time.Hour).Format(time.RFC3339),
					"details":     map[string]string{"parameter_size": "8B", "quantization_level": "Q4_0"}},
				{"name": "phi3:mini", "model": "phi3:mini"},
			}})
		case "/api/chat":
			w.Header().Set("Content-Type", "application/x-ndjson")
			flusher, _ := w.(http.Flusher)
			for _, tok := range tokens {
				line, _ := json.Marshal(map[string]any{
					"message": map[string]string{"role": "assistant", "content": tok},
					"done":    false,
				})
				fmt.Fprintln(w, string(line))
				if flusher != nil {
					flusher.Flush()
				}
				if delay > 0 {
					select {
					case <-time.After(delay):
					case <-r.Context().Done():
						return
					}
				}
			}
			fmt.Fprintln(w, `{"done":true}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// deadURL is a URL nothing listens on.
func deadURL(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	return url
}

func runCLI(t *testing.T, stdin string, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err = cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func openTestApp(t *testing.T, url string) *app.App {
	t.Helper()
	paths, err := config.DefaultPaths()
	require.NoError(t, err)
	a, err := app.Open(app.Options{Paths: paths, Overrides: map[string]any{config.KeyURL: url}})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

// =============================================================================
// INPUT PARSING
// =============================================================================

func TestReadPrompt(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		stdin   string
		want    string
		wantErr bool
	}{
		{name: "arguments joined", args: []string{"why", "is", "the", "sky", "blue"}, want: "why is the sky blue"},
		{name: "piped only", stdin: "  some code\n", want: "some code"},
		{name: "piped then question", args: []string{"review"}, stdin: "diff --git a b\n", want: "diff --git a b\n\nreview"},
		{name: "nothing", args: []string{"  "}, stdin: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readPrompt(tt.args, strings.NewReader(tt.stdin))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadPrompt_RejectsHugeInput(t *testing.T) {
	big := strings.Repeat("x", maxPipedInput+1)
	_, err := readPrompt(nil, strings.NewReader(big))
	assert.Error(t, err)
}

func TestParseAssignments(t *testing.T) {
	got, err := parseAssignments([]string{"url=http://h:1", "context=a=b", "font="})
	require.NoError(t, err)
	assert.Equal(t, [][2]string{{"url", "http://h:1"}, {"context", "a=b"}, {"font", ""}}, got)

	_, err = parseAssignments([]string{"url"})
	assert.Error(t, err)
	_, err = parseAssignments([]string{"=x"})
	assert.Error(t, err)
}

func TestCompleteCommand(t *testing.T) {
	assert.Equal(t, []string{"/model"}, completeCommand("/mo"))
	assert.Len(t, completeCommand("/"), len(replCommands))
	assert.Nil(t, completeCommand("hello"))
}

// =============================================================================
// ASK
// =============================================================================

func TestAsk_StreamsAnswer(t *testing.T) {
	testHome(t)
	srv := ollamaServer(t, 0, "Hel", "lo", " world")

	out, _, err := runCLI(t, "", "ask", "--url", srv.URL, "say", "hello")
	require.NoError(t, err)
	assert.Equal(t, "Hello world\n", out)
}

func TestAsk_WithoutSaveLeavesNoConversation(t *testing.T) {
	testHome(t)
	srv := ollamaServer(t, 0, "ok")

	_, _, err := runCLI(t, "", "ask", "--url", srv.URL, "hi")
	require.NoError(t, err)

	out, _, err := runCLI(t, "", "conversations", "list")
	require.NoError(t, err)
	assert.Equal(t, "No conversations found.\n", out)
}

func TestAsk_SaveKeepsConversation(t *testing.T) {
	testHome(t)
	srv := ollamaServer(t, 0, "Four.")

	_, errOut, err := runCLI(t, "2+2?\n", "ask", "--save", "--url", srv.URL, "--model", "phi3:mini")
	require.NoError(t, err)
	assert.Contains(t, errOut, "saved as")

	out, _, err := runCLI(t, "", "conversations", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "phi3:mini")
	assert.Contains(t, out, "2+2?")

	// The overrides were saved with the conversation.
	out, _, err = runCLI(t, "", "settings", "show")
	require.NoError(t, err)
	assert.Contains(t, out, srv.URL)
}

func TestAsk_ServerDown(t *testing.T) {
	testHome(t)

	_, _, err := runCLI(t, "", "ask", "--url", deadURL(t), "hello")
	assert.Error(t, err)
}

func TestAsk_NoPrompt(t *testing.T) {
	testHome(t)

	_, _, err := runCLI(t, "", "ask")
	assert.Error(t, err)
}

// =============================================================================
// MODELS
// =============================================================================

func TestModels_MarksCurrent(t *testing.T) {
	testHome(t)
	srv := ollamaServer(t, 0)

	out, _, err := runCLI(t, "", "models", "--url", srv.URL, "--model", "phi3:mini")
	require.NoError(t, err)
	assert.Equal(t, "  llama3:latest\n* phi3:mini\n", out)
}

func TestModels_Long(t *testing.T) {
	testHome(t)
	srv := ollamaServer(t, 0)

	out, _, err := runCLI(t, "", "models", "-l", "--url", srv.URL)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "NAME")
	assert.Contains(t, lines[1], "4.7 GB")
	assert.Contains(t, lines[1], "8B")
	assert.Contains(t, lines[1], "2 days ago")
	assert.Contains(t, lines[2], "phi3:mini")
}

func TestModels_UnableToConnect(t *testing.T) {
	testHome(t)

	out, _, err := runCLI(t, "", "models", "--url", deadURL(t))
	assert.Error(t, err)
	assert.Equal(t, model.UnableToConnect+"\n", out)
}

// =============================================================================
// SETTINGS
// =============================================================================

func TestSettings_SetThenShow(t *testing.T) {
	testHome(t)

	_, _, err := runCLI(t, "", "settings", "set", "style=Purple", "font_size=14", "context=Be brief.")
	require.NoError(t, err)

	out, _, err := runCLI(t, "", "settings")
	require.NoError(t, err)
	assert.Contains(t, out, "Purple")
	assert.Contains(t, out, "14")
	assert.Contains(t, out, "Be brief.")
}

func TestSettings_SetRejectsBadValues(t *testing.T) {
	home := testHome(t)

	_, _, err := runCLI(t, "", "settings", "set", "font_size=huge")
	assert.Error(t, err)
	_, _, err = runCLI(t, "", "settings", "set", "colour=red")
	assert.Error(t, err)
	_, _, err = runCLI(t, "", "settings", "set", "url=not a url")
	assert.Error(t, err)

	_, err = os.Stat(filepath.Join(home, "settings.toml"))
	assert.True(t, os.IsNotExist(err), "rejected changes must not be written")
}

func TestSettings_Path(t *testing.T) {
	home := testHome(t)

	out, _, err := runCLI(t, "", "settings", "path")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "settings.toml")+"\n", out)
}

func TestEditorCommand(t *testing.T) {
	t.Setenv("VISUAL", "")
	t.Setenv("EDITOR", "code --wait")
	assert.Equal(t, []string{"code", "--wait"}, editorCommand())

	t.Setenv("EDITOR", "")
	assert.Equal(t, []string{"vi"}, editorCommand())
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

func seedConversation(t *testing.T, kind storage.Kind, question, answer string) string {
	t.Helper()
	paths, err := config.DefaultPaths()
	require.NoError(t, err)
	store, err := app.OpenStore(paths, kind)
	require.NoError(t, err)
	defer store.Close()

	c := model.NewConversation("llama3:latest")
	require.NoError(t, c.AddUserMessage(question))
	c.SetTyping(true)
	c.AppendToken(answer)
	c.SetTyping(false)
	require.NoError(t, store.Save(storage.FromConversation(c)))
	return c.ID()
}

func TestConversations_BothStores(t *testing.T) {
	for _, kind := range storage.Kinds {
		t.Run(string(kind), func(t *testing.T) {
			testHome(t)
			id := seedConversation(t, kind, "How do tides work?", "The moon pulls the sea.")
			seedConversation(t, kind, "Best pasta shape?", "Rigatoni.")
			store := "--store=" + string(kind)

			out, _, err := runCLI(t, "", "conversations", "list", store)
			require.NoError(t, err)
			assert.Contains(t, out, id[:8])
			assert.Contains(t, out, "Best pasta shape?")

			out, _, err = runCLI(t, "", "conversations", "search", "moon", store)
			require.NoError(t, err)
			assert.Contains(t, out, id[:8])
			assert.NotContains(t, out, "pasta")

			out, _, err = runCLI(t, "", "conversations", "show", id[:6], store)
			require.NoError(t, err)
			assert.Contains(t, out, "The moon pulls the sea.")

			out, _, err = runCLI(t, "", "conversations", "export", id, "--format", "json", store)
			require.NoError(t, err)
			var exported storage.StoredConversation
			require.NoError(t, json.Unmarshal([]byte(out), &exported))
			assert.Equal(t, id, exported.ID)

			_, _, err = runCLI(t, "", "conversations", "delete", id[:8], store)
			require.NoError(t, err)
			out, _, err = runCLI(t, "", "conversations", "list", store)
			require.NoError(t, err)
			assert.NotContains(t, out, id[:8])
		})
	}
}

func TestConversations_ExportToFile(t *testing.T) {
	home := testHome(t)
	id := seedConversation(t, storage.KindJSON, "Hello?", "Hi there.")
	path := filepath.Join(home, "out", "talk.md")

	_, _, err := runCLI(t, "", "conversations", "export", id[:8], path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "### You")
	assert.Contains(t, string(data), "Hi there.")

	htmlPath := filepath.Join(home, "talk.html")
	_, _, err = runCLI(t, "", "conversations", "export", id[:8], htmlPath, "--light")
	require.NoError(t, err)
	data, err = os.ReadFile(htmlPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `<body class="light-theme">`)
}

func TestConversations_DeleteTypoDeletesNothing(t *testing.T) {
	testHome(t)
	id := seedConversation(t, storage.KindJSON, "keep me", "kept")

	_, _, err := runCLI(t, "", "conversations", "delete", id, "zzzzzzzz")
	assert.ErrorIs(t, err, storage.ErrConversationNotFound)

	out, _, err := runCLI(t, "", "conversations", "list")
	require.NoError(t, err)
	assert.Contains(t, out, id[:8])
}

func TestConversations_BadStoreFlag(t *testing.T) {
	testHome(t)

	_, _, err := runCLI(t, "", "conversations", "--store", "csv")
	assert.Error(t, err)
}

// =============================================================================
// REPL
// =============================================================================

func TestREPL_Conversation(t *testing.T) {
	testHome(t)
	srv := ollamaServer(t, 0, "Hi", "!")
	a := openTestApp(t, srv.URL)

	var out bytes.Buffer
	r := newREPL(a, a.NewConversation(), &out)
	ctx := context.Background()

	assert.True(t, r.handle(ctx, "hello"))
	assert.Contains(t, out.String(), "Hi!\n")
	require.Equal(t, 2, r.conv.Len())

	out.Reset()
	assert.True(t, r.handle(ctx, "/history"))
	assert.Contains(t, out.String(), "You")
	assert.Contains(t, out.String(), "hello")

	assert.False(t, r.handle(ctx, "/quit"))
	assert.False(t, r.handle(ctx, "exit"))
}

func TestREPL_ModelCommands(t *testing.T) {
	testHome(t)
	srv := ollamaServer(t, 0)
	a := openTestApp(t, srv.URL)

	var out bytes.Buffer
	r := newREPL(a, a.NewConversation(), &out)
	ctx := context.Background()

	r.handle(ctx, "/model")
	assert.Contains(t, out.String(), "llama3:latest")
	assert.Contains(t, out.String(), "phi3:mini")

	out.Reset()
	r.handle(ctx, "/model phi3:mini")
	assert.Equal(t, "phi3:mini", r.conv.ModelName())
	assert.NotContains(t, out.String(), "not installed")

	out.Reset()
	r.handle(ctx, "/model ghost:7b")
	assert.Equal(t, "ghost:7b", r.conv.ModelName())
	assert.Contains(t, out.String(), "not installed")
}

func TestREPL_NewConversation(t *testing.T) {
	testHome(t)
	srv := ollamaServer(t, 0, "ok")
	a := openTestApp(t, srv.URL)

	var out bytes.Buffer
	first := a.NewConversation()
	r := newREPL(a, first, &out)
	ctx := context.Background()

	r.handle(ctx, "one")
	r.handle(ctx, "/new")
	assert.NotSame(t, first, r.conv)
	assert.True(t, r.conv.IsEmpty())
	r.handle(ctx, "two")

	require.NoError(t, r.finish())
	metas, err := a.Store.List()
	require.NoError(t, err)
	assert.Len(t, metas, 2)
}

func TestREPL_InterruptStopsReply(t *testing.T) {
	testHome(t)
	tokens := make([]string, 200)
	for i := range tokens {
		tokens[i] = "tok "
	}
	srv := ollamaServer(t, 5*time.Millisecond, tokens...)
	a := openTestApp(t, srv.URL)

	var out bytes.Buffer
	r := newREPL(a, a.NewConversation(), &out)
	// Ctrl+C once, then let the reply wind down.
	calls := 0
	r.interrupts = func(ctx context.Context) (context.Context, context.CancelFunc) {
		calls++
		next, cancel := context.WithCancel(ctx)
		if calls == 1 {
			cancel()
		}
		return next, cancel
	}

	assert.True(t, r.handle(context.Background(), "talk forever"))
	assert.Equal(t, 2, calls)
	assert.Contains(t, out.String(), "[stopped]")
	assert.False(t, r.conv.Typing())
	assert.False(t, r.ask.Busy())

	// The session carries on with a working asker.
	r.interrupts = interruptContext
	srvShort := ollamaServer(t, 0, "done")
	require.NoError(t, a.Backend.Connect(srvShort.URL))
	out.Reset()
	r.handle(context.Background(), "again")
	assert.Contains(t, out.String(), "done")
}

func TestStreamReply_SecondInterruptAborts(t *testing.T) {
	testHome(t)
	// The second token never comes, so a cooperative stop cannot finish.
	srv := ollamaServer(t, time.Minute, "first ", "never")
	a := openTestApp(t, srv.URL)
	ask := a.NewAsker(a.NewConversation())

	alwaysInterrupted := func(ctx context.Context) (context.Context, context.CancelFunc) {
		next, cancel := context.WithCancel(ctx)
		cancel()
		return next, cancel
	}

	var out bytes.Buffer
	start := time.Now()
	res, err := streamReply(context.Background(), alwaysInterrupted, ask, "hello", &out)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), stopGrace)
	assert.True(t, res.Stopped)
	assert.True(t, res.Aborted)
	assert.False(t, ask.Busy())
	assert.False(t, ask.Conversation().Typing())
}

func TestREPL_UnknownCommandAndServerDown(t *testing.T) {
	testHome(t)
	a := openTestApp(t, deadURL(t))

	var out bytes.Buffer
	r := newREPL(a, a.NewConversation(), &out)
	ctx := context.Background()

	assert.True(t, r.handle(ctx, "/frobnicate"))
	assert.Contains(t, out.String(), "unknown command")

	out.Reset()
	assert.True(t, r.handle(ctx, "hello?"))
	assert.Contains(t, out.String(), "[error]")
	assert.False(t, r.ask.Busy())
}

func TestPickConversation_Resume(t *testing.T) {
	testHome(t)
	id := seedConversation(t, storage.KindJSON, "earlier question", "earlier answer")
	a := openTestApp(t, deadURL(t))

	conv, err := pickConversation(a, id[:5])
	require.NoError(t, err)
	assert.Equal(t, id, conv.ID())
	assert.Equal(t, 2, conv.Len())

	_, err = pickConversation(a, "nope")
	assert.ErrorIs(t, err, storage.ErrConversationNotFound)

	fresh, err := pickConversation(a, "")
	require.NoError(t, err)
	assert.True(t, fresh.IsEmpty())
}

// =============================================================================
// MISC
// =============================================================================

func TestVersion(t *testing.T) {
	testHome(t)

	out, _, err := runCLI(t, "", "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "ollama-chat "+Version))
}

func TestRoot_NeedsTerminal(t *testing.T) {
	testHome(t)

	_, _, err := runCLI(t, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "needs a terminal")
}
