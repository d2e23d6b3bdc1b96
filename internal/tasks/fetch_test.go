// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nshiell/ollama-chat/internal/ollama"
)

// =============================================================================
// FAKES
// =============================================================================

type step struct {
	chunk ollama.StreamChunk
	err   error
}

// fakeStream replays steps. When gate is set, each Next after the first
// waits for a value on it.
type fakeStream struct {
	steps  []step
	pos    int
	gate   chan struct{}
	closed atomic.Bool
}

func (s *fakeStream) Next() (ollama.StreamChunk, error) {
	if s.gate != nil && s.pos > 0 {
		<-s.gate
	}
	if s.pos >= len(s.steps) {
		return ollama.StreamChunk{}, io.EOF
	}
	st := s.steps[s.pos]
	s.pos++
	return st.chunk, st.err
}

func (s *fakeStream) Close() error {
	s.closed.Store(true)
	return nil
}

type fakeStreamer struct {
	stream   *fakeStream
	err      error
	model    string
	messages []ollama.Message
}

func (f *fakeStreamer) ChatStream(ctx context.Context, model string, messages []ollama.Message) (Stream, error) {
	f.model = model
	f.messages = messages
	if f.err != nil {
		return nil, f.err
	}
	return f.stream, nil
}

func tokens(parts ...string) []step {
	steps := make([]step, 0, len(parts)+1)
	for _, p := range parts {
		steps = append(steps, step{chunk: ollama.StreamChunk{Content: p}})
	}
	return append(steps, step{chunk: ollama.StreamChunk{Done: true}})
}

func collect(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("timed out waiting for events")
		}
	}
}

func describe(events []Event) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		switch ev.Kind {
		case EventTyping:
			out = append(out, fmt.Sprintf("typing:%v", ev.Typing))
		case EventToken:
			out = append(out, "token:"+ev.Token)
		case EventWordError:
			out = append(out, "error")
		}
	}
	return out
}

func fixedTask(streamer Streamer, msgs []ollama.Message, context string) *FetchTask {
	task := NewFetchTask(streamer, msgs, "mistral-nemo:latest", context)
	task.now = func() time.Time { return time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC) }
	task.username = func() string { return "nick" }
	return task
}

// =============================================================================
// TESTS
// =============================================================================

func TestFetchTask_EventOrder(t *testing.T) {
	streamer := &fakeStreamer{stream: &fakeStream{steps: tokens("Hel", "lo", " world")}}
	task := fixedTask(streamer, nil, "")

	ch, err := task.Start(context.Background())
	require.NoError(t, err)

	events := collect(t, ch)
	assert.Equal(t, []string{"typing:true", "token:Hel", "token:lo", "token: world", "typing:false"}, describe(events))
	for _, ev := range events {
		assert.Equal(t, task.ID, ev.TaskID)
	}
	assert.Equal(t, StatusComplete, task.Status())
	assert.Equal(t, 3, task.Tokens())
	assert.True(t, streamer.stream.closed.Load())
}

func TestFetchTask_SystemMessages(t *testing.T) {
	streamer := &fakeStreamer{stream: &fakeStream{}}
	history := []ollama.Message{ollama.NewUserMessage("hi")}
	task := fixedTask(streamer, history, "  Be brief  ")

	ch, err := task.Start(context.Background())
	require.NoError(t, err)
	collect(t, ch)

	require.Len(t, streamer.messages, 4)
	assert.Equal(t, ollama.NewSystemMessage("The current date/time is '2025-03-04 05:06:07'"), streamer.messages[0])
	assert.Equal(t, ollama.NewSystemMessage("The current user's username is 'nick'"), streamer.messages[1])
	assert.Equal(t, ollama.NewSystemMessage("Be brief"), streamer.messages[2])
	assert.Equal(t, history[0], streamer.messages[3])
	assert.Equal(t, "mistral-nemo:latest", streamer.model)
}

func TestFetchTask_NoContextMessageWhenEmpty(t *testing.T) {
	streamer := &fakeStreamer{stream: &fakeStream{}}
	task := fixedTask(streamer, []ollama.Message{ollama.NewUserMessage("hi")}, "")

	ch, _ := task.Start(context.Background())
	collect(t, ch)

	assert.Len(t, streamer.messages, 3)
}

func TestFetchTask_SnapshotIsolatedFromCaller(t *testing.T) {
	streamer := &fakeStreamer{stream: &fakeStream{}}
	history := []ollama.Message{ollama.NewUserMessage("original")}
	task := fixedTask(streamer, history, "")
	history[0].Content = "mutated"

	ch, _ := task.Start(context.Background())
	collect(t, ch)

	assert.Equal(t, "original", streamer.messages[2].Content)
}

func TestFetchTask_FragmentErrorContinues(t *testing.T) {
	fragErr := &ollama.ClientError{Type: ollama.ErrTypeStreamFragment, Message: "bad line"}
	steps := []step{
		{chunk: ollama.StreamChunk{Content: "a"}},
		{err: fragErr},
		{chunk: ollama.StreamChunk{Content: "b"}},
		{chunk: ollama.StreamChunk{Done: true}},
	}
	task := fixedTask(&fakeStreamer{stream: &fakeStream{steps: steps}}, nil, "")

	ch, _ := task.Start(context.Background())
	events := collect(t, ch)

	assert.Equal(t, []string{"typing:true", "token:a", "error", "token:b", "typing:false"}, describe(events))
	assert.Same(t, fragErr, events[2].Err)
	assert.Equal(t, StatusComplete, task.Status())
}

func TestFetchTask_FatalStreamErrorStops(t *testing.T) {
	steps := []step{
		{chunk: ollama.StreamChunk{Content: "a"}},
		{err: &ollama.ClientError{Type: ollama.ErrTypeConnection, Message: "stream interrupted"}},
		{chunk: ollama.StreamChunk{Content: "never"}},
	}
	task := fixedTask(&fakeStreamer{stream: &fakeStream{steps: steps}}, nil, "")

	ch, _ := task.Start(context.Background())
	events := collect(t, ch)

	assert.Equal(t, []string{"typing:true", "token:a", "error", "typing:false"}, describe(events))
	assert.Equal(t, StatusFailed, task.Status())
	assert.Error(t, task.Err())
}

func TestFetchTask_RequestErrorStillStopsTyping(t *testing.T) {
	task := fixedTask(&fakeStreamer{err: ollama.ErrNotRunning}, nil, "")

	ch, _ := task.Start(context.Background())
	events := collect(t, ch)

	assert.Equal(t, []string{"typing:true", "error", "typing:false"}, describe(events))
	assert.True(t, errors.Is(events[1].Err, ollama.ErrNotRunning))
	assert.Equal(t, StatusFailed, task.Status())
}

func TestFetchTask_StopMidStream(t *testing.T) {
	gate := make(chan struct{})
	stream := &fakeStream{steps: tokens("one", "two", "three"), gate: gate}
	task := fixedTask(&fakeStreamer{stream: stream}, nil, "")

	ch, err := task.Start(context.Background())
	require.NoError(t, err)

	require.Equal(t, Event{Kind: EventTyping, TaskID: task.ID, Typing: true}, <-ch)
	first := <-ch
	require.Equal(t, "one", first.Token)

	task.Stop()
	close(gate) // release the blocked Next

	rest := collect(t, ch)
	assert.Equal(t, []string{"typing:false"}, describe(rest), "no tokens after Stop, typing off exactly once")
	assert.Equal(t, StatusCanceled, task.Status())
	assert.True(t, task.Stopped())
	assert.True(t, stream.closed.Load())
}

func TestFetchTask_ContextCancelAbandonsDelivery(t *testing.T) {
	gate := make(chan struct{})
	stream := &fakeStream{steps: tokens("one", "two"), gate: gate}
	task := fixedTask(&fakeStreamer{stream: stream}, nil, "")

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := task.Start(ctx)
	require.NoError(t, err)
	<-ch // typing on
	<-ch // "one"

	cancel()
	close(gate)

	// Channel must close without blocking on an undrained send.
	collect(t, ch)
	assert.Equal(t, StatusCanceled, task.Status())
}

func TestFetchTask_StartTwice(t *testing.T) {
	task := fixedTask(&fakeStreamer{stream: &fakeStream{}}, nil, "")
	ch, err := task.Start(context.Background())
	require.NoError(t, err)
	_, err = task.Start(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyStarted)
	collect(t, ch)
}

func TestFetchTask_NoBackend(t *testing.T) {
	task := NewFetchTask(nil, nil, "m", "")
	_, err := task.Start(context.Background())
	assert.Error(t, err)
	assert.Equal(t, StatusQueued, task.Status())
}

func TestFetchTask_AgainstHTTPServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollama.ChatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req.Messages) < 3 || req.Messages[0].Role != "system" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		for _, part := range []string{"Hel", "lo", " world"} {
			fmt.Fprintf(w, `{"message":{"role":"assistant","content":%q},"done":false}`+"\n", part)
		}
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":""},"done":true}`)
	}))
	defer srv.Close()

	client, err := ollama.NewClient(srv.URL)
	require.NoError(t, err)

	task := NewFetchTask(FromClient(client), []ollama.Message{ollama.NewUserMessage("hi")}, "m", "")
	ch, err := task.Start(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"typing:true", "token:Hel", "token:lo", "token: world", "typing:false"}, describe(collect(t, ch)))
}

func TestValidTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusQueued, StatusRunning, true},
		{StatusQueued, StatusComplete, false},
		{StatusRunning, StatusCanceled, true},
		{StatusRunning, StatusQueued, false},
		{StatusComplete, StatusFailed, false},
		{StatusFailed, StatusFailed, true},
	}
	for _, tc := range tests {
		if got := validTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("validTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestEventKind_String(t *testing.T) {
	assert.Equal(t, "token", EventToken.String())
	assert.Equal(t, "EventKind(0)", EventKind(0).String())
}
