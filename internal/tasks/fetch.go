// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/user"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nshiell/ollama-chat/internal/ollama"
)

// eventBuffer lets the worker run ahead of a busy UI loop by this many
// events.
const eventBuffer = 64

// timestampLayout formats the date/time system message.
const timestampLayout = "2006-01-02 15:04:05"

// ErrAlreadyStarted is returned by a second call to Start.
var ErrAlreadyStarted = errors.New("fetch task already started")

// =============================================================================
// BACKEND
// =============================================================================

// Stream is a pull-style reply stream.
type Stream interface {
	Next() (ollama.StreamChunk, error)
	Close() error
}

// Streamer starts a streamed chat request.
type Streamer interface {
	ChatStream(ctx context.Context, model string, messages []ollama.Message) (Stream, error)
}

type clientStreamer struct {
	client *ollama.Client
}

func (s clientStreamer) ChatStream(ctx context.Context, model string, messages []ollama.Message) (Stream, error) {
	r, err := s.client.ChatStream(ctx, model, messages)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// FromClient adapts an Ollama client to a Streamer.
func FromClient(c *ollama.Client) Streamer {
	return clientStreamer{client: c}
}

// =============================================================================
// EVENTS
// =============================================================================

// EventKind identifies the payload of an Event.
type EventKind int

const (
	// EventTyping carries Typing: true when the reply starts, false when
	// it ends for any reason.
	EventTyping EventKind = iota + 1
	// EventToken carries one fragment of content in Token.
	EventToken
	// EventWordError carries a fragment or request failure in Err.
	EventWordError
)

func (k EventKind) String() string {
	switch k {
	case EventTyping:
		return "typing"
	case EventToken:
		return "token"
	case EventWordError:
		return "word_error"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is one notification from a running task.
type Event struct {
	Kind   EventKind
	TaskID string
	Typing bool
	Token  string
	Err    error
}

// =============================================================================
// FETCH TASK
// =============================================================================

// FetchTask is one streamed chat request. It is created per send action
// and discarded once it has reported Typing(false).
type FetchTask struct {
	// ID is a unique identifier for this task
	ID string

	// Model is the model the request is sent to
	Model string

	messages []ollama.Message
	context  string
	streamer Streamer

	now      func() time.Time
	username func() string

	started atomic.Bool
	stop    atomic.Bool

	mu        sync.RWMutex
	status    Status
	err       error
	tokens    int
	startTime time.Time
	endTime   time.Time
}

// NewFetchTask builds a task for messages. The slice is copied, so later
// changes to the caller's log are not sent. systemContext may be empty.
func NewFetchTask(streamer Streamer, messages []ollama.Message, model, systemContext string) *FetchTask {
	snapshot := make([]ollama.Message, len(messages))
	copy(snapshot, messages)
	return &FetchTask{
		ID:       uuid.NewString(),
		Model:    model,
		messages: snapshot,
		context:  strings.TrimSpace(systemContext),
		streamer: streamer,
		now:      time.Now,
		username: currentUsername,
		status:   StatusQueued,
	}
}

// Start runs the request on a new goroutine and returns its events. The
// channel closes after the final Typing(false). Canceling ctx aborts the
// request and abandons any events not yet delivered; use Stop for a
// user-visible stop.
func (t *FetchTask) Start(ctx context.Context) (<-chan Event, error) {
	if t.streamer == nil {
		return nil, errors.New("fetch task has no backend")
	}
	if !t.started.CompareAndSwap(false, true) {
		return nil, ErrAlreadyStarted
	}

	ch := make(chan Event, eventBuffer)
	t.setStatus(StatusRunning, nil)
	go t.run(ctx, ch)
	return ch, nil
}

// Stop asks the task to finish. The worker notices at the next fragment
// boundary, delivers no more tokens and reports Typing(false).
func (t *FetchTask) Stop() {
	t.stop.Store(true)
}

// Stopped reports whether Stop was called.
func (t *FetchTask) Stopped() bool {
	return t.stop.Load()
}

func (t *FetchTask) run(ctx context.Context, ch chan<- Event) {
	defer close(ch)

	send := func(ev Event) bool {
		ev.TaskID = t.ID
		if ctx.Err() != nil {
			return false
		}
		select {
		case ch <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if !send(Event{Kind: EventTyping, Typing: true}) {
		t.setStatus(StatusCanceled, ctx.Err())
		return
	}

	status, err := t.consume(ctx, send)
	t.setStatus(status, err)
	send(Event{Kind: EventTyping, Typing: false})
}

// consume reads the stream until it ends, fails or is stopped.
func (t *FetchTask) consume(ctx context.Context, send func(Event) bool) (Status, error) {
	stream, err := t.streamer.ChatStream(ctx, t.Model, t.requestMessages())
	if err != nil {
		if ctx.Err() != nil {
			return StatusCanceled, err
		}
		send(Event{Kind: EventWordError, Err: err})
		return StatusFailed, err
	}
	defer stream.Close()

	for {
		if t.stop.Load() {
			return StatusCanceled, nil
		}

		chunk, err := stream.Next()

		// Checked again: Stop may have been called while Next blocked.
		if t.stop.Load() {
			return StatusCanceled, nil
		}
		if errors.Is(err, io.EOF) {
			return StatusComplete, nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return StatusCanceled, ctx.Err()
			}
			if !send(Event{Kind: EventWordError, Err: err}) {
				return StatusCanceled, ctx.Err()
			}
			if ollama.IsStreamFragment(err) {
				continue
			}
			return StatusFailed, err
		}

		if chunk.Content != "" {
			t.countToken()
			if !send(Event{Kind: EventToken, Token: chunk.Content}) {
				return StatusCanceled, ctx.Err()
			}
		}
		if chunk.Done {
			return StatusComplete, nil
		}
	}
}

// requestMessages prepends the date/time, username and optional context
// system messages to the log snapshot.
func (t *FetchTask) requestMessages() []ollama.Message {
	prefix := []ollama.Message{
		ollama.NewSystemMessage(fmt.Sprintf("The current date/time is '%s'", t.now().Format(timestampLayout))),
		ollama.NewSystemMessage(fmt.Sprintf("The current user's username is '%s'", t.username())),
	}
	if t.context != "" {
		prefix = append(prefix, ollama.NewSystemMessage(t.context))
	}
	return append(prefix, t.messages...)
}

func currentUsername() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	for _, key := range []string{"USER", "USERNAME", "LOGNAME"} {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return "unknown"
}

// =============================================================================
// STATUS ACCESSORS
// =============================================================================

func (t *FetchTask) setStatus(status Status, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !validTransition(t.status, status) {
		return
	}
	now := time.Now()
	if status == StatusRunning {
		t.startTime = now
	}
	if status.Terminal() {
		t.endTime = now
		t.err = err
	}
	t.status = status
}

func (t *FetchTask) countToken() {
	t.mu.Lock()
	t.tokens++
	t.mu.Unlock()
}

// Status returns the current task status (thread-safe).
func (t *FetchTask) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Err returns the error that ended the task, if any.
func (t *FetchTask) Err() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.err
}

// Tokens returns the number of token events produced so far.
func (t *FetchTask) Tokens() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.tokens
}

// Duration returns how long the task ran, or has been running.
func (t *FetchTask) Duration() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.startTime.IsZero() {
		return 0
	}
	if t.endTime.IsZero() {
		return time.Since(t.startTime)
	}
	return t.endTime.Sub(t.startTime)
}
