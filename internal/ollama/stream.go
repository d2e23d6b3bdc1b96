// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// maxLineSize bounds a single NDJSON line. Ollama sends one token per line,
// so anything near this size is a broken stream.
const maxLineSize = 1 << 20

// =============================================================================
// STREAM READER
// =============================================================================

// StreamReader reads a streamed chat reply one fragment at a time.
//
// Next blocks until the server delivers the next line. A reader is used by
// one goroutine; Close may be called from any goroutine to abort a blocked
// Next.
type StreamReader struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	// PERFORMANCE: strings.Builder avoids quadratic allocations
	accumulator strings.Builder
	tokenCount  int
	model       string
	done        bool
	stats       *StreamStats

	closeOnce sync.Once
	closeErr  error
}

// NewStreamReader creates a new stream reader over an NDJSON body.
func NewStreamReader(body io.ReadCloser) *StreamReader {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)
	return &StreamReader{
		body:    body,
		scanner: scanner,
		stats:   NewStreamStats(),
	}
}

// Next returns the next fragment of the reply.
//
// It returns io.EOF after the final (done) fragment or when the body ends.
// A line the server marked as an error, or one that does not decode, yields
// a *ClientError of type ErrTypeStreamFragment; the caller may keep calling
// Next. Any other error ends the stream.
func (s *StreamReader) Next() (StreamChunk, error) {
	if s.done {
		return StreamChunk{}, io.EOF
	}

	for s.scanner.Scan() {
		line := bytes.TrimSpace(s.scanner.Bytes())
		// Skip empty lines
		if len(line) == 0 {
			continue
		}
		return s.decode(line)
	}

	s.done = true
	if err := s.scanner.Err(); err != nil {
		return StreamChunk{}, &ClientError{Type: ErrTypeConnection, Message: "stream interrupted", Cause: err}
	}
	return StreamChunk{}, io.EOF
}

func (s *StreamReader) decode(line []byte) (StreamChunk, error) {
	var response chatStreamLine
	if err := json.Unmarshal(line, &response); err != nil {
		return StreamChunk{}, &ClientError{Type: ErrTypeStreamFragment, Message: "malformed stream fragment", Cause: err}
	}

	if response.Error != "" {
		return StreamChunk{}, &ClientError{Type: ErrTypeStreamFragment, Message: response.Error}
	}

	// Track the model
	if response.Model != "" {
		s.model = response.Model
	}

	content := response.Message.Content
	if content != "" {
		if s.tokenCount == 0 {
			s.stats.RecordFirstToken()
		}
		s.accumulator.WriteString(content)
		s.tokenCount++
	}

	chunk := StreamChunk{
		Content:    content,
		Done:       response.Done,
		DoneReason: response.DoneReason,
		Model:      s.model,
	}

	// On completion, extract statistics
	if response.Done {
		chunk.TotalDuration = time.Duration(response.TotalDuration)
		chunk.LoadDuration = time.Duration(response.LoadDuration)
		chunk.PromptEvalDuration = time.Duration(response.PromptEvalDuration)
		chunk.EvalDuration = time.Duration(response.EvalDuration)
		chunk.PromptTokens = response.PromptEvalCount
		chunk.CompletionTokens = response.EvalCount
		s.stats.Finalize(chunk)
		s.done = true
	}

	return chunk, nil
}

// Close releases the underlying response body. It is safe to call more than
// once and from another goroutine.
func (s *StreamReader) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}

// Accumulated returns all content read so far.
func (s *StreamReader) Accumulated() string {
	return s.accumulator.String()
}

// TokenCount returns the number of non-empty fragments received.
func (s *StreamReader) TokenCount() int {
	return s.tokenCount
}

// Model returns the model name reported by the stream.
func (s *StreamReader) Model() string {
	return s.model
}

// Stats returns timing statistics. They are complete once Next has
// returned the final fragment.
func (s *StreamReader) Stats() *StreamStats {
	return s.stats
}

// =============================================================================
// STREAM STATISTICS
// =============================================================================

// StreamStats holds statistics collected during streaming.
type StreamStats struct {
	// Timing
	StartTime      time.Time
	FirstTokenTime time.Time
	EndTime        time.Time

	// Durations (from Ollama response)
	TotalDuration time.Duration
	LoadDuration  time.Duration
	EvalDuration  time.Duration

	// Token counts
	PromptTokens     int
	CompletionTokens int

	// Computed
	TTFT            time.Duration // Time to first token
	TokensPerSecond float64
}

// NewStreamStats creates a new StreamStats with start time set.
func NewStreamStats() *StreamStats {
	return &StreamStats{
		StartTime: time.Now(),
	}
}

// RecordFirstToken marks the time of first token arrival.
func (s *StreamStats) RecordFirstToken() {
	if s.FirstTokenTime.IsZero() {
		s.FirstTokenTime = time.Now()
		s.TTFT = s.FirstTokenTime.Sub(s.StartTime)
	}
}

// Finalize computes final statistics from the last chunk.
func (s *StreamStats) Finalize(chunk StreamChunk) {
	s.EndTime = time.Now()
	s.TotalDuration = chunk.TotalDuration
	s.LoadDuration = chunk.LoadDuration
	s.EvalDuration = chunk.EvalDuration
	s.PromptTokens = chunk.PromptTokens
	s.CompletionTokens = chunk.CompletionTokens

	if s.EvalDuration > 0 {
		s.TokensPerSecond = float64(s.CompletionTokens) / s.EvalDuration.Seconds()
	}
}

// Format returns a one-line summary such as
// "1.2s | 1,024 tokens | 38.5 tok/s | TTFT 230ms".
func (s *StreamStats) Format() string {
	total := s.TotalDuration
	if total == 0 && !s.EndTime.IsZero() {
		total = s.EndTime.Sub(s.StartTime)
	}
	return fmt.Sprintf("%s | %s tokens | %.1f tok/s | TTFT %dms",
		formatDuration(total),
		humanize.Comma(int64(s.CompletionTokens)),
		s.TokensPerSecond,
		s.TTFT.Milliseconds())
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
