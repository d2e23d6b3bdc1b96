// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"os"
	"os/exec"
	"time"

	"github.com/rs/zerolog/log"
)

// startupWait is how long StartServer polls for a freshly spawned server.
const startupWait = 10 * time.Second

// EnsureRunning checks the server and, when it is local and down, starts
// `ollama serve` in the background.
func (c *Client) EnsureRunning(ctx context.Context) error {
	if err := c.CheckRunning(ctx); err == nil {
		return nil
	}
	return c.StartServer(ctx)
}

// StartServer spawns a detached `ollama serve` and waits until the API
// answers. The child outlives this process.
func (c *Client) StartServer(ctx context.Context) error {
	path, err := findOllamaExecutable()
	if err != nil {
		return &ClientError{Type: ErrTypeNotRunning, Message: "failed to find Ollama executable", Cause: err}
	}

	cmd := exec.Command(path, "serve")
	// GPU selection and OLLAMA_* settings reach the server through the
	// inherited environment.
	cmd.Env = os.Environ()
	cmd.SysProcAttr = detachedProcAttr()

	if err := cmd.Start(); err != nil {
		return &ClientError{Type: ErrTypeNotRunning, Message: "failed to start Ollama (path: " + path + ")", Cause: err}
	}
	if cmd.Process != nil {
		_ = cmd.Process.Release()
	}

	log.Info().Str("path", path).Str("url", c.config.BaseURL).Msg("starting ollama server")
	return c.waitReady(ctx, startupWait)
}

func (c *Client) waitReady(ctx context.Context, wait time.Duration) error {
	start := time.Now()
	deadline := start.Add(wait)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	var lastErr error
	for time.Now().Before(deadline) {
		checkCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		lastErr = c.CheckRunning(checkCtx)
		cancel()
		if lastErr == nil {
			log.Info().Dur("elapsed", time.Since(start)).Msg("ollama server ready")
			return nil
		}

		select {
		case <-ctx.Done():
			return &ClientError{Type: ErrTypeConnection, Message: "Ollama startup cancelled", Cause: ctx.Err()}
		case <-ticker.C:
		}
	}

	return &ClientError{
		Type:    ErrTypeTimeout,
		Message: "Ollama started but not responding after " + wait.String(),
		Cause:   lastErr,
	}
}
