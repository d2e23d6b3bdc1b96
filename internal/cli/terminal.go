// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// maxPipedInput bounds what ask will read from a pipe.
const maxPipedInput = 4 << 20

// isTerminal reports whether the stream is attached to a terminal. Anything
// other than an *os.File, such as a test buffer, is not.
func isTerminal(stream any) bool {
	f, ok := stream.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// colorProfile honours NO_COLOR and FORCE_COLOR, then falls back to
// terminal detection on stdout.
func colorProfile() termenv.Profile {
	if os.Getenv("NO_COLOR") != "" {
		return termenv.Ascii
	}
	if os.Getenv("FORCE_COLOR") != "" {
		return termenv.ANSI256
	}
	if !isTerminal(os.Stdout) {
		return termenv.Ascii
	}
	return termenv.ColorProfile()
}

// readPrompt builds the question for ask from the arguments and, when
// stdin is piped, its contents. Piped text comes first, separated from the
// arguments by a blank line.
func readPrompt(args []string, stdin io.Reader) (string, error) {
	question := strings.TrimSpace(strings.Join(args, " "))

	var piped string
	if stdin != nil && !isTerminal(stdin) {
		data, err := io.ReadAll(io.LimitReader(stdin, maxPipedInput+1))
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		if len(data) > maxPipedInput {
			return "", fmt.Errorf("stdin is larger than %d bytes", maxPipedInput)
		}
		piped = strings.TrimSpace(string(data))
	}

	switch {
	case piped != "" && question != "":
		return piped + "\n\n" + question, nil
	case piped != "":
		return piped, nil
	case question != "":
		return question, nil
	default:
		return "", errors.New("nothing to ask: pass a prompt or pipe text on stdin")
	}
}
