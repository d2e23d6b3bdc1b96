// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for communicating with an Ollama
// server.
//
// Only the two endpoints a chat client needs are covered: /api/tags for the
// model list and /api/chat for streamed completions.
//
// # Key Types
//
//   - Client: HTTP client bound to one base URL
//   - Message: Chat message with role and content
//   - StreamReader: pull-style reader over an NDJSON chat stream
//   - StreamChunk: one decoded fragment of a streamed reply
//   - ClientError: typed error with an ErrorType category
//
// # Usage
//
//	client, err := ollama.NewClient("http://127.0.0.1:11434")
//	if err != nil {
//	    return err
//	}
//	stream, err := client.ChatStream(ctx, "mistral-nemo:latest", msgs)
//	if err != nil {
//	    return err
//	}
//	defer stream.Close()
//	for {
//	    chunk, err := stream.Next()
//	    if err == io.EOF {
//	        break
//	    }
//	    if ollama.IsStreamFragment(err) {
//	        continue // one bad fragment, the rest of the reply still arrives
//	    }
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Print(chunk.Content)
//	}
package ollama
