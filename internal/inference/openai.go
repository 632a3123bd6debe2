// Copyright (C) 2026 the llmhostd authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package inference

import (
	"context"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAICompatClient talks to any OpenAI-compatible chat completion
// server: llama.cpp's `server` binary and Ollama's OpenAI shim both
// expose this surface, so a single adapter covers the common local
// serving stacks without the CSE needing to know which one is behind it.
type OpenAICompatClient struct {
	client *openai.Client
	model  string
}

// NewOpenAICompatClient builds a client against baseURL (e.g.
// "http://localhost:8081/v1"). apiKey may be empty for local servers that
// don't check it; go-openai requires a non-empty string regardless.
func NewOpenAICompatClient(baseURL, model, apiKey string) *OpenAICompatClient {
	if apiKey == "" {
		apiKey = "local"
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return &OpenAICompatClient{client: openai.NewClientWithConfig(cfg), model: model}
}

func toOpenAIMessages(history []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(history))
	for i, m := range history {
		out[i] = openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content}
	}
	return out
}

// Stream opens a streaming chat completion and forwards each delta's
// content as a token. It stops forwarding, closes the token channel and
// reports the error on the error channel as soon as ctx is cancelled,
// even if the underlying stream has more buffered data, matching the
// cooperative-cancellation contract.
func (c *OpenAICompatClient) Stream(ctx context.Context, history []Message) (<-chan string, <-chan error) {
	tokens := make(chan string)
	errs := make(chan error, 1)

	stream, err := c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: toOpenAIMessages(history),
		Stream:   true,
	})
	if err != nil {
		go func() {
			defer close(tokens)
			errs <- fmt.Errorf("start completion stream: %w", err)
		}()
		return tokens, errs
	}

	go func() {
		defer close(tokens)
		defer stream.Close()
		for {
			if ctx.Err() != nil {
				errs <- ctx.Err()
				return
			}
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				errs <- nil
				return
			}
			if err != nil {
				errs <- fmt.Errorf("receive completion chunk: %w", err)
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			select {
			case tokens <- delta:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
	}()

	return tokens, errs
}
