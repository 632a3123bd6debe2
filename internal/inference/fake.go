// Copyright (C) 2026 the llmhostd authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package inference

import (
	"context"
	"strings"
)

// FakeEngine is a deterministic in-memory Engine used by chat session
// engine tests: it never touches a network or a real model, and its
// output is fully determined by the last user message, so cancellation
// and history-purity tests can assert on exact token sequences.
type FakeEngine struct {
	// TokenDelay, if non-nil, is invoked between tokens; tests use it to
	// create a window in which a cancel can land mid-stream. A nil func
	// means tokens are sent as fast as the consumer reads them.
	TokenDelay func()
}

// Stream echoes the last user message back as a sequence of whitespace-
// separated word tokens, prefixed with "echo: ".
func (f *FakeEngine) Stream(ctx context.Context, history []Message) (<-chan string, <-chan error) {
	tokens := make(chan string)
	errs := make(chan error, 1)

	var last string
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == RoleUser {
			last = history[i].Content
			break
		}
	}
	words := strings.Fields("echo: " + last)

	go func() {
		defer close(tokens)
		for _, w := range words {
			if f.TokenDelay != nil {
				f.TokenDelay()
			}
			if ctx.Err() != nil {
				errs <- ctx.Err()
				return
			}
			select {
			case tokens <- w + " ":
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
		errs <- nil
	}()

	return tokens, errs
}
