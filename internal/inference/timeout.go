// Copyright (C) 2026 the llmhostd authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package inference

import (
	"context"
	"time"
)

// TimeoutEngine wraps an Engine with a per-call deadline, so a backend
// that stops producing tokens without closing its stream cannot wedge a
// session's generation loop forever.
type TimeoutEngine struct {
	Engine  Engine
	Timeout time.Duration
}

// Stream derives a child context bounded by Timeout and delegates to the
// wrapped engine. The child's cancellation (timeout or parent cancel) is
// what the wrapped engine observes; callers still control its lifetime
// through the ctx they pass in.
func (e TimeoutEngine) Stream(ctx context.Context, history []Message) (<-chan string, <-chan error) {
	if e.Timeout <= 0 {
		return e.Engine.Stream(ctx, history)
	}
	ctx, cancel := context.WithTimeout(ctx, e.Timeout)
	tokens, errs := e.Engine.Stream(ctx, history)

	wrapped := make(chan error, 1)
	go func() {
		defer cancel()
		wrapped <- <-errs
	}()
	return tokens, wrapped
}
