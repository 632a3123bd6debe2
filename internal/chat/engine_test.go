// Copyright (C) 2026 the llmhostd authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmhostd/llmhostd/internal/inference"
)

func newTestEngine(t *testing.T, factory EngineFactory) *SessionEngine {
	t.Helper()
	return New(Config{
		EngineFactory:    factory,
		SystemPreamble:   "you are a test assistant",
		MaxActivePrompts: 5,
	})
}

func drainOutbound(timeout time.Duration) (chan OutboundMessage, func(OutboundMessage)) {
	ch := make(chan OutboundMessage, 64)
	return ch, func(m OutboundMessage) {
		select {
		case ch <- m:
		default:
		}
	}
}

func TestHandlePrompt_HappyPathAppendsHistory(t *testing.T) {
	engine := newTestEngine(t, func(string) inference.Engine { return &inference.FakeEngine{} })
	sess := engine.NewSession()

	out, send := drainOutbound(time.Second)
	engine.HandlePrompt(context.Background(), sess, "p1", "hello there", send)
	close(out)

	var types []string
	var gotComplete bool
	for m := range out {
		types = append(types, m.Type)
		if m.Type == "complete" {
			gotComplete = true
			assert.Equal(t, "p1", m.PromptID)
			assert.True(t, m.Complete)
		}
	}
	require.True(t, gotComplete)
	assert.Equal(t, "started", types[0])

	history := sess.snapshotHistory()
	require.Len(t, history, 3) // preamble, user, assistant
	assert.Equal(t, inference.RoleUser, history[1].Role)
	assert.Equal(t, "hello there", history[1].Content)
	assert.Equal(t, inference.RoleAssistant, history[2].Role)
}

func TestHandlePrompt_AdmissionCeilingRejectsWithoutRegistering(t *testing.T) {
	engine := New(Config{
		EngineFactory: func(string) inference.Engine {
			return &inference.FakeEngine{TokenDelay: func() { time.Sleep(time.Hour) }}
		},
		SystemPreamble:   "you are a test assistant",
		MaxActivePrompts: 1,
	})
	sess := engine.NewSession()

	out1, send1 := drainOutbound(time.Second)
	_ = out1
	go engine.HandlePrompt(context.Background(), sess, "p1", "hi", send1)

	require.Eventually(t, func() bool { return sess.activeCount() == 1 }, time.Second, time.Millisecond)

	out2, send2 := drainOutbound(time.Second)
	engine.HandlePrompt(context.Background(), sess, "p2", "hi again", send2)
	close(out2)

	msg := <-out2
	assert.Equal(t, "error", msg.Type)
	assert.Equal(t, "p2", msg.PromptID)
	assert.False(t, sess.isActive("p2"))
}

// TestHandlePrompt_CancelLeavesHistoryUntouched covers the chat-cancel
// scenario: after at least one token is observed, a cancel should produce
// a terminal complete event and leave the session history exactly as it
// was before the prompt.
func TestHandlePrompt_CancelLeavesHistoryUntouched(t *testing.T) {
	tokenSeen := make(chan struct{}, 1)
	engine := newTestEngine(t, func(string) inference.Engine {
		return &inference.FakeEngine{TokenDelay: func() {
			select {
			case tokenSeen <- struct{}{}:
			default:
			}
			time.Sleep(30 * time.Millisecond)
		}}
	})
	sess := engine.NewSession()
	before := sess.snapshotHistory()

	out, send := drainOutbound(time.Second)
	done := make(chan struct{})
	go func() {
		engine.HandlePrompt(context.Background(), sess, "p1", "hi there friend", send)
		close(done)
	}()

	<-tokenSeen
	require.True(t, engine.Cancel(sess, "p1"))
	<-done
	close(out)

	var types []string
	for m := range out {
		types = append(types, m.Type)
	}
	assert.Contains(t, types, "token")
	assert.Equal(t, "complete", types[len(types)-1])

	after := sess.snapshotHistory()
	assert.Equal(t, before, after, "history must be byte-identical after a cancelled prompt")
}

func TestClearHistory_DoesNotCancelInFlightPrompt(t *testing.T) {
	releaseToken := make(chan struct{})
	engine := newTestEngine(t, func(string) inference.Engine {
		return &inference.FakeEngine{TokenDelay: func() { <-releaseToken }}
	})
	sess := engine.NewSession()

	out, send := drainOutbound(time.Second)
	done := make(chan struct{})
	go func() {
		engine.HandlePrompt(context.Background(), sess, "p1", "hi", send)
		close(done)
	}()

	require.Eventually(t, func() bool { return sess.activeCount() == 1 }, time.Second, time.Millisecond)
	engine.ClearHistory(sess)
	assert.True(t, sess.isActive("p1"), "clear_history must not cancel an in-flight prompt")

	close(releaseToken)
	<-done
	close(out)
}
