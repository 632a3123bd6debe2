// Copyright (C) 2026 the llmhostd authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/llmhostd/llmhostd/internal/inference"
	"github.com/llmhostd/llmhostd/internal/observability"
	"github.com/llmhostd/llmhostd/internal/registry"
	"github.com/llmhostd/llmhostd/pkg/logging"
)

const defaultMaxActivePrompts = 5

// EngineFactory resolves the inference.Engine to generate against for
// the named active model. The session engine re-resolves it at the start
// of every prompt rather than caching one Engine value, so that a model
// switch takes effect on the next prompt without disturbing prompts
// already generating.
type EngineFactory func(modelName string) inference.Engine

// Config bundles a SessionEngine's collaborators.
type Config struct {
	EngineFactory    EngineFactory
	Registry         *registry.Registry
	SystemPreamble   string
	MaxActivePrompts int
	Metrics          *observability.ChatMetrics
	Logger           *logging.Logger
}

// SessionEngine is the chat session engine. It owns prompt admission, the
// cooperative-cancellation generation loop, and per-session history, but
// has no knowledge of the transport that carries its messages — callers
// drive it through NewSession/HandlePrompt/Cancel/ClearHistory and render
// the OutboundMessage values it produces however the transport requires.
type SessionEngine struct {
	engineFactory    EngineFactory
	reg              *registry.Registry
	preamble         string
	maxActivePrompts int
	admission        *semaphore.Weighted
	metrics          *observability.ChatMetrics
	logger           *logging.Logger

	mu           sync.Mutex
	currentModel string
}

// New constructs a SessionEngine. If cfg.Registry is non-nil its current
// value seeds the initial model selection.
func New(cfg Config) *SessionEngine {
	if cfg.MaxActivePrompts <= 0 {
		cfg.MaxActivePrompts = defaultMaxActivePrompts
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	e := &SessionEngine{
		engineFactory:    cfg.EngineFactory,
		reg:              cfg.Registry,
		preamble:         cfg.SystemPreamble,
		maxActivePrompts: cfg.MaxActivePrompts,
		admission:        semaphore.NewWeighted(int64(cfg.MaxActivePrompts)),
		metrics:          cfg.Metrics,
		logger:           cfg.Logger,
	}
	if e.reg != nil {
		e.currentModel = e.reg.ReadCurrent()
	}
	return e
}

// Watch subscribes to registry changes so that a model switch is picked
// up by the next prompt on every session, without requiring a restart.
// It runs until done is closed.
func (e *SessionEngine) Watch(done <-chan struct{}) {
	if e.reg == nil {
		return
	}
	ch := e.reg.Subscribe()
	go func() {
		for {
			select {
			case name, ok := <-ch:
				if !ok {
					return
				}
				e.mu.Lock()
				e.currentModel = name
				e.mu.Unlock()
			case <-done:
				return
			}
		}
	}()
}

func (e *SessionEngine) resolveEngine() inference.Engine {
	if e.engineFactory == nil {
		return nil
	}
	e.mu.Lock()
	model := e.currentModel
	e.mu.Unlock()
	return e.engineFactory(model)
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// NewSession allocates a fresh session with a new session id and a
// history containing only the system preamble.
func (e *SessionEngine) NewSession() *Session {
	sess := newSession(shortID(), e.preamble)
	if e.metrics != nil {
		e.metrics.SessionsTotal.Inc()
		e.metrics.ActiveSessions.Inc()
	}
	return sess
}

// CloseSession releases session-scoped metrics. It does not cancel any
// still-registered prompts; callers are expected to have already torn
// down the connection that owned them.
func (e *SessionEngine) CloseSession(sess *Session) {
	if e.metrics != nil {
		e.metrics.ActiveSessions.Dec()
	}
}

// Cancel requests that promptID's generation stop. Returns false if no
// such prompt is currently active on sess.
func (e *SessionEngine) Cancel(sess *Session, promptID string) bool {
	return sess.cancel(promptID)
}

// ClearHistory resets sess's history to the configured system preamble.
// In-flight prompts are left running, per the "clear_history does not
// cancel in-flight prompts" rule.
func (e *SessionEngine) ClearHistory(sess *Session) {
	sess.clearHistory(e.preamble)
}

// HandlePrompt admits, runs, and resolves one prompt, invoking send for
// every outbound message the prompt's lifecycle produces: exactly one
// started (on admission), zero or more token, and exactly one complete
// or error. It returns once the prompt reaches a terminal state, so
// callers wanting concurrent prompts on one session invoke it from their
// own goroutine per prompt.
func (e *SessionEngine) HandlePrompt(ctx context.Context, sess *Session, promptID, promptText string, send func(OutboundMessage)) {
	if !e.admission.TryAcquire(1) {
		send(OutboundMessage{Type: "error", PromptID: promptID, Error: "Too many active prompts, please wait for one to finish"})
		return
	}
	defer e.admission.Release(1)

	genCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if !sess.register(promptID, cancel) {
		send(OutboundMessage{Type: "error", PromptID: promptID, Error: fmt.Sprintf("prompt id %q is already active", promptID)})
		return
	}
	if e.metrics != nil {
		e.metrics.ActivePrompts.Inc()
		defer e.metrics.ActivePrompts.Dec()
	}

	start := time.Now()
	send(OutboundMessage{Type: "started", SessionID: sess.ID, PromptID: promptID, Status: "started"})

	eng := e.resolveEngine()
	if eng == nil {
		sess.unregister(promptID)
		send(OutboundMessage{Type: "error", PromptID: promptID, Error: "no inference engine available"})
		e.observePrompt("error", start)
		return
	}

	history := append(sess.snapshotHistory(), inference.Message{Role: inference.RoleUser, Content: promptText})
	tokens, errs := eng.Stream(genCtx, history)

	var accumulated strings.Builder
	var genErr error

generation:
	for {
		select {
		case tok, ok := <-tokens:
			if !ok {
				tokens = nil
				continue
			}
			if !sess.isActive(promptID) {
				break generation
			}
			accumulated.WriteString(tok)
			if e.metrics != nil {
				e.metrics.TokensTotal.Inc()
			}
			send(OutboundMessage{Type: "token", PromptID: promptID, Token: tok})
		case err, ok := <-errs:
			if !ok {
				break generation
			}
			genErr = err
			break generation
		}
	}

	wasActive := sess.isActive(promptID)
	sess.unregister(promptID)

	outcome := "completed"
	switch {
	case !wasActive:
		outcome = "cancelled"
	case genErr != nil && !errors.Is(genErr, context.Canceled):
		send(OutboundMessage{Type: "error", PromptID: promptID, Error: genErr.Error()})
		e.observePrompt("error", start)
		return
	default:
		sess.appendTurn(promptText, accumulated.String())
	}

	send(OutboundMessage{Type: "complete", PromptID: promptID, Complete: true})
	e.observePrompt(outcome, start)
}

func (e *SessionEngine) observePrompt(outcome string, start time.Time) {
	if e.metrics == nil {
		return
	}
	e.metrics.PromptsTotal.WithLabelValues(outcome).Inc()
	e.metrics.PromptDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}
