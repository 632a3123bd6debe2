// Copyright (C) 2026 the llmhostd authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package chat

import (
	"context"
	"sync"

	"github.com/llmhostd/llmhostd/internal/inference"
)

// Session is one open chat connection's state: its ordered history and
// the set of prompts currently generating against it. A prompt's presence
// in activePrompts, keyed by its cancel func, is both the admission
// record and the cooperative-cancellation signal: removing the entry is
// what a cancel does, and the generation loop's periodic membership
// check is what notices.
type Session struct {
	ID string

	mu            sync.Mutex
	history       []inference.Message
	activePrompts map[string]context.CancelFunc
}

func newSession(id, preamble string) *Session {
	return &Session{
		ID:            id,
		history:       []inference.Message{{Role: inference.RoleSystem, Content: preamble}},
		activePrompts: make(map[string]context.CancelFunc),
	}
}

// snapshotHistory returns a copy of the stored history, safe for a caller
// to mutate (e.g. append the current prompt) without racing appendTurn.
func (s *Session) snapshotHistory() []inference.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]inference.Message, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Session) activeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.activePrompts)
}

// register admits promptID, returning false if it is already active.
func (s *Session) register(promptID string, cancel context.CancelFunc) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.activePrompts[promptID]; exists {
		return false
	}
	s.activePrompts[promptID] = cancel
	return true
}

func (s *Session) isActive(promptID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.activePrompts[promptID]
	return ok
}

func (s *Session) unregister(promptID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.activePrompts, promptID)
}

// cancel removes promptID from the active set and invokes its cancel
// func, reporting whether a prompt was actually active.
func (s *Session) cancel(promptID string) bool {
	s.mu.Lock()
	cancelFn, ok := s.activePrompts[promptID]
	if ok {
		delete(s.activePrompts, promptID)
	}
	s.mu.Unlock()
	if ok {
		cancelFn()
	}
	return ok
}

// appendTurn records a completed prompt/response pair. Only called on
// successful completion, never on cancel or error.
func (s *Session) appendTurn(userPrompt, assistantResponse string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history,
		inference.Message{Role: inference.RoleUser, Content: userPrompt},
		inference.Message{Role: inference.RoleAssistant, Content: assistantResponse},
	)
}

// clearHistory resets the session back to a single system preamble. It
// does not touch activePrompts: clear_history must not cancel in-flight
// generations.
func (s *Session) clearHistory(preamble string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = []inference.Message{{Role: inference.RoleSystem, Content: preamble}}
}
