// Copyright (C) 2026 the llmhostd authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package chat implements the chat session engine: a connection-oriented
// protocol that multiplexes concurrent prompts over a single socket,
// streams partial results token by token, and supports cooperative
// out-of-band cancellation without tearing down the session.
package chat

// InboundMessage is one client-to-server frame. Action is the tagged
// variant's discriminant; Prompt and PromptID are populated depending on
// which action carries them.
type InboundMessage struct {
	Action   string `json:"action"`
	Prompt   string `json:"prompt,omitempty"`
	PromptID string `json:"promptId,omitempty"`
}

// OutboundMessage is one server-to-client frame. Type is the tagged
// variant's discriminant.
type OutboundMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	PromptID  string `json:"promptId,omitempty"`
	Token     string `json:"token,omitempty"`
	Complete  bool   `json:"complete,omitempty"`
	Status    string `json:"status,omitempty"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
}
