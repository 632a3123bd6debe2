// Copyright (C) 2026 the llmhostd authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package download implements the model-acquisition pipeline: a per-model
// state machine that drives an external transfer tool (or an in-process
// GCS reader) through a catalog entry's ordered mirror methods with retry
// and fallback, emitting a typed event stream to its caller.
package download

// EventType enumerates the download pipeline's wire event types. Exactly
// one of Completed, Cancelled, or Error terminates a given download's
// event stream.
type EventType string

const (
	EventStarted   EventType = "started"
	EventInfo      EventType = "info"
	EventProgress  EventType = "progress"
	EventWarning   EventType = "warning"
	EventCompleted EventType = "completed"
	EventCancelled EventType = "cancelled"
	EventError     EventType = "error"
)

// Event is one frame of a download's event stream.
type Event struct {
	Type       EventType `json:"type"`
	ModelID    string    `json:"model_id,omitempty"`
	ModelName  string    `json:"model_name,omitempty"`
	Message    string    `json:"message,omitempty"`
	Progress   int       `json:"progress,omitempty"`
	SpeedMBps  float64   `json:"speed_mbps,omitempty"`
	ETASeconds int       `json:"eta_seconds,omitempty"`
	Method     string    `json:"method,omitempty"`
}
