// Copyright (C) 2026 the llmhostd authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// Handler upgrades the request to a WebSocket connection and drives it
// through engine for the connection's lifetime: one Session is allocated
// per connection, a ready frame is sent immediately, and every inbound
// frame is dispatched by its action until the socket closes.
func Handler(engine *SessionEngine) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			engine.logger.Warn("chat websocket upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		sess := engine.NewSession()
		defer engine.CloseSession(sess)

		var writeMu sync.Mutex
		send := func(msg OutboundMessage) {
			writeMu.Lock()
			defer writeMu.Unlock()
			if err := conn.WriteJSON(msg); err != nil {
				engine.logger.Warn("chat websocket write failed", "session_id", sess.ID, "error", err)
			}
		}

		send(OutboundMessage{Type: "ready", SessionID: sess.ID, Message: "connected"})

		ctx, cancel := context.WithCancel(c.Request.Context())

		var wg sync.WaitGroup
		// wg.Wait must not run until every in-flight HandlePrompt has been
		// told to stop, so this is deferred before cancel: LIFO means
		// cancel() fires first on return, interrupting generation promptly
		// instead of waiting it out.
		defer wg.Wait()
		defer cancel()

		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				engine.logger.Info("chat connection closed", "session_id", sess.ID, "error", err)
				return
			}

			var in InboundMessage
			if err := json.Unmarshal(raw, &in); err != nil {
				send(OutboundMessage{Type: "error", Error: "malformed message: " + err.Error()})
				continue
			}

			switch in.Action {
			case "prompt":
				if in.Prompt == "" {
					send(OutboundMessage{Type: "error", PromptID: in.PromptID, Error: "prompt must not be empty"})
					continue
				}
				promptID := in.PromptID
				if promptID == "" {
					promptID = shortID()
				}
				wg.Add(1)
				go func() {
					defer wg.Done()
					engine.HandlePrompt(ctx, sess, promptID, in.Prompt, send)
				}()
			case "cancel":
				if !engine.Cancel(sess, in.PromptID) {
					send(OutboundMessage{Type: "error", PromptID: in.PromptID, Error: "no active prompt with that id"})
				}
			case "clear_history":
				engine.ClearHistory(sess)
				send(OutboundMessage{Type: "memory_cleared", SessionID: sess.ID})
			default:
				send(OutboundMessage{Type: "error", Error: "Unknown action: " + in.Action})
			}
		}
	}
}
