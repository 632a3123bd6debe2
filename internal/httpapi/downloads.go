// Copyright (C) 2026 the llmhostd authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/llmhostd/llmhostd/internal/download"
	"github.com/llmhostd/llmhostd/pkg/logging"
)

// Downloads handles the download pipeline's HTTP surface.
type Downloads struct {
	pipeline *download.Pipeline
	logger   *logging.Logger
}

// NewDownloads builds a Downloads handler set over pipeline.
func NewDownloads(pipeline *download.Pipeline, logger *logging.Logger) *Downloads {
	if logger == nil {
		logger = logging.Default()
	}
	return &Downloads{pipeline: pipeline, logger: logger}
}

// List handles GET /api/models.
func (h *Downloads) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "models": h.pipeline.List()})
}

// Status handles GET /api/models/:id/status.
func (h *Downloads) Status(c *gin.Context) {
	st, err := h.pipeline.Status(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": err.Error()})
		return
	}

	var filePath any
	if st.FilePath != "" {
		filePath = st.FilePath
	}
	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"id":             st.ID,
		"name":           st.Name,
		"is_downloaded":  st.IsDownloaded,
		"is_downloading": st.IsDownloading,
		"progress":       st.Progress,
		"file_path":      filePath,
	})
}

// Stream handles GET /api/models/:id/download: an SSE stream of one
// event per frame from the pipeline's event channel, closed when the
// pipeline closes its channel (i.e. on the stream's terminal event).
func (h *Downloads) Stream(c *gin.Context) {
	events, err := h.pipeline.Download(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "streaming unsupported"})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			h.logger.Warn("failed to marshal download event", "error", err)
			continue
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
			return
		}
		flusher.Flush()
	}
}

// Cancel handles DELETE /api/models/:id/download.
func (h *Downloads) Cancel(c *gin.Context) {
	if h.pipeline.Cancel(c.Param("id")) == download.CancelAccepted {
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "cancellation requested"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": false, "message": "no active download for that id"})
}
