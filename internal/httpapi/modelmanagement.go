// Copyright (C) 2026 the llmhostd authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package httpapi exposes the control plane's two HTTP surfaces: model
// management (switching the active model, listing what's on disk) and
// the download pipeline's REST/SSE surface. Both sit in front of the
// same registry and models directory; the chat protocol itself is a
// WebSocket upgrade handled by package chat.
package httpapi

import (
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/llmhostd/llmhostd/internal/registry"
	"github.com/llmhostd/llmhostd/pkg/logging"
)

var modelFileExtensions = []string{".gguf", ".bin", ".ggml"}

// SwitchModelRequest is the POST /switch-model body.
type SwitchModelRequest struct {
	ModelName string `json:"model_name" binding:"required"`
}

// SwitchModelResponse is the POST /switch-model response.
type SwitchModelResponse struct {
	Status       string `json:"status"`
	CurrentModel string `json:"current_model"`
	Message      string `json:"message,omitempty"`
	NeedsRestart bool   `json:"needs_restart"`
}

// ModelManagement handles the model-management HTTP surface: switching
// and listing models under a read-only models directory.
type ModelManagement struct {
	reg       *registry.Registry
	modelsDir string
	logger    *logging.Logger
}

// NewModelManagement builds a ModelManagement handler set.
func NewModelManagement(reg *registry.Registry, modelsDir string, logger *logging.Logger) *ModelManagement {
	if logger == nil {
		logger = logging.Default()
	}
	return &ModelManagement{reg: reg, modelsDir: modelsDir, logger: logger}
}

// SwitchModel handles POST /switch-model.
func (h *ModelManagement) SwitchModel(c *gin.Context) {
	var req SwitchModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	current := h.reg.ReadCurrent()
	if req.ModelName == current {
		c.JSON(http.StatusOK, SwitchModelResponse{
			Status:       "already_active",
			CurrentModel: current,
			NeedsRestart: false,
		})
		return
	}

	if !h.modelFileExists(req.ModelName) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": fmt.Sprintf("model %q not found under the models directory", req.ModelName),
		})
		return
	}

	if _, err := h.reg.SetCurrent(req.ModelName); err != nil {
		h.logger.Error("failed to persist active-model switch", "model_name", req.ModelName, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record active model"})
		return
	}

	c.JSON(http.StatusOK, SwitchModelResponse{
		Status:       "switched",
		CurrentModel: req.ModelName,
		Message:      fmt.Sprintf("now serving %s", req.ModelName),
		NeedsRestart: false,
	})
}

// modelFileExists checks name as an exact filename under the models
// directory, as name with each of the known model extensions appended,
// or as a subdirectory containing a file with one of those extensions.
func (h *ModelManagement) modelFileExists(name string) bool {
	full := filepath.Join(h.modelsDir, name)
	if info, err := os.Stat(full); err == nil {
		if !info.IsDir() || dirContainsModelFile(full) {
			return true
		}
	}
	for _, ext := range modelFileExtensions {
		if _, err := os.Stat(full + ext); err == nil {
			return true
		}
	}
	return false
}

func dirContainsModelFile(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		for _, ext := range modelFileExtensions {
			if strings.HasSuffix(e.Name(), ext) {
				return true
			}
		}
	}
	return false
}

// AvailableModels handles GET /models/available: a recursive listing of
// every file under the models directory with a recognized extension.
func (h *ModelManagement) AvailableModels(c *gin.Context) {
	var found []string
	filepath.WalkDir(h.modelsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		for _, ext := range modelFileExtensions {
			if !strings.HasSuffix(d.Name(), ext) {
				continue
			}
			found = append(found, filepath.Base(path))
			break
		}
		return nil
	})
	sort.Strings(found)

	c.JSON(http.StatusOK, gin.H{
		"status":           "ok",
		"available_models": found,
		"models_directory": h.modelsDir,
		"readonly":         true,
	})
}
