// Copyright (C) 2026 the llmhostd authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCatalog = `{
  "download_path": "/tmp/models",
  "temp_path": "/tmp/models/.tmp",
  "log_path": "/tmp/models/log",
  "allowed_domains": ["huggingface.co"],
  "models": [
    {
      "id": "llama-3-8b",
      "display_name": "Llama 3 8B",
      "filename": "llama-3-8b.gguf",
      "expected_size_gb": 5.2,
      "methods": [
        {"kind": "wget", "url": "https://huggingface.co/llama-3-8b.gguf"},
        {"kind": "curl", "url": "https://mirror.huggingface.co/llama-3-8b.gguf"}
      ]
    }
  ]
}`

func writeCatalog(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestLoad_Valid(t *testing.T) {
	path := writeCatalog(t, sampleCatalog)
	c, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, c.All(), 1)

	m, ok := c.Get("llama-3-8b")
	require.True(t, ok)
	assert.Equal(t, "llama-3-8b.gguf", m.Filename)
	assert.Len(t, m.Methods, 2)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/catalog.json")
	assert.Error(t, err)
}

func TestLoad_DuplicateID(t *testing.T) {
	dup := `{"models":[
		{"id":"a","filename":"a.gguf","methods":[{"kind":"wget","url":"https://x.com/a"}]},
		{"id":"a","filename":"a.gguf","methods":[{"kind":"wget","url":"https://x.com/a"}]}
	]}`
	path := writeCatalog(t, dup)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_InvalidFilename(t *testing.T) {
	bad := `{"models":[{"id":"a","filename":"a.bin","methods":[{"kind":"wget","url":"https://x.com/a"}]}]}`
	path := writeCatalog(t, bad)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_NoMethods(t *testing.T) {
	bad := `{"models":[{"id":"a","filename":"a.gguf","methods":[]}]}`
	path := writeCatalog(t, bad)
	_, err := Load(path)
	assert.Error(t, err)
}
