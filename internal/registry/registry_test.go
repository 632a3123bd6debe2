// Copyright (C) 2026 the llmhostd authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package registry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "current_model.json")
	return New(path, nil), path
}

func TestReadCurrent_MissingFileReturnsEmpty(t *testing.T) {
	r, _ := newTestRegistry(t)
	assert.Equal(t, "", r.ReadCurrent())
}

func TestReadCurrent_CorruptFileReturnsEmpty(t *testing.T) {
	r, path := newTestRegistry(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0750))
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0640))
	assert.Equal(t, "", r.ReadCurrent())
}

func TestSetCurrent_CreatesDirectoryAndWrites(t *testing.T) {
	r, path := newTestRegistry(t)
	res, err := r.SetCurrent("llama-3-8b.gguf")
	require.NoError(t, err)
	assert.Equal(t, Changed, res)
	assert.Equal(t, "llama-3-8b.gguf", r.ReadCurrent())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "llama-3-8b.gguf")
	assert.Contains(t, string(data), `"status": "active"`)
}

func TestSetCurrent_WriteSuppression(t *testing.T) {
	r, path := newTestRegistry(t)
	_, err := r.SetCurrent("modelA.gguf")
	require.NoError(t, err)

	info1, err := os.Stat(path)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	res, err := r.SetCurrent("modelA.gguf")
	require.NoError(t, err)
	assert.Equal(t, Unchanged, res)

	info2, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, info1.ModTime(), info2.ModTime(), "second set_current with same name must not rewrite the file")
}

func TestSetCurrent_DifferentNameWrites(t *testing.T) {
	r, _ := newTestRegistry(t)
	_, err := r.SetCurrent("modelA.gguf")
	require.NoError(t, err)

	res, err := r.SetCurrent("modelB.gguf")
	require.NoError(t, err)
	assert.Equal(t, Changed, res)
	assert.Equal(t, "modelB.gguf", r.ReadCurrent())
}

func TestSubscribe_ReceivesPushOnChange(t *testing.T) {
	r, _ := newTestRegistry(t)
	ch := r.Subscribe()

	_, err := r.SetCurrent("modelA.gguf")
	require.NoError(t, err)

	select {
	case name := <-ch:
		assert.Equal(t, "modelA.gguf", name)
	case <-time.After(time.Second):
		t.Fatal("expected a push on Subscribe channel")
	}
}

func TestSetCurrent_NoTmpFileLeftBehind(t *testing.T) {
	r, path := newTestRegistry(t)
	_, err := r.SetCurrent("modelA.gguf")
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
	}
}
