// Copyright (C) 2026 the llmhostd authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultConfig_RoundTripsThroughYAML(t *testing.T) {
	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	require.NoError(t, err)

	var decoded Config
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.Equal(t, cfg.HTTPAddr, decoded.HTTPAddr)
	assert.Equal(t, cfg.Chat.SystemPreamble, decoded.Chat.SystemPreamble)
	assert.Equal(t, cfg.Download.MaxConcurrentDownloads, decoded.Download.MaxConcurrentDownloads)
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".llmhostd/logs"), ExpandPath("~/.llmhostd/logs"))
	assert.Equal(t, "/var/log", ExpandPath("/var/log"))
}
