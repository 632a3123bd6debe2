// Copyright (C) 2026 the llmhostd authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

/*
Package config provides the service configuration schema and loader for
llmhostd.

# Configuration file

The configuration is stored at ~/.llmhostd/config.yaml and is created
automatically on first run with sensible defaults. It covers the ambient
concerns of the daemon itself (listen address, on-disk paths, concurrency
ceilings, logging, tracing) — it is distinct from the model catalog (see
package catalog), which describes what models are known and how to fetch
them.

# Example

	http_addr: ":8080"
	models_dir: ~/.llmhostd/models
	registry_path: ~/.llmhostd/current_model.json
	catalog_path: ~/.llmhostd/catalog.json
	chat:
	  max_active_prompts: 6
	download:
	  max_concurrent_downloads: 2
*/
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// InferenceConfig points the chat engine at its inference-engine backend.
type InferenceConfig struct {
	// BaseURL is the base URL of an OpenAI-compatible completion server,
	// e.g. http://localhost:8081/v1 for llama.cpp's server binary.
	BaseURL string `yaml:"base_url"`

	// Model is the model name/alias passed to the completion API.
	Model string `yaml:"model"`

	// RequestTimeout bounds a single completion request.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// ChatConfig configures the chat session engine's ambient behavior.
type ChatConfig struct {
	// SystemPreamble seeds every new session's history. Kept configurable
	// rather than a hardcoded literal so operators can localize or rebrand it.
	SystemPreamble string `yaml:"system_preamble"`

	// MaxActivePrompts bounds concurrent in-flight prompts across all
	// sessions (the admission-control ceiling).
	MaxActivePrompts int `yaml:"max_active_prompts"`
}

// DownloadConfig configures the download pipeline's ambient behavior.
type DownloadConfig struct {
	// MaxConcurrentDownloads bounds how many model downloads may run at once.
	MaxConcurrentDownloads int `yaml:"max_concurrent_downloads"`

	// MaxRetriesPerMethod is how many attempts a single transfer method
	// gets before falling back to the next method in the descriptor.
	MaxRetriesPerMethod int `yaml:"max_retries_per_method"`

	// RetryBackoff is the pause between retries of the same method.
	RetryBackoff time.Duration `yaml:"retry_backoff"`

	// AllowedHosts restricts which hosts a wget/curl transfer method may
	// target. These hosts are accepted in addition to the catalog's
	// allowed_domains; when both lists are empty there is no restriction.
	AllowedHosts []string `yaml:"allowed_hosts"`

	// AllowedGCSBuckets restricts which buckets a gcs-kind transfer method
	// may read from. Empty means no restriction.
	AllowedGCSBuckets []string `yaml:"allowed_gcs_buckets"`
}

// Config is the top-level service configuration for llmhostd.
type Config struct {
	// HTTPAddr is the address the HTTP/WebSocket server binds.
	HTTPAddr string `yaml:"http_addr"`

	// ModelsDir is where downloaded model artifacts live.
	ModelsDir string `yaml:"models_dir"`

	// RegistryPath is the active-model-registry record's path.
	RegistryPath string `yaml:"registry_path"`

	// CatalogPath is the model catalog JSON document's path.
	CatalogPath string `yaml:"catalog_path"`

	// LogDir enables file logging when non-empty; stderr logging is always on.
	LogDir string `yaml:"log_dir"`

	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string `yaml:"log_level"`

	// OTELEndpoint is the OTLP/gRPC collector address. Empty disables tracing.
	OTELEndpoint string `yaml:"otel_endpoint"`

	Inference InferenceConfig `yaml:"inference"`
	Chat      ChatConfig      `yaml:"chat"`
	Download  DownloadConfig  `yaml:"download"`
}

const (
	defaultSystemPreamble = "You are a helpful assistant running on a local model server."
)

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:     ":8080",
		ModelsDir:    "~/.llmhostd/models",
		RegistryPath: "~/.llmhostd/current_model.json",
		CatalogPath:  "~/.llmhostd/catalog.json",
		LogDir:       "~/.llmhostd/logs",
		LogLevel:     "info",
		Inference: InferenceConfig{
			BaseURL:        "http://localhost:8081/v1",
			Model:          "default",
			RequestTimeout: 2 * time.Minute,
		},
		Chat: ChatConfig{
			SystemPreamble:   defaultSystemPreamble,
			MaxActivePrompts: 6,
		},
		Download: DownloadConfig{
			MaxConcurrentDownloads: 2,
			MaxRetriesPerMethod:    2,
			RetryBackoff:           2 * time.Second,
		},
	}
}

var (
	// Global is the process-wide configuration singleton.
	Global Config
	once   sync.Once
	loadMu sync.Mutex
)

// Load populates Global from ~/.llmhostd/config.yaml, creating it with
// defaults on first run. Safe to call more than once; only the first call
// does any work.
func Load() error {
	var err error
	once.Do(func() {
		err = loadInternal()
	})
	return err
}

// Path returns the resolved path to the config file.
func Path() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".llmhostd", "config.yaml"), nil
}

func loadInternal() error {
	configPath, err := Path()
	if err != nil {
		return err
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := createDefault(configPath); err != nil {
			return err
		}
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	loadMu.Lock()
	Global = cfg
	loadMu.Unlock()
	return nil
}

func createDefault(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0640)
}

// ExpandPath expands a leading ~ to the user's home directory, mirroring
// the expansion rule applied to LogDir in pkg/logging.
func ExpandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
