// Copyright (C) 2026 the llmhostd authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package catalog loads the immutable model catalog: the document that
// describes which models are known to the download pipeline and how to
// fetch each one. It is a configuration artifact, loaded once at startup;
// a missing catalog file is a fatal startup error.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
)

// TransferKind enumerates the supported transfer-method shapes.
type TransferKind string

const (
	KindWget TransferKind = "wget"
	KindCurl TransferKind = "curl"
	KindGCS  TransferKind = "gcs"
)

// TransferMethod is one mirror/transfer approach for a model. Order within
// a ModelDescriptor's Methods is the fallback priority.
type TransferMethod struct {
	Kind TransferKind `json:"kind"`

	// URL is required for wget/curl kinds; must be https with a host that
	// suffix-matches the catalog's AllowedDomains.
	URL string `json:"url,omitempty"`

	// Bucket and Object are required for the gcs kind.
	Bucket string `json:"bucket,omitempty"`
	Object string `json:"object,omitempty"`
}

var modelIDPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// ModelDescriptor is a catalog entry: read-only at runtime.
type ModelDescriptor struct {
	ID             string           `json:"id"`
	DisplayName    string           `json:"display_name"`
	Filename       string           `json:"filename"`
	ExpectedSizeGB float64          `json:"expected_size_gb"`
	Methods        []TransferMethod `json:"methods"`
}

// Validate checks the static shape rules from the catalog schema: id
// charset/length, filename shape, and that methods is non-empty.
func (d ModelDescriptor) Validate() error {
	if !modelIDPattern.MatchString(d.ID) || len(d.ID) > 50 {
		return fmt.Errorf("catalog entry %q: id must match ^[a-z0-9-]+$ and be <=50 chars", d.ID)
	}
	if len(d.Filename) == 0 || len(d.Filename) > 100 {
		return fmt.Errorf("catalog entry %q: filename length must be in (0,100]", d.ID)
	}
	if len(d.Filename) < 5 || d.Filename[len(d.Filename)-5:] != ".gguf" {
		return fmt.Errorf("catalog entry %q: filename must end in .gguf", d.ID)
	}
	if len(d.Methods) == 0 {
		return fmt.Errorf("catalog entry %q: must declare at least one transfer method", d.ID)
	}
	return nil
}

// Catalog is the parsed, immutable catalog document.
type Catalog struct {
	DownloadPath   string            `json:"download_path"`
	TempPath       string            `json:"temp_path"`
	LogPath        string            `json:"log_path"`
	AllowedDomains []string          `json:"allowed_domains"`
	Models         []ModelDescriptor `json:"models"`

	byID map[string]ModelDescriptor
}

// Load reads and parses the catalog document at path. A missing or
// unparseable file, or one that fails per-entry validation, is a fatal
// startup condition by contract — callers should treat a non-nil error
// here as fatal.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	var c Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	c.byID = make(map[string]ModelDescriptor, len(c.Models))
	for _, m := range c.Models {
		if err := m.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.byID[m.ID]; dup {
			return nil, fmt.Errorf("catalog has duplicate model id %q", m.ID)
		}
		c.byID[m.ID] = m
	}
	return &c, nil
}

// Get looks up a descriptor by id.
func (c *Catalog) Get(id string) (ModelDescriptor, bool) {
	m, ok := c.byID[id]
	return m, ok
}

// All returns every descriptor in catalog order.
func (c *Catalog) All() []ModelDescriptor {
	return c.Models
}
