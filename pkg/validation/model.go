// Copyright (C) 2026 the llmhostd authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation holds the input-validation rules shared by the
// download pipeline and package transfer: model ids, transfer URLs, and
// destination filenames all pass through here before they ever
// reach a filesystem path or a subprocess argv.
package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// modelIDPattern matches the broader [A-Za-z0-9._-] charset chosen for
// model identifiers: unlike a strict ticker symbol, model ids routinely
// carry mixed-case vendor/repo segments (e.g. "TheBloke.Llama-3-8B").
var modelIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// maxModelIDLen is the inclusive ceiling on a model id's length.
const maxModelIDLen = 100

// ValidateModelID rejects empty ids, ids over maxModelIDLen, ids outside the
// allowed charset, and ids containing ".." (path traversal).
func ValidateModelID(id string) error {
	if id == "" {
		return fmt.Errorf("model id must not be empty")
	}
	if len(id) > maxModelIDLen {
		return fmt.Errorf("model id exceeds %d characters", maxModelIDLen)
	}
	if strings.Contains(id, "..") {
		return fmt.Errorf("model id must not contain '..'")
	}
	if !modelIDPattern.MatchString(id) {
		return fmt.Errorf("model id contains characters outside [A-Za-z0-9._-]")
	}
	return nil
}

// maxFilenameLen is the exclusive ceiling on a filename's length: a valid
// filename is strictly shorter than this.
const maxFilenameLen = 100

// ggufSuffix is the only destination filename suffix a catalog entry may
// declare.
const ggufSuffix = ".gguf"

// ValidateFilename rejects path separators, "..", anything not strictly
// shorter than maxFilenameLen, and anything not ending in ".gguf", so a
// validated filename is always safe to join onto the models directory
// without escaping it and always names a model artifact.
func ValidateFilename(name string) error {
	if name == "" {
		return fmt.Errorf("filename must not be empty")
	}
	if len(name) >= maxFilenameLen {
		return fmt.Errorf("filename must be shorter than %d characters", maxFilenameLen)
	}
	if strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("filename must not contain path separators")
	}
	if strings.Contains(name, "..") {
		return fmt.Errorf("filename must not contain '..'")
	}
	if !strings.HasSuffix(name, ggufSuffix) {
		return fmt.Errorf("filename must end in %q", ggufSuffix)
	}
	return nil
}

// shellMetacharacters are rejected outright in any URL destined for a
// subprocess argv, even though exec.Command never invokes a shell: the
// command builder still refuses to hand a fetcher a URL that looks like
// an injection attempt, defense that costs nothing to keep.
const shellMetacharacters = ";&|`$()<>\n"

// ValidateURL requires an https URL with a non-empty host and rejects
// shell metacharacters and whitespace anywhere in the raw string.
func ValidateURL(rawURL string, allowedHosts []string) error {
	if rawURL == "" {
		return fmt.Errorf("url must not be empty")
	}
	if strings.ContainsAny(rawURL, shellMetacharacters) {
		return fmt.Errorf("url contains disallowed characters")
	}
	if strings.ContainsAny(rawURL, " \t") {
		return fmt.Errorf("url must not contain whitespace")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("url is not parseable: %w", err)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("url scheme must be https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("url must have a host")
	}
	if len(allowedHosts) == 0 {
		return nil
	}
	for _, host := range allowedHosts {
		if u.Hostname() == host || strings.HasSuffix(u.Hostname(), "."+host) {
			return nil
		}
	}
	return fmt.Errorf("url host %q is not in the allowed host list", u.Hostname())
}

// ValidateGCSObjectPath rejects path traversal and leading slashes in a
// bucket object key, mirroring the filesystem-path checks applied to
// subprocess-fetched artifacts even though GCS keys aren't filesystem
// paths: a traversal-looking key is still a smell worth rejecting.
func ValidateGCSObjectPath(object string) error {
	if object == "" {
		return fmt.Errorf("object path must not be empty")
	}
	if strings.Contains(object, "..") {
		return fmt.Errorf("object path must not contain '..'")
	}
	if strings.HasPrefix(object, "/") {
		return fmt.Errorf("object path must not be absolute")
	}
	return nil
}
