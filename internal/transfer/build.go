// Copyright (C) 2026 the llmhostd authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package transfer

import (
	"fmt"

	"github.com/llmhostd/llmhostd/internal/catalog"
	"github.com/llmhostd/llmhostd/pkg/logging"
	"github.com/llmhostd/llmhostd/pkg/validation"
)

// Validate checks a single catalog-declared method against the
// validation rules that must run before any subprocess or network call:
// url shape/host allow-list for wget/curl, object-path shape for gcs.
func Validate(m catalog.TransferMethod, allowedHosts, allowedBuckets []string) error {
	switch m.Kind {
	case catalog.KindWget, catalog.KindCurl:
		return validation.ValidateURL(m.URL, allowedHosts)
	case catalog.KindGCS:
		if err := validation.ValidateGCSObjectPath(m.Object); err != nil {
			return err
		}
		if len(allowedBuckets) == 0 {
			return nil
		}
		for _, b := range allowedBuckets {
			if m.Bucket == b {
				return nil
			}
		}
		return fmt.Errorf("gcs bucket %q is not in the allowed bucket list", m.Bucket)
	default:
		return fmt.Errorf("unknown transfer method kind %q", m.Kind)
	}
}

// Build returns a Fetcher implementation for a validated method.
func Build(m catalog.TransferMethod, expectedSizeGB float64, logger *logging.Logger) (Fetcher, error) {
	switch m.Kind {
	case catalog.KindWget:
		return NewSubprocessFetcher("wget", m.URL, logger), nil
	case catalog.KindCurl:
		return NewSubprocessFetcher("curl", m.URL, logger), nil
	case catalog.KindGCS:
		return NewGCSFetcher(m.Bucket, m.Object, expectedSizeGB), nil
	default:
		return nil, fmt.Errorf("unknown transfer method kind %q", m.Kind)
	}
}
