// Copyright (C) 2026 the llmhostd authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package transfer implements the download pipeline's "bytes over the
// wire" layer: validation of catalog-declared transfer methods, subprocess
// supervision of wget/curl, and an in-process GCS object reader, all
// behind one Fetcher interface so the orchestration loop in package
// download never needs to know which kind of method it is driving.
package transfer

import "context"

// ProgressFunc receives a truncated integer percent (0-100). The fetchers
// in this package call it only when that value changes; the download
// pipeline drops repeated values again itself, so a Fetcher that calls it
// more often causes no duplicate progress events.
type ProgressFunc func(percent int)

// Fetcher performs one mirror/transfer attempt, writing the artifact to
// destPath (a temp path; the caller renames it into place on success).
//
// Fetch must respect ctx cancellation promptly: on cancellation it must
// stop any subprocess or in-flight copy and return an error satisfying
// errors.Is(err, context.Canceled). Any other non-nil error is a
// method-level failure, retried or falling back by the caller.
type Fetcher interface {
	Fetch(ctx context.Context, destPath string, progress ProgressFunc) error
}
