// Copyright (C) 2026 the llmhostd authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package transfer

import (
	"context"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"
)

// GCSFetcher streams a single object out of a Cloud Storage bucket. Unlike
// SubprocessFetcher there is no external process to supervise, but the
// Fetcher contract (ctx-cancellable, percent progress) is identical, so
// the download orchestration loop treats a gcs-kind method exactly like a
// wget/curl one.
type GCSFetcher struct {
	Bucket string
	Object string

	// ExpectedSizeGB seeds the percent estimate when the object's size
	// can't be read up front; 0 means percent stays at 0 until the object
	// size is known.
	ExpectedSizeGB float64

	// newClient is overridable in tests to avoid real GCS credentials.
	newClient func(ctx context.Context) (*storage.Client, error)
}

// NewGCSFetcher returns a Fetcher for the given bucket/object.
func NewGCSFetcher(bucket, object string, expectedSizeGB float64) *GCSFetcher {
	return &GCSFetcher{
		Bucket:         bucket,
		Object:         object,
		ExpectedSizeGB: expectedSizeGB,
		newClient: func(ctx context.Context) (*storage.Client, error) {
			return storage.NewClient(ctx)
		},
	}
}

// progressCounter wraps an io.Writer, reporting percent-complete as bytes
// are written, gated to whole-point deltas the same way subprocess
// percent-parsing is.
type progressCounter struct {
	w            io.Writer
	written      int64
	total        int64
	lastReported int
	progress     ProgressFunc
}

func (p *progressCounter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.written += int64(n)
	if p.total > 0 {
		pct := int(float64(p.written) / float64(p.total) * 100)
		if pct > 100 {
			pct = 100
		}
		if pct != p.lastReported {
			p.lastReported = pct
			p.progress(pct)
		}
	}
	return n, err
}

// Fetch downloads the object to destPath, reporting progress as a
// fraction of the object's reported size (falling back to ExpectedSizeGB
// when the object's attributes are unavailable).
func (f *GCSFetcher) Fetch(ctx context.Context, destPath string, progress ProgressFunc) error {
	client, err := f.newClient(ctx)
	if err != nil {
		return fmt.Errorf("create gcs client: %w", err)
	}
	defer client.Close()

	obj := client.Bucket(f.Bucket).Object(f.Object)

	total := int64(f.ExpectedSizeGB * 1024 * 1024 * 1024)
	if attrs, err := obj.Attrs(ctx); err == nil {
		total = attrs.Size
	}

	reader, err := obj.NewReader(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("fetch cancelled: %w", context.Canceled)
		}
		return fmt.Errorf("open gcs object reader: %w", err)
	}
	defer reader.Close()

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create destination file: %w", err)
	}
	defer out.Close()

	counter := &progressCounter{w: out, total: total, lastReported: -1, progress: progress}
	if _, err := io.Copy(counter, readerWithContext{ctx: ctx, r: reader}); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("fetch cancelled: %w", context.Canceled)
		}
		return fmt.Errorf("copy gcs object: %w", err)
	}
	progress(100)
	return nil
}

// readerWithContext aborts a Read once ctx is done, giving io.Copy a
// cancellation point without needing to poll on a timer the way the
// subprocess fetcher's stderr loop does — a plain io.Reader has no
// natural suspension point otherwise.
type readerWithContext struct {
	ctx context.Context
	r   io.Reader
}

func (r readerWithContext) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}
