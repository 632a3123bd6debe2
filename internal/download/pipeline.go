// Copyright (C) 2026 the llmhostd authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/llmhostd/llmhostd/internal/catalog"
	"github.com/llmhostd/llmhostd/internal/observability"
	"github.com/llmhostd/llmhostd/internal/transfer"
	"github.com/llmhostd/llmhostd/pkg/logging"
	"github.com/llmhostd/llmhostd/pkg/validation"
)

// alreadyActiveMessage mirrors the original pipeline's localized wording;
// testable properties only require an `error` event with non-empty
// message, but keeping the exact string preserves a reference a caller
// migrating off the Python service might already be matching against.
const alreadyActiveMessage = "Download já em andamento"

// tooManyConcurrentMessage is returned when the concurrent-download ceiling
// (Config.MaxConcurrentDownloads) is already saturated by other models.
const tooManyConcurrentMessage = "Too many concurrent downloads, please wait for one to finish"

// session is the in-memory record of one active download. A model_id may
// have at most one session at a time (enforced by Pipeline.sessions).
type session struct {
	modelID    string
	cancel     context.CancelFunc
	progress   atomic.Int32
	method     atomic.Value // string
	startTime  time.Time
}

// Pipeline drives catalog-declared transfer methods for each model,
// tracking at most one in-flight session per model id.
type Pipeline struct {
	cat       *catalog.Catalog
	modelsDir string
	tempDir   string

	maxRetries     int
	retryBackoff   time.Duration
	allowedHosts   []string
	allowedBuckets []string
	concurrency    *semaphore.Weighted

	metrics *observability.DownloadMetrics
	logger  *logging.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

// Config bundles the tunables Pipeline needs beyond the catalog itself.
type Config struct {
	ModelsDir              string
	TempDir                string
	MaxRetries             int
	RetryBackoff           time.Duration
	AllowedHosts           []string
	AllowedBuckets         []string
	MaxConcurrentDownloads int
	Metrics                *observability.DownloadMetrics
	Logger                 *logging.Logger
}

// New constructs a Pipeline over cat using cfg's tunables.
func New(cat *catalog.Catalog, cfg Config) *Pipeline {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 2 * time.Second
	}
	if cfg.MaxConcurrentDownloads <= 0 {
		cfg.MaxConcurrentDownloads = 2
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Pipeline{
		cat:            cat,
		modelsDir:      cfg.ModelsDir,
		tempDir:        cfg.TempDir,
		maxRetries:     cfg.MaxRetries,
		retryBackoff:   cfg.RetryBackoff,
		allowedHosts:   append(append([]string(nil), cfg.AllowedHosts...), cat.AllowedDomains...),
		allowedBuckets: cfg.AllowedBuckets,
		concurrency:    semaphore.NewWeighted(int64(cfg.MaxConcurrentDownloads)),
		metrics:        cfg.Metrics,
		logger:         cfg.Logger,
		sessions:       make(map[string]*session),
	}
}

func (p *Pipeline) artifactPath(m catalog.ModelDescriptor) string {
	return filepath.Join(p.modelsDir, m.Filename)
}

func (p *Pipeline) tempPath(m catalog.ModelDescriptor) string {
	return filepath.Join(p.tempDir, m.Filename+".tmp")
}

func (p *Pipeline) artifactExists(m catalog.ModelDescriptor) bool {
	_, err := os.Stat(p.artifactPath(m))
	return err == nil
}

// List reports the status of every catalog entry.
func (p *Pipeline) List() []ModelStatus {
	all := p.cat.All()
	out := make([]ModelStatus, 0, len(all))
	for _, m := range all {
		out = append(out, p.statusFor(m))
	}
	return out
}

// Status reports the status of a single catalog entry.
func (p *Pipeline) Status(id string) (ModelStatus, error) {
	m, ok := p.cat.Get(id)
	if !ok {
		return ModelStatus{}, fmt.Errorf("unknown model id %q", id)
	}
	return p.statusFor(m), nil
}

func (p *Pipeline) statusFor(m catalog.ModelDescriptor) ModelStatus {
	st := ModelStatus{
		ID:           m.ID,
		Name:         m.DisplayName,
		Filename:     m.Filename,
		SizeGB:       m.ExpectedSizeGB,
		IsDownloaded: p.artifactExists(m),
	}
	p.mu.Lock()
	sess, active := p.sessions[m.ID]
	p.mu.Unlock()
	if active {
		st.IsDownloading = true
		st.Progress = int(sess.progress.Load())
	}
	if st.IsDownloaded {
		st.FilePath = p.artifactPath(m)
	}
	return st
}

// ActiveCount reports how many downloads are currently in flight.
func (p *Pipeline) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

// Cancel signals the in-flight session for id to stop. Returns
// CancelNotActive if no session is running.
func (p *Pipeline) Cancel(id string) CancelResult {
	p.mu.Lock()
	sess, ok := p.sessions[id]
	p.mu.Unlock()
	if !ok {
		return CancelNotActive
	}
	sess.cancel()
	return CancelAccepted
}

// Download starts (or rejects, if one is already running) a download of
// id, returning a channel of events. The channel is closed after exactly
// one of {completed, cancelled, error} is sent.
func (p *Pipeline) Download(ctx context.Context, id string) (<-chan Event, error) {
	if err := validation.ValidateModelID(id); err != nil {
		return nil, err
	}
	m, ok := p.cat.Get(id)
	if !ok {
		return nil, fmt.Errorf("unknown model id %q", id)
	}

	events := make(chan Event, 8)

	if p.artifactExists(m) {
		go func() {
			defer close(events)
			events <- Event{Type: EventCompleted, ModelID: m.ID, ModelName: m.DisplayName, Progress: 100}
		}()
		return events, nil
	}

	p.mu.Lock()
	if _, active := p.sessions[id]; active {
		p.mu.Unlock()
		go func() {
			defer close(events)
			events <- Event{Type: EventError, ModelID: id, Message: alreadyActiveMessage}
		}()
		return events, nil
	}
	dlCtx, cancel := context.WithCancel(ctx)
	sess := &session{modelID: id, cancel: cancel, startTime: time.Now()}
	p.sessions[id] = sess
	p.mu.Unlock()

	if !p.concurrency.TryAcquire(1) {
		p.mu.Lock()
		delete(p.sessions, id)
		p.mu.Unlock()
		go func() {
			defer close(events)
			events <- Event{Type: EventError, ModelID: id, Message: tooManyConcurrentMessage}
		}()
		return events, nil
	}

	if p.metrics != nil {
		p.metrics.StartsTotal.WithLabelValues(id).Inc()
		p.metrics.ActiveDownloads.Inc()
	}

	go p.run(dlCtx, sess, m, events)
	return events, nil
}

func (p *Pipeline) run(ctx context.Context, sess *session, m catalog.ModelDescriptor, events chan<- Event) {
	defer close(events)
	defer func() {
		p.mu.Lock()
		delete(p.sessions, m.ID)
		p.mu.Unlock()
		p.concurrency.Release(1)
		if p.metrics != nil {
			p.metrics.ActiveDownloads.Dec()
		}
	}()

	events <- Event{Type: EventStarted, ModelID: m.ID, ModelName: m.DisplayName}

	outcome := "error"
	defer func() {
		p.logger.Info("download finished", "model_id", m.ID, "outcome", outcome)
		if p.metrics != nil {
			p.metrics.OutcomesTotal.WithLabelValues(m.ID, outcome).Inc()
			if outcome == "completed" {
				p.metrics.TimeToCompletion.WithLabelValues(m.ID).Observe(time.Since(sess.startTime).Seconds())
			}
		}
	}()

	tmpPath := p.tempPath(m)
	finalPath := p.artifactPath(m)
	if err := os.MkdirAll(p.tempDir, 0750); err != nil {
		events <- Event{Type: EventError, ModelID: m.ID, Message: fmt.Sprintf("create temp directory: %v", err)}
		return
	}
	if err := os.MkdirAll(p.modelsDir, 0750); err != nil {
		events <- Event{Type: EventError, ModelID: m.ID, Message: fmt.Sprintf("create models directory: %v", err)}
		return
	}

	for _, method := range m.Methods {
		methodName := string(method.Kind)
		sess.method.Store(methodName)

		if err := validation.ValidateFilename(m.Filename); err != nil {
			events <- Event{Type: EventError, ModelID: m.ID, Message: fmt.Sprintf("invalid filename: %v", err)}
			return
		}
		if err := transfer.Validate(method, p.allowedHosts, p.allowedBuckets); err != nil {
			p.logger.Debug("transfer method rejected", "model_id", m.ID, "method", methodName, "error", err)
			events <- Event{Type: EventWarning, ModelID: m.ID, Message: fmt.Sprintf("method %s rejected: %v", methodName, err)}
			continue
		}

		fetcher, err := transfer.Build(method, m.ExpectedSizeGB, p.logger)
		if err != nil {
			events <- Event{Type: EventWarning, ModelID: m.ID, Message: fmt.Sprintf("method %s unavailable: %v", methodName, err)}
			continue
		}

		events <- Event{Type: EventInfo, ModelID: m.ID, Message: fmt.Sprintf("trying method %s", methodName)}

		succeeded, cancelled := p.attemptMethod(ctx, sess, m, methodName, fetcher, tmpPath, events)
		if cancelled {
			go p.cleanupTemp(tmpPath)
			events <- Event{Type: EventCancelled, ModelID: m.ID, Message: "download cancelled"}
			outcome = "cancelled"
			return
		}
		if succeeded {
			if err := os.Rename(tmpPath, finalPath); err != nil {
				events <- Event{Type: EventError, ModelID: m.ID, Message: fmt.Sprintf("rename artifact into place: %v", err)}
				return
			}
			events <- Event{Type: EventCompleted, ModelID: m.ID, ModelName: m.DisplayName, Progress: 100, Method: methodName}
			outcome = "completed"
			return
		}
		events <- Event{Type: EventWarning, ModelID: m.ID, Message: fmt.Sprintf("method %s failed after %d attempts", methodName, p.maxRetries)}
	}

	events <- Event{Type: EventError, ModelID: m.ID, Message: "all methods failed"}
}

// attemptMethod runs up to p.maxRetries attempts of one method, returning
// (succeeded, cancelled). A false/false result means every retry failed
// for a transient reason and the caller should fall back to the next
// method.
func (p *Pipeline) attemptMethod(ctx context.Context, sess *session, m catalog.ModelDescriptor, methodName string, fetcher transfer.Fetcher, tmpPath string, events chan<- Event) (succeeded, cancelled bool) {
	start := time.Now()
	lastEmitted := -1

	for retry := 0; retry < p.maxRetries; retry++ {
		if ctx.Err() != nil {
			return false, true
		}
		if retry > 0 {
			events <- Event{Type: EventInfo, ModelID: m.ID, Message: fmt.Sprintf("attempt %d/%d", retry+1, p.maxRetries)}
			select {
			case <-time.After(p.retryBackoff):
			case <-ctx.Done():
				return false, true
			}
		}

		start = time.Now()
		err := fetcher.Fetch(ctx, tmpPath, func(pct int) {
			if pct == lastEmitted {
				return
			}
			lastEmitted = pct
			sess.progress.Store(int32(pct))
			elapsed := time.Since(start).Seconds()
			speed, eta := computeRate(pct, m.ExpectedSizeGB, elapsed)
			events <- Event{
				Type:       EventProgress,
				ModelID:    m.ID,
				Progress:   pct,
				SpeedMBps:  speed,
				ETASeconds: eta,
				Method:     methodName,
			}
		})

		if err == nil {
			return true, false
		}
		if errors.Is(err, context.Canceled) {
			return false, true
		}

		os.Remove(tmpPath)
		p.logger.Warn("transfer attempt failed", "model_id", m.ID, "method", methodName, "retry", retry, "error", err)
	}
	return false, false
}

// computeRate derives throughput and ETA from a percent-complete reading,
// matching the formula: speed = (pct/100 * size_gb * 1024) MiB / elapsed;
// eta = remaining_MiB / speed, floored to seconds. Both are zero if
// elapsed or the rate itself is zero, avoiding a division by zero.
func computeRate(pct int, expectedSizeGB, elapsedSeconds float64) (speedMBps float64, etaSeconds int) {
	if elapsedSeconds <= 0 {
		return 0, 0
	}
	totalMiB := expectedSizeGB * 1024
	downloadedMiB := totalMiB * float64(pct) / 100
	speed := downloadedMiB / elapsedSeconds
	if speed <= 0 {
		return 0, 0
	}
	remainingMiB := totalMiB - downloadedMiB
	eta := int(remainingMiB / speed)
	if eta < 0 {
		eta = 0
	}
	return speed, eta
}

// cleanupTemp prunes the method's temp file after a 1-second grace,
// matching the cooperative-cancellation cleanup window: the fetcher's
// process may still be mid-write when cancellation is first observed.
func (p *Pipeline) cleanupTemp(tmpPath string) {
	time.Sleep(1 * time.Second)
	if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
		p.logger.Warn("failed to clean up temp file after cancellation", "path", tmpPath, "error", err)
	}
}
