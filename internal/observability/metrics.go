// Copyright (C) 2026 the llmhostd authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability holds the Prometheus metrics exported by the
// serving host's control plane at /metrics.
package observability

import "github.com/prometheus/client_golang/prometheus"

const (
	metricsNamespace  = "llmhostd"
	downloadSubsystem = "download"
	chatSubsystem     = "chat"
)

// DownloadMetrics tracks the download pipeline's activity.
type DownloadMetrics struct {
	StartsTotal      *prometheus.CounterVec
	OutcomesTotal    *prometheus.CounterVec
	ActiveDownloads  prometheus.Gauge
	TimeToCompletion *prometheus.HistogramVec
}

// NewDownloadMetrics registers and returns the download metric set on reg.
func NewDownloadMetrics(reg prometheus.Registerer) *DownloadMetrics {
	m := &DownloadMetrics{
		StartsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: downloadSubsystem,
			Name:      "starts_total",
			Help:      "Total number of download() calls that were admitted.",
		}, []string{"model_id"}),
		OutcomesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: downloadSubsystem,
			Name:      "outcomes_total",
			Help:      "Total number of downloads terminated, by outcome.",
		}, []string{"model_id", "outcome"}),
		ActiveDownloads: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: downloadSubsystem,
			Name:      "active",
			Help:      "Number of downloads currently in flight.",
		}),
		TimeToCompletion: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: downloadSubsystem,
			Name:      "duration_seconds",
			Help:      "Time from start to terminal event for completed downloads.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 14), // 1s .. 8192s (~2.3h)
		}, []string{"model_id"}),
	}
	reg.MustRegister(m.StartsTotal, m.OutcomesTotal, m.ActiveDownloads, m.TimeToCompletion)
	return m
}

// ChatMetrics tracks the chat session engine's activity.
type ChatMetrics struct {
	SessionsTotal   prometheus.Counter
	PromptsTotal    *prometheus.CounterVec
	TokensTotal     prometheus.Counter
	ActiveSessions  prometheus.Gauge
	ActivePrompts   prometheus.Gauge
	PromptDuration  *prometheus.HistogramVec
}

// NewChatMetrics registers and returns the chat metric set on reg.
func NewChatMetrics(reg prometheus.Registerer) *ChatMetrics {
	m := &ChatMetrics{
		SessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: chatSubsystem,
			Name:      "sessions_total",
			Help:      "Total number of chat connections accepted.",
		}),
		PromptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: chatSubsystem,
			Name:      "prompts_total",
			Help:      "Total number of prompts, by terminal outcome.",
		}, []string{"outcome"}),
		TokensTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: chatSubsystem,
			Name:      "tokens_total",
			Help:      "Total number of tokens streamed to clients.",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: chatSubsystem,
			Name:      "active_sessions",
			Help:      "Number of open chat connections.",
		}),
		ActivePrompts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: chatSubsystem,
			Name:      "active_prompts",
			Help:      "Number of prompts currently generating across all sessions.",
		}),
		PromptDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: chatSubsystem,
			Name:      "prompt_duration_seconds",
			Help:      "Time from prompt acceptance to its terminal event.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.SessionsTotal, m.PromptsTotal, m.TokensTotal, m.ActiveSessions, m.ActivePrompts, m.PromptDuration)
	return m
}
