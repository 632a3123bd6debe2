// Copyright (C) 2026 the llmhostd authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/llmhostd/llmhostd/internal/config"
	"github.com/llmhostd/llmhostd/internal/download"
)

var progressAddr string

var progressCmd = &cobra.Command{
	Use:   "progress <model-id>",
	Short: "Watch a model download's progress",
	Long: `progress attaches to a running llmhostd server's download stream
for the given model id and renders it live. It is a pure HTTP client: it
does not load a catalog, touch the filesystem, or run any serving logic
of its own.`,
	Args: cobra.ExactArgs(1),
	RunE: runProgressCommand,
}

func init() {
	progressCmd.Flags().StringVar(&progressAddr, "addr", "", "control plane address, e.g. http://localhost:8080 (default: derived from config)")
}

func runProgressCommand(cmd *cobra.Command, args []string) error {
	modelID := args[0]
	addr := progressAddr
	if addr == "" {
		addr = addrFromHTTPAddr(config.Global.HTTPAddr)
	}

	events := make(chan download.Event, 16)
	streamErrs := make(chan error, 1)
	go streamDownload(addr, modelID, events, streamErrs)

	if !isatty.IsTerminal(os.Stdout.Fd()) {
		return watchPlain(modelID, events, streamErrs)
	}

	p := tea.NewProgram(newProgressModel(modelID, events, streamErrs))
	_, err := p.Run()
	return err
}

// addrFromHTTPAddr turns a bind address like ":8080" into a reachable
// loopback URL; an address that already names a host is left alone.
func addrFromHTTPAddr(bindAddr string) string {
	if strings.HasPrefix(bindAddr, ":") {
		return "http://localhost" + bindAddr
	}
	if !strings.Contains(bindAddr, "://") {
		return "http://" + bindAddr
	}
	return bindAddr
}

// streamDownload opens the SSE stream and decodes each frame onto events,
// closing events once the server closes the response body. A failure is
// sent on errs, which is never closed.
func streamDownload(addr, modelID string, events chan<- download.Event, errs chan<- error) {
	defer close(events)

	url := fmt.Sprintf("%s/api/models/%s/download", addr, modelID)
	resp, err := http.Get(url)
	if err != nil {
		errs <- fmt.Errorf("connect to %s: %w", addr, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errs <- fmt.Errorf("server returned %s", resp.Status)
		return
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		payload, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var ev download.Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			continue
		}
		events <- ev
	}
}

// watchPlain renders progress as plain line-oriented output, for piped
// stdout or non-interactive callers.
func watchPlain(modelID string, events <-chan download.Event, errs <-chan error) error {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch ev.Type {
			case download.EventProgress:
				fmt.Printf("%s: %d%% (%.2f MB/s, eta %ds)\n", modelID, ev.Progress, ev.SpeedMBps, ev.ETASeconds)
			case download.EventCompleted:
				fmt.Printf("%s: download complete\n", modelID)
				return nil
			case download.EventError:
				fmt.Printf("%s: error: %s\n", modelID, ev.Message)
				return nil
			case download.EventCancelled:
				fmt.Printf("%s: cancelled\n", modelID)
				return nil
			default:
				if ev.Message != "" {
					fmt.Printf("%s: %s\n", modelID, ev.Message)
				}
			}
		case err := <-errs:
			if err != nil {
				return err
			}
		}
	}
}

// eventMsg wraps a download.Event so it can travel through the
// bubbletea update loop.
type eventMsg download.Event

// streamClosedMsg signals the event channel has been closed.
type streamClosedMsg struct{}

// streamErrMsg carries a connection-level failure.
type streamErrMsg struct{ err error }

func waitForEvent(events <-chan download.Event, errs <-chan error) tea.Cmd {
	return func() tea.Msg {
		select {
		case ev, ok := <-events:
			if !ok {
				return streamClosedMsg{}
			}
			return eventMsg(ev)
		case err := <-errs:
			if err != nil {
				return streamErrMsg{err}
			}
			return streamClosedMsg{}
		}
	}
}

var (
	progressTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	progressBarFill     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	progressBarEmpty    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	progressStatsStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	progressErrorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	progressDoneStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
)

// progressModel renders one model download's event stream as a live bar.
type progressModel struct {
	modelID string
	events  <-chan download.Event
	errs    <-chan error

	percent    int
	speedMBps  float64
	etaSeconds int
	method     string
	message    string
	done       bool
	errMsg     string
}

func newProgressModel(modelID string, events <-chan download.Event, errs <-chan error) progressModel {
	return progressModel{modelID: modelID, events: events, errs: errs}
}

func (m progressModel) Init() tea.Cmd {
	return waitForEvent(m.events, m.errs)
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			return m, tea.Quit
		}
	case eventMsg:
		ev := download.Event(msg)
		switch ev.Type {
		case download.EventProgress:
			m.percent = ev.Progress
			m.speedMBps = ev.SpeedMBps
			m.etaSeconds = ev.ETASeconds
			m.method = ev.Method
		case download.EventCompleted:
			m.percent = 100
			m.done = true
			return m, tea.Quit
		case download.EventError:
			m.errMsg = ev.Message
			m.done = true
			return m, tea.Quit
		case download.EventCancelled:
			m.message = "cancelled"
			m.done = true
			return m, tea.Quit
		default:
			m.message = ev.Message
		}
		return m, waitForEvent(m.events, m.errs)
	case streamErrMsg:
		m.errMsg = msg.err.Error()
		m.done = true
		return m, tea.Quit
	case streamClosedMsg:
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

const progressBarWidth = 40

func (m progressModel) View() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", progressTitleStyle.Render("downloading "+m.modelID))

	if m.errMsg != "" {
		fmt.Fprintf(&b, "%s\n", progressErrorStyle.Render(m.errMsg))
		return b.String()
	}

	filled := m.percent * progressBarWidth / 100
	if filled > progressBarWidth {
		filled = progressBarWidth
	}
	bar := progressBarFill.Render(strings.Repeat("=", filled)) +
		progressBarEmpty.Render(strings.Repeat("-", progressBarWidth-filled))
	fmt.Fprintf(&b, "[%s] %3d%%\n", bar, m.percent)

	stats := fmt.Sprintf("%.2f MB/s  eta %ds", m.speedMBps, m.etaSeconds)
	if m.method != "" {
		stats = fmt.Sprintf("%s  via %s", stats, m.method)
	}
	fmt.Fprintf(&b, "%s\n", progressStatsStyle.Render(stats))

	if m.done {
		fmt.Fprintf(&b, "\n%s\n", progressDoneStyle.Render("done"))
	} else {
		fmt.Fprintf(&b, "\n%s\n", progressStatsStyle.Render("press q to detach"))
	}
	return b.String()
}
