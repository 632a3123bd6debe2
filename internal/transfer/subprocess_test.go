// Copyright (C) 2026 the llmhostd authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package transfer

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFakeFetcher writes a tiny shell script standing in for wget/curl:
// it prints percent lines to stderr and the script body writes sentinel
// content to "$4", which is wget's -O output path, so tests never depend on a real
// network or a real wget/curl binary being installed.
func writeFakeFetcher(t *testing.T, scriptBody string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake fetcher script requires a POSIX shell")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-fetch")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+scriptBody), 0755))
	return path
}

func TestPercentPattern(t *testing.T) {
	cases := map[string]string{
		"   10% [================>  ]":         "10",
		"######################## 100.0%":       "100.0",
		"no percent here":                        "",
		"50.5% done, 1.2MB/s, eta 0s":            "50.5",
	}
	for line, want := range cases {
		m := percentPattern.FindStringSubmatch(line)
		if want == "" {
			assert.Nil(t, m, line)
			continue
		}
		require.NotNil(t, m, line)
		assert.Equal(t, want, m[1], line)
	}
}

func TestSubprocessFetcher_Success(t *testing.T) {
	script := `
echo "10%" 1>&2
echo "50%" 1>&2
echo "100%" 1>&2
echo -n "payload" > "$4"
exit 0
`
	fake := writeFakeFetcher(t, script)
	dest := filepath.Join(t.TempDir(), "out.gguf.tmp")

	f := &SubprocessFetcher{Kind: "wget", URL: "https://example.com/model.gguf"}
	// commandArgv only knows the wget and curl binaries, so the fake script is
	// renamed to "wget" and its directory put first on PATH; Fetch then runs it
	// with the real wget argv.
	oldPath := os.Getenv("PATH")
	require.NoError(t, os.Setenv("PATH", filepath.Dir(fake)+string(os.PathListSeparator)+oldPath))
	defer os.Setenv("PATH", oldPath)
	require.NoError(t, os.Rename(fake, filepath.Join(filepath.Dir(fake), "wget")))

	var percents []int
	err := f.Fetch(context.Background(), dest, func(p int) { percents = append(percents, p) })
	require.NoError(t, err)
	assert.Equal(t, []int{10, 50, 100}, percents)
}

func TestSubprocessFetcher_NonZeroExit(t *testing.T) {
	script := `
echo "10%" 1>&2
exit 1
`
	fake := writeFakeFetcher(t, script)
	oldPath := os.Getenv("PATH")
	require.NoError(t, os.Setenv("PATH", filepath.Dir(fake)+string(os.PathListSeparator)+oldPath))
	defer os.Setenv("PATH", oldPath)
	require.NoError(t, os.Rename(fake, filepath.Join(filepath.Dir(fake), "curl")))

	dest := filepath.Join(t.TempDir(), "out.gguf.tmp")
	f := &SubprocessFetcher{Kind: "curl", URL: "https://example.com/model.gguf"}
	err := f.Fetch(context.Background(), dest, func(int) {})
	assert.Error(t, err)
}

func TestSubprocessFetcher_CancelKillsProcess(t *testing.T) {
	script := `
echo "1%" 1>&2
sleep 5
exit 0
`
	fake := writeFakeFetcher(t, script)
	oldPath := os.Getenv("PATH")
	require.NoError(t, os.Setenv("PATH", filepath.Dir(fake)+string(os.PathListSeparator)+oldPath))
	defer os.Setenv("PATH", oldPath)
	require.NoError(t, os.Rename(fake, filepath.Join(filepath.Dir(fake), "wget")))

	dest := filepath.Join(t.TempDir(), "out.gguf.tmp")
	f := &SubprocessFetcher{Kind: "wget", URL: "https://example.com/model.gguf"}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := f.Fetch(ctx, dest, func(int) {})
	elapsed := time.Since(start)
	assert.Error(t, err)
	assert.Less(t, elapsed, 3*time.Second, "cancellation should be observed within a poll interval, not wait for the sleep")
}
