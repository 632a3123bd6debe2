// Copyright (C) 2026 the llmhostd authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/llmhostd/llmhostd/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "llmhostd",
	Short: "Control plane for a local LLM serving host",
	Long: `llmhostd fronts a local model-serving process with a model switch
API, a model download pipeline, and a streaming chat WebSocket.`,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(progressCmd)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return config.Load()
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("llmhostd: %v", err)
	}
}
