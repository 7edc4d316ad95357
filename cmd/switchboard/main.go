// Package main is the switchboard CLI: a conversational support assistant
// gateway that routes user turns across pluggable capabilities (ticket
// creation, knowledge-base search) with a two-pass LLM pipeline.
//
// Start the server:
//
//	switchboard serve --config switchboard.yaml
//
// Verify a deployment's wiring without serving:
//
//	switchboard doctor --config switchboard.yaml
//
// Generate a starter configuration interactively:
//
//	switchboard setup
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "switchboard",
		Short: "Switchboard - conversational support assistant gateway",
		Long: `Switchboard routes each user turn through a two-pass LLM pipeline:
a routing pass picks at most one business capability, the actor pass
answers with exactly that capability's tools.

Capabilities: dynamic ticket creation, KB-only knowledge search.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildDoctorCmd(),
		buildSetupCmd(),
	)
	return rootCmd
}
