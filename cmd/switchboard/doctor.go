package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/atlasdesk/switchboard/internal/config"
	"github.com/atlasdesk/switchboard/internal/providers/tickets"
)

func buildDoctorCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check a deployment's configuration without serving",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd.OutOrStdout(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "switchboard.yaml", "Path to configuration file")
	return cmd
}

// runDoctor validates config, storage reachability, prompt fragments, and
// the ticket seed file, printing one line per check. It never starts the
// gateway or calls an LLM vendor.
func runDoctor(out io.Writer, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(out, "FAIL config: %v\n", err)
		return fmt.Errorf("config validation failed: %w", err)
	}
	fmt.Fprintf(out, "ok   config: %s (provider: %s, storage: %s)\n",
		configPath, cfg.LLM.Provider, cfg.Storage.Driver)

	failed := 0
	check := func(name string, err error) {
		if err != nil {
			fmt.Fprintf(out, "FAIL %s: %v\n", name, err)
			failed++
			return
		}
		fmt.Fprintf(out, "ok   %s\n", name)
	}

	check("prompts", checkPrompts(cfg))
	check("storage", checkStorage(cfg))
	check("tickets", checkTicketSeed(out, cfg))
	check("artifacts", checkArtifacts(cfg))

	if failed > 0 {
		return fmt.Errorf("%d check(s) failed", failed)
	}
	fmt.Fprintln(out, "All checks passed")
	return nil
}

func checkPrompts(cfg *config.Config) error {
	info, err := os.Stat(cfg.Prompts.Dir)
	if err != nil {
		return fmt.Errorf("prompts dir %s: %w", cfg.Prompts.Dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("prompts path %s is not a directory", cfg.Prompts.Dir)
	}
	return nil
}

func checkStorage(cfg *config.Config) error {
	store, err := openSessionStore(cfg)
	if err != nil {
		return err
	}
	return store.Close()
}

func checkTicketSeed(out io.Writer, cfg *config.Config) error {
	if cfg.Storage.Driver == "postgres" || cfg.Tickets.SeedFile == "" {
		return nil
	}
	types, err := tickets.LoadTypesFile(cfg.Tickets.SeedFile)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(types))
	for _, t := range types {
		names = append(names, t.ID)
	}
	fmt.Fprintf(out, "     ticket types: %d (%s)\n", len(types), strings.Join(names, ", "))
	return nil
}

func checkArtifacts(cfg *config.Config) error {
	if cfg.Artifacts.Backend != "local" {
		// Bucket reachability needs credentials and network; not checked here.
		return nil
	}
	if err := os.MkdirAll(cfg.Artifacts.Dir, 0o755); err != nil {
		return fmt.Errorf("artifacts dir %s: %w", cfg.Artifacts.Dir, err)
	}
	return nil
}
