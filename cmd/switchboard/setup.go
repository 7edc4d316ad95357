package main

import (
	"bufio"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

func buildSetupCmd() *cobra.Command {
	var (
		configPath string
		overwrite  bool
	)
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Generate a starter configuration interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSetup(cmd, configPath, overwrite)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "switchboard.yaml", "Where to write the configuration")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite an existing configuration file")
	return cmd
}

func runSetup(cmd *cobra.Command, configPath string, overwrite bool) error {
	out := cmd.OutOrStdout()
	reader := bufio.NewReader(os.Stdin)

	if _, err := os.Stat(configPath); err == nil && !overwrite {
		if !promptBool(reader, fmt.Sprintf("%s already exists. Overwrite?", configPath), false) {
			fmt.Fprintln(out, "Setup cancelled.")
			return nil
		}
	}

	provider := promptString(reader, "LLM provider (openai/anthropic)", "openai")
	apiKey := promptPassword(reader, "Provider API key")
	actorModel := promptString(reader, "Actor model", defaultActorModel(provider))
	pickerModel := promptString(reader, "Picker model (empty reuses the actor model)", "")

	driver := promptString(reader, "Storage driver (memory/sqlite/postgres)", "sqlite")
	var path, dsn string
	switch driver {
	case "sqlite":
		path = promptString(reader, "SQLite database file", "switchboard.db")
	case "postgres":
		dsn = promptString(reader, "Postgres DSN", "postgres://localhost:5432/switchboard?sslmode=disable")
	}

	kbEnabled := promptBool(reader, "Enable knowledge-base search?", false)
	var vectorStoreID string
	if kbEnabled {
		vectorStoreID = promptString(reader, "OpenAI vector store ID", "")
	}

	raw := map[string]any{
		"server": map[string]any{"host": "0.0.0.0", "port": 8080},
		"storage": map[string]any{
			"driver": driver,
		},
		"auth": map[string]any{
			"jwt_secret": randomSecret(),
		},
		"llm": map[string]any{
			"provider":    provider,
			"actor_model": actorModel,
		},
		"prompts":   map[string]any{"dir": "prompts"},
		"tickets":   map[string]any{"seed_file": "ticket_types.yaml"},
		"artifacts": map[string]any{"backend": "local", "dir": "artifacts"},
		"retention": map[string]any{"enabled": true, "max_idle": "720h"},
	}
	llmSection := raw["llm"].(map[string]any)
	if provider == "anthropic" {
		llmSection["anthropic_api_key"] = apiKey
	} else {
		llmSection["openai_api_key"] = apiKey
	}
	if pickerModel != "" {
		llmSection["picker_model"] = pickerModel
	}
	if kbEnabled {
		llmSection["kb"] = map[string]any{"enabled": true, "vector_store_id": vectorStoreID}
	}
	storageSection := raw["storage"].(map[string]any)
	if path != "" {
		storageSection["path"] = path
	}
	if dsn != "" {
		storageSection["dsn"] = dsn
	}

	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	fmt.Fprintf(out, "Config written: %s\n", configPath)
	fmt.Fprintln(out, "Next: seed ticket types in ticket_types.yaml, then run `switchboard doctor` and `switchboard serve`.")
	return nil
}

func defaultActorModel(provider string) string {
	if provider == "anthropic" {
		return "claude-sonnet-4-20250514"
	}
	return "gpt-4o"
}

func randomSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}

func promptString(reader *bufio.Reader, label string, defaultValue string) string {
	if defaultValue != "" {
		fmt.Printf("%s [%s]: ", label, defaultValue)
	} else {
		fmt.Printf("%s: ", label)
	}
	text, _ := reader.ReadString('\n')
	text = strings.TrimSpace(text)
	if text == "" {
		return defaultValue
	}
	return text
}

func promptBool(reader *bufio.Reader, label string, defaultValue bool) bool {
	defaultLabel := "n"
	if defaultValue {
		defaultLabel = "y"
	}
	answer := promptString(reader, label+" (y/n)", defaultLabel)
	answer = strings.ToLower(strings.TrimSpace(answer))
	if answer == "" {
		return defaultValue
	}
	return answer == "y" || answer == "yes"
}

// promptPassword prompts for a secret without echoing input.
func promptPassword(reader *bufio.Reader, label string) string {
	fmt.Printf("%s: ", label)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		text, err := term.ReadPassword(fd)
		fmt.Println()
		if err == nil {
			return strings.TrimSpace(string(text))
		}
	}
	text, err := reader.ReadString('\n')
	if err != nil {
		return ""
	}
	return strings.TrimSpace(text)
}
