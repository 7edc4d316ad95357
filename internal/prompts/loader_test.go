package prompts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFragment(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestActorHeaderComposition(t *testing.T) {
	dir := t.TempDir()
	writeFragment(t, dir, "system/actor.core.md", "# Core rules\nBe brief.")
	writeFragment(t, dir, "business/profile.md", "# Profile\nTelecom desk.")
	writeFragment(t, dir, "business/policies.md", "# Policies\nNo refund promises.")

	store := NewStore(dir, nil)
	defer store.Close()

	header := store.ActorHeader()
	coreIdx := strings.Index(header, "# Core rules")
	profileIdx := strings.Index(header, "# Profile")
	policiesIdx := strings.Index(header, "# Policies")
	if coreIdx != 0 || profileIdx < coreIdx || policiesIdx < profileIdx {
		t.Fatalf("fragment order wrong:\n%s", header)
	}
}

func TestPickerHeaderAddsGlossaryTitle(t *testing.T) {
	dir := t.TempDir()
	writeFragment(t, dir, "system/picker.core.md", "Route carefully.")
	writeFragment(t, dir, "business/glossary.md", `"phiếu" = ticket`)

	store := NewStore(dir, nil)
	defer store.Close()

	header := store.PickerHeader()
	if !strings.Contains(header, "# Glossary / Synonyms\n\"phiếu\" = ticket") {
		t.Fatalf("glossary title missing:\n%s", header)
	}
}

func TestMissingDirectoryDegradesToEmpty(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "does-not-exist"), nil)
	defer store.Close()

	if store.ActorHeader() != "" || store.PickerHeader() != "" {
		t.Fatalf("missing directory produced non-empty headers")
	}
}

func TestReloadPicksUpEdits(t *testing.T) {
	dir := t.TempDir()
	writeFragment(t, dir, "system/actor.core.md", "old rules")

	store := NewStore(dir, nil)
	defer store.Close()
	if got := store.ActorHeader(); got != "old rules" {
		t.Fatalf("header = %q", got)
	}

	writeFragment(t, dir, "system/actor.core.md", "new rules")
	store.Reload()
	if got := store.ActorHeader(); got != "new rules" {
		t.Fatalf("header after reload = %q", got)
	}
}
