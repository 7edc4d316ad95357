// Package prompts loads the admin-editable prompt fragments that frame both
// LLM passes. The files are plain markdown with no internal structure the
// code depends on; they are concatenated verbatim.
//
// Layout under the prompts directory (all files optional):
//
//	system/actor.core.md
//	system/picker.core.md
//	business/profile.md
//	business/policies.md
//	business/glossary.md
package prompts

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const cacheTTL = 30 * time.Second

var fragmentFiles = []string{
	"system/actor.core.md",
	"system/picker.core.md",
	"business/profile.md",
	"business/policies.md",
	"business/glossary.md",
}

// Store reads and caches prompt fragments. Admin edits are picked up within
// the TTL, or immediately when the directory watcher sees a write.
type Store struct {
	dir    string
	logger *slog.Logger

	mu        sync.Mutex
	fragments map[string]string
	expires   time.Time

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewStore builds a store over the given directory and starts a watcher for
// the prompt subdirectories. A missing directory is not an error; every
// fragment degrades to an empty string.
func NewStore(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{dir: dir, logger: logger, done: make(chan struct{})}
	s.startWatcher()
	return s
}

// ActorHeader returns the actor's business header: core rules, business
// profile, then policies.
func (s *Store) ActorHeader() string {
	f := s.load()
	return joinFragments(f["system/actor.core.md"], f["business/profile.md"], f["business/policies.md"])
}

// PickerHeader returns the routing prompt's business header: picker core
// rules plus the glossary (synonyms help name matching).
func (s *Store) PickerHeader() string {
	f := s.load()
	glossary := f["business/glossary.md"]
	if glossary != "" {
		glossary = "# Glossary / Synonyms\n" + glossary
	}
	return joinFragments(f["system/picker.core.md"], glossary)
}

// Reload drops the cache so the next read hits disk.
func (s *Store) Reload() {
	s.mu.Lock()
	s.fragments = nil
	s.expires = time.Time{}
	s.mu.Unlock()
}

// Close stops the directory watcher.
func (s *Store) Close() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	if s.watcher != nil {
		_ = s.watcher.Close()
	}
}

func (s *Store) load() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fragments != nil && time.Now().Before(s.expires) {
		return s.fragments
	}

	fragments := make(map[string]string, len(fragmentFiles))
	for _, rel := range fragmentFiles {
		data, err := os.ReadFile(filepath.Join(s.dir, filepath.FromSlash(rel)))
		if err != nil {
			if !os.IsNotExist(err) {
				s.logger.Warn("prompt fragment unreadable", "file", rel, "error", err)
			}
			fragments[rel] = ""
			continue
		}
		fragments[rel] = strings.TrimSpace(string(data))
	}
	s.fragments = fragments
	s.expires = time.Now().Add(cacheTTL)
	return fragments
}

func (s *Store) startWatcher() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.logger.Warn("prompt watcher unavailable, relying on TTL refresh", "error", err)
		return
	}
	s.watcher = watcher

	for _, sub := range []string{"", "system", "business"} {
		if err := watcher.Add(filepath.Join(s.dir, sub)); err != nil {
			s.logger.Debug("prompt watch skipped", "dir", sub, "error", err)
		}
	}

	go func() {
		for {
			select {
			case <-s.done:
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
					s.Reload()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("prompt watcher error", "error", err)
			}
		}
	}()
}

func joinFragments(parts ...string) string {
	kept := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.TrimSpace(strings.Join(kept, "\n\n"))
}
