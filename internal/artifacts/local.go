package artifacts

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore keeps artifact blobs on the local filesystem, sharded by the
// first two characters of the artifact id.
type LocalStore struct {
	basePath string
}

// NewLocalStore creates a disk-backed blob store rooted at basePath.
func NewLocalStore(basePath string) (*LocalStore, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact directory: %w", err)
	}
	return &LocalStore{basePath: basePath}, nil
}

// Put writes the blob to a temp file and renames it into place so readers
// never observe a partial artifact.
func (s *LocalStore) Put(ctx context.Context, artifactID string, data io.Reader, opts PutOptions) (string, error) {
	filePath := s.pathFor(artifactID, opts.MimeType)
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}

	tmpPath := filePath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(f, data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmpPath, filePath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("rename artifact: %w", err)
	}
	return "file://" + filePath, nil
}

// Get opens the blob for reading.
func (s *LocalStore) Get(ctx context.Context, artifactID string) (io.ReadCloser, error) {
	matches, err := filepath.Glob(s.pathFor(artifactID, "") + "*")
	if err != nil || len(matches) == 0 {
		return nil, ErrNotFound
	}
	f, err := os.Open(matches[0])
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	return f, nil
}

// Delete removes the blob; deleting an absent blob is not an error.
func (s *LocalStore) Delete(ctx context.Context, artifactID string) error {
	matches, err := filepath.Glob(s.pathFor(artifactID, "") + "*")
	if err != nil {
		return err
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

func (s *LocalStore) Close() error { return nil }

func (s *LocalStore) pathFor(artifactID, mimeType string) string {
	shard := "00"
	if len(artifactID) >= 2 {
		shard = artifactID[:2]
	}
	ext := ""
	if mimeType != "" {
		if exts, _ := mime.ExtensionsByType(mimeType); len(exts) > 0 {
			ext = exts[0]
		}
	}
	name := strings.ReplaceAll(artifactID, string(filepath.Separator), "_")
	return filepath.Join(s.basePath, shard, name+ext)
}
