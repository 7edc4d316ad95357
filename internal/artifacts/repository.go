package artifacts

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/atlasdesk/switchboard/pkg/models"
)

// DefaultMaxUploadBytes caps a single upload at 25 MB.
const DefaultMaxUploadBytes int64 = 25 << 20

// Repository couples artifact metadata with blob storage. Validation and
// retention read metadata only; bytes stay in the blob backend.
type Repository struct {
	mu       sync.RWMutex
	store    BlobStore
	meta     map[string]*models.Artifact
	maxBytes int64
}

// NewRepository builds a repository over the given blob store. maxBytes <= 0
// falls back to DefaultMaxUploadBytes.
func NewRepository(store BlobStore, maxBytes int64) *Repository {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &Repository{
		store:    store,
		meta:     make(map[string]*models.Artifact),
		maxBytes: maxBytes,
	}
}

// Save streams one upload into the blob store and records its metadata.
// The reader is capped at the configured limit; oversized uploads are
// rejected without storing anything permanent.
func (r *Repository) Save(ctx context.Context, sessionID, name, mimeType string, data io.Reader) (*models.Artifact, error) {
	id := uuid.NewString()

	// Read one byte past the limit to detect overflow.
	limited := io.LimitReader(data, r.maxBytes+1)
	counter := &countingReader{r: limited}

	ref, err := r.store.Put(ctx, id, counter, PutOptions{
		MimeType: mimeType,
		Metadata: map[string]string{"session_id": sessionID, "name": name},
	})
	if err != nil {
		return nil, fmt.Errorf("store artifact: %w", err)
	}
	if counter.n > r.maxBytes {
		r.store.Delete(ctx, id)
		return nil, ErrTooLarge
	}

	artifact := &models.Artifact{
		ID:        id,
		SessionID: sessionID,
		Name:      name,
		Mime:      mimeType,
		Size:      counter.n,
		Ref:       ref,
		CreatedAt: time.Now().UTC(),
	}
	r.mu.Lock()
	r.meta[id] = artifact
	r.mu.Unlock()
	return artifact, nil
}

// Stat returns metadata for the given ids. Unknown ids are simply absent
// from the result; callers compare lengths to detect them.
func (r *Repository) Stat(ctx context.Context, ids []string) ([]models.Artifact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Artifact, 0, len(ids))
	for _, id := range ids {
		if a, ok := r.meta[id]; ok {
			out = append(out, *a)
		}
	}
	return out, nil
}

// Open returns the artifact's metadata and a reader over its bytes.
func (r *Repository) Open(ctx context.Context, id string) (*models.Artifact, io.ReadCloser, error) {
	r.mu.RLock()
	a, ok := r.meta[id]
	r.mu.RUnlock()
	if !ok {
		return nil, nil, ErrNotFound
	}
	rc, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	copied := *a
	return &copied, rc, nil
}

// DeleteSession removes every artifact owned by the session, blobs included.
func (r *Repository) DeleteSession(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	var ids []string
	for id, a := range r.meta {
		if a.SessionID == sessionID {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		delete(r.meta, id)
	}
	r.mu.Unlock()

	sort.Strings(ids)
	var firstErr error
	for _, id := range ids {
		if err := r.store.Delete(ctx, id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close closes the underlying blob store.
func (r *Repository) Close() error { return r.store.Close() }

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
