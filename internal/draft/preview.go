package draft

import (
	"sync"

	"carbonpress/api/internal/util"
)

// previewRegistry holds the bytes behind ephemeral preview handles. Handles
// are process-local: they are minted when a file is staged, resolved only for
// local rendering, and must be released on every exit path. Nothing here is
// durable; a restarted process knows no handle.
type previewRegistry struct {
	mu      sync.Mutex
	entries map[string]previewEntry
}

type previewEntry struct {
	data      []byte
	mediaType string
}

func newPreviewRegistry() *previewRegistry {
	return &previewRegistry{entries: make(map[string]previewEntry)}
}

func (r *previewRegistry) acquire(data []byte, mediaType string) string {
	handle := "preview://" + util.NewID("")
	r.mu.Lock()
	r.entries[handle] = previewEntry{data: data, mediaType: mediaType}
	r.mu.Unlock()
	return handle
}

func (r *previewRegistry) resolve(handle string) ([]byte, string, error) {
	r.mu.Lock()
	entry, ok := r.entries[handle]
	r.mu.Unlock()
	if !ok {
		return nil, "", ErrStalePreview
	}
	return entry.data, entry.mediaType, nil
}

// release is idempotent: releasing an unknown or already-released handle is
// a no-op.
func (r *previewRegistry) release(handle string) {
	r.mu.Lock()
	delete(r.entries, handle)
	r.mu.Unlock()
}

func (r *previewRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
