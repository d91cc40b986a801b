package draft

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"carbonpress/api/internal/util"
)

// ObjectStore is the external object-storage collaborator. Uploads are keyed
// by the owning entity's identifier and the image's identifier.
type ObjectStore interface {
	Upload(ctx context.Context, ownerID, imageID string, data []byte, mediaType string) (string, error)
	Delete(ctx context.Context, ownerID, imageID string) error
	ListObjects(ctx context.Context, ownerID string) ([]string, error)
}

// SnapshotStore is the durable local storage collaborator for draft
// snapshots. Load returns (nil, nil) when no snapshot exists for the id.
type SnapshotStore interface {
	Save(ctx context.Context, draftID string, data []byte) error
	Load(ctx context.Context, draftID string) ([]byte, error)
	Delete(ctx context.Context, draftID string) error
	List(ctx context.Context) ([]string, error)
}

// Options configures the staging manager.
type Options struct {
	MaxUploadBytes     int64
	AcceptedMediaTypes []string
	UploadConcurrency  int64
	AutosaveInterval   time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxUploadBytes <= 0 {
		o.MaxUploadBytes = 10 << 20
	}
	if len(o.AcceptedMediaTypes) == 0 {
		o.AcceptedMediaTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}
	}
	if o.UploadConcurrency <= 0 {
		o.UploadConcurrency = 4
	}
	if o.AutosaveInterval <= 0 {
		o.AutosaveInterval = 30 * time.Second
	}
	return o
}

// Manager owns the active drafts of the authoring sessions, their staged
// images and preview handles, the upload batch, and draft persistence. It is
// an explicitly constructed service object; collaborators are injected.
type Manager struct {
	objects   ObjectStore
	snapshots SnapshotStore
	opts      Options
	previews  *previewRegistry

	mu        sync.Mutex
	drafts    map[string]*Draft
	stoppers  map[string]chan struct{}
	uploading map[string]bool

	// persistLocks serializes snapshot writes per draft id. The explicit
	// save path waits its turn; the auto-save path skips a tick instead of
	// stacking a second concurrent write (last-writer-wins).
	persistMu    sync.Mutex
	persistLocks map[string]*sync.Mutex
}

// NewManager creates a staging manager over the given collaborators.
func NewManager(objects ObjectStore, snapshots SnapshotStore, opts Options) *Manager {
	return &Manager{
		objects:      objects,
		snapshots:    snapshots,
		opts:         opts.withDefaults(),
		previews:     newPreviewRegistry(),
		drafts:       make(map[string]*Draft),
		stoppers:     make(map[string]chan struct{}),
		uploading:    make(map[string]bool),
		persistLocks: make(map[string]*sync.Mutex),
	}
}

// NewDraft registers a fresh active draft and starts its auto-save loop.
func (m *Manager) NewDraft() *Draft {
	d := &Draft{
		ID:        uuid.New().String(),
		Status:    StatusDraft,
		UpdatedAt: time.Now().UTC(),
	}
	m.mu.Lock()
	m.drafts[d.ID] = d
	m.mu.Unlock()
	m.startAutosave(d.ID)
	return d
}

// Get returns the active draft for id.
func (m *Manager) Get(draftID string) (*Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[draftID]
	if !ok {
		return nil, ErrDraftNotFound
	}
	return d, nil
}

// Mutate applies an edit to the active draft under the manager's lock and
// stamps it as an explicit (non-auto-saved) modification.
func (m *Manager) Mutate(draftID string, apply func(*Draft)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[draftID]
	if !ok {
		return ErrDraftNotFound
	}
	apply(d)
	d.UpdatedAt = time.Now().UTC()
	d.AutoSaved = false
	return nil
}

func (m *Manager) validate(data []byte, mediaType string) error {
	accepted := false
	for _, mt := range m.opts.AcceptedMediaTypes {
		if mt == mediaType {
			accepted = true
			break
		}
	}
	if !accepted || len(data) == 0 {
		return ErrInvalidFile
	}
	if int64(len(data)) > m.opts.MaxUploadBytes {
		return ErrFileTooLarge
	}
	return nil
}

func (m *Manager) newStagedImage(data []byte, mediaType string) *StagedImage {
	return &StagedImage{
		ID:            uuid.New().String(),
		Data:          data,
		MediaType:     mediaType,
		Size:          int64(len(data)),
		PreviewHandle: m.previews.acquire(data, mediaType),
		Placeholder:   util.NewID("ph"),
		State:         ImageLocal,
	}
}

// Stage validates an author-selected file and adds it to the draft's content
// image collection. No network I/O happens here.
func (m *Manager) Stage(draftID string, data []byte, mediaType string) (*StagedImage, error) {
	if err := m.validate(data, mediaType); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[draftID]
	if !ok {
		return nil, ErrDraftNotFound
	}
	img := m.newStagedImage(data, mediaType)
	d.Images = append(d.Images, img)
	d.UpdatedAt = time.Now().UTC()
	return img, nil
}

// StageFeatured validates an author-selected file and installs it as the
// draft's featured image, releasing any previous one.
func (m *Manager) StageFeatured(draftID string, data []byte, mediaType string) (*StagedImage, error) {
	if err := m.validate(data, mediaType); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[draftID]
	if !ok {
		return nil, ErrDraftNotFound
	}
	if d.Featured != nil {
		m.previews.release(d.Featured.PreviewHandle)
		d.Featured.State = ImageRemoved
	}
	img := m.newStagedImage(data, mediaType)
	d.Featured = img
	d.UpdatedAt = time.Now().UTC()
	return img, nil
}

// Unstage removes the image from the draft, wherever it is held, and
// releases its preview handle. Unstaging an unknown or already-removed id is
// a no-op.
func (m *Manager) Unstage(draftID, imageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[draftID]
	if !ok {
		return ErrDraftNotFound
	}
	if d.Featured != nil && d.Featured.ID == imageID {
		m.previews.release(d.Featured.PreviewHandle)
		d.Featured.State = ImageRemoved
		d.Featured = nil
		d.UpdatedAt = time.Now().UTC()
		return nil
	}
	for i, img := range d.Images {
		if img.ID == imageID {
			m.previews.release(img.PreviewHandle)
			img.State = ImageRemoved
			d.Images = append(d.Images[:i], d.Images[i+1:]...)
			d.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return nil
}

// PreviewBytes resolves a preview handle for local rendering. Handles do not
// survive a process restart; resolving a released or restored handle fails
// with ErrStalePreview.
func (m *Manager) PreviewBytes(handle string) ([]byte, string, error) {
	return m.previews.resolve(handle)
}

// UploadAll uploads every staged image of the draft still awaiting upload,
// concurrently but bounded, keyed by ownerID. Individual failures never
// abort the batch: the call settles fully and returns the placeholder map of
// successes together with the failures. Images already part of an in-flight
// batch are skipped, so no image id is ever uploaded twice concurrently.
func (m *Manager) UploadAll(ctx context.Context, draftID, ownerID string) (PlaceholderMap, []UploadFailure, error) {
	m.mu.Lock()
	d, ok := m.drafts[draftID]
	if !ok {
		m.mu.Unlock()
		return nil, nil, ErrDraftNotFound
	}
	var pending []*StagedImage
	for _, img := range d.allImages() {
		if img.State != ImageLocal && img.State != ImageFailed {
			continue
		}
		if m.uploading[img.ID] || img.NeedsReselection {
			continue
		}
		img.State = ImageUploading
		m.uploading[img.ID] = true
		pending = append(pending, img)
	}
	m.mu.Unlock()

	result := make(PlaceholderMap, len(pending))
	var failures []UploadFailure
	var resMu sync.Mutex

	sem := semaphore.NewWeighted(m.opts.UploadConcurrency)
	var g errgroup.Group
	for _, img := range pending {
		img := img
		g.Go(func() error {
			if err := sem.Acquire(ctx, 1); err != nil {
				m.settleUpload(img, "", err)
				resMu.Lock()
				failures = append(failures, UploadFailure{ImageID: img.ID, Err: err})
				resMu.Unlock()
				return nil
			}
			defer sem.Release(1)

			url, err := m.objects.Upload(ctx, ownerID, img.ID, img.Data, img.MediaType)
			m.settleUpload(img, url, err)
			resMu.Lock()
			if err != nil {
				failures = append(failures, UploadFailure{ImageID: img.ID, Err: err})
			} else {
				result[img.Placeholder] = url
			}
			resMu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return result, failures, nil
}

func (m *Manager) settleUpload(img *StagedImage, url string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.uploading, img.ID)
	if err != nil {
		img.State = ImageFailed
		return
	}
	img.State = ImageUploaded
	img.FinalURL = url
}

func (m *Manager) persistLock(draftID string) *sync.Mutex {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()
	lock, ok := m.persistLocks[draftID]
	if !ok {
		lock = &sync.Mutex{}
		m.persistLocks[draftID] = lock
	}
	return lock
}

func (m *Manager) encodeDraft(draftID string, autoSaved bool) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[draftID]
	if !ok {
		return nil, ErrDraftNotFound
	}
	d.AutoSaved = autoSaved
	return encodeSnapshot(d)
}

// PersistDraft writes an explicit-save snapshot of the draft to durable
// local storage. Writes for the same draft id are serialized.
func (m *Manager) PersistDraft(ctx context.Context, draftID string) error {
	data, err := m.encodeDraft(draftID, false)
	if err != nil {
		return err
	}
	lock := m.persistLock(draftID)
	lock.Lock()
	defer lock.Unlock()
	if err := m.snapshots.Save(ctx, draftID, data); err != nil {
		return fmt.Errorf("persist draft %s: %w", draftID, err)
	}
	return nil
}

// autosavePersist is the timer-driven variant: it skips the tick entirely if
// a persist for the same draft is still outstanding, and reports failure to
// the caller for logging only.
func (m *Manager) autosavePersist(ctx context.Context, draftID string) error {
	lock := m.persistLock(draftID)
	if !lock.TryLock() {
		return nil
	}
	defer lock.Unlock()
	data, err := m.encodeDraft(draftID, true)
	if err != nil {
		return err
	}
	if err := m.snapshots.Save(ctx, draftID, data); err != nil {
		return fmt.Errorf("autosave draft %s: %w", draftID, err)
	}
	return nil
}

func (m *Manager) startAutosave(draftID string) {
	stop := make(chan struct{})
	m.mu.Lock()
	if _, exists := m.stoppers[draftID]; exists {
		m.mu.Unlock()
		close(stop)
		return
	}
	m.stoppers[draftID] = stop
	m.mu.Unlock()

	go func() {
		ticker := time.NewTicker(m.opts.AutosaveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				if err := m.autosavePersist(ctx, draftID); err != nil {
					log.Printf("autosave failed for draft %s: %v", draftID, err)
				}
				cancel()
			}
		}
	}()
}

func (m *Manager) stopAutosave(draftID string) {
	m.mu.Lock()
	stop, ok := m.stoppers[draftID]
	if ok {
		delete(m.stoppers, draftID)
	}
	m.mu.Unlock()
	if ok {
		close(stop)
	}
}

// ResumeDraft loads a persisted snapshot, registers it as the active draft,
// and reports which staged images must be re-selected by the author (their
// bytes and preview handles did not survive the restart).
func (m *Manager) ResumeDraft(ctx context.Context, draftID string) (*Draft, []string, error) {
	data, err := m.snapshots.Load(ctx, draftID)
	if err != nil {
		return nil, nil, fmt.Errorf("load draft %s: %w", draftID, err)
	}
	if data == nil {
		return nil, nil, ErrDraftNotFound
	}
	d, err := decodeSnapshot(data)
	if err != nil {
		return nil, nil, err
	}

	var needsReselection []string
	for _, img := range d.allImages() {
		if img.NeedsReselection {
			needsReselection = append(needsReselection, img.ID)
		}
	}

	m.mu.Lock()
	if existing, ok := m.drafts[d.ID]; ok {
		m.mu.Unlock()
		return existing, needsReselection, nil
	}
	m.drafts[d.ID] = d
	m.mu.Unlock()
	m.startAutosave(d.ID)
	return d, needsReselection, nil
}

// ListSnapshots lists resumable draft ids, most recently written first.
func (m *Manager) ListSnapshots(ctx context.Context) ([]string, error) {
	ids, err := m.snapshots.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list draft snapshots: %w", err)
	}
	return ids, nil
}

// ReleaseAll releases every preview handle owned by the draft's staged
// images. Called on discard, cancellation, or after a successful publish.
func (m *Manager) ReleaseAll(draftID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[draftID]
	if !ok {
		return
	}
	for _, img := range d.allImages() {
		if img.PreviewHandle != "" {
			m.previews.release(img.PreviewHandle)
		}
	}
}

// ReleaseUploaded releases the preview handles of images whose placeholder
// has been substituted into the persisted document; their local previews are
// no longer needed.
func (m *Manager) ReleaseUploaded(draftID string, placeholders PlaceholderMap) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[draftID]
	if !ok {
		return
	}
	for _, img := range d.allImages() {
		if img.State != ImageUploaded || img.PreviewHandle == "" {
			continue
		}
		if _, ok := placeholders[img.Placeholder]; ok {
			m.previews.release(img.PreviewHandle)
		}
	}
}

// Close deactivates a draft: stops its auto-save loop, releases every
// preview handle, and drops it from the active set. The durable snapshot is
// left in place.
func (m *Manager) Close(draftID string) {
	m.stopAutosave(draftID)
	m.ReleaseAll(draftID)
	m.mu.Lock()
	delete(m.drafts, draftID)
	m.mu.Unlock()
}

// Discard is Close plus deletion of the durable snapshot.
func (m *Manager) Discard(ctx context.Context, draftID string) error {
	m.Close(draftID)
	if err := m.snapshots.Delete(ctx, draftID); err != nil {
		return fmt.Errorf("discard draft %s: %w", draftID, err)
	}
	return nil
}
