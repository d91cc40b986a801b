// Package draft manages in-progress posts for the admin panel: the staged
// images an author selects before upload, their preview handles, the upload
// batch, and crash-recoverable snapshots of the draft itself.
package draft

import (
	"errors"
	"time"

	"carbonpress/api/internal/document"
)

// ImageState tracks a staged image through its upload lifecycle.
type ImageState string

const (
	ImageLocal     ImageState = "local"
	ImageUploading ImageState = "uploading"
	ImageUploaded  ImageState = "uploaded"
	ImageFailed    ImageState = "failed"
	ImageRemoved   ImageState = "removed"
)

// Status is the publication status of a draft.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
)

var (
	ErrInvalidFile   = errors.New("file is not an accepted image type")
	ErrFileTooLarge  = errors.New("file exceeds the maximum upload size")
	ErrDraftNotFound = errors.New("draft not found")
	ErrImageNotFound = errors.New("staged image not found")
	ErrStalePreview  = errors.New("preview handle is stale or released")
)

// StagedImage is one author-selected image held locally before and through
// upload. The raw bytes and preview handle never survive a process restart;
// only the scalar fields are persisted in draft snapshots.
type StagedImage struct {
	ID            string
	Data          []byte
	MediaType     string
	Size          int64
	PreviewHandle string
	Placeholder   string
	State         ImageState
	FinalURL      string
	// NeedsReselection is set on images restored from a snapshot: their
	// bytes and preview handle are gone and the author must pick the file
	// again before the draft can be published.
	NeedsReselection bool
}

// Ref returns the handle/placeholder pair the rewriter matches on.
func (img *StagedImage) Ref() document.StagedRef {
	return document.StagedRef{PreviewHandle: img.PreviewHandle, Placeholder: img.Placeholder}
}

// Draft is the full in-progress authoring state for one post.
type Draft struct {
	ID             string
	PostID         string // server-assigned record id, set on first publish
	Title          string
	Slug           string
	Excerpt        string
	Content        *document.Node
	Featured       *StagedImage
	Images         []*StagedImage
	Tags           []string
	Categories     []string
	SEOTitle       string
	SEODescription string
	Status         Status
	UpdatedAt      time.Time
	AutoSaved      bool
}

// StagedRefs returns rewriter references for every live staged image,
// featured image included.
func (d *Draft) StagedRefs() []document.StagedRef {
	refs := make([]document.StagedRef, 0, len(d.Images)+1)
	if d.Featured != nil {
		refs = append(refs, d.Featured.Ref())
	}
	for _, img := range d.Images {
		refs = append(refs, img.Ref())
	}
	return refs
}

func (d *Draft) allImages() []*StagedImage {
	images := make([]*StagedImage, 0, len(d.Images)+1)
	if d.Featured != nil {
		images = append(images, d.Featured)
	}
	return append(images, d.Images...)
}

func (d *Draft) findImage(imageID string) *StagedImage {
	for _, img := range d.allImages() {
		if img.ID == imageID {
			return img
		}
	}
	return nil
}

// PlaceholderMap maps placeholder tokens to final URLs for one upload batch.
// It is transient: produced by UploadAll, consumed by one rewrite pass.
type PlaceholderMap map[string]string

// UploadFailure reports one staged image whose upload did not complete.
type UploadFailure struct {
	ImageID string
	Err     error
}
