package draft

import (
	"encoding/json"
	"fmt"
	"time"

	"carbonpress/api/internal/document"
)

// imageSnapshot is the durable subset of a StagedImage. Raw bytes and the
// preview handle are excluded: neither survives a process restart.
type imageSnapshot struct {
	ID          string     `json:"id"`
	MediaType   string     `json:"media_type"`
	Size        int64      `json:"size"`
	Placeholder string     `json:"placeholder"`
	State       ImageState `json:"state"`
	FinalURL    string     `json:"final_url,omitempty"`
}

type snapshot struct {
	ID             string          `json:"id"`
	PostID         string          `json:"post_id,omitempty"`
	Title          string          `json:"title"`
	Slug           string          `json:"slug"`
	Excerpt        string          `json:"excerpt"`
	Content        *document.Node  `json:"content,omitempty"`
	Featured       *imageSnapshot  `json:"featured,omitempty"`
	Images         []imageSnapshot `json:"images,omitempty"`
	Tags           []string        `json:"tags,omitempty"`
	Categories     []string        `json:"categories,omitempty"`
	SEOTitle       string          `json:"seo_title,omitempty"`
	SEODescription string          `json:"seo_description,omitempty"`
	Status         Status          `json:"status"`
	UpdatedAt      time.Time       `json:"updated_at"`
	AutoSaved      bool            `json:"auto_saved"`
}

func snapshotImage(img *StagedImage) *imageSnapshot {
	if img == nil {
		return nil
	}
	return &imageSnapshot{
		ID:          img.ID,
		MediaType:   img.MediaType,
		Size:        img.Size,
		Placeholder: img.Placeholder,
		State:       img.State,
		FinalURL:    img.FinalURL,
	}
}

func encodeSnapshot(d *Draft) ([]byte, error) {
	snap := snapshot{
		ID:             d.ID,
		PostID:         d.PostID,
		Title:          d.Title,
		Slug:           d.Slug,
		Excerpt:        d.Excerpt,
		Content:        d.Content,
		Featured:       snapshotImage(d.Featured),
		Tags:           d.Tags,
		Categories:     d.Categories,
		SEOTitle:       d.SEOTitle,
		SEODescription: d.SEODescription,
		Status:         d.Status,
		UpdatedAt:      d.UpdatedAt,
		AutoSaved:      d.AutoSaved,
	}
	for _, img := range d.Images {
		snap.Images = append(snap.Images, *snapshotImage(img))
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode draft snapshot: %w", err)
	}
	return data, nil
}

// restoreImage rebuilds a StagedImage from its durable fields. The result
// has no bytes and no preview handle; anything short of a completed upload
// must be re-selected by the author.
func restoreImage(snap *imageSnapshot) *StagedImage {
	if snap == nil {
		return nil
	}
	img := &StagedImage{
		ID:          snap.ID,
		MediaType:   snap.MediaType,
		Size:        snap.Size,
		Placeholder: snap.Placeholder,
		State:       snap.State,
		FinalURL:    snap.FinalURL,
	}
	img.NeedsReselection = img.State != ImageUploaded || img.FinalURL == ""
	return img
}

func decodeSnapshot(data []byte) (*Draft, error) {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode draft snapshot: %w", err)
	}
	d := &Draft{
		ID:             snap.ID,
		PostID:         snap.PostID,
		Title:          snap.Title,
		Slug:           snap.Slug,
		Excerpt:        snap.Excerpt,
		Content:        snap.Content,
		Featured:       restoreImage(snap.Featured),
		Tags:           snap.Tags,
		Categories:     snap.Categories,
		SEOTitle:       snap.SEOTitle,
		SEODescription: snap.SEODescription,
		Status:         snap.Status,
		UpdatedAt:      snap.UpdatedAt,
		AutoSaved:      snap.AutoSaved,
	}
	for i := range snap.Images {
		d.Images = append(d.Images, restoreImage(&snap.Images[i]))
	}
	if d.Status == "" {
		d.Status = StatusDraft
	}
	return d, nil
}
