package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"carbonpress/api/internal/auth"
	"carbonpress/api/internal/config"
	"carbonpress/api/internal/document"
	"carbonpress/api/internal/draft"
	"carbonpress/api/internal/store"
)

// PostStore is the document-store collaborator holding published posts.
type PostStore interface {
	CreatePost(ctx context.Context, post store.Post) (store.Post, error)
	UpdatePost(ctx context.Context, post store.Post) (store.Post, error)
	GetPost(ctx context.Context, id string) (store.Post, error)
	GetPostBySlug(ctx context.Context, slug string) (store.Post, error)
	ListPosts(ctx context.Context, status string) ([]store.Post, error)
	DeletePost(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

// Service wires the staging manager, the post store, and the admin
// credential into the operations the panel calls.
type Service struct {
	cfg    config.Config
	posts  PostStore
	drafts *draft.Manager
	admin  *auth.Admin
}

func New(cfg config.Config, posts PostStore, drafts *draft.Manager) *Service {
	return &Service{
		cfg:    cfg,
		posts:  posts,
		drafts: drafts,
		admin:  auth.NewAdmin(cfg.AdminPasswordHash),
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.posts.Ping(ctx)
}

// VerifyAdmin checks the panel credential.
func (s *Service) VerifyAdmin(password string) error {
	if err := s.admin.Verify(password); err != nil {
		return domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
	}
	return nil
}

// ImageView is the wire representation of a staged image. Raw bytes never
// leave the staging manager.
type ImageView struct {
	ID               string `json:"id"`
	MediaType        string `json:"mediaType"`
	Size             int64  `json:"size"`
	PreviewHandle    string `json:"previewHandle,omitempty"`
	Placeholder      string `json:"placeholder"`
	State            string `json:"state"`
	FinalURL         string `json:"finalUrl,omitempty"`
	NeedsReselection bool   `json:"needsReselection,omitempty"`
}

// DraftView is the wire representation of a draft.
type DraftView struct {
	ID             string         `json:"id"`
	PostID         string         `json:"postId,omitempty"`
	Title          string         `json:"title"`
	Slug           string         `json:"slug"`
	Excerpt        string         `json:"excerpt"`
	Content        *document.Node `json:"content,omitempty"`
	Featured       *ImageView     `json:"featured,omitempty"`
	Images         []ImageView    `json:"images"`
	Tags           []string       `json:"tags"`
	Categories     []string       `json:"categories"`
	SEOTitle       string         `json:"seoTitle"`
	SEODescription string         `json:"seoDescription"`
	Status         string         `json:"status"`
	UpdatedAt      time.Time      `json:"updatedAt"`
	AutoSaved      bool           `json:"autoSaved"`
}

func imageView(img *draft.StagedImage) *ImageView {
	if img == nil {
		return nil
	}
	return &ImageView{
		ID:               img.ID,
		MediaType:        img.MediaType,
		Size:             img.Size,
		PreviewHandle:    img.PreviewHandle,
		Placeholder:      img.Placeholder,
		State:            string(img.State),
		FinalURL:         img.FinalURL,
		NeedsReselection: img.NeedsReselection,
	}
}

func draftView(d *draft.Draft) DraftView {
	view := DraftView{
		ID:             d.ID,
		PostID:         d.PostID,
		Title:          d.Title,
		Slug:           d.Slug,
		Excerpt:        d.Excerpt,
		Content:        d.Content,
		Featured:       imageView(d.Featured),
		Images:         []ImageView{},
		Tags:           d.Tags,
		Categories:     d.Categories,
		SEOTitle:       d.SEOTitle,
		SEODescription: d.SEODescription,
		Status:         string(d.Status),
		UpdatedAt:      d.UpdatedAt,
		AutoSaved:      d.AutoSaved,
	}
	for _, img := range d.Images {
		view.Images = append(view.Images, *imageView(img))
	}
	return view
}

// CreateDraft opens a new active draft.
func (s *Service) CreateDraft() DraftView {
	return draftView(s.drafts.NewDraft())
}

// GetDraft returns the active draft.
func (s *Service) GetDraft(draftID string) (DraftView, error) {
	d, err := s.drafts.Get(draftID)
	if err != nil {
		return DraftView{}, mapDraftError(err)
	}
	return draftView(d), nil
}

// UpdateDraftInput carries the draft-mutation surface; nil fields are left
// unchanged.
type UpdateDraftInput struct {
	Title          *string        `json:"title"`
	Slug           *string        `json:"slug"`
	Excerpt        *string        `json:"excerpt"`
	Content        *document.Node `json:"content"`
	Tags           *[]string      `json:"tags"`
	Categories     *[]string      `json:"categories"`
	SEOTitle       *string        `json:"seoTitle"`
	SEODescription *string        `json:"seoDescription"`
	Status         *string        `json:"status"`
}

// UpdateDraft applies field edits to the active draft.
func (s *Service) UpdateDraft(draftID string, input UpdateDraftInput) (DraftView, error) {
	if input.Status != nil {
		switch draft.Status(*input.Status) {
		case draft.StatusDraft, draft.StatusPublished, draft.StatusArchived:
		default:
			return DraftView{}, domainError(http.StatusBadRequest, "INVALID_STATUS", "Unknown publication status", *input.Status)
		}
	}
	err := s.drafts.Mutate(draftID, func(d *draft.Draft) {
		if input.Title != nil {
			d.Title = *input.Title
		}
		if input.Slug != nil {
			d.Slug = *input.Slug
		}
		if input.Excerpt != nil {
			d.Excerpt = *input.Excerpt
		}
		if input.Content != nil {
			d.Content = input.Content
		}
		if input.Tags != nil {
			d.Tags = uniqueStrings(*input.Tags)
		}
		if input.Categories != nil {
			d.Categories = uniqueStrings(*input.Categories)
		}
		if input.SEOTitle != nil {
			d.SEOTitle = *input.SEOTitle
		}
		if input.SEODescription != nil {
			d.SEODescription = *input.SEODescription
		}
		if input.Status != nil {
			d.Status = draft.Status(*input.Status)
		}
	})
	if err != nil {
		return DraftView{}, mapDraftError(err)
	}
	return s.GetDraft(draftID)
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, dup := seen[v]; dup || v == "" {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// StageImage validates and stages an author-selected file; featured selects
// the featured slot instead of the content collection.
func (s *Service) StageImage(draftID string, data []byte, mediaType string, featured bool) (*ImageView, error) {
	var img *draft.StagedImage
	var err error
	if featured {
		img, err = s.drafts.StageFeatured(draftID, data, mediaType)
	} else {
		img, err = s.drafts.Stage(draftID, data, mediaType)
	}
	if err != nil {
		return nil, mapDraftError(err)
	}
	return imageView(img), nil
}

// UnstageImage removes a staged image; unknown ids are a no-op.
func (s *Service) UnstageImage(draftID, imageID string) error {
	if err := s.drafts.Unstage(draftID, imageID); err != nil {
		return mapDraftError(err)
	}
	return nil
}

// PreviewBytes resolves a preview handle for local rendering.
func (s *Service) PreviewBytes(handle string) ([]byte, string, error) {
	data, mediaType, err := s.drafts.PreviewBytes(handle)
	if err != nil {
		return nil, "", mapDraftError(err)
	}
	return data, mediaType, nil
}

// SaveDraft persists an explicit snapshot; failures surface to the author
// and the in-memory draft stays intact.
func (s *Service) SaveDraft(ctx context.Context, draftID string) error {
	if err := s.drafts.PersistDraft(ctx, draftID); err != nil {
		if errors.Is(err, draft.ErrDraftNotFound) {
			return mapDraftError(err)
		}
		return domainError(http.StatusInternalServerError, "PERSISTENCE_FAILED", "Saving the draft failed; your work is still in memory", err.Error())
	}
	return nil
}

// ResumeDraftResult reports a restored draft and the staged images the
// author must re-select.
type ResumeDraftResult struct {
	Draft            DraftView `json:"draft"`
	NeedsReselection []string  `json:"needsReselection"`
}

// ResumeDraft restores a persisted draft snapshot.
func (s *Service) ResumeDraft(ctx context.Context, draftID string) (ResumeDraftResult, error) {
	d, needs, err := s.drafts.ResumeDraft(ctx, draftID)
	if err != nil {
		return ResumeDraftResult{}, mapDraftError(err)
	}
	if needs == nil {
		needs = []string{}
	}
	return ResumeDraftResult{Draft: draftView(d), NeedsReselection: needs}, nil
}

// ListDraftSnapshots lists resumable draft ids, most recent first.
func (s *Service) ListDraftSnapshots(ctx context.Context) ([]string, error) {
	ids, err := s.drafts.ListSnapshots(ctx)
	if err != nil {
		return nil, domainError(http.StatusInternalServerError, "PERSISTENCE_FAILED", "Listing drafts failed", err.Error())
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// DiscardDraft drops the active draft, its preview handles, and its durable
// snapshot.
func (s *Service) DiscardDraft(ctx context.Context, draftID string) error {
	if err := s.drafts.Discard(ctx, draftID); err != nil {
		return domainError(http.StatusInternalServerError, "PERSISTENCE_FAILED", "Discarding the draft failed", err.Error())
	}
	return nil
}

// UnresolvedView reports an image reference still awaiting its final URL.
type UnresolvedView struct {
	Placeholder   string `json:"placeholder"`
	PreviewHandle string `json:"previewHandle"`
}

// UploadFailureView reports one image whose upload did not complete.
type UploadFailureView struct {
	ImageID string `json:"imageId"`
	Error   string `json:"error"`
}

// PublishResult is the outcome of a publish attempt. Published is false
// when unresolved references or upload failures remain; the draft then stays
// active and editable so the author can retry.
type PublishResult struct {
	Post       store.Post          `json:"post"`
	Published  bool                `json:"published"`
	Unresolved []UnresolvedView    `json:"unresolved"`
	Failures   []UploadFailureView `json:"failures"`
}

// PublishDraft drives the save pipeline: ensure a server-side post record,
// upload every pending staged image keyed by the record id, wait for the
// batch to fully settle, rewrite the document against the placeholder map,
// then persist the record. Partial failure returns the best-effort result;
// full success tears the draft down.
func (s *Service) PublishDraft(ctx context.Context, draftID string) (PublishResult, error) {
	d, err := s.drafts.Get(draftID)
	if err != nil {
		return PublishResult{}, mapDraftError(err)
	}

	if d.PostID == "" {
		created, err := s.posts.CreatePost(ctx, store.Post{
			Title:   d.Title,
			Slug:    d.Slug,
			Excerpt: d.Excerpt,
			Status:  string(draft.StatusDraft),
		})
		if err != nil {
			return PublishResult{}, domainError(http.StatusBadGateway, "PERSISTENCE_FAILED", "Creating the post record failed", err.Error())
		}
		if err := s.drafts.Mutate(draftID, func(d *draft.Draft) { d.PostID = created.ID }); err != nil {
			return PublishResult{}, mapDraftError(err)
		}
	}

	placeholders, failures, err := s.drafts.UploadAll(ctx, draftID, d.PostID)
	if err != nil {
		return PublishResult{}, mapDraftError(err)
	}

	// The batch has fully settled; rewrite against the complete map.
	rewritten, unresolved := document.Rewrite(d.Content, placeholders, d.StagedRefs())
	if err := s.drafts.Mutate(draftID, func(d *draft.Draft) { d.Content = rewritten }); err != nil {
		return PublishResult{}, mapDraftError(err)
	}
	s.drafts.ReleaseUploaded(draftID, placeholders)

	complete := len(unresolved) == 0 && len(failures) == 0
	status := draft.StatusPublished
	if d.Status == draft.StatusArchived {
		status = draft.StatusArchived
	}
	if !complete {
		status = draft.StatusDraft
	}

	contentJSON, err := rewritten.Encode()
	if err != nil {
		return PublishResult{}, fmt.Errorf("encode document: %w", err)
	}
	featuredURL := ""
	if d.Featured != nil && d.Featured.State == draft.ImageUploaded {
		featuredURL = d.Featured.FinalURL
	}

	post, err := s.posts.UpdatePost(ctx, store.Post{
		ID:               d.PostID,
		Title:            d.Title,
		Slug:             d.Slug,
		Excerpt:          d.Excerpt,
		Content:          contentJSON,
		FeaturedImageURL: featuredURL,
		Tags:             d.Tags,
		Categories:       d.Categories,
		SEOTitle:         d.SEOTitle,
		SEODescription:   d.SEODescription,
		Status:           string(status),
	})
	if err != nil {
		return PublishResult{}, domainError(http.StatusBadGateway, "PERSISTENCE_FAILED", "Saving the post failed; the draft is intact", err.Error())
	}

	result := PublishResult{
		Post:       post,
		Published:  complete,
		Unresolved: []UnresolvedView{},
		Failures:   []UploadFailureView{},
	}
	for _, u := range unresolved {
		result.Unresolved = append(result.Unresolved, UnresolvedView{Placeholder: u.Placeholder, PreviewHandle: u.PreviewHandle})
	}
	for _, f := range failures {
		result.Failures = append(result.Failures, UploadFailureView{ImageID: f.ImageID, Error: f.Err.Error()})
	}

	if complete {
		if err := s.drafts.Discard(ctx, draftID); err != nil {
			// The post is saved; a lingering snapshot is harmless.
			return result, nil
		}
	}
	return result, nil
}

// ListPosts lists post records, optionally filtered by status.
func (s *Service) ListPosts(ctx context.Context, status string) ([]store.Post, error) {
	posts, err := s.posts.ListPosts(ctx, status)
	if err != nil {
		return nil, domainError(http.StatusInternalServerError, "SERVER_ERROR", "Listing posts failed", nil)
	}
	if posts == nil {
		posts = []store.Post{}
	}
	return posts, nil
}

// GetPost fetches one post by id or slug.
func (s *Service) GetPost(ctx context.Context, idOrSlug string) (store.Post, error) {
	post, err := s.posts.GetPost(ctx, idOrSlug)
	if errors.Is(err, store.ErrPostNotFound) {
		post, err = s.posts.GetPostBySlug(ctx, idOrSlug)
	}
	if errors.Is(err, store.ErrPostNotFound) {
		return store.Post{}, domainError(http.StatusNotFound, "NOT_FOUND", "Post not found", nil)
	}
	if err != nil {
		return store.Post{}, domainError(http.StatusInternalServerError, "SERVER_ERROR", "Fetching the post failed", nil)
	}
	return post, nil
}

// DeletePost removes a post record.
func (s *Service) DeletePost(ctx context.Context, id string) error {
	err := s.posts.DeletePost(ctx, id)
	if errors.Is(err, store.ErrPostNotFound) {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Post not found", nil)
	}
	if err != nil {
		return domainError(http.StatusInternalServerError, "SERVER_ERROR", "Deleting the post failed", nil)
	}
	return nil
}

func mapDraftError(err error) error {
	switch {
	case errors.Is(err, draft.ErrInvalidFile):
		return domainError(http.StatusBadRequest, "INVALID_FILE", "File is not an accepted image type", nil)
	case errors.Is(err, draft.ErrFileTooLarge):
		return domainError(http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "File exceeds the maximum upload size", nil)
	case errors.Is(err, draft.ErrDraftNotFound):
		return domainError(http.StatusNotFound, "NOT_FOUND", "Draft not found", nil)
	case errors.Is(err, draft.ErrImageNotFound):
		return domainError(http.StatusNotFound, "NOT_FOUND", "Staged image not found", nil)
	case errors.Is(err, draft.ErrStalePreview):
		return domainError(http.StatusGone, "PREVIEW_STALE", "Preview handle is stale; re-select the file", nil)
	default:
		return domainError(http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil)
	}
}
