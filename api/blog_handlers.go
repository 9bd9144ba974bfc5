package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/foxvalleyai/website/internal/slug"
	"github.com/foxvalleyai/website/storage"
)

const (
	cacheKeyPosts       = "blog:list"
	cacheKeyPostSlug    = "blog:slug:"
	cacheKeySocialLinks = "social:list"
)

// ListPosts handles GET /blog. Posts are ordered by publication date,
// newest first.
func (a *API) ListPosts(w http.ResponseWriter, r *http.Request) {
	a.serveCached(w, r, cacheKeyPosts, func() (any, error) {
		posts, err := a.repo.ListPosts(r.Context())
		return orEmpty(posts), err
	})
}

// GetPostBySlug handles GET /blog/by-slug/{slug}.
func (a *API) GetPostBySlug(w http.ResponseWriter, r *http.Request) {
	s := chi.URLParam(r, "slug")
	a.serveCached(w, r, cacheKeyPostSlug+s, func() (any, error) {
		return a.repo.PostBySlug(r.Context(), s)
	})
}

// CreatePost handles POST /blog.
func (a *API) CreatePost(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[CreatePostRequest](w, r, maxBodySize)
	if !ok {
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" || req.Content == "" || req.Excerpt == "" || req.Category == "" {
		writeError(w, http.StatusBadRequest, "Title, content, excerpt, and category are required")
		return
	}
	if req.ReadTime <= 0 {
		writeError(w, http.StatusBadRequest, "Read time must be a positive number of minutes")
		return
	}
	publishedAt, ok := parsePublishedAt(w, req.PublishedAt)
	if !ok {
		return
	}
	postSlug, ok := resolveSlug(w, req.Slug, req.Title)
	if !ok {
		return
	}

	acct := accountFromContext(r.Context())
	post, err := a.repo.CreatePost(r.Context(), &storage.BlogPost{
		Title:         req.Title,
		Slug:          postSlug,
		Content:       req.Content,
		Excerpt:       req.Excerpt,
		Category:      req.Category,
		FeaturedImage: req.FeaturedImage,
		ReadTime:      req.ReadTime,
		PublishedAt:   publishedAt,
		AuthorID:      acct.ID,
	})
	if err != nil {
		mapError(w, r, err)
		return
	}
	a.cache.invalidate()

	withAccount(a.audit.record(AuditPostCreated, r), acct.ID, acct.Username).
		Int64("post_id", post.ID).Str("slug", post.Slug).Send()
	writeJSON(w, http.StatusCreated, post)
}

// UpdatePost handles PUT /blog/{postID}. Only the fields present in the
// body change.
func (a *API) UpdatePost(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "postID")
	if !ok {
		return
	}
	req, ok := decodeJSON[UpdatePostRequest](w, r, maxBodySize)
	if !ok {
		return
	}

	patch := storage.BlogPostPatch{
		Title:         req.Title,
		Content:       req.Content,
		Excerpt:       req.Excerpt,
		Category:      req.Category,
		FeaturedImage: req.FeaturedImage,
		ReadTime:      req.ReadTime,
	}
	if req.Title != nil && strings.TrimSpace(*req.Title) == "" {
		writeError(w, http.StatusBadRequest, "Title must not be empty")
		return
	}
	if req.ReadTime != nil && *req.ReadTime <= 0 {
		writeError(w, http.StatusBadRequest, "Read time must be a positive number of minutes")
		return
	}
	if req.Slug != nil {
		if !slug.Valid(*req.Slug) {
			writeError(w, http.StatusBadRequest, "Slug must contain only lowercase letters, digits, and hyphens")
			return
		}
		patch.Slug = req.Slug
	}
	if req.PublishedAt != nil {
		t, ok := parsePublishedAt(w, *req.PublishedAt)
		if !ok {
			return
		}
		patch.PublishedAt = &t
	}

	post, err := a.repo.UpdatePost(r.Context(), id, patch)
	if err != nil {
		mapError(w, r, err)
		return
	}
	a.cache.invalidate()

	acct := accountFromContext(r.Context())
	withAccount(a.audit.record(AuditPostUpdated, r), acct.ID, acct.Username).Int64("post_id", id).Send()
	writeJSON(w, http.StatusOK, post)
}

// DeletePost handles DELETE /blog/{postID}.
func (a *API) DeletePost(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "postID")
	if !ok {
		return
	}
	if err := a.repo.DeletePost(r.Context(), id); err != nil {
		mapError(w, r, err)
		return
	}
	a.cache.invalidate()

	acct := accountFromContext(r.Context())
	withAccount(a.audit.record(AuditPostDeleted, r), acct.ID, acct.Username).Int64("post_id", id).Send()
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

func parsePublishedAt(w http.ResponseWriter, s string) (time.Time, bool) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Published date must be an RFC 3339 timestamp")
		return time.Time{}, false
	}
	return t.UTC(), true
}

// resolveSlug validates an explicit slug or derives one from title.
func resolveSlug(w http.ResponseWriter, explicit, title string) (string, bool) {
	if explicit != "" {
		if !slug.Valid(explicit) {
			writeError(w, http.StatusBadRequest, "Slug must contain only lowercase letters, digits, and hyphens")
			return "", false
		}
		return explicit, true
	}
	derived := slug.Make(title)
	if derived == "" {
		writeError(w, http.StatusBadRequest, "A slug could not be derived from the title")
		return "", false
	}
	return derived, true
}

// orEmpty keeps empty lists encoding as [] rather than null.
func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

// pathID parses a positive integer URL parameter, writing a 400 when it
// is malformed.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid id")
		return 0, false
	}
	return id, true
}
