package api

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/foxvalleyai/website/storage"
)

// ListSocialLinks handles GET /social-links.
func (a *API) ListSocialLinks(w http.ResponseWriter, r *http.Request) {
	a.serveCached(w, r, cacheKeySocialLinks, func() (any, error) {
		links, err := a.repo.ListSocialLinks(r.Context())
		return orEmpty(links), err
	})
}

// UpsertSocialLink handles PUT /social-links, keyed by platform.
func (a *API) UpsertSocialLink(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[SocialLinkRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}
	platform := strings.ToLower(strings.TrimSpace(req.Platform))
	link := strings.TrimSpace(req.URL)
	if platform == "" || link == "" {
		writeError(w, http.StatusBadRequest, "Platform and url are required")
		return
	}
	if u, err := url.Parse(link); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		writeError(w, http.StatusBadRequest, "URL must be an absolute http or https address")
		return
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	saved, err := a.repo.UpsertSocialLink(r.Context(), storage.SocialLink{
		Platform: platform,
		URL:      link,
		IsActive: active,
	})
	if err != nil {
		mapError(w, r, err)
		return
	}
	a.cache.invalidate()

	acct := accountFromContext(r.Context())
	withAccount(a.audit.record(AuditSocialLinkUpdated, r), acct.ID, acct.Username).
		Str("platform", platform).Bool("active", active).Send()
	writeJSON(w, http.StatusOK, saved)
}

// ListAccounts handles GET /admin/accounts, in id order.
func (a *API) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := a.repo.ListAccounts(r.Context())
	if err != nil {
		mapError(w, r, err)
		return
	}
	limit, offset := parsePagination(r)
	page, meta := paginate(accounts, limit, offset)
	writeJSON(w, http.StatusOK, AccountsResponse{Accounts: page, Pagination: meta})
}

// PromoteAccount handles POST /admin/accounts/{accountID}/promote. Roles
// only move from user to admin; promoting an admin is a no-op.
func (a *API) PromoteAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "accountID")
	if !ok {
		return
	}
	promoted, err := a.repo.PromoteToAdmin(r.Context(), id)
	if err != nil {
		mapError(w, r, err)
		return
	}

	acct := accountFromContext(r.Context())
	withAccount(a.audit.record(AuditRolePromoted, r), acct.ID, acct.Username).
		Int64("target_id", promoted.ID).Send()
	writeJSON(w, http.StatusOK, PromoteResponse{Success: true, User: sessionUser(promoted)})
}
