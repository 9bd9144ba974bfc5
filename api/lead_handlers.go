package api

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/foxvalleyai/website/storage"
)

const msgInvalidEmail = "A valid email is required"

// validEmail reports whether s is a bare address such as a@example.com.
func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

// SubmitContact handles POST /contact.
func (a *API) SubmitContact(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[ContactRequest](w, r, maxBodySize)
	if !ok {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if req.Name == "" || req.Email == "" || strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "Name, email, and message are required")
		return
	}
	if !validEmail(req.Email) {
		writeError(w, http.StatusBadRequest, msgInvalidEmail)
		return
	}

	msg, err := a.repo.CreateMessage(r.Context(), &storage.ContactMessage{
		Name:    req.Name,
		Email:   req.Email,
		Phone:   strings.TrimSpace(req.Phone),
		Website: strings.TrimSpace(req.Website),
		Message: req.Message,
	})
	if err != nil {
		mapError(w, r, err)
		return
	}

	a.audit.record(AuditContactSubmitted, r).Int64("message_id", msg.ID).Send()
	a.leads.enqueue(leadEvent{
		Kind:      leadKindContact,
		ID:        msg.ID,
		Email:     msg.Email,
		Name:      msg.Name,
		Phone:     msg.Phone,
		Website:   msg.Website,
		Message:   msg.Message,
		Timestamp: msg.CreatedAt.UTC().Format(time.RFC3339),
	})
	writeJSON(w, http.StatusOK, CreatedResponse{Success: true, ID: msg.ID})
}

// ListMessages handles GET /contact, newest first.
func (a *API) ListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := a.repo.ListMessages(r.Context())
	if err != nil {
		mapError(w, r, err)
		return
	}
	limit, offset := parsePagination(r)
	page, meta := paginate(msgs, limit, offset)
	writeJSON(w, http.StatusOK, MessagesResponse{Messages: page, Pagination: meta})
}

// MarkMessageRead handles POST /contact/{messageID}/read.
func (a *API) MarkMessageRead(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "messageID")
	if !ok {
		return
	}
	if err := a.repo.MarkMessageRead(r.Context(), id); err != nil {
		mapError(w, r, err)
		return
	}
	acct := accountFromContext(r.Context())
	withAccount(a.audit.record(AuditContactRead, r), acct.ID, acct.Username).Int64("message_id", id).Send()
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// Subscribe handles POST /newsletter. Addresses are stored lowercased.
func (a *API) Subscribe(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[NewsletterRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !validEmail(email) {
		writeError(w, http.StatusBadRequest, msgInvalidEmail)
		return
	}

	signup, err := a.repo.Subscribe(r.Context(), email)
	if errors.Is(err, storage.ErrAlreadySubscribed) {
		writeError(w, http.StatusConflict, "Email already subscribed")
		return
	}
	if err != nil {
		mapError(w, r, err)
		return
	}

	a.audit.record(AuditNewsletterSignup, r).Int64("signup_id", signup.ID).Send()
	a.leads.enqueue(leadEvent{
		Kind:      leadKindNewsletter,
		ID:        signup.ID,
		Email:     signup.Email,
		Timestamp: signup.CreatedAt.UTC().Format(time.RFC3339),
	})
	writeJSON(w, http.StatusOK, CreatedResponse{Success: true, ID: signup.ID})
}

// ListSignups handles GET /newsletter, newest first.
func (a *API) ListSignups(w http.ResponseWriter, r *http.Request) {
	signups, err := a.repo.ListSignups(r.Context())
	if err != nil {
		mapError(w, r, err)
		return
	}
	limit, offset := parsePagination(r)
	page, meta := paginate(signups, limit, offset)
	writeJSON(w, http.StatusOK, SignupsResponse{Signups: page, Pagination: meta})
}
