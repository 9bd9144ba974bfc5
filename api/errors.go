package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"github.com/foxvalleyai/website/auth"
	"github.com/foxvalleyai/website/storage"
)

const (
	msgInvalidSession = "Invalid or missing session"
	msgAdminRequired  = "Admin access required"
	msgInvalidBody    = "Invalid request body"
	msgInternal       = "Internal server error"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SuccessResponse acknowledges mutations that return nothing else.
type SuccessResponse struct {
	Success bool `json:"success"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeInternalError logs err against the request and answers 500 with msg,
// which must not contain error details.
func writeInternalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	hlog.FromRequest(r).Error().Err(err).Msg(msg)
	writeError(w, http.StatusInternalServerError, msg)
}

// mapError converts domain errors into responses. Anything unrecognised is
// an infrastructure failure.
func mapError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, http.StatusForbidden, msgInvalidSession)
	case errors.Is(err, auth.ErrAdminRequired):
		writeError(w, http.StatusForbidden, msgAdminRequired)
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, storage.ErrUsernameTaken):
		writeError(w, http.StatusConflict, "Username already taken")
	case errors.Is(err, storage.ErrSlugTaken):
		writeError(w, http.StatusConflict, "Slug already in use")
	case errors.Is(err, storage.ErrAlreadySubscribed):
		writeError(w, http.StatusConflict, "Email already subscribed")
	default:
		writeInternalError(w, r, msgInternal, err)
	}
}

// decodeJSON reads a JSON body of at most maxBytes into a T. On failure it
// writes a 400 and returns false.
func decodeJSON[T any](w http.ResponseWriter, r *http.Request, maxBytes int64) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return v, false
		}
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return v, false
	}
	return v, true
}
