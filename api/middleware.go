package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/foxvalleyai/website/auth"
	"github.com/foxvalleyai/website/storage"
)

type contextKey int

const accountKey contextKey = iota

// RequireSession authenticates the session cookie and stores the current
// account row on the request context.
func (a *API) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		acct, err := a.authn.Authenticate(r)
		if errors.Is(err, auth.ErrForbidden) {
			writeError(w, http.StatusForbidden, msgInvalidSession)
			return
		}
		if err != nil {
			writeInternalError(w, r, msgInternal, err)
			return
		}
		ctx := context.WithValue(r.Context(), accountKey, acct)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin rejects accounts without the admin role. It must run after
// RequireSession.
func (a *API) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := auth.RequireAdmin(accountFromContext(r.Context())); err != nil {
			mapError(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func accountFromContext(ctx context.Context) *storage.Account {
	acct, _ := ctx.Value(accountKey).(*storage.Account)
	return acct
}
