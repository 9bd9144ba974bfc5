package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/foxvalleyai/website/internal/logutil"
	"github.com/foxvalleyai/website/storage"
)

// AccountLookup is the part of the account store the authenticator needs.
type AccountLookup interface {
	AccountByOpenID(ctx context.Context, openID string) (*storage.Account, error)
}

// Authenticator resolves the account behind a request's session cookie.
type Authenticator struct {
	transport *CookieTransport
	codec     *TokenCodec
	accounts  AccountLookup
}

// NewAuthenticator wires the cookie transport, token codec and account store.
func NewAuthenticator(transport *CookieTransport, codec *TokenCodec, accounts AccountLookup) *Authenticator {
	return &Authenticator{transport: transport, codec: codec, accounts: accounts}
}

// Authenticate returns the current account row for r's session. Missing,
// invalid, expired and revoked sessions all yield ErrForbidden. Any other
// error is an infrastructure failure.
func (a *Authenticator) Authenticate(r *http.Request) (*storage.Account, error) {
	ctx := r.Context()
	logger := logutil.GetOrDefault(ctx)

	raw, ok := a.transport.Read(r)
	if !ok {
		return nil, ErrForbidden
	}

	claims, err := a.codec.Verify(raw)
	if err != nil {
		logger.Debug().Err(err).Msg("rejecting session token")
		return nil, ErrForbidden
	}

	acct, err := a.accounts.AccountByOpenID(ctx, claims.OpenID)
	if errors.Is(err, storage.ErrNotFound) {
		logger.Debug().Str("open_id", claims.OpenID).Msg("session names unknown account")
		return nil, ErrForbidden
	}
	if err != nil {
		return nil, fmt.Errorf("load session account: %w", err)
	}

	if acct.SessionVersion != claims.SessionVersion {
		logger.Debug().Int64("user_id", acct.ID).Msg("session revoked")
		return nil, ErrForbidden
	}
	return acct, nil
}

// StartSession issues a token for acct and sets it on w.
func (a *Authenticator) StartSession(w http.ResponseWriter, r *http.Request, acct *storage.Account) error {
	token, err := a.codec.Issue(ClaimsFor(acct), a.transport.TTL())
	if err != nil {
		return err
	}
	a.transport.Write(w, r, token)
	return nil
}

// EndSession clears the session cookie. Tokens are not persisted, so
// nothing else needs revoking.
func (a *Authenticator) EndSession(w http.ResponseWriter, r *http.Request) {
	a.transport.Clear(w, r)
}
