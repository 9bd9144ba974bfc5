package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foxvalleyai/website/storage"
	"github.com/foxvalleyai/website/storage/memory"
)

type countingLookup struct {
	calls int
	acct  *storage.Account
	err   error
}

func (c *countingLookup) AccountByOpenID(context.Context, string) (*storage.Account, error) {
	c.calls++
	return c.acct, c.err
}

func newTestAuthenticator(t *testing.T, accounts AccountLookup) *Authenticator {
	t.Helper()
	codec, err := NewTokenCodec(testSecret)
	require.NoError(t, err)
	return NewAuthenticator(NewCookieTransport(time.Hour), codec, accounts)
}

// sessionRequest starts a session for acct and replays its cookie on a new request.
func sessionRequest(t *testing.T, a *Authenticator, acct *storage.Account) *http.Request {
	t.Helper()
	rec := httptest.NewRecorder()
	require.NoError(t, a.StartSession(rec, httptest.NewRequest(http.MethodPost, "/", nil), acct))

	r := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	for _, c := range rec.Result().Cookies() {
		r.AddCookie(c)
	}
	return r
}

func TestAuthenticateWithoutCookieSkipsStore(t *testing.T) {
	lookup := &countingLookup{}
	a := newTestAuthenticator(t, lookup)

	_, err := a.Authenticate(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Zero(t, lookup.calls)
}

func TestAuthenticateInvalidTokenSkipsStore(t *testing.T) {
	lookup := &countingLookup{}
	a := newTestAuthenticator(t, lookup)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: "forged"})
	_, err := a.Authenticate(r)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Zero(t, lookup.calls)
}

func TestAuthenticateReturnsCurrentRow(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository()
	acct, err := repo.CreateAccount(ctx, &storage.Account{
		OpenID: "open-bob", Username: "bob", Name: "Bob", LoginMethod: storage.LoginMethodLocal,
	}, func(bool) storage.Role { return storage.RoleUser })
	require.NoError(t, err)

	a := newTestAuthenticator(t, repo)
	r := sessionRequest(t, a, acct)

	// Promotion after issuance is visible without a new token.
	_, err = repo.PromoteToAdmin(ctx, acct.ID)
	require.NoError(t, err)

	got, err := a.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, acct.ID, got.ID)
	assert.Equal(t, storage.RoleAdmin, got.Role)
}

func TestAuthenticateUnknownAccount(t *testing.T) {
	lookup := &countingLookup{err: storage.ErrNotFound}
	a := newTestAuthenticator(t, lookup)
	r := sessionRequest(t, a, &storage.Account{ID: 9, OpenID: "gone", Username: "gone", Role: storage.RoleUser})

	_, err := a.Authenticate(r)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, 1, lookup.calls)
}

func TestAuthenticateStoreFailure(t *testing.T) {
	boom := errors.New("connection refused")
	lookup := &countingLookup{err: boom}
	a := newTestAuthenticator(t, lookup)
	r := sessionRequest(t, a, &storage.Account{ID: 1, OpenID: "o", Username: "u", Role: storage.RoleUser})

	_, err := a.Authenticate(r)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrForbidden)
}

func TestAuthenticateRevokedSession(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository()
	acct, err := repo.CreateAccount(ctx, &storage.Account{
		OpenID: "open-carol", Username: "carol", Name: "Carol", PasswordHash: "old",
		LoginMethod: storage.LoginMethodLocal,
	}, DecideRole)
	require.NoError(t, err)

	a := newTestAuthenticator(t, repo)
	r := sessionRequest(t, a, acct)

	_, err = a.Authenticate(r)
	require.NoError(t, err)

	_, err = repo.UpdatePassword(ctx, acct.ID, "new")
	require.NoError(t, err)
	_, err = a.Authenticate(r)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestEndSession(t *testing.T) {
	a := newTestAuthenticator(t, &countingLookup{})
	rec := httptest.NewRecorder()
	a.EndSession(rec, httptest.NewRequest(http.MethodPost, "/", nil))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)
}
