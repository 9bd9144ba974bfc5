package auth

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func onlyCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0]
}

func TestCookieWrite(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr := NewCookieTransport(time.Hour, WithCookieClock(func() time.Time { return now }))

	rec := httptest.NewRecorder()
	tr.Write(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", nil), "tok")

	c := onlyCookie(t, rec)
	assert.Equal(t, DefaultCookieName, c.Name)
	assert.Equal(t, "tok", c.Value)
	assert.Equal(t, "/", c.Path)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Equal(t, 3600, c.MaxAge)
	assert.True(t, c.Expires.Equal(now.Add(time.Hour)))
}

func TestCookieInsecureOnlyOverPlainHTTP(t *testing.T) {
	tr := NewCookieTransport(time.Hour, WithInsecureCookies(true))

	rec := httptest.NewRecorder()
	tr.Write(rec, httptest.NewRequest(http.MethodPost, "/", nil), "tok")
	assert.False(t, onlyCookie(t, rec).Secure)

	forwarded := httptest.NewRequest(http.MethodPost, "/", nil)
	forwarded.Header.Set("X-Forwarded-Proto", "https")
	rec = httptest.NewRecorder()
	tr.Write(rec, forwarded, "tok")
	assert.True(t, onlyCookie(t, rec).Secure)

	direct := httptest.NewRequest(http.MethodPost, "/", nil)
	direct.TLS = &tls.ConnectionState{}
	rec = httptest.NewRecorder()
	tr.Write(rec, direct, "tok")
	assert.True(t, onlyCookie(t, rec).Secure)
}

func TestCookieRead(t *testing.T) {
	tr := NewCookieTransport(time.Hour)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := tr.Read(r)
	assert.False(t, ok)

	r.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: ""})
	_, ok = tr.Read(r)
	assert.False(t, ok)

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: "other", Value: "x"})
	r.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: "abc"})
	token, ok := tr.Read(r)
	assert.True(t, ok)
	assert.Equal(t, "abc", token)
}

func TestCookieClear(t *testing.T) {
	tr := NewCookieTransport(time.Hour, WithCookieName("custom"))

	rec := httptest.NewRecorder()
	tr.Clear(rec, httptest.NewRequest(http.MethodPost, "/", nil))

	c := onlyCookie(t, rec)
	assert.Equal(t, "custom", c.Name)
	assert.Empty(t, c.Value)
	assert.Equal(t, -1, c.MaxAge)
}

func TestRequestIsSecure(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.False(t, RequestIsSecure(r))

	r.Header.Set("Forwarded", "for=192.0.2.60;proto=https;by=203.0.113.43")
	assert.True(t, RequestIsSecure(r))
}
