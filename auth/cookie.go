package auth

import (
	"net/http"
	"strings"
	"time"
)

// DefaultCookieName is the name of the session cookie.
const DefaultCookieName = "app_session_id"

// CookieTransport binds session tokens to an HTTP cookie.
type CookieTransport struct {
	name          string
	ttl           time.Duration
	allowInsecure bool
	now           func() time.Time
}

// CookieOption configures a CookieTransport.
type CookieOption func(*CookieTransport)

// WithCookieName overrides DefaultCookieName.
func WithCookieName(name string) CookieOption {
	return func(t *CookieTransport) {
		if name != "" {
			t.name = name
		}
	}
}

// WithInsecureCookies drops the Secure attribute for requests that did not
// arrive over TLS. Only for local development over plain HTTP.
func WithInsecureCookies(allow bool) CookieOption {
	return func(t *CookieTransport) {
		t.allowInsecure = allow
	}
}

// WithCookieClock replaces time.Now when computing Expires.
func WithCookieClock(now func() time.Time) CookieOption {
	return func(t *CookieTransport) {
		t.now = now
	}
}

// NewCookieTransport returns a transport whose cookies live for ttl.
func NewCookieTransport(ttl time.Duration, opts ...CookieOption) *CookieTransport {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	t := &CookieTransport{name: DefaultCookieName, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name returns the cookie name.
func (t *CookieTransport) Name() string { return t.name }

// TTL returns the cookie lifetime, which is also the token lifetime.
func (t *CookieTransport) TTL() time.Duration { return t.ttl }

// Write sets the session cookie carrying token.
func (t *CookieTransport) Write(w http.ResponseWriter, r *http.Request, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     t.name,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   t.secure(r),
		SameSite: http.SameSiteLaxMode,
		Expires:  t.now().Add(t.ttl),
		MaxAge:   int(t.ttl / time.Second),
	})
}

// Read returns the session token from r. ok is false when the cookie is
// absent or empty.
func (t *CookieTransport) Read(r *http.Request) (token string, ok bool) {
	cookie, err := r.Cookie(t.name)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

// Clear expires the session cookie.
func (t *CookieTransport) Clear(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     t.name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   t.secure(r),
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
}

func (t *CookieTransport) secure(r *http.Request) bool {
	if !t.allowInsecure {
		return true
	}
	return RequestIsSecure(r)
}

// RequestIsSecure reports whether r arrived over TLS, either directly or
// through a proxy that says so.
func RequestIsSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		return true
	}
	return strings.Contains(strings.ToLower(r.Header.Get("Forwarded")), "proto=https")
}
