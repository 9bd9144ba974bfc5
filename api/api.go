// Package api exposes the website's JSON endpoints: authentication, blog,
// contact form, newsletter, social links and the admin dashboard.
package api

import (
	_ "embed"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/foxvalleyai/website/auth"
	"github.com/foxvalleyai/website/storage"
)

// maxBodySize bounds every JSON request body.
const maxBodySize = 256 << 10

// API holds the dependencies needed by the REST handlers.
type API struct {
	repo    storage.Repository
	authn   *auth.Authenticator
	hasher  *auth.Hasher
	logger  zerolog.Logger
	audit   *auditLogger
	limiter *loginLimiter
	cache   *contentCache
	leads   *leadNotifier
	now     func() time.Time

	alertFn   AlertFunc
	cacheTTL  time.Duration
	leadURL   string
	leadAfter time.Duration
	basePath  string
}

//go:embed openapi.yaml
var openapiSpec []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the logger for audit events and background workers.
// If not set, the global zerolog logger is used.
func WithLogger(logger zerolog.Logger) Option {
	return func(a *API) {
		a.logger = logger
	}
}

// WithAlertFunc receives anomaly alerts. By default they are logged at warn.
func WithAlertFunc(fn AlertFunc) Option {
	return func(a *API) {
		a.alertFn = fn
	}
}

// WithContentCache caches public blog and social link responses for ttl.
// Zero disables the cache.
func WithContentCache(ttl time.Duration) Option {
	return func(a *API) {
		a.cacheTTL = ttl
	}
}

// WithLeadWebhook forwards contact messages and newsletter signups to url.
func WithLeadWebhook(url string, timeout time.Duration) Option {
	return func(a *API) {
		a.leadURL = url
		a.leadAfter = timeout
	}
}

// WithClock replaces time.Now for timestamps and rate limiting.
func WithClock(now func() time.Time) Option {
	return func(a *API) {
		a.now = now
	}
}

// WithBasePath sets the prefix the router is mounted under; the docs pages
// use it to find openapi.yaml. Defaults to /api.
func WithBasePath(p string) Option {
	return func(a *API) {
		a.basePath = p
	}
}

// New creates a new API instance. Close releases its background workers.
func New(repo storage.Repository, authn *auth.Authenticator, hasher *auth.Hasher, opts ...Option) (*API, error) {
	a := &API{
		repo:     repo,
		authn:    authn,
		hasher:   hasher,
		logger:   log.Logger,
		now:      time.Now,
		basePath: "/api",
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.alertFn == nil {
		alertLogger := a.logger.With().Str("component", "alerts").Logger()
		a.alertFn = func(e AlertEvent) {
			alertLogger.Warn().
				Str("type", string(e.Type)).
				Int("count", e.Count).
				Int("threshold", e.Threshold).
				Msg(e.Message)
		}
	}
	metrics := newMetricsCollector(a.alertFn)
	metrics.now = a.now
	a.audit = newAuditLogger(a.logger, metrics)
	a.limiter = newLoginLimiter(a.now)

	if a.cacheTTL > 0 {
		cache, err := newContentCache(a.cacheTTL)
		if err != nil {
			return nil, err
		}
		a.cache = cache
	}
	if a.leadURL != "" {
		a.leads = newLeadNotifier(a.leadURL, a.leadAfter, a.logger)
	}
	return a, nil
}

// Close stops the lead webhook after delivering queued events and frees
// the content cache.
func (a *API) Close() error {
	a.leads.close()
	return a.cache.close()
}

// SweepLimiter forgets expired login failure records. The server calls it
// periodically.
func (a *API) SweepLimiter() {
	a.limiter.sweep()
}

// Router returns a chi.Router with all API routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: a.basePath + "/openapi.yaml",
		Path:    a.basePath + "/docs",
	}, nil))

	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: a.basePath + "/openapi.yaml",
		Path:    a.basePath + "/redoc",
	}, nil))

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", a.Login)
		r.Post("/register", a.Register)
		r.Post("/logout", a.Logout)
		r.With(a.RequireSession).Get("/me", a.Me)
		r.With(a.RequireSession).Post("/password", a.ChangePassword)
	})

	r.Route("/blog", func(r chi.Router) {
		r.Get("/", a.ListPosts)
		r.Get("/by-slug/{slug}", a.GetPostBySlug)
		r.With(a.RequireSession, a.RequireAdmin).Post("/", a.CreatePost)
		r.With(a.RequireSession, a.RequireAdmin).Put("/{postID}", a.UpdatePost)
		r.With(a.RequireSession, a.RequireAdmin).Delete("/{postID}", a.DeletePost)
	})

	r.Route("/newsletter", func(r chi.Router) {
		r.Post("/", a.Subscribe)
		r.With(a.RequireSession, a.RequireAdmin).Get("/", a.ListSignups)
	})

	r.Route("/social-links", func(r chi.Router) {
		r.Get("/", a.ListSocialLinks)
		r.With(a.RequireSession, a.RequireAdmin).Put("/", a.UpsertSocialLink)
	})

	r.Route("/contact", func(r chi.Router) {
		r.Post("/", a.SubmitContact)
		r.With(a.RequireSession, a.RequireAdmin).Get("/", a.ListMessages)
		r.With(a.RequireSession, a.RequireAdmin).Post("/{messageID}/read", a.MarkMessageRead)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(a.RequireSession, a.RequireAdmin)
		r.Get("/accounts", a.ListAccounts)
		r.Post("/accounts/{accountID}/promote", a.PromoteAccount)
	})

	return r
}
