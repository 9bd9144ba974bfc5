package api

import (
	"net/http"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

// AuditEvent identifies the type of security-relevant action being logged.
type AuditEvent string

const (
	AuditLoginSuccess      AuditEvent = "login_success"
	AuditLoginFailure      AuditEvent = "login_failure"
	AuditLoginRateLimited  AuditEvent = "login_rate_limited"
	AuditRegister          AuditEvent = "register"
	AuditLogout            AuditEvent = "logout"
	AuditPasswordChanged   AuditEvent = "password_changed"
	AuditRolePromoted      AuditEvent = "role_promoted"
	AuditPostCreated       AuditEvent = "post_created"
	AuditPostUpdated       AuditEvent = "post_updated"
	AuditPostDeleted       AuditEvent = "post_deleted"
	AuditContactSubmitted  AuditEvent = "contact_submitted"
	AuditContactRead       AuditEvent = "contact_read"
	AuditNewsletterSignup  AuditEvent = "newsletter_signup"
	AuditSocialLinkUpdated AuditEvent = "social_link_updated"
)

// auditLogger writes one structured entry per security-relevant action.
type auditLogger struct {
	logger  zerolog.Logger
	metrics *metricsCollector
}

func newAuditLogger(logger zerolog.Logger, metrics *metricsCollector) *auditLogger {
	return &auditLogger{
		logger:  logger.With().Str("component", "audit").Logger(),
		metrics: metrics,
	}
}

// record starts an audit entry for event. The caller adds fields and sends
// it. The request id is attached when the hlog middleware assigned one.
func (al *auditLogger) record(event AuditEvent, r *http.Request) *zerolog.Event {
	if al.metrics != nil {
		al.metrics.recordEvent(event)
	}
	e := al.logger.Info().
		Str("event", string(event)).
		Str("remote_addr", r.RemoteAddr)
	if id, ok := hlog.IDFromRequest(r); ok {
		e = e.Str("req_id", id.String())
	}
	return e
}

// withAccount adds the acting account to e.
func withAccount(e *zerolog.Event, id int64, username string) *zerolog.Event {
	return e.Int64("account_id", id).Str("username", username)
}
