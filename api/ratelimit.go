package api

import (
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"
)

// backoffPolicy describes when a key is locked out and for how long.
type backoffPolicy struct {
	// maxFailures is the number of consecutive failures before lockout begins.
	maxFailures int
	// baseLockout is the lockout after maxFailures; it doubles per further failure.
	baseLockout time.Duration
	maxLockout  time.Duration
}

var (
	usernamePolicy = backoffPolicy{maxFailures: 5, baseLockout: 1 * time.Minute, maxLockout: 15 * time.Minute}
	clientIPPolicy = backoffPolicy{maxFailures: 20, baseLockout: 1 * time.Minute, maxLockout: 30 * time.Minute}
)

// attemptExpiry is how long after the last failure a record is forgotten.
const attemptExpiry = 1 * time.Hour

func (p backoffPolicy) lockout(failures int) time.Duration {
	lockout := p.baseLockout
	for i := p.maxFailures; i < failures; i++ {
		lockout *= 2
		if lockout >= p.maxLockout {
			return p.maxLockout
		}
	}
	return lockout
}

type attemptRecord struct {
	failures    int
	lastFailure time.Time
	lockedUntil time.Time
}

// failureLimiter tracks consecutive failures per key and enforces
// exponential backoff.
type failureLimiter struct {
	mu       sync.Mutex
	policy   backoffPolicy
	attempts map[string]*attemptRecord
	now      func() time.Time
}

func newFailureLimiter(policy backoffPolicy, now func() time.Time) *failureLimiter {
	return &failureLimiter{
		policy:   policy,
		attempts: make(map[string]*attemptRecord),
		now:      now,
	}
}

// check reports whether key is locked out and for how much longer.
func (l *failureLimiter) check(key string) (blocked bool, retryAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.attempts[key]
	if !ok {
		return false, 0
	}
	now := l.now()
	if now.Sub(rec.lastFailure) > attemptExpiry {
		delete(l.attempts, key)
		return false, 0
	}
	if now.Before(rec.lockedUntil) {
		return true, rec.lockedUntil.Sub(now)
	}
	return false, 0
}

func (l *failureLimiter) recordFailure(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.attempts[key]
	if !ok {
		rec = &attemptRecord{}
		l.attempts[key] = rec
	}
	now := l.now()
	rec.failures++
	rec.lastFailure = now
	if rec.failures >= l.policy.maxFailures {
		rec.lockedUntil = now.Add(l.policy.lockout(rec.failures))
	}
}

func (l *failureLimiter) recordSuccess(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.attempts, key)
}

// sweep drops expired records.
func (l *failureLimiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, rec := range l.attempts {
		if now.Sub(rec.lastFailure) > attemptExpiry {
			delete(l.attempts, key)
		}
	}
}

// loginLimiter throttles password guessing against one username and from
// one client address.
type loginLimiter struct {
	usernames *failureLimiter
	clientIPs *failureLimiter
}

func newLoginLimiter(now func() time.Time) *loginLimiter {
	return &loginLimiter{
		usernames: newFailureLimiter(usernamePolicy, now),
		clientIPs: newFailureLimiter(clientIPPolicy, now),
	}
}

// check returns the longer of the two lockouts, if any.
func (l *loginLimiter) check(username, ip string) (blocked bool, retryAfter time.Duration) {
	ub, ur := l.usernames.check(usernameKey(username))
	ib, ir := l.clientIPs.check(ip)
	return ub || ib, max(ur, ir)
}

func (l *loginLimiter) recordFailure(username, ip string) {
	l.usernames.recordFailure(usernameKey(username))
	l.clientIPs.recordFailure(ip)
}

func (l *loginLimiter) recordSuccess(username, ip string) {
	l.usernames.recordSuccess(usernameKey(username))
	l.clientIPs.recordSuccess(ip)
}

func (l *loginLimiter) sweep() {
	l.usernames.sweep()
	l.clientIPs.sweep()
}

func usernameKey(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// writeRateLimited sends a 429 Too Many Requests response.
func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	w.Header().Set("Retry-After", retryAfterString(retryAfter))
	writeError(w, http.StatusTooManyRequests, "Too many failed login attempts, try again later")
}

func retryAfterString(d time.Duration) string {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

// clientIP returns the request's peer address. Proxy headers are resolved
// into RemoteAddr by the server's RealIP middleware before this runs.
func clientIP(r *http.Request) string {
	s := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	s = strings.Trim(s, "[]")
	if addr, err := netip.ParseAddr(s); err == nil {
		return addr.Unmap().String()
	}
	return s
}
