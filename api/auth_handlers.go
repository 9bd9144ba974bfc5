package api

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"github.com/foxvalleyai/website/auth"
	"github.com/foxvalleyai/website/internal/uuid"
	"github.com/foxvalleyai/website/storage"
)

const (
	// minPasswordLen is the minimum password length accepted at
	// registration and password change.
	minPasswordLen = 8

	// maxAuthBodySize keeps credential bodies small.
	maxAuthBodySize = 4 << 10

	msgLoginFailed        = "Login failed"
	msgRegistrationFailed = "Registration failed"
	msgBadCredentials     = "Invalid username or password"
	msgPasswordTooShort   = "Password must be at least 8 characters"
	msgPasswordTooLong    = "Password must be at most 72 bytes"
)

// Login handles POST /auth/login.
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[LoginRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	ip := clientIP(r)
	if blocked, retryAfter := a.limiter.check(req.Username, ip); blocked {
		a.audit.record(AuditLoginRateLimited, r).Str("username", req.Username).Str("client_ip", ip).Send()
		writeRateLimited(w, retryAfter)
		return
	}

	ctx := r.Context()
	fail := func(reason string) {
		a.limiter.recordFailure(req.Username, ip)
		a.audit.record(AuditLoginFailure, r).Str("username", req.Username).Str("reason", reason).Send()
		writeError(w, http.StatusUnauthorized, msgBadCredentials)
	}

	acct, err := a.repo.AccountByUsername(ctx, req.Username)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		a.hasher.VerifyMissing(ctx, req.Password)
		fail("unknown username")
		return
	case err != nil:
		writeInternalError(w, r, msgLoginFailed, err)
		return
	case acct.PasswordHash == "":
		a.hasher.VerifyMissing(ctx, req.Password)
		fail("no password set")
		return
	}

	valid, err := a.hasher.Verify(ctx, req.Password, acct.PasswordHash)
	if err != nil {
		writeInternalError(w, r, msgLoginFailed, err)
		return
	}
	if !valid {
		fail("wrong password")
		return
	}

	if err := a.authn.StartSession(w, r, acct); err != nil {
		writeInternalError(w, r, msgLoginFailed, err)
		return
	}
	a.limiter.recordSuccess(req.Username, ip)

	// The session is already issued; a stale lastSignedIn is not worth
	// failing the login over.
	if err := a.repo.TouchLastSignedIn(ctx, acct.ID, a.now()); err != nil {
		a.logger.Warn().Err(err).Int64("account_id", acct.ID).Msg("Update last signed in")
	}

	withAccount(a.audit.record(AuditLoginSuccess, r), acct.ID, acct.Username).Send()
	writeJSON(w, http.StatusOK, AuthResponse{Success: true, User: sessionUser(acct)})
}

// Register handles POST /auth/register. The first account ever created
// becomes an administrator.
func (a *API) Register(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[RegisterRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}
	if req.Username == "" || req.Password == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "Username, password, and name are required")
		return
	}
	if len(req.Password) < minPasswordLen {
		writeError(w, http.StatusBadRequest, msgPasswordTooShort)
		return
	}
	if len(req.Password) > auth.MaxPasswordBytes {
		writeError(w, http.StatusBadRequest, msgPasswordTooLong)
		return
	}
	email := strings.TrimSpace(req.Email)
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			writeError(w, http.StatusBadRequest, "A valid email is required")
			return
		}
	}

	ctx := r.Context()
	// Checked up front so a taken username costs no hashing; CreateAccount
	// re-checks atomically.
	if _, err := a.repo.AccountByUsername(ctx, req.Username); err == nil {
		writeError(w, http.StatusConflict, "Username already taken")
		return
	} else if !errors.Is(err, storage.ErrNotFound) {
		writeInternalError(w, r, msgRegistrationFailed, err)
		return
	}

	hash, err := a.hasher.Hash(ctx, req.Password)
	if err != nil {
		writeInternalError(w, r, msgRegistrationFailed, err)
		return
	}

	acct, err := a.repo.CreateAccount(ctx, &storage.Account{
		OpenID:       uuid.New(),
		Username:     req.Username,
		PasswordHash: hash,
		Name:         req.Name,
		Email:        email,
		LoginMethod:  storage.LoginMethodLocal,
	}, auth.DecideRole)
	if errors.Is(err, storage.ErrUsernameTaken) {
		writeError(w, http.StatusConflict, "Username already taken")
		return
	}
	if err != nil {
		writeInternalError(w, r, msgRegistrationFailed, err)
		return
	}

	if err := a.authn.StartSession(w, r, acct); err != nil {
		writeInternalError(w, r, msgRegistrationFailed, err)
		return
	}

	withAccount(a.audit.record(AuditRegister, r), acct.ID, acct.Username).Str("role", string(acct.Role)).Send()

	msg := "Account created successfully!"
	if acct.Role == storage.RoleAdmin {
		msg = "Admin account created successfully!"
	}
	writeJSON(w, http.StatusOK, AuthResponse{Success: true, User: sessionUser(acct), Message: msg})
}

// Me handles GET /auth/me.
func (a *API) Me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, accountFromContext(r.Context()))
}

// Logout handles POST /auth/logout. It succeeds whether or not a session
// was present.
func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	a.authn.EndSession(w, r)
	a.audit.record(AuditLogout, r).Send()
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// ChangePassword handles POST /auth/password. Changing the password
// revokes every other session of the account; the caller gets a fresh
// cookie.
func (a *API) ChangePassword(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[ChangePasswordRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "Current and new password are required")
		return
	}
	if len(req.NewPassword) < minPasswordLen {
		writeError(w, http.StatusBadRequest, msgPasswordTooShort)
		return
	}
	if len(req.NewPassword) > auth.MaxPasswordBytes {
		writeError(w, http.StatusBadRequest, msgPasswordTooLong)
		return
	}

	ctx := r.Context()
	acct := accountFromContext(ctx)
	valid := false
	if acct.PasswordHash != "" {
		var err error
		valid, err = a.hasher.Verify(ctx, req.CurrentPassword, acct.PasswordHash)
		if err != nil {
			writeInternalError(w, r, msgInternal, err)
			return
		}
	}
	if !valid {
		writeError(w, http.StatusUnauthorized, "Current password is incorrect")
		return
	}

	hash, err := a.hasher.Hash(ctx, req.NewPassword)
	if err != nil {
		writeInternalError(w, r, msgInternal, err)
		return
	}
	updated, err := a.repo.UpdatePassword(ctx, acct.ID, hash)
	if err != nil {
		mapError(w, r, err)
		return
	}
	if err := a.authn.StartSession(w, r, updated); err != nil {
		writeInternalError(w, r, msgInternal, err)
		return
	}

	withAccount(a.audit.record(AuditPasswordChanged, r), acct.ID, acct.Username).Send()
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}
