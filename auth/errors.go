// Package auth implements the website's standalone authentication: bcrypt
// password hashing, signed session tokens carried in an HTTP cookie, request
// authentication against the account store, and the role policy that makes
// the first account an administrator.
package auth

import "errors"

var (
	// ErrForbidden is returned for any request without a valid session. The
	// reason (no cookie, bad token, unknown account, revoked session) is
	// deliberately not distinguished.
	ErrForbidden = errors.New("invalid or missing session")
	// ErrAdminRequired is returned when an authenticated account lacks the admin role.
	ErrAdminRequired = errors.New("admin access required")
	// ErrInvalidToken is returned by TokenCodec.Verify for any token that
	// fails signature, expiry or claim checks.
	ErrInvalidToken = errors.New("invalid session token")
	// ErrPasswordTooLong is returned for passwords bcrypt cannot hash.
	ErrPasswordTooLong = errors.New("password exceeds 72 bytes")
)
